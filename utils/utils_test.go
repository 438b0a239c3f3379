package utils

import (
	"context"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestGetenvInt(t *testing.T) {
	t.Setenv("MS_TEST_INT", "42")
	test.That(t, GetenvInt("MS_TEST_INT", 7), test.ShouldEqual, 42)
	t.Setenv("MS_TEST_INT", "forty-two")
	test.That(t, GetenvInt("MS_TEST_INT", 7), test.ShouldEqual, 7)
	test.That(t, GetenvInt("MS_TEST_UNSET_INT", 3), test.ShouldEqual, 3)

	t.Setenv("MS_TEST_BOOL", "yes")
	test.That(t, GetenvBool("MS_TEST_BOOL", false), test.ShouldBeTrue)
	test.That(t, GetenvBool("MS_TEST_UNSET_BOOL", true), test.ShouldBeTrue)
}

func TestStoppableWorkers(t *testing.T) {
	var count atomic.Int32
	workers := NewStoppableWorkersWithContext(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		count.Add(1)
	})
	workers.AddWorkers(func(ctx context.Context) {
		count.Add(1)
	})
	workers.Stop()
	test.That(t, count.Load(), test.ShouldEqual, int32(2))

	// Adding after Stop starts nothing.
	workers.AddWorkers(func(ctx context.Context) {
		count.Add(1)
	})
	workers.Wait()
	test.That(t, count.Load(), test.ShouldEqual, int32(2))
}

func TestStoppableWorkersParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	var count atomic.Int32
	workers := NewStoppableWorkersWithContext(parent, func(ctx context.Context) {
		<-ctx.Done()
		count.Add(1)
	})
	cancel()
	workers.Wait()
	test.That(t, count.Load(), test.ShouldEqual, int32(1))
	workers.Stop()
}

func TestAlmostEqual(t *testing.T) {
	test.That(t, Float64AlmostEqual(1, 1+1e-9, 1e-6), test.ShouldBeTrue)
	test.That(t, Float64AlmostEqual(1, 1.1, 1e-6), test.ShouldBeFalse)
	test.That(t, DegToRad(90), test.ShouldAlmostEqual, 1.5707963267948966)
	test.That(t, MaxInt(2, -3), test.ShouldEqual, 2)
}
