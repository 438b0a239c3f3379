package constraintsampler

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/kinematics"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	"go.viam.com/motionsampling/utils"
)

type sliceSource [][]float64

func (s sliceSource) Len() int              { return len(s) }
func (s sliceSource) State(i int) []float64 { return s[i] }

func planar(t *testing.T) *referenceframe.SimpleModel {
	t.Helper()
	m, err := referenceframe.ParseModelJSONFile(utils.ResolveFile("referenceframe/testjson/planar3.json"), "")
	test.That(t, err, test.ShouldBeNil)
	return m
}

func checker(t *testing.T, m referenceframe.Model, cs *constraints.ConstraintSet) *constraints.KinematicConstraintSet {
	t.Helper()
	kcs, err := constraints.NewKinematicConstraintSet(m, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kcs.Add(cs), test.ShouldBeNil)
	return kcs
}

var reachBox = constraints.PositionConstraint{
	Link:   "ee",
	Shape:  constraints.RegionBox,
	Center: r3.Vector{X: 200, Y: 100},
	Dims:   r3.Vector{X: 20, Y: 20},
}

func TestJointSampler(t *testing.T) {
	m := planar(t)
	cs := &constraints.ConstraintSet{Joint: []constraints.JointConstraint{
		{Joint: "j1", Position: 0.5, ToleranceAbove: 0.1, ToleranceBelow: 0.1},
	}}
	s, err := NewJointSampler(m, "", cs, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Name(), test.ShouldEqual, JointStrategy)
	test.That(t, s.ConstrainedIndices(), test.ShouldResemble, []int{1})

	kcs := checker(t, m, cs)
	ref := referenceframe.NewConfiguration(m, nil)
	out := referenceframe.NewConfiguration(m, nil)
	for i := 0; i < 100; i++ {
		test.That(t, s.Sample(context.Background(), out, ref, 1), test.ShouldBeTrue)
		test.That(t, out.SatisfiesBounds(), test.ShouldBeTrue)
		test.That(t, kcs.Decide(out, false).Satisfied, test.ShouldBeTrue)
	}
	test.That(t, s.Sample(context.Background(), out, ref, 0), test.ShouldBeFalse)
}

func TestJointSamplerInfeasible(t *testing.T) {
	m := planar(t)
	_, err := NewJointSampler(m, "", &constraints.ConstraintSet{Joint: []constraints.JointConstraint{
		{Joint: "j0", Position: 10, ToleranceAbove: 0.1, ToleranceBelow: 0.1},
	}}, 1)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewJointSampler(m, "", &constraints.ConstraintSet{}, 1)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIKSampler(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := planar(t)
	cs := &constraints.ConstraintSet{Position: []constraints.PositionConstraint{reachBox}}
	s, err := NewIKSampler(m, "", cs, kinematics.NewSolver(logger, 0, 2, 1), logger, 3)
	test.That(t, err, test.ShouldBeNil)

	kcs := checker(t, m, cs)
	ref := referenceframe.NewConfiguration(m, referenceframe.FloatsToInputs([]float64{0.2, 0.3, 0.2}))
	out := referenceframe.NewConfiguration(m, nil)
	for i := 0; i < 10; i++ {
		test.That(t, s.Sample(context.Background(), out, ref, 20), test.ShouldBeTrue)
		test.That(t, kcs.Decide(out, false).Satisfied, test.ShouldBeTrue)
		test.That(t, out.SatisfiesBounds(), test.ShouldBeTrue)
	}
}

func TestIKSamplerWithOrientation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := planar(t)
	yaw := referenceframe.NewConfiguration(m, referenceframe.FloatsToInputs([]float64{0.5, 0, 0}))
	pose, err := yaw.EndEffectorPose()
	test.That(t, err, test.ShouldBeNil)
	cs := &constraints.ConstraintSet{
		Position: []constraints.PositionConstraint{reachBox},
		Orientation: []constraints.OrientationConstraint{{
			Link:    "ee",
			Target:  pose.Orientation().Quaternion(),
			AbsZTol: 0.2,
		}},
	}
	s, err := NewIKSampler(m, "", cs, kinematics.NewSolver(logger, 0, 2, 1), logger, 5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Constraints().Orientation, test.ShouldHaveLength, 1)

	kcs := checker(t, m, cs)
	ref := referenceframe.NewConfiguration(m, nil)
	out := referenceframe.NewConfiguration(m, nil)
	test.That(t, s.Sample(context.Background(), out, ref, 20), test.ShouldBeTrue)
	test.That(t, kcs.Decide(out, false).Satisfied, test.ShouldBeTrue)
}

func TestIKSamplerUnreachable(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := planar(t)
	far := reachBox
	far.Center = r3.Vector{X: 1000}
	s, err := NewIKSampler(m, "", &constraints.ConstraintSet{Position: []constraints.PositionConstraint{far}},
		kinematics.NewSolver(logger, 30, 1, 1), logger, 3)
	test.That(t, err, test.ShouldBeNil)

	ref := referenceframe.NewConfiguration(m, referenceframe.FloatsToInputs([]float64{0.1, 0.1, 0.1}))
	out := referenceframe.NewConfiguration(m, nil)
	test.That(t, s.Sample(context.Background(), out, ref, 3), test.ShouldBeFalse)
	test.That(t, out.Values(), test.ShouldResemble, ref.Values())
}

func TestIKSamplerStopsWhenCancelled(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := planar(t)
	far := reachBox
	far.Center = r3.Vector{X: 1000}
	s, err := NewIKSampler(m, "", &constraints.ConstraintSet{Position: []constraints.PositionConstraint{far}},
		kinematics.NewSolver(logger, 0, 0, 1), logger, 3)
	test.That(t, err, test.ShouldBeNil)

	ref := referenceframe.NewConfiguration(m, referenceframe.FloatsToInputs([]float64{0.1, 0.1, 0.1}))
	out := referenceframe.NewConfiguration(m, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	test.That(t, s.Sample(ctx, out, ref, 1000), test.ShouldBeFalse)
	test.That(t, time.Since(start), test.ShouldBeLessThan, 2*time.Second)
	test.That(t, out.Values(), test.ShouldResemble, ref.Values())
}

func TestManagerSelect(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := planar(t)
	mgr := NewManager(m, kinematics.NewSolver(logger, 0, 2, 1), logger, 11)

	joint := constraints.JointConstraint{Joint: "j0", Position: 0.25, ToleranceAbove: 0.05, ToleranceBelow: 0.05}
	cases := []struct {
		cs   *constraints.ConstraintSet
		name string
	}{
		{&constraints.ConstraintSet{Joint: []constraints.JointConstraint{joint}}, JointStrategy},
		{&constraints.ConstraintSet{Position: []constraints.PositionConstraint{reachBox}}, IKStrategy},
		{&constraints.ConstraintSet{Joint: []constraints.JointConstraint{joint}, Position: []constraints.PositionConstraint{reachBox}}, UnionStrategy},
	}
	for _, c := range cases {
		s, err := mgr.Select("", c.cs)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Name(), test.ShouldEqual, c.name)
	}

	_, err := mgr.Select("", &constraints.ConstraintSet{
		Orientation: []constraints.OrientationConstraint{{Link: "ee", Target: quat.Number{Real: 1}}},
	})
	test.That(t, err, test.ShouldEqual, ErrNoSampler)
	_, err = mgr.Select("", &constraints.ConstraintSet{})
	test.That(t, err, test.ShouldEqual, ErrNoSampler)
}

func TestUnionSampler(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := planar(t)
	mgr := NewManager(m, kinematics.NewSolver(logger, 0, 2, 1), logger, 11)
	cs := &constraints.ConstraintSet{
		Joint:    []constraints.JointConstraint{{Joint: "j0", Position: 0.25, ToleranceAbove: 0.05, ToleranceBelow: 0.05}},
		Position: []constraints.PositionConstraint{reachBox},
	}
	s, err := mgr.Select("", cs)
	test.That(t, err, test.ShouldBeNil)

	kcs := checker(t, m, cs)
	ref := referenceframe.NewConfiguration(m, nil)
	out := referenceframe.NewConfiguration(m, nil)
	for i := 0; i < 5; i++ {
		test.That(t, s.Sample(context.Background(), out, ref, 20), test.ShouldBeTrue)
		test.That(t, kcs.Decide(out, false).Satisfied, test.ShouldBeTrue)
	}
}

func TestManagerPrefersApproximation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := planar(t)
	mgr := NewManager(m, kinematics.NewSolver(logger, 0, 2, 1), logger, 11)
	cs := &constraints.ConstraintSet{Joint: []constraints.JointConstraint{
		{Joint: "j2", Position: 0, ToleranceAbove: 0.1, ToleranceBelow: 0.1},
	}}
	want, err := constraints.NewDescriptor(cs, "", JointStrategy)
	test.That(t, err, test.ShouldBeNil)
	stored := sliceSource{{0.1, 0.2, 0.05}, {0.3, 0.4, -0.05}}
	mgr.UseApproximations(func(d constraints.Descriptor) (StateSource, bool) {
		if d.Equal(want) {
			return stored, true
		}
		return nil, false
	})

	s, err := mgr.Select("", cs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Name(), test.ShouldEqual, ApproximationStrategy)
	test.That(t, s.(*ApproximationSampler).Tag(), test.ShouldEqual, JointStrategy)

	ref := referenceframe.NewConfiguration(m, nil)
	out := referenceframe.NewConfiguration(m, nil)
	for i := 0; i < 10; i++ {
		test.That(t, s.Sample(context.Background(), out, ref, 1), test.ShouldBeTrue)
		vals := referenceframe.InputsToFloats(out.Values())
		matched := false
		for _, st := range stored {
			if vals[0] == st[0] && vals[1] == st[1] && vals[2] == st[2] {
				matched = true
			}
		}
		test.That(t, matched, test.ShouldBeTrue)
	}
}

func TestApproximationSamplerEmpty(t *testing.T) {
	m := planar(t)
	s, err := NewApproximationSampler(m, "", &constraints.ConstraintSet{}, sliceSource{}, JointStrategy, 1)
	test.That(t, err, test.ShouldBeNil)
	ref := referenceframe.NewConfiguration(m, nil)
	test.That(t, s.Sample(context.Background(), referenceframe.NewConfiguration(m, nil), ref, 5), test.ShouldBeFalse)

	_, err = NewApproximationSampler(m, "", &constraints.ConstraintSet{}, sliceSource{{1, 2}}, JointStrategy, 1)
	test.That(t, err, test.ShouldNotBeNil)
}
