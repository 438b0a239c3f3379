package goalsampler

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/atomic"
	"go.viam.com/test"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/constraintsampler"
	"go.viam.com/motionsampling/kinematics"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	"go.viam.com/motionsampling/statespace"
	"go.viam.com/motionsampling/utils"
)

type countingProblem struct {
	calls    atomic.Int64
	solvedAt int64
}

func (p *countingProblem) HasSolution() bool {
	return p.calls.Inc() > p.solvedAt
}

type rejectAll struct{}

func (rejectAll) IsValid(statespace.State) bool { return false }

func jointGoal(tolerance float64, positions ...float64) *constraints.ConstraintSet {
	cs := &constraints.ConstraintSet{}
	for i, p := range positions {
		cs.Joint = append(cs.Joint, constraints.JointConstraint{
			Joint:          []string{"j0", "j1", "j2"}[i],
			Position:       p,
			ToleranceAbove: tolerance,
			ToleranceBelow: tolerance,
		})
	}
	return cs
}

func newConfig(t *testing.T, sampled, goal *constraints.ConstraintSet) Config {
	t.Helper()
	logger := logging.NewTestLogger(t)
	m, err := referenceframe.ParseModelJSONFile(utils.ResolveFile("referenceframe/testjson/planar3.json"), "")
	test.That(t, err, test.ShouldBeNil)
	space, err := statespace.NewJointSpace(m, "")
	test.That(t, err, test.ShouldBeNil)
	js, err := constraintsampler.NewJointSampler(m, "", sampled, 7)
	test.That(t, err, test.ShouldBeNil)
	kcs, err := constraints.NewKinematicConstraintSet(m, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kcs.Add(goal), test.ShouldBeNil)
	return Config{
		Space:           space,
		Sampler:         js,
		Goal:            kcs,
		Initial:         referenceframe.NewConfiguration(m, nil),
		MaxAttempts:     1000,
		MaxSamples:      5,
		AttemptsPerDraw: 10,
	}
}

// poseConfig samples end effector positions inside region by IK, in the pose space of the planar arm.
func poseConfig(t *testing.T, region constraints.PositionConstraint) (Config, *statespace.PoseSpace) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	m, err := referenceframe.ParseModelJSONFile(utils.ResolveFile("referenceframe/testjson/planar3.json"), "")
	test.That(t, err, test.ShouldBeNil)
	ps, err := statespace.NewPoseSpace(m, "", kinematics.NewSolver(logger, 0, 2, 1), statespace.PoseSpaceOptions{})
	test.That(t, err, test.ShouldBeNil)
	goal := &constraints.ConstraintSet{Position: []constraints.PositionConstraint{region}}
	ik, err := constraintsampler.NewIKSampler(m, "", goal, kinematics.NewSolver(logger, 0, 0, 1), logger, 3)
	test.That(t, err, test.ShouldBeNil)
	kcs, err := constraints.NewKinematicConstraintSet(m, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kcs.Add(goal), test.ShouldBeNil)
	return Config{
		Space:           ps,
		Sampler:         ik,
		Goal:            kcs,
		Initial:         referenceframe.NewConfiguration(m, nil),
		MaxAttempts:     200,
		MaxSamples:      5,
		AttemptsPerDraw: 20,
	}, ps
}

func TestPoolStopsAtMaxSamples(t *testing.T) {
	single := jointGoal(0, 0.3, -0.2, 1.1)
	g, err := NewLazyGoalSampler(newConfig(t, single, single), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Stop()

	g.Wait()
	test.That(t, g.Status(), test.ShouldEqual, Exhausted)
	test.That(t, g.Pool().Len(), test.ShouldEqual, 5)
	test.That(t, g.MaxSampleCount(), test.ShouldEqual, 5)
	test.That(t, g.Attempts(), test.ShouldEqual, 5)
	for _, s := range g.Pool().States() {
		test.That(t, s, test.ShouldResemble, statespace.State{0.3, -0.2, 1.1})
	}
}

func TestAttemptBudgetExhausted(t *testing.T) {
	cfg := newConfig(t, jointGoal(0.05, 0.5), jointGoal(0.05, -0.5))
	cfg.MaxAttempts = 20
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Stop()

	g.Wait()
	test.That(t, g.Status(), test.ShouldEqual, Exhausted)
	test.That(t, g.Attempts(), test.ShouldEqual, 20)
	test.That(t, g.Pool().Len(), test.ShouldEqual, 0)
	test.That(t, g.CanSample(), test.ShouldBeFalse)
	test.That(t, g.SampleGoal(statespace.State{0, 0, 0}), test.ShouldBeFalse)
	test.That(t, g.WaitForGoal(context.Background()), test.ShouldBeFalse)
}

func TestSolutionFoundStopsSampling(t *testing.T) {
	cfg := newConfig(t, jointGoal(0.1, 0.5), jointGoal(0.1, 0.5))
	problem := &countingProblem{solvedAt: 3}
	cfg.Problem = problem
	cfg.MaxSamples = 100
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Stop()

	g.Wait()
	test.That(t, g.Status(), test.ShouldEqual, SolutionFound)
	test.That(t, g.Attempts(), test.ShouldEqual, 3)
	test.That(t, g.Pool().Len(), test.ShouldEqual, 3)
}

func TestStopCancels(t *testing.T) {
	cfg := newConfig(t, jointGoal(0.05, 0.5), jointGoal(0.05, -0.5))
	cfg.MaxAttempts = 1 << 30
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.Status(), test.ShouldEqual, Sampling)
	test.That(t, g.CanSample(), test.ShouldBeTrue)

	time.Sleep(5 * time.Millisecond)
	g.Stop()
	test.That(t, g.Status(), test.ShouldEqual, Cancelled)
	test.That(t, g.Pool().Len(), test.ShouldEqual, 0)
	attempts := g.Attempts()
	time.Sleep(5 * time.Millisecond)
	test.That(t, g.Attempts(), test.ShouldEqual, attempts)
}

func TestStopInterruptsLongDraw(t *testing.T) {
	cfg, _ := poseConfig(t, constraints.PositionConstraint{
		Link:   "ee",
		Shape:  constraints.RegionBox,
		Center: r3.Vector{X: 300, Z: 200},
		Dims:   r3.Vector{X: 1, Y: 1, Z: 1},
	})
	cfg.MaxAttempts = 1 << 30
	cfg.AttemptsPerDraw = 1000
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	g.Stop()
	test.That(t, time.Since(start), test.ShouldBeLessThan, 2*time.Second)
	test.That(t, g.Status(), test.ShouldEqual, Cancelled)
	test.That(t, g.Pool().Len(), test.ShouldEqual, 0)
}

func TestParentCancelEndsRun(t *testing.T) {
	cfg := newConfig(t, jointGoal(0.05, 0.5), jointGoal(0.05, -0.5))
	cfg.MaxAttempts = 1 << 30
	ctx, cancel := context.WithCancel(context.Background())
	cfg.Parent = ctx
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Stop()

	cancel()
	g.Wait()
	test.That(t, g.Status(), test.ShouldEqual, Cancelled)
	test.That(t, g.CanSample(), test.ShouldBeFalse)
}

func TestPoseSpaceGoalsReadWhileSampling(t *testing.T) {
	region := constraints.PositionConstraint{
		Link:   "ee",
		Shape:  constraints.RegionBox,
		Center: r3.Vector{X: 200, Y: 100},
		Dims:   r3.Vector{X: 20, Y: 20, Z: 20},
	}
	cfg, ps := poseConfig(t, region)
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Stop()

	inRegion := func(s statespace.State) bool {
		return ps.SatisfiesBounds(s) &&
			s[0] >= 189 && s[0] <= 211 && s[1] >= 89 && s[1] <= 111 && s[2] >= -11 && s[2] <= 11
	}
	done := make(chan int)
	go func() {
		bad := 0
		out := ps.NewState()
		for g.CanSample() {
			if g.SampleGoal(out) && !inRegion(out) {
				bad++
			}
			if g.Status() != Sampling {
				break
			}
		}
		done <- bad
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	test.That(t, g.WaitForGoal(ctx), test.ShouldBeTrue)
	g.Wait()
	test.That(t, <-done, test.ShouldEqual, 0)
	test.That(t, g.Status(), test.ShouldEqual, Exhausted)
	test.That(t, g.Pool().Len(), test.ShouldEqual, 5)
	for _, s := range g.Pool().States() {
		test.That(t, inRegion(s), test.ShouldBeTrue)
	}
}

func TestSampleGoalCyclesInDiscoveryOrder(t *testing.T) {
	window := jointGoal(0.2, 0.1, 0.2, 0.3)
	cfg := newConfig(t, window, window)
	cfg.MaxSamples = 3
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, g.WaitForGoal(ctx), test.ShouldBeTrue)
	g.Wait()
	test.That(t, g.Pool().Len(), test.ShouldEqual, 3)

	out := statespace.State{0, 0, 0}
	for i := 0; i < 7; i++ {
		test.That(t, g.SampleGoal(out), test.ShouldBeTrue)
		test.That(t, out, test.ShouldResemble, g.Pool().At(i%3))
	}
}

func TestDeferredStartAndRestart(t *testing.T) {
	single := jointGoal(0, 0.3, -0.2, 1.1)
	cfg := newConfig(t, single, single)
	cfg.DeferStart = true
	cfg.MaxSamples = 2
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Stop()
	test.That(t, g.Status(), test.ShouldEqual, Idle)
	test.That(t, g.CanSample(), test.ShouldBeFalse)

	g.Start()
	g.Wait()
	test.That(t, g.Status(), test.ShouldEqual, Exhausted)
	test.That(t, g.Pool().Len(), test.ShouldEqual, 2)

	// A new run keeps the pool and stops immediately because it is full.
	g.Start()
	g.Wait()
	test.That(t, g.Status(), test.ShouldEqual, Exhausted)
	test.That(t, g.Attempts(), test.ShouldEqual, 0)
	test.That(t, g.Pool().Len(), test.ShouldEqual, 2)
}

func TestCheckerFiltersGoals(t *testing.T) {
	single := jointGoal(0, 0.3, -0.2, 1.1)
	cfg := newConfig(t, single, single)
	cfg.Checker = rejectAll{}
	cfg.MaxAttempts = 50
	g, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Stop()

	g.Wait()
	test.That(t, g.Pool().Len(), test.ShouldEqual, 0)
	test.That(t, g.Attempts(), test.ShouldEqual, 50)
}

func TestConfigValidation(t *testing.T) {
	single := jointGoal(0, 0.3)
	cfg := newConfig(t, single, single)
	cfg.MaxSamples = 0
	_, err := NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	cfg = newConfig(t, single, single)
	cfg.Sampler = nil
	_, err = NewLazyGoalSampler(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStatusString(t *testing.T) {
	test.That(t, SolutionFound.String(), test.ShouldEqual, "solution found")
	test.That(t, Status(42).String(), test.ShouldEqual, "unknown")
}
