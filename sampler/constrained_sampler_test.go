package sampler

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/constraintsampler"
	"go.viam.com/motionsampling/kinematics"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	"go.viam.com/motionsampling/statespace"
	"go.viam.com/motionsampling/utils"
)

// outOfBounds always succeeds, with a value no limit allows.
type outOfBounds struct{}

func (outOfBounds) Name() string                            { return "broken" }
func (outOfBounds) Group() string                           { return "" }
func (outOfBounds) Constraints() *constraints.ConstraintSet { return &constraints.ConstraintSet{} }
func (outOfBounds) Sample(_ context.Context, out, reference *referenceframe.Configuration, attempts int) bool {
	out.CopyFrom(reference)
	out.SetValue(0, 100)
	return true
}

func setup(t *testing.T) (*referenceframe.SimpleModel, *statespace.JointSpace, *constraintsampler.Manager) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	m, err := referenceframe.ParseModelJSONFile(utils.ResolveFile("referenceframe/testjson/planar3.json"), "")
	test.That(t, err, test.ShouldBeNil)
	js, err := statespace.NewJointSpace(m, "")
	test.That(t, err, test.ShouldBeNil)
	return m, js, constraintsampler.NewManager(m, kinematics.NewSolver(logger, 50, 1, 1), logger, 1)
}

func TestSatisfiableConstraint(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m, js, mgr := setup(t)
	cs := &constraints.ConstraintSet{Joint: []constraints.JointConstraint{
		{Joint: "j0", Position: 2, ToleranceAbove: 0.05, ToleranceBelow: 0.05},
	}}
	csamp, err := mgr.Select("", cs)
	test.That(t, err, test.ShouldBeNil)
	kcs, err := constraints.NewKinematicConstraintSet(m, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kcs.Add(cs), test.ShouldBeNil)

	s := NewConstrainedSampler(js, csamp, referenceframe.NewConfiguration(m, nil), 10, 1, logger)
	out := js.NewState()
	cfg := referenceframe.NewConfiguration(m, nil)
	for i := 0; i < 100; i++ {
		s.SampleUniform(out)
		test.That(t, js.SatisfiesBounds(out), test.ShouldBeTrue)
		test.That(t, js.CopyToConfig(out, cfg), test.ShouldBeNil)
		test.That(t, kcs.Decide(cfg, false).Satisfied, test.ShouldBeTrue)
	}
	test.That(t, s.Stats(), test.ShouldResemble, Stats{Successes: 100})
}

func TestReprojectionTowardReference(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m, js, mgr := setup(t)
	cs := &constraints.ConstraintSet{Joint: []constraints.JointConstraint{
		{Joint: "j0", Position: 2, ToleranceAbove: 0.05, ToleranceBelow: 0.05},
		{Joint: "j1", Position: 0, ToleranceAbove: 0.01, ToleranceBelow: 0.01},
		{Joint: "j2", Position: 0, ToleranceAbove: 0.01, ToleranceBelow: 0.01},
	}}
	csamp, err := mgr.Select("", cs)
	test.That(t, err, test.ShouldBeNil)
	s := NewConstrainedSampler(js, csamp, referenceframe.NewConfiguration(m, nil), 10, 1, logger)

	near := statespace.State{0, 0, 0}
	out := js.NewState()
	for i := 0; i < 50; i++ {
		s.SampleUniformNear(out, near, 0.5)
		test.That(t, js.Distance(near, out), test.ShouldBeLessThanOrEqualTo, 0.5+1e-9)
		test.That(t, js.SatisfiesBounds(out), test.ShouldBeTrue)

		s.SampleGaussian(out, near, 0.25)
		test.That(t, js.Distance(near, out), test.ShouldBeLessThanOrEqualTo, 0.25+1e-9)
	}

	// A nearby constrained sample is returned as is.
	nearby := statespace.State{2, 0, 0}
	s.SampleUniformNear(out, nearby, 1)
	test.That(t, out[0], test.ShouldBeBetween, 1.94, 2.06)
	test.That(t, s.Stats().Failures, test.ShouldEqual, 0)
}

func TestUnsatisfiableFallsBack(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m, js, mgr := setup(t)
	cs := &constraints.ConstraintSet{Position: []constraints.PositionConstraint{{
		Link: "ee", Shape: constraints.RegionSphere, Center: r3.Vector{X: 5000}, Radius: 1,
	}}}
	csamp, err := mgr.Select("", cs)
	test.That(t, err, test.ShouldBeNil)
	s := NewConstrainedSampler(js, csamp, referenceframe.NewConfiguration(m, nil), 2, 1, logger)

	out := js.NewState()
	for i := 0; i < 5; i++ {
		s.SampleUniform(out)
		test.That(t, js.SatisfiesBounds(out), test.ShouldBeTrue)
	}
	test.That(t, s.Stats(), test.ShouldResemble, Stats{Failures: 5})
}

func TestOutOfBoundsSampleIsDiscarded(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m, js, _ := setup(t)
	s := NewConstrainedSampler(js, outOfBounds{}, referenceframe.NewConfiguration(m, nil), 1, 1, logger)
	out := js.NewState()
	for i := 0; i < 20; i++ {
		s.SampleUniform(out)
		test.That(t, js.SatisfiesBounds(out), test.ShouldBeTrue)
		test.That(t, out[0], test.ShouldNotEqual, 100.)
	}
	test.That(t, s.Stats(), test.ShouldResemble, Stats{Failures: 20})
}

func TestNoConstraintSampler(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m, js, _ := setup(t)
	s := NewConstrainedSampler(js, nil, referenceframe.NewConfiguration(m, nil), 1, 1, logger)
	out := js.NewState()
	s.SampleUniform(out)
	s.SampleGaussian(out, statespace.State{0, 0, 0}, 0.1)
	test.That(t, js.SatisfiesBounds(out), test.ShouldBeTrue)
	test.That(t, s.Stats(), test.ShouldResemble, Stats{})
}
