package constraintsampler

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/kinematics"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
)

// ErrNoSampler is returned when no strategy can sample the given constraints directly.
var ErrNoSampler = errors.New("no constraint sampler can handle these constraints")

// ApproximationLookup returns stored states for a descriptor, if any have been published.
type ApproximationLookup func(d constraints.Descriptor) (StateSource, bool)

// Manager chooses the sampling strategy for a constraint set.
type Manager struct {
	model  referenceframe.Model
	logger logging.Logger
	solver *kinematics.Solver
	lookup ApproximationLookup
	seed   atomic.Int64
}

// NewManager returns a manager whose samplers solve IK with solver and are seeded from seed onwards.
func NewManager(model referenceframe.Model, solver *kinematics.Solver, logger logging.Logger, seed int64) *Manager {
	m := &Manager{model: model, solver: solver, logger: logger}
	m.seed.Store(seed)
	return m
}

// UseApproximations makes Select prefer stored states published under the chosen strategy's descriptor.
func (m *Manager) UseApproximations(lookup ApproximationLookup) {
	m.lookup = lookup
}

// Strategy names the strategy Select would build for cs, without building it.
func Strategy(cs *constraints.ConstraintSet) (string, error) {
	hasJoint := len(cs.Joint) > 0
	hasIK := len(cs.Position) > 0
	switch {
	case hasJoint && hasIK:
		return UnionStrategy, nil
	case hasJoint:
		return JointStrategy, nil
	case hasIK:
		return IKStrategy, nil
	default:
		return "", ErrNoSampler
	}
}

// Select builds a fresh sampler for cs over group. Each call returns an independent sampler with its own seed.
func (m *Manager) Select(group string, cs *constraints.ConstraintSet) (ConstraintSampler, error) {
	if cs.Empty() {
		return nil, ErrNoSampler
	}
	strategy, err := Strategy(cs)
	if err != nil {
		return nil, err
	}
	if m.lookup != nil {
		d, err := constraints.NewDescriptor(cs, group, strategy)
		if err != nil {
			return nil, err
		}
		if source, ok := m.lookup(d); ok && source.Len() > 0 {
			m.logger.Debugf("using stored approximation with %d states for group %q", source.Len(), group)
			return NewApproximationSampler(m.model, group, cs, source, strategy, m.nextSeed())
		}
	}
	return m.Build(group, cs, strategy)
}

// Build constructs the named strategy, ignoring stored approximations.
func (m *Manager) Build(group string, cs *constraints.ConstraintSet, strategy string) (ConstraintSampler, error) {
	switch strategy {
	case JointStrategy:
		return NewJointSampler(m.model, group, cs, m.nextSeed())
	case IKStrategy:
		return NewIKSampler(m.model, group, cs, m.solver, m.logger, m.nextSeed())
	case UnionStrategy:
		js, err := NewJointSampler(m.model, group, cs, m.nextSeed())
		if err != nil {
			return nil, err
		}
		iks, err := NewIKSampler(m.model, group, cs, m.solver, m.logger, m.nextSeed())
		if err != nil {
			return nil, err
		}
		iks.HoldFixed(js.ConstrainedIndices())
		check, err := constraints.NewKinematicConstraintSet(m.model, m.logger)
		if err != nil {
			return nil, err
		}
		if err := check.Add(cs); err != nil {
			return nil, err
		}
		return NewUnionSampler(check, js, iks)
	default:
		return nil, errors.Errorf("unknown sampling strategy %q", strategy)
	}
}

func (m *Manager) nextSeed() int64 {
	return m.seed.Inc()
}
