package constraintsampler

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/referenceframe"
)

// UnionSampler chains samplers over the same configuration, each seeded by the previous one's output, and
// accepts the result only if the combined constraints hold.
type UnionSampler struct {
	samplers []ConstraintSampler
	cs       *constraints.ConstraintSet
	check    *constraints.KinematicConstraintSet
	scratch  *referenceframe.Configuration
}

// NewUnionSampler returns a sampler running samplers in order. All must share a group.
func NewUnionSampler(check *constraints.KinematicConstraintSet, samplers ...ConstraintSampler) (*UnionSampler, error) {
	if len(samplers) == 0 {
		return nil, errors.New("union sampler needs at least one sampler")
	}
	cs := &constraints.ConstraintSet{}
	for _, s := range samplers {
		if s.Group() != samplers[0].Group() {
			return nil, errors.Errorf("samplers for groups %q and %q cannot be combined", samplers[0].Group(), s.Group())
		}
		cs = cs.Merge(s.Constraints())
	}
	return &UnionSampler{
		samplers: samplers,
		cs:       cs,
		check:    check,
		scratch:  referenceframe.NewConfiguration(check.Model(), nil),
	}, nil
}

// Name returns UnionStrategy.
func (s *UnionSampler) Name() string {
	return UnionStrategy
}

// Group returns the shared group.
func (s *UnionSampler) Group() string {
	return s.samplers[0].Group()
}

// Constraints returns the constraints of every member sampler.
func (s *UnionSampler) Constraints() *constraints.ConstraintSet {
	return s.cs
}

// Sample makes up to attempts passes through the chain.
func (s *UnionSampler) Sample(ctx context.Context, out, reference *referenceframe.Configuration, attempts int) bool {
	for i := 0; i < attempts && ctx.Err() == nil; i++ {
		ok := s.samplers[0].Sample(ctx, out, reference, 1)
		for _, next := range s.samplers[1:] {
			if !ok {
				break
			}
			s.scratch.CopyFrom(out)
			ok = next.Sample(ctx, out, s.scratch, 1)
		}
		if ok && s.check.Decide(out, false).Satisfied {
			return true
		}
	}
	out.CopyFrom(reference)
	return false
}
