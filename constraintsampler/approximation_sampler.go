package constraintsampler

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/referenceframe"
)

// ApproximationSampler draws from states stored by an earlier sampler with the same constraints.
type ApproximationSampler struct {
	groupInfo
	cs     *constraints.ConstraintSet
	source StateSource
	tag    string
	rSeed  *rand.Rand
}

// NewApproximationSampler returns a sampler over source, whose states hold the values of group's variables.
// tag is the strategy name of the sampler that populated source.
func NewApproximationSampler(
	model referenceframe.Model,
	group string,
	cs *constraints.ConstraintSet,
	source StateSource,
	tag string,
	seed int64,
) (*ApproximationSampler, error) {
	gi, err := newGroupInfo(model, group)
	if err != nil {
		return nil, err
	}
	if source.Len() > 0 && len(source.State(0)) != len(gi.idxs) {
		return nil, errors.Errorf("stored states have %d values, group %q has %d", len(source.State(0)), group, len(gi.idxs))
	}
	return &ApproximationSampler{
		groupInfo: gi,
		cs:        cs,
		source:    source,
		tag:       tag,
		//nolint:gosec
		rSeed: rand.New(rand.NewSource(seed)),
	}, nil
}

// Name returns ApproximationStrategy.
func (s *ApproximationSampler) Name() string {
	return ApproximationStrategy
}

// Tag returns the strategy that populated the stored states.
func (s *ApproximationSampler) Tag() string {
	return s.tag
}

// Constraints returns the constraints the stored states satisfy.
func (s *ApproximationSampler) Constraints() *constraints.ConstraintSet {
	return s.cs
}

// Sample copies a random stored state into out. It fails only when nothing is stored.
func (s *ApproximationSampler) Sample(_ context.Context, out, reference *referenceframe.Configuration, attempts int) bool {
	n := s.source.Len()
	if n == 0 || attempts < 1 {
		return false
	}
	out.CopyFrom(reference)
	out.SetGroupValues(s.idxs, s.source.State(s.rSeed.Intn(n)))
	return true
}
