// Package sampler provides the planner-facing state sampler that prefers constraint-satisfying states and
// falls back to the space's default sampler.
package sampler

import (
	"context"

	"go.uber.org/atomic"

	"go.viam.com/motionsampling/constraintsampler"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	"go.viam.com/motionsampling/statespace"
)

// Stats counts constrained draws. Counters only grow.
type Stats struct {
	Successes uint64
	Failures  uint64
}

// ConstrainedSampler implements statespace.Sampler. Each call first tries the constraint sampler; when that
// fails within its attempt budget, or produces a state outside the space's bounds, the default sampler
// answers the call instead. A ConstrainedSampler is used by a single goroutine; Stats may be read from any.
type ConstrainedSampler struct {
	space    statespace.StateSpace
	fallback statespace.Sampler
	cs       constraintsampler.ConstraintSampler
	logger   logging.Logger
	attempts int

	initial *referenceframe.Configuration
	ref     *referenceframe.Configuration
	work    *referenceframe.Configuration
	scratch statespace.State

	successes atomic.Uint64
	failures  atomic.Uint64
}

var _ statespace.Sampler = (*ConstrainedSampler)(nil)

// NewConstrainedSampler returns a sampler over space. cs may be nil, in which case every call goes to the
// default sampler and no statistics are kept. initial is the complete configuration variables outside the
// space are taken from.
func NewConstrainedSampler(
	space statespace.StateSpace,
	cs constraintsampler.ConstraintSampler,
	initial *referenceframe.Configuration,
	attempts int,
	seed int64,
	logger logging.Logger,
) *ConstrainedSampler {
	if cs != nil {
		logger.Debugf("constrained sampling with the %q strategy, %d attempts per draw", cs.Name(), attempts)
	}
	return &ConstrainedSampler{
		space:    space,
		fallback: space.NewDefaultSampler(seed),
		cs:       cs,
		logger:   logger,
		attempts: max(attempts, 1),
		initial:  initial.Copy(),
		ref:      initial.Copy(),
		work:     initial.Copy(),
		scratch:  space.NewState(),
	}
}

// Stats returns the success and failure counts of constrained draws.
func (s *ConstrainedSampler) Stats() Stats {
	return Stats{Successes: s.successes.Load(), Failures: s.failures.Load()}
}

// SampleUniform draws a constrained state, or a uniform one.
func (s *ConstrainedSampler) SampleUniform(out statespace.State) {
	s.ref.CopyFrom(s.initial)
	if !s.sampleConstrained(out) {
		s.fallback.SampleUniform(out)
	}
}

// SampleUniformNear draws a constrained state, pulled back toward near if it is further than distance.
func (s *ConstrainedSampler) SampleUniformNear(out, near statespace.State, distance float64) {
	s.seedFrom(near)
	if !s.sampleConstrained(out) {
		s.fallback.SampleUniformNear(out, near, distance)
		return
	}
	s.reproject(out, near, distance)
}

// SampleGaussian draws a constrained state, pulled back toward mean if it is further than stdDev.
func (s *ConstrainedSampler) SampleGaussian(out, mean statespace.State, stdDev float64) {
	s.seedFrom(mean)
	if !s.sampleConstrained(out) {
		s.fallback.SampleGaussian(out, mean, stdDev)
		return
	}
	s.reproject(out, mean, stdDev)
}

// seedFrom makes the reference configuration match state where possible, so that constraint samplers that
// start from the reference stay local.
func (s *ConstrainedSampler) seedFrom(state statespace.State) {
	s.ref.CopyFrom(s.initial)
	if s.cs == nil {
		return
	}
	if err := s.space.CopyToConfig(state, s.ref); err != nil {
		s.ref.CopyFrom(s.initial)
	}
}

func (s *ConstrainedSampler) sampleConstrained(out statespace.State) bool {
	if s.cs == nil {
		return false
	}
	if !s.cs.Sample(context.Background(), s.work, s.ref, s.attempts) {
		s.failures.Inc()
		return false
	}
	if err := s.space.CopyToState(s.work, s.scratch); err != nil || !s.space.SatisfiesBounds(s.scratch) {
		s.failures.Inc()
		return false
	}
	copy(out, s.scratch)
	s.successes.Inc()
	return true
}

// reproject moves out toward ref so that it lies within limit of it, interpolating by limit over the actual
// distance.
func (s *ConstrainedSampler) reproject(out, ref statespace.State, limit float64) {
	dist := s.space.Distance(ref, out)
	if dist <= limit || dist == 0 {
		return
	}
	copy(s.scratch, out)
	s.space.Interpolate(ref, s.scratch, limit/dist, out)
}
