package approximation

import (
	"context"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/constraintsampler"
	"go.viam.com/motionsampling/referenceframe"
)

// BuildOptions bound how much work populating one approximation may do.
type BuildOptions struct {
	// Samples is the number of states to collect.
	Samples int
	// Attempts bounds the total number of sampler calls.
	Attempts int
	// AttemptsPerSample is the budget passed to each sampler call.
	AttemptsPerSample int
}

// SamplerBuilder returns a Builder that fills an approximation for d with states drawn by sampler starting
// from reference and accepted by check. When ctx is done before the budget is spent the builder returns ctx's
// error, and a build that accepts no state at all fails.
func SamplerBuilder(
	d constraints.Descriptor,
	sampler constraintsampler.ConstraintSampler,
	check *constraints.KinematicConstraintSet,
	reference *referenceframe.Configuration,
	opts BuildOptions,
) Builder {
	return func(ctx context.Context) (*ConstraintApproximation, error) {
		_, span := trace.StartSpan(ctx, "approximation::SamplerBuilder")
		defer span.End()

		idxs, err := reference.Model().Group(sampler.Group())
		if err != nil {
			return nil, err
		}
		ca, err := NewConstraintApproximation(d, len(idxs))
		if err != nil {
			return nil, err
		}
		perSample := max(opts.AttemptsPerSample, 1)
		out := reference.Copy()
		for i := 0; i < opts.Attempts && ca.Len() < opts.Samples; i++ {
			if ctx.Err() != nil {
				break
			}
			if !sampler.Sample(ctx, out, reference, perSample) {
				continue
			}
			if !out.SatisfiesBounds() || !check.Decide(out, false).Satisfied {
				continue
			}
			if err := ca.Append(out.GroupValues(idxs)); err != nil {
				return nil, err
			}
		}
		span.AddAttributes(trace.Int64Attribute("states", int64(ca.Len())))
		if ca.Len() < opts.Samples {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if ca.Len() == 0 {
			return nil, errors.Errorf("no state satisfying %s was found in %d attempts", d.Key(), opts.Attempts)
		}
		return ca, nil
	}
}
