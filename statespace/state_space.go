// Package statespace maps robot configurations to and from the flat state vectors a sampling-based
// planner works with.
package statespace

import (
	"github.com/pkg/errors"

	"go.viam.com/motionsampling/referenceframe"
)

// State is a planner state: a fixed-size vector whose component order is fixed by the space that made it.
type State []float64

// Copy returns an independent copy of s.
func (s State) Copy() State {
	return append(State(nil), s...)
}

// StateSpace converts between configurations and states and provides the metric a planner uses.
type StateSpace interface {
	// Name is the parameterization name.
	Name() string
	// Group is the planning group the space covers.
	Group() string
	// Model is the robot model the space was built for.
	Model() referenceframe.Model
	// Dimension is the number of components of every state.
	Dimension() int
	// Bounds returns the declared bound of every component.
	Bounds() []referenceframe.Limit
	// NewState allocates a zero state.
	NewState() State

	// CopyToState writes the state representing cfg into out.
	CopyToState(cfg *referenceframe.Configuration, out State) error
	// CopyToConfig writes state into cfg. Variables the space does not cover are left as they are.
	CopyToConfig(state State, cfg *referenceframe.Configuration) error

	// Distance is a metric: zero between equal states and symmetric.
	Distance(a, b State) float64
	// Interpolate writes the state at fraction t along the way from a to b into out. t of 0 and 1 give a and b.
	Interpolate(a, b State, t float64, out State)
	// SatisfiesBounds reports whether every component lies inside its bound. States are never clamped.
	SatisfiesBounds(s State) bool

	// NewDefaultSampler returns an unconstrained sampler over the space.
	NewDefaultSampler(seed int64) Sampler
}

// Sampler is the unconstrained sampler of a space. Samplers are not safe for concurrent use.
type Sampler interface {
	// SampleUniform draws a state uniformly within bounds.
	SampleUniform(out State)
	// SampleUniformNear draws a state within distance of near, per component, within bounds.
	SampleUniformNear(out, near State, distance float64)
	// SampleGaussian draws a state around mean with the given per-component standard deviation, within bounds.
	SampleGaussian(out, mean State, stdDev float64)
}

// ErrStateSize is returned when a state does not have the space's dimension.
var ErrStateSize = errors.New("state has the wrong number of components")

func checkSize(space StateSpace, s State) error {
	if len(s) != space.Dimension() {
		return errors.Wrapf(ErrStateSize, "got %d components, want %d", len(s), space.Dimension())
	}
	return nil
}

func withinLimits(values []float64, limits []referenceframe.Limit) bool {
	if len(values) != len(limits) {
		return false
	}
	for i, l := range limits {
		// NaN fails both comparisons.
		if !(values[i] >= l.Min && values[i] <= l.Max) {
			return false
		}
	}
	return true
}

func lerp(a, b, t float64) float64 {
	return (1-t)*a + t*b
}
