package referenceframe

import (
	"math"
	"math/rand"
)

// Limit represents the limits of motion for a referenceframe.
type Limit struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Range returns the width of the limit, substituting [-999, 999] for infinite bounds.
func (l Limit) Range() float64 {
	lo, hi := l.Finite()
	return hi - lo
}

// Contains reports whether v lies inside the limit, inclusive.
func (l Limit) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

// Sample draws a value uniformly from the limit.
func (l Limit) Sample(rSeed *rand.Rand) float64 {
	lo, hi := l.Finite()
	return lo + rSeed.Float64()*(hi-lo)
}

// Finite returns the limit with infinite bounds replaced by -999 and 999.
func (l Limit) Finite() (float64, float64) {
	lo, hi := l.Min, l.Max
	// Default to [-999,999] as range if limits are infinite
	if math.IsInf(lo, -1) {
		lo = -999
	}
	if math.IsInf(hi, 1) {
		hi = 999
	}
	return lo, hi
}

// RandomFrameInputs will produce a list of valid, in-bounds inputs for the frame.
func RandomFrameInputs(m Frame, rSeed *rand.Rand) []Input {
	if rSeed == nil {
		//nolint:gosec
		rSeed = rand.New(rand.NewSource(1))
	}
	dof := m.DoF()
	pos := make([]Input, 0, len(dof))
	for _, lim := range dof {
		pos = append(pos, Input{lim.Sample(rSeed)})
	}
	return pos
}

// InputsWithinLimits reports whether every input lies inside the matching limit.
func InputsWithinLimits(inputs []Input, limits []Limit) bool {
	if len(inputs) != len(limits) {
		return false
	}
	for i, lim := range limits {
		if !lim.Contains(inputs[i].Value) {
			return false
		}
	}
	return true
}
