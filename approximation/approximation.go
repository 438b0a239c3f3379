// Package approximation caches collections of constraint-satisfying states keyed by constraint descriptor,
// so that expensive constrained sampling can be reused across planning requests and processes.
package approximation

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/motionsampling/constraints"
)

// FileExtension is appended to the generated backing file name of every approximation.
const FileExtension = ".states"

// ConstraintApproximation is an append-only collection of group states that satisfy the constraints of its
// descriptor, together with the name of the file that backs it on disk.
type ConstraintApproximation struct {
	descriptor constraints.Descriptor
	decoded    *constraints.Decoded
	filename   string
	dim        int

	mu     sync.RWMutex
	states [][]float64
}

// NewConstraintApproximation returns an empty approximation for d, holding states of dim values each.
func NewConstraintApproximation(d constraints.Descriptor, dim int) (*ConstraintApproximation, error) {
	return newWithFilename(d, dim, uuid.NewString()+FileExtension)
}

func newWithFilename(d constraints.Descriptor, dim int, filename string) (*ConstraintApproximation, error) {
	decoded, err := d.Decode()
	if err != nil {
		return nil, err
	}
	if dim < 1 {
		return nil, errors.Errorf("approximation states need at least one value, got %d", dim)
	}
	return &ConstraintApproximation{
		descriptor: append(constraints.Descriptor(nil), d...),
		decoded:    decoded,
		filename:   filename,
		dim:        dim,
	}, nil
}

// Descriptor returns the descriptor the approximation was built for.
func (ca *ConstraintApproximation) Descriptor() constraints.Descriptor {
	return ca.descriptor
}

// Group returns the planning group of the stored states.
func (ca *ConstraintApproximation) Group() string {
	return ca.decoded.Group
}

// Strategy returns the tag of the sampling strategy that produced the states.
func (ca *ConstraintApproximation) Strategy() string {
	return ca.decoded.Strategy
}

// Constraints returns the constraints every stored state satisfies.
func (ca *ConstraintApproximation) Constraints() *constraints.ConstraintSet {
	return ca.decoded.Constraints
}

// Filename returns the base name of the backing file.
func (ca *ConstraintApproximation) Filename() string {
	return ca.filename
}

// Dim returns the number of values in each state.
func (ca *ConstraintApproximation) Dim() int {
	return ca.dim
}

// Append adds a copy of state.
func (ca *ConstraintApproximation) Append(state []float64) error {
	if len(state) != ca.dim {
		return errors.Errorf("state has %d values, approximation holds %d", len(state), ca.dim)
	}
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.states = append(ca.states, append([]float64(nil), state...))
	return nil
}

// Len returns the number of stored states.
func (ca *ConstraintApproximation) Len() int {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return len(ca.states)
}

// State returns the i-th stored state. The returned slice must not be modified.
func (ca *ConstraintApproximation) State(i int) []float64 {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.states[i]
}

// States returns a snapshot of every stored state.
func (ca *ConstraintApproximation) States() [][]float64 {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return append([][]float64(nil), ca.states...)
}
