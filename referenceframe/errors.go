package referenceframe

import (
	"github.com/pkg/errors"
)

// OOBErrString is a string that all OOB errors should contain, so that they can be checked for distinct from other Transform errors.
const OOBErrString = "input out of bounds"

var (
	// ErrNeedOneEndEffector is returned when a model does not form a single serial chain.
	ErrNeedOneEndEffector = errors.New("need exactly one end effector")
	// ErrCircularReference is returned when a model's parent links form a cycle.
	ErrCircularReference = errors.New("infinite loop finding path from end effector to world")
	// ErrNoModelInformation is used when there is no model information.
	ErrNoModelInformation = errors.New("no model information")
)

// NewIncorrectDoFError returns an error indicating that the length of an input slice does not match the DoF of a frame.
func NewIncorrectDoFError(actual, expected int) error {
	return errors.Errorf("number of inputs does not match frame DoF, expected %d but got %d", expected, actual)
}

// NewFrameMissingError returns an error indicating that the given frame is missing from the model.
func NewFrameMissingError(frameName string) error {
	return errors.Errorf("frame with name %q not in model", frameName)
}

// NewGroupMissingError returns an error indicating that the named planning group does not exist.
func NewGroupMissingError(group string) error {
	return errors.Errorf("planning group %q not defined", group)
}
