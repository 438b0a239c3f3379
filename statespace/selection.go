package statespace

import (
	"github.com/pkg/errors"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/kinematics"
	"go.viam.com/motionsampling/referenceframe"
)

var (
	// ErrNoViableParameterization is returned when no factory can represent the request.
	ErrNoViableParameterization = errors.New("no state space parameterization can represent this planning request")
	// ErrParameterizationTie is returned when the best score is shared by more than one factory.
	ErrParameterizationTie = errors.New("more than one state space parameterization scores best for this request")
)

// Request is what a factory scores: the group to plan for, its path constraints and whether IK is available.
type Request struct {
	Model           referenceframe.Model
	Group           string
	PathConstraints *constraints.ConstraintSet
	// Solver is nil when no IK route exists for the group.
	Solver *kinematics.Solver
	Pose   PoseSpaceOptions
}

// Factory builds one parameterization. Score is positive when the factory can represent the request; the
// higher the better.
type Factory interface {
	Name() string
	Score(req Request) int
	New(req Request) (StateSpace, error)
}

// JointSpaceFactory builds JointSpace for any group the model has.
type JointSpaceFactory struct{}

// Name returns JointSpaceName.
func (JointSpaceFactory) Name() string {
	return JointSpaceName
}

// Score is 100 for any existing group.
func (JointSpaceFactory) Score(req Request) int {
	if _, err := req.Model.Group(req.Group); err != nil {
		return -1
	}
	return 100
}

// New builds the joint space.
func (JointSpaceFactory) New(req Request) (StateSpace, error) {
	return NewJointSpace(req.Model, req.Group)
}

// PoseSpaceFactory builds PoseSpace when IK is available.
type PoseSpaceFactory struct{}

// Name returns PoseSpaceName.
func (PoseSpaceFactory) Name() string {
	return PoseSpaceName
}

// Score is 200 when IK is available and every path constraint is a position or orientation constraint.
// Without such path constraints pose space is viable but scores below joint space.
func (PoseSpaceFactory) Score(req Request) int {
	if req.Solver == nil {
		return -1
	}
	if _, err := req.Model.Group(req.Group); err != nil {
		return -1
	}
	if req.PathConstraints.PositionOnly() {
		return 200
	}
	return 50
}

// New builds the pose space.
func (PoseSpaceFactory) New(req Request) (StateSpace, error) {
	return NewPoseSpace(req.Model, req.Group, req.Solver, req.Pose)
}

// DefaultFactories returns the joint and pose factories.
func DefaultFactories() []Factory {
	return []Factory{JointSpaceFactory{}, PoseSpaceFactory{}}
}

// Select returns the best scoring factory for req. A tie for the best score and the absence of any positive
// score both fail.
func Select(factories []Factory, req Request) (Factory, error) {
	var best Factory
	bestScore := 0
	tie := false
	for _, f := range factories {
		score := f.Score(req)
		switch {
		case score <= 0:
			continue
		case score > bestScore:
			best, bestScore, tie = f, score, false
		case score == bestScore:
			tie = true
		}
	}
	if best == nil {
		return nil, ErrNoViableParameterization
	}
	if tie {
		return nil, errors.Wrapf(ErrParameterizationTie, "score %d", bestScore)
	}
	return best, nil
}

// NewStateSpace selects a factory and builds its space.
func NewStateSpace(factories []Factory, req Request) (StateSpace, error) {
	f, err := Select(factories, req)
	if err != nil {
		return nil, err
	}
	return f.New(req)
}
