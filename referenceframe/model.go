package referenceframe

import (
	"sync"

	"go.uber.org/multierr"

	spatial "go.viam.com/motionsampling/spatialmath"
)

// LinkGeometry is a sphere rigidly attached to a named link, placed in world coordinates.
type LinkGeometry struct {
	Name   string
	Pose   spatial.Pose
	Radius float64
}

// Model is the articulated robot model consumed by the planning components. It provides bounds,
// variable counts, forward kinematics, and a variable name to index mapping.
type Model interface {
	Frame

	// VariableNames returns the names of every variable in model order.
	VariableNames() []string
	// VariableIndex returns the position of the named variable, or false if the model has no such variable.
	VariableIndex(name string) (int, bool)
	// Group returns the indices of the variables belonging to the named planning group.
	Group(name string) ([]int, error)
	// FrameNames returns the names of the frames of the chain, base first.
	FrameNames() []string
	// LinkPoses returns the world pose of every frame in the chain, keyed by frame name.
	LinkPoses(inputs []Input) (map[string]spatial.Pose, error)
	// Geometries returns the collision spheres of the model at the given inputs.
	Geometries(inputs []Input) ([]LinkGeometry, error)
}

// SimpleModel is a serial chain of frames ordered from base to end effector.
// Generally speaking, a Joint will attach a Body to a Frame
// And a Fixed will attach a Frame to a Body
// Exceptions are the head of the tree where we are just starting the robot from World.
type SimpleModel struct {
	name string
	// OrdTransforms is the list of transforms ordered from base to end effector
	OrdTransforms []Frame

	radii  map[string]float64
	groups map[string][]string

	mu        sync.RWMutex
	limits    []Limit
	varNames  []string
	varIndex  map[string]int
	varFrames []int
}

// NewSimpleModel constructs a new model.
func NewSimpleModel(name string) *SimpleModel {
	return &SimpleModel{
		name:   name,
		radii:  map[string]float64{},
		groups: map[string][]string{},
	}
}

// SetOrdTransforms sets the ordered chain and rebuilds the variable index.
func (m *SimpleModel) SetOrdTransforms(fs []Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrdTransforms = fs
	m.limits = nil
	m.varNames = nil
	m.varFrames = nil
	m.varIndex = map[string]int{}
	for fIdx, f := range fs {
		for range f.DoF() {
			m.varIndex[f.Name()] = len(m.varNames)
			m.varNames = append(m.varNames, f.Name())
			m.varFrames = append(m.varFrames, fIdx)
		}
		m.limits = append(m.limits, f.DoF()...)
	}
}

// SetLinkRadius attaches a collision sphere of the given radius to the named frame.
func (m *SimpleModel) SetLinkRadius(frameName string, radius float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.radii[frameName] = radius
}

// AddGroup defines a named planning group over the given variables.
func (m *SimpleModel) AddGroup(name string, variables []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range variables {
		if _, ok := m.varIndex[v]; !ok {
			return NewFrameMissingError(v)
		}
	}
	m.groups[name] = append([]string(nil), variables...)
	return nil
}

// Name returns the name of this model.
func (m *SimpleModel) Name() string {
	return m.name
}

// DoF returns the limits of every variable in model order.
func (m *SimpleModel) DoF() []Limit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// VariableNames returns the variable names in model order.
func (m *SimpleModel) VariableNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.varNames...)
}

// VariableIndex returns the index of the named variable.
func (m *SimpleModel) VariableIndex(name string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.varIndex[name]
	return idx, ok
}

// Group returns the variable indices of a planning group. The model's own name always names the group
// of every variable.
func (m *SimpleModel) Group(name string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == m.name || name == "" {
		all := make([]int, len(m.varNames))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	vars, ok := m.groups[name]
	if !ok {
		return nil, NewGroupMissingError(name)
	}
	idxs := make([]int, 0, len(vars))
	for _, v := range vars {
		idxs = append(idxs, m.varIndex[v])
	}
	return idxs, nil
}

// FrameNames returns the chain's frame names from base to end effector.
func (m *SimpleModel) FrameNames() []string {
	names := make([]string, 0, len(m.OrdTransforms))
	for _, f := range m.OrdTransforms {
		names = append(names, f.Name())
	}
	return names
}

// Transform takes a model and a list of joint angles in radians and computes the pose of the end effector.
func (m *SimpleModel) Transform(inputs []Input) (spatial.Pose, error) {
	poses, err := m.chainPoses(inputs)
	if poses == nil {
		return nil, err
	}
	return poses[len(poses)-1], err
}

// LinkPoses returns the world pose of each frame in the chain.
func (m *SimpleModel) LinkPoses(inputs []Input) (map[string]spatial.Pose, error) {
	poses, err := m.chainPoses(inputs)
	if poses == nil {
		return nil, err
	}
	out := make(map[string]spatial.Pose, len(poses))
	for i, f := range m.OrdTransforms {
		out[f.Name()] = poses[i]
	}
	return out, err
}

// Geometries returns a sphere for every frame that has a radius attached.
func (m *SimpleModel) Geometries(inputs []Input) ([]LinkGeometry, error) {
	poses, err := m.chainPoses(inputs)
	if poses == nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	geoms := make([]LinkGeometry, 0, len(m.radii))
	for i, f := range m.OrdTransforms {
		if r, ok := m.radii[f.Name()]; ok {
			geoms = append(geoms, LinkGeometry{Name: f.Name(), Pose: poses[i], Radius: r})
		}
	}
	return geoms, err
}

// chainPoses composes the chain from the base outwards. Out-of-bounds inputs still produce poses, with an error.
func (m *SimpleModel) chainPoses(inputs []Input) ([]spatial.Pose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(inputs) != len(m.limits) {
		return nil, NewIncorrectDoFError(len(inputs), len(m.limits))
	}
	if len(m.OrdTransforms) == 0 {
		return nil, ErrNoModelInformation
	}
	var errAll error
	poses := make([]spatial.Pose, 0, len(m.OrdTransforms))
	composed := spatial.NewZeroPose()
	posIdx := 0
	for _, transform := range m.OrdTransforms {
		dof := len(transform.DoF()) + posIdx
		pose, err := transform.Transform(inputs[posIdx:dof])
		posIdx = dof
		// Fail if inputs are incorrect and pose is nil, but allow querying out-of-bounds positions
		if pose == nil {
			return nil, err
		}
		multierr.AppendInto(&errAll, err)
		composed = spatial.Compose(composed, pose)
		poses = append(poses, composed)
	}
	return poses, errAll
}
