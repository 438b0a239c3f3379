package statespace

import (
	"gonum.org/v1/gonum/floats"

	"go.viam.com/motionsampling/referenceframe"
)

// JointSpaceName names the joint-space parameterization.
const JointSpaceName = "joint"

// JointSpace has one component per variable of the planning group, in group order.
type JointSpace struct {
	model  referenceframe.Model
	group  string
	idxs   []int
	limits []referenceframe.Limit
}

// NewJointSpace builds a joint space over group. The variable name to index mapping is resolved once here.
func NewJointSpace(model referenceframe.Model, group string) (*JointSpace, error) {
	idxs, err := model.Group(group)
	if err != nil {
		return nil, err
	}
	all := model.DoF()
	limits := make([]referenceframe.Limit, len(idxs))
	for i, idx := range idxs {
		limits[i] = all[idx]
	}
	return &JointSpace{model: model, group: group, idxs: idxs, limits: limits}, nil
}

// Name returns JointSpaceName.
func (js *JointSpace) Name() string {
	return JointSpaceName
}

// Group returns the planning group.
func (js *JointSpace) Group() string {
	return js.group
}

// Model returns the robot model.
func (js *JointSpace) Model() referenceframe.Model {
	return js.model
}

// Dimension returns the number of group variables.
func (js *JointSpace) Dimension() int {
	return len(js.idxs)
}

// Bounds returns the group variables' limits.
func (js *JointSpace) Bounds() []referenceframe.Limit {
	return append([]referenceframe.Limit(nil), js.limits...)
}

// Indices returns the model indices of the group variables, in state order.
func (js *JointSpace) Indices() []int {
	return append([]int(nil), js.idxs...)
}

// NewState allocates a zero state.
func (js *JointSpace) NewState() State {
	return make(State, len(js.idxs))
}

// CopyToState copies the group variables of cfg into out.
func (js *JointSpace) CopyToState(cfg *referenceframe.Configuration, out State) error {
	if err := checkSize(js, out); err != nil {
		return err
	}
	for i, idx := range js.idxs {
		out[i] = cfg.Value(idx)
	}
	return nil
}

// CopyToConfig copies state into the group variables of cfg. It never fails for a correctly sized state.
func (js *JointSpace) CopyToConfig(state State, cfg *referenceframe.Configuration) error {
	if err := checkSize(js, state); err != nil {
		return err
	}
	cfg.SetGroupValues(js.idxs, state)
	return nil
}

// Distance is the euclidean distance between the states.
func (js *JointSpace) Distance(a, b State) float64 {
	return floats.Distance(a, b, 2)
}

// Interpolate blends every component linearly.
func (js *JointSpace) Interpolate(a, b State, t float64, out State) {
	for i := range out {
		out[i] = lerp(a[i], b[i], t)
	}
}

// SatisfiesBounds reports whether every component is inside its variable's limit.
func (js *JointSpace) SatisfiesBounds(s State) bool {
	return withinLimits(s, js.limits)
}

// NewDefaultSampler returns a box sampler over the joint limits.
func (js *JointSpace) NewDefaultSampler(seed int64) Sampler {
	return newBoxSampler(js.limits, seed)
}
