package statespace

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/motionsampling/kinematics"
	"go.viam.com/motionsampling/referenceframe"
	spatial "go.viam.com/motionsampling/spatialmath"
)

// PoseSpaceName names the pose-space parameterization.
const PoseSpaceName = "pose"

const (
	poseComponents = 7
	// Orientation distance is weighted so that a radian counts as much as this many mm.
	defaultOrientationWeight = 100.
)

// PoseSpaceOptions configures a pose space.
type PoseSpaceOptions struct {
	// Redundant names group variables carried in the state directly rather than solved by IK.
	Redundant []string
	// Workspace bounds the end effector position. When nil, a cube of the model's reach around the origin is used.
	Workspace *r3.Vector
	// OrientationWeight scales orientation distance against position distance; zero uses the default.
	OrientationWeight float64
}

// PoseSpace parameterizes the group by its end effector pose (x, y, z, qw, qx, qy, qz) followed by the values of
// its redundant variables. The remaining group variables are recovered by IK.
type PoseSpace struct {
	model        referenceframe.Model
	group        string
	solver       *kinematics.Solver
	solveIdxs    []int
	redundantIdx []int
	limits       []referenceframe.Limit
	orientWeight float64
}

// NewPoseSpace builds a pose space over group, solving for its non-redundant variables with solver.
func NewPoseSpace(model referenceframe.Model, group string, solver *kinematics.Solver, opts PoseSpaceOptions) (*PoseSpace, error) {
	idxs, err := model.Group(group)
	if err != nil {
		return nil, err
	}
	redundant := map[int]bool{}
	redundantIdx := make([]int, 0, len(opts.Redundant))
	for _, name := range opts.Redundant {
		idx, ok := model.VariableIndex(name)
		if !ok {
			return nil, errors.Errorf("unknown redundant variable %q", name)
		}
		redundant[idx] = true
		redundantIdx = append(redundantIdx, idx)
	}
	solveIdxs := make([]int, 0, len(idxs))
	inGroup := map[int]bool{}
	for _, idx := range idxs {
		inGroup[idx] = true
		if !redundant[idx] {
			solveIdxs = append(solveIdxs, idx)
		}
	}
	for _, idx := range redundantIdx {
		if !inGroup[idx] {
			return nil, errors.Errorf("redundant variable %d is not in group %q", idx, group)
		}
	}
	if len(solveIdxs) == 0 {
		return nil, errors.New("pose space needs at least one variable to solve for")
	}

	half := opts.Workspace
	if half == nil {
		reach, err := modelReach(model)
		if err != nil {
			return nil, err
		}
		half = &r3.Vector{X: reach, Y: reach, Z: reach}
	}
	limits := []referenceframe.Limit{
		{Min: -half.X, Max: half.X}, {Min: -half.Y, Max: half.Y}, {Min: -half.Z, Max: half.Z},
		{Min: -1, Max: 1}, {Min: -1, Max: 1}, {Min: -1, Max: 1}, {Min: -1, Max: 1},
	}
	all := model.DoF()
	for _, idx := range redundantIdx {
		limits = append(limits, all[idx])
	}
	weight := opts.OrientationWeight
	if weight <= 0 {
		weight = defaultOrientationWeight
	}
	return &PoseSpace{
		model:        model,
		group:        group,
		solver:       solver,
		solveIdxs:    solveIdxs,
		redundantIdx: redundantIdx,
		limits:       limits,
		orientWeight: weight,
	}, nil
}

// modelReach bounds how far any frame can get from the world origin: the sum of the distances between
// consecutive frame origins, which no joint motion changes for a serial chain, plus the largest link radius.
func modelReach(model referenceframe.Model) (float64, error) {
	zero := make([]referenceframe.Input, len(model.DoF()))
	poses, err := model.LinkPoses(zero)
	if poses == nil {
		return 0, err
	}
	reach := 0.
	prev := r3.Vector{}
	for _, name := range model.FrameNames() {
		p := poses[name].Point()
		reach += p.Sub(prev).Norm()
		prev = p
	}
	geoms, _ := model.Geometries(zero)
	maxRadius := 0.
	for _, g := range geoms {
		maxRadius = math.Max(maxRadius, g.Radius)
	}
	return reach + maxRadius, nil
}

// Name returns PoseSpaceName.
func (ps *PoseSpace) Name() string {
	return PoseSpaceName
}

// Group returns the planning group.
func (ps *PoseSpace) Group() string {
	return ps.group
}

// Model returns the robot model.
func (ps *PoseSpace) Model() referenceframe.Model {
	return ps.model
}

// Dimension returns 7 plus the number of redundant variables.
func (ps *PoseSpace) Dimension() int {
	return len(ps.limits)
}

// Bounds returns the workspace, quaternion component and redundant variable bounds.
func (ps *PoseSpace) Bounds() []referenceframe.Limit {
	return append([]referenceframe.Limit(nil), ps.limits...)
}

// NewState allocates a state holding the identity orientation at the origin.
func (ps *PoseSpace) NewState() State {
	s := make(State, len(ps.limits))
	s[3] = 1
	return s
}

// Pose returns the end effector pose held by s.
func (ps *PoseSpace) Pose(s State) spatial.Pose {
	o := spatial.Quaternion(getQuat(s))
	return spatial.NewPose(r3.Vector{X: s[0], Y: s[1], Z: s[2]}, &o)
}

// CopyToState runs forward kinematics on cfg and writes the end effector pose and redundant values into out.
func (ps *PoseSpace) CopyToState(cfg *referenceframe.Configuration, out State) error {
	if err := checkSize(ps, out); err != nil {
		return err
	}
	pose, err := cfg.EndEffectorPose()
	if pose == nil {
		return err
	}
	p := pose.Point()
	out[0], out[1], out[2] = p.X, p.Y, p.Z
	setQuat(out, pose.Orientation().Quaternion())
	for i, idx := range ps.redundantIdx {
		out[poseComponents+i] = cfg.Value(idx)
	}
	return nil
}

// CopyToConfig writes the redundant values into cfg and solves IK for the rest of the group, seeded from cfg's
// current values. If IK fails cfg is left unchanged and kinematics.ErrIKFailed is returned; callers treat the
// state as invalid.
func (ps *PoseSpace) CopyToConfig(state State, cfg *referenceframe.Configuration) error {
	if err := checkSize(ps, state); err != nil {
		return err
	}
	orig := cfg.GroupValues(ps.redundantIdx)
	cfg.SetGroupValues(ps.redundantIdx, state[poseComponents:])
	goal := kinematics.Goal{Pose: ps.Pose(state), Type: kinematics.FullPose}
	if err := ps.solver.Solve(context.Background(), cfg, ps.solveIdxs, goal); err != nil {
		cfg.SetGroupValues(ps.redundantIdx, orig)
		return err
	}
	return nil
}

// Distance adds the position distance, the weighted rotation angle and the redundant variables' distance.
func (ps *PoseSpace) Distance(a, b State) float64 {
	dp := r3.Vector{X: a[0] - b[0], Y: a[1] - b[1], Z: a[2] - b[2]}.Norm()
	d := dp
	if qa, qb := spatial.Quaternion(getQuat(a)), spatial.Quaternion(getQuat(b)); qa != qb {
		d += ps.orientWeight * spatial.OrientationDistance(&qa, &qb)
	}
	if len(a) > poseComponents {
		d += floats.Distance(a[poseComponents:], b[poseComponents:], 2)
	}
	return d
}

// Interpolate blends the end effector poses, slerping the orientation, and the redundant values linearly. t is
// clamped to [0, 1] and the endpoints are reproduced exactly.
func (ps *PoseSpace) Interpolate(a, b State, t float64, out State) {
	switch {
	case t <= 0:
		copy(out, a)
		return
	case t >= 1:
		copy(out, b)
		return
	}
	pose := spatial.Interpolate(ps.Pose(a), ps.Pose(b), t)
	p := pose.Point()
	out[0], out[1], out[2] = p.X, p.Y, p.Z
	setQuat(out, pose.Orientation().Quaternion())
	for i := poseComponents; i < len(out); i++ {
		out[i] = lerp(a[i], b[i], t)
	}
}

// SatisfiesBounds checks every component against its bound and that the orientation is a unit quaternion.
func (ps *PoseSpace) SatisfiesBounds(s State) bool {
	if !withinLimits(s, ps.limits) {
		return false
	}
	return math.Abs(quat.Abs(getQuat(s))-1) < 1e-6
}

// NewDefaultSampler returns a sampler drawing positions in the workspace and orientations over SO(3).
func (ps *PoseSpace) NewDefaultSampler(seed int64) Sampler {
	return newPoseSampler(ps, seed)
}

func getQuat(s State) quat.Number {
	return quat.Number{Real: s[3], Imag: s[4], Jmag: s[5], Kmag: s[6]}
}

func setQuat(s State, q quat.Number) {
	s[3], s[4], s[5], s[6] = q.Real, q.Imag, q.Jmag, q.Kmag
}
