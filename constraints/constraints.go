// Package constraints defines kinematic constraints on robot configurations, the set that decides
// them together, and the canonical descriptor used to key cached sampling structures.
package constraints

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/motionsampling/referenceframe"
	spatial "go.viam.com/motionsampling/spatialmath"
)

// RegionShape names the shape of a position constraint's region.
type RegionShape string

// Slack allowed when deciding position and orientation constraints, in mm and radians. It covers the
// convergence tolerance of the IK solver so that sampled poses decide as satisfied.
const (
	PositionSlack    = 2e-3
	OrientationSlack = 2e-4
)

// Region shapes.
const (
	RegionBox    RegionShape = "box"
	RegionSphere RegionShape = "sphere"
)

// JointConstraint bounds a single variable to [Position-ToleranceBelow, Position+ToleranceAbove].
type JointConstraint struct {
	Joint          string  `json:"joint"`
	Position       float64 `json:"position"`
	ToleranceAbove float64 `json:"tolerance_above"`
	ToleranceBelow float64 `json:"tolerance_below"`
	Weight         float64 `json:"weight"`
}

// PositionConstraint requires a point fixed to a link to lie inside a world-frame region.
type PositionConstraint struct {
	Link string `json:"link"`
	// TargetOffset is the constrained point, expressed in the link frame.
	TargetOffset r3.Vector   `json:"target_offset"`
	Shape        RegionShape `json:"shape"`
	Center       r3.Vector   `json:"center"`
	// Dims holds the full box side lengths; only used by box regions.
	Dims r3.Vector `json:"dims"`
	// Radius is only used by sphere regions.
	Radius float64 `json:"radius"`
	Weight float64 `json:"weight"`
}

// OrientationConstraint requires a link's orientation to stay within per-axis tolerances of Target.
// Errors are measured as the rotation vector taking Target to the link orientation, in the target frame.
type OrientationConstraint struct {
	Link    string      `json:"link"`
	Target  quat.Number `json:"target"`
	AbsXTol float64     `json:"abs_x_tol"`
	AbsYTol float64     `json:"abs_y_tol"`
	AbsZTol float64     `json:"abs_z_tol"`
	Weight  float64     `json:"weight"`
}

// VisibilityConstraint requires Target to lie inside the viewing cone along the +Z axis of SensorLink.
type VisibilityConstraint struct {
	SensorLink    string    `json:"sensor_link"`
	Target        r3.Vector `json:"target"`
	ConeHalfAngle float64   `json:"cone_half_angle"`
	// MaxRange of zero means unlimited.
	MaxRange float64 `json:"max_range"`
	Weight   float64 `json:"weight"`
}

// ConstraintSet is a plain collection of constraints, as supplied with a planning request.
type ConstraintSet struct {
	Name        string                  `json:"name,omitempty"`
	Joint       []JointConstraint       `json:"joint_constraints,omitempty"`
	Position    []PositionConstraint    `json:"position_constraints,omitempty"`
	Orientation []OrientationConstraint `json:"orientation_constraints,omitempty"`
	Visibility  []VisibilityConstraint  `json:"visibility_constraints,omitempty"`
}

// Empty reports whether the set holds no constraints.
func (cs *ConstraintSet) Empty() bool {
	return cs == nil || len(cs.Joint)+len(cs.Position)+len(cs.Orientation)+len(cs.Visibility) == 0
}

// Merge returns a new set holding the constraints of both sets.
func (cs *ConstraintSet) Merge(other *ConstraintSet) *ConstraintSet {
	out := &ConstraintSet{}
	for _, s := range []*ConstraintSet{cs, other} {
		if s == nil {
			continue
		}
		if out.Name == "" {
			out.Name = s.Name
		}
		out.Joint = append(out.Joint, s.Joint...)
		out.Position = append(out.Position, s.Position...)
		out.Orientation = append(out.Orientation, s.Orientation...)
		out.Visibility = append(out.Visibility, s.Visibility...)
	}
	return out
}

// PositionOnly reports whether the set constrains only link positions and orientations, with at least one of them.
func (cs *ConstraintSet) PositionOnly() bool {
	if cs.Empty() {
		return false
	}
	return len(cs.Joint) == 0 && len(cs.Visibility) == 0
}

// Result is the outcome of deciding one or more constraints against a configuration.
type Result struct {
	Satisfied bool
	// Distance is the weighted deviation from the constraint targets; zero when exactly on target.
	Distance float64
}

func weightOf(w float64) float64 {
	if w <= 0 {
		return 1
	}
	return w
}

func (jc *JointConstraint) decide(value float64) Result {
	dif := value - jc.Position
	ok := dif <= jc.ToleranceAbove+1e-9 && -dif <= jc.ToleranceBelow+1e-9
	return Result{Satisfied: ok, Distance: weightOf(jc.Weight) * math.Abs(dif)}
}

// Contains reports whether p lies inside the region.
func (pc *PositionConstraint) Contains(p r3.Vector) bool {
	d := p.Sub(pc.Center)
	switch pc.Shape {
	case RegionSphere:
		return d.Norm() <= pc.Radius+PositionSlack
	default:
		half := pc.Dims.Mul(0.5)
		return math.Abs(d.X) <= half.X+PositionSlack && math.Abs(d.Y) <= half.Y+PositionSlack &&
			math.Abs(d.Z) <= half.Z+PositionSlack
	}
}

// TargetPoint returns the world position of the constrained point for the given link pose.
func (pc *PositionConstraint) TargetPoint(link spatial.Pose) r3.Vector {
	return link.Point().Add(spatial.RotatePoint(link.Orientation().Quaternion(), pc.TargetOffset))
}

func (pc *PositionConstraint) decide(link spatial.Pose) Result {
	p := pc.TargetPoint(link)
	return Result{Satisfied: pc.Contains(p), Distance: weightOf(pc.Weight) * p.Sub(pc.Center).Norm()}
}

// AxisErrors returns the per-axis rotation error of o relative to the target.
func (oc *OrientationConstraint) AxisErrors(o spatial.Orientation) r3.Vector {
	target := spatial.Normalize(oc.Target)
	rel := quat.Mul(quat.Conj(target), o.Quaternion())
	return spatial.QuatToR3AA(rel)
}

func (oc *OrientationConstraint) decide(link spatial.Pose) Result {
	e := oc.AxisErrors(link.Orientation())
	ok := math.Abs(e.X) <= oc.AbsXTol+OrientationSlack && math.Abs(e.Y) <= oc.AbsYTol+OrientationSlack &&
		math.Abs(e.Z) <= oc.AbsZTol+OrientationSlack
	return Result{Satisfied: ok, Distance: weightOf(oc.Weight) * (math.Abs(e.X) + math.Abs(e.Y) + math.Abs(e.Z))}
}

func (vc *VisibilityConstraint) decide(sensor spatial.Pose) Result {
	toTarget := vc.Target.Sub(sensor.Point())
	dist := toTarget.Norm()
	if dist == 0 {
		return Result{Satisfied: true}
	}
	forward := spatial.RotatePoint(sensor.Orientation().Quaternion(), r3.Vector{Z: 1})
	angle := math.Acos(math.Max(-1, math.Min(1, forward.Dot(toTarget)/dist)))
	ok := angle <= vc.ConeHalfAngle+1e-9
	if vc.MaxRange > 0 && dist > vc.MaxRange {
		ok = false
	}
	return Result{Satisfied: ok, Distance: weightOf(vc.Weight) * angle}
}

// linkPose is a small helper that tolerates out-of-bounds configurations, which still have a defined pose.
func linkPose(poses map[string]spatial.Pose, name string) (spatial.Pose, error) {
	p, ok := poses[name]
	if !ok {
		return nil, referenceframe.NewFrameMissingError(name)
	}
	return p, nil
}
