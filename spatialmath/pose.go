package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose represents a 6dof pose: a translation and an orientation.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type basicPose struct {
	point r3.Vector
	q     quat.Number
}

// NewPose takes in a position and orientation and returns a Pose.
func NewPose(p r3.Vector, o Orientation) Pose {
	if o == nil {
		return &basicPose{point: p, q: quat.Number{Real: 1}}
	}
	return &basicPose{point: p, q: Normalize(o.Quaternion())}
}

// NewZeroPose returns a pose at (0,0,0) with the identity orientation.
func NewZeroPose() Pose {
	return &basicPose{q: quat.Number{Real: 1}}
}

// NewPoseFromPoint returns a pose at p with the identity orientation.
func NewPoseFromPoint(p r3.Vector) Pose {
	return &basicPose{point: p, q: quat.Number{Real: 1}}
}

// NewPoseFromOrientation returns a pose with the given orientation and translation.
func NewPoseFromOrientation(p r3.Vector, o Orientation) Pose {
	return NewPose(p, o)
}

func (p *basicPose) Point() r3.Vector {
	return p.point
}

func (p *basicPose) Orientation() Orientation {
	q := Quaternion(p.q)
	return &q
}

// RotatePoint rotates v by the unit quaternion q.
func RotatePoint(q quat.Number, v r3.Vector) r3.Vector {
	pq := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, pq), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Compose returns the pose reached by applying b in the frame of a.
func Compose(a, b Pose) Pose {
	aq := a.Orientation().Quaternion()
	return &basicPose{
		point: a.Point().Add(RotatePoint(aq, b.Point())),
		q:     Normalize(quat.Mul(aq, b.Orientation().Quaternion())),
	}
}

// PoseInverse returns the pose that undoes p.
func PoseInverse(p Pose) Pose {
	inv := quat.Conj(p.Orientation().Quaternion())
	return &basicPose{
		point: RotatePoint(inv, p.Point()).Mul(-1),
		q:     inv,
	}
}

// PoseBetween returns the pose of b expressed in the frame of a.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// Interpolate returns the pose a fraction by of the way from a to b. The translation is blended linearly
// and the orientation is slerped.
func Interpolate(a, b Pose, by float64) Pose {
	return &basicPose{
		point: a.Point().Mul(1 - by).Add(b.Point().Mul(by)),
		q:     Slerp(a.Orientation().Quaternion(), b.Orientation().Quaternion(), by),
	}
}

// PoseAlmostEqual will return a bool describing whether 2 poses are approximately the same.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-6)
}

// PoseAlmostEqualEps will return a bool describing whether 2 poses are approximately the same,
// within epsilon in millimeters and radians.
func PoseAlmostEqualEps(a, b Pose, epsilon float64) bool {
	return R3VectorAlmostEqual(a.Point(), b.Point(), epsilon) &&
		OrientationDistance(a.Orientation(), b.Orientation()) <= epsilon
}

// R3VectorAlmostEqual compares two r3.Vector objects and returns if the all elementwise differences are less than epsilon.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}

// RandomQuaternion draws a rotation uniformly distributed over SO(3) using Shoemake's method.
func RandomQuaternion(rSeed interface{ Float64() float64 }) quat.Number {
	u1, u2, u3 := rSeed.Float64(), rSeed.Float64(), rSeed.Float64()
	a := math.Sqrt(1 - u1)
	b := math.Sqrt(u1)
	return quat.Number{
		Real: a * math.Sin(2*math.Pi*u2),
		Imag: a * math.Cos(2*math.Pi*u2),
		Jmag: b * math.Sin(2*math.Pi*u3),
		Kmag: b * math.Cos(2*math.Pi*u3),
	}
}
