// Package spatialmath defines rigid poses and orientations used by kinematics and planning.
package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Orientation is an interface used to express the different parameterizations of the orientation
// of a rigid object or a frame of reference in 3D Euclidean space.
type Orientation interface {
	AxisAngles() *R4AA
	Quaternion() quat.Number
}

// Quaternion is an Orientation backed directly by a unit quaternion.
type Quaternion quat.Number

// NewZeroOrientation returns an orientatation which signifies no rotation.
func NewZeroOrientation() Orientation {
	return &Quaternion{Real: 1}
}

// AxisAngles returns the orientation in axis angle representation.
func (q *Quaternion) AxisAngles() *R4AA {
	return QuatToR4AA(q.Quaternion())
}

// Quaternion returns orientation in quaternion representation.
func (q *Quaternion) Quaternion() quat.Number {
	return quat.Number(*q)
}

// OrientationBetween returns the orientation representing the difference between the two given Orientations.
func OrientationBetween(o1, o2 Orientation) Orientation {
	q := Quaternion(quat.Mul(o2.Quaternion(), quat.Conj(o1.Quaternion())))
	return &q
}

// OrientationDistance returns the angle in radians of the rotation taking o1 to o2, in [0, pi].
func OrientationDistance(o1, o2 Orientation) float64 {
	d := math.Abs(QuaternionDot(Normalize(o1.Quaternion()), Normalize(o2.Quaternion())))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

// QuaternionDot returns the four dimensional dot product of two quaternions.
func QuaternionDot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Normalize scales q to unit length. The zero quaternion becomes the identity.
func Normalize(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/norm, q)
}

// Slerp spherically interpolates between two unit quaternions, taking the short arc.
// by == 0 returns q0 and by == 1 returns q1 exactly.
func Slerp(q0, q1 quat.Number, by float64) quat.Number {
	if by <= 0 {
		return q0
	}
	if by >= 1 {
		return q1
	}
	dot := QuaternionDot(q0, q1)
	if dot < 0 {
		q1 = quat.Scale(-1, q1)
		dot = -dot
	}
	if dot > 0.9995 {
		// Nearly parallel, fall back to a normalized lerp.
		return Normalize(quat.Add(quat.Scale(1-by, q0), quat.Scale(by, q1)))
	}
	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	s0 := math.Sin((1-by)*theta) / sinTheta
	s1 := math.Sin(by*theta) / sinTheta
	return quat.Add(quat.Scale(s0, q0), quat.Scale(s1, q1))
}
