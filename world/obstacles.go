// Package world is the environment the planner checks configurations against: obstacles, allowed
// collisions and feasibility predicates.
package world

import (
	"math"

	"github.com/golang/geo/r3"

	spatial "go.viam.com/motionsampling/spatialmath"
)

// Obstacle is a named static shape. Distance returns the signed distance between the shape and a sphere:
// the clearance when apart and minus the penetration depth when they overlap.
type Obstacle interface {
	Name() string
	Distance(center r3.Vector, radius float64) float64
}

// Sphere is a spherical obstacle.
type Sphere struct {
	Label  string
	Center r3.Vector
	Radius float64
}

// Name returns the obstacle's label.
func (s *Sphere) Name() string {
	return s.Label
}

// Distance returns the signed distance to a sphere.
func (s *Sphere) Distance(center r3.Vector, radius float64) float64 {
	return center.Sub(s.Center).Norm() - s.Radius - radius
}

// Box is an oriented box obstacle. Dims holds the full side lengths in the box frame.
type Box struct {
	Label string
	Pose  spatial.Pose
	Dims  r3.Vector
}

// Name returns the obstacle's label.
func (b *Box) Name() string {
	return b.Label
}

// Distance returns the signed distance to a sphere, using the box's signed distance field.
func (b *Box) Distance(center r3.Vector, radius float64) float64 {
	local := spatial.Compose(spatial.PoseInverse(b.Pose), spatial.NewPoseFromPoint(center)).Point()
	q := r3.Vector{
		X: math.Abs(local.X) - b.Dims.X/2,
		Y: math.Abs(local.Y) - b.Dims.Y/2,
		Z: math.Abs(local.Z) - b.Dims.Z/2,
	}
	outside := r3.Vector{X: math.Max(q.X, 0), Y: math.Max(q.Y, 0), Z: math.Max(q.Z, 0)}.Norm()
	inside := math.Min(math.Max(q.X, math.Max(q.Y, q.Z)), 0)
	return outside + inside - radius
}
