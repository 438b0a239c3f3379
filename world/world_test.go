package world

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	spatial "go.viam.com/motionsampling/spatialmath"
	"go.viam.com/motionsampling/utils"
)

func model(t *testing.T, file string) *referenceframe.SimpleModel {
	t.Helper()
	m, err := referenceframe.ParseModelJSONFile(utils.ResolveFile("referenceframe/testjson/"+file), "")
	test.That(t, err, test.ShouldBeNil)
	return m
}

func TestObstacleDistances(t *testing.T) {
	s := &Sphere{Label: "s", Center: r3.Vector{X: 10}, Radius: 2}
	test.That(t, s.Distance(r3.Vector{}, 3), test.ShouldAlmostEqual, 5)
	test.That(t, s.Distance(r3.Vector{X: 9}, 3), test.ShouldAlmostEqual, -4)

	b := &Box{Label: "b", Pose: spatial.NewZeroPose(), Dims: r3.Vector{X: 10, Y: 10, Z: 10}}
	test.That(t, b.Distance(r3.Vector{X: 10}, 1), test.ShouldAlmostEqual, 4)
	test.That(t, b.Distance(r3.Vector{X: 8, Y: 9}, 0), test.ShouldAlmostEqual, 5)
	test.That(t, b.Distance(r3.Vector{X: 4}, 0), test.ShouldAlmostEqual, -1)

	rotated := &Box{
		Label: "r",
		Pose:  spatial.NewPose(r3.Vector{X: 100}, &spatial.R4AA{Theta: math.Pi / 2, RZ: 1}),
		Dims:  r3.Vector{X: 40, Y: 2, Z: 2},
	}
	// Long axis now runs along world Y.
	test.That(t, rotated.Distance(r3.Vector{X: 100, Y: 15}, 1), test.ShouldBeLessThan, 0)
	test.That(t, rotated.Distance(r3.Vector{X: 115, Y: 0}, 1), test.ShouldAlmostEqual, 13, 1e-9)
}

func TestCheckCollision(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := model(t, "planar3.json")
	w := NewWorld(m, logger)
	test.That(t, w.AddObstacle(&Sphere{Label: "ball", Center: r3.Vector{X: 300, Y: 50}, Radius: 20}), test.ShouldBeNil)
	test.That(t, w.AddObstacle(&Sphere{Label: "ball", Center: r3.Vector{}, Radius: 1}), test.ShouldNotBeNil)

	cfg := referenceframe.NewConfiguration(m, nil)
	res := w.CheckCollision(CollisionRequest{Distance: true}, cfg)
	test.That(t, res.Collision, test.ShouldBeFalse)
	test.That(t, res.Distance, test.ShouldAlmostEqual, 20, 1e-9)

	res = w.CheckCollision(CollisionRequest{}, cfg)
	test.That(t, res.Collision, test.ShouldBeFalse)

	// Swing the last link into the ball.
	cfg.SetValue(2, math.Atan2(50, 100))
	res = w.CheckCollision(CollisionRequest{Distance: true, Verbose: true}, cfg)
	test.That(t, res.Collision, test.ShouldBeTrue)
	test.That(t, res.Distance, test.ShouldBeLessThan, 0)

	w.AllowCollision("ball", "ee")
	res = w.CheckCollision(CollisionRequest{Distance: true}, cfg)
	test.That(t, res.Collision, test.ShouldBeFalse)
}

func TestCheckCollisionDeepestPenetration(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := model(t, "planar3.json")
	w := NewWorld(m, logger)
	test.That(t, w.AddObstacle(&Box{Label: "wall", Pose: spatial.NewPoseFromPoint(r3.Vector{X: 300}), Dims: r3.Vector{X: 10, Y: 10, Z: 10}}), test.ShouldBeNil)
	test.That(t, w.AddObstacle(&Sphere{Label: "pin", Center: r3.Vector{X: 205}, Radius: 1}), test.ShouldBeNil)

	res := w.CheckCollision(CollisionRequest{Distance: true}, referenceframe.NewConfiguration(m, nil))
	test.That(t, res.Collision, test.ShouldBeTrue)
	test.That(t, res.Distance, test.ShouldAlmostEqual, -15, 1e-9)
}

func TestCollisionGroupRestriction(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := model(t, "arm7.json")
	w := NewWorld(m, logger)
	test.That(t, w.AddObstacle(&Sphere{Label: "pedestal", Center: r3.Vector{Z: 100}, Radius: 5}), test.ShouldBeNil)
	cfg := referenceframe.NewConfiguration(m, nil)

	// The base is not moved by any variable, so only the whole-robot check sees it.
	test.That(t, w.CheckCollision(CollisionRequest{}, cfg).Collision, test.ShouldBeTrue)
	test.That(t, w.CheckCollision(CollisionRequest{Group: "arm"}, cfg).Collision, test.ShouldBeFalse)
	test.That(t, w.CheckCollision(CollisionRequest{Group: "wrist"}, cfg).Collision, test.ShouldBeFalse)
	test.That(t, w.CheckCollision(CollisionRequest{Group: "legs"}, cfg).Collision, test.ShouldBeTrue)

	res := w.CheckCollision(CollisionRequest{Group: "wrist", Distance: true}, cfg)
	test.That(t, res.Distance, test.ShouldBeGreaterThan, 0)
	test.That(t, math.IsInf(res.Distance, 1), test.ShouldBeFalse)
}

func TestSelfCollision(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := model(t, "planar3.json")
	w := NewWorld(m, logger)
	folded := referenceframe.NewConfiguration(m, referenceframe.FloatsToInputs([]float64{0, math.Pi, 0}))

	test.That(t, w.CheckCollision(CollisionRequest{}, folded).Collision, test.ShouldBeFalse)
	res := w.CheckCollision(CollisionRequest{Distance: true}, folded)
	test.That(t, math.IsInf(res.Distance, 1), test.ShouldBeTrue)

	w.EnableSelfCollision(2)
	test.That(t, w.CheckCollision(CollisionRequest{}, folded).Collision, test.ShouldBeTrue)
	test.That(t, w.CheckCollision(CollisionRequest{}, referenceframe.NewConfiguration(m, nil)).Collision, test.ShouldBeFalse)

	w.AllowCollision("base", "l1")
	test.That(t, w.CheckCollision(CollisionRequest{}, folded).Collision, test.ShouldBeFalse)
}

func TestFeasibilityPredicates(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := model(t, "planar3.json")
	w := NewWorld(m, logger)
	cfg := referenceframe.NewConfiguration(m, nil)
	test.That(t, w.IsStateFeasible(cfg, false), test.ShouldBeTrue)

	w.AddFeasibilityPredicate("elbow up", func(cfg *referenceframe.Configuration, verbose bool) bool {
		return cfg.Value(1) >= 0
	})
	test.That(t, w.IsStateFeasible(cfg, true), test.ShouldBeTrue)
	cfg.SetValue(1, -0.1)
	test.That(t, w.IsStateFeasible(cfg, true), test.ShouldBeFalse)
}
