package constraintsampler

import (
	"context"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/kinematics"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	spatial "go.viam.com/motionsampling/spatialmath"
)

// IKSampler draws a link pose inside a position constraint's region (and an orientation constraint's
// tolerance, if one is given for the same link) and solves inverse kinematics for it.
type IKSampler struct {
	groupInfo
	logger    logging.Logger
	cs        *constraints.ConstraintSet
	pos       constraints.PositionConstraint
	orient    *constraints.OrientationConstraint
	check     *constraints.KinematicConstraintSet
	solver    *kinematics.Solver
	solveIdxs []int
	rSeed     *rand.Rand
}

// NewIKSampler returns a sampler for the first position constraint of cs and, if one exists on the same link,
// the first orientation constraint.
func NewIKSampler(
	model referenceframe.Model,
	group string,
	cs *constraints.ConstraintSet,
	solver *kinematics.Solver,
	logger logging.Logger,
	seed int64,
) (*IKSampler, error) {
	if len(cs.Position) == 0 {
		return nil, errors.New("ik sampler needs a position constraint")
	}
	gi, err := newGroupInfo(model, group)
	if err != nil {
		return nil, err
	}
	s := &IKSampler{
		groupInfo: gi,
		logger:    logger,
		pos:       cs.Position[0],
		solver:    solver,
		solveIdxs: gi.idxs,
		//nolint:gosec
		rSeed: rand.New(rand.NewSource(seed)),
	}
	s.cs = &constraints.ConstraintSet{Position: []constraints.PositionConstraint{s.pos}}
	for i := range cs.Orientation {
		if cs.Orientation[i].Link == s.pos.Link {
			oc := cs.Orientation[i]
			s.orient = &oc
			s.cs.Orientation = []constraints.OrientationConstraint{oc}
			break
		}
	}
	s.check, err = constraints.NewKinematicConstraintSet(model, logger)
	if err != nil {
		return nil, err
	}
	if err := s.check.Add(s.cs); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns IKStrategy.
func (s *IKSampler) Name() string {
	return IKStrategy
}

// Constraints returns the position and orientation constraints being sampled.
func (s *IKSampler) Constraints() *constraints.ConstraintSet {
	return s.cs
}

// HoldFixed excludes the given variables from the IK solve; they keep whatever value they have on entry.
func (s *IKSampler) HoldFixed(idxs []int) {
	fixed := map[int]bool{}
	for _, idx := range idxs {
		fixed[idx] = true
	}
	solve := make([]int, 0, len(s.idxs))
	for _, idx := range s.idxs {
		if !fixed[idx] {
			solve = append(solve, idx)
		}
	}
	s.solveIdxs = solve
}

// Sample solves IK for up to attempts sampled poses, each seeded from reference. A solve in progress is
// abandoned when ctx is done.
func (s *IKSampler) Sample(ctx context.Context, out, reference *referenceframe.Configuration, attempts int) bool {
	if len(s.solveIdxs) == 0 {
		return false
	}
	for i := 0; i < attempts && ctx.Err() == nil; i++ {
		out.CopyFrom(reference)
		if i > 0 {
			// Later attempts start from a random seed so they don't fall into the same local minimum.
			for j, idx := range s.idxs {
				if s.solving(idx) {
					out.SetValue(idx, s.limits[j].Sample(s.rSeed))
				}
			}
		}
		goal := s.samplePose()
		if err := s.solver.Solve(ctx, out, s.solveIdxs, goal); err != nil {
			continue
		}
		if s.check.Decide(out, false).Satisfied {
			return true
		}
	}
	out.CopyFrom(reference)
	return false
}

func (s *IKSampler) solving(idx int) bool {
	for _, v := range s.solveIdxs {
		if v == idx {
			return true
		}
	}
	return false
}

// samplePose draws a link pose whose constrained point lies in the region.
func (s *IKSampler) samplePose() kinematics.Goal {
	var point r3.Vector
	switch s.pos.Shape {
	case constraints.RegionSphere:
		// Rejection from the bounding cube.
		for {
			d := r3.Vector{X: 2*s.rSeed.Float64() - 1, Y: 2*s.rSeed.Float64() - 1, Z: 2*s.rSeed.Float64() - 1}
			if d.Norm2() <= 1 {
				point = s.pos.Center.Add(d.Mul(s.pos.Radius))
				break
			}
		}
	default:
		point = s.pos.Center.Add(r3.Vector{
			X: (s.rSeed.Float64() - 0.5) * s.pos.Dims.X,
			Y: (s.rSeed.Float64() - 0.5) * s.pos.Dims.Y,
			Z: (s.rSeed.Float64() - 0.5) * s.pos.Dims.Z,
		})
	}

	if s.orient == nil {
		return kinematics.Goal{
			Pose:   spatial.NewPoseFromPoint(point),
			Frame:  s.pos.Link,
			Offset: s.pos.TargetOffset,
			Type:   kinematics.PositionOnly,
		}
	}
	delta := r3.Vector{
		X: symmetric(s.rSeed, s.orient.AbsXTol),
		Y: symmetric(s.rSeed, s.orient.AbsYTol),
		Z: symmetric(s.rSeed, s.orient.AbsZTol),
	}
	o := spatial.Quaternion(quat.Mul(spatial.Normalize(s.orient.Target), spatial.R3ToR4(delta).ToQuat()))
	return kinematics.Goal{Pose: spatial.NewPose(point, &o), Frame: s.pos.Link, Offset: s.pos.TargetOffset}
}

// symmetric draws from [-tol, tol], capped at a half turn and pulled in slightly so IK error stays inside.
func symmetric(rSeed *rand.Rand, tol float64) float64 {
	tol = math.Min(tol, math.Pi)
	tol -= math.Min(1e-3, tol/10)
	return (2*rSeed.Float64() - 1) * tol
}
