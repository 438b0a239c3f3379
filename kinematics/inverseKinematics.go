// Package kinematics solves inverse kinematics for the serial models in referenceframe.
package kinematics

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	spatial "go.viam.com/motionsampling/spatialmath"
)

// ErrIKFailed is returned when no configuration reaching the goal was found within the solver's budget.
var ErrIKFailed = errors.New("kinematics could not solve for position")

const (
	defaultIterations   = 300
	defaultRestarts     = 8
	defaultPosTolMM     = 1e-3
	defaultOrientTolRad = 1e-4
	defaultDamping      = 0.5
	defaultMaxStepRad   = 0.5
	defaultJump         = 1e-6

	// Orientation rows are scaled so that a radian of error weighs about as much as this many mm.
	orientationDistanceScaling = 100.
)

// GoalType selects which components of the goal pose the solver converges on.
type GoalType int

const (
	// FullPose matches both position and orientation.
	FullPose GoalType = iota
	// PositionOnly matches position and ignores orientation.
	PositionOnly
)

// Goal is a target pose for one frame of the model.
type Goal struct {
	Pose spatial.Pose
	// Frame names the frame to place at Pose; empty means the end effector.
	Frame string
	// Offset is a point in Frame's coordinates that is placed at Pose's point instead of the frame origin.
	Offset r3.Vector
	Type   GoalType
}

// Solver is a damped-least-squares Jacobian solver that adjusts a subset of a configuration's variables.
type Solver struct {
	logger     logging.Logger
	iterations int
	restarts   int
	posTol     float64
	orientTol  float64

	mu    sync.Mutex
	rSeed *rand.Rand
}

// NewSolver returns a solver with default tolerances. iterations and restarts below 1 take their defaults.
func NewSolver(logger logging.Logger, iterations, restarts int, seed int64) *Solver {
	if iterations < 1 {
		iterations = defaultIterations
	}
	if restarts < 1 {
		restarts = defaultRestarts
	}
	return &Solver{
		logger:     logger,
		iterations: iterations,
		restarts:   restarts,
		posTol:     defaultPosTolMM,
		orientTol:  defaultOrientTolRad,
		//nolint:gosec
		rSeed: rand.New(rand.NewSource(seed)),
	}
}

// Tolerances returns the position (mm) and orientation (rad) tolerances a solution is held to.
func (s *Solver) Tolerances() (float64, float64) {
	return s.posTol, s.orientTol
}

// Solve modifies the variables of cfg listed in idxs until the goal is met, starting from cfg's current values
// and then from random in-bounds restarts. Variables not in idxs are never touched. On failure cfg is restored
// and ErrIKFailed is returned.
func (s *Solver) Solve(ctx context.Context, cfg *referenceframe.Configuration, idxs []int, goal Goal) error {
	if len(idxs) == 0 {
		return errors.New("no variables to solve over")
	}
	limits := cfg.Model().DoF()
	orig := cfg.GroupValues(idxs)

	for attempt := 0; attempt <= s.restarts; attempt++ {
		if err := ctx.Err(); err != nil {
			cfg.SetGroupValues(idxs, orig)
			return err
		}
		if attempt > 0 {
			cfg.SetGroupValues(idxs, s.randomValues(idxs, limits))
		}
		ok, err := s.descend(ctx, cfg, idxs, limits, goal)
		if err != nil {
			cfg.SetGroupValues(idxs, orig)
			return err
		}
		if ok {
			return nil
		}
	}
	cfg.SetGroupValues(idxs, orig)
	return ErrIKFailed
}

func (s *Solver) randomValues(idxs []int, limits []referenceframe.Limit) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := make([]float64, len(idxs))
	for i, idx := range idxs {
		vals[i] = limits[idx].Sample(s.rSeed)
	}
	return vals
}

// descend runs damped least squares from cfg's current values.
func (s *Solver) descend(
	ctx context.Context,
	cfg *referenceframe.Configuration,
	idxs []int,
	limits []referenceframe.Limit,
	goal Goal,
) (bool, error) {
	for iter := 0; iter < s.iterations; iter++ {
		if iter%50 == 0 && ctx.Err() != nil {
			return false, ctx.Err()
		}
		errVec, posErr, orientErr, err := s.residual(cfg, goal)
		if err != nil {
			return false, err
		}
		if posErr < s.posTol && (goal.Type == PositionOnly || orientErr < s.orientTol) {
			return true, nil
		}

		jac, err := s.jacobian(cfg, idxs, goal, errVec)
		if err != nil {
			return false, err
		}
		dq := dampedLeastSquares(jac, errVec, defaultDamping)

		// Cap the step so that a single iteration can't fling the chain across its range.
		maxAbs := 0.
		for _, v := range dq {
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
		scale := 1.
		if maxAbs > defaultMaxStepRad {
			scale = defaultMaxStepRad / maxAbs
		}
		for i, idx := range idxs {
			v := cfg.Value(idx) + dq[i]*scale
			v = math.Max(limits[idx].Min, math.Min(limits[idx].Max, v))
			cfg.SetValue(idx, v)
		}
	}
	return false, nil
}

// residual returns the weighted error vector from the current pose to the goal, plus the raw position and
// orientation errors.
func (s *Solver) residual(cfg *referenceframe.Configuration, goal Goal) ([]float64, float64, float64, error) {
	current, err := framePose(cfg, goal.Frame)
	if err != nil {
		return nil, 0, 0, err
	}
	point := current.Point()
	if goal.Offset != (r3.Vector{}) {
		point = point.Add(spatial.RotatePoint(current.Orientation().Quaternion(), goal.Offset))
	}
	dp := goal.Pose.Point().Sub(point)
	if goal.Type == PositionOnly {
		return []float64{dp.X, dp.Y, dp.Z}, dp.Norm(), 0, nil
	}
	rot := spatial.QuatToR3AA(spatial.OrientationBetween(current.Orientation(), goal.Pose.Orientation()).Quaternion())
	// QuatToR4AA can return the long way around; take the short one.
	if theta := rot.Norm(); theta > math.Pi {
		rot = rot.Mul((theta - 2*math.Pi) / theta)
	}
	weighted := rot.Mul(orientationDistanceScaling)
	return []float64{dp.X, dp.Y, dp.Z, weighted.X, weighted.Y, weighted.Z}, dp.Norm(), rot.Norm(), nil
}

// jacobian estimates d(residual)/dq by forward differences over the solved variables.
func (s *Solver) jacobian(cfg *referenceframe.Configuration, idxs []int, goal Goal, base []float64) (*mat.Dense, error) {
	rows := len(base)
	jac := mat.NewDense(rows, len(idxs), nil)
	for col, idx := range idxs {
		orig := cfg.Value(idx)
		cfg.SetValue(idx, orig+defaultJump)
		shifted, _, _, err := s.residual(cfg, goal)
		cfg.SetValue(idx, orig)
		if err != nil {
			return nil, err
		}
		for row := 0; row < rows; row++ {
			// residual = goal - current, so the pose derivative is the negated residual derivative.
			jac.Set(row, col, -(shifted[row]-base[row])/defaultJump)
		}
	}
	return jac, nil
}

// dampedLeastSquares returns dq = J^T (J J^T + lambda^2 I)^-1 e.
func dampedLeastSquares(jac *mat.Dense, e []float64, lambda float64) []float64 {
	rows, cols := jac.Dims()
	var jjt mat.Dense
	jjt.Mul(jac, jac.T())
	for i := 0; i < rows; i++ {
		jjt.Set(i, i, jjt.At(i, i)+lambda*lambda)
	}
	var y mat.VecDense
	if err := y.SolveVec(&jjt, mat.NewVecDense(rows, e)); err != nil {
		return make([]float64, cols)
	}
	var dq mat.VecDense
	dq.MulVec(jac.T(), &y)
	return dq.RawVector().Data
}

func framePose(cfg *referenceframe.Configuration, frame string) (spatial.Pose, error) {
	if frame == "" {
		pose, err := cfg.EndEffectorPose()
		if pose == nil {
			return nil, err
		}
		return pose, nil
	}
	return cfg.LinkPose(frame)
}
