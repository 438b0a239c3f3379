// Package validity decides whether planner states are usable: inside bounds, satisfying the path
// constraints, feasible in the environment and collision free.
package validity

import (
	"sync"

	"go.uber.org/atomic"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	"go.viam.com/motionsampling/statespace"
	"go.viam.com/motionsampling/world"
)

// Environment is the environment model a checker consults.
type Environment interface {
	IsStateFeasible(cfg *referenceframe.Configuration, verbose bool) bool
	CheckCollision(req world.CollisionRequest, cfg *referenceframe.Configuration) world.CollisionResult
}

// Checker evaluates, in order and stopping at the first failure: space bounds, path constraints, environment
// feasibility and collision for the space's group. It is safe for concurrent use: each call takes its own
// scratch configuration.
type Checker struct {
	space   statespace.StateSpace
	env     Environment
	path    *constraints.KinematicConstraintSet
	initial *referenceframe.Configuration
	logger  logging.Logger
	verbose atomic.Bool
	buffer  atomic.Float64

	scratch sync.Pool
}

// NewChecker returns a checker. path may be nil or empty when there are no path constraints. initial supplies
// the variables the space does not cover.
func NewChecker(
	space statespace.StateSpace,
	env Environment,
	path *constraints.KinematicConstraintSet,
	initial *referenceframe.Configuration,
	logger logging.Logger,
) *Checker {
	c := &Checker{
		space:   space,
		env:     env,
		path:    path,
		initial: initial.Copy(),
		logger:  logger,
	}
	c.scratch.New = func() interface{} {
		return c.initial.Copy()
	}
	return c
}

// SetVerbose turns failure diagnostics on or off. It never changes results.
func (c *Checker) SetVerbose(verbose bool) {
	c.verbose.Store(verbose)
}

// SetCollisionBuffer makes states whose clearance is below mm count as colliding.
func (c *Checker) SetCollisionBuffer(mm float64) {
	c.buffer.Store(mm)
}

// IsValid reports whether s is valid.
func (c *Checker) IsValid(s statespace.State) bool {
	valid, _ := c.check(s, false)
	return valid
}

// IsValidWithDistance also returns how close s is to being invalid. On a path constraint failure this is the
// constraint distance; on a collision, the signed collision distance; on a feasibility, bounds or conversion
// failure, zero. For a valid state it is the clearance from the environment.
func (c *Checker) IsValidWithDistance(s statespace.State) (bool, float64) {
	return c.check(s, true)
}

func (c *Checker) check(s statespace.State, wantDistance bool) (bool, float64) {
	verbose := c.verbose.Load()
	if !c.space.SatisfiesBounds(s) {
		if verbose {
			c.logger.Infof("state %v is outside the bounds of the %s space", s, c.space.Name())
		}
		return false, 0
	}

	//nolint:forcetypeassert
	cfg := c.scratch.Get().(*referenceframe.Configuration)
	defer c.scratch.Put(cfg)
	cfg.CopyFrom(c.initial)
	if err := c.space.CopyToConfig(s, cfg); err != nil {
		if verbose {
			c.logger.Infow("cannot convert state to a configuration", "error", err)
		}
		return false, 0
	}

	if c.path != nil && !c.path.Empty() {
		res := c.path.Decide(cfg, verbose)
		if !res.Satisfied {
			if verbose {
				c.logger.Infof("path constraints violated, distance %.6f", res.Distance)
			}
			return false, res.Distance
		}
	}

	if !c.env.IsStateFeasible(cfg, verbose) {
		if verbose {
			c.logger.Info("state is not feasible")
		}
		return false, 0
	}

	buffer := c.buffer.Load()
	res := c.env.CheckCollision(world.CollisionRequest{
		Group:    c.space.Group(),
		Verbose:  verbose,
		Distance: wantDistance || buffer > 0,
	}, cfg)
	if res.Collision || res.Distance < buffer {
		if verbose {
			c.logger.Infof("state is in collision, distance %.3f", res.Distance)
		}
		return false, res.Distance
	}
	return true, res.Distance
}
