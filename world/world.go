package world

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
)

// CollisionRequest selects what CheckCollision examines.
type CollisionRequest struct {
	// Group restricts the check to links moved by the group's variables; empty means every link.
	Group string
	// Verbose logs each colliding pair.
	Verbose bool
	// Distance asks for the minimum signed distance over all checked pairs rather than stopping at the first
	// collision.
	Distance bool
}

// CollisionResult is the outcome of a collision check.
type CollisionResult struct {
	Collision bool
	// Distance is the minimum signed distance between checked pairs: positive clearance, or minus the
	// deepest penetration. It is +Inf when nothing was checked and only computed when requested.
	Distance float64
}

// FeasibilityPredicate is a user-supplied test a configuration must pass before collision checking.
type FeasibilityPredicate func(cfg *referenceframe.Configuration, verbose bool) bool

type namedPredicate struct {
	name string
	fn   FeasibilityPredicate
}

type pair struct{ a, b string }

func newPair(a, b string) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// World holds the obstacles around one robot model. Queries may run concurrently; mutations must not
// overlap with queries.
type World struct {
	model  referenceframe.Model
	logger logging.Logger

	mu                sync.RWMutex
	obstacles         []Obstacle
	names             map[string]bool
	allowed           map[pair]bool
	predicates        []namedPredicate
	selfCollision     bool
	selfCollisionSkip int
}

// NewWorld returns an empty world for model.
func NewWorld(model referenceframe.Model, logger logging.Logger) *World {
	return &World{
		model:   model,
		logger:  logger,
		names:   map[string]bool{},
		allowed: map[pair]bool{},
	}
}

// AddObstacle adds o. Obstacle names must be unique.
func (w *World) AddObstacle(o Obstacle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.names[o.Name()] {
		return errors.Errorf("found geometry with duplicate name: %s", o.Name())
	}
	w.names[o.Name()] = true
	w.obstacles = append(w.obstacles, o)
	return nil
}

// Obstacles returns the obstacles of the world.
func (w *World) Obstacles() []Obstacle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Obstacle(nil), w.obstacles...)
}

// AllowCollision permits the named link and obstacle, or two links, to overlap.
func (w *World) AllowCollision(a, b string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allowed[newPair(a, b)] = true
}

// EnableSelfCollision turns on link-link checks, skipping pairs fewer than skip links apart in the chain.
func (w *World) EnableSelfCollision(skip int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selfCollision = true
	w.selfCollisionSkip = max(skip, 1)
}

// AddFeasibilityPredicate registers a named predicate consulted by IsStateFeasible.
func (w *World) AddFeasibilityPredicate(name string, fn FeasibilityPredicate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.predicates = append(w.predicates, namedPredicate{name, fn})
}

// IsStateFeasible reports whether cfg passes every feasibility predicate.
func (w *World) IsStateFeasible(cfg *referenceframe.Configuration, verbose bool) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.predicates {
		if !p.fn(cfg, verbose) {
			if verbose {
				w.logger.Infof("state is infeasible according to %q", p.name)
			}
			return false
		}
	}
	return true
}

// CheckCollision checks the links of req.Group against the obstacles, and against the other links if self
// collision is enabled.
func (w *World) CheckCollision(req CollisionRequest, cfg *referenceframe.Configuration) CollisionResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	res := CollisionResult{Distance: math.Inf(1)}

	geoms, err := w.model.Geometries(cfg.Values())
	if geoms == nil {
		if req.Verbose {
			w.logger.Infow("cannot place robot geometry", "error", err)
		}
		return CollisionResult{Collision: true}
	}
	active, err := w.activeFrames(req.Group)
	if err != nil {
		if req.Verbose {
			w.logger.Infow("cannot resolve collision group", "group", req.Group, "error", err)
		}
		return CollisionResult{Collision: true}
	}

	// record folds one pair into the result and reports whether checking can stop.
	record := func(a, b string, d float64) bool {
		if w.allowed[newPair(a, b)] {
			return false
		}
		res.Distance = math.Min(res.Distance, d)
		if d > 0 {
			return false
		}
		if req.Verbose {
			w.logger.Infof("collision between %s and %s, penetration %.3f", a, b, -d)
		}
		res.Collision = true
		return !req.Distance
	}

	for i, g := range geoms {
		if !active[g.Name] {
			continue
		}
		for _, o := range w.obstacles {
			if record(g.Name, o.Name(), o.Distance(g.Pose.Point(), g.Radius)) {
				return res
			}
		}
		if !w.selfCollision {
			continue
		}
		for j, other := range geoms {
			if j == i || abs(j-i) < w.selfCollisionSkip || (active[other.Name] && j < i) {
				continue
			}
			d := g.Pose.Point().Sub(other.Pose.Point()).Norm() - g.Radius - other.Radius
			if record(g.Name, other.Name, d) {
				return res
			}
		}
	}
	if !req.Distance {
		res.Distance = 0
	}
	return res
}

// activeFrames returns the frames moved by the group: every frame from the group's first variable onwards.
func (w *World) activeFrames(group string) (map[string]bool, error) {
	frames := w.model.FrameNames()
	active := make(map[string]bool, len(frames))
	if group == "" {
		for _, f := range frames {
			active[f] = true
		}
		return active, nil
	}
	idxs, err := w.model.Group(group)
	if err != nil {
		return nil, err
	}
	vars := w.model.VariableNames()
	inGroup := map[string]bool{}
	for _, idx := range idxs {
		inGroup[vars[idx]] = true
	}
	moving := false
	for _, f := range frames {
		if inGroup[f] {
			moving = true
		}
		if moving {
			active[f] = true
		}
	}
	return active, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
