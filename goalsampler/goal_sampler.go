// Package goalsampler fills a pool of goal states in the background while a planner searches.
package goalsampler

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/constraintsampler"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	"go.viam.com/motionsampling/statespace"
	"go.viam.com/motionsampling/utils"
)

// Status is the state of the background sampling loop.
type Status int32

// Sampling loop states. A run starts in Sampling and ends in one of the terminal states; Start begins a new run.
const (
	Idle Status = iota
	Sampling
	Exhausted
	Cancelled
	SolutionFound
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Exhausted:
		return "exhausted"
	case Cancelled:
		return "cancelled"
	case SolutionFound:
		return "solution found"
	default:
		return "unknown"
	}
}

// ProblemDefinition reports whether the planner already holds a solution.
type ProblemDefinition interface {
	HasSolution() bool
}

// Validator screens goal states before they are published.
type Validator interface {
	IsValid(s statespace.State) bool
}

// Config describes a lazy goal sampler.
type Config struct {
	Space   statespace.StateSpace
	Sampler constraintsampler.ConstraintSampler
	// Goal decides whether a drawn configuration is a goal. The sampler's own constraints are only a hint.
	Goal *constraints.KinematicConstraintSet
	// Checker is optional; when set, goal states must also be valid.
	Checker Validator
	// Initial seeds every draw and supplies the variables outside the group.
	Initial *referenceframe.Configuration
	// Problem is optional; sampling stops once it has a solution.
	Problem ProblemDefinition

	// MaxAttempts bounds the number of draws of a run.
	MaxAttempts int
	// MaxSamples bounds the pool size.
	MaxSamples int
	// AttemptsPerDraw is the attempt budget handed to the sampler for each draw.
	AttemptsPerDraw int
	// DeferStart leaves the sampler Idle until Start is called.
	DeferStart bool
	// Parent is optional; cancelling it ends any run as Stop would.
	Parent context.Context
}

// LazyGoalSampler draws goal states on a background goroutine into a GoalPool. The sampling loop is the only
// user of the constraint sampler. SampleGoal is meant for a single planner goroutine.
type LazyGoalSampler struct {
	cfg    Config
	logger logging.Logger
	pool   *GoalPool

	status   atomic.Int32
	attempts atomic.Int64
	next     atomic.Int64

	mu      sync.Mutex
	workers utils.StoppableWorkers
}

// NewLazyGoalSampler validates cfg and, unless DeferStart is set, starts sampling.
func NewLazyGoalSampler(cfg Config, logger logging.Logger) (*LazyGoalSampler, error) {
	switch {
	case cfg.Space == nil:
		return nil, errors.New("goal sampler needs a state space")
	case cfg.Sampler == nil:
		return nil, errors.New("goal sampler needs a constraint sampler")
	case cfg.Goal == nil:
		return nil, errors.New("goal sampler needs goal constraints")
	case cfg.Initial == nil:
		return nil, errors.New("goal sampler needs an initial configuration")
	case cfg.MaxAttempts <= 0 || cfg.MaxSamples <= 0 || cfg.AttemptsPerDraw <= 0:
		return nil, errors.Errorf("goal sampler limits must be positive, got attempts %d samples %d per draw %d",
			cfg.MaxAttempts, cfg.MaxSamples, cfg.AttemptsPerDraw)
	}
	cfg.Initial = cfg.Initial.Copy()
	g := &LazyGoalSampler{cfg: cfg, logger: logger, pool: NewGoalPool()}
	if !cfg.DeferStart {
		g.Start()
	}
	return g, nil
}

// Start begins a sampling run if none is in progress. The pool keeps its entries across runs.
func (g *LazyGoalSampler) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if Status(g.status.Load()) == Sampling {
		return
	}
	if g.workers != nil {
		g.workers.Stop()
	}
	g.attempts.Store(0)
	g.status.Store(int32(Sampling))
	parent := g.cfg.Parent
	if parent == nil {
		parent = context.Background()
	}
	g.workers = utils.NewStoppableWorkersWithContext(parent, g.run)
}

// Stop cancels the sampling run, if any, and waits for it to return.
func (g *LazyGoalSampler) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.workers == nil {
		return
	}
	g.workers.Stop()
	g.workers = nil
	if g.status.CompareAndSwap(int32(Sampling), int32(Cancelled)) {
		g.pool.notify()
	}
}

// Wait blocks until the current run ends on its own or is stopped.
func (g *LazyGoalSampler) Wait() {
	g.mu.Lock()
	workers := g.workers
	g.mu.Unlock()
	if workers != nil {
		workers.Wait()
	}
}

// Status is the state of the sampling loop. A finished run does not return to Idle: the status keeps the
// reason the run ended (Exhausted, Cancelled or SolutionFound) until Start begins another run.
func (g *LazyGoalSampler) Status() Status {
	return Status(g.status.Load())
}

// Attempts is the number of draws made by the current or last run.
func (g *LazyGoalSampler) Attempts() int {
	return int(g.attempts.Load())
}

// MaxSampleCount is the pool capacity.
func (g *LazyGoalSampler) MaxSampleCount() int {
	return g.cfg.MaxSamples
}

// Pool is the goal pool being filled.
func (g *LazyGoalSampler) Pool() *GoalPool {
	return g.pool
}

// CanSample reports whether SampleGoal can return a state now or may do so later.
func (g *LazyGoalSampler) CanSample() bool {
	return g.pool.Len() > 0 || g.Status() == Sampling
}

// SampleGoal writes the next pool entry into out, cycling through the pool in discovery order. It returns false
// while the pool is empty.
func (g *LazyGoalSampler) SampleGoal(out statespace.State) bool {
	n := g.pool.Len()
	if n == 0 {
		return false
	}
	i := (g.next.Inc() - 1) % int64(n)
	g.pool.CopyAt(int(i), out)
	return true
}

// WaitForGoal blocks until the pool holds a state, the run ends, or ctx is done. It reports whether the pool holds
// a state.
func (g *LazyGoalSampler) WaitForGoal(ctx context.Context) bool {
	for {
		changed := g.pool.changes()
		if g.pool.Len() > 0 {
			return true
		}
		if g.Status() != Sampling {
			return false
		}
		select {
		case <-ctx.Done():
			return g.pool.Len() > 0
		case <-changed:
		}
	}
}

// stopReason reports why the run must end, checked before every draw.
func (g *LazyGoalSampler) stopReason(ctx context.Context) (Status, bool) {
	switch {
	case ctx.Err() != nil:
		return Cancelled, true
	case g.cfg.Problem != nil && g.cfg.Problem.HasSolution():
		return SolutionFound, true
	case g.pool.Len() >= g.cfg.MaxSamples:
		return Exhausted, true
	case g.attempts.Load() >= int64(g.cfg.MaxAttempts):
		return Exhausted, true
	}
	return Sampling, false
}

func (g *LazyGoalSampler) run(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "goalsampler::run")
	defer span.End()

	work := g.cfg.Initial.Copy()
	state := g.cfg.Space.NewState()
	for {
		if reason, done := g.stopReason(ctx); done {
			if g.status.CompareAndSwap(int32(Sampling), int32(reason)) {
				g.pool.notify()
			}
			g.logger.Debugf("goal sampling %s after %d attempts with %d goals", reason, g.attempts.Load(), g.pool.Len())
			return
		}
		g.attempts.Inc()
		if g.accept(ctx, work, state) {
			n := g.pool.Append(state)
			g.logger.Debugf("goal sample %d found", n)
		}
	}
}

// accept draws one configuration into work and reports whether it converted into a goal state.
func (g *LazyGoalSampler) accept(ctx context.Context, work *referenceframe.Configuration, state statespace.State) bool {
	work.CopyFrom(g.cfg.Initial)
	if !g.cfg.Sampler.Sample(ctx, work, g.cfg.Initial, g.cfg.AttemptsPerDraw) {
		return false
	}
	if !g.cfg.Goal.Decide(work, false).Satisfied {
		return false
	}
	if err := g.cfg.Space.CopyToState(work, state); err != nil {
		return false
	}
	if !g.cfg.Space.SatisfiesBounds(state) {
		return false
	}
	return g.cfg.Checker == nil || g.cfg.Checker.IsValid(state)
}
