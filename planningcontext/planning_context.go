// Package planningcontext assembles, for one planning request, the state space, samplers, validity checker and
// goal sampler a sampling-based planner runs against.
package planningcontext

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"go.viam.com/motionsampling/approximation"
	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/constraintsampler"
	"go.viam.com/motionsampling/goalsampler"
	"go.viam.com/motionsampling/kinematics"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
	"go.viam.com/motionsampling/sampler"
	"go.viam.com/motionsampling/statespace"
	"go.viam.com/motionsampling/validity"
	"go.viam.com/motionsampling/world"
)

// PlanRequest is everything a planning context is built from.
type PlanRequest struct {
	Model referenceframe.Model
	Group string
	// Initial is the complete start configuration.
	Initial *referenceframe.Configuration

	GoalConstraints *constraints.ConstraintSet
	// PathConstraints are optional.
	PathConstraints *constraints.ConstraintSet

	// World is optional; an empty world is used when nil.
	World *world.World
	// Cache is optional; stored approximations are used and populated only when set.
	Cache *approximation.Cache

	PlannerOptions *PlannerOptions
	// Factories defaults to statespace.DefaultFactories.
	Factories []statespace.Factory
	// Redundant names pose space variables carried directly in the state.
	Redundant []string
}

// ProblemDefinition tracks whether the planner has found a solution. The planner marks it; the goal sampler
// reads it.
type ProblemDefinition struct {
	solved atomic.Bool
}

// HasSolution reports whether MarkSolved has been called.
func (pd *ProblemDefinition) HasSolution() bool {
	return pd.solved.Load()
}

// MarkSolved records that the planner holds a solution.
func (pd *ProblemDefinition) MarkSolved() {
	pd.solved.Store(true)
}

// PlanningContext is the per-request planning environment.
type PlanningContext struct {
	request *PlanRequest
	opts    *PlannerOptions
	logger  logging.Logger

	initial *referenceframe.Configuration
	solver  *kinematics.Solver
	space   statespace.StateSpace
	world   *world.World
	path    *constraints.KinematicConstraintSet
	goal    *constraints.KinematicConstraintSet
	manager *constraintsampler.Manager
	checker *validity.Checker
	problem *ProblemDefinition

	mu           sync.Mutex
	goalSamplers []*goalsampler.LazyGoalSampler
}

// NewPlanningContext validates request and builds its planning context.
func NewPlanningContext(ctx context.Context, logger logging.Logger, request *PlanRequest) (*PlanningContext, error) {
	_, span := trace.StartSpan(ctx, "planningcontext::NewPlanningContext")
	defer span.End()

	if request.Model == nil {
		return nil, errors.New("plan request has no model")
	}
	if request.GoalConstraints.Empty() {
		return nil, errors.New("plan request has no goal constraints")
	}
	opts := request.PlannerOptions
	if opts == nil {
		opts = NewBasicPlannerOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	initial := request.Initial
	if initial == nil {
		initial = referenceframe.NewConfiguration(request.Model, nil)
	}
	if initial.Model() != request.Model {
		return nil, errors.New("initial configuration belongs to a different model")
	}
	if _, err := request.Model.Group(request.Group); err != nil {
		return nil, err
	}

	pc := &PlanningContext{
		request: request,
		opts:    opts,
		logger:  logger,
		initial: initial.Copy(),
		world:   request.World,
		problem: &ProblemDefinition{},
	}
	if pc.world == nil {
		pc.world = world.NewWorld(request.Model, logger.Sublogger("world"))
	}
	seed := int64(opts.RandomSeed)
	pc.solver = kinematics.NewSolver(logger.Sublogger("ik"), opts.IKIterations, opts.IKRestarts, seed)

	var err error
	if pc.path, err = newConstraintSet(request.Model, logger, request.PathConstraints); err != nil {
		return nil, errors.Wrap(err, "path constraints")
	}
	if pc.goal, err = newConstraintSet(request.Model, logger, request.GoalConstraints); err != nil {
		return nil, errors.Wrap(err, "goal constraints")
	}

	factories := request.Factories
	if factories == nil {
		factories = statespace.DefaultFactories()
	}
	pc.space, err = statespace.NewStateSpace(factories, statespace.Request{
		Model:           request.Model,
		Group:           request.Group,
		PathConstraints: request.PathConstraints,
		Solver:          pc.solver,
		Pose: statespace.PoseSpaceOptions{
			Redundant:         request.Redundant,
			OrientationWeight: opts.OrientationWeight,
		},
	})
	if err != nil {
		return nil, err
	}
	span.AddAttributes(trace.StringAttribute("space", pc.space.Name()))
	logger.Debugf("planning group %q in %s space with %d dimensions", request.Group, pc.space.Name(), pc.space.Dimension())

	pc.manager = constraintsampler.NewManager(request.Model, pc.solver, logger.Sublogger("constraint_sampler"), seed)
	if request.Cache != nil {
		if opts.ApproximationsDir != "" {
			n, err := request.Cache.Load(opts.ApproximationsDir)
			if err != nil {
				logger.Warnw("could not load every stored approximation", "dir", opts.ApproximationsDir, "error", err)
			}
			logger.Debugf("loaded %d approximations from %s", n, opts.ApproximationsDir)
		}
		pc.manager.UseApproximations(request.Cache.LookupSource)
	}

	pc.checker = validity.NewChecker(pc.space, pc.world, pc.path, pc.initial, logger.Sublogger("validity"))
	pc.checker.SetVerbose(opts.VerboseValidity)
	pc.checker.SetCollisionBuffer(opts.CollisionBufferMM)
	return pc, nil
}

func newConstraintSet(
	model referenceframe.Model,
	logger logging.Logger,
	cs *constraints.ConstraintSet,
) (*constraints.KinematicConstraintSet, error) {
	kcs, err := constraints.NewKinematicConstraintSet(model, logger)
	if err != nil {
		return nil, err
	}
	if cs.Empty() {
		return kcs, nil
	}
	if err := kcs.Add(cs); err != nil {
		return nil, err
	}
	return kcs, nil
}

// Group is the planning group.
func (pc *PlanningContext) Group() string {
	return pc.request.Group
}

// Options are the planner options in effect.
func (pc *PlanningContext) Options() *PlannerOptions {
	return pc.opts
}

// InitialConfiguration returns a copy of the complete start configuration.
func (pc *PlanningContext) InitialConfiguration() *referenceframe.Configuration {
	return pc.initial.Copy()
}

// InitialState converts the start configuration into the planner state.
func (pc *PlanningContext) InitialState() (statespace.State, error) {
	s := pc.space.NewState()
	if err := pc.space.CopyToState(pc.initial, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Space is the selected state space.
func (pc *PlanningContext) Space() statespace.StateSpace {
	return pc.space
}

// World is the environment states are checked against.
func (pc *PlanningContext) World() *world.World {
	return pc.world
}

// PathConstraints returns the active path constraints, which may be empty.
func (pc *PlanningContext) PathConstraints() *constraints.KinematicConstraintSet {
	return pc.path
}

// GoalConstraints returns the goal constraints.
func (pc *PlanningContext) GoalConstraints() *constraints.KinematicConstraintSet {
	return pc.goal
}

// MaxSamplingAttempts bounds the draws of a goal sampling run.
func (pc *PlanningContext) MaxSamplingAttempts() int {
	return pc.opts.MaxSamplingAttempts
}

// MaxGoalSamples bounds the goal pool.
func (pc *PlanningContext) MaxGoalSamples() int {
	return pc.opts.MaxGoalSamples
}

// Problem is the problem definition the planner marks when it finds a solution.
func (pc *PlanningContext) Problem() *ProblemDefinition {
	return pc.problem
}

// Checker is the context's state validity checker.
func (pc *PlanningContext) Checker() *validity.Checker {
	return pc.checker
}

// NewStateSampler returns a sampler for the planner's main loop. With path constraints that a constraint sampler
// can handle, draws are biased onto them; otherwise the space's default sampler is used throughout.
func (pc *PlanningContext) NewStateSampler() (*sampler.ConstrainedSampler, error) {
	var cs constraintsampler.ConstraintSampler
	if !pc.path.Empty() {
		var err error
		cs, err = pc.manager.Select(pc.request.Group, pc.path.Constraints())
		switch {
		case errors.Is(err, constraintsampler.ErrNoSampler):
			pc.logger.Debug("no constraint sampler for the path constraints, sampling uniformly")
			cs = nil
		case err != nil:
			return nil, err
		}
	}
	return sampler.NewConstrainedSampler(
		pc.space,
		cs,
		pc.initial,
		pc.opts.MaxStateSamplingAttempts,
		int64(pc.opts.RandomSeed),
		pc.logger.Sublogger("sampler"),
	), nil
}

// NewGoalSampler starts a lazy goal sampler for the goal constraints. It is stopped by Close or when ctx is
// cancelled.
func (pc *PlanningContext) NewGoalSampler(ctx context.Context) (*goalsampler.LazyGoalSampler, error) {
	cs, err := pc.manager.Select(pc.request.Group, pc.goal.Constraints())
	if err != nil {
		return nil, errors.Wrap(err, "goal constraints")
	}
	g, err := goalsampler.NewLazyGoalSampler(goalsampler.Config{
		Space:           pc.space,
		Sampler:         cs,
		Goal:            pc.goal,
		Checker:         pc.checker,
		Initial:         pc.initial,
		Problem:         pc.problem,
		MaxAttempts:     pc.opts.MaxSamplingAttempts,
		MaxSamples:      pc.opts.MaxGoalSamples,
		AttemptsPerDraw: pc.opts.MaxGoalSamplingAttempts,
		Parent:          ctx,
	}, pc.logger.Sublogger("goal_sampler"))
	if err != nil {
		return nil, err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.goalSamplers = append(pc.goalSamplers, g)
	return g, nil
}

// Approximate returns the stored approximation of cs for the planning group, populating it first if needed.
// Concurrent calls for the same constraints share one population.
func (pc *PlanningContext) Approximate(
	ctx context.Context,
	cs *constraints.ConstraintSet,
	opts approximation.BuildOptions,
) (*approximation.ConstraintApproximation, error) {
	ctx, span := trace.StartSpan(ctx, "planningcontext::Approximate")
	defer span.End()

	if pc.request.Cache == nil {
		return nil, errors.New("planning context has no approximation cache")
	}
	strategy, err := constraintsampler.Strategy(cs)
	if err != nil {
		return nil, err
	}
	d, err := constraints.NewDescriptor(cs, pc.request.Group, strategy)
	if err != nil {
		return nil, err
	}
	check, err := newConstraintSet(pc.request.Model, pc.logger, cs)
	if err != nil {
		return nil, err
	}
	return pc.request.Cache.Approximate(ctx, d, func(ctx context.Context) (*approximation.ConstraintApproximation, error) {
		s, err := pc.manager.Build(pc.request.Group, cs, strategy)
		if err != nil {
			return nil, err
		}
		return approximation.SamplerBuilder(d, s, check, pc.initial, opts)(ctx)
	})
}

// SaveApproximations writes the cache to the configured approximations directory.
func (pc *PlanningContext) SaveApproximations() error {
	if pc.request.Cache == nil || pc.opts.ApproximationsDir == "" {
		return errors.New("planning context has no approximation cache or directory")
	}
	return pc.request.Cache.Save(pc.opts.ApproximationsDir)
}

// Close stops every goal sampler the context started.
func (pc *PlanningContext) Close() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, g := range pc.goalSamplers {
		g.Stop()
	}
	pc.goalSamplers = nil
}
