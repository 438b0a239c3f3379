package planningcontext

import (
	"encoding/json"

	"github.com/pkg/errors"

	"go.viam.com/motionsampling/utils"
)

// default values for planning options.
const (
	// Draws the goal sampler may make in one run.
	defaultMaxSamplingAttempts = 1000

	// Goal states to collect before the goal sampler stops.
	defaultMaxGoalSamples = 10

	// Attempt budget handed to the constraint sampler for each goal draw.
	defaultMaxGoalSamplingAttempts = 1000

	// Attempt budget for each constrained state draw before falling back to uniform sampling.
	defaultMaxStateSamplingAttempts = 4

	// random seed.
	defaultRandomSeed = 0

	defaultIKIterations = 150
	defaultIKRestarts   = 4
)

var (
	maxSamplingAttempts = defaultMaxSamplingAttempts
	maxGoalSamples      = defaultMaxGoalSamples
	verboseValidity     = false
)

func init() {
	maxSamplingAttempts = utils.GetenvInt("MS_MAX_SAMPLING_ATTEMPTS", maxSamplingAttempts)
	maxGoalSamples = utils.GetenvInt("MS_MAX_GOAL_SAMPLES", maxGoalSamples)
	verboseValidity = utils.GetenvBool("MS_VERBOSE_VALIDITY", verboseValidity)
}

// NewBasicPlannerOptions specifies a set of basic options for a planning context.
func NewBasicPlannerOptions() *PlannerOptions {
	return &PlannerOptions{
		MaxSamplingAttempts:      maxSamplingAttempts,
		MaxGoalSamples:           maxGoalSamples,
		MaxGoalSamplingAttempts:  defaultMaxGoalSamplingAttempts,
		MaxStateSamplingAttempts: defaultMaxStateSamplingAttempts,
		RandomSeed:               defaultRandomSeed,
		VerboseValidity:          verboseValidity,
		IKIterations:             defaultIKIterations,
		IKRestarts:               defaultIKRestarts,
	}
}

// PlannerOptions configure the samplers and checker of a planning context.
type PlannerOptions struct {
	// Total number of goal draws before the goal sampler gives up.
	MaxSamplingAttempts int `json:"max_sampling_attempts"`

	// Number of goal states to collect.
	MaxGoalSamples int `json:"max_goal_samples"`

	// Attempts the constraint sampler may make for each goal draw.
	MaxGoalSamplingAttempts int `json:"max_goal_sampling_attempts"`

	// Attempts the constraint sampler may make for each state draw.
	MaxStateSamplingAttempts int `json:"max_state_sampling_attempts"`

	// The random seed used by every sampler of the context. Identical inputs and seeds give identical samples.
	RandomSeed int `json:"rseed"`

	// Log the reason each rejected state is invalid.
	VerboseValidity bool `json:"verbose_validity"`

	// Directory approximations are loaded from when the context is built. Empty disables loading.
	ApproximationsDir string `json:"approximations_dir"`

	// States whose clearance from obstacles is below this many mm are treated as colliding.
	CollisionBufferMM float64 `json:"collision_buffer_mm"`

	// Gradient steps per IK attempt, and the number of randomly seeded retries. Both must be positive.
	IKIterations int `json:"ik_iterations"`
	IKRestarts   int `json:"ik_restarts"`

	// Orientation weight of pose space distances, mm per radian. Zero uses the pose space default.
	OrientationWeight float64 `json:"orientation_weight"`
}

// NewPlannerOptionsFromExtra returns basic default settings updated by overridden parameters
// found in extra.
func NewPlannerOptionsFromExtra(extra map[string]interface{}) (*PlannerOptions, error) {
	opt := NewBasicPlannerOptions()

	jsonString, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(jsonString, opt); err != nil {
		return nil, err
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return opt, nil
}

// Validate rejects option values no context can run with.
func (p *PlannerOptions) Validate() error {
	switch {
	case p.MaxSamplingAttempts <= 0:
		return errors.New("max_sampling_attempts must be positive")
	case p.MaxGoalSamples <= 0:
		return errors.New("max_goal_samples must be positive")
	case p.MaxGoalSamplingAttempts <= 0:
		return errors.New("max_goal_sampling_attempts must be positive")
	case p.MaxStateSamplingAttempts <= 0:
		return errors.New("max_state_sampling_attempts must be positive")
	case p.CollisionBufferMM < 0:
		return errors.New("collision_buffer_mm can't be negative")
	case p.IKIterations <= 0 || p.IKRestarts <= 0:
		return errors.New("ik_iterations and ik_restarts must be positive")
	case p.OrientationWeight < 0:
		return errors.New("orientation_weight can't be negative")
	}
	return nil
}
