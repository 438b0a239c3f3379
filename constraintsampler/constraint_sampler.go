// Package constraintsampler draws configurations that satisfy a constraint set directly, rather than by
// rejection from the whole configuration space.
package constraintsampler

import (
	"context"
	"math/rand"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/referenceframe"
)

// Sampling strategy names. The name of the sampler that produced an approximation is its descriptor tag.
const (
	JointStrategy         = "joint"
	IKStrategy            = "ik"
	UnionStrategy         = "union"
	ApproximationStrategy = "approximation"
)

// ConstraintSampler produces configurations of one planning group meant to satisfy a constraint set.
// Samplers own a random source and are not safe for concurrent use.
type ConstraintSampler interface {
	// Name is the strategy name.
	Name() string
	// Group is the planning group whose variables the sampler writes.
	Group() string
	// Constraints are the constraints the sampler targets.
	Constraints() *constraints.ConstraintSet
	// Sample writes a candidate into out, seeding from reference. Variables outside the group are copied from
	// reference. It makes at most attempts tries and reports whether one succeeded. It gives up early, reporting
	// failure, once ctx is done.
	Sample(ctx context.Context, out, reference *referenceframe.Configuration, attempts int) bool
}

// StateSource is a read-only collection of group states, such as a stored approximation.
type StateSource interface {
	Len() int
	State(i int) []float64
}

type groupInfo struct {
	model  referenceframe.Model
	group  string
	idxs   []int
	limits []referenceframe.Limit
}

func newGroupInfo(model referenceframe.Model, group string) (groupInfo, error) {
	idxs, err := model.Group(group)
	if err != nil {
		return groupInfo{}, err
	}
	all := model.DoF()
	limits := make([]referenceframe.Limit, len(idxs))
	for i, idx := range idxs {
		limits[i] = all[idx]
	}
	return groupInfo{model: model, group: group, idxs: idxs, limits: limits}, nil
}

func (g groupInfo) Group() string {
	return g.group
}

func (g groupInfo) uniform(out *referenceframe.Configuration, rSeed *rand.Rand) {
	for i, idx := range g.idxs {
		out.SetValue(idx, g.limits[i].Sample(rSeed))
	}
}
