package constraintsampler

import (
	"context"
	"math"
	"math/rand"
	"slices"

	"github.com/pkg/errors"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/referenceframe"
)

// JointSampler samples each constrained variable inside the intersection of its constraint window and its
// limits. The group's other variables are drawn uniformly.
type JointSampler struct {
	groupInfo
	cs      *constraints.ConstraintSet
	windows []jointWindow
	rSeed   *rand.Rand
}

type jointWindow struct {
	idx int
	referenceframe.Limit
}

// NewJointSampler returns a sampler for the joint constraints of cs. It fails if cs has none, if a constraint
// names a variable outside the group, or if a window does not intersect its limits.
func NewJointSampler(model referenceframe.Model, group string, cs *constraints.ConstraintSet, seed int64) (*JointSampler, error) {
	if len(cs.Joint) == 0 {
		return nil, errors.New("joint sampler needs at least one joint constraint")
	}
	gi, err := newGroupInfo(model, group)
	if err != nil {
		return nil, err
	}
	inGroup := map[int]int{}
	for i, idx := range gi.idxs {
		inGroup[idx] = i
	}
	windows := map[int]referenceframe.Limit{}
	for _, jc := range cs.Joint {
		idx, ok := model.VariableIndex(jc.Joint)
		if !ok {
			return nil, errors.Errorf("unknown variable %q", jc.Joint)
		}
		gIdx, ok := inGroup[idx]
		if !ok {
			return nil, errors.Errorf("variable %q is not in group %q", jc.Joint, group)
		}
		w, ok := windows[idx]
		if !ok {
			w = gi.limits[gIdx]
		}
		w.Min = math.Max(w.Min, jc.Position-jc.ToleranceBelow)
		w.Max = math.Min(w.Max, jc.Position+jc.ToleranceAbove)
		if w.Min > w.Max {
			return nil, errors.Errorf("joint constraints on %q cannot be satisfied within its limits", jc.Joint)
		}
		windows[idx] = w
	}
	ordered := make([]jointWindow, 0, len(windows))
	for idx, w := range windows {
		ordered = append(ordered, jointWindow{idx, w})
	}
	slices.SortFunc(ordered, func(a, b jointWindow) int { return a.idx - b.idx })
	return &JointSampler{
		groupInfo: gi,
		cs:        &constraints.ConstraintSet{Joint: cs.Joint},
		windows:   ordered,
		//nolint:gosec
		rSeed: rand.New(rand.NewSource(seed)),
	}, nil
}

// Name returns JointStrategy.
func (s *JointSampler) Name() string {
	return JointStrategy
}

// Constraints returns the joint constraints being sampled.
func (s *JointSampler) Constraints() *constraints.ConstraintSet {
	return s.cs
}

// Sample draws one configuration. A window that fits inside the limits always succeeds on the first attempt.
func (s *JointSampler) Sample(_ context.Context, out, reference *referenceframe.Configuration, attempts int) bool {
	if attempts < 1 {
		return false
	}
	out.CopyFrom(reference)
	s.uniform(out, s.rSeed)
	s.constrain(out)
	return true
}

// constrain redraws only the constrained variables.
func (s *JointSampler) constrain(out *referenceframe.Configuration) {
	for _, w := range s.windows {
		lo, _ := w.Finite()
		out.SetValue(w.idx, lo+s.rSeed.Float64()*w.Range())
	}
}

// ConstrainedIndices returns the variables whose values the sampler pins to windows.
func (s *JointSampler) ConstrainedIndices() []int {
	idxs := make([]int, 0, len(s.windows))
	for _, w := range s.windows {
		idxs = append(idxs, w.idx)
	}
	return idxs
}
