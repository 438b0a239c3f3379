package constraints

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/referenceframe"
)

// KinematicConstraintSet decides a growing collection of constraints against configurations of one model.
// It is safe for concurrent Decide calls once no further Add calls are made.
type KinematicConstraintSet struct {
	model  referenceframe.Model
	logger logging.Logger

	all        *ConstraintSet
	jointIdx   []int
	frameNames map[string]bool
}

// NewKinematicConstraintSet returns an empty set for the given model.
func NewKinematicConstraintSet(model referenceframe.Model, logger logging.Logger) (*KinematicConstraintSet, error) {
	poses, err := model.LinkPoses(make([]referenceframe.Input, len(model.DoF())))
	if poses == nil {
		return nil, errors.Wrap(err, "cannot enumerate model frames")
	}
	names := make(map[string]bool, len(poses))
	for name := range poses {
		names[name] = true
	}
	return &KinematicConstraintSet{
		model:      model,
		logger:     logger,
		all:        &ConstraintSet{},
		frameNames: names,
	}, nil
}

// Add appends every constraint of cs after checking that each references something the model has.
// Nothing is added if any constraint is invalid.
func (kcs *KinematicConstraintSet) Add(cs *ConstraintSet) error {
	if cs == nil {
		return nil
	}
	var errAll error
	idxs := make([]int, 0, len(cs.Joint))
	for _, jc := range cs.Joint {
		idx, ok := kcs.model.VariableIndex(jc.Joint)
		if !ok {
			errAll = multierr.Append(errAll, errors.Errorf("joint constraint references unknown variable %q", jc.Joint))
			continue
		}
		if jc.ToleranceAbove < 0 || jc.ToleranceBelow < 0 {
			errAll = multierr.Append(errAll, errors.Errorf("joint constraint on %q has a negative tolerance", jc.Joint))
		}
		idxs = append(idxs, idx)
	}
	check := func(kind, link string) {
		if !kcs.frameNames[link] {
			errAll = multierr.Append(errAll, errors.Errorf("%s constraint references unknown link %q", kind, link))
		}
	}
	for _, pc := range cs.Position {
		check("position", pc.Link)
		if pc.Shape != RegionBox && pc.Shape != RegionSphere {
			errAll = multierr.Append(errAll, errors.Errorf("unknown region shape %q", pc.Shape))
		}
	}
	for _, oc := range cs.Orientation {
		check("orientation", oc.Link)
	}
	for _, vc := range cs.Visibility {
		check("visibility", vc.SensorLink)
	}
	if errAll != nil {
		return errAll
	}
	kcs.all = kcs.all.Merge(cs)
	kcs.jointIdx = append(kcs.jointIdx, idxs...)
	return nil
}

// AddDescriptor decodes a descriptor and adds the constraints it carries.
func (kcs *KinematicConstraintSet) AddDescriptor(d Descriptor) error {
	decoded, err := d.Decode()
	if err != nil {
		return err
	}
	return kcs.Add(decoded.Constraints)
}

// Empty reports whether the set has no constraints; an empty set is satisfied by every configuration.
func (kcs *KinematicConstraintSet) Empty() bool {
	return kcs.all.Empty()
}

// Constraints returns the constraints added so far.
func (kcs *KinematicConstraintSet) Constraints() *ConstraintSet {
	return kcs.all
}

// Model returns the model the set decides against.
func (kcs *KinematicConstraintSet) Model() referenceframe.Model {
	return kcs.model
}

// Decide evaluates every constraint against cfg. Satisfied is the conjunction and Distance the sum of the
// individual distances. When verbose, each failing constraint is logged.
func (kcs *KinematicConstraintSet) Decide(cfg *referenceframe.Configuration, verbose bool) Result {
	res := Result{Satisfied: true}
	merge := func(r Result, what string) {
		res.Distance += r.Distance
		if !r.Satisfied {
			res.Satisfied = false
			if verbose {
				kcs.logger.Infof("constraint %s violated, distance %.6f", what, r.Distance)
			}
		}
	}
	for i := range kcs.all.Joint {
		jc := &kcs.all.Joint[i]
		merge(jc.decide(cfg.Value(kcs.jointIdx[i])), "joint "+jc.Joint)
	}
	if len(kcs.all.Position)+len(kcs.all.Orientation)+len(kcs.all.Visibility) == 0 {
		return res
	}

	poses, err := kcs.model.LinkPoses(cfg.Values())
	if poses == nil {
		if verbose {
			kcs.logger.Infow("cannot compute link poses for constraint check", "error", err)
		}
		return Result{Satisfied: false, Distance: res.Distance}
	}
	for i := range kcs.all.Position {
		pc := &kcs.all.Position[i]
		link, err := linkPose(poses, pc.Link)
		if err != nil {
			return Result{}
		}
		merge(pc.decide(link), "position on "+pc.Link)
	}
	for i := range kcs.all.Orientation {
		oc := &kcs.all.Orientation[i]
		link, err := linkPose(poses, oc.Link)
		if err != nil {
			return Result{}
		}
		merge(oc.decide(link), "orientation on "+oc.Link)
	}
	for i := range kcs.all.Visibility {
		vc := &kcs.all.Visibility[i]
		sensor, err := linkPose(poses, vc.SensorLink)
		if err != nil {
			return Result{}
		}
		merge(vc.decide(sensor), "visibility from "+vc.SensorLink)
	}
	return res
}
