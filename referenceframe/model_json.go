package referenceframe

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	spatial "go.viam.com/motionsampling/spatialmath"
	"go.viam.com/motionsampling/utils"
)

// ModelConfigJSON represents all supported fields in a kinematics JSON file.
type ModelConfigJSON struct {
	Name   string              `json:"name"`
	Links  []LinkConfig        `json:"links,omitempty"`
	Joints []JointConfig       `json:"joints,omitempty"`
	Groups map[string][]string `json:"groups,omitempty"`
}

// LinkConfig is a fixed transform between two frames, optionally carrying a collision sphere.
type LinkConfig struct {
	ID          string        `json:"id"`
	Parent      string        `json:"parent"`
	Translation r3.Vector     `json:"translation"`
	Orientation *spatial.R4AA `json:"orientation,omitempty"`
	Radius      float64       `json:"radius,omitempty"`
}

// JointConfig is a single-variable joint. Revolute limits are given in degrees, prismatic limits in mm.
type JointConfig struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Parent string    `json:"parent"`
	Axis   r3.Vector `json:"axis"`
	Max    float64   `json:"max"`
	Min    float64   `json:"min"`
}

// ToFrame converts a JointConfig into a Frame.
func (cfg *JointConfig) ToFrame() (Frame, error) {
	switch cfg.Type {
	case "revolute":
		return NewRotationalFrame(cfg.ID, cfg.Axis, Limit{Min: utils.DegToRad(cfg.Min), Max: utils.DegToRad(cfg.Max)})
	case "prismatic":
		return NewTranslationalFrame(cfg.ID, cfg.Axis, Limit{Min: cfg.Min, Max: cfg.Max})
	default:
		return nil, errors.Errorf("unsupported joint type detected: %q", cfg.Type)
	}
}

// ToStaticFrame converts a LinkConfig into a static Frame.
func (cfg *LinkConfig) ToStaticFrame() (Frame, error) {
	var o spatial.Orientation
	if cfg.Orientation != nil {
		o = cfg.Orientation
	}
	return NewStaticFrame(cfg.ID, spatial.NewPose(cfg.Translation, o))
}

// UnmarshalModelJSON will parse the given JSON data into a kinematics model. modelName sets the name of the model,
// will use the name from the JSON if string is empty.
func UnmarshalModelJSON(jsonData []byte, modelName string) (*SimpleModel, error) {
	// empty data probably means that the robot component has no model information
	if len(jsonData) == 0 {
		return nil, ErrNoModelInformation
	}

	cfg := &ModelConfigJSON{}
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal json file")
	}
	return cfg.ParseConfig(modelName)
}

// ParseModelJSONFile will read a given file and then parse the contained JSON data.
func ParseModelJSONFile(filename, modelName string) (*SimpleModel, error) {
	//nolint:gosec
	jsonData, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read json file")
	}
	return UnmarshalModelJSON(jsonData, modelName)
}

// ParseConfig converts the ModelConfig struct into a full Model with the name modelName.
func (cfg *ModelConfigJSON) ParseConfig(modelName string) (*SimpleModel, error) {
	if modelName == "" {
		modelName = cfg.Name
	}
	model := NewSimpleModel(modelName)

	transforms := map[string]Frame{}
	// Make a map of parents for each element for post-process, to allow items to be processed out of order
	parentMap := map[string]string{}

	for _, link := range cfg.Links {
		if link.ID == World {
			return nil, errors.Errorf("cannot name a link %q, it is a reserved word", World)
		}
		f, err := link.ToStaticFrame()
		if err != nil {
			return nil, err
		}
		transforms[link.ID] = f
		parentMap[link.ID] = link.Parent
		if link.Radius > 0 {
			model.radii[link.ID] = link.Radius
		}
	}
	for _, joint := range cfg.Joints {
		if joint.ID == World {
			return nil, errors.Errorf("cannot name a joint %q, it is a reserved word", World)
		}
		f, err := joint.ToFrame()
		if err != nil {
			return nil, err
		}
		transforms[joint.ID] = f
		parentMap[joint.ID] = joint.Parent
	}

	ordered, err := sortTransforms(transforms, parentMap)
	if err != nil {
		return nil, err
	}
	model.SetOrdTransforms(ordered)

	for name, vars := range cfg.Groups {
		if err := model.AddGroup(name, vars); err != nil {
			return nil, errors.Wrapf(err, "group %q", name)
		}
	}
	return model, nil
}

// Create an ordered list of transforms given a mapping of child to parent frames.
func sortTransforms(transforms map[string]Frame, parents map[string]string) ([]Frame, error) {
	// find the end effector first - determine which transforms have no children
	ees := map[string]string{}
	for child, parent := range parents {
		ees[child] = parent
	}
	for _, parent := range parents {
		delete(ees, parent)
	}
	if len(ees) != 1 {
		return nil, fmt.Errorf("%w, have %v", ErrNeedOneEndEffector, ees)
	}

	var curr string
	for ee := range ees {
		curr = ee
	}
	seen := map[string]bool{curr: true}
	orderedTransforms := []Frame{}
	for i := 0; i < len(parents); i++ {
		frame, ok := transforms[curr]
		if !ok {
			return nil, NewFrameMissingError(curr)
		}
		orderedTransforms = append(orderedTransforms, frame)

		parent, ok := parents[curr]
		if !ok {
			return nil, errors.Errorf("frame %q has no parent", curr)
		}
		if parent == World {
			break
		}
		if seen[parent] {
			return nil, ErrCircularReference
		}
		seen[parent] = true
		curr = parent
	}
	if len(orderedTransforms) != len(transforms) {
		return nil, errors.Errorf("model has %d frames but only %d reach %q", len(transforms), len(orderedTransforms), World)
	}

	// After the above loop, the transforms are in reverse order, so we reverse the list.
	for i, j := 0, len(orderedTransforms)-1; i < j; i, j = i+1, j-1 {
		orderedTransforms[i], orderedTransforms[j] = orderedTransforms[j], orderedTransforms[i]
	}
	return orderedTransforms, nil
}
