package referenceframe

import (
	spatial "go.viam.com/motionsampling/spatialmath"
)

// Configuration is a complete assignment of values to every variable of a model. A Configuration is a
// working object: it is not safe for concurrent use and each goroutine should own its own copy.
type Configuration struct {
	model  Model
	values []Input
}

// NewConfiguration returns a configuration of m holding a copy of values. A nil values slice yields the
// configuration with every variable at zero.
func NewConfiguration(m Model, values []Input) *Configuration {
	c := &Configuration{model: m, values: make([]Input, len(m.DoF()))}
	copy(c.values, values)
	return c
}

// Model returns the model this configuration belongs to.
func (c *Configuration) Model() Model {
	return c.model
}

// Values returns a copy of every variable value.
func (c *Configuration) Values() []Input {
	return append([]Input(nil), c.values...)
}

// Value returns the value of the variable at idx.
func (c *Configuration) Value(idx int) float64 {
	return c.values[idx].Value
}

// SetValue sets the value of the variable at idx.
func (c *Configuration) SetValue(idx int, v float64) {
	c.values[idx].Value = v
}

// SetValues overwrites every variable value.
func (c *Configuration) SetValues(values []Input) {
	copy(c.values, values)
}

// GroupValues returns the values of the given variable indices, in order.
func (c *Configuration) GroupValues(idxs []int) []float64 {
	out := make([]float64, len(idxs))
	for i, idx := range idxs {
		out[i] = c.values[idx].Value
	}
	return out
}

// SetGroupValues writes vals into the given variable indices.
func (c *Configuration) SetGroupValues(idxs []int, vals []float64) {
	for i, idx := range idxs {
		c.values[idx].Value = vals[i]
	}
}

// Copy returns an independent configuration with the same values.
func (c *Configuration) Copy() *Configuration {
	return NewConfiguration(c.model, c.values)
}

// CopyFrom overwrites this configuration with the values of other.
func (c *Configuration) CopyFrom(other *Configuration) {
	copy(c.values, other.values)
}

// EndEffectorPose runs forward kinematics on the configuration.
func (c *Configuration) EndEffectorPose() (spatial.Pose, error) {
	return c.model.Transform(c.values)
}

// LinkPose returns the world pose of the named frame.
func (c *Configuration) LinkPose(name string) (spatial.Pose, error) {
	poses, err := c.model.LinkPoses(c.values)
	if poses == nil {
		return nil, err
	}
	p, ok := poses[name]
	if !ok {
		return nil, NewFrameMissingError(name)
	}
	return p, nil
}

// SatisfiesBounds reports whether every variable lies inside its limit.
func (c *Configuration) SatisfiesBounds() bool {
	return InputsWithinLimits(c.values, c.model.DoF())
}
