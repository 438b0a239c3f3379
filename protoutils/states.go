package protoutils

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// StateToProto converts a state vector into a list of numbers.
func StateToProto(state []float64) *structpb.ListValue {
	values := make([]*structpb.Value, len(state))
	for i, v := range state {
		values[i] = structpb.NewNumberValue(v)
	}
	return &structpb.ListValue{Values: values}
}

// StateFromProto converts a list of numbers back into a state vector. Any non-numeric element is an error.
func StateFromProto(list *structpb.ListValue) ([]float64, error) {
	state := make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, errors.Errorf("state element %d is not a number", i)
		}
		state[i] = n.NumberValue
	}
	return state, nil
}
