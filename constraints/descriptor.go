package constraints

import (
	"bytes"
	"encoding/hex"
	"math"
	"slices"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	spatial "go.viam.com/motionsampling/spatialmath"
	"go.viam.com/motionsampling/utils"
)

// ErrMalformedDescriptor is returned when descriptor bytes or their hex form cannot be decoded.
var ErrMalformedDescriptor = errors.New("malformed constraint descriptor")

// Descriptor is the canonical byte encoding of a constraint set together with the planning group and the
// tag of the sampling strategy that produced an associated cache entry. Semantically equal inputs always
// produce equal descriptors.
type Descriptor []byte

// Decoded is the content of a descriptor.
type Decoded struct {
	Constraints *ConstraintSet
	Group       string
	Strategy    string
}

var canonicalMarshal = proto.MarshalOptions{Deterministic: true}

// NewDescriptor canonicalizes the constraint set. The set's Name is not part of the descriptor and the order
// in which sub-constraints were added does not matter.
func NewDescriptor(cs *ConstraintSet, group, strategy string) (Descriptor, error) {
	if cs == nil {
		cs = &ConstraintSet{}
	}
	fields := map[string]*structpb.Value{
		"group":    structpb.NewStringValue(group),
		"strategy": structpb.NewStringValue(strategy),
	}
	var err error
	add := func(key string, items []*structpb.Struct) {
		if err != nil || len(items) == 0 {
			return
		}
		var list *structpb.ListValue
		list, err = sortedList(items)
		fields[key] = structpb.NewListValue(list)
	}
	add("joint", mapSlice(cs.Joint, jointToStruct))
	add("position", mapSlice(cs.Position, positionToStruct))
	add("orientation", mapSlice(cs.Orientation, orientationToStruct))
	add("visibility", mapSlice(cs.Visibility, visibilityToStruct))
	if err != nil {
		return nil, err
	}
	root := &structpb.Struct{Fields: fields}
	if err := checkFinite(structpb.NewStructValue(root)); err != nil {
		return nil, err
	}
	return canonicalMarshal.Marshal(root)
}

// Key returns the descriptor as a map key.
func (d Descriptor) Key() string {
	return string(d)
}

// Hex returns the uppercase hex form of the descriptor.
func (d Descriptor) Hex() string {
	return HexEncode(d)
}

// Equal reports whether two descriptors are byte-identical.
func (d Descriptor) Equal(other Descriptor) bool {
	return bytes.Equal(d, other)
}

// Decode parses the descriptor. Bytes that do not parse, or that parse but are not in canonical form, yield
// ErrMalformedDescriptor.
func (d Descriptor) Decode() (*Decoded, error) {
	root := &structpb.Struct{}
	if err := proto.Unmarshal(d, root); err != nil {
		return nil, errors.Wrap(ErrMalformedDescriptor, err.Error())
	}
	out, err := decodeRoot(root)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedDescriptor, err.Error())
	}
	again, err := NewDescriptor(out.Constraints, out.Group, out.Strategy)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedDescriptor, err.Error())
	}
	if !again.Equal(d) {
		return nil, errors.Wrap(ErrMalformedDescriptor, "descriptor is not canonical")
	}
	return out, nil
}

// DescriptorFromHex decodes the hex form of a descriptor and validates its content.
func DescriptorFromHex(s string) (Descriptor, error) {
	raw, err := HexDecode(s)
	if err != nil {
		return nil, err
	}
	d := Descriptor(raw)
	if _, err := d.Decode(); err != nil {
		return nil, err
	}
	return d, nil
}

// HexEncode returns two uppercase hex characters per byte.
func HexEncode(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// HexDecode reverses HexEncode. Only the uppercase alphabet 0-9A-F is accepted.
func HexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.Wrapf(ErrMalformedDescriptor, "odd hex length %d", len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return nil, errors.Wrapf(ErrMalformedDescriptor, "invalid hex character %q at %d", c, i)
		}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedDescriptor, err.Error())
	}
	return b, nil
}

func mapSlice[T any](in []T, f func(*T) *structpb.Struct) []*structpb.Struct {
	out := make([]*structpb.Struct, len(in))
	for i := range in {
		out[i] = f(&in[i])
	}
	return out
}

// sortedList orders items by their canonical bytes, which is a total order over their content.
func sortedList(items []*structpb.Struct) (*structpb.ListValue, error) {
	type keyed struct {
		key []byte
		s   *structpb.Struct
	}
	ks := make([]keyed, len(items))
	for i, s := range items {
		b, err := canonicalMarshal.Marshal(s)
		if err != nil {
			return nil, err
		}
		ks[i] = keyed{b, s}
	}
	slices.SortStableFunc(ks, func(a, b keyed) int { return bytes.Compare(a.key, b.key) })
	values := make([]*structpb.Value, len(ks))
	for i, k := range ks {
		values[i] = structpb.NewStructValue(k.s)
	}
	return &structpb.ListValue{Values: values}, nil
}

func checkFinite(v *structpb.Value) error {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if math.IsNaN(k.NumberValue) || math.IsInf(k.NumberValue, 0) {
			return errors.New("constraint values must be finite")
		}
	case *structpb.Value_ListValue:
		for _, e := range k.ListValue.GetValues() {
			if err := checkFinite(e); err != nil {
				return err
			}
		}
	case *structpb.Value_StructValue:
		for _, e := range k.StructValue.GetFields() {
			if err := checkFinite(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// num folds negative zero into zero so that it cannot split otherwise equal descriptors.
func num(v float64) *structpb.Value {
	if v == 0 {
		v = 0
	}
	return structpb.NewNumberValue(v)
}

func vec(v r3.Vector) *structpb.Value {
	return structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{num(v.X), num(v.Y), num(v.Z)}})
}

func jointToStruct(jc *JointConstraint) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"joint":    structpb.NewStringValue(jc.Joint),
		"position": num(jc.Position),
		"above":    num(jc.ToleranceAbove),
		"below":    num(jc.ToleranceBelow),
		"weight":   num(weightOf(jc.Weight)),
	}}
}

func positionToStruct(pc *PositionConstraint) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"link":   structpb.NewStringValue(pc.Link),
		"offset": vec(pc.TargetOffset),
		"shape":  structpb.NewStringValue(string(pc.Shape)),
		"center": vec(pc.Center),
		"weight": num(weightOf(pc.Weight)),
	}
	// Only the dimension that applies to the shape is semantic.
	if pc.Shape == RegionSphere {
		fields["radius"] = num(pc.Radius)
	} else {
		fields["dims"] = vec(pc.Dims)
	}
	return &structpb.Struct{Fields: fields}
}

func orientationToStruct(oc *OrientationConstraint) *structpb.Struct {
	q := oc.Target
	// Renormalizing an already unit quaternion can move its last bits, so leave those alone.
	if !utils.Float64AlmostEqual(quat.Abs(q), 1, 1e-12) {
		q = spatial.Normalize(q)
	}
	// q and -q are the same rotation.
	if q.Real < 0 || (q.Real == 0 && (q.Imag < 0 || (q.Imag == 0 && (q.Jmag < 0 || (q.Jmag == 0 && q.Kmag < 0))))) {
		q = quat.Scale(-1, q)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"link": structpb.NewStringValue(oc.Link),
		"target": structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{
			num(q.Real), num(q.Imag), num(q.Jmag), num(q.Kmag),
		}}),
		"tol":    vec(r3.Vector{X: oc.AbsXTol, Y: oc.AbsYTol, Z: oc.AbsZTol}),
		"weight": num(weightOf(oc.Weight)),
	}}
}

func visibilityToStruct(vc *VisibilityConstraint) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"sensor":     structpb.NewStringValue(vc.SensorLink),
		"target":     vec(vc.Target),
		"half_angle": num(vc.ConeHalfAngle),
		"max_range":  num(vc.MaxRange),
		"weight":     num(weightOf(vc.Weight)),
	}}
}

// structReader pulls typed fields out of a struct, remembering the first failure.
type structReader struct {
	s   *structpb.Struct
	err error
}

func (r *structReader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = errors.Errorf(format, args...)
	}
}

func (r *structReader) str(key string) string {
	v, ok := r.s.GetFields()[key].GetKind().(*structpb.Value_StringValue)
	if !ok {
		r.fail("field %q is not a string", key)
		return ""
	}
	return v.StringValue
}

func (r *structReader) num(key string) float64 {
	v, ok := r.s.GetFields()[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		r.fail("field %q is not a number", key)
		return 0
	}
	return v.NumberValue
}

func (r *structReader) nums(key string, n int) []float64 {
	l, ok := r.s.GetFields()[key].GetKind().(*structpb.Value_ListValue)
	if !ok || len(l.ListValue.GetValues()) != n {
		r.fail("field %q is not a list of %d numbers", key, n)
		return make([]float64, n)
	}
	out := make([]float64, n)
	for i, e := range l.ListValue.GetValues() {
		v, ok := e.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			r.fail("field %q element %d is not a number", key, i)
			continue
		}
		out[i] = v.NumberValue
	}
	return out
}

func (r *structReader) vec(key string) r3.Vector {
	v := r.nums(key, 3)
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func (r *structReader) structs(key string) []*structReader {
	v, present := r.s.GetFields()[key]
	if !present {
		return nil
	}
	l, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		r.fail("field %q is not a list", key)
		return nil
	}
	out := make([]*structReader, 0, len(l.ListValue.GetValues()))
	for i, e := range l.ListValue.GetValues() {
		s, ok := e.GetKind().(*structpb.Value_StructValue)
		if !ok {
			r.fail("field %q element %d is not a struct", key, i)
			continue
		}
		out = append(out, &structReader{s: s.StructValue})
	}
	return out
}

func (r *structReader) firstErr(children []*structReader) error {
	if r.err != nil {
		return r.err
	}
	for _, c := range children {
		if c.err != nil {
			return c.err
		}
	}
	return nil
}

func decodeRoot(root *structpb.Struct) (*Decoded, error) {
	r := &structReader{s: root}
	out := &Decoded{Constraints: &ConstraintSet{}, Group: r.str("group"), Strategy: r.str("strategy")}
	var children []*structReader

	for _, jr := range r.structs("joint") {
		children = append(children, jr)
		out.Constraints.Joint = append(out.Constraints.Joint, JointConstraint{
			Joint:          jr.str("joint"),
			Position:       jr.num("position"),
			ToleranceAbove: jr.num("above"),
			ToleranceBelow: jr.num("below"),
			Weight:         jr.num("weight"),
		})
	}
	for _, pr := range r.structs("position") {
		children = append(children, pr)
		pc := PositionConstraint{
			Link:         pr.str("link"),
			TargetOffset: pr.vec("offset"),
			Shape:        RegionShape(pr.str("shape")),
			Center:       pr.vec("center"),
			Weight:       pr.num("weight"),
		}
		if pc.Shape == RegionSphere {
			pc.Radius = pr.num("radius")
		} else {
			pc.Dims = pr.vec("dims")
		}
		out.Constraints.Position = append(out.Constraints.Position, pc)
	}
	for _, or := range r.structs("orientation") {
		children = append(children, or)
		q := or.nums("target", 4)
		tol := or.vec("tol")
		out.Constraints.Orientation = append(out.Constraints.Orientation, OrientationConstraint{
			Link:    or.str("link"),
			Target:  quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]},
			AbsXTol: tol.X,
			AbsYTol: tol.Y,
			AbsZTol: tol.Z,
			Weight:  or.num("weight"),
		})
	}
	for _, vr := range r.structs("visibility") {
		children = append(children, vr)
		out.Constraints.Visibility = append(out.Constraints.Visibility, VisibilityConstraint{
			SensorLink:    vr.str("sensor"),
			Target:        vr.vec("target"),
			ConeHalfAngle: vr.num("half_angle"),
			MaxRange:      vr.num("max_range"),
			Weight:        vr.num("weight"),
		})
	}
	if err := r.firstErr(children); err != nil {
		return nil, err
	}
	return out, nil
}
