package protoutils_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"go.viam.com/test"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"go.viam.com/motionsampling/protoutils"
)

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	test.That(t, err, test.ShouldBeNil)
	return s
}

func TestDelimitedProtoWriter(t *testing.T) {
	buffer := &bytes.Buffer{}
	messages := [][]byte{}
	delimitedProtos := protoutils.NewDelimitedProtoWriter[*structpb.Struct](buffer)
	reqs := []*structpb.Struct{
		mustStruct(t, map[string]any{"group": "arm"}),
		mustStruct(t, map[string]any{"group": "wrist", "count": 3.}),
	}
	for _, req := range reqs {
		err := delimitedProtos.Append(req)
		test.That(t, err, test.ShouldBeNil)
		reqBytes, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
		test.That(t, err, test.ShouldBeNil)
		messages = append(messages, reqBytes)
	}

	delimitedBytes := make([]byte, buffer.Len())
	copy(delimitedBytes, buffer.Bytes())
	for _, message := range messages {
		expectedLenBytes := make([]byte, 4)
		messageLen := len(message)
		binary.LittleEndian.PutUint32(expectedLenBytes, uint32(messageLen))
		test.That(t, delimitedBytes[:4], test.ShouldResemble, expectedLenBytes)
		delimitedBytes = delimitedBytes[4:]
		test.That(t, delimitedBytes[:messageLen], test.ShouldResemble, message)
		delimitedBytes = delimitedBytes[messageLen:]
	}
	test.That(t, delimitedBytes, test.ShouldHaveLength, 0)
}

func TestDelimitedProtoReaderAll(t *testing.T) {
	buffer := &bytes.Buffer{}
	delimitedProtos := protoutils.NewDelimitedProtoWriter[*structpb.Struct](buffer)
	reqs := []*structpb.Struct{
		mustStruct(t, map[string]any{"group": "arm"}),
		mustStruct(t, map[string]any{}),
		mustStruct(t, map[string]any{"group": "wrist", "count": 3.}),
	}
	for _, req := range reqs {
		test.That(t, delimitedProtos.Append(req), test.ShouldBeNil)
	}

	var got []*structpb.Struct
	for msg, err := range protoutils.NewDelimitedProtoReader[structpb.Struct](buffer).All() {
		test.That(t, err, test.ShouldBeNil)
		got = append(got, msg)
	}
	test.That(t, got, test.ShouldHaveLength, len(reqs))
	for i, req := range reqs {
		test.That(t, proto.Equal(got[i], req), test.ShouldBeTrue)
	}
	test.That(t, buffer.Len(), test.ShouldEqual, 0)
}

func TestDelimitedProtoReaderTruncated(t *testing.T) {
	buffer := &bytes.Buffer{}
	writer := protoutils.NewDelimitedProtoWriter[*structpb.Struct](buffer)
	test.That(t, writer.Append(mustStruct(t, map[string]any{"group": "arm"})), test.ShouldBeNil)
	test.That(t, writer.Append(mustStruct(t, map[string]any{"group": "wrist"})), test.ShouldBeNil)
	data := buffer.Bytes()[:buffer.Len()-2]

	var count int
	var lastErr error
	for _, err := range protoutils.NewDelimitedProtoReader[structpb.Struct](bytes.NewReader(data)).All() {
		if err != nil {
			lastErr = err
			break
		}
		count++
	}
	test.That(t, count, test.ShouldEqual, 1)
	test.That(t, lastErr, test.ShouldEqual, protoutils.ErrTruncatedStream)
}

func TestStatesRoundTrip(t *testing.T) {
	states := [][]float64{{0, 1.5, -2}, {3, 4, 5.25}}
	buffer := &bytes.Buffer{}
	writer := protoutils.NewDelimitedProtoWriter[*structpb.ListValue](buffer)
	for _, s := range states {
		test.That(t, writer.Append(protoutils.StateToProto(s)), test.ShouldBeNil)
	}

	var got [][]float64
	for msg, err := range protoutils.NewDelimitedProtoReader[structpb.ListValue](bytes.NewReader(buffer.Bytes())).All() {
		test.That(t, err, test.ShouldBeNil)
		s, err := protoutils.StateFromProto(msg)
		test.That(t, err, test.ShouldBeNil)
		got = append(got, s)
	}
	test.That(t, got, test.ShouldResemble, states)

	_, err := protoutils.StateFromProto(&structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue("x")}})
	test.That(t, err, test.ShouldNotBeNil)
}
