// Package protoutils reads and writes length-delimited protobuf streams and converts between
// sampled states and their protobuf form.
package protoutils

import (
	"bufio"
	"encoding/binary"
	"io"
	"iter"
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// ErrTruncatedStream is yielded when a stream ends in the middle of a message.
var ErrTruncatedStream = errors.New("delimited proto stream is truncated")

// DelimitedProtoWriter writes proto messages to an [io.Writer]. Each message is
// prefixed by its size in bytes so individual messages can later be retrieved.
// See also: [DelimitedProtoReader].
type DelimitedProtoWriter[M proto.Message] struct {
	writer io.Writer
	opts   proto.MarshalOptions
}

// RawDelimitedProtoReader reads proto messages from an [io.Reader] containing
// contents created by [DelimitedProtoWriter] and returns the encoded messages
// as byte slices.
type RawDelimitedProtoReader struct {
	reader io.Reader
}

// DelimitedProtoReader iterates over proto messages from an [io.Reader] with
// contents created by [DelimitedProtoWriter], unmarshaling each one.
type DelimitedProtoReader[T any, M interface {
	*T
	proto.Message
}] struct {
	RawDelimitedProtoReader
}

// NewDelimitedProtoWriter creates a [DelimitedProtoWriter]. Messages are marshaled deterministically
// so that equal messages always produce equal bytes.
func NewDelimitedProtoWriter[M proto.Message](writer io.Writer) *DelimitedProtoWriter[M] {
	return &DelimitedProtoWriter[M]{writer: writer, opts: proto.MarshalOptions{Deterministic: true}}
}

// NewRawDelimitedProtoReader creates a [RawDelimitedProtoReader].
func NewRawDelimitedProtoReader(reader io.Reader) *RawDelimitedProtoReader {
	return &RawDelimitedProtoReader{reader}
}

// NewDelimitedProtoReader creates a [DelimitedProtoReader].
func NewDelimitedProtoReader[T any, M interface {
	*T
	proto.Message
}](reader io.Reader) *DelimitedProtoReader[T, M] {
	return &DelimitedProtoReader[T, M]{RawDelimitedProtoReader{reader}}
}

// Close will close the underlying writer if it is a [io.Closer]. Otherwise it
// is a noop.
func (o *DelimitedProtoWriter[_]) Close() error {
	if closer, ok := o.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Append marshals the provided message and writes it to the underlying
// [io.Writer].
func (o *DelimitedProtoWriter[M]) Append(message M) error {
	messageBytes, err := o.opts.Marshal(message)
	if err != nil {
		return err
	}
	messageLenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(messageLenBytes, uint32(len(messageBytes)))
	for _, buffer := range [][]byte{messageLenBytes, messageBytes} {
		if _, err := o.writer.Write(buffer); err != nil {
			return err
		}
	}
	return nil
}

// Close will close the underlying reader if it is a [io.Closer]. Otherwise it
// is a noop.
func (o *RawDelimitedProtoReader) Close() error {
	if closer, ok := o.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// All returns an [iter.Seq2] over the messages of the stream, each freshly allocated so the caller
// may keep it. A message that fails to unmarshal, or a truncated tail, is yielded as an error and
// ends the iteration.
func (o *DelimitedProtoReader[T, M]) All() iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		for messageBytes, err := range o.RawDelimitedProtoReader.All() {
			if err != nil {
				yield(nil, err)
				return
			}
			message := M(new(T))
			if err := proto.Unmarshal(messageBytes, message); err != nil {
				yield(nil, errors.Wrap(err, "unmarshaling delimited message"))
				return
			}
			if !yield(message, nil) {
				return
			}
		}
	}
}

// All returns an [iter.Seq2] that reads from the underlying [io.Reader] and
// iterates over the individual messages inside. The []byte yielded may be
// overwritten on subsequent iterations.
func (o *RawDelimitedProtoReader) All() iter.Seq2[[]byte, error] {
	// 2 GiB, the protobuf message size limit
	const protoMaxBytes = 1024 * 1024 * 1024 * 2
	// Max message size + 4 bytes for the length header
	const bufferMaxSize = protoMaxBytes + 4
	// Fall back to max int size if necessary so the 32-bit tests pass.
	const realMaxSize = min(bufferMaxSize, math.MaxInt)
	return func(yield func([]byte, error) bool) {
		scanner := bufio.NewScanner(o.reader)
		scanner.Buffer(nil, realMaxSize)
		scanner.Split(splitMessages)

		for scanner.Scan() {
			if !yield(scanner.Bytes(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func splitMessages(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) == 0 && atEOF {
		return 0, nil, nil
	}
	if len(data) < 4 {
		if atEOF {
			return 0, nil, ErrTruncatedStream
		}
		return 0, nil, nil
	}
	messageSize := binary.LittleEndian.Uint32(data[:4])
	messageBytes := data[4:]
	if uint64(len(messageBytes)) < uint64(messageSize) {
		if atEOF {
			return 0, nil, ErrTruncatedStream
		}
		// Don't have the entire message in the buffer, request bufio read more in
		// and try again.
		return 0, nil, nil
	}
	messageBytes = messageBytes[:messageSize]
	return int(messageSize) + 4, messageBytes, nil
}
