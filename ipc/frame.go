// Package ipc frames brainlink events for external viewers.
//
// A frame is a 4-byte big-endian length prefix followed by a msgpack map
// with a "type" discriminator. `brainlink terminal --ipc` writes output
// frames; `brainlink upload --ipc` writes progress frames and a final
// result frame.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (1 MiB), including length prefix.
	MaxFrameSize = 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	OutputType   = "output"
	ProgressType = "progress"
	ResultType   = "result"
)

// OutputFrame carries unsolicited output from the user program.
type OutputFrame struct {
	Type string `msgpack:"type"`
	Seq  int64  `msgpack:"seq"`
	Ts   string `msgpack:"ts"`
	Port string `msgpack:"port,omitempty"`
	Data []byte `msgpack:"data"`
}

// ProgressFrame reports an upload state change or acknowledged chunk.
type ProgressFrame struct {
	Type       string `msgpack:"type"`
	UploadID   string `msgpack:"upload_id"`
	Slot       int    `msgpack:"slot"`
	State      string `msgpack:"state"`
	Mode       string `msgpack:"mode,omitempty"`
	BytesSent  int64  `msgpack:"bytes_sent"`
	TotalBytes int64  `msgpack:"total_bytes"`
}

// ResultFrame is the last frame of an upload stream.
type ResultFrame struct {
	Type        string `msgpack:"type"`
	UploadID    string `msgpack:"upload_id,omitempty"`
	Slot        int    `msgpack:"slot"`
	Outcome     string `msgpack:"outcome"`
	Message     string `msgpack:"message,omitempty"`
	Fingerprint string `msgpack:"fingerprint,omitempty"`
	ExitCode    int    `msgpack:"exit_code"`
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorUnknownType indicates a well-formed frame of unknown type.
	FrameErrorUnknownType
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the stream cannot continue past this error.
// Partial and oversized frames lose framing; the others skip one frame.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameEncoder writes length-prefixed msgpack frames. It is safe for
// concurrent use; frames are never interleaved.
type FrameEncoder struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame encodes v with msgpack and writes it as one frame.
func (e *FrameEncoder) WriteFrame(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.writer.Write(buf)
	return err
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame and returns its msgpack payload.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}
	return payload, nil
}

// frameTypeHeader peeks at the type field.
type frameTypeHeader struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into *OutputFrame, *ProgressFrame or
// *ResultFrame according to its type field.
func DecodeFrame(payload []byte) (any, error) {
	var header frameTypeHeader
	if err := msgpack.Unmarshal(payload, &header); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	var target any
	switch header.Type {
	case OutputType:
		target = &OutputFrame{}
	case ProgressType:
		target = &ProgressFrame{}
	case ResultType:
		target = &ResultFrame{}
	default:
		return nil, &FrameError{
			Kind: FrameErrorUnknownType,
			Msg:  fmt.Sprintf("unknown frame type %q", header.Type),
		}
	}
	if err := msgpack.Unmarshal(payload, target); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode " + header.Type + " frame",
			Err:  err,
		}
	}
	return target, nil
}
