// Package wire implements the serial frame format spoken by the brain.
//
// Requests (host to brain):
//
//	C9 36 B8 47 | 56 | opcode | length | payload | CRC16
//
// Replies and unsolicited output (brain to host):
//
//	AA 55 | 56 | length | opcode | ack | payload | CRC16
//
// The length field is one byte when the value is below 0x80, otherwise two
// bytes big endian with the top bit of the first byte set. A request length
// counts the payload; a reply length counts everything after the length
// field. The CRC16 is big endian and covers every preceding byte of the frame.
// Integers inside payloads are little endian.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame header bytes.
var (
	RequestHeader = []byte{0xC9, 0x36, 0xB8, 0x47}
	ReplyHeader   = []byte{0xAA, 0x55}
)

// ExtendedCommand follows the header of every frame.
const ExtendedCommand byte = 0x56

// MaxLength is the largest value the length field can carry.
const MaxLength = 0x7FFF

const crcSize = 2

// Frame is one decoded message. Ack is only meaningful on replies.
type Frame struct {
	Opcode  Opcode
	Ack     Ack
	Payload []byte
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates the stream ended inside a frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorChecksum indicates a CRC mismatch.
	FrameErrorChecksum
	// FrameErrorMalformed indicates an impossible length field.
	FrameErrorMalformed
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

// IsFatal returns true if the stream cannot yield further frames.
// Checksum and length errors only lose the current frame.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial
}

// IsChecksumError reports whether err is a frame CRC mismatch.
func IsChecksumError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == FrameErrorChecksum
}

// EncodeRequest builds a host-to-brain frame.
func EncodeRequest(op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxLength {
		return nil, fmt.Errorf("payload of %d bytes exceeds frame limit %d", len(payload), MaxLength)
	}
	buf := make([]byte, 0, len(RequestHeader)+4+len(payload)+crcSize)
	buf = append(buf, RequestHeader...)
	buf = append(buf, ExtendedCommand, byte(op))
	buf = appendLength(buf, len(payload))
	buf = append(buf, payload...)
	return binary.BigEndian.AppendUint16(buf, CRC16(buf)), nil
}

// EncodeReply builds a brain-to-host frame.
func EncodeReply(op Opcode, ack Ack, payload []byte) ([]byte, error) {
	n := 2 + len(payload) + crcSize
	if n > MaxLength {
		return nil, fmt.Errorf("payload of %d bytes exceeds frame limit", len(payload))
	}
	buf := make([]byte, 0, len(ReplyHeader)+3+n)
	buf = append(buf, ReplyHeader...)
	buf = append(buf, ExtendedCommand)
	buf = appendLength(buf, n)
	buf = append(buf, byte(op), byte(ack))
	buf = append(buf, payload...)
	return binary.BigEndian.AppendUint16(buf, CRC16(buf)), nil
}

func appendLength(buf []byte, n int) []byte {
	if n < 0x80 {
		return append(buf, byte(n))
	}
	return append(buf, byte(n>>8)|0x80, byte(n))
}

// Decoder reads frames from a byte stream, resynchronising on the frame
// header after line noise.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a new frame decoder.
func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{r: br}
}

// ReadReply reads the next brain-to-host frame.
//
// Errors:
//   - io.EOF: stream ended between frames
//   - *FrameError with Kind=FrameErrorPartial: stream ended inside a frame
//   - *FrameError with Kind=FrameErrorChecksum: frame discarded, stream usable
func (d *Decoder) ReadReply() (Frame, error) {
	raw, err := d.sync(ReplyHeader)
	if err != nil {
		return Frame{}, err
	}
	n, raw, err := d.readLength(raw)
	if err != nil {
		return Frame{}, err
	}
	if n < 2+crcSize {
		return Frame{}, &FrameError{Kind: FrameErrorMalformed, Msg: fmt.Sprintf("reply length %d too short", n)}
	}
	raw, err = d.readN(raw, n)
	if err != nil {
		return Frame{}, err
	}
	if err := checkCRC(raw); err != nil {
		return Frame{}, err
	}
	body := raw[len(raw)-n : len(raw)-crcSize]
	return Frame{
		Opcode:  Opcode(body[0]),
		Ack:     Ack(body[1]),
		Payload: body[2:],
	}, nil
}

// ReadRequest reads the next host-to-brain frame.
func (d *Decoder) ReadRequest() (Frame, error) {
	raw, err := d.sync(RequestHeader)
	if err != nil {
		return Frame{}, err
	}
	op, err := d.r.ReadByte()
	if err != nil {
		return Frame{}, partial("failed to read opcode", err)
	}
	raw = append(raw, op)
	n, raw, err := d.readLength(raw)
	if err != nil {
		return Frame{}, err
	}
	raw, err = d.readN(raw, n+crcSize)
	if err != nil {
		return Frame{}, err
	}
	if err := checkCRC(raw); err != nil {
		return Frame{}, err
	}
	return Frame{
		Opcode:  Opcode(op),
		Payload: raw[len(raw)-n-crcSize : len(raw)-crcSize],
	}, nil
}

// sync discards bytes until header followed by ExtendedCommand is seen and
// returns those bytes.
func (d *Decoder) sync(header []byte) ([]byte, error) {
	want := append(append([]byte{}, header...), ExtendedCommand)
	matched := 0
	for matched < len(want) {
		b, err := d.r.ReadByte()
		if err != nil {
			if matched == 0 && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, partial("failed to read frame header", err)
		}
		switch {
		case b == want[matched]:
			matched++
		case b == want[0]:
			matched = 1
		default:
			matched = 0
		}
	}
	return want, nil
}

func (d *Decoder) readLength(raw []byte) (int, []byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, raw, partial("failed to read length", err)
	}
	raw = append(raw, b)
	if b&0x80 == 0 {
		return int(b), raw, nil
	}
	lo, err := d.r.ReadByte()
	if err != nil {
		return 0, raw, partial("failed to read length", err)
	}
	raw = append(raw, lo)
	return int(b&0x7F)<<8 | int(lo), raw, nil
}

func (d *Decoder) readN(raw []byte, n int) ([]byte, error) {
	start := len(raw)
	raw = append(raw, make([]byte, n)...)
	if _, err := io.ReadFull(d.r, raw[start:]); err != nil {
		return nil, partial("failed to read frame body", err)
	}
	return raw, nil
}

func checkCRC(raw []byte) error {
	body := raw[:len(raw)-crcSize]
	want := binary.BigEndian.Uint16(raw[len(body):])
	if got := CRC16(body); got != want {
		return &FrameError{
			Kind: FrameErrorChecksum,
			Msg:  fmt.Sprintf("crc mismatch: computed %04x, frame %04x", got, want),
		}
	}
	return nil
}

func partial(msg string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &FrameError{Kind: FrameErrorPartial, Msg: msg, Err: err}
}
