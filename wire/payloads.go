package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pithecene-io/brainlink/types"
)

// Fixed string widths in metadata payloads, including the NUL terminator.
const (
	NameWidth        = 24
	DescriptionWidth = 64
	KeyWidth         = 32
)

var le = binary.LittleEndian

// SlotInfo is the QuerySlot reply.
type SlotInfo struct {
	Slot        uint8
	Occupied    bool
	Kind        types.ImageKind
	Size        uint32
	Fingerprint types.Fingerprint
	// MaxChunk is the largest WriteChunk data size the device accepts.
	MaxChunk uint16
}

const slotInfoSize = 1 + 1 + 1 + 4 + types.FingerprintSize + 2

// SlotQuery encodes a QuerySlot request.
func SlotQuery(slot uint8) []byte {
	return []byte{slot}
}

// EncodeSlotInfo encodes a QuerySlot reply payload.
func EncodeSlotInfo(s SlotInfo) []byte {
	buf := make([]byte, 0, slotInfoSize)
	buf = append(buf, s.Slot, boolByte(s.Occupied), s.Kind.Code())
	buf = le.AppendUint32(buf, s.Size)
	buf = append(buf, s.Fingerprint[:]...)
	return le.AppendUint16(buf, s.MaxChunk)
}

// DecodeSlotInfo decodes a QuerySlot reply payload.
func DecodeSlotInfo(p []byte) (SlotInfo, error) {
	if len(p) < slotInfoSize {
		return SlotInfo{}, short("slot info", len(p), slotInfoSize)
	}
	s := SlotInfo{
		Slot:     p[0],
		Occupied: p[1] != 0,
		Kind:     types.ImageKindFromCode(p[2]),
		Size:     le.Uint32(p[3:7]),
	}
	copy(s.Fingerprint[:], p[7:7+types.FingerprintSize])
	s.MaxChunk = le.Uint16(p[7+types.FingerprintSize:])
	return s, nil
}

// BeginTransfer opens a write to a slot.
type BeginTransfer struct {
	Slot        uint8
	Mode        types.TransferMode
	Kind        types.ImageKind
	Compressed  bool
	PayloadSize uint32
	ImageSize   uint32
	LoadAddress uint32
	// Reference is the resident image a differential payload applies to.
	Reference types.Fingerprint
	// Target is the fingerprint of the image once applied.
	Target types.Fingerprint
}

const beginSize = 4 + 12 + 2*types.FingerprintSize

// Encode encodes the BeginTransfer payload.
func (b BeginTransfer) Encode() []byte {
	buf := make([]byte, 0, beginSize)
	buf = append(buf, b.Slot, b.Mode.Code(), b.Kind.Code(), boolByte(b.Compressed))
	buf = le.AppendUint32(buf, b.PayloadSize)
	buf = le.AppendUint32(buf, b.ImageSize)
	buf = le.AppendUint32(buf, b.LoadAddress)
	buf = append(buf, b.Reference[:]...)
	return append(buf, b.Target[:]...)
}

// DecodeBeginTransfer decodes a BeginTransfer payload.
func DecodeBeginTransfer(p []byte) (BeginTransfer, error) {
	if len(p) < beginSize {
		return BeginTransfer{}, short("begin transfer", len(p), beginSize)
	}
	b := BeginTransfer{
		Slot:        p[0],
		Mode:        types.TransferFull,
		Kind:        types.ImageKindFromCode(p[2]),
		Compressed:  p[3] != 0,
		PayloadSize: le.Uint32(p[4:8]),
		ImageSize:   le.Uint32(p[8:12]),
		LoadAddress: le.Uint32(p[12:16]),
	}
	if p[1] == types.TransferDifferential.Code() {
		b.Mode = types.TransferDifferential
	}
	copy(b.Reference[:], p[16:])
	copy(b.Target[:], p[16+types.FingerprintSize:])
	return b, nil
}

// Chunk encodes a WriteChunk payload.
func Chunk(offset uint32, data []byte) []byte {
	buf := make([]byte, 0, 4+len(data))
	buf = le.AppendUint32(buf, offset)
	return append(buf, data...)
}

// DecodeChunk splits a WriteChunk payload.
func DecodeChunk(p []byte) (uint32, []byte, error) {
	if len(p) < 4 {
		return 0, nil, short("write chunk", len(p), 4)
	}
	return le.Uint32(p), p[4:], nil
}

// ChunkAck encodes the WriteChunk reply, which echoes the offset written.
func ChunkAck(offset uint32) []byte {
	return le.AppendUint32(nil, offset)
}

// DecodeChunkAck decodes the echoed offset.
func DecodeChunkAck(p []byte) (uint32, error) {
	if len(p) < 4 {
		return 0, short("chunk ack", len(p), 4)
	}
	return le.Uint32(p), nil
}

// SlotCommand encodes the single-byte slot payload used by EndTransfer,
// Verify and EraseSlot.
func SlotCommand(slot uint8) []byte {
	return []byte{slot}
}

// VerifyResult is the Verify reply: what the device now holds.
type VerifyResult struct {
	Fingerprint types.Fingerprint
	Size        uint32
}

// Encode encodes the Verify reply payload.
func (v VerifyResult) Encode() []byte {
	buf := append([]byte{}, v.Fingerprint[:]...)
	return le.AppendUint32(buf, v.Size)
}

// DecodeVerifyResult decodes a Verify reply payload.
func DecodeVerifyResult(p []byte) (VerifyResult, error) {
	const want = types.FingerprintSize + 4
	if len(p) < want {
		return VerifyResult{}, short("verify", len(p), want)
	}
	var v VerifyResult
	copy(v.Fingerprint[:], p)
	v.Size = le.Uint32(p[types.FingerprintSize:])
	return v, nil
}

// Metadata is the SetMetadata payload.
type Metadata struct {
	Slot        uint8
	Icon        uint16
	Name        string
	Description string
}

const metadataSize = 1 + 2 + NameWidth + DescriptionWidth

// Encode encodes the SetMetadata payload. Strings are NUL padded and
// truncated to leave room for the terminator.
func (m Metadata) Encode() []byte {
	buf := make([]byte, 0, metadataSize)
	buf = append(buf, m.Slot)
	buf = le.AppendUint16(buf, m.Icon)
	buf = appendFixed(buf, m.Name, NameWidth)
	return appendFixed(buf, m.Description, DescriptionWidth)
}

// DecodeMetadata decodes a SetMetadata payload.
func DecodeMetadata(p []byte) (Metadata, error) {
	if len(p) < metadataSize {
		return Metadata{}, short("metadata", len(p), metadataSize)
	}
	return Metadata{
		Slot:        p[0],
		Icon:        le.Uint16(p[1:3]),
		Name:        readFixed(p[3 : 3+NameWidth]),
		Description: readFixed(p[3+NameWidth : metadataSize]),
	}, nil
}

// RunCommand encodes a RunProgram payload.
func RunCommand(slot uint8, action types.AfterAction) []byte {
	return []byte{slot, action.Code()}
}

// KVKey encodes a KVLoad payload.
func KVKey(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return append([]byte(key), 0), nil
}

// KVPair encodes a KVSave payload: key and value, each NUL terminated.
func KVPair(key, value string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if bytes.IndexByte([]byte(value), 0) >= 0 {
		return nil, fmt.Errorf("value for %q contains a NUL byte", key)
	}
	buf := append([]byte(key), 0)
	buf = append(buf, value...)
	return append(buf, 0), nil
}

// DecodeKVPair splits a KVSave payload.
func DecodeKVPair(p []byte) (string, string, error) {
	key, rest, ok := bytes.Cut(p, []byte{0})
	if !ok {
		return "", "", fmt.Errorf("%w: unterminated key", types.ErrProtocol)
	}
	return string(key), readFixed(rest), nil
}

// KVValue decodes a KVLoad reply, which is a NUL-terminated string.
func KVValue(p []byte) string {
	return readFixed(p)
}

func checkKey(key string) error {
	if key == "" || len(key) >= KeyWidth {
		return fmt.Errorf("key %q must be 1-%d bytes", key, KeyWidth-1)
	}
	if bytes.IndexByte([]byte(key), 0) >= 0 {
		return fmt.Errorf("key %q contains a NUL byte", key)
	}
	return nil
}

func appendFixed(buf []byte, s string, width int) []byte {
	field := make([]byte, width)
	copy(field, types.Truncate(s, width-1))
	return append(buf, field...)
}

func readFixed(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
