package wire

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pithecene-io/brainlink/types"
)

func TestSlotInfo_Decode(t *testing.T) {
	want := SlotInfo{
		Slot:        4,
		Occupied:    true,
		Kind:        types.ImageKindHotPatch,
		Size:        123456,
		Fingerprint: types.FingerprintOf([]byte("resident")),
		MaxChunk:    4096,
	}
	got, err := DecodeSlotInfo(EncodeSlotInfo(want))
	if err != nil {
		t.Fatalf("DecodeSlotInfo failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if _, err := DecodeSlotInfo([]byte{1, 2}); !errors.Is(err, ErrShortPayload) || !errors.Is(err, types.ErrProtocol) {
		t.Errorf("expected short protocol error, got %v", err)
	}
}

func TestBeginTransfer_Decode(t *testing.T) {
	want := BeginTransfer{
		Slot:        2,
		Mode:        types.TransferDifferential,
		Kind:        types.ImageKindMonolithic,
		Compressed:  true,
		PayloadSize: 99,
		ImageSize:   1000,
		LoadAddress: 0x03800000,
		Reference:   types.FingerprintOf([]byte("a")),
		Target:      types.FingerprintOf([]byte("b")),
	}
	got, err := DecodeBeginTransfer(want.Encode())
	if err != nil {
		t.Fatalf("DecodeBeginTransfer failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestChunk_OffsetLittleEndian(t *testing.T) {
	p := Chunk(0x01020304, []byte("data"))
	if p[0] != 0x04 || p[3] != 0x01 {
		t.Errorf("offset bytes = % x, want little endian", p[:4])
	}
	off, data, err := DecodeChunk(p)
	if err != nil || off != 0x01020304 || string(data) != "data" {
		t.Errorf("DecodeChunk = %x %q %v", off, data, err)
	}

	ack, err := DecodeChunkAck(ChunkAck(4096))
	if err != nil || ack != 4096 {
		t.Errorf("DecodeChunkAck = %d %v", ack, err)
	}
}

func TestMetadata_FixedWidths(t *testing.T) {
	m := Metadata{
		Slot:        1,
		Icon:        902,
		Name:        strings.Repeat("n", 40),
		Description: "drive code",
	}
	p := m.Encode()
	if len(p) != 1+2+NameWidth+DescriptionWidth {
		t.Fatalf("payload = %d bytes", len(p))
	}

	got, err := DecodeMetadata(p)
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if got.Name != strings.Repeat("n", NameWidth-1) {
		t.Errorf("Name = %q, want truncation to %d bytes", got.Name, NameWidth-1)
	}
	if got.Description != "drive code" || got.Icon != 902 || got.Slot != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestMetadata_TruncatesWholeRunes(t *testing.T) {
	m := Metadata{
		Slot:        2,
		Name:        strings.Repeat("ü", 12),
		Description: strings.Repeat("→", 22),
	}
	got, err := DecodeMetadata(m.Encode())
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if got.Name != strings.Repeat("ü", 11) {
		t.Errorf("Name = %q, want 11 whole runes", got.Name)
	}
	if got.Description != strings.Repeat("→", 21) {
		t.Errorf("Description = %q, want 21 whole runes", got.Description)
	}
	if !utf8.ValidString(got.Name) || !utf8.ValidString(got.Description) {
		t.Error("truncated strings are not valid UTF-8")
	}
}

func TestVerifyResult_Decode(t *testing.T) {
	want := VerifyResult{Fingerprint: types.FingerprintOf([]byte("x")), Size: 77}
	got, err := DecodeVerifyResult(want.Encode())
	if err != nil || got != want {
		t.Errorf("DecodeVerifyResult = %+v %v", got, err)
	}
}

func TestKV(t *testing.T) {
	p, err := KVPair("teamnumber", "1234A")
	if err != nil {
		t.Fatalf("KVPair failed: %v", err)
	}
	key, value, err := DecodeKVPair(p)
	if err != nil || key != "teamnumber" || value != "1234A" {
		t.Errorf("DecodeKVPair = %q %q %v", key, value, err)
	}

	if _, err := KVKey(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := KVKey(strings.Repeat("k", KeyWidth)); err == nil {
		t.Error("expected error for long key")
	}
	if got := KVValue([]byte("robot\x00\x00")); got != "robot" {
		t.Errorf("KVValue = %q", got)
	}
}

func TestRunCommand(t *testing.T) {
	p := RunCommand(3, types.AfterScreen)
	if p[0] != 3 || p[1] != 2 {
		t.Errorf("RunCommand = % x", p)
	}
}

func TestAnswers(t *testing.T) {
	chunk := Chunk(1024, []byte("data"))
	query := SlotQuery(3)
	tests := []struct {
		name    string
		op      Opcode
		payload []byte
		reply   Frame
		want    bool
	}{
		{"chunk echoes offset", OpWriteChunk, chunk, Frame{Opcode: OpWriteChunk, Ack: AckOK, Payload: ChunkAck(1024)}, true},
		{"chunk ack for earlier offset", OpWriteChunk, chunk, Frame{Opcode: OpWriteChunk, Ack: AckOK, Payload: ChunkAck(0)}, false},
		{"chunk nack has no offset", OpWriteChunk, chunk, Frame{Opcode: OpWriteChunk, Ack: AckOffsetMismatch}, true},
		{"short chunk ack left to caller", OpWriteChunk, chunk, Frame{Opcode: OpWriteChunk, Ack: AckOK, Payload: []byte{1}}, true},
		{"other opcode", OpWriteChunk, chunk, Frame{Opcode: OpEndTransfer, Ack: AckOK}, false},
		{"slot info for queried slot", OpQuerySlot, query, Frame{Opcode: OpQuerySlot, Ack: AckOK, Payload: EncodeSlotInfo(SlotInfo{Slot: 3})}, true},
		{"slot info for another slot", OpQuerySlot, query, Frame{Opcode: OpQuerySlot, Ack: AckOK, Payload: EncodeSlotInfo(SlotInfo{Slot: 2})}, false},
		{"unkeyed opcode", OpVerify, SlotCommand(1), Frame{Opcode: OpVerify, Ack: AckOK}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Answers(tt.op, tt.payload, tt.reply); got != tt.want {
				t.Errorf("Answers() = %v, want %v", got, tt.want)
			}
		})
	}
}
