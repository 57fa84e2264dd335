package transporttest

import (
	"bytes"
	"testing"

	"github.com/pithecene-io/brainlink/patch"
	"github.com/pithecene-io/brainlink/types"
	"github.com/pithecene-io/brainlink/wire"
)

// send runs one request through the brain and decodes its reply.
func send(t *testing.T, b *Brain, out *bytes.Buffer, op wire.Opcode, payload []byte) wire.Frame {
	t.Helper()
	out.Reset()
	if err := b.handle(wire.Frame{Opcode: op, Payload: payload}); err != nil {
		t.Fatalf("handle(%s) failed: %v", op, err)
	}
	reply, err := wire.NewDecoder(out).ReadReply()
	if err != nil {
		t.Fatalf("ReadReply(%s) failed: %v", op, err)
	}
	return reply
}

func TestBrain_ReferenceErasedMidTransfer(t *testing.T) {
	old := bytes.Repeat([]byte("resident program "), 64)
	next := append(bytes.Clone(old), "v2"...)
	diff := patch.Encode(old, next)

	b := NewBrain()
	b.SetSlot(1, old, types.ImageKindMonolithic)
	var out bytes.Buffer
	b.conn = &out

	begin := wire.BeginTransfer{
		Slot:        1,
		Mode:        types.TransferDifferential,
		Kind:        types.ImageKindMonolithic,
		PayloadSize: uint32(len(diff)),
		ImageSize:   uint32(len(next)),
		Reference:   types.FingerprintOf(old),
		Target:      types.FingerprintOf(next),
	}
	if r := send(t, b, &out, wire.OpBeginTransfer, begin.Encode()); r.Ack != wire.AckOK {
		t.Fatalf("BeginTransfer ack = %s", r.Ack)
	}
	if r := send(t, b, &out, wire.OpWriteChunk, wire.Chunk(0, diff)); r.Ack != wire.AckOK {
		t.Fatalf("WriteChunk ack = %s", r.Ack)
	}
	if r := send(t, b, &out, wire.OpEraseSlot, wire.SlotCommand(1)); r.Ack != wire.AckOK {
		t.Fatalf("EraseSlot ack = %s", r.Ack)
	}

	r := send(t, b, &out, wire.OpEndTransfer, wire.SlotCommand(1))
	if r.Ack != wire.AckReferenceMismatch {
		t.Errorf("EndTransfer ack = %s, want %s", r.Ack, wire.AckReferenceMismatch)
	}
	if _, ok := b.Slot(1); ok {
		t.Error("slot should stay empty")
	}
}

func TestBrain_DifferentialEndTransfer(t *testing.T) {
	old := bytes.Repeat([]byte("resident program "), 64)
	next := append(bytes.Clone(old), "v2"...)
	diff := patch.Encode(old, next)

	b := NewBrain()
	b.SetSlot(1, old, types.ImageKindMonolithic)
	var out bytes.Buffer
	b.conn = &out

	begin := wire.BeginTransfer{
		Slot:        1,
		Mode:        types.TransferDifferential,
		Kind:        types.ImageKindMonolithic,
		PayloadSize: uint32(len(diff)),
		ImageSize:   uint32(len(next)),
		Reference:   types.FingerprintOf(old),
		Target:      types.FingerprintOf(next),
	}
	send(t, b, &out, wire.OpBeginTransfer, begin.Encode())
	send(t, b, &out, wire.OpWriteChunk, wire.Chunk(0, diff))
	if r := send(t, b, &out, wire.OpEndTransfer, wire.SlotCommand(1)); r.Ack != wire.AckOK {
		t.Fatalf("EndTransfer ack = %s", r.Ack)
	}
	s, ok := b.Slot(1)
	if !ok || !bytes.Equal(s.Image, next) {
		t.Error("slot should hold the patched image")
	}
}
