package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/brainlink/types"
)

func TestCRC16_XMODEM(t *testing.T) {
	if got := CRC16([]byte("123456789")); got != 0x31C3 {
		t.Errorf("CRC16 = %04x, want 31c3", got)
	}
	if got := CRC16(nil); got != 0 {
		t.Errorf("CRC16(nil) = %04x, want 0", got)
	}
}

func TestEncodeRequest_Layout(t *testing.T) {
	raw, err := EncodeRequest(OpQuerySlot, []byte{3})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	want := []byte{0xC9, 0x36, 0xB8, 0x47, 0x56, 0x19, 0x01, 0x03}
	if !bytes.Equal(raw[:len(want)], want) {
		t.Fatalf("header = % x, want % x", raw[:len(want)], want)
	}
	if len(raw) != len(want)+2 {
		t.Fatalf("frame length = %d, want %d", len(raw), len(want)+2)
	}
	crc := CRC16(raw[:len(want)])
	if raw[len(want)] != byte(crc>>8) || raw[len(want)+1] != byte(crc) {
		t.Errorf("crc bytes = % x, want big-endian %04x", raw[len(want):], crc)
	}
}

func TestLengthField(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantLen []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"one byte max", 0x7F, []byte{0x7F}},
		{"two byte min", 0x80, []byte{0x80, 0x80}},
		{"two byte", 0x1234, []byte{0x92, 0x34}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeRequest(OpWriteChunk, make([]byte, tt.n))
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}
			if got := raw[6 : 6+len(tt.wantLen)]; !bytes.Equal(got, tt.wantLen) {
				t.Errorf("length bytes = % x, want % x", got, tt.wantLen)
			}

			f, err := NewDecoder(bytes.NewReader(raw)).ReadRequest()
			if err != nil {
				t.Fatalf("ReadRequest failed: %v", err)
			}
			if len(f.Payload) != tt.n {
				t.Errorf("payload length = %d, want %d", len(f.Payload), tt.n)
			}
		})
	}
}

func TestEncodeRequest_TooLarge(t *testing.T) {
	if _, err := EncodeRequest(OpWriteChunk, make([]byte, MaxLength+1)); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestReply_RoundTrip(t *testing.T) {
	payloads := [][]byte{nil, []byte("hi"), bytes.Repeat([]byte{0x5A}, 300)}
	for _, p := range payloads {
		raw, err := EncodeReply(OpVerify, AckOK, p)
		if err != nil {
			t.Fatalf("EncodeReply failed: %v", err)
		}
		f, err := NewDecoder(bytes.NewReader(raw)).ReadReply()
		if err != nil {
			t.Fatalf("ReadReply failed: %v", err)
		}
		if f.Opcode != OpVerify || f.Ack != AckOK || !bytes.Equal(f.Payload, p) {
			t.Errorf("decoded %+v, want opcode verify ack ok payload %d bytes", f, len(p))
		}
	}
}

func TestDecoder_ResyncsAfterNoise(t *testing.T) {
	first, _ := EncodeReply(OpUserOutput, AckOK, []byte("hello"))
	second, _ := EncodeReply(OpQuerySlot, AckNack, nil)

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0xAA, 0x13, 0xAA}) // noise, including a false header start
	stream.Write(first)
	stream.Write([]byte{0xFF, 0xFF})
	stream.Write(second)

	d := NewDecoder(&stream)
	f1, err := d.ReadReply()
	if err != nil {
		t.Fatalf("first ReadReply failed: %v", err)
	}
	if string(f1.Payload) != "hello" {
		t.Errorf("first payload = %q", f1.Payload)
	}
	f2, err := d.ReadReply()
	if err != nil {
		t.Fatalf("second ReadReply failed: %v", err)
	}
	if f2.Opcode != OpQuerySlot || f2.Ack != AckNack {
		t.Errorf("second frame = %+v", f2)
	}
	if _, err := d.ReadReply(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestDecoder_ChecksumMismatch(t *testing.T) {
	raw, _ := EncodeReply(OpVerify, AckOK, []byte{1, 2, 3})
	raw[len(raw)-3] ^= 0xFF
	good, _ := EncodeReply(OpVerify, AckOK, []byte{4})

	d := NewDecoder(bytes.NewReader(append(raw, good...)))
	_, err := d.ReadReply()
	if !IsChecksumError(err) {
		t.Fatalf("expected checksum error, got %v", err)
	}
	var frameErr *FrameError
	if errors.As(err, &frameErr) && frameErr.IsFatal() {
		t.Error("checksum error should not be fatal")
	}

	f, err := d.ReadReply()
	if err != nil {
		t.Fatalf("stream should remain usable: %v", err)
	}
	if !bytes.Equal(f.Payload, []byte{4}) {
		t.Errorf("payload = %v", f.Payload)
	}
}

func TestDecoder_Truncated(t *testing.T) {
	raw, _ := EncodeReply(OpVerify, AckOK, []byte{1, 2, 3})
	_, err := NewDecoder(bytes.NewReader(raw[:len(raw)-2])).ReadReply()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) || !frameErr.IsFatal() {
		t.Fatalf("expected fatal partial frame error, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF in chain, got %v", err)
	}
}

func TestCheckAck(t *testing.T) {
	if err := CheckAck(Frame{Opcode: OpVerify, Ack: AckOK}); err != nil {
		t.Errorf("CheckAck(ACK) = %v", err)
	}

	err := CheckAck(Frame{Opcode: OpBeginTransfer, Ack: AckSlotOutOfRange})
	if !errors.Is(err, types.ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
	var nack *NackError
	if !errors.As(err, &nack) || nack.Ack != AckSlotOutOfRange {
		t.Fatalf("expected *NackError, got %T", err)
	}
	if nack.Retryable() {
		t.Error("slot out of range should not be retryable")
	}
	if !(&NackError{Ack: AckNackCRC}).Retryable() {
		t.Error("NACK_CRC should be retryable")
	}
}
