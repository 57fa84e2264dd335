package wire

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/brainlink/types"
)

// ErrShortPayload indicates a payload too short for its declared layout.
var ErrShortPayload = errors.New("payload too short")

// NackError is a command the brain answered with a non-ACK status.
// It matches types.ErrProtocol with errors.Is.
type NackError struct {
	Opcode Opcode
	Ack    Ack
}

func (e *NackError) Error() string {
	return fmt.Sprintf("%s rejected by device: %s (0x%02x)", e.Opcode, e.Ack, uint8(e.Ack))
}

// Is reports protocol-error classification.
func (e *NackError) Is(target error) bool {
	return target == types.ErrProtocol
}

// Retryable reports whether the device asked for the same frame again.
func (e *NackError) Retryable() bool {
	return e.Ack == AckNackCRC
}

// CheckAck converts a non-ACK reply into a *NackError.
func CheckAck(f Frame) error {
	if f.Ack == AckOK {
		return nil
	}
	return &NackError{Opcode: f.Opcode, Ack: f.Ack}
}

func short(what string, got, want int) error {
	return fmt.Errorf("%w: %s payload is %d bytes, want %d: %w", types.ErrProtocol, what, got, want, ErrShortPayload)
}
