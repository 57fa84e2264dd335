package types

import (
	"context"
	"errors"
)

// Sentinel error kinds. Every failure surfaced by the upload core wraps
// exactly one of these; use errors.Is for classification.
var (
	// ErrConnection indicates the serial port could not be claimed.
	ErrConnection = errors.New("connection error")

	// ErrLink indicates timeouts or retry exhaustion mid-protocol.
	ErrLink = errors.New("link error")

	// ErrMalformedImage indicates the executable could not be parsed.
	ErrMalformedImage = errors.New("malformed image")

	// ErrCorruptPatch indicates a patch failed its internal consistency checks.
	ErrCorruptPatch = errors.New("corrupt patch")

	// ErrProtocol indicates the brain rejected a command.
	ErrProtocol = errors.New("protocol error")

	// ErrVerification indicates the post-transfer fingerprint did not match.
	ErrVerification = errors.New("verification error")
)

// ErrSlotOutOfRange is returned for slot indices outside MinSlot..MaxSlot.
var ErrSlotOutOfRange = errors.New("slot out of range")

// KindName returns a stable snake_case label for the error's kind, used in
// metrics, ledgers and notifications.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrConnection):
		return "connection_error"
	case errors.Is(err, ErrLink):
		return "link_error"
	case errors.Is(err, ErrMalformedImage):
		return "malformed_image"
	case errors.Is(err, ErrCorruptPatch):
		return "corrupt_patch"
	case errors.Is(err, ErrVerification):
		return "verification_error"
	case errors.Is(err, ErrProtocol):
		return "protocol_error"
	default:
		return "unexpected"
	}
}
