package upload

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/brainlink/types"
)

// ErrNoReference is returned when a differential transfer is required but
// no usable reference image exists.
var ErrNoReference = errors.New("no reference image for differential transfer")

// Error is a failed upload with enough context to decide on a retry.
// Kind is one of the types sentinels (or a context error); errors.Is
// matches both Kind and the underlying cause.
type Error struct {
	Kind  error
	Stage State
	Slot  int
	Err   error

	// RetryFull is set when a fresh full transfer is likely to succeed
	// where this differential one failed.
	RetryFull bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("upload to slot %d failed while %s", e.Slot, e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.RetryFull {
		msg += " (retry with --strategy monolith)"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the classified kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// classify picks the taxonomy kind of err.
func classify(err error) error {
	for _, kind := range []error{
		types.ErrConnection,
		types.ErrLink,
		types.ErrMalformedImage,
		types.ErrCorruptPatch,
		types.ErrVerification,
		types.ErrProtocol,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
