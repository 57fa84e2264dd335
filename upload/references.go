package upload

import (
	"context"

	"github.com/pithecene-io/brainlink/types"
)

// References stores images previously uploaded so later uploads can be sent
// as patches against them.
type References interface {
	// Lookup returns the image bytes with fingerprint f, or nil if unknown.
	Lookup(ctx context.Context, f types.Fingerprint) ([]byte, error)
	// Record stores an image that is now resident in slot.
	Record(ctx context.Context, slot int, img *types.ProgramImage) error
}

type noReferences struct{}

func (noReferences) Lookup(context.Context, types.Fingerprint) ([]byte, error) { return nil, nil }

func (noReferences) Record(context.Context, int, *types.ProgramImage) error { return nil }
