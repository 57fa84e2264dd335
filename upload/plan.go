package upload

import (
	"fmt"

	"github.com/pithecene-io/brainlink/patch"
	"github.com/pithecene-io/brainlink/types"
)

// DefaultMaxPatchSize bounds differential payloads.
const DefaultMaxPatchSize = 2 * 1024 * 1024

// Policy decides between full and differential transfers.
//
// With StrategyAuto a differential transfer is chosen whenever a reference
// image matching the resident fingerprint is available and the patch is
// both within MaxPatchSize and smaller than the image. StrategyMonolith
// always transfers the full image. StrategyDifferential fails with
// ErrNoReference rather than fall back to a full transfer.
type Policy struct {
	Strategy     types.Strategy
	MaxPatchSize int
}

// DefaultPolicy returns the auto policy.
func DefaultPolicy() Policy {
	return Policy{Strategy: types.StrategyAuto, MaxPatchSize: DefaultMaxPatchSize}
}

// Plan picks the transfer for img given the fingerprint resident in the
// target slot and the reference bytes looked up for it (nil if none). It is
// a pure function of its arguments.
func (p Policy) Plan(img *types.ProgramImage, resident types.Fingerprint, reference []byte) (types.PatchPlan, error) {
	full := types.FullTransfer(img)
	if p.Strategy == types.StrategyMonolith {
		return full, nil
	}
	required := p.Strategy == types.StrategyDifferential
	maxPatch := p.MaxPatchSize
	if maxPatch <= 0 {
		maxPatch = DefaultMaxPatchSize
	}

	// A patch is only ever computed against bytes proven to be resident.
	if resident.IsZero() || reference == nil || types.FingerprintOf(reference) != resident {
		if required {
			return types.PatchPlan{}, fmt.Errorf("%w: slot holds %s", ErrNoReference, describe(resident))
		}
		return full, nil
	}

	diff := patch.Encode(reference, img.Bytes())
	switch {
	case len(diff) > maxPatch:
		if required {
			return types.PatchPlan{}, fmt.Errorf("patch of %d bytes exceeds limit of %d bytes", len(diff), maxPatch)
		}
		return full, nil
	case !required && len(diff) >= img.Size():
		return full, nil
	}
	return types.DifferentialTransfer(img, resident, diff), nil
}

func describe(f types.Fingerprint) string {
	if f.IsZero() {
		return "no program"
	}
	return "unknown image " + f.Short()
}
