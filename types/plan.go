package types

import (
	"fmt"
	"strings"
)

// Strategy selects how the transfer plan is chosen.
type Strategy string

const (
	// StrategyAuto prefers a differential transfer when a reference image
	// matching the resident fingerprint is available and the patch is smaller.
	StrategyAuto Strategy = "auto"
	// StrategyMonolith always transfers the full image.
	StrategyMonolith Strategy = "monolith"
	// StrategyDifferential requires a differential transfer.
	StrategyDifferential Strategy = "differential"
)

// ParseStrategy parses auto, monolith, or differential.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyAuto, "":
		return StrategyAuto, nil
	case StrategyMonolith:
		return StrategyMonolith, nil
	case StrategyDifferential:
		return StrategyDifferential, nil
	default:
		return "", fmt.Errorf("%q is not a valid upload strategy (must be auto, monolith, or differential)", s)
	}
}

// TransferMode discriminates the two PatchPlan variants.
type TransferMode string

const (
	// TransferFull sends the whole image.
	TransferFull TransferMode = "full"
	// TransferDifferential sends a patch against the resident image.
	TransferDifferential TransferMode = "differential"
)

// Code returns the wire code for the mode.
func (m TransferMode) Code() uint8 {
	if m == TransferDifferential {
		return 1
	}
	return 0
}

// PatchPlan is either a full transfer of Image or a differential transfer
// of PatchBytes computed against the image with Reference fingerprint.
//
// A differential plan is only valid while the brain still reports
// Reference as the resident fingerprint of the target slot.
type PatchPlan struct {
	Mode       TransferMode
	Image      *ProgramImage
	Reference  Fingerprint
	PatchBytes []byte
}

// FullTransfer builds a full-transfer plan.
func FullTransfer(img *ProgramImage) PatchPlan {
	return PatchPlan{Mode: TransferFull, Image: img}
}

// DifferentialTransfer builds a differential plan.
func DifferentialTransfer(img *ProgramImage, reference Fingerprint, patch []byte) PatchPlan {
	return PatchPlan{
		Mode:       TransferDifferential,
		Image:      img,
		Reference:  reference,
		PatchBytes: patch,
	}
}

// IsDifferential reports whether the plan sends a patch.
func (p PatchPlan) IsDifferential() bool {
	return p.Mode == TransferDifferential
}

// Payload returns the uncompressed bytes the plan transfers.
func (p PatchPlan) Payload() []byte {
	if p.IsDifferential() {
		return p.PatchBytes
	}
	return p.Image.Bytes()
}
