// Package types defines core domain types for brainlink.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MaxImageSize bounds the size of any program image or patch target.
const MaxImageSize = 32 * 1024 * 1024

// FingerprintSize is the size of a Fingerprint in bytes.
const FingerprintSize = sha256.Size

// Fingerprint is the SHA-256 content hash of an image.
// Same bytes always produce the same fingerprint.
type Fingerprint [FingerprintSize]byte

// FingerprintOf computes the fingerprint of data.
func FingerprintOf(data []byte) Fingerprint {
	return Fingerprint(sha256.Sum256(data))
}

// IsZero reports whether f is the all-zero fingerprint (no image).
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex characters, for logs and tables.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFingerprint parses a hex-encoded fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	if len(raw) != FingerprintSize {
		return f, fmt.Errorf("invalid fingerprint length %d, want %d", len(raw), FingerprintSize)
	}
	copy(f[:], raw)
	return f, nil
}

// ImageKind classifies how an image is executed on the brain.
type ImageKind string

const (
	// ImageKindMonolithic is a statically linked image uploaded whole.
	ImageKindMonolithic ImageKind = "monolithic"
	// ImageKindHotPatch is user code linked against a separately resident
	// base library. Only the user-code segment is uploaded.
	ImageKindHotPatch ImageKind = "hot-patch"
)

// Code returns the wire code for the kind.
func (k ImageKind) Code() uint8 {
	if k == ImageKindHotPatch {
		return 1
	}
	return 0
}

// ImageKindFromCode maps a wire code back to an ImageKind.
func ImageKindFromCode(code uint8) ImageKind {
	if code == 1 {
		return ImageKindHotPatch
	}
	return ImageKindMonolithic
}

// ProgramImage is the raw bytes of a compiled program plus derived metadata.
// It is immutable once produced.
type ProgramImage struct {
	data        []byte
	fingerprint Fingerprint
	kind        ImageKind
	loadAddress uint32
	entryPoint  uint32
}

// NewProgramImage creates an image from flattened bytes. The slice is
// copied so later mutation by the caller does not affect the image.
func NewProgramImage(data []byte, kind ImageKind, loadAddress, entryPoint uint32) *ProgramImage {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &ProgramImage{
		data:        owned,
		fingerprint: FingerprintOf(owned),
		kind:        kind,
		loadAddress: loadAddress,
		entryPoint:  entryPoint,
	}
}

// Bytes returns the image bytes. Callers must not modify the result.
func (p *ProgramImage) Bytes() []byte { return p.data }

// Size returns the image size in bytes.
func (p *ProgramImage) Size() int { return len(p.data) }

// Fingerprint returns the content fingerprint.
func (p *ProgramImage) Fingerprint() Fingerprint { return p.fingerprint }

// Kind returns the image classification.
func (p *ProgramImage) Kind() ImageKind { return p.kind }

// LoadAddress returns the address the image is loaded at.
func (p *ProgramImage) LoadAddress() uint32 { return p.loadAddress }

// EntryPoint returns the program entry point.
func (p *ProgramImage) EntryPoint() uint32 { return p.entryPoint }
