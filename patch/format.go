// Package patch implements the differential patch format used to send only
// the changed bytes of a program image.
//
// A patch is computed against a reference image and reconstructs exactly one
// target image. Patches are self-describing: the header records both image
// sizes and fingerprints, and a CRC-32 trailer covers every preceding byte.
//
// Layout:
//
//	"BLPT" | version | uvarint old size | uvarint new size |
//	reference fingerprint (32) | target fingerprint (32) |
//	ops... | OpEnd | CRC-32 IEEE (4, big endian)
//
// Ops are OpCopy(uvarint offset, uvarint length) reading from the reference
// and OpInsert(uvarint length, bytes) carrying literals.
package patch

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/pithecene-io/brainlink/types"
)

// Magic identifies a patch stream.
const Magic = "BLPT"

// Version is the current patch format version.
const Version = 1

// MaxImageSize bounds the declared sizes a patch may reference.
const MaxImageSize = types.MaxImageSize

// Op codes.
const (
	OpEnd    byte = 0x00
	OpCopy   byte = 0x01
	OpInsert byte = 0x02
)

const trailerSize = crc32.Size

// Header is the decoded fixed portion of a patch.
type Header struct {
	Version   uint8
	OldSize   int
	NewSize   int
	Reference types.Fingerprint
	Target    types.Fingerprint

	// opsOffset is where the op stream begins.
	opsOffset int
}

// ReadHeader validates the trailer and decodes the header of patch.
func ReadHeader(patch []byte) (*Header, error) {
	if err := checkTrailer(patch); err != nil {
		return nil, err
	}
	return parseHeader(patch[:len(patch)-trailerSize])
}

func checkTrailer(patch []byte) error {
	if len(patch) < len(Magic)+1+trailerSize {
		return corrupt("patch too short (%d bytes)", len(patch))
	}
	body := patch[:len(patch)-trailerSize]
	want := binary.BigEndian.Uint32(patch[len(body):])
	if got := crc32.ChecksumIEEE(body); got != want {
		return corrupt("checksum mismatch: computed %08x, trailer %08x", got, want)
	}
	return nil
}

func parseHeader(body []byte) (*Header, error) {
	if string(body[:len(Magic)]) != Magic {
		return nil, corrupt("bad magic %q", body[:len(Magic)])
	}
	pos := len(Magic)
	h := &Header{Version: body[pos]}
	pos++
	if h.Version != Version {
		return nil, corrupt("unsupported version %d", h.Version)
	}

	oldSize, n := binary.Uvarint(body[pos:])
	if n <= 0 {
		return nil, corrupt("bad reference size")
	}
	pos += n
	newSize, n := binary.Uvarint(body[pos:])
	if n <= 0 {
		return nil, corrupt("bad target size")
	}
	pos += n
	if oldSize > MaxImageSize || newSize > MaxImageSize {
		return nil, corrupt("declared size exceeds %d bytes", MaxImageSize)
	}
	h.OldSize = int(oldSize)
	h.NewSize = int(newSize)

	if len(body)-pos < 2*types.FingerprintSize {
		return nil, corrupt("truncated fingerprints")
	}
	copy(h.Reference[:], body[pos:])
	pos += types.FingerprintSize
	copy(h.Target[:], body[pos:])
	pos += types.FingerprintSize

	h.opsOffset = pos
	return h, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrCorruptPatch, fmt.Sprintf(format, args...))
}
