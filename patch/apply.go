package patch

import (
	"encoding/binary"

	"github.com/pithecene-io/brainlink/types"
)

// Apply reconstructs the target image from old and patch.
//
// The caller must guarantee that old is the image the patch was computed
// against (its fingerprint equals Header.Reference). Apply checks the
// trailer before doing any work and the target fingerprint after, so any
// inconsistency returns types.ErrCorruptPatch and no output.
func Apply(old, patch []byte) ([]byte, error) {
	if err := checkTrailer(patch); err != nil {
		return nil, err
	}
	body := patch[:len(patch)-trailerSize]
	h, err := parseHeader(body)
	if err != nil {
		return nil, err
	}
	if h.OldSize != len(old) {
		return nil, corrupt("reference size %d, patch expects %d", len(old), h.OldSize)
	}

	out := make([]byte, 0, h.NewSize)
	pos := h.opsOffset
	for {
		if pos >= len(body) {
			return nil, corrupt("missing end marker")
		}
		op := body[pos]
		pos++

		switch op {
		case OpEnd:
			if pos != len(body) {
				return nil, corrupt("%d trailing bytes after end marker", len(body)-pos)
			}
			if len(out) != h.NewSize {
				return nil, corrupt("produced %d bytes, patch declares %d", len(out), h.NewSize)
			}
			if types.FingerprintOf(out) != h.Target {
				return nil, corrupt("target fingerprint mismatch")
			}
			return out, nil

		case OpCopy:
			off, n1 := binary.Uvarint(body[pos:])
			if n1 <= 0 {
				return nil, corrupt("bad copy offset at %d", pos)
			}
			pos += n1
			length, n2 := binary.Uvarint(body[pos:])
			if n2 <= 0 {
				return nil, corrupt("bad copy length at %d", pos)
			}
			pos += n2
			if off > uint64(len(old)) || length > uint64(len(old))-off {
				return nil, corrupt("copy [%d,+%d) outside reference of %d bytes", off, length, len(old))
			}
			if uint64(len(out))+length > uint64(h.NewSize) {
				return nil, corrupt("copy overruns declared target size")
			}
			out = append(out, old[off:off+length]...)

		case OpInsert:
			length, n := binary.Uvarint(body[pos:])
			if n <= 0 {
				return nil, corrupt("bad insert length at %d", pos)
			}
			pos += n
			if length > uint64(len(body)-pos) {
				return nil, corrupt("insert of %d bytes runs past end of patch", length)
			}
			if uint64(len(out))+length > uint64(h.NewSize) {
				return nil, corrupt("insert overruns declared target size")
			}
			out = append(out, body[pos:pos+int(length)]...)
			pos += int(length)

		default:
			return nil, corrupt("unknown op 0x%02x at %d", op, pos-1)
		}
	}
}
