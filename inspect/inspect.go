// Package inspect parses linked program executables into upload payloads.
//
// Inspection is pure: it reads bytes and returns a Layout describing the
// loadable segments, the entry point and whether the program is a standalone
// monolithic image or a hot patch linked against a resident base library.
package inspect

import (
	"bytes"
	"debug/elf"
	"fmt"
	"sort"

	"github.com/pithecene-io/brainlink/types"
)

// Memory regions on the brain.
const (
	// UserRegion is where monolithic user programs are loaded.
	UserRegion uint32 = 0x03800000
	// HotRegion is where hot-patch user code is loaded. Anything below it
	// belongs to the resident base library.
	HotRegion uint32 = 0x07800000
)

// Segment is one PT_LOAD segment with its file bytes.
type Segment struct {
	Address uint32
	MemSize uint32
	Flags   elf.ProgFlag
	Data    []byte
}

// addressSpace is the size of the brain's 32-bit address space.
const addressSpace = 1 << 32

// End returns the first address past the segment's file bytes. It is
// computed in 64 bits so a segment ending at the top of memory does not
// wrap to zero.
func (s Segment) End() uint64 {
	return uint64(s.Address) + uint64(len(s.Data))
}

// Hot reports whether the segment lies in the hot-patch region.
func (s Segment) Hot() bool {
	return s.Address >= HotRegion
}

// Layout is the result of inspecting an executable.
type Layout struct {
	EntryPoint uint32
	Kind       types.ImageKind

	// Payload holds the segments that are uploaded, sorted by address.
	Payload []Segment

	// Base holds the segments expected to already be resident on the brain.
	// It is empty for monolithic images.
	Base []Segment
}

// LoadAddress returns the address of the first payload segment.
func (l *Layout) LoadAddress() uint32 {
	if len(l.Payload) == 0 {
		return UserRegion
	}
	return l.Payload[0].Address
}

// Inspect parses a 32-bit little-endian ARM ELF executable.
// Fails with types.ErrMalformedImage if the input is not such a file or has
// nothing to load.
func Inspect(data []byte) (*Layout, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("not an ELF executable: %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, malformed("unsupported ELF class %s", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, malformed("unsupported byte order %s", f.Data)
	}
	if f.Machine != elf.EM_ARM {
		return nil, malformed("unsupported machine %s", f.Machine)
	}
	if f.Type != elf.ET_EXEC {
		return nil, malformed("not an executable (type %s)", f.Type)
	}

	var segs []Segment
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Filesz == 0 {
			continue
		}
		if p.Filesz > types.MaxImageSize {
			return nil, malformed("segment %d is %d bytes", i, p.Filesz)
		}
		if p.Vaddr+p.Filesz > addressSpace {
			return nil, malformed("segment %d at 0x%x runs past the end of memory", i, p.Vaddr)
		}
		buf := make([]byte, p.Filesz)
		if _, err := p.ReadAt(buf, 0); err != nil {
			return nil, malformed("segment %d: %v", i, err)
		}
		segs = append(segs, Segment{
			Address: uint32(p.Vaddr),
			MemSize: uint32(p.Memsz),
			Flags:   p.Flags,
			Data:    buf,
		})
	}
	if len(segs) == 0 {
		return nil, malformed("no loadable segments")
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Address < segs[j].Address })

	layout := &Layout{
		EntryPoint: uint32(f.Entry),
		Kind:       types.ImageKindMonolithic,
		Payload:    segs,
	}
	for _, s := range segs {
		if s.Hot() {
			layout.Kind = types.ImageKindHotPatch
			break
		}
	}
	if layout.Kind == types.ImageKindHotPatch {
		layout.Payload, layout.Base = nil, nil
		for _, s := range segs {
			if s.Hot() {
				layout.Payload = append(layout.Payload, s)
			} else {
				layout.Base = append(layout.Base, s)
			}
		}
	}
	return layout, nil
}

// Flatten lays the segments out contiguously from the lowest address,
// zero-filling gaps, the way objcopy -O binary does.
// Segments must be sorted by address.
func Flatten(segs []Segment) ([]byte, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	start := uint64(segs[0].Address)
	var end uint64
	for _, s := range segs {
		if uint64(s.Address) < start {
			return nil, malformed("segment at 0x%x is below the first segment at 0x%x", s.Address, start)
		}
		if s.End() > addressSpace {
			return nil, malformed("segment at 0x%x runs past the end of memory", s.Address)
		}
		end = max(end, s.End())
	}
	if size := end - start; size > types.MaxImageSize {
		return nil, malformed("flattened image spans %d bytes", size)
	}

	out := make([]byte, end-start)
	for _, s := range segs {
		copy(out[uint64(s.Address)-start:], s.Data)
	}
	return out, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrMalformedImage, fmt.Sprintf(format, args...))
}
