package patch

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pithecene-io/brainlink/types"
)

// BlockSize is the width of the rolling-hash window and the shortest match
// the encoder will emit as a copy.
const BlockSize = 16

// maxCandidates bounds how many reference offsets are kept per hash.
const maxCandidates = 8

const hashBase uint32 = 257

// Encode computes a patch that transforms old into target. It is deterministic:
// the same inputs always produce the same bytes.
func Encode(old, target []byte) []byte {
	e := &encoder{old: old, target: target}
	e.writeHeader()
	e.diff()
	e.out = append(e.out, OpEnd)
	return binary.BigEndian.AppendUint32(e.out, crc32.ChecksumIEEE(e.out))
}

type encoder struct {
	old, target []byte
	out         []byte
}

func (e *encoder) writeHeader() {
	e.out = append(e.out, Magic...)
	e.out = append(e.out, Version)
	e.out = binary.AppendUvarint(e.out, uint64(len(e.old)))
	e.out = binary.AppendUvarint(e.out, uint64(len(e.target)))
	refFP := types.FingerprintOf(e.old)
	targetFP := types.FingerprintOf(e.target)
	e.out = append(e.out, refFP[:]...)
	e.out = append(e.out, targetFP[:]...)
}

func (e *encoder) copyOp(off, n int) {
	e.out = append(e.out, OpCopy)
	e.out = binary.AppendUvarint(e.out, uint64(off))
	e.out = binary.AppendUvarint(e.out, uint64(n))
}

func (e *encoder) insertOp(lit []byte) {
	if len(lit) == 0 {
		return
	}
	e.out = append(e.out, OpInsert)
	e.out = binary.AppendUvarint(e.out, uint64(len(lit)))
	e.out = append(e.out, lit...)
}

// diff scans target one byte at a time, looking up each window's rolling hash
// in a block index of old. Matches are extended in both directions before
// being emitted; bytes between matches become literals.
func (e *encoder) diff() {
	old, target := e.old, e.target
	if len(old) < BlockSize || len(target) < BlockSize {
		e.insertOp(target)
		return
	}

	index := buildIndex(old)
	pow := power(BlockSize - 1)

	lit := 0 // start of pending literal run
	pos := 0
	h := windowHash(target[0:BlockSize])
	for pos+BlockSize <= len(target) {
		if off, n := e.bestMatch(index[h], pos); n > 0 {
			// Extend backwards into the pending literals.
			for off > 0 && pos > lit && old[off-1] == target[pos-1] {
				off--
				pos--
				n++
			}
			e.insertOp(target[lit:pos])
			e.copyOp(off, n)
			pos += n
			lit = pos
			if pos+BlockSize <= len(target) {
				h = windowHash(target[pos : pos+BlockSize])
			}
			continue
		}
		if pos+BlockSize < len(target) {
			h = (h-uint32(target[pos])*pow)*hashBase + uint32(target[pos+BlockSize])
		}
		pos++
	}
	e.insertOp(target[lit:])
}

// bestMatch returns the longest forward match among candidates, or n == 0.
func (e *encoder) bestMatch(candidates []int, pos int) (off, n int) {
	for _, c := range candidates {
		l := matchLen(e.old[c:], e.target[pos:])
		if l >= BlockSize && l > n {
			off, n = c, l
		}
	}
	return off, n
}

func buildIndex(old []byte) map[uint32][]int {
	index := make(map[uint32][]int, len(old)/BlockSize)
	for off := 0; off+BlockSize <= len(old); off += BlockSize {
		h := windowHash(old[off : off+BlockSize])
		if len(index[h]) < maxCandidates {
			index[h] = append(index[h], off)
		}
	}
	return index
}

func windowHash(b []byte) uint32 {
	var h uint32
	for _, c := range b {
		h = h*hashBase + uint32(c)
	}
	return h
}

func power(n int) uint32 {
	p := uint32(1)
	for range n {
		p *= hashBase
	}
	return p
}

func matchLen(a, b []byte) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
