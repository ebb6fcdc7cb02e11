// Package lz10 implements the forward LZSS codec identified by a
// leading 0x10 tag byte, used for ARM9-adjacent and SDAT asset
// compression on the Nintendo DS (spec §4.2).
package lz10

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
)

const (
	tagByte     = 0x10
	minMatch    = 3
	maxMatch    = minMatch + 0xF // 18
	maxDistance = 0x1000
)

// Decompress reads an LZ10 stream: a 4-byte header (tag 0x10 + 24-bit
// little-endian uncompressed length) followed by flag/token blocks,
// and returns the decompressed bytes.
func Decompress(src []byte) ([]byte, error) {
	r := bytecursor.NewReader(src)
	tag, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	if tag != tagByte {
		return nil, ndserr.At(ndserr.InvalidMagic, 0, "lz10: expected tag %#x, got %#x", tagByte, tag)
	}
	size, err := r.ReadU24()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, size)
	for uint32(len(out)) < size {
		flags, err := r.ReadU8()
		if err != nil {
			return nil, truncated(r)
		}
		for bit := 7; bit >= 0 && uint32(len(out)) < size; bit-- {
			if flags&(1<<uint(bit)) == 0 {
				b, err := r.ReadU8()
				if err != nil {
					return nil, truncated(r)
				}
				out = append(out, b)
				continue
			}
			word, err := r.ReadU16()
			if err != nil {
				return nil, truncated(r)
			}
			// word is read little-endian by the cursor; spec §4.2
			// describes it as a 16-bit big-endian word, i.e. the
			// first byte read holds the high bits.
			hi := byte(word)
			lo := byte(word >> 8)
			be := uint16(hi)<<8 | uint16(lo)
			length := int((be>>12)&0xF) + minMatch
			distance := int(be&0x0FFF) + 1
			if distance > len(out) {
				return nil, ndserr.At(ndserr.OutOfBounds, int64(r.Tell()), "lz10: back-reference distance %d exceeds %d decoded bytes", distance, len(out))
			}
			start := len(out) - distance
			for i := 0; i < length; i++ {
				out = append(out, out[start+i])
			}
		}
	}
	return out, nil
}

func truncated(r *bytecursor.Reader) error {
	return ndserr.At(ndserr.OutOfBounds, int64(r.Tell()), "lz10: truncated input")
}

// Compress produces a valid LZ10 encoding of src using a greedy
// longest-match parse. Any valid encoding round-trips under
// Decompress; this implementation makes no attempt at optimal parsing.
func Compress(src []byte) []byte {
	w := bytecursor.NewWriter()
	w.WriteU8(tagByte)
	w.WriteU24(uint32(len(src)))

	pos := 0
	for pos < len(src) {
		var flags byte
		tokenBuf := bytecursor.NewWriter()
		tokens := 0
		for tokens < 8 && pos < len(src) {
			length, distance := findMatch(src, pos)
			if length >= minMatch {
				be := uint16((length-minMatch)&0xF)<<12 | uint16((distance-1)&0x0FFF)
				// Cursor writes little-endian; emit the big-endian
				// word's high byte first, low byte second.
				tokenBuf.WriteU8(byte(be >> 8))
				tokenBuf.WriteU8(byte(be))
				flags |= 1 << uint(7-tokens)
				pos += length
			} else {
				tokenBuf.WriteU8(src[pos])
				pos++
			}
			tokens++
		}
		w.WriteU8(flags)
		w.WriteBytes(tokenBuf.Bytes())
	}
	return w.Bytes()
}

// findMatch looks for the longest back-reference for src[pos:] within
// the preceding maxDistance bytes, capped at maxMatch, using only
// bytes already "emitted" (i.e. before pos). Overlapping copies
// (distance < length) are valid per spec §4.2 and are considered.
func findMatch(src []byte, pos int) (length, distance int) {
	lo := pos - maxDistance
	if lo < 0 {
		lo = 0
	}
	bestLen, bestDist := 0, 0
	limit := len(src) - pos
	if limit > maxMatch {
		limit = maxMatch
	}
	for cand := lo; cand < pos; cand++ {
		l := 0
		for l < limit && src[cand+l] == src[pos+l] {
			l++
		}
		if l > bestLen {
			bestLen = l
			bestDist = pos - cand
		}
	}
	return bestLen, bestDist
}
