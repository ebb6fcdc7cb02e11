// Package codecomp implements the reverse-direction, in-place LZSS
// variant used to compress ARM9 main code and overlay payloads on the
// Nintendo DS (spec §4.3). Unlike lz10, both the compressed stream and
// the decompressed output are produced from the tail of the buffer
// toward the head.
package codecomp

import (
	"encoding/binary"

	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
)

const (
	minMatch    = 3
	maxMatch    = minMatch + 0xF
	maxDistance = 0x1000

	// arm9Adjust is the number of filler bytes Compress inserts between
	// the compressed payload and the footer (and counts in the footer's
	// header length) when compressing ARM9 main code rather than an
	// overlay.
	arm9Adjust = 0x4
)

// CompressOptions configures Compress. Arm9Adjust should be set when
// compressing ARM9 main code and left false for overlays.
type CompressOptions struct {
	Arm9Adjust bool
}

// Decompress reverses Compress. src is the full compressed buffer,
// footer included. A footer whose derived decompressed size equals
// len(src) (delta == 0) signals "not compressed"; the bytes ahead of
// the footer's header length are then returned as they are.
func Decompress(src []byte) ([]byte, error) {
	if len(src) < 8 {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(len(src)), "codecomp: input shorter than 8-byte footer")
	}

	footer := src[len(src)-8:]
	headerLenAndCompressedSize := binary.LittleEndian.Uint32(footer[0:4])
	// decompressedSizeDelta is signed: it is negative whenever the
	// compressed encoding of a short or incompressible run is larger
	// than the original bytes it replaced. Reading it as an unsigned
	// uint32 and widening to int would turn -1 into +4294967295 and
	// blow up the allocation below.
	decompressedSizeDelta := int32(binary.LittleEndian.Uint32(footer[4:8]))

	headerLen := int(headerLenAndCompressedSize >> 24)
	compressedSize := int(headerLenAndCompressedSize & 0x00FFFFFF)

	if headerLen > len(src) {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(len(src)), "codecomp: footer header length exceeds buffer")
	}

	if decompressedSizeDelta == 0 {
		// Decompressed size equals the compressed size: nothing was
		// actually compressed, and the literal payload sits untouched
		// directly ahead of the footer (spec §4.3's invariant).
		return append([]byte(nil), src[:len(src)-headerLen]...), nil
	}

	compressedEnd := len(src) - headerLen
	compressedStart := compressedEnd - compressedSize
	if compressedStart < 0 || compressedEnd > len(src) {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(len(src)), "codecomp: footer describes compressed region outside buffer")
	}

	decompressedSize := len(src) + int(decompressedSizeDelta) - headerLen
	if decompressedSize < compressedStart {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(len(src)), "codecomp: derived decompressed size %d smaller than uncompressed prefix %d", decompressedSize, compressedStart)
	}

	out := make([]byte, decompressedSize)
	// The uncompressed prefix (everything before compressedStart) is
	// copied through untouched.
	copy(out, src[:compressedStart])

	srcPos := compressedEnd // exclusive tail cursor into src, moves backward
	dstPos := decompressedSize

	readByte := func() (byte, error) {
		if srcPos <= compressedStart {
			return 0, ndserr.At(ndserr.OutOfBounds, int64(srcPos), "codecomp: truncated compressed region")
		}
		srcPos--
		return src[srcPos], nil
	}

	for dstPos > compressedStart {
		flags, err := readByte()
		if err != nil {
			return nil, err
		}
		for bit := 0; bit < 8 && dstPos > compressedStart; bit++ {
			if flags&(1<<uint(bit)) == 0 {
				b, err := readByte()
				if err != nil {
					return nil, err
				}
				dstPos--
				out[dstPos] = b
				continue
			}
			b0, err := readByte()
			if err != nil {
				return nil, err
			}
			b1, err := readByte()
			if err != nil {
				return nil, err
			}
			// The two-byte token is read tail-first (b0 is the byte
			// nearer the end of the file); spec §4.3 treats it as the
			// same big-endian word shape as lz10, i.e. b0 is the high
			// byte.
			be := uint16(b0)<<8 | uint16(b1)
			length := int((be>>12)&0xF) + minMatch
			distance := int(be&0x0FFF) + 1

			for i := 0; i < length && dstPos > compressedStart; i++ {
				dstPos--
				srcIdx := dstPos + distance
				if srcIdx >= decompressedSize {
					return nil, ndserr.At(ndserr.OutOfBounds, int64(dstPos), "codecomp: back-reference distance %d exceeds decompressed extent", distance)
				}
				out[dstPos] = out[srcIdx]
			}
		}
	}

	return out, nil
}

// Compress produces a code-compressed encoding of src: the original
// bytes up to some split point are emitted untouched, the remainder is
// LZSS-compressed from the tail backward, and an 8-byte footer is
// appended. When opts.Arm9Adjust is set, arm9Adjust filler bytes are
// placed ahead of the footer and counted in its header length. If the
// compressed region would come out exactly as long as src, src is
// stored verbatim behind a "not compressed" footer instead.
func Compress(src []byte, opts CompressOptions) []byte {
	if len(src) == 0 {
		return append([]byte(nil), emptyFooter()...)
	}

	// Compress the whole buffer from the tail; real-world encoders
	// tune how much of the head to leave uncompressed for headroom,
	// but leaving none is always a valid encoding per spec §4.3.
	compressedStart := 0

	tokens := bytecursor.NewWriter()
	pos := len(src)
	for pos > compressedStart {
		flags := byte(0)
		blockTokens := make([][]byte, 0, 8)
		for bit := 0; bit < 8 && pos > compressedStart; bit++ {
			length, distance := findMatch(src, pos, compressedStart)
			if length >= minMatch {
				be := uint16((length-minMatch)&0xF)<<12 | uint16((distance-1)&0x0FFF)
				blockTokens = append(blockTokens, []byte{byte(be >> 8), byte(be)})
				flags |= 1 << uint(bit)
				pos -= length
			} else {
				pos--
				blockTokens = append(blockTokens, []byte{src[pos]})
			}
		}
		// Tokens within a block, and the tokens' own bytes, are
		// written in the order the tail-first decompressor will
		// consume them: this block's flag byte first (nearest the
		// end of file), then each token nearest-byte-first.
		tokens.WriteU8(flags)
		for _, tok := range blockTokens {
			for _, b := range tok {
				tokens.WriteU8(b)
			}
		}
	}

	w := bytecursor.NewWriter()
	w.WriteBytes(src[:compressedStart])
	compressedBytes := reverseBytes(tokens.Bytes())
	w.WriteBytes(compressedBytes)

	// The ARM9 relocation constant widens the filler region between
	// the compressed payload and the footer (spec §4.3's diagram)
	// rather than the decompressed-size-delta field, so that the
	// round-trip invariant (testable property §8.3) holds for both
	// values of Arm9Adjust: the header's "header length" already
	// covers arbitrary filler, while the delta stays tied purely to
	// the actual content length.
	filler := 0
	if opts.Arm9Adjust {
		filler = arm9Adjust
	}
	w.WriteZeros(filler)
	headerLen := 8 + filler
	compressedSize := len(compressedBytes)
	headerLenAndCompressedSize := uint32(headerLen)<<24 | uint32(compressedSize&0x00FFFFFF)
	// Signed: the compressed region is routinely larger than the
	// bytes it replaces (every 8-literal block costs one flag byte),
	// so this is negative far more often than not.
	decompressedSizeDelta := int32(len(src) - compressedStart - compressedSize)
	if decompressedSizeDelta == 0 {
		// A zero delta is the "not compressed" sentinel, so a payload
		// whose compressed size equals its length is stored verbatim.
		return append(append([]byte(nil), src...), emptyFooter()...)
	}

	w.WriteU32(headerLenAndCompressedSize)
	w.WriteU32(uint32(decompressedSizeDelta))
	return w.Bytes()
}

func emptyFooter() []byte {
	w := bytecursor.NewWriter()
	w.WriteU32(8 << 24)
	w.WriteU32(0)
	return w.Bytes()
}

// reverseBytes returns a new slice with b's bytes in reverse order.
// tokens is built head-to-tail in decode order (nearest-EOF byte
// first); the compressed region on disk is laid out head-to-tail in
// the opposite direction, so the in-memory token stream is reversed
// once before being appended to the output buffer.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// findMatch looks for the longest back-reference for the bytes ending
// just before pos (the next bytes the tail-first decompressor will
// fill in) against the region at index >= pos, which decompression
// will already have produced by the time it reaches this token. A
// distance d references the window ending at index pos-1+d; d must be
// at least 1 so the referenced window never dips below pos.
func findMatch(src []byte, pos, compressedStart int) (length, distance int) {
	limit := pos - compressedStart
	if limit > maxMatch {
		limit = maxMatch
	}
	maxD := len(src) - pos
	if maxD > maxDistance {
		maxD = maxDistance
	}
	bestLen, bestDist := 0, 0
	for d := 1; d <= maxD; d++ {
		refEnd := pos - 1 + d
		l := 0
		for l < limit && refEnd-l >= 0 && src[refEnd-l] == src[pos-1-l] {
			l++
		}
		if l > bestLen {
			bestLen = l
			bestDist = d
		}
	}
	return bestLen, bestDist
}
