// Package bmg implements the Nintendo DS message-container framing
// (spec §6): the MESGbmg1 header, the INF1 metadata table, the DAT1
// string pool, and optional FLW1/FLI1 script blocks kept as opaque
// passthrough. Message text is never decoded past the byte level —
// BMG script interpretation and charset decoding are explicit
// Non-goals (spec.md §1) — except for the escape-sequence framing
// named in spec §6, which this package does split out.
package bmg

import (
	"bytes"

	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
)

const (
	magic = "MESGbmg1"

	magicINF1 = "INF1"
	magicDAT1 = "DAT1"
	magicFLW1 = "FLW1"
	magicFLI1 = "FLI1"

	headerSize = 0x20
)

// Encoding values for BMG.Encoding (spec §6).
const (
	EncodingCP1252   uint8 = 1
	EncodingUTF16    uint8 = 2
	EncodingShiftJIS uint8 = 3
	EncodingUTF8     uint8 = 4
)

// codeUnitWidth returns the byte width of one character in the given
// encoding: 2 for UTF-16, 1 for every single-byte/variable-byte
// encoding this package treats opaquely.
func codeUnitWidth(encoding uint8) int {
	if encoding == EncodingUTF16 {
		return 2
	}
	return 1
}

// escapeMarker returns the byte encoding of the U+001A escape-start
// code point in the given encoding (spec §6), little-endian per
// this package's Open Question decision that BMG carries no
// endianness-quirk BOM of its own (unlike ROM/NARC/SDAT, spec §3) and
// so "container endianness" defaults to little-endian throughout.
func escapeMarker(encoding uint8) []byte {
	if encoding == EncodingUTF16 {
		return []byte{0x1A, 0x00}
	}
	return []byte{0x1A}
}

// Message is one INF1/DAT1 entry: fixed-size per-record attribute
// bytes beyond the mandatory DAT1 offset, plus the raw encoded text
// (without its NUL terminator, which Parse/Emit add and strip).
type Message struct {
	Attributes []byte
	Text       []byte
}

// BMG is a parsed message container.
type BMG struct {
	Encoding uint8
	// RecordSize is the INF1 "info length": 4 (the DAT1 offset) plus
	// len(Attributes), uniform across every message.
	RecordSize uint16
	// HeaderReserved preserves the 15 header bytes past the encoding
	// byte verbatim; some BMG variants stash a region/file id there.
	HeaderReserved [15]byte

	Messages []Message

	// FLW1 and FLI1 are kept as opaque byte blocks when present (spec
	// §6 lists them as optional; interpreting their script contents is
	// an explicit Non-goal).
	FLW1 []byte
	FLI1 []byte
}

// MessagePart is one unit of a message's text: either a plain run or
// an escape sequence (spec §6's escape-sequence framing).
type MessagePart struct {
	IsEscape bool

	Plain []byte // valid when !IsEscape

	EscapeType byte   // valid when IsEscape
	Operand    []byte // valid when IsEscape
}

// Parse decodes a complete BMG container.
func Parse(buf []byte) (*BMG, error) {
	if len(buf) < headerSize {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(len(buf)), "bmg: input shorter than header")
	}
	if string(buf[0:8]) != magic {
		return nil, ndserr.At(ndserr.InvalidMagic, 0, "bmg: expected magic %q", magic)
	}

	r := bytecursor.NewReader(buf)
	if err := r.Seek(8); err != nil {
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // total size, recomputed on emit
		return nil, ndserr.Wrap(ndserr.MalformedBMG, 8, err, "bmg: reading total size")
	}
	sectionCount, err := r.ReadU32()
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedBMG, int64(r.Tell()), err, "bmg: reading section count")
	}
	encoding, err := r.ReadU8()
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedBMG, int64(r.Tell()), err, "bmg: reading encoding byte")
	}
	reserved, err := r.ReadBytes(15)
	if err != nil {
		return nil, err
	}
	b := &BMG{Encoding: encoding}
	copy(b.HeaderReserved[:], reserved)

	width := codeUnitWidth(encoding)

	var records []struct {
		dat1Offset uint32
		attrs      []byte
	}
	var dat1Payload []byte

	for i := uint32(0); i < sectionCount; i++ {
		sectionStart := r.Tell()
		sectionMagic, err := r.ReadBytes(4)
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedBMG, int64(sectionStart), err, "bmg: reading section %d magic", i)
		}
		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, err
		}

		switch string(sectionMagic) {
		case magicINF1:
			count, err := r.ReadU16()
			if err != nil {
				return nil, err
			}
			recordSize, err := r.ReadU16()
			if err != nil {
				return nil, err
			}
			if recordSize < 4 {
				return nil, ndserr.At(ndserr.MalformedBMG, int64(r.Tell()), "bmg: INF1 record size %d smaller than the mandatory 4-byte offset", recordSize)
			}
			b.RecordSize = recordSize
			records = make([]struct {
				dat1Offset uint32
				attrs      []byte
			}, count)
			for j := range records {
				recBytes, err := r.ReadBytes(int(recordSize))
				if err != nil {
					return nil, ndserr.Wrap(ndserr.MalformedBMG, int64(r.Tell()), err, "bmg: reading INF1 record %d", j)
				}
				recReader := bytecursor.NewReader(recBytes)
				off, _ := recReader.ReadU32()
				records[j].dat1Offset = off
				records[j].attrs = append([]byte(nil), recBytes[4:]...)
			}
		case magicDAT1:
			payload, err := r.ReadBytes(int(sectionSize) - 8)
			if err != nil {
				return nil, ndserr.Wrap(ndserr.MalformedBMG, int64(r.Tell()), err, "bmg: reading DAT1 payload")
			}
			dat1Payload = payload
		case magicFLW1:
			payload, err := r.ReadBytes(int(sectionSize) - 8)
			if err != nil {
				return nil, err
			}
			b.FLW1 = append([]byte(nil), payload...)
		case magicFLI1:
			payload, err := r.ReadBytes(int(sectionSize) - 8)
			if err != nil {
				return nil, err
			}
			b.FLI1 = append([]byte(nil), payload...)
		default:
			if _, err := r.ReadBytes(int(sectionSize) - 8); err != nil {
				return nil, err
			}
		}

		if err := r.Seek(sectionStart + int(sectionSize)); err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedBMG, int64(sectionStart), err, "bmg: section %d size runs past buffer", i)
		}
	}

	if records != nil && dat1Payload == nil {
		return nil, ndserr.New(ndserr.MalformedBMG, "bmg: INF1 present without a DAT1 section")
	}

	b.Messages = make([]Message, len(records))
	for i, rec := range records {
		text, err := readTerminatedString(dat1Payload, int(rec.dat1Offset), width)
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedBMG, int64(rec.dat1Offset), err, "bmg: reading message %d text", i)
		}
		b.Messages[i] = Message{Attributes: rec.attrs, Text: text}
	}

	return b, nil
}

// readTerminatedString reads a width-aligned NUL-terminated string
// from payload starting at offset, returning the bytes before the
// terminator.
func readTerminatedString(payload []byte, offset, width int) ([]byte, error) {
	pos := offset
	for {
		if pos+width > len(payload) {
			return nil, ndserr.At(ndserr.OutOfBounds, int64(pos), "bmg: unterminated message string")
		}
		isZero := true
		for k := 0; k < width; k++ {
			if payload[pos+k] != 0 {
				isZero = false
				break
			}
		}
		if isZero {
			return append([]byte(nil), payload[offset:pos]...), nil
		}
		pos += width
	}
}

// Emit serializes b into the BMG wire format.
func Emit(b *BMG) ([]byte, error) {
	width := codeUnitWidth(b.Encoding)
	recordSize := b.RecordSize
	if recordSize < 4 {
		recordSize = 4
	}
	for i, m := range b.Messages {
		if len(m.Attributes) > int(recordSize)-4 {
			return nil, ndserr.New(ndserr.PreconditionFailed, "bmg: message %d has %d attribute bytes, exceeds record size %d", i, len(m.Attributes), recordSize)
		}
	}

	w := bytecursor.NewWriter()
	w.WriteBytes([]byte(magic))
	totalSizeAnchor := w.Reserve(4)
	sectionCount := uint32(2)
	if b.FLW1 != nil {
		sectionCount++
	}
	if b.FLI1 != nil {
		sectionCount++
	}
	w.WriteU32(sectionCount)
	w.WriteU8(b.Encoding)
	w.WriteBytes(b.HeaderReserved[:])

	// DAT1 payload is built first so INF1's offsets are known.
	dat1 := bytecursor.NewWriter()
	offsets := make([]uint32, len(b.Messages))
	for i, m := range b.Messages {
		offsets[i] = uint32(dat1.Len())
		dat1.WriteBytes(m.Text)
		dat1.WriteZeros(width) // NUL terminator
	}

	infoStart := w.Len()
	w.WriteBytes([]byte(magicINF1))
	infoSizeAnchor := w.Reserve(4)
	w.WriteU16(uint16(len(b.Messages)))
	w.WriteU16(recordSize)
	for i, m := range b.Messages {
		w.WriteU32(offsets[i])
		attrPad := int(recordSize) - 4 - len(m.Attributes)
		w.WriteBytes(m.Attributes)
		if attrPad > 0 {
			w.WriteZeros(attrPad)
		}
	}
	w.Align(4)
	if err := w.PatchU32At(infoSizeAnchor, uint32(w.Len()-infoStart)); err != nil {
		return nil, err
	}

	dat1Start := w.Len()
	w.WriteBytes([]byte(magicDAT1))
	dat1SizeAnchor := w.Reserve(4)
	w.WriteBytes(dat1.Bytes())
	w.Align(4)
	if err := w.PatchU32At(dat1SizeAnchor, uint32(w.Len()-dat1Start)); err != nil {
		return nil, err
	}

	if b.FLW1 != nil {
		flw1Start := w.Len()
		w.WriteBytes([]byte(magicFLW1))
		sizeAnchor := w.Reserve(4)
		w.WriteBytes(b.FLW1)
		w.Align(4)
		if err := w.PatchU32At(sizeAnchor, uint32(w.Len()-flw1Start)); err != nil {
			return nil, err
		}
	}
	if b.FLI1 != nil {
		fli1Start := w.Len()
		w.WriteBytes([]byte(magicFLI1))
		sizeAnchor := w.Reserve(4)
		w.WriteBytes(b.FLI1)
		w.Align(4)
		if err := w.PatchU32At(sizeAnchor, uint32(w.Len()-fli1Start)); err != nil {
			return nil, err
		}
	}

	if err := w.PatchU32At(totalSizeAnchor, uint32(w.Len())); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// SplitParts decodes text (a message's raw encoded bytes, without its
// terminator) into a sequence of plain runs and escape sequences
// (spec §6).
func SplitParts(text []byte, encoding uint8) ([]MessagePart, error) {
	width := codeUnitWidth(encoding)
	marker := escapeMarker(encoding)

	var parts []MessagePart
	plainStart := 0
	pos := 0
	for pos+width <= len(text) {
		if !bytes.Equal(text[pos:pos+width], marker) {
			pos += width
			continue
		}
		if pos > plainStart {
			parts = append(parts, MessagePart{Plain: append([]byte(nil), text[plainStart:pos]...)})
		}

		lengthPos := pos + width
		if lengthPos >= len(text) {
			return nil, ndserr.At(ndserr.MalformedBMG, int64(pos), "bmg: truncated escape sequence")
		}
		length := int(text[lengthPos])
		typePos := lengthPos + 1
		if typePos >= len(text) {
			return nil, ndserr.At(ndserr.MalformedBMG, int64(pos), "bmg: truncated escape sequence")
		}
		typ := text[typePos]
		operandLen := length - 3 - width
		if operandLen < 0 {
			return nil, ndserr.At(ndserr.MalformedBMG, int64(pos), "bmg: escape length %d too small for encoding width %d", length, width)
		}
		operandStart := typePos + 1
		operandEnd := operandStart + operandLen
		if operandEnd > len(text) {
			return nil, ndserr.At(ndserr.MalformedBMG, int64(pos), "bmg: escape operand runs past message text")
		}
		parts = append(parts, MessagePart{
			IsEscape:   true,
			EscapeType: typ,
			Operand:    append([]byte(nil), text[operandStart:operandEnd]...),
		})

		pos += length - 1
		plainStart = pos
	}
	if plainStart < len(text) {
		parts = append(parts, MessagePart{Plain: append([]byte(nil), text[plainStart:]...)})
	}
	return parts, nil
}

// JoinParts is SplitParts's inverse.
func JoinParts(parts []MessagePart, encoding uint8) []byte {
	width := codeUnitWidth(encoding)
	marker := escapeMarker(encoding)

	w := bytecursor.NewWriter()
	for _, p := range parts {
		if !p.IsEscape {
			w.WriteBytes(p.Plain)
			continue
		}
		w.WriteBytes(marker)
		length := len(p.Operand) + 3 + width
		w.WriteU8(uint8(length))
		w.WriteU8(p.EscapeType)
		w.WriteBytes(p.Operand)
	}
	return w.Bytes()
}
