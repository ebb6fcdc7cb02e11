// Package narc implements the Nintendo DS nested-archive container
// (spec §6): a `BTAF` file-allocation table sharing the ROM FAT's
// (start, end) record layout, a `BTNF` filename table reusing the
// fnt package's codec, and a `GMIF` section of concatenated file
// payloads.
package narc

import (
	"encoding/binary"

	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/fnt"
	"github.com/nds-tools/ndscore/ndserr"
)

// FATEntry is one (start, end) byte-offset pair, relative to the start
// of the GMIF payload.
type FATEntry struct {
	Start, End uint32
}

// Archive is a parsed NARC container.
type Archive struct {
	// BigEndianHeader records the byte order the BOM at offset 4
	// declared (spec §3's endianness quirk). That single order
	// governs every multi-byte field in the container, not just the
	// 8-byte magic+BOM prefix: real NARC/SDAT files store the BOM as
	// a whole-file order marker, the same way a Unicode BOM governs
	// an entire text stream rather than just its own bytes.
	BigEndianHeader bool
	Version         uint16

	Root  *fnt.Folder
	Files [][]byte // indexed by file ID
}

const (
	magicNARC = "NARC"
	magicBTAF = "BTAF"
	magicBTNF = "BTNF"
	magicGMIF = "GMIF"

	// bomValue is the canonical byte-order-mark word; only its byte
	// encoding (big- or little-endian) varies between containers.
	bomValue uint16 = 0xFFFE
)

// Parse decodes a complete NARC image.
func Parse(buf []byte) (*Archive, error) {
	if len(buf) < 16 {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(len(buf)), "narc: input shorter than header")
	}
	magic := buf[0:4]
	if string(magic) != magicNARC {
		return nil, ndserr.At(ndserr.InvalidMagic, 0, "narc: expected magic %q", magicNARC)
	}
	bomBuf := buf[4:6]
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint16(bomBuf) == bomValue:
		order = binary.LittleEndian
	case binary.BigEndian.Uint16(bomBuf) == bomValue:
		order = binary.BigEndian
	default:
		return nil, ndserr.At(ndserr.InvalidMagic, 4, "narc: unrecognized byte-order mark %x", bomBuf)
	}
	bigEndianHeader := order == binary.BigEndian

	r := bytecursor.NewReaderOrder(buf, order)
	if err := r.Seek(6); err != nil {
		return nil, err
	}
	version, err := r.ReadU16()
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, 6, err, "narc: reading version")
	}
	if _, err := r.ReadU32(); err != nil { // file size, recomputed on emit
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(r.Tell()), err, "narc: reading file size")
	}
	if _, err := r.ReadU16(); err != nil { // header size, fixed at 16
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(r.Tell()), err, "narc: reading header size")
	}
	if _, err := r.ReadU16(); err != nil { // section count, always 3
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(r.Tell()), err, "narc: reading section count")
	}

	// BTAF
	btafMagic, err := r.ReadBytes(4)
	if err != nil || string(btafMagic) != magicBTAF {
		return nil, ndserr.At(ndserr.InvalidMagic, int64(r.Tell()), "narc: expected %q section", magicBTAF)
	}
	btafSize, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	btafStart := r.Tell()
	fileCount, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // reserved
		return nil, err
	}
	entries := make([]FATEntry, fileCount)
	for i := range entries {
		start, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		end, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		entries[i] = FATEntry{Start: start, End: end}
	}
	if err := r.Seek(btafStart + int(btafSize) - 8); err != nil {
		return nil, err
	}

	// BTNF
	btnfMagic, err := r.ReadBytes(4)
	if err != nil || string(btnfMagic) != magicBTNF {
		return nil, ndserr.At(ndserr.InvalidMagic, int64(r.Tell()), "narc: expected %q section", magicBTNF)
	}
	btnfSize, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	btnfStart := r.Tell()
	fntBytes, err := r.ReadBytes(int(btnfSize) - 8)
	if err != nil {
		return nil, err
	}
	root, err := fnt.Parse(fntBytes)
	if err != nil {
		return nil, err
	}
	if err := r.Seek(btnfStart + int(btnfSize) - 8); err != nil {
		return nil, err
	}

	// GMIF
	gmifMagic, err := r.ReadBytes(4)
	if err != nil || string(gmifMagic) != magicGMIF {
		return nil, ndserr.At(ndserr.InvalidMagic, int64(r.Tell()), "narc: expected %q section", magicGMIF)
	}
	if _, err := r.ReadU32(); err != nil { // GMIF section size
		return nil, err
	}
	gmifDataStart := r.Tell()

	files := make([][]byte, len(entries))
	for i, e := range entries {
		data, err := r.ReadAt(gmifDataStart+int(e.Start), int(e.End-e.Start))
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(e.Start), err, "narc: file %d data out of bounds", i)
		}
		files[i] = append([]byte(nil), data...)
	}

	return &Archive{BigEndianHeader: bigEndianHeader, Version: version, Root: root, Files: files}, nil
}

// Emit serializes a into the NARC wire format. The whole container
// is written in the order a.BigEndianHeader selects (spec §3).
func Emit(a *Archive) ([]byte, error) {
	order := binary.ByteOrder(binary.LittleEndian)
	if a.BigEndianHeader {
		order = binary.BigEndian
	}
	fntBytes, err := fnt.Emit(a.Root)
	if err != nil {
		return nil, err
	}

	w := bytecursor.NewWriterOrder(order)
	w.WriteBytes([]byte(magicNARC))
	w.WriteU16(bomValue)
	w.WriteU16(a.Version)
	fileSizeAnchor := w.Reserve(4)
	w.WriteU16(16) // header size
	w.WriteU16(3)  // section count

	// BTAF
	btafSectionStart := w.Len()
	w.WriteBytes([]byte(magicBTAF))
	btafSizeAnchor := w.Reserve(4)
	w.WriteU16(uint16(len(a.Files)))
	w.WriteU16(0)
	offset := uint32(0)
	entries := make([]FATEntry, len(a.Files))
	for i, f := range a.Files {
		entries[i] = FATEntry{Start: offset, End: offset + uint32(len(f))}
		offset += uint32(len(f))
		w.WriteU32(entries[i].Start)
		w.WriteU32(entries[i].End)
	}
	if err := w.PatchU32At(btafSizeAnchor, uint32(w.Len()-btafSectionStart)); err != nil {
		return nil, err
	}

	// BTNF
	btnfSectionStart := w.Len()
	w.WriteBytes([]byte(magicBTNF))
	btnfSizeAnchor := w.Reserve(4)
	w.WriteBytes(fntBytes)
	w.Align(4)
	if err := w.PatchU32At(btnfSizeAnchor, uint32(w.Len()-btnfSectionStart)); err != nil {
		return nil, err
	}

	// GMIF
	gmifSectionStart := w.Len()
	w.WriteBytes([]byte(magicGMIF))
	gmifSizeAnchor := w.Reserve(4)
	for _, f := range a.Files {
		w.WriteBytes(f)
	}
	if err := w.PatchU32At(gmifSizeAnchor, uint32(w.Len()-gmifSectionStart)); err != nil {
		return nil, err
	}

	if err := w.PatchU32At(fileSizeAnchor, uint32(w.Len())); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
