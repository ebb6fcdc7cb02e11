// Package ndsexec implements the main-code section table and the
// overlay-table record layout shared by the ARM9 main-code path and
// the overlay-table path of a ROM image (spec §4.9).
package ndsexec

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/codecomp"
	"github.com/nds-tools/ndscore/ndserr"
)

// compressedFlag is bit 0 of a main-code settings block's compression
// flags word, and also bit 0 of the flag byte held in the top eight
// bits of an overlay record's packed compressed-size-and-flags word.
const compressedFlag = 1 << 0

// verifyHashFlag is bit 1 of an overlay record's flag byte.
const verifyHashFlag = 1 << 1

// Section is one entry of a main-code settings block: a byte range of
// the (decompressed) main blob, its RAM destination, and the .bss
// size to zero-fill after it at load time.
type Section struct {
	DestAddr uint32
	BSSSize  uint32
	Data     []byte
}

// MainCode is a parsed ARM9/ARM7 main-code blob: a residual "implicit"
// first section (the code preceding any declared section, loaded at
// the ROM header's own entry/load address) plus the declared sections
// peeled out of the settings block.
type MainCode struct {
	// CompressionFlags is the settings block's compression-flags word,
	// preserved verbatim across round-trip. Bit 0 mirrors whether the
	// blob codecomp decompressed was actually compressed; codecomp's
	// own self-describing footer (spec §4.3) is authoritative for
	// whether to decompress, so this field is bookkeeping rather than
	// a second source of truth.
	CompressionFlags uint32
	ImplicitData     []byte
	Sections         []Section
}

// ParseMainCode decodes buf (the raw, possibly code-compressed main
// blob) given settingsOffset, the byte offset within the *decompressed*
// blob at which the settings block begins.
func ParseMainCode(buf []byte, settingsOffset int) (*MainCode, error) {
	decompressed, err := codecomp.Decompress(buf)
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, 0, err, "ndsexec: decompressing main code")
	}

	r := bytecursor.NewReader(decompressed)
	if err := r.Seek(settingsOffset); err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(settingsOffset), err, "ndsexec: seeking to code settings block")
	}
	flags, err := r.ReadU32()
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(r.Tell()), err, "ndsexec: reading compression flags")
	}
	count, err := r.ReadU32()
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(r.Tell()), err, "ndsexec: reading section count")
	}

	type rawSection struct {
		sourceOffset, destAddr, length, bssSize uint32
	}
	raw := make([]rawSection, count)
	for i := range raw {
		so, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		da, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		length, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		bss, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		raw[i] = rawSection{sourceOffset: so, destAddr: da, length: length, bssSize: bss}
	}

	implicitEnd := settingsOffset
	if len(raw) > 0 {
		implicitEnd = int(raw[0].sourceOffset)
	}
	implicit, err := r.ReadAt(0, implicitEnd)
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, 0, err, "ndsexec: reading implicit section")
	}

	sections := make([]Section, len(raw))
	for i, rs := range raw {
		data, err := r.ReadAt(int(rs.sourceOffset), int(rs.length))
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(rs.sourceOffset), err, "ndsexec: reading section %d", i)
		}
		sections[i] = Section{DestAddr: rs.destAddr, BSSSize: rs.bssSize, Data: append([]byte(nil), data...)}
	}

	return &MainCode{
		CompressionFlags: flags,
		ImplicitData:     append([]byte(nil), implicit...),
		Sections:         sections,
	}, nil
}

// EmitMainCode serializes m back into a main-code blob, laying the
// implicit section and declared sections out contiguously and
// appending the settings block at the end. If compress is true the
// result is passed through codecomp.Compress.
func EmitMainCode(m *MainCode, compress bool, compressOpts codecomp.CompressOptions) (blob []byte, settingsOffset int, err error) {
	w := bytecursor.NewWriter()
	w.WriteBytes(m.ImplicitData)

	sourceOffsets := make([]uint32, len(m.Sections))
	for i, s := range m.Sections {
		sourceOffsets[i] = uint32(w.Len())
		w.WriteBytes(s.Data)
	}

	settingsOffset = w.Len()
	w.WriteU32(m.CompressionFlags)
	w.WriteU32(uint32(len(m.Sections)))
	for i, s := range m.Sections {
		w.WriteU32(sourceOffsets[i])
		w.WriteU32(s.DestAddr)
		w.WriteU32(uint32(len(s.Data)))
		w.WriteU32(s.BSSSize)
	}

	blob = w.Bytes()
	if compress {
		blob = codecomp.Compress(blob, compressOpts)
	}
	return blob, settingsOffset, nil
}

// IsCompressed reports whether bit 0 of the settings block's
// compression-flags word is set.
func (m *MainCode) IsCompressed() bool {
	return m.CompressionFlags&compressedFlag != 0
}

// OverlayRecord is one 32-byte entry of an overlay table.
type OverlayRecord struct {
	ID              uint32
	RAMAddr         uint32
	RAMSize         uint32
	BSSSize         uint32
	StaticInitStart uint32
	StaticInitEnd   uint32
	FileID          uint32
	CompressedSize  uint32
	Compressed      bool
	VerifyHash      bool
}

const overlayRecordSize = 32

// ParseOverlayTable decodes buf as a flat array of 32-byte overlay
// records.
func ParseOverlayTable(buf []byte) ([]OverlayRecord, error) {
	if len(buf)%overlayRecordSize != 0 {
		return nil, ndserr.At(ndserr.MalformedROM, int64(len(buf)), "ndsexec: overlay table size %d not a multiple of %d", len(buf), overlayRecordSize)
	}
	count := len(buf) / overlayRecordSize
	r := bytecursor.NewReader(buf)
	records := make([]OverlayRecord, count)
	for i := range records {
		id, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		ramAddr, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		ramSize, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		bssSize, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		initStart, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		initEnd, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		fileID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		packed, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		flags := uint8(packed >> 24)
		records[i] = OverlayRecord{
			ID: id, RAMAddr: ramAddr, RAMSize: ramSize, BSSSize: bssSize,
			StaticInitStart: initStart, StaticInitEnd: initEnd, FileID: fileID,
			CompressedSize: packed & 0x00FFFFFF,
			Compressed:     flags&compressedFlag != 0,
			VerifyHash:     flags&verifyHashFlag != 0,
		}
	}
	return records, nil
}

// EmitOverlayTable is ParseOverlayTable's inverse.
func EmitOverlayTable(records []OverlayRecord) []byte {
	w := bytecursor.NewWriter()
	for _, rec := range records {
		w.WriteU32(rec.ID)
		w.WriteU32(rec.RAMAddr)
		w.WriteU32(rec.RAMSize)
		w.WriteU32(rec.BSSSize)
		w.WriteU32(rec.StaticInitStart)
		w.WriteU32(rec.StaticInitEnd)
		w.WriteU32(rec.FileID)
		var flags uint8
		if rec.Compressed {
			flags |= compressedFlag
		}
		if rec.VerifyHash {
			flags |= verifyHashFlag
		}
		packed := (rec.CompressedSize & 0x00FFFFFF) | uint32(flags)<<24
		w.WriteU32(packed)
	}
	return w.Bytes()
}

// Overlay is one overlay's record plus its decompressed payload.
type Overlay struct {
	Record OverlayRecord
	Data   []byte
}

// LoadOverlay decodes one overlay given its record and the raw bytes
// of the ROM file named by rec.FileID.
func LoadOverlay(rec OverlayRecord, fileData []byte) (*Overlay, error) {
	data := fileData
	if rec.Compressed {
		var err error
		data, err = codecomp.Decompress(fileData)
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(rec.FileID), err, "ndsexec: decompressing overlay %d", rec.ID)
		}
	}
	return &Overlay{Record: rec, Data: data}, nil
}

// SaveOverlay is LoadOverlay's inverse: it returns the bytes that
// should be written as the overlay's ROM file and an updated record
// whose CompressedSize reflects those bytes.
func SaveOverlay(o *Overlay) (fileData []byte, rec OverlayRecord) {
	rec = o.Record
	fileData = o.Data
	if rec.Compressed {
		fileData = codecomp.Compress(o.Data, codecomp.CompressOptions{})
	}
	rec.CompressedSize = uint32(len(fileData))
	return fileData, rec
}
