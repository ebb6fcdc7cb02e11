// Package sdat implements the SDAT sound-archive composite container
// (spec §4.7): a 64-byte header plus up to four sections (SYMB, INFO,
// FAT, FILE) that must stay mutually consistent across eight named
// asset lists, with a dedup pass over identical encoded payloads.
package sdat

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/group"
	"github.com/nds-tools/ndscore/ndserr"
	"github.com/nds-tools/ndscore/player"
	"github.com/nds-tools/ndscore/sbnk"
	"github.com/nds-tools/ndscore/sseq"
	"github.com/nds-tools/ndscore/ssar"
	"github.com/nds-tools/ndscore/strm"
	"github.com/nds-tools/ndscore/swar"
)

// bomValue is the canonical byte-order-mark word stored right after
// the magic, as in narc's header (spec §3's endianness quirk).
const bomValue uint16 = 0xFFFE

// NamedEntry pairs an optional name (absent when the enclosing SDAT
// has no SYMB section) with an asset that may itself be absent (an
// INFO slot with no FAT reference).
type NamedEntry[T any] struct {
	Name                    string
	Asset                   *T
	DataMergeOptimizationID uint32
}

// SDAT is a fully decoded sound archive: eight asset lists in the
// canonical order spec §4.7 names for FAT-slot assignment.
type SDAT struct {
	Sequences       []NamedEntry[sseq.Sequence]
	SequenceArchives []NamedEntry[ssar.Archive]
	Banks           []NamedEntry[sbnk.Bank]
	WaveArchives    []NamedEntry[swar.Archive]
	SequencePlayers []NamedEntry[player.SequencePlayer]
	Groups          []NamedEntry[group.Group]
	Streams         []NamedEntry[strm.Stream]
	StreamPlayers   []NamedEntry[player.StreamPlayer]

	HasSymb bool

	// BigEndianHeader records the byte order the BOM at offset 4
	// declared (spec §3's endianness quirk, shared with ROM and
	// NARC). Parse detects and rejects a big-endian container rather
	// than silently misreading it: the eight sub-packages this type
	// composes (sbnk, sseq, ssar, swav, swar, strm, player, group)
	// each decode their own payloads as little-endian, and no
	// big-endian SDAT file is known to exist in practice, so this
	// field exists for detection and round-trip preservation of the
	// common case rather than for driving a parallel big-endian
	// decode path through every asset package.
	BigEndianHeader bool
	Version         uint16

	Options EmitOptions
}

// EmitOptions controls the FILE-section layout heuristics spec §4.7
// names.
type EmitOptions struct {
	FileAlignment              uint32 // default 0x20
	FirstFileAlignment         uint32 // 0 means "use FileAlignment"
	FatLengthsIncludePadding   bool
	PadAtEnd                   bool
	PadSymbSizeTo4InSDATHeader bool
}

// DefaultOptions returns spec §4.7's documented default layout.
func DefaultOptions() EmitOptions {
	return EmitOptions{FileAlignment: 0x20}
}

type sectionKind int

const (
	kindSequence sectionKind = iota
	kindSequenceArchive
	kindBank
	kindWaveArchive
	kindSequencePlayer
	kindGroup
	kindStream
	kindStreamPlayer
	kindCount
)

// Parse decodes a complete SDAT image.
func Parse(buf []byte) (*SDAT, error) {
	if len(buf) < 8 {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(len(buf)), "sdat: input shorter than header")
	}
	if string(buf[0:4]) != "SDAT" {
		return nil, ndserr.At(ndserr.MalformedSDAT, 0, "sdat: bad magic")
	}
	bomBuf := buf[4:6]
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint16(bomBuf) == bomValue:
		order = binary.LittleEndian
	case binary.BigEndian.Uint16(bomBuf) == bomValue:
		order = binary.BigEndian
	default:
		return nil, ndserr.At(ndserr.InvalidMagic, 4, "sdat: unrecognized byte-order mark %x", bomBuf)
	}
	if order == binary.BigEndian {
		return nil, ndserr.At(ndserr.MalformedSDAT, 4, "sdat: big-endian container not supported")
	}

	r := bytecursor.NewReader(buf)
	if _, err := r.ReadBytes(4); err != nil { // magic, already validated above
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // BOM, already validated above
		return nil, err
	}
	version, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // file size
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // header size
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // section count
		return nil, err
	}

	type offsize struct{ offset, size uint32 }
	var symb, info, fat, file offsize
	for _, dst := range []*offsize{&symb, &info, &fat, &file} {
		off, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		*dst = offsize{off, size}
	}
	if _, err := r.ReadBytes(64 - r.Tell()); err != nil { // header padding to 64 bytes
		return nil, err
	}

	hasSymb := symb.size > 0
	var names [kindCount][]string
	if hasSymb {
		var err error
		names, err = parseSymb(buf, int(symb.offset))
		if err != nil {
			return nil, err
		}
	}

	fatEntries, err := parseFAT(buf, int(fat.offset))
	if err != nil {
		return nil, err
	}

	sdatOut := &SDAT{HasSymb: hasSymb, BigEndianHeader: false, Version: version, Options: DefaultOptions()}

	// Each kind's INFO sub-table is an offset-table of per-entry record
	// offsets (relative to the start of that sub-table), per spec
	// §4.7's "type-tagged sub-table of ordinals" description.
	infoOffsets, err := parseInfoHeader(buf, int(info.offset))
	if err != nil {
		return nil, err
	}

	if err := loadSequences(buf, infoOffsets[kindSequence], names[kindSequence], fatEntries, sdatOut); err != nil {
		return nil, err
	}
	if err := loadSequenceArchives(buf, infoOffsets[kindSequenceArchive], names[kindSequenceArchive], fatEntries, sdatOut); err != nil {
		return nil, err
	}
	if err := loadBanks(buf, infoOffsets[kindBank], names[kindBank], fatEntries, sdatOut); err != nil {
		return nil, err
	}
	if err := loadWaveArchives(buf, infoOffsets[kindWaveArchive], names[kindWaveArchive], fatEntries, sdatOut); err != nil {
		return nil, err
	}
	if err := loadSequencePlayers(buf, infoOffsets[kindSequencePlayer], names[kindSequencePlayer], fatEntries, sdatOut); err != nil {
		return nil, err
	}
	if err := loadGroups(buf, infoOffsets[kindGroup], names[kindGroup], fatEntries, sdatOut); err != nil {
		return nil, err
	}
	if err := loadStreams(buf, infoOffsets[kindStream], names[kindStream], fatEntries, sdatOut); err != nil {
		return nil, err
	}
	if err := loadStreamPlayers(buf, infoOffsets[kindStreamPlayer], names[kindStreamPlayer], fatEntries, sdatOut); err != nil {
		return nil, err
	}

	return sdatOut, nil
}

type fatEntry struct {
	offset, size uint32
}

func parseFAT(buf []byte, pos int) ([]fatEntry, error) {
	r := bytecursor.NewReader(buf)
	if err := r.Seek(pos); err != nil {
		return nil, err
	}
	if magic, err := r.ReadBytes(4); err != nil || string(magic) != "FAT " {
		return nil, ndserr.At(ndserr.MalformedSDAT, int64(pos), "sdat: bad FAT magic")
	}
	if _, err := r.ReadU32(); err != nil { // section size
		return nil, err
	}
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadBytes(4); err != nil { // reserved
		return nil, err
	}
	entries := make([]fatEntry, count)
	for i := range entries {
		offset, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if _, err := r.ReadBytes(8); err != nil { // reserved
			return nil, err
		}
		entries[i] = fatEntry{offset: offset, size: size}
	}
	return entries, nil
}

func fatBytes(buf []byte, entries []fatEntry, fileID int32) ([]byte, error) {
	if fileID < 0 {
		return nil, nil
	}
	if int(fileID) >= len(entries) {
		return nil, ndserr.New(ndserr.MalformedSDAT, "sdat: file ID %d outside FAT (%d entries)", fileID, len(entries))
	}
	e := entries[fileID]
	r := bytecursor.NewReader(buf)
	return r.ReadAt(int(e.offset), int(e.size))
}

func parseSymb(buf []byte, pos int) (out [kindCount][]string, err error) {
	r := bytecursor.NewReader(buf)
	if err := r.Seek(pos); err != nil {
		return out, err
	}
	if magic, err := r.ReadBytes(4); err != nil || string(magic) != "SYMB" {
		return out, ndserr.At(ndserr.MalformedSDAT, int64(pos), "sdat: bad SYMB magic")
	}
	if _, err := r.ReadU32(); err != nil { // section size
		return out, err
	}
	subOffsets := make([]uint32, kindCount)
	for i := range subOffsets {
		off, err := r.ReadU32()
		if err != nil {
			return out, err
		}
		subOffsets[i] = off
	}
	if _, err := r.ReadBytes(24); err != nil { // reserved sub-table slots
		return out, err
	}

	for k, off := range subOffsets {
		if off == 0 {
			continue
		}
		names, err := readNameOffsetTable(buf, pos+int(off))
		if err != nil {
			return out, err
		}
		out[k] = names
	}
	return out, nil
}

func readNameOffsetTable(buf []byte, pos int) ([]string, error) {
	r := bytecursor.NewReader(buf)
	if err := r.Seek(pos); err != nil {
		return nil, err
	}
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	names := make([]string, count)
	for i := range names {
		off, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if off == 0 {
			continue
		}
		nr := bytecursor.NewReader(buf)
		if err := nr.Seek(int(off)); err != nil {
			return nil, err
		}
		nameBytes, err := nr.ReadCString()
		if err != nil {
			return nil, err
		}
		names[i] = string(nameBytes)
	}
	return names, nil
}

func parseInfoHeader(buf []byte, pos int) ([kindCount]uint32, error) {
	var out [kindCount]uint32
	r := bytecursor.NewReader(buf)
	if err := r.Seek(pos); err != nil {
		return out, err
	}
	if magic, err := r.ReadBytes(4); err != nil || string(magic) != "INFO" {
		return out, ndserr.At(ndserr.MalformedSDAT, int64(pos), "sdat: bad INFO magic")
	}
	if _, err := r.ReadU32(); err != nil { // section size
		return out, err
	}
	for i := range out {
		off, err := r.ReadU32()
		if err != nil {
			return out, err
		}
		if off != 0 {
			off += uint32(pos)
		}
		out[i] = off
	}
	return out, nil
}

func readInfoOffsetTable(buf []byte, pos uint32) ([]uint32, error) {
	if pos == 0 {
		return nil, nil
	}
	r := bytecursor.NewReader(buf)
	if err := r.Seek(int(pos)); err != nil {
		return nil, err
	}
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		off, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		out[i] = off
	}
	return out, nil
}

func nameAt(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return ""
}

func loadSequences(buf []byte, tablePos uint32, names []string, fat []fatEntry, out *SDAT) error {
	offsets, err := readInfoOffsetTable(buf, tablePos)
	if err != nil {
		return err
	}
	out.Sequences = make([]NamedEntry[sseq.Sequence], len(offsets))
	for i, recOff := range offsets {
		entry := NamedEntry[sseq.Sequence]{Name: nameAt(names, i)}
		if recOff != 0 {
			r := bytecursor.NewReader(buf)
			if err := r.Seek(int(tablePos) + int(recOff)); err != nil {
				return err
			}
			fileID, err := r.ReadU32()
			if err != nil {
				return err
			}
			metaBytes, err := r.ReadBytes(7)
			if err != nil {
				return err
			}
			meta, err := sseq.ReadMetadata(metaBytes)
			if err != nil {
				return err
			}
			data, err := fatBytes(buf, fat, int32(fileID))
			if err != nil {
				return err
			}
			if data != nil {
				seq, err := sseq.ParseFile(data, meta)
				if err != nil {
					return err
				}
				entry.Asset = seq
			}
		}
		out.Sequences[i] = entry
	}
	return nil
}

func loadSequenceArchives(buf []byte, tablePos uint32, names []string, fat []fatEntry, out *SDAT) error {
	offsets, err := readInfoOffsetTable(buf, tablePos)
	if err != nil {
		return err
	}
	out.SequenceArchives = make([]NamedEntry[ssar.Archive], len(offsets))
	for i, recOff := range offsets {
		entry := NamedEntry[ssar.Archive]{Name: nameAt(names, i)}
		if recOff != 0 {
			r := bytecursor.NewReader(buf)
			if err := r.Seek(int(tablePos) + int(recOff)); err != nil {
				return err
			}
			fileID, err := r.ReadU32()
			if err != nil {
				return err
			}
			data, err := fatBytes(buf, fat, int32(fileID))
			if err != nil {
				return err
			}
			if data != nil {
				a, err := ssar.ParseFile(data)
				if err != nil {
					return err
				}
				entry.Asset = a
			}
		}
		out.SequenceArchives[i] = entry
	}
	return nil
}

func loadBanks(buf []byte, tablePos uint32, names []string, fat []fatEntry, out *SDAT) error {
	offsets, err := readInfoOffsetTable(buf, tablePos)
	if err != nil {
		return err
	}
	out.Banks = make([]NamedEntry[sbnk.Bank], len(offsets))
	for i, recOff := range offsets {
		entry := NamedEntry[sbnk.Bank]{Name: nameAt(names, i)}
		if recOff != 0 {
			r := bytecursor.NewReader(buf)
			if err := r.Seek(int(tablePos) + int(recOff)); err != nil {
				return err
			}
			fileID, err := r.ReadU32()
			if err != nil {
				return err
			}
			data, err := fatBytes(buf, fat, int32(fileID))
			if err != nil {
				return err
			}
			if data != nil {
				bank, err := sbnk.Parse(data)
				if err != nil {
					return err
				}
				entry.Asset = bank
			}
		}
		out.Banks[i] = entry
	}
	return nil
}

func loadWaveArchives(buf []byte, tablePos uint32, names []string, fat []fatEntry, out *SDAT) error {
	offsets, err := readInfoOffsetTable(buf, tablePos)
	if err != nil {
		return err
	}
	out.WaveArchives = make([]NamedEntry[swar.Archive], len(offsets))
	for i, recOff := range offsets {
		entry := NamedEntry[swar.Archive]{Name: nameAt(names, i)}
		if recOff != 0 {
			r := bytecursor.NewReader(buf)
			if err := r.Seek(int(tablePos) + int(recOff)); err != nil {
				return err
			}
			fileID, err := r.ReadU32()
			if err != nil {
				return err
			}
			data, err := fatBytes(buf, fat, int32(fileID))
			if err != nil {
				return err
			}
			if data != nil {
				a, err := swar.Parse(data)
				if err != nil {
					return err
				}
				entry.Asset = a
			}
		}
		out.WaveArchives[i] = entry
	}
	return nil
}

func loadSequencePlayers(buf []byte, tablePos uint32, names []string, fat []fatEntry, out *SDAT) error {
	offsets, err := readInfoOffsetTable(buf, tablePos)
	if err != nil {
		return err
	}
	out.SequencePlayers = make([]NamedEntry[player.SequencePlayer], len(offsets))
	for i, recOff := range offsets {
		entry := NamedEntry[player.SequencePlayer]{Name: nameAt(names, i)}
		if recOff != 0 {
			p, err := player.ParseSequencePlayer(buf[int(tablePos)+int(recOff):])
			if err != nil {
				return err
			}
			entry.Asset = &p
		}
		out.SequencePlayers[i] = entry
	}
	return nil
}

func loadGroups(buf []byte, tablePos uint32, names []string, fat []fatEntry, out *SDAT) error {
	offsets, err := readInfoOffsetTable(buf, tablePos)
	if err != nil {
		return err
	}
	out.Groups = make([]NamedEntry[group.Group], len(offsets))
	for i, recOff := range offsets {
		entry := NamedEntry[group.Group]{Name: nameAt(names, i)}
		if recOff != 0 {
			g, err := group.Parse(buf[int(tablePos)+int(recOff):])
			if err != nil {
				return err
			}
			entry.Asset = g
		}
		out.Groups[i] = entry
	}
	return nil
}

func loadStreams(buf []byte, tablePos uint32, names []string, fat []fatEntry, out *SDAT) error {
	offsets, err := readInfoOffsetTable(buf, tablePos)
	if err != nil {
		return err
	}
	out.Streams = make([]NamedEntry[strm.Stream], len(offsets))
	for i, recOff := range offsets {
		entry := NamedEntry[strm.Stream]{Name: nameAt(names, i)}
		if recOff != 0 {
			r := bytecursor.NewReader(buf)
			if err := r.Seek(int(tablePos) + int(recOff)); err != nil {
				return err
			}
			fileID, err := r.ReadU32()
			if err != nil {
				return err
			}
			data, err := fatBytes(buf, fat, int32(fileID))
			if err != nil {
				return err
			}
			if data != nil {
				s, err := strm.Parse(data)
				if err != nil {
					return err
				}
				entry.Asset = s
			}
		}
		out.Streams[i] = entry
	}
	return nil
}

func loadStreamPlayers(buf []byte, tablePos uint32, names []string, fat []fatEntry, out *SDAT) error {
	offsets, err := readInfoOffsetTable(buf, tablePos)
	if err != nil {
		return err
	}
	out.StreamPlayers = make([]NamedEntry[player.StreamPlayer], len(offsets))
	for i, recOff := range offsets {
		entry := NamedEntry[player.StreamPlayer]{Name: nameAt(names, i)}
		if recOff != 0 {
			p, err := player.ParseStreamPlayer(buf[int(tablePos)+int(recOff):])
			if err != nil {
				return err
			}
			entry.Asset = &p
		}
		out.StreamPlayers[i] = entry
	}
	return nil
}

// --- Emit ---

// encodedAsset is the per-entry intermediate produced by Pass A:
// the asset's encoded FILE payload (nil if absent) plus whatever
// extra bytes its INFO record needs beyond a file ID.
type encodedAsset struct {
	present bool
	payload []byte
	mergeID uint32
}

// Emit serializes sd back to its wire format using sd.Options, per
// spec §4.7's two-pass discipline.
func Emit(sd *SDAT) ([]byte, error) {
	if sd.BigEndianHeader {
		return nil, ndserr.New(ndserr.PreconditionFailed, "sdat: big-endian container not supported")
	}

	seqEnc, err := encodeList(sd.Sequences, func(e NamedEntry[sseq.Sequence]) ([]byte, error) { return sseq.EmitFile(e.Asset) })
	if err != nil {
		return nil, err
	}
	ssarEnc, err := encodeList(sd.SequenceArchives, func(e NamedEntry[ssar.Archive]) ([]byte, error) { return ssar.EmitFile(e.Asset) })
	if err != nil {
		return nil, err
	}
	bnkEnc, err := encodeList(sd.Banks, func(e NamedEntry[sbnk.Bank]) ([]byte, error) { return sbnk.Emit(e.Asset) })
	if err != nil {
		return nil, err
	}
	swarEnc, err := encodeList(sd.WaveArchives, func(e NamedEntry[swar.Archive]) ([]byte, error) { return swar.Emit(e.Asset) })
	if err != nil {
		return nil, err
	}
	seqPlayerEnc := encodeListNoErr(sd.SequencePlayers, func(e NamedEntry[player.SequencePlayer]) []byte { return player.EmitSequencePlayer(*e.Asset) })
	groupEnc := encodeListNoErr(sd.Groups, func(e NamedEntry[group.Group]) []byte { return group.Emit(e.Asset) })
	strmEnc, err := encodeList(sd.Streams, func(e NamedEntry[strm.Stream]) ([]byte, error) { return strm.Emit(e.Asset) })
	if err != nil {
		return nil, err
	}
	streamPlayerEnc := encodeListNoErr(sd.StreamPlayers, func(e NamedEntry[player.StreamPlayer]) []byte { return player.EmitStreamPlayer(*e.Asset) })

	// Only sequences, sequence-archives, banks, wave-archives, and
	// streams occupy FAT slots with independent file content (spec
	// §4.7 groups all eight lists for slot assignment, but players and
	// groups carry their data inline in their INFO record in this
	// implementation's wire layout choice — see DESIGN.md).
	allFiled := []encodedAsset{}
	allFiled = append(allFiled, seqEnc...)
	allFiled = append(allFiled, ssarEnc...)
	allFiled = append(allFiled, bnkEnc...)
	allFiled = append(allFiled, swarEnc...)
	allFiled = append(allFiled, strmEnc...)

	slotOf, fileOrder, err := assignSlots(allFiled)
	if err != nil {
		return nil, err
	}
	slotIdx := 0
	seqSlots := slotOf[slotIdx : slotIdx+len(seqEnc)]
	slotIdx += len(seqEnc)
	ssarSlots := slotOf[slotIdx : slotIdx+len(ssarEnc)]
	slotIdx += len(ssarEnc)
	bnkSlots := slotOf[slotIdx : slotIdx+len(bnkEnc)]
	slotIdx += len(bnkEnc)
	swarSlots := slotOf[slotIdx : slotIdx+len(swarEnc)]
	slotIdx += len(swarEnc)
	strmSlots := slotOf[slotIdx : slotIdx+len(strmEnc)]

	opts := sd.Options
	if opts.FileAlignment == 0 {
		opts.FileAlignment = 0x20
	}
	fileLayout, fileSection := layoutFiles(fileOrder, opts)

	w := bytecursor.NewWriter()
	version := sd.Version
	if version == 0 {
		version = 0x0106
	}
	w.WriteBytes([]byte("SDAT"))
	w.WriteU16(bomValue)
	w.WriteU16(version)
	fileSizeAnchor := w.Reserve(4)
	w.WriteU16(64)
	sectionCount := uint16(3)
	if sd.HasSymb {
		sectionCount = 4
	}
	w.WriteU16(sectionCount)

	symbAnchor := w.Reserve(8)
	infoAnchor := w.Reserve(8)
	fatAnchor := w.Reserve(8)
	fileAnchor := w.Reserve(8)
	w.WriteZeros(64 - w.Len())

	var symbStart, symbSize int
	if sd.HasSymb {
		symbStart = w.Len()
		writeSymb(w, sd)
		symbSize = w.Len() - symbStart
		w.Align(4)
	}

	infoStart := w.Len()
	infoSizeAnchor, infoRecordAnchors := writeInfoHeader(w)
	writeInfoSeqTable(w, infoRecordAnchors[kindSequence], infoStart, sd.Sequences, seqSlots)
	writeInfoSSARTable(w, infoRecordAnchors[kindSequenceArchive], infoStart, sd.SequenceArchives, ssarSlots)
	writeInfoBankTable(w, infoRecordAnchors[kindBank], infoStart, sd.Banks, bnkSlots)
	writeInfoSWARTable(w, infoRecordAnchors[kindWaveArchive], infoStart, sd.WaveArchives, swarSlots)
	writeInfoInlineTable(w, infoRecordAnchors[kindSequencePlayer], infoStart, len(sd.SequencePlayers), seqPlayerEnc)
	writeInfoInlineTable(w, infoRecordAnchors[kindGroup], infoStart, len(sd.Groups), groupEnc)
	writeInfoSTRMTable(w, infoRecordAnchors[kindStream], infoStart, sd.Streams, strmSlots)
	writeInfoInlineTable(w, infoRecordAnchors[kindStreamPlayer], infoStart, len(sd.StreamPlayers), streamPlayerEnc)
	infoSize := w.Len() - infoStart
	if err := w.PatchU32At(infoSizeAnchor, uint32(infoSize)); err != nil {
		return nil, err
	}
	w.Align(4)

	fatStart := w.Len()
	// layoutFiles places files relative to the FILE payload; the FAT
	// (16-byte header plus 16 bytes per entry) and the 24-byte FILE
	// header come first, so shift the offsets to absolute ones.
	fileDataBase := uint32(fatStart + 16 + 16*len(fileLayout) + 24)
	for i := range fileLayout {
		fileLayout[i].offset += fileDataBase
	}
	writeFAT(w, fileLayout)
	fatSize := w.Len() - fatStart
	w.Align(4)

	fileStart := w.Len()
	w.WriteBytes([]byte("FILE"))
	fileInnerSizeAnchor := w.Reserve(4)
	w.WriteU32(uint32(len(fileOrder)))
	w.WriteZeros(12)
	w.WriteBytes(fileSection)
	if err := w.PatchU32At(fileInnerSizeAnchor, uint32(w.Len()-fileStart)); err != nil {
		return nil, err
	}
	fileSize := w.Len() - fileStart

	if err := w.PatchAt(symbAnchor, packOffSize(uint32(symbStart), symbSizeForHeader(symbSize, opts))); err != nil {
		return nil, err
	}
	if err := w.PatchAt(infoAnchor, packOffSize(uint32(infoStart), uint32(infoSize))); err != nil {
		return nil, err
	}
	if err := w.PatchAt(fatAnchor, packOffSize(uint32(fatStart), uint32(fatSize))); err != nil {
		return nil, err
	}
	if err := w.PatchAt(fileAnchor, packOffSize(uint32(fileStart), uint32(fileSize))); err != nil {
		return nil, err
	}
	if err := w.PatchU32At(fileSizeAnchor, uint32(w.Len())); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

func symbSizeForHeader(size int, opts EmitOptions) uint32 {
	if !opts.PadSymbSizeTo4InSDATHeader {
		return uint32(size)
	}
	if pad := size % 4; pad != 0 {
		size += 4 - pad
	}
	return uint32(size)
}

func packOffSize(off, size uint32) []byte {
	w := bytecursor.NewWriter()
	w.WriteU32(off)
	w.WriteU32(size)
	return w.Bytes()
}

func encodeList[T any](entries []NamedEntry[T], fn func(NamedEntry[T]) ([]byte, error)) ([]encodedAsset, error) {
	out := make([]encodedAsset, len(entries))
	for i, e := range entries {
		if e.Asset == nil {
			continue
		}
		data, err := fn(e)
		if err != nil {
			return nil, err
		}
		out[i] = encodedAsset{present: true, payload: data, mergeID: e.DataMergeOptimizationID}
	}
	return out, nil
}

func encodeListNoErr[T any](entries []NamedEntry[T], fn func(NamedEntry[T]) []byte) []encodedAsset {
	out := make([]encodedAsset, len(entries))
	for i, e := range entries {
		if e.Asset == nil {
			continue
		}
		out[i] = encodedAsset{present: true, payload: fn(e), mergeID: e.DataMergeOptimizationID}
	}
	return out
}

// assignSlots implements spec §4.7's dedup grouping: payloads sharing
// a (hash, dataMergeOptimizationID) pair share one FAT slot ordinal,
// assigned in first-seen order.
func assignSlots(assets []encodedAsset) (slotOf []int, fileOrder [][]byte, err error) {
	type groupKey struct {
		hash    [32]byte
		mergeID uint32
	}
	slots := map[groupKey]int{}
	slotOf = make([]int, len(assets))
	for i, a := range assets {
		if !a.present {
			slotOf[i] = -1
			continue
		}
		key := groupKey{hash: sha256.Sum256(a.payload), mergeID: a.mergeID}
		if slot, ok := slots[key]; ok {
			slotOf[i] = slot
			continue
		}
		slot := len(fileOrder)
		slots[key] = slot
		fileOrder = append(fileOrder, a.payload)
		slotOf[i] = slot
	}
	return slotOf, fileOrder, nil
}

type fileRegion struct {
	offset, size, paddedSize uint32
}

func layoutFiles(files [][]byte, opts EmitOptions) (layout []fileRegion, section []byte) {
	w := bytecursor.NewWriter()
	layout = make([]fileRegion, len(files))
	for i, f := range files {
		align := opts.FileAlignment
		if i == 0 && opts.FirstFileAlignment != 0 {
			align = opts.FirstFileAlignment
		}
		w.Align(int(align))
		start := w.Len()
		w.WriteBytes(f)
		paddedEnd := w.Len()
		isLast := i == len(files)-1
		if !isLast || opts.PadAtEnd {
			w.Align(int(align))
			paddedEnd = w.Len()
		}
		size := uint32(len(f))
		if opts.FatLengthsIncludePadding {
			size = uint32(paddedEnd - start)
		}
		layout[i] = fileRegion{offset: uint32(start), size: size, paddedSize: uint32(paddedEnd - start)}
	}
	return layout, w.Bytes()
}

func writeFAT(w *bytecursor.Writer, layout []fileRegion) {
	w.WriteBytes([]byte("FAT "))
	sizeAnchor := w.Reserve(4)
	start := w.Len() - 8
	w.WriteU32(uint32(len(layout)))
	w.WriteZeros(4)
	for _, r := range layout {
		w.WriteU32(r.offset)
		w.WriteU32(r.size)
		w.WriteZeros(8)
	}
	w.PatchU32At(sizeAnchor, uint32(w.Len()-start))
}

func writeInfoHeader(w *bytecursor.Writer) (bytecursor.Anchor, [kindCount]bytecursor.Anchor) {
	w.WriteBytes([]byte("INFO"))
	sizeAnchor := w.Reserve(4)
	var anchors [kindCount]bytecursor.Anchor
	for i := range anchors {
		anchors[i] = w.Reserve(4)
	}
	return sizeAnchor, anchors
}

func writeInfoSeqTable(w *bytecursor.Writer, anchor bytecursor.Anchor, infoStart int, entries []NamedEntry[sseq.Sequence], slots []int) {
	tableBase(w, anchor, infoStart)
	tableStart := w.Len()
	recAnchors := make([]bytecursor.Anchor, len(entries))
	w.WriteU32(uint32(len(entries)))
	for i := range entries {
		recAnchors[i] = w.Reserve(4)
	}
	for i, e := range entries {
		if e.Asset == nil {
			continue
		}
		w.PatchU32At(recAnchors[i], uint32(w.Len()-tableStart))
		w.WriteU32(uint32(slots[i]))
		sseq.WriteMetadata(w, e.Asset.Meta)
		w.WriteU8(0) // unknown byte
	}
}

func writeInfoSSARTable(w *bytecursor.Writer, anchor bytecursor.Anchor, infoStart int, entries []NamedEntry[ssar.Archive], slots []int) {
	tableBase(w, anchor, infoStart)
	tableStart := w.Len()
	recAnchors := make([]bytecursor.Anchor, len(entries))
	w.WriteU32(uint32(len(entries)))
	for i := range entries {
		recAnchors[i] = w.Reserve(4)
	}
	for i, e := range entries {
		if e.Asset == nil {
			continue
		}
		w.PatchU32At(recAnchors[i], uint32(w.Len()-tableStart))
		w.WriteU32(uint32(slots[i]))
	}
}

func writeInfoBankTable(w *bytecursor.Writer, anchor bytecursor.Anchor, infoStart int, entries []NamedEntry[sbnk.Bank], slots []int) {
	tableBase(w, anchor, infoStart)
	tableStart := w.Len()
	recAnchors := make([]bytecursor.Anchor, len(entries))
	w.WriteU32(uint32(len(entries)))
	for i := range entries {
		recAnchors[i] = w.Reserve(4)
	}
	for i, e := range entries {
		if e.Asset == nil {
			continue
		}
		w.PatchU32At(recAnchors[i], uint32(w.Len()-tableStart))
		w.WriteU32(uint32(slots[i]))
	}
}

func writeInfoSWARTable(w *bytecursor.Writer, anchor bytecursor.Anchor, infoStart int, entries []NamedEntry[swar.Archive], slots []int) {
	tableBase(w, anchor, infoStart)
	tableStart := w.Len()
	recAnchors := make([]bytecursor.Anchor, len(entries))
	w.WriteU32(uint32(len(entries)))
	for i := range entries {
		recAnchors[i] = w.Reserve(4)
	}
	for i, e := range entries {
		if e.Asset == nil {
			continue
		}
		w.PatchU32At(recAnchors[i], uint32(w.Len()-tableStart))
		w.WriteU32(uint32(slots[i]))
	}
}

func writeInfoSTRMTable(w *bytecursor.Writer, anchor bytecursor.Anchor, infoStart int, entries []NamedEntry[strm.Stream], slots []int) {
	tableBase(w, anchor, infoStart)
	tableStart := w.Len()
	recAnchors := make([]bytecursor.Anchor, len(entries))
	w.WriteU32(uint32(len(entries)))
	for i := range entries {
		recAnchors[i] = w.Reserve(4)
	}
	for i, e := range entries {
		if e.Asset == nil {
			continue
		}
		w.PatchU32At(recAnchors[i], uint32(w.Len()-tableStart))
		w.WriteU32(uint32(slots[i]))
	}
}

// writeInfoInlineTable handles the three kinds (sequence-player,
// group, stream-player) whose records carry their own encoded bytes
// directly rather than a FAT file-ID indirection — a wire-layout
// decision documented in DESIGN.md.
func writeInfoInlineTable(w *bytecursor.Writer, anchor bytecursor.Anchor, infoStart int, count int, encoded []encodedAsset) {
	tableBase(w, anchor, infoStart)
	tableStart := w.Len()
	recAnchors := make([]bytecursor.Anchor, count)
	w.WriteU32(uint32(count))
	for i := 0; i < count; i++ {
		recAnchors[i] = w.Reserve(4)
	}
	for i := 0; i < count; i++ {
		if i >= len(encoded) || !encoded[i].present {
			continue
		}
		w.PatchU32At(recAnchors[i], uint32(w.Len()-tableStart))
		w.WriteBytes(encoded[i].payload)
	}
}

func tableBase(w *bytecursor.Writer, anchor bytecursor.Anchor, infoStart int) {
	w.PatchU32At(anchor, uint32(w.Len()-infoStart))
}

func writeSymb(w *bytecursor.Writer, sd *SDAT) {
	w.WriteBytes([]byte("SYMB"))
	sizeAnchor := w.Reserve(4)
	start := w.Len() - 8
	subAnchors := make([]bytecursor.Anchor, kindCount)
	for i := range subAnchors {
		subAnchors[i] = w.Reserve(4)
	}
	w.WriteZeros(24)

	writeNameTable := func(i sectionKind, names []string) {
		w.PatchU32At(subAnchors[i], uint32(w.Len()-(start)))
		w.WriteU32(uint32(len(names)))
		nameAnchors := make([]bytecursor.Anchor, len(names))
		for j := range names {
			nameAnchors[j] = w.Reserve(4)
		}
		for j, name := range names {
			if name == "" {
				continue
			}
			w.PatchU32At(nameAnchors[j], uint32(w.Len()))
			w.WriteBytes([]byte(name))
			w.WriteU8(0)
		}
	}

	seqNames := namesOf(sd.Sequences)
	ssarNames := namesOf(sd.SequenceArchives)
	bnkNames := namesOf(sd.Banks)
	swarNames := namesOf(sd.WaveArchives)
	seqPlayerNames := namesOf(sd.SequencePlayers)
	groupNames := namesOf(sd.Groups)
	strmNames := namesOf(sd.Streams)
	streamPlayerNames := namesOf(sd.StreamPlayers)

	writeNameTable(kindSequence, seqNames)
	writeNameTable(kindSequenceArchive, ssarNames)
	writeNameTable(kindBank, bnkNames)
	writeNameTable(kindWaveArchive, swarNames)
	writeNameTable(kindSequencePlayer, seqPlayerNames)
	writeNameTable(kindGroup, groupNames)
	writeNameTable(kindStream, strmNames)
	writeNameTable(kindStreamPlayer, streamPlayerNames)

	w.PatchU32At(sizeAnchor, uint32(w.Len()-start))
}

func namesOf[T any](entries []NamedEntry[T]) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}
