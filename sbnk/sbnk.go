// Package sbnk implements the SDAT instrument bank asset (spec §4.6,
// "SBNK"): a pointer table of (type, offset) records into a pool of
// instrument structs, with inaccessible-but-parseable bytes between
// referenced structs preserved verbatim.
package sbnk

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
)

// Kind discriminates an instrument record.
type Kind int

const (
	KindEmpty Kind = iota
	KindSingleNote
	KindRange
	KindRegional
)

// WaveLocatorKind discriminates how a note definition selects its
// sample: a wave-archive slot/ID pair, a PSG duty cycle, or nothing
// (white noise).
type WaveLocatorKind int

const (
	WaveLocatorNone WaveLocatorKind = iota
	WaveLocatorSample
	WaveLocatorPSG
)

// WaveLocator is a tagged union over WaveLocatorKind.
type WaveLocator struct {
	Kind            WaveLocatorKind
	WaveArchiveSlot uint8 // valid for WaveLocatorSample, 0..3
	WaveID          uint16
	PSGDutyCycle    uint8 // valid for WaveLocatorPSG
}

// NoteDefinition carries the envelope and pitch/pan parameters shared
// by every instrument kind.
type NoteDefinition struct {
	Wave    WaveLocator
	BasePitch,
	Attack, Decay, Sustain, Release,
	Pan uint8 // each 0..127 per spec §4.6
}

// RangeRegion is one entry in a RangeInstrument's ascending
// upper-bound table (spec §4.6's "type 16" layout).
type RangeRegion struct {
	UpperKey uint8
	Note     NoteDefinition
}

// RegionalRegion is one explicit key-split entry in a
// RegionalInstrument (spec §4.6's "type 17" layout).
type RegionalRegion struct {
	LowerKey, UpperKey uint8
	Note               NoteDefinition
}

// Instrument is a single entry of the bank's pointer table.
type Instrument struct {
	Kind Kind

	// Type is the raw 1-15 discriminant for KindSingleNote (spec §4.6:
	// "SingleNote(1-15)"); unused for the other kinds.
	Type uint8

	SingleNote NoteDefinition   // valid for KindSingleNote
	Ranges     []RangeRegion    // valid for KindRange
	Regions    []RegionalRegion // valid for KindRegional
}

// Bank is a parsed SBNK asset.
type Bank struct {
	Instruments []Instrument

	// WaveArchiveRefs holds up to 4 references into the enclosing
	// SDAT's wave archives (spec §4.6). LoadRawFileIDs selects whether
	// each entry is a wave-archive ordinal or a raw SDAT file ID.
	WaveArchiveRefs [4]uint16
	LoadRawFileIDs  bool

	// Gaps preserves inaccessible-but-parseable bytes sitting between
	// referenced instrument structs, keyed by the ID of the preceding
	// accessible instrument (spec §4.6).
	Gaps map[int][]byte
}

const noPointer = 0

// Parse decodes a complete SBNK asset.
func Parse(buf []byte) (*Bank, error) {
	r := bytecursor.NewReader(buf)
	if magic, err := r.ReadBytes(4); err != nil || string(magic) != "SBNK" {
		return nil, ndserr.At(ndserr.MalformedSBNK, 0, "sbnk: bad magic")
	}
	if _, err := r.ReadU32(); err != nil { // section size
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // header size
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // block count
		return nil, err
	}
	if dataMagic, err := r.ReadBytes(4); err != nil || string(dataMagic) != "DATA" {
		return nil, ndserr.At(ndserr.MalformedSBNK, int64(r.Tell()), "sbnk: missing DATA block")
	}
	if _, err := r.ReadU32(); err != nil { // DATA block size
		return nil, err
	}

	var refs [4]uint16
	for i := range refs {
		v, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		refs[i] = v
	}
	loadRawFlag, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // reserved
		return nil, err
	}

	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	tableStart := r.Tell()

	type rawRecord struct {
		typ uint8
		ptr uint16
	}
	records := make([]rawRecord, count)
	for i := range records {
		typ, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if _, err := r.ReadU8(); err != nil { // padding
			return nil, err
		}
		ptr, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		records[i] = rawRecord{typ: typ, ptr: ptr}
	}
	poolBase := tableStart + 4*int(count)

	instruments := make([]Instrument, count)
	gaps := map[int][]byte{}
	lastAccessibleEnd := poolBase
	lastAccessibleID := -1
	decodedAt := map[int]bool{}
	for i, rec := range records {
		if rec.typ == 0 {
			instruments[i] = Instrument{Kind: KindEmpty}
			continue
		}
		pos := poolBase + int(rec.ptr)
		if pos < lastAccessibleEnd {
			if !decodedAt[pos] {
				return nil, ndserr.At(ndserr.MalformedSBNK, int64(pos), "sbnk: instrument %d pointer runs backward", i)
			}
			// A struct shared with an earlier instrument, as Emit writes
			// for identical instruments.
			inst, _, err := decodeInstrument(buf, pos, rec.typ)
			if err != nil {
				return nil, err
			}
			instruments[i] = inst
			continue
		}
		if gap := pos - lastAccessibleEnd; gap > 0 && lastAccessibleID >= 0 {
			gapBytes, err := r.ReadAt(lastAccessibleEnd, gap)
			if err != nil {
				return nil, err
			}
			gaps[lastAccessibleID] = append([]byte(nil), gapBytes...)
		}

		inst, end, err := decodeInstrument(buf, pos, rec.typ)
		if err != nil {
			return nil, err
		}
		instruments[i] = inst
		decodedAt[pos] = true
		lastAccessibleEnd = end
		lastAccessibleID = i
	}

	return &Bank{
		Instruments:     instruments,
		WaveArchiveRefs: refs,
		LoadRawFileIDs:  loadRawFlag != 0,
		Gaps:            gaps,
	}, nil
}

func decodeNoteDef(buf []byte, pos int) (NoteDefinition, int, error) {
	r := bytecursor.NewReader(buf)
	if err := r.Seek(pos); err != nil {
		return NoteDefinition{}, 0, err
	}
	waveKind, err := r.ReadU8()
	if err != nil {
		return NoteDefinition{}, 0, err
	}
	var wl WaveLocator
	switch waveKind {
	case 0:
		wl = WaveLocator{Kind: WaveLocatorNone}
		if _, err := r.ReadBytes(3); err != nil { // padding to keep fixed record width
			return NoteDefinition{}, 0, err
		}
	case 1:
		slot, err := r.ReadU8()
		if err != nil {
			return NoteDefinition{}, 0, err
		}
		waveID, err := r.ReadU16()
		if err != nil {
			return NoteDefinition{}, 0, err
		}
		wl = WaveLocator{Kind: WaveLocatorSample, WaveArchiveSlot: slot, WaveID: waveID}
	case 2:
		duty, err := r.ReadU8()
		if err != nil {
			return NoteDefinition{}, 0, err
		}
		wl = WaveLocator{Kind: WaveLocatorPSG, PSGDutyCycle: duty}
		if _, err := r.ReadBytes(2); err != nil {
			return NoteDefinition{}, 0, err
		}
	default:
		return NoteDefinition{}, 0, ndserr.At(ndserr.MalformedSBNK, int64(pos), "sbnk: unknown wave locator kind %d", waveKind)
	}

	basePitch, err := r.ReadU8()
	if err != nil {
		return NoteDefinition{}, 0, err
	}
	attack, err := r.ReadU8()
	if err != nil {
		return NoteDefinition{}, 0, err
	}
	decay, err := r.ReadU8()
	if err != nil {
		return NoteDefinition{}, 0, err
	}
	sustain, err := r.ReadU8()
	if err != nil {
		return NoteDefinition{}, 0, err
	}
	release, err := r.ReadU8()
	if err != nil {
		return NoteDefinition{}, 0, err
	}
	pan, err := r.ReadU8()
	if err != nil {
		return NoteDefinition{}, 0, err
	}
	if _, err := r.ReadBytes(2); err != nil { // padding to the 12-byte record width
		return NoteDefinition{}, 0, err
	}

	return NoteDefinition{
		Wave: wl, BasePitch: basePitch,
		Attack: attack, Decay: decay, Sustain: sustain, Release: release, Pan: pan,
	}, r.Tell(), nil
}

func decodeInstrument(buf []byte, pos int, typ uint8) (Instrument, int, error) {
	switch {
	case typ >= 1 && typ <= 15:
		note, end, err := decodeNoteDef(buf, pos)
		if err != nil {
			return Instrument{}, 0, err
		}
		return Instrument{Kind: KindSingleNote, Type: typ, SingleNote: note}, end, nil
	case typ == 16:
		r := bytecursor.NewReader(buf)
		if err := r.Seek(pos); err != nil {
			return Instrument{}, 0, err
		}
		var regions []RangeRegion
		cursor := pos
		for {
			upper, err := r.ReadU8()
			if err != nil {
				return Instrument{}, 0, err
			}
			cursor = r.Tell()
			if upper == 0xFF {
				break
			}
			note, end, err := decodeNoteDef(buf, cursor)
			if err != nil {
				return Instrument{}, 0, err
			}
			regions = append(regions, RangeRegion{UpperKey: upper, Note: note})
			cursor = end
			if err := r.Seek(cursor); err != nil {
				return Instrument{}, 0, err
			}
		}
		return Instrument{Kind: KindRange, Ranges: regions}, cursor, nil
	case typ == 17:
		r := bytecursor.NewReader(buf)
		if err := r.Seek(pos); err != nil {
			return Instrument{}, 0, err
		}
		var regions []RegionalRegion
		cursor := pos
		for {
			lower, err := r.ReadU8()
			if err != nil {
				return Instrument{}, 0, err
			}
			if lower == 0xFF {
				cursor = r.Tell()
				break
			}
			upper, err := r.ReadU8()
			if err != nil {
				return Instrument{}, 0, err
			}
			note, end, err := decodeNoteDef(buf, r.Tell())
			if err != nil {
				return Instrument{}, 0, err
			}
			regions = append(regions, RegionalRegion{LowerKey: lower, UpperKey: upper, Note: note})
			cursor = end
			if err := r.Seek(cursor); err != nil {
				return Instrument{}, 0, err
			}
		}
		return Instrument{Kind: KindRegional, Regions: regions}, cursor, nil
	default:
		return Instrument{}, 0, ndserr.At(ndserr.MalformedSBNK, int64(pos), "sbnk: unknown instrument type %d", typ)
	}
}

func emitNoteDef(w *bytecursor.Writer, n NoteDefinition) {
	switch n.Wave.Kind {
	case WaveLocatorNone:
		w.WriteU8(0)
		w.WriteZeros(3)
	case WaveLocatorSample:
		w.WriteU8(1)
		w.WriteU8(n.Wave.WaveArchiveSlot)
		w.WriteU16(n.Wave.WaveID)
	case WaveLocatorPSG:
		w.WriteU8(2)
		w.WriteU8(n.Wave.PSGDutyCycle)
		w.WriteZeros(2)
	}
	w.WriteU8(n.BasePitch)
	w.WriteU8(n.Attack)
	w.WriteU8(n.Decay)
	w.WriteU8(n.Sustain)
	w.WriteU8(n.Release)
	w.WriteU8(n.Pan)
	w.WriteZeros(2)
}

// Emit serializes bank back to its wire format. Instrument structs
// with byte-identical encodings are deduplicated and pointed at a
// single offset, per spec §4.6.
func Emit(bank *Bank) ([]byte, error) {
	type encoded struct {
		typ  uint8
		data []byte
	}
	entries := make([]encoded, len(bank.Instruments))
	for i, inst := range bank.Instruments {
		data, typ, err := encodeInstrument(inst)
		if err != nil {
			return nil, err
		}
		entries[i] = encoded{typ: typ, data: data}
	}

	offsetOf := map[string]int{}
	pool := bytecursor.NewWriter()
	ptrs := make([]uint16, len(entries))
	for i, e := range entries {
		if e.typ == 0 {
			ptrs[i] = noPointer
			continue
		}
		key := string(e.data)
		if off, ok := offsetOf[key]; ok {
			ptrs[i] = uint16(off)
			continue
		}
		off := pool.Len()
		offsetOf[key] = off
		ptrs[i] = uint16(off)
		pool.WriteBytes(e.data)
		if gap, ok := bank.Gaps[i]; ok {
			pool.WriteBytes(gap)
		}
	}

	w := bytecursor.NewWriter()
	w.WriteBytes([]byte("SBNK"))
	sizeAnchor := w.Reserve(4)
	w.WriteU16(0x10)
	w.WriteU16(1)
	w.WriteBytes([]byte("DATA"))
	dataSizeAnchor := w.Reserve(4)
	dataStart := w.Len()

	for _, v := range bank.WaveArchiveRefs {
		w.WriteU16(v)
	}
	if bank.LoadRawFileIDs {
		w.WriteU16(1)
	} else {
		w.WriteU16(0)
	}
	w.WriteU32(0)
	w.WriteU32(uint32(len(entries)))
	for i, e := range entries {
		w.WriteU8(e.typ)
		w.WriteU8(0)
		w.WriteU16(ptrs[i])
	}
	w.WriteBytes(pool.Bytes())

	if err := w.PatchU32At(dataSizeAnchor, uint32(w.Len()-dataStart+8)); err != nil {
		return nil, err
	}
	if err := w.PatchU32At(sizeAnchor, uint32(w.Len())); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeInstrument(inst Instrument) (data []byte, typ uint8, err error) {
	switch inst.Kind {
	case KindEmpty:
		return nil, 0, nil
	case KindSingleNote:
		w := bytecursor.NewWriter()
		emitNoteDef(w, inst.SingleNote)
		return w.Bytes(), inst.Type, nil
	case KindRange:
		w := bytecursor.NewWriter()
		for _, reg := range inst.Ranges {
			w.WriteU8(reg.UpperKey)
			emitNoteDef(w, reg.Note)
		}
		w.WriteU8(0xFF)
		return w.Bytes(), 16, nil
	case KindRegional:
		w := bytecursor.NewWriter()
		for _, reg := range inst.Regions {
			w.WriteU8(reg.LowerKey)
			w.WriteU8(reg.UpperKey)
			emitNoteDef(w, reg.Note)
		}
		w.WriteU8(0xFF)
		return w.Bytes(), 17, nil
	default:
		return nil, 0, ndserr.New(ndserr.MalformedSBNK, "sbnk: unknown instrument kind %d", inst.Kind)
	}
}
