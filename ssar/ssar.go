// Package ssar implements the SSAR sequence-archive asset (spec
// §4.6): multiple named sequences sharing one opcode blob, each with
// its own playback metadata.
package ssar

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
	"github.com/nds-tools/ndscore/seqevent"
)

// EntryMetadata mirrors one sequence-archive entry's playback fields
// (spec §4.6's "per-sequence-entry variants" of the SSEQ metadata).
type EntryMetadata struct {
	BankID                                                 uint16
	Volume, ChannelPressure, PolyphonicPressure, PlayerID byte
}

// Entry names one playable sequence within the archive.
type Entry struct {
	Name  string
	Start *seqevent.Event
	Meta  EntryMetadata
}

// Archive is a parsed SSAR asset.
type Archive struct {
	Events  []*seqevent.Event
	Entries []Entry
}

// Parse decodes blob given the starting offset and metadata for each
// named entry; offsets and names come from the enclosing SDAT's
// SYMB/INFO records.
func Parse(blob []byte, names []string, offsets []int, metas []EntryMetadata) (*Archive, error) {
	if len(names) != len(offsets) || len(offsets) != len(metas) {
		return nil, ndserr.New(ndserr.MalformedSSEQ, "ssar: names/offsets/metadata length mismatch")
	}
	events, entryEvents, err := seqevent.Lift(blob, offsets)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(offsets))
	for i := range offsets {
		if entryEvents[i] == nil {
			return nil, ndserr.New(ndserr.MalformedSSEQ, "ssar: entry %q offset did not resolve to an event", names[i])
		}
		entries[i] = Entry{Name: names[i], Start: entryEvents[i], Meta: metas[i]}
	}
	return &Archive{Events: events, Entries: entries}, nil
}

// Emit serializes a's event graph back to a byte blob and returns the
// resolved start offset for each entry, in a's entry order.
func Emit(a *Archive) (blob []byte, offsets []int, err error) {
	targets := make([]*seqevent.Event, len(a.Entries))
	for i, e := range a.Entries {
		targets[i] = e.Start
	}
	return seqevent.Lower(a.Events, targets)
}

// ReadEntryMetadata decodes one entry's fixed-width metadata record.
func ReadEntryMetadata(buf []byte) (EntryMetadata, error) {
	r := bytecursor.NewReader(buf)
	bankID, err := r.ReadU16()
	if err != nil {
		return EntryMetadata{}, err
	}
	vol, err := r.ReadU8()
	if err != nil {
		return EntryMetadata{}, err
	}
	cpr, err := r.ReadU8()
	if err != nil {
		return EntryMetadata{}, err
	}
	ppr, err := r.ReadU8()
	if err != nil {
		return EntryMetadata{}, err
	}
	player, err := r.ReadU8()
	if err != nil {
		return EntryMetadata{}, err
	}
	return EntryMetadata{BankID: bankID, Volume: vol, ChannelPressure: cpr, PolyphonicPressure: ppr, PlayerID: player}, nil
}

// WriteEntryMetadata is ReadEntryMetadata's inverse.
func WriteEntryMetadata(w *bytecursor.Writer, m EntryMetadata) {
	w.WriteU16(m.BankID)
	w.WriteU8(m.Volume)
	w.WriteU8(m.ChannelPressure)
	w.WriteU8(m.PolyphonicPressure)
	w.WriteU8(m.PlayerID)
}

// ParseFile decodes a standalone SSAR file: an entry table (count,
// then per-entry length-prefixed name + 6-byte metadata) followed by
// the shared event blob, offsets into which appear inline per entry.
func ParseFile(buf []byte) (*Archive, error) {
	r := bytecursor.NewReader(buf)
	if magic, err := r.ReadBytes(4); err != nil || string(magic) != "SSAR" {
		return nil, ndserr.At(ndserr.MalformedSSEQ, 0, "ssar: bad magic")
	}
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	names := make([]string, count)
	offsets := make([]int, count)
	metas := make([]EntryMetadata, count)
	for i := range names {
		nameLen, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		nameBytes, err := r.ReadBytes(int(nameLen))
		if err != nil {
			return nil, err
		}
		names[i] = string(nameBytes)
		off, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		offsets[i] = int(off)
		metaBytes, err := r.ReadBytes(6)
		if err != nil {
			return nil, err
		}
		meta, err := ReadEntryMetadata(metaBytes)
		if err != nil {
			return nil, err
		}
		metas[i] = meta
	}
	if err := r.Align(4); err != nil {
		return nil, err
	}
	blob := r.Bytes()[r.Tell():]
	return Parse(blob, names, offsets, metas)
}

// EmitFile is ParseFile's inverse.
func EmitFile(a *Archive) ([]byte, error) {
	blob, offsets, err := Emit(a)
	if err != nil {
		return nil, err
	}
	w := bytecursor.NewWriter()
	w.WriteBytes([]byte("SSAR"))
	w.WriteU32(uint32(len(a.Entries)))
	for i, e := range a.Entries {
		w.WriteU8(uint8(len(e.Name)))
		w.WriteBytes([]byte(e.Name))
		w.WriteU32(uint32(offsets[i]))
		WriteEntryMetadata(w, e.Meta)
	}
	w.Align(4)
	w.WriteBytes(blob)
	return w.Bytes(), nil
}
