// Package sseq implements the SSEQ sequence asset (spec §4.6): a thin
// shell around seqevent's lift/lower codec plus the seven INFO-metadata
// bytes the enclosing SDAT carries for every sequence.
package sseq

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
	"github.com/nds-tools/ndscore/seqevent"
)

// Metadata mirrors a sequence's INFO record fields (spec §4.6).
type Metadata struct {
	BankID                          uint16
	Volume, ChannelPressure, PolyphonicPressure, PlayerID byte
	Unknown                                               byte
}

// Sequence is a parsed SSEQ asset: an event graph plus its metadata.
type Sequence struct {
	Events []*seqevent.Event
	Entry  *seqevent.Event
	Meta   Metadata
}

// Parse decodes a sequence's event blob. meta is carried from the
// enclosing SDAT's INFO record, not from the blob itself.
func Parse(blob []byte, meta Metadata) (*Sequence, error) {
	events, entries, err := seqevent.Lift(blob, []int{0})
	if err != nil {
		return nil, err
	}
	if len(entries) != 1 || entries[0] == nil {
		return nil, ndserr.New(ndserr.MalformedSSEQ, "sseq: entry offset 0 did not resolve to an event")
	}
	return &Sequence{Events: events, Entry: entries[0], Meta: meta}, nil
}

// Emit serializes seq's event graph back to a byte blob.
func Emit(seq *Sequence) ([]byte, error) {
	blob, _, err := seqevent.Lower(seq.Events, []*seqevent.Event{seq.Entry})
	return blob, err
}

// ReadMetadata decodes the fixed seven-byte INFO-record tail spec §4.6
// attributes to every SSEQ entry.
func ReadMetadata(buf []byte) (Metadata, error) {
	r := bytecursor.NewReader(buf)
	bankID, err := r.ReadU16()
	if err != nil {
		return Metadata{}, err
	}
	vol, err := r.ReadU8()
	if err != nil {
		return Metadata{}, err
	}
	cpr, err := r.ReadU8()
	if err != nil {
		return Metadata{}, err
	}
	ppr, err := r.ReadU8()
	if err != nil {
		return Metadata{}, err
	}
	player, err := r.ReadU8()
	if err != nil {
		return Metadata{}, err
	}
	unk, err := r.ReadU8()
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		BankID: bankID, Volume: vol, ChannelPressure: cpr,
		PolyphonicPressure: ppr, PlayerID: player, Unknown: unk,
	}, nil
}

// WriteMetadata is ReadMetadata's inverse.
func WriteMetadata(w *bytecursor.Writer, m Metadata) {
	w.WriteU16(m.BankID)
	w.WriteU8(m.Volume)
	w.WriteU8(m.ChannelPressure)
	w.WriteU8(m.PolyphonicPressure)
	w.WriteU8(m.PlayerID)
	w.WriteU8(m.Unknown)
}

// ParseFile decodes a standalone SSEQ file ("SSEQ" magic wrapping a
// "DATA" block holding the raw event blob); meta is supplied
// separately since it lives in the enclosing SDAT's INFO record, not
// in the file itself.
func ParseFile(buf []byte, meta Metadata) (*Sequence, error) {
	r := bytecursor.NewReader(buf)
	if magic, err := r.ReadBytes(4); err != nil || string(magic) != "SSEQ" {
		return nil, ndserr.At(ndserr.MalformedSSEQ, 0, "sseq: bad magic")
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
		return nil, ndserr.At(ndserr.MalformedSSEQ, int64(r.Tell()), "sseq: missing DATA block")
	}
	if _, err := r.ReadU32(); err != nil { // DATA block size
		return nil, err
	}
	blob := r.Bytes()[r.Tell():]
	return Parse(blob, meta)
}

// EmitFile is ParseFile's inverse (meta is not re-emitted; it lives
// in the enclosing SDAT's INFO record).
func EmitFile(seq *Sequence) ([]byte, error) {
	blob, err := Emit(seq)
	if err != nil {
		return nil, err
	}
	w := bytecursor.NewWriter()
	w.WriteBytes([]byte("SSEQ"))
	sizeAnchor := w.Reserve(4)
	w.WriteU16(0x10)
	w.WriteU16(1)
	w.WriteBytes([]byte("DATA"))
	dataSizeAnchor := w.Reserve(4)
	dataStart := w.Len()
	w.WriteBytes(blob)
	if err := w.PatchU32At(dataSizeAnchor, uint32(w.Len()-dataStart+8)); err != nil {
		return nil, err
	}
	if err := w.PatchU32At(sizeAnchor, uint32(w.Len())); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
