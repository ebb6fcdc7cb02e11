// Package swar implements the SWAR wave-archive asset (spec §4.6): a
// packed, ordinally-indexed archive of SWAV clips addressed by an
// offset table.
package swar

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
	"github.com/nds-tools/ndscore/swav"
)

// Archive is a parsed SWAR wave archive.
type Archive struct {
	Waves []*swav.Wave
}

// Parse decodes a complete SWAR asset.
func Parse(buf []byte) (*Archive, error) {
	r := bytecursor.NewReader(buf)
	if magic, err := r.ReadBytes(4); err != nil || string(magic) != "SWAR" {
		return nil, ndserr.At(ndserr.MalformedSDAT, 0, "swar: bad magic")
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
	if _, err := r.ReadBytes(32); err != nil { // reserved
		return nil, err
	}
	if dataMagic, err := r.ReadBytes(4); err != nil || string(dataMagic) != "DATA" {
		return nil, ndserr.At(ndserr.MalformedSDAT, int64(r.Tell()), "swar: missing DATA block")
	}
	if _, err := r.ReadU32(); err != nil { // DATA block size
		return nil, err
	}
	if _, err := r.ReadBytes(32); err != nil { // reserved
		return nil, err
	}
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	offsets := make([]uint32, count)
	for i := range offsets {
		off, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		offsets[i] = off
	}

	waves := make([]*swav.Wave, count)
	for i, off := range offsets {
		if err := r.Seek(int(off)); err != nil {
			return nil, err
		}
		remaining := r.Bytes()[r.Tell():]
		w, err := swav.Parse(remaining)
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedSDAT, int64(off), err, "swar: wave %d", i)
		}
		waves[i] = w
	}
	return &Archive{Waves: waves}, nil
}

// Emit serializes a back to its wire format.
func Emit(a *Archive) ([]byte, error) {
	w := bytecursor.NewWriter()
	w.WriteBytes([]byte("SWAR"))
	sizeAnchor := w.Reserve(4)
	w.WriteU16(0x10)
	w.WriteU16(1)
	w.WriteZeros(32)
	w.WriteBytes([]byte("DATA"))
	dataSizeAnchor := w.Reserve(4)
	dataStart := w.Len()
	w.WriteZeros(32)
	w.WriteU32(uint32(len(a.Waves)))

	offsetAnchors := make([]bytecursor.Anchor, 0, len(a.Waves))
	for range a.Waves {
		offsetAnchors = append(offsetAnchors, w.Reserve(4))
	}

	for i, wave := range a.Waves {
		w.Align(4)
		if err := w.PatchU32At(offsetAnchors[i], uint32(w.Len())); err != nil {
			return nil, err
		}
		w.WriteBytes(swav.Emit(wave))
	}

	if err := w.PatchU32At(dataSizeAnchor, uint32(w.Len()-dataStart+8)); err != nil {
		return nil, err
	}
	if err := w.PatchU32At(sizeAnchor, uint32(w.Len())); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
