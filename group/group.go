// Package group implements the SDAT group metadata record (spec
// §4.6): a list of (type, options, id) entries naming other assets
// that should load together.
package group

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
)

// AssetType discriminates which of the enclosing SDAT's asset lists
// an entry's ID indexes into.
type AssetType uint8

const (
	AssetSSEQ AssetType = iota
	AssetSBNK
	AssetSWAR
	AssetSSAR
)

// Options is the 4-bit field of load flags spec §4.6 names.
type Options struct {
	LoadSSEQ        bool
	LoadBankAndSWAR bool
	LoadSWAR        bool
	LoadSSAR        bool
}

func (o Options) pack() uint8 {
	var v uint8
	if o.LoadSSEQ {
		v |= 1 << 0
	}
	if o.LoadBankAndSWAR {
		v |= 1 << 1
	}
	if o.LoadSWAR {
		v |= 1 << 2
	}
	if o.LoadSSAR {
		v |= 1 << 3
	}
	return v
}

func unpackOptions(v uint8) Options {
	return Options{
		LoadSSEQ:        v&(1<<0) != 0,
		LoadBankAndSWAR: v&(1<<1) != 0,
		LoadSWAR:        v&(1<<2) != 0,
		LoadSSAR:        v&(1<<3) != 0,
	}
}

// Entry is one member of a group.
type Entry struct {
	Type    AssetType
	Options Options
	ID      uint16
}

// Group is a parsed SDAT group record.
type Group struct {
	Entries []Entry
}

// Parse decodes a group's raw record bytes: a count followed by
// 4-byte (type, options, id) entries.
func Parse(buf []byte) (*Group, error) {
	r := bytecursor.NewReader(buf)
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, count)
	for i := range entries {
		typ, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		opts, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		id, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if typ > uint8(AssetSSAR) {
			return nil, ndserr.At(ndserr.MalformedSDAT, int64(r.Tell()), "group: unknown asset type %d", typ)
		}
		entries[i] = Entry{Type: AssetType(typ), Options: unpackOptions(opts), ID: id}
	}
	return &Group{Entries: entries}, nil
}

// Emit is Parse's inverse.
func Emit(g *Group) []byte {
	w := bytecursor.NewWriter()
	w.WriteU32(uint32(len(g.Entries)))
	for _, e := range g.Entries {
		w.WriteU8(uint8(e.Type))
		w.WriteU8(e.Options.pack())
		w.WriteU16(e.ID)
	}
	return w.Bytes()
}
