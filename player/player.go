// Package player implements the SDAT sequence-player and
// stream-player metadata records (spec §4.6).
package player

import "github.com/nds-tools/ndscore/bytecursor"

// SequencePlayer is the (maxSequences, channelBitmask, heapSize)
// triple controlling a sequence player's resource allocation. A zero
// HeapSize or empty ChannelBitmask means "determined at runtime".
type SequencePlayer struct {
	MaxSequences    uint8
	ChannelBitmask  uint16
	HeapSize        uint32
}

// ParseSequencePlayer decodes one sequence-player record.
func ParseSequencePlayer(buf []byte) (SequencePlayer, error) {
	r := bytecursor.NewReader(buf)
	maxSeq, err := r.ReadU8()
	if err != nil {
		return SequencePlayer{}, err
	}
	if _, err := r.ReadU8(); err != nil { // padding
		return SequencePlayer{}, err
	}
	bitmask, err := r.ReadU16()
	if err != nil {
		return SequencePlayer{}, err
	}
	heap, err := r.ReadU32()
	if err != nil {
		return SequencePlayer{}, err
	}
	return SequencePlayer{MaxSequences: maxSeq, ChannelBitmask: bitmask, HeapSize: heap}, nil
}

// EmitSequencePlayer is ParseSequencePlayer's inverse.
func EmitSequencePlayer(p SequencePlayer) []byte {
	w := bytecursor.NewWriter()
	w.WriteU8(p.MaxSequences)
	w.WriteU8(0)
	w.WriteU16(p.ChannelBitmask)
	w.WriteU32(p.HeapSize)
	return w.Bytes()
}

// StreamPlayer is an ordered, order-significant list of channel
// indices (0..15) a stream player plays across.
type StreamPlayer struct {
	Channels []uint8
}

// ParseStreamPlayer decodes one stream-player record: a count byte
// followed by that many channel-index bytes.
func ParseStreamPlayer(buf []byte) (StreamPlayer, error) {
	r := bytecursor.NewReader(buf)
	count, err := r.ReadU8()
	if err != nil {
		return StreamPlayer{}, err
	}
	channels := make([]uint8, count)
	for i := range channels {
		c, err := r.ReadU8()
		if err != nil {
			return StreamPlayer{}, err
		}
		channels[i] = c
	}
	return StreamPlayer{Channels: channels}, nil
}

// EmitStreamPlayer is ParseStreamPlayer's inverse.
func EmitStreamPlayer(p StreamPlayer) []byte {
	w := bytecursor.NewWriter()
	w.WriteU8(uint8(len(p.Channels)))
	for _, c := range p.Channels {
		w.WriteU8(c)
	}
	return w.Bytes()
}
