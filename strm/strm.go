// Package strm implements the STRM multi-channel streaming wave asset
// (spec §4.6): all channels share the same block count, and within a
// channel every block has identical size except the last.
package strm

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
)

// Format discriminates the sample encoding, shared with swav.Format.
type Format uint8

const (
	FormatPCM8 Format = iota
	FormatPCM16
	FormatADPCM
)

// Stream is a decoded STRM asset.
type Stream struct {
	Format       Format
	Loop         bool
	ChannelCount uint8
	SampleRate   uint16
	Timer        uint16
	LoopStart    uint32 // in samples
	TotalSamples uint32

	BlockSize      uint32 // bytes per block, except the last
	BlockCount     uint32
	LastBlockSize  uint32
	LastBlockSamples uint32

	// Channels[c][b] is channel c's block b payload, including the
	// per-block ADPCM header when Format == FormatADPCM.
	Channels [][][]byte
}

// Parse decodes a complete STRM asset.
func Parse(buf []byte) (*Stream, error) {
	r := bytecursor.NewReader(buf)
	if magic, err := r.ReadBytes(4); err != nil || string(magic) != "STRM" {
		return nil, ndserr.At(ndserr.MalformedSDAT, 0, "strm: bad magic")
	}
	if _, err := r.ReadU32(); err != nil { // section size
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // header size
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // block count (outer, always 2)
		return nil, err
	}
	if headMagic, err := r.ReadBytes(4); err != nil || string(headMagic) != "HEAD" {
		return nil, ndserr.At(ndserr.MalformedSDAT, int64(r.Tell()), "strm: missing HEAD block")
	}
	if _, err := r.ReadU32(); err != nil { // HEAD block size
		return nil, err
	}

	format, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	loopFlag, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	channelCount, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU8(); err != nil { // reserved
		return nil, err
	}
	sampleRate, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	timer, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	loopStart, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	totalSamples, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	blockSize, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	blockSamples, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	_ = blockSamples
	lastBlockSize, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	lastBlockSamples, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	blockCount, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	if dataMagic, err := r.ReadBytes(4); err != nil || string(dataMagic) != "DATA" {
		return nil, ndserr.At(ndserr.MalformedSDAT, int64(r.Tell()), "strm: missing DATA block")
	}
	if _, err := r.ReadU32(); err != nil { // DATA block size
		return nil, err
	}

	channels := make([][][]byte, channelCount)
	for c := range channels {
		blocks := make([][]byte, blockCount)
		for b := range blocks {
			size := blockSize
			if uint32(b) == blockCount-1 {
				size = lastBlockSize
			}
			data, err := r.ReadBytes(int(size))
			if err != nil {
				return nil, err
			}
			blocks[b] = append([]byte(nil), data...)
		}
		channels[c] = blocks
	}

	return &Stream{
		Format: Format(format), Loop: loopFlag != 0, ChannelCount: channelCount,
		SampleRate: sampleRate, Timer: timer, LoopStart: loopStart, TotalSamples: totalSamples,
		BlockSize: blockSize, BlockCount: blockCount,
		LastBlockSize: lastBlockSize, LastBlockSamples: lastBlockSamples,
		Channels: channels,
	}, nil
}

// Emit serializes s back to its wire format.
func Emit(s *Stream) ([]byte, error) {
	w := bytecursor.NewWriter()
	w.WriteBytes([]byte("STRM"))
	sizeAnchor := w.Reserve(4)
	w.WriteU16(0x10)
	w.WriteU16(2)

	w.WriteBytes([]byte("HEAD"))
	headSizeAnchor := w.Reserve(4)
	headStart := w.Len()
	w.WriteU8(uint8(s.Format))
	if s.Loop {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
	w.WriteU8(s.ChannelCount)
	w.WriteU8(0)
	w.WriteU16(s.SampleRate)
	w.WriteU16(s.Timer)
	w.WriteU32(s.LoopStart)
	w.WriteU32(s.TotalSamples)
	w.WriteU32(s.BlockSize)
	blockSamples := uint32(0)
	if s.BlockSize > 0 {
		blockSamples = s.BlockSize
	}
	w.WriteU32(blockSamples)
	w.WriteU32(s.LastBlockSize)
	w.WriteU32(s.LastBlockSamples)
	w.WriteU32(s.BlockCount)
	if err := w.PatchU32At(headSizeAnchor, uint32(w.Len()-headStart+8)); err != nil {
		return nil, err
	}

	w.WriteBytes([]byte("DATA"))
	dataSizeAnchor := w.Reserve(4)
	dataStart := w.Len()
	for _, channel := range s.Channels {
		for _, block := range channel {
			w.WriteBytes(block)
		}
	}
	if err := w.PatchU32At(dataSizeAnchor, uint32(w.Len()-dataStart+8)); err != nil {
		return nil, err
	}

	if err := w.PatchU32At(sizeAnchor, uint32(w.Len())); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
