// Package swav implements the SWAV short-wave asset (spec §4.6): a
// single-channel PCM8/PCM16/ADPCM clip with a fixed 12-byte header.
package swav

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
)

// Format discriminates the sample encoding.
type Format uint8

const (
	FormatPCM8 Format = iota
	FormatPCM16
	FormatADPCM
)

// Wave is a decoded SWAV clip. Data holds the raw sample bytes in
// their native encoding (Format); callers needing decoded PCM decode
// ADPCM separately.
type Wave struct {
	Format        Format
	Loop          bool
	SampleRate    uint16
	Timer         uint16
	LoopStartWord uint32 // loop-start offset in 4-byte words
	LengthWords   uint32 // total sample data length in 4-byte words
	Data          []byte
}

// Parse decodes buf as a bare SWAV body ("DATA" section onward, per
// spec §4.6's SWAR note that the outer "SWAV" framing may be
// synthesized rather than present on disk).
func Parse(buf []byte) (*Wave, error) {
	r := bytecursor.NewReader(buf)
	format, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	loopFlag, err := r.ReadU8()
	if err != nil {
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
	loopStart, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	length, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if format > uint8(FormatADPCM) {
		return nil, ndserr.At(ndserr.MalformedSDAT, 0, "swav: unknown wave format %d", format)
	}
	data, err := r.ReadBytes(int(length) * 4)
	if err != nil {
		return nil, err
	}
	return &Wave{
		Format: Format(format), Loop: loopFlag != 0, SampleRate: sampleRate,
		Timer: timer, LoopStartWord: uint32(loopStart), LengthWords: length,
		Data: append([]byte(nil), data...),
	}, nil
}

// Emit serializes w back to its wire format.
func Emit(w *Wave) []byte {
	out := bytecursor.NewWriter()
	out.WriteU8(uint8(w.Format))
	if w.Loop {
		out.WriteU8(1)
	} else {
		out.WriteU8(0)
	}
	out.WriteU16(w.SampleRate)
	out.WriteU16(w.Timer)
	out.WriteU16(uint16(w.LoopStartWord))
	out.WriteU32(w.LengthWords)
	out.WriteBytes(w.Data)
	return out.Bytes()
}
