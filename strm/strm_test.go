package strm

import (
	"bytes"
	"testing"
)

func sampleStream() *Stream {
	return &Stream{
		Format: FormatPCM16, Loop: false, ChannelCount: 2,
		SampleRate: 32728, Timer: 0x2D0,
		LoopStart: 0, TotalSamples: 6,
		BlockSize: 4, BlockCount: 2, LastBlockSize: 2, LastBlockSamples: 1,
		Channels: [][][]byte{
			{bytes.Repeat([]byte{0xAA}, 4), bytes.Repeat([]byte{0xBB}, 2)},
			{bytes.Repeat([]byte{0xCC}, 4), bytes.Repeat([]byte{0xDD}, 2)},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	s := sampleStream()
	data, err := Emit(s)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Format != s.Format || got.Loop != s.Loop || got.ChannelCount != s.ChannelCount ||
		got.SampleRate != s.SampleRate || got.Timer != s.Timer || got.LoopStart != s.LoopStart ||
		got.TotalSamples != s.TotalSamples || got.BlockSize != s.BlockSize || got.BlockCount != s.BlockCount ||
		got.LastBlockSize != s.LastBlockSize || got.LastBlockSamples != s.LastBlockSamples {
		t.Fatalf("header mismatch: got %+v, want %+v", got, s)
	}
	if len(got.Channels) != len(s.Channels) {
		t.Fatalf("len(Channels) = %d, want %d", len(got.Channels), len(s.Channels))
	}
	for c := range s.Channels {
		for b := range s.Channels[c] {
			if !bytes.Equal(got.Channels[c][b], s.Channels[c][b]) {
				t.Fatalf("channel %d block %d mismatch", c, b)
			}
		}
	}
}

func TestRejectsMissingHeadBlock(t *testing.T) {
	data, err := Emit(sampleStream())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	data[12] = 'X' // corrupt "HEAD" magic
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for missing HEAD block")
	}
}
