package swav

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	w := &Wave{
		Format: FormatADPCM, Loop: true, SampleRate: 16000, Timer: 0x1F7,
		LoopStartWord: 2, LengthWords: 4,
		Data: bytes.Repeat([]byte{0xAB}, 16),
	}
	data := Emit(w)
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Format != w.Format || got.Loop != w.Loop || got.SampleRate != w.SampleRate ||
		got.Timer != w.Timer || got.LoopStartWord != w.LoopStartWord || got.LengthWords != w.LengthWords {
		t.Fatalf("field mismatch: got %+v, want %+v", got, w)
	}
	if !bytes.Equal(got.Data, w.Data) {
		t.Fatalf("Data mismatch: got % x, want % x", got.Data, w.Data)
	}
}

func TestRejectsUnknownFormat(t *testing.T) {
	w := &Wave{Format: 3, LengthWords: 0}
	data := Emit(w)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
