package seqevent

import (
	"bytes"
	"testing"
)

// buildSample constructs: BeginTrack(track 0, target offset 5) at 0,
// Note(pitch 0x3C, velocity 0x64, duration 0x20) at 5, EndTrack at 8.
func buildSample() []byte {
	return []byte{
		0x93, 0x00, 0x05, 0x00, 0x00, // BeginTrack -> offset 5
		0x3C, 0x64, 0x20, // Note
		0xFF, // EndTrack
	}
}

func TestLiftDecodesAndResolves(t *testing.T) {
	blob := buildSample()
	events, entries, err := Lift(blob, []int{0})
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	if len(entries) != 1 || entries[0] == nil {
		t.Fatalf("expected one resolved entry point")
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	begin := entries[0]
	if begin.Kind != KindBeginTrack {
		t.Fatalf("entry point kind = %v, want KindBeginTrack", begin.Kind)
	}
	if begin.Target == nil || begin.Target.Kind != KindNote {
		t.Fatalf("BeginTrack.Target not resolved to the Note event")
	}
	if begin.Target.Velocity != 0x64 || begin.Target.Duration != 0x20 {
		t.Fatalf("Note operands = %+v", begin.Target)
	}
}

func TestLowerRoundTrip(t *testing.T) {
	blob := buildSample()
	events, entries, err := Lift(blob, []int{0})
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}

	out, offsets, err := Lower(events, entries)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if !bytes.Equal(out, blob) {
		t.Fatalf("Lower output = % x, want % x", out, blob)
	}
	if len(offsets) != 1 || offsets[0] != 0 {
		t.Fatalf("notable offsets = %v, want [0]", offsets)
	}
}

func TestLiftRejectsOverlap(t *testing.T) {
	// BeginTrack at offset 0 spans [0,5); offset 1 is a second notable
	// entry landing inside it (track-number byte repurposed as an
	// EndTrack opcode so it decodes cleanly without cascading).
	blob := []byte{
		0x93, 0xFF, 0x05, 0x00, 0x00,
		0xFF,
	}
	_, _, err := Lift(blob, []int{0, 1})
	if err == nil {
		t.Fatal("expected OverlappingEvents error")
	}
}

func TestLowerRejectsDanglingReference(t *testing.T) {
	dangling := &Event{Kind: KindNote, Op: 0x3C, Velocity: 1, Duration: 1}
	begin := &Event{Kind: KindBeginTrack, Op: 0x93, Track: 0, Target: dangling}
	end := &Event{Kind: KindEndTrack, Op: 0xFF}

	_, _, err := Lower([]*Event{begin, end}, nil)
	if err == nil {
		t.Fatal("expected DanglingReference error")
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0x7F, 0x80, 0x3FFF, 0x200000, 0x0FFFFFFF}
	for _, v := range values {
		buf := writeVarint(nil, v)
		got, n, err := readVarint(buf, 0)
		if err != nil {
			t.Fatalf("readVarint(%#x): %v", v, err)
		}
		if got != v || n != len(buf) {
			t.Fatalf("readVarint(writeVarint(%#x)) = %#x, %d bytes; want %#x, %d bytes", v, got, n, v, len(buf))
		}
	}
}
