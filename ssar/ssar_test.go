package ssar

import (
	"testing"

	"github.com/nds-tools/ndscore/seqevent"
)

// sampleBlob holds two independent tracks: one at offset 0, one at
// offset 10.
func sampleBlob() []byte {
	return []byte{
		0x93, 0x00, 0x05, 0x00, 0x00, // [0] BeginTrack -> 5
		0x3C, 0x64, 0x20, // [5] Note
		0xFF,       // [8] EndTrack
		0xFF,       // [9] padding byte (unreachable from offset 0)
		0x3C, 0x64, 0x10, // [10] Note
		0xFF, // [13] EndTrack
	}
}

func sampleEntries() ([]string, []int, []EntryMetadata) {
	names := []string{"bgm_intro", "bgm_loop"}
	offsets := []int{0, 10}
	metas := []EntryMetadata{
		{BankID: 1, Volume: 127, PlayerID: 0},
		{BankID: 1, Volume: 100, PlayerID: 1},
	}
	return names, offsets, metas
}

func TestRoundTrip(t *testing.T) {
	names, offsets, metas := sampleEntries()
	a, err := Parse(sampleBlob(), names, offsets, metas)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(a.Entries))
	}
	if a.Entries[0].Name != "bgm_intro" || a.Entries[1].Name != "bgm_loop" {
		t.Fatalf("entry names = %q, %q", a.Entries[0].Name, a.Entries[1].Name)
	}
	if a.Entries[0].Start.Kind != seqevent.KindBeginTrack {
		t.Fatalf("entry 0 kind = %v", a.Entries[0].Start.Kind)
	}

	_, gotOffsets, err := Emit(a)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(gotOffsets) != 2 {
		t.Fatalf("len(offsets) = %d, want 2", len(gotOffsets))
	}
}

func TestFileFramingRoundTrip(t *testing.T) {
	names, offsets, metas := sampleEntries()
	a, err := Parse(sampleBlob(), names, offsets, metas)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := EmitFile(a)
	if err != nil {
		t.Fatalf("EmitFile: %v", err)
	}
	if string(data[:4]) != "SSAR" {
		t.Fatal("missing SSAR magic")
	}
	got, err := ParseFile(data)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[0].Name != "bgm_intro" || got.Entries[1].Name != "bgm_loop" {
		t.Fatalf("entries mismatch: %+v", got.Entries)
	}
	if got.Entries[0].Meta != metas[0] || got.Entries[1].Meta != metas[1] {
		t.Fatalf("metadata mismatch: %+v", got.Entries)
	}
}

func TestRejectsLengthMismatch(t *testing.T) {
	_, err := Parse(sampleBlob(), []string{"only_one"}, []int{0, 10}, []EntryMetadata{{}})
	if err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}
