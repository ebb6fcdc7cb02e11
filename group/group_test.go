package group

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleGroup() *Group {
	return &Group{Entries: []Entry{
		{Type: AssetSSEQ, Options: Options{LoadSSEQ: true}, ID: 3},
		{Type: AssetSBNK, Options: Options{LoadBankAndSWAR: true, LoadSWAR: true}, ID: 1},
		{Type: AssetSWAR, Options: Options{LoadSWAR: true}, ID: 2},
		{Type: AssetSSAR, Options: Options{LoadSSAR: true}, ID: 0},
	}}
}

func TestRoundTrip(t *testing.T) {
	g := sampleGroup()
	data := Emit(g)
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(g.Entries, got.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRejectsUnknownType(t *testing.T) {
	data := Emit(sampleGroup())
	data[4] = 9 // corrupt first entry's type byte
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for unknown asset type")
	}
}
