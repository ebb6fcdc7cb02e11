package narc

import (
	"bytes"
	"testing"

	"github.com/nds-tools/ndscore/fnt"
)

func sampleArchive() *Archive {
	root := &fnt.Folder{
		Files: []string{"a.bin", "b.bin"},
	}
	return &Archive{
		BigEndianHeader: false,
		Version:         0x0100,
		Root:            root,
		Files:           [][]byte{[]byte("hello"), []byte("world!!")},
	}
}

func TestRoundTrip(t *testing.T) {
	a := sampleArchive()
	buf, err := Emit(a)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.BigEndianHeader != a.BigEndianHeader || got.Version != a.Version {
		t.Fatalf("header mismatch: got %+v", got)
	}
	if len(got.Files) != len(a.Files) {
		t.Fatalf("file count mismatch: got %d, want %d", len(got.Files), len(a.Files))
	}
	for i := range a.Files {
		if !bytes.Equal(got.Files[i], a.Files[i]) {
			t.Fatalf("file %d mismatch: got %q, want %q", i, got.Files[i], a.Files[i])
		}
	}
	for i, name := range a.Root.Files {
		if got.Root.Files[i] != name {
			t.Fatalf("filename %d mismatch: got %q, want %q", i, got.Root.Files[i], name)
		}
	}
}

func TestRejectsBadMagic(t *testing.T) {
	buf, err := Emit(sampleArchive())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	buf[0] = 'X'
	if _, err := Parse(buf); err == nil {
		t.Fatal("expected InvalidMagic error")
	}
}

func TestBigEndianHeader(t *testing.T) {
	a := sampleArchive()
	a.BigEndianHeader = true
	buf, err := Emit(a)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.BigEndianHeader {
		t.Fatalf("expected BigEndianHeader to round-trip as true")
	}
	if len(got.Files) != len(a.Files) || !bytes.Equal(got.Files[0], a.Files[0]) {
		t.Fatalf("big-endian header archive did not round-trip its files correctly: %+v", got)
	}
}
