package fnt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleTree() *Folder {
	sub := &Folder{
		Index:   RootIndex + 1,
		FirstID: 2,
		Files:   []string{"enemy.bin", "boss.bin"},
	}
	root := &Folder{
		Index:   RootIndex,
		FirstID: 0,
		Files:   []string{"main.bin", "data.bin"},
		Subfolders: []SubfolderEntry{
			{Name: "monsters", Folder: sub},
		},
	}
	return root
}

func TestRoundTrip(t *testing.T) {
	root := sampleTree()
	buf, err := Emit(root)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if diff := cmp.Diff(root, got, cmpopts.IgnoreFields(Folder{}, "Index")); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupConsistency(t *testing.T) {
	root := sampleTree()
	for id := uint16(0); id < 4; id++ {
		name, ok := NameOf(root, id)
		if !ok {
			t.Fatalf("NameOf(%d): not found", id)
		}
		gotID, ok := IDOf(root, name)
		if !ok || gotID != id {
			t.Fatalf("IDOf(%q) = %d, %v; want %d, true", name, gotID, ok, id)
		}
	}
}

func TestParseDetectsCycle(t *testing.T) {
	// Hand-build a two-folder directory table where folder 1's
	// subfolder entry points back at folder 0, forming a cycle.
	w := testWriter()
	// Row 0 (root): entry offset 16, firstID 0, folder count 2.
	w.u32(16)
	w.u16(0)
	w.u16(2)
	// Row 1: entry offset to be filled after we know layout.
	row1Offset := w.len()
	w.u32(0)
	w.u16(0)
	w.u16(RootIndex)

	rootEntries := w.len()
	// Root's entries: one subfolder "a" -> folder 1.
	w.u8(128 + 1)
	w.bytes("a")
	w.u16(RootIndex + 1)
	w.u8(0)

	folder1Entries := w.len()
	// Folder 1's entries: subfolder "b" -> folder 0 (cycle).
	w.u8(128 + 1)
	w.bytes("b")
	w.u16(RootIndex)
	w.u8(0)

	buf := w.bytes2
	patchU32(buf, 0, uint32(rootEntries))
	patchU32(buf, row1Offset, uint32(folder1Entries))

	if _, err := Parse(buf); err == nil {
		t.Fatal("expected cycle to be rejected")
	}
}

type tw struct {
	bytes2 []byte
}

func testWriter() *tw { return &tw{} }
func (w *tw) len() int { return len(w.bytes2) }
func (w *tw) u8(v byte) { w.bytes2 = append(w.bytes2, v) }
func (w *tw) u16(v uint16) { w.bytes2 = append(w.bytes2, byte(v), byte(v>>8)) }
func (w *tw) u32(v uint32) {
	w.bytes2 = append(w.bytes2, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
func (w *tw) bytes(s string) { w.bytes2 = append(w.bytes2, []byte(s)...) }

func patchU32(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}
