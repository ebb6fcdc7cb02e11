package bytecursor

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReaderPrimitives(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	r := NewReader(buf)

	u8, err := r.ReadU8()
	if err != nil || u8 != 0x01 {
		t.Fatalf("ReadU8 = %#x, %v", u8, err)
	}
	u16, err := r.ReadU16()
	if err != nil || u16 != 0x0302 {
		t.Fatalf("ReadU16 = %#x, %v", u16, err)
	}
	u24, err := r.ReadU24()
	if err != nil || u24 != 0x060504 {
		t.Fatalf("ReadU24 = %#x, %v", u24, err)
	}
	if r.Remaining() != 1 {
		t.Fatalf("Remaining = %d, want 1", r.Remaining())
	}
}

func TestReaderBigEndian(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04}
	r := NewReaderOrder(buf, binary.BigEndian)
	v, err := r.ReadU32()
	if err != nil || v != 0x01020304 {
		t.Fatalf("ReadU32 = %#x, %v", v, err)
	}
}

func TestReaderOutOfBounds(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadU32(); err == nil {
		t.Fatal("expected OutOfBounds error")
	}
}

func TestReaderSeekAlign(t *testing.T) {
	r := NewReader(make([]byte, 16))
	if err := r.Seek(3); err != nil {
		t.Fatal(err)
	}
	if err := r.Align(4); err != nil {
		t.Fatal(err)
	}
	if r.Tell() != 4 {
		t.Fatalf("Tell = %d, want 4", r.Tell())
	}
	if err := r.Seek(100); err == nil {
		t.Fatal("expected OutOfBounds for seek past end")
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU8(0xAA)
	w.WriteU16(0xBEEF)
	anchor := w.Reserve(4)
	w.WriteBytes([]byte("hello"))
	w.Align(4)

	if err := w.PatchU32At(anchor, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}

	got := w.Bytes()
	r := NewReader(got)
	u8, _ := r.ReadU8()
	u16, _ := r.ReadU16()
	patched, _ := r.ReadU32()
	rest, _ := r.ReadBytes(5)

	if u8 != 0xAA || u16 != 0xBEEF || patched != 0xDEADBEEF {
		t.Fatalf("got u8=%#x u16=%#x patched=%#x", u8, u16, patched)
	}
	if diff := cmp.Diff("hello", string(rest)); diff != "" {
		t.Fatalf("bytes mismatch (-want +got):\n%s", diff)
	}
	if len(got)%4 != 0 {
		t.Fatalf("expected 4-byte alignment, got len %d", len(got))
	}
}

func TestWriterCString(t *testing.T) {
	w := NewWriter()
	w.WriteBytes([]byte("abc"))
	w.WriteU8(0)
	w.WriteBytes([]byte("trailer"))

	r := NewReader(w.Bytes())
	s, err := r.ReadCString()
	if err != nil {
		t.Fatal(err)
	}
	if string(s) != "abc" {
		t.Fatalf("ReadCString = %q", s)
	}
	rest, _ := r.ReadBytes(7)
	if string(rest) != "trailer" {
		t.Fatalf("rest = %q", rest)
	}
}
