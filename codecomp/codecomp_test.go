package codecomp

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte{},
		[]byte("a"),
		[]byte("This is some data to compress"),
		bytes.Repeat([]byte("ABAB"), 2000),
		bytes.Repeat([]byte{0}, 5000),
	}
	rng := rand.New(rand.NewSource(7))
	randBuf := make([]byte, 4096)
	rng.Read(randBuf)
	cases = append(cases, randBuf)

	for i, c := range cases {
		compressed := Compress(c, CompressOptions{})
		got, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("case %d: Decompress: %v", i, err)
		}
		if !bytes.Equal(got, c) {
			t.Fatalf("case %d: round trip mismatch: got %d bytes, want %d bytes", i, len(got), len(c))
		}
	}
}

// TestNotCompressedSentinel exercises the delta==0 "pass through
// unchanged" convention from spec §4.3.
func TestNotCompressedSentinel(t *testing.T) {
	original := []byte("uncompressed passthrough payload")
	buf := append([]byte(nil), original...)
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0) // header length 0: the passthrough covers the whole buffer

	got, err := Decompress(buf)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, buf) {
		t.Fatalf("expected passthrough of the whole buffer when delta == 0")
	}
}

// TestNegativeDelta covers the case where the compressed encoding of
// a short input is larger than the input itself, making the
// decompressed-size-delta footer field negative. A prior version of
// this codec read that field as unsigned and widened a negative
// delta into a multi-gigabyte allocation instead of decoding it.
func TestNegativeDelta(t *testing.T) {
	data := []byte("a")
	compressed := Compress(data, CompressOptions{})
	if len(compressed) <= len(data) {
		t.Fatalf("expected the compressed output of a single byte to be larger than the input, got %d bytes", len(compressed))
	}
	got, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, data)
	}
}

// TestEmptyInput covers the empty-source edge case of the delta==0
// "not compressed" sentinel: the decompressed output must be empty,
// not the 8-byte footer itself.
func TestEmptyInput(t *testing.T) {
	compressed := Compress(nil, CompressOptions{})
	got, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty decompressed output, got %d bytes", len(got))
	}
}

func TestArm9AdjustRoundTrips(t *testing.T) {
	data := bytes.Repeat([]byte("ARM9CODE"), 64)
	plain := Compress(data, CompressOptions{})
	adjusted := Compress(data, CompressOptions{Arm9Adjust: true})

	if bytes.Equal(plain[len(plain)-8:len(plain)-4], adjusted[len(adjusted)-8:len(adjusted)-4]) {
		t.Fatal("expected Arm9Adjust to change the header-length/compressed-size footer word")
	}
	if len(adjusted) != len(plain)+4 {
		t.Fatalf("expected Arm9Adjust to widen the footer by the relocation constant, got %d vs %d", len(adjusted), len(plain))
	}

	got, err := Decompress(adjusted)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("Arm9Adjust broke the round-trip invariant")
	}
}

func TestTruncatedInput(t *testing.T) {
	if _, err := Decompress([]byte{0, 1, 2}); err == nil {
		t.Fatal("expected error for input shorter than the footer")
	}
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte("This is some data to compress"))
	f.Add(bytes.Repeat([]byte{0x41}, 64))
	f.Fuzz(func(t *testing.T, data []byte) {
		compressed := Compress(data, CompressOptions{})
		got, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("round trip mismatch")
		}
	})
}
