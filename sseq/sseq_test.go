package sseq

import (
	"bytes"
	"testing"
)

func sampleBlob() []byte {
	return []byte{
		0x93, 0x00, 0x05, 0x00, 0x00, // BeginTrack -> offset 5
		0x3C, 0x64, 0x20, // Note
		0xFF, // EndTrack
	}
}

func TestRoundTrip(t *testing.T) {
	meta := Metadata{BankID: 3, Volume: 127, ChannelPressure: 64, PolyphonicPressure: 64, PlayerID: 0}
	seq, err := Parse(sampleBlob(), meta)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if seq.Meta != meta {
		t.Fatalf("Meta = %+v, want %+v", seq.Meta, meta)
	}
	out, err := Emit(seq)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !bytes.Equal(out, sampleBlob()) {
		t.Fatalf("Emit output = % x, want % x", out, sampleBlob())
	}
}

func TestRejectsUnknownOpcode(t *testing.T) {
	// A blob whose first byte is not a known opcode makes Lift fail, and
	// Parse passes that error on.
	blob := []byte{0xAB}
	if _, err := Parse(blob, Metadata{}); err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestFileFramingRoundTrip(t *testing.T) {
	meta := Metadata{BankID: 1, Volume: 100, PlayerID: 2}
	seq, err := Parse(sampleBlob(), meta)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := EmitFile(seq)
	if err != nil {
		t.Fatalf("EmitFile: %v", err)
	}
	if string(data[:4]) != "SSEQ" {
		t.Fatalf("missing SSEQ magic")
	}
	got, err := ParseFile(data, meta)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if got.Meta != meta {
		t.Fatalf("Meta = %+v, want %+v", got.Meta, meta)
	}
	outBlob, err := Emit(got)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !bytes.Equal(outBlob, sampleBlob()) {
		t.Fatalf("round-tripped blob mismatch")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{BankID: 0x1234, Volume: 10, ChannelPressure: 20, PolyphonicPressure: 30, PlayerID: 1, Unknown: 5}
	buf := []byte{0x34, 0x12, 10, 20, 30, 1, 5}
	got, err := ReadMetadata(buf)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got != m {
		t.Fatalf("ReadMetadata = %+v, want %+v", got, m)
	}
}
