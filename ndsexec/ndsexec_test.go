package ndsexec

import (
	"testing"

	"github.com/nds-tools/ndscore/codecomp"
)

func sampleMainCode() *MainCode {
	return &MainCode{
		CompressionFlags: 0,
		ImplicitData:     []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00, 0x00, 0x00},
		Sections: []Section{
			{DestAddr: 0x02000000, BSSSize: 0x10, Data: []byte{1, 2, 3, 4}},
			{DestAddr: 0x02004000, BSSSize: 0, Data: []byte{5, 6, 7, 8, 9, 10}},
		},
	}
}

func TestMainCodeRoundTrip(t *testing.T) {
	m := sampleMainCode()
	blob, settingsOffset, err := EmitMainCode(m, false, codecomp.CompressOptions{})
	if err != nil {
		t.Fatalf("EmitMainCode: %v", err)
	}

	got, err := ParseMainCode(blob, settingsOffset)
	if err != nil {
		t.Fatalf("ParseMainCode: %v", err)
	}

	if string(got.ImplicitData) != string(m.ImplicitData) {
		t.Fatalf("ImplicitData = %v, want %v", got.ImplicitData, m.ImplicitData)
	}
	if len(got.Sections) != len(m.Sections) {
		t.Fatalf("len(Sections) = %d, want %d", len(got.Sections), len(m.Sections))
	}
	for i, s := range m.Sections {
		if got.Sections[i].DestAddr != s.DestAddr {
			t.Fatalf("Sections[%d].DestAddr = %#x, want %#x", i, got.Sections[i].DestAddr, s.DestAddr)
		}
		if got.Sections[i].BSSSize != s.BSSSize {
			t.Fatalf("Sections[%d].BSSSize = %#x, want %#x", i, got.Sections[i].BSSSize, s.BSSSize)
		}
		if string(got.Sections[i].Data) != string(s.Data) {
			t.Fatalf("Sections[%d].Data = %v, want %v", i, got.Sections[i].Data, s.Data)
		}
	}
	if got.IsCompressed() {
		t.Fatalf("IsCompressed() = true, want false")
	}
}

func TestMainCodeRoundTripCompressed(t *testing.T) {
	m := sampleMainCode()
	m.CompressionFlags = compressedFlag
	blob, settingsOffset, err := EmitMainCode(m, true, codecomp.CompressOptions{Arm9Adjust: true})
	if err != nil {
		t.Fatalf("EmitMainCode: %v", err)
	}

	got, err := ParseMainCode(blob, settingsOffset)
	if err != nil {
		t.Fatalf("ParseMainCode: %v", err)
	}
	if !got.IsCompressed() {
		t.Fatalf("IsCompressed() = false, want true")
	}
	if len(got.Sections) != 2 {
		t.Fatalf("len(Sections) = %d, want 2", len(got.Sections))
	}
	if string(got.Sections[1].Data) != string(m.Sections[1].Data) {
		t.Fatalf("Sections[1].Data = %v, want %v", got.Sections[1].Data, m.Sections[1].Data)
	}
}

func TestOverlayTableRoundTrip(t *testing.T) {
	records := []OverlayRecord{
		{ID: 0, RAMAddr: 0x02100000, RAMSize: 0x2000, BSSSize: 0x100, StaticInitStart: 0x02100F00, StaticInitEnd: 0x02100F10, FileID: 5, CompressedSize: 0x1234, Compressed: true, VerifyHash: false},
		{ID: 1, RAMAddr: 0x02110000, RAMSize: 0x4000, BSSSize: 0, StaticInitStart: 0, StaticInitEnd: 0, FileID: 6, CompressedSize: 0x4000, Compressed: false, VerifyHash: true},
	}
	buf := EmitOverlayTable(records)
	if len(buf) != len(records)*overlayRecordSize {
		t.Fatalf("len(buf) = %d, want %d", len(buf), len(records)*overlayRecordSize)
	}

	got, err := ParseOverlayTable(buf)
	if err != nil {
		t.Fatalf("ParseOverlayTable: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(records))
	}
	for i, want := range records {
		if got[i] != want {
			t.Fatalf("records[%d] = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestOverlayTableRejectsBadSize(t *testing.T) {
	if _, err := ParseOverlayTable(make([]byte, overlayRecordSize-1)); err == nil {
		t.Fatal("expected error for truncated overlay table")
	}
}

func TestLoadSaveOverlay(t *testing.T) {
	rec := OverlayRecord{ID: 2, FileID: 9, Compressed: true}
	payload := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	compressed := codecomp.Compress(payload, codecomp.CompressOptions{})

	ov, err := LoadOverlay(rec, compressed)
	if err != nil {
		t.Fatalf("LoadOverlay: %v", err)
	}
	if string(ov.Data) != string(payload) {
		t.Fatalf("Data = %v, want %v", ov.Data, payload)
	}

	fileData, savedRec := SaveOverlay(ov)
	if savedRec.CompressedSize != uint32(len(fileData)) {
		t.Fatalf("CompressedSize = %d, want %d", savedRec.CompressedSize, len(fileData))
	}
	roundTripped, err := codecomp.Decompress(fileData)
	if err != nil {
		t.Fatalf("codecomp.Decompress: %v", err)
	}
	if string(roundTripped) != string(payload) {
		t.Fatalf("roundTripped = %v, want %v", roundTripped, payload)
	}
}

func TestLoadOverlayUncompressedPassthrough(t *testing.T) {
	rec := OverlayRecord{ID: 3, FileID: 1, Compressed: false}
	payload := []byte{1, 2, 3}
	ov, err := LoadOverlay(rec, payload)
	if err != nil {
		t.Fatalf("LoadOverlay: %v", err)
	}
	if string(ov.Data) != string(payload) {
		t.Fatalf("Data = %v, want %v", ov.Data, payload)
	}
}
