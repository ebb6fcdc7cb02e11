package romimage

import (
	"testing"

	"github.com/nds-tools/ndscore/fnt"
	"github.com/nds-tools/ndscore/ndsexec"
)

func sampleROM() *ROM {
	root := &fnt.Folder{Index: fnt.RootIndex, FirstID: 0, Files: []string{"a.bin", "b.bin"}}
	return &ROM{
		Header: &Header{
			InternalTitle: [12]byte{'T', 'E', 'S', 'T'},
			IDCode:        [4]byte{'A', 'T', 'S', 'E'},
			Version:       1,
		},
		ARM9:         []byte{1, 2, 3, 4, 5, 6, 7, 8},
		ARM9PostData: []byte{0xAA, 0xBB},
		ARM7:         []byte{9, 10, 11, 12},
		Overlay9: []ndsexec.OverlayRecord{
			{ID: 0, RAMAddr: 0x02100000, RAMSize: 0x10, FileID: 0, Compressed: false},
		},
		Root: root,
		Files: map[uint16][]byte{
			0: {0xDE, 0xAD, 0xBE, 0xEF},
			1: {1, 2, 3, 4, 5, 6},
		},
		SortedFileIDs: []uint16{1, 0},
		IconBanner:    []byte{0x01, 0x00, 0x02, 0x00},
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		InternalTitle:        [12]byte{'H', 'E', 'L', 'L', 'O'},
		IDCode:               [4]byte{'A', 'B', 'C', 'D'},
		DeveloperCode:        0x3031,
		UnitCode:             0,
		EncryptionSeedSelect: 2,
		DeviceCapacity:       9,
		Region:               0,
		Version:              1,
		AutostartFlags:       0,
		ARM9Offset:           0x4000,
		ARM9EntryAddress:     0x02000800,
		ARM9RAMAddress:       0x02000000,
		ARM9Size:             0x1000,
		ARM7Offset:           0x8000,
		ARM7EntryAddress:     0x02380000,
		ARM7RAMAddress:       0x02380000,
		ARM7Size:             0x800,
		FNTOffset:            0x9000,
		FNTSize:              0x100,
		FATOffset:            0x9100,
		FATSize:              0x20,
		UsedROMSize:          0xA000,
		HeaderSize:           0x4000,
		DebugROMOffset:       0,
		DebugROMSize:         0,
	}
	buf := h.Emit(true)
	if len(buf) != 0x200 {
		t.Fatalf("len(buf) = %#x, want 0x200", len(buf))
	}

	got, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got.DeveloperCode != h.DeveloperCode {
		t.Fatalf("DeveloperCode = %#x, want %#x", got.DeveloperCode, h.DeveloperCode)
	}
	if got.ARM9Offset != h.ARM9Offset || got.ARM9Size != h.ARM9Size {
		t.Fatalf("ARM9 offset/size = %#x/%#x, want %#x/%#x", got.ARM9Offset, got.ARM9Size, h.ARM9Offset, h.ARM9Size)
	}
	if got.FATOffset != h.FATOffset || got.FATSize != h.FATSize {
		t.Fatalf("FAT offset/size mismatch")
	}
	if got.HeaderCRC16 == 0 {
		t.Fatalf("HeaderCRC16 was not computed")
	}

	// Corrupting a byte inside the CRC-covered region must change the
	// recomputed CRC.
	buf2 := append([]byte(nil), buf...)
	buf2[0] ^= 0xFF
	h2, err := ParseHeader(buf2)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	recomputed := crc16(buf2[:headerCRCRegionEnd])
	if recomputed == h2.HeaderCRC16 {
		t.Fatalf("expected corrupted header to produce a different CRC")
	}
}

func TestROMRoundTrip(t *testing.T) {
	rom := sampleROM()
	rom.Header.DeviceCapacity = 9 // stale value that Save must replace
	data, err := Save(rom, SaveOptions{UpdateDeviceCapacity: true, UpdateHeaderCRC: true})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if string(got.ARM9) != string(rom.ARM9) {
		t.Fatalf("ARM9 = %v, want %v", got.ARM9, rom.ARM9)
	}
	if string(got.ARM9PostData) != string(rom.ARM9PostData) {
		t.Fatalf("ARM9PostData = %v, want %v", got.ARM9PostData, rom.ARM9PostData)
	}
	if string(got.ARM7) != string(rom.ARM7) {
		t.Fatalf("ARM7 = %v, want %v", got.ARM7, rom.ARM7)
	}
	if len(got.Overlay9) != 1 || got.Overlay9[0].RAMAddr != 0x02100000 {
		t.Fatalf("Overlay9 = %+v", got.Overlay9)
	}
	if len(got.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(got.Files))
	}
	for id, data := range rom.Files {
		if string(got.Files[id]) != string(data) {
			t.Fatalf("Files[%d] = %v, want %v", id, got.Files[id], data)
		}
	}
	if id, ok := fnt.IDOf(got.Root, "a.bin"); !ok || id != 0 {
		t.Fatalf("IDOf(a.bin) = %d, %v, want 0, true", id, ok)
	}
	if string(got.IconBanner) != string(rom.IconBanner) {
		t.Fatalf("IconBanner = %v, want %v", got.IconBanner, rom.IconBanner)
	}
	if want := deviceCapacity(len(data)); got.Header.DeviceCapacity != want {
		t.Fatalf("DeviceCapacity = %d, want %d", got.Header.DeviceCapacity, want)
	}
	if got.Header.HeaderCRC16 == 0 {
		t.Fatalf("HeaderCRC16 was not computed")
	}
}

func TestFATEmissionOrderPrefersSortedFileIDs(t *testing.T) {
	rom := sampleROM()
	order := fatEmissionOrder(rom)
	if len(order) != 2 || order[0] != 1 || order[1] != 0 {
		t.Fatalf("fatEmissionOrder = %v, want [1 0]", order)
	}
}

func TestFATEmissionOrderAppendsMissingIDsAscending(t *testing.T) {
	rom := sampleROM()
	rom.Files[2] = []byte{1}
	rom.SortedFileIDs = []uint16{1}
	order := fatEmissionOrder(rom)
	if len(order) != 3 || order[0] != 1 || order[1] != 0 || order[2] != 2 {
		t.Fatalf("fatEmissionOrder = %v, want [1 0 2]", order)
	}
}

func TestDeviceCapacity(t *testing.T) {
	cases := []struct {
		size int
		want uint8
	}{
		{0x20000, 0},
		{0x40000, 1},
		{0x80000, 2},
		{0x20000*8 + 1, 4},
	}
	for _, c := range cases {
		if got := deviceCapacity(c.size); got != c.want {
			t.Fatalf("deviceCapacity(%#x) = %d, want %d", c.size, got, c.want)
		}
	}
}
