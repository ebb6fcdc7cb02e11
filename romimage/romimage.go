// Package romimage implements the Nintendo DS cartridge ROM composite
// (spec §4.8): the 0x200-byte header, the ARM9/ARM7 binaries and their
// overlay tables, the filename and file-allocation tables, the
// icon/banner blob, and the debug-ROM and RSA-signature trailers.
package romimage

import (
	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/fnt"
	"github.com/nds-tools/ndscore/ndserr"
	"github.com/nds-tools/ndscore/ndsexec"
)

// headerCRCRegionEnd is the offset the header CRC16 covers, up to but
// excluding the CRC field itself (spec §6, offset 0x15C).
const headerCRCRegionEnd = 0x15C

// nintendoLogoSize is the size of the fixed Nintendo-logo region that
// save must never modify (spec §4.8).
const nintendoLogoSize = 0x9C

// rsaSignatureSize is the size of the trailing RSA-SHA1 signature
// blob on carts that carry one.
const rsaSignatureSize = 0x88

// Header is the ROM cartridge header (spec §6's field table), plus the
// well-known debug-ROM fields that table calls out as "notable" rather
// than exhaustive.
type Header struct {
	InternalTitle        [12]byte
	IDCode               [4]byte
	DeveloperCode        uint16
	UnitCode             uint8
	EncryptionSeedSelect uint8
	DeviceCapacity       uint8
	Region               uint8
	Version              uint8
	AutostartFlags       uint8

	ARM9Offset          uint32
	ARM9EntryAddress    uint32
	ARM9RAMAddress      uint32
	ARM9Size            uint32
	ARM7Offset          uint32
	ARM7EntryAddress    uint32
	ARM7RAMAddress      uint32
	ARM7Size            uint32
	FNTOffset           uint32
	FNTSize             uint32
	FATOffset           uint32
	FATSize             uint32
	Overlay9TableOffset uint32
	Overlay9TableSize   uint32
	Overlay7TableOffset uint32
	Overlay7TableSize   uint32

	NormalCardControlRegister uint32
	SecureCardControlRegister uint32
	IconBannerOffset          uint32
	SecureAreaChecksum        uint16
	SecureTransferDelay       uint16

	ARM9CodeSettingsPointerAddress uint32
	ARM7CodeSettingsPointerAddress uint32
	SecureAreaDisableMagic         [8]byte

	UsedROMSize uint32
	HeaderSize  uint32

	DebugROMOffset  uint32
	DebugROMSize    uint32
	DebugRAMAddress uint32

	NintendoLogo [nintendoLogoSize]byte
	HeaderCRC16  uint16
}

// ParseHeader decodes the first 0x200 bytes of a ROM image.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < 0x200 {
		return nil, ndserr.At(ndserr.OutOfBounds, int64(len(buf)), "romimage: header shorter than 0x200 bytes")
	}
	r := bytecursor.NewReader(buf)
	h := &Header{}

	title, err := r.ReadBytes(12)
	if err != nil {
		return nil, err
	}
	copy(h.InternalTitle[:], title)
	id, err := r.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	copy(h.IDCode[:], id)
	if h.DeveloperCode, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if h.UnitCode, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if h.EncryptionSeedSelect, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if h.DeviceCapacity, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if err := r.Seek(0x01D); err != nil {
		return nil, err
	}
	if h.Region, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if h.Version, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if h.AutostartFlags, err = r.ReadU8(); err != nil {
		return nil, err
	}

	if err := r.Seek(0x020); err != nil {
		return nil, err
	}
	for _, f := range []*uint32{&h.ARM9Offset, &h.ARM9EntryAddress, &h.ARM9RAMAddress, &h.ARM9Size,
		&h.ARM7Offset, &h.ARM7EntryAddress, &h.ARM7RAMAddress, &h.ARM7Size} {
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		*f = v
	}
	for _, f := range []*uint32{&h.FNTOffset, &h.FNTSize, &h.FATOffset, &h.FATSize,
		&h.Overlay9TableOffset, &h.Overlay9TableSize, &h.Overlay7TableOffset, &h.Overlay7TableSize} {
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		*f = v
	}
	if h.NormalCardControlRegister, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.SecureCardControlRegister, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.IconBannerOffset, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.SecureAreaChecksum, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if h.SecureTransferDelay, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if h.ARM9CodeSettingsPointerAddress, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.ARM7CodeSettingsPointerAddress, err = r.ReadU32(); err != nil {
		return nil, err
	}
	magic, err := r.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	copy(h.SecureAreaDisableMagic[:], magic)
	if h.UsedROMSize, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.HeaderSize, err = r.ReadU32(); err != nil {
		return nil, err
	}

	if err := r.Seek(0x168); err != nil {
		return nil, err
	}
	if h.DebugROMOffset, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.DebugROMSize, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.DebugRAMAddress, err = r.ReadU32(); err != nil {
		return nil, err
	}

	if err := r.Seek(0x0C0); err != nil {
		return nil, err
	}
	logo, err := r.ReadBytes(nintendoLogoSize)
	if err != nil {
		return nil, err
	}
	copy(h.NintendoLogo[:], logo)
	if h.HeaderCRC16, err = r.ReadU16(); err != nil {
		return nil, err
	}

	return h, nil
}

// Emit serializes h into a 0x200-byte header. If updateCRC is true,
// HeaderCRC16 is recomputed from the rest of the emitted bytes;
// otherwise h.HeaderCRC16 is written as-is.
func (h *Header) Emit(updateCRC bool) []byte {
	w := bytecursor.NewWriter()
	w.WriteBytes(h.InternalTitle[:])
	w.WriteBytes(h.IDCode[:])
	w.WriteU16(h.DeveloperCode)
	w.WriteU8(h.UnitCode)
	w.WriteU8(h.EncryptionSeedSelect)
	w.WriteU8(h.DeviceCapacity)
	w.WriteZeros(0x01D - w.Len())
	w.WriteU8(h.Region)
	w.WriteU8(h.Version)
	w.WriteU8(h.AutostartFlags)
	w.WriteZeros(0x020 - w.Len())

	for _, v := range []uint32{h.ARM9Offset, h.ARM9EntryAddress, h.ARM9RAMAddress, h.ARM9Size,
		h.ARM7Offset, h.ARM7EntryAddress, h.ARM7RAMAddress, h.ARM7Size,
		h.FNTOffset, h.FNTSize, h.FATOffset, h.FATSize,
		h.Overlay9TableOffset, h.Overlay9TableSize, h.Overlay7TableOffset, h.Overlay7TableSize} {
		w.WriteU32(v)
	}
	w.WriteU32(h.NormalCardControlRegister)
	w.WriteU32(h.SecureCardControlRegister)
	w.WriteU32(h.IconBannerOffset)
	w.WriteU16(h.SecureAreaChecksum)
	w.WriteU16(h.SecureTransferDelay)
	w.WriteU32(h.ARM9CodeSettingsPointerAddress)
	w.WriteU32(h.ARM7CodeSettingsPointerAddress)
	w.WriteBytes(h.SecureAreaDisableMagic[:])
	w.WriteU32(h.UsedROMSize)
	w.WriteU32(h.HeaderSize)

	w.WriteZeros(0x0C0 - w.Len())
	w.WriteBytes(h.NintendoLogo[:])

	crc := h.HeaderCRC16
	if updateCRC {
		crc = crc16(w.Bytes()[:headerCRCRegionEnd])
	}
	w.WriteU16(crc)

	w.WriteZeros(0x168 - w.Len())
	w.WriteU32(h.DebugROMOffset)
	w.WriteU32(h.DebugROMSize)
	w.WriteU32(h.DebugRAMAddress)

	w.WriteZeros(0x200 - w.Len())
	return w.Bytes()
}

// crc16 computes the reflected CRC16 (polynomial 0xA001, initial value
// 0xFFFF) spec §4.8 requires for the header and secure-area checksums.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// ROM is a fully decoded cartridge image.
type ROM struct {
	Header *Header

	ARM9         []byte
	ARM9PostData []byte
	ARM7         []byte

	Overlay9 []ndsexec.OverlayRecord
	Overlay7 []ndsexec.OverlayRecord

	Root  *fnt.Folder
	Files map[uint16][]byte

	// SortedFileIDs lists the file IDs in the order their data appears
	// in the parsed image; Save prefers it for FAT emission order (spec §4.8) so a
	// round-tripped ROM preserves its original file layout instead of
	// collapsing to ascending-ID order.
	SortedFileIDs []uint16

	IconBanner []byte
	DebugROM   []byte

	// RSASignature is the trailing RSA-SHA1 signature blob, if any.
	// Its presence/location isn't named by any header field (spec §6's
	// table has none); this package follows the convention that any
	// bytes beyond Header.UsedROMSize, up to rsaSignatureSize long, are
	// the signature.
	RSASignature []byte
}

type fatEntry struct {
	Start, End uint32
}

// Parse decodes a complete ROM image.
func Parse(buf []byte) (*ROM, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	r := bytecursor.NewReader(buf)

	arm9, err := r.ReadAt(int(h.ARM9Offset), int(h.ARM9Size))
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(h.ARM9Offset), err, "romimage: reading ARM9 binary")
	}
	arm7, err := r.ReadAt(int(h.ARM7Offset), int(h.ARM7Size))
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(h.ARM7Offset), err, "romimage: reading ARM7 binary")
	}

	// The ARM9 post-data runs from the end of the ARM9 binary to the
	// nearest region that follows it.
	var arm9Post []byte
	arm9End := h.ARM9Offset + h.ARM9Size
	postEnd := arm9End
	for _, candidate := range []uint32{h.ARM7Offset, h.Overlay9TableOffset, h.Overlay7TableOffset, h.FNTOffset, h.FATOffset} {
		if candidate > arm9End && (postEnd == arm9End || candidate < postEnd) {
			postEnd = candidate
		}
	}
	if postEnd > arm9End {
		arm9Post, err = r.ReadAt(int(arm9End), int(postEnd-arm9End))
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(arm9End), err, "romimage: reading ARM9 post-data")
		}
	}

	var overlay9, overlay7 []ndsexec.OverlayRecord
	if h.Overlay9TableSize > 0 {
		buf9, err := r.ReadAt(int(h.Overlay9TableOffset), int(h.Overlay9TableSize))
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(h.Overlay9TableOffset), err, "romimage: reading overlay9 table")
		}
		if overlay9, err = ndsexec.ParseOverlayTable(buf9); err != nil {
			return nil, err
		}
	}
	if h.Overlay7TableSize > 0 {
		buf7, err := r.ReadAt(int(h.Overlay7TableOffset), int(h.Overlay7TableSize))
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(h.Overlay7TableOffset), err, "romimage: reading overlay7 table")
		}
		if overlay7, err = ndsexec.ParseOverlayTable(buf7); err != nil {
			return nil, err
		}
	}

	fntBytes, err := r.ReadAt(int(h.FNTOffset), int(h.FNTSize))
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(h.FNTOffset), err, "romimage: reading FNT")
	}
	root, err := fnt.Parse(fntBytes)
	if err != nil {
		return nil, err
	}

	fatBytes, err := r.ReadAt(int(h.FATOffset), int(h.FATSize))
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedROM, int64(h.FATOffset), err, "romimage: reading FAT")
	}
	fatReader := bytecursor.NewReader(fatBytes)
	fatCount := len(fatBytes) / 8
	fat := make([]fatEntry, fatCount)
	for i := range fat {
		start, err := fatReader.ReadU32()
		if err != nil {
			return nil, err
		}
		end, err := fatReader.ReadU32()
		if err != nil {
			return nil, err
		}
		fat[i] = fatEntry{Start: start, End: end}
	}

	files := make(map[uint16][]byte, fatCount)
	sortedIDs := make([]uint16, fatCount)
	for i, e := range fat {
		data, err := r.ReadAt(int(e.Start), int(e.End-e.Start))
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(e.Start), err, "romimage: file %d data out of bounds", i)
		}
		files[uint16(i)] = append([]byte(nil), data...)
		sortedIDs[i] = uint16(i)
	}
	// Order the IDs by where their data sits in the image.
	for i := 1; i < len(sortedIDs); i++ {
		for j := i; j > 0 && fat[sortedIDs[j]].Start < fat[sortedIDs[j-1]].Start; j-- {
			sortedIDs[j], sortedIDs[j-1] = sortedIDs[j-1], sortedIDs[j]
		}
	}

	var iconBanner []byte
	if h.IconBannerOffset != 0 {
		// Icon/banner blocks grow across versions (0x840, 0x23C0,
		// 0x23C0...); this library doesn't interpret pixel/palette
		// data (spec.md Non-goals), so it is captured as an opaque
		// blob running to the next claimed region.
		end := len(buf)
		for _, candidate := range []uint32{h.ARM9Offset, h.ARM7Offset, h.FNTOffset, h.FATOffset, h.Overlay9TableOffset, h.Overlay7TableOffset, h.DebugROMOffset} {
			if candidate > h.IconBannerOffset && int(candidate) < end {
				end = int(candidate)
			}
		}
		iconBanner, err = r.ReadAt(int(h.IconBannerOffset), end-int(h.IconBannerOffset))
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(h.IconBannerOffset), err, "romimage: reading icon/banner")
		}
	}

	var debugROM []byte
	if h.DebugROMSize > 0 {
		debugROM, err = r.ReadAt(int(h.DebugROMOffset), int(h.DebugROMSize))
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedROM, int64(h.DebugROMOffset), err, "romimage: reading debug ROM")
		}
	}

	var rsaSig []byte
	if int(h.UsedROMSize) < len(buf) {
		trailer := buf[h.UsedROMSize:]
		if len(trailer) > 0 && len(trailer) <= rsaSignatureSize {
			rsaSig = append([]byte(nil), trailer...)
		}
	}

	return &ROM{
		Header:        h,
		ARM9:          append([]byte(nil), arm9...),
		ARM9PostData:  append([]byte(nil), arm9Post...),
		ARM7:          append([]byte(nil), arm7...),
		Overlay9:      overlay9,
		Overlay7:      overlay7,
		Root:          root,
		Files:         files,
		SortedFileIDs: sortedIDs,
		IconBanner:    append([]byte(nil), iconBanner...),
		DebugROM:      append([]byte(nil), debugROM...),
		RSASignature:  rsaSig,
	}, nil
}

// SaveOptions configures Save.
type SaveOptions struct {
	// UpdateDeviceCapacity recomputes Header.DeviceCapacity from the
	// emitted total ROM size (spec §4.8).
	UpdateDeviceCapacity bool
	// UpdateHeaderCRC recomputes Header.HeaderCRC16 and
	// Header.SecureAreaChecksum.
	UpdateHeaderCRC bool
}

// fatEmissionOrder returns the file IDs to emit in order: rom's
// SortedFileIDs first (filtered to IDs that still exist in rom.Files),
// then any remaining IDs in ascending order (spec §4.8).
func fatEmissionOrder(rom *ROM) []uint16 {
	seen := make(map[uint16]bool, len(rom.Files))
	order := make([]uint16, 0, len(rom.Files))
	for _, id := range rom.SortedFileIDs {
		if _, ok := rom.Files[id]; ok && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	if len(order) < len(rom.Files) {
		rest := make([]uint16, 0, len(rom.Files)-len(order))
		for id := range rom.Files {
			if !seen[id] {
				rest = append(rest, id)
			}
		}
		for i := 0; i < len(rest); i++ {
			for j := i + 1; j < len(rest); j++ {
				if rest[j] < rest[i] {
					rest[i], rest[j] = rest[j], rest[i]
				}
			}
		}
		order = append(order, rest...)
	}
	return order
}

// Save serializes rom into a complete ROM image.
func Save(rom *ROM, opts SaveOptions) ([]byte, error) {
	fntBytes, err := fnt.Emit(rom.Root)
	if err != nil {
		return nil, err
	}

	fileOrder := fatEmissionOrder(rom)
	fatEntries := make(map[uint16]fatEntry, len(fileOrder))

	w := bytecursor.NewWriter()
	w.WriteZeros(0x200) // header patched last, once every offset is known

	h := *rom.Header

	h.ARM9Offset = uint32(w.Len())
	w.WriteBytes(rom.ARM9)
	h.ARM9Size = uint32(len(rom.ARM9))
	w.WriteBytes(rom.ARM9PostData)

	h.ARM7Offset = uint32(w.Len())
	w.WriteBytes(rom.ARM7)
	h.ARM7Size = uint32(len(rom.ARM7))

	if len(rom.Overlay9) > 0 {
		h.Overlay9TableOffset = uint32(w.Len())
		buf9 := ndsexec.EmitOverlayTable(rom.Overlay9)
		w.WriteBytes(buf9)
		h.Overlay9TableSize = uint32(len(buf9))
	} else {
		h.Overlay9TableOffset, h.Overlay9TableSize = 0, 0
	}
	if len(rom.Overlay7) > 0 {
		h.Overlay7TableOffset = uint32(w.Len())
		buf7 := ndsexec.EmitOverlayTable(rom.Overlay7)
		w.WriteBytes(buf7)
		h.Overlay7TableSize = uint32(len(buf7))
	} else {
		h.Overlay7TableOffset, h.Overlay7TableSize = 0, 0
	}

	h.FNTOffset = uint32(w.Len())
	w.WriteBytes(fntBytes)
	h.FNTSize = uint32(len(fntBytes))

	if len(rom.IconBanner) > 0 {
		h.IconBannerOffset = uint32(w.Len())
		w.WriteBytes(rom.IconBanner)
	} else {
		h.IconBannerOffset = 0
	}

	if len(rom.DebugROM) > 0 {
		h.DebugROMOffset = uint32(w.Len())
		w.WriteBytes(rom.DebugROM)
		h.DebugROMSize = uint32(len(rom.DebugROM))
	} else {
		h.DebugROMOffset, h.DebugROMSize = 0, 0
	}

	h.FATOffset = uint32(w.Len())
	w.WriteZeros(len(fileOrder) * 8) // FAT table is fixed-size; filled in below
	h.FATSize = uint32(len(fileOrder) * 8)

	for _, id := range fileOrder {
		data := rom.Files[id]
		start := uint32(w.Len())
		w.WriteBytes(data)
		fatEntries[id] = fatEntry{Start: start, End: start + uint32(len(data))}
	}

	h.UsedROMSize = uint32(w.Len())

	if len(rom.RSASignature) > 0 {
		w.WriteBytes(rom.RSASignature)
	}

	total := w.Bytes()

	// FAT slot i describes file ID i, whatever order the data was
	// written in.
	fatBuf := bytecursor.NewWriter()
	for id := 0; id < len(fileOrder); id++ {
		e := fatEntries[uint16(id)]
		fatBuf.WriteU32(e.Start)
		fatBuf.WriteU32(e.End)
	}
	fatPos := int(h.FATOffset)
	copy(total[fatPos:fatPos+len(fileOrder)*8], fatBuf.Bytes())

	if opts.UpdateDeviceCapacity {
		h.DeviceCapacity = deviceCapacity(len(total))
	}
	if opts.UpdateHeaderCRC {
		secureEnd := len(rom.ARM9)
		if secureEnd > 0x4000 {
			secureEnd = 0x4000
		}
		h.SecureAreaChecksum = crc16(rom.ARM9[:secureEnd])
	}

	headerBytes := h.Emit(opts.UpdateHeaderCRC)
	copy(total[:0x200], headerBytes)

	return total, nil
}

// deviceCapacity computes ceil(log2(totalROMSize / 0x20000)) per spec
// §4.8's device-capacity derivation.
func deviceCapacity(totalROMSize int) uint8 {
	units := (totalROMSize + 0x20000 - 1) / 0x20000
	if units <= 1 {
		return 0
	}
	capacity := uint8(0)
	for (1 << capacity) < units {
		capacity++
	}
	return capacity
}
