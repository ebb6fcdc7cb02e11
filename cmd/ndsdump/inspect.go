package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nds-tools/ndscore/bmg"
	"github.com/nds-tools/ndscore/narc"
	"github.com/nds-tools/ndscore/romimage"
)

const inspectHelp = `ndsdump inspect [-flags] <file>

Print header and tree information about a ROM image, NARC archive, or
BMG message container.

Example:
  ndsdump inspect game.nds
  ndsdump inspect -type narc data/archive.narc
`

func detectType(explicit, path string) string {
	if explicit != "" && explicit != "auto" {
		return explicit
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".narc":
		return "narc"
	case ".bmg":
		return "bmg"
	default:
		return "rom"
	}
}

func inspect(args []string) error {
	fset := flag.NewFlagSet("inspect", flag.ExitOnError)
	kind := fset.String("type", "auto", "container type: auto, rom, narc, or bmg")
	fset.Usage = usage(fset, inspectHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return fmt.Errorf("required: <file>")
	}
	path := fset.Arg(0)
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch detectType(*kind, path) {
	case "rom":
		return inspectROM(buf)
	case "narc":
		return inspectNARC(buf)
	case "bmg":
		return inspectBMG(buf)
	default:
		return fmt.Errorf("unknown -type %q", *kind)
	}
}

func inspectROM(buf []byte) error {
	rom, err := romimage.Parse(buf)
	if err != nil {
		return err
	}
	h := rom.Header
	fmt.Printf("title:        %s\n", cstr(h.InternalTitle[:]))
	fmt.Printf("id code:      %s\n", cstr(h.IDCode[:]))
	fmt.Printf("version:      %d\n", h.Version)
	fmt.Printf("device cap:   %d (%d bytes)\n", h.DeviceCapacity, 0x20000<<h.DeviceCapacity)
	fmt.Printf("header CRC16: %#04x\n", h.HeaderCRC16)
	fmt.Printf("arm9:         %#x bytes at RAM %#08x, entry %#08x\n", len(rom.ARM9), h.ARM9RAMAddress, h.ARM9EntryAddress)
	fmt.Printf("arm7:         %#x bytes at RAM %#08x, entry %#08x\n", len(rom.ARM7), h.ARM7RAMAddress, h.ARM7EntryAddress)
	fmt.Printf("overlay9:     %d entries\n", len(rom.Overlay9))
	fmt.Printf("overlay7:     %d entries\n", len(rom.Overlay7))
	fmt.Printf("files:        %d entries in FAT\n", len(rom.Files))
	if rom.Root != nil {
		entries := walkFNT(rom.Root)
		fmt.Printf("named files:  %d\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  %5d  %s\n", e.ID, e.Path)
		}
	}
	return nil
}

func inspectNARC(buf []byte) error {
	a, err := narc.Parse(buf)
	if err != nil {
		return err
	}
	fmt.Printf("version:      %d\n", a.Version)
	fmt.Printf("big-endian:   %v\n", a.BigEndianHeader)
	fmt.Printf("files:        %d\n", len(a.Files))
	for _, e := range walkFNT(a.Root) {
		fmt.Printf("  %5d  %s  (%d bytes)\n", e.ID, e.Path, len(a.Files[e.ID]))
	}
	return nil
}

func inspectBMG(buf []byte) error {
	b, err := bmg.Parse(buf)
	if err != nil {
		return err
	}
	fmt.Printf("encoding:     %d\n", b.Encoding)
	fmt.Printf("record size:  %d\n", b.RecordSize)
	fmt.Printf("messages:     %d\n", len(b.Messages))
	fmt.Printf("has FLW1:     %v\n", b.FLW1 != nil)
	fmt.Printf("has FLI1:     %v\n", b.FLI1 != nil)
	return nil
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
