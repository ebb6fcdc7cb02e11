package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nds-tools/ndscore/bmg"
	"github.com/nds-tools/ndscore/fnt"
	"github.com/nds-tools/ndscore/narc"
	"github.com/nds-tools/ndscore/ndsexec"
	"github.com/nds-tools/ndscore/romimage"
)

const extractHelp = `ndsdump extract [-flags] <file> <out-dir>

Dump a ROM image, NARC archive, or BMG container's contents to a
directory. 'ndsdump repack' can rebuild ROM and NARC dumps.

Example:
  ndsdump extract game.nds game-extracted/
`

func extract(args []string) error {
	fset := flag.NewFlagSet("extract", flag.ExitOnError)
	kind := fset.String("type", "auto", "container type: auto, rom, narc, or bmg")
	fset.Usage = usage(fset, extractHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		return fmt.Errorf("required: <file> <out-dir>")
	}
	path, outDir := fset.Arg(0), fset.Arg(1)
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	switch detectType(*kind, path) {
	case "rom":
		return extractROM(buf, outDir)
	case "narc":
		return extractNARC(buf, outDir)
	case "bmg":
		return extractBMG(buf, outDir)
	default:
		return fmt.Errorf("unknown -type %q", *kind)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeTreeFiles(outDir string, root *fnt.Folder, files map[uint16][]byte) (named map[uint16]bool, err error) {
	named = make(map[uint16]bool)
	if root == nil {
		return named, nil
	}
	for _, e := range walkFNT(root) {
		data, ok := files[e.ID]
		if !ok {
			continue
		}
		if err := writeFile(filepath.Join(outDir, "files", filepath.FromSlash(e.Path)), data); err != nil {
			return nil, err
		}
		named[e.ID] = true
	}
	return named, nil
}

func extractROM(buf []byte, outDir string) error {
	rom, err := romimage.Parse(buf)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "header.bin"), rom.Header.Emit(false)); err != nil {
		return err
	}
	if rom.Root != nil {
		fntBytes, err := fnt.Emit(rom.Root)
		if err != nil {
			return err
		}
		if err := writeFile(filepath.Join(outDir, "fnt.bin"), fntBytes); err != nil {
			return err
		}
	}
	if len(rom.Overlay9) > 0 {
		if err := writeFile(filepath.Join(outDir, "overlay9.bin"), ndsexec.EmitOverlayTable(rom.Overlay9)); err != nil {
			return err
		}
	}
	if len(rom.Overlay7) > 0 {
		if err := writeFile(filepath.Join(outDir, "overlay7.bin"), ndsexec.EmitOverlayTable(rom.Overlay7)); err != nil {
			return err
		}
	}
	if len(rom.SortedFileIDs) > 0 {
		var sb strings.Builder
		for _, id := range rom.SortedFileIDs {
			fmt.Fprintf(&sb, "%d\n", id)
		}
		if err := writeFile(filepath.Join(outDir, "sortedfileids.txt"), []byte(sb.String())); err != nil {
			return err
		}
	}
	if err := writeFile(filepath.Join(outDir, "arm9.bin"), rom.ARM9); err != nil {
		return err
	}
	if len(rom.ARM9PostData) > 0 {
		if err := writeFile(filepath.Join(outDir, "arm9post.bin"), rom.ARM9PostData); err != nil {
			return err
		}
	}
	if err := writeFile(filepath.Join(outDir, "arm7.bin"), rom.ARM7); err != nil {
		return err
	}
	if len(rom.IconBanner) > 0 {
		if err := writeFile(filepath.Join(outDir, "iconbanner.bin"), rom.IconBanner); err != nil {
			return err
		}
	}
	if len(rom.DebugROM) > 0 {
		if err := writeFile(filepath.Join(outDir, "debugrom.bin"), rom.DebugROM); err != nil {
			return err
		}
	}

	named, err := writeTreeFiles(outDir, rom.Root, rom.Files)
	if err != nil {
		return err
	}
	for id, data := range rom.Files {
		if named[id] {
			continue
		}
		if err := writeFile(filepath.Join(outDir, "extra", fmt.Sprintf("%05d.bin", id)), data); err != nil {
			return err
		}
	}
	fmt.Printf("extracted %d named files, %d unnamed (overlay/extra) files to %s\n", len(named), len(rom.Files)-len(named), outDir)
	return nil
}

func extractNARC(buf []byte, outDir string) error {
	a, err := narc.Parse(buf)
	if err != nil {
		return err
	}
	fntBytes, err := fnt.Emit(a.Root)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "fnt.bin"), fntBytes); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "version.txt"), []byte(fmt.Sprintf("%d\n", a.Version))); err != nil {
		return err
	}
	if a.BigEndianHeader {
		if err := writeFile(filepath.Join(outDir, "bigendian.txt"), []byte("1\n")); err != nil {
			return err
		}
	}

	files := make(map[uint16][]byte, len(a.Files))
	for i, data := range a.Files {
		files[uint16(i)] = data
	}
	named, err := writeTreeFiles(outDir, a.Root, files)
	if err != nil {
		return err
	}
	fmt.Printf("extracted %d files to %s\n", len(named), outDir)
	return nil
}

func extractBMG(buf []byte, outDir string) error {
	b, err := bmg.Parse(buf)
	if err != nil {
		return err
	}
	for i, m := range b.Messages {
		if err := writeFile(filepath.Join(outDir, fmt.Sprintf("message_%04d.bin", i)), m.Text); err != nil {
			return err
		}
		if len(m.Attributes) > 0 {
			if err := writeFile(filepath.Join(outDir, fmt.Sprintf("message_%04d.attrs", i)), m.Attributes); err != nil {
				return err
			}
		}
	}
	fmt.Printf("extracted %d messages to %s\n", len(b.Messages), outDir)
	return nil
}
