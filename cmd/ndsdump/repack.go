package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nds-tools/ndscore/fnt"
	"github.com/nds-tools/ndscore/narc"
	"github.com/nds-tools/ndscore/ndsexec"
	"github.com/nds-tools/ndscore/romimage"
)

const repackHelp = `ndsdump repack [-flags] <dir> <out-file>

Rebuild a ROM image or NARC archive from a directory previously
written by 'ndsdump extract'.

Example:
  ndsdump repack -type rom game-extracted/ game-repacked.nds
`

func repack(args []string) error {
	fset := flag.NewFlagSet("repack", flag.ExitOnError)
	kind := fset.String("type", "rom", "container type: rom or narc")
	fset.Usage = usage(fset, repackHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		return fmt.Errorf("required: <dir> <out-file>")
	}
	dir, out := fset.Arg(0), fset.Arg(1)

	var data []byte
	var err error
	switch *kind {
	case "rom":
		data, err = repackROM(dir)
	case "narc":
		data, err = repackNARC(dir)
	default:
		return fmt.Errorf("unknown -type %q (want rom or narc)", *kind)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func readFileIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

func readIDList(path string) ([]uint16, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []uint16
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseUint(line, 10, 16)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint16(n))
	}
	return ids, scanner.Err()
}

func readTreeFiles(dir string, root *fnt.Folder) (map[uint16][]byte, error) {
	files := make(map[uint16][]byte)
	for _, e := range walkFNT(root) {
		data, err := os.ReadFile(filepath.Join(dir, "files", filepath.FromSlash(e.Path)))
		if err != nil {
			return nil, err
		}
		files[e.ID] = data
	}
	return files, nil
}

func repackROM(dir string) ([]byte, error) {
	headerBytes, err := os.ReadFile(filepath.Join(dir, "header.bin"))
	if err != nil {
		return nil, err
	}
	header, err := romimage.ParseHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	fntBytes, err := os.ReadFile(filepath.Join(dir, "fnt.bin"))
	if err != nil {
		return nil, err
	}
	root, err := fnt.Parse(fntBytes)
	if err != nil {
		return nil, err
	}

	files, err := readTreeFiles(dir, root)
	if err != nil {
		return nil, err
	}
	extraDir := filepath.Join(dir, "extra")
	if entries, err := os.ReadDir(extraDir); err == nil {
		for _, ent := range entries {
			id, err := strconv.ParseUint(strings.TrimSuffix(ent.Name(), filepath.Ext(ent.Name())), 10, 16)
			if err != nil {
				return nil, fmt.Errorf("extra/%s: %w", ent.Name(), err)
			}
			data, err := os.ReadFile(filepath.Join(extraDir, ent.Name()))
			if err != nil {
				return nil, err
			}
			files[uint16(id)] = data
		}
	}

	arm9, err := os.ReadFile(filepath.Join(dir, "arm9.bin"))
	if err != nil {
		return nil, err
	}
	arm7, err := os.ReadFile(filepath.Join(dir, "arm7.bin"))
	if err != nil {
		return nil, err
	}
	arm9post, err := readFileIfExists(filepath.Join(dir, "arm9post.bin"))
	if err != nil {
		return nil, err
	}
	iconBanner, err := readFileIfExists(filepath.Join(dir, "iconbanner.bin"))
	if err != nil {
		return nil, err
	}
	debugROM, err := readFileIfExists(filepath.Join(dir, "debugrom.bin"))
	if err != nil {
		return nil, err
	}

	var overlay9, overlay7 []ndsexec.OverlayRecord
	if buf, err := readFileIfExists(filepath.Join(dir, "overlay9.bin")); err != nil {
		return nil, err
	} else if buf != nil {
		if overlay9, err = ndsexec.ParseOverlayTable(buf); err != nil {
			return nil, err
		}
	}
	if buf, err := readFileIfExists(filepath.Join(dir, "overlay7.bin")); err != nil {
		return nil, err
	} else if buf != nil {
		if overlay7, err = ndsexec.ParseOverlayTable(buf); err != nil {
			return nil, err
		}
	}

	sortedFileIDs, err := readIDList(filepath.Join(dir, "sortedfileids.txt"))
	if err != nil {
		return nil, err
	}

	rom := &romimage.ROM{
		Header:        header,
		ARM9:          arm9,
		ARM9PostData:  arm9post,
		ARM7:          arm7,
		Overlay9:      overlay9,
		Overlay7:      overlay7,
		Root:          root,
		Files:         files,
		SortedFileIDs: sortedFileIDs,
		IconBanner:    iconBanner,
		DebugROM:      debugROM,
	}
	return romimage.Save(rom, romimage.SaveOptions{UpdateDeviceCapacity: true, UpdateHeaderCRC: true})
}

func repackNARC(dir string) ([]byte, error) {
	fntBytes, err := os.ReadFile(filepath.Join(dir, "fnt.bin"))
	if err != nil {
		return nil, err
	}
	root, err := fnt.Parse(fntBytes)
	if err != nil {
		return nil, err
	}

	entries := walkFNT(root)
	maxID := uint16(0)
	for _, e := range entries {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	files := make([][]byte, int(maxID)+1)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, "files", filepath.FromSlash(e.Path)))
		if err != nil {
			return nil, err
		}
		files[e.ID] = data
	}

	version := uint16(1)
	if buf, err := readFileIfExists(filepath.Join(dir, "version.txt")); err != nil {
		return nil, err
	} else if buf != nil {
		n, err := strconv.ParseUint(strings.TrimSpace(string(buf)), 10, 16)
		if err != nil {
			return nil, err
		}
		version = uint16(n)
	}
	bigEndian := false
	if buf, err := readFileIfExists(filepath.Join(dir, "bigendian.txt")); err != nil {
		return nil, err
	} else if buf != nil {
		bigEndian = strings.TrimSpace(string(buf)) == "1"
	}

	return narc.Emit(&narc.Archive{
		BigEndianHeader: bigEndian,
		Version:         version,
		Root:            root,
		Files:           files,
	})
}
