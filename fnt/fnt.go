// Package fnt implements the Nintendo DS filename-table codec shared
// by ROM images and NARC archives (spec §4.4): a tree of folders, each
// carrying an ordered file-name list, an ordered subfolder list, and a
// firstID file-ID base from which file IDs are assigned implicitly.
package fnt

import (
	"strings"

	"github.com/nds-tools/ndscore/bytecursor"
	"github.com/nds-tools/ndscore/ndserr"
)

// RootIndex is the folder index reserved for the tree root, per spec
// §3.
const RootIndex = 0xF000

// Folder is one node of the filename-table tree.
type Folder struct {
	// Index is this folder's 16-bit directory-table row index. The
	// root is always RootIndex.
	Index uint16
	// FirstID is the file ID assigned to this folder's first file
	// entry, in table order.
	FirstID uint16
	// Files is the ordered list of plain file names in this folder.
	Files []string
	// Subfolders is the ordered list of (name, subtree) pairs.
	Subfolders []SubfolderEntry
}

// SubfolderEntry names one child folder within its parent's entry
// list.
type SubfolderEntry struct {
	Name   string
	Folder *Folder
}

// FileCount returns the number of file entries directly in f (not
// counting subfolders).
func (f *Folder) FileCount() int { return len(f.Files) }

// Parse decodes a filename table from buf: an 8-byte-per-row directory
// table followed by packed per-folder entry blocks (spec §4.4). It
// returns the root folder.
func Parse(buf []byte) (*Folder, error) {
	r := bytecursor.NewReader(buf)

	rootEntryOffset, err := r.ReadU32()
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedFNT, 0, err, "fnt: reading root directory row")
	}
	rootFirstID, err := r.ReadU16()
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedFNT, 4, err, "fnt: reading root firstID")
	}
	folderCount, err := r.ReadU16()
	if err != nil {
		return nil, ndserr.Wrap(ndserr.MalformedFNT, 6, err, "fnt: reading folder count")
	}

	type row struct {
		entryOffset uint32
		firstID     uint16
		parent      uint16
	}
	rows := make([]row, folderCount)
	rows[0] = row{entryOffset: rootEntryOffset, firstID: rootFirstID, parent: folderCount}
	for i := 1; i < int(folderCount); i++ {
		eo, err := r.ReadU32()
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedFNT, int64(r.Tell()), err, "fnt: reading directory row %d", i)
		}
		fid, err := r.ReadU16()
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedFNT, int64(r.Tell()), err, "fnt: reading firstID for row %d", i)
		}
		parent, err := r.ReadU16()
		if err != nil {
			return nil, ndserr.Wrap(ndserr.MalformedFNT, int64(r.Tell()), err, "fnt: reading parent index for row %d", i)
		}
		rows[i] = row{entryOffset: eo, firstID: fid, parent: parent}
	}

	folders := make([]*Folder, folderCount)
	for i := range rows {
		folders[i] = &Folder{Index: uint16(RootIndex + i), FirstID: rows[i].firstID}
	}

	seenIDs := map[uint16]bool{}
	var decodeFolder func(i int, visiting map[int]bool) error
	decodeFolder = func(i int, visiting map[int]bool) error {
		if visiting[i] {
			return ndserr.New(ndserr.MalformedFNT, "fnt: cycle detected reaching directory row %d", i)
		}
		visiting[i] = true
		defer delete(visiting, i)

		f := folders[i]
		if err := r.Seek(int(rows[i].entryOffset)); err != nil {
			return ndserr.Wrap(ndserr.MalformedFNT, int64(rows[i].entryOffset), err, "fnt: seeking to entry block for row %d", i)
		}

		fileCount := 0
		for {
			lenByte, err := r.ReadU8()
			if err != nil {
				return ndserr.Wrap(ndserr.MalformedFNT, int64(r.Tell()), err, "fnt: reading entry length byte")
			}
			if lenByte == 0 {
				break
			}
			if lenByte <= 127 {
				name, err := r.ReadBytes(int(lenByte))
				if err != nil {
					return ndserr.Wrap(ndserr.MalformedFNT, int64(r.Tell()), err, "fnt: reading file name")
				}
				id := f.FirstID + uint16(fileCount)
				if seenIDs[id] {
					return ndserr.New(ndserr.MalformedFNT, "fnt: file ID %d assigned more than once", id)
				}
				seenIDs[id] = true
				f.Files = append(f.Files, string(name))
				fileCount++
				continue
			}
			nameLen := int(lenByte) - 128
			name, err := r.ReadBytes(nameLen)
			if err != nil {
				return ndserr.Wrap(ndserr.MalformedFNT, int64(r.Tell()), err, "fnt: reading subfolder name")
			}
			subIdx16, err := r.ReadU16()
			if err != nil {
				return ndserr.Wrap(ndserr.MalformedFNT, int64(r.Tell()), err, "fnt: reading subfolder directory index")
			}
			subIdx := int(subIdx16) - RootIndex
			if subIdx < 0 || subIdx >= int(folderCount) {
				return ndserr.New(ndserr.MalformedFNT, "fnt: subfolder index %#x outside directory table", subIdx16)
			}
			resume := r.Tell()
			if err := decodeFolder(subIdx, visiting); err != nil {
				return err
			}
			if err := r.Seek(resume); err != nil {
				return ndserr.Wrap(ndserr.MalformedFNT, int64(resume), err, "fnt: resuming entry block for row %d", i)
			}
			f.Subfolders = append(f.Subfolders, SubfolderEntry{Name: string(name), Folder: folders[subIdx]})
		}
		return nil
	}

	if err := decodeFolder(0, map[int]bool{}); err != nil {
		return nil, err
	}
	return folders[0], nil
}

// Emit serializes root back into the directory-table + entry-block
// wire format. It returns InvalidFNT if the tree cannot be laid out
// without violating an invariant (more than 4096 folders, so that a
// directory index RootIndex+i no longer fits in 16 bits, or a
// folder/file name too long to encode).
func Emit(root *Folder) ([]byte, error) {
	var order []*Folder
	index := map[*Folder]int{}
	parentIndex := map[*Folder]int{}
	var walk func(f *Folder) error
	walk = func(f *Folder) error {
		if _, ok := index[f]; ok {
			return ndserr.New(ndserr.InvalidFNT, "fnt: folder graph contains a cycle or shared node")
		}
		index[f] = len(order)
		order = append(order, f)
		for _, sub := range f.Subfolders {
			parentIndex[sub.Folder] = index[f]
			if err := walk(sub.Folder); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	if len(order) > 0x10000-RootIndex {
		return nil, ndserr.New(ndserr.InvalidFNT, "fnt: %d folders exceeds the 16-bit directory table limit", len(order))
	}

	w := bytecursor.NewWriter()
	// Directory table: one 8-byte row per folder, first pass of
	// placeholders; entry offsets are patched once each folder's
	// entry block has been emitted.
	anchors := make([]bytecursor.Anchor, len(order))
	for i, f := range order {
		anchors[i] = w.Reserve(4)
		w.WriteU16(f.FirstID)
		if i == 0 {
			w.WriteU16(uint16(len(order)))
		} else {
			parentIdx, ok := parentIndex[f]
			if !ok {
				return nil, ndserr.New(ndserr.InvalidFNT, "fnt: folder %d has no reachable parent", f.Index)
			}
			w.WriteU16(uint16(RootIndex + parentIdx))
		}
	}

	for i, f := range order {
		entryOffset := w.Len()
		if err := w.PatchU32At(anchors[i], uint32(entryOffset)); err != nil {
			return nil, err
		}
		for _, name := range f.Files {
			if len(name) == 0 || len(name) > 127 {
				return nil, ndserr.New(ndserr.InvalidFNT, "fnt: file name %q has invalid length for entry encoding", name)
			}
			w.WriteU8(uint8(len(name)))
			w.WriteBytes([]byte(name))
		}
		for _, sub := range f.Subfolders {
			if len(sub.Name) == 0 || len(sub.Name) > 127 {
				return nil, ndserr.New(ndserr.InvalidFNT, "fnt: subfolder name %q has invalid length for entry encoding", sub.Name)
			}
			subIdx, ok := index[sub.Folder]
			if !ok {
				return nil, ndserr.New(ndserr.InvalidFNT, "fnt: subfolder %q not reachable from root during layout", sub.Name)
			}
			w.WriteU8(uint8(len(sub.Name) + 128))
			w.WriteBytes([]byte(sub.Name))
			w.WriteU16(uint16(RootIndex + subIdx))
		}
		w.WriteU8(0)
	}

	return w.Bytes(), nil
}

// IDOf resolves a '/'-separated path, rooted at root, to the file ID
// of the named file, or false if no such file exists.
func IDOf(root *Folder, path string) (uint16, bool) {
	components := strings.Split(strings.Trim(path, "/"), "/")
	return idOf(root, components)
}

func idOf(f *Folder, components []string) (uint16, bool) {
	if len(components) == 0 {
		return 0, false
	}
	if len(components) == 1 {
		for i, name := range f.Files {
			if name == components[0] {
				return f.FirstID + uint16(i), true
			}
		}
		return 0, false
	}
	for _, sub := range f.Subfolders {
		if sub.Name == components[0] {
			return idOf(sub.Folder, components[1:])
		}
	}
	return 0, false
}

// NameOf walks root looking for the file with the given ID and
// returns its '/'-separated path, or false if no file has that ID.
func NameOf(root *Folder, id uint16) (string, bool) {
	return nameOf(root, id, "")
}

func nameOf(f *Folder, id uint16, prefix string) (string, bool) {
	for i, name := range f.Files {
		if f.FirstID+uint16(i) == id {
			return prefix + name, true
		}
	}
	for _, sub := range f.Subfolders {
		if path, ok := nameOf(sub.Folder, id, prefix+sub.Name+"/"); ok {
			return path, true
		}
	}
	return "", false
}
