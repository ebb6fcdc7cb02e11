package main

import "github.com/nds-tools/ndscore/fnt"

// fntEntry is one file reachable from an fnt.Folder tree, with its
// fully resolved '/'-separated path.
type fntEntry struct {
	ID   uint16
	Path string
}

// walkFNT lists every file in root, in tree order. The fnt package
// only exposes path<->id point lookups (IDOf/NameOf); a full-tree
// enumeration is CLI convenience, not library surface, so it lives
// here rather than in fnt itself.
func walkFNT(root *fnt.Folder) []fntEntry {
	var out []fntEntry
	var walk func(f *fnt.Folder, prefix string)
	walk = func(f *fnt.Folder, prefix string) {
		for i, name := range f.Files {
			out = append(out, fntEntry{ID: f.FirstID + uint16(i), Path: prefix + name})
		}
		for _, sub := range f.Subfolders {
			walk(sub.Folder, prefix+sub.Name+"/")
		}
	}
	walk(root, "")
	return out
}
