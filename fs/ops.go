package fs

// This file covers operations on the pseudo-directory hierarchy itself —
// listing, removal, renaming — as opposed to I/O on an already-resolved
// file (see stream.go, io.go). Grounded on the teacher's driver/driver.go
// Remove/Rename dispatch, adapted to this format's flat two-level layout
// instead of a general directory tree.

import (
	"github.com/hashicorp/go-multierror"

	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/objtable"
)

// Dentry is one entry returned by List. Spec section 4.4.6 also carries
// three timestamp placeholders on every entry; this format has nowhere to
// store them, so they're always zero and not worth a field here.
type Dentry struct {
	Name  string
	Size  int64
	Index int
	IsDir bool
}

// List implements spec section 4.4.6's three layers: the root yields "/OS"
// (only once the media type actually carries it) plus the five kind
// directories, a kind directory yields its occupied slots, and listing a
// file is an error.
func (fsys *FileSystem) List(path string) ([]Dentry, *errors.DriverError) {
	parsed, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	if parsed.isRoot {
		out := make([]Dentry, 0, 6)
		if mt := fsys.MediaType(); mt.HasOS() {
			out = append(out, Dentry{Name: "OS", Size: fsys.osSizeForMediaType(mt)})
		}
		for _, k := range layout.AllObjectKinds {
			desc := layout.Describe(k)
			out = append(out, Dentry{Name: k.DirName(), IsDir: true, Size: int64(desc.MaxCount) * layout.ListEntrySize})
		}
		return out, nil
	}

	if parsed.isOS {
		return nil, errors.New(errors.CodeNotADirectory).WithMessage("\"/OS\" is a file")
	}

	if !parsed.isDir {
		return nil, errors.New(errors.CodeNotADirectory).WithMessage("path names a file")
	}

	table := fsys.tables[parsed.kind]
	paramsSize := int64(table.ParamsEntrySize())
	slots := table.OccupiedSlots()
	out := make([]Dentry, 0, len(slots))
	for _, slot := range slots {
		entry, err := table.LoadEntry(slot)
		if err != nil {
			continue
		}
		size := paramsSize
		if parsed.kind == layout.KindSample {
			size += int64(entry.ClusterCount) * layout.ClusterSize
		}
		out = append(out, Dentry{Name: entry.DisplayName(), Index: slot, Size: size})
	}
	return out, nil
}

// osSizeForMediaType reports "/OS"'s current logical size given its media
// type, mirroring contentSize's OS branch for a file that isn't open.
func (fsys *FileSystem) osSizeForMediaType(mt layout.MediaType) int64 {
	if mt == layout.MediaHDDWithS760 {
		return osTailCapacity
	}
	return int64(layout.OSSize)
}

func findExistingSlot(table *objtable.Table, ident identifier) (int, bool) {
	if ident.hasIndex {
		if ident.index < 0 || ident.index >= table.MaxCount() {
			return 0, false
		}
		return ident.index, table.IsOccupied(ident.index)
	}
	return table.FindSlotByName(objtable.PadName(ident.name))
}

// Remove deletes exactly one object. Removing "/", a kind directory, or
// "/OS" fails with CodeUnsupportedOperation: this driver has no call that
// deletes a whole directory, every object on the image, or the OS pseudo-
// file. Removing a path that's currently open fails with CodeAlreadyOpen.
func (fsys *FileSystem) Remove(path string) *errors.DriverError {
	if err := fsys.checkWritable(); err != nil {
		return err
	}

	parsed, err := parsePath(path)
	if err != nil {
		return err
	}
	if parsed.isRoot || parsed.isDir || parsed.isOS {
		return errors.New(errors.CodeUnsupportedOperation).WithMessage("cannot remove a directory or the OS pseudo-file")
	}

	table := fsys.tables[parsed.kind]
	slot, found := findExistingSlot(table, parsed.ident)
	if !found {
		return errors.Errorf(errors.CodeNotFound, "no such object in %s", parsed.kind.DirName())
	}

	canonical := canonicalObjectPath(parsed.kind, slot)
	fsys.registryMu.Lock()
	_, open := fsys.registry[canonical]
	fsys.registryMu.Unlock()
	if open {
		return errors.Errorf(errors.CodeAlreadyOpen, "%s is currently open", canonical)
	}

	return table.DeleteSlot(slot, fsys.fatTable)
}

// RemoveAll calls Remove on every path in paths (each must name a single
// object), continuing past individual failures such as CodeAlreadyOpen, and
// returns every failure accumulated via
// github.com/hashicorp/go-multierror. A caller that only cares whether
// everything succeeded can still just check the returned error for nil.
func (fsys *FileSystem) RemoveAll(paths []string) error {
	var result *multierror.Error
	for _, p := range paths {
		if err := fsys.Remove(p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Rename changes an object's display name in place. Spec section 4.4.4
// restricts this to objects of the same kind; a cross-kind rename (which
// would require moving between fixed-capacity tables with different
// parameter layouts) is unsupported. Any "{index}-" prefix on newPath is
// ignored — only its name component is used.
func (fsys *FileSystem) Rename(oldPath, newPath string) *errors.DriverError {
	if err := fsys.checkWritable(); err != nil {
		return err
	}

	oldParsed, err := parsePath(oldPath)
	if err != nil {
		return err
	}
	newParsed, err := parsePath(newPath)
	if err != nil {
		return err
	}
	if oldParsed.isRoot || oldParsed.isDir || oldParsed.isOS ||
		newParsed.isRoot || newParsed.isDir || newParsed.isOS {
		return errors.New(errors.CodeInvalidPath).WithMessage("rename requires two object paths")
	}
	if oldParsed.kind != newParsed.kind {
		return errors.New(errors.CodeUnsupportedOperation).WithMessage("cannot rename across object kinds")
	}

	table := fsys.tables[oldParsed.kind]
	slot, found := findExistingSlot(table, oldParsed.ident)
	if !found {
		return errors.Errorf(errors.CodeNotFound, "no such object in %s", oldParsed.kind.DirName())
	}

	entry, eerr := table.LoadEntry(slot)
	if eerr != nil {
		return eerr
	}
	entry.Name = objtable.PadName(newParsed.ident.name)
	return table.WriteEntry(slot, entry)
}
