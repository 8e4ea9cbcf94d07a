package fs

import (
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/objtable"
)

// Ftruncate implements spec section 4.4.2: for kinds 1-4 (volume,
// performance, patch, partial) it only guarantees the entry exists (size is
// otherwise meaningless to them),
// for samples it grows or shrinks the cluster chain to match newSize, and
// for "/OS" it promotes or demotes the machine's media type.
func (fsys *FileSystem) Ftruncate(path string, newSize int64) *errors.DriverError {
	if err := fsys.checkWritable(); err != nil {
		return err
	}
	if newSize < 0 {
		return errors.Errorf(errors.CodeInvalidPath, "negative size %d", newSize)
	}

	parsed, err := parsePath(path)
	if err != nil {
		return err
	}
	if parsed.isRoot || parsed.isDir {
		return errors.New(errors.CodeNotAFile).WithMessage("path names a directory, not a file")
	}
	if parsed.isOS {
		return fsys.truncateOS(newSize)
	}

	table := fsys.tables[parsed.kind]
	res, rerr := resolveSlot(table, parsed.ident)
	if rerr != nil {
		return rerr
	}

	if res.isNew {
		if _, cerr := createEntry(table, parsed.kind, res.slot, res.name); cerr != nil {
			return cerr
		}
	}

	if parsed.kind != layout.KindSample {
		return nil
	}
	return fsys.truncateSample(table, res.slot, newSize)
}

func (fsys *FileSystem) truncateSample(table *objtable.Table, slot int, newSize int64) *errors.DriverError {
	if newSize > layout.MaxSampleSize {
		return errors.Errorf(errors.CodeFileTooLarge, "sample size %d exceeds maximum %d", newSize, layout.MaxSampleSize)
	}

	entry, err := table.LoadEntry(slot)
	if err != nil {
		return err
	}

	wantClusters := clustersFor(newSize, int64(table.ParamsEntrySize()))
	haveClusters := int(entry.ClusterCount)

	switch {
	case wantClusters == haveClusters:
		return nil

	case wantClusters < haveClusters:
		var chain []int
		if haveClusters > 0 {
			chain, err = fsys.fatTable.FollowChain(int(entry.StartCluster))
			if err != nil {
				return err
			}
		}
		if err := fsys.fatTable.ShrinkChain(chain, wantClusters); err != nil {
			return err
		}
		if wantClusters == 0 {
			entry.StartCluster = 0
		}
		entry.ClusterCount = uint16(wantClusters)
		return table.WriteEntry(slot, entry)

	default: // growing
		var existing []int
		if haveClusters > 0 {
			existing, err = fsys.fatTable.FollowChain(int(entry.StartCluster))
			if err != nil {
				return err
			}
		}
		extra, ferr := fsys.fatTable.FindFreeChain(wantClusters - haveClusters)
		if ferr != nil {
			return ferr
		}
		full := append(existing, extra...)
		if err := fsys.fatTable.WriteChain(full); err != nil {
			return err
		}
		entry.StartCluster = uint16(full[0])
		entry.ClusterCount = uint16(wantClusters)
		return table.WriteEntry(slot, entry)
	}
}

// clustersFor rounds the cluster-backed portion of a sample's size (the
// byte range past its fixed params_size prefix) up to the number of whole
// clusters needed to hold it. A size at or under paramsSize needs none.
func clustersFor(size int64, paramsSize int64) int {
	if size <= paramsSize {
		return 0
	}
	remaining := size - paramsSize
	return int((remaining + layout.ClusterSize - 1) / layout.ClusterSize)
}

// truncateOS implements the three media-type transitions of spec section
// 4.4.2: plain HDD at size 0, HDD_with_OS up to layout.OSSize, and
// HDD_with_OS_S760 up to layout.OSSize plus the fixed tail region.
func (fsys *FileSystem) truncateOS(newSize int64) *errors.DriverError {
	switch {
	case newSize == 0:
		if fsys.MediaType() == layout.MediaHDDWithS760 {
			if err := fsys.fatTable.ClearS760Tail(); err != nil {
				return err
			}
		}
		return fsys.setMediaType(layout.MediaHDD)

	case newSize <= layout.OSSize:
		return fsys.setMediaType(layout.MediaHDDWithOS)

	case newSize <= osTailCapacity:
		if fsys.MediaType() != layout.MediaHDDWithS760 {
			if err := fsys.relocateS760Tail(); err != nil {
				return err
			}
			if err := fsys.fatTable.MarkS760Tail(); err != nil {
				return err
			}
		}
		return fsys.setMediaType(layout.MediaHDDWithS760)

	default:
		return errors.Errorf(errors.CodeFileTooLarge, "OS size %d exceeds maximum %d", newSize, osTailCapacity)
	}
}
