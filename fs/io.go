package fs

import (
	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/objtable"
)

// osTailCapacity is the total addressable size of "/OS" once it has grown
// into the S-760 tail: the fixed OS region plus the 114 relocated clusters.
const osTailCapacity = int64(layout.OSSize) + int64(layout.S760TailClusters)*layout.ClusterSize

// contentSize returns the current logical byte length of an open file, used
// for read/write bounds checking and to report EOF.
func (fsys *FileSystem) contentSize(f *InternalFile) int64 {
	if f.kind == layout.KindOS {
		switch fsys.MediaType() {
		case layout.MediaHDDWithS760:
			return osTailCapacity
		case layout.MediaHDDWithOS:
			return int64(layout.OSSize)
		default:
			return 0
		}
	}
	if f.kind == layout.KindSample {
		paramsSize := int64(fsys.tables[f.kind].ParamsEntrySize())
		return paramsSize + int64(f.entry.ClusterCount)*layout.ClusterSize
	}
	return int64(fsys.tables[f.kind].ParamsEntrySize())
}

// readContent reads length bytes of an open file's content starting at
// offset. Short reads truncate to whatever content remains.
func (fsys *FileSystem) readContent(f *InternalFile, offset int64, length int) ([]byte, *errors.DriverError) {
	size := fsys.contentSize(f)
	if offset >= size {
		return nil, nil
	}
	if offset+int64(length) > size {
		length = int(size - offset)
	}
	if length <= 0 {
		return nil, nil
	}

	switch f.kind {
	case layout.KindOS:
		return fsys.readOS(offset, length)
	case layout.KindSample:
		return fsys.readSample(f, offset, length)
	default:
		return fsys.tables[f.kind].ReadParamsAt(f.slot, int(offset), length)
	}
}

// writeContent writes data into an open file's content starting at offset.
// Kinds 1-4 have a fixed size (their params entry) and never grow, not even
// through Ftruncate; a write past that size fails. Kind 0 ("/OS") and
// kind 5 (samples) are the two exceptions spec section 4.4.3 carves out: a
// sample write past its current end allocates new clusters lazily, and an
// OS write into an unpromoted region auto-promotes the media type, both
// persisting as the write proceeds rather than requiring a prior Ftruncate.
func (fsys *FileSystem) writeContent(f *InternalFile, offset int64, data []byte) *errors.DriverError {
	if len(data) == 0 {
		return nil
	}

	switch f.kind {
	case layout.KindOS:
		return fsys.writeOS(offset, data)
	case layout.KindSample:
		return fsys.writeSample(f, offset, data)
	default:
		size := fsys.contentSize(f)
		if offset+int64(len(data)) > size {
			return errors.Errorf(errors.CodeInvalidPath, "write of %d bytes at offset %d exceeds current size %d", len(data), offset, size)
		}
		return fsys.tables[f.kind].WriteParamsAt(f.slot, int(offset), data)
	}
}

func (fsys *FileSystem) readOS(offset int64, length int) ([]byte, *errors.DriverError) {
	out := make([]byte, 0, length)
	remaining := length
	cur := offset
	for remaining > 0 {
		physOff, chunk := osPhysicalSpan(cur, remaining)
		buf := make([]byte, chunk)
		if err := fsys.disk.ReadAt(physOff, buf); err != nil {
			return nil, err
		}
		out = append(out, buf...)
		cur += int64(chunk)
		remaining -= chunk
	}
	return out, nil
}

func (fsys *FileSystem) writeOS(offset int64, data []byte) *errors.DriverError {
	if err := fsys.ensureOSPromoted(offset + int64(len(data))); err != nil {
		return err
	}

	cur := offset
	remaining := data
	for len(remaining) > 0 {
		physOff, chunk := osPhysicalSpan(cur, len(remaining))
		if err := fsys.disk.WriteAt(physOff, remaining[:chunk]); err != nil {
			return err
		}
		cur += int64(chunk)
		remaining = remaining[chunk:]
	}
	return nil
}

// ensureOSPromoted raises "/OS"'s media type, if needed, so it can address
// at least minSize bytes, performing the same relocate-then-mark protocol
// truncateOS uses when crossing into MediaHDDWithS760 (spec section 4.4.2).
// Unlike Ftruncate, a write only ever grows "/OS": this never demotes.
func (fsys *FileSystem) ensureOSPromoted(minSize int64) *errors.DriverError {
	switch {
	case minSize > osTailCapacity:
		return errors.Errorf(errors.CodeFileTooLarge, "OS size %d exceeds maximum %d", minSize, osTailCapacity)

	case minSize > layout.OSSize:
		if fsys.MediaType() == layout.MediaHDDWithS760 {
			return nil
		}
		if err := fsys.relocateS760Tail(); err != nil {
			return err
		}
		if err := fsys.fatTable.MarkS760Tail(); err != nil {
			return err
		}
		return fsys.setMediaType(layout.MediaHDDWithS760)

	case minSize > 0:
		if fsys.MediaType() == layout.MediaHDD {
			return fsys.setMediaType(layout.MediaHDDWithOS)
		}
		return nil

	default:
		return nil
	}
}

// osPhysicalSpan maps a logical "/OS" offset to an absolute disk offset and
// the largest contiguous chunk (in bytes) that can be transferred before
// crossing into the next cluster (only relevant past layout.OSSize, where
// the tail's clusters aren't contiguous with each other on disk).
func osPhysicalSpan(offset int64, want int) (int64, int) {
	if offset < layout.OSSize {
		chunk := want
		if offset+int64(chunk) > layout.OSSize {
			chunk = int(layout.OSSize - offset)
		}
		return layout.OSOffset + offset, chunk
	}

	tailOffset := offset - layout.OSSize
	cluster := layout.S760TailFirstCluster + int(tailOffset/layout.ClusterSize)
	withinCluster := tailOffset % layout.ClusterSize
	chunk := want
	if remaining := layout.ClusterSize - withinCluster; int64(chunk) > remaining {
		chunk = int(remaining)
	}
	return diskio.ClusterOffset(cluster) + withinCluster, chunk
}

// readSample reads a sample's content: offsets under params_size come from
// its fixed parameter blob (spec section 4.4.3's sample-params entry), the
// rest from its cluster chain.
func (fsys *FileSystem) readSample(f *InternalFile, offset int64, length int) ([]byte, *errors.DriverError) {
	table := fsys.tables[layout.KindSample]
	paramsSize := int64(table.ParamsEntrySize())
	out := make([]byte, 0, length)

	if offset < paramsSize {
		chunk := length
		if offset+int64(chunk) > paramsSize {
			chunk = int(paramsSize - offset)
		}
		data, err := table.ReadParamsAt(f.slot, int(offset), chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		offset += int64(chunk)
		length -= chunk
	}

	cur := offset - paramsSize
	for length > 0 {
		cluster, within, err := fsys.sampleCluster(f, cur)
		if err != nil {
			return nil, err
		}
		chunk := length
		if avail := layout.ClusterSize - within; chunk > avail {
			chunk = avail
		}
		data, err := fsys.disk.ReadCluster(cluster)
		if err != nil {
			return nil, err
		}
		out = append(out, data[within:within+chunk]...)
		cur += int64(chunk)
		length -= chunk
	}
	return out, nil
}

// writeSample writes a sample's content, mirroring readSample's params/
// cluster split. Writes into the cluster region past the chain's current
// end grow it lazily, one cluster at a time, via sampleClusterForWrite.
func (fsys *FileSystem) writeSample(f *InternalFile, offset int64, data []byte) *errors.DriverError {
	table := fsys.tables[layout.KindSample]
	paramsSize := int64(table.ParamsEntrySize())

	if offset < paramsSize {
		chunk := len(data)
		if offset+int64(chunk) > paramsSize {
			chunk = int(paramsSize - offset)
		}
		if err := table.WriteParamsAt(f.slot, int(offset), data[:chunk]); err != nil {
			return err
		}
		offset += int64(chunk)
		data = data[chunk:]
	}

	cur := offset - paramsSize
	for len(data) > 0 {
		cluster, within, err := fsys.sampleClusterForWrite(table, f, cur)
		if err != nil {
			return err
		}
		chunk := len(data)
		if avail := layout.ClusterSize - within; chunk > avail {
			chunk = avail
		}

		buf, err := fsys.disk.ReadCluster(cluster)
		if err != nil {
			return err
		}
		copy(buf[within:within+chunk], data[:chunk])
		if err := fsys.disk.WriteCluster(cluster, buf); err != nil {
			return err
		}

		cur += int64(chunk)
		data = data[chunk:]
	}
	return nil
}

// sampleCluster locates the cluster and within-cluster byte index for an
// offset into f's chain (relative to the end of its params region). It
// holds no lock of its own beyond what fat.Table.GetNthCluster already
// takes internally, per spec section 5's guidance to pair "allocate/fetch
// cluster" with the following read/write rather than locking the whole
// request.
func (fsys *FileSystem) sampleCluster(f *InternalFile, offset int64) (cluster int, within int, err *errors.DriverError) {
	clusterIndex := int(offset / layout.ClusterSize)
	within = int(offset % layout.ClusterSize)

	if clusterIndex == 0 {
		return int(f.entry.StartCluster), within, nil
	}
	cluster, err = fsys.fatTable.GetNthCluster(int(f.entry.StartCluster), clusterIndex)
	return cluster, within, err
}

// sampleClusterForWrite behaves like sampleCluster but extends the chain,
// one cluster at a time via fat.Table.GetNextOrFreeCluster, whenever offset
// walks past its current end. Each extension is persisted to f's entry
// (in memory and on disk) immediately, matching spec section 4.4.3's "one
// at a time as the write crosses cluster boundaries" growth rule.
func (fsys *FileSystem) sampleClusterForWrite(table *objtable.Table, f *InternalFile, offset int64) (cluster int, within int, err *errors.DriverError) {
	clusterIndex := int(offset / layout.ClusterSize)
	within = int(offset % layout.ClusterSize)

	if f.entry.ClusterCount == 0 {
		chain, ferr := fsys.fatTable.FindFreeChain(1)
		if ferr != nil {
			return 0, 0, ferr
		}
		if err := fsys.fatTable.WriteChain(chain); err != nil {
			return 0, 0, err
		}
		f.entry.StartCluster = uint16(chain[0])
		f.entry.ClusterCount = 1
		if err := table.WriteEntry(f.slot, f.entry); err != nil {
			return 0, 0, err
		}
	}

	cluster = int(f.entry.StartCluster)
	for i := 0; i < clusterIndex; i++ {
		next, allocated, nerr := fsys.fatTable.GetNextOrFreeCluster(cluster)
		if nerr != nil {
			return 0, 0, nerr
		}
		cluster = next
		if allocated {
			f.entry.ClusterCount++
			if err := table.WriteEntry(f.slot, f.entry); err != nil {
				return 0, 0, err
			}
		}
	}
	return cluster, within, nil
}
