// Package mkfs implements the formatter (spec section 4.5): it lays down a
// blank, mountable S-7XX image on an arbitrary stream. Grounded on the
// teacher's drivers/fat8/formattingdriver.go Format: zero-fill the whole
// image first, then write the fixed structures on top of the blank canvas.
package mkfs

import (
	"io"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/fat"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/superblock"
)

const zeroChunkSize = 1 << 20

// Format writes a blank, mountable S-7XX image of the given size to stream:
// a zeroed header carrying the fixed machine magic and MediaHDD, an empty
// TOC with the given label, a FAT with every in-range cluster free, and
// every object kind's parameter region filled with 0xFF (the same "erased"
// value DeleteSlot leaves behind). size must be at least
// layout.MinDiskSize.
func Format(stream io.ReadWriteSeeker, size int64, label string) *errors.DriverError {
	if size < layout.MinDiskSize {
		return errors.Errorf(errors.CodeDiskTooSmall, "image is %d bytes, need at least %d", size, layout.MinDiskSize)
	}

	disk := diskio.New(stream, size)

	if err := zeroFill(disk, size); err != nil {
		return err
	}
	if err := writeHeader(disk); err != nil {
		return err
	}
	if err := writeToc(disk, size, label); err != nil {
		return err
	}
	if err := writeFat(disk, size); err != nil {
		return err
	}
	return fillParamsRegions(disk)
}

func zeroFill(disk *diskio.Disk, size int64) *errors.DriverError {
	buf := make([]byte, zeroChunkSize)
	var off int64
	for off < size {
		n := int64(len(buf))
		if off+n > size {
			n = size - off
		}
		if err := disk.WriteAt(off, buf[:n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

func writeHeader(disk *diskio.Disk) *errors.DriverError {
	buf := make([]byte, layout.HeaderSize)
	copy(buf[4:14], []byte(layout.MachineMagic))
	buf[14] = byte(layout.MediaHDD)
	return disk.WriteAt(layout.HeaderOffset, buf)
}

func writeToc(disk *diskio.Disk, size int64, label string) *errors.DriverError {
	blockCount := size / layout.BlockSize
	if blockCount > layout.MaxBlockCount {
		blockCount = layout.MaxBlockCount
	}

	var t superblock.Toc
	copy(t.Label[:], padLabel(label))
	t.BlockCount = uint32(blockCount)
	return superblock.WriteToc(disk, t)
}

func padLabel(label string) []byte {
	out := make([]byte, 16)
	for i := range out {
		out[i] = ' '
	}
	copy(out, []byte(label))
	return out
}

func writeFat(disk *diskio.Disk, size int64) *errors.DriverError {
	dataMax := fat.DataMaxForSize(size)

	buf := make([]byte, layout.FATSize)
	putFatEntry(buf, 0, fat.ValueBadCluster0)
	putFatEntry(buf, 1, uint16(dataMax-1)) // clusters 2..dataMax, all free

	// Clusters past this image's actual capacity can never be allocated;
	// mark them reserved rather than leaving them looking free.
	for i := dataMax + 1; i < layout.FATEntryCount; i++ {
		putFatEntry(buf, i, fat.ValueReserved1)
	}

	return disk.WriteAt(layout.FATOffset, buf)
}

func putFatEntry(buf []byte, index int, v uint16) {
	buf[index*2] = byte(v >> 8)
	buf[index*2+1] = byte(v)
}

func fillParamsRegions(disk *diskio.Disk) *errors.DriverError {
	for _, kind := range layout.AllObjectKinds {
		desc := layout.Describe(kind)
		region := make([]byte, desc.MaxCount*desc.ParamsEntrySize)
		for i := range region {
			region[i] = 0xFF
		}
		if err := disk.WriteAt(desc.ParamsAddr, region); err != nil {
			return err
		}
	}
	return nil
}
