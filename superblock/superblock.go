// Package superblock implements the Header/TOC codec (spec section 4.1): it
// parses and writes the fixed-endianness scalar fields of the S-7XX
// superblock and table-of-contents. There is no caching here, matching the
// teacher's own FAT8 Mount(): the driver keeps a single in-memory copy
// loaded at mount and writes through on every change.
package superblock

import (
	"bytes"
	"encoding/binary"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
)

// Header is the 96-byte region at the start of the image.
type Header struct {
	MediaType layout.MediaType
	Text      [80]byte
}

// ReadHeader reads and validates the header at offset layout.HeaderOffset.
// It fails with CodeWrongFs if the machine magic doesn't match, or
// CodeMediaTypeNotHdd if the media-type byte isn't one of the three
// supported HDD values.
func ReadHeader(disk *diskio.Disk) (Header, *errors.DriverError) {
	buf := make([]byte, layout.HeaderSize)
	if err := disk.ReadAt(layout.HeaderOffset, buf); err != nil {
		return Header{}, err
	}

	magic := buf[4:14]
	if !bytes.Equal(magic, []byte(layout.MachineMagic)) {
		return Header{}, errors.Errorf(errors.CodeWrongFs, "bad machine magic: got %q, want %q", magic, layout.MachineMagic)
	}

	mediaType := layout.MediaType(buf[14])
	if !mediaType.Valid() {
		return Header{}, errors.Errorf(errors.CodeMediaTypeNotHdd, "media type byte %#02x is not a supported HDD variant", byte(mediaType))
	}

	var h Header
	h.MediaType = mediaType
	copy(h.Text[:], buf[15:95])
	return h, nil
}

// WriteMediaType rewrites just the single media-type byte of the header.
// This is the only header field the driver ever changes after mount (OS
// promotion/demotion).
func WriteMediaType(disk *diskio.Disk, mediaType layout.MediaType) *errors.DriverError {
	if err := disk.WriteAt(layout.HeaderOffset+14, []byte{byte(mediaType)}); err != nil {
		return err
	}
	return nil
}

// Toc is the 30-byte table-of-contents region at offset layout.TocOffset.
type Toc struct {
	Label      [16]byte
	BlockCount uint32
	Counts     [5]uint16 // indexed by layout.Kind - 1 (Volume..Sample)
}

// CountFor returns the occupancy counter for kind (Volume..Sample).
func (t *Toc) CountFor(kind layout.Kind) uint16 {
	return t.Counts[kind-1]
}

// SetCountFor sets the occupancy counter for kind (Volume..Sample).
func (t *Toc) SetCountFor(kind layout.Kind, value uint16) {
	t.Counts[kind-1] = value
}

// ReadToc reads the 30-byte TOC and byte-swaps its scalar fields to host
// order.
func ReadToc(disk *diskio.Disk) (Toc, *errors.DriverError) {
	buf := make([]byte, layout.TocSize)
	if err := disk.ReadAt(layout.TocOffset, buf); err != nil {
		return Toc{}, err
	}

	var t Toc
	copy(t.Label[:], buf[0:16])
	t.BlockCount = binary.BigEndian.Uint32(buf[16:20])
	for i := 0; i < 5; i++ {
		t.Counts[i] = binary.BigEndian.Uint16(buf[20+i*2 : 22+i*2])
	}
	return t, nil
}

// WriteToc writes the full 30-byte TOC, byte-swapping from host order.
func WriteToc(disk *diskio.Disk, t Toc) *errors.DriverError {
	buf := make([]byte, layout.TocSize)
	copy(buf[0:16], t.Label[:])
	binary.BigEndian.PutUint32(buf[16:20], t.BlockCount)
	for i := 0; i < 5; i++ {
		binary.BigEndian.PutUint16(buf[20+i*2:22+i*2], t.Counts[i])
	}
	if err := disk.WriteAt(layout.TocOffset, buf); err != nil {
		return err
	}
	return nil
}

// WriteCount writes just one kind's occupancy counter back to disk, without
// re-reading or rewriting the rest of the TOC. Used by the object-table
// engine's bump_toc operation.
func WriteCount(disk *diskio.Disk, kind layout.Kind, value uint16) *errors.DriverError {
	offset := layout.TocOffset + 20 + int64(kind-1)*2
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, value)
	if err := disk.WriteAt(offset, buf); err != nil {
		return err
	}
	return nil
}
