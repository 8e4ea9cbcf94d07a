package superblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
)

func newTestDisk(t *testing.T) *diskio.Disk {
	t.Helper()
	size := int64(layout.MinDiskSize)
	buf := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(buf)
	return diskio.New(stream, size)
}

func writeValidHeader(t *testing.T, disk *diskio.Disk, mediaType layout.MediaType) {
	t.Helper()
	buf := make([]byte, layout.HeaderSize)
	copy(buf[4:14], []byte(layout.MachineMagic))
	buf[14] = byte(mediaType)
	require.Nil(t, disk.WriteAt(layout.HeaderOffset, buf))
}

func TestReadHeader_RejectsBadMagic(t *testing.T) {
	disk := newTestDisk(t)
	_, err := ReadHeader(disk)
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeWrongFs, err.Code())
}

func TestReadHeader_RejectsNonHddMediaType(t *testing.T) {
	disk := newTestDisk(t)
	writeValidHeader(t, disk, 0x10) // floppy variant, not a supported HDD value
	_, err := ReadHeader(disk)
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeMediaTypeNotHdd, err.Code())
}

func TestReadHeader_AcceptsValidHdd(t *testing.T) {
	disk := newTestDisk(t)
	writeValidHeader(t, disk, layout.MediaHDD)
	h, err := ReadHeader(disk)
	require.Nil(t, err)
	assert.Equal(t, layout.MediaHDD, h.MediaType)
}

func TestWriteMediaType_OnlyTouchesThatByte(t *testing.T) {
	disk := newTestDisk(t)
	writeValidHeader(t, disk, layout.MediaHDD)
	require.Nil(t, WriteMediaType(disk, layout.MediaHDDWithOS))

	h, err := ReadHeader(disk)
	require.Nil(t, err)
	assert.Equal(t, layout.MediaHDDWithOS, h.MediaType)
}

func TestWriteToc_ThenReadToc_RoundTrips(t *testing.T) {
	disk := newTestDisk(t)
	want := Toc{BlockCount: 12345}
	copy(want.Label[:], "MY DISK")
	want.SetCountFor(layout.KindSample, 42)

	require.Nil(t, WriteToc(disk, want))
	got, err := ReadToc(disk)
	require.Nil(t, err)
	assert.Equal(t, want.Label, got.Label)
	assert.Equal(t, want.BlockCount, got.BlockCount)
	assert.EqualValues(t, 42, got.CountFor(layout.KindSample))
}

func TestWriteCount_UpdatesOnlyOneKind(t *testing.T) {
	disk := newTestDisk(t)
	base := Toc{}
	base.SetCountFor(layout.KindVolume, 3)
	base.SetCountFor(layout.KindSample, 7)
	require.Nil(t, WriteToc(disk, base))

	require.Nil(t, WriteCount(disk, layout.KindSample, 99))

	got, err := ReadToc(disk)
	require.Nil(t, err)
	assert.EqualValues(t, 3, got.CountFor(layout.KindVolume))
	assert.EqualValues(t, 99, got.CountFor(layout.KindSample))
}
