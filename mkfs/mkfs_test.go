package mkfs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/fat"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/superblock"
)

func TestFormat_RejectsUndersizedImage(t *testing.T) {
	buf := make([]byte, 1024)
	stream := bytesextra.NewReadWriteSeeker(buf)
	err := Format(stream, 1024, "TOO SMALL")
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeDiskTooSmall, err.Code())
}

func TestFormat_ProducesMountableHeaderAndToc(t *testing.T) {
	size := int64(layout.MinDiskSize + 4*layout.ClusterSize)
	buf := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(buf)
	require.Nil(t, Format(stream, size, "MY SAMPLER"))

	disk := diskio.New(stream, size)
	header, err := superblock.ReadHeader(disk)
	require.Nil(t, err)
	assert.Equal(t, layout.MediaHDD, header.MediaType)

	toc, terr := superblock.ReadToc(disk)
	require.Nil(t, terr)
	assert.Equal(t, "MY SAMPLER", trimLabel(toc.Label))
	for _, kind := range layout.AllObjectKinds {
		assert.EqualValues(t, 0, toc.CountFor(kind))
	}
}

func TestFormat_FatHasFreeUsableRangeAndReservedTail(t *testing.T) {
	extraClusters := 4
	size := int64(layout.AudioSectionOffset + extraClusters*layout.ClusterSize)
	buf := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(buf)
	require.Nil(t, Format(stream, size, ""))

	disk := diskio.New(stream, size)
	fatTable, err := fat.Load(disk)
	require.Nil(t, err)

	chain, ferr := fatTable.FindFreeChain(extraClusters)
	require.Nil(t, ferr)
	assert.Len(t, chain, extraClusters)
	assert.True(t, fat.IsReservedValue(fatTable.Entry(fatTable.DataMax()+1)))
	assert.True(t, fat.IsReservedValue(fatTable.Entry(layout.FATEntryCount-1)))
}

func TestFormat_ParamsRegionsAreErasedFill(t *testing.T) {
	size := int64(layout.MinDiskSize)
	buf := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(buf)
	require.Nil(t, Format(stream, size, ""))

	disk := diskio.New(stream, size)
	desc := layout.Describe(layout.KindVolume)
	got := make([]byte, desc.ParamsEntrySize)
	require.Nil(t, disk.ReadAt(desc.ParamsAddr, got))
	for _, b := range got {
		assert.Equal(t, byte(0xFF), b)
	}
}

func trimLabel(label [16]byte) string {
	return strings.TrimRight(string(label[:]), " ")
}
