package fsck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/fs"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/s7xxtest"
	"github.com/rolandfs/s7xxfs/superblock"
)

func TestCheck_FreshImageIsClean(t *testing.T) {
	stream := s7xxtest.NewBlankImage(t, s7xxtest.DefaultTestSize, "CLEAN")
	report, err := Check(stream, s7xxtest.DefaultTestSize, false)
	require.Nil(t, err)
	assert.True(t, report.Clean())
}

func TestCheck_RejectsUndersizedImage(t *testing.T) {
	_, err := Check(nil, 100, false)
	require.NotNil(t, err)
}

func TestCheck_DetectsTocCountDriftWithoutRepair(t *testing.T) {
	stream := s7xxtest.NewBlankImage(t, s7xxtest.DefaultTestSize, "DRIFT")
	fsys, merr := fs.Mount(stream, s7xxtest.DefaultTestSize, false)
	require.Nil(t, merr)

	st, oerr := fsys.Open("/Volumes/0-Untitled")
	require.Nil(t, oerr)
	require.Nil(t, st.Close())

	// Open wrote the TOC counter via BumpToc, so drift it out from under the
	// image by rewriting the on-disk counter directly.
	disk := diskio.New(stream, s7xxtest.DefaultTestSize)
	require.Nil(t, superblock.WriteCount(disk, layout.KindVolume, 0))

	report, err := Check(stream, s7xxtest.DefaultTestSize, false)
	require.Nil(t, err)
	assert.NotZero(t, report.Bits&BitTocCountMismatch)
	for _, f := range report.Findings {
		if f.Bit == BitTocCountMismatch {
			assert.False(t, f.Repaired)
		}
	}
}

func TestCheck_RepairsTocCountDrift(t *testing.T) {
	stream := s7xxtest.NewBlankImage(t, s7xxtest.DefaultTestSize, "DRIFT")
	fsys, merr := fs.Mount(stream, s7xxtest.DefaultTestSize, false)
	require.Nil(t, merr)

	st, oerr := fsys.Open("/Volumes/0-Untitled")
	require.Nil(t, oerr)
	require.Nil(t, st.Close())

	disk := diskio.New(stream, s7xxtest.DefaultTestSize)
	require.Nil(t, superblock.WriteCount(disk, layout.KindVolume, 0))

	report, err := Check(stream, s7xxtest.DefaultTestSize, true)
	require.Nil(t, err)
	assert.NotZero(t, report.Bits&BitTocCountMismatch)

	again, cerr := Check(stream, s7xxtest.DefaultTestSize, false)
	require.Nil(t, cerr)
	assert.True(t, again.Clean())
}

func TestCheck_DetectsOrphanedCluster(t *testing.T) {
	stream := s7xxtest.NewBlankImage(t, s7xxtest.DefaultTestSize, "ORPHAN")
	disk := diskio.New(stream, s7xxtest.DefaultTestSize)

	// Hand-allocate cluster 2 in the FAT without any sample referencing it.
	buf := make([]byte, 2)
	buf[0], buf[1] = 0xFF, 0xFF
	require.Nil(t, disk.WriteAt(layout.FATOffset+2*2, buf))

	report, err := Check(stream, s7xxtest.DefaultTestSize, false)
	require.Nil(t, err)
	assert.NotZero(t, report.Bits&BitOrphanedCluster)
}
