package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/mkfs"
)

const testImageSize = int64(layout.MinDiskSize + 8*layout.ClusterSize)

func mountBlank(t *testing.T) *FileSystem {
	t.Helper()
	buf := make([]byte, testImageSize)
	stream := bytesextra.NewReadWriteSeeker(buf)
	require.Nil(t, mkfs.Format(stream, testImageSize, "TEST"))
	fsys, err := Mount(stream, testImageSize, false)
	require.Nil(t, err)
	return fsys
}

func TestMount_RejectsUndersizedImage(t *testing.T) {
	buf := make([]byte, 10)
	stream := bytesextra.NewReadWriteSeeker(buf)
	_, err := Mount(stream, 10, false)
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeDiskTooSmall, err.Code())
}

func TestList_RootOmitsOSUntilMediaTypeCarriesIt(t *testing.T) {
	fsys := mountBlank(t)
	entries, err := fsys.List("/")
	require.Nil(t, err)
	assert.Len(t, entries, 5)
	for _, e := range entries {
		assert.NotEqual(t, "OS", e.Name)
	}

	require.Nil(t, fsys.Ftruncate("/OS", 1024))
	entries, err = fsys.List("/")
	require.Nil(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, "OS", entries[0].Name)
	assert.EqualValues(t, layout.OSSize, entries[0].Size)
}

func TestMkdir_AlwaysUnsupported(t *testing.T) {
	fsys := mountBlank(t)
	err := fsys.Mkdir("/NewDir")
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeUnsupportedOperation, err.Code())
}

func TestOpen_ByNameCreatesNewSlotOnFirstAccess(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Volumes/MyVolume")
	require.Nil(t, err)
	defer st.Close()

	entries, lerr := fsys.List("/Volumes")
	require.Nil(t, lerr)
	require.Len(t, entries, 1)
	assert.Equal(t, "MyVolume", entries[0].Name)
}

func TestOpen_SamePathSharesUnderlyingFile(t *testing.T) {
	fsys := mountBlank(t)
	a, err := fsys.Open("/Volumes/Shared")
	require.Nil(t, err)
	b, err2 := fsys.Open(a.Path())
	require.Nil(t, err2)

	assert.Equal(t, uint(1), fsys.GetOpenFileCount())
	require.Nil(t, a.Close())
	assert.Equal(t, uint(1), fsys.GetOpenFileCount())
	require.Nil(t, b.Close())
	assert.Equal(t, uint(0), fsys.GetOpenFileCount())
}

func TestReadWrite_PatchParamsRegionRoundTrips(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Patches/0-Lead")
	require.Nil(t, err)
	defer st.Close()

	payload := []byte("patch-params-blob")
	n, werr := st.Write(payload)
	require.Nil(t, werr)
	assert.Equal(t, len(payload), n)

	_, serr := st.Seek(0, 0)
	require.Nil(t, serr)

	got := make([]byte, len(payload))
	n, rerr := st.Read(got)
	require.Nil(t, rerr)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)
}

func TestWrite_PastCurrentSizeAutoPromotesOS(t *testing.T) {
	fsys := mountBlank(t)
	assert.Equal(t, layout.MediaHDD, fsys.MediaType())

	st, err := fsys.Open("/OS")
	require.Nil(t, err)
	defer st.Close()

	n, werr := st.Write([]byte{1})
	require.Nil(t, werr)
	assert.Equal(t, 1, n)
	assert.Equal(t, layout.MediaHDDWithOS, fsys.MediaType())
}

func TestReadWrite_SampleParamsRegionPrecedesClusterChain(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Samples/0-Kick")
	require.Nil(t, err)
	defer st.Close()

	paramsSize := int64(layout.Describe(layout.KindSample).ParamsEntrySize)
	params := make([]byte, paramsSize)
	for i := range params {
		params[i] = byte(i + 1)
	}
	n, werr := st.Write(params)
	require.Nil(t, werr)
	assert.Equal(t, int(paramsSize), n)

	_, serr := st.Seek(0, 0)
	require.Nil(t, serr)
	got := make([]byte, paramsSize)
	_, rerr := st.Read(got)
	require.Nil(t, rerr)
	assert.Equal(t, params, got)
}

func TestFtruncate_SampleGrowsAndShrinksClusterChain(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Samples/0-Kick")
	require.Nil(t, err)
	defer st.Close()

	paramsSize := int64(layout.Describe(layout.KindSample).ParamsEntrySize)

	require.Nil(t, st.Ftruncate(paramsSize+int64(2*layout.ClusterSize)))
	data := make([]byte, 2*layout.ClusterSize)
	for i := range data {
		data[i] = byte(i)
	}
	_, serr := st.Seek(paramsSize, 0)
	require.Nil(t, serr)
	n, werr := st.Write(data)
	require.Nil(t, werr)
	assert.Equal(t, len(data), n)

	require.Nil(t, st.Ftruncate(paramsSize+int64(layout.ClusterSize)))
	_, serr = st.Seek(paramsSize, 0)
	require.Nil(t, serr)
	got := make([]byte, layout.ClusterSize)
	_, rerr := st.Read(got)
	require.Nil(t, rerr)
	assert.Equal(t, data[:layout.ClusterSize], got)
}

func TestWrite_SampleGrowsClusterChainLazily(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Samples/1-Snare")
	require.Nil(t, err)
	defer st.Close()

	paramsSize := int64(layout.Describe(layout.KindSample).ParamsEntrySize)
	_, serr := st.Seek(paramsSize, 0)
	require.Nil(t, serr)

	data := make([]byte, 3*layout.ClusterSize)
	for i := range data {
		data[i] = byte(i)
	}
	n, werr := st.Write(data)
	require.Nil(t, werr)
	assert.Equal(t, len(data), n)
	assert.EqualValues(t, 3, st.file.entry.ClusterCount)

	_, serr = st.Seek(paramsSize, 0)
	require.Nil(t, serr)
	got := make([]byte, len(data))
	_, rerr := st.Read(got)
	require.Nil(t, rerr)
	assert.Equal(t, data, got)
}

func TestFtruncate_OSPromotesMediaType(t *testing.T) {
	fsys := mountBlank(t)
	assert.Equal(t, layout.MediaHDD, fsys.MediaType())

	require.Nil(t, fsys.Ftruncate("/OS", 1024))
	assert.Equal(t, layout.MediaHDDWithOS, fsys.MediaType())

	require.Nil(t, fsys.Ftruncate("/OS", 0))
	assert.Equal(t, layout.MediaHDD, fsys.MediaType())
}

func TestRemove_FailsWhileOpen(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Volumes/Held")
	require.Nil(t, err)
	defer st.Close()

	rerr := fsys.Remove(st.Path())
	require.NotNil(t, rerr)
	assert.Equal(t, errors.CodeAlreadyOpen, rerr.Code())
}

func TestRemove_DeletesClosedObject(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Volumes/Gone")
	require.Nil(t, err)
	path := st.Path()
	require.Nil(t, st.Close())

	require.Nil(t, fsys.Remove(path))
	entries, lerr := fsys.List("/Volumes")
	require.Nil(t, lerr)
	assert.Len(t, entries, 0)
}

func TestRename_ChangesDisplayNameWithinSameKind(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Volumes/Old")
	require.Nil(t, err)
	path := st.Path()
	require.Nil(t, st.Close())

	require.Nil(t, fsys.Rename(path, "/Volumes/New"))
	entries, lerr := fsys.List("/Volumes")
	require.Nil(t, lerr)
	require.Len(t, entries, 1)
	assert.Equal(t, "New", entries[0].Name)
}

func TestRename_AcrossKindsUnsupported(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Volumes/Old")
	require.Nil(t, err)
	path := st.Path()
	require.Nil(t, st.Close())

	rerr := fsys.Rename(path, "/Patches/New")
	require.NotNil(t, rerr)
	assert.Equal(t, errors.CodeUnsupportedOperation, rerr.Code())
}

func TestRemoveAll_AccumulatesFailuresAndContinues(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Volumes/A")
	require.Nil(t, err)
	pathA := st.Path()
	require.Nil(t, st.Close())

	err2 := fsys.RemoveAll([]string{pathA, "/Volumes/999"})
	require.Error(t, err2)
}

func TestUnmount_FailsWithOpenFiles(t *testing.T) {
	fsys := mountBlank(t)
	st, err := fsys.Open("/Volumes/Stuck")
	require.Nil(t, err)
	defer st.Close()

	uerr := fsys.Unmount()
	require.NotNil(t, uerr)
	assert.Equal(t, errors.CodeAlreadyOpen, uerr.Code())
}
