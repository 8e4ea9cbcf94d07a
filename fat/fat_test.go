package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
)

func newTestTable(t *testing.T, extraClusters int) *Table {
	t.Helper()
	size := int64(layout.AudioSectionOffset + extraClusters*layout.ClusterSize)
	buf := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(buf)
	disk := diskio.New(stream, size)
	table, err := Load(disk)
	require.Nil(t, err)
	return table
}

func TestLoad_FreshImageIsAllFree(t *testing.T) {
	table := newTestTable(t, 10)
	assert.Equal(t, ValueFree, table.Entry(2))
	free, err := table.FindFreeChain(10)
	require.Nil(t, err)
	assert.Len(t, free, 10)
}

func TestWriteChain_LinksAndTerminates(t *testing.T) {
	table := newTestTable(t, 5)
	require.Nil(t, table.WriteChain([]int{2, 3, 4}))

	assert.EqualValues(t, 3, table.Entry(2))
	assert.EqualValues(t, 4, table.Entry(3))
	assert.Equal(t, ValueEndOfChain, table.Entry(4))

	chain, err := table.FollowChain(2)
	require.Nil(t, err)
	assert.Equal(t, []int{2, 3, 4}, chain)
}

func TestWriteChain_DecrementsFreeCounter(t *testing.T) {
	table := newTestTable(t, 5)
	require.Nil(t, table.WriteFreeCounter(table.CountFreeObserved()))
	before := table.CountFreeObserved()
	counterBefore := table.FreeCounter()
	require.Nil(t, table.WriteChain([]int{2, 3}))
	after := table.CountFreeObserved()
	assert.Equal(t, before-2, after)
	assert.Equal(t, counterBefore-2, table.FreeCounter())
}

func TestFollowChain_RejectsStartOutsideUsableRange(t *testing.T) {
	table := newTestTable(t, 3)
	_, err := table.FollowChain(0)
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeWtf, err.Code())
}

func TestFollowChain_DetectsCycle(t *testing.T) {
	table := newTestTable(t, 5)
	require.Nil(t, table.WriteChain([]int{2, 3, 4}))
	// Force a cycle by pointing cluster 4 back at cluster 2.
	require.Nil(t, table.writeEntryLockedForTest(2))
	_, err := table.FollowChain(2)
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeWtf, err.Code())
}

// writeEntryLockedForTest closes cluster 4's chain back onto cluster 2,
// exercising the same code path FollowChain's cycle guard defends against.
func (t *Table) writeEntryLockedForTest(target int) *errors.DriverError {
	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		return t.writeEntryLocked(ld, 4, uint16(target))
	}))
}

func TestFindFreeChain_FailsWhenNotEnoughSpace(t *testing.T) {
	table := newTestTable(t, 2)
	_, err := table.FindFreeChain(100)
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeNoSpaceLeft, err.Code())
}

func TestShrinkChain_FreesTailAndRewritesTerminator(t *testing.T) {
	table := newTestTable(t, 5)
	require.Nil(t, table.WriteChain([]int{2, 3, 4}))
	require.Nil(t, table.ShrinkChain([]int{2, 3, 4}, 1))

	assert.Equal(t, ValueEndOfChain, table.Entry(2))
	assert.Equal(t, ValueFree, table.Entry(3))
	assert.Equal(t, ValueFree, table.Entry(4))
}

func TestFreeChain_MarksEveryClusterFree(t *testing.T) {
	table := newTestTable(t, 5)
	require.Nil(t, table.WriteChain([]int{2, 3, 4}))
	require.Nil(t, table.FreeChain([]int{2, 3, 4}))
	for _, c := range []int{2, 3, 4} {
		assert.Equal(t, ValueFree, table.Entry(c))
	}
}

func TestGetNthCluster_WalksChain(t *testing.T) {
	table := newTestTable(t, 5)
	require.Nil(t, table.WriteChain([]int{2, 3, 4}))

	got, err := table.GetNthCluster(2, 2)
	require.Nil(t, err)
	assert.Equal(t, 4, got)
}

func TestGetNthCluster_PastEndFails(t *testing.T) {
	table := newTestTable(t, 5)
	require.Nil(t, table.WriteChain([]int{2, 3}))

	_, err := table.GetNthCluster(2, 5)
	require.NotNil(t, err)
	assert.Equal(t, errors.CodeChainSizeMismatch, err.Code())
}

func TestGetNextOrFreeCluster_ExtendsAtTail(t *testing.T) {
	table := newTestTable(t, 5)
	require.Nil(t, table.WriteChain([]int{2}))

	next, allocated, err := table.GetNextOrFreeCluster(2)
	require.Nil(t, err)
	assert.True(t, allocated)
	assert.Equal(t, ValueEndOfChain, table.Entry(next))
	assert.EqualValues(t, next, table.Entry(2))
}

func TestMarkS760Tail_WritesSplitMarkerPattern(t *testing.T) {
	table := newTestTable(t, layout.S760TailClusters+5)
	require.Nil(t, table.MarkS760Tail())

	assert.Equal(t, ValueS760TailA, table.Entry(layout.S760TailFirstCluster))
	assert.Equal(t, ValueS760TailA, table.Entry(layout.S760TailBoundary))
	assert.Equal(t, ValueS760TailB, table.Entry(layout.S760TailBoundary+1))
	assert.Equal(t, ValueS760TailB, table.Entry(layout.S760TailLastCluster))
}

func TestClearS760Tail_FreesWholeRange(t *testing.T) {
	table := newTestTable(t, layout.S760TailClusters+5)
	require.Nil(t, table.MarkS760Tail())
	require.Nil(t, table.ClearS760Tail())

	for i := layout.S760TailFirstCluster; i <= layout.S760TailLastCluster; i++ {
		assert.Equal(t, ValueFree, table.Entry(i))
	}
}

func TestRelocateCluster_PreservesNextPointerAndRedirectsReferrers(t *testing.T) {
	table := newTestTable(t, 10)
	require.Nil(t, table.WriteChain([]int{2, 3, 4}))

	dest, err := table.FindFreeFrom(5)
	require.Nil(t, err)
	require.Nil(t, table.RelocateCluster(3, dest))

	assert.Equal(t, ValueFree, table.Entry(3))
	assert.EqualValues(t, 4, table.Entry(dest))
	assert.EqualValues(t, dest, table.Entry(2))
}

func TestDataMaxForSize_OneClusterMinimum(t *testing.T) {
	assert.Equal(t, 1, dataMaxForSize(layout.AudioSectionOffset-1))
}
