// Package fat implements the FAT engine (spec section 4.2): it loads the
// cluster allocation table into memory at mount, follows/extends/truncates/
// frees chains, tracks the free-cluster count, and mirrors every mutation
// to disk. It is grounded on drivers/common/clusterio.go's cluster-offset
// math and drivers/common/blockmanager.go's "cache a free bitmap, rebuild
// at mount" strategy (github.com/boljen/go-bitmap).
package fat

import (
	"encoding/binary"

	"github.com/boljen/go-bitmap"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
)

// Reserved / sentinel FAT values (spec section 3.4).
const (
	ValueFree        uint16 = 0x0000
	ValueReserved1   uint16 = 0xFFF5
	ValueSpecialLo   uint16 = 0xFFF8
	ValueSpecialHi   uint16 = 0xFFFE
	ValueEndOfChain  uint16 = 0xFFFF
	ValueBadCluster0 uint16 = 0xFFFA
	ValueS760TailA   uint16 = 0xFFFE
	ValueS760TailB   uint16 = 0xFFFD
)

// Table is the in-memory mirror of the on-disk FAT.
type Table struct {
	disk    *diskio.Disk
	entries []uint16 // always layout.FATEntryCount long
	dataMax int      // highest usable cluster index for this image's size
	free    bitmap.Bitmap
}

// Load reads the whole FAT into memory and computes the usable cluster
// range from the size of disk.
func Load(disk *diskio.Disk) (*Table, *errors.DriverError) {
	buf := make([]byte, layout.FATSize)
	if err := disk.ReadAt(layout.FATOffset, buf); err != nil {
		return nil, err
	}

	entries := make([]uint16, layout.FATEntryCount)
	for i := range entries {
		entries[i] = binary.BigEndian.Uint16(buf[i*2 : i*2+2])
	}

	dataMax := dataMaxForSize(disk.Size())

	t := &Table{disk: disk, entries: entries, dataMax: dataMax}
	t.rebuildFreeBitmap()
	return t, nil
}

func dataMaxForSize(size int64) int {
	usableBytes := size - layout.AudioSectionOffset
	if usableBytes < 0 {
		return 1
	}
	count := usableBytes / layout.ClusterSize
	return 1 + int(count) // clusters 2..dataMax inclusive are usable
}

func (t *Table) rebuildFreeBitmap() {
	t.free = bitmap.New(len(t.entries))
	for i := 2; i <= t.dataMax; i++ {
		if t.entries[i] == ValueFree {
			t.free.Set(i, true)
		}
	}
}

// IsUsable reports whether cluster is in the usable range [2, dataMax].
func (t *Table) IsUsable(cluster int) bool {
	return cluster >= 2 && cluster <= t.dataMax
}

// isReservedValue reports whether v is one of the non-chainable, non-free
// sentinel values (0xFFF5, 0xFFF8..0xFFFE). Per spec section 9's open
// question, these count as neither free nor chainable when computing the
// free-cluster counter.
func isReservedValue(v uint16) bool {
	return v == ValueReserved1 || (v >= ValueSpecialLo && v <= ValueSpecialHi)
}

// Entry returns the raw value stored at the given cluster index.
func (t *Table) Entry(cluster int) uint16 {
	return t.entries[cluster]
}

// FreeCounter returns the value stored at cluster slot 1, the free-cluster
// count.
func (t *Table) FreeCounter() uint16 {
	return t.entries[1]
}

// CountFreeObserved recomputes the number of clusters in the usable range
// holding ValueFree, independent of the stored counter. Used by fsck to
// detect drift (spec section 4.6, bit 4).
func (t *Table) CountFreeObserved() uint16 {
	var n uint16
	for i := 2; i <= t.dataMax; i++ {
		if t.entries[i] == ValueFree {
			n++
		}
	}
	return n
}

func (t *Table) writeEntryLocked(ld *diskio.LockedDisk, cluster int, value uint16) *errors.DriverError {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, value)
	if err := ld.WriteAt(layout.FATOffset+int64(cluster)*2, buf); err != nil {
		return err
	}
	t.entries[cluster] = value
	if cluster >= 2 && cluster <= t.dataMax {
		t.free.Set(cluster, value == ValueFree)
	}
	return nil
}

// WriteFreeCounter sets FAT slot 1 (the free-cluster count) both in memory
// and on disk.
func (t *Table) WriteFreeCounter(newValue uint16) *errors.DriverError {
	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		return t.writeEntryLocked(ld, 1, newValue)
	}))
}

func (t *Table) adjustFreeCounter(ld *diskio.LockedDisk, delta int) *errors.DriverError {
	current := int(t.entries[1]) + delta
	if current < 0 {
		current = 0
	}
	return t.writeEntryLocked(ld, 1, uint16(current))
}

// FollowChain walks the FAT from start until it hits ValueEndOfChain,
// returning every cluster visited including start. Fails with CodeWtf
// (BadStart) if start isn't in the usable range.
func (t *Table) FollowChain(start int) ([]int, *errors.DriverError) {
	if !t.IsUsable(start) {
		return nil, errors.Errorf(errors.CodeWtf, "chain start %d is outside usable range [2, %d]", start, t.dataMax)
	}

	var chain []int
	cur := start
	visited := make(map[int]bool)
	for {
		if visited[cur] {
			return nil, errors.Errorf(errors.CodeWtf, "cluster chain starting at %d contains a cycle at %d", start, cur)
		}
		visited[cur] = true
		chain = append(chain, cur)

		next := t.entries[cur]
		if next == ValueEndOfChain {
			return chain, nil
		}
		if !t.IsUsable(int(next)) {
			return nil, errors.Errorf(errors.CodeChainSizeMismatch, "chain from %d hit non-chainable value %#04x at cluster %d", start, next, cur)
		}
		cur = int(next)
	}
}

// FindFreeChain scans linearly from cluster 2 and returns the first n free
// clusters it finds (not necessarily contiguous). Fails with CodeNoSpaceLeft
// if fewer than n are available.
func (t *Table) FindFreeChain(n int) ([]int, *errors.DriverError) {
	if n == 0 {
		return nil, nil
	}

	result := make([]int, 0, n)
	for i := 2; i <= t.dataMax && len(result) < n; i++ {
		if t.entries[i] == ValueFree {
			result = append(result, i)
		}
	}
	if len(result) < n {
		return nil, errors.Errorf(errors.CodeNoSpaceLeft, "need %d free clusters, only %d available", n, len(result))
	}
	return result, nil
}

// WriteChain links clusters[i] -> clusters[i+1] for the whole slice, with
// the final cluster marked end-of-chain, and decrements the free counter by
// the number of clusters that were previously free.
func (t *Table) WriteChain(clusters []int) *errors.DriverError {
	if len(clusters) == 0 {
		return nil
	}

	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		freedDelta := 0
		for i, c := range clusters {
			if t.entries[c] == ValueFree {
				freedDelta++
			}
			var next uint16
			if i == len(clusters)-1 {
				next = ValueEndOfChain
			} else {
				next = uint16(clusters[i+1])
			}
			if err := t.writeEntryLocked(ld, c, next); err != nil {
				return err
			}
		}
		if freedDelta > 0 {
			if err := t.adjustFreeCounter(ld, -freedDelta); err != nil {
				return err
			}
		}
		return nil
	}))
}

// ShrinkChain keeps the first keepN clusters of chain (rewriting the new
// tail's terminator) and frees the rest, adjusting the free counter.
func (t *Table) ShrinkChain(chain []int, keepN int) *errors.DriverError {
	if keepN >= len(chain) {
		return nil
	}

	kept := chain[:keepN]
	freed := chain[keepN:]

	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		if keepN > 0 {
			if err := t.writeEntryLocked(ld, kept[keepN-1], ValueEndOfChain); err != nil {
				return err
			}
		}
		for _, c := range freed {
			if err := t.writeEntryLocked(ld, c, ValueFree); err != nil {
				return err
			}
		}
		return t.adjustFreeCounter(ld, len(freed))
	}))
}

// FreeChain marks every cluster in chain as free and bumps the free
// counter accordingly.
func (t *Table) FreeChain(chain []int) *errors.DriverError {
	if len(chain) == 0 {
		return nil
	}
	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		for _, c := range chain {
			if err := t.writeEntryLocked(ld, c, ValueFree); err != nil {
				return err
			}
		}
		return t.adjustFreeCounter(ld, len(chain))
	}))
}

// GetNthCluster walks n steps from start and returns the cluster found
// there. Fails with CodeChainSizeMismatch (ChainOob) if the chain ends
// before n steps are taken.
func (t *Table) GetNthCluster(start int, n int) (int, *errors.DriverError) {
	cur := start
	for i := 0; i < n; i++ {
		next := t.entries[cur]
		if next == ValueEndOfChain || !t.IsUsable(int(next)) {
			return 0, errors.Errorf(errors.CodeChainSizeMismatch, "chain from %d ended after %d of %d steps", start, i, n)
		}
		cur = int(next)
	}
	return cur, nil
}

// ExtendChain links prev -> newCluster, marks newCluster end-of-chain, and
// decrements the free counter by one.
func (t *Table) ExtendChain(prev, newCluster int) *errors.DriverError {
	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		wasFree := t.entries[newCluster] == ValueFree
		if err := t.writeEntryLocked(ld, newCluster, ValueEndOfChain); err != nil {
			return err
		}
		if err := t.writeEntryLocked(ld, prev, uint16(newCluster)); err != nil {
			return err
		}
		if wasFree {
			return t.adjustFreeCounter(ld, -1)
		}
		return nil
	}))
}

// GetNextOrFreeCluster returns the cluster following cur in its chain. If
// cur is the tail (end-of-chain), it allocates the first free cluster after
// cur (wrapping around to the start of the usable range if none is found
// past cur), links it in, and reports allocated=true so the caller can
// update its own cached cluster count.
func (t *Table) GetNextOrFreeCluster(cur int) (next int, allocated bool, err *errors.DriverError) {
	existing := t.entries[cur]
	if existing != ValueEndOfChain {
		if !t.IsUsable(int(existing)) {
			return 0, false, errors.Errorf(errors.CodeChainSizeMismatch, "cluster %d has non-chainable next value %#04x", cur, existing)
		}
		return int(existing), false, nil
	}

	candidate := t.firstFreeAfter(cur)
	if candidate == 0 {
		return 0, false, errors.New(errors.CodeNoSpaceLeft)
	}

	if extendErr := t.ExtendChain(cur, candidate); extendErr != nil {
		return 0, false, extendErr
	}
	return candidate, true, nil
}

func (t *Table) firstFreeAfter(cur int) int {
	for i := cur + 1; i <= t.dataMax; i++ {
		if t.entries[i] == ValueFree {
			return i
		}
	}
	for i := 2; i <= cur; i++ {
		if t.entries[i] == ValueFree {
			return i
		}
	}
	return 0
}

// MarkS760Tail writes the fixed FFFE/FFFD marker pattern over FAT slots
// 2..115 and decrements the free counter by layout.S760TailClusters. The
// caller is responsible for having already relocated any user data out of
// that range.
func (t *Table) MarkS760Tail() *errors.DriverError {
	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		freedDelta := 0
		for i := layout.S760TailFirstCluster; i <= layout.S760TailLastCluster; i++ {
			if t.entries[i] == ValueFree {
				freedDelta++
			}
			value := uint16(ValueS760TailB)
			if i <= layout.S760TailBoundary {
				value = ValueS760TailA
			}
			if err := t.writeEntryLocked(ld, i, value); err != nil {
				return err
			}
		}
		return t.adjustFreeCounter(ld, -freedDelta)
	}))
}

// ClearS760Tail frees FAT slots 2..115 back to ValueFree (used when the OS
// is demoted away from MediaHDDWithS760).
func (t *Table) ClearS760Tail() *errors.DriverError {
	chain := make([]int, 0, layout.S760TailClusters)
	for i := layout.S760TailFirstCluster; i <= layout.S760TailLastCluster; i++ {
		chain = append(chain, i)
	}
	return t.FreeChain(chain)
}

// DataMax returns the highest usable cluster index for this image.
func (t *Table) DataMax() int {
	return t.dataMax
}

func asDriverError(err error) *errors.DriverError {
	if err == nil {
		return nil
	}
	if de, ok := err.(*errors.DriverError); ok {
		return de
	}
	return errors.New(errors.CodeWtf).Wrap(err)
}
