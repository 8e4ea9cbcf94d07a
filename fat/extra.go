package fat

import (
	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
)

// DataMaxForSize exposes the same usable-cluster-range arithmetic Load uses,
// for callers (mkfs) that need it before a Table exists.
func DataMaxForSize(size int64) int {
	return dataMaxForSize(size)
}

// FindFreeFrom scans for the first free cluster at or after start, without
// allocating it. Used by OS-promotion relocation to find a destination
// outside the range being vacated.
func (t *Table) FindFreeFrom(start int) (int, *errors.DriverError) {
	for i := start; i <= t.dataMax; i++ {
		if t.entries[i] == ValueFree {
			return i, nil
		}
	}
	return 0, errors.New(errors.CodeNoSpaceLeft)
}

// SetBadClusterMarker (re)writes the fixed 0xFFFA sentinel into FAT slot 0.
// Used by the checker to repair a cluster-0 cell that doesn't carry it.
func (t *Table) SetBadClusterMarker() *errors.DriverError {
	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		return t.writeEntryLocked(ld, 0, ValueBadCluster0)
	}))
}

// IsReservedValue exposes the non-chainable, non-free sentinel test (FAT
// values 0xFFF5 and 0xFFF8..0xFFFE) for callers outside the package, such as
// the checker's out-of-range-cluster pass.
func IsReservedValue(v uint16) bool {
	return isReservedValue(v)
}

// MarkReserved writes the generic "reserved, not chainable" sentinel
// (0xFFF5) into cluster. Used to repair a FAT cell outside the image's
// usable range that isn't already marked reserved.
func (t *Table) MarkReserved(cluster int) *errors.DriverError {
	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		return t.writeEntryLocked(ld, cluster, ValueReserved1)
	}))
}

// RelocateCluster moves the FAT bookkeeping for cluster old to cluster new:
// new inherits old's next-pointer value, every other FAT entry that
// pointed to old is redirected to new, and old is marked free. It does not
// move the cluster's underlying data; callers must copy those bytes
// themselves (see diskio.Disk.ReadCluster/WriteCluster).
func (t *Table) RelocateCluster(old, new int) *errors.DriverError {
	return asDriverError(t.disk.WithLock(func(ld *diskio.LockedDisk) error {
		oldValue := t.entries[old]
		if err := t.writeEntryLocked(ld, new, oldValue); err != nil {
			return err
		}
		for i := range t.entries {
			if i == new || i == old {
				continue
			}
			if int(t.entries[i]) == old {
				if err := t.writeEntryLocked(ld, i, uint16(new)); err != nil {
					return err
				}
			}
		}
		return t.writeEntryLocked(ld, old, ValueFree)
	}))
}
