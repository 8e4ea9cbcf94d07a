package fs

import (
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/fat"
	"github.com/rolandfs/s7xxfs/layout"
)

// relocateS760Tail moves any live sample data still sitting in clusters
// 2..115 out to free clusters at 116 or above, before those slots are
// overwritten with the fixed S-760 tail marker pattern. Spec section 4.4.2
// requires this whenever the OS pseudo-file grows past layout.OSSize for
// the first time.
func (fsys *FileSystem) relocateS760Tail() *errors.DriverError {
	for src := layout.S760TailFirstCluster; src <= layout.S760TailLastCluster; src++ {
		val := fsys.fatTable.Entry(src)
		if val == fat.ValueFree {
			continue
		}
		if val != fat.ValueEndOfChain && !fsys.fatTable.IsUsable(int(val)) {
			// Already holds a reserved/special marker; nothing live to move.
			continue
		}

		dst, err := fsys.fatTable.FindFreeFrom(layout.S760TailLastCluster + 1)
		if err != nil {
			return err
		}

		data, err := fsys.disk.ReadCluster(src)
		if err != nil {
			return err
		}
		if err := fsys.disk.WriteCluster(dst, data); err != nil {
			return err
		}
		if err := fsys.fatTable.RelocateCluster(src, dst); err != nil {
			return err
		}
		if err := fsys.redirectSampleStartCluster(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// redirectSampleStartCluster rewrites every sample list entry whose
// StartCluster points at old to point at new instead. Needed because
// RelocateCluster only fixes up FAT next-pointers, not the object-table
// entries that name a chain's head cluster directly.
func (fsys *FileSystem) redirectSampleStartCluster(old, new int) *errors.DriverError {
	table := fsys.tables[layout.KindSample]
	for _, slot := range table.OccupiedSlots() {
		entry, err := table.LoadEntry(slot)
		if err != nil {
			continue
		}
		if int(entry.StartCluster) == old {
			entry.StartCluster = uint16(new)
			if err := table.WriteEntry(slot, entry); err != nil {
				return err
			}
		}
	}
	return nil
}
