// Package objtable implements the object-table engine (spec section 4.3):
// slot lookup and allocation, entry lifecycle (never-used / tombstoned /
// occupied), and TOC counter synchronization, for one of the five fixed-
// capacity object kinds. It is grounded on drivers/common/blockmanager.go's
// bitmap-backed free-slot cache (github.com/boljen/go-bitmap) and
// drivers/fat8/common.go's fixed-width, space-padded name codec idiom.
package objtable

import (
	"strings"

	"github.com/boljen/go-bitmap"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/fat"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/superblock"
)

// Entry is the decoded form of one 32-byte list entry.
type Entry struct {
	Name          [16]byte
	ElementType   byte
	Next          uint16
	Prev          uint16
	Self          uint16
	Unused        uint16
	ProgramNumber byte
	StartCluster  uint16
	ClusterCount  uint16
}

// DisplayName returns the entry's name with trailing spaces trimmed and the
// on-disk '/' encoding translated back to the display '\'.
func (e Entry) DisplayName() string {
	return strings.TrimRight(translateFromDisk(string(e.Name[:])), " ")
}

// PadName renders a display name as a 16-byte, left-justified, space-padded,
// disk-encoded field.
func PadName(name string) [16]byte {
	encoded := translateToDisk(name)
	var out [16]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], []byte(encoded))
	return out
}

// Names use '/' on disk where the host path separator needs '\' instead, and
// vice versa, per spec section 4.3. Only '/' is translated; ':' and 0x7F and
// all other bytes pass through unmodified (their sanitization is a host/GUI
// concern outside this driver, per spec section 9's open question).
func translateFromDisk(s string) string {
	return strings.ReplaceAll(s, "/", "\\")
}

func translateToDisk(s string) string {
	return strings.ReplaceAll(s, "\\", "/")
}

// Table manages one object kind's fixed-size list and parallel parameter
// region.
type Table struct {
	disk *diskio.Disk
	kind layout.Kind
	desc layout.KindDesc
	toc  *superblock.Toc

	occupied bitmap.Bitmap // cached from disk at Load; rebuilt, never guessed
}

// Load reads every list entry for kind once, to build the occupied-slot
// bitmap cache (spec section 9: "a free-slot bitmap may be cached but must
// be rebuilt at mount").
func Load(disk *diskio.Disk, kind layout.Kind, toc *superblock.Toc) (*Table, *errors.DriverError) {
	desc := layout.Describe(kind)
	t := &Table{disk: disk, kind: kind, desc: desc, toc: toc}

	buf := make([]byte, desc.MaxCount*layout.ListEntrySize)
	if err := disk.ReadAt(desc.ListAddr, buf); err != nil {
		return nil, err
	}

	t.occupied = bitmap.New(desc.MaxCount)
	for slot := 0; slot < desc.MaxCount; slot++ {
		nameByte := buf[slot*layout.ListEntrySize]
		if nameByte != layout.NameByteNeverUsed && nameByte != layout.NameByteTombstone {
			t.occupied.Set(slot, true)
		}
	}

	return t, nil
}

func (t *Table) slotOffset(slot int) int64 {
	return t.desc.ListAddr + int64(slot)*layout.ListEntrySize
}

func (t *Table) paramsOffset(slot int) int64 {
	return t.desc.ParamsAddr + int64(slot)*int64(t.desc.ParamsEntrySize)
}

// ParamsEntrySize returns the number of bytes in this kind's per-slot
// parameter blob.
func (t *Table) ParamsEntrySize() int {
	return t.desc.ParamsEntrySize
}

// MaxCount returns the fixed slot capacity of this kind's list.
func (t *Table) MaxCount() int {
	return t.desc.MaxCount
}

// ReadParams reads this slot's raw parameter-region bytes.
func (t *Table) ReadParams(slot int) ([]byte, *errors.DriverError) {
	buf := make([]byte, t.desc.ParamsEntrySize)
	if err := t.disk.ReadAt(t.paramsOffset(slot), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteParamsAt writes data into this slot's parameter-region bytes at the
// given within-slot offset.
func (t *Table) WriteParamsAt(slot int, offset int, data []byte) *errors.DriverError {
	return t.disk.WriteAt(t.paramsOffset(slot)+int64(offset), data)
}

// ReadParamsAt reads length bytes from this slot's parameter region starting
// at the given within-slot offset.
func (t *Table) ReadParamsAt(slot int, offset int, length int) ([]byte, *errors.DriverError) {
	buf := make([]byte, length)
	if err := t.disk.ReadAt(t.paramsOffset(slot)+int64(offset), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// LoadEntry reads and decodes the list entry at slot. Fails with
// CodeEmptyEntry if the slot is never-used or tombstoned, or
// CodeElementTypeMismatch if the element-type byte doesn't match this
// kind's expected value (on-disk corruption, surfaced to fsck rather than
// silently tolerated).
func (t *Table) LoadEntry(slot int) (Entry, *errors.DriverError) {
	buf := make([]byte, layout.ListEntrySize)
	if err := t.disk.ReadAt(t.slotOffset(slot), buf); err != nil {
		return Entry{}, err
	}

	nameByte := buf[layout.EntryOffsetName]
	if nameByte == layout.NameByteNeverUsed || nameByte == layout.NameByteTombstone {
		return Entry{}, errors.Errorf(errors.CodeEmptyEntry, "slot %d of %s is not occupied", slot, t.kind.DirName())
	}

	var e Entry
	copy(e.Name[:], buf[layout.EntryOffsetName:layout.EntryOffsetName+layout.EntryNameSize])
	e.ElementType = buf[layout.EntryOffsetElementType]
	if e.ElementType != t.desc.ElementType {
		return Entry{}, errors.Errorf(errors.CodeElementTypeMismatch, "slot %d of %s has element type %#02x, expected %#02x", slot, t.kind.DirName(), e.ElementType, t.desc.ElementType)
	}

	e.Next = be16(buf, layout.EntryOffsetNext)
	e.Prev = be16(buf, layout.EntryOffsetPrev)
	e.Self = be16(buf, layout.EntryOffsetSelf)
	e.Unused = be16(buf, layout.EntryOffsetUnused)
	e.ProgramNumber = buf[layout.EntryOffsetProgramNum]
	e.StartCluster = be16(buf, layout.EntryOffsetStartCluster)
	e.ClusterCount = be16(buf, layout.EntryOffsetClusterCount)
	return e, nil
}

func be16(buf []byte, offset int) uint16 {
	return uint16(buf[offset])<<8 | uint16(buf[offset+1])
}

func putBE16(buf []byte, offset int, v uint16) {
	buf[offset] = byte(v >> 8)
	buf[offset+1] = byte(v)
}

// WriteEntry encodes and writes e to slot, and updates the occupied-slot
// cache.
func (t *Table) WriteEntry(slot int, e Entry) *errors.DriverError {
	buf := make([]byte, layout.ListEntrySize)
	copy(buf[layout.EntryOffsetName:layout.EntryOffsetName+layout.EntryNameSize], e.Name[:])
	buf[layout.EntryOffsetElementType] = e.ElementType
	putBE16(buf, layout.EntryOffsetNext, e.Next)
	putBE16(buf, layout.EntryOffsetPrev, e.Prev)
	putBE16(buf, layout.EntryOffsetSelf, e.Self)
	putBE16(buf, layout.EntryOffsetUnused, e.Unused)
	buf[layout.EntryOffsetProgramNum] = e.ProgramNumber
	putBE16(buf, layout.EntryOffsetStartCluster, e.StartCluster)
	putBE16(buf, layout.EntryOffsetClusterCount, e.ClusterCount)

	if err := t.disk.WriteAt(t.slotOffset(slot), buf); err != nil {
		return err
	}
	t.occupied.Set(slot, e.Name[0] != layout.NameByteNeverUsed && e.Name[0] != layout.NameByteTombstone)
	return nil
}

// ReadNameByte reads just the first byte of a slot's name field, enough to
// tell a never-used slot (0x00) apart from a tombstoned one (0xFE) without
// decoding the whole entry. Used by fsck's gap check.
func (t *Table) ReadNameByte(slot int) (byte, *errors.DriverError) {
	buf := make([]byte, 1)
	if err := t.disk.ReadAt(t.slotOffset(slot), buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// FindFreeSlot scans for the first never-used-or-tombstoned slot. It returns
// (slot, true), or (0, false) if the list is completely full.
func (t *Table) FindFreeSlot() (int, bool) {
	for slot := 0; slot < t.desc.MaxCount; slot++ {
		if !t.occupied.Get(slot) {
			return slot, true
		}
	}
	return 0, false
}

// FindSlotByName scans occupied slots only, stopping once the TOC's count
// of entries for this kind have been visited, and returns the first slot
// whose 16-byte padded name matches.
func (t *Table) FindSlotByName(name [16]byte) (int, bool) {
	want := t.toc.CountFor(t.kind)
	var seen uint16
	for slot := 0; slot < t.desc.MaxCount && seen < want; slot++ {
		if !t.occupied.Get(slot) {
			continue
		}
		seen++
		entry, err := t.LoadEntry(slot)
		if err != nil {
			continue
		}
		if entry.Name == name {
			return slot, true
		}
	}
	return 0, false
}

// UnzeroAllBefore writes the tombstone byte into every never-used slot at
// an index below slot, preserving the invariant that no occupied slot may
// appear past a never-allocated terminator.
func (t *Table) UnzeroAllBefore(slot int) *errors.DriverError {
	for i := 0; i < slot; i++ {
		buf := make([]byte, 1)
		if err := t.disk.ReadAt(t.slotOffset(i), buf); err != nil {
			return err
		}
		if buf[0] == layout.NameByteNeverUsed {
			if err := t.disk.WriteAt(t.slotOffset(i), []byte{layout.NameByteTombstone}); err != nil {
				return err
			}
		}
	}
	return nil
}

// BumpToc adjusts the in-memory TOC counter for this kind by delta and
// writes the 16-bit field back to its fixed offset in the on-disk TOC.
func (t *Table) BumpToc(delta int) *errors.DriverError {
	current := int(t.toc.CountFor(t.kind)) + delta
	if current < 0 {
		current = 0
	}
	newValue := uint16(current)
	if err := superblock.WriteCount(t.disk, t.kind, newValue); err != nil {
		return err
	}
	t.toc.SetCountFor(t.kind, newValue)
	return nil
}

// DeleteSlot implements the full delete_slot lifecycle operation: tombstone
// the name byte, zero the rest of the entry, fill the parameter region with
// 0xFF, decrement the TOC counter, and (for samples) free the cluster
// chain.
func (t *Table) DeleteSlot(slot int, fatTable *fat.Table) *errors.DriverError {
	entry, err := t.LoadEntry(slot)
	if err != nil {
		return err
	}

	zeroed := make([]byte, layout.ListEntrySize)
	zeroed[layout.EntryOffsetName] = layout.NameByteTombstone
	if err := t.disk.WriteAt(t.slotOffset(slot), zeroed); err != nil {
		return err
	}
	t.occupied.Set(slot, false)

	fill := make([]byte, t.desc.ParamsEntrySize)
	for i := range fill {
		fill[i] = 0xFF
	}
	if err := t.disk.WriteAt(t.paramsOffset(slot), fill); err != nil {
		return err
	}

	if err := t.BumpToc(-1); err != nil {
		return err
	}

	if t.kind == layout.KindSample && entry.ClusterCount > 0 {
		chain, chainErr := fatTable.FollowChain(int(entry.StartCluster))
		if chainErr != nil {
			return chainErr
		}
		if err := fatTable.FreeChain(chain); err != nil {
			return err
		}
	}

	return nil
}

// OccupiedSlots returns every slot currently marked occupied, in ascending
// order.
func (t *Table) OccupiedSlots() []int {
	var slots []int
	for slot := 0; slot < t.desc.MaxCount; slot++ {
		if t.occupied.Get(slot) {
			slots = append(slots, slot)
		}
	}
	return slots
}

// IsOccupied reports whether slot currently holds a live entry.
func (t *Table) IsOccupied(slot int) bool {
	if slot < 0 || slot >= t.desc.MaxCount {
		return false
	}
	return t.occupied.Get(slot)
}

// Kind returns the object kind this table manages.
func (t *Table) Kind() layout.Kind {
	return t.kind
}

// TocCount returns the TOC's occupancy counter for this kind, independent
// of how many slots are actually observed occupied. Used by fsck to detect
// drift between the two.
func (t *Table) TocCount() uint16 {
	return t.toc.CountFor(t.kind)
}
