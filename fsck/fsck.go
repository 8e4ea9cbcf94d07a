// Package fsck implements the checker (spec section 4.6): a read pass over
// a mounted image that reports, and optionally repairs, the mandatory set
// of inconsistencies this driver can actually produce on its own (TOC
// counter drift, TOC block-count overflow, a corrupted FAT[0] marker, an
// unzeroed gap, free-counter drift, an element-type mismatch, and a cluster
// outside the usable range not marked reserved), plus a few checks added
// beyond that set for problems the mandatory table doesn't name (orphaned
// clusters, broken sample chains, header/FAT tail disagreement) — sample-
// chain coherence in particular is noted as future work rather than part of
// the required checker, so those extra findings never stand in for a
// missing mandatory one. There is no counterpart to this in the teacher
// repo's retrieved subset; its bitmask-of-findings shape is modeled on the
// "disko.NewDriverErrorWithMessage(disko.EUCLEAN, ...)" corruption report
// drivers/fat8/driver.go's readFATs raises for a single bad FAT copy.
package fsck

import (
	"fmt"
	"io"

	"github.com/rolandfs/s7xxfs/diskio"
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/fat"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/objtable"
	"github.com/rolandfs/s7xxfs/superblock"
)

// Finding bits, OR'd together into Report.Bits. The first seven are the
// mandatory checks: TOC counter drift, TOC block-count overflow, FAT[0]
// losing its 0xFFFA marker, an unzeroed gap, free-counter drift, an
// element-type mismatch, and a cluster outside the usable range not marked
// reserved. The remaining bits are checks this driver added beyond that set
// (sample-chain / orphaned-cluster coherence is explicitly future work, not
// part of the required checker) — they never substitute for the mandatory
// ones above, only add to them.
const (
	BitTocCountMismatch uint16 = 1 << iota
	BitTocBlockCountOverflow
	BitFatZeroCorrupt
	BitUnzeroedGap
	BitFreeCounterDrift
	BitElementTypeMismatch
	BitUnusableRangeNotReserved

	// Beyond the mandatory set.
	BitOrphanedCluster
	BitBrokenChain
	BitMediaTailMismatch
)

// Finding describes one detected inconsistency.
type Finding struct {
	Bit      uint16
	Message  string
	Repaired bool
}

// Report is the outcome of a Check pass.
type Report struct {
	Bits     uint16
	Findings []Finding
}

// Clean reports whether no findings were recorded.
func (r *Report) Clean() bool {
	return r.Bits == 0
}

func (r *Report) add(bit uint16, repaired bool, format string, args ...interface{}) {
	r.Bits |= bit
	r.Findings = append(r.Findings, Finding{Bit: bit, Repaired: repaired, Message: fmt.Sprintf(format, args...)})
}

// Check walks a mounted image looking for the inconsistencies this driver
// knows how to name. Problems that prevent even opening the image — wrong
// magic, an unsupported media-type byte, an undersized image — are hard
// errors returned directly rather than recorded as findings, since there's
// nothing to walk without a valid header. When repair is true, every
// finding with a well-defined fix is corrected as it's found; findings
// without one (corrupted entries, broken chains) are reported only.
func Check(stream io.ReadWriteSeeker, size int64, repair bool) (*Report, *errors.DriverError) {
	if size < layout.MinDiskSize {
		return nil, errors.Errorf(errors.CodeDiskTooSmall, "image is %d bytes, need at least %d", size, layout.MinDiskSize)
	}

	disk := diskio.New(stream, size)

	header, err := superblock.ReadHeader(disk)
	if err != nil {
		return nil, err
	}
	toc, err := superblock.ReadToc(disk)
	if err != nil {
		return nil, err
	}
	fatTable, err := fat.Load(disk)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	tables := make(map[layout.Kind]*objtable.Table, 5)

	for _, kind := range layout.AllObjectKinds {
		table, terr := objtable.Load(disk, kind, &toc)
		if terr != nil {
			return nil, terr
		}
		tables[kind] = table

		if err := checkTocCount(report, table, kind, repair); err != nil {
			return nil, err
		}
		if err := checkUnzeroedGap(report, table, repair); err != nil {
			return nil, err
		}
		if err := checkElementTypes(report, table); err != nil {
			return nil, err
		}
	}

	if err := checkTocBlockCount(report, disk, toc, repair); err != nil {
		return nil, err
	}
	if err := checkFatZero(report, fatTable, repair); err != nil {
		return nil, err
	}
	if err := checkUnusableRangeReserved(report, fatTable, repair); err != nil {
		return nil, err
	}
	if err := checkFreeCounter(report, fatTable, repair); err != nil {
		return nil, err
	}
	if err := checkMediaTailConsistency(report, disk, header, fatTable, repair); err != nil {
		return nil, err
	}

	reachable, err := checkSampleChains(report, tables[layout.KindSample], fatTable)
	if err != nil {
		return nil, err
	}
	if err := checkOrphanedClusters(report, fatTable, header, reachable, repair); err != nil {
		return nil, err
	}

	return report, nil
}

func checkTocCount(report *Report, table *objtable.Table, kind layout.Kind, repair bool) *errors.DriverError {
	actual := len(table.OccupiedSlots())
	if int(table.TocCount()) == actual {
		return nil
	}
	report.add(BitTocCountMismatch, repair, "%s: TOC counter says %d, %d slots are actually occupied", kind.DirName(), table.TocCount(), actual)
	if !repair {
		return nil
	}
	return table.BumpToc(actual - int(table.TocCount()))
}

// checkUnzeroedGap detects an occupied slot sitting past a never-used
// (0x00) terminator, which breaks FindSlotByName's early-exit scan.
func checkUnzeroedGap(report *Report, table *objtable.Table, repair bool) *errors.DriverError {
	sawNeverUsed := false
	gapFound := false
	for slot := 0; slot < table.MaxCount(); slot++ {
		if table.IsOccupied(slot) {
			if sawNeverUsed {
				gapFound = true
				if repair {
					if err := table.UnzeroAllBefore(slot); err != nil {
						return err
					}
				}
			}
			continue
		}
		nameByte, err := table.ReadNameByte(slot)
		if err != nil {
			return err
		}
		if nameByte == layout.NameByteNeverUsed {
			sawNeverUsed = true
		}
	}
	if gapFound {
		report.add(BitUnzeroedGap, repair, "%s: an occupied slot follows a never-used terminator", table.Kind().DirName())
	}
	return nil
}

func checkElementTypes(report *Report, table *objtable.Table) *errors.DriverError {
	for _, slot := range table.OccupiedSlots() {
		if _, err := table.LoadEntry(slot); err != nil {
			if errors.IsCode(err, errors.CodeElementTypeMismatch) {
				report.add(BitElementTypeMismatch, false, "%s slot %d: %s", table.Kind().DirName(), slot, err.Error())
				continue
			}
			return err
		}
	}
	return nil
}

// checkTocBlockCount flags a TOC block-count that exceeds the format's
// maximum and clamps it back down. Since the field itself is a uint32 and
// MaxBlockCount is the largest value a uint32 can hold, this check never
// fires; it's kept because the checker's bit table names it regardless.
func checkTocBlockCount(report *Report, disk *diskio.Disk, toc superblock.Toc, repair bool) *errors.DriverError {
	if toc.BlockCount <= layout.MaxBlockCount {
		return nil
	}
	report.add(BitTocBlockCountOverflow, repair, "TOC block-count %d exceeds maximum %d", toc.BlockCount, uint32(layout.MaxBlockCount))
	if !repair {
		return nil
	}
	fixed := toc
	fixed.BlockCount = layout.MaxBlockCount
	return superblock.WriteToc(disk, fixed)
}

// checkFatZero flags FAT cluster 0 losing its fixed 0xFFFA marker (which
// mkfs.Format writes) and rewrites it.
func checkFatZero(report *Report, fatTable *fat.Table, repair bool) *errors.DriverError {
	if fatTable.Entry(0) == fat.ValueBadCluster0 {
		return nil
	}
	report.add(BitFatZeroCorrupt, repair, "FAT[0] is %#04x, expected %#04x", fatTable.Entry(0), fat.ValueBadCluster0)
	if !repair {
		return nil
	}
	return fatTable.SetBadClusterMarker()
}

// checkUnusableRangeReserved flags a FAT cell past the image's usable range
// that isn't holding one of the non-chainable reserved sentinels, and marks
// it reserved.
func checkUnusableRangeReserved(report *Report, fatTable *fat.Table, repair bool) *errors.DriverError {
	badCount := 0
	for c := fatTable.DataMax() + 1; c < layout.FATEntryCount; c++ {
		if fat.IsReservedValue(fatTable.Entry(c)) {
			continue
		}
		badCount++
		if repair {
			if err := fatTable.MarkReserved(c); err != nil {
				return err
			}
		}
	}
	if badCount > 0 {
		report.add(BitUnusableRangeNotReserved, repair, "%d cluster(s) past the usable range aren't marked reserved", badCount)
	}
	return nil
}

func checkFreeCounter(report *Report, fatTable *fat.Table, repair bool) *errors.DriverError {
	stored := fatTable.FreeCounter()
	observed := fatTable.CountFreeObserved()
	if stored == observed {
		return nil
	}
	report.add(BitFreeCounterDrift, repair, "free-cluster counter says %d, %d clusters are actually free", stored, observed)
	if !repair {
		return nil
	}
	return fatTable.WriteFreeCounter(observed)
}

// checkMediaTailConsistency is an addition beyond the mandatory checker
// table. It cross-checks the header's media-type byte against whether the
// FAT actually carries the S-760 tail marker pattern. The FAT is treated as
// the source of truth on repair, since a stray header
// byte is far more likely to be wrong than 114 marker entries agreeing.
func checkMediaTailConsistency(report *Report, disk *diskio.Disk, header superblock.Header, fatTable *fat.Table, repair bool) *errors.DriverError {
	tailMarked := fatTable.Entry(layout.S760TailFirstCluster) == fat.ValueS760TailA
	claims760 := header.MediaType == layout.MediaHDDWithS760
	if tailMarked == claims760 {
		return nil
	}

	report.add(BitMediaTailMismatch, repair, "header media type %#02x disagrees with FAT tail markers", byte(header.MediaType))
	if !repair {
		return nil
	}

	want := header.MediaType
	switch {
	case tailMarked:
		want = layout.MediaHDDWithS760
	case header.MediaType == layout.MediaHDDWithS760:
		want = layout.MediaHDDWithOS
	}
	return superblock.WriteMediaType(disk, want)
}

// checkSampleChains is an addition beyond the mandatory checker table:
// sample-chain coherence is noted as future work, not a required repair. It
// follows every occupied sample's cluster chain, flags ones that don't
// match their recorded length, and returns the full set of clusters
// reachable from a live sample so checkOrphanedClusters can tell orphaned
// allocations from legitimate ones.
func checkSampleChains(report *Report, table *objtable.Table, fatTable *fat.Table) (map[int]bool, *errors.DriverError) {
	reachable := make(map[int]bool)
	for _, slot := range table.OccupiedSlots() {
		entry, err := table.LoadEntry(slot)
		if err != nil {
			continue // already reported by checkElementTypes
		}
		if entry.ClusterCount == 0 {
			continue
		}

		chain, cerr := fatTable.FollowChain(int(entry.StartCluster))
		if cerr != nil {
			report.add(BitBrokenChain, false, "sample slot %d: %s", slot, cerr.Error())
			continue
		}
		if len(chain) != int(entry.ClusterCount) {
			report.add(BitBrokenChain, false, "sample slot %d: chain has %d clusters, entry claims %d", slot, len(chain), entry.ClusterCount)
		}
		for _, c := range chain {
			reachable[c] = true
		}
	}
	return reachable, nil
}

// checkOrphanedClusters is, like checkSampleChains, an addition beyond the
// mandatory checker table.
func checkOrphanedClusters(report *Report, fatTable *fat.Table, header superblock.Header, reachable map[int]bool, repair bool) *errors.DriverError {
	orphanCount := 0
	for c := 2; c <= fatTable.DataMax(); c++ {
		if fatTable.Entry(c) == fat.ValueFree {
			continue
		}
		if header.MediaType == layout.MediaHDDWithS760 && c >= layout.S760TailFirstCluster && c <= layout.S760TailLastCluster {
			continue
		}
		if reachable[c] {
			continue
		}

		orphanCount++
		if repair {
			if err := fatTable.FreeChain([]int{c}); err != nil {
				return err
			}
		}
	}
	if orphanCount > 0 {
		report.add(BitOrphanedCluster, repair, "%d cluster(s) allocated but unreachable from any sample", orphanCount)
	}
	return nil
}
