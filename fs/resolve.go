package fs

import (
	"github.com/rolandfs/s7xxfs/errors"
	"github.com/rolandfs/s7xxfs/layout"
	"github.com/rolandfs/s7xxfs/objtable"
)

// resolution is the outcome of turning an identifier into a concrete slot:
// either an existing occupied slot, or a free slot ready to receive a fresh
// entry.
type resolution struct {
	slot  int
	isNew bool
	name  string // display name to use if isNew
}

// resolveSlot maps ident against table per spec section 4.3: an explicit
// "{index}" or "{index}-name" form addresses that slot directly (creating it
// if free);
// a bare name form looks up by name first and falls back to the first free
// slot, allocating a new entry.
func resolveSlot(table *objtable.Table, ident identifier) (resolution, *errors.DriverError) {
	if ident.hasIndex {
		if ident.index < 0 || ident.index >= table.MaxCount() {
			return resolution{}, errors.Errorf(errors.CodeInvalidPath, "index %d is out of range for this directory", ident.index)
		}
		return resolution{slot: ident.index, isNew: !table.IsOccupied(ident.index), name: ident.name}, nil
	}

	if slot, ok := table.FindSlotByName(objtable.PadName(ident.name)); ok {
		return resolution{slot: slot, isNew: false, name: ident.name}, nil
	}

	slot, ok := table.FindFreeSlot()
	if !ok {
		return resolution{}, errors.Errorf(errors.CodeNoSpaceLeft, "no free slot available")
	}
	return resolution{slot: slot, isNew: true, name: ident.name}, nil
}

// createEntry writes a fresh, zero-sized list entry for a newly allocated
// slot, tombstones any never-used slots skipped over, and bumps the TOC
// counter. The params region for a freshly formatted or freshly deleted
// slot is already 0xFF-filled (by mkfs or DeleteSlot), so no separate
// params write is needed here.
func createEntry(table *objtable.Table, kind layout.Kind, slot int, name string) (objtable.Entry, *errors.DriverError) {
	entry := objtable.Entry{
		Name:        objtable.PadName(name),
		ElementType: layout.Describe(kind).ElementType,
	}
	if err := table.WriteEntry(slot, entry); err != nil {
		return objtable.Entry{}, err
	}
	if err := table.UnzeroAllBefore(slot); err != nil {
		return objtable.Entry{}, err
	}
	if err := table.BumpToc(1); err != nil {
		return objtable.Entry{}, err
	}
	return entry, nil
}
