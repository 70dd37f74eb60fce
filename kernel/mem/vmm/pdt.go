package vmm

import (
	"gophercore/kernel"
	"gophercore/kernel/cpu"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
	"unsafe"
)

var (
	activePDTFn = cpu.ActivePDT
	switchPDTFn = cpu.SwitchPDT

	mapFn          = Map
	mapTemporaryFn = MapTemporary
	unmapFn        = Unmap
)

// PageDirectoryTable is a single page directory: the per-process "pmap".
// Multiple instances coexist; at most one is ever the CPU's active CR3 at
// a time, but Map/Unmap on an inactive instance still work by temporarily
// pointing the active PDT's recursive self-map entry at the target frame.
type PageDirectoryTable struct {
	pdtFrame pmm.Frame
}

// Init points this table at pdtFrame. If pdtFrame is not the currently
// active PDT, Init clears its contents and installs the recursive
// self-mapping entry that makes walk/Map/Unmap work against it once
// it is later made active (or manipulated via the inactive-PDT path).
func (pdt *PageDirectoryTable) Init(pdtFrame pmm.Frame) *kernel.Error {
	pdt.pdtFrame = pdtFrame

	if pdtFrame.Address() == activePDTFn() {
		return nil
	}

	pdtPage, err := mapTemporaryFn(pdtFrame)
	if err != nil {
		return err
	}

	mem.Memset(pdtPage.Address(), 0, mem.PageSize)
	lastEntry := (*pageTableEntry)(unsafe.Pointer(pdtPage.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)))
	*lastEntry = 0
	lastEntry.SetFlags(FlagPresent | FlagRW)
	lastEntry.SetFrame(pdtFrame)

	unmapFn(pdtPage)
	return nil
}

// withActivated temporarily retargets the active PDT's recursive entry at
// pdt's frame (if pdt isn't already active) so fn can use the package-level
// Map/Unmap helpers against it, then restores the previous target.
func (pdt PageDirectoryTable) withActivated(fn func() *kernel.Error) *kernel.Error {
	activeFrame := pmm.FrameFromAddress(activePDTFn())
	if activeFrame == pdt.pdtFrame {
		return fn()
	}

	lastEntryAddr := activeFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
	lastEntry := (*pageTableEntry)(unsafe.Pointer(lastEntryAddr))
	lastEntry.SetFrame(pdt.pdtFrame)
	flushTLBEntryFn(lastEntryAddr)

	err := fn()

	lastEntry.SetFrame(activeFrame)
	flushTLBEntryFn(lastEntryAddr)
	return err
}

// Map installs page->frame in this table, per-instance equivalent of the
// package-level Map.
func (pdt PageDirectoryTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return pdt.withActivated(func() *kernel.Error { return mapFn(page, frame, flags) })
}

// Unmap removes page's mapping from this table.
func (pdt PageDirectoryTable) Unmap(page Page) *kernel.Error {
	return pdt.withActivated(func() *kernel.Error { return unmapFn(page) })
}

// Read returns the raw PTE for va in this table, or 0 if any level along
// the walk is absent.
func (pdt PageDirectoryTable) Read(va uintptr) uint32 {
	var (
		result pageTableEntry
		ok     bool
	)
	_ = pdt.withActivated(func() *kernel.Error {
		entry, err := pteForAddress(va)
		if err == nil {
			result, ok = *entry, true
		}
		return nil
	})
	if !ok {
		return 0
	}
	return uint32(result)
}

// Translate returns the physical address va maps to in this table, or
// ErrInvalidMapping if it is not mapped.
func (pdt PageDirectoryTable) Translate(va uintptr) (uintptr, *kernel.Error) {
	var (
		phys uintptr
		err  *kernel.Error
	)
	_ = pdt.withActivated(func() *kernel.Error {
		phys, err = Translate(va)
		return nil
	})
	return phys, err
}

// Frame returns the physical frame backing this page directory.
func (pdt PageDirectoryTable) Frame() pmm.Frame { return pdt.pdtFrame }

// Activate loads this table's frame into CR3 and flushes the TLB.
func (pdt PageDirectoryTable) Activate() {
	switchPDTFn(pdt.pdtFrame.Address())
}
