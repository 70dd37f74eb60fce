package vmm

import (
	"gophercore/kernel"
	"gophercore/kernel/cpu"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
	"unsafe"
)

// ReservedZeroedFrame is a zero-cleared frame set up by Init. Mapping it
// together with FlagCopyOnWrite gives on-demand allocation: a read against
// the mapping sees zeroes, and the first write takes a page fault that
// installs a private, freshly allocated copy (see vmm.go's pageFaultHandler).
var ReservedZeroedFrame pmm.Frame

var (
	// protectReservedZeroedPage is set once ReservedZeroedFrame has been
	// carved out, to reject any attempt to map it with FlagRW directly.
	protectReservedZeroedPage bool

	// frameAllocator is registered via SetFrameAllocator and used
	// whenever Map needs a fresh frame to back an intermediate page
	// table level.
	frameAllocator FrameAllocatorFn

	// nextAddrFn lets tests observe/override the address Map computes
	// for a freshly allocated intermediate table; inlined in production.
	nextAddrFn = func(entryAddr uintptr) uintptr { return entryAddr }

	// flushTLBEntryFn is swapped out by tests; calling the real
	// cpu.FlushTLBEntry outside ring 0 would fault.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// earlyReserveRegionFn is a seam over EarlyReserveRegion so MapRegion
	// can be exercised without consuming the real early-reserve window.
	earlyReserveRegionFn = EarlyReserveRegion

	errNoHugePageSupport           = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errAttemptToRWMapReservedFrame = &kernel.Error{Module: "vmm", Message: "reserved blank frame cannot be mapped with a RW flag"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator registers the frame allocator Map uses when it needs to
// materialize a missing page-table level.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// Map establishes a mapping between a virtual page and a physical frame in
// the currently active page directory, allocating any missing intermediate
// page-table levels along the way.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame && (flags&FlagRW) != 0 {
		return errAttemptToRWMapReservedFrame
	}

	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			var newTableFrame pmm.Frame
			newTableFrame, err = frameAllocator()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			nextTableAddr := uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1]
			mem.Memset(nextAddrFn(nextTableAddr), 0, mem.PageSize)
		}

		return true
	})

	return err
}

// MapRegion establishes a mapping to the physical memory region which starts
// at the given frame and ends at frame + pages(size). The size argument is
// always rounded up to the nearest page boundary. MapRegion reserves the next
// available region in the active virtual address space, establishes the
// mapping and returns back the Page that corresponds to the region start.
func MapRegion(frame pmm.Frame, size mem.Size, flags PageTableEntryFlag) (Page, *kernel.Error) {
	// Reserve next free block in the address space
	size = (size + (mem.PageSize - 1)) & ^(mem.PageSize - 1)
	startPage, err := earlyReserveRegionFn(size)
	if err != nil {
		return 0, err
	}

	pageCount := size >> mem.PageShift
	for page := PageFromAddress(startPage); pageCount > 0; pageCount, page, frame = pageCount-1, page+1, frame+1 {
		if err := mapFn(page, frame, flags); err != nil {
			return 0, err
		}
	}

	return PageFromAddress(startPage), nil
}

// MapTemporary establishes a temporary RW mapping of frame at a fixed
// virtual address, overwriting whatever was mapped there before. It is
// used to reach into an inactive page-table frame (e.g. one belonging to a
// pmap that is not the currently loaded one) for initialization.
func MapTemporary(frame pmm.Frame) (Page, *kernel.Error) {
	if protectReservedZeroedPage && frame == ReservedZeroedFrame {
		return 0, errAttemptToRWMapReservedFrame
	}
	if err := Map(PageFromAddress(tempMappingAddr), frame, FlagPresent|FlagRW); err != nil {
		return 0, err
	}
	return PageFromAddress(tempMappingAddr), nil
}

// Unmap removes a mapping previously installed via Map or MapTemporary.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}
		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}
		return true
	})

	return err
}
