package vmm

import (
	"gophercore/kernel"
	"gophercore/kernel/mem"
)

var (
	// earlyReserveLastUsed tracks the last address handed out by
	// EarlyReserveRegion; it only ever decreases, starting at
	// tempMappingAddr (the top of the space setupPDTForKernel leaves
	// available before the kernel heap is handed off to the container
	// tree).
	earlyReserveLastUsed = tempMappingAddr

	errEarlyReserveNoSpace = &kernel.Error{Module: "early_reserve", Message: "remaining virtual address space not large enough to satisfy reservation request"}
)

// EarlyReserveRegion reserves a page-aligned contiguous virtual region of
// the requested size in the kernel address space and returns its start
// address. Only used during early boot, before the container-backed
// AddrSpace.Reserve exists to serve the same purpose for a process.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) &^ (mem.PageSize - 1)
	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}
	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}
