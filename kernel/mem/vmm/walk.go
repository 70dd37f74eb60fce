package vmm

import (
	"gophercore/kernel/mem"
	"unsafe"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. It is
	// overridden by tests so walk() can be exercised without a real MMU
	// backing the recursive self-map; inlined away in production builds.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// pageTableWalker is invoked by walk with the page-table level and entry
// that correspond to each step of a linear-address translation. Returning
// false aborts the walk.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page-table walk for virtAddr against the currently
// active page directory, invoking walkFn once per level.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
		ok                               bool
	)

	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if ok = walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))); !ok {
			return
		}

		entryAddr <<= pageLevelBits[level]
	}
}
