//go:build 386
// +build 386

package vmm

import "math"

const (
	// pageLevels is the number of page-table levels the 386 MMU walks
	// for a linear address: a page directory and a page table.
	pageLevels = 2

	// ptePhysPageMask extracts the physical frame address from a page
	// table entry: bits 12-31 on this architecture.
	ptePhysPageMask = uintptr(0xFFFFF000)

	// tempMappingAddr is a reserved virtual page used for temporary
	// physical page mappings (e.g. when reaching into an inactive PDT's
	// pages during Init). It sits just below the recursive self-map
	// window so it never collides with the page-table views.
	tempMappingAddr = uintptr(0xFFBFF000)
)

var (
	// pdtVirtualAddr is the virtual address that, thanks to the
	// recursive self-mapping installed by PageDirectoryTable.Init (the
	// active PDT's last entry points back to itself), lets the CPU's own
	// MMU translation machinery be (ab)used to read/write the active
	// PDT's raw entries as if they were ordinary memory.
	pdtVirtualAddr = uintptr(math.MaxUint32 &^ ((1 << 12) - 1))

	// pageLevelBits is the number of linear-address bits that index each
	// page-table level: 10 bits (1024 entries) per level for both the
	// PDE and PTE on this architecture.
	pageLevelBits = [pageLevels]uint8{10, 10}

	// pageLevelShifts is the bit shift needed to extract each level's
	// index from a linear address.
	pageLevelShifts = [pageLevels]uint8{22, 12}
)

// Page table entry permission flags, matching the hardware 386 PTE/PDE bit
// layout directly, plus the software-defined flags the CoW allocator in
// map.go needs.
const (
	// FlagPresent is set when the page is mapped and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code may access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching selects write-through caching.
	FlagWriteThroughCaching

	// FlagDoNotCache disables caching for this page.
	FlagDoNotCache

	// FlagAccessed is set by the CPU the first time the page is touched.
	FlagAccessed

	// FlagDirty is set by the CPU on the first write to the page.
	FlagDirty

	// FlagHugePage marks a 4MB page directory entry; unsupported by this
	// implementation (see errNoHugePageSupport).
	FlagHugePage

	// FlagGlobal prevents the TLB entry from being flushed on a CR3
	// reload; used for the shared kernel band.
	FlagGlobal

	// FlagCopyOnWrite marks a read-only page whose write fault should
	// allocate a private copy instead of killing the faulting context.
	// Mutually exclusive with FlagRW.
	FlagCopyOnWrite = 1 << 9

	// FlagNoExecute has no hardware effect on a 386 without PAE/NX but is
	// kept so callers written against the flag name compile unchanged;
	// it is simply never set on this architecture's PTEs.
	FlagNoExecute = 1 << 31
)
