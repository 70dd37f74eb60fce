package vmm

import (
	"gophercore/kernel"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
)

// AddrSpace is the higher-level reserve/assign/remove wrapper layered over
// a pmap and the container it charges frames against.
type AddrSpace struct {
	Pid int
	Cid int
}

// NewAddrSpace allocates a pmap and binds it to cid, the container that
// every Reserve call in this address space charges.
func NewAddrSpace(cid int) (*AddrSpace, *kernel.Error) {
	pid, err := NewPmap()
	if err != nil {
		return nil, err
	}
	return &AddrSpace{Pid: pid, Cid: cid}, nil
}

// Reserve backs [va, va+size) with freshly allocated, zeroed frames
// charged against as.Cid.
func (as *AddrSpace) Reserve(va uintptr, size mem.Size, perm PageTableEntryFlag) *kernel.Error {
	start := va &^ pageMask
	end := (va + uintptr(size) + pageMask) &^ pageMask

	for cur := start; cur < end; cur += uintptr(mem.PageSize) {
		if err := Resv(as.Pid, as.Cid, cur, perm); err != nil {
			as.Remove(start, mem.Size(cur-start))
			return err
		}
	}
	return nil
}

// Assign maps frame at va without charging as.Cid's quota: used to bind a
// specific, externally-owned frame (e.g. a device buffer or a shared
// mapping) rather than a freshly allocated one.
func (as *AddrSpace) Assign(va uintptr, frame pmm.Frame, perm PageTableEntryFlag) *kernel.Error {
	return Insert(as.Pid, va, frame.Address(), perm)
}

// Remove unmaps [va, va+size) and returns every frame it finds mapped there
// to as.Cid's quota. It is only valid over a range previously established
// with Reserve; pages that were never mapped are silently skipped. Ranges
// established with Assign must be released with Unassign instead, since
// their frames were never charged to as.Cid.
func (as *AddrSpace) Remove(va uintptr, size mem.Size) {
	start := va &^ pageMask
	end := (va + uintptr(size) + pageMask) &^ pageMask

	for cur := start; cur < end; cur += uintptr(mem.PageSize) {
		phys, err := pmapPool[as.Pid].Translate(cur)
		if err != nil {
			continue
		}
		pmapPool[as.Pid].Unmap(PageFromAddress(cur))
		containerFreeFn(as.Cid, pmm.FrameFromAddress(phys&^pageMask))
	}
}

// Unassign unmaps [va, va+size) without touching as.Cid's quota, the
// counterpart to Assign.
func (as *AddrSpace) Unassign(va uintptr, size mem.Size) {
	start := va &^ pageMask
	end := (va + uintptr(size) + pageMask) &^ pageMask

	for cur := start; cur < end; cur += uintptr(mem.PageSize) {
		pmapPool[as.Pid].Unmap(PageFromAddress(cur))
	}
}

// Destroy releases as's pmap. Callers must Remove every owned range first;
// Destroy does not walk the pmap looking for leftover mappings.
func (as *AddrSpace) Destroy() {
	FreePmap(as.Pid)
}
