// Package npt implements the nested (guest-physical -> host-physical) page
// tables: a per-VM identity map over the guest's RAM window, built from
// the same frame allocator the rest of the kernel uses, with frames
// assigned on demand as NPF exits touch new guest pages.
package npt

import (
	"gophercore/kernel"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
)

// DefaultRAMWindow is the size of guest-physical RAM a VM is given unless
// overridden.
const DefaultRAMWindow = 64 * mem.Mb

var (
	errUnbacked = &kernel.Error{Module: "npt", Message: "guest-physical page has no host-physical backing"}

	// frameAllocator is registered via SetFrameAllocator; production
	// wires it to pmm.AllocFrame (or a per-VM container's
	// ContainerAlloc, to charge guest memory against the owning
	// process's quota).
	frameAllocator func() (pmm.Frame, *kernel.Error) = pmm.AllocFrame
)

// SetFrameAllocator registers the function Table uses to back newly
// touched guest pages.
func SetFrameAllocator(fn func() (pmm.Frame, *kernel.Error)) {
	frameAllocator = fn
}

// Table is one VM's guest-physical -> host-physical mapping. Unlike
// kernel/mem/vmm's hierarchical PDE/PTE pool there is no software walking
// this table; the host CPU's own nested-paging hardware does, once the
// per-entry host-physical addresses are programmed into the
// VMCB/VMCS-referenced NPT/EPT root. A flat, page-indexed slice is enough
// for an identity window over contiguous guest RAM plus on-demand
// MMIO-hole backing.
type Table struct {
	ramPages uint32
	backing  []pmm.Frame // backing[gpn] is the host frame for guest page gpn, or pmm.InvalidFrame
}

// New allocates an (unbacked) nested page table sized to cover ramWindow
// bytes of guest-physical RAM starting at guest-physical address 0.
func New(ramWindow mem.Size) *Table {
	pages := uint32((ramWindow + mem.PageSize - 1) / mem.PageSize)
	return &Table{ramPages: pages, backing: make([]pmm.Frame, pages)}
}

// IdentityMapRAM eagerly backs every page in the RAM window with a fresh
// host frame, so the guest's reset-vector payload and BIOS data area are
// present without taking an NPF for them.
func (t *Table) IdentityMapRAM() *kernel.Error {
	for gpn := uint32(0); gpn < t.ramPages; gpn++ {
		if t.backing[gpn].Valid() {
			continue
		}
		frame, err := frameAllocator()
		if err != nil {
			return err
		}
		t.backing[gpn] = frame
	}
	return nil
}

// Translate resolves a guest-physical address to a host-physical address,
// or errUnbacked if the page has never been mapped.
func (t *Table) Translate(gpa uintptr) (uintptr, *kernel.Error) {
	gpn := uint32(gpa / uintptr(mem.PageSize))
	if gpn >= uint32(len(t.backing)) || !t.backing[gpn].Valid() {
		return 0, errUnbacked
	}
	return t.backing[gpn].Address() + (gpa % uintptr(mem.PageSize)), nil
}

// HandleNPF backs the guest page containing gpa with a freshly allocated
// frame if it is not already mapped.
func (t *Table) HandleNPF(gpa uintptr) *kernel.Error {
	gpn := uint32(gpa / uintptr(mem.PageSize))
	if gpn >= uint32(len(t.backing)) {
		return errUnbacked
	}
	if t.backing[gpn].Valid() {
		return nil
	}

	frame, err := frameAllocator()
	if err != nil {
		return err
	}
	t.backing[gpn] = frame
	return nil
}

// RAMPages reports the number of guest-physical pages this table covers.
func (t *Table) RAMPages() uint32 { return t.ramPages }
