package vmm

import (
	"gophercore/kernel"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
)

var (
	// kernelIdentityBands lists the physical frame ranges (start
	// inclusive, end exclusive) that make up the kernel identity band:
	// everything below mem.VMUserLo plus the MMIO/identity region from
	// mem.VMUserHi to the top of the 32-bit address space. The upper
	// band stops at tempMappingAddr: the temporary-mapping page and the
	// recursive self-map window above it must keep their PTEs mutable
	// for inactive-pmap access to work at all. A var rather than a
	// const table so tests can bound the walk.
	kernelIdentityBands = [][2]pmm.Frame{
		{1, pmm.FrameFromAddress(mem.VMUserLo)},
		{pmm.FrameFromAddress(mem.VMUserHi), pmm.FrameFromAddress(tempMappingAddr)},
	}

	// errUnrecoverableFault is the error ResolveCopyOnWriteFault returns
	// for a fault it cannot service by copy-on-write. kernel/trap is the
	// sole caller that decides what to do next: kill the faulting user
	// process or treat a kernel-mode fault as fatal.
	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}

	// KernelPDT is the page directory shared, PDE for PDE, by every
	// process pmap. Its only mappings are the identity band outside
	// [mem.VMUserLo, mem.VMUserHi).
	KernelPDT PageDirectoryTable
)

// ResolveCopyOnWriteFault is the CoW half of page-fault handling: it
// installs a private copy of a FlagCopyOnWrite page on its first write and
// reports errUnrecoverableFault for anything it cannot resolve this way.
// It is exported so kernel/trap's unified dispatcher can try it before
// falling back to killing the faulting user process or treating a
// kernel-mode fault as fatal.
func ResolveCopyOnWriteFault(faultAddress uintptr) *kernel.Error {
	faultPage := PageFromAddress(faultAddress)

	var pageEntry *pageTableEntry
	walk(faultPage.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		present := pte.HasFlags(FlagPresent)
		if pteLevel == pageLevels-1 && present {
			pageEntry = pte
		}
		return present
	})

	if pageEntry == nil || pageEntry.HasFlags(FlagRW) || !pageEntry.HasFlags(FlagCopyOnWrite) {
		return errUnrecoverableFault
	}

	copyFrame, err := frameAllocator()
	if err != nil {
		return err
	}

	tmpPage, err := mapTemporaryFn(copyFrame)
	if err != nil {
		return err
	}
	mem.Memcopy(faultPage.Address(), tmpPage.Address(), mem.PageSize)
	unmapFn(tmpPage)

	pageEntry.ClearFlags(FlagCopyOnWrite)
	pageEntry.SetFlags(FlagPresent | FlagRW)
	pageEntry.SetFrame(copyFrame)
	flushTLBEntryFn(faultPage.Address())
	return nil
}

// reserveZeroedFrame carves out ReservedZeroedFrame for on-demand
// allocation via FlagCopyOnWrite.
func reserveZeroedFrame() *kernel.Error {
	frame, err := frameAllocator()
	if err != nil {
		return err
	}
	ReservedZeroedFrame = frame

	tempPage, err := mapTemporaryFn(frame)
	if err != nil {
		return err
	}
	mem.Memset(tempPage.Address(), 0, mem.PageSize)
	unmapFn(tempPage)

	protectReservedZeroedPage = true
	return nil
}

// Init builds the kernel's identity-mapped PDT and reserves the CoW zero
// frame used by the Go allocator's lazy heap growth. It does not touch the
// IDT: kernel/trap.Init owns registering the page-fault and
// general-protection vectors, since only it knows whether a given fault
// came from user or kernel mode.
func Init() *kernel.Error {
	if err := setupKernelPDT(); err != nil {
		return err
	}
	return reserveZeroedFrame()
}

// setupKernelPDT identity-maps the full complement of the user address
// range - every page below mem.VMUserLo and every page of the MMIO band
// from mem.VMUserHi up - so the kernel band is identical,
// address-equals-physical, in every pmap that later copies these entries,
// whether or not the page backs RAM the bootloader reported.
func setupKernelPDT() *kernel.Error {
	pdtFrame, err := frameAllocator()
	if err != nil {
		return err
	}
	if err := KernelPDT.Init(pdtFrame); err != nil {
		return err
	}

	flags := FlagPresent | FlagRW | FlagGlobal
	for _, band := range kernelIdentityBands {
		for f := band[0]; f < band[1]; f++ {
			if err := KernelPDT.Map(PageFromAddress(f.Address()), f, flags); err != nil {
				return err
			}
		}
	}

	KernelPDT.Activate()
	return nil
}
