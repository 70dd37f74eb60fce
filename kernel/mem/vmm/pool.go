package vmm

import (
	"gophercore/kernel"
	"gophercore/kernel/mem/pmm"
)

// MaxPmaps bounds the pmap pool: one pid-indexed PageDirectoryTable per
// kernel/proc process slot (pmap-id == pid), sized to match
// kernel/proc.NPROC. Mirrored here rather than imported to keep this
// package free of a dependency on kernel/proc.
const MaxPmaps = 64

var (
	pmapPool [MaxPmaps]PageDirectoryTable
	pmapUsed [MaxPmaps]bool

	errNoPmaps = &kernel.Error{Module: "vmm", Message: "pmap table exhausted", Errno: kernel.ErrnoMem}
	errBadPmap = &kernel.Error{Module: "vmm", Message: "invalid pmap id", Errno: kernel.ErrnoInvalidPid}
)

// NewPmap allocates a free pmap slot, points it at a freshly allocated
// page-directory frame and copies every kernel mapping into it so the
// identity-mapped band is identical across processes.
func NewPmap() (int, *kernel.Error) {
	pid := -1
	for i := range pmapUsed {
		if !pmapUsed[i] {
			pid = i
			break
		}
	}
	if pid < 0 {
		return 0, errNoPmaps
	}

	frame, err := frameAllocator()
	if err != nil {
		return 0, err
	}
	if err := pmapPool[pid].Init(frame); err != nil {
		return 0, err
	}
	if err := copyKernelPDEs(pid); err != nil {
		return 0, err
	}

	pmapUsed[pid] = true
	return pid, nil
}

// copyKernelPDEs duplicates the kernel PDT's identity mappings into pid's
// PDT. The per-process PDT shares no page-table-level storage with the
// kernel one (Init allocates a private frame) so this walks both identity
// bands once per pmap.
func copyKernelPDEs(pid int) *kernel.Error {
	for _, band := range kernelIdentityBands {
		for f := band[0]; f < band[1]; f++ {
			if err := pmapPool[pid].Map(PageFromAddress(f.Address()), f, FlagPresent|FlagRW|FlagGlobal); err != nil {
				return err
			}
		}
	}
	return nil
}

// FreePmap releases pid's page-directory frame and marks the slot free.
// Caller is responsible for having already released every user mapping via
// AddrSpace.Destroy.
func FreePmap(pid int) {
	if !validPmap(pid) {
		return
	}
	freeFrameFn(pmapPool[pid].Frame())
	pmapPool[pid] = PageDirectoryTable{}
	pmapUsed[pid] = false
}

// freeFrameFn is a seam over pmm.FreeFrame so tests can run without a real
// frame table; production wires it in SetFrameAllocator's caller.
var freeFrameFn = pmm.FreeFrame

func validPmap(pid int) bool {
	return pid >= 0 && pid < MaxPmaps && pmapUsed[pid]
}

// Read returns the raw PTE for va in pid's pmap, or 0 if absent.
func Read(pid int, va uintptr) uint32 {
	if !validPmap(pid) {
		return 0
	}
	return pmapPool[pid].Read(va)
}

// Insert maps pa at va in pid's pmap with the given permission flags.
func Insert(pid int, va, pa uintptr, perm PageTableEntryFlag) *kernel.Error {
	if !validPmap(pid) {
		return errBadPmap
	}
	return pmapPool[pid].Map(PageFromAddress(va), pmm.FrameFromAddress(pa), perm|FlagPresent)
}

// containerAllocFn/containerFreeFn are seams over pmm.ContainerAlloc and
// pmm.ContainerFree so tests can exercise quota accounting without a real
// frame table backing the container tree; inlined in production builds.
var (
	containerAllocFn = pmm.ContainerAlloc
	containerFreeFn  = pmm.ContainerFree
)

// Resv allocates a fresh frame charged against cid's container quota and
// maps it at va in pid's pmap with perm.
func Resv(pid, cid int, va uintptr, perm PageTableEntryFlag) *kernel.Error {
	frame, err := containerAllocFn(cid)
	if err != nil {
		return err
	}
	if err := Insert(pid, va, frame.Address(), perm); err != nil {
		containerFreeFn(cid, frame)
		return err
	}
	return nil
}

// LoadPmap switches CR3 to pid's page directory, falling back to the
// kernel PDT when pid has no pmap (e.g. a ring-0 thread about to run).
func LoadPmap(pid int) {
	if validPmap(pid) {
		pmapPool[pid].Activate()
	} else {
		KernelPDT.Activate()
	}
}
