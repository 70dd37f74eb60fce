package pmm

import (
	"gophercore/kernel"
	"gophercore/kernel/hal/multiboot"
	"gophercore/kernel/kfmt"
	"gophercore/kernel/mem"
	"gophercore/kernel/sync"
)

// Kind classifies a Frame by where it came from in the bootloader's memory
// map and whether palloc is allowed to ever hand it out.
type Kind uint8

const (
	// KindReserved marks a frame the bootloader reported as unusable
	// (BIOS/legacy, unknown).
	KindReserved Kind = iota

	// KindACPI marks ACPI reclaimable memory.
	KindACPI

	// KindNVS marks ACPI NVS memory, which must never be reclaimed.
	KindNVS

	// KindKernel marks a frame that is usable RAM but falls outside
	// [mem.VMUserLo, mem.VMUserHi) — the kernel image, the sub-1MB
	// region and the kernel heap all land here. These frames are
	// identity-mapped at boot and are never handed out by AllocFrame.
	KindKernel

	// KindUsable marks a frame that AllocFrame may hand out.
	KindUsable
)

// String returns the mnemonic used when the memory map is logged.
func (k Kind) String() string {
	switch k {
	case KindReserved:
		return "reserved"
	case KindACPI:
		return "acpi"
	case KindNVS:
		return "nvs"
	case KindKernel:
		return "kernel"
	case KindUsable:
		return "usable"
	default:
		return "unknown"
	}
}

type frameDesc struct {
	kind      Kind
	allocated bool
}

var (
	errOutOfMemory = &kernel.Error{Module: "pmm", Message: "no more usable frames", Errno: kernel.ErrnoMem}
	errNoMemoryMap = &kernel.Error{Module: "pmm", Message: "bootloader did not report a memory map", Errno: kernel.ErrnoMem}

	// frames is indexed by Frame; frames[0] is never touched (frame 0 is
	// the permanently reserved InvalidFrame sentinel).
	frames []frameDesc

	// nps is the number of entries in frames, i.e. the highest usable
	// page index plus one.
	nps uint32

	// cursor is the frame AllocFrame resumes scanning from. It only ever
	// advances, matching the boot allocator it is grounded on.
	cursor Frame

	lock sync.Spinlock
)

// NPS returns the page count computed by the last call to Init.
func NPS() uint32 { return nps }

// Init parses the physical memory map reported by the bootloader into the
// frame table. kernelStart/kernelEnd mark the
// currently running kernel image so its frames are excluded even when they
// fall inside a region the bootloader reports as available.
func Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	var highestUsable Frame

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		endFrame := Frame((region.PhysAddress + region.Length) >> mem.PageShift)
		if endFrame > highestUsable {
			highestUsable = endFrame
		}
		return true
	})

	nps = uint32(highestUsable)
	if nps == 0 {
		return errNoMemoryMap
	}
	frames = make([]frameDesc, nps)

	pageSizeMinus1 := uintptr(mem.PageSize - 1)
	kernelStartFrame := Frame((kernelStart &^ pageSizeMinus1) >> mem.PageShift)
	kernelEndFrame := Frame(((kernelEnd + pageSizeMinus1) &^ pageSizeMinus1) >> mem.PageShift)

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		startFrame := Frame(region.PhysAddress >> mem.PageShift)
		endFrame := Frame((region.PhysAddress + region.Length) >> mem.PageShift)

		for f := startFrame; f < endFrame && uint32(f) < nps; f++ {
			if f == 0 {
				continue
			}

			switch {
			case region.Type != multiboot.MemAvailable:
				frames[f].kind = mmapKind(region.Type)
			case f >= kernelStartFrame && f < kernelEndFrame:
				frames[f].kind = KindKernel
			case f.Address() < mem.VMUserLo || f.Address() >= mem.VMUserHi:
				frames[f].kind = KindKernel
			default:
				frames[f].kind = KindUsable
			}
		}
		return true
	})

	cursor = 1
	printMemoryMap()
	return nil
}

func mmapKind(t multiboot.MemoryEntryType) Kind {
	switch t {
	case multiboot.MemAcpiReclaimable:
		return KindACPI
	case multiboot.MemNvs:
		return KindNVS
	default:
		return KindReserved
	}
}

// AllocFrame scans forward from the cursor for the first unallocated usable
// frame, marks it allocated, zeroes it and returns it. It returns
// errOutOfMemory once every usable frame is allocated.
func AllocFrame() (Frame, *kernel.Error) {
	lock.Acquire()
	defer lock.Release()

	for f := cursor; uint32(f) < nps; f++ {
		if frames[f].kind == KindUsable && !frames[f].allocated {
			frames[f].allocated = true
			cursor = f
			mem.Memset(f.Address(), 0, mem.PageSize)
			return f, nil
		}
	}

	// Wrap around once in case earlier frames were freed behind the
	// cursor.
	for f := Frame(1); f < cursor; f++ {
		if frames[f].kind == KindUsable && !frames[f].allocated {
			frames[f].allocated = true
			cursor = f
			mem.Memset(f.Address(), 0, mem.PageSize)
			return f, nil
		}
	}

	return InvalidFrame, errOutOfMemory
}

// FreeFrame marks f unallocated. No refcount is
// kept at this layer; Container wraps allocations with quota accounting.
func FreeFrame(f Frame) {
	lock.Acquire()
	defer lock.Release()

	if uint32(f) >= nps || f == InvalidFrame {
		return
	}
	frames[f].allocated = false
}

// Allocated reports whether f was returned by a prior AllocFrame call that
// has not since been released with FreeFrame.
func Allocated(f Frame) bool {
	lock.Acquire()
	defer lock.Release()
	return uint32(f) < nps && frames[f].allocated
}

func printMemoryMap() {
	kfmt.Printf("[pmm] system memory map:\n")
	var totalUsable mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())
		if region.Type == multiboot.MemAvailable {
			totalUsable += mem.Size(region.Length)
		}
		return true
	})
	kfmt.Printf("[pmm] total pages: %d, usable bytes reported by bootloader: %d\n", nps, uint64(totalUsable))
}
