// Package smp implements SMP bootstrap (component N): application-processor
// bringup via the INIT-SIPI-SIPI sequence, the per-CPU LAPIC-id table, and
// wiring kernel/proc and kernel/sync's cpu-identification seams so every
// spinlock and scheduler structure can tell which CPU is calling it.
package smp

import (
	"gophercore/kernel"
	"gophercore/kernel/cpu"
	"gophercore/kernel/proc"
	"gophercore/kernel/sync"
)

// MaxCPU bounds the LAPIC-id table; mirrored from kernel/proc.MaxCPU since
// a CPU's smp index and its proc/sync cpu id are the same number.
const MaxCPU = proc.MaxCPU

var (
	lapicID [MaxCPU]uint32
	booted  [MaxCPU]bool
	numCPU  int
)

var (
	errTooManyCPUs = &kernel.Error{Module: "smp", Message: "cpu count exceeds MaxCPU", Errno: kernel.ErrnoMem}
	errBadCPUIndex = &kernel.Error{Module: "smp", Message: "invalid cpu index"}
)

// RegisterCPU records a newly discovered CPU's LAPIC id and returns its
// small sequential index. Called once per entry while walking the boot-time
// CPU topology table (the ACPI MADT or multiboot's CPU list, an external
// collaborator, out of scope for this module).
func RegisterCPU(lapic uint32) (int, *kernel.Error) {
	if numCPU >= MaxCPU {
		return 0, errTooManyCPUs
	}
	i := numCPU
	lapicID[i] = lapic
	numCPU++
	return i, nil
}

// NumCPU returns how many CPUs were registered during boot, backing the
// ncpu syscall's "returns CPU count" effect.
func NumCPU() int { return numCPU }

// apicIDFn reads the calling CPU's hardware LAPIC id; overridden in tests.
var apicIDFn = cpu.APICID

// currentIndex resolves the calling CPU's small sequential index by
// scanning the LAPIC-id table. A linear scan is cheap enough at MaxCPU's
// bound (64) and avoids needing a dedicated per-CPU storage register this
// kernel has no other use for.
// CurrentIndex is the exported form of currentIndex for packages that
// take a cpu-id seam (kernel/trap) but sit above this one in the import
// graph.
func CurrentIndex() int { return currentIndex() }

func currentIndex() int {
	id := apicIDFn()
	for i := 0; i < numCPU; i++ {
		if lapicID[i] == id {
			return i
		}
	}
	return 0
}

// Init wires kernel/proc and kernel/sync's per-CPU identification seams to
// this package's LAPIC-id table. Call once every CPU expected to run before
// boot has called RegisterCPU (BSP included, as index 0).
func Init() {
	proc.SetCPUIDFunc(currentIndex)
	sync.SetCPUIDFunc(func() uint32 { return uint32(currentIndex()) })
}

// sendStartupIPI copies the 16-bit real-mode AP trampoline to
// trampolinePhys (which must be below 1 MB) and issues the INIT-SIPI-SIPI
// sequence to targetLAPIC's local APIC. Hand-written assembly, same
// precedent as installIDT and cswitch elsewhere in this module.
func sendStartupIPI(targetLAPIC uint32, trampolinePhys uintptr)

// BootAP starts the application processor registered at index i and blocks
// until it signals readiness via APReady. It busy-waits rather than
// sleeping because no scheduler thread exists yet to represent the caller
// across a voluntary suspension this early in boot.
func BootAP(i int, trampolinePhys uintptr) *kernel.Error {
	if i < 0 || i >= numCPU {
		return errBadCPUIndex
	}
	sendStartupIPI(lapicID[i], trampolinePhys)
	for !booted[i] {
		cpu.Pause()
	}
	return nil
}

// APReady is called by an application processor once it has entered
// protected mode, loaded the kernel's page tables, and is ready to take
// its place in the scheduler's per-CPU idle loop.
func APReady(i int) {
	if i >= 0 && i < MaxCPU {
		booted[i] = true
	}
}
