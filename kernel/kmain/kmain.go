package kmain

import (
	"gophercore/kernel"
	"gophercore/kernel/cpu"
	"gophercore/kernel/goruntime"
	"gophercore/kernel/hal"
	"gophercore/kernel/hal/multiboot"
	"gophercore/kernel/hvm"
	"gophercore/kernel/kfmt"
	"gophercore/kernel/mem/pmm"
	"gophercore/kernel/mem/pmm/allocator"
	"gophercore/kernel/mem/vmm"
	"gophercore/kernel/proc"
	"gophercore/kernel/smp"
	"gophercore/kernel/trap"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// rootContainerQuota is the frame budget handed to the root container at
// boot; every process container is split out of it. Sized generously below
// the user band's frame count so the kernel's own allocations (page
// tables, VM control blocks) can never be starved by process quota.
const rootContainerQuota = 1 << 16

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT and setting up a minimal g0 struct that allows
// Go code using the 4K stack allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided
// by the bootloader as well as the physical addresses for the kernel
// start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	var err *kernel.Error
	if err = pmm.Init(kernelStart, kernelEnd); err != nil {
		panic(err)
	}
	vmm.SetFrameAllocator(allocator.AllocFrame)
	if err = vmm.Init(); err != nil {
		panic(err)
	} else if err = goruntime.Init(); err != nil {
		panic(err)
	}

	hal.DetectHardware()

	pmm.ContainerInit(rootContainerQuota)

	// Per-CPU identification: the BSP registers itself as index 0; APs
	// are registered as the boot topology walk discovers them.
	if _, err = smp.RegisterCPU(cpu.APICID()); err != nil {
		panic(err)
	}
	smp.Init()
	kfmt.SetCPUIDFunc(smp.CurrentIndex)

	wireScheduler()
	wireTraps()

	if err = hvm.Init(); err != nil {
		// A host without SVM/VMX still boots; only createvm/startupvm
		// are unavailable.
		kfmt.Printf("[kmain] hardware virtualization unavailable: %s\n", err.Message)
	}

	proc.SetIdleBanner(func() { kfmt.Printf("idle\n") })
	proc.IdleLoop(0)

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// wireScheduler connects kernel/proc's seams to the subsystems it must not
// import directly: address-space switching and teardown, and the VMM's
// preemption flag.
func wireScheduler() {
	proc.SetPmapLoader(vmm.LoadPmap)
	proc.SetPmapReleaser(vmm.FreePmap)
	proc.RegisterTickHook(func(c, pid int) {
		if vm := trap.VMOwnedBy(pid); vm != nil {
			vm.MarkExitForIntr()
		}
	})
	hvm.SetHaltWaiter(func() {
		cpu.EnableInterrupts()
		cpu.Halt()
		cpu.DisableInterrupts()
	})
}

// wireTraps installs the IDT and connects the dispatcher's collaborator
// seams: CPU identification for the timer tick and console output for the
// puts/getc syscalls.
func wireTraps() {
	trap.Init()
	trap.SetCPUIDFunc(smp.CurrentIndex)
	trap.SetConsoleFuncs(func(p []byte) {
		if w := kfmt.GetOutputSink(); w != nil {
			w.Write(p)
		}
	}, func() (byte, bool) { return 0, false })
}
