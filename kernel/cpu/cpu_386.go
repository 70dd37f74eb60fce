package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt.
func Halt()

// Pause executes the PAUSE instruction, a hint to the CPU that the current
// code is spinning on a lock. Used by Spinlock while it busy-waits.
func Pause()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page
// directory.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register, i.e. the faulting
// linear address of the most recent page fault on this CPU.
func ReadCR2() uintptr

// ID returns information about the CPU and its features. It is implemented
// as a CPUID instruction with EAX=leaf and returns the values in EAX, EBX,
// ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// IsAMD returns true if the code is running on an AMD processor. kernel/hvm
// uses this to decide whether to bring up the SVM or the VMX path.
func IsAMD() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x68747541 && // "Auth"
		edx == 0x69746e65 && // "enti"
		ecx == 0x444d4163 // "cAMD"
}

// APICID returns the local APIC id of the CPU this code is currently
// running on, read out of CPUID leaf 1's EBX[31:24]. kernel/smp uses it to
// index the per-CPU table; it does not program the LAPIC itself, which
// remains an external collaborator per the boot protocol.
func APICID() uint32 {
	_, ebx, _, _ := cpuidFn(1)
	return ebx >> 24
}
