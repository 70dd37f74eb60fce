package gate

import (
	"gophercore/kernel/kfmt"
	"io"
)

// Registers contains a snapshot of all register values when an exception,
// interrupt or syscall occurs. The layout matches the order pushed by the
// entry stubs in interruptGateEntries so that a *Registers can be obtained
// by simply reinterpreting the kernel stack pointer at trap time.
type Registers struct {
	// Segment selectors, pushed by the entry stub before the general
	// purpose registers so user-mode segments survive a ring transition.
	GS uint32
	FS uint32
	ES uint32
	DS uint32

	// General purpose registers, pushed in PUSHA order.
	EDI uint32
	ESI uint32
	EBP uint32
	_   uint32 // ESP as pushed by PUSHA; unused, see the Frame's ESP instead
	EBX uint32
	EDX uint32
	ECX uint32
	EAX uint32

	// Info contains the exception code for exceptions, the syscall number
	// for syscall entries or the IRQ number for HW interrupts.
	Info uint32

	// ErrorCode is the CPU-pushed error code for the exceptions that carry
	// one (double fault, invalid TSS, segment faults, GPF, page fault); it
	// is 0 for every other interrupt number.
	ErrorCode uint32

	// The return frame used by IRETD.
	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "EAX = %8x EBX = %8x ECX = %8x EDX = %8x\n", r.EAX, r.EBX, r.ECX, r.EDX)
	kfmt.Fprintf(w, "ESI = %8x EDI = %8x EBP = %8x\n", r.ESI, r.EDI, r.EBP)
	kfmt.Fprintf(w, "DS = %8x ES = %8x FS = %8x GS = %8x\n", r.DS, r.ES, r.FS, r.GS)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "Info = %8x ErrorCode = %8x\n", r.Info, r.ErrorCode)
	kfmt.Fprintf(w, "EIP = %8x CS = %8x\n", r.EIP, r.CS)
	kfmt.Fprintf(w, "ESP = %8x SS = %8x\n", r.ESP, r.SS)
	kfmt.Fprintf(w, "EFL = %8x\n", r.EFlags)
}

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems. It may also be
	// raised by the CPU when a watchdog timer is enabled.
	NMI = InterruptNumber(2)

	// Overflow occurs when an overflow occurs (e.g result of division
	// cannot fit into the registers used).
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available or while
	// FPU/MMX/SSE support has been disabled by manipulating the CR0
	// register.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when the CPU attempts to invoke a present
	// gate with an invalid stack segment selector.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when attempting to push/pop from an
	// invalid stack address or when the stack base/limit (set in the GDT)
	// checks fail.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails. kernel/trap reads CR2 via cpu.ReadCR2 and
	// r.ErrorCode to decide between extending the address space and
	// killing the faulting process.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs while invoking an FP instruction
	// while CR0.NE = 1 or an unmasked FP exception is pending.
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set to 1. If the OSXMMEXCPT bit is
	// not set, SIMD FP exceptions cause InvalidOpcode exceptions instead.
	SIMDFloatingPointException = InterruptNumber(19)

	// SyscallVector is the software interrupt vector user-mode code uses
	// to enter the kernel; kernel/trap installs the syscall table handler
	// on this vector with HandleInterrupt.
	SyscallVector = InterruptNumber(48)

	// IRQ0Vector is the vector IRQ 0 is remapped to, covering the
	// "32..47 IRQ 0..15" range. kernel/trap adds the IRQ line number to
	// this base to route a hardware interrupt.
	IRQ0Vector = InterruptNumber(32)

	// TimerVector is the vector the PIT/LAPIC timer IRQ is remapped to;
	// kernel/proc's scheduler ticks from this handler.
	TimerVector = InterruptNumber(32)

	// SpuriousVector is IRQ 7 (IRQ0Vector+7), the PIC's spurious
	// interrupt line, vector 39.
	SpuriousVector = InterruptNumber(39)
)

// Init runs the appropriate CPU-specific initialization code for enabling
// support for interrupt handling.
func Init() {
	installIDT()
}

// HandleInterrupt ensures that the provided handler will be invoked when a
// particular interrupt number occurs.
func HandleInterrupt(intNumber InterruptNumber, handler func(*Registers))

// installIDT populates idtDescriptor with the address of the IDT and loads
// it into the CPU. All gate entries are initially marked as non-present and
// must be explicitly enabled via a call to HandleInterrupt.
func installIDT()

// dispatchInterrupt is invoked by the interrupt gate entrypoints to route
// an incoming interrupt to the selected handler.
func dispatchInterrupt()

// interruptGateEntries contains a list of generated entries for each
// possible interrupt number.
func interruptGateEntries()
