// Package trap implements the unified trap dispatcher: exceptions,
// hardware interrupts and the syscall vector all land in the same handful
// of routing functions, which save the interrupted context, route on the
// trap that occurred, and either resume the saved trapframe or install a
// replacement one. kernel/gate only owns the IDT plumbing and the
// Registers layout.
package trap

import (
	"gophercore/kernel"
	"gophercore/kernel/cpu"
	"gophercore/kernel/gate"
	"gophercore/kernel/ipc"
	"gophercore/kernel/kfmt"
	"gophercore/kernel/mem/vmm"
	"gophercore/kernel/proc"
)

// cpuIDFn resolves the calling CPU's small sequential index, same seam
// idiom as kernel/proc and kernel/sync. kernel/smp.Init wires the real
// lookup; tests substitute a constant.
var cpuIDFn = func() int { return 0 }

// SetCPUIDFunc registers the function Tick uses to identify the calling
// CPU when the timer IRQ fires.
func SetCPUIDFunc(fn func() int) { cpuIDFn = fn }

// readCR2Fn reads the faulting linear address off CR2; a seam so page
// fault tests don't depend on real hardware state.
var readCR2Fn = cpu.ReadCR2

// resolveCOWFn gives kernel/mem/vmm's copy-on-write resolver a chance to
// service a page fault silently before it is treated as a real fault; a
// seam since the real resolver depends on an activated pmap/MMU walk.
var resolveCOWFn = vmm.ResolveCopyOnWriteFault

// eoiFn signals end-of-interrupt to the interrupt controller. Programming
// the 8259/IOAPIC belongs to the platform driver layer; left nil (the
// default) it is simply skipped, which is harmless for unit tests that
// never attach a real PIC driver.
var eoiFn func(irq int)

// SetEOIFunc registers the function dispatchIRQ calls after routing a
// non-spurious hardware interrupt.
func SetEOIFunc(fn func(irq int)) { eoiFn = fn }

// irqCallbacks holds the per-line handler registered for IRQ lines other
// than the timer (line 0) and the spurious line (7).
var irqCallbacks [16]func()

// RegisterIRQHandler installs fn as the callback for irq, replacing any
// previous registration. Called once per driver during boot.
func RegisterIRQHandler(irq int, fn func()) {
	if irq >= 0 && irq < len(irqCallbacks) {
		irqCallbacks[irq] = fn
	}
}

// BindIRQToPid is a convenience over RegisterIRQHandler for the common
// driver arrangement: each interrupt on irq posts an MsgIntr message into
// the owning driver pid's message queue.
func BindIRQToPid(irq, ownerPid int) {
	RegisterIRQHandler(irq, func() {
		msg := ipc.Message{Type: ipc.MsgIntr, Size: 1}
		msg.Data[0] = byte(irq)
		_ = ipc.Post(ownerPid, msg)
	})
}

// timerIRQLine and spuriousIRQLine are IRQ-line (not vector) numbers: the
// PIT ticks on line 0 and the 8259 reports spurious interrupts on line 7
// (vector 39).
const (
	timerIRQLine    = 0
	spuriousIRQLine = int(gate.SpuriousVector) - int(gate.IRQ0Vector)
)

// Init wires every IDT vector to this package's dispatch functions:
// exceptions 0-31, IRQ lines 0-15 on vectors 32-47, and the syscall gate
// on vector 48. Each vector's handler closes over its own classification
// (exception number, IRQ line) rather than re-decoding
// gate.Registers.Info, since that field's encoding differs between the
// three trap classes.
func Init() {
	gate.Init()

	for v := 0; v < 32; v++ {
		vec := gate.InterruptNumber(v)
		gate.HandleInterrupt(vec, func(r *gate.Registers) { dispatchException(vec, r) })
	}
	for irq := 0; irq < 16; irq++ {
		vec := gate.InterruptNumber(int(gate.IRQ0Vector) + irq)
		line := irq
		gate.HandleInterrupt(vec, func(r *gate.Registers) { dispatchIRQ(line, r) })
	}
	gate.HandleInterrupt(gate.SyscallVector, dispatchSyscall)
}

// FromUser reports whether r was captured while running at CPL3: the x86
// convention of the low two bits of CS carrying the current privilege
// level. Every downstream decision (kill vs. panic, whether to capture
// uctx) depends on this one test.
func FromUser(r *gate.Registers) bool {
	return r.CS&0x3 != 0
}

// captureUctx copies the trapframe into the current pid's uctx if the
// trap came from user mode; a kernel-mode trapframe is left in place (it
// belongs to the interrupted kernel code path, e.g. a guest-entry loop).
func captureUctx(r *gate.Registers, fromUser bool) *proc.TCB {
	t := proc.Current()
	if t != nil && fromUser {
		t.Uctx = *r
	}
	return t
}

// dispatchException handles CPU exceptions (trap numbers 0-31).
func dispatchException(vec gate.InterruptNumber, r *gate.Registers) {
	fromUser := FromUser(r)
	captureUctx(r, fromUser)

	if vec == gate.PageFaultException {
		handlePageFault(r, fromUser)
		return
	}

	if !fromUser {
		kfmt.Printf("\nunhandled exception %d in kernel mode\n", int(vec))
		r.DumpTo(kfmt.GetOutputSink())
		kfmt.Panic(&kernel.Error{Module: "trap", Message: "fatal exception in kernel mode"})
		return
	}

	killCurrentAndNotify(r)
}

// handlePageFault routes a page fault: user-mode faults kill the process,
// kernel-mode faults are fatal. It first gives kernel/mem/vmm's
// copy-on-write resolver a chance to service the fault silently, which is
// also the path the Go runtime's lazy heap growth takes.
func handlePageFault(r *gate.Registers, fromUser bool) {
	faultAddr := readCR2Fn()

	if err := resolveCOWFn(faultAddr); err == nil {
		return
	}

	if !fromUser {
		kfmt.Printf("\nunrecoverable page fault at %x in kernel mode\n", faultAddr)
		r.DumpTo(kfmt.GetOutputSink())
		kfmt.Panic(&kernel.Error{Module: "trap", Message: "page fault in kernel mode", Errno: kernel.ErrnoPageFault})
		return
	}

	killCurrentAndNotifyAddr(faultAddr)
}

// killCurrentAndNotify is the generic (non-fault) exception-kill path: a
// user-mode exception never propagates past the offender. r.Info carries
// the exception vector, reported in the notification in place of a
// faulting address since ordinary exceptions have none.
func killCurrentAndNotify(r *gate.Registers) {
	killCurrentAndNotifyAddr(uintptr(r.Info))
}

// killCurrentAndNotifyAddr kills the calling thread and, if it has a live
// parent, posts an MsgIntr notification describing the fault. proc.Exit
// never returns: the dead thread's slot is reclaimed the next time the
// scheduler would have dispatched it, so there is no trapframe to resume.
func killCurrentAndNotifyAddr(addr uintptr) {
	pid := proc.CurrentPid()
	if t := proc.Get(pid); t != nil && t.ParentPid != proc.NPROC {
		_ = ipc.PostIntr(t.ParentPid, pid, addr)
	}
	proc.Exit()
}

// dispatchIRQ handles hardware interrupts: the timer line ticks the
// scheduler, the spurious line is swallowed, and every other line routes
// to its registered driver callback after the EOI.
func dispatchIRQ(line int, r *gate.Registers) {
	captureUctx(r, FromUser(r))

	if line == spuriousIRQLine {
		return
	}

	if eoiFn != nil {
		eoiFn(line)
	}

	if line == timerIRQLine {
		proc.Tick(cpuIDFn())
		return
	}

	if cb := irqCallbacks[line]; cb != nil {
		cb()
	}
}
