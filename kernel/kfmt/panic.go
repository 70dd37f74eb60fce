package kfmt

import (
	"gophercore/kernel"
	"gophercore/kernel/cpu"
)

var (
	// cpuHaltFn and disableInterruptsFn are mocked by tests and are
	// automatically inlined by the compiler.
	cpuHaltFn           = cpu.Halt
	disableInterruptsFn = cpu.DisableInterrupts

	// cpuIDFn reports which CPU is panicking. Only the panicking CPU is
	// halted; the others keep running, so the banner has to say which
	// one died. kernel/smp wires the real lookup at boot.
	cpuIDFn = func() int { return 0 }

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// SetCPUIDFunc registers the function Panic uses to identify the halting
// CPU, same seam idiom as kernel/proc and kernel/trap.
func SetCPUIDFunc(fn func() int) { cpuIDFn = fn }

// Panic outputs the supplied error (if not nil) to the console and halts the
// calling CPU with interrupts disabled, leaving any other CPUs running.
// Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic)
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: CPU %d halted ***", cpuIDFn())
	Printf("\n-----------------------------------\n")

	disableInterruptsFn()
	cpuHaltFn()
}

// panicString serves as a redirect target for runtime.throw
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
