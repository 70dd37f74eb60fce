package proc

import (
	"reflect"
	"unsafe"
)

// threadTrampoline is the landing pad a freshly created TCB's first
// cswitch resumes into. It is a thin architecture shim: all it does is
// call runThreadEntry, which reads the running TCB's stored entry
// function out of Go-land and invokes it, then tears the thread down if
// the entry ever returns.
//
// Declaring it as an ordinary zero-arg Go function and taking its code
// address via reflect (see InitKernelStack) means the synthetic frame is
// just "make EIP point at this function and EBP/ESP point at a fresh
// stack" — no per-entry-point assembly is needed.
func threadTrampoline() {
	runThreadEntry()
}

// runThreadEntry is called by threadTrampoline on the new thread's own
// stack. It is a seam so tests can exercise the dispatch path without a
// real architecture switch.
var runThreadEntryFn = func() {
	t := Current()
	if t == nil || t.entry == nil {
		return
	}
	t.entry()
	Exit()
}

func runThreadEntry() { runThreadEntryFn() }

// InitKernelStack allocates t's 4 KB kernel stack and writes the synthetic
// frame that makes the next cswitch into t resume inside threadTrampoline
// with a clean register set (kstack_init_proc(p, entry)).
func InitKernelStack(t *TCB, entry func()) {
	t.stack = make([]byte, KStackSize)
	t.entry = entry

	top := uintptr(unsafe.Pointer(&t.stack[0])) + uintptr(len(t.stack))

	t.Kctx = Ctx{
		ESP: uint32(top),
		EBP: uint32(top),
		EIP: uint32(reflect.ValueOf(threadTrampoline).Pointer()),
	}
}
