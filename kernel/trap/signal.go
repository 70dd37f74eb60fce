package trap

import (
	"gophercore/kernel"
	"gophercore/kernel/proc"
)

// errNoHandler is returned when DeliverSignal targets a pid that never
// issued the `signal` syscall.
var errNoHandler = &kernel.Error{Module: "trap", Message: "no signal handler registered", Errno: kernel.ErrnoDisallowed}

// DeliverSignal diverts pid's next dispatch to the handler it registered
// via the `signal` syscall, saving its current trapframe so a later
// `sigret` can restore it: the "installs a new context" half of the
// trap-return contract, driven explicitly by whoever has a signal to
// deliver rather than off an IRQ or message arrival.
//
// pid must not be the calling thread: a thread cannot redirect its own
// currently-executing trapframe out from under itself mid-syscall.
func DeliverSignal(pid int) *kernel.Error {
	t := proc.Get(pid)
	if t == nil {
		return &kernel.Error{Module: "trap", Message: "invalid pid", Errno: kernel.ErrnoInvalidPid}
	}
	if t.SignalHandlerVA == 0 {
		return errNoHandler
	}
	if t.SavedUctx != nil {
		return &kernel.Error{Module: "trap", Message: "signal already pending", Errno: kernel.ErrnoDisallowed}
	}

	saved := t.Uctx
	t.SavedUctx = &saved

	t.Uctx.EIP = uint32(t.SignalHandlerVA)
	t.Uctx.ESP = uint32(t.SignalBufferVA)
	t.Uctx.EBP = uint32(t.SignalBufferVA)
	return nil
}
