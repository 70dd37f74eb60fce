package proc

import (
	"gophercore/kernel"
	"gophercore/kernel/cpu"
)

var (
	readyQ [MaxCPU]Queue

	// idleCtx is the context each CPU's boot thread cswitches out of the
	// very first time dispatch runs there; it is never itself pushed
	// onto a ready queue — "if the ready queue is empty the CPU idles"
	// is handled as the dispatcher's own fallback rather than a
	// dedicated idle TCB.
	idleCtx [MaxCPU]Ctx

	enableInterruptsFn  = cpu.EnableInterrupts
	disableInterruptsFn = cpu.DisableInterrupts
	haltFn              = cpu.Halt

	// loadPmapFn lets kmain wire in vmm.LoadPmap without this package
	// importing kernel/mem/vmm. Left nil, dispatch simply skips the
	// address-space switch (harmless for ring0-only unit tests).
	loadPmapFn func(pmapID int)

	// tickHooks run at the start of every preemption, in registration
	// order. kernel/hvm registers one to set a VM's exit_for_intr flag:
	// on a CPU running a VCPU, the tick also sets the VM's exit_for_intr
	// flag so the next VM-entry short-circuits.
	tickHooks []func(cpu, pid int)
)

func init() {
	for c := range readyQ {
		readyQ[c] = NewQueue()
	}
}

// SetPmapLoader registers the function dispatch uses to switch address
// spaces when a thread is scheduled onto a CPU.
func SetPmapLoader(fn func(pmapID int)) { loadPmapFn = fn }

// RegisterTickHook adds a callback invoked on every preemption, after the
// preempted thread has been identified but before the next one is
// dispatched.
func RegisterTickHook(fn func(cpu, pid int)) {
	tickHooks = append(tickHooks, fn)
}

func cpuValid(c int) bool { return c >= 0 && c < MaxCPU }

// ReadyLen returns the number of TCBs currently linked into cpu's ready
// queue; used by queue-invariant property tests.
func ReadyLen(c int) (int, *kernel.Error) {
	if !cpuValid(c) {
		return 0, errBadCPU
	}
	return readyQ[c].Len(), nil
}

// dispatch picks the next ready thread for cpu, switching away from
// fromCtx into it. If no thread is ready it idles in an
// interrupt-enabled hlt loop. It returns once the thread it switched
// into later switches back to fromCtx (via Yield, Sleep, or a subsequent
// Tick's preemption of that same thread).
func dispatch(c int, fromCtx *Ctx) {
	for {
		pid := readyQ[c].PopFront()
		if pid == none {
			enableInterruptsFn()
			haltFn()
			disableInterruptsFn()
			continue
		}

		t := &pool[pid]
		if t.state == StateDead {
			pfreeProc(pid)
			continue
		}

		t.state = StateRun
		t.cpu = c
		currentPid[c] = pid
		if loadPmapFn != nil {
			loadPmapFn(t.PmapID)
		}

		cswitch(fromCtx, &t.Kctx)
		return
	}
}

// IdleLoop is the per-CPU boot thread's body: it never returns. kernel/smp
// calls it once per CPU, after that CPU's own bootstrap context has been
// recorded, to hand control to the scheduler.
func IdleLoop(c int) {
	idlePrintFn()
	for {
		dispatch(c, &idleCtx[c])
	}
}

// idlePrintFn prints the boot idle-thread banner; a seam so tests don't
// depend on a console sink being attached.
var idlePrintFn = func() {}

// SetIdleBanner registers the function IdleLoop runs once before its first
// dispatch; kmain wires it to print the boot idle banner.
func SetIdleBanner(fn func()) { idlePrintFn = fn }

// Yield voluntarily gives up the CPU. The caller is moved to StateReady
// and pushed to the tail of its own CPU's ready queue; control returns
// here once the scheduler dispatches this thread again.
func Yield() {
	c := cpuIDFn()
	t := Current()
	if t == nil {
		return
	}
	pid := currentPid[c]

	// A thread that called Exit has already been marked StateDead by
	// Kill; leave that alone so dispatch reclaims it via pfreeProc
	// instead of resuming it, per the cooperative cancellation clause.
	if t.state != StateDead {
		t.state = StateReady
	}
	readyQ[c].PushBack(pid)
	currentPid[c] = none

	dispatch(c, &t.Kctx)
}

// Sleep moves the caller to StateSleep, links it onto waitQ and yields the
// CPU. waitQ is typically a channel or message queue's wait list, owned
// by kernel/ipc.
//
// unlock, if non-nil, is called after the caller is linked into waitQ but
// before control is switched away. This is the classic "sleep releases the
// caller's lock" pattern (mirrored from the monitor-style wait used by
// Send/Recv/Produce/Consume in kernel/ipc): the caller must still be
// holding whatever lock protects the condition it is waiting on when it
// calls Sleep, so that a concurrent Wakeup cannot run between the
// condition check and the enqueue and miss this waiter. Passing unlock
// lets Sleep release that lock only once the waiter is safely linked in,
// instead of forcing every caller to duplicate this ordering.
func Sleep(waitQ *Queue, unlock func()) {
	c := cpuIDFn()
	t := Current()
	if t == nil {
		return
	}
	pid := currentPid[c]

	t.state = StateSleep
	waitQ.PushBack(pid)
	currentPid[c] = none

	if unlock != nil {
		unlock()
	}

	dispatch(c, &t.Kctx)
}

// Wakeup moves every TCB linked into waitQ back to StateReady, onto the
// tail of the calling CPU's ready queue, preserving the FIFO order of
// waitQ — the fairness guarantee that wake order is FIFO over the waiter
// queue.
func Wakeup(waitQ *Queue) {
	c := cpuIDFn()
	for !waitQ.Empty() {
		pid := waitQ.PopFront()
		pool[pid].state = StateReady
		readyQ[c].PushBack(pid)
	}
}

// WakeOne moves a single pid (previously popped from some wait queue by the
// caller, e.g. kernel/ipc's semaphore wait list) back to StateReady on the
// tail of the calling CPU's ready queue. Used where the supplemented
// produce/consume semantics call for waking exactly one waiter rather than
// every thread on a queue.
func WakeOne(pid int) {
	pool[pid].state = StateReady
	readyQ[cpuIDFn()].PushBack(pid)
}

// Tick is called from the timer IRQ handler (kernel/trap) once per timer
// interval. It preempts the running thread at most once per call, pushing
// it to the tail of its own CPU's ready queue and dispatching a new head.
func Tick(c int) {
	pid := currentPid[c]
	if pid == none {
		return
	}
	t := &pool[pid]

	for _, hook := range tickHooks {
		hook(c, pid)
	}

	t.state = StateReady
	readyQ[c].PushBack(pid)
	currentPid[c] = none

	dispatch(c, &t.Kctx)
}
