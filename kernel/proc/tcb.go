package proc

import (
	"gophercore/kernel"
	"gophercore/kernel/gate"
)

// State is a TCB's position in the state machine: free -> ready (on
// creation) -> run (on dispatch) -> {ready, sleep, dead}.
type State uint8

const (
	// StateFree marks a pool slot that holds no thread.
	StateFree State = iota
	// StateReady marks a thread linked into a ready queue, waiting to
	// be dispatched.
	StateReady
	// StateRun marks the thread currently executing on some CPU.
	StateRun
	// StateSleep marks a thread blocked on a channel wait queue.
	StateSleep
	// StateDead marks a thread that has been killed but not yet
	// reclaimed by pfree_proc.
	StateDead
)

// TCB is a Thread Control Block: per-pid state. prev/next are queue link
// indices, not pointers; `none` (== NPROC) marks "not linked into any
// queue".
type TCB struct {
	state State
	prev  int
	next  int

	cpu int

	Kctx Ctx
	Uctx gate.Registers

	PmapID      int
	ContainerID int

	// ParentPid is the pid that created this thread via Spawn, or none
	// for the boot-time ring0 threads nobody spawned. The page-fault
	// handling policy ("process killed, surfaced to parent via
	// message") delivers its MsgIntr notification here.
	ParentPid int

	// SignalHandlerVA/SignalBufferVA are the user-mode entry point and
	// scratch buffer registered by syscall 5 (signal), which registers
	// an async signal handler. SavedUctx is the trapframe DeliverSignal
	// displaces it with, restored by syscall 6 (sigret): kernel/trap
	// installs this "replacement context".
	SignalHandlerVA uintptr
	SignalBufferVA  uintptr
	SavedUctx       *gate.Registers

	// channel is the wait-queue this TCB is linked into while
	// StateSleep, or -1 if not sleeping on anything.
	channel int

	stack []byte
	entry func()
}

var pool [NPROC]TCB

// currentPid is indexed by CPU id and holds the pid currently running
// there, or none if that CPU is idle. kernel/smp provides the CPU id this
// package's exported functions are implicitly called with via CurrentCPU.
var currentPid [MaxCPU]int

func init() {
	for i := range pool {
		pool[i].prev, pool[i].next, pool[i].channel = none, none, -1
	}
	for c := range currentPid {
		currentPid[c] = none
	}
}

// cpuIDFn returns the id of the CPU executing the caller. kernel/smp wires
// this to its real per-CPU lookup at boot; tests substitute a constant.
var cpuIDFn = func() int { return 0 }

// SetCPUIDFunc registers the function used to identify the calling CPU.
func SetCPUIDFunc(fn func() int) { cpuIDFn = fn }

// Alloc reserves a free TCB slot, marks it StateReady and returns its pid:
// the "free -> ready (on creation)" transition. It does not set up the
// kernel stack or pmap; callers do that via InitKernelStack and the vmm
// package before the pid is ever dispatched.
func Alloc() (int, *kernel.Error) {
	for i := range pool {
		if pool[i].state == StateFree {
			pool[i].state = StateReady
			pool[i].prev, pool[i].next = none, none
			pool[i].channel = -1
			pool[i].cpu = -1
			pool[i].ParentPid = none
			return i, nil
		}
	}
	return none, errNoFreeTCB
}

// SetParent records creatorPid as pid's parent, so a later page-fault kill
// knows where to deliver the MsgIntr notification.
func SetParent(pid, creatorPid int) {
	if t := Get(pid); t != nil {
		t.ParentPid = creatorPid
	}
}

// Get returns the TCB for pid, or nil if pid is out of range or free.
func Get(pid int) *TCB {
	if pid < 0 || pid >= NPROC || pool[pid].state == StateFree {
		return nil
	}
	return &pool[pid]
}

// Alive reports whether pid names a TCB that has been allocated and not
// yet killed or reclaimed. IPC uses this to refuse delivery to a dead
// endpoint.
func Alive(pid int) bool {
	t := Get(pid)
	return t != nil && t.state != StateDead
}

// Current returns the TCB running on the calling CPU, or nil if it is
// idling.
func Current() *TCB {
	pid := currentPid[cpuIDFn()]
	if pid == none {
		return nil
	}
	return &pool[pid]
}

// CurrentPid returns the pid running on the calling CPU, or none.
func CurrentPid() int { return currentPid[cpuIDFn()] }

// CurrentPidOnCPU returns the pid running on the given CPU, or none: the
// syscall 4 (cpustat) query.
func CurrentPidOnCPU(c int) (int, *kernel.Error) {
	if !cpuValid(c) {
		return none, errBadCPU
	}
	return currentPid[c], nil
}

// Start pushes a freshly created (StateReady but not yet scheduled) pid
// onto cpu's ready queue for the first time: the "start" mgmt sub-command,
// which marks a created-but-not-yet-scheduled pid READY. Alloc already
// sets StateReady; Start is the separate step that makes the thread
// eligible for dispatch.
func Start(pid, c int) *kernel.Error {
	t := Get(pid)
	if t == nil || t.state != StateReady {
		return errBadPid
	}
	readyQ[c].PushBack(pid)
	return nil
}

// Kill marks pid StateDead, the cooperative cancellation primitive. Its
// next dispatch path (the scheduler noticing StateDead, see sched.go) must
// skip straight to pfree_proc instead of resuming it.
func Kill(pid int) {
	if t := Get(pid); t != nil {
		t.state = StateDead
	}
}

// pfreeProc reclaims a StateDead TCB's resources and returns its slot to
// StateFree, the "dead -> free" half of the transition that the scheduler
// performs the next time it would have dispatched this pid.
func pfreeProc(pid int) {
	t := &pool[pid]
	t.state = StateFree
	t.prev, t.next, t.channel = none, none, -1
	t.stack = nil
	t.entry = nil
	t.SignalHandlerVA, t.SignalBufferVA, t.SavedUctx = 0, 0, nil
	if freePmapFn != nil {
		freePmapFn(t.PmapID)
	}
}

// freePmapFn lets kernel/trap or kmain wire in vmm.FreePmap without this
// package importing kernel/mem/vmm (which would create an import cycle
// through kernel/mem/vmm -> kernel/proc for pid bookkeeping in a fuller
// build). Left nil it simply skips pmap teardown, which is harmless in
// unit tests that never allocate one.
var freePmapFn func(pid int)

// SetPmapReleaser registers the function pfreeProc uses to release a
// dead thread's page tables.
func SetPmapReleaser(fn func(pid int)) { freePmapFn = fn }

// Exit marks the calling thread StateDead and yields the CPU for the last
// time. dispatch notices StateDead the next time it would otherwise
// resume this thread and reclaims it via pfreeProc instead, per the "its
// next dispatch path must notice DEAD and skip to pfree_proc" cancellation
// clause. Exit never returns.
func Exit() {
	Kill(CurrentPid())
	Yield()
	panic("unreachable: dispatch must not resume a StateDead thread")
}
