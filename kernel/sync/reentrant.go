package sync

import (
	"gophercore/kernel/cpu"
	"sync/atomic"
)

// pauseFn is a seam over cpu.Pause so tests can run the busy-wait loop
// without executing a PAUSE instruction; inlined in production builds.
var pauseFn = cpu.Pause

// ReentrantLock is a spinlock that the CPU already holding it may
// re-acquire without deadlocking itself, built on the same CAS/xchg
// primitive as Spinlock. It exists for the trap path, where a handler
// running on behalf of an interrupted critical section (e.g. console
// output from within the message-queue code) may need to re-enter a lock
// its own CPU already holds.
//
// ownerPlusOne stores the holding CPU's id plus one so the zero value of
// the struct (no explicit init required, matching Spinlock) means "free"
// rather than "held by CPU 0".
type ReentrantLock struct {
	ownerPlusOne uint32
	count        uint32
}

// cpuIDFn returns the id of the CPU currently executing. Tests override it;
// production wires it to kernel/cpu's per-CPU id lookup.
var cpuIDFn = func() uint32 { return 0 }

// SetCPUIDFunc registers the function ReentrantLock uses to identify the
// calling CPU. kernel/smp calls this once per-CPU data is initialized.
func SetCPUIDFunc(fn func() uint32) {
	cpuIDFn = fn
}

// Acquire takes the lock. If the calling CPU already holds it, it just
// increments the re-entry count; only the outermost Release actually frees
// the lock.
func (l *ReentrantLock) Acquire() {
	want := cpuIDFn() + 1

	if atomic.LoadUint32(&l.ownerPlusOne) == want {
		l.count++
		return
	}

	for !atomic.CompareAndSwapUint32(&l.ownerPlusOne, 0, want) {
		pauseFn()
	}
	l.count = 1
}

// Holding reports whether the calling CPU currently holds the lock.
func (l *ReentrantLock) Holding() bool {
	return atomic.LoadUint32(&l.ownerPlusOne) == cpuIDFn()+1
}

// Release relinquishes one level of re-entry. Only when the count reaches
// zero does the lock become available to other CPUs. Calling Release from
// a CPU that does not hold the lock is a caller bug.
func (l *ReentrantLock) Release() {
	l.count--
	if l.count == 0 {
		atomic.StoreUint32(&l.ownerPlusOne, 0)
	}
}
