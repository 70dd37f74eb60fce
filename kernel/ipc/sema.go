package ipc

import (
	"gophercore/kernel"
	"gophercore/kernel/proc"
	"gophercore/kernel/sync"
)

// NSema bounds the fixed pool of named counting semaphores the
// produce/consume syscalls address by id; these are the two syscalls
// named with no behavioral detail beyond their effect.
const NSema = 32

type semaphore struct {
	count   int
	waiters proc.Queue
	lock    sync.Spinlock
	inUse   bool
}

var semas [NSema]semaphore

func init() {
	for i := range semas {
		semas[i].waiters = proc.NewQueue()
	}
}

var errBadSema = &kernel.Error{Module: "ipc", Message: "invalid semaphore id"}

func validSema(sid int) bool { return sid >= 0 && sid < NSema }

// NewSema allocates a counting semaphore initialized to zero.
func NewSema() (int, *kernel.Error) {
	for i := range semas {
		if !semas[i].inUse {
			semas[i] = semaphore{inUse: true}
			semas[i].waiters = proc.NewQueue()
			return i, nil
		}
	}
	return -1, errBadSema
}

// Produce increments sid's count and, if a thread is waiting, wakes
// exactly one waiter, layered directly over kernel/proc's wait-queue
// mechanism.
func Produce(sid int) *kernel.Error {
	if !validSema(sid) {
		return errBadSema
	}
	s := &semas[sid]

	s.lock.Acquire()
	s.count++
	if !s.waiters.Empty() {
		waiter := s.waiters.PopFront()
		s.lock.Release()
		proc.WakeOne(waiter)
		return nil
	}
	s.lock.Release()
	return nil
}

// Consume blocks while sid's count is zero, then decrements it.
func Consume(sid int) *kernel.Error {
	if !validSema(sid) {
		return errBadSema
	}
	s := &semas[sid]

	s.lock.Acquire()
	for s.count == 0 {
		proc.Sleep(&s.waiters, s.lock.Release)
		s.lock.Acquire()
	}
	s.count--
	s.lock.Release()
	return nil
}
