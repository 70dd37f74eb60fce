package ipc

import (
	"gophercore/kernel"
	"gophercore/kernel/proc"
	"gophercore/kernel/sync"
)

const (
	// NMSG bounds each process's message ring: a per-process bounded
	// ring of NMSG messages.
	NMSG = 16

	// msgDataSize is sized so a Message fits in one page once its header
	// fields are accounted for (data[PAGE_SIZE - hdr]).
	msgDataSize = 4096 - 16
)

// MsgType distinguishes a user-posted message from a kernel-synthesized
// one (e.g. the page-fault notification below).
type MsgType uint8

const (
	// MsgUser is a message one user process posted to another.
	MsgUser MsgType = iota
	// MsgIntr is a kernel-synthesized notification, such as the
	// MSG_INTR fault report parents receive.
	MsgIntr
)

// Message is one entry in a process's message queue:
// `{type: {user, intr}, size, data[PAGE_SIZE - hdr]}`.
type Message struct {
	Type MsgType
	Size int
	Data [msgDataSize]byte
}

// MsgQueue is a per-process bounded ring buffer of Messages, protected by
// its own spinlock. This is the locked message-queue implementation kept
// over the unlocked variant (see DESIGN.md's Open Question resolution).
type MsgQueue struct {
	buf               [NMSG]Message
	head, tail, count int
	lock              sync.Spinlock
}

var msgQueues [proc.NPROC]MsgQueue

// Post pushes msg onto pid's message queue — the same path that pushes an
// INTR message into the owning driver pid's message queue, generalized to
// any message type. It fails with E_MEM if the ring is full rather than
// blocking, since IRQ context and the page-fault handler cannot sleep (no
// other kernel operation may block).
func Post(pid int, msg Message) *kernel.Error {
	if pid < 0 || pid >= proc.NPROC {
		return errInvalidPid
	}
	q := &msgQueues[pid]

	q.lock.Acquire()
	defer q.lock.Release()

	if q.count == NMSG {
		return errQueueFull
	}

	q.buf[q.tail] = msg
	q.tail = (q.tail + 1) % NMSG
	q.count++
	return nil
}

// Pop removes and returns the oldest message queued for pid, or ok=false
// if the queue is empty.
func Pop(pid int) (Message, bool) {
	if pid < 0 || pid >= proc.NPROC {
		return Message{}, false
	}
	q := &msgQueues[pid]

	q.lock.Acquire()
	defer q.lock.Release()

	if q.count == 0 {
		return Message{}, false
	}

	msg := q.buf[q.head]
	q.head = (q.head + 1) % NMSG
	q.count--
	return msg, true
}

// PostIntr is the page-fault-kill notification path: it wraps the
// faulting pid and address into a MsgIntr message for parentPid.
// kernel/trap calls this when a user-mode exception kills a process.
func PostIntr(parentPid, faultedPid int, faultAddr uintptr) *kernel.Error {
	var msg Message
	msg.Type = MsgIntr
	msg.Size = 16
	msg.Data[0] = byte(faultedPid)
	msg.Data[1] = byte(faultedPid >> 8)
	for i := 0; i < 8; i++ {
		msg.Data[2+i] = byte(faultAddr >> (8 * uint(i)))
	}
	return Post(parentPid, msg)
}
