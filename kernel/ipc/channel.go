package ipc

import (
	"gophercore/kernel"
	"gophercore/kernel/proc"
	"gophercore/kernel/sync"
)

const (
	// NCHAN bounds the channel pool: the Chid glossary entry, "slot
	// index into the channel pool".
	NCHAN = 64

	// ChannelCapacity is the fixed small-payload ring size: a channel
	// is a fixed-capacity small-payload ring.
	ChannelCapacity = 8
)

// Channel is a fixed-capacity synchronous rendezvous buffer: component I.
// It is addressed by its slot index (chid) rather than by pointer, per
// the arena+index design.
type Channel struct {
	inUse  bool
	closed bool

	// ownerPid is the receiver the channel is bound to; sending to a
	// channel whose owner has died fails with E_INVAL_PID.
	ownerPid int

	buf               [ChannelCapacity]uint32
	head, tail, count int

	senderWaiters   proc.Queue
	receiverWaiters proc.Queue

	lock sync.Spinlock
}

var (
	channels [NCHAN]Channel

	// channelBySender maps a sending pid to the channel it last sent a
	// word on. It exists to resolve srecv(pid, buf, n) addressing, which
	// names the sender's pid rather than a chid (see DESIGN.md for why:
	// the reference scenarios address srecv by the peer's pid, not by
	// channel handle).
	channelBySender [proc.NPROC]int
)

func init() {
	for i := range channelBySender {
		channelBySender[i] = -1
	}
}

func validChannel(chid int) bool {
	return chid >= 0 && chid < NCHAN && channels[chid].inUse
}

// NewChannel allocates a free channel slot bound to ownerPid (the intended
// receiver) and returns its chid.
func NewChannel(ownerPid int) (int, *kernel.Error) {
	for i := range channels {
		if !channels[i].inUse {
			channels[i] = Channel{inUse: true, ownerPid: ownerPid}
			channels[i].senderWaiters = proc.NewQueue()
			channels[i].receiverWaiters = proc.NewQueue()
			return i, nil
		}
	}
	return -1, errNoChannels
}

// Close marks chid closed; any thread currently blocked in Send or Recv on
// it observes E_IPC instead of blocking indefinitely.
func Close(chid int) {
	if !validChannel(chid) {
		return
	}
	ch := &channels[chid]
	ch.lock.Acquire()
	ch.closed = true
	ch.lock.Release()
	proc.Wakeup(&ch.senderWaiters)
	proc.Wakeup(&ch.receiverWaiters)
}

// Send delivers word on chid. If the ring is full it blocks until the
// receiver drains room for it.
func Send(chid int, word uint32) *kernel.Error {
	if !validChannel(chid) {
		return errInvalidPid
	}
	ch := &channels[chid]

	ch.lock.Acquire()
	for {
		if ch.closed {
			ch.lock.Release()
			return errClosed
		}
		if !proc.Alive(ch.ownerPid) {
			ch.lock.Release()
			return errInvalidPid
		}
		if ch.count < ChannelCapacity {
			break
		}
		proc.Sleep(&ch.senderWaiters, ch.lock.Release)
		ch.lock.Acquire()
	}

	ch.buf[ch.tail] = word
	ch.tail = (ch.tail + 1) % ChannelCapacity
	ch.count++

	sender := proc.CurrentPid()
	if sender >= 0 && sender < proc.NPROC {
		channelBySender[sender] = chid
	}

	if !ch.receiverWaiters.Empty() {
		waiter := ch.receiverWaiters.PopFront()
		ch.lock.Release()
		proc.WakeOne(waiter)
		return nil
	}
	ch.lock.Release()
	return nil
}

// Recv blocks until a word is available on chid and returns it.
func Recv(chid int) (uint32, *kernel.Error) {
	if !validChannel(chid) {
		return 0, errInvalidPid
	}
	ch := &channels[chid]

	ch.lock.Acquire()
	for {
		if ch.count > 0 {
			break
		}
		if ch.closed {
			ch.lock.Release()
			return 0, errClosed
		}
		proc.Sleep(&ch.receiverWaiters, ch.lock.Release)
		ch.lock.Acquire()
	}

	word := ch.buf[ch.head]
	ch.head = (ch.head + 1) % ChannelCapacity
	ch.count--

	if !ch.senderWaiters.Empty() {
		waiter := ch.senderWaiters.PopFront()
		ch.lock.Release()
		proc.WakeOne(waiter)
		return word, nil
	}
	ch.lock.Release()
	return word, nil
}

// SSend copies words[0:n] onto chid one at a time, blocking as needed, and
// returns the number actually moved before the first error (if any).
// Ordering within a single sender is preserved because each word is a
// separate, strictly ordered Send.
func SSend(chid int, words []uint32) (int, *kernel.Error) {
	for i, w := range words {
		if err := Send(chid, w); err != nil {
			return i, err
		}
	}
	return len(words), nil
}

// SRecv receives up to len(words) words sent by fromPid into words and
// returns the count actually moved. It addresses the sender by pid rather
// than by chid, per the reference scenarios.
func SRecv(fromPid int, words []uint32) (int, *kernel.Error) {
	if fromPid < 0 || fromPid >= proc.NPROC {
		return 0, errInvalidPid
	}
	chid := channelBySender[fromPid]
	if chid == -1 {
		return 0, errInvalidPid
	}

	for i := range words {
		w, err := Recv(chid)
		if err != nil {
			return i, err
		}
		words[i] = w
	}
	return len(words), nil
}
