package proc

// Queue is a doubly-linked list of TCBs expressed as indices into the
// shared pool array (two indices {head, tail} into the TCB pool, with
// head == tail == NPROC meaning empty), following the "replace
// pointer-linked structures with arena + index" design. A TCB is linked
// into at most one Queue at a time; Queue itself does not enforce that —
// callers must not push a TCB that is already linked elsewhere.
type Queue struct {
	head int
	tail int
}

// NewQueue returns an empty queue.
func NewQueue() Queue { return Queue{head: none, tail: none} }

// Empty reports whether the queue holds no TCBs.
func (q *Queue) Empty() bool { return q.head == none }

// PushBack links pid onto the tail of the queue.
func (q *Queue) PushBack(pid int) {
	t := &pool[pid]
	t.next = none
	t.prev = q.tail

	if q.tail != none {
		pool[q.tail].next = pid
	} else {
		q.head = pid
	}
	q.tail = pid
}

// PopFront unlinks and returns the pid at the head of the queue, or none
// if the queue is empty.
func (q *Queue) PopFront() int {
	pid := q.head
	if pid == none {
		return none
	}
	q.Remove(pid)
	return pid
}

// Remove unlinks pid from the queue. pid must currently be linked into
// this queue; removing a pid that is not present corrupts unrelated
// queues and is a caller bug — the invariant that a TCB appears in at
// most one queue is what makes this safe in practice.
func (q *Queue) Remove(pid int) {
	t := &pool[pid]

	if t.prev != none {
		pool[t.prev].next = t.next
	} else {
		q.head = t.next
	}

	if t.next != none {
		pool[t.next].prev = t.prev
	} else {
		q.tail = t.prev
	}

	t.prev, t.next = none, none
}

// Len counts the TCBs linked into the queue. O(n); used only by tests and
// the quiescent-point invariant checker, never on a hot path.
func (q *Queue) Len() int {
	n := 0
	for pid := q.head; pid != none; pid = pool[pid].next {
		n++
	}
	return n
}
