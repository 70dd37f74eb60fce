package ipc

import (
	"gophercore/kernel/proc"
	"testing"
)

func resetChannelsForTest() {
	for i := range channels {
		channels[i] = Channel{}
		channels[i].senderWaiters = proc.NewQueue()
		channels[i].receiverWaiters = proc.NewQueue()
	}
	for i := range channelBySender {
		channelBySender[i] = -1
	}
}

func TestSendRecvOrdering(t *testing.T) {
	resetChannelsForTest()

	owner, err := proc.Alloc()
	if err != nil {
		t.Fatalf("unexpected error allocating owner pid: %v", err)
	}

	chid, err := NewChannel(owner)
	if err != nil {
		t.Fatalf("unexpected error creating channel: %v", err)
	}

	if err := Send(chid, 1); err != nil {
		t.Fatalf("unexpected error on first send: %v", err)
	}
	if err := Send(chid, 2); err != nil {
		t.Fatalf("unexpected error on second send: %v", err)
	}

	w1, err := Recv(chid)
	if err != nil || w1 != 1 {
		t.Fatalf("expected (1, nil), got (%d, %v)", w1, err)
	}
	w2, err := Recv(chid)
	if err != nil || w2 != 2 {
		t.Fatalf("expected (2, nil), got (%d, %v)", w2, err)
	}
}

func TestSendToInvalidChannel(t *testing.T) {
	resetChannelsForTest()

	if err := Send(3, 42); err == nil {
		t.Fatal("expected E_INVAL_PID sending to a channel nobody created")
	}
}

func TestSendToDeadOwnerFails(t *testing.T) {
	resetChannelsForTest()

	owner, _ := proc.Alloc()
	chid, err := NewChannel(owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proc.Kill(owner)

	if err := Send(chid, 1); err == nil {
		t.Fatal("expected send to a dead owner pid to fail with E_INVAL_PID")
	}
}

func TestClosedChannelRecv(t *testing.T) {
	resetChannelsForTest()

	owner, _ := proc.Alloc()
	chid, _ := NewChannel(owner)
	Close(chid)

	if _, err := Recv(chid); err == nil {
		t.Fatal("expected recv on a closed, empty channel to fail with E_IPC")
	}
}

func TestSRecvResolvesBySenderPid(t *testing.T) {
	resetChannelsForTest()

	owner, _ := proc.Alloc()
	sender, _ := proc.Alloc()
	chid, _ := NewChannel(owner)

	if _, err := SSend(chid, []uint32{10, 20, 30}); err != nil {
		t.Fatalf("unexpected ssend error: %v", err)
	}

	// SSend ran as whatever pid CurrentPid() reports (0 under the
	// default cpuIDFn/currentPid test wiring); bind channelBySender
	// explicitly to exercise the srecv(pid, ...) addressing contract
	// regardless of which pid actually issued the sends in this test.
	channelBySender[sender] = chid

	buf := make([]uint32, 3)
	n, err := SRecv(sender, buf)
	if err != nil {
		t.Fatalf("unexpected srecv error: %v", err)
	}
	if n != 3 || buf[0] != 10 || buf[1] != 20 || buf[2] != 30 {
		t.Fatalf("expected [10 20 30], got %v (n=%d)", buf, n)
	}
}

func TestMsgQueuePostPopFIFO(t *testing.T) {
	pid, _ := proc.Alloc()
	msgQueues[pid] = MsgQueue{}

	if err := Post(pid, Message{Type: MsgUser, Size: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Post(pid, Message{Type: MsgIntr, Size: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m1, ok := Pop(pid)
	if !ok || m1.Type != MsgUser {
		t.Fatalf("expected first message to be MsgUser, got %+v ok=%v", m1, ok)
	}
	m2, ok := Pop(pid)
	if !ok || m2.Type != MsgIntr {
		t.Fatalf("expected second message to be MsgIntr, got %+v ok=%v", m2, ok)
	}
	if _, ok := Pop(pid); ok {
		t.Fatal("expected queue to be empty")
	}
}

func TestMsgQueueFullReturnsError(t *testing.T) {
	pid, _ := proc.Alloc()
	msgQueues[pid] = MsgQueue{}

	for i := 0; i < NMSG; i++ {
		if err := Post(pid, Message{}); err != nil {
			t.Fatalf("unexpected error at message %d: %v", i, err)
		}
	}
	if err := Post(pid, Message{}); err == nil {
		t.Fatal("expected E_MEM once the ring is full")
	}
}

func TestProduceWakesWaiterAndConsumeDecrements(t *testing.T) {
	sid, err := NewSema()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := Produce(sid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if semas[sid].count != 1 {
		t.Fatalf("expected count 1 after one produce, got %d", semas[sid].count)
	}

	if err := Consume(sid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if semas[sid].count != 0 {
		t.Fatalf("expected count 0 after consume, got %d", semas[sid].count)
	}
}
