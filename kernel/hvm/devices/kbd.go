package devices

import (
	"gophercore/kernel/hvm/iodev"
	"gophercore/kernel/sync"
)

const (
	kbdDataPort   = 0x60
	kbdStatusPort = 0x64 // read: status register, write: command register
)

// PS/2 controller status register bits (port 0x64 reads).
const (
	kbdStatusOutputFull = 1 << 0 // a byte is waiting at port 0x60
	kbdStatusAuxData    = 1 << 5 // the waiting byte came from the mouse
)

// ps2Substate is the event queue one PS/2 device (keyboard or mouse)
// contributes to the controller's shared output buffer: the scancode or
// packet FIFO whose bytes the guest drains through port 0x60.
type ps2Substate struct {
	buf        []uint8
	head, tail int
}

func (s *ps2Substate) push(b uint8) {
	if len(s.buf) == 0 {
		s.buf = make([]uint8, 16)
	}
	s.buf[s.tail%len(s.buf)] = b
	s.tail++
	if s.tail-s.head > len(s.buf) {
		s.head = s.tail - len(s.buf)
	}
}

func (s *ps2Substate) empty() bool { return s.head == s.tail }

func (s *ps2Substate) pop() (uint8, bool) {
	if s.empty() {
		return 0, false
	}
	b := s.buf[s.head%len(s.buf)]
	s.head++
	return b, true
}

// KBD virtualizes the i8042 PS/2 controller as seen by a guest OS:
// bidirectional command/data ports, the controller's mode (command) byte,
// and a pending-event latch distinguishing keyboard from mouse substates.
type KBD struct {
	lock sync.Spinlock

	writeCmd uint8 // last command byte written to port 0x64, awaiting its data byte
	mode     uint8 // controller command byte (port 0x60 after a 0x20/0x60 command)

	kbd   ps2Substate
	mouse ps2Substate
}

// NewKBD constructs a KBD and registers its two ports into t.
func NewKBD(t *iodev.Table) *KBD {
	k := &KBD{}

	t.RegisterRead(kbdDataPort, iodev.Width8, func() uint32 {
		k.lock.Acquire()
		defer k.lock.Release()
		return uint32(k.readData())
	})
	t.RegisterWrite(kbdDataPort, iodev.Width8, func(v uint32) {
		k.lock.Acquire()
		defer k.lock.Release()
		k.writeData(uint8(v))
	})
	t.RegisterRead(kbdStatusPort, iodev.Width8, func() uint32 {
		k.lock.Acquire()
		defer k.lock.Release()
		return uint32(k.readStatus())
	})
	t.RegisterWrite(kbdStatusPort, iodev.Width8, func(v uint32) {
		k.lock.Acquire()
		defer k.lock.Release()
		k.writeCommand(uint8(v))
	})

	return k
}

func (k *KBD) readStatus() uint8 {
	var st uint8
	if !k.kbd.empty() {
		st |= kbdStatusOutputFull
	} else if !k.mouse.empty() {
		st |= kbdStatusOutputFull | kbdStatusAuxData
	}
	return st
}

func (k *KBD) writeCommand(cmd uint8) {
	switch cmd {
	case 0x20: // read controller command byte
		k.kbd.push(k.mode)
	case 0x60: // write controller command byte: next data-port byte is it
		k.writeCmd = 0x60
	default:
		k.writeCmd = cmd
	}
}

func (k *KBD) writeData(val uint8) {
	if k.writeCmd == 0x60 {
		k.mode = val
		k.writeCmd = 0
		return
	}
	// A byte written to the data port with no pending controller command
	// is a keyboard command (e.g. 0xed set-LEDs); acknowledge it.
	k.kbd.push(0xfa)
}

func (k *KBD) readData() uint8 {
	if b, ok := k.kbd.pop(); ok {
		return b
	}
	if b, ok := k.mouse.pop(); ok {
		return b
	}
	return 0
}

// PostScancode queues a keyboard scancode for the guest to read off port
// 0x60, called by the host keyboard IRQ handler when it hands a raw
// scancode to the VM it is currently bound to.
func (k *KBD) PostScancode(code uint8) {
	k.lock.Acquire()
	defer k.lock.Release()
	k.kbd.push(code)
}

// PostMousePacket queues a mouse packet byte for the guest.
func (k *KBD) PostMousePacket(b uint8) {
	k.lock.Acquire()
	defer k.lock.Release()
	k.mouse.push(b)
}

// HasPending reports whether a keyboard or mouse byte is queued.
func (k *KBD) HasPending() bool {
	k.lock.Acquire()
	defer k.lock.Release()
	return !k.kbd.empty() || !k.mouse.empty()
}
