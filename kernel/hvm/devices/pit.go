package devices

import (
	"gophercore/kernel/hvm/iodev"
	"gophercore/kernel/sync"
)

const (
	pitCounter0Port = 0x40
	pitModePort     = 0x43
)

// pitRW enumerates the 8253's read/write access sequencing; only the
// LSB-then-MSB form is modeled since that is the only one the loader and
// guest kernel program.
type pitRW int

const (
	pitRWLatch pitRW = iota
	pitRWLSBMSB
)

// PIT is a deliberately partial 8253 programmable interval timer: mode 0
// (interrupt on terminal count) and mode 2 (rate generator) on counter 0,
// the PC/AT timer-tick channel. The other counters (DRAM refresh, PC
// speaker) are not modeled.
type PIT struct {
	lock sync.Spinlock

	mode         uint8
	rw           pitRW
	reload       uint16
	count        uint16
	latched      uint16
	latchPending bool
	msbNext      bool
}

// NewPIT constructs a PIT with its reload/count registers zeroed and
// registers its two ports into t.
func NewPIT(t *iodev.Table) *PIT {
	p := &PIT{}

	t.RegisterWrite(pitModePort, iodev.Width8, func(v uint32) {
		p.lock.Acquire()
		defer p.lock.Release()
		p.writeMode(uint8(v))
	})
	t.RegisterRead(pitCounter0Port, iodev.Width8, func() uint32 {
		p.lock.Acquire()
		defer p.lock.Release()
		return uint32(p.readCounter0())
	})
	t.RegisterWrite(pitCounter0Port, iodev.Width8, func(v uint32) {
		p.lock.Acquire()
		defer p.lock.Release()
		p.writeCounter0(uint8(v))
	})

	return p
}

func (p *PIT) writeMode(val uint8) {
	counter := val >> 6
	if counter != 0 {
		return // only counter 0 is modeled
	}
	rwBits := (val >> 4) & 0x03
	p.mode = (val >> 1) & 0x07

	switch rwBits {
	case 0x00: // counter-latch command
		p.latched = p.count
		p.latchPending = true
		p.msbNext = false
	case 0x03:
		p.rw = pitRWLSBMSB
		p.msbNext = false
	default:
		p.rw = pitRWLSBMSB
		p.msbNext = false
	}
}

func (p *PIT) writeCounter0(val uint8) {
	if !p.msbNext {
		p.reload = (p.reload & 0xff00) | uint16(val)
		p.msbNext = true
		return
	}
	p.reload = (p.reload & 0x00ff) | uint16(val)<<8
	p.count = p.reload
	p.msbNext = false
}

func (p *PIT) readCounter0() uint8 {
	val := p.count
	if p.latchPending {
		val = p.latched
	}
	if !p.msbNext {
		p.msbNext = true
		return uint8(val)
	}
	p.msbNext = false
	p.latchPending = false
	return uint8(val >> 8)
}

// Tick decrements the running counter by one timer period and reports
// whether terminal count was reached this tick (mode 0 fires once, mode 2
// reloads and fires every period). Called from the VCPU loop's timer-tick
// path to decide whether to raise IRQ 0 against the vPIC.
func (p *PIT) Tick() bool {
	p.lock.Acquire()
	defer p.lock.Release()

	if p.count == 0 {
		return false
	}
	p.count--
	if p.count != 0 {
		return false
	}
	if p.mode == 2 {
		p.count = p.reload
	}
	return true
}
