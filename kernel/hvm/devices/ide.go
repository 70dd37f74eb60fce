package devices

import "gophercore/kernel/hvm/iodev"

// Primary ATA command-block ports; only the data and status registers are
// wired, which is all a probing guest ever touches before giving up.
const (
	ideDataPort   = 0x1f0
	ideStatusPort = 0x1f7
)

const ideStatusReady = 1 << 6 // DRDY, always reported set

// IDE is a minimal disk-controller stub: block I/O inside the guest is not
// supported. It exists only so a guest's probe sequence does not hang
// waiting on a floating bus.
type IDE struct{}

// NewIDE constructs an IDE stub and registers its two ports into t.
func NewIDE(t *iodev.Table) *IDE {
	d := &IDE{}

	t.RegisterRead(ideDataPort, iodev.Width16, func() uint32 { return 0xffff })
	t.RegisterWrite(ideDataPort, iodev.Width16, func(uint32) {})
	t.RegisterRead(ideStatusPort, iodev.Width8, func() uint32 { return ideStatusReady })
	t.RegisterWrite(ideStatusPort, iodev.Width8, func(uint32) {})

	return d
}
