package devices

import "gophercore/kernel/hvm/iodev"

// PCI configuration mechanism #1 ports.
const (
	pciConfigAddr = 0x0cf8
	pciConfigData = 0x0cfc
)

// PCI virtualizes just enough of the configuration-space access mechanism
// that a guest's bus probe terminates cleanly: every read returns
// 0xffffffff (PCI's "no device present" sentinel) so no guest driver ever
// binds, and every write is dropped.
type PCI struct {
	configAddr uint32
}

// NewPCI constructs a PCI stub and registers its two ports into t.
func NewPCI(t *iodev.Table) *PCI {
	p := &PCI{}

	t.RegisterRead(pciConfigAddr, iodev.Width32, func() uint32 { return p.configAddr })
	t.RegisterWrite(pciConfigAddr, iodev.Width32, func(v uint32) { p.configAddr = v })
	t.RegisterRead(pciConfigData, iodev.Width32, func() uint32 { return 0xffffffff })
	t.RegisterWrite(pciConfigData, iodev.Width32, func(uint32) {})

	return p
}
