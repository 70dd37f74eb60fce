package devices

import "gophercore/kernel/hvm/iodev"

// debugPort is the conventional hypervisor debug-console port: a byte
// written there by the guest appears on the host console. Cheap to emit
// from a real-mode payload, which makes it the first sign of life from a
// freshly booted guest.
const debugPort = 0x402

// Debug forwards guest writes on the debug port to the host console.
type Debug struct {
	write func(byte)
}

// NewDebug constructs a Debug device forwarding to write and registers its
// port into t.
func NewDebug(t *iodev.Table, write func(byte)) *Debug {
	d := &Debug{write: write}

	t.RegisterWrite(debugPort, iodev.Width8, func(v uint32) {
		if d.write != nil {
			d.write(byte(v))
		}
	})

	return d
}
