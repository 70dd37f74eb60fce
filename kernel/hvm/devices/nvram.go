package devices

import (
	"gophercore/kernel/hvm/iodev"
	"gophercore/kernel/sync"
)

const (
	nvramIndexPort = 0x70
	nvramDataPort  = 0x71

	// CMOS offsets for the synthetic memory-size fields the guest's
	// memory-detection path queries.
	offExtmemLo  = 0x17
	offExtmemHi  = 0x18
	offExtmem2Lo = 0x30
	offExtmem2Hi = 0x31
	offHighmem0  = 0x5b
	offHighmem1  = 0x5c
	offHighmem2  = 0x5d
)

// HostNVRAM is the passthrough the host's real CMOS/NVRAM driver provides
// for every offset NVRAM does not synthesize. It is supplied by whatever
// boots this kernel.
type HostNVRAM interface {
	ReadByte(offset uint8) uint8
	WriteByte(offset uint8, val uint8)
}

// NVRAM virtualizes the CMOS memory-size registers: extended and high
// memory sizes are synthesized from the VM's actual RAM window; every
// other offset passes through to host.
type NVRAM struct {
	lock sync.Spinlock

	host  HostNVRAM
	index uint8

	extmemKB  uint16 // memory between 1 MB and 16 MB, in KB
	extmem2KB uint16 // memory between 16 MB and 4 GB, in 64 KB units
	highmem   uint32 // memory above 4 GB, in 64 KB units (24-bit field)
}

// NewNVRAM constructs an NVRAM reporting ramBytes of guest memory and
// registers its two ports into t. host serves every offset NVRAM does not
// synthesize.
func NewNVRAM(t *iodev.Table, host HostNVRAM, ramBytes uint64) *NVRAM {
	n := &NVRAM{host: host}
	n.setMemorySize(ramBytes)

	t.RegisterWrite(nvramIndexPort, iodev.Width8, func(v uint32) {
		n.lock.Acquire()
		defer n.lock.Release()
		n.index = uint8(v)
	})
	t.RegisterRead(nvramDataPort, iodev.Width8, func() uint32 {
		n.lock.Acquire()
		defer n.lock.Release()
		return uint32(n.readData())
	})
	t.RegisterWrite(nvramDataPort, iodev.Width8, func(v uint32) {
		n.lock.Acquire()
		defer n.lock.Release()
		n.writeData(uint8(v))
	})

	return n
}

// setMemorySize derives the three synthetic fields from the guest's total
// RAM window, following the 1 MB/16 MB/4 GB break points the BIOS memory
// map conventions define for these registers.
func (n *NVRAM) setMemorySize(ramBytes uint64) {
	const mb = 1024 * 1024
	const gb = 1024 * mb

	if ramBytes > mb {
		extmem := ramBytes - mb
		if extmem > 15*mb {
			extmem = 15 * mb
		}
		n.extmemKB = uint16(extmem / 1024)
	}

	if ramBytes > 16*mb {
		extmem2 := ramBytes - 16*mb
		if extmem2 > 4*gb-16*mb {
			extmem2 = 4*gb - 16*mb
		}
		n.extmem2KB = uint16(extmem2 / (64 * 1024))
	}

	if ramBytes > 4*gb {
		n.highmem = uint32((ramBytes - 4*gb) / (64 * 1024))
	}
}

func (n *NVRAM) readData() uint8 {
	switch n.index {
	case offExtmemLo:
		return uint8(n.extmemKB)
	case offExtmemHi:
		return uint8(n.extmemKB >> 8)
	case offExtmem2Lo:
		return uint8(n.extmem2KB)
	case offExtmem2Hi:
		return uint8(n.extmem2KB >> 8)
	case offHighmem0:
		return uint8(n.highmem)
	case offHighmem1:
		return uint8(n.highmem >> 8)
	case offHighmem2:
		return uint8(n.highmem >> 16)
	default:
		if n.host != nil {
			return n.host.ReadByte(n.index)
		}
		return 0
	}
}

func (n *NVRAM) writeData(val uint8) {
	switch n.index {
	case offExtmemLo, offExtmemHi, offExtmem2Lo, offExtmem2Hi,
		offHighmem0, offHighmem1, offHighmem2:
		// The synthesized memory-size fields are read-only from the
		// guest's perspective; writes are dropped.
	default:
		if n.host != nil {
			n.host.WriteByte(n.index, val)
		}
	}
}
