// Package pmm implements the frame allocator (component A): a flat,
// cursor-scanned table of page frames backed by the bootloader's memory
// map, plus a container quota tree layered on top of it.
package pmm

import "gophercore/kernel/mem"

// Frame describes a physical memory page index.
type Frame uintptr

// InvalidFrame is returned by AllocFrame when it fails to reserve a frame.
// Physical page 0 is permanently reserved so it can double as the zero/none
// sentinel throughout the allocator and the container tree.
const InvalidFrame = Frame(0)

// Valid returns true if this is a frame that was actually handed out by
// AllocFrame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the Frame containing the given physical address.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
