// Package allocator adapts pmm's palloc/pfree to the allocator.Allocator
// shape goruntime expects while bootstrapping the Go runtime: a single
// AllocFrame/FreeFrame pair it can assign to a function variable before the
// rest of the kernel (containers, pmaps) exists.
package allocator

import (
	"gophercore/kernel"
	"gophercore/kernel/mem/pmm"
)

// AllocFrame reserves the next available frame from the global frame table.
// It is used directly by goruntime during early boot, before any container
// has been created to wrap allocations with quota accounting.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return pmm.AllocFrame()
}

// FreeFrame releases a frame previously obtained via AllocFrame.
func FreeFrame(f pmm.Frame) {
	pmm.FreeFrame(f)
}
