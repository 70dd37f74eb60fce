package console

import (
	"gophercore/kernel/hal/multiboot"
	"gophercore/kernel/mem/vmm"
)

var (
	// getFramebufferInfoFn is overridden by tests to simulate the
	// framebuffer configurations the bootloader may report.
	getFramebufferInfoFn = multiboot.GetFramebufferInfo

	// mapRegionFn is overridden by tests so DriverInit can run without a
	// live page-table walk backing vmm.MapRegion.
	mapRegionFn = vmm.MapRegion
)
