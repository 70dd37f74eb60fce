package vmm

import "gophercore/kernel"

// Translate returns the physical address that corresponds to virtAddr in
// the currently active page directory, or ErrInvalidMapping.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}
	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset of virtAddr within its containing page.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1)
}
