package vmm

import (
	"gophercore/kernel"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
	"unsafe"
)

// pageMask isolates the in-page offset of a virtual or physical address.
const pageMask = uintptr(mem.PageSize) - 1

// withMappedUserPage translates va in pid's pmap, maps the backing frame at
// a temporary kernel address and invokes fn with the mapped address
// (including va's in-page offset) and the number of bytes remaining until
// the end of that page. It fails soft: any translation or mapping error is
// returned without touching fn.
func withMappedUserPage(pid int, va uintptr, fn func(mappedAddr uintptr, runLen uintptr)) *kernel.Error {
	if !validPmap(pid) {
		return errBadPmap
	}

	phys, err := pmapPool[pid].Translate(va)
	if err != nil {
		return err
	}

	offset := va & pageMask
	frame := pmm.FrameFromAddress(phys &^ pageMask)

	tmpPage, err := mapTemporaryFn(frame)
	if err != nil {
		return err
	}
	defer unmapFn(tmpPage)

	fn(tmpPage.Address()+offset, uintptr(mem.PageSize)-offset)
	return nil
}

// CopyIn copies len(dst) bytes out of pid's address space starting at
// srcVA into dst, one page at a time, and returns how many bytes were
// copied before any unmapped page was hit.
func CopyIn(pid int, dst []byte, srcVA uintptr) (int, *kernel.Error) {
	var (
		written int
		remain  = uintptr(len(dst))
	)

	for remain > 0 {
		var run uintptr
		err := withMappedUserPage(pid, srcVA, func(mappedAddr uintptr, runLen uintptr) {
			run = runLen
			if run > remain {
				run = remain
			}
			mem.Memcopy(mappedAddr, uintptr(unsafe.Pointer(&dst[written])), mem.Size(run))
		})
		if err != nil {
			return written, err
		}

		written += int(run)
		remain -= run
		srcVA += run
	}

	return written, nil
}

// CopyOut copies src into pid's address space starting at dstVA, one page
// at a time, and returns how many bytes were copied before any unmapped
// page was hit.
//
// A destination page still backed by ReservedZeroedFrame under
// FlagCopyOnWrite is written through directly rather than faulted in
// first; callers that need copy-on-write isolation must pre-fault the
// range (e.g. via a write probe) before calling CopyOut.
func CopyOut(pid int, dstVA uintptr, src []byte) (int, *kernel.Error) {
	var (
		read   int
		remain = uintptr(len(src))
	)

	for remain > 0 {
		var run uintptr
		err := withMappedUserPage(pid, dstVA, func(mappedAddr uintptr, runLen uintptr) {
			run = runLen
			if run > remain {
				run = remain
			}
			mem.Memcopy(uintptr(unsafe.Pointer(&src[read])), mappedAddr, mem.Size(run))
		})
		if err != nil {
			return read, err
		}

		read += int(run)
		remain -= run
		dstVA += run
	}

	return read, nil
}

// Memset fills n bytes of pid's address space starting at va with value,
// one page at a time, and returns how many bytes were written before any
// unmapped page was hit.
func Memset(pid int, va uintptr, value byte, n uintptr) (int, *kernel.Error) {
	var written uintptr

	for written < n {
		var run uintptr
		err := withMappedUserPage(pid, va, func(mappedAddr uintptr, runLen uintptr) {
			run = runLen
			if run > n-written {
				run = n - written
			}
			mem.Memset(mappedAddr, value, mem.Size(run))
		})
		if err != nil {
			return int(written), err
		}

		written += run
		va += run
	}

	return int(written), nil
}
