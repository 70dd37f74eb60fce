package vmm

import (
	"gophercore/kernel"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
	"testing"
	"unsafe"
)

// withFakeUserPage registers pid as valid and arranges for srcVA to
// translate to backingPage's address, so CopyIn/CopyOut/Memset can be
// exercised without a real MMU.
func withFakeUserPage(t *testing.T, pid int, va uintptr, backing []byte) {
	t.Helper()
	resetPmapPool()
	pmapUsed[pid] = true

	backingAddr := uintptr(unsafe.Pointer(&backing[0]))
	mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) {
		return PageFromAddress(backingAddr), nil
	}
	unmapFn = func(_ Page) *kernel.Error { return nil }

	// pteForAddress walks through ptePtrFn; stub the whole Translate path
	// at the PageDirectoryTable level instead by wiring withActivated to a
	// no-op and relying on a fake final-level PTE.
	var entry pageTableEntry
	entry.SetFrame(pmm.FrameFromAddress(backingAddr))
	entry.SetFlags(FlagPresent | FlagRW)
	ptePtrFn = func(_ uintptr) unsafe.Pointer { return unsafe.Pointer(&entry) }
	activePDTFn = func() uintptr { return 0 }

	_ = va
}

func resetCopyTestSeams() {
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer { return unsafe.Pointer(entryAddr) }
	mapTemporaryFn = MapTemporary
	unmapFn = Unmap
	activePDTFn = func() uintptr { return 0 }
	resetPmapPool()
}

func TestCopyInCopyOutMemset(t *testing.T) {
	defer resetCopyTestSeams()

	const pid = 3
	backing := make([]byte, mem.PageSize)
	for i := range backing {
		backing[i] = byte(i)
	}

	withFakeUserPage(t, pid, 0x1000, backing)

	dst := make([]byte, 16)
	n, err := CopyIn(pid, dst, 0x1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(dst) {
		t.Fatalf("expected to copy %d bytes; got %d", len(dst), n)
	}
	for i := range dst {
		if dst[i] != backing[i] {
			t.Errorf("byte %d: expected %d; got %d", i, backing[i], dst[i])
		}
	}

	src := []byte{0xde, 0xad, 0xbe, 0xef}
	n, err = CopyOut(pid, 0x1000, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(src) {
		t.Fatalf("expected to copy %d bytes; got %d", len(src), n)
	}
	for i := range src {
		if backing[i] != src[i] {
			t.Errorf("byte %d: expected backing store to contain %x; got %x", i, src[i], backing[i])
		}
	}

	n, err = Memset(pid, 0x1000, 0x7f, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected to write 8 bytes; got %d", n)
	}
	for i := 0; i < 8; i++ {
		if backing[i] != 0x7f {
			t.Errorf("byte %d: expected 0x7f; got %x", i, backing[i])
		}
	}
}

func TestCopyInRejectsUnknownPid(t *testing.T) {
	defer resetCopyTestSeams()
	resetPmapPool()

	dst := make([]byte, 4)
	if _, err := CopyIn(99, dst, 0x1000); err != errBadPmap {
		t.Fatalf("expected errBadPmap; got %v", err)
	}
}
