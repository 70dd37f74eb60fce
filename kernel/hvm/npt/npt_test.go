package npt

import (
	"testing"

	"gophercore/kernel"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
)

func fakeAllocator(frames *[]pmm.Frame) func() (pmm.Frame, *kernel.Error) {
	next := pmm.Frame(1) // frame 0 is the reserved/invalid sentinel
	return func() (pmm.Frame, *kernel.Error) {
		f := next
		next++
		*frames = append(*frames, f)
		return f, nil
	}
}

func TestIdentityMapRAMBacksEveryPage(t *testing.T) {
	var allocated []pmm.Frame
	SetFrameAllocator(fakeAllocator(&allocated))
	defer SetFrameAllocator(pmm.AllocFrame)

	tbl := New(2 * mem.PageSize)
	if err := tbl.IdentityMapRAM(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocated) != 2 {
		t.Fatalf("expected 2 frames allocated, got %d", len(allocated))
	}
	if tbl.RAMPages() != 2 {
		t.Fatalf("expected 2 ram pages, got %d", tbl.RAMPages())
	}
}

func TestTranslateUnbackedFails(t *testing.T) {
	tbl := New(mem.PageSize)
	if _, err := tbl.Translate(0); err == nil {
		t.Fatal("expected Translate to fail for an unbacked page")
	}
}

func TestHandleNPFBacksPageThenTranslateSucceeds(t *testing.T) {
	var allocated []pmm.Frame
	SetFrameAllocator(fakeAllocator(&allocated))
	defer SetFrameAllocator(pmm.AllocFrame)

	tbl := New(4 * mem.PageSize)
	gpa := uintptr(2*mem.PageSize) + 0x10

	if err := tbl.HandleNPF(gpa); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	host, err := tbl.Translate(gpa)
	if err != nil {
		t.Fatalf("unexpected error translating a freshly backed page: %v", err)
	}
	if host != allocated[0].Address()+0x10 {
		t.Fatalf("expected host address %#x, got %#x", allocated[0].Address()+0x10, host)
	}
}

func TestHandleNPFOutsideWindowFails(t *testing.T) {
	tbl := New(mem.PageSize)
	if err := tbl.HandleNPF(uintptr(4 * mem.PageSize)); err == nil {
		t.Fatal("expected HandleNPF to fail for a gpa outside the RAM window")
	}
}

func TestHandleNPFIsIdempotent(t *testing.T) {
	var allocated []pmm.Frame
	SetFrameAllocator(fakeAllocator(&allocated))
	defer SetFrameAllocator(pmm.AllocFrame)

	tbl := New(mem.PageSize)
	gpa := uintptr(0x42)

	if err := tbl.HandleNPF(gpa); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tbl.HandleNPF(gpa); err != nil {
		t.Fatalf("unexpected error on second fault to the same page: %v", err)
	}
	if len(allocated) != 1 {
		t.Fatalf("expected exactly 1 frame allocated across both faults, got %d", len(allocated))
	}
}
