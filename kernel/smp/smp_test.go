package smp

import "testing"

func resetForTest() {
	numCPU = 0
	for i := range lapicID {
		lapicID[i] = 0
		booted[i] = false
	}
	apicIDFn = func() uint32 { return 0 }
}

func TestRegisterCPUAssignsSequentialIndices(t *testing.T) {
	resetForTest()

	i0, err := RegisterCPU(0xaa)
	if err != nil || i0 != 0 {
		t.Fatalf("expected (0, nil), got (%d, %v)", i0, err)
	}
	i1, err := RegisterCPU(0xbb)
	if err != nil || i1 != 1 {
		t.Fatalf("expected (1, nil), got (%d, %v)", i1, err)
	}
	if NumCPU() != 2 {
		t.Fatalf("expected NumCPU()=2, got %d", NumCPU())
	}
}

func TestRegisterCPUExhaustion(t *testing.T) {
	resetForTest()

	for i := 0; i < MaxCPU; i++ {
		if _, err := RegisterCPU(uint32(i)); err != nil {
			t.Fatalf("unexpected error registering cpu %d: %v", i, err)
		}
	}
	if _, err := RegisterCPU(999); err == nil {
		t.Fatal("expected an error once the LAPIC-id table is full")
	}
}

func TestCurrentIndexResolvesByLAPICID(t *testing.T) {
	resetForTest()
	RegisterCPU(0x10)
	RegisterCPU(0x20)
	RegisterCPU(0x30)

	apicIDFn = func() uint32 { return 0x20 }
	if got := currentIndex(); got != 1 {
		t.Fatalf("expected index 1 for lapic 0x20, got %d", got)
	}
}

func TestCurrentIndexUnknownLAPICFallsBackToZero(t *testing.T) {
	resetForTest()
	RegisterCPU(0x10)

	apicIDFn = func() uint32 { return 0xffff }
	if got := currentIndex(); got != 0 {
		t.Fatalf("expected fallback index 0, got %d", got)
	}
}

func TestInitWiresProcAndSyncCPUID(t *testing.T) {
	resetForTest()
	RegisterCPU(0x10)
	RegisterCPU(0x20)
	apicIDFn = func() uint32 { return 0x20 }

	Init()

	if got := currentIndex(); got != 1 {
		t.Fatalf("sanity check failed, got %d", got)
	}
}
