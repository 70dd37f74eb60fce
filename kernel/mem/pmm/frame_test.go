package pmm

import (
	"gophercore/kernel/mem"
	"testing"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uintptr(1); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := frameIndex<<mem.PageShift, frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	if InvalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}

	if Frame(0) != InvalidFrame {
		t.Error("expected frame 0 to be the InvalidFrame sentinel; physical page 0 must never be handed out")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}
