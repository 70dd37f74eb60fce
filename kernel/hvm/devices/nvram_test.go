package devices

import (
	"gophercore/kernel/hvm/iodev"
	"testing"
)

type fakeHostNVRAM struct {
	store map[uint8]uint8
}

func newFakeHostNVRAM() *fakeHostNVRAM { return &fakeHostNVRAM{store: map[uint8]uint8{}} }

func (h *fakeHostNVRAM) ReadByte(offset uint8) uint8     { return h.store[offset] }
func (h *fakeHostNVRAM) WriteByte(offset uint8, v uint8) { h.store[offset] = v }

func readOffset(tbl *iodev.Table, offset uint8) uint8 {
	tbl.Write(nvramIndexPort, iodev.Width8, uint32(offset))
	return uint8(tbl.Read(nvramDataPort, iodev.Width8))
}

func TestNVRAMExtmemEncoding(t *testing.T) {
	tbl := iodev.New()
	NewNVRAM(tbl, newFakeHostNVRAM(), 8*1024*1024) // 8 MB guest RAM

	lo := readOffset(tbl, offExtmemLo)
	hi := readOffset(tbl, offExtmemHi)
	gotKB := uint16(lo) | uint16(hi)<<8

	wantKB := uint16((8*1024*1024 - 1024*1024) / 1024)
	if gotKB != wantKB {
		t.Fatalf("expected extmem %d KB, got %d KB", wantKB, gotKB)
	}
}

func TestNVRAMHighmemZeroBelow4GB(t *testing.T) {
	tbl := iodev.New()
	NewNVRAM(tbl, newFakeHostNVRAM(), 64*1024*1024)

	if b := readOffset(tbl, offHighmem0); b != 0 {
		t.Fatalf("expected highmem byte 0 for a sub-4GB VM, got %d", b)
	}
}

func TestNVRAMPassesThroughUnrecognizedOffsets(t *testing.T) {
	host := newFakeHostNVRAM()
	host.store[0x0e] = 0x99 // arbitrary RTC status byte

	tbl := iodev.New()
	NewNVRAM(tbl, host, 8*1024*1024)

	if got := readOffset(tbl, 0x0e); got != 0x99 {
		t.Fatalf("expected passthrough value 0x99, got %#x", got)
	}

	tbl.Write(nvramIndexPort, iodev.Width8, 0x0e)
	tbl.Write(nvramDataPort, iodev.Width8, 0x42)
	if host.store[0x0e] != 0x42 {
		t.Fatalf("expected host write to go through, got %#x", host.store[0x0e])
	}
}

func TestNVRAMSyntheticFieldsAreReadOnly(t *testing.T) {
	tbl := iodev.New()
	NewNVRAM(tbl, newFakeHostNVRAM(), 8*1024*1024)

	before := readOffset(tbl, offExtmemLo)
	tbl.Write(nvramIndexPort, iodev.Width8, offExtmemLo)
	tbl.Write(nvramDataPort, iodev.Width8, 0xaa)
	after := readOffset(tbl, offExtmemLo)

	if before != after {
		t.Fatalf("expected synthetic extmem byte to ignore writes, got %#x before and %#x after", before, after)
	}
}
