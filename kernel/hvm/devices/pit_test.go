package devices

import (
	"gophercore/kernel/hvm/iodev"
	"testing"
)

func newTestPIT() (*PIT, *iodev.Table) {
	t := iodev.New()
	return NewPIT(t), t
}

func programCounter0(tbl *iodev.Table, reload uint16) {
	tbl.Write(pitModePort, iodev.Width8, 0x34) // counter 0, LSB/MSB, mode 2
	tbl.Write(pitCounter0Port, iodev.Width8, uint32(reload&0xff))
	tbl.Write(pitCounter0Port, iodev.Width8, uint32(reload>>8))
}

func TestPITProgramAndReadBack(t *testing.T) {
	p, tbl := newTestPIT()
	programCounter0(tbl, 1000)

	if p.reload != 1000 || p.count != 1000 {
		t.Fatalf("expected reload/count 1000, got reload=%d count=%d", p.reload, p.count)
	}
	if p.mode != 2 {
		t.Fatalf("expected mode 2, got %d", p.mode)
	}
}

func TestPITTickCountsDownToTerminalCount(t *testing.T) {
	p, tbl := newTestPIT()
	programCounter0(tbl, 3)

	if p.Tick() {
		t.Fatal("expected no terminal count on the first tick")
	}
	if p.Tick() {
		t.Fatal("expected no terminal count on the second tick")
	}
	if !p.Tick() {
		t.Fatal("expected terminal count on the third tick")
	}
}

func TestPITRateGeneratorReloadsAfterTerminalCount(t *testing.T) {
	p, tbl := newTestPIT()
	programCounter0(tbl, 2)

	p.Tick()
	if !p.Tick() {
		t.Fatal("expected terminal count")
	}
	if p.count != 2 {
		t.Fatalf("expected mode 2 to reload to 2, got %d", p.count)
	}
}

func TestPITLatchFreezesReadValue(t *testing.T) {
	p, tbl := newTestPIT()
	programCounter0(tbl, 500)

	tbl.Write(pitModePort, iodev.Width8, 0x00) // latch counter 0

	p.Tick() // count keeps moving after the latch

	lo := tbl.Read(pitCounter0Port, iodev.Width8)
	hi := tbl.Read(pitCounter0Port, iodev.Width8)
	got := uint16(lo) | uint16(hi)<<8
	if got != 500 {
		t.Fatalf("expected latched value 500, got %d", got)
	}
}
