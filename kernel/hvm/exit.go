package hvm

import "gophercore/kernel/hvm/iodev"

// ExitKind tags the variant an ExitReason carries, one value per class of
// VM-exit the guest-entry loop handles.
type ExitKind int

const (
	ExitIntr ExitKind = iota
	ExitVIntr
	ExitIoIo
	ExitNpf
	ExitCpuid
	ExitRdtsc
	ExitMsr
	ExitException
	ExitHlt
	ExitSwInt
	ExitUnknown
)

// IODirection distinguishes an IOIO exit's IN from its OUT.
type IODirection int

const (
	IODirIn IODirection = iota
	IODirOut
)

// ExitReason is the classified result of one VM-exit, populated from the
// VMCB/VMCS by classifyExit after each svm_switch/vmlaunch-vmresume
// returns. Exactly one of its payload fields is meaningful, selected by
// Kind; the rest are zero.
type ExitReason struct {
	Kind ExitKind

	// IoIo
	Port  uint16
	Width iodev.Width
	Dir   IODirection

	// Npf
	GPA    uintptr
	NpfErr uint32

	// Msr
	MsrIndex uint32
	MsrWrite bool
	MsrValue uint64

	// Exception
	Vector uint8
}
