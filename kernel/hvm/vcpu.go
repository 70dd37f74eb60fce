package hvm

import (
	"gophercore/kernel"
	"gophercore/kernel/hvm/decode"
	"gophercore/kernel/hvm/iodev"
	"gophercore/kernel/mem"
	"gophercore/kernel/mem/pmm"
	"gophercore/kernel/mem/vmm"
	"unsafe"
)

// GuestRegs holds the general-purpose registers the swap stub saves and
// restores around a guest entry; EIP/CS/EFlags/ESP live in the VMCB/VMCS
// itself and are not duplicated here.
type GuestRegs struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP      uint32
}

// svmSwitch/vmxResume perform the actual guest/host world switch: they
// load g into the guest's register file, execute VMRUN/VMRESUME against
// the control block at cookie, and on the next VM-exit save the guest's
// registers back into g and return the raw, vendor-specific exit code.
// Hand-written assembly, same precedent as kernel/proc's cswitch.
func svmSwitch(cookie uintptr, g *GuestRegs) uint32
func vmxResume(cookie uintptr, g *GuestRegs) uint32

// vmExitInfo reads the two vendor-specific exit-qualification fields out
// of the control block at cookie: SVM's EXITINFO1/EXITINFO2, or VMX's exit
// qualification and guest-physical address, depending on which field the
// classified ExitKind needs.
func vmExitInfo(cookie uintptr) (info1, info2 uint32)

// vmInjectVector arms the control block at cookie to deliver vector on the
// next VM-entry.
func vmInjectVector(cookie uintptr, vector uint8)

// vmAdvanceRIP advances the guest's saved EIP by n bytes, used after
// emulating an IOIO or decoded MMIO access so the retried instruction is
// not re-executed.
func vmAdvanceRIP(cookie uintptr, n uint32)

// vmGuestRIP reads the guest's saved EIP out of the control block, used to
// fetch the faulting instruction's bytes for software decode.
func vmGuestRIP(cookie uintptr) uint32

// AMD SVM raw VMEXIT codes (AMD64 APM Vol. 2, Appendix C).
const (
	svmExitIntr      = 0x60
	svmExitVIntr     = 0x64
	svmExitCPUID     = 0x72
	svmExitHLT       = 0x78
	svmExitIOIO      = 0x7b
	svmExitMSR       = 0x7c
	svmExitSwInt     = 0x75
	svmExitNPF       = 0x400
	svmExitExcpBase  = 0x40
	svmExitExcpCount = 32
)

// Intel VMX raw exit reasons (Intel SDM Vol. 3C, Appendix C).
const (
	vmxExitExceptionNMI  = 0
	vmxExitExternalIntr  = 1
	vmxExitHLT           = 12
	vmxExitRDTSC         = 16
	vmxExitCPUID         = 10
	vmxExitIOInstruction = 30
	vmxExitMSRRead       = 31
	vmxExitMSRWrite      = 32
	vmxExitEPTViolation  = 48
)

// classifySVM maps a raw AMD exit code plus its two info fields into an
// ExitReason.
func classifySVM(code uint32, info1, info2 uint32) ExitReason {
	switch {
	case code == svmExitIntr:
		return ExitReason{Kind: ExitIntr}
	case code == svmExitVIntr:
		return ExitReason{Kind: ExitVIntr}
	case code == svmExitCPUID:
		return ExitReason{Kind: ExitCpuid}
	case code == svmExitHLT:
		return ExitReason{Kind: ExitHlt}
	case code == svmExitSwInt:
		return ExitReason{Kind: ExitSwInt}
	case code == svmExitIOIO:
		return decodeSVMIOIO(info1)
	case code == svmExitMSR:
		return ExitReason{Kind: ExitMsr, MsrWrite: info1&0x1 != 0}
	case code == svmExitNPF:
		return ExitReason{Kind: ExitNpf, GPA: uintptr(info2), NpfErr: info1}
	case code >= svmExitExcpBase && code < svmExitExcpBase+svmExitExcpCount:
		return ExitReason{Kind: ExitException, Vector: uint8(code - svmExitExcpBase)}
	default:
		return ExitReason{Kind: ExitUnknown}
	}
}

// decodeSVMIOIO unpacks SVM's EXITINFO1 IOIO encoding: bit 0 selects
// IN (1) vs OUT (0), bits 4-6 select the operand size, bits 16-31 carry
// the port number.
func decodeSVMIOIO(info1 uint32) ExitReason {
	r := ExitReason{Kind: ExitIoIo, Port: uint16(info1 >> 16)}
	if info1&0x1 != 0 {
		r.Dir = IODirIn
	} else {
		r.Dir = IODirOut
	}
	switch {
	case info1&(1<<4) != 0:
		r.Width = iodev.Width8
	case info1&(1<<5) != 0:
		r.Width = iodev.Width16
	default:
		r.Width = iodev.Width32
	}
	return r
}

// classifyVMX maps a raw Intel exit reason into an ExitReason.
func classifyVMX(code uint32, info1, info2 uint32) ExitReason {
	switch code {
	case vmxExitExternalIntr:
		return ExitReason{Kind: ExitIntr}
	case vmxExitCPUID:
		return ExitReason{Kind: ExitCpuid}
	case vmxExitRDTSC:
		return ExitReason{Kind: ExitRdtsc}
	case vmxExitHLT:
		return ExitReason{Kind: ExitHlt}
	case vmxExitIOInstruction:
		return decodeVMXIOInstruction(info1)
	case vmxExitMSRRead:
		return ExitReason{Kind: ExitMsr, MsrWrite: false}
	case vmxExitMSRWrite:
		return ExitReason{Kind: ExitMsr, MsrWrite: true}
	case vmxExitEPTViolation:
		return ExitReason{Kind: ExitNpf, GPA: uintptr(info2), NpfErr: info1}
	case vmxExitExceptionNMI:
		return ExitReason{Kind: ExitException, Vector: uint8(info1)}
	default:
		return ExitReason{Kind: ExitUnknown}
	}
}

// decodeVMXIOInstruction unpacks VMX's exit qualification for an
// IO_INSTRUCTION exit: bits 0-2 size (0=1,1=2,3=4 bytes), bit 3 direction
// (0=OUT, 1=IN), bits 16-31 port.
func decodeVMXIOInstruction(qual uint32) ExitReason {
	r := ExitReason{Kind: ExitIoIo, Port: uint16(qual >> 16)}
	if qual&(1<<3) != 0 {
		r.Dir = IODirIn
	} else {
		r.Dir = IODirOut
	}
	switch qual & 0x7 {
	case 0:
		r.Width = iodev.Width8
	case 1:
		r.Width = iodev.Width16
	default:
		r.Width = iodev.Width32
	}
	return r
}

// VCPU is a kernel thread pinned to one CPU that runs a single VM's
// guest-entry loop. The pinning happens at TCB creation and never changes.
type VCPU struct {
	VM   *VM
	CPU  int
	regs GuestRegs

	running bool
}

// NewVCPU binds vm to cpu, creating the kernel thread's VMM-loop state.
// The caller is responsible for having already pinned the owning TCB to
// cpu via kernel/proc.
func NewVCPU(vm *VM, cpuID int) *VCPU {
	return &VCPU{VM: vm, CPU: cpuID}
}

// haltWaitingForIntrFn is the Hlt handler's suspension primitive,
// overridden in tests; production wires it to enabling interrupts and
// executing HLT until the next one arrives, same as kernel/proc's idle
// loop.
var haltWaitingForIntrFn = func() {}

// SetHaltWaiter registers the suspension primitive the Hlt exit handler
// parks on until the next host interrupt; kmain wires it to an
// interrupt-enabled hlt, same as the scheduler's idle loop.
func SetHaltWaiter(fn func()) { haltWaitingForIntrFn = fn }

// Run enters the VMM loop on this VCPU's CPU. It does not return while the
// VM is alive; Stop ends the loop from another thread.
func (v *VCPU) Run() *kernel.Error {
	v.running = true
	for v.running {
		if err := v.preEntry(); err != nil {
			return err
		}

		var code uint32
		switch vendor {
		case VendorAMD:
			code = svmSwitch(v.VM.cookie.Address(), &v.regs)
		case VendorIntel:
			code = vmxResume(v.VM.cookie.Address(), &v.regs)
		default:
			return errUnsupportedVendor
		}

		info1, info2 := vmExitInfo(v.VM.cookie.Address())

		var reason ExitReason
		if vendor == VendorAMD {
			reason = classifySVM(code, info1, info2)
		} else {
			reason = classifyVMX(code, info1, info2)
		}

		if err := v.handleExit(reason); err != nil {
			return err
		}
	}
	return nil
}

// Stop ends Run's loop after the current exit is handled.
func (v *VCPU) Stop() { v.running = false }

// preEntry copies any pending virtual interrupt from the vPIC into the
// control block and clears the exit-for-interrupt flag.
func (v *VCPU) preEntry() *kernel.Error {
	v.VM.exitForIntr = false
	if vector, ok := v.VM.VPIC.PendingVector(); ok {
		vmInjectVector(v.VM.cookie.Address(), vector)
	}
	return nil
}

var errGuestMMIO = &kernel.Error{Module: "hvm", Message: "undecodable access outside the guest RAM window"}

// maxInstLen is the architectural x86 instruction-length limit.
const maxInstLen = 15

// fetchGuestCodeFn reads up to len(buf) bytes of guest code starting at
// the guest's current instruction pointer. Overridden by tests; the
// production path translates through the VM's nested page table and maps
// the backing frame at the kernel's temporary-mapping page, since guest
// RAM frames live in the user band and have no kernel identity mapping.
var fetchGuestCodeFn = func(v *VCPU, buf []byte) (int, *kernel.Error) {
	rip := uintptr(vmGuestRIP(v.VM.cookie.Address()))

	hpa, err := v.VM.NPT.Translate(rip)
	if err != nil {
		return 0, err
	}

	frame := pmm.FrameFromAddress(hpa)
	offset := hpa & (uintptr(mem.PageSize) - 1)

	tmp, merr := vmm.MapTemporary(frame)
	if merr != nil {
		return 0, merr
	}
	defer vmm.Unmap(tmp)

	n := len(buf)
	if max := int(uintptr(mem.PageSize) - offset); n > max {
		n = max
	}
	src := unsafe.Pointer(tmp.Address() + offset)
	for i := 0; i < n; i++ {
		buf[i] = *(*byte)(unsafe.Pointer(uintptr(src) + uintptr(i)))
	}
	return n, nil
}

// vmAdvanceRIPFn is a seam over vmAdvanceRIP so exit handling can be
// exercised without a real control block.
var vmAdvanceRIPFn = vmAdvanceRIP

// handleMMIO services a nested page fault that landed outside the guest's
// RAM window: there is no device mapped there, so the access is emulated
// as a floating bus (loads read all ones, stores are dropped) and the
// guest is stepped past the faulting instruction. The instruction bytes
// are software-decoded since the NPF exit alone does not say how wide the
// access was.
func (v *VCPU) handleMMIO() *kernel.Error {
	var code [maxInstLen]byte
	n, err := fetchGuestCodeFn(v, code[:])
	if err != nil {
		return err
	}

	acc, derr := decode.GuestAccess(code[:n])
	if derr != nil {
		return errGuestMMIO
	}

	if !acc.IsWrite {
		switch acc.Width {
		case 1:
			v.regs.EAX |= 0xff
		case 2:
			v.regs.EAX |= 0xffff
		default:
			v.regs.EAX = 0xffffffff
		}
	}

	vmAdvanceRIPFn(v.VM.cookie.Address(), uint32(acc.Len))
	return nil
}

// handleExit services a single classified VM-exit.
func (v *VCPU) handleExit(r ExitReason) *kernel.Error {
	switch r.Kind {
	case ExitIntr:
		// The host took the interrupt directly (EOI-less from the
		// guest's perspective); just mark exit-for-interrupt so the
		// next entry re-polls the vPIC.
		v.VM.exitForIntr = true
		return nil

	case ExitVIntr:
		v.VM.VPIC.Intack()
		return nil

	case ExitIoIo:
		mask := r.Width.Mask()
		if r.Dir == IODirIn {
			v.regs.EAX = (v.regs.EAX &^ mask) | (v.VM.IO.Read(r.Port, r.Width) & mask)
		} else {
			v.VM.IO.Write(r.Port, r.Width, v.regs.EAX&mask)
		}
		return nil

	case ExitNpf:
		if err := v.VM.NPT.HandleNPF(r.GPA); err != nil {
			return v.handleMMIO()
		}
		return nil

	case ExitCpuid, ExitRdtsc, ExitMsr:
		// Synthesize or pass through. Beyond vendor-id leaves already
		// exposed by cpu.ID, this kernel has no guest-visible values
		// to fabricate, so these exits resume without side effects.
		return nil

	case ExitHlt:
		haltWaitingForIntrFn()
		return nil

	case ExitSwInt:
		return nil

	case ExitException:
		return &kernel.Error{Module: "hvm", Message: "unhandled guest exception", Errno: kernel.ErrnoDisallowed}

	default:
		return &kernel.Error{Module: "hvm", Message: "unrecognized VM-exit", Errno: kernel.ErrnoDisallowed}
	}
}
