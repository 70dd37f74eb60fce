// Package hvm implements the virtual-machine monitor core: per-VM
// lifecycle, the per-VCPU guest/host swap loop, and VM-exit reason
// dispatch into the virtual devices of kernel/hvm/devices through the
// routing table of kernel/hvm/iodev, backed by the nested page tables of
// kernel/hvm/npt.
package hvm

import (
	"gophercore/kernel"
	"gophercore/kernel/cpu"
	"gophercore/kernel/hvm/devices"
	"gophercore/kernel/hvm/iodev"
	"gophercore/kernel/hvm/npt"
	"gophercore/kernel/kfmt"
	"gophercore/kernel/mem/pmm"
)

// Vendor identifies which hardware-assisted virtualization extension this
// CPU supports, selected once at boot by Init.
type Vendor int

const (
	VendorUnknown Vendor = iota
	VendorAMD
	VendorIntel
)

var (
	vendor   Vendor
	vendorFn = detectVendor
)

func detectVendor() Vendor {
	if cpu.IsAMD() {
		return VendorAMD
	}
	if cpu.IsIntel() {
		return VendorIntel
	}
	return VendorUnknown
}

var errUnsupportedVendor = &kernel.Error{Module: "hvm", Message: "CPU supports neither SVM nor VMX"}

// Init performs the one-time, per-system VMM setup: detects the vendor and
// prepares that vendor's host state-save area. Every CPU that later calls
// startupvm shares this host-wide setup.
func Init() *kernel.Error {
	vendor = vendorFn()
	switch vendor {
	case VendorAMD:
		return initHostSVM()
	case VendorIntel:
		return initHostVMX()
	default:
		return errUnsupportedVendor
	}
}

// initHostSVM sets EFER.SVME and allocates the host save area; initHostVMX
// sets CR4.VMXE and executes VMXON. Both are hand-written assembly, same
// precedent as cpu.Halt and proc's cswitch elsewhere in this module.
func initHostSVM() *kernel.Error
func initHostVMX() *kernel.Error

// VM is one guest: a cookie pointing at the hardware-specific VMCB or
// VMCS, an exit-for-interrupt flag, the nested page table covering its RAM
// window and the virtual chipset a booting guest expects to find. Created
// by NewVM, owned for its lifetime by exactly one kernel thread (its VCPU).
type VM struct {
	cookie pmm.Frame // host-physical page backing the VMCB (SVM) or VMCS (VMX)

	NPT *npt.Table
	IO  *iodev.Table

	VPIC   *devices.PIC
	VPIT   *devices.PIT
	VNVRAM *devices.NVRAM
	VKBD   *devices.KBD
	VIDE   *devices.IDE
	VPCI   *devices.PCI
	VDBG   *devices.Debug

	exitForIntr bool
}

// NewVM allocates a guest: nested page tables over the default RAM window,
// an initial control block at the reset vector, and the virtual device
// set, all wired into a fresh I/O-port routing table.
func NewVM(host devices.HostNVRAM) (*VM, *kernel.Error) {
	vm := &VM{}

	vm.NPT = npt.New(npt.DefaultRAMWindow)
	if err := vm.NPT.IdentityMapRAM(); err != nil {
		return nil, err
	}

	vm.IO = iodev.New()
	vm.VPIC = devices.NewPIC(vm.IO)
	vm.VPIT = devices.NewPIT(vm.IO)
	vm.VNVRAM = devices.NewNVRAM(vm.IO, host, uint64(npt.DefaultRAMWindow))
	vm.VKBD = devices.NewKBD(vm.IO)
	vm.VIDE = devices.NewIDE(vm.IO)
	vm.VPCI = devices.NewPCI(vm.IO)
	vm.VDBG = devices.NewDebug(vm.IO, func(b byte) {
		if w := kfmt.GetOutputSink(); w != nil {
			w.Write([]byte{b})
		}
	})

	cookie, err := pmm.AllocFrame()
	if err != nil {
		return nil, err
	}
	vm.cookie = cookie

	switch vendor {
	case VendorAMD:
		initVMCB(cookie.Address())
	case VendorIntel:
		initVMCS(cookie.Address())
	}

	return vm, nil
}

// initVMCB / initVMCS write the reset-vector entry point, real-mode
// segment descriptors and interception masks into the freshly allocated
// control block. Hand-written assembly, same precedent as initHostSVM.
func initVMCB(phys uintptr)
func initVMCS(phys uintptr)

// MarkExitForIntr asks the VCPU loop to return to the host dispatch path
// before the next guest entry. The scheduler's timer tick sets it so a
// guest cannot run through its owner's preemption slice.
func (vm *VM) MarkExitForIntr() { vm.exitForIntr = true }

// Destroy releases vm's control-block page. Nested page table frames are
// intentionally not walked and freed here: per-VM teardown on process exit
// is handled the same way address-space teardown is, by the owning
// process's container being torn down (see kernel/mem/pmm.ContainerFree).
func (vm *VM) Destroy() {
	pmm.FreeFrame(vm.cookie)
}
