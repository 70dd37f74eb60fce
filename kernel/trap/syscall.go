package trap

import (
	"gophercore/kernel"
	"gophercore/kernel/gate"
	"gophercore/kernel/hvm"
	"gophercore/kernel/hvm/devices"
	"gophercore/kernel/ipc"
	"gophercore/kernel/mem/vmm"
	"gophercore/kernel/proc"
	"gophercore/kernel/smp"
)

// Syscall numbers. The first eleven are fixed by the user-mode ABI; the
// rest (spawn, yield, the IPC family, produce/consume) follow sequentially
// so the numbered block stays stable as entries are added.
const (
	SysPuts      = 1
	SysGetc      = 2
	SysNcpu      = 3
	SysCpustat   = 4
	SysSignal    = 5
	SysSigret    = 6
	SysLoad      = 7
	SysMgmt      = 8
	SysStartupVM = 9
	SysSetupPios = 10
	SysCreateVM  = 11
	SysSpawn     = 12
	SysYield     = 13
	SysSend      = 14
	SysRecv      = 15
	SysSSend     = 16
	SysSRecv     = 17
	SysProduce   = 18
	SysConsume   = 19
)

// Mgmt sub-commands.
const (
	MgmtStart     = 0
	MgmtStop      = 1
	MgmtAllocPage = 2
)

// External collaborators: console I/O, ELF loading and the host NVRAM
// dance live in the driver layer; this package only owns the calling
// convention, not their implementation.
var (
	consoleWriteFn = func(p []byte) {}
	consoleGetcFn  = func() (byte, bool) { return 0, false }

	// elfLoadFn loads the ELF image at elfVA (already mapped into
	// callerPid's address space) into a freshly created pmap and returns
	// the pid of the new process. nil until kmain wires a real loader.
	elfLoadFn func(callerPid int, elfVA uintptr) (int, *kernel.Error)

	// spawnLoadFn creates a process from the statically-linked binary
	// occupying spawn table slot `slot`.
	spawnLoadFn func(slot int) (int, *kernel.Error)

	// secondStageInitFn bootstraps the second-stage init process for the
	// setuppios syscall.
	secondStageInitFn func() *kernel.Error

	// hostNVRAMFn returns the HostNVRAM a new VM's vNVRAM device reads
	// extended/high memory size from. Wired by kmain to the real CMOS
	// port driver.
	hostNVRAMFn func() devices.HostNVRAM
)

// SetConsoleFuncs registers the console write/getc collaborators.
func SetConsoleFuncs(write func([]byte), getc func() (byte, bool)) {
	consoleWriteFn = write
	consoleGetcFn = getc
}

// SetELFLoader registers the ELF-loading collaborator used by the `load`
// syscall.
func SetELFLoader(fn func(callerPid int, elfVA uintptr) (int, *kernel.Error)) {
	elfLoadFn = fn
}

// SetSpawnLoader registers the static-binary loader used by the `spawn`
// syscall.
func SetSpawnLoader(fn func(slot int) (int, *kernel.Error)) {
	spawnLoadFn = fn
}

// SetSecondStageInit registers the collaborator invoked by `setuppios`.
func SetSecondStageInit(fn func() *kernel.Error) {
	secondStageInitFn = fn
}

// SetHostNVRAM registers the collaborator `createvm` uses to read the
// host's extended/high memory size into the new VM's vNVRAM device.
func SetHostNVRAM(fn func() devices.HostNVRAM) {
	hostNVRAMFn = fn
}

// vmByPid associates a pid with the VM it created via createvm, so a later
// startupvm from the same pid knows which VM to run a VCPU against.
var vmByPid [proc.NPROC]*hvm.VM

// VMOwnedBy returns the VM pid created via createvm, or nil. The
// scheduler's timer-tick hook uses it to flag the preempted pid's guest
// for exit.
func VMOwnedBy(pid int) *hvm.VM {
	if pid < 0 || pid >= proc.NPROC {
		return nil
	}
	return vmByPid[pid]
}

// copyInFn/copyOutFn/resvFn wrap kernel/mem/vmm's user-memory accessors as
// seams, same idiom as readCR2Fn in trap.go: production wiring is the real
// vmm functions, which depend on an activated pmap/MMU walk tests can't
// exercise directly, so tests substitute fakes instead.
var (
	copyInFn  = vmm.CopyIn
	copyOutFn = vmm.CopyOut
	resvFn    = vmm.Resv
)

// SetVMMCopyFuncs overrides the user-memory copy-in/copy-out collaborators;
// used by tests to fake a mapped address space without real paging.
func SetVMMCopyFuncs(in func(pid int, dst []byte, srcVA uintptr) (int, *kernel.Error), out func(pid int, dstVA uintptr, src []byte) (int, *kernel.Error)) {
	copyInFn = in
	copyOutFn = out
}

// SetVMMResvFunc overrides the page-reservation collaborator the
// mgmt/allocpage sub-command uses.
func SetVMMResvFunc(fn func(pid, cid int, va uintptr, perm vmm.PageTableEntryFlag) *kernel.Error) {
	resvFn = fn
}

// dispatchSyscall is installed on gate.SyscallVector by Init. Six
// registers carry the arguments (eax=nr, ebx, ecx, edx, esi, edi) and the
// return goes back the same way (eax=errno, ebx..edi=retvals). sigret is
// the one exception: it replaces the trapframe outright instead of
// returning through it.
func dispatchSyscall(r *gate.Registers) {
	captureUctx(r, FromUser(r))

	nr := r.EAX
	a1, a2, a3, a4, a5 := r.EBX, r.ECX, r.EDX, r.ESI, r.EDI

	if nr == SysSigret {
		sysSigret(r)
		return
	}

	var errno kernel.Errno
	var ret1, ret2, ret3, ret4, ret5 uint32

	switch nr {
	case SysPuts:
		errno = sysPuts(uintptr(a1), a2)
	case SysGetc:
		ret1, errno = sysGetc()
	case SysNcpu:
		ret1 = uint32(smp.NumCPU())
	case SysCpustat:
		ret1, errno = sysCpustat(int(a1))
	case SysSignal:
		errno = sysSignal(uintptr(a1), uintptr(a2))
	case SysLoad:
		ret1, errno = sysLoad(uintptr(a1))
	case SysMgmt:
		errno = sysMgmt(int(a1), uintptr(a2))
	case SysStartupVM:
		errno = sysStartupVM()
	case SysSetupPios:
		errno = sysSetupPios()
	case SysCreateVM:
		errno = sysCreateVM()
	case SysSpawn:
		ret1, errno = sysSpawn(int(a1))
	case SysYield:
		proc.Yield()
	case SysSend:
		errno = sysSend(int(a1), a2)
	case SysRecv:
		ret1, errno = sysRecv(int(a1))
	case SysSSend:
		ret1, errno = sysSSend(int(a1), uintptr(a2), int(a3))
	case SysSRecv:
		ret1, errno = sysSRecv(int(a1), uintptr(a2), int(a3))
	case SysProduce:
		errno = sysProduce(int(a1))
	case SysConsume:
		errno = sysConsume(int(a1))
	default:
		errno = kernel.ErrnoDisallowed
	}

	_ = a4
	_ = a5

	r.EAX = uint32(errno)
	r.EBX = ret1
	r.ECX = ret2
	r.EDX = ret3
	r.ESI = ret4
	r.EDI = ret5
}

// sysPuts writes a user buffer to the console. It copies the user buffer
// into a fixed kernel scratch buffer rather than writing directly off user
// memory, the same copy-in discipline every other syscall that touches
// user VAs follows.
func sysPuts(bufVA uintptr, length uint32) kernel.Errno {
	pid := proc.CurrentPid()
	remaining := int(length)
	var scratch [256]byte
	for remaining > 0 {
		n := remaining
		if n > len(scratch) {
			n = len(scratch)
		}
		got, err := copyInFn(pid, scratch[:n], bufVA)
		if err != nil {
			return err.Errno
		}
		consoleWriteFn(scratch[:got])
		bufVA += uintptr(got)
		remaining -= got
		if got == 0 {
			break
		}
	}
	return kernel.ErrnoOK
}

// sysGetc performs a non-blocking read from the console.
func sysGetc() (uint32, kernel.Errno) {
	b, ok := consoleGetcFn()
	if !ok {
		return 0, kernel.ErrnoIPC
	}
	return uint32(b), kernel.ErrnoOK
}

// sysCpustat returns the pid currently running on the given cpu.
func sysCpustat(cpu int) (uint32, kernel.Errno) {
	pid, err := proc.CurrentPidOnCPU(cpu)
	if err != nil {
		return 0, err.Errno
	}
	return uint32(pid), kernel.ErrnoOK
}

// sysSignal registers an async signal handler and its scratch buffer. The
// handler is invoked by a later DeliverSignal call
// (kernel/trap/signal.go), not automatically by registration alone.
func sysSignal(handlerVA, bufferVA uintptr) kernel.Errno {
	t := proc.Current()
	if t == nil {
		return kernel.ErrnoDisallowed
	}
	t.SignalHandlerVA = handlerVA
	t.SignalBufferVA = bufferVA
	return kernel.ErrnoOK
}

// sysSigret returns from a signal handler by replacing the trapframe about
// to be resumed with the one DeliverSignal displaced: the "replacement
// context" half of the trap-return contract.
func sysSigret(r *gate.Registers) {
	t := proc.Current()
	if t == nil || t.SavedUctx == nil {
		r.EAX = uint32(kernel.ErrnoDisallowed)
		return
	}
	*r = *t.SavedUctx
	t.Uctx = *r
	t.SavedUctx = nil
}

// sysLoad loads the ELF image at elf_va into a new pmap.
func sysLoad(elfVA uintptr) (uint32, kernel.Errno) {
	if elfLoadFn == nil {
		return 0, kernel.ErrnoDisallowed
	}
	pid, err := elfLoadFn(proc.CurrentPid(), elfVA)
	if err != nil {
		return 0, err.Errno
	}
	return uint32(pid), kernel.ErrnoOK
}

// sysSpawn creates a process from the statically-linked binary in the
// given spawn-table slot.
func sysSpawn(slot int) (uint32, kernel.Errno) {
	if spawnLoadFn == nil {
		return 0, kernel.ErrnoDisallowed
	}
	pid, err := spawnLoadFn(slot)
	if err != nil {
		return 0, err.Errno
	}
	proc.SetParent(pid, proc.CurrentPid())
	return uint32(pid), kernel.ErrnoOK
}

// sysMgmt services the mgmt sub-commands: start marks a created pid READY,
// stop marks it DEAD, allocpage reserves one page at a caller-supplied VA.
func sysMgmt(cmd int, paramsVA uintptr) kernel.Errno {
	pid := proc.CurrentPid()
	switch cmd {
	case MgmtStart:
		var buf [4]byte
		if _, err := copyInFn(pid, buf[:], paramsVA); err != nil {
			return err.Errno
		}
		target := int(decode32(buf[:]))
		if err := proc.Start(target, cpuIDFn()); err != nil {
			return err.Errno
		}
		return kernel.ErrnoOK
	case MgmtStop:
		var buf [4]byte
		if _, err := copyInFn(pid, buf[:], paramsVA); err != nil {
			return err.Errno
		}
		proc.Kill(int(decode32(buf[:])))
		return kernel.ErrnoOK
	case MgmtAllocPage:
		t := proc.Get(pid)
		if t == nil {
			return kernel.ErrnoInvalidPid
		}
		perm := vmm.FlagPresent | vmm.FlagRW | vmm.FlagUserAccessible
		if err := resvFn(pid, t.ContainerID, paramsVA, perm); err != nil {
			return err.Errno
		}
		return kernel.ErrnoOK
	default:
		return kernel.ErrnoDisallowed
	}
}

// sysStartupVM enters the VMM loop on this CPU: it runs a VCPU for the VM
// the calling pid created with createvm until the guest halts or takes an
// unrecoverable exit.
func sysStartupVM() kernel.Errno {
	pid := proc.CurrentPid()
	vm := vmByPid[pid]
	if vm == nil {
		return kernel.ErrnoDisallowed
	}
	vcpu := hvm.NewVCPU(vm, cpuIDFn())
	if err := vcpu.Run(); err != nil {
		return err.Errno
	}
	return kernel.ErrnoOK
}

// sysSetupPios bootstraps the second-stage init process.
func sysSetupPios() kernel.Errno {
	if secondStageInitFn == nil {
		return kernel.ErrnoDisallowed
	}
	if err := secondStageInitFn(); err != nil {
		return err.Errno
	}
	return kernel.ErrnoOK
}

// sysCreateVM allocates a vm struct, binding it to the calling pid for a
// later startupvm.
func sysCreateVM() kernel.Errno {
	pid := proc.CurrentPid()
	if vmByPid[pid] != nil {
		return kernel.ErrnoDisallowed
	}
	var host devices.HostNVRAM
	if hostNVRAMFn != nil {
		host = hostNVRAMFn()
	}
	vm, err := hvm.NewVM(host)
	if err != nil {
		return err.Errno
	}
	vmByPid[pid] = vm
	return kernel.ErrnoOK
}

// sysSend sends one word on chid, blocking while the channel is full.
func sysSend(chid int, word uint32) kernel.Errno {
	if err := ipc.Send(chid, word); err != nil {
		return err.Errno
	}
	return kernel.ErrnoOK
}

// sysRecv receives one word from chid, blocking while it is empty.
func sysRecv(chid int) (uint32, kernel.Errno) {
	word, err := ipc.Recv(chid)
	if err != nil {
		return 0, err.Errno
	}
	return word, kernel.ErrnoOK
}

// sysSSend copies n words out of the caller's address space at bufVA and
// sends them in order.
func sysSSend(chid int, bufVA uintptr, n int) (uint32, kernel.Errno) {
	pid := proc.CurrentPid()
	words, err := readWordsIn(pid, bufVA, n)
	if err != nil {
		return 0, err.Errno
	}
	sent, serr := ipc.SSend(chid, words)
	if serr != nil {
		return uint32(sent), serr.Errno
	}
	return uint32(sent), kernel.ErrnoOK
}

// sysSRecv receives up to n words sent by fromPid and copies them out to
// the caller's address space at bufVA.
func sysSRecv(fromPid int, bufVA uintptr, n int) (uint32, kernel.Errno) {
	if n < 0 {
		return 0, kernel.ErrnoDisallowed
	}
	words := make([]uint32, n)
	got, err := ipc.SRecv(fromPid, words)
	if err != nil {
		return uint32(got), err.Errno
	}
	pid := proc.CurrentPid()
	if werr := writeWordsOut(pid, bufVA, words[:got]); werr != nil {
		return uint32(got), werr.Errno
	}
	return uint32(got), kernel.ErrnoOK
}

// sysProduce increments the counting semaphore sid, waking one consumer.
func sysProduce(sid int) kernel.Errno {
	if err := ipc.Produce(sid); err != nil {
		return err.Errno
	}
	return kernel.ErrnoOK
}

// sysConsume blocks while sid's count is zero, then decrements it.
func sysConsume(sid int) kernel.Errno {
	if err := ipc.Consume(sid); err != nil {
		return err.Errno
	}
	return kernel.ErrnoOK
}

// readWordsIn copies n little-endian uint32 words out of pid's address
// space starting at va, matching the manual byte-packing ipc.PostIntr uses
// for its own cross-address-space payload.
func readWordsIn(pid int, va uintptr, n int) ([]uint32, *kernel.Error) {
	raw := make([]byte, n*4)
	if _, err := copyInFn(pid, raw, va); err != nil {
		return nil, err
	}
	words := make([]uint32, n)
	for i := range words {
		words[i] = decode32(raw[i*4:])
	}
	return words, nil
}

// writeWordsOut copies words into pid's address space starting at va as
// little-endian uint32s.
func writeWordsOut(pid int, va uintptr, words []uint32) *kernel.Error {
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		encode32(raw[i*4:], w)
	}
	_, err := copyOutFn(pid, va, raw)
	return err
}

func decode32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encode32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
