// Package decode wraps golang.org/x/arch/x86/x86asm to decode trapped guest
// instruction bytes when a VM-exit does not already carry a decoded
// port/width/direction (or the VMCB/VMCS's hardware-assist decode is
// unavailable): a best-effort software fallback for the IN/OUT/MMIO-style
// exits a nested-paging VM-exit alone cannot fully classify.
package decode

import "golang.org/x/arch/x86/x86asm"

// Mode32 selects 32-bit protected-mode decoding, the only mode the guest
// runs in.
const Mode32 = 32

// Access describes the single memory or port operand an IOIO/NPF exit's
// faulting instruction touches, reduced from a full x86asm.Inst down to the
// handful of fields kernel/hvm's vdev dispatch needs: which direction the
// access goes and how many bytes it spans.
type Access struct {
	// Len is the length of the decoded instruction in bytes, used to
	// advance the guest's instruction pointer past it on resume.
	Len int

	// IsWrite is true for a store (OUT, MOV to memory) and false for a
	// load (IN, MOV from memory).
	IsWrite bool

	// Width is the operand width in bytes (1, 2 or 4).
	Width int
}

// GuestAccess decodes the instruction at the front of code (bytes fetched
// from the guest's CS:EIP) and classifies its direction and width. It is
// used when an IOIO or MMIO-style NPF exit's hardware-provided fields are
// ambiguous.
func GuestAccess(code []byte) (Access, error) {
	inst, err := x86asm.Decode(code, Mode32)
	if err != nil {
		return Access{}, err
	}

	acc := Access{Len: inst.Len, Width: inst.DataSize / 8}
	if acc.Width == 0 {
		acc.Width = 4
	}

	switch inst.Op {
	case x86asm.OUT:
		acc.IsWrite = true
	case x86asm.IN:
		acc.IsWrite = false
	case x86asm.MOV, x86asm.MOVZX, x86asm.MOVSX:
		// The destination is the first argument; a memory destination
		// means the guest is storing to MMIO.
		if len(inst.Args) > 0 {
			if _, ok := inst.Args[0].(x86asm.Mem); ok {
				acc.IsWrite = true
			}
		}
	}

	return acc, nil
}
