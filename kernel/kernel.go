// Package kernel contains the types and helpers shared by every other
// kernel package: the allocation-free Error type, the syscall-visible
// Errno taxonomy and a handful of memory primitives used before the Go
// allocator is available.
package kernel

// Error describes a kernel error. All kernel errors must be defined as
// global variables that are pointers to the Error structure. This
// requirement stems from the fact that the Go allocator is not available to
// us so we cannot use errors.New.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message.
	Message string

	// Errno is the syscall-visible error code associated with this
	// error, or ErrnoOK if the error only exists for internal use.
	Errno Errno
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Errno enumerates the error taxonomy exposed to user-mode syscalls.
type Errno uint32

const (
	// ErrnoOK indicates success.
	ErrnoOK Errno = iota

	// ErrnoMem indicates that the frame allocator or a container denied
	// an allocation request. Callers may retry.
	ErrnoMem

	// ErrnoInvalidPid indicates that a pid argument does not name a
	// live thread control block.
	ErrnoInvalidPid

	// ErrnoIPC indicates a channel was closed or a size mismatch
	// occurred during a send/recv operation.
	ErrnoIPC

	// ErrnoPageFault indicates a page fault occurred while running
	// user-mode code. The offending process is killed.
	ErrnoPageFault

	// ErrnoDisallowed indicates the requested syscall is not permitted
	// given the caller's current CPU/process state.
	ErrnoDisallowed
)

// String renders the Errno using its syscall-visible mnemonic.
func (e Errno) String() string {
	switch e {
	case ErrnoOK:
		return "E_OK"
	case ErrnoMem:
		return "E_MEM"
	case ErrnoInvalidPid:
		return "E_INVAL_PID"
	case ErrnoIPC:
		return "E_IPC"
	case ErrnoPageFault:
		return "E_PGFLT"
	case ErrnoDisallowed:
		return "E_DISALLOWED"
	default:
		return "E_UNKNOWN"
	}
}

// NewError allocates (at package-init time only) a predeclared Error value
// carrying the given Errno so call sites can return a single pointer
// instead of constructing a fresh Error on every failure path.
func NewError(module, message string, errno Errno) *Error {
	return &Error{Module: module, Message: message, Errno: errno}
}
