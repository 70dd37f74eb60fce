// Package proc implements the thread pool and scheduler (components E, F
// and G): a fixed-size pool of Thread Control Blocks, per-CPU ready
// queues, cooperative yield/sleep/wakeup plus preemptive timer scheduling,
// and the context-switch contract that ties them together.
package proc

import "gophercore/kernel"

const (
	// NPROC bounds the TCB pool: a fixed-size pool of Thread Control
	// Blocks. Mirrored by kernel/mem/vmm.MaxPmaps and
	// kernel/mem/pmm.MaxContainers, since pmap-id and container-id
	// usually equal pid.
	NPROC = 64

	// MaxCPU bounds the per-CPU ready-queue table, supporting up to 64
	// CPUs.
	MaxCPU = 64

	// none is the end-of-list / no-pid sentinel used throughout the
	// queue and TCB pool.
	none = NPROC
)

var (
	errNoFreeTCB = &kernel.Error{Module: "proc", Message: "thread pool exhausted", Errno: kernel.ErrnoMem}
	errBadPid    = &kernel.Error{Module: "proc", Message: "invalid or dead pid", Errno: kernel.ErrnoInvalidPid}
	errBadCPU    = &kernel.Error{Module: "proc", Message: "invalid cpu id", Errno: kernel.ErrnoDisallowed}
)
