// Package ipc implements the synchronous IPC channels, per-process bounded
// message queues and counting semaphores (components I and J, plus the
// produce/consume semaphore supplement) layered directly on kernel/proc's
// sleep/wakeup primitives.
package ipc

import "gophercore/kernel"

var (
	errInvalidPid = &kernel.Error{Module: "ipc", Message: "channel not bound to a live pid", Errno: kernel.ErrnoInvalidPid}
	errClosed     = &kernel.Error{Module: "ipc", Message: "channel is closed", Errno: kernel.ErrnoIPC}
	errNoChannels = &kernel.Error{Module: "ipc", Message: "channel table exhausted", Errno: kernel.ErrnoMem}
	errQueueFull  = &kernel.Error{Module: "ipc", Message: "message queue full", Errno: kernel.ErrnoMem}
)
