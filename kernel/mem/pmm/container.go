package pmm

import "gophercore/kernel"

// MaxContainers bounds the container tree: one root container plus one
// per process-table slot. kernel/proc's NPROC constant is mirrored here
// rather than imported, to keep pmm free of a dependency on kernel/proc.
const MaxContainers = 65

const noContainer = -1

// Container is a quota-tracked owner of frames, arranged as a tree: a
// single root created by ContainerInit and one child per process. Every
// allocation is charged bottom-up to the root so a runaway child can never
// starve its siblings past the quota its parent handed it.
type Container struct {
	parent   int
	quota    uint32
	usage    uint32
	children uint32
	inUse    bool
}

var (
	containers [MaxContainers]Container

	errQuotaExceeded = &kernel.Error{Module: "pmm", Message: "container quota exceeded", Errno: kernel.ErrnoMem}
	errNoContainers  = &kernel.Error{Module: "pmm", Message: "container table exhausted", Errno: kernel.ErrnoMem}
	errBadContainer  = &kernel.Error{Module: "pmm", Message: "invalid container id", Errno: kernel.ErrnoMem}
)

// ContainerInit resets the container table and creates the root container
// with the given quota (in frames). It returns the root's container id.
func ContainerInit(rootQuota uint32) int {
	for i := range containers {
		containers[i] = Container{}
	}
	containers[0] = Container{parent: noContainer, quota: rootQuota, inUse: true}
	return 0
}

// ContainerSplit creates a child of parent with the given quota, failing if
// the parent cannot cover it.
//
// The invariant enforced bottom-up to the root is
// sum(child.quota) + self.usage <= self.quota.
func ContainerSplit(parent int, childQuota uint32) (int, *kernel.Error) {
	if !validContainer(parent) {
		return noContainer, errBadContainer
	}

	if containers[parent].usage+childQuota > containers[parent].quota {
		return noContainer, errQuotaExceeded
	}

	for i := range containers {
		if i == 0 || containers[i].inUse {
			continue
		}
		containers[i] = Container{parent: parent, quota: childQuota, inUse: true}
		containers[parent].usage += childQuota
		containers[parent].children++
		return i, nil
	}

	return noContainer, errNoContainers
}

// ContainerAlloc reserves one frame against cid's quota, walking up to the
// root to charge every ancestor's usage, then calls AllocFrame.
func ContainerAlloc(cid int) (Frame, *kernel.Error) {
	if !validContainer(cid) {
		return InvalidFrame, errBadContainer
	}

	if err := chargeQuota(cid, 1); err != nil {
		return InvalidFrame, err
	}

	f, err := AllocFrame()
	if err != nil {
		refundQuota(cid, 1)
		return InvalidFrame, err
	}
	return f, nil
}

// ContainerFree releases a frame previously obtained via ContainerAlloc and
// refunds its quota charge to cid and every ancestor.
func ContainerFree(cid int, f Frame) {
	FreeFrame(f)
	if validContainer(cid) {
		refundQuota(cid, 1)
	}
}

func validContainer(cid int) bool {
	return cid >= 0 && cid < MaxContainers && containers[cid].inUse
}

// chargeQuota walks from cid up to the root, failing (without partially
// committing) if any ancestor's usage would exceed its quota.
func chargeQuota(cid int, delta uint32) *kernel.Error {
	for c := cid; c != noContainer; c = containers[c].parent {
		if containers[c].usage+delta > containers[c].quota {
			// Roll back anything already charged along this path.
			for u := cid; u != c; u = containers[u].parent {
				containers[u].usage -= delta
			}
			return errQuotaExceeded
		}
		containers[c].usage += delta
	}
	return nil
}

func refundQuota(cid int, delta uint32) {
	for c := cid; c != noContainer; c = containers[c].parent {
		containers[c].usage -= delta
	}
}
