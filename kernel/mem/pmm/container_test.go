package pmm

import "testing"

func TestContainerSplitAndQuota(t *testing.T) {
	resetFrameTable(32, func(f Frame) bool { return f >= 1 && f < 20 })
	root := ContainerInit(10)

	child, err := ContainerSplit(root, 6)
	if err != nil {
		t.Fatalf("unexpected error splitting within quota: %v", err)
	}

	if _, err := ContainerSplit(root, 5); err == nil {
		t.Fatal("expected ContainerSplit to fail once it would exceed the root's quota (6+5 > 10)")
	}

	grandchild, err := ContainerSplit(child, 3)
	if err != nil {
		t.Fatalf("unexpected error splitting child within its own quota: %v", err)
	}

	if containers[root].usage != 6 {
		t.Errorf("expected root usage to reflect the 6-frame child quota; got %d", containers[root].usage)
	}

	_ = grandchild
}

func TestContainerAllocChargesAncestors(t *testing.T) {
	resetFrameTable(32, func(f Frame) bool { return f >= 1 && f < 20 })
	root := ContainerInit(4)
	child, err := ContainerSplit(root, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var frames []Frame
	for i := 0; i < 4; i++ {
		f, err := ContainerAlloc(child)
		if err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", i, err)
		}
		frames = append(frames, f)
	}

	if _, err := ContainerAlloc(child); err == nil {
		t.Fatal("expected ContainerAlloc to fail once the child's quota is exhausted")
	}

	if containers[root].usage != 4 {
		t.Errorf("expected quota charge to propagate to the root container; got usage %d", containers[root].usage)
	}

	ContainerFree(child, frames[0])
	if containers[child].usage != 3 {
		t.Errorf("expected ContainerFree to refund the child's usage; got %d", containers[child].usage)
	}
	if containers[root].usage != 3 {
		t.Errorf("expected ContainerFree to refund the root's usage; got %d", containers[root].usage)
	}

	if Allocated(frames[0]) {
		t.Error("expected ContainerFree to release the underlying frame")
	}
}

func TestContainerSplitRejectsUnknownParent(t *testing.T) {
	resetFrameTable(8, func(Frame) bool { return true })
	ContainerInit(10)

	if _, err := ContainerSplit(99, 1); err == nil {
		t.Fatal("expected ContainerSplit to reject an out-of-range parent id")
	}
}
