package pmm

import (
	"testing"

	"github.com/kestrel-os/kestrel/config"
)

func newTestAllocator(pages int) *Allocator {
	a := &Allocator{}
	a.Init([]Region{{Base: 0x100000, Length: uintptr(pages) * config.PageSize}}, 16)
	return a
}

func TestAllocateSequential(t *testing.T) {
	a := newTestAllocator(4)

	f1, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	f2, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if f2-f1 != config.PageSize {
		t.Fatalf("frames not page-stride apart: %#x %#x", f1, f2)
	}
}

func TestOutOfMemory(t *testing.T) {
	a := newTestAllocator(1)

	if _, err := a.Allocate(); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}

	if _, err := a.Allocate(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

// TestFreeListRoundTrip covers invariant 6 and scenario-equivalent
// behaviour: a freed frame may be handed straight back out (LIFO) and
// must not be handed out again while still considered live.
func TestFreeListRoundTrip(t *testing.T) {
	a := newTestAllocator(4)

	f, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	a.Deallocate(f)

	f2, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate after free: %v", err)
	}

	if f2 != f {
		t.Fatalf("LIFO free-list did not return most recently freed frame: got %#x want %#x", f2, f)
	}

	// f is live again: deallocating a different, still-live frame must
	// not make f reappear.
	f3, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	a.Deallocate(f3)

	f4, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if f4 == f2 {
		t.Fatalf("allocator returned a live frame: %#x", f4)
	}
}
