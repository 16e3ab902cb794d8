package heap

import (
	"testing"
	"unsafe"
)

// backing returns a real, GC-pinned byte buffer large enough to host a
// heap region, along with its base address. Because slab/fallback
// bookkeeping operates through unsafe.Pointer arithmetic exactly as it
// would over real physical memory, testing against a Go-owned buffer
// exercises the same code path the production mapper would.
func backing(t *testing.T, size int) (uintptr, []byte) {
	t.Helper()
	buf := make([]byte, size)
	return uintptr(unsafe.Pointer(&buf[0])), buf
}

func TestSlabRoundTrip(t *testing.T) {
	base, buf := backing(t, 64*1024)
	_ = buf

	h := &Heap{}
	h.Init(base, 64*1024)

	p1, err := h.Alloc(24, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	h.Dealloc(p1, 24)

	p2, err := h.Alloc(24, 8)
	if err != nil {
		t.Fatalf("Alloc after dealloc: %v", err)
	}

	if p1 != p2 {
		t.Fatalf("slab did not reuse freed cell: %#x != %#x", p1, p2)
	}
}

func TestSlabTierSelection(t *testing.T) {
	base, buf := backing(t, 1024*1024)
	_ = buf

	h := &Heap{}
	h.Init(base, 1024*1024)

	p, err := h.Alloc(10, 1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if !h.slabs[0].owns(p) {
		t.Fatalf("a 10-byte allocation should land in the 32-byte tier")
	}
}

func TestFallbackForLargeAlloc(t *testing.T) {
	base, buf := backing(t, 1024*1024)
	_ = buf

	h := &Heap{}
	h.Init(base, 1024*1024)

	p, err := h.Alloc(4096, 16)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if !h.fallback.owns(p) {
		t.Fatalf("a 4096-byte allocation should fall through to the fallback")
	}
}

func TestAllocationsDoNotOverlap(t *testing.T) {
	base, buf := backing(t, 1024*1024)
	_ = buf

	h := &Heap{}
	h.Init(base, 1024*1024)

	seen := map[uintptr]bool{}
	for i := 0; i < 100; i++ {
		p, err := h.Alloc(32, 8)
		if err != nil {
			t.Fatalf("Alloc #%d: %v", i, err)
		}
		if seen[p] {
			t.Fatalf("duplicate live allocation at %#x", p)
		}
		seen[p] = true

		if p < h.start || p >= h.start+h.size {
			t.Fatalf("allocation %#x escaped managed region [%#x, %#x)", p, h.start, h.start+h.size)
		}
	}
}

func TestOutOfHeap(t *testing.T) {
	base, buf := backing(t, 256) // far too small to host 7 tiers + fallback meaningfully
	_ = buf

	h := &Heap{}
	h.Init(base, 256)

	// Drain the 32-byte tier (region size is tiny, so this should exhaust quickly).
	var last error
	for i := 0; i < 100; i++ {
		if _, err := h.Alloc(8, 8); err != nil {
			last = err
			break
		}
	}

	if last != ErrOutOfHeap {
		t.Fatalf("expected ErrOutOfHeap, got %v", last)
	}
}
