package heap

import "testing"

func TestFallbackCoalescesOnFree(t *testing.T) {
	f := &fallback{}
	f.init(0x1000, 0x3000)

	a := f.alloc(0x1000, 1)
	b := f.alloc(0x1000, 1)
	c := f.alloc(0x1000, 1)

	if a == 0 || b == 0 || c == 0 {
		t.Fatalf("expected three successful allocations, got %#x %#x %#x", a, b, c)
	}

	f.dealloc(a, 0x1000)
	f.dealloc(b, 0x1000)
	f.dealloc(c, 0x1000)

	if f.free.Len() != 1 {
		t.Fatalf("expected adjacent frees to coalesce into one block, got %d blocks", f.free.Len())
	}

	// The coalesced block should satisfy a full-size request again.
	if f.alloc(0x3000, 1) == 0 {
		t.Fatalf("coalesced block could not satisfy a full-region allocation")
	}
}

func TestFallbackAlignment(t *testing.T) {
	f := &fallback{}
	f.init(0x1001, 0x1000)

	p := f.alloc(16, 16)
	if p%16 != 0 {
		t.Fatalf("allocation %#x is not 16-byte aligned", p)
	}
}
