// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package heap implements the kernel heap allocator (C4): seven
// power-of-two slab tiers (32..2048 bytes) plus a linked-list fallback,
// laid out over disjoint sub-ranges of a managed virtual region that is
// never pre-populated — touching an unmapped page lazily backs it via the
// page-fault handler (see LazyMap).
//
// Grounded on original_source's crates/snalloc (slab tiers + buddy
// fallback slot); this implementation completes snalloc's fallback slot,
// which the original left stubbed to always fail, with the linked-list
// allocator spec.md §4.3 requires.
package heap

import (
	"errors"
	"sync"

	"github.com/kestrel-os/kestrel/config"
)

// ErrOutOfHeap is returned when the fallback allocator cannot satisfy a
// request; per spec.md §7 the global allocator surfaces this as a null
// pointer and the caller's unwrap panics, so Go call sites should treat a
// non-nil error the same way unless they can degrade gracefully.
var ErrOutOfHeap = errors.New("heap: out of memory")

// Heap is the kernel's global allocator. The zero value is not ready for
// use; call Init first.
type Heap struct {
	mu sync.Mutex

	start uintptr
	size  uintptr

	slabs    [7]slab
	fallback fallback
}

// Init partitions [start, start+size) into seven slab sub-ranges plus a
// final fallback sub-range, matching config.SlabTiers order.
func (h *Heap) Init(start, size uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.start = start
	h.size = size

	regionSize := size / uintptr(len(h.slabs)+1)

	for i, tier := range config.SlabTiers {
		s := start + uintptr(i)*regionSize
		h.slabs[i].size = uintptr(tier)
		h.slabs[i].init(s, regionSize)
	}

	fallbackStart := start + uintptr(len(h.slabs))*regionSize
	h.fallback.init(fallbackStart, regionSize)
}

// tierFor returns the smallest slab tier with tier_size >= max(size,
// align), or nil if the request must fall through to the fallback.
func (h *Heap) tierFor(size, alignment uintptr) *slab {
	need := size
	if alignment > need {
		need = alignment
	}

	for i := range h.slabs {
		if h.slabs[i].size >= need {
			return &h.slabs[i]
		}
	}

	return nil
}

// Alloc returns a pointer to size bytes aligned to alignment, or
// ErrOutOfHeap. The returned range always lies entirely within exactly
// one slab sub-range or the fallback.
func (h *Heap) Alloc(size, alignment uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s := h.tierFor(size, alignment); s != nil {
		if ptr := s.alloc(); ptr != 0 {
			return ptr, nil
		}
		return 0, ErrOutOfHeap
	}

	if ptr := h.fallback.alloc(size, alignment); ptr != 0 {
		return ptr, nil
	}

	return 0, ErrOutOfHeap
}

// Dealloc returns ptr (previously returned by Alloc with the same size)
// to whichever tier owns it.
func (h *Heap) Dealloc(ptr, size uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.slabs {
		if h.slabs[i].owns(ptr) {
			h.slabs[i].dealloc(ptr)
			return
		}
	}

	if h.fallback.owns(ptr) {
		h.fallback.dealloc(ptr, size)
	}
}

// Bounds returns the managed region's half-open virtual range.
func (h *Heap) Bounds() (start, end uintptr) {
	return h.start, h.start + h.size
}

// Contains reports whether addr falls within the managed region,
// regardless of whether it is currently backed by a physical frame.
func (h *Heap) Contains(addr uintptr) bool {
	return addr >= h.start && addr < h.start+h.size
}
