// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package heap

import "unsafe"

// slab is one fixed-size-cell tier. Cells are handed out by advancing
// next linearly; freed cells are pushed onto a LIFO by writing the
// previous next into the cell's first word. The slab never splits or
// coalesces — the tier is exactly the stride.
//
// Grounded on original_source's crates/snalloc SlabAllocator.
type slab struct {
	start uintptr
	end   uintptr
	next  uintptr
	size  uintptr
}

func (s *slab) init(start, size uintptr) {
	s.start = start
	s.end = start + size
	s.next = start
}

func wordAt(addr uintptr) *uintptr {
	return (*uintptr)(unsafe.Pointer(addr))
}

// alloc returns a new cell, or 0 if the tier is exhausted.
func (s *slab) alloc() uintptr {
	if s.next >= s.end {
		return 0
	}

	cell := s.next
	cellNext := *wordAt(cell)
	*wordAt(cell) = 0

	if cellNext == 0 {
		s.next += s.size
	} else {
		s.next = cellNext
	}

	return cell
}

// dealloc pushes ptr back onto the tier's free list.
func (s *slab) dealloc(ptr uintptr) {
	*wordAt(ptr) = s.next
	s.next = ptr
}

// owns reports whether ptr falls within this tier's sub-range.
func (s *slab) owns(ptr uintptr) bool {
	return ptr >= s.start && ptr < s.end
}
