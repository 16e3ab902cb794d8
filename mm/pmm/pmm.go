// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pmm implements the physical frame allocator (C2): it hands out
// 4 KiB physical frames out of firmware-reported usable memory, and
// recycles freed frames through a LIFO free-list.
//
// Grounded on the teacher's internal/dma first-fit block allocator
// (free list of blocks, bootstrap bump arena to avoid a cycle with the
// kernel heap) generalized from arbitrary byte ranges to fixed-size
// frames.
package pmm

import (
	"errors"
	"sync"

	"github.com/kestrel-os/kestrel/config"
)

// ErrOutOfMemory is returned when both the region iterator and the
// free-list are exhausted.
var ErrOutOfMemory = errors.New("pmm: out of memory")

// Frame is a 4 KiB-aligned physical address.
type Frame uintptr

// Region describes one firmware-reported usable physical memory range,
// already filtered to "usable" classification by the caller.
type Region struct {
	Base   uintptr
	Length uintptr
}

// freeNode is a free-list entry. Nodes come from a small bump arena
// carved out at Init time so that freeing frames never depends on the
// kernel heap (mm/heap itself consumes frames from this allocator,
// which would otherwise be a bootstrap cycle).
type freeNode struct {
	frame Frame
	next  *freeNode
}

// Allocator is the singleton physical frame allocator. The zero value is
// not ready for use; call Init first.
type Allocator struct {
	mu sync.Mutex

	regions    []Region
	regionIdx  int
	regionNext uintptr

	free *freeNode

	arena    []freeNode
	arenaPos int

	allocated uint64
}

// Init seeds the allocator from the firmware memory map's usable regions.
// arenaCap is the number of free-list nodes preallocated here; once they
// are used up, Deallocate allocates further nodes with new. Callers
// should size it to the expected steady-state number of freed frames.
func (a *Allocator) Init(regions []Region, arenaCap int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.regions = regions
	a.regionIdx = 0
	if len(regions) > 0 {
		a.regionNext = regions[0].Base
	}
	a.arena = make([]freeNode, arenaCap)
	a.arenaPos = 0
	a.free = nil
}

// Allocate hands out a previously-unused or freed 4 KiB frame.
func (a *Allocator) Allocate() (Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.free != nil {
		n := a.free
		a.free = n.next
		a.allocated++
		return n.frame, nil
	}

	for a.regionIdx < len(a.regions) {
		r := a.regions[a.regionIdx]
		end := r.Base + r.Length

		if a.regionNext+config.PageSize <= end {
			f := Frame(a.regionNext)
			a.regionNext += config.PageSize
			a.allocated++
			return f, nil
		}

		a.regionIdx++
		if a.regionIdx < len(a.regions) {
			a.regionNext = a.regions[a.regionIdx].Base
		}
	}

	return 0, ErrOutOfMemory
}

// Deallocate returns frame to the free-list (LIFO), so a subsequent
// Allocate may hand it straight back out.
func (a *Allocator) Deallocate(f Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var n *freeNode
	if a.arenaPos < len(a.arena) {
		n = &a.arena[a.arenaPos]
		a.arenaPos++
	} else {
		// Arena exhausted: fall back to a node allocated from the Go
		// runtime heap.
		n = new(freeNode)
	}

	n.frame = f
	n.next = a.free
	a.free = n
	a.allocated--
}

// Allocated returns the number of frames currently considered live.
func (a *Allocator) Allocated() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated
}
