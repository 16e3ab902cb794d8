// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package vmm implements the virtual memory mapper (C3): it maintains the
// active 4-level page table, maps/unmaps ranges, translates addresses, and
// broadcasts TLB shootdowns.
//
// The page-table walk itself is architecture specific (see the amd64
// package's FindPTE, grounded on amd64/mmu.go's 4-level-paging walk); this
// package owns the architecture-independent half — the free-range search
// policy, region bookkeeping, and the map/unmap/translate contract — behind
// the PTE interface, so it can be exercised by host tests without real
// page tables.
package vmm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kestrel-os/kestrel/config"
	"github.com/kestrel-os/kestrel/mm/pmm"
)

// Flags mirror the PRESENT/WRITABLE/USER_ACCESSIBLE/NX page-table bits.
type Flags uint64

const (
	Present Flags = 1 << iota
	Writable
	UserAccessible
	NoExecute
)

// ErrOutOfFrames is returned when the backing physical allocator cannot
// satisfy a mapping request.
var ErrOutOfFrames = pmm.ErrOutOfMemory

// ErrOutOfVirtualAddress indicates the requested region has no free run of
// the required length. Per spec.md §4.2, callers during boot treat this as
// fatal; runtime callers get it back as an error.
var ErrOutOfVirtualAddress = errors.New("vmm: out of virtual address space")

// PTE abstracts the architecture-specific page-table entry operations the
// mapper drives. The amd64 package's implementation walks CR3 via
// FindPTE-style logic; tests substitute an in-memory fake.
type PTE interface {
	// Install creates or overwrites the mapping for va.
	Install(va uintptr, pa pmm.Frame, flags Flags) error
	// Clear removes the mapping for va, returning the frame it held.
	Clear(va uintptr) (pmm.Frame, bool)
	// Lookup returns the current mapping for va, if any.
	Lookup(va uintptr) (pmm.Frame, Flags, bool)
	// SetFlags updates the flags of an existing mapping.
	SetFlags(va uintptr, flags Flags) bool
}

// Region is a half-open virtual address range the mapper searches for
// free runs within, e.g. the HHDM, device MMIO, or the kernel heap.
type Region struct {
	Start uintptr
	End   uintptr
}

// TlbFlush is a token returned by Unmap documenting that the caller must
// still broadcast a shootdown before relying on the unmapping being
// globally visible (§5: the shootdown IPI does not block for
// acknowledgement).
type TlbFlush struct {
	VA uintptr
}

// Mapper owns region search state and the frame allocator it draws from.
type Mapper struct {
	mu    sync.Mutex
	pte   PTE
	pmm   *pmm.Allocator
	used  map[uintptr]int // VA page -> run length, for occupied runs' start pages only
	pages map[uintptr]bool
}

// New constructs a Mapper over the given PTE implementation and frame
// allocator.
func New(pte PTE, frames *pmm.Allocator) *Mapper {
	return &Mapper{
		pte:   pte,
		pmm:   frames,
		used:  make(map[uintptr]int),
		pages: make(map[uintptr]bool),
	}
}

func pageCount(size uintptr) uintptr {
	return (size + config.PageSize - 1) / config.PageSize
}

// findFreeRun scans region page-by-page, advancing a run counter on free
// pages and resetting on mapped ones; the first run meeting npages wins.
// A null VA is never returned.
func (m *Mapper) findFreeRun(region Region, npages uintptr) (uintptr, error) {
	runStart := uintptr(0)
	run := uintptr(0)

	for va := region.Start; va+config.PageSize <= region.End; va += config.PageSize {
		if m.pages[va] || va == 0 {
			run = 0
			continue
		}

		if run == 0 {
			runStart = va
		}

		run++

		if run >= npages {
			if runStart == 0 {
				continue
			}
			return runStart, nil
		}
	}

	return 0, ErrOutOfVirtualAddress
}

// Map installs a single-page mapping at an address chosen within region,
// returning the resulting virtual address.
func (m *Mapper) Map(pa pmm.Frame, flags Flags, region Region) (uintptr, error) {
	va, err := m.MapRange(pa, config.PageSize, flags, region)
	return va, err
}

// MapRange finds a free VA range of the required page count inside region,
// installs entries with the requested flags backed by freshly allocated
// frames starting at pa (pa==0 means "allocate from pmm instead of using a
// fixed physical base"), and returns the starting VA.
func (m *Mapper) MapRange(pa pmm.Frame, size uintptr, flags Flags, region Region) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	npages := pageCount(size)

	start, err := m.findFreeRun(region, npages)
	if err != nil {
		return 0, err
	}

	for i := uintptr(0); i < npages; i++ {
		va := start + i*config.PageSize

		frame := pa + pmm.Frame(i*config.PageSize)
		if pa == 0 {
			frame, err = m.pmm.Allocate()
			if err != nil {
				m.unmapLocked(start, i)
				return 0, fmt.Errorf("vmm: map range: %w", err)
			}
		}

		if err := m.pte.Install(va, frame, flags); err != nil {
			m.unmapLocked(start, i)
			return 0, err
		}

		m.pages[va] = true
	}

	m.used[start] = int(npages)

	return start, nil
}

func (m *Mapper) unmapLocked(start uintptr, npages uintptr) {
	for i := uintptr(0); i < npages; i++ {
		va := start + i*config.PageSize
		m.pte.Clear(va)
		delete(m.pages, va)
	}
}

// Unmap removes the entry for va, returning the freed frame and a flush
// token the caller must still broadcast via SendTLBShootdown.
func (m *Mapper) Unmap(va uintptr) (pmm.Frame, TlbFlush, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, ok := m.pte.Clear(va)
	if !ok {
		return 0, TlbFlush{}, fmt.Errorf("vmm: unmap %#x: not mapped", va)
	}

	delete(m.pages, va)
	delete(m.used, va)

	return frame, TlbFlush{VA: va}, nil
}

// Translate returns the physical address backing va, if mapped.
func (m *Mapper) Translate(va uintptr) (uintptr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, _, ok := m.pte.Lookup(va)
	return uintptr(frame), ok
}

// SetFlags updates the flags of an existing mapping.
func (m *Mapper) SetFlags(va uintptr, flags Flags) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pte.SetFlags(va, flags)
}

// ShootdownSender abstracts broadcasting the TLB-shootdown IPI (vector 252
// per spec.md §3) to every other core; the amd64/irq package implements it
// over the LAPIC.
type ShootdownSender interface {
	SendTLBShootdown()
}

// SendTLBShootdown asks sender to IPI every other CPU to flush its TLB.
// Per §5, the sender does not wait for acknowledgement.
func (m *Mapper) SendTLBShootdown(sender ShootdownSender) {
	sender.SendTLBShootdown()
}
