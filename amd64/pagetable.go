// AMD64 processor support
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	"github.com/kestrel-os/kestrel/internal/reg"
	"github.com/kestrel-os/kestrel/mm/pmm"
	"github.com/kestrel-os/kestrel/mm/vmm"
)

// PageTable adapts the CPU's FindPTE 4-level page walk (mmu.go) to the
// arch-agnostic mm/vmm.PTE interface, so vmm.Mapper's pure bookkeeping
// runs unmodified over the real hardware page tables.
type PageTable struct {
	cpu *CPU
}

// NewPageTable returns a vmm.PTE backed by cpu's page tables.
func NewPageTable(cpu *CPU) *PageTable {
	return &PageTable{cpu: cpu}
}

func flagsToEntry(pa uint64, flags vmm.Flags) uint64 {
	entry := (pa & addrMask) | TTE_P

	if flags&vmm.Writable != 0 {
		entry |= 1 << 1
	}

	if flags&vmm.UserAccessible != 0 {
		entry |= 1 << 2
	}

	if flags&vmm.NoExecute != 0 {
		entry |= 1 << 63
	}

	return entry
}

// Install writes a present PTE for va -> pa with flags. Only leaf
// (PT-level, 4K) mappings are supported; callers that need huge pages
// must pre-populate the intermediate levels themselves.
func (p *PageTable) Install(va uintptr, pa pmm.Frame, flags vmm.Flags) error {
	off, level, _ := p.cpu.FindPTE(uint64(va), 0)

	if level != PT || off == 0 {
		return vmm.ErrOutOfVirtualAddress
	}

	reg.Write64(off, flagsToEntry(uint64(pa), flags))

	return nil
}

// Clear removes the PTE for va, if present, returning the frame it held.
func (p *PageTable) Clear(va uintptr) (pmm.Frame, bool) {
	off, level, _ := p.cpu.FindPTE(uint64(va), 0)

	if level != PT || off == 0 {
		return 0, false
	}

	entry := reg.Read64(off)
	if entry&TTE_P == 0 {
		return 0, false
	}

	reg.Write64(off, 0)

	return pmm.Frame(entry & addrMask), true
}

// Lookup returns the physical frame and flags mapped at va, or ok false
// if unmapped.
func (p *PageTable) Lookup(va uintptr) (frame pmm.Frame, flags vmm.Flags, ok bool) {
	off, level, page := p.cpu.FindPTE(uint64(va), 0)

	if level != PT || off == 0 {
		return 0, 0, false
	}

	entry := reg.Read64(off)

	if entry&TTE_P == 0 {
		return 0, 0, false
	}

	flags = vmm.Present

	if entry&(1<<1) != 0 {
		flags |= vmm.Writable
	}
	if entry&(1<<2) != 0 {
		flags |= vmm.UserAccessible
	}
	if entry&(1<<63) != 0 {
		flags |= vmm.NoExecute
	}

	return pmm.Frame(page), flags, true
}

// SetFlags rewrites the flags of an existing mapping, preserving its
// physical address.
func (p *PageTable) SetFlags(va uintptr, flags vmm.Flags) bool {
	pa, _, ok := p.Lookup(va)
	if !ok {
		return false
	}
	return p.Install(va, pa, flags) == nil
}

// defined in mmu.s: reads CR2, the faulting linear address latched by
// the processor on the most recent #PF.
func read_cr2() uint64
