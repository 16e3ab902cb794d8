// AMD64 processor support
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	"unsafe"

	"github.com/kestrel-os/kestrel/amd64/idt"
	"github.com/kestrel-os/kestrel/mm/heap"
	"github.com/kestrel-os/kestrel/mm/vmm"
)

// CPU exception vectors this kernel installs fixed handlers for
// (Intel SDM Volume 3A - 6.15, Exception and Interrupt Vectors).
const (
	VectorDoubleFault = 8
	VectorGPFault     = 13
	VectorPageFault   = 14
)

// PageSize is the hardware page size this kernel maps in.
const PageSize = 4096

type zeroer struct{}

func (zeroer) ZeroPage(addr uintptr) {
	p := (*[PageSize]byte)(unsafe.Pointer(addr))
	for i := range p {
		p[i] = 0
	}
}

// InstallFaultHandlers wires the page-fault and double-fault vectors
// to h and mapper. A page fault within h's managed region is backed
// lazily (see heap.Heap.LazyMap); any other fault is unrecoverable.
//
// Grounded on original_source's arch/x86_64/interrupts.rs
// page_fault_handler, which calls allocator::lazy_map(address) and
// panics with the decoded error code on failure.
func InstallFaultHandlers(h *heap.Heap, mapper *vmm.Mapper, shootdown vmm.ShootdownSender) {
	idt.SetException(VectorPageFault, func() {
		addr := uintptr(read_cr2())

		if !h.LazyMap(mapper, zeroer{}, shootdown, addr) {
			panic("page fault: unbacked address outside managed heap region")
		}
	})

	idt.SetException(VectorDoubleFault, func() {
		panic("double fault")
	})

	idt.SetException(VectorGPFault, func() {
		panic("general protection fault")
	})
}
