// Intel Peripheral Component Interconnect (PCI) driver
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pci

import (
	"sync/atomic"
	"unsafe"
)

const msixEnable = 31

// CapabilityMSIX represents an MSI-X Capability Structure.
type CapabilityMSIX struct {
	CapabilityHeader
	MessageControl uint16
	TableOffset    uint32
	PBAOffset      uint32

	device *Device
	off    uint32
}

// Unmarshal decodes a PCI Capability common fields from the argument device
// configuration space at function 0 and the given register offset.
func (msix *CapabilityMSIX) Unmarshal(d *Device, off uint32) (err error) {
	val := d.Read(0, off)
	msix.Vendor = uint8(val & 0xff)
	msix.Next = uint8(val >> 8)
	msix.MessageControl = uint16(val >> 16)

	msix.TableOffset = d.Read(0, off+4)
	msix.PBAOffset = d.Read(0, off+8)

	msix.device = d
	msix.off = off

	return
}

// TableSize returns the number of entries in the MSI-X table.
func (msix *CapabilityMSIX) TableSize() int {
	return int(msix.MessageControl & 0x7ff) + 1
}

// tableEntry returns the memory address where table entry n's 16-byte
// message address/data/vector control record starts (PCI Express Base
// Specification - 6.1.4). The low 3 bits of TableOffset select the BAR
// (BIR); the rest is the table's byte offset within it.
func (msix *CapabilityMSIX) tableEntry(n int) uint64 {
	bir := int(msix.TableOffset & 0b111)
	bar := uint64(msix.device.BaseAddress(bir))
	table := bar + uint64(msix.TableOffset)&0xfffffff8
	return table + uint64(16*n)
}

// EnableInterrupt configures an MSI-X interrupt entry. The table lives
// in a PCI BAR's memory-mapped window, not a pool-managed DMA buffer,
// so entries are addressed directly the same way ecam.go addresses ECAM
// space.
func (msix *CapabilityMSIX) EnableInterrupt(n int, addr uint64, data uint32) {
	if n > msix.TableSize() || msix.device == nil {
		return
	}

	entry := msix.tableEntry(n)

	msixWrite64(entry, addr)
	msixWrite32(entry+8, data)
	msixWrite32(entry+12, 0)

	msix.device.Write(0, msix.off, 1<<msixEnable)
}

// MaskInterrupt sets the per-entry mask bit in table entry n's Vector
// Control dword, disabling delivery for that entry alone.
func (msix *CapabilityMSIX) MaskInterrupt(n int) {
	if n > msix.TableSize() || msix.device == nil {
		return
	}

	msixWrite32(msix.tableEntry(n)+12, 1)
}

func msixWrite32(addr uint64, val uint32) {
	p := (*uint32)(unsafe.Pointer(uintptr(addr)))
	atomic.StoreUint32(p, val)
}

func msixWrite64(addr uint64, val uint64) {
	p := (*uint64)(unsafe.Pointer(uintptr(addr)))
	atomic.StoreUint64(p, val)
}
