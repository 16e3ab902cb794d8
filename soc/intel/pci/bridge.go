// Intel Peripheral Component Interconnect (PCI) driver
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pci

// Header Type 0x0/0x1 offsets shared by every function.
const (
	HeaderTypeOffset = 0x0c // dword holding cache line size/latency/header type/BIST
	BridgeBusOffset  = 0x18 // dword holding primary/secondary/subordinate bus + latency timer
)

const bridgeHeaderType = 0x01

// headerType returns the PCI header type (bits 0-6 of register 0x0e)
// for the given function, and whether the device is multifunction
// (bit 7 of the same byte).
func (d *Device) headerType(fn uint32) (htype uint8, multi bool) {
	val := d.Read(fn, HeaderTypeOffset)
	b := uint8(val >> 16)
	return b & 0x7f, b&0x80 != 0
}

// isBridge reports whether function fn is a PCI-PCI bridge (header
// type 1).
func (d *Device) isBridge(fn uint32) bool {
	t, _ := d.headerType(fn)
	return t == bridgeHeaderType
}

// secondaryBus returns a bridge function's secondary bus number, the
// bus number enumeration must recurse into.
func (d *Device) secondaryBus(fn uint32) uint32 {
	val := d.Read(fn, BridgeBusOffset)
	return (val >> 8) & 0xff
}

// BARKind identifies the address space and width decoded from a Base
// Address Register.
type BARKind int

const (
	BARMemory32 BARKind = iota
	BARMemory64
	BARIO
)

// BAR is one decoded Base Address Register.
type BAR struct {
	Index        int
	Kind         BARKind
	Address      uint64
	Prefetchable bool
}

// decodeBARs walks function fn's Base Address Registers starting at
// Bar0, decoding each into a BAR. A Memory64 entry consumes the 32-bit
// register that follows it for its upper address half, so the scan
// skips that slot rather than decoding it as a second BAR (PCI Local
// Bus Specification 3.0 - 6.2.5.1).
func decodeBARs(d *Device, fn uint32) []BAR {
	var bars []BAR

	for i := 0; i <= 5; i++ {
		off := uint32(Bar0 + i*4)
		raw := d.Read(fn, off)

		if raw == 0 {
			continue
		}

		if raw&1 == 1 {
			bars = append(bars, BAR{
				Index:   i,
				Kind:    BARIO,
				Address: uint64(raw &^ 0x3),
			})
			continue
		}

		switch (raw >> 1) & 0b11 {
		case 0b10: // 64-bit memory: consumes this slot and the next
			if i == 5 {
				// malformed: no slot left for the upper half
				continue
			}
			hi := d.Read(fn, off+4)
			bars = append(bars, BAR{
				Index:        i,
				Kind:         BARMemory64,
				Address:      uint64(hi)<<32 | uint64(raw&0xfffffff0),
				Prefetchable: raw&0b1000 != 0,
			})
			i++ // skip the slot holding the upper address half
		default: // 32-bit memory
			bars = append(bars, BAR{
				Index:        i,
				Kind:         BARMemory32,
				Address:      uint64(raw & 0xfffffff0),
				Prefetchable: raw&0b1000 != 0,
			})
		}
	}

	return bars
}
