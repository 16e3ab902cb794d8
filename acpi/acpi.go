// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package acpi reads the ACPI tables the boot handoff hands the kernel as a
// physical RSDP pointer, mapped by identity through the bootloader's HHDM.
// There is no teacher package for this: it is grounded directly on
// original_source's arch/x86_64/acpi.rs, which leans on the `acpi` crate for
// the same job. Go has no equivalent crate in the retrieved pack, so table
// layout here is decoded by hand with encoding/binary against the ACPI
// specification's byte layout, the same way the teacher's own board packages
// decode fixed hardware structures (see board/qemu/microvm/rtc.go's CMOS BCD
// handling for the same register-table-by-hand idiom).
package acpi

import (
	"encoding/binary"
	"errors"
	"unsafe"
)

// ErrBadSignature is returned when the RSDP signature doesn't match what
// ACPI requires. Parse does not validate table checksums.
var ErrBadSignature = errors.New("acpi: bad table signature or checksum")

// sdtHeader is the 36-byte System Description Table header common to every
// ACPI table beyond the RSDP itself.
type sdtHeader struct {
	Signature       [4]byte
	Length          uint32
	Revision        uint8
	Checksum        uint8
	OEMID           [6]byte
	OEMTableID      [8]byte
	OEMRevision     uint32
	CreatorID       uint32
	CreatorRevision uint32
}

const sdtHeaderSize = 36

func readBytes(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// Tables is a parsed view over the handful of ACPI tables the kernel needs:
// MADT (interrupt model), MCFG (PCIe ECAM regions) and FADT (century byte,
// for CMOS RTC decode).
type Tables struct {
	hhdmOffset uintptr

	LocalAPICAddress uint32
	IOAPICs          []IOAPIC
	Overrides        []InterruptSourceOverride
	MCFGRegions      []MCFGRegion
	CenturyRegister  uint8
}

// IOAPIC describes one MADT I/O APIC entry.
type IOAPIC struct {
	ID      uint8
	Address uint32
	GSIBase uint32
}

// InterruptSourceOverride remaps a legacy ISA IRQ to a GSI with its own
// polarity/trigger mode, per MADT type-2 entries.
type InterruptSourceOverride struct {
	Bus          uint8
	Source       uint8
	GSI          uint32
	ActiveLow    bool
	LevelTrigger bool
}

// MCFGRegion is one PCIe Enhanced Configuration Access Mechanism window.
type MCFGRegion struct {
	Base     uint64
	Segment  uint16
	BusStart uint8
	BusEnd   uint8
}

// Parse walks the RSDP at physical address rsdp (already identity-mapped at
// hhdmOffset+rsdp by the bootloader) and extracts the MADT, MCFG and FADT
// tables the kernel needs. It does not retain a reference to ACPI memory
// beyond what it copies into Tables.
func Parse(hhdmOffset uintptr, rsdpPhys uintptr) (*Tables, error) {
	rsdpAddr := hhdmOffset + rsdpPhys

	// RSDP: signature(8) checksum(1) oemid(6) revision(1) rsdt_addr(4) [len(4)
	// xsdt_addr(8) ext_checksum(1) reserved(3)] for ACPI >= 2.0.
	sig := readBytes(rsdpAddr, 8)
	if string(sig) != "RSD PTR " {
		return nil, ErrBadSignature
	}
	revision := readBytes(rsdpAddr, 16)[15]

	var sdtAddr uintptr
	var entrySize int
	if revision >= 2 {
		xsdtAddr := binary.LittleEndian.Uint64(readBytes(rsdpAddr+24, 8))
		sdtAddr = hhdmOffset + uintptr(xsdtAddr)
		entrySize = 8
	} else {
		rsdtAddr := binary.LittleEndian.Uint32(readBytes(rsdpAddr+16, 4))
		sdtAddr = hhdmOffset + uintptr(rsdtAddr)
		entrySize = 4
	}

	hdr := readHeader(sdtAddr)
	entryCount := (int(hdr.Length) - sdtHeaderSize) / entrySize
	entries := readBytes(sdtAddr+sdtHeaderSize, entryCount*entrySize)

	t := &Tables{hhdmOffset: hhdmOffset}

	for i := 0; i < entryCount; i++ {
		var tableAddr uintptr
		if entrySize == 8 {
			tableAddr = hhdmOffset + uintptr(binary.LittleEndian.Uint64(entries[i*8:]))
		} else {
			tableAddr = hhdmOffset + uintptr(binary.LittleEndian.Uint32(entries[i*4:]))
		}

		h := readHeader(tableAddr)
		switch string(h.Signature[:]) {
		case "APIC":
			t.parseMADT(tableAddr, h.Length)
		case "MCFG":
			t.parseMCFG(tableAddr, h.Length)
		case "FACP":
			t.parseFADT(tableAddr)
		}
	}

	return t, nil
}

func readHeader(addr uintptr) sdtHeader {
	b := readBytes(addr, sdtHeaderSize)
	var h sdtHeader
	copy(h.Signature[:], b[0:4])
	h.Length = binary.LittleEndian.Uint32(b[4:8])
	h.Revision = b[8]
	h.Checksum = b[9]
	return h
}

// parseMADT walks the MADT's variable-length interrupt controller structure
// list starting after the fixed local-APIC-address/flags header.
func (t *Tables) parseMADT(addr uintptr, length uint32) {
	body := readBytes(addr+sdtHeaderSize, int(length)-sdtHeaderSize)
	if len(body) < 8 {
		return
	}
	t.LocalAPICAddress = binary.LittleEndian.Uint32(body[0:4])

	off := 8
	for off+2 <= len(body) {
		entryType := body[off]
		entryLen := int(body[off+1])
		if entryLen < 2 || off+entryLen > len(body) {
			break
		}
		entry := body[off : off+entryLen]

		switch entryType {
		case 1: // I/O APIC
			if len(entry) >= 12 {
				t.IOAPICs = append(t.IOAPICs, IOAPIC{
					ID:      entry[2],
					Address: binary.LittleEndian.Uint32(entry[4:8]),
					GSIBase: binary.LittleEndian.Uint32(entry[8:12]),
				})
			}
		case 2: // Interrupt Source Override
			if len(entry) >= 10 {
				flags := binary.LittleEndian.Uint16(entry[8:10])
				polarity := flags & 0x3
				trigger := (flags >> 2) & 0x3
				t.Overrides = append(t.Overrides, InterruptSourceOverride{
					Bus:          entry[2],
					Source:       entry[3],
					GSI:          binary.LittleEndian.Uint32(entry[4:8]),
					ActiveLow:    polarity == 3,
					LevelTrigger: trigger == 3,
				})
			}
		case 5: // Local APIC Address Override
			if len(entry) >= 12 {
				t.LocalAPICAddress = uint32(binary.LittleEndian.Uint64(entry[4:12]))
			}
		}

		off += entryLen
	}
}

// parseMCFG walks the MCFG's array of 16-byte "Configuration Space Base
// Address Allocation Structure" entries starting after the 8-reserved-byte
// header.
func (t *Tables) parseMCFG(addr uintptr, length uint32) {
	body := readBytes(addr+sdtHeaderSize, int(length)-sdtHeaderSize)
	if len(body) < 8 {
		return
	}
	body = body[8:]

	for off := 0; off+16 <= len(body); off += 16 {
		e := body[off : off+16]
		t.MCFGRegions = append(t.MCFGRegions, MCFGRegion{
			Base:     binary.LittleEndian.Uint64(e[0:8]),
			Segment:  binary.LittleEndian.Uint16(e[8:10]),
			BusStart: e[10],
			BusEnd:   e[11],
		})
	}
}

// parseFADT extracts the century byte offset (index into CMOS) needed to
// decode the RTC's year correctly; 0 means "not present, assume 1900+BCD".
func (t *Tables) parseFADT(addr uintptr) {
	b := readBytes(addr, sdtHeaderSize+0x83)
	if len(b) <= 0x82 {
		return
	}
	t.CenturyRegister = b[0x82]
}

// ResolveGSI maps a legacy ISA IRQ to its GSI and trigger/polarity via the
// MADT's interrupt source override list, defaulting to an identity mapping
// (edge-triggered, active-high) when no override applies — the same
// default original_source's `acpi` crate plumbing assumes.
func (t *Tables) ResolveGSI(isaIRQ uint8) (gsi uint32, levelTrigger bool, activeLow bool) {
	for _, o := range t.Overrides {
		if o.Source == isaIRQ {
			return o.GSI, o.LevelTrigger, o.ActiveLow
		}
	}
	return uint32(isaIRQ), false, false
}

// IOAPICFor returns the IOAPIC owning gsi, chosen as the entry with the
// largest GSIBase not exceeding gsi.
func (t *Tables) IOAPICFor(gsi uint32) (IOAPIC, bool) {
	best := -1
	for i, io := range t.IOAPICs {
		if io.GSIBase <= gsi && (best == -1 || io.GSIBase > t.IOAPICs[best].GSIBase) {
			best = i
		}
	}
	if best == -1 {
		return IOAPIC{}, false
	}
	return t.IOAPICs[best], true
}

// MCFGRegionFor returns the ECAM window covering (segment, bus), if any.
func (t *Tables) MCFGRegionFor(segment uint16, bus uint8) (MCFGRegion, bool) {
	for _, r := range t.MCFGRegions {
		if r.Segment == segment && bus >= r.BusStart && bus <= r.BusEnd {
			return r, true
		}
	}
	return MCFGRegion{}, false
}
