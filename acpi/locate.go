// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package acpi

import "encoding/binary"

const rsdpSignature = "RSD PTR "

// Locate searches the legacy BIOS regions the ACPI specification
// reserves for the RSDP (the Extended BIOS Data Area, then the main
// BIOS read-only segment) and returns its physical address. Platforms
// that hand the kernel an RSDP pointer directly (UEFI, a bootloader
// protocol) should skip this and call Parse with that address instead;
// Locate exists for the legacy/BIOS path original_source's boot code
// falls back to when no such pointer is available.
func Locate(hhdmOffset uintptr) (rsdpPhys uintptr, ok bool) {
	ebda := uintptr(binary.LittleEndian.Uint16(readBytes(hhdmOffset+0x40e, 2))) << 4
	if ebda != 0 {
		if p, found := scanForRSDP(hhdmOffset, ebda, ebda+1024); found {
			return p, true
		}
	}

	return scanForRSDP(hhdmOffset, 0xe0000, 0x100000)
}

func scanForRSDP(hhdmOffset, start, end uintptr) (uintptr, bool) {
	for addr := start; addr+36 <= end; addr += 16 {
		if string(readBytes(hhdmOffset+addr, 8)) == rsdpSignature {
			if rsdpChecksumOK(hhdmOffset + addr) {
				return addr, true
			}
		}
	}
	return 0, false
}

func rsdpChecksumOK(addr uintptr) bool {
	var sum byte
	for _, b := range readBytes(addr, 20) {
		sum += b
	}
	return sum == 0
}
