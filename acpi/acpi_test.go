package acpi

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

// buildFakeACPI assembles a minimal RSDP -> XSDT -> MADT/MCFG chain in a Go
// byte slice, then parses it as if hhdmOffset were 0 and the slice's address
// were the "physical" address. This keeps Parse host-testable without real
// firmware tables.
func buildFakeACPI(t *testing.T) (hhdm uintptr, rsdp uintptr, keepAlive []byte) {
	t.Helper()

	const (
		rsdpOff = 0
		rsdpLen = 36
		xsdtOff = rsdpOff + rsdpLen
	)

	madt := buildMADT()
	mcfg := buildMCFG()

	xsdtLen := sdtHeaderSize + 8*2 // two 64-bit entries
	mcfgOff := xsdtOff + xsdtLen
	madtOff := mcfgOff + len(mcfg)

	total := madtOff + len(madt)
	buf := make([]byte, total)

	// RSDP (ACPI >= 2.0 shape)
	copy(buf[rsdpOff:], "RSD PTR ")
	buf[rsdpOff+15] = 2 // revision
	binary.LittleEndian.PutUint64(buf[rsdpOff+24:], uint64(xsdtOff))

	// XSDT header + entries pointing at MCFG then MADT
	writeHeader(buf[xsdtOff:], "XSDT", uint32(xsdtLen))
	binary.LittleEndian.PutUint64(buf[xsdtOff+sdtHeaderSize:], uint64(mcfgOff))
	binary.LittleEndian.PutUint64(buf[xsdtOff+sdtHeaderSize+8:], uint64(madtOff))

	copy(buf[mcfgOff:], mcfg)
	copy(buf[madtOff:], madt)

	base := uintptr(unsafe.Pointer(&buf[0]))
	return 0, base, buf
}

func writeHeader(b []byte, sig string, length uint32) {
	copy(b[0:4], sig)
	binary.LittleEndian.PutUint32(b[4:8], length)
}

func buildMADT() []byte {
	// header(36) + local apic addr(4) + flags(4) + one IOAPIC entry(12) +
	// one ISO entry(10)
	body := make([]byte, 8+12+10)
	binary.LittleEndian.PutUint32(body[0:4], 0xFEE00000)

	ioapic := body[8 : 8+12]
	ioapic[0] = 1  // type
	ioapic[1] = 12 // length
	ioapic[2] = 0  // id
	binary.LittleEndian.PutUint32(ioapic[4:8], 0xFEC00000)
	binary.LittleEndian.PutUint32(ioapic[8:12], 0)

	iso := body[8+12 : 8+12+10]
	iso[0] = 2  // type
	iso[1] = 10 // length
	iso[2] = 0  // bus
	iso[3] = 9  // source IRQ (ACPI SCI on this board)
	binary.LittleEndian.PutUint32(iso[4:8], 20)
	binary.LittleEndian.PutUint16(iso[8:10], 0b1111) // active-low, level

	total := sdtHeaderSize + len(body)
	buf := make([]byte, total)
	writeHeader(buf, "APIC", uint32(total))
	copy(buf[sdtHeaderSize:], body)
	return buf
}

func buildMCFG() []byte {
	body := make([]byte, 8+16)
	entry := body[8:]
	binary.LittleEndian.PutUint64(entry[0:8], 0xB0000000)
	binary.LittleEndian.PutUint16(entry[8:10], 0)
	entry[10] = 0
	entry[11] = 255

	total := sdtHeaderSize + len(body)
	buf := make([]byte, total)
	writeHeader(buf, "MCFG", uint32(total))
	copy(buf[sdtHeaderSize:], body)
	return buf
}

func TestParseExtractsMADTAndMCFG(t *testing.T) {
	hhdm, rsdp, _ := buildFakeACPI(t)

	tables, err := Parse(hhdm, rsdp)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if tables.LocalAPICAddress != 0xFEE00000 {
		t.Fatalf("expected local APIC address 0xFEE00000, got %#x", tables.LocalAPICAddress)
	}
	if len(tables.IOAPICs) != 1 || tables.IOAPICs[0].Address != 0xFEC00000 {
		t.Fatalf("expected one IOAPIC at 0xFEC00000, got %+v", tables.IOAPICs)
	}
	if len(tables.MCFGRegions) != 1 || tables.MCFGRegions[0].Base != 0xB0000000 {
		t.Fatalf("expected one MCFG region at 0xB0000000, got %+v", tables.MCFGRegions)
	}
}

func TestResolveGSIUsesOverride(t *testing.T) {
	hhdm, rsdp, _ := buildFakeACPI(t)
	tables, err := Parse(hhdm, rsdp)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	gsi, level, activeLow := tables.ResolveGSI(9)
	if gsi != 20 || !level || !activeLow {
		t.Fatalf("expected overridden IRQ 9 -> GSI 20 level/active-low, got gsi=%d level=%v activeLow=%v", gsi, level, activeLow)
	}

	gsi, level, activeLow = tables.ResolveGSI(1)
	if gsi != 1 || level || activeLow {
		t.Fatalf("expected identity mapping for IRQ without override, got gsi=%d level=%v activeLow=%v", gsi, level, activeLow)
	}
}

func TestIOAPICForPicksOwningController(t *testing.T) {
	hhdm, rsdp, _ := buildFakeACPI(t)
	tables, err := Parse(hhdm, rsdp)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	io, ok := tables.IOAPICFor(5)
	if !ok || io.Address != 0xFEC00000 {
		t.Fatalf("expected GSI 5 to resolve to the single IOAPIC, got %+v ok=%v", io, ok)
	}

	if _, ok := (&Tables{}).IOAPICFor(5); ok {
		t.Fatalf("expected no IOAPIC match against an empty table")
	}
}
