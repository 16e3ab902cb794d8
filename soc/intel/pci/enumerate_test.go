package pci

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

// fakeConfigSpace builds a 4KB ECAM-backed function config space and
// returns a Device addressing it at bus=0/dev=0/fn=0, so ecamAddress's
// bus/dev/fn terms all contribute zero and byte i of buf lands exactly
// at offset i.
func fakeConfigSpace(t *testing.T) (*Device, []byte) {
	t.Helper()
	buf := make([]byte, 4096)
	d := &Device{ECAMBase: uint64(uintptr(unsafe.Pointer(&buf[0])))}
	return d, buf
}

func putDword(buf []byte, off uint32, val uint32) {
	binary.LittleEndian.PutUint32(buf[off:], val)
}

func TestDecodeBARsSkipsSlotAfterMemory64(t *testing.T) {
	d, buf := fakeConfigSpace(t)

	// BAR0: 32-bit memory at 0xE0000000
	putDword(buf, Bar0+0*4, 0xE0000000)
	// BAR1/BAR2: 64-bit memory pair, low=0x_feb00004 (bit2 set -> 64-bit, bit3 clear), high=0x00000001
	putDword(buf, Bar0+1*4, 0xFEB00004)
	putDword(buf, Bar0+2*4, 0x00000001)
	// BAR3: I/O at 0xC001
	putDword(buf, Bar0+3*4, 0xC001)

	bars := decodeBARs(d, 0)

	if len(bars) != 3 {
		t.Fatalf("expected 3 decoded BARs (64-bit pair counts once), got %d: %+v", len(bars), bars)
	}

	if bars[0].Kind != BARMemory32 || bars[0].Address != 0xE0000000 {
		t.Fatalf("unexpected BAR0: %+v", bars[0])
	}

	if bars[1].Kind != BARMemory64 || bars[1].Index != 1 {
		t.Fatalf("unexpected 64-bit BAR: %+v", bars[1])
	}
	wantAddr := uint64(1)<<32 | 0xFEB00000
	if bars[1].Address != wantAddr {
		t.Fatalf("expected 64-bit BAR address 0x%x, got 0x%x", wantAddr, bars[1].Address)
	}

	if bars[2].Index != 3 || bars[2].Kind != BARIO || bars[2].Address != 0xC000 {
		t.Fatalf("unexpected I/O BAR (index should skip slot 2): %+v", bars[2])
	}
}

func TestHeaderTypeDecodesBridgeAndMultifunction(t *testing.T) {
	d, buf := fakeConfigSpace(t)

	// header type byte is bits 16-23 of the dword at 0x0c: 0x81 = bridge + multifunction
	putDword(buf, HeaderTypeOffset, 0x81<<16)

	htype, multi := d.headerType(0)
	if htype != bridgeHeaderType {
		t.Fatalf("expected bridge header type, got %#x", htype)
	}
	if !multi {
		t.Fatalf("expected multifunction bit set")
	}
	if !d.isBridge(0) {
		t.Fatalf("expected isBridge to report true")
	}
}

func TestSecondaryBusReadsBridgeBusRegister(t *testing.T) {
	d, buf := fakeConfigSpace(t)

	// primary=0, secondary=4, subordinate=9, latency=0
	putDword(buf, BridgeBusOffset, 0|4<<8|9<<16)

	if got := d.secondaryBus(0); got != 4 {
		t.Fatalf("expected secondary bus 4, got %d", got)
	}
}
