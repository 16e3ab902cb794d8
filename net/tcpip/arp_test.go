// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import "testing"

func TestBuildParseARPRoundTrip(t *testing.T) {
	senderMAC := [6]byte{1, 2, 3, 4, 5, 6}
	senderIP := [4]byte{192, 168, 1, 1}
	targetIP := [4]byte{192, 168, 1, 2}

	raw := buildARP(arpOpRequest, senderMAC, senderIP, [6]byte{}, targetIP)

	p, ok := parseARP(raw)
	if !ok {
		t.Fatalf("parseARP failed on a valid packet")
	}
	if p.op != arpOpRequest {
		t.Fatalf("op = %d, want %d", p.op, arpOpRequest)
	}
	if p.senderMAC != senderMAC || p.senderIP != senderIP || p.targetIP != targetIP {
		t.Fatalf("field mismatch: %+v", p)
	}
}

func TestParseARPRejectsWrongHardwareType(t *testing.T) {
	raw := buildARP(arpOpRequest, [6]byte{}, [4]byte{}, [6]byte{}, [4]byte{})
	raw[1] = 0x02 // corrupt hardware type
	if _, ok := parseARP(raw); ok {
		t.Fatalf("parseARP accepted a non-Ethernet hardware type")
	}
}

func TestARPTableSetLookup(t *testing.T) {
	tbl := newARPTable()
	ip := [4]byte{10, 0, 0, 1}
	mac := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}

	if _, ok := tbl.lookup(ip); ok {
		t.Fatalf("lookup found an entry before any set")
	}

	tbl.set(ip, mac)

	got, ok := tbl.lookup(ip)
	if !ok || got != mac {
		t.Fatalf("lookup = %x, %v; want %x, true", got, ok, mac)
	}
}
