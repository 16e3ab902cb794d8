// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import (
	"bytes"
	"testing"
)

func TestBuildParseIPv6RoundTrip(t *testing.T) {
	src := LinkLocalFromMAC([6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01})
	dst := ipv6LinkLocalAllRouters
	payload := []byte{1, 2, 3, 4}

	raw := buildIPv6(nextHeaderICMPv6, 255, src, dst, payload)

	h, ok := parseIPv6(raw)
	if !ok {
		t.Fatalf("parseIPv6 failed on a valid datagram")
	}
	if h.src != src || h.dst != dst {
		t.Fatalf("address mismatch: src=%v dst=%v", h.src, h.dst)
	}
	if h.nextHeader != nextHeaderICMPv6 {
		t.Fatalf("nextHeader = %d, want %d", h.nextHeader, nextHeaderICMPv6)
	}
	if !bytes.Equal(h.payload, payload) {
		t.Fatalf("payload = %x, want %x", h.payload, payload)
	}
}

func TestLinkLocalFromMAC(t *testing.T) {
	mac := [6]byte{0x02, 0x1b, 0x2c, 0x3d, 0x4e, 0x5f}
	ip := LinkLocalFromMAC(mac)

	if ip[0] != 0xfe || ip[1] != 0x80 {
		t.Fatalf("missing fe80::/16 prefix: %x", ip[:2])
	}
	if ip[8] != mac[0]^0x02 {
		t.Fatalf("universal/local bit not flipped: got %#02x", ip[8])
	}
	if ip[11] != 0xff || ip[12] != 0xfe {
		t.Fatalf("missing fffe splice: %x", ip[11:13])
	}
	if ip[13] != mac[3] || ip[14] != mac[4] || ip[15] != mac[5] {
		t.Fatalf("trailing MAC bytes not preserved: %x", ip[13:16])
	}
}

func TestParseIPv6RejectsWrongVersion(t *testing.T) {
	raw := buildIPv6(nextHeaderICMPv6, 1, [16]byte{}, [16]byte{}, nil)
	raw[0] = 0x40 // IPv4 version nibble
	if _, ok := parseIPv6(raw); ok {
		t.Fatalf("parseIPv6 accepted a non-v6 version nibble")
	}
}
