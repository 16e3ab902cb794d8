// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import (
	"bytes"
	"testing"
)

func TestBuildParseICMPv4EchoRoundTrip(t *testing.T) {
	payload := []byte("ping")
	raw := buildICMPv4(icmpEchoRequest, 7, 1, payload)

	echo, isRequest, ok := parseICMPv4Echo(raw)
	if !ok || !isRequest {
		t.Fatalf("parseICMPv4Echo(request) = ok=%v isRequest=%v", ok, isRequest)
	}
	if echo.id != 7 || echo.seq != 1 {
		t.Fatalf("id/seq = %d/%d, want 7/1", echo.id, echo.seq)
	}
	if !bytes.Equal(echo.payload, payload) {
		t.Fatalf("payload = %q, want %q", echo.payload, payload)
	}
	if checksum(raw, 0) != 0 {
		t.Fatalf("echo request does not self-verify to a zero checksum")
	}
}

func TestBuildRouterSolicitationCarriesSourceLinkAddr(t *testing.T) {
	mac := [6]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	src := LinkLocalFromMAC(mac)
	dst := ipv6LinkLocalAllRouters

	msg := buildRouterSolicitation(src, dst, mac)

	if msg[0] != icmpv6RouterSolicit {
		t.Fatalf("type = %d, want %d", msg[0], icmpv6RouterSolicit)
	}
	if msg[8] != ndpOptSourceLinkAddr {
		t.Fatalf("option type = %d, want %d", msg[8], ndpOptSourceLinkAddr)
	}
	if !bytes.Equal(msg[10:16], mac[:]) {
		t.Fatalf("option MAC = %x, want %x", msg[10:16], mac)
	}

	sum := pseudoHeaderSum6(src, dst, nextHeaderICMPv6, len(msg))
	if checksum(msg, sum) != 0 {
		t.Fatalf("solicitation does not self-verify to a zero checksum")
	}
}

// synthesizeRA builds a Router Advertisement carrying one autonomous
// Prefix Information option and one RDNSS option with a single
// resolver address, mirroring the wire shapes RFC 4861 §4.6.2 and
// RFC 8106 describe.
func synthesizeRA(prefix [16]byte, dns [16]byte) []byte {
	b := make([]byte, 16+32+24)
	b[0] = icmpv6RouterAdvert

	// Prefix Information option at offset 16.
	b[16] = ndpOptPrefixInfo
	b[17] = 4 // 32 bytes / 8
	b[18] = 64
	b[19] = 0x40 // Autonomous flag
	copy(b[32:48], prefix[:])

	// RDNSS option at offset 48.
	b[48] = ndpOptRDNSS
	b[49] = 3 // 24 bytes / 8
	copy(b[56:72], dns[:])

	return b
}

func TestParseRouterAdvertisement(t *testing.T) {
	prefix := [16]byte{0x20, 0x01, 0x0d, 0xb8}
	dnsAddr := [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x53}

	ra, ok := ParseRouterAdvertisement(synthesizeRA(prefix, dnsAddr))
	if !ok {
		t.Fatalf("ParseRouterAdvertisement failed on a synthetic advertisement")
	}
	if !ra.HasPrefix {
		t.Fatalf("HasPrefix = false, want true")
	}
	if ra.Prefix.Prefix != prefix || ra.Prefix.PrefixLen != 64 || !ra.Prefix.Autonomous {
		t.Fatalf("prefix info mismatch: %+v", ra.Prefix)
	}
	if len(ra.DNSServers) != 1 || ra.DNSServers[0] != dnsAddr {
		t.Fatalf("DNS servers = %v, want [%x]", ra.DNSServers, dnsAddr)
	}
}

func TestParseRouterAdvertisementRejectsWrongType(t *testing.T) {
	b := make([]byte, 16)
	b[0] = icmpv6RouterSolicit
	if _, ok := ParseRouterAdvertisement(b); ok {
		t.Fatalf("ParseRouterAdvertisement accepted a non-RA message type")
	}
}
