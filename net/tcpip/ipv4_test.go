// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import (
	"bytes"
	"testing"
)

func TestBuildParseIPv4RoundTrip(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	payload := []byte("hello")

	raw := buildIPv4(ProtoUDP, src, dst, payload)

	h, ok := parseIPv4(raw)
	if !ok {
		t.Fatalf("parseIPv4 failed on a valid datagram")
	}
	if h.src != src || h.dst != dst {
		t.Fatalf("address mismatch: src=%v dst=%v", h.src, h.dst)
	}
	if h.proto != ProtoUDP {
		t.Fatalf("proto = %d, want %d", h.proto, ProtoUDP)
	}
	if !bytes.Equal(h.payload, payload) {
		t.Fatalf("payload = %q, want %q", h.payload, payload)
	}
}

func TestBuildIPv4HeaderChecksumValidates(t *testing.T) {
	raw := buildIPv4(ProtoICMP, [4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2}, []byte{1, 2, 3})
	if checksum(raw[0:ipv4MinHeaderLen], 0) != 0 {
		t.Fatalf("header does not self-verify to a zero checksum")
	}
}

func TestNextIPv4IDIncrements(t *testing.T) {
	a := nextIPv4ID()
	b := nextIPv4ID()
	if b != a+1 {
		t.Fatalf("nextIPv4ID: got %d then %d, want a strictly incrementing sequence", a, b)
	}
}

func TestParseIPv4RejectsShortBuffer(t *testing.T) {
	if _, ok := parseIPv4(make([]byte, 10)); ok {
		t.Fatalf("parseIPv4 accepted a buffer shorter than the minimum header")
	}
}
