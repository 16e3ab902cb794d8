// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import (
	"bytes"
	"testing"
)

func TestBuildParseEthernetRoundTrip(t *testing.T) {
	dst := [6]byte{1, 2, 3, 4, 5, 6}
	src := [6]byte{6, 5, 4, 3, 2, 1}
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	frame := buildEthernet(dst, src, EtherTypeIPv4, payload)

	got, ok := parseEthernet(frame)
	if !ok {
		t.Fatalf("parseEthernet failed on a valid frame")
	}
	if got.dst != dst || got.src != src {
		t.Fatalf("address mismatch: got dst=%x src=%x", got.dst, got.src)
	}
	if got.etype != EtherTypeIPv4 {
		t.Fatalf("etype = %#04x, want %#04x", got.etype, EtherTypeIPv4)
	}
	if !bytes.Equal(got.payload, payload) {
		t.Fatalf("payload = %x, want %x", got.payload, payload)
	}
}

func TestParseEthernetTooShort(t *testing.T) {
	if _, ok := parseEthernet(make([]byte, 13)); ok {
		t.Fatalf("parseEthernet accepted a frame shorter than the header")
	}
}
