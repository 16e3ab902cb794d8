// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBuildParseUDP4RoundTrip(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	payload := []byte("datagram")

	raw := buildUDP4(src, dst, 1234, 53, payload)

	d, ok := parseUDP(raw)
	if !ok {
		t.Fatalf("parseUDP failed on a valid datagram")
	}
	if d.srcPort != 1234 || d.dstPort != 53 {
		t.Fatalf("ports = %d/%d, want 1234/53", d.srcPort, d.dstPort)
	}
	if !bytes.Equal(d.payload, payload) {
		t.Fatalf("payload = %q, want %q", d.payload, payload)
	}
}

func TestBuildUDP4ChecksumValidates(t *testing.T) {
	src := [4]byte{1, 1, 1, 1}
	dst := [4]byte{2, 2, 2, 2}
	raw := buildUDP4(src, dst, 100, 200, []byte{9, 9, 9})

	sum := pseudoHeaderSum4(src, dst, ProtoUDP, len(raw))
	if checksum(raw, sum) != 0 {
		t.Fatalf("datagram does not self-verify to a zero checksum")
	}
}

func TestBuildUDP4ChecksumNeverEncodesZero(t *testing.T) {
	// A datagram whose computed checksum happens to be 0 must be sent
	// as the reserved value 0xffff (RFC 768): 0 on the wire means "no
	// checksum computed".
	for port := uint16(0); port < 2000; port++ {
		raw := buildUDP4([4]byte{}, [4]byte{}, port, 0, nil)
		if binary.BigEndian.Uint16(raw[6:8]) == 0 {
			t.Fatalf("checksum field encoded as 0 for port %d", port)
		}
	}
}
