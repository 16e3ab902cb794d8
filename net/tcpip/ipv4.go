// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import "encoding/binary"

// IPv4 protocol numbers the interface demultiplexes on.
const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

const ipv4MinHeaderLen = 20

type ipv4Header struct {
	proto    byte
	ttl      byte
	src, dst [4]byte
	payload  []byte
}

func parseIPv4(b []byte) (ipv4Header, bool) {
	if len(b) < ipv4MinHeaderLen {
		return ipv4Header{}, false
	}

	version := b[0] >> 4
	ihl := int(b[0]&0x0f) * 4
	if version != 4 || ihl < ipv4MinHeaderLen || len(b) < ihl {
		return ipv4Header{}, false
	}

	totalLen := int(binary.BigEndian.Uint16(b[2:4]))
	if totalLen < ihl || totalLen > len(b) {
		totalLen = len(b)
	}

	var h ipv4Header
	h.ttl = b[8]
	h.proto = b[9]
	copy(h.src[:], b[12:16])
	copy(h.dst[:], b[16:20])
	h.payload = b[ihl:totalLen]

	return h, true
}

// ipv4ID is a process-wide IPv4 identification counter; uniqueness
// across datagrams matters more than per-interface scoping here, since
// this kernel only ever drives one interface (see original_source's
// single DEFAULT_DRIVER).
var ipv4ID uint32

func nextIPv4ID() uint16 {
	ipv4ID++
	return uint16(ipv4ID)
}

func buildIPv4(proto byte, src, dst [4]byte, payload []byte) []byte {
	total := ipv4MinHeaderLen + len(payload)
	b := make([]byte, total)

	b[0] = 0x45 // version 4, 5 dwords of header
	b[1] = 0
	binary.BigEndian.PutUint16(b[2:4], uint16(total))
	binary.BigEndian.PutUint16(b[4:6], nextIPv4ID())
	binary.BigEndian.PutUint16(b[6:8], 0x4000) // don't fragment
	b[8] = 64                                  // TTL
	b[9] = proto
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])
	binary.BigEndian.PutUint16(b[10:12], checksum(b[0:ipv4MinHeaderLen], 0))
	copy(b[ipv4MinHeaderLen:], payload)

	return b
}
