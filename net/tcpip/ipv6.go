// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import "encoding/binary"

const (
	ipv6HeaderLen = 40

	nextHeaderICMPv6 = 58
)

var ipv6LinkLocalAllRouters = [16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02}

type ipv6Header struct {
	nextHeader byte
	hopLimit   byte
	src, dst   [16]byte
	payload    []byte
}

func parseIPv6(b []byte) (ipv6Header, bool) {
	if len(b) < ipv6HeaderLen {
		return ipv6Header{}, false
	}
	if b[0]>>4 != 6 {
		return ipv6Header{}, false
	}

	payloadLen := int(binary.BigEndian.Uint16(b[4:6]))
	var h ipv6Header
	h.nextHeader = b[6]
	h.hopLimit = b[7]
	copy(h.src[:], b[8:24])
	copy(h.dst[:], b[24:40])

	end := ipv6HeaderLen + payloadLen
	if end > len(b) {
		end = len(b)
	}
	h.payload = b[ipv6HeaderLen:end]

	return h, true
}

func buildIPv6(nextHeader byte, hopLimit byte, src, dst [16]byte, payload []byte) []byte {
	b := make([]byte, ipv6HeaderLen+len(payload))
	b[0] = 0x60
	binary.BigEndian.PutUint16(b[4:6], uint16(len(payload)))
	b[6] = nextHeader
	b[7] = hopLimit
	copy(b[8:24], src[:])
	copy(b[24:40], dst[:])
	copy(b[ipv6HeaderLen:], payload)
	return b
}

// LinkLocalFromMAC derives the modified-EUI-64 link-local address
// original_source's auto6() computes from the interface's MAC, bit for
// bit: flip the universal/local bit, splice 0xfffe into the middle of
// the 48-bit address, and prefix fe80::/64.
func LinkLocalFromMAC(mac [6]byte) [16]byte {
	var ip [16]byte
	ip[0], ip[1] = 0xfe, 0x80
	ip[8] = mac[0] ^ 0x02
	ip[9] = mac[1]
	ip[10] = mac[2]
	ip[11] = 0xff
	ip[12] = 0xfe
	ip[13] = mac[3]
	ip[14] = mac[4]
	ip[15] = mac[5]
	return ip
}
