// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import "encoding/binary"

const (
	icmpEchoRequest = 8
	icmpEchoReply   = 0

	icmpv6RouterSolicit = 133
	icmpv6RouterAdvert  = 134

	ndpOptSourceLinkAddr = 1
	ndpOptPrefixInfo     = 3
	ndpOptRDNSS          = 25
)

type icmpEcho struct {
	id, seq uint16
	payload []byte
}

func parseICMPv4Echo(b []byte) (icmpEcho, bool, bool) {
	if len(b) < 8 {
		return icmpEcho{}, false, false
	}
	isRequest := b[0] == icmpEchoRequest
	isReply := b[0] == icmpEchoReply
	if !isRequest && !isReply {
		return icmpEcho{}, false, false
	}
	return icmpEcho{
		id:      binary.BigEndian.Uint16(b[4:6]),
		seq:     binary.BigEndian.Uint16(b[6:8]),
		payload: b[8:],
	}, isRequest, true
}

func buildICMPv4(msgType byte, id, seq uint16, payload []byte) []byte {
	b := make([]byte, 8+len(payload))
	b[0] = msgType
	b[1] = 0 // code
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], seq)
	copy(b[8:], payload)
	binary.BigEndian.PutUint16(b[2:4], checksum(b, 0))
	return b
}

// buildRouterSolicitation builds an ICMPv6 Router Solicitation carrying
// a Source Link-Layer Address option, mirroring original_source's
// auto6() Icmpv6Repr::Ndisc(RouterSolicit) emission.
func buildRouterSolicitation(src, dst [16]byte, mac [6]byte) []byte {
	msg := make([]byte, 8+8) // type+code+cksum+reserved, then SLLA option
	msg[0] = icmpv6RouterSolicit
	msg[8] = ndpOptSourceLinkAddr
	msg[9] = 1 // option length, in units of 8 bytes
	copy(msg[10:16], mac[:])

	sum := pseudoHeaderSum6(src, dst, nextHeaderICMPv6, len(msg))
	binary.BigEndian.PutUint16(msg[2:4], checksum(msg, sum))

	return msg
}

// PrefixInfo is the decoded NDP Prefix Information option (RFC 4861
// §4.6.2) as auto6() consumes it: a /N on-link prefix to derive a
// SLAAC address and default route from when Autonomous is set.
type PrefixInfo struct {
	Prefix     [16]byte
	PrefixLen  int
	Autonomous bool
}

// RouterAdvertisement is the subset of a parsed Router Advertisement
// auto6() acts on: one prefix option and the RDNSS recursive DNS
// servers list, if present.
type RouterAdvertisement struct {
	HasPrefix  bool
	Prefix     PrefixInfo
	DNSServers [][16]byte
}

// ParseRouterAdvertisement decodes an ICMPv6 Router Advertisement
// message (the payload following the IPv6 header), extracting the
// first Prefix Information option and any RDNSS option. Exported for
// net/slaac, which does not otherwise need to know the NDP option wire
// format.
func ParseRouterAdvertisement(b []byte) (RouterAdvertisement, bool) {
	if len(b) < 16 || b[0] != icmpv6RouterAdvert {
		return RouterAdvertisement{}, false
	}

	var ra RouterAdvertisement
	off := 16 // fixed RA header: type,code,cksum,hop limit,flags,lifetime,reachable,retrans

	for off+1 < len(b) {
		optType := b[off]
		optLen := int(b[off+1]) * 8
		if optLen == 0 || off+optLen > len(b) {
			break
		}

		switch optType {
		case ndpOptPrefixInfo:
			if optLen >= 32 && !ra.HasPrefix {
				var pi PrefixInfo
				pi.PrefixLen = int(b[off+2])
				pi.Autonomous = b[off+3]&0x40 != 0
				copy(pi.Prefix[:], b[off+16:off+32])
				ra.HasPrefix = true
				ra.Prefix = pi
			}
		case ndpOptRDNSS:
			for p := off + 8; p+16 <= off+optLen; p += 16 {
				var addr [16]byte
				copy(addr[:], b[p:p+16])
				ra.DNSServers = append(ra.DNSServers, addr)
			}
		}

		off += optLen
	}

	return ra, true
}
