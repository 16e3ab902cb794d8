// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import "encoding/binary"

const udpHeaderLen = 8

type udpDatagram struct {
	srcPort, dstPort uint16
	payload          []byte
}

func parseUDP(b []byte) (udpDatagram, bool) {
	if len(b) < udpHeaderLen {
		return udpDatagram{}, false
	}
	length := int(binary.BigEndian.Uint16(b[4:6]))
	if length < udpHeaderLen || length > len(b) {
		length = len(b)
	}
	return udpDatagram{
		srcPort: binary.BigEndian.Uint16(b[0:2]),
		dstPort: binary.BigEndian.Uint16(b[2:4]),
		payload: b[udpHeaderLen:length],
	}, true
}

func buildUDP4(src, dst [4]byte, srcPort, dstPort uint16, payload []byte) []byte {
	length := udpHeaderLen + len(payload)
	b := make([]byte, length)
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint16(b[4:6], uint16(length))
	copy(b[udpHeaderLen:], payload)

	sum := pseudoHeaderSum4(src, dst, ProtoUDP, length)
	if cksum := checksum(b, sum); cksum != 0 {
		binary.BigEndian.PutUint16(b[6:8], cksum)
	} else {
		binary.BigEndian.PutUint16(b[6:8], 0xffff)
	}

	return b
}

func buildUDP6(src, dst [16]byte, srcPort, dstPort uint16, payload []byte) []byte {
	length := udpHeaderLen + len(payload)
	b := make([]byte, length)
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint16(b[4:6], uint16(length))
	copy(b[udpHeaderLen:], payload)

	sum := pseudoHeaderSum6(src, dst, 17, length)
	binary.BigEndian.PutUint16(b[6:8], checksum(b, sum))

	return b
}

// UDPDatagram is one received UDP payload delivered to a UDPSocket,
// tagged with where it came from so the DHCP/DNS clients can reply.
type UDPDatagram struct {
	SrcIP   [4]byte
	SrcPort uint16
	Payload []byte
}

// UDPSocket is a bound UDP endpoint registered with an Interface's
// SocketSet. Grounded on original_source's Dhcp4Socket/DnsSocket, which
// are themselves thin wrappers around a smoltcp UDP socket handle;
// here the handle is just the bound port, since sending/receiving goes
// straight through the Interface rather than a separate smoltcp socket
// table entry.
type UDPSocket struct {
	iface *Interface
	port  uint16
	rx    chan UDPDatagram
}

// Port returns the socket's locally bound UDP port.
func (s *UDPSocket) Port() uint16 { return s.port }

// Recv returns the next datagram delivered to this socket, if any,
// without blocking — callers poll this from a sched.Task.
func (s *UDPSocket) Recv() (UDPDatagram, bool) {
	select {
	case d := <-s.rx:
		return d, true
	default:
		return UDPDatagram{}, false
	}
}

// SendTo transmits payload to dst:dstPort from this socket's bound port,
// using the interface's current source address (0.0.0.0 is valid for
// DHCPDISCOVER before a lease is held).
func (s *UDPSocket) SendTo(dst [4]byte, dstPort uint16, payload []byte) error {
	return s.iface.sendUDP4(s.port, dst, dstPort, payload)
}

// Close releases the bound port.
func (s *UDPSocket) Close() {
	s.iface.closeUDPSocket(s.port)
}
