// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package tcpip implements the kernel's network interface glue (C15): a
// single shared Ethernet/ARP/IPv4/IPv6/ICMP/UDP/TCP engine addressed
// through one Interface and its SocketSet, in place of a hosted netstack.
//
// There is no Go package on the module path equivalent to the Rust
// original's smoltcp, so this is hand-built, grounded on
// original_source's kernel/src/net/mod.rs for the shared Interface +
// SocketSet + DNS-address contract and on the teacher's kvm/virtio
// VirtualQueue.Push/Pop for the device-facing frame I/O shape (see
// net/iface.Device).
package tcpip

import (
	"context"
	"encoding/binary"
)

// Device is the link-layer contract a driver must satisfy to be
// registered with the interface. Grounded on original_source's Driver
// trait (smoltcp::phy::Device plus poll(&mut Context) -> Poll<()>),
// generalized to Go: Send/Receive move whole Ethernet frames and Poll
// returns a channel rather than registering a waker on a context, since
// the kernel's executor (sched.Task) polls tasks instead of driving a
// future through Context::waker.
type Device interface {
	// LinkAddress is the device's MAC address.
	LinkAddress() [6]byte
	// MTU is the largest Ethernet frame payload the device accepts.
	MTU() int
	// Send transmits one Ethernet frame.
	Send(frame []byte) error
	// Receive returns the next pending received frame, if any.
	Receive() (frame []byte, ok bool)
	// Poll returns a channel that becomes ready when the device may have
	// a frame waiting, so the interface's run loop can avoid spinning.
	Poll(ctx context.Context) (ready <-chan struct{})
}

// checksum computes the Internet checksum (RFC 1071) of b, folding in
// initial as a running partial sum (0 when there is no pseudo-header).
func checksum(b []byte, initial uint32) uint16 {
	sum := initial
	n := len(b)

	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}

	return ^uint16(sum)
}

func pseudoHeaderSum4(src, dst [4]byte, proto byte, length int) uint32 {
	var sum uint32
	sum += uint32(binary.BigEndian.Uint16(src[0:2]))
	sum += uint32(binary.BigEndian.Uint16(src[2:4]))
	sum += uint32(binary.BigEndian.Uint16(dst[0:2]))
	sum += uint32(binary.BigEndian.Uint16(dst[2:4]))
	sum += uint32(proto)
	sum += uint32(length)
	return sum
}

func pseudoHeaderSum6(src, dst [16]byte, nextHeader byte, length int) uint32 {
	var sum uint32
	for i := 0; i < 16; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(src[i:]))
		sum += uint32(binary.BigEndian.Uint16(dst[i:]))
	}
	sum += uint32(nextHeader)
	sum += uint32(length)
	return sum
}

var broadcastMAC = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// multicastMAC6 derives the Ethernet multicast address an IPv6 address
// maps onto (RFC 2464): 33:33 followed by the address's last 4 bytes.
func multicastMAC6(addr [16]byte) [6]byte {
	return [6]byte{0x33, 0x33, addr[12], addr[13], addr[14], addr[15]}
}
