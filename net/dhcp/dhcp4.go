// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dhcp implements a DHCPv4 client task: it consumes a dedicated
// UDP socket on the shared interface and mutates the interface's
// address/route/DNS set once a lease is acknowledged. Lease time,
// renewal and expiry are not handled: an acquired address stays
// configured.
//
// Grounded on original_source's dhcp4() task (a loop over
// Dhcp4Socket::event() reacting to Configure/Deconfigure), adapted from
// an async event stream to the kernel's Poll()-bool task model: the
// state machine below steps once per Poll call instead of awaiting one
// event per iteration.
package dhcp

import (
	"encoding/binary"
	"math/rand"
	"net"

	"github.com/kestrel-os/kestrel/klog"
	"github.com/kestrel-os/kestrel/net/tcpip"
	"github.com/kestrel-os/kestrel/sched"
)

const (
	clientPort = 68
	serverPort = 67

	opBootRequest = 1
	opBootReply   = 2
	magicCookie   = 0x63825363

	optSubnetMask   = 1
	optRouter       = 3
	optDNS          = 6
	optRequestedIP  = 50
	optLeaseTime    = 51
	optMessageType  = 53
	optServerID     = 54
	optParamRequest = 55
	optEnd          = 255

	msgDiscover = 1
	msgOffer    = 2
	msgRequest  = 3
	msgAck      = 5
	msgNak      = 6
)

type state int

const (
	stateInit state = iota
	stateSelecting
	stateRequesting
	stateBound
)

type lease struct {
	address    [4]byte
	router     [4]byte
	hasRouter  bool
	dnsServers [][4]byte
}

// Task is a sched.Task driving one DHCPv4 client conversation over a
// dedicated UDP socket bound to the shared interface.
type Task struct {
	ifc   *tcpip.Interface
	sock  *tcpip.UDPSocket
	xid   uint32
	state state
	mac   [6]byte
	have  lease
}

// NewTask returns a sched.Task that leases an address on ifc, binding a
// UDP socket on port 68 and sending the initial DHCPDISCOVER.
func NewTask(ifc *tcpip.Interface) sched.Task {
	t := &Task{
		ifc: ifc,
		mac: ifc.LinkAddress(),
		xid: rand.Uint32(),
	}
	t.sock = ifc.NewUDPSocket(clientPort)
	t.sendDiscover()
	t.state = stateSelecting
	return sched.TaskFunc(t.poll)
}

func (t *Task) poll() bool {
	d, ok := t.sock.Recv()
	if !ok {
		return false
	}

	msg, ok := parse(d.Payload)
	if !ok || msg.xid != t.xid {
		return false
	}

	switch t.state {
	case stateSelecting:
		if msg.messageType == msgOffer {
			t.have = leaseFromMessage(msg)
			t.sendRequest(msg)
			t.state = stateRequesting
		}
	case stateRequesting:
		switch msg.messageType {
		case msgAck:
			t.apply(msg)
			t.state = stateBound
			klog.Infof("dhcp", "lease acquired", klog.F("address", net.IP(t.have.address[:]).String()))
		case msgNak:
			t.state = stateInit
			t.sendDiscover()
			t.state = stateSelecting
		}
	}

	return false
}

func (t *Task) apply(msg message) {
	t.ifc.AddAddress(msg.yourIP, 24)
	if t.have.hasRouter {
		t.ifc.SetDefaultRoute(t.have.router)
	}
	for _, d := range t.have.dnsServers {
		t.ifc.AddDNSServer(net.IP(d[:]))
	}
	t.have.address = msg.yourIP
}

func (t *Task) sendDiscover() {
	opts := encodeOptions(map[byte][]byte{
		optMessageType:  {msgDiscover},
		optParamRequest: {optSubnetMask, optRouter, optDNS},
	})
	pkt := build(opBootRequest, t.xid, t.mac, [4]byte{}, opts)
	t.sendBroadcast(pkt)
}

func (t *Task) sendRequest(offer message) {
	opts := encodeOptions(map[byte][]byte{
		optMessageType:  {msgRequest},
		optRequestedIP:  offer.yourIP[:],
		optServerID:     offer.serverID[:],
		optParamRequest: {optSubnetMask, optRouter, optDNS},
	})
	pkt := build(opBootRequest, t.xid, t.mac, [4]byte{}, opts)
	t.sendBroadcast(pkt)
}

func (t *Task) sendBroadcast(pkt []byte) {
	t.sock.SendTo([4]byte{0xff, 0xff, 0xff, 0xff}, serverPort, pkt)
}

type message struct {
	xid         uint32
	yourIP      [4]byte
	serverID    [4]byte
	messageType byte
	subnetMask  [4]byte
	router      [4]byte
	hasRouter   bool
	dnsServers  [][4]byte
}

func leaseFromMessage(m message) lease {
	return lease{
		address:    m.yourIP,
		router:     m.router,
		hasRouter:  m.hasRouter,
		dnsServers: m.dnsServers,
	}
}

const fixedHeaderLen = 236 // op..file, not including the magic cookie

func build(op byte, xid uint32, mac [6]byte, requested [4]byte, opts []byte) []byte {
	b := make([]byte, fixedHeaderLen+4+len(opts))
	b[0] = op
	b[1] = 1 // htype: Ethernet
	b[2] = 6 // hlen
	binary.BigEndian.PutUint32(b[4:8], xid)
	binary.BigEndian.PutUint16(b[10:12], 0x8000) // broadcast flag
	copy(b[28:32], requested[:])
	copy(b[44:50], mac[:])
	binary.BigEndian.PutUint32(b[fixedHeaderLen:fixedHeaderLen+4], magicCookie)
	copy(b[fixedHeaderLen+4:], opts)
	return b
}

func parse(b []byte) (message, bool) {
	if len(b) < fixedHeaderLen+4 {
		return message{}, false
	}
	if binary.BigEndian.Uint32(b[fixedHeaderLen:fixedHeaderLen+4]) != magicCookie {
		return message{}, false
	}

	var m message
	m.xid = binary.BigEndian.Uint32(b[4:8])
	copy(m.yourIP[:], b[16:20])

	opts := b[fixedHeaderLen+4:]
	for i := 0; i < len(opts); {
		code := opts[i]
		if code == optEnd || code == 0 {
			i++
			continue
		}
		if i+1 >= len(opts) {
			break
		}
		length := int(opts[i+1])
		if i+2+length > len(opts) {
			break
		}
		val := opts[i+2 : i+2+length]

		switch code {
		case optMessageType:
			if length == 1 {
				m.messageType = val[0]
			}
		case optServerID:
			if length == 4 {
				copy(m.serverID[:], val)
			}
		case optSubnetMask:
			if length == 4 {
				copy(m.subnetMask[:], val)
			}
		case optRouter:
			if length >= 4 {
				copy(m.router[:], val[0:4])
				m.hasRouter = true
			}
		case optDNS:
			for o := 0; o+4 <= length; o += 4 {
				var dns [4]byte
				copy(dns[:], val[o:o+4])
				m.dnsServers = append(m.dnsServers, dns)
			}
		}

		i += 2 + length
	}

	return m, true
}

func encodeOptions(opts map[byte][]byte) []byte {
	var b []byte
	for code, val := range opts {
		b = append(b, code, byte(len(val)))
		b = append(b, val...)
	}
	b = append(b, optEnd)
	return b
}
