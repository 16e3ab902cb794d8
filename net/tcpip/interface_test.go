// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import (
	"bytes"
	"testing"
)

func TestInterfaceTaskRepliesToARPRequest(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)

	requesterMAC := [6]byte{0x02, 0, 0, 0, 0, 2}
	req := buildARP(arpOpRequest, requesterMAC, [4]byte{10, 0, 0, 9}, [6]byte{}, [4]byte{10, 0, 0, 5})
	dev.queue(buildEthernet(broadcastMAC, requesterMAC, EtherTypeARP, req))

	task := ifc.Task()
	task.Poll()

	if len(dev.sent) != 1 {
		t.Fatalf("sent %d frames, want 1 (the ARP reply)", len(dev.sent))
	}

	eth, ok := parseEthernet(dev.sent[0])
	if !ok || eth.etype != EtherTypeARP {
		t.Fatalf("reply frame is not an ARP frame")
	}

	reply, ok := parseARP(eth.payload)
	if !ok || reply.op != arpOpReply {
		t.Fatalf("reply op = %v, want arpOpReply", reply)
	}
	if reply.senderIP != [4]byte{10, 0, 0, 5} || reply.targetIP != [4]byte{10, 0, 0, 9} {
		t.Fatalf("reply addresses wrong: %+v", reply)
	}
}

func TestInterfaceTaskIgnoresARPForForeignAddress(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)

	req := buildARP(arpOpRequest, [6]byte{0x02, 0, 0, 0, 0, 2}, [4]byte{10, 0, 0, 9}, [6]byte{}, [4]byte{10, 0, 0, 200})
	dev.queue(buildEthernet(broadcastMAC, [6]byte{0x02, 0, 0, 0, 0, 2}, EtherTypeARP, req))

	ifc.Task().Poll()

	if len(dev.sent) != 0 {
		t.Fatalf("sent %d frames, want 0 for an unowned target address", len(dev.sent))
	}
}

func TestInterfaceTaskRepliesToICMPEcho(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)

	peerMAC := [6]byte{0x02, 0, 0, 0, 0, 2}
	ifc.arp.set([4]byte{10, 0, 0, 9}, peerMAC)

	echo := buildICMPv4(icmpEchoRequest, 1, 1, []byte("ping"))
	datagram := buildIPv4(ProtoICMP, [4]byte{10, 0, 0, 9}, [4]byte{10, 0, 0, 5}, echo)
	dev.queue(buildEthernet(ifc.mac, peerMAC, EtherTypeIPv4, datagram))

	ifc.Task().Poll()

	if len(dev.sent) != 1 {
		t.Fatalf("sent %d frames, want 1 (the echo reply)", len(dev.sent))
	}

	eth, _ := parseEthernet(dev.sent[0])
	ip, ok := parseIPv4(eth.payload)
	if !ok || ip.proto != ProtoICMP {
		t.Fatalf("reply is not an ICMP datagram")
	}

	reply, isRequest, ok := parseICMPv4Echo(ip.payload)
	if !ok || isRequest {
		t.Fatalf("reply is not an echo reply")
	}
	if !bytes.Equal(reply.payload, []byte("ping")) {
		t.Fatalf("reply payload = %q, want %q", reply.payload, "ping")
	}
}

func TestInterfaceDeliversUDPToBoundSocket(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)

	sock := ifc.NewUDPSocket(68)

	datagram := buildUDP4([4]byte{10, 0, 0, 9}, [4]byte{10, 0, 0, 5}, 67, 68, []byte("lease"))
	ip := buildIPv4(ProtoUDP, [4]byte{10, 0, 0, 9}, [4]byte{10, 0, 0, 5}, datagram)
	dev.queue(buildEthernet(ifc.mac, [6]byte{0x02, 0, 0, 0, 0, 2}, EtherTypeIPv4, ip))

	ifc.Task().Poll()

	d, ok := sock.Recv()
	if !ok {
		t.Fatalf("socket received nothing")
	}
	if !bytes.Equal(d.Payload, []byte("lease")) {
		t.Fatalf("payload = %q, want %q", d.Payload, "lease")
	}
	if d.SrcPort != 67 {
		t.Fatalf("SrcPort = %d, want 67", d.SrcPort)
	}
}

func TestInterfaceDropsUDPForUnboundPort(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)

	datagram := buildUDP4([4]byte{10, 0, 0, 9}, [4]byte{10, 0, 0, 5}, 67, 9999, []byte("x"))
	ip := buildIPv4(ProtoUDP, [4]byte{10, 0, 0, 9}, [4]byte{10, 0, 0, 5}, datagram)
	dev.queue(buildEthernet(ifc.mac, [6]byte{0x02, 0, 0, 0, 0, 2}, EtherTypeIPv4, ip))

	// Must not panic when no socket is registered for the destination port.
	ifc.Task().Poll()
}

func TestSendIPv4FloodsARPOnUnknownDestination(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)

	ifc.sendIPv4([4]byte{10, 0, 0, 200}, ProtoICMP, []byte{1})

	if len(dev.sent) != 1 {
		t.Fatalf("sent %d frames, want 1 (the ARP request)", len(dev.sent))
	}
	eth, _ := parseEthernet(dev.sent[0])
	if eth.etype != EtherTypeARP {
		t.Fatalf("expected an ARP flood, got etype %#04x", eth.etype)
	}
}

func TestRecvRouterAdvertisementQueuesFromIPv6(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)

	ra := make([]byte, 16)
	ra[0] = icmpv6RouterAdvert
	routerAddr := [16]byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	datagram := buildIPv6(nextHeaderICMPv6, 255, routerAddr, ipv6LinkLocalAllRouters, ra)
	dev.queue(buildEthernet(ifc.mac, [6]byte{0x02, 0, 0, 0, 0, 9}, EtherTypeIPv6, datagram))

	ifc.Task().Poll()

	src, payload, ok := ifc.RecvRouterAdvertisement()
	if !ok {
		t.Fatalf("no Router Advertisement queued")
	}
	if src != routerAddr {
		t.Fatalf("src = %x, want %x", src, routerAddr)
	}
	if len(payload) == 0 || payload[0] != icmpv6RouterAdvert {
		t.Fatalf("payload does not look like a Router Advertisement")
	}
}
