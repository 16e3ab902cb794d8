// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import (
	"bytes"
	"testing"
)

func TestBuildParseTCPRoundTrip(t *testing.T) {
	raw := buildTCP4([4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2}, 4000, 80, 111, 222, tcpFlagSYN, 65535, []byte("hi"))

	seg, ok := parseTCP(raw)
	if !ok {
		t.Fatalf("parseTCP failed on a valid segment")
	}
	if seg.srcPort != 4000 || seg.dstPort != 80 {
		t.Fatalf("ports = %d/%d, want 4000/80", seg.srcPort, seg.dstPort)
	}
	if seg.seq != 111 || seg.ack != 222 {
		t.Fatalf("seq/ack = %d/%d, want 111/222", seg.seq, seg.ack)
	}
	if seg.flags&tcpFlagSYN == 0 {
		t.Fatalf("SYN flag not preserved")
	}
	if !bytes.Equal(seg.payload, []byte("hi")) {
		t.Fatalf("payload = %q, want %q", seg.payload, "hi")
	}
}

func TestConnectSendsSYNAndTransitionsOnSynAck(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)
	ifc.arp.set([4]byte{10, 0, 0, 1}, [6]byte{0xaa, 0, 0, 0, 0, 1})

	sock := ifc.Connect([4]byte{10, 0, 0, 1}, 80)

	if sock.Ready() {
		t.Fatalf("socket reported ready before any reply")
	}
	if len(dev.sent) != 1 {
		t.Fatalf("sent %d frames, want 1 (the SYN)", len(dev.sent))
	}

	synEth, _ := parseEthernet(dev.sent[0])
	synIP, _ := parseIPv4(synEth.payload)
	syn, _ := parseTCP(synIP.payload)
	if syn.flags&tcpFlagSYN == 0 {
		t.Fatalf("first frame was not a SYN")
	}

	reply := buildTCP4([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 5}, 80, syn.srcPort, 999, syn.seq+1, tcpFlagSYN|tcpFlagACK, 65535, nil)
	seg, _ := parseTCP(reply)
	sock.deliver(seg)

	if !sock.Ready() {
		t.Fatalf("socket did not become ready after SYN-ACK")
	}
	if sock.Err() != nil {
		t.Fatalf("unexpected error after successful handshake: %v", sock.Err())
	}
}

func TestConnectFailsOnRST(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)
	ifc.arp.set([4]byte{10, 0, 0, 1}, [6]byte{0xaa, 0, 0, 0, 0, 1})

	sock := ifc.Connect([4]byte{10, 0, 0, 1}, 80)

	reply := buildTCP4([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 5}, 80, sock.localPort, 0, 0, tcpFlagRST, 0, nil)
	seg, _ := parseTCP(reply)
	sock.deliver(seg)

	if !sock.Ready() {
		t.Fatalf("socket did not report ready after RST")
	}
	if sock.Err() == nil {
		t.Fatalf("expected a connection-refused error after RST")
	}
}
