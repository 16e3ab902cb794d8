// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package slaac

import (
	"bytes"
	"context"
	"testing"

	"github.com/kestrel-os/kestrel/net/tcpip"
)

type fakeDevice struct {
	mac  [6]byte
	sent [][]byte
	rx   [][]byte
}

func (d *fakeDevice) LinkAddress() [6]byte { return d.mac }
func (d *fakeDevice) MTU() int             { return 1500 }

func (d *fakeDevice) Send(frame []byte) error {
	d.sent = append(d.sent, append([]byte(nil), frame...))
	return nil
}

func (d *fakeDevice) Receive() ([]byte, bool) {
	if len(d.rx) == 0 {
		return nil, false
	}
	frame := d.rx[0]
	d.rx = d.rx[1:]
	return frame, true
}

func (d *fakeDevice) Poll(ctx context.Context) <-chan struct{} {
	return make(chan struct{})
}

func TestTaskSendsRouterSolicitationFirst(t *testing.T) {
	dev := &fakeDevice{mac: [6]byte{0x02, 1, 2, 3, 4, 5}}
	ifc := tcpip.NewInterface(dev)

	task := NewTask(ifc)
	if task.Poll() {
		t.Fatalf("task reported done before any Router Advertisement arrived")
	}

	if len(dev.sent) != 1 {
		t.Fatalf("sent %d frames, want 1 (Router Solicitation)", len(dev.sent))
	}

	if got := ifc.Addresses6(); len(got) != 1 {
		t.Fatalf("addresses6 = %v, want exactly the derived link-local address", got)
	}
}

func TestTaskAppliesRouterAdvertisement(t *testing.T) {
	dev := &fakeDevice{mac: [6]byte{0x02, 1, 2, 3, 4, 5}}
	ifc := tcpip.NewInterface(dev)

	task := NewTask(ifc)
	task.Poll() // sends Router Solicitation, derives link-local

	linkLocal := tcpip.LinkLocalFromMAC(dev.mac)

	router := [16]byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	prefix := [16]byte{0x20, 0x01, 0x0d, 0xb8}
	queueRouterAdvertisement(ifc, dev, router, synthesizeRA(prefix))

	if !task.Poll() {
		t.Fatalf("task did not complete after a Router Advertisement")
	}

	addrs := ifc.Addresses6()
	if len(addrs) != 2 {
		t.Fatalf("addresses6 = %v, want link-local plus one SLAAC address", addrs)
	}

	slaacAddr := addrs[1]
	if slaacAddr[0] != prefix[0] || slaacAddr[1] != prefix[1] {
		t.Fatalf("SLAAC address %x does not carry the advertised prefix %x", slaacAddr, prefix)
	}
	if !bytes.Equal(slaacAddr[8:], linkLocal[8:]) {
		t.Fatalf("SLAAC address %x does not carry our own interface identifier %x", slaacAddr[8:], linkLocal[8:])
	}
}

// synthesizeRA builds a minimal Router Advertisement carrying one
// autonomous Prefix Information option, matching the wire shape
// net/tcpip.ParseRouterAdvertisement expects.
func synthesizeRA(prefix [16]byte) []byte {
	b := make([]byte, 16+32)
	b[0] = 134 // ICMPv6 Router Advertisement
	b[16] = 3  // Prefix Information option type
	b[17] = 4  // option length in 8-byte units (32 bytes)
	b[18] = 64 // prefix length
	b[19] = 0x40
	copy(b[32:48], prefix[:])
	return b
}

func queueRouterAdvertisement(ifc *tcpip.Interface, dev *fakeDevice, router [16]byte, payload []byte) {
	// Build the IPv6+Ethernet envelope by hand: net/tcpip's own builders
	// are unexported, and slaac only needs to prove the task reacts to
	// whatever the interface hands it through RecvRouterAdvertisement.
	ip := make([]byte, 40+len(payload))
	ip[0] = 0x60
	ip[4], ip[5] = byte(len(payload)>>8), byte(len(payload))
	ip[6] = 58 // ICMPv6
	ip[7] = 255
	copy(ip[8:24], router[:])
	copy(ip[24:40], []byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02})
	copy(ip[40:], payload)

	eth := make([]byte, 14+len(ip))
	eth[12], eth[13] = 0x86, 0xdd
	copy(eth[14:], ip)

	dev.rx = append(dev.rx, eth)
	ifc.Task().Poll()
}
