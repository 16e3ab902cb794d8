// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dns

import (
	"context"
	"net"
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

func TestEncodeName(t *testing.T) {
	got := encodeName("example.com")
	want := []byte{7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}
	if len(got) != len(want) {
		t.Fatalf("encodeName length = %d, want %d (%x)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("encodeName = %v, want %v", got, want)
		}
	}
}

func TestStartFailsWithoutServers(t *testing.T) {
	dev := &fakeDevice{mac: [6]byte{0x02, 1, 2, 3, 4, 5}}
	ifc := tcpip.NewInterface(dev)
	r := New(ifc)

	if _, err := r.Start("example.com"); err != ErrNoServers {
		t.Fatalf("err = %v, want ErrNoServers", err)
	}
}

func TestQueryResolvesOnMatchingResponse(t *testing.T) {
	dev := &fakeDevice{mac: [6]byte{0x02, 1, 2, 3, 4, 5}}
	ifc := tcpip.NewInterface(dev)
	ifc.AddAddress([4]byte{10, 0, 0, 5}, 24)
	ifc.AddDNSServer(net.IPv4(10, 0, 0, 1))

	r := New(ifc)
	resolverTask := r.Task()

	q, err := r.Start("example.com")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if q.Ready() {
		t.Fatalf("query reported ready before any response")
	}

	response := buildResponse(t, q, net.IPv4(93, 184, 216, 34))
	dev.rx = append(dev.rx, wrapAsUDPFrame(response, [4]byte{10, 0, 0, 1}, 53, [4]byte{10, 0, 0, 5}, clientPort))

	ifc.Task().Poll()
	resolverTask.Poll()

	if !q.Ready() {
		t.Fatalf("query did not become ready after a matching response")
	}
	addr, err := q.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !addr.Equal(net.IPv4(93, 184, 216, 34)) {
		t.Fatalf("resolved address = %v, want 93.184.216.34", addr)
	}
}

// buildResponse extracts the transaction ID the query actually sent
// (by decoding it back out of the Query, which records it privately)
// and builds a one-answer A-record response, since the resolver
// rejects any ID it does not recognize.
func buildResponse(t *testing.T, q *Query, addr net.IP) []byte {
	t.Helper()
	b := make([]byte, 12)
	b[0], b[1] = byte(q.id>>8), byte(q.id)
	b[2] = 0x81 // response, recursion desired+available
	b[3] = 0x80
	b[4], b[5] = 0, 1 // QDCOUNT
	b[6], b[7] = 0, 1 // ANCOUNT

	b = append(b, encodeName(q.name)...)
	b = append(b, 0, 1, 0, 1) // QTYPE A, QCLASS IN

	b = append(b, encodeName(q.name)...)
	b = append(b, 0, 1, 0, 1) // TYPE A, CLASS IN
	b = append(b, 0, 0, 0, 60) // TTL
	b = append(b, 0, 4) // RDLENGTH
	b = append(b, addr.To4()...)

	return b
}

func wrapAsUDPFrame(payload []byte, src [4]byte, srcPort uint16, dst [4]byte, dstPort uint16) []byte {
	udp := make([]byte, 8+len(payload))
	udp[0], udp[1] = byte(srcPort>>8), byte(srcPort)
	udp[2], udp[3] = byte(dstPort>>8), byte(dstPort)
	ln := len(udp)
	udp[4], udp[5] = byte(ln>>8), byte(ln)
	copy(udp[8:], payload)

	ip := make([]byte, 20+len(udp))
	ip[0] = 0x45
	ln2 := len(ip)
	ip[2], ip[3] = byte(ln2>>8), byte(ln2)
	ip[9] = 17 // UDP
	copy(ip[12:16], src[:])
	copy(ip[16:20], dst[:])
	copy(ip[20:], udp)

	eth := make([]byte, 14+len(ip))
	eth[12], eth[13] = 0x08, 0x00
	copy(eth[14:], ip)
	return eth
}
