// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import "testing"

func TestSocketSetCounts(t *testing.T) {
	dev := newFakeDevice([6]byte{0x02, 0, 0, 0, 0, 1})
	ifc := NewInterface(dev)

	if udp, tcp := ifc.Sockets().Counts(); udp != 0 || tcp != 0 {
		t.Fatalf("counts = %d/%d, want 0/0 on a fresh interface", udp, tcp)
	}

	sock := ifc.NewUDPSocket(6000)
	if udp, _ := ifc.Sockets().Counts(); udp != 1 {
		t.Fatalf("udp count = %d, want 1 after binding a socket", udp)
	}

	sock.Close()
	if udp, _ := ifc.Sockets().Counts(); udp != 0 {
		t.Fatalf("udp count = %d, want 0 after closing the socket", udp)
	}
}
