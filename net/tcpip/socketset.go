// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import "sync"

// SocketSet is the interface's table of bound UDP ports and open TCP
// connections, mirroring original_source's process-wide
// `SOCKETS: Mutex<SocketSet>` — generalized here from a handle-indexed
// smoltcp table to two port-keyed maps, since this stack only ever
// drives the one Interface it was built for (there is no multi-NIC
// socket-set sharing to support).
type SocketSet struct {
	mu  sync.Mutex
	udp map[uint16]*UDPSocket
	tcp map[uint16]*TCPSocket
}

func newSocketSet() *SocketSet {
	return &SocketSet{
		udp: map[uint16]*UDPSocket{},
		tcp: map[uint16]*TCPSocket{},
	}
}

// Counts returns the number of bound UDP sockets and open TCP
// connections, for the debug dashboard.
func (s *SocketSet) Counts() (udp, tcp int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.udp), len(s.tcp)
}
