// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package tcpip

import (
	"encoding/binary"
	"errors"
	"math/rand"
)

const tcpMinHeaderLen = 20

// TCP header flag bits.
const (
	tcpFlagFIN = 1 << 0
	tcpFlagSYN = 1 << 1
	tcpFlagRST = 1 << 2
	tcpFlagACK = 1 << 4
)

type tcpSegment struct {
	srcPort, dstPort uint16
	seq, ack         uint32
	flags            byte
	window           uint16
	payload          []byte
}

func parseTCP(b []byte) (tcpSegment, bool) {
	if len(b) < tcpMinHeaderLen {
		return tcpSegment{}, false
	}
	dataOff := int(b[12]>>4) * 4
	if dataOff < tcpMinHeaderLen || dataOff > len(b) {
		return tcpSegment{}, false
	}
	return tcpSegment{
		srcPort: binary.BigEndian.Uint16(b[0:2]),
		dstPort: binary.BigEndian.Uint16(b[2:4]),
		seq:     binary.BigEndian.Uint32(b[4:8]),
		ack:     binary.BigEndian.Uint32(b[8:12]),
		flags:   b[13],
		window:  binary.BigEndian.Uint16(b[14:16]),
		payload: b[dataOff:],
	}, true
}

func buildTCP4(src, dst [4]byte, srcPort, dstPort uint16, seq, ack uint32, flags byte, window uint16, payload []byte) []byte {
	length := tcpMinHeaderLen + len(payload)
	b := make([]byte, length)

	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint32(b[4:8], seq)
	binary.BigEndian.PutUint32(b[8:12], ack)
	b[12] = byte(tcpMinHeaderLen/4) << 4
	b[13] = flags
	binary.BigEndian.PutUint16(b[14:16], window)
	copy(b[tcpMinHeaderLen:], payload)

	sum := pseudoHeaderSum4(src, dst, ProtoTCP, length)
	binary.BigEndian.PutUint16(b[16:18], checksum(b, sum))

	return b
}

// ErrClosed is returned by TCPSocket operations once the connection has
// torn down.
var ErrClosed = errors.New("tcpip: connection closed")

type tcpState int

const (
	tcpStateClosed tcpState = iota
	tcpStateSynSent
	tcpStateEstablished
	tcpStateFinWait
	tcpStateDone
)

// TCPSocket is a client TCP connection layered directly over the
// interface's IPv4 send path. Grounded on original_source's TcpSocket
// (a handle into smoltcp's SocketSet), simplified to the degree a
// from-scratch stack can responsibly cover: Write sends at once without
// tracking acknowledgements, and there is no retransmission timer or
// congestion control — acceptable for
// the kernel's own uses (DHCP runs over UDP, not TCP; this exists for
// the debug dashboard and future shell consumers).
//
// TODO: add a retransmission timer once sched/timer exposes per-socket
// deadlines cheaply; until then a dropped SYN/ACK stalls the connect.
type TCPSocket struct {
	iface *Interface

	state        tcpState
	remote       [4]byte
	remotePort   uint16
	localPort    uint16
	seq, ack     uint32
	rx           chan []byte
	connected    chan struct{}
	connectedErr error
}

// Connect starts an active open to addr:port and returns immediately;
// callers poll Ready()/Err() (typically from a sched.Task) to learn
// when the handshake completes.
func (ifc *Interface) Connect(addr [4]byte, port uint16) *TCPSocket {
	s := &TCPSocket{
		iface:      ifc,
		state:      tcpStateSynSent,
		remote:     addr,
		remotePort: port,
		localPort:  49152 + uint16(rand.Intn(16384)),
		seq:        rand.Uint32(),
		rx:         make(chan []byte, 64),
		connected:  make(chan struct{}),
	}

	ifc.registerTCP(s)

	src := ifc.primaryAddress()
	seg := buildTCP4(src, s.remote, s.localPort, s.remotePort, s.seq, 0, tcpFlagSYN, 65535, nil)
	ifc.sendIPv4(s.remote, ProtoTCP, seg)

	return s
}

// Ready reports whether the handshake attempt has completed, successfully
// or not; Err tells the two apart.
func (s *TCPSocket) Ready() bool {
	select {
	case <-s.connected:
		return true
	default:
		return false
	}
}

// Err returns the error the handshake failed with, if any, once Ready
// would report a completed (successful or not) attempt.
func (s *TCPSocket) Err() error {
	select {
	case <-s.connected:
		return s.connectedErr
	default:
		return nil
	}
}

// Read returns the next chunk of received payload bytes, if any.
func (s *TCPSocket) Read() ([]byte, bool) {
	select {
	case b := <-s.rx:
		return b, true
	default:
		return nil, false
	}
}

// Write sends payload on an established connection.
func (s *TCPSocket) Write(payload []byte) error {
	if s.state != tcpStateEstablished {
		return ErrClosed
	}
	src := s.iface.primaryAddress()
	seg := buildTCP4(src, s.remote, s.localPort, s.remotePort, s.seq, s.ack, tcpFlagACK, 65535, payload)
	s.iface.sendIPv4(s.remote, ProtoTCP, seg)
	s.seq += uint32(len(payload))
	return nil
}

// Close sends a FIN and releases the socket's registration.
func (s *TCPSocket) Close() {
	if s.state == tcpStateEstablished || s.state == tcpStateSynSent {
		src := s.iface.primaryAddress()
		seg := buildTCP4(src, s.remote, s.localPort, s.remotePort, s.seq, s.ack, tcpFlagFIN|tcpFlagACK, 65535, nil)
		s.iface.sendIPv4(s.remote, ProtoTCP, seg)
	}
	s.state = tcpStateDone
	s.iface.unregisterTCP(s.localPort)
}

func (s *TCPSocket) deliver(seg tcpSegment) {
	switch s.state {
	case tcpStateSynSent:
		if seg.flags&(tcpFlagSYN|tcpFlagACK) == tcpFlagSYN|tcpFlagACK {
			s.ack = seg.seq + 1
			s.seq++
			s.state = tcpStateEstablished

			src := s.iface.primaryAddress()
			ack := buildTCP4(src, s.remote, s.localPort, s.remotePort, s.seq, s.ack, tcpFlagACK, 65535, nil)
			s.iface.sendIPv4(s.remote, ProtoTCP, ack)

			close(s.connected)
		} else if seg.flags&tcpFlagRST != 0 {
			s.connectedErr = errors.New("tcpip: connection refused")
			s.state = tcpStateDone
			close(s.connected)
		}
	case tcpStateEstablished:
		if len(seg.payload) > 0 {
			s.ack = seg.seq + uint32(len(seg.payload))
			select {
			case s.rx <- append([]byte(nil), seg.payload...):
			default:
			}
		}
		if seg.flags&tcpFlagFIN != 0 {
			s.ack++
			s.state = tcpStateFinWait
		}
	}
}
