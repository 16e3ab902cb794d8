// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dns implements a minimal DNS stub resolver over the shared
// interface's UDP socket set, querying whichever servers the interface's
// mutable DNS address set currently holds (populated by net/dhcp and
// net/slaac).
//
// Grounded on original_source's DnsSocket (a handle into smoltcp's DNS
// socket, itself a thin client of iface.dns_servers), adapted to this
// kernel's Poll()-bool task model: Start returns a Query handle immediately
// and the caller polls it instead of awaiting a future.
package dns

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"net"

	"github.com/kestrel-os/kestrel/net/tcpip"
	"github.com/kestrel-os/kestrel/sched"
)

const clientPort = 53000 // ephemeral range start for resolver sockets
const serverPort = 53

// ErrNoServers is returned by Start when the interface has no DNS
// servers configured yet.
var ErrNoServers = errors.New("dns: no resolver addresses configured")

// ErrNXDomain is returned once a query resolves to "no such name".
var ErrNXDomain = errors.New("dns: name does not exist")

// Resolver issues queries against an Interface's current DNS server
// set over one shared UDP socket.
type Resolver struct {
	ifc  *tcpip.Interface
	sock *tcpip.UDPSocket

	pending map[uint16]*Query
}

// New binds a UDP socket for outgoing queries against ifc.
func New(ifc *tcpip.Interface) *Resolver {
	r := &Resolver{
		ifc:     ifc,
		pending: map[uint16]*Query{},
	}
	r.sock = ifc.NewUDPSocket(clientPort)
	return r
}

// Query is a single in-flight or completed DNS lookup.
type Query struct {
	name string
	id   uint16
	done chan struct{}
	addr net.IP
	err  error
}

// Ready reports whether the query has completed (successfully or not).
func (q *Query) Ready() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Result returns the resolved address and error, valid once Ready.
func (q *Query) Result() (net.IP, error) {
	return q.addr, q.err
}

// Start sends an A-record query for name and returns a handle to poll.
func (r *Resolver) Start(name string) (*Query, error) {
	servers := r.ifc.DNSServers()
	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	id := uint16(rand.Uint32())
	q := &Query{name: name, id: id, done: make(chan struct{})}
	r.pending[id] = q

	msg := buildQuery(id, name)

	var dst [4]byte
	if v4 := servers[0].To4(); v4 != nil {
		copy(dst[:], v4)
	}

	r.sock.SendTo(dst, serverPort, msg)

	return q, nil
}

// Task returns a sched.Task that drains resolver responses and
// completes matching pending queries, to be spawned alongside
// net/iface.Register's other tasks.
func (r *Resolver) Task() sched.Task {
	return sched.TaskFunc(func() bool {
		d, ok := r.sock.Recv()
		if !ok {
			return false
		}

		id, addr, rcode, ok := parseResponse(d.Payload)
		if !ok {
			return false
		}

		q := r.pending[id]
		if q == nil {
			return false
		}
		delete(r.pending, id)

		if rcode == rcodeNXDomain {
			q.err = ErrNXDomain
		} else {
			q.addr = addr
		}
		close(q.done)

		return false
	})
}

const rcodeNXDomain = 3

func buildQuery(id uint16, name string) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint16(b[0:2], id)
	binary.BigEndian.PutUint16(b[2:4], 0x0100) // recursion desired
	binary.BigEndian.PutUint16(b[4:6], 1)      // QDCOUNT

	b = append(b, encodeName(name)...)
	b = binary.BigEndian.AppendUint16(b, 1) // QTYPE A
	b = binary.BigEndian.AppendUint16(b, 1) // QCLASS IN

	return b
}

func encodeName(name string) []byte {
	var b []byte
	label := []byte{}
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			b = append(b, byte(len(label)))
			b = append(b, label...)
			label = label[:0]
			continue
		}
		label = append(label, name[i])
	}
	return append(b, 0)
}

func parseResponse(b []byte) (id uint16, addr net.IP, rcode int, ok bool) {
	if len(b) < 12 {
		return 0, nil, 0, false
	}

	id = binary.BigEndian.Uint16(b[0:2])
	flags := binary.BigEndian.Uint16(b[2:4])
	rcode = int(flags & 0x000f)
	qdcount := binary.BigEndian.Uint16(b[4:6])
	ancount := binary.BigEndian.Uint16(b[6:8])

	off := 12
	for i := uint16(0); i < qdcount; i++ {
		off = skipName(b, off)
		off += 4 // QTYPE + QCLASS
	}

	for i := uint16(0); i < ancount && off < len(b); i++ {
		off = skipName(b, off)
		if off+10 > len(b) {
			break
		}
		rtype := binary.BigEndian.Uint16(b[off : off+2])
		rdlength := binary.BigEndian.Uint16(b[off+8 : off+10])
		off += 10

		if rtype == 1 && rdlength == 4 && off+4 <= len(b) {
			addr = net.IPv4(b[off], b[off+1], b[off+2], b[off+3])
		}
		off += int(rdlength)
	}

	return id, addr, rcode, true
}

func skipName(b []byte, off int) int {
	for off < len(b) {
		length := int(b[off])
		if length == 0 {
			return off + 1
		}
		if length&0xc0 == 0xc0 {
			return off + 2
		}
		off += 1 + length
	}
	return off
}
