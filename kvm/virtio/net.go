// VirtIO network card driver
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package virtio

import (
	"context"
	"crypto/rand"
	"errors"
	"unsafe"

	"github.com/kestrel-os/kestrel/mm/heap"
)

const netDeviceID = 1 // VirtIO subsystem device ID for a network card

const (
	rxQueueIndex = 0
	txQueueIndex = 1
	netQueueSize = 256

	// netHeaderLen is sizeof(virtio_net_hdr) without the mrg_rxbuf
	// extension, valid as long as VIRTIO_NET_F_MRG_RXBUF is left
	// unnegotiated (it is: NewNet passes 0 driver features to io.Init).
	netHeaderLen = 10
	bufferSize   = netHeaderLen + 1514
)

// Net is a VirtIO network device driver satisfying net/tcpip.Device: two
// split virtqueues (receive, transmit) move whole Ethernet frames,
// each prefixed by the spec's virtio_net_hdr, through the VirtualQueue
// Push/Pop primitives any VirtIO transport (PCI, MMIO, legacy) already
// provides.
//
// Grounded on the teacher's VirtIO transport interface plus the
// top-level virtio package's Net type (feature negotiation, MAC
// generation shape), generalized from an Init-only stub into a device
// that actually moves frames — the teacher never wired Tx/Rx for this
// device, only probed and negotiated it.
type Net struct {
	io   VirtIO
	heap *heap.Heap
	mac  [6]byte
	mtu  int

	rx *VirtualQueue
	tx *VirtualQueue
}

// NewNet initializes a VirtIO network device over the given transport
// (typically a *PCI bound to a soc/intel/pci.Endpoint found by
// soc/intel/pci.Find(VendorRedHat, DeviceNet)) and brings its receive
// and transmit virtqueues up.
//
// kheap, if non-nil, backs the per-packet staging buffer Send copies
// each frame through before handing it to the transmit virtqueue; a nil
// kheap falls back to a Go-heap allocation, which is what host tests
// without a lazily-mapped kernel heap to fault against should pass.
func NewNet(io VirtIO, kheap *heap.Heap) (*Net, error) {
	if err := io.Init(0); err != nil {
		return nil, err
	}

	if io.DeviceID() != netDeviceID {
		return nil, errors.New("virtio: not a network device")
	}

	n := &Net{io: io, heap: kheap, mtu: 1500}

	config := io.Config(6)
	copy(n.mac[:], config)
	if n.mac == ([6]byte{}) {
		rand.Read(n.mac[:])
		n.mac[0] = n.mac[0]&0xfe | 0x02 // unicast, locally administered
	}

	n.rx = &VirtualQueue{}
	n.rx.Init(netQueueSize, bufferSize, Write)
	io.SetQueue(rxQueueIndex, n.rx)

	n.tx = &VirtualQueue{}
	n.tx.Init(netQueueSize, bufferSize, 0)
	io.SetQueue(txQueueIndex, n.tx)

	io.SetReady()

	return n, nil
}

// LinkAddress returns the device's MAC address.
func (n *Net) LinkAddress() [6]byte { return n.mac }

// MTU returns the largest Ethernet frame payload this device accepts.
func (n *Net) MTU() int { return n.mtu }

// Send transmits one Ethernet frame, prefixing it with a zeroed
// virtio_net_hdr (no checksum/segmentation offload negotiated). The
// staging buffer is drawn from the kernel heap rather than Go's runtime
// allocator when one was given to NewNet, since it is copied into the
// descriptor's own DMA buffer by Push and discarded immediately after.
func (n *Net) Send(frame []byte) error {
	size := uintptr(netHeaderLen + len(frame))

	var buf []byte
	var addr uintptr

	if n.heap != nil {
		a, err := n.heap.Alloc(size, 1)
		if err != nil {
			return err
		}
		addr = a
		buf = unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	} else {
		buf = make([]byte, size)
	}

	copy(buf[netHeaderLen:], frame)

	n.tx.Push(buf)
	n.io.QueueNotify(txQueueIndex)

	if n.heap != nil {
		n.heap.Dealloc(addr, size)
	}

	return nil
}

// Receive returns the next pending received frame, with its
// virtio_net_hdr prefix stripped.
func (n *Net) Receive() ([]byte, bool) {
	buf := n.rx.Pop()
	if len(buf) <= netHeaderLen {
		return nil, false
	}
	return buf[netHeaderLen:], true
}

// Poll reports readiness by peeking the receive queue's used index
// without consuming an entry — Receive is what actually pops it.
func (n *Net) Poll(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	if n.rx.Used.Index() != n.rx.Used.last {
		close(ch)
	}
	return ch
}
