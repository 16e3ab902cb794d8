// Intel Peripheral Component Interconnect (PCI) driver
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pci

import "sync"

// Endpoint is a fully enumerated PCI function: its address, decoded
// BARs, and the raw Device handle for config-space access.
type Endpoint struct {
	Segment  uint16
	Bus      uint32
	Slot     uint32
	Function uint32

	Vendor uint16
	Device uint16

	BARs []BAR

	Handle *Device
}

type registryKey struct {
	Segment  uint16
	Bus      uint32
	Slot     uint32
	Function uint32
}

// registry is the process-wide, read-mostly map built once by Enumerate
// and consulted afterward by driver probes (the boards' network device
// attach, through Find) without re-walking config space.
var (
	registryMu sync.RWMutex
	registry   = map[registryKey]*Endpoint{}
)

func registerEndpoint(e *Endpoint) {
	registryMu.Lock()
	registry[registryKey{e.Segment, e.Bus, e.Slot, e.Function}] = e
	registryMu.Unlock()
}

// Lookup returns the endpoint at the given segment/bus/slot/function,
// if Enumerate found one there.
func Lookup(segment uint16, bus, slot, function uint32) (*Endpoint, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[registryKey{segment, bus, slot, function}]
	return e, ok
}

// Find returns every registered endpoint matching the given vendor and
// device ID, mirroring Probe's legacy single-bus search but across the
// whole registry built by Enumerate.
func Find(vendor, device uint16) []*Endpoint {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var out []*Endpoint
	for _, e := range registry {
		if e.Vendor == vendor && e.Device == device {
			out = append(out, e)
		}
	}
	return out
}

// All returns a snapshot of every registered endpoint.
func All() []*Endpoint {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]*Endpoint, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	return out
}
