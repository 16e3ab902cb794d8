// Intel Peripheral Component Interconnect (PCI) driver
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pci

import (
	"fmt"

	"github.com/kestrel-os/kestrel/acpi"
	"github.com/kestrel-os/kestrel/klog"
)

// Enumerate walks every PCIe segment ACPI's MCFG advertises, recursing
// through PCI-PCI bridges starting from each region's root bus, and
// populates the process-wide registry queried through Lookup/Find/All.
//
// Grounded on the teacher's Devices/Probe (per-slot VendorID probe,
// 0xffff meaning nothing present) generalized from a single legacy bus
// to every ACPI-advertised segment/bus reachable through bridges, per
// original_source's pci_route_pin reliance on MCFG/MADT-parsed data.
func Enumerate(tables *acpi.Tables) {
	for _, region := range tables.MCFGRegions {
		visited := map[uint32]bool{}
		walkBus(region.Segment, region.Base, uint32(region.BusStart), visited)
	}
}

func walkBus(segment uint16, ecamBase uint64, bus uint32, visited map[uint32]bool) {
	if visited[bus] {
		return
	}
	visited[bus] = true

	for slot := uint32(0); slot < maxDevices; slot++ {
		probe := &Device{Bus: bus, Slot: slot, ECAMBase: ecamBase}

		val := probe.Read(0, VendorID)
		if uint16(val) == 0xffff {
			continue
		}

		nFn := uint32(1)
		if _, multi := probe.headerType(0); multi {
			nFn = 8
		}

		for fn := uint32(0); fn < nFn; fn++ {
			fval := probe.Read(fn, VendorID)
			vendor := uint16(fval)
			if vendor == 0xffff {
				continue
			}

			d := &Device{
				Bus:      bus,
				Slot:     slot,
				Function: fn,
				ECAMBase: ecamBase,
				Vendor:   vendor,
				Device:   uint16(fval >> 16),
			}

			e := &Endpoint{
				Segment:  segment,
				Bus:      bus,
				Slot:     slot,
				Function: fn,
				Vendor:   vendor,
				Device:   d.Device,
				BARs:     decodeBARs(d, fn),
				Handle:   d,
			}
			registerEndpoint(e)

			klog.Debugf("pci", "found endpoint",
				klog.F("segment", fmt.Sprintf("%d", segment)),
				klog.F("bus", fmt.Sprintf("%d", bus)),
				klog.F("slot", fmt.Sprintf("%d", slot)),
				klog.F("function", fmt.Sprintf("%d", fn)),
				klog.F("vendor", fmt.Sprintf("0x%04x", vendor)),
				klog.F("device", fmt.Sprintf("0x%04x", d.Device)),
			)

			if d.isBridge(fn) {
				walkBus(segment, ecamBase, d.secondaryBus(fn), visited)
			}
		}
	}
}
