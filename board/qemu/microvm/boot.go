// QEMU microvm support for tamago/amd64
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package microvm

import (
	"github.com/kestrel-os/kestrel/acpi"
	"github.com/kestrel-os/kestrel/amd64"
	"github.com/kestrel-os/kestrel/amd64/irq"
	"github.com/kestrel-os/kestrel/amd64/lapic"
	"github.com/kestrel-os/kestrel/clock"
	"github.com/kestrel-os/kestrel/config"
	"github.com/kestrel-os/kestrel/klog"
	"github.com/kestrel-os/kestrel/kvm/virtio"
	"github.com/kestrel-os/kestrel/mm/heap"
	"github.com/kestrel-os/kestrel/mm/pmm"
	"github.com/kestrel-os/kestrel/mm/vmm"
	"github.com/kestrel-os/kestrel/net/iface"
	"github.com/kestrel-os/kestrel/soc/intel/pci"
)

// heapStart and heapSize bound the managed virtual region mm/heap
// carves into slab tiers; config.ManagedStart/ManagedSize already fix
// these for every board, so this board just forwards them.
const (
	heapStart = config.ManagedStart
	heapSize  = config.ManagedSize
)

// pmmStart and pmmSize bound the physical region handed to the frame
// allocator. QEMU microvm is booted directly by KVM (no Limine or
// other boot-protocol firmware memory map is available, unlike
// original_source's Limine-supplied MemmapEntry list — see DESIGN.md),
// so this board hands pmm a static region the same way dmaStart/dmaSize
// above hands dma a static region: a fixed range known in advance to
// sit above both the Go runtime's own RAM window and the DMA region.
const (
	pmmStart    = dmaStart + dmaSize // 0x60000000
	pmmSize     = 0x10000000         // 256MB
	pmmArenaCap = 65536
)

// hhdmOffset is 0: a microvm guest booted directly by KVM has no
// bootloader-installed higher-half direct map, so physical and virtual
// addresses below the kernel's own managed regions coincide.
const hhdmOffset = 0

var (
	frames  pmm.Allocator
	pte     *amd64.PageTable
	mapper  *vmm.Mapper
	kheap   heap.Heap
	manager *irq.Manager
)

// Boot brings the kernel up in the order spec.md §2 lays out: hardware
// already initialized by Init/init (C1, C5 partially, C6 partially, C7
// partially, C8, C9 partially) has already run by the time the Go
// runtime reaches this function, so Boot picks up at the physical frame
// allocator (C2) and runs through starting the per-core executors
// (C13). It never returns: StartExecutors hands the BSP to the
// scheduler in place.
func Boot() {
	klog.Infof("boot", "initializing physical frame allocator")
	frames.Init([]pmm.Region{{Base: pmmStart, Length: pmmSize}}, pmmArenaCap)

	klog.Infof("boot", "initializing virtual memory mapper")
	pte = amd64.NewPageTable(AMD64)
	mapper = vmm.New(pte, &frames)

	klog.Infof("boot", "locating ACPI tables")
	rsdp, ok := acpi.Locate(hhdmOffset)
	if !ok {
		panic("boot: no ACPI RSDP found")
	}

	tables, err := acpi.Parse(hhdmOffset, rsdp)
	if err != nil {
		panic("boot: " + err.Error())
	}

	klog.Infof("boot", "initializing wall clock and interrupt manager")
	if err := clock.Init(AMD64, RTC0); err != nil {
		klog.Warnf("boot", "rtc unavailable, wall clock left at epoch", klog.F("error", err.Error()))
	}

	manager = irq.New(tables)
	manager.Init(onLapicError, onLapicTimer)
	manager.SetTimer(lapic.TIMER_MODE_PERIODIC)
	manager.ArmPeriodicTimer(timerCount())

	klog.Infof("boot", "initializing kernel heap")
	kheap.Init(heapStart, heapSize)
	amd64.InstallFaultHandlers(&kheap, mapper, manager)

	// QEMU's microvm machine type has no PCI root complex of its own
	// (that is the point of microvm: a minimal board with virtio-mmio
	// instead), so tables.MCFGRegions is always empty here and this
	// walks zero buses. It stays wired because ACPI-described PCI is a
	// real capability other boards built from the same ACPI/PCI
	// packages exercise (see board/cloud_hypervisor/vm.Boot).
	klog.Infof("boot", "enumerating PCI bus")
	pci.Enumerate(tables)

	attachNetworkDevices()

	klog.Infof("boot", "starting per-core executors")
	AMD64.StartExecutors()
}

// onLapicError is the handler installed for the LAPIC error vector;
// spec.md treats it as non-fatal telemetry, not a reason to halt.
func onLapicError() {
	klog.Warnf("boot", "lapic error interrupt")
}

// onLapicTimer fires on every core's LVT timer tick. Only the BSP (core
// 0) advances the global timer wheel, matching spec §4.7's rule that a
// single tick-leader owns global clock state while every other core's
// tick is local scheduler housekeeping only.
func onLapicTimer() {
	if amd64.CoreID() == 0 {
		clock.OnTick()
	}
}

// timerCount converts config.TimerInterval (milliseconds) into a LAPIC
// timer initial count, given the calibrated core frequency and the
// divide-by-16 configuration ArmPeriodicTimer applies.
func timerCount() uint32 {
	return timerCountForFreq(AMD64.Freq(), config.TimerInterval)
}

// timerCountForFreq computes the LAPIC initial count for a divide-by-16
// timer ticking at coreFreqHz that should fire once every intervalMs
// milliseconds, split out from timerCount so the arithmetic is testable
// without a calibrated CPU.
func timerCountForFreq(coreFreqHz uint32, intervalMs uint) uint32 {
	ticksPerSecond := uint64(coreFreqHz) / 16
	return uint32(ticksPerSecond * uint64(intervalMs) / 1000)
}

// attachNetworkDevices binds the board's fixed virtio-mmio network
// device to a net/iface.Device, bringing up DHCPv4/SLAAC/DNS on it.
// microvm wires virtio-mmio at a fixed address rather than discovering
// it on a PCI bus (see VIRTIO_NET0_BASE).
func attachNetworkDevices() {
	io := &virtio.MMIO{Base: VIRTIO_NET0_BASE}

	dev, err := virtio.NewNet(io, &kheap)
	if err != nil {
		klog.Warnf("boot", "virtio-net attach failed", klog.F("error", err.Error()))
		return
	}

	iface.Register(dev)
}
