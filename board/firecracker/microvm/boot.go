// Firecracker microvm support for tamago/amd64
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
)

const (
	heapStart = config.ManagedStart
	heapSize  = config.ManagedSize
)

// pmmStart/pmmSize mirror board/qemu/microvm's static physical region:
// Firecracker boots the guest directly with no firmware memory map
// either, see that board's boot.go for the full rationale.
const (
	pmmStart    = dmaStart + dmaSize // 0x60000000
	pmmSize     = 0x10000000         // 256MB
	pmmArenaCap = 65536
)

const hhdmOffset = 0

var (
	frames  pmm.Allocator
	pte     *amd64.PageTable
	mapper  *vmm.Mapper
	kheap   heap.Heap
	manager *irq.Manager
)

// Boot brings the kernel up on a Firecracker microVM. Firecracker
// exposes no CMOS RTC (clock.Epoch latches wall time at the Unix
// epoch instead) and no PCI bus, so networking is a fixed virtio-mmio
// device like board/qemu/microvm's, just at this board's own
// VIRTIO_NET0_BASE/VIRTIO_MMIO_BASE addresses.
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
	_ = clock.Init(AMD64, clock.Epoch)

	manager = irq.New(tables)
	manager.Init(onLapicError, onLapicTimer)
	manager.SetTimer(lapic.TIMER_MODE_PERIODIC)
	manager.ArmPeriodicTimer(timerCount())

	klog.Infof("boot", "initializing kernel heap")
	kheap.Init(heapStart, heapSize)
	amd64.InstallFaultHandlers(&kheap, mapper, manager)

	attachNetworkDevices()

	klog.Infof("boot", "starting per-core executors")
	AMD64.StartExecutors()
}

func onLapicError() {
	klog.Warnf("boot", "lapic error interrupt")
}

func onLapicTimer() {
	if amd64.CoreID() == 0 {
		clock.OnTick()
	}
}

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

func attachNetworkDevices() {
	io := &virtio.MMIO{Base: VIRTIO_NET0_BASE}

	dev, err := virtio.NewNet(io, &kheap)
	if err != nil {
		klog.Warnf("boot", "virtio-net attach failed", klog.F("error", err.Error()))
		return
	}

	iface.Register(dev)
}
