// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package heap

import (
	"github.com/kestrel-os/kestrel/config"
	"github.com/kestrel-os/kestrel/mm/pmm"
	"github.com/kestrel-os/kestrel/mm/vmm"
)

// Backer is the subset of vmm.Mapper that lazy mapping needs: install a
// fresh mapping and broadcast the resulting shootdown.
type Backer interface {
	MapRange(pa pmm.Frame, size uintptr, flags vmm.Flags, region vmm.Region) (uintptr, error)
	SendTLBShootdown(sender vmm.ShootdownSender)
}

// Zeroer abstracts writing config.PageSize zero bytes at addr; the amd64
// build writes through a raw pointer, tests use an in-memory fake.
type Zeroer interface {
	ZeroPage(addr uintptr)
}

// LazyMap backs a single faulting page within the managed heap region: it
// consults the mapper, allocates one frame, installs PRESENT|WRITABLE,
// zeroes the page, and broadcasts a TLB shootdown.
//
// It returns false if addr is outside the managed region or already
// mapped; per spec.md §4.3 the caller (the page-fault handler) escalates
// that to a panic.
func (h *Heap) LazyMap(mapper Backer, zero Zeroer, shootdown vmm.ShootdownSender, addr uintptr) bool {
	if !h.Contains(addr) {
		return false
	}

	page := addr &^ (config.PageSize - 1)

	region := vmm.Region{Start: page, End: page + config.PageSize}

	if _, err := mapper.MapRange(0, config.PageSize, vmm.Present|vmm.Writable, region); err != nil {
		return false
	}

	if zero != nil {
		zero.ZeroPage(page)
	}

	mapper.SendTLBShootdown(shootdown)

	return true
}
