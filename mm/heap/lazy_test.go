package heap

import (
	"testing"

	"github.com/kestrel-os/kestrel/config"
	"github.com/kestrel-os/kestrel/mm/pmm"
	"github.com/kestrel-os/kestrel/mm/vmm"
)

type fakeBacker struct {
	mapped    map[uintptr]bool
	shotdowns int
}

func newFakeBacker() *fakeBacker { return &fakeBacker{mapped: map[uintptr]bool{}} }

func (b *fakeBacker) MapRange(pa pmm.Frame, size uintptr, flags vmm.Flags, region vmm.Region) (uintptr, error) {
	if b.mapped[region.Start] {
		return 0, vmm.ErrOutOfVirtualAddress
	}
	b.mapped[region.Start] = true
	return region.Start, nil
}

func (b *fakeBacker) SendTLBShootdown(vmm.ShootdownSender) { b.shotdowns++ }

type countingZeroer struct{ calls []uintptr }

func (z *countingZeroer) ZeroPage(addr uintptr) { z.calls = append(z.calls, addr) }

type fakeSender struct{}

func (fakeSender) SendTLBShootdown() {}

func TestLazyMapOutsideRegion(t *testing.T) {
	h := &Heap{}
	h.Init(config.ManagedStart, config.ManagedSize)

	if h.LazyMap(newFakeBacker(), &countingZeroer{}, fakeSender{}, 0x1234) {
		t.Fatalf("LazyMap should reject addresses outside the managed region")
	}
}

func TestLazyMapInsideRegion(t *testing.T) {
	h := &Heap{}
	h.Init(config.ManagedStart, config.ManagedSize)

	addr := uintptr(config.ManagedStart + 7*config.PageSize)
	backer := newFakeBacker()
	zero := &countingZeroer{}

	if !h.LazyMap(backer, zero, fakeSender{}, addr) {
		t.Fatalf("LazyMap should succeed for an unmapped in-region address")
	}

	if len(zero.calls) != 1 || zero.calls[0] != addr&^(config.PageSize-1) {
		t.Fatalf("expected one zero of the containing page, got %v", zero.calls)
	}

	if backer.shotdowns != 1 {
		t.Fatalf("expected one TLB shootdown, got %d", backer.shotdowns)
	}

	// Second fault on the same page should now fail (already mapped).
	if h.LazyMap(backer, zero, fakeSender{}, addr) {
		t.Fatalf("LazyMap should fail for an already-mapped page")
	}
}
