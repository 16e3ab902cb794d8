package vmm

import (
	"testing"

	"github.com/kestrel-os/kestrel/config"
	"github.com/kestrel-os/kestrel/mm/pmm"
)

type fakePTE struct {
	entries map[uintptr]struct {
		frame pmm.Frame
		flags Flags
	}
	shotdown int
}

func newFakePTE() *fakePTE {
	return &fakePTE{entries: map[uintptr]struct {
		frame pmm.Frame
		flags Flags
	}{}}
}

func (f *fakePTE) Install(va uintptr, pa pmm.Frame, flags Flags) error {
	f.entries[va] = struct {
		frame pmm.Frame
		flags Flags
	}{pa, flags}
	return nil
}

func (f *fakePTE) Clear(va uintptr) (pmm.Frame, bool) {
	e, ok := f.entries[va]
	delete(f.entries, va)
	return e.frame, ok
}

func (f *fakePTE) Lookup(va uintptr) (pmm.Frame, Flags, bool) {
	e, ok := f.entries[va]
	return e.frame, e.flags, ok
}

func (f *fakePTE) SetFlags(va uintptr, flags Flags) bool {
	e, ok := f.entries[va]
	if !ok {
		return false
	}
	e.flags = flags
	f.entries[va] = e
	return true
}

func newTestMapper(t *testing.T) (*Mapper, *fakePTE) {
	t.Helper()
	frames := &pmm.Allocator{}
	frames.Init([]pmm.Region{{Base: 0x100000, Length: 64 * config.PageSize}}, 64)
	pte := newFakePTE()
	return New(pte, frames), pte
}

func TestMapTranslateUnmap(t *testing.T) {
	m, _ := newTestMapper(t)
	region := Region{Start: 0x1000, End: 0x100000}

	va, err := m.Map(0, Present|Writable, region)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if va == 0 {
		t.Fatalf("Map returned null VA")
	}

	pa, ok := m.Translate(va)
	if !ok || pa == 0 {
		t.Fatalf("Translate(%#x) = %#x, %v", va, pa, ok)
	}

	frame, flush, err := m.Unmap(va)
	if err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if uintptr(frame) != pa {
		t.Fatalf("Unmap returned frame %#x, want %#x", frame, pa)
	}
	if flush.VA != va {
		t.Fatalf("flush token VA = %#x, want %#x", flush.VA, va)
	}

	if _, ok := m.Translate(va); ok {
		t.Fatalf("translate succeeded after unmap")
	}
}

func TestMapRangeContiguous(t *testing.T) {
	m, _ := newTestMapper(t)
	region := Region{Start: 0x1000, End: 0x100000}

	va, err := m.MapRange(0, 4*config.PageSize, Present|Writable, region)
	if err != nil {
		t.Fatalf("MapRange: %v", err)
	}

	for i := uintptr(0); i < 4; i++ {
		if _, ok := m.Translate(va + i*config.PageSize); !ok {
			t.Fatalf("page %d of range not mapped", i)
		}
	}
}

func TestFindFreeRunSkipsMapped(t *testing.T) {
	m, _ := newTestMapper(t)
	region := Region{Start: 0x1000, End: 0x1000 + 8*config.PageSize}

	first, err := m.MapRange(0, config.PageSize, Present|Writable, region)
	if err != nil {
		t.Fatalf("first MapRange: %v", err)
	}

	second, err := m.MapRange(0, 2*config.PageSize, Present|Writable, region)
	if err != nil {
		t.Fatalf("second MapRange: %v", err)
	}

	if second == first {
		t.Fatalf("second mapping reused the first's address")
	}
}

func TestOutOfVirtualAddress(t *testing.T) {
	m, _ := newTestMapper(t)
	region := Region{Start: 0x1000, End: 0x1000 + 2*config.PageSize}

	if _, err := m.MapRange(0, 4*config.PageSize, Present|Writable, region); err != ErrOutOfVirtualAddress {
		t.Fatalf("expected ErrOutOfVirtualAddress, got %v", err)
	}
}

type fakeSender struct{ n int }

func (f *fakeSender) SendTLBShootdown() { f.n++ }

func TestSendTLBShootdown(t *testing.T) {
	m, _ := newTestMapper(t)
	s := &fakeSender{}
	m.SendTLBShootdown(s)
	if s.n != 1 {
		t.Fatalf("shootdown not forwarded")
	}
}
