// Package local implements per-core lazily-initialized storage (C12).
//
// Grounded on original_source's arch/x86_64/local.rs, whose Local[T]
// stashes a BTreeMap of per-type slots behind the GS segment base
// register, read back through inline assembly on every access. That
// indirection exists because the Rust kernel owns its GS register
// outright; under TamaGo the Go runtime already uses GS-relative
// addressing for its own goroutine-local state (see goos.go), so
// reusing it here would race the runtime instead of complementing it.
// This port keeps Local[T]'s public shape (lazy per-core
// initialization, one slot per distinct Local value) but indexes a
// plain fixed-size array by the core ID TamaGo already hands out via
// CPU.ID, rather than re-deriving storage through a segment register.
package local

import (
	"sync"

	"github.com/kestrel-os/kestrel/config"
)

var coreID func() int

// SetCoreIDFunc installs the function used to determine the calling
// core's index. amd64's CPU.StartExecutors wires this to amd64.CoreID
// (the calling core's Local APIC ID); until then every caller is
// treated as core 0.
func SetCoreIDFunc(f func() int) {
	coreID = f
}

func currentCore() int {
	if coreID == nil {
		return 0
	}

	id := coreID()
	if id < 0 || id >= config.MaxCores {
		panic("local: core ID out of range")
	}

	return id
}

// Local is a per-core value lazily initialized on first access from
// each core, analogous to a sync.OnceValue scoped per-CPU instead of
// process-wide.
type Local[T any] struct {
	init func() T
	once [config.MaxCores]sync.Once
	vals [config.MaxCores]T
}

// New returns a Local whose value is produced by init the first time
// each core calls Get.
func New[T any](init func() T) *Local[T] {
	return &Local[T]{init: init}
}

// Get returns a pointer to the calling core's slot, initializing it on
// first use.
func (l *Local[T]) Get() *T {
	c := currentCore()

	l.once[c].Do(func() {
		l.vals[c] = l.init()
	})

	return &l.vals[c]
}
