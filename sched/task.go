// Package sched implements the kernel's cooperative, work-stealing
// task executor (C13): one Scheduler per core, a mutex-guarded
// Injector for tasks spawned before any core has picked them up or
// spawned from outside a running executor, and an Executor run loop
// per core that ticks its own queue and steals from siblings when it
// runs dry.
//
// Grounded on original_source's kernel/src/task/executor.rs
// (Runtime/Executor/Injector/try_steal/spawn/block_on). Go has no
// Future/Poll machinery, so Task.Poll collapses maitake's
// Poll::Ready/Poll::Pending into a plain "done" bool, and BlockOn
// takes a poll closure directly rather than driving a trait object
// through a waker. Rust's forced-unwind-per-task isolation (a
// panicking task cannot take down the whole executor) is ported using
// Go's native recover() around each Poll call instead.
package sched

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/kestrel-os/kestrel/config"
	"github.com/kestrel-os/kestrel/klog"
	"github.com/kestrel-os/kestrel/sched/timer"
)

// Task is one schedulable unit of work. Poll runs the task until it
// either yields (returns false, meaning "call me again") or completes
// (returns true).
type Task interface {
	Poll() bool
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func() bool

func (f TaskFunc) Poll() bool { return f() }

// coreIDFunc resolves the calling core's index; set once by the board
// entry point via SetCoreIDFunc. Until set, everything behaves as a
// single-core system (core 0).
var coreIDFunc func() int

// SetCoreIDFunc installs the function Spawn uses to find the calling
// core's scheduler.
func SetCoreIDFunc(f func() int) {
	coreIDFunc = f
}

func currentCoreIndex() int {
	if coreIDFunc == nil {
		return 0
	}
	return coreIDFunc()
}

// HaltFunc is invoked by an Executor's run loop (and by BlockOn) when
// there is no work to do; the board entry point wires this to
// enabling interrupts and halting the core. Left nil it is a no-op,
// which is correct for host tests.
var HaltFunc func()

func haltAndWait() {
	if HaltFunc != nil {
		HaltFunc()
	}
}

type runtime struct {
	mu             sync.Mutex
	cores          []*Scheduler
	currentSched   [config.MaxCores]*Scheduler
	globalInjector *Injector
}

var rt = &runtime{globalInjector: newInjector()}

// NewExecutor registers a new per-core scheduler with the runtime and
// returns the Executor that drives it. Called once per physical core
// at boot.
func NewExecutor() *Executor {
	rt.mu.Lock()
	id := len(rt.cores)
	if id >= config.MaxCores {
		rt.mu.Unlock()
		panic("sched: too many cores")
	}
	s := &Scheduler{}
	rt.cores = append(rt.cores, s)
	rt.mu.Unlock()

	return &Executor{
		id:        id,
		scheduler: s,
		rng:       rand.New(rand.NewSource(int64(id) + 1)),
	}
}

// NewExecutorForCore registers a per-core scheduler at a caller-chosen
// index rather than the next sequential slot. SMP bring-up uses this:
// the executor's id must equal whatever coreIDFunc (see SetCoreIDFunc)
// reports for that physical core, since Spawn and local.Local look the
// calling core's slot up by that same id, not by startup order.
func NewExecutorForCore(id int) *Executor {
	if id < 0 || id >= config.MaxCores {
		panic("sched: core id out of range")
	}

	rt.mu.Lock()
	for len(rt.cores) <= id {
		rt.cores = append(rt.cores, nil)
	}
	s := &Scheduler{}
	rt.cores[id] = s
	rt.mu.Unlock()

	return &Executor{
		id:        id,
		scheduler: s,
		rng:       rand.New(rand.NewSource(int64(id) + 1)),
	}
}

func setCurrentScheduler(id int, s *Scheduler) {
	rt.mu.Lock()
	rt.currentSched[id] = s
	rt.mu.Unlock()
}

// Spawn schedules t on the calling core's scheduler if one is running
// (i.e. the caller is itself a task, or code invoked synchronously
// from one), or on the global injector otherwise (e.g. an interrupt
// handler spawning a deferred bottom half).
func Spawn(t Task) {
	core := currentCoreIndex()

	rt.mu.Lock()
	s := rt.currentSched[core]
	rt.mu.Unlock()

	if s != nil {
		s.pushBack(t)
		return
	}

	rt.globalInjector.spawn(t)
}

// BlockOn polls f until it reports done, yielding the core between
// polls. f and everything it touches must be safe to call from
// whichever context BlockOn is invoked in (typically the boot
// goroutine, before any executor is handed off to).
func BlockOn[T any](f func() (T, bool)) T {
	for {
		timer.Global().AdvanceTicks(0)

		if v, done := f(); done {
			return v
		}

		haltAndWait()
	}
}

func pollSafely(t Task) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("sched", "task panicked, dropping it", klog.F("recover", fmt.Sprint(r)))
			done = true
		}
	}()

	return t.Poll()
}
