package sched

import (
	"math/rand"
	"sync/atomic"

	"github.com/kestrel-os/kestrel/sched/timer"
)

// Steal budgets, matching original_source's
// MAX_STEAL_ATTEMPTS/MAX_STOLEN_PER_TICK.
const (
	maxStealAttempts = 16
	maxStolenPerTick = 256
)

// Executor drives one core's Scheduler: pop a task, poll it, requeue
// it if it yielded, and steal from siblings (or the global injector)
// when the local queue runs dry.
type Executor struct {
	id        int
	scheduler *Scheduler
	running   atomic.Bool
	rng       *rand.Rand
}

// ID returns this executor's core index.
func (e *Executor) ID() int { return e.id }

// IsRunning reports whether Run is currently looping on this executor.
func (e *Executor) IsRunning() bool { return e.running.Load() }

// tick runs one task from the local queue (if any) and reports
// whether the scheduler still has runnable work afterward.
func (e *Executor) tick() bool {
	task, ok := e.scheduler.popFront()

	timer.Global().AdvanceTicks(0)

	if !ok {
		return e.trySteal() > 0
	}

	if !pollSafely(task) {
		e.scheduler.pushBack(task)
	}

	return e.scheduler.len() > 0 || e.trySteal() > 0
}

// Run takes over the calling goroutine as this core's dedicated
// executor loop. It returns only if Stop is called from another
// context while this core is idle between ticks.
func (e *Executor) Run() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	defer e.running.Store(false)

	setCurrentScheduler(e.id, e.scheduler)
	defer setCurrentScheduler(e.id, nil)

	for {
		if e.tick() {
			continue
		}

		if !e.IsRunning() {
			return
		}

		haltAndWait()
	}
}

// Stop requests that Run return once the current tick completes.
func (e *Executor) Stop() {
	e.running.Store(false)
}

func (e *Executor) trySteal() int {
	if n := rt.globalInjector.drainInto(e.scheduler, maxStolenPerTick); n > 0 {
		return n
	}

	for attempts := 0; attempts < maxStealAttempts; attempts++ {
		rt.mu.Lock()
		activeCores := len(rt.cores)
		rt.mu.Unlock()

		if activeCores <= 1 {
			break
		}

		victimIdx := e.rng.Intn(activeCores)
		if victimIdx == e.id {
			continue
		}

		rt.mu.Lock()
		victim := rt.cores[victimIdx]
		rt.mu.Unlock()

		if victim == nil {
			continue
		}

		if n := victim.stealHalf(e.scheduler, maxStolenPerTick); n > 0 {
			return n
		}
	}

	return rt.globalInjector.drainInto(e.scheduler, maxStolenPerTick)
}
