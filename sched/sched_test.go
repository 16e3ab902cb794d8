package sched

import (
	"sync/atomic"
	"testing"
)

func resetRuntime() {
	rt.mu.Lock()
	rt.cores = nil
	rt.currentSched = [32]*Scheduler{}
	rt.mu.Unlock()
	rt.globalInjector = newInjector()
}

// countingTask completes after n polls.
type countingTask struct {
	remaining int32
	done      chan struct{}
}

func (t *countingTask) Poll() bool {
	if atomic.AddInt32(&t.remaining, -1) <= 0 {
		close(t.done)
		return true
	}
	return false
}

func TestExecutorRunsSpawnedTask(t *testing.T) {
	resetRuntime()

	ex := NewExecutor()
	task := &countingTask{remaining: 3, done: make(chan struct{})}
	ex.scheduler.pushBack(task)

	for i := 0; i < 3; i++ {
		ex.tick()
	}

	select {
	case <-task.done:
	default:
		t.Fatalf("task did not complete after enough ticks")
	}
}

func TestSpawnFallsBackToInjectorOutsideExecutor(t *testing.T) {
	resetRuntime()

	task := &countingTask{remaining: 1, done: make(chan struct{})}
	Spawn(task)

	if rt.globalInjector == nil || len(rt.globalInjector.queue) != 1 {
		t.Fatalf("expected Spawn with no running executor to land on the injector")
	}
}

func TestStealHalfMovesWork(t *testing.T) {
	resetRuntime()

	victim := &Scheduler{}
	thief := &Scheduler{}

	for i := 0; i < 10; i++ {
		victim.pushBack(TaskFunc(func() bool { return true }))
	}

	n := victim.stealHalf(thief, 256)

	if n != 5 {
		t.Fatalf("expected to steal 5 tasks, stole %d", n)
	}
	if victim.len() != 5 {
		t.Fatalf("expected victim to retain 5 tasks, has %d", victim.len())
	}
	if thief.len() != 5 {
		t.Fatalf("expected thief to gain 5 tasks, has %d", thief.len())
	}
}

func TestStealHalfCapsAtMax(t *testing.T) {
	resetRuntime()

	victim := &Scheduler{}
	thief := &Scheduler{}

	for i := 0; i < 10; i++ {
		victim.pushBack(TaskFunc(func() bool { return true }))
	}

	n := victim.stealHalf(thief, 2)

	if n != 2 {
		t.Fatalf("expected steal to cap at 2, stole %d", n)
	}
}

func TestPanickingTaskIsDroppedNotFatal(t *testing.T) {
	resetRuntime()

	ex := NewExecutor()
	ex.scheduler.pushBack(TaskFunc(func() bool { panic("boom") }))
	ex.scheduler.pushBack(TaskFunc(func() bool { return true }))

	// Ticking through the panicking task must not propagate the panic.
	ex.tick()
	ex.tick()

	if ex.scheduler.len() != 0 {
		t.Fatalf("expected both tasks to be consumed, %d remain", ex.scheduler.len())
	}
}

func TestNewExecutorForCoreUsesGivenIndexNotAppendOrder(t *testing.T) {
	resetRuntime()

	// Core 3 registers before core 0 and core 1, as would happen if the
	// goroutine pinned to the AP with that Local APIC id happened to
	// reach StartExecutors first.
	e3 := NewExecutorForCore(3)
	e0 := NewExecutorForCore(0)

	if e3.ID() != 3 || e0.ID() != 0 {
		t.Fatalf("expected executor ids to match the requested core, got %d and %d", e3.ID(), e0.ID())
	}

	rt.mu.Lock()
	gotNil := rt.cores[1] == nil && rt.cores[2] == nil
	gotE3 := rt.cores[3] == e3.scheduler
	rt.mu.Unlock()

	if !gotNil {
		t.Fatalf("expected the unused intermediate slots to stay nil")
	}
	if !gotE3 {
		t.Fatalf("expected core 3's slot to hold its own scheduler")
	}
}

func TestBlockOnReturnsOnceDone(t *testing.T) {
	resetRuntime()

	calls := 0
	got := BlockOn(func() (int, bool) {
		calls++
		return calls, calls >= 3
	})

	if got != 3 {
		t.Fatalf("expected BlockOn to return 3, got %d", got)
	}
}
