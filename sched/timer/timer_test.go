package timer

import "testing"

func TestAfterFiresAtDeadline(t *testing.T) {
	w := New()

	ch := w.After(3)

	w.AdvanceTicks(2)
	select {
	case <-ch:
		t.Fatalf("fired early")
	default:
	}

	w.AdvanceTicks(1)
	select {
	case <-ch:
	default:
		t.Fatalf("did not fire at deadline")
	}
}

func TestAfterZeroFiresImmediately(t *testing.T) {
	w := New()

	ch := w.After(0)
	select {
	case <-ch:
	default:
		t.Fatalf("zero-tick After should fire immediately")
	}
}

func TestPendTicksAccumulatesUntilAdvance(t *testing.T) {
	w := New()

	ch := w.After(5)

	w.PendTicks(2)
	w.PendTicks(2)
	if w.Now() != 0 {
		t.Fatalf("PendTicks must not move Now() until AdvanceTicks folds it in")
	}

	w.AdvanceTicks(1)
	if w.Now() != 5 {
		t.Fatalf("expected Now()=5 after folding 4 pending + 1 explicit tick, got %d", w.Now())
	}

	select {
	case <-ch:
	default:
		t.Fatalf("waiter should have fired once Now() reached its deadline")
	}
}

func TestMultipleWaitersAllFireByLatestDeadline(t *testing.T) {
	w := New()

	var order []int
	chans := []<-chan struct{}{w.After(3), w.After(1), w.After(2)}

	w.AdvanceTicks(3)

	for i, ch := range chans {
		select {
		case <-ch:
			order = append(order, i)
		default:
			t.Fatalf("waiter %d did not fire", i)
		}
	}

	if len(order) != 3 {
		t.Fatalf("expected all three waiters to fire, got %v", order)
	}
}
