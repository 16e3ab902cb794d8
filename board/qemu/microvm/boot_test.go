package microvm

import "testing"

func TestTimerCountForFreqDividesByTwoConfiguredFactors(t *testing.T) {
	// 1.6GHz core, divide-by-16 -> 100M ticks/sec, at a 5ms interval
	// that is 500000 ticks between expirations.
	got := timerCountForFreq(1_600_000_000, 5)
	want := uint32(500_000)

	if got != want {
		t.Fatalf("expected initial count %d, got %d", want, got)
	}
}

func TestTimerCountForFreqZeroIntervalArmsNoCount(t *testing.T) {
	if got := timerCountForFreq(1_600_000_000, 0); got != 0 {
		t.Fatalf("expected zero count for a zero interval, got %d", got)
	}
}
