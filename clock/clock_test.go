package clock

import (
	"errors"
	"testing"
	"time"
)

type fakeMono struct{ ns int64 }

func (f *fakeMono) GetTime() int64 { return f.ns }

type fakeWall struct {
	t   time.Time
	err error
}

func (f *fakeWall) Now() (time.Time, error) { return f.t, f.err }

func TestNowReturnsZeroBeforeInit(t *testing.T) {
	mu.Lock()
	mono = nil
	mu.Unlock()

	if Now() != 0 {
		t.Fatalf("expected Now()=0 before Init, got %d", Now())
	}
}

func TestInitLatchesBootTimeOnce(t *testing.T) {
	mono := &fakeMono{ns: 1_000_000_000}
	wall := &fakeWall{t: time.Unix(1_700_000_000, 0)}

	if err := Init(mono, wall); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if Now() != 1_000_000_000 {
		t.Fatalf("expected Now()=1e9, got %d", Now())
	}

	want := time.Unix(1_700_000_000, 0).Add(time.Second)
	if !Timestamp().Equal(want) {
		t.Fatalf("expected Timestamp()=%v, got %v", want, Timestamp())
	}

	mono.ns = 2_000_000_000
	want = time.Unix(1_700_000_000, 0).Add(2 * time.Second)
	if !Timestamp().Equal(want) {
		t.Fatalf("expected Timestamp() to track Now(), got %v want %v", Timestamp(), want)
	}
}

func TestInitPropagatesWallClockError(t *testing.T) {
	wantErr := errors.New("update in progress")
	if err := Init(&fakeMono{}, &fakeWall{err: wantErr}); err != wantErr {
		t.Fatalf("expected Init to propagate wall-clock error, got %v", err)
	}
}
