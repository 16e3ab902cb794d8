package local

import "testing"

func TestGetInitializesOncePerCore(t *testing.T) {
	defer SetCoreIDFunc(nil)

	calls := 0
	l := New(func() int {
		calls++
		return calls
	})

	core := 0
	SetCoreIDFunc(func() int { return core })

	v1 := l.Get()
	v2 := l.Get()

	if v1 != v2 {
		t.Fatalf("expected the same slot pointer on repeated Get from the same core")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one initialization, got %d", calls)
	}
}

func TestGetIsolatesCores(t *testing.T) {
	defer SetCoreIDFunc(nil)

	l := New(func() int { return 0 })

	core := 0
	SetCoreIDFunc(func() int { return core })
	a := l.Get()
	*a = 42

	core = 1
	b := l.Get()

	if *b == 42 {
		t.Fatalf("core 1's slot should be independent of core 0's")
	}
}

func TestGetPanicsOnOutOfRangeCore(t *testing.T) {
	defer SetCoreIDFunc(nil)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for an out-of-range core ID")
		}
	}()

	SetCoreIDFunc(func() int { return 9999 })

	New(func() int { return 0 }).Get()
}
