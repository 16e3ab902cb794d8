// https://github.com/kestrel-os/kestrel
//
// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bits

import "testing"

func TestGetSetClear(t *testing.T) {
	var v uint32

	Set(&v, 3)
	if !IsSet(&v, 3) {
		t.Fatalf("bit 3 not set after Set")
	}

	Clear(&v, 3)
	if IsSet(&v, 3) {
		t.Fatalf("bit 3 still set after Clear")
	}
}

func TestSetNAndGet(t *testing.T) {
	var v uint32

	SetN(&v, 8, 0xff, 0x5a)
	if got := Get(&v, 8, 0xff); got != 0x5a {
		t.Fatalf("Get = %#x, want 0x5a", got)
	}

	SetN(&v, 8, 0xff, 0)
	if got := Get(&v, 8, 0xff); got != 0 {
		t.Fatalf("Get after clear = %#x, want 0", got)
	}
}

func TestIsSetAgainstAPMFeatureLayout(t *testing.T) {
	// Mirrors how amd64.initFeatures reads CPUID_APM: bit 7 is
	// HW_PSTATE, bit 8 is TSC_INVARIANT.
	apm := uint32(1<<7 | 1<<8)

	if !IsSet(&apm, 7) {
		t.Fatalf("HwPstate bit not detected")
	}
	if !IsSet(&apm, 8) {
		t.Fatalf("TSCInvariant bit not detected")
	}
	if IsSet(&apm, 9) {
		t.Fatalf("unrelated bit 9 incorrectly reported set")
	}
}
