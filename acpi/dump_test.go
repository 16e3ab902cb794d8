// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package acpi

import (
	"testing"

	"github.com/golang/protobuf/proto"
)

func TestSnapshotReflectsTables(t *testing.T) {
	tables := &Tables{
		LocalAPICAddress: 0xfee00000,
		IOAPICs:          []IOAPIC{{ID: 0}, {ID: 1}},
		MCFGRegions:      []MCFGRegion{{Base: 0xb0000000}},
		CenturyRegister:  0x32,
	}

	snap := tables.Snapshot()
	if snap.LocalApicAddress != 0xfee00000 {
		t.Fatalf("LocalApicAddress = %#x", snap.LocalApicAddress)
	}
	if snap.IoApicCount != 2 {
		t.Fatalf("IoApicCount = %d, want 2", snap.IoApicCount)
	}
	if snap.McfgRegionCount != 1 {
		t.Fatalf("McfgRegionCount = %d, want 1", snap.McfgRegionCount)
	}
	if snap.CenturyRegister != 0x32 {
		t.Fatalf("CenturyRegister = %#x", snap.CenturyRegister)
	}

	if _, err := proto.Marshal(snap); err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
}

func TestDumpSucceeds(t *testing.T) {
	tables := &Tables{LocalAPICAddress: 0xfee00000}
	if err := tables.Dump(); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
}
