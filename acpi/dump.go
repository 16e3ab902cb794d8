// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package acpi

import (
	"encoding/hex"

	"github.com/golang/protobuf/proto"
)

// Snapshot is a flat, wire-stable summary of a parsed Tables, encoded
// with protobuf so the serial dump format doesn't drift every time a
// field gets added to Tables itself.
type Snapshot struct {
	LocalApicAddress  uint32 `protobuf:"varint,1,opt,name=local_apic_address,json=localApicAddress" json:"local_apic_address,omitempty"`
	IoApicCount       uint32 `protobuf:"varint,2,opt,name=io_apic_count,json=ioApicCount" json:"io_apic_count,omitempty"`
	OverrideCount     uint32 `protobuf:"varint,3,opt,name=override_count,json=overrideCount" json:"override_count,omitempty"`
	McfgRegionCount   uint32 `protobuf:"varint,4,opt,name=mcfg_region_count,json=mcfgRegionCount" json:"mcfg_region_count,omitempty"`
	CenturyRegister   uint32 `protobuf:"varint,5,opt,name=century_register,json=centuryRegister" json:"century_register,omitempty"`
}

func (m *Snapshot) Reset()         { *m = Snapshot{} }
func (m *Snapshot) String() string { return proto.CompactTextString(m) }
func (m *Snapshot) ProtoMessage()  {}

// Snapshot builds the dump-ready view of t.
func (t *Tables) Snapshot() *Snapshot {
	return &Snapshot{
		LocalApicAddress: t.LocalAPICAddress,
		IoApicCount:      uint32(len(t.IOAPICs)),
		OverrideCount:    uint32(len(t.Overrides)),
		McfgRegionCount:  uint32(len(t.MCFGRegions)),
		CenturyRegister:  uint32(t.CenturyRegister),
	}
}

// Dump serializes a Snapshot of t and prints it to the console as hex,
// for pasting into an offline protobuf decoder when diagnosing a boot
// that reached ACPI parsing but failed before the console logger came up.
func (t *Tables) Dump() error {
	raw, err := proto.Marshal(t.Snapshot())
	if err != nil {
		return err
	}

	print("acpi: snapshot ", len(raw), " bytes: ", hex.EncodeToString(raw), "\n")
	return nil
}
