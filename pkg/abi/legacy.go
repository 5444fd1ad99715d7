package abi

import (
	"fmt"

	"github.com/samcharles93/abipack/pkg/metadata"
)

// LegacyRegisterGroup collects registers whose address has no known field.
const LegacyRegisterGroup = "unmapped"

type registerField struct {
	group string
	field string
}

// legacyRegisterFields maps register addresses of the flat pre 2.0
// register map to group fields.
var legacyRegisterFields = map[uint32]registerField{
	0x2E12: {"compute", "pgm_rsrc1"},
	0x2E13: {"compute", "pgm_rsrc2"},
	0x2E07: {"compute", "num_thread_x"},
	0x2E08: {"compute", "num_thread_y"},
	0x2E09: {"compute", "num_thread_z"},
	0x2C0A: {"ps", "pgm_rsrc1"},
	0x2C0B: {"ps", "pgm_rsrc2"},
	0x2C4A: {"vs", "pgm_rsrc1"},
	0x2C4B: {"vs", "pgm_rsrc2"},
	0x2C8A: {"gs", "pgm_rsrc1"},
	0x2C8B: {"gs", "pgm_rsrc2"},
	0xA1C4: {"ps", "z_format"},
	0xA1B6: {"ps", "in_control"},
	0xA203: {"ps", "db_shader_control"},
	0xA1B3: {"ps", "input_ena"},
	0xA1B4: {"ps", "input_addr"},
}

// TranslateLegacyRegisters converts a flat address keyed register map into
// register groups. Unknown addresses are kept under LegacyRegisterGroup
// with a hex field name.
func TranslateLegacyRegisters(legacy metadata.LegacyRegisters) metadata.Registers {
	regs := metadata.Registers{}
	for addr, value := range legacy {
		f, ok := legacyRegisterFields[addr]
		if !ok {
			f = registerField{LegacyRegisterGroup, fmt.Sprintf("0x%04X", addr)}
		}
		regs.Set(f.group, f.field, value)
	}
	return regs
}

// groupedRegistersVersion is the first schema with named register groups.
var groupedRegistersVersion = metadata.Version{Major: 2}

// upgradeMetadata rewrites documents older than groupedRegistersVersion into
// the current register layout.
func upgradeMetadata(doc *metadata.CodeObject) {
	v, ok := doc.Version.Get()
	if !ok || !v.Less(groupedRegistersVersion) {
		return
	}
	p := &doc.Pipeline
	if legacy, ok := p.LegacyRegisters.Get(); ok && !p.Registers.Has() {
		p.Registers.Set(TranslateLegacyRegisters(legacy))
	}
}
