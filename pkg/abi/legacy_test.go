package abi

import (
	"testing"

	"github.com/samcharles93/abipack/pkg/metadata"
)

func TestUpgradeMetadataVersionBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		version  *metadata.Version
		upgraded bool
	}{
		{"1.0", &metadata.Version{Major: 1}, true},
		{"1.9", &metadata.Version{Major: 1, Minor: 9}, true},
		{"2.0", &metadata.Version{Major: 2}, false},
		{"2.6", &metadata.Version{Major: 2, Minor: 6}, false},
		{"unversioned", nil, false},
	}
	for _, tc := range tests {
		var doc metadata.CodeObject
		if tc.version != nil {
			doc.Version.Set(*tc.version)
		}
		doc.Pipeline.LegacyRegisters.Set(metadata.LegacyRegisters{0x2E12: 5})
		upgradeMetadata(&doc)

		regs, ok := doc.Pipeline.Registers.Get()
		if ok != tc.upgraded {
			t.Errorf("%s: upgraded = %v, want %v", tc.name, ok, tc.upgraded)
			continue
		}
		if !ok {
			continue
		}
		if v, found := regs.Lookup("compute", "pgm_rsrc1"); !found || v != 5 {
			t.Errorf("%s: compute.pgm_rsrc1 = %v %v", tc.name, v, found)
		}
	}
}
