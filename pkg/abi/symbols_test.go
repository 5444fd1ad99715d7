package abi

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	if len(PipelineSymbolNames) != int(NumSymbolTypes) {
		t.Fatalf("name table has %d entries for %d types", len(PipelineSymbolNames), NumSymbolTypes)
	}
	for i := SymbolType(1); i < NumSymbolTypes; i++ {
		name := PipelineSymbolNames.Name(i)
		if got := PipelineSymbolNames.Classify(name); got != i {
			t.Errorf("Classify(%q) = %d, want %d", name, got, i)
		}
	}
	for _, name := range []string{"", "unknown", "_amdgpu_cs_main2", "main", "_AMDGPU_CS_MAIN"} {
		if got := PipelineSymbolNames.Classify(name); got != SymbolUnknown {
			t.Errorf("Classify(%q) = %d, want unknown", name, got)
		}
	}

	custom := SymbolNameTable{"none", "entry"}
	if custom.Classify("entry") != 1 || custom.Classify("_amdgpu_cs_main") != SymbolUnknown {
		t.Fatalf("classification must use the table it is given")
	}
}

func TestGfxIpMachineTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		mach uint8
	}{
		{"6.0.0", 0x20},
		{"7.0.5", 0x3b},
		{"8.1.0", 0x2b},
		{"9.0.12", 0x32},
		{"10.3.1", 0x37},
	}
	for _, tc := range tests {
		v, err := ParseGfxIpVersion(tc.in)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.in, err)
		}
		mach, ok := MachineType(v)
		if !ok || mach != tc.mach {
			t.Errorf("%s: machine 0x%x, want 0x%x", tc.in, mach, tc.mach)
		}
		back, ok := GfxIpFromMachineType(mach)
		if !ok || back != v || back.String() != tc.in {
			t.Errorf("0x%x: back to %v", mach, back)
		}
	}
	if _, err := ParseGfxIpVersion("12.0.0"); err == nil {
		t.Fatalf("expected error for unknown GFXIP")
	}
	if _, err := ParseGfxIpVersion("ten"); err == nil {
		t.Fatalf("expected error for malformed GFXIP")
	}
}

func TestTranslateLegacyRegisters(t *testing.T) {
	t.Parallel()

	regs := TranslateLegacyRegisters(map[uint32]uint32{0x2E07: 64, 0xA203: 0x10, 0xBEEF: 1})
	if v, _ := regs.Lookup("compute", "num_thread_x"); v != 64 {
		t.Fatalf("num_thread_x = %d", v)
	}
	if v, _ := regs.Lookup("ps", "db_shader_control"); v != 0x10 {
		t.Fatalf("db_shader_control = %d", v)
	}
	if v, ok := regs.Lookup(LegacyRegisterGroup, "0xBEEF"); !ok || v != 1 {
		t.Fatalf("unmapped = %d %v", v, ok)
	}
}

func TestParseNames(t *testing.T) {
	for _, rt := range []RelocationType{RelocAbs64, RelocRel16, RelocRel32Hi} {
		got, ok := ParseRelocationType(rt.String())
		if !ok || got != rt {
			t.Fatalf("ParseRelocationType(%q) = %v %v", rt.String(), got, ok)
		}
	}
	if _, ok := ParseRelocationType("abs128"); ok {
		t.Fatal("unexpected relocation type")
	}
	for st := SectionCode; st <= SectionLlvmIr; st++ {
		got, ok := ParseSectionType(st.String())
		if !ok || got != st {
			t.Fatalf("ParseSectionType(%q) = %v %v", st.String(), got, ok)
		}
	}
	if _, ok := ParseSectionType("bss"); ok {
		t.Fatal("unexpected section type")
	}
}
