package abi

import (
	"bytes"
	"debug/elf"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	pelf "github.com/samcharles93/abipack/pkg/elf"
	"github.com/samcharles93/abipack/pkg/metadata"
)

func finalizeAndLoad(t *testing.T, p *Packager, doc *metadata.CodeObject) *Packager {
	t.Helper()
	if doc == nil {
		doc = &metadata.CodeObject{}
	}
	if err := p.FinalizeMetadata(doc); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	q, err := Load(buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return q
}

func TestSingleCodeSymbolRoundTrip(t *testing.T) {
	t.Parallel()

	p := New()
	if err := p.SetPipelineCode(make([]byte, 64)); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := p.AddPipelineSymbol(PipelineSymbol{
		Type:      SymbolCsMainEntry,
		EntryType: elf.STT_FUNC,
		Section:   SectionCode,
		Value:     0,
		Size:      64,
	}); err != nil {
		t.Fatalf("add symbol: %v", err)
	}
	q := finalizeAndLoad(t, p, nil)

	sym, ok := q.PipelineSymbol(SymbolCsMainEntry)
	if !ok {
		t.Fatalf("pipeline symbol missing after load")
	}
	if sym.Value != 0 || sym.Size != 64 || sym.Section != SectionCode || sym.EntryType != elf.STT_FUNC {
		t.Fatalf("symbol mismatch: %+v", sym)
	}
	if _, ok := q.PipelineSymbol(SymbolPsMainEntry); ok {
		t.Fatalf("unexpected ps symbol")
	}
	if q.SectionIndex(SectionCode) != p.SectionIndex(SectionCode) {
		t.Fatalf("code section index changed: %d vs %d", q.SectionIndex(SectionCode), p.SectionIndex(SectionCode))
	}

	syms, err := q.symbolTable()
	if err != nil {
		t.Fatalf("symbol table: %v", err)
	}
	raw, err := syms.Get(1)
	if err != nil {
		t.Fatalf("raw symbol: %v", err)
	}
	if int(raw.Section) != q.SectionIndex(SectionCode) || raw.Bind != elf.STB_LOCAL {
		t.Fatalf("raw symbol record: %+v", raw)
	}
	if len(q.PipelineCode()) != 64 {
		t.Fatalf("code size %d", len(q.PipelineCode()))
	}
}

func TestPackagerHeaderAndStdlibParse(t *testing.T) {
	t.Parallel()

	p := New()
	if err := p.SetPipelineCode(bytes.Repeat([]byte{0x00, 0x00, 0x81, 0xBF}, 4)); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := p.SetGfxIpVersion(GfxIpVersion{10, 3, 0}); err != nil {
		t.Fatalf("gfxip: %v", err)
	}
	if err := p.FinalizeMetadata(&metadata.CodeObject{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}

	f, err := elf.NewFile(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("debug/elf: %v", err)
	}
	defer func() { _ = f.Close() }()
	if f.OSABI != OSABIAMDGPUPAL || f.Type != elf.ET_REL || f.Machine != elf.EM_AMDGPU {
		t.Fatalf("header: %v %v %v", f.OSABI, f.Type, f.Machine)
	}
	if text := f.Section(SectionNameText); text == nil || text.Offset%PipelineShaderBaseAddrAlignment != 0 {
		t.Fatalf(".text missing or misaligned")
	}
	if f.Section(SectionNameNote) == nil || f.Section(SectionNameSymTab) == nil {
		t.Fatalf("note or symtab missing")
	}

	q, err := Load(buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v, ok := q.GfxIpVersion(); !ok || v != (GfxIpVersion{10, 3, 0}) {
		t.Fatalf("gfxip after load: %v %v", v, ok)
	}
}

func TestMetadataThroughPackager(t *testing.T) {
	t.Parallel()

	doc := &metadata.CodeObject{}
	doc.Pipeline.Name.Set("triangle")
	doc.Pipeline.Type.Set(metadata.PipelineVsPs)
	var vs metadata.Stage
	vs.EntryPoint.Set(PipelineSymbolNames.Name(SymbolVsMainEntry))
	vs.VgprCount.Set(12)
	doc.Pipeline.HardwareStages[metadata.StageVs].Set(vs)

	p := New()
	if err := p.SetPipelineCode(make([]byte, 8)); err != nil {
		t.Fatalf("set code: %v", err)
	}
	q := finalizeAndLoad(t, p, doc)

	if q.MetadataVersion() != metadata.CurrentVersion {
		t.Fatalf("version: %v", q.MetadataVersion())
	}
	got, err := q.Metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if got.Pipeline.Name.Or("") != "triangle" {
		t.Fatalf("name: %q", got.Pipeline.Name.Or(""))
	}
	stage, ok := got.Pipeline.HardwareStages[metadata.StageVs].Get()
	if !ok || stage.EntryPoint.Or("") != "_amdgpu_vs_main" || stage.VgprCount.Or(0) != 12 {
		t.Fatalf("vs stage: %+v", stage)
	}
	if got.Pipeline.HardwareStages[metadata.StagePs].Has() {
		t.Fatalf("ps stage should be absent")
	}
	if !bytes.Equal(q.RawMetadata(), p.RawMetadata()) {
		t.Fatalf("raw metadata differs after load")
	}
}

func TestLegacyMetadataIsUpgraded(t *testing.T) {
	t.Parallel()

	blob, err := msgpack.Marshal(map[string]any{
		metadata.KeyVersion: []uint32{1, 2},
		metadata.KeyPipelines: []any{
			map[string]any{metadata.KeyRegisters: map[uint32]uint32{0x2E12: 5, 0x1234: 7}},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	p := New()
	if err := p.SetPipelineCode(make([]byte, 4)); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := p.Finalize(blob); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if v := p.MetadataVersion(); v.Major != 1 || v.Minor != 2 {
		t.Fatalf("version: %v", v)
	}
	doc, err := p.Metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	regs, ok := doc.Pipeline.Registers.Get()
	if !ok {
		t.Fatalf("registers not translated")
	}
	if v, ok := regs.Lookup("compute", "pgm_rsrc1"); !ok || v != 5 {
		t.Fatalf("compute.pgm_rsrc1 = %v %v", v, ok)
	}
	if v, ok := regs.Lookup(LegacyRegisterGroup, "0x1234"); !ok || v != 7 {
		t.Fatalf("unmapped register = %v %v", v, ok)
	}
}

func TestSectionsRoundTrip(t *testing.T) {
	t.Parallel()

	p := New()
	steps := []error{
		p.SetPipelineCode([]byte{1, 2, 3, 4}),
		p.SetData([]byte{5, 6}, 64),
		p.SetReadOnlyData([]byte{7}, 32),
		p.SetComment("built by tests"),
		p.SetDisassembly([]byte("s_endpgm")),
		p.SetAmdIl([]byte("il_cs_2_0")),
		p.SetLlvmIr([]byte("define void @main()")),
		p.SetGenericSection(".extra", []byte{9, 9}),
		p.AddGenericSymbol(GenericSymbol{Name: "table", EntryType: elf.STT_OBJECT, Section: SectionData, Value: 1, Size: 1}),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	q := finalizeAndLoad(t, p, nil)

	if data, align, ok := q.Data(); !ok || align != 64 || !bytes.Equal(data, []byte{5, 6}) {
		t.Fatalf("data: %v %d %v", data, align, ok)
	}
	if ro, align, ok := q.ReadOnlyData(); !ok || align != 32 || !bytes.Equal(ro, []byte{7}) {
		t.Fatalf("rodata: %v %d %v", ro, align, ok)
	}
	if q.Comment() != "built by tests" {
		t.Fatalf("comment: %q", q.Comment())
	}
	if string(q.Disassembly()) != "s_endpgm" || string(q.AmdIl()) != "il_cs_2_0" || string(q.LlvmIr()) != "define void @main()" {
		t.Fatalf("auxiliary sections lost")
	}
	if extra, ok := q.GenericSection(".extra"); !ok || !bytes.Equal(extra, []byte{9, 9}) {
		t.Fatalf("generic section: %v %v", extra, ok)
	}
	sym, ok := q.GenericSymbol("table")
	if !ok || sym.Section != SectionData || sym.Value != 1 || sym.EntryType != elf.STT_OBJECT {
		t.Fatalf("generic symbol: %+v %v", sym, ok)
	}
}

func TestPackagerValidation(t *testing.T) {
	t.Parallel()

	p := New()
	if err := p.Finalize(nil); !errors.Is(err, ErrNoCode) {
		t.Fatalf("expected ErrNoCode, got %v", err)
	}
	for _, align := range []uint64{0, 16, 48, 96} {
		if err := p.SetData(nil, align); !errors.Is(err, ErrBadAlignment) {
			t.Errorf("align %d: expected ErrBadAlignment, got %v", align, err)
		}
	}
	for _, name := range []string{".text", ".symtab", SectionNameDisassembly, SectionNameRelaText, ""} {
		if err := p.SetGenericSection(name, nil); !errors.Is(err, ErrReservedSection) {
			t.Errorf("%q: expected ErrReservedSection, got %v", name, err)
		}
	}
	if err := p.SetGfxIpVersion(GfxIpVersion{11, 0, 0}); !errors.Is(err, ErrUnknownGfxIp) {
		t.Fatalf("expected ErrUnknownGfxIp, got %v", err)
	}
	if err := p.SetPipelineCode([]byte{0}); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := p.AddRelocation(SectionCode, Relocation{Symbol: "missing", Type: RelocAbs64}); err != nil {
		t.Fatalf("add relocation: %v", err)
	}
	if err := p.FinalizeMetadata(&metadata.CodeObject{}); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
	if _, err := p.Bytes(); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("expected ErrNotFinalized, got %v", err)
	}

	ok := New()
	if err := ok.SetPipelineCode([]byte{0}); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := ok.FinalizeMetadata(&metadata.CodeObject{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := ok.FinalizeMetadata(&metadata.CodeObject{}); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if err := ok.SetComment("late"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("setter after finalize: %v", err)
	}
}

func TestFinalizeRejectsSymbolInMissingSection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		add  func(*Packager) error
	}{
		{"generic in data", func(p *Packager) error {
			return p.AddGenericSymbol(GenericSymbol{Name: "table", EntryType: elf.STT_OBJECT, Section: SectionData, Size: 8})
		}},
		{"generic in disassembly", func(p *Packager) error {
			return p.AddGenericSymbol(GenericSymbol{Name: "listing", EntryType: elf.STT_OBJECT, Section: SectionDisassembly})
		}},
		{"pipeline in data", func(p *Packager) error {
			return p.AddPipelineSymbol(PipelineSymbol{Type: SymbolCsMainEntry, EntryType: elf.STT_FUNC, Section: SectionData})
		}},
	}
	for _, tc := range tests {
		p := New()
		if err := p.SetPipelineCode([]byte{0}); err != nil {
			t.Fatalf("set code: %v", err)
		}
		if err := tc.add(p); err != nil {
			t.Fatalf("%s: add: %v", tc.name, err)
		}
		if err := p.FinalizeMetadata(&metadata.CodeObject{}); !errors.Is(err, ErrMissingSection) {
			t.Errorf("%s: expected ErrMissingSection, got %v", tc.name, err)
		}
		if _, err := p.Bytes(); !errors.Is(err, ErrNotFinalized) {
			t.Errorf("%s: rejected packager should stay open, got %v", tc.name, err)
		}
	}

	p := New()
	if err := p.SetPipelineCode([]byte{0}); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := p.AddGenericSymbol(GenericSymbol{Name: "external", EntryType: elf.STT_NOTYPE, Section: SectionUndefined}); err != nil {
		t.Fatalf("add undefined: %v", err)
	}
	q := finalizeAndLoad(t, p, nil)
	if sym, ok := q.GenericSymbol("external"); !ok || sym.Section != SectionUndefined {
		t.Fatalf("undefined symbol: %+v %v", sym, ok)
	}
}

func TestLoadRejectsForeignObjects(t *testing.T) {
	t.Parallel()

	p := New()
	if err := p.SetPipelineCode([]byte{0}); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := p.FinalizeMetadata(&metadata.CodeObject{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	good, err := p.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}

	osabi := bytes.Clone(good)
	osabi[7] = byte(elf.ELFOSABI_LINUX)
	if _, err := Load(osabi); !errors.Is(err, ErrInvalidPipelineElf) {
		t.Errorf("os abi: expected ErrInvalidPipelineElf, got %v", err)
	}
	abiVersion := bytes.Clone(good)
	abiVersion[8] = 1
	if _, err := Load(abiVersion); !errors.Is(err, ErrUnsupportedAbiVersion) {
		t.Errorf("abi version: expected ErrUnsupportedAbiVersion, got %v", err)
	}
	if _, err := Load(good[:32]); !errors.Is(err, pelf.ErrCorruptFile) {
		t.Errorf("truncated: expected ErrCorruptFile, got %v", err)
	}

	c := pelf.New()
	c.Header.OSABI = OSABIAMDGPUPAL
	c.Header.Machine = elf.EM_AMDGPU
	c.Sections().Add(pelf.KindText).SetData([]byte{0})
	bare, err := c.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if _, err := Load(bare); !errors.Is(err, ErrInvalidPipelineElf) {
		t.Errorf("missing note: expected ErrInvalidPipelineElf, got %v", err)
	}
}
