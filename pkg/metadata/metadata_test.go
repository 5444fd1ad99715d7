package metadata

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func sampleDoc() *CodeObject {
	doc := &CodeObject{Version: Some(CurrentVersion)}
	p := &doc.Pipeline
	p.Name.Set("blit")
	p.Type.Set(PipelineCs)
	p.InternalPipelineHash.Set([2]uint64{0x1122334455667788, 42})
	p.UserDataLimit.Set(0)
	p.UsesViewportArrayIndex.Set(false)
	p.Api.Set("Vulkan")
	p.ApiCreateInfo.Set([]byte{1, 2, 3})

	p.Shaders[ApiShaderCs].Set(Shader{
		ApiShaderHash:   Some([2]uint64{7, 8}),
		HardwareMapping: Some(MaskOf(StageCs)),
	})

	var cs Stage
	cs.EntryPoint.Set("_amdgpu_cs_main")
	cs.VgprCount.Set(24)
	cs.SgprCount.Set(16)
	cs.ThreadgroupDimensions.Set([3]uint32{64, 1, 1})
	cs.WavefrontSize.Set(64)
	cs.UsesUavs.Set(true)
	p.HardwareStages[StageCs].Set(cs)

	regs := Registers{}
	regs.Set("compute", "pgm_rsrc1", 0x2C0041)
	regs.Set("compute", "num_thread_x", 64)
	p.Registers.Set(regs)
	return doc
}

func TestEncodeDecodePresence(t *testing.T) {
	t.Parallel()

	blob, err := Encode(sampleDoc())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	doc, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := sampleDoc()
	p := doc.Pipeline

	if v, ok := doc.Version.Get(); !ok || v != CurrentVersion {
		t.Fatalf("version: %v %v", v, ok)
	}
	if got := p.Name.Or(""); got != "blit" {
		t.Fatalf("name: %q", got)
	}
	if v, ok := p.UserDataLimit.Get(); !ok || v != 0 {
		t.Fatalf("present zero lost: %v %v", v, ok)
	}
	if v, ok := p.UsesViewportArrayIndex.Get(); !ok || v {
		t.Fatalf("present false lost: %v %v", v, ok)
	}
	if p.SpillThreshold.Has() || p.NggSubgroupSize.Has() || p.ShaderFunctions.Has() || p.LegacyRegisters.Has() {
		t.Fatalf("unset fields decoded as present")
	}
	if p.Type != want.Pipeline.Type || p.InternalPipelineHash != want.Pipeline.InternalPipelineHash {
		t.Fatalf("type/hash mismatch")
	}
	if p.Shaders != want.Pipeline.Shaders {
		t.Fatalf("shaders mismatch: %+v", p.Shaders)
	}
	if p.HardwareStages != want.Pipeline.HardwareStages {
		t.Fatalf("stages mismatch: %+v", p.HardwareStages)
	}
	if p.HardwareStages[StagePs].Has() {
		t.Fatalf("ps stage should be absent")
	}
	if !reflect.DeepEqual(p.Registers, want.Pipeline.Registers) {
		t.Fatalf("registers mismatch: %+v", p.Registers)
	}
	if info, _ := p.ApiCreateInfo.Get(); !bytes.Equal(info, []byte{1, 2, 3}) {
		t.Fatalf("api create info: %v", info)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Encode(sampleDoc())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for range 5 {
		b, err := Encode(sampleDoc())
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("encoding differs between runs")
		}
	}
}

func TestDecodeSkipsUnknownKeys(t *testing.T) {
	t.Parallel()

	blob, err := msgpack.Marshal(map[string]any{
		"amdpal.version": []uint32{2, 9},
		"amdpal.future":  map[string]any{"nested": []int{1, 2, 3}},
		"amdpal.pipelines": []any{
			map[string]any{
				".future_field":    map[string]any{"x": []any{"a", 1, true}},
				".name":            "next",
				".type":            "SomethingNew",
				".user_data_limit": 4,
				".hardware_stages": map[string]any{
					".xs": map[string]any{".vgpr_count": 1},
					".ps": map[string]any{".vgpr_count": 32, ".new_key": 5},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := doc.Pipeline
	if p.Name.Or("") != "next" || p.UserDataLimit.Or(0) != 4 {
		t.Fatalf("known keys lost: %+v", p)
	}
	if p.Type.Has() {
		t.Fatalf("unknown pipeline type should stay absent")
	}
	if ps, ok := p.HardwareStages[StagePs].Get(); !ok || ps.VgprCount.Or(0) != 32 {
		t.Fatalf("ps stage not decoded")
	}
}

func TestDecodeRejectsNewerMajor(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	doc.Version = Some(Version{Major: SupportedMajor + 1})
	blob, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(blob); !errors.Is(err, ErrUnsupportedMajor) {
		t.Fatalf("expected ErrUnsupportedMajor, got %v", err)
	}
	v, ok, err := DecodeVersion(blob)
	if err != nil || !ok || v.Major != SupportedMajor+1 {
		t.Fatalf("DecodeVersion: %v %v %v", v, ok, err)
	}
}

func TestDecodeLegacyRegisters(t *testing.T) {
	t.Parallel()

	blob, err := msgpack.Marshal(map[string]any{
		"amdpal.version": []uint32{1, 0},
		"amdpal.pipelines": []any{
			map[string]any{".registers": map[uint32]uint32{0x2E12: 5, 0xA1C4: 2}},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	legacy, ok := doc.Pipeline.LegacyRegisters.Get()
	if !ok || legacy[0x2E12] != 5 || legacy[0xA1C4] != 2 {
		t.Fatalf("legacy registers: %v %v", legacy, ok)
	}
	if doc.Pipeline.Registers.Has() {
		t.Fatalf("grouped registers should be absent")
	}

	again, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	doc2, err := Decode(again)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(doc2.Pipeline.LegacyRegisters, doc.Pipeline.LegacyRegisters) {
		t.Fatalf("legacy registers did not survive re-encoding")
	}
}

func TestShaderFunctionsKeptRaw(t *testing.T) {
	t.Parallel()

	raw, err := msgpack.Marshal(map[string]any{"_amdgpu_cs_fn": map[string]any{".lds_size": 16}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc := &CodeObject{}
	doc.Pipeline.ShaderFunctions.Set(raw)
	blob, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	fns, ok := got.Pipeline.ShaderFunctions.Get()
	if !ok || !bytes.Equal(fns, raw) {
		t.Fatalf("shader functions: %x", fns)
	}
	if v, _ := got.Version.Get(); v != CurrentVersion {
		t.Fatalf("missing version should encode as current, got %v", v)
	}
}

func TestDecodeInvalid(t *testing.T) {
	t.Parallel()

	for _, blob := range [][]byte{{}, {0x01}, {0x81, 0xa1, 'x'}} {
		if _, err := Decode(blob); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("%x: expected ErrInvalidDocument, got %v", blob, err)
		}
	}
}

func TestOpt(t *testing.T) {
	t.Parallel()

	var o Opt[uint32]
	if o.Has() || o.Or(9) != 9 {
		t.Fatalf("zero Opt should be absent")
	}
	o.Set(0)
	if v, ok := o.Get(); !ok || v != 0 || o.Or(9) != 0 {
		t.Fatalf("present zero: %v %v", v, ok)
	}
	o.Clear()
	if o.Has() {
		t.Fatalf("Clear should make the field absent")
	}
}

func TestEnums(t *testing.T) {
	t.Parallel()

	for ty := range pipelineTypeCount {
		got, ok := ParsePipelineType(ty.String())
		if !ok || got != ty {
			t.Errorf("pipeline type %v did not round trip", ty)
		}
	}
	for s := range NumHardwareStages {
		got, ok := HardwareStageByKey(s.Key())
		if !ok || got != s {
			t.Errorf("stage %v did not round trip", s)
		}
	}
	m := MaskOf(StageVs, StagePs)
	if !m.Has(StageVs) || !m.Has(StagePs) || m.Has(StageCs) {
		t.Fatalf("mask membership wrong: %08b", m)
	}
	if got := m.Stages(); len(got) != 2 || got[0] != StageVs || got[1] != StagePs {
		t.Fatalf("mask stages: %v", got)
	}
	if ApiShaderPs.String() != "pixel" {
		t.Fatalf("api shader name: %s", ApiShaderPs)
	}
}

func TestVersionLess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b Version
		want bool
	}{
		{Version{1, 9}, Version{2, 0}, true},
		{Version{2, 0}, Version{2, 6}, true},
		{Version{2, 6}, Version{2, 6}, false},
		{Version{3, 0}, Version{2, 9}, false},
		{Version{2, 6}, Version{2, 1}, false},
	}
	for _, tc := range tests {
		if got := tc.a.Less(tc.b); got != tc.want {
			t.Errorf("%v.Less(%v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
