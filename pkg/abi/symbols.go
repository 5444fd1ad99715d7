package abi

import "debug/elf"

// SymbolType is a pipeline symbol with a reserved name.
type SymbolType uint32

const (
	SymbolUnknown SymbolType = iota
	SymbolLsMainEntry
	SymbolHsMainEntry
	SymbolEsMainEntry
	SymbolGsMainEntry
	SymbolVsMainEntry
	SymbolPsMainEntry
	SymbolCsMainEntry
	SymbolFsMainEntry
	SymbolLsShdrIntrlTblPtr
	SymbolHsShdrIntrlTblPtr
	SymbolEsShdrIntrlTblPtr
	SymbolGsShdrIntrlTblPtr
	SymbolVsShdrIntrlTblPtr
	SymbolPsShdrIntrlTblPtr
	SymbolCsShdrIntrlTblPtr
	SymbolLsDisassembly
	SymbolHsDisassembly
	SymbolEsDisassembly
	SymbolGsDisassembly
	SymbolVsDisassembly
	SymbolPsDisassembly
	SymbolCsDisassembly
	SymbolLsShdrIntrlData
	SymbolHsShdrIntrlData
	SymbolEsShdrIntrlData
	SymbolGsShdrIntrlData
	SymbolVsShdrIntrlData
	SymbolPsShdrIntrlData
	SymbolCsShdrIntrlData
	SymbolPipelineIntrlData
	SymbolCsAmdIl
	SymbolTaskAmdIl
	SymbolVsAmdIl
	SymbolHsAmdIl
	SymbolDsAmdIl
	SymbolGsAmdIl
	SymbolMeshAmdIl
	SymbolPsAmdIl
	NumSymbolTypes
)

// SymbolNameTable maps each SymbolType to its reserved name.
type SymbolNameTable []string

// PipelineSymbolNames is the reserved name table, indexed by SymbolType.
var PipelineSymbolNames = SymbolNameTable{
	"unknown",
	"_amdgpu_ls_main",
	"_amdgpu_hs_main",
	"_amdgpu_es_main",
	"_amdgpu_gs_main",
	"_amdgpu_vs_main",
	"_amdgpu_ps_main",
	"_amdgpu_cs_main",
	"_amdgpu_fs_main",
	"_amdgpu_ls_shdr_intrl_tbl",
	"_amdgpu_hs_shdr_intrl_tbl",
	"_amdgpu_es_shdr_intrl_tbl",
	"_amdgpu_gs_shdr_intrl_tbl",
	"_amdgpu_vs_shdr_intrl_tbl",
	"_amdgpu_ps_shdr_intrl_tbl",
	"_amdgpu_cs_shdr_intrl_tbl",
	"_amdgpu_ls_disasm",
	"_amdgpu_hs_disasm",
	"_amdgpu_es_disasm",
	"_amdgpu_gs_disasm",
	"_amdgpu_vs_disasm",
	"_amdgpu_ps_disasm",
	"_amdgpu_cs_disasm",
	"_amdgpu_ls_shdr_intrl_data",
	"_amdgpu_hs_shdr_intrl_data",
	"_amdgpu_es_shdr_intrl_data",
	"_amdgpu_gs_shdr_intrl_data",
	"_amdgpu_vs_shdr_intrl_data",
	"_amdgpu_ps_shdr_intrl_data",
	"_amdgpu_cs_shdr_intrl_data",
	"_amdgpu_pipeline_intrl_data",
	"_amdgpu_cs_amdil",
	"_amdgpu_task_amdil",
	"_amdgpu_vs_amdil",
	"_amdgpu_hs_amdil",
	"_amdgpu_ds_amdil",
	"_amdgpu_gs_amdil",
	"_amdgpu_mesh_amdil",
	"_amdgpu_ps_amdil",
}

// Classify returns the symbol type whose reserved name is name, or
// SymbolUnknown.
func (t SymbolNameTable) Classify(name string) SymbolType {
	for i := 1; i < len(t); i++ {
		if t[i] == name {
			return SymbolType(i)
		}
	}
	return SymbolUnknown
}

// Name returns the reserved name of st in t, or "" when out of range.
func (t SymbolNameTable) Name(st SymbolType) string {
	if int(st) >= len(t) {
		return ""
	}
	return t[st]
}

func (st SymbolType) String() string { return PipelineSymbolNames.Name(st) }

// PipelineSymbol is a symbol identified by its SymbolType.
type PipelineSymbol struct {
	Type      SymbolType
	EntryType elf.SymType
	Section   SectionType
	Value     uint64
	Size      uint64
}

// GenericSymbol is any other named symbol.
type GenericSymbol struct {
	Name      string
	EntryType elf.SymType
	Section   SectionType
	Value     uint64
	Size      uint64
}
