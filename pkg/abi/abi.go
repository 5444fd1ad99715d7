// Package abi packages pipeline code, data and metadata into an AMDGPU PAL
// object file and reads such files back.
package abi

import (
	"debug/elf"
	"errors"
)

const (
	// OSABIAMDGPUPAL is the e_ident OS ABI of pipeline binaries.
	OSABIAMDGPUPAL elf.OSABI = 65
	// ABIVersion is the only e_ident ABI version this package reads.
	ABIVersion uint8 = 0

	MetadataNoteType uint32 = 32
	NoteOwner               = "AMD"

	PipelineShaderBaseAddrAlignment = 256
	DataMinBaseAddrAlignment        = 32
	RoDataMinBaseAddrAlignment      = 32
)

const (
	SectionNameText     = ".text"
	SectionNameData     = ".data"
	SectionNameRoData   = ".rodata"
	SectionNameComment  = ".comment"
	SectionNameNote     = ".note"
	SectionNameSymTab   = ".symtab"
	SectionNameStrTab   = ".strtab"
	SectionNameRelText  = ".rel.text"
	SectionNameRelData  = ".rel.data"
	SectionNameRelaText = ".rela.text"
	SectionNameRelaData = ".rela.data"

	SectionNameDisassembly = ".AMDGPU.disasm"
	SectionNameCommentBase = ".AMDGPU.comment"
	SectionNameAmdIl       = ".AMDGPU.comment.amdil"
	SectionNameLlvmIr      = ".AMDGPU.comment.llvmir"
)

var (
	ErrInvalidPipelineElf    = errors.New("abi: invalid pipeline ELF")
	ErrUnsupportedAbiVersion = errors.New("abi: unsupported pipeline ELF ABI version")
	ErrRelocationOutOfRange  = errors.New("abi: relocation out of range")
	ErrUnsupportedRelocation = errors.New("abi: unsupported relocation type")
	ErrAlreadyFinalized      = errors.New("abi: packager already finalized")
	ErrNoCode                = errors.New("abi: pipeline code not set")
	ErrBadAlignment          = errors.New("abi: alignment must be a power of two multiple of 32")
	ErrReservedSection       = errors.New("abi: reserved section name")
	ErrNoMetadata            = errors.New("abi: no metadata note")
	ErrUnknownSymbol         = errors.New("abi: unknown symbol")
	ErrMissingSection        = errors.New("abi: symbol bound to a missing section")
	ErrUnknownGfxIp          = errors.New("abi: unknown GFXIP version")
)

// SectionType names the pipeline sections a symbol or relocation can refer
// to.
type SectionType uint8

const (
	SectionUndefined SectionType = iota
	SectionCode
	SectionData
	SectionDisassembly
	SectionAmdIl
	SectionLlvmIr
)

func (t SectionType) String() string {
	switch t {
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDisassembly:
		return "disassembly"
	case SectionAmdIl:
		return "amdil"
	case SectionLlvmIr:
		return "llvmir"
	default:
		return "undefined"
	}
}

// ParseSectionType is the inverse of SectionType.String.
func ParseSectionType(s string) (SectionType, bool) {
	for t := SectionUndefined; t <= SectionLlvmIr; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return SectionUndefined, false
}
