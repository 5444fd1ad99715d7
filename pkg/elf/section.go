package elf

import (
	"debug/elf"
	"slices"
)

// Kind selects the conventional name, header type and flags of a standard
// section.
type Kind uint32

const (
	KindNull Kind = iota
	KindBss
	KindData
	KindInterp
	KindRoData
	KindText
	KindComment
	KindDynamic
	KindDynStr
	KindDynSym
	KindGot
	KindHash
	KindNote
	KindPlt
	KindRel
	KindRela
	KindShStrTab
	KindStrTab
	KindSymTab
	kindCount
)

type kindInfo struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	align   uint64
	entSize uint64
}

var kindTable = [kindCount]kindInfo{
	KindNull:     {"", elf.SHT_NULL, 0, 0, 0},
	KindBss:      {".bss", elf.SHT_NOBITS, elf.SHF_ALLOC | elf.SHF_WRITE, 1, 0},
	KindData:     {".data", elf.SHT_PROGBITS, elf.SHF_ALLOC | elf.SHF_WRITE, 1, 0},
	KindInterp:   {".interp", elf.SHT_PROGBITS, elf.SHF_ALLOC, 1, 0},
	KindRoData:   {".rodata", elf.SHT_PROGBITS, elf.SHF_ALLOC, 1, 0},
	KindText:     {".text", elf.SHT_PROGBITS, elf.SHF_ALLOC | elf.SHF_EXECINSTR, 1, 0},
	KindComment:  {".comment", elf.SHT_PROGBITS, 0, 1, 0},
	KindDynamic:  {".dynamic", elf.SHT_DYNAMIC, elf.SHF_ALLOC | elf.SHF_WRITE, 8, 16},
	KindDynStr:   {".dynstr", elf.SHT_STRTAB, elf.SHF_ALLOC | elf.SHF_WRITE, 1, 0},
	KindDynSym:   {".dynsym", elf.SHT_DYNSYM, elf.SHF_ALLOC | elf.SHF_WRITE, 8, SymbolSize},
	KindGot:      {".got", elf.SHT_PROGBITS, 0, 8, 0},
	KindHash:     {".hash", elf.SHT_HASH, elf.SHF_ALLOC, 4, 4},
	KindNote:     {".note", elf.SHT_NOTE, 0, noteAlign, 0},
	KindPlt:      {".plt", elf.SHT_PROGBITS, 0, 16, 0},
	KindRel:      {".rel", elf.SHT_REL, 0, 8, RelSize},
	KindRela:     {".rela", elf.SHT_RELA, 0, 8, RelaSize},
	KindShStrTab: {".shstrtab", elf.SHT_STRTAB, 0, 1, 0},
	KindStrTab:   {".strtab", elf.SHT_STRTAB, 0, 1, 0},
	KindSymTab:   {".symtab", elf.SHT_SYMTAB, 0, 8, SymbolSize},
}

// Name returns the conventional section name for k.
func (k Kind) Name() string {
	if k >= kindCount {
		return ""
	}
	return kindTable[k].name
}

// KindByName returns the standard kind whose conventional name is name.
func KindByName(name string) (Kind, bool) {
	for k := KindBss; k < kindCount; k++ {
		if kindTable[k].name == name {
			return k, true
		}
	}
	return KindNull, false
}

// Section is a named byte buffer plus its header fields. Sections are owned
// by a Sections arena; link and info are stored as indices into it.
type Section struct {
	owner      *Sections
	index      int
	name       string
	nameOffset uint32

	Type    elf.SectionType
	Flags   elf.SectionFlag
	Addr    uint64
	Align   uint64
	EntSize uint64

	offset uint64
	data   []byte
	link   int
	info   int
}

func (s *Section) Index() int         { return s.index }
func (s *Section) Name() string       { return s.name }
func (s *Section) NameOffset() uint32 { return s.nameOffset }

// Offset is the file offset assigned by Container.Finalize or read by Load.
func (s *Section) Offset() uint64 { return s.offset }

// Data returns the section contents. For a loaded container it aliases the
// load buffer.
func (s *Section) Data() []byte { return s.data }

func (s *Section) Size() uint64 { return uint64(len(s.data)) }

// SetData replaces the section contents with a copy of p.
func (s *Section) SetData(p []byte) []byte {
	s.data = append([]byte(nil), p...)
	return s.data
}

// AppendData appends p. A loaded section is copied before it grows so the
// load buffer is never written.
func (s *Section) AppendData(p []byte) []byte {
	s.data = append(slices.Clip(s.data), p...)
	return s.data
}

// AppendUninitialized grows the section by n bytes and returns the new tail
// for the caller to fill.
func (s *Section) AppendUninitialized(n int) []byte {
	if n <= 0 {
		return nil
	}
	start := len(s.data)
	s.data = slices.Grow(slices.Clip(s.data), n)[:start+n]
	return s.data[start:]
}

// SetAlignment sets the required file and address alignment. Zero and one
// both mean unaligned.
func (s *Section) SetAlignment(align uint64) { s.Align = align }

// SetLink records a reference to another section of the same arena.
func (s *Section) SetLink(target *Section) {
	s.link = s.owner.indexOf(target)
}

// Link returns the linked section, or nil.
func (s *Section) Link() *Section {
	if s.link == 0 {
		return nil
	}
	return s.owner.Get(s.link)
}

// SetInfo records the section this one applies to (relocation targets).
func (s *Section) SetInfo(target *Section) {
	s.info = s.owner.indexOf(target)
}

// Info returns the info section, or nil.
func (s *Section) Info() *Section {
	if s.info == 0 {
		return nil
	}
	return s.owner.Get(s.info)
}

func (s *Section) header() SectionHeader {
	return SectionHeader{
		Name:      s.nameOffset,
		Type:      s.Type,
		Flags:     uint64(s.Flags),
		Addr:      s.Addr,
		Offset:    s.offset,
		Size:      uint64(len(s.data)),
		Link:      uint32(s.link),
		Info:      uint32(s.info),
		AddrAlign: s.Align,
		EntSize:   s.EntSize,
	}
}

func (s *Section) applyKind(k Kind) {
	info := kindTable[k]
	s.Type = info.typ
	s.Flags = info.flags
	s.Align = info.align
	s.EntSize = info.entSize
}
