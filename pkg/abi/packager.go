package abi

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"slices"

	pelf "github.com/samcharles93/abipack/pkg/elf"
	"github.com/samcharles93/abipack/pkg/metadata"
)

var ErrNotFinalized = errors.New("abi: packager not finalized")

// reservedSectionNames may not be used with SetGenericSection.
var reservedSectionNames = []string{
	SectionNameRelText, SectionNameRelData, SectionNameRelaText, SectionNameRelaData,
	SectionNameDisassembly, SectionNameCommentBase, SectionNameAmdIl, SectionNameLlvmIr,
}

// Packager builds or reads one pipeline binary. Building is not safe for
// concurrent use; a finalized or loaded Packager may be read concurrently.
type Packager struct {
	c *pelf.Container

	text    *pelf.Section
	data    *pelf.Section
	rodata  *pelf.Section
	comment *pelf.Section
	disasm  *pelf.Section
	amdil   *pelf.Section
	llvmir  *pelf.Section
	note    *pelf.Section
	symtab  *pelf.Section
	strtab  *pelf.Section
	syms    *pelf.SymbolTable

	pipelineSymbols []PipelineSymbol
	pipelineIndex   [NumSymbolTypes]int
	genericSymbols  []GenericSymbol
	genericIndex    map[string]int
	relocations     []pendingRelocation

	metadataVersion metadata.Version
	metadataBlob    []byte
	finalized       bool
}

type pendingRelocation struct {
	target SectionType
	rel    Relocation
}

// New returns an empty packager for an AMDGPU PAL relocatable object.
func New() *Packager {
	p := newPackager(pelf.New())
	h := &p.c.Header
	h.OSABI = OSABIAMDGPUPAL
	h.ABIVersion = ABIVersion
	h.Type = elf.ET_REL
	h.Machine = elf.EM_AMDGPU
	p.metadataVersion = metadata.CurrentVersion
	return p
}

func newPackager(c *pelf.Container) *Packager {
	p := &Packager{c: c, genericIndex: map[string]int{}}
	for i := range p.pipelineIndex {
		p.pipelineIndex[i] = -1
	}
	return p
}

// Container exposes the underlying object file.
func (p *Packager) Container() *pelf.Container { return p.c }

func (p *Packager) Finalized() bool { return p.finalized }

func (p *Packager) checkOpen() error {
	if p.finalized {
		return ErrAlreadyFinalized
	}
	return nil
}

// SetGfxIpVersion records the target hardware in the e_flags machine field.
func (p *Packager) SetGfxIpVersion(v GfxIpVersion) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	mach, ok := MachineType(v)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGfxIp, v)
	}
	p.c.Header.Flags = p.c.Header.Flags&^machineFlagMask | uint32(mach)
	return nil
}

// GfxIpVersion decodes the e_flags machine field.
func (p *Packager) GfxIpVersion() (GfxIpVersion, bool) {
	return GfxIpFromMachineType(uint8(p.c.Header.Flags & machineFlagMask))
}

// AddPipelineSymbol records sym under its type, replacing any earlier
// symbol of the same type.
func (p *Packager) AddPipelineSymbol(sym PipelineSymbol) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if sym.Type == SymbolUnknown || sym.Type >= NumSymbolTypes {
		return fmt.Errorf("%w: pipeline symbol type %d", ErrUnknownSymbol, sym.Type)
	}
	p.addPipelineSymbol(sym)
	return nil
}

func (p *Packager) addPipelineSymbol(sym PipelineSymbol) {
	p.pipelineSymbols = append(p.pipelineSymbols, sym)
	p.pipelineIndex[sym.Type] = len(p.pipelineSymbols) - 1
}

// PipelineSymbol returns the symbol recorded for t.
func (p *Packager) PipelineSymbol(t SymbolType) (PipelineSymbol, bool) {
	if t >= NumSymbolTypes {
		return PipelineSymbol{}, false
	}
	i := p.pipelineIndex[t]
	if i < 0 {
		return PipelineSymbol{}, false
	}
	return p.pipelineSymbols[i], true
}

// PipelineSymbols returns the recorded pipeline symbols in type order.
func (p *Packager) PipelineSymbols() []PipelineSymbol {
	var out []PipelineSymbol
	for _, i := range p.pipelineIndex {
		if i >= 0 {
			out = append(out, p.pipelineSymbols[i])
		}
	}
	return out
}

// AddGenericSymbol records a symbol outside the reserved name table. A
// second symbol with the same name replaces the first in place.
func (p *Packager) AddGenericSymbol(sym GenericSymbol) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if sym.Name == "" {
		return fmt.Errorf("%w: empty generic symbol name", ErrUnknownSymbol)
	}
	p.addGenericSymbol(sym)
	return nil
}

func (p *Packager) addGenericSymbol(sym GenericSymbol) {
	if i, ok := p.genericIndex[sym.Name]; ok {
		p.genericSymbols[i] = sym
		return
	}
	p.genericIndex[sym.Name] = len(p.genericSymbols)
	p.genericSymbols = append(p.genericSymbols, sym)
}

func (p *Packager) GenericSymbol(name string) (GenericSymbol, bool) {
	i, ok := p.genericIndex[name]
	if !ok {
		return GenericSymbol{}, false
	}
	return p.genericSymbols[i], true
}

// GenericSymbols returns the generic symbols in insertion order.
func (p *Packager) GenericSymbols() []GenericSymbol { return slices.Clone(p.genericSymbols) }

// SetPipelineCode sets the .text contents. The section is aligned to
// PipelineShaderBaseAddrAlignment.
func (p *Packager) SetPipelineCode(code []byte) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if p.text == nil {
		p.text = p.c.Sections().Add(pelf.KindText)
		p.text.SetAlignment(PipelineShaderBaseAddrAlignment)
	}
	p.text.SetData(code)
	return nil
}

func (p *Packager) PipelineCode() []byte { return sectionData(p.text) }

func validDataAlignment(align uint64) bool {
	return align >= DataMinBaseAddrAlignment && align&(align-1) == 0
}

// SetData sets the .data contents and alignment.
func (p *Packager) SetData(data []byte, align uint64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if !validDataAlignment(align) {
		return fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}
	if p.data == nil {
		p.data = p.c.Sections().Add(pelf.KindData)
	}
	p.data.SetAlignment(align)
	p.data.SetData(data)
	return nil
}

// Data returns the .data contents and alignment.
func (p *Packager) Data() ([]byte, uint64, bool) {
	if p.data == nil {
		return nil, 0, false
	}
	return p.data.Data(), p.data.Align, true
}

// SetReadOnlyData sets the .rodata contents and alignment.
func (p *Packager) SetReadOnlyData(data []byte, align uint64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if !validDataAlignment(align) {
		return fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}
	if p.rodata == nil {
		p.rodata = p.c.Sections().Add(pelf.KindRoData)
	}
	p.rodata.SetAlignment(align)
	p.rodata.SetData(data)
	return nil
}

func (p *Packager) ReadOnlyData() ([]byte, uint64, bool) {
	if p.rodata == nil {
		return nil, 0, false
	}
	return p.rodata.Data(), p.rodata.Align, true
}

// SetComment stores s, NUL terminated, in .comment.
func (p *Packager) SetComment(s string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if p.comment == nil {
		p.comment = p.c.Sections().Add(pelf.KindComment)
	}
	p.comment.SetData(append([]byte(s), 0))
	return nil
}

// Comment returns the .comment text, or "".
func (p *Packager) Comment() string {
	data := sectionData(p.comment)
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

func (p *Packager) setNamed(dst **pelf.Section, name string, data []byte) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if *dst == nil {
		*dst = p.c.Sections().AddNamed(name)
		(*dst).Type = elf.SHT_PROGBITS
	}
	(*dst).SetData(data)
	return nil
}

func (p *Packager) SetDisassembly(data []byte) error {
	return p.setNamed(&p.disasm, SectionNameDisassembly, data)
}

func (p *Packager) SetAmdIl(data []byte) error {
	return p.setNamed(&p.amdil, SectionNameAmdIl, data)
}

func (p *Packager) SetLlvmIr(data []byte) error {
	return p.setNamed(&p.llvmir, SectionNameLlvmIr, data)
}

func (p *Packager) Disassembly() []byte { return sectionData(p.disasm) }
func (p *Packager) AmdIl() []byte       { return sectionData(p.amdil) }
func (p *Packager) LlvmIr() []byte      { return sectionData(p.llvmir) }

// IsReservedSectionName reports whether name belongs to a standard or
// pipeline section.
func IsReservedSectionName(name string) bool {
	if _, ok := pelf.KindByName(name); ok {
		return true
	}
	return slices.Contains(reservedSectionNames, name)
}

// SetGenericSection stores data in a PROGBITS section called name, creating
// it on first use.
func (p *Packager) SetGenericSection(name string, data []byte) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if name == "" || IsReservedSectionName(name) {
		return fmt.Errorf("%w: %q", ErrReservedSection, name)
	}
	s := p.c.Sections().Lookup(name)
	if s == nil {
		s = p.c.Sections().AddNamed(name)
		s.Type = elf.SHT_PROGBITS
	}
	s.SetData(data)
	return nil
}

// GenericSection returns the contents of a non-reserved section.
func (p *Packager) GenericSection(name string) ([]byte, bool) {
	if IsReservedSectionName(name) {
		return nil, false
	}
	s := p.c.Sections().Lookup(name)
	if s == nil {
		return nil, false
	}
	return s.Data(), true
}

// AddRelocation queues a relocation against the code or data section. It
// is written to the matching .rel or .rela section by Finalize.
func (p *Packager) AddRelocation(target SectionType, r Relocation) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if target != SectionCode && target != SectionData {
		return fmt.Errorf("abi: relocations apply to code or data, not %s", target)
	}
	if r.Type.Width() == 0 && r.Type != RelocNone {
		return fmt.Errorf("%w: %s", ErrUnsupportedRelocation, r.Type)
	}
	p.relocations = append(p.relocations, pendingRelocation{target: target, rel: r})
	return nil
}

func sectionData(s *pelf.Section) []byte {
	if s == nil {
		return nil
	}
	return s.Data()
}

func (p *Packager) section(t SectionType) *pelf.Section {
	switch t {
	case SectionCode:
		return p.text
	case SectionData:
		return p.data
	case SectionDisassembly:
		return p.disasm
	case SectionAmdIl:
		return p.amdil
	case SectionLlvmIr:
		return p.llvmir
	default:
		return nil
	}
}

// SectionIndex returns the section index backing t, or -1.
func (p *Packager) SectionIndex(t SectionType) int {
	s := p.section(t)
	if s == nil {
		return -1
	}
	return s.Index()
}

func (p *Packager) sectionType(index uint16) SectionType {
	for _, t := range []SectionType{SectionCode, SectionData, SectionDisassembly, SectionAmdIl, SectionLlvmIr} {
		if s := p.section(t); s != nil && s.Index() == int(index) {
			return t
		}
	}
	return SectionUndefined
}

func (p *Packager) symbolTable() (*pelf.SymbolTable, error) {
	if p.syms == nil {
		return nil, ErrNotFinalized
	}
	return p.syms, nil
}

// Finalize writes the symbol table, queued relocations and the metadata
// note, then lays out the file. blob is an encoded metadata document, as
// produced by metadata.Encode.
func (p *Packager) Finalize(blob []byte) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if p.text == nil {
		return ErrNoCode
	}
	version, ok, err := metadata.DecodeVersion(blob)
	if err != nil {
		return fmt.Errorf("abi: metadata: %w", err)
	}
	if !ok {
		return fmt.Errorf("abi: metadata: %w: missing %s", metadata.ErrInvalidDocument, metadata.KeyVersion)
	}
	for _, pr := range p.relocations {
		if p.section(pr.target) == nil {
			return fmt.Errorf("abi: relocation against missing %s section", pr.target)
		}
		if !p.hasSymbol(pr.rel.Symbol) {
			return fmt.Errorf("%w: %q", ErrUnknownSymbol, pr.rel.Symbol)
		}
	}
	for _, sym := range p.PipelineSymbols() {
		if sym.Section != SectionUndefined && p.section(sym.Section) == nil {
			return fmt.Errorf("%w: %s in %s", ErrMissingSection, PipelineSymbolNames.Name(sym.Type), sym.Section)
		}
	}
	for _, sym := range p.genericSymbols {
		if sym.Section != SectionUndefined && p.section(sym.Section) == nil {
			return fmt.Errorf("%w: %s in %s", ErrMissingSection, sym.Name, sym.Section)
		}
	}

	ss := p.c.Sections()
	p.strtab = ss.Add(pelf.KindStrTab)
	p.symtab = ss.Add(pelf.KindSymTab)
	syms := pelf.InitSymbolTable(p.symtab, pelf.InitStringTable(p.strtab))
	p.syms = syms

	index := map[string]uint32{}
	for _, sym := range p.PipelineSymbols() {
		name := PipelineSymbolNames.Name(sym.Type)
		index[name] = syms.Add(pelf.Symbol{
			Name:    name,
			Bind:    elf.STB_LOCAL,
			Type:    sym.EntryType,
			Section: p.symbolSection(sym.Section),
			Value:   sym.Value,
			Size:    sym.Size,
		})
	}
	for _, sym := range p.genericSymbols {
		index[sym.Name] = syms.Add(pelf.Symbol{
			Name:    sym.Name,
			Bind:    elf.STB_LOCAL,
			Type:    sym.EntryType,
			Section: p.symbolSection(sym.Section),
			Value:   sym.Value,
			Size:    sym.Size,
		})
	}

	p.writeRelocations(index)

	p.note = ss.Add(pelf.KindNote)
	notes, err := pelf.NewNoteTable(p.note)
	if err != nil {
		return err
	}
	i := notes.Add(pelf.Note{Type: MetadataNoteType, Name: NoteOwner, Desc: blob})
	n, err := notes.Get(i)
	if err != nil {
		return err
	}
	p.metadataBlob = n.Desc
	p.metadataVersion = version

	p.c.Finalize()
	p.finalized = true
	return nil
}

// FinalizeMetadata encodes doc and finalizes with it.
func (p *Packager) FinalizeMetadata(doc *metadata.CodeObject) error {
	blob, err := metadata.Encode(doc)
	if err != nil {
		return err
	}
	return p.Finalize(blob)
}

func (p *Packager) hasSymbol(name string) bool {
	if t := PipelineSymbolNames.Classify(name); t != SymbolUnknown {
		_, ok := p.PipelineSymbol(t)
		return ok
	}
	_, ok := p.genericIndex[name]
	return ok
}

func (p *Packager) symbolSection(t SectionType) uint16 {
	if s := p.section(t); s != nil {
		return uint16(s.Index())
	}
	return uint16(elf.SHN_UNDEF)
}

func (p *Packager) writeRelocations(index map[string]uint32) {
	layouts := []struct {
		target SectionType
		rela   bool
		name   string
	}{
		{SectionCode, false, SectionNameRelText},
		{SectionCode, true, SectionNameRelaText},
		{SectionData, false, SectionNameRelData},
		{SectionData, true, SectionNameRelaData},
	}
	for _, l := range layouts {
		var rt *pelf.RelocationTable
		for _, pr := range p.relocations {
			if pr.target != l.target || pr.rel.Rela != l.rela {
				continue
			}
			if rt == nil {
				kind := pelf.KindRel
				if l.rela {
					kind = pelf.KindRela
				}
				sec := p.c.Sections().AddKind(kind, l.name)
				sec.SetLink(p.symtab)
				sec.SetInfo(p.section(l.target))
				rt = pelf.NewRelocationTable(sec)
			}
			rt.Add(pelf.Relocation{
				Offset: pr.rel.Offset,
				Symbol: index[pr.rel.Symbol],
				Type:   uint32(pr.rel.Type),
				Addend: pr.rel.Addend,
			})
		}
	}
}

// RequiredSize is the size of the serialised binary.
func (p *Packager) RequiredSize() int { return p.c.RequiredSize() }

// SaveTo serialises a finalized or loaded packager into buf.
func (p *Packager) SaveTo(buf []byte) (int, error) {
	if !p.finalized {
		return 0, ErrNotFinalized
	}
	return p.c.SaveTo(buf)
}

func (p *Packager) Bytes() ([]byte, error) {
	if !p.finalized {
		return nil, ErrNotFinalized
	}
	return p.c.Bytes()
}

// RawMetadata returns the encoded metadata document, or nil.
func (p *Packager) RawMetadata() []byte { return p.metadataBlob }

// MetadataVersion is the version of the metadata note, or the version New
// will write when nothing has been finalized yet.
func (p *Packager) MetadataVersion() metadata.Version { return p.metadataVersion }

// Metadata decodes the metadata note. Documents older than major version 2
// have their flat register map translated into register groups.
func (p *Packager) Metadata() (*metadata.CodeObject, error) {
	if p.metadataBlob == nil {
		return nil, ErrNoMetadata
	}
	doc, err := metadata.Decode(p.metadataBlob)
	if err != nil {
		return nil, err
	}
	upgradeMetadata(doc)
	return doc, nil
}

// RelocationRecord is a decoded relocation with its symbol resolved.
type RelocationRecord struct {
	Section string
	Target  string
	Offset  uint64
	Symbol  string
	Type    RelocationType
	Addend  int64
	Rela    bool
}

// Relocations lists the records of every relocation section.
func (p *Packager) Relocations() ([]RelocationRecord, error) {
	syms, err := p.symbolTable()
	if err != nil {
		return nil, err
	}
	var out []RelocationRecord
	for _, s := range p.c.Sections().All() {
		if s.Type != elf.SHT_REL && s.Type != elf.SHT_RELA {
			continue
		}
		rt := pelf.NewRelocationTable(s)
		target := ""
		if info := s.Info(); info != nil {
			target = info.Name()
		}
		for i := range rt.Len() {
			r, err := rt.Get(i)
			if err != nil {
				return nil, err
			}
			sym, err := syms.Get(int(r.Symbol))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s.Name(), err)
			}
			out = append(out, RelocationRecord{
				Section: s.Name(),
				Target:  target,
				Offset:  r.Offset,
				Symbol:  sym.Name,
				Type:    RelocationType(r.Type),
				Addend:  r.Addend,
				Rela:    rt.HasAddends(),
			})
		}
	}
	return out, nil
}
