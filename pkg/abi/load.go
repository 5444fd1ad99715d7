package abi

import (
	"debug/elf"
	"fmt"

	pelf "github.com/samcharles93/abipack/pkg/elf"
	"github.com/samcharles93/abipack/pkg/metadata"
)

// Load parses a pipeline binary. Section data aliases buf. The result is
// read only: setters return ErrAlreadyFinalized, but ApplyRelocations and
// the getters work.
func Load(buf []byte) (*Packager, error) {
	c, err := pelf.Load(buf)
	if err != nil {
		return nil, err
	}
	return FromContainer(c)
}

// FromContainer wraps an already parsed container.
func FromContainer(c *pelf.Container) (*Packager, error) {
	h := c.Header
	if h.OSABI != OSABIAMDGPUPAL || h.Machine != elf.EM_AMDGPU {
		return nil, fmt.Errorf("%w: os abi %d, machine %v", ErrInvalidPipelineElf, h.OSABI, h.Machine)
	}
	if h.ABIVersion != ABIVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAbiVersion, h.ABIVersion)
	}

	p := newPackager(c)
	ss := c.Sections()
	p.text = ss.Lookup(SectionNameText)
	p.data = ss.Lookup(SectionNameData)
	p.rodata = ss.Lookup(SectionNameRoData)
	p.symtab = ss.Lookup(SectionNameSymTab)
	if p.symtab != nil {
		p.strtab = p.symtab.Link()
	}
	p.note = ss.Lookup(SectionNameNote)
	p.comment = ss.Lookup(SectionNameComment)
	p.disasm = ss.Lookup(SectionNameDisassembly)
	p.amdil = ss.Lookup(SectionNameAmdIl)
	p.llvmir = ss.Lookup(SectionNameLlvmIr)

	switch {
	case p.text == nil:
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPipelineElf, SectionNameText)
	case p.note == nil:
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPipelineElf, SectionNameNote)
	case p.symtab == nil:
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPipelineElf, SectionNameSymTab)
	case p.strtab == nil:
		return nil, fmt.Errorf("%w: %s has no string table", ErrInvalidPipelineElf, SectionNameSymTab)
	}
	p.syms = pelf.NewSymbolTable(p.symtab, pelf.NewStringTable(p.strtab))

	if err := p.loadMetadataNote(); err != nil {
		return nil, err
	}
	if err := p.classifySymbols(); err != nil {
		return nil, err
	}
	p.finalized = true
	return p, nil
}

// loadMetadataNote takes the first metadata note regardless of owner name.
func (p *Packager) loadMetadataNote() error {
	notes, err := pelf.NewNoteTable(p.note)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPipelineElf, err)
	}
	p.metadataVersion = metadata.Version{}
	for i := range notes.Len() {
		n, err := notes.Get(i)
		if err != nil {
			return err
		}
		if n.Type != MetadataNoteType {
			continue
		}
		v, _, err := metadata.DecodeVersion(n.Desc)
		if err != nil {
			return fmt.Errorf("%w: metadata note: %w", ErrInvalidPipelineElf, err)
		}
		p.metadataBlob = n.Desc
		p.metadataVersion = v
		break
	}
	return nil
}

func (p *Packager) classifySymbols() error {
	syms, err := p.symbolTable()
	if err != nil {
		return err
	}
	for i := range syms.Len() {
		sym, err := syms.Get(i)
		if err != nil {
			return err
		}
		section := p.sectionType(sym.Section)
		if t := PipelineSymbolNames.Classify(sym.Name); t != SymbolUnknown {
			p.addPipelineSymbol(PipelineSymbol{
				Type:      t,
				EntryType: sym.Type,
				Section:   section,
				Value:     sym.Value,
				Size:      sym.Size,
			})
			continue
		}
		if sym.Name != "" {
			p.addGenericSymbol(GenericSymbol{
				Name:      sym.Name,
				EntryType: sym.Type,
				Section:   section,
				Value:     sym.Value,
				Size:      sym.Size,
			})
		}
	}
	return nil
}
