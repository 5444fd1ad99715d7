package abi

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	pelf "github.com/samcharles93/abipack/pkg/elf"
)

// RelocationType is an R_AMDGPU relocation.
type RelocationType uint32

const (
	RelocNone         RelocationType = 0
	RelocAbs32Lo      RelocationType = 1
	RelocAbs32Hi      RelocationType = 2
	RelocAbs64        RelocationType = 3
	RelocRel32        RelocationType = 4
	RelocRel64        RelocationType = 5
	RelocAbs32        RelocationType = 6
	RelocGotPcRel     RelocationType = 7
	RelocGotPcRel32Lo RelocationType = 8
	RelocGotPcRel32Hi RelocationType = 9
	RelocRel32Lo      RelocationType = 10
	RelocRel32Hi      RelocationType = 11
	RelocRel16        RelocationType = 14
)

func (t RelocationType) String() string {
	switch t {
	case RelocNone:
		return "none"
	case RelocAbs32Lo:
		return "abs32_lo"
	case RelocAbs32Hi:
		return "abs32_hi"
	case RelocAbs64:
		return "abs64"
	case RelocRel32:
		return "rel32"
	case RelocRel64:
		return "rel64"
	case RelocAbs32:
		return "abs32"
	case RelocGotPcRel:
		return "gotpcrel"
	case RelocGotPcRel32Lo:
		return "gotpcrel32_lo"
	case RelocGotPcRel32Hi:
		return "gotpcrel32_hi"
	case RelocRel32Lo:
		return "rel32_lo"
	case RelocRel32Hi:
		return "rel32_hi"
	case RelocRel16:
		return "rel16"
	default:
		return fmt.Sprintf("reloc(%d)", uint32(t))
	}
}

// ParseRelocationType is the inverse of RelocationType.String.
func ParseRelocationType(s string) (RelocationType, bool) {
	for _, t := range []RelocationType{
		RelocNone, RelocAbs32Lo, RelocAbs32Hi, RelocAbs64, RelocRel32, RelocRel64, RelocAbs32,
		RelocGotPcRel, RelocGotPcRel32Lo, RelocGotPcRel32Hi, RelocRel32Lo, RelocRel32Hi, RelocRel16,
	} {
		if t.String() == s {
			return t, true
		}
	}
	return RelocNone, false
}

// Width is the number of bytes patched, or 0 for types that cannot be
// applied.
func (t RelocationType) Width() int {
	switch t {
	case RelocAbs32Lo, RelocAbs32Hi, RelocRel32, RelocAbs32, RelocRel32Lo, RelocRel32Hi:
		return 4
	case RelocAbs64, RelocRel64:
		return 8
	case RelocRel16:
		return 2
	default:
		return 0
	}
}

// Resolve evaluates the relocation formula for symbol address s, addend a
// and patch address p.
func Resolve(t RelocationType, s, a, p uint64) (uint64, error) {
	sa := s + a
	switch t {
	case RelocAbs32Lo:
		return sa & 0xFFFFFFFF, nil
	case RelocAbs32Hi:
		return sa >> 32, nil
	case RelocAbs64, RelocAbs32:
		return sa, nil
	case RelocRel32, RelocRel64:
		return sa - p, nil
	case RelocRel32Lo:
		return (sa - p) & 0xFFFFFFFF, nil
	case RelocRel32Hi:
		return (sa - p) >> 32, nil
	case RelocRel16:
		return uint64((int64(sa-p) - 4) / 4), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedRelocation, t)
	}
}

// Relocation is a relocation to author on the build path. Symbol names a
// pipeline or generic symbol; Rela selects a record with an explicit
// addend, otherwise the addend is read from the patch site.
type Relocation struct {
	Offset uint64
	Symbol string
	Type   RelocationType
	Addend int64
	Rela   bool
}

func readSite(buf []byte, width int) uint64 {
	le := binary.LittleEndian
	switch width {
	case 2:
		return uint64(int64(int16(le.Uint16(buf))))
	case 4:
		return uint64(le.Uint32(buf))
	default:
		return le.Uint64(buf)
	}
}

func writeSite(buf []byte, width int, v uint64) {
	le := binary.LittleEndian
	switch width {
	case 2:
		le.PutUint16(buf, uint16(v))
	case 4:
		le.PutUint32(buf, uint32(v))
	default:
		le.PutUint64(buf, v)
	}
}

// ApplyRelocations patches buf, a copy of the section of type target loaded
// at base, with every relocation whose section applies to that section.
// Patching stops at the first record that cannot be applied.
func (p *Packager) ApplyRelocations(buf []byte, target SectionType, base uint64) error {
	sec := p.section(target)
	if sec == nil {
		return fmt.Errorf("abi: no %s section to relocate", target)
	}
	syms, err := p.symbolTable()
	if err != nil {
		return err
	}

	for _, rs := range p.c.Sections().All() {
		if rs.Type != elf.SHT_REL && rs.Type != elf.SHT_RELA {
			continue
		}
		if rs.Info() != sec {
			continue
		}
		if err := applyTable(buf, base, pelf.NewRelocationTable(rs), syms); err != nil {
			return fmt.Errorf("%s: %w", rs.Name(), err)
		}
	}
	return nil
}

func applyTable(buf []byte, base uint64, rt *pelf.RelocationTable, syms *pelf.SymbolTable) error {
	for i := range rt.Len() {
		r, err := rt.Get(i)
		if err != nil {
			return err
		}
		t := RelocationType(r.Type)
		if t == RelocNone {
			continue
		}
		width := t.Width()
		if width == 0 {
			return fmt.Errorf("%w: %s at 0x%x", ErrUnsupportedRelocation, t, r.Offset)
		}
		if r.Offset > uint64(len(buf)) || uint64(len(buf))-r.Offset < uint64(width) {
			return fmt.Errorf("%w: offset 0x%x width %d, buffer %d", ErrRelocationOutOfRange, r.Offset, width, len(buf))
		}
		sym, err := syms.Get(int(r.Symbol))
		if err != nil {
			return err
		}
		site := buf[r.Offset : r.Offset+uint64(width)]

		a := uint64(r.Addend)
		if !rt.HasAddends() {
			a = readSite(site, width)
		}
		v, err := Resolve(t, base+sym.Value, a, base+r.Offset)
		if err != nil {
			return err
		}
		writeSite(site, width, v)
	}
	return nil
}
