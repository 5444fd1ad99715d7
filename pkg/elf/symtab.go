package elf

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Symbol is one decoded Elf64_Sym record.
type Symbol struct {
	Name    string
	Bind    elf.SymBind
	Type    elf.SymType
	Other   uint8
	Section uint16
	Value   uint64
	Size    uint64
}

// SymbolTable views a SHT_SYMTAB section as fixed 24 byte records whose
// names live in a companion string table.
type SymbolTable struct {
	sec  *Section
	strs *StringTable
}

// NewSymbolTable wraps sec with names resolved through strs. Neither
// section is modified, so views over a loaded container are safe to share.
func NewSymbolTable(sec *Section, strs *StringTable) *SymbolTable {
	return &SymbolTable{sec: sec, strs: strs}
}

// InitSymbolTable wraps sec for building: it links sec to strs and seeds an
// empty section with the null symbol.
func InitSymbolTable(sec *Section, strs *StringTable) *SymbolTable {
	t := &SymbolTable{sec: sec, strs: strs}
	sec.SetLink(strs.sec)
	if len(sec.data) == 0 {
		clear(sec.AppendUninitialized(SymbolSize))
	}
	return t
}

// Add appends sym and returns its index.
func (t *SymbolTable) Add(sym Symbol) uint32 {
	idx := uint32(t.Len())
	nameOff := uint32(0)
	if sym.Name != "" {
		nameOff = t.strs.Add(sym.Name)
	}
	rec := t.sec.AppendUninitialized(SymbolSize)
	le := binary.LittleEndian
	le.PutUint32(rec[0:], nameOff)
	rec[4] = elf.ST_INFO(sym.Bind, sym.Type)
	rec[5] = sym.Other
	le.PutUint16(rec[6:], sym.Section)
	le.PutUint64(rec[8:], sym.Value)
	le.PutUint64(rec[16:], sym.Size)
	return idx
}

// Get decodes the symbol at index i.
func (t *SymbolTable) Get(i int) (Symbol, error) {
	if i < 0 || i >= t.Len() {
		return Symbol{}, fmt.Errorf("%w: symbol %d of %d", ErrIndexOutOfRange, i, t.Len())
	}
	rec := t.sec.data[i*SymbolSize : (i+1)*SymbolSize]
	le := binary.LittleEndian
	return Symbol{
		Name:    t.strs.Get(le.Uint32(rec[0:])),
		Bind:    elf.ST_BIND(rec[4]),
		Type:    elf.ST_TYPE(rec[4]),
		Other:   rec[5],
		Section: le.Uint16(rec[6:]),
		Value:   le.Uint64(rec[8:]),
		Size:    le.Uint64(rec[16:]),
	}, nil
}

// Len is the number of records, including the null symbol.
func (t *SymbolTable) Len() int { return len(t.sec.data) / SymbolSize }

func (t *SymbolTable) Section() *Section { return t.sec }
