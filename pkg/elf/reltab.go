package elf

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Relocation is one relocation record. Addend is only stored on disk by
// SHT_RELA sections.
type Relocation struct {
	Offset uint64
	Symbol uint32
	Type   uint32
	Addend int64
}

// RelocationTable views a SHT_REL or SHT_RELA section through one API.
type RelocationTable struct {
	sec *Section
}

func NewRelocationTable(sec *Section) *RelocationTable {
	return &RelocationTable{sec: sec}
}

// HasAddends reports whether records carry an explicit addend.
func (t *RelocationTable) HasAddends() bool { return t.sec.Type == elf.SHT_RELA }

func (t *RelocationTable) recordSize() int {
	if t.HasAddends() {
		return RelaSize
	}
	return RelSize
}

// Add appends r and returns its index. The addend is dropped for SHT_REL.
func (t *RelocationTable) Add(r Relocation) uint32 {
	idx := uint32(t.Len())
	rec := t.sec.AppendUninitialized(t.recordSize())
	le := binary.LittleEndian
	le.PutUint64(rec[0:], r.Offset)
	le.PutUint64(rec[8:], elf.R_INFO(r.Symbol, r.Type))
	if t.HasAddends() {
		le.PutUint64(rec[16:], uint64(r.Addend))
	}
	return idx
}

// Get decodes the relocation at index i.
func (t *RelocationTable) Get(i int) (Relocation, error) {
	if i < 0 || i >= t.Len() {
		return Relocation{}, fmt.Errorf("%w: relocation %d of %d", ErrIndexOutOfRange, i, t.Len())
	}
	size := t.recordSize()
	rec := t.sec.data[i*size : (i+1)*size]
	le := binary.LittleEndian
	info := le.Uint64(rec[8:])
	r := Relocation{
		Offset: le.Uint64(rec[0:]),
		Symbol: elf.R_SYM64(info),
		Type:   elf.R_TYPE64(info),
	}
	if t.HasAddends() {
		r.Addend = int64(le.Uint64(rec[16:]))
	}
	return r, nil
}

func (t *RelocationTable) Len() int { return len(t.sec.data) / t.recordSize() }

func (t *RelocationTable) Section() *Section { return t.sec }
