package elf

import "bytes"

// StringTable is an append-only pool of NUL terminated strings stored in a
// section. Offset 0 is always the empty string.
type StringTable struct {
	sec *Section
}

// NewStringTable wraps sec without modifying it.
func NewStringTable(sec *Section) *StringTable {
	return &StringTable{sec: sec}
}

// InitStringTable wraps sec for building, seeding the leading NUL if it is
// empty.
func InitStringTable(sec *Section) *StringTable {
	if len(sec.data) == 0 {
		sec.AppendData([]byte{0})
	}
	return &StringTable{sec: sec}
}

// Add appends str and returns its offset. Strings are not deduplicated.
func (t *StringTable) Add(str string) uint32 {
	off := uint32(len(t.sec.data))
	buf := t.sec.AppendUninitialized(len(str) + 1)
	copy(buf, str)
	buf[len(str)] = 0
	return off
}

// Get returns the string starting at off, or "" when off is out of range.
func (t *StringTable) Get(off uint32) string {
	data := t.sec.data
	if uint64(off) >= uint64(len(data)) {
		return ""
	}
	rest := data[off:]
	if end := bytes.IndexByte(rest, 0); end >= 0 {
		return string(rest[:end])
	}
	return string(rest)
}

// Len counts the strings in the table, including the leading empty one.
func (t *StringTable) Len() int {
	return bytes.Count(t.sec.data, []byte{0})
}

func (t *StringTable) Section() *Section { return t.sec }
