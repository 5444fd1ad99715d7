package elf

import "debug/elf"

// Segment is a run of sections described by one program header. Offset and
// size are derived from the member sections in Finalize.
type Segment struct {
	owner    *Sections
	sections []int

	Type  elf.ProgType
	Flags elf.ProgFlag
	VAddr uint64
	PAddr uint64
	Align uint64

	offset uint64
	size   uint64
}

// AddSection appends s to the segment. Members must end up contiguous in
// the final section order.
func (sg *Segment) AddSection(s *Section) {
	sg.sections = append(sg.sections, sg.owner.indexOf(s))
}

// Sections returns the member sections in order.
func (sg *Segment) Sections() []*Section {
	out := make([]*Section, 0, len(sg.sections))
	for _, i := range sg.sections {
		out = append(out, sg.owner.Get(i))
	}
	return out
}

func (sg *Segment) Offset() uint64 { return sg.offset }
func (sg *Segment) Size() uint64   { return sg.size }

func (sg *Segment) contains(s *Section) bool {
	for _, i := range sg.sections {
		if i == s.index {
			return true
		}
	}
	return false
}

func (sg *Segment) finalize() {
	if len(sg.sections) == 0 {
		sg.offset, sg.size = 0, 0
		return
	}
	first := sg.owner.Get(sg.sections[0])
	last := sg.owner.Get(sg.sections[len(sg.sections)-1])
	sg.offset = first.offset
	sg.size = last.offset + last.Size() - sg.offset
}

func (sg *Segment) header() ProgramHeader {
	return ProgramHeader{
		Type:   sg.Type,
		Flags:  sg.Flags,
		Offset: sg.offset,
		VAddr:  sg.VAddr,
		PAddr:  sg.PAddr,
		FileSz: sg.size,
		MemSz:  sg.size,
		Align:  sg.Align,
	}
}

// Segments holds a container's program headers in order.
type Segments struct {
	owner *Sections
	list  []*Segment
}

// Add appends an empty segment.
func (sgs *Segments) Add() *Segment {
	sg := &Segment{owner: sgs.owner}
	sgs.list = append(sgs.list, sg)
	return sg
}

// Get returns segment i, or nil.
func (sgs *Segments) Get(i int) *Segment {
	if i < 0 || i >= len(sgs.list) {
		return nil
	}
	return sgs.list[i]
}

func (sgs *Segments) Len() int { return len(sgs.list) }

// WithSection returns the first segment containing s, or nil.
func (sgs *Segments) WithSection(s *Section) *Segment {
	for _, sg := range sgs.list {
		if sg.contains(s) {
			return sg
		}
	}
	return nil
}

func (sgs *Segments) finalize() {
	for _, sg := range sgs.list {
		sg.finalize()
	}
}
