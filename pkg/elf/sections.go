package elf

import "iter"

// Sections is the index-addressed arena of a container's sections. Index 0
// is the null section and index 1 the section name table.
type Sections struct {
	list  []*Section
	names *StringTable
}

func newSections() *Sections {
	ss := &Sections{}
	null := &Section{owner: ss, index: 0}
	shstr := &Section{owner: ss, index: 1, name: KindShStrTab.Name()}
	shstr.applyKind(KindShStrTab)
	ss.list = []*Section{null, shstr}
	ss.names = InitStringTable(shstr)
	shstr.nameOffset = ss.names.Add(shstr.name)
	return ss
}

// Add appends a standard section with the conventional name and defaults
// of k.
func (ss *Sections) Add(k Kind) *Section {
	return ss.AddKind(k, k.Name())
}

// AddKind appends a section named name with the header defaults of k, for
// names such as ".rel.text" that extend a standard kind.
func (ss *Sections) AddKind(k Kind, name string) *Section {
	s := ss.add(name)
	if k < kindCount {
		s.applyKind(k)
	}
	return s
}

// AddNamed appends a section by name. Standard names get their kind's
// defaults; any other name produces an untyped section the caller fills in.
func (ss *Sections) AddNamed(name string) *Section {
	if k, ok := KindByName(name); ok {
		return ss.Add(k)
	}
	return ss.add(name)
}

func (ss *Sections) add(name string) *Section {
	s := &Section{owner: ss, index: len(ss.list), name: name, Align: 1}
	s.nameOffset = ss.names.Add(name)
	ss.list = append(ss.list, s)
	return s
}

// attach appends a section read from an existing header, keeping its
// recorded name offset.
func (ss *Sections) attach(name string, nameOffset uint32) *Section {
	s := &Section{owner: ss, index: len(ss.list), name: name, nameOffset: nameOffset}
	ss.list = append(ss.list, s)
	return s
}

// Get returns the section at index i, or nil when i is out of range.
func (ss *Sections) Get(i int) *Section {
	if i < 0 || i >= len(ss.list) {
		return nil
	}
	return ss.list[i]
}

// Lookup returns the first section named name, or nil.
func (ss *Sections) Lookup(name string) *Section {
	for _, s := range ss.list[1:] {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (ss *Sections) Len() int { return len(ss.list) }

// NameTable returns the section holding section names.
func (ss *Sections) NameTable() *Section { return ss.list[1] }

// All yields every section in index order, including the null section.
func (ss *Sections) All() iter.Seq2[int, *Section] {
	return func(yield func(int, *Section) bool) {
		for i, s := range ss.list {
			if !yield(i, s) {
				return
			}
		}
	}
}

func (ss *Sections) indexOf(s *Section) int {
	if s == nil {
		return 0
	}
	if s.owner != ss {
		panic("elf: section belongs to another container")
	}
	return s.index
}
