package elf

import (
	"bytes"
	"debug/elf"
	"fmt"
)

// Load parses buf into a container. Section data aliases buf, so buf must
// outlive the container and must not be modified while it is in use.
func Load(buf []byte) (*Container, error) {
	if len(buf) < FileHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the file header", ErrCorruptFile, len(buf))
	}
	if !bytes.Equal(buf[:4], magic[:]) {
		return nil, ErrInvalidMagic
	}
	hdr, ok := decodeFileHeader(buf[:FileHeaderSize])
	if !ok {
		return nil, ErrCorruptFile
	}
	if hdr.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedClass, hdr.Class)
	}
	if hdr.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedByteOrder, hdr.Data)
	}
	if hdr.IdentVersion != elf.EV_CURRENT {
		return nil, fmt.Errorf("%w: ident version %d", ErrCorruptFile, hdr.IdentVersion)
	}

	c := &Container{Header: hdr}
	ss := &Sections{}
	c.sections = ss
	c.segments = &Segments{owner: ss}

	if err := c.loadSections(buf); err != nil {
		return nil, err
	}
	if err := c.loadSegments(buf); err != nil {
		return nil, err
	}
	return c, nil
}

func tableBounds(buf []byte, off uint64, n, entSize int) (uint64, bool) {
	end := off + uint64(n)*uint64(entSize)
	if end < off || end > uint64(len(buf)) {
		return 0, false
	}
	return end, true
}

func (c *Container) loadSections(buf []byte) error {
	hdr := c.Header
	ss := c.sections
	n := int(hdr.Shnum)
	if n == 0 {
		// Keep the arena usable for callers that add sections afterwards.
		fresh := newSections()
		*ss = *fresh
		for _, s := range ss.list {
			s.owner = ss
		}
		return nil
	}
	if hdr.Shentsize != SectionHeaderSize {
		return fmt.Errorf("%w: section header size %d", ErrCorruptFile, hdr.Shentsize)
	}
	if n < 2 || hdr.Shstrndx != 1 {
		return fmt.Errorf("%w: section name table must be section 1 (got %d of %d)", ErrCorruptFile, hdr.Shstrndx, n)
	}
	if _, ok := tableBounds(buf, hdr.Shoff, n, SectionHeaderSize); !ok {
		return fmt.Errorf("%w: section header table out of bounds", ErrCorruptFile)
	}

	headers := make([]SectionHeader, n)
	for i := range headers {
		start := hdr.Shoff + uint64(i)*SectionHeaderSize
		sh, ok := decodeSectionHeader(buf[start : start+SectionHeaderSize])
		if !ok {
			return ErrCorruptFile
		}
		if sh.Type != elf.SHT_NOBITS && sh.Size > 0 {
			end := sh.Offset + sh.Size
			if end < sh.Offset || end > uint64(len(buf)) {
				return fmt.Errorf("%w: section %d out of bounds", ErrCorruptFile, i)
			}
			if rangesOverlap(sh.Offset, end, 0, FileHeaderSize) {
				return fmt.Errorf("%w: section %d overlaps file header", ErrCorruptFile, i)
			}
		}
		if sh.Link >= uint32(n) {
			return fmt.Errorf("%w: section %d links to missing section %d", ErrCorruptFile, i, sh.Link)
		}
		if (sh.Type == elf.SHT_REL || sh.Type == elf.SHT_RELA) && sh.Info >= uint32(n) {
			return fmt.Errorf("%w: section %d applies to missing section %d", ErrCorruptFile, i, sh.Info)
		}
		headers[i] = sh
	}

	nameData := sectionView(buf, headers[1])
	names := func(off uint32) string {
		if uint64(off) >= uint64(len(nameData)) {
			return ""
		}
		rest := nameData[off:]
		if end := bytes.IndexByte(rest, 0); end >= 0 {
			rest = rest[:end]
		}
		return string(rest)
	}

	ss.list = make([]*Section, 0, n)
	for i, sh := range headers {
		var s *Section
		if i == 0 {
			s = &Section{owner: ss}
			ss.list = append(ss.list, s)
		} else {
			s = ss.attach(names(sh.Name), sh.Name)
		}
		s.Type = sh.Type
		s.Flags = elf.SectionFlag(sh.Flags)
		s.Addr = sh.Addr
		s.Align = sh.AddrAlign
		s.EntSize = sh.EntSize
		s.offset = sh.Offset
		s.data = sectionView(buf, sh)
	}
	ss.names = NewStringTable(ss.list[1])

	for i, sh := range headers {
		s := ss.list[i]
		s.link = int(sh.Link)
		if sh.Type == elf.SHT_REL || sh.Type == elf.SHT_RELA {
			s.info = int(sh.Info)
		}
	}
	return nil
}

// sectionView returns the zero-copy, capacity-clipped slice of buf covering
// a section's contents.
func sectionView(buf []byte, sh SectionHeader) []byte {
	if sh.Type == elf.SHT_NOBITS || sh.Size == 0 {
		return nil
	}
	start, end := sh.Offset, sh.Offset+sh.Size
	return buf[start:end:end]
}

func (c *Container) loadSegments(buf []byte) error {
	hdr := c.Header
	n := int(hdr.Phnum)
	if n == 0 {
		return nil
	}
	if hdr.Phentsize != ProgramHeaderSize {
		return fmt.Errorf("%w: program header size %d", ErrCorruptFile, hdr.Phentsize)
	}
	if _, ok := tableBounds(buf, hdr.Phoff, n, ProgramHeaderSize); !ok {
		return fmt.Errorf("%w: program header table out of bounds", ErrCorruptFile)
	}

	for i := range n {
		start := hdr.Phoff + uint64(i)*ProgramHeaderSize
		ph, ok := decodeProgramHeader(buf[start : start+ProgramHeaderSize])
		if !ok {
			return ErrCorruptFile
		}
		sg := c.segments.Add()
		sg.Type = ph.Type
		sg.Flags = ph.Flags
		sg.VAddr = ph.VAddr
		sg.PAddr = ph.PAddr
		sg.Align = ph.Align
		sg.offset = ph.Offset
		sg.size = ph.FileSz
		if ph.FileSz == 0 {
			continue
		}
		end := ph.Offset + ph.FileSz
		for i, s := range c.sections.All() {
			if i == 0 || s.Type == elf.SHT_NOBITS {
				continue
			}
			if s.offset >= ph.Offset && s.offset+s.Size() <= end {
				sg.sections = append(sg.sections, i)
			}
		}
	}
	return nil
}
