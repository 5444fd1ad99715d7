package elf

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
)

// Container is an ELF64 little-endian object file held in memory. Build one
// with New, or parse one with Load.
type Container struct {
	Header   FileHeader
	sections *Sections
	segments *Segments
}

// New returns an initialised, empty container.
func New() *Container {
	c := &Container{}
	c.Init()
	return c
}

// Init resets c to a defaulted header with only the null and section name
// table sections.
func (c *Container) Init() {
	c.Header = defaultHeader()
	c.sections = newSections()
	c.segments = &Segments{owner: c.sections}
}

func (c *Container) Sections() *Sections { return c.sections }
func (c *Container) Segments() *Segments { return c.segments }

type layout struct {
	offsets []uint64
	shoff   uint64
	size    uint64
}

func (c *Container) computeLayout() layout {
	l := layout{offsets: make([]uint64, c.sections.Len())}
	off := uint64(FileHeaderSize) + uint64(c.segments.Len())*ProgramHeaderSize
	for i, s := range c.sections.All() {
		if i == 0 {
			continue
		}
		off = alignUp(off, s.Align)
		l.offsets[i] = off
		if s.Type != elf.SHT_NOBITS {
			off += s.Size()
		}
	}
	l.shoff = alignUp(off, sectionHeaderAlign)
	l.size = l.shoff + uint64(c.sections.Len())*SectionHeaderSize
	return l
}

// Finalize assigns section offsets in insertion order, each rounded up to
// the section's alignment, places the section header table at the next
// 4-byte boundary and derives every segment's offset and size.
func (c *Container) Finalize() {
	l := c.computeLayout()
	for i, s := range c.sections.All() {
		s.offset = l.offsets[i]
	}

	h := &c.Header
	h.Ehsize = FileHeaderSize
	if n := c.segments.Len(); n > 0 {
		h.Phoff = FileHeaderSize
		h.Phentsize = ProgramHeaderSize
		h.Phnum = uint16(n)
	} else {
		h.Phoff, h.Phentsize, h.Phnum = 0, 0, 0
	}
	h.Shoff = l.shoff
	h.Shentsize = SectionHeaderSize
	h.Shnum = uint16(c.sections.Len())
	h.Shstrndx = uint16(c.sections.NameTable().index)

	c.segments.finalize()
}

// RequiredSize is the exact number of bytes SaveTo writes.
func (c *Container) RequiredSize() int {
	return int(c.computeLayout().size)
}

// Header counts at or above these limits need extended numbering, which is
// not written.
const (
	maxSections = int(elf.SHN_LORESERVE)
	maxSegments = 0xffff
)

func (c *Container) checkCounts() error {
	if n := c.sections.Len(); n >= maxSections {
		return fmt.Errorf("%w: %d sections, limit %d", ErrTooManyHeaders, n, maxSections-1)
	}
	if n := c.segments.Len(); n >= maxSegments {
		return fmt.Errorf("%w: %d segments, limit %d", ErrTooManyHeaders, n, maxSegments-1)
	}
	return nil
}

// SaveTo finalizes the container and serialises it into buf. Alignment
// padding between sections is left untouched, so callers wanting
// deterministic output pass a zeroed buffer.
func (c *Container) SaveTo(buf []byte) (int, error) {
	if err := c.checkCounts(); err != nil {
		return 0, err
	}
	c.Finalize()
	size := c.RequiredSize()
	if len(buf) < size {
		return 0, ErrBufferTooSmall
	}

	if !encodeFileHeader(buf[:FileHeaderSize], c.Header) {
		return 0, errors.New("elf: encode file header failed")
	}
	pos := FileHeaderSize
	for _, sg := range c.segments.list {
		if !encodeProgramHeader(buf[pos:pos+ProgramHeaderSize], sg.header()) {
			return 0, errors.New("elf: encode program header failed")
		}
		pos += ProgramHeaderSize
	}
	for _, s := range c.sections.All() {
		if s.Type == elf.SHT_NOBITS || len(s.data) == 0 {
			continue
		}
		copy(buf[s.offset:], s.data)
	}

	pos = int(c.Header.Shoff)
	for _, s := range c.sections.All() {
		if !encodeSectionHeader(buf[pos:pos+SectionHeaderSize], s.header()) {
			return 0, errors.New("elf: encode section header failed")
		}
		pos += SectionHeaderSize
	}
	return pos, nil
}

// Bytes serialises the container into a new zeroed buffer.
func (c *Container) Bytes() ([]byte, error) {
	if err := c.checkCounts(); err != nil {
		return nil, err
	}
	buf := make([]byte, c.RequiredSize())
	n, err := c.SaveTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WriteTo implements io.WriterTo.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	buf, err := c.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), err
}
