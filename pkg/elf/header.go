package elf

import (
	"debug/elf"
	"encoding/binary"
)

const (
	FileHeaderSize    = 64
	SectionHeaderSize = 64
	ProgramHeaderSize = 56
	SymbolSize        = 24
	RelSize           = 16
	RelaSize          = 24
	NoteHeaderSize    = 12

	sectionHeaderAlign = 4
	noteAlign          = 4
)

var magic = [4]byte{0x7f, 'E', 'L', 'F'}

// FileHeader is the fixed ELF64 file header. Counts and offsets are
// recomputed by Container.Finalize and should not be set by hand.
type FileHeader struct {
	Class        elf.Class
	Data         elf.Data
	IdentVersion elf.Version
	OSABI        elf.OSABI
	ABIVersion   uint8

	Type      elf.Type
	Machine   elf.Machine
	Version   elf.Version
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

func defaultHeader() FileHeader {
	return FileHeader{
		Class:        elf.ELFCLASS64,
		Data:         elf.ELFDATA2LSB,
		IdentVersion: elf.EV_CURRENT,
		Version:      elf.EV_CURRENT,
		Ehsize:       FileHeaderSize,
		Shstrndx:     uint16(elf.SHN_UNDEF),
	}
}

// Valid reports whether the identification fields describe a file this
// package can lay out.
func (h *FileHeader) Valid() bool {
	return h.Class == elf.ELFCLASS64 && h.Data == elf.ELFDATA2LSB && h.IdentVersion == elf.EV_CURRENT
}

func encodeFileHeader(dst []byte, h FileHeader) bool {
	if len(dst) < FileHeaderSize {
		return false
	}
	le := binary.LittleEndian
	copy(dst[0:4], magic[:])
	dst[4] = byte(h.Class)
	dst[5] = byte(h.Data)
	dst[6] = byte(h.IdentVersion)
	dst[7] = byte(h.OSABI)
	dst[8] = h.ABIVersion
	clear(dst[9:16])
	le.PutUint16(dst[16:], uint16(h.Type))
	le.PutUint16(dst[18:], uint16(h.Machine))
	le.PutUint32(dst[20:], uint32(h.Version))
	le.PutUint64(dst[24:], h.Entry)
	le.PutUint64(dst[32:], h.Phoff)
	le.PutUint64(dst[40:], h.Shoff)
	le.PutUint32(dst[48:], h.Flags)
	le.PutUint16(dst[52:], h.Ehsize)
	le.PutUint16(dst[54:], h.Phentsize)
	le.PutUint16(dst[56:], h.Phnum)
	le.PutUint16(dst[58:], h.Shentsize)
	le.PutUint16(dst[60:], h.Shnum)
	le.PutUint16(dst[62:], h.Shstrndx)
	return true
}

// decodeFileHeader does not check the magic; callers do that first so the
// error can say which check failed.
func decodeFileHeader(src []byte) (FileHeader, bool) {
	if len(src) < FileHeaderSize {
		return FileHeader{}, false
	}
	le := binary.LittleEndian
	return FileHeader{
		Class:        elf.Class(src[4]),
		Data:         elf.Data(src[5]),
		IdentVersion: elf.Version(src[6]),
		OSABI:        elf.OSABI(src[7]),
		ABIVersion:   src[8],
		Type:         elf.Type(le.Uint16(src[16:])),
		Machine:      elf.Machine(le.Uint16(src[18:])),
		Version:      elf.Version(le.Uint32(src[20:])),
		Entry:        le.Uint64(src[24:]),
		Phoff:        le.Uint64(src[32:]),
		Shoff:        le.Uint64(src[40:]),
		Flags:        le.Uint32(src[48:]),
		Ehsize:       le.Uint16(src[52:]),
		Phentsize:    le.Uint16(src[54:]),
		Phnum:        le.Uint16(src[56:]),
		Shentsize:    le.Uint16(src[58:]),
		Shnum:        le.Uint16(src[60:]),
		Shstrndx:     le.Uint16(src[62:]),
	}, true
}

// SectionHeader is the on-disk Elf64_Shdr record.
type SectionHeader struct {
	Name      uint32
	Type      elf.SectionType
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

func encodeSectionHeader(dst []byte, s SectionHeader) bool {
	if len(dst) < SectionHeaderSize {
		return false
	}
	le := binary.LittleEndian
	le.PutUint32(dst[0:], s.Name)
	le.PutUint32(dst[4:], uint32(s.Type))
	le.PutUint64(dst[8:], s.Flags)
	le.PutUint64(dst[16:], s.Addr)
	le.PutUint64(dst[24:], s.Offset)
	le.PutUint64(dst[32:], s.Size)
	le.PutUint32(dst[40:], s.Link)
	le.PutUint32(dst[44:], s.Info)
	le.PutUint64(dst[48:], s.AddrAlign)
	le.PutUint64(dst[56:], s.EntSize)
	return true
}

func decodeSectionHeader(src []byte) (SectionHeader, bool) {
	if len(src) < SectionHeaderSize {
		return SectionHeader{}, false
	}
	le := binary.LittleEndian
	return SectionHeader{
		Name:      le.Uint32(src[0:]),
		Type:      elf.SectionType(le.Uint32(src[4:])),
		Flags:     le.Uint64(src[8:]),
		Addr:      le.Uint64(src[16:]),
		Offset:    le.Uint64(src[24:]),
		Size:      le.Uint64(src[32:]),
		Link:      le.Uint32(src[40:]),
		Info:      le.Uint32(src[44:]),
		AddrAlign: le.Uint64(src[48:]),
		EntSize:   le.Uint64(src[56:]),
	}, true
}

// ProgramHeader is the on-disk Elf64_Phdr record.
type ProgramHeader struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

func encodeProgramHeader(dst []byte, p ProgramHeader) bool {
	if len(dst) < ProgramHeaderSize {
		return false
	}
	le := binary.LittleEndian
	le.PutUint32(dst[0:], uint32(p.Type))
	le.PutUint32(dst[4:], uint32(p.Flags))
	le.PutUint64(dst[8:], p.Offset)
	le.PutUint64(dst[16:], p.VAddr)
	le.PutUint64(dst[24:], p.PAddr)
	le.PutUint64(dst[32:], p.FileSz)
	le.PutUint64(dst[40:], p.MemSz)
	le.PutUint64(dst[48:], p.Align)
	return true
}

func decodeProgramHeader(src []byte) (ProgramHeader, bool) {
	if len(src) < ProgramHeaderSize {
		return ProgramHeader{}, false
	}
	le := binary.LittleEndian
	return ProgramHeader{
		Type:   elf.ProgType(le.Uint32(src[0:])),
		Flags:  elf.ProgFlag(le.Uint32(src[4:])),
		Offset: le.Uint64(src[8:]),
		VAddr:  le.Uint64(src[16:]),
		PAddr:  le.Uint64(src[24:]),
		FileSz: le.Uint64(src[32:]),
		MemSz:  le.Uint64(src[40:]),
		Align:  le.Uint64(src[48:]),
	}, true
}
