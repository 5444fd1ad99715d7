package elf

import (
	"encoding/binary"
	"fmt"
)

// Note is one entry of a SHT_NOTE section.
type Note struct {
	Type uint32
	Name string
	Desc []byte
}

// NoteTable views a note section as variable length entries. Offsets of the
// entries are indexed once at construction.
type NoteTable struct {
	sec     *Section
	offsets []int
}

// NewNoteTable scans sec and fails if an entry runs past the section end.
func NewNoteTable(sec *Section) (*NoteTable, error) {
	t := &NoteTable{sec: sec}
	data := sec.data
	le := binary.LittleEndian
	for off := 0; off < len(data); {
		if len(data)-off < NoteHeaderSize {
			return nil, fmt.Errorf("%w: note header at %d truncated", ErrCorruptFile, off)
		}
		namesz := uint64(le.Uint32(data[off:]))
		descsz := uint64(le.Uint32(data[off+4:]))
		size := uint64(NoteHeaderSize) + alignUp(namesz, noteAlign) + alignUp(descsz, noteAlign)
		if size > uint64(len(data)-off) {
			// The final entry's descriptor padding may be absent.
			if uint64(NoteHeaderSize)+alignUp(namesz, noteAlign)+descsz != uint64(len(data)-off) {
				return nil, fmt.Errorf("%w: note at %d overruns section", ErrCorruptFile, off)
			}
			size = uint64(len(data) - off)
		}
		t.offsets = append(t.offsets, off)
		off += int(size)
	}
	return t, nil
}

// Add appends n and returns its index.
func (t *NoteTable) Add(n Note) int {
	namesz := 0
	if n.Name != "" {
		namesz = len(n.Name) + 1
	}
	size := NoteHeaderSize + int(alignUp(uint64(namesz), noteAlign)) + int(alignUp(uint64(len(n.Desc)), noteAlign))
	off := len(t.sec.data)
	buf := t.sec.AppendUninitialized(size)
	clear(buf)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(namesz))
	le.PutUint32(buf[4:], uint32(len(n.Desc)))
	le.PutUint32(buf[8:], n.Type)
	copy(buf[NoteHeaderSize:], n.Name)
	copy(buf[NoteHeaderSize+int(alignUp(uint64(namesz), noteAlign)):], n.Desc)
	t.offsets = append(t.offsets, off)
	return len(t.offsets) - 1
}

// Get returns note i. Desc aliases the section data.
func (t *NoteTable) Get(i int) (Note, error) {
	if i < 0 || i >= len(t.offsets) {
		return Note{}, fmt.Errorf("%w: note %d of %d", ErrIndexOutOfRange, i, len(t.offsets))
	}
	data := t.sec.data[t.offsets[i]:]
	le := binary.LittleEndian
	namesz := int(le.Uint32(data[0:]))
	descsz := int(le.Uint32(data[4:]))
	name := data[NoteHeaderSize : NoteHeaderSize+namesz]
	if namesz > 0 && name[namesz-1] == 0 {
		name = name[:namesz-1]
	}
	descOff := NoteHeaderSize + int(alignUp(uint64(namesz), noteAlign))
	return Note{
		Type: le.Uint32(data[8:]),
		Name: string(name),
		Desc: data[descOff : descOff+descsz : descOff+descsz],
	}, nil
}

func (t *NoteTable) Len() int { return len(t.offsets) }

func (t *NoteTable) Section() *Section { return t.sec }
