package elf

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is a container parsed from a file on disk. Section data aliases Data.
type File struct {
	*Container
	Data    []byte
	mmapped bool
}

// Open maps an object file read-only and parses it.
// If mmap is unavailable, it falls back to ReadAt-based loading.
// The returned file must be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size64 := stat.Size()
	if size64 < FileHeaderSize || size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		c, parseErr := Load(data)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return &File{Container: c, Data: data, mmapped: true}, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	c, err := Load(data)
	if err != nil {
		return nil, err
	}
	return &File{Container: c, Data: data}, nil
}

// OpenReaderAt loads a container from a random-access reader without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*File, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	c, err := Load(data)
	if err != nil {
		return nil, err
	}
	return &File{Container: c, Data: data}, nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrCorruptFile
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

// Mapped reports whether Data is an mmap of the file.
func (f *File) Mapped() bool { return f != nil && f.mmapped }

// Close releases the mapping. Sections must not be used afterwards.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	f.Container = nil
	f.mmapped = false
	return err
}
