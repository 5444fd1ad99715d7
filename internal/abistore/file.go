// Package abistore opens pipeline binaries from disk and writes them back.
package abistore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samcharles93/abipack/pkg/abi"
	"github.com/samcharles93/abipack/pkg/elf"
)

var (
	ErrSectionNotFound = errors.New("abistore: section not found")
	ErrSymbolNotFound  = errors.New("abistore: symbol not found")
)

// File is a pipeline binary mapped from disk.
type File struct {
	path string
	file *elf.File
	pkg  *abi.Packager
}

// SymbolInfo describes a pipeline or generic symbol by name.
type SymbolInfo struct {
	Name     string
	Pipeline bool
	Section  abi.SectionType
	Value    uint64
	Size     uint64
}

// Open maps path and parses it as a pipeline binary.
func Open(path string) (*File, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pkg, err := abi.FromContainer(ef.Container)
	if err != nil {
		_ = ef.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{path: path, file: ef, pkg: pkg}, nil
}

func (f *File) Path() string { return f.path }

// Packager returns the parsed binary. It is invalid after Close.
func (f *File) Packager() *abi.Packager { return f.pkg }

// Mapped reports whether the file is memory mapped.
func (f *File) Mapped() bool { return f != nil && f.file.Mapped() }

// Size is the file size in bytes.
func (f *File) Size() int { return len(f.file.Data) }

func (f *File) Close() error {
	if f == nil || f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.pkg = nil
	return err
}

// Section returns a copy of the named section, safe to use after Close.
func (f *File) Section(name string) ([]byte, error) {
	if f == nil || f.pkg == nil {
		return nil, ErrSectionNotFound
	}
	s := f.pkg.Container().Sections().Lookup(name)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, name)
	}
	return append([]byte(nil), s.Data()...), nil
}

// Symbol looks name up in the reserved table first and then among generic
// symbols.
func (f *File) Symbol(name string) (SymbolInfo, error) {
	if f == nil || f.pkg == nil {
		return SymbolInfo{}, ErrSymbolNotFound
	}
	if t := abi.PipelineSymbolNames.Classify(name); t != abi.SymbolUnknown {
		if sym, ok := f.pkg.PipelineSymbol(t); ok {
			return SymbolInfo{Name: name, Pipeline: true, Section: sym.Section, Value: sym.Value, Size: sym.Size}, nil
		}
		return SymbolInfo{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	sym, ok := f.pkg.GenericSymbol(name)
	if !ok {
		return SymbolInfo{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return SymbolInfo{Name: name, Section: sym.Section, Value: sym.Value, Size: sym.Size}, nil
}

// Write serialises a finalized packager to path through a temporary file
// in the same directory, so readers never see a partial binary.
func Write(path string, pkg *abi.Packager) (int, error) {
	buf, err := pkg.Bytes()
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".abipack-*")
	if err != nil {
		return 0, err
	}
	cleanup := func(err error) (int, error) {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if _, err := tmp.Write(buf); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return len(buf), nil
}
