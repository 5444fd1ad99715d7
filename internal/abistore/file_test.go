package abistore

import (
	"bytes"
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/abipack/pkg/abi"
	"github.com/samcharles93/abipack/pkg/metadata"
)

func writeTestBinary(t *testing.T, path string) {
	t.Helper()

	p := abi.New()
	if err := p.SetPipelineCode(bytes.Repeat([]byte{0xAA}, 32)); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := p.AddPipelineSymbol(abi.PipelineSymbol{Type: abi.SymbolCsMainEntry, EntryType: elf.STT_FUNC, Section: abi.SectionCode, Size: 32}); err != nil {
		t.Fatalf("add symbol: %v", err)
	}
	if err := p.AddGenericSymbol(abi.GenericSymbol{Name: "helper", EntryType: elf.STT_FUNC, Section: abi.SectionCode, Value: 16, Size: 16}); err != nil {
		t.Fatalf("add symbol: %v", err)
	}
	if err := p.FinalizeMetadata(&metadata.CodeObject{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	n, err := Write(path, p)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != p.RequiredSize() {
		t.Fatalf("wrote %d bytes, want %d", n, p.RequiredSize())
	}
}

func TestOpenAndLookup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.elf")
	writeTestBinary(t, path)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			t.Fatalf("close: %v", cerr)
		}
	}()

	text, err := f.Section(".text")
	if err != nil {
		t.Fatalf("section: %v", err)
	}
	if !bytes.Equal(text, bytes.Repeat([]byte{0xAA}, 32)) {
		t.Fatalf("text mismatch")
	}

	sym, err := f.Symbol("_amdgpu_cs_main")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	if !sym.Pipeline || sym.Size != 32 || sym.Section != abi.SectionCode {
		t.Fatalf("pipeline symbol: %+v", sym)
	}
	helper, err := f.Symbol("helper")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	if helper.Pipeline || helper.Value != 16 {
		t.Fatalf("generic symbol: %+v", helper)
	}
}

func TestLookupMisses(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.elf")
	writeTestBinary(t, path)
	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Section(".data"); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
	if _, err := f.Symbol("_amdgpu_ps_main"); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("expected ErrSymbolNotFound, got %v", err)
	}
	if _, err := f.Symbol("nope"); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("expected ErrSymbolNotFound, got %v", err)
	}
}

func TestOpenRejectsNonPipeline(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.bin")
	if err := os.WriteFile(path, bytes.Repeat([]byte{1}, 128), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening a non-ELF file")
	}
}

func TestWriteRequiresFinalize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.elf")
	if _, err := Write(path, abi.New()); !errors.Is(err, abi.ErrNotFinalized) {
		t.Fatalf("expected ErrNotFinalized, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("no file should be written: %v", err)
	}
}
