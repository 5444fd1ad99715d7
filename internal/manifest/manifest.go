// Package manifest describes a pipeline binary as a YAML file that names
// its input blobs, symbols, relocations and metadata, and builds a
// finalized packager from it.
package manifest

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/abipack/pkg/abi"
)

var ErrInvalidManifest = errors.New("manifest: invalid manifest")

// Manifest is the on-disk pack description. File paths are relative to
// the manifest's directory.
type Manifest struct {
	GfxIp       string       `yaml:"gfxip"`
	Comment     string       `yaml:"comment"`
	Code        string       `yaml:"code"`
	Data        *Blob        `yaml:"data"`
	ReadOnly    *Blob        `yaml:"rodata"`
	Disassembly string       `yaml:"disassembly"`
	AmdIl       string       `yaml:"amdil"`
	LlvmIr      string       `yaml:"llvmir"`
	Sections    []Section    `yaml:"sections"`
	Symbols     []Symbol     `yaml:"symbols"`
	Relocations []Relocation `yaml:"relocations"`
	Metadata    *Metadata    `yaml:"metadata"`
}

// Blob is a data section input. Align defaults to BuildOptions.DataAlign.
type Blob struct {
	File  string `yaml:"file"`
	Align uint64 `yaml:"align"`
}

// Section is an extra named section.
type Section struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// Symbol is a pipeline symbol when Name is reserved and a generic symbol
// otherwise. Kind is func, object or notype; it defaults to func for code
// and object elsewhere.
type Symbol struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Section string `yaml:"section"`
	Value   uint64 `yaml:"value"`
	Size    uint64 `yaml:"size"`
}

type Relocation struct {
	Target string `yaml:"target"`
	Offset uint64 `yaml:"offset"`
	Symbol string `yaml:"symbol"`
	Type   string `yaml:"type"`
	Addend int64  `yaml:"addend"`
	Rela   bool   `yaml:"rela"`
}

// Load reads and strictly decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest document. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidManifest)
	}
	return &m, nil
}

// BuildOptions are defaults for values the manifest leaves out.
type BuildOptions struct {
	// DataAlign applies to data and rodata blobs without an align. Zero
	// means the minimum of 32.
	DataAlign uint64
}

// Build reads the referenced files relative to dir and returns a
// finalized packager.
func (m *Manifest) Build(dir string, opts BuildOptions) (*abi.Packager, error) {
	b := builder{dir: dir, opts: opts, p: abi.New()}
	if err := b.build(m); err != nil {
		return nil, err
	}
	return b.p, nil
}

type builder struct {
	dir  string
	opts BuildOptions
	p    *abi.Packager
}

func (b *builder) read(name string) ([]byte, error) {
	if !filepath.IsAbs(name) {
		name = filepath.Join(b.dir, name)
	}
	return os.ReadFile(name)
}

func (b *builder) build(m *Manifest) error {
	if m.GfxIp != "" {
		v, err := abi.ParseGfxIpVersion(m.GfxIp)
		if err != nil {
			return err
		}
		if err := b.p.SetGfxIpVersion(v); err != nil {
			return err
		}
	}

	code, err := b.read(m.Code)
	if err != nil {
		return err
	}
	if err := b.p.SetPipelineCode(code); err != nil {
		return err
	}

	if err := b.blob(m.Data, b.p.SetData); err != nil {
		return err
	}
	if err := b.blob(m.ReadOnly, b.p.SetReadOnlyData); err != nil {
		return err
	}
	if m.Comment != "" {
		if err := b.p.SetComment(m.Comment); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		file string
		set  func([]byte) error
	}{
		{m.Disassembly, b.p.SetDisassembly},
		{m.AmdIl, b.p.SetAmdIl},
		{m.LlvmIr, b.p.SetLlvmIr},
	} {
		if f.file == "" {
			continue
		}
		data, err := b.read(f.file)
		if err != nil {
			return err
		}
		if err := f.set(data); err != nil {
			return err
		}
	}
	for _, s := range m.Sections {
		data, err := b.read(s.File)
		if err != nil {
			return err
		}
		if err := b.p.SetGenericSection(s.Name, data); err != nil {
			return fmt.Errorf("section %s: %w", s.Name, err)
		}
	}

	for _, s := range m.Symbols {
		if err := b.symbol(s); err != nil {
			return fmt.Errorf("symbol %s: %w", s.Name, err)
		}
	}
	for i, r := range m.Relocations {
		if err := b.relocation(r); err != nil {
			return fmt.Errorf("relocation %d: %w", i, err)
		}
	}

	doc, err := m.Metadata.codeObject()
	if err != nil {
		return err
	}
	return b.p.FinalizeMetadata(doc)
}

func (b *builder) blob(in *Blob, set func([]byte, uint64) error) error {
	if in == nil {
		return nil
	}
	data, err := b.read(in.File)
	if err != nil {
		return err
	}
	align := in.Align
	if align == 0 {
		align = b.opts.DataAlign
	}
	if align == 0 {
		align = abi.DataMinBaseAddrAlignment
	}
	return set(data, align)
}

func (b *builder) symbol(s Symbol) error {
	if s.Name == "" {
		return fmt.Errorf("%w: symbol without a name", ErrInvalidManifest)
	}
	section := abi.SectionCode
	if s.Section != "" {
		st, ok := abi.ParseSectionType(s.Section)
		if !ok {
			return fmt.Errorf("%w: unknown section %q", ErrInvalidManifest, s.Section)
		}
		section = st
	}
	kind, err := symbolKind(s.Kind, section)
	if err != nil {
		return err
	}
	if t := abi.PipelineSymbolNames.Classify(s.Name); t != abi.SymbolUnknown {
		return b.p.AddPipelineSymbol(abi.PipelineSymbol{
			Type: t, EntryType: kind, Section: section, Value: s.Value, Size: s.Size,
		})
	}
	return b.p.AddGenericSymbol(abi.GenericSymbol{
		Name: s.Name, EntryType: kind, Section: section, Value: s.Value, Size: s.Size,
	})
}

func symbolKind(kind string, section abi.SectionType) (elf.SymType, error) {
	switch kind {
	case "":
		if section == abi.SectionCode {
			return elf.STT_FUNC, nil
		}
		return elf.STT_OBJECT, nil
	case "func":
		return elf.STT_FUNC, nil
	case "object":
		return elf.STT_OBJECT, nil
	case "notype":
		return elf.STT_NOTYPE, nil
	default:
		return 0, fmt.Errorf("%w: unknown symbol kind %q", ErrInvalidManifest, kind)
	}
}

func (b *builder) relocation(r Relocation) error {
	target := abi.SectionCode
	if r.Target != "" {
		st, ok := abi.ParseSectionType(r.Target)
		if !ok {
			return fmt.Errorf("%w: unknown target %q", ErrInvalidManifest, r.Target)
		}
		target = st
	}
	rt, ok := abi.ParseRelocationType(r.Type)
	if !ok {
		return fmt.Errorf("%w: unknown relocation type %q", ErrInvalidManifest, r.Type)
	}
	return b.p.AddRelocation(target, abi.Relocation{
		Offset: r.Offset,
		Symbol: r.Symbol,
		Type:   rt,
		Addend: r.Addend,
		Rela:   r.Rela,
	})
}
