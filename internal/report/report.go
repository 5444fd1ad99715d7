// Package report summarises a loaded pipeline binary for display.
package report

import (
	"fmt"
	"strings"

	"github.com/samcharles93/abipack/pkg/abi"
	"github.com/samcharles93/abipack/pkg/metadata"
)

type Report struct {
	Size        int          `json:"size"`
	GfxIp       string       `json:"gfxip,omitempty"`
	Flags       uint32       `json:"flags"`
	Sections    []Section    `json:"sections"`
	Symbols     []Symbol     `json:"symbols"`
	Relocations []Relocation `json:"relocations,omitempty"`
	Metadata    *Metadata    `json:"metadata,omitempty"`
	// MetadataError is set when the note is present but cannot be decoded.
	MetadataError string `json:"metadata_error,omitempty"`
}

type Section struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
	Align  uint64 `json:"align"`
	Link   string `json:"link,omitempty"`
	Info   string `json:"info,omitempty"`
}

type Symbol struct {
	Name     string `json:"name"`
	Pipeline bool   `json:"pipeline"`
	Kind     string `json:"kind"`
	Section  string `json:"section"`
	Value    uint64 `json:"value"`
	Size     uint64 `json:"size"`
}

type Relocation struct {
	Section string `json:"section"`
	Target  string `json:"target"`
	Offset  uint64 `json:"offset"`
	Symbol  string `json:"symbol"`
	Type    string `json:"type"`
	Addend  int64  `json:"addend"`
}

// Metadata is a flattened view of the metadata document. Absent fields are
// nil and omitted.
type Metadata struct {
	Version              string                       `json:"version"`
	Name                 *string                      `json:"name,omitempty"`
	Type                 *string                      `json:"type,omitempty"`
	InternalPipelineHash *[2]uint64                   `json:"internal_pipeline_hash,omitempty"`
	UserDataLimit        *uint32                      `json:"user_data_limit,omitempty"`
	SpillThreshold       *uint32                      `json:"spill_threshold,omitempty"`
	Api                  *string                      `json:"api,omitempty"`
	Registers            map[string]map[string]uint32 `json:"registers,omitempty"`
	Shaders              map[string]Shader            `json:"shaders,omitempty"`
	Stages               map[string]Stage             `json:"hardware_stages,omitempty"`
}

type Shader struct {
	Hash            *[2]uint64 `json:"api_shader_hash,omitempty"`
	HardwareMapping []string   `json:"hardware_mapping,omitempty"`
}

type Stage struct {
	EntryPoint            *string    `json:"entry_point,omitempty"`
	ScratchMemorySize     *uint32    `json:"scratch_memory_size,omitempty"`
	LdsSize               *uint32    `json:"lds_size,omitempty"`
	VgprCount             *uint32    `json:"vgpr_count,omitempty"`
	SgprCount             *uint32    `json:"sgpr_count,omitempty"`
	ThreadgroupDimensions *[3]uint32 `json:"threadgroup_dimensions,omitempty"`
	WavefrontSize         *uint32    `json:"wavefront_size,omitempty"`
}

func ptr[T any](o metadata.Opt[T]) *T {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	return &v
}

// Build summarises p. size is the length of the serialised binary.
func Build(p *abi.Packager, size int) (*Report, error) {
	c := p.Container()
	r := &Report{Size: size, Flags: c.Header.Flags}
	if ip, ok := p.GfxIpVersion(); ok {
		r.GfxIp = ip.String()
	}

	for i, s := range c.Sections().All() {
		if i == 0 {
			continue
		}
		sec := Section{
			Index:  i,
			Name:   s.Name(),
			Type:   strings.TrimPrefix(s.Type.String(), "SHT_"),
			Offset: s.Offset(),
			Size:   s.Size(),
			Align:  s.Align,
		}
		if l := s.Link(); l != nil {
			sec.Link = l.Name()
		}
		if info := s.Info(); info != nil {
			sec.Info = info.Name()
		}
		r.Sections = append(r.Sections, sec)
	}

	for _, s := range p.PipelineSymbols() {
		r.Symbols = append(r.Symbols, Symbol{
			Name:     s.Type.String(),
			Pipeline: true,
			Kind:     symbolKind(s.EntryType.String()),
			Section:  s.Section.String(),
			Value:    s.Value,
			Size:     s.Size,
		})
	}
	for _, s := range p.GenericSymbols() {
		r.Symbols = append(r.Symbols, Symbol{
			Name:    s.Name,
			Kind:    symbolKind(s.EntryType.String()),
			Section: s.Section.String(),
			Value:   s.Value,
			Size:    s.Size,
		})
	}

	relocs, err := p.Relocations()
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	for _, rel := range relocs {
		r.Relocations = append(r.Relocations, Relocation{
			Section: rel.Section,
			Target:  rel.Target,
			Offset:  rel.Offset,
			Symbol:  rel.Symbol,
			Type:    rel.Type.String(),
			Addend:  rel.Addend,
		})
	}

	if p.RawMetadata() != nil {
		doc, err := p.Metadata()
		if err != nil {
			r.MetadataError = err.Error()
		} else {
			r.Metadata = summarise(doc, p.MetadataVersion())
		}
	}
	return r, nil
}

func symbolKind(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "STT_"))
}

func summarise(doc *metadata.CodeObject, ver metadata.Version) *Metadata {
	pl := doc.Pipeline
	m := &Metadata{
		Version:              fmt.Sprintf("%d.%d", ver.Major, ver.Minor),
		Name:                 ptr(pl.Name),
		InternalPipelineHash: ptr(pl.InternalPipelineHash),
		UserDataLimit:        ptr(pl.UserDataLimit),
		SpillThreshold:       ptr(pl.SpillThreshold),
		Api:                  ptr(pl.Api),
	}
	if t, ok := pl.Type.Get(); ok {
		s := t.String()
		m.Type = &s
	}
	if regs, ok := pl.Registers.Get(); ok {
		m.Registers = make(map[string]map[string]uint32, len(regs))
		for g, fields := range regs {
			m.Registers[g] = fields
		}
	}
	for i, o := range pl.Shaders {
		sh, ok := o.Get()
		if !ok {
			continue
		}
		if m.Shaders == nil {
			m.Shaders = map[string]Shader{}
		}
		out := Shader{Hash: ptr(sh.ApiShaderHash)}
		if mask, ok := sh.HardwareMapping.Get(); ok {
			out.HardwareMapping = []string{}
			for _, st := range mask.Stages() {
				out.HardwareMapping = append(out.HardwareMapping, st.String())
			}
		}
		m.Shaders[metadata.ApiShaderType(i).String()] = out
	}
	for i, o := range pl.HardwareStages {
		st, ok := o.Get()
		if !ok {
			continue
		}
		if m.Stages == nil {
			m.Stages = map[string]Stage{}
		}
		m.Stages[metadata.HardwareStage(i).String()] = Stage{
			EntryPoint:            ptr(st.EntryPoint),
			ScratchMemorySize:     ptr(st.ScratchMemorySize),
			LdsSize:               ptr(st.LdsSize),
			VgprCount:             ptr(st.VgprCount),
			SgprCount:             ptr(st.SgprCount),
			ThreadgroupDimensions: ptr(st.ThreadgroupDimensions),
			WavefrontSize:         ptr(st.WavefrontSize),
		}
	}
	return m
}
