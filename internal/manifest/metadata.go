package manifest

import (
	"fmt"
	"strings"

	"github.com/samcharles93/abipack/pkg/metadata"
)

// Metadata is the YAML form of the pipeline metadata document. Pointer
// fields left out of the file are left out of the document.
type Metadata struct {
	Version                string                       `yaml:"version"`
	Name                   *string                      `yaml:"name"`
	Type                   string                       `yaml:"type"`
	InternalPipelineHash   []uint64                     `yaml:"internal_pipeline_hash"`
	UserDataLimit          *uint32                      `yaml:"user_data_limit"`
	SpillThreshold         *uint32                      `yaml:"spill_threshold"`
	UsesViewportArrayIndex *bool                        `yaml:"uses_viewport_array_index"`
	EsGsLdsSize            *uint32                      `yaml:"es_gs_lds_size"`
	NggSubgroupSize        *uint32                      `yaml:"ngg_subgroup_size"`
	NumInterpolants        *uint32                      `yaml:"num_interpolants"`
	MeshScratchMemorySize  *uint32                      `yaml:"mesh_scratch_memory_size"`
	Api                    *string                      `yaml:"api"`
	Registers              map[string]map[string]uint32 `yaml:"registers"`
	Shaders                map[string]Shader            `yaml:"shaders"`
	Stages                 map[string]Stage             `yaml:"hardware_stages"`
}

// Shader is keyed by API stage name, for example "compute" or "pixel".
type Shader struct {
	Hash            []uint64 `yaml:"api_shader_hash"`
	HardwareMapping []string `yaml:"hardware_mapping"`
}

// Stage is keyed by hardware stage name, for example "cs" or "ps".
type Stage struct {
	EntryPoint            *string  `yaml:"entry_point"`
	ScratchMemorySize     *uint32  `yaml:"scratch_memory_size"`
	LdsSize               *uint32  `yaml:"lds_size"`
	PerfDataBufferSize    *uint32  `yaml:"perf_data_buffer_size"`
	VgprCount             *uint32  `yaml:"vgpr_count"`
	SgprCount             *uint32  `yaml:"sgpr_count"`
	VgprLimit             *uint32  `yaml:"vgpr_limit"`
	SgprLimit             *uint32  `yaml:"sgpr_limit"`
	ThreadgroupDimensions []uint32 `yaml:"threadgroup_dimensions"`
	WavefrontSize         *uint32  `yaml:"wavefront_size"`
	UsesUavs              *bool    `yaml:"uses_uavs"`
	UsesRovs              *bool    `yaml:"uses_rovs"`
	WritesUavs            *bool    `yaml:"writes_uavs"`
	WritesDepth           *bool    `yaml:"writes_depth"`
	UsesAppendConsume     *bool    `yaml:"uses_append_consume"`
	MaxPrimsPerWave       *uint32  `yaml:"max_prims_per_wave"`
	UsesPrimId            *bool    `yaml:"uses_prim_id"`
}

func opt[T any](p *T) metadata.Opt[T] {
	if p == nil {
		return metadata.Opt[T]{}
	}
	return metadata.Some(*p)
}

func hash(v []uint64, what string) (metadata.Opt[[2]uint64], error) {
	switch len(v) {
	case 0:
		return metadata.Opt[[2]uint64]{}, nil
	case 2:
		return metadata.Some([2]uint64{v[0], v[1]}), nil
	default:
		return metadata.Opt[[2]uint64]{}, fmt.Errorf("%w: %s needs 2 words, got %d", ErrInvalidManifest, what, len(v))
	}
}

// codeObject converts m into a metadata document. A nil m yields a
// document with only the version.
func (m *Metadata) codeObject() (*metadata.CodeObject, error) {
	doc := &metadata.CodeObject{}
	if m == nil {
		return doc, nil
	}
	if m.Version != "" {
		var v metadata.Version
		if _, err := fmt.Sscanf(m.Version, "%d.%d", &v.Major, &v.Minor); err != nil {
			return nil, fmt.Errorf("%w: version %q", ErrInvalidManifest, m.Version)
		}
		doc.Version.Set(v)
	}

	pl := &doc.Pipeline
	pl.Name = opt(m.Name)
	if m.Type != "" {
		t, ok := metadata.ParsePipelineType(m.Type)
		if !ok {
			return nil, fmt.Errorf("%w: pipeline type %q", ErrInvalidManifest, m.Type)
		}
		pl.Type.Set(t)
	}
	var err error
	if pl.InternalPipelineHash, err = hash(m.InternalPipelineHash, "internal_pipeline_hash"); err != nil {
		return nil, err
	}
	pl.UserDataLimit = opt(m.UserDataLimit)
	pl.SpillThreshold = opt(m.SpillThreshold)
	pl.UsesViewportArrayIndex = opt(m.UsesViewportArrayIndex)
	pl.EsGsLdsSize = opt(m.EsGsLdsSize)
	pl.NggSubgroupSize = opt(m.NggSubgroupSize)
	pl.NumInterpolants = opt(m.NumInterpolants)
	pl.MeshScratchMemorySize = opt(m.MeshScratchMemorySize)
	pl.Api = opt(m.Api)

	if m.Registers != nil {
		regs := metadata.Registers{}
		for group, fields := range m.Registers {
			regs[group] = metadata.RegisterGroup{}
			for field, v := range fields {
				regs.Set(group, field, v)
			}
		}
		pl.Registers.Set(regs)
	}

	for name, s := range m.Shaders {
		t, ok := metadata.ApiShaderByKey("." + strings.TrimPrefix(name, "."))
		if !ok {
			return nil, fmt.Errorf("%w: api shader %q", ErrInvalidManifest, name)
		}
		var sh metadata.Shader
		if sh.ApiShaderHash, err = hash(s.Hash, "api_shader_hash"); err != nil {
			return nil, err
		}
		if s.HardwareMapping != nil {
			var mask metadata.StageMask
			for _, key := range s.HardwareMapping {
				st, err := stage(key)
				if err != nil {
					return nil, err
				}
				mask = mask.With(st)
			}
			sh.HardwareMapping.Set(mask)
		}
		pl.Shaders[t].Set(sh)
	}

	for name, s := range m.Stages {
		st, err := stage(name)
		if err != nil {
			return nil, err
		}
		out := metadata.Stage{
			EntryPoint:         opt(s.EntryPoint),
			ScratchMemorySize:  opt(s.ScratchMemorySize),
			LdsSize:            opt(s.LdsSize),
			PerfDataBufferSize: opt(s.PerfDataBufferSize),
			VgprCount:          opt(s.VgprCount),
			SgprCount:          opt(s.SgprCount),
			VgprLimit:          opt(s.VgprLimit),
			SgprLimit:          opt(s.SgprLimit),
			WavefrontSize:      opt(s.WavefrontSize),
			UsesUavs:           opt(s.UsesUavs),
			UsesRovs:           opt(s.UsesRovs),
			WritesUavs:         opt(s.WritesUavs),
			WritesDepth:        opt(s.WritesDepth),
			UsesAppendConsume:  opt(s.UsesAppendConsume),
			MaxPrimsPerWave:    opt(s.MaxPrimsPerWave),
			UsesPrimId:         opt(s.UsesPrimId),
		}
		switch len(s.ThreadgroupDimensions) {
		case 0:
		case 3:
			d := s.ThreadgroupDimensions
			out.ThreadgroupDimensions.Set([3]uint32{d[0], d[1], d[2]})
		default:
			return nil, fmt.Errorf("%w: threadgroup_dimensions needs 3 values", ErrInvalidManifest)
		}
		pl.HardwareStages[st].Set(out)
	}
	return doc, nil
}

func stage(name string) (metadata.HardwareStage, error) {
	st, ok := metadata.HardwareStageByKey("." + strings.TrimPrefix(name, "."))
	if !ok {
		return 0, fmt.Errorf("%w: hardware stage %q", ErrInvalidManifest, name)
	}
	return st, nil
}
