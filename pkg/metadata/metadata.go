// Package metadata encodes and decodes the pipeline metadata dictionary
// carried in the metadata note of a pipeline binary.
//
// The wire form is a msgpack map with dotted string keys. Every optional
// field is an Opt, so a field that was never written decodes as absent
// rather than as zero.
package metadata

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrInvalidDocument  = errors.New("metadata: invalid document")
	ErrUnsupportedMajor = errors.New("metadata: unsupported major version")
)

// SupportedMajor is the newest major version Decode accepts.
const SupportedMajor = 2

// CurrentVersion is written by producers in this module.
var CurrentVersion = Version{Major: 2, Minor: 6}

// Version is the two part schema version. Minor revisions only add keys.
type Version struct {
	Major uint32
	Minor uint32
}

// Less reports whether v is older than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// CodeObject is the top level document.
type CodeObject struct {
	Version  Opt[Version]
	Pipeline Pipeline
}

// Pipeline describes the single pipeline in a binary.
type Pipeline struct {
	Name                 Opt[string]
	Type                 Opt[PipelineType]
	InternalPipelineHash Opt[[2]uint64]

	Shaders        [NumApiShaderTypes]Opt[Shader]
	HardwareStages [NumHardwareStages]Opt[Stage]

	// ShaderFunctions is kept as encoded msgpack.
	ShaderFunctions Opt[msgpack.RawMessage]

	Registers Opt[Registers]
	// LegacyRegisters holds the flat address keyed form written before
	// major version 2.
	LegacyRegisters Opt[LegacyRegisters]

	UserDataLimit          Opt[uint32]
	SpillThreshold         Opt[uint32]
	UsesViewportArrayIndex Opt[bool]
	EsGsLdsSize            Opt[uint32]
	NggSubgroupSize        Opt[uint32]
	NumInterpolants        Opt[uint32]
	MeshScratchMemorySize  Opt[uint32]
	Api                    Opt[string]
	ApiCreateInfo          Opt[[]byte]
}

// Shader is the per API shader record.
type Shader struct {
	ApiShaderHash   Opt[[2]uint64]
	HardwareMapping Opt[StageMask]
}

// Stage is the per hardware stage record.
type Stage struct {
	EntryPoint            Opt[string]
	ScratchMemorySize     Opt[uint32]
	LdsSize               Opt[uint32]
	PerfDataBufferSize    Opt[uint32]
	VgprCount             Opt[uint32]
	SgprCount             Opt[uint32]
	VgprLimit             Opt[uint32]
	SgprLimit             Opt[uint32]
	ThreadgroupDimensions Opt[[3]uint32]
	WavefrontSize         Opt[uint32]
	UsesUavs              Opt[bool]
	UsesRovs              Opt[bool]
	WritesUavs            Opt[bool]
	WritesDepth           Opt[bool]
	UsesAppendConsume     Opt[bool]
	MaxPrimsPerWave       Opt[uint32]
	UsesPrimId            Opt[bool]
}

// RegisterGroup maps field names to values within one register group.
type RegisterGroup map[string]uint32

// Registers maps group names (for example "compute" or "ps") to groups.
type Registers map[string]RegisterGroup

// Set stores value under group.field, creating the group as needed.
func (r Registers) Set(group, field string, value uint32) {
	g, ok := r[group]
	if !ok {
		g = RegisterGroup{}
		r[group] = g
	}
	g[field] = value
}

// Lookup returns group.field and whether it was present.
func (r Registers) Lookup(group, field string) (uint32, bool) {
	v, ok := r[group][field]
	return v, ok
}

// LegacyRegisters maps register addresses to values.
type LegacyRegisters map[uint32]uint32
