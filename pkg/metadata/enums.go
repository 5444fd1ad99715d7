package metadata

import "strings"

// PipelineType is the shape of the graphics or compute pipeline.
type PipelineType uint8

const (
	PipelineVsPs PipelineType = iota
	PipelineGs
	PipelineCs
	PipelineNgg
	PipelineTess
	PipelineGsTess
	PipelineNggTess
	PipelineMesh
	PipelineTaskMesh
	pipelineTypeCount
)

var pipelineTypeNames = [pipelineTypeCount]string{
	PipelineVsPs:     "VsPs",
	PipelineGs:       "Gs",
	PipelineCs:       "Cs",
	PipelineNgg:      "Ngg",
	PipelineTess:     "Tess",
	PipelineGsTess:   "GsTess",
	PipelineNggTess:  "NggTess",
	PipelineMesh:     "Mesh",
	PipelineTaskMesh: "TaskMesh",
}

func (t PipelineType) String() string {
	if t >= pipelineTypeCount {
		return "unknown"
	}
	return pipelineTypeNames[t]
}

// ParsePipelineType maps a wire string to its pipeline type.
func ParsePipelineType(s string) (PipelineType, bool) {
	for i, name := range pipelineTypeNames {
		if name == s {
			return PipelineType(i), true
		}
	}
	return 0, false
}

// ApiShaderType is a shader stage as the client API sees it.
type ApiShaderType uint8

const (
	ApiShaderCs ApiShaderType = iota
	ApiShaderTask
	ApiShaderVs
	ApiShaderHs
	ApiShaderDs
	ApiShaderGs
	ApiShaderMesh
	ApiShaderPs
	NumApiShaderTypes
)

var apiShaderKeys = [NumApiShaderTypes]string{
	ApiShaderCs:   ".compute",
	ApiShaderTask: ".task",
	ApiShaderVs:   ".vertex",
	ApiShaderHs:   ".hull",
	ApiShaderDs:   ".domain",
	ApiShaderGs:   ".geometry",
	ApiShaderMesh: ".mesh",
	ApiShaderPs:   ".pixel",
}

// Key is the dictionary key of the shader under .shaders.
func (t ApiShaderType) Key() string {
	if t >= NumApiShaderTypes {
		return ""
	}
	return apiShaderKeys[t]
}

func (t ApiShaderType) String() string { return strings.TrimPrefix(t.Key(), ".") }

// ApiShaderByKey maps ".compute" style keys to API shader types.
func ApiShaderByKey(key string) (ApiShaderType, bool) {
	for i, k := range apiShaderKeys {
		if k == key {
			return ApiShaderType(i), true
		}
	}
	return 0, false
}

// HardwareStage is a hardware shader stage.
type HardwareStage uint8

const (
	StageLs HardwareStage = iota
	StageHs
	StageEs
	StageGs
	StageVs
	StagePs
	StageCs
	NumHardwareStages
)

var hardwareStageKeys = [NumHardwareStages]string{
	StageLs: ".ls",
	StageHs: ".hs",
	StageEs: ".es",
	StageGs: ".gs",
	StageVs: ".vs",
	StagePs: ".ps",
	StageCs: ".cs",
}

// Key is the dictionary key of the stage under .hardware_stages, also used
// in hardware mapping lists.
func (s HardwareStage) Key() string {
	if s >= NumHardwareStages {
		return ""
	}
	return hardwareStageKeys[s]
}

func (s HardwareStage) String() string { return strings.TrimPrefix(s.Key(), ".") }

// HardwareStageByKey maps ".vs" style keys to stages.
func HardwareStageByKey(key string) (HardwareStage, bool) {
	for i, k := range hardwareStageKeys {
		if k == key {
			return HardwareStage(i), true
		}
	}
	return 0, false
}

// StageMask is a set of hardware stages.
type StageMask uint8

func MaskOf(stages ...HardwareStage) StageMask {
	var m StageMask
	for _, s := range stages {
		m = m.With(s)
	}
	return m
}

func (m StageMask) Has(s HardwareStage) bool { return s < NumHardwareStages && m&(1<<s) != 0 }

func (m StageMask) With(s HardwareStage) StageMask {
	if s >= NumHardwareStages {
		return m
	}
	return m | 1<<s
}

// Stages lists the members of m in stage order.
func (m StageMask) Stages() []HardwareStage {
	var out []HardwareStage
	for s := range NumHardwareStages {
		if m.Has(s) {
			out = append(out, s)
		}
	}
	return out
}
