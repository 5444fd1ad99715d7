package metadata

// Top level document keys.
const (
	KeyVersion   = "amdpal.version"
	KeyPipelines = "amdpal.pipelines"
)

// Pipeline keys.
const (
	KeyName                   = ".name"
	KeyType                   = ".type"
	KeyInternalPipelineHash   = ".internal_pipeline_hash"
	KeyShaders                = ".shaders"
	KeyHardwareStages         = ".hardware_stages"
	KeyShaderFunctions        = ".shader_functions"
	KeyRegisters              = ".registers"
	KeyUserDataLimit          = ".user_data_limit"
	KeySpillThreshold         = ".spill_threshold"
	KeyUsesViewportArrayIndex = ".uses_viewport_array_index"
	KeyEsGsLdsSize            = ".es_gs_lds_size"
	KeyNggSubgroupSize        = ".nggSubgroupSize"
	KeyNumInterpolants        = ".num_interpolants"
	KeyMeshScratchMemorySize  = ".mesh_scratch_memory_size"
	KeyApi                    = ".api"
	KeyApiCreateInfo          = ".api_create_info"
)

// API shader keys.
const (
	KeyApiShaderHash   = ".api_shader_hash"
	KeyHardwareMapping = ".hardware_mapping"
)

// Hardware stage keys.
const (
	KeyEntryPoint            = ".entry_point"
	KeyScratchMemorySize     = ".scratch_memory_size"
	KeyLdsSize               = ".lds_size"
	KeyPerfDataBufferSize    = ".perf_data_buffer_size"
	KeyVgprCount             = ".vgpr_count"
	KeySgprCount             = ".sgpr_count"
	KeyVgprLimit             = ".vgpr_limit"
	KeySgprLimit             = ".sgpr_limit"
	KeyThreadgroupDimensions = ".threadgroup_dimensions"
	KeyWavefrontSize         = ".wavefront_size"
	KeyUsesUavs              = ".uses_uavs"
	KeyUsesRovs              = ".uses_rovs"
	KeyWritesUavs            = ".writes_uavs"
	KeyWritesDepth           = ".writes_depth"
	KeyUsesAppendConsume     = ".uses_append_consume"
	KeyMaxPrimsPerWave       = ".max_prims_per_wave"
	KeyUsesPrimId            = ".uses_prim_id"
)
