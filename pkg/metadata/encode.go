package metadata

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

type field struct {
	key string
	put func(e *msgpack.Encoder) error
}

func optField[T any](fs []field, key string, o Opt[T], put func(*msgpack.Encoder, T) error) []field {
	v, ok := o.Get()
	if !ok {
		return fs
	}
	return append(fs, field{key: key, put: func(e *msgpack.Encoder) error { return put(e, v) }})
}

func writeMap(e *msgpack.Encoder, fs []field) error {
	if err := e.EncodeMapLen(len(fs)); err != nil {
		return err
	}
	for _, f := range fs {
		if err := e.EncodeString(f.key); err != nil {
			return err
		}
		if err := f.put(e); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return nil
}

func putUint32(e *msgpack.Encoder, v uint32) error { return e.EncodeUint(uint64(v)) }
func putBool(e *msgpack.Encoder, v bool) error     { return e.EncodeBool(v) }
func putString(e *msgpack.Encoder, v string) error { return e.EncodeString(v) }
func putBytes(e *msgpack.Encoder, v []byte) error  { return e.EncodeBytes(v) }

func putHash(e *msgpack.Encoder, v [2]uint64) error {
	if err := e.EncodeArrayLen(2); err != nil {
		return err
	}
	for _, x := range v {
		if err := e.EncodeUint(x); err != nil {
			return err
		}
	}
	return nil
}

func putDims(e *msgpack.Encoder, v [3]uint32) error {
	if err := e.EncodeArrayLen(3); err != nil {
		return err
	}
	for _, x := range v {
		if err := e.EncodeUint(uint64(x)); err != nil {
			return err
		}
	}
	return nil
}

func putVersion(e *msgpack.Encoder, v Version) error {
	if err := e.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := e.EncodeUint(uint64(v.Major)); err != nil {
		return err
	}
	return e.EncodeUint(uint64(v.Minor))
}

func putPipelineType(e *msgpack.Encoder, v PipelineType) error {
	if v >= pipelineTypeCount {
		return fmt.Errorf("unknown pipeline type %d", v)
	}
	return e.EncodeString(v.String())
}

func putStageMask(e *msgpack.Encoder, m StageMask) error {
	stages := m.Stages()
	if err := e.EncodeArrayLen(len(stages)); err != nil {
		return err
	}
	for _, s := range stages {
		if err := e.EncodeString(s.Key()); err != nil {
			return err
		}
	}
	return nil
}

func putRaw(e *msgpack.Encoder, v msgpack.RawMessage) error { return e.Encode(v) }

func putRegisters(e *msgpack.Encoder, r Registers) error {
	groups := sortedKeys(r)
	if err := e.EncodeMapLen(len(groups)); err != nil {
		return err
	}
	for _, name := range groups {
		if err := e.EncodeString(name); err != nil {
			return err
		}
		g := r[name]
		fields := sortedKeys(g)
		if err := e.EncodeMapLen(len(fields)); err != nil {
			return err
		}
		for _, f := range fields {
			if err := e.EncodeString(f); err != nil {
				return err
			}
			if err := e.EncodeUint(uint64(g[f])); err != nil {
				return err
			}
		}
	}
	return nil
}

func putLegacyRegisters(e *msgpack.Encoder, r LegacyRegisters) error {
	addrs := sortedKeys(r)
	if err := e.EncodeMapLen(len(addrs)); err != nil {
		return err
	}
	for _, a := range addrs {
		if err := e.EncodeUint(uint64(a)); err != nil {
			return err
		}
		if err := e.EncodeUint(uint64(r[a])); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[K string | uint32, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func putShader(e *msgpack.Encoder, s Shader) error {
	var fs []field
	fs = optField(fs, KeyApiShaderHash, s.ApiShaderHash, putHash)
	fs = optField(fs, KeyHardwareMapping, s.HardwareMapping, putStageMask)
	return writeMap(e, fs)
}

func putStage(e *msgpack.Encoder, s Stage) error {
	var fs []field
	fs = optField(fs, KeyEntryPoint, s.EntryPoint, putString)
	fs = optField(fs, KeyScratchMemorySize, s.ScratchMemorySize, putUint32)
	fs = optField(fs, KeyLdsSize, s.LdsSize, putUint32)
	fs = optField(fs, KeyPerfDataBufferSize, s.PerfDataBufferSize, putUint32)
	fs = optField(fs, KeyVgprCount, s.VgprCount, putUint32)
	fs = optField(fs, KeySgprCount, s.SgprCount, putUint32)
	fs = optField(fs, KeyVgprLimit, s.VgprLimit, putUint32)
	fs = optField(fs, KeySgprLimit, s.SgprLimit, putUint32)
	fs = optField(fs, KeyThreadgroupDimensions, s.ThreadgroupDimensions, putDims)
	fs = optField(fs, KeyWavefrontSize, s.WavefrontSize, putUint32)
	fs = optField(fs, KeyUsesUavs, s.UsesUavs, putBool)
	fs = optField(fs, KeyUsesRovs, s.UsesRovs, putBool)
	fs = optField(fs, KeyWritesUavs, s.WritesUavs, putBool)
	fs = optField(fs, KeyWritesDepth, s.WritesDepth, putBool)
	fs = optField(fs, KeyUsesAppendConsume, s.UsesAppendConsume, putBool)
	fs = optField(fs, KeyMaxPrimsPerWave, s.MaxPrimsPerWave, putUint32)
	fs = optField(fs, KeyUsesPrimId, s.UsesPrimId, putBool)
	return writeMap(e, fs)
}

func putShaders(e *msgpack.Encoder, shaders [NumApiShaderTypes]Opt[Shader]) error {
	var fs []field
	for t, s := range shaders {
		fs = optField(fs, ApiShaderType(t).Key(), s, putShader)
	}
	return writeMap(e, fs)
}

func putStages(e *msgpack.Encoder, stages [NumHardwareStages]Opt[Stage]) error {
	var fs []field
	for st, s := range stages {
		fs = optField(fs, HardwareStage(st).Key(), s, putStage)
	}
	return writeMap(e, fs)
}

func anyPresent[T any](opts []Opt[T]) bool {
	return slices.ContainsFunc(opts, Opt[T].Has)
}

func putPipeline(e *msgpack.Encoder, p *Pipeline) error {
	var fs []field
	fs = optField(fs, KeyName, p.Name, putString)
	fs = optField(fs, KeyType, p.Type, putPipelineType)
	fs = optField(fs, KeyInternalPipelineHash, p.InternalPipelineHash, putHash)
	if anyPresent(p.Shaders[:]) {
		fs = append(fs, field{key: KeyShaders, put: func(e *msgpack.Encoder) error { return putShaders(e, p.Shaders) }})
	}
	if anyPresent(p.HardwareStages[:]) {
		fs = append(fs, field{key: KeyHardwareStages, put: func(e *msgpack.Encoder) error { return putStages(e, p.HardwareStages) }})
	}
	fs = optField(fs, KeyShaderFunctions, p.ShaderFunctions, putRaw)
	if p.Registers.Has() {
		fs = optField(fs, KeyRegisters, p.Registers, putRegisters)
	} else {
		fs = optField(fs, KeyRegisters, p.LegacyRegisters, putLegacyRegisters)
	}
	fs = optField(fs, KeyUserDataLimit, p.UserDataLimit, putUint32)
	fs = optField(fs, KeySpillThreshold, p.SpillThreshold, putUint32)
	fs = optField(fs, KeyUsesViewportArrayIndex, p.UsesViewportArrayIndex, putBool)
	fs = optField(fs, KeyEsGsLdsSize, p.EsGsLdsSize, putUint32)
	fs = optField(fs, KeyNggSubgroupSize, p.NggSubgroupSize, putUint32)
	fs = optField(fs, KeyNumInterpolants, p.NumInterpolants, putUint32)
	fs = optField(fs, KeyMeshScratchMemorySize, p.MeshScratchMemorySize, putUint32)
	fs = optField(fs, KeyApi, p.Api, putString)
	fs = optField(fs, KeyApiCreateInfo, p.ApiCreateInfo, putBytes)
	return writeMap(e, fs)
}

// Encode writes doc as a msgpack map. Absent fields are omitted. A document
// without a version is written with CurrentVersion.
func Encode(doc *CodeObject) ([]byte, error) {
	var buf bytes.Buffer
	e := msgpack.NewEncoder(&buf)
	version := doc.Version.Or(CurrentVersion)

	fs := []field{
		{key: KeyVersion, put: func(e *msgpack.Encoder) error { return putVersion(e, version) }},
		{key: KeyPipelines, put: func(e *msgpack.Encoder) error {
			if err := e.EncodeArrayLen(1); err != nil {
				return err
			}
			return putPipeline(e, &doc.Pipeline)
		}},
	}
	if err := writeMap(e, fs); err != nil {
		return nil, fmt.Errorf("metadata: encode: %w", err)
	}
	return buf.Bytes(), nil
}
