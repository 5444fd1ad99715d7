package metadata

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// readMap calls fn for every string key of the map at the decoder's
// position. fn must consume the value; keys it does not recognize are
// skipped by returning false.
func readMap(d *msgpack.Decoder, fn func(key string) (bool, error)) error {
	n, err := d.DecodeMapLen()
	if err != nil {
		return err
	}
	for range max(n, 0) {
		code, err := d.PeekCode()
		if err != nil {
			return err
		}
		if !msgpcode.IsString(code) {
			// Non-string keys carry nothing we understand.
			if err := d.Skip(); err != nil {
				return err
			}
			if err := d.Skip(); err != nil {
				return err
			}
			continue
		}
		key, err := d.DecodeString()
		if err != nil {
			return err
		}
		handled, err := fn(key)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if !handled {
			if err := d.Skip(); err != nil {
				return err
			}
		}
	}
	return nil
}

func get[T any](d *msgpack.Decoder, dst *Opt[T], read func(*msgpack.Decoder) (T, error)) (bool, error) {
	v, err := read(d)
	if err != nil {
		return true, err
	}
	dst.Set(v)
	return true, nil
}

func readUint32(d *msgpack.Decoder) (uint32, error) { return d.DecodeUint32() }
func readBool(d *msgpack.Decoder) (bool, error)     { return d.DecodeBool() }
func readString(d *msgpack.Decoder) (string, error) { return d.DecodeString() }
func readBytes(d *msgpack.Decoder) ([]byte, error)  { return d.DecodeBytes() }

func readRaw(d *msgpack.Decoder) (msgpack.RawMessage, error) { return d.DecodeRaw() }

func readFixedArray(d *msgpack.Decoder, want int, elem func(i int) error) error {
	n, err := d.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("%w: array of %d, want %d", ErrInvalidDocument, n, want)
	}
	for i := range n {
		if err := elem(i); err != nil {
			return err
		}
	}
	return nil
}

func readHash(d *msgpack.Decoder) ([2]uint64, error) {
	var v [2]uint64
	err := readFixedArray(d, 2, func(i int) (err error) {
		v[i], err = d.DecodeUint64()
		return err
	})
	return v, err
}

func readDims(d *msgpack.Decoder) ([3]uint32, error) {
	var v [3]uint32
	err := readFixedArray(d, 3, func(i int) (err error) {
		v[i], err = d.DecodeUint32()
		return err
	})
	return v, err
}

func readVersion(d *msgpack.Decoder) (Version, error) {
	var v Version
	err := readFixedArray(d, 2, func(i int) (err error) {
		if i == 0 {
			v.Major, err = d.DecodeUint32()
		} else {
			v.Minor, err = d.DecodeUint32()
		}
		return err
	})
	return v, err
}

// readStageMask ignores stage names it does not know.
func readStageMask(d *msgpack.Decoder) (StageMask, error) {
	n, err := d.DecodeArrayLen()
	if err != nil {
		return 0, err
	}
	var m StageMask
	for range max(n, 0) {
		name, err := d.DecodeString()
		if err != nil {
			return 0, err
		}
		if s, ok := HardwareStageByKey(name); ok {
			m = m.With(s)
		}
	}
	return m, nil
}

// readRegisters accepts both the grouped form and the flat address form.
// Each entry is routed by its key type, so a mixed map fills both.
func readRegisters(d *msgpack.Decoder, p *Pipeline) error {
	n, err := d.DecodeMapLen()
	if err != nil {
		return err
	}
	if n == 0 {
		p.Registers.Set(Registers{})
		return nil
	}
	for range max(n, 0) {
		code, err := d.PeekCode()
		if err != nil {
			return err
		}
		if msgpcode.IsString(code) {
			name, err := d.DecodeString()
			if err != nil {
				return err
			}
			group := RegisterGroup{}
			err = readMap(d, func(f string) (bool, error) {
				v, err := d.DecodeUint32()
				group[f] = v
				return true, err
			})
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if !p.Registers.Has() {
				p.Registers.Set(Registers{})
			}
			regs, _ := p.Registers.Get()
			regs[name] = group
			continue
		}
		addr, err := d.DecodeUint32()
		if err != nil {
			return err
		}
		v, err := d.DecodeUint32()
		if err != nil {
			return err
		}
		if !p.LegacyRegisters.Has() {
			p.LegacyRegisters.Set(LegacyRegisters{})
		}
		legacy, _ := p.LegacyRegisters.Get()
		legacy[addr] = v
	}
	return nil
}

func readShader(d *msgpack.Decoder) (Shader, error) {
	var s Shader
	err := readMap(d, func(key string) (bool, error) {
		switch key {
		case KeyApiShaderHash:
			return get(d, &s.ApiShaderHash, readHash)
		case KeyHardwareMapping:
			return get(d, &s.HardwareMapping, readStageMask)
		}
		return false, nil
	})
	return s, err
}

func readStage(d *msgpack.Decoder) (Stage, error) {
	var s Stage
	err := readMap(d, func(key string) (bool, error) {
		switch key {
		case KeyEntryPoint:
			return get(d, &s.EntryPoint, readString)
		case KeyScratchMemorySize:
			return get(d, &s.ScratchMemorySize, readUint32)
		case KeyLdsSize:
			return get(d, &s.LdsSize, readUint32)
		case KeyPerfDataBufferSize:
			return get(d, &s.PerfDataBufferSize, readUint32)
		case KeyVgprCount:
			return get(d, &s.VgprCount, readUint32)
		case KeySgprCount:
			return get(d, &s.SgprCount, readUint32)
		case KeyVgprLimit:
			return get(d, &s.VgprLimit, readUint32)
		case KeySgprLimit:
			return get(d, &s.SgprLimit, readUint32)
		case KeyThreadgroupDimensions:
			return get(d, &s.ThreadgroupDimensions, readDims)
		case KeyWavefrontSize:
			return get(d, &s.WavefrontSize, readUint32)
		case KeyUsesUavs:
			return get(d, &s.UsesUavs, readBool)
		case KeyUsesRovs:
			return get(d, &s.UsesRovs, readBool)
		case KeyWritesUavs:
			return get(d, &s.WritesUavs, readBool)
		case KeyWritesDepth:
			return get(d, &s.WritesDepth, readBool)
		case KeyUsesAppendConsume:
			return get(d, &s.UsesAppendConsume, readBool)
		case KeyMaxPrimsPerWave:
			return get(d, &s.MaxPrimsPerWave, readUint32)
		case KeyUsesPrimId:
			return get(d, &s.UsesPrimId, readBool)
		}
		return false, nil
	})
	return s, err
}

func readPipeline(d *msgpack.Decoder, p *Pipeline) error {
	return readMap(d, func(key string) (bool, error) {
		switch key {
		case KeyName:
			return get(d, &p.Name, readString)
		case KeyType:
			name, err := d.DecodeString()
			if err != nil {
				return true, err
			}
			// An unknown type from a newer producer stays absent.
			if t, ok := ParsePipelineType(name); ok {
				p.Type.Set(t)
			}
			return true, nil
		case KeyInternalPipelineHash:
			return get(d, &p.InternalPipelineHash, readHash)
		case KeyShaders:
			return true, readMap(d, func(k string) (bool, error) {
				t, ok := ApiShaderByKey(k)
				if !ok {
					return false, nil
				}
				return get(d, &p.Shaders[t], readShader)
			})
		case KeyHardwareStages:
			return true, readMap(d, func(k string) (bool, error) {
				st, ok := HardwareStageByKey(k)
				if !ok {
					return false, nil
				}
				return get(d, &p.HardwareStages[st], readStage)
			})
		case KeyShaderFunctions:
			return get(d, &p.ShaderFunctions, readRaw)
		case KeyRegisters:
			return true, readRegisters(d, p)
		case KeyUserDataLimit:
			return get(d, &p.UserDataLimit, readUint32)
		case KeySpillThreshold:
			return get(d, &p.SpillThreshold, readUint32)
		case KeyUsesViewportArrayIndex:
			return get(d, &p.UsesViewportArrayIndex, readBool)
		case KeyEsGsLdsSize:
			return get(d, &p.EsGsLdsSize, readUint32)
		case KeyNggSubgroupSize:
			return get(d, &p.NggSubgroupSize, readUint32)
		case KeyNumInterpolants:
			return get(d, &p.NumInterpolants, readUint32)
		case KeyMeshScratchMemorySize:
			return get(d, &p.MeshScratchMemorySize, readUint32)
		case KeyApi:
			return get(d, &p.Api, readString)
		case KeyApiCreateInfo:
			return get(d, &p.ApiCreateInfo, readBytes)
		}
		return false, nil
	})
}

// Decode parses an encoded document. Only the first pipeline is read.
// Unknown keys at any level are skipped.
func Decode(blob []byte) (*CodeObject, error) {
	d := msgpack.NewDecoder(bytes.NewReader(blob))
	doc := &CodeObject{}
	err := readMap(d, func(key string) (bool, error) {
		switch key {
		case KeyVersion:
			return get(d, &doc.Version, readVersion)
		case KeyPipelines:
			n, err := d.DecodeArrayLen()
			if err != nil {
				return true, err
			}
			for i := range max(n, 0) {
				if i == 0 {
					if err := readPipeline(d, &doc.Pipeline); err != nil {
						return true, err
					}
					continue
				}
				if err := d.Skip(); err != nil {
					return true, err
				}
			}
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if v, ok := doc.Version.Get(); ok && v.Major > SupportedMajor {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedMajor, v.Major, v.Minor)
	}
	return doc, nil
}

// DecodeVersion reads only the version of an encoded document.
func DecodeVersion(blob []byte) (Version, bool, error) {
	d := msgpack.NewDecoder(bytes.NewReader(blob))
	var version Opt[Version]
	err := readMap(d, func(key string) (bool, error) {
		if key != KeyVersion {
			return false, nil
		}
		return get(d, &version, readVersion)
	})
	if err != nil {
		return Version{}, false, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	v, ok := version.Get()
	return v, ok, nil
}
