package tgengine

import (
	"encoding/binary"
	"math"
	"slices"
)

const (
	TransformUniformsSystemName = "transform_uniforms"

	// MatrixStride is the packed size of one GlobalMatrix.
	MatrixStride = 16 * 4
)

// Drawable marks entities whose GlobalMatrix is handed to the renderer.
type Drawable struct{}

// TransformUniforms holds the per-frame GPU payload: one column-major
// float32 matrix per Drawable, little-endian, ordered by entity id.
type TransformUniforms struct {
	Entities []EntityId
	Data     []byte
	// Version increases every time Data is repacked.
	Version uint64
}

// Index returns the slot of entity in Data, or -1.
func (u *TransformUniforms) Index(entity EntityId) int {
	i, ok := slices.BinarySearch(u.Entities, entity)
	if !ok {
		return -1
	}
	return i
}

type RenderModule struct{}

func (RenderModule) Install(app *App, cmd *Commands) {
	if _, ok := Resource[TransformUniforms](app); !ok {
		cmd.AddResources(&TransformUniforms{})
	}
	if app.Schedule(Render).Has(TransformUniformsSystemName) {
		return
	}
	app.UseSystem(
		SystemOf(&TransformUniformsSystem{}).
			InStage(Render).
			Named(TransformUniformsSystemName),
	)
}

// TransformUniformsSystem repacks TransformUniforms once per frame.
type TransformUniformsSystem struct {
	entries []uniformEntry
}

type uniformEntry struct {
	entity EntityId
	global *GlobalMatrix
}

func (s *TransformUniformsSystem) Access() Access {
	return NewAccess().Read(GlobalMatrix{}, Drawable{}).Write(TransformUniforms{})
}

func (s *TransformUniformsSystem) Run(cmd *Commands) {
	uniforms, ok := Resource[TransformUniforms](cmd.App())
	if !ok {
		return
	}

	s.entries = s.entries[:0]
	MakeQuery1[GlobalMatrix](cmd).With(Drawable{}).Map(func(eid EntityId, global *GlobalMatrix) bool {
		s.entries = append(s.entries, uniformEntry{entity: eid, global: global})
		return true
	})
	slices.SortFunc(s.entries, func(a, b uniformEntry) int {
		switch {
		case a.entity < b.entity:
			return -1
		case a.entity > b.entity:
			return 1
		}
		return 0
	})

	uniforms.Entities = uniforms.Entities[:0]
	uniforms.Data = slices.Grow(uniforms.Data[:0], len(s.entries)*MatrixStride)
	for _, e := range s.entries {
		uniforms.Entities = append(uniforms.Entities, e.entity)
		uniforms.Data = appendMatrix(uniforms.Data, e.global)
	}
	uniforms.Version++
}

// mgl32.Mat4 is already column-major.
func appendMatrix(dst []byte, m *GlobalMatrix) []byte {
	for _, v := range m.Matrix {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
