package tgengine

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	TransformSyncSystemName = "transform_sync"
	TransformSystemName     = "transform"

	DefaultMaxHierarchyDepth = 4096
)

// LocalMatrix is the transform relative to the parent, or to world space for
// roots.
type LocalMatrix struct {
	Matrix mgl32.Mat4
}

// GlobalMatrix is the world-space transform derived by TransformSystem.
type GlobalMatrix struct {
	Matrix mgl32.Mat4
}

// Transform is an optional authoring helper. TransformSyncSystem rebuilds
// LocalMatrix from it whenever it changes.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix returns T * R * S.
func (t Transform) Matrix() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())

	return translate.Mul4(rotate).Mul4(scale)
}

// TransformBundle returns the spatial components for a new entity, with the
// global matrix seeded from the local one.
func TransformBundle(local mgl32.Mat4) []any {
	return []any{&LocalMatrix{Matrix: local}, &GlobalMatrix{Matrix: local}}
}

type TransformModule struct {
	// MaxDepth bounds hierarchy depth; exceeding it panics. Zero means
	// DefaultMaxHierarchyDepth.
	MaxDepth int
}

func (mod TransformModule) Install(app *App, cmd *Commands) {
	HierarchyModule{}.Install(app, cmd)

	maxDepth := mod.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxHierarchyDepth
	}

	app.UseSystem(
		SystemOf(&TransformSyncSystem{}).
			InStage(PostUpdate).
			Named(TransformSyncSystemName),
	)
	app.UseSystem(
		SystemOf(&TransformSystem{MaxDepth: maxDepth}).
			InStage(PostUpdate).
			Named(TransformSystemName).
			After(HierarchySystemName, TransformSyncSystemName),
	)
}

// TransformSyncSystem copies changed Transform values into LocalMatrix.
type TransformSyncSystem struct {
	reader *ReaderId
}

func (s *TransformSyncSystem) Setup(cmd *Commands) {
	reader := RegisterReader[Transform](cmd)
	s.reader = &reader
}

func (s *TransformSyncSystem) Access() Access {
	return NewAccess().Read(Transform{}).Write(LocalMatrix{})
}

func (s *TransformSyncSystem) Run(cmd *Commands) {
	transforms := MakeReadStorage[Transform](cmd)
	locals := MakeWriteStorage[LocalMatrix](cmd)

	for _, event := range ReadEvents[Transform](cmd, s.reader) {
		if event.Kind == Removed {
			continue
		}
		tr, ok := transforms.Get(event.Entity)
		if !ok {
			continue
		}
		if local, ok := locals.GetMut(event.Entity); ok {
			local.Matrix = tr.Matrix()
		} else {
			cmd.AddComponents(event.Entity, &LocalMatrix{Matrix: tr.Matrix()})
		}
	}
}

// TransformSystem recomputes GlobalMatrix below every entity whose
// LocalMatrix or Parent changed since its last run.
//
// Each dirty entity climbs Parent to its highest dirty ancestor, and the
// walk starts there, seeded with the stored GlobalMatrix of that node's
// parent. A node is recomputed when it is dirty itself or an ancestor on its
// path was recomputed; other nodes keep their stored GlobalMatrix and are
// not written. An entity whose Parent is itself or a despawned entity is
// treated as a root. Writes go through Commands, so the walk reads
// GlobalMatrix values from before this pass.
type TransformSystem struct {
	MaxDepth int

	localReader  *ReaderId
	parentReader *ReaderId
	dirty        *bitset.BitSet
	visited      *bitset.BitSet
	stack        []propagationFrame
}

type propagationFrame struct {
	entity       EntityId
	parentGlobal mgl32.Mat4
	root         bool
	changed      bool
	depth        int
}

func (s *TransformSystem) Setup(cmd *Commands) {
	localReader := RegisterReader[LocalMatrix](cmd)
	parentReader := RegisterReader[Parent](cmd)
	s.localReader = &localReader
	s.parentReader = &parentReader
	s.dirty = bitset.New(64)
	s.visited = bitset.New(64)
	if s.MaxDepth <= 0 {
		s.MaxDepth = DefaultMaxHierarchyDepth
	}
}

func (s *TransformSystem) Access() Access {
	return NewAccess().Read(LocalMatrix{}, GlobalMatrix{}, Parent{}, Children{})
}

func (s *TransformSystem) Run(cmd *Commands) {
	s.dirty.ClearAll()
	for _, event := range ReadEvents[LocalMatrix](cmd, s.localReader) {
		if event.Kind != Removed {
			s.dirty.Set(uint(event.Entity))
		}
	}
	// Any Parent change, removal included, moves the entity to another
	// parent's space.
	for _, event := range ReadEvents[Parent](cmd, s.parentReader) {
		s.dirty.Set(uint(event.Entity))
	}
	if s.dirty.None() {
		return
	}

	parents := MakeReadStorage[Parent](cmd)
	s.visited.ClearAll()
	var starts []EntityId
	for i, ok := s.dirty.NextSet(0); ok; i, ok = s.dirty.NextSet(i + 1) {
		start := s.walkStart(cmd, parents, EntityId(i))
		if s.visited.Test(uint(start)) {
			continue
		}
		s.visited.Set(uint(start))
		starts = append(starts, start)
	}

	written := 0
	for _, start := range starts {
		written += s.propagate(cmd, parents, start)
	}
	cmd.app.Logger().Debugf("transform: %d subtrees walked, %d global matrices staged", len(starts), written)
}

// parentOf returns eid's parent, or false when eid is a root. Self links and
// links to despawned entities count as roots.
func parentOf(cmd *Commands, parents ReadStorage[Parent], eid EntityId) (EntityId, bool) {
	parent, ok := parents.Get(eid)
	if !ok || parent.Entity == eid || !cmd.HasEntity(parent.Entity) {
		return 0, false
	}
	return parent.Entity, true
}

// walkStart returns the highest dirty node on the path from eid to its root.
func (s *TransformSystem) walkStart(cmd *Commands, parents ReadStorage[Parent], eid EntityId) EntityId {
	start := eid
	for depth := 0; ; depth++ {
		if depth > s.MaxDepth {
			panic(fmt.Sprintf("transform: entity %v is deeper than %d levels; Parent cycle?", start, s.MaxDepth))
		}
		parent, ok := parentOf(cmd, parents, eid)
		if !ok {
			return start
		}
		eid = parent
		if s.dirty.Test(uint(eid)) {
			start = eid
		}
	}
}

func (s *TransformSystem) propagate(cmd *Commands, parents ReadStorage[Parent], start EntityId) int {
	locals := MakeReadStorage[LocalMatrix](cmd)
	globals := MakeReadStorage[GlobalMatrix](cmd)
	children := MakeReadStorage[Children](cmd)

	first := propagationFrame{entity: start, root: true, changed: true}
	if parent, ok := parentOf(cmd, parents, start); ok {
		parentGlobal, ok := globals.Get(parent)
		if !ok {
			return 0
		}
		first.root = false
		first.parentGlobal = parentGlobal.Matrix
	}

	written := 0
	s.stack = append(s.stack[:0], first)
	for len(s.stack) > 0 {
		frame := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]

		if frame.depth > s.MaxDepth {
			panic(fmt.Sprintf("transform: hierarchy under %v is deeper than %d levels; Parent cycle?", start, s.MaxDepth))
		}

		local, okLocal := locals.Get(frame.entity)
		global, okGlobal := globals.Get(frame.entity)
		if !okLocal || !okGlobal {
			continue
		}

		changed := frame.changed || s.dirty.Test(uint(frame.entity))
		matrix := global.Matrix
		if changed {
			if frame.root {
				matrix = local.Matrix
			} else {
				matrix = frame.parentGlobal.Mul4(local.Matrix)
			}
			cmd.AddComponents(frame.entity, &GlobalMatrix{Matrix: matrix})
			written++
		}

		s.pushChildren(children, parents, frame.entity, matrix, changed, frame.depth+1)
	}
	return written
}

// pushChildren pushes in reverse so children pop in list order. Entries
// whose Parent no longer names eid are left out.
func (s *TransformSystem) pushChildren(children ReadStorage[Children], parents ReadStorage[Parent], eid EntityId, global mgl32.Mat4, changed bool, depth int) {
	list, ok := children.Get(eid)
	if !ok {
		return
	}
	for i := len(list.Entities) - 1; i >= 0; i-- {
		if list.Entities[i] == eid {
			continue
		}
		if parent, ok := parents.Get(list.Entities[i]); !ok || parent.Entity != eid {
			continue
		}
		s.stack = append(s.stack, propagationFrame{
			entity:       list.Entities[i],
			parentGlobal: global,
			changed:      changed,
			depth:        depth,
		})
	}
}
