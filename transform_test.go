package tgengine

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-5

func newTransformApp(maxDepth int) (*App, *Commands) {
	app := NewApp().UseModules(TransformModule{MaxDepth: maxDepth})
	return app, app.Commands()
}

// spawnNode spawns an entity with a local matrix, a zeroed global matrix and
// an optional parent.
func spawnNode(cmd *Commands, local mgl32.Mat4, parent *EntityId) EntityId {
	comps := []any{&LocalMatrix{Matrix: local}, &GlobalMatrix{}}
	if parent != nil {
		comps = append(comps, &Parent{Entity: *parent})
	}
	return cmd.AddEntity(comps...)
}

func globalOf(t *testing.T, app *App, eid EntityId) mgl32.Mat4 {
	t.Helper()
	global, ok := get[GlobalMatrix](app, eid)
	require.True(t, ok, "entity %v has no GlobalMatrix", eid)
	return global.Matrix
}

func assertMatrix(t *testing.T, expected, actual mgl32.Mat4) {
	t.Helper()
	assert.True(t, expected.ApproxEqualThreshold(actual, epsilon), "expected\n%v\ngot\n%v", expected, actual)
}

func setLocal(t *testing.T, cmd *Commands, eid EntityId, m mgl32.Mat4) {
	t.Helper()
	local, ok := MakeWriteStorage[LocalMatrix](cmd).GetMut(eid)
	require.True(t, ok)
	local.Matrix = m
}

func TestTransform_Matrix(t *testing.T) {
	tr := NewTransform()
	assertMatrix(t, mgl32.Ident4(), tr.Matrix())

	tr.Position = mgl32.Vec3{1, 2, 3}
	tr.Rotation = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})
	tr.Scale = mgl32.Vec3{2, 2, 2}

	// X axis is scaled, rotated onto Y, then translated.
	p := tr.Matrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1, p.X(), epsilon)
	assert.InDelta(t, 4, p.Y(), epsilon)
	assert.InDelta(t, 3, p.Z(), epsilon)
}

func TestTransform_RootGlobalEqualsLocal(t *testing.T) {
	app, cmd := newTransformApp(0)

	local := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DY(0.5))
	root := spawnNode(cmd, local, nil)
	app.Update()

	assertMatrix(t, local, globalOf(t, app, root))

	moved := mgl32.Translate3D(-4, 0, 1)
	setLocal(t, cmd, root, moved)
	app.Update()

	assertMatrix(t, moved, globalOf(t, app, root))
}

func TestTransform_ChainComposition(t *testing.T) {
	app, cmd := newTransformApp(0)

	lr := mgl32.Translate3D(10, 0, 0).Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(30)))
	la := mgl32.Translate3D(0, 5, 0).Mul4(mgl32.Scale3D(2, 2, 2))
	lb := mgl32.Translate3D(0, 0, 2).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(45)))

	root := spawnNode(cmd, lr, nil)
	a := spawnNode(cmd, la, &root)
	b := spawnNode(cmd, lb, &a)
	app.Update()

	assertMatrix(t, lr, globalOf(t, app, root))
	assertMatrix(t, lr.Mul4(la), globalOf(t, app, a))
	assertMatrix(t, lr.Mul4(la).Mul4(lb), globalOf(t, app, b))

	// Changing the root alone recomputes the whole chain.
	lr2 := mgl32.Translate3D(-3, 1, 7)
	setLocal(t, cmd, root, lr2)
	app.Update()

	assertMatrix(t, lr2.Mul4(la), globalOf(t, app, a))
	assertMatrix(t, lr2.Mul4(la).Mul4(lb), globalOf(t, app, b))

	// Changing a middle node leaves the root alone.
	la2 := mgl32.Translate3D(1, 1, 1)
	setLocal(t, cmd, a, la2)
	app.Update()

	assertMatrix(t, lr2, globalOf(t, app, root))
	assertMatrix(t, lr2.Mul4(la2).Mul4(lb), globalOf(t, app, b))
}

func TestTransform_UnchangedSubtreeIsNotWritten(t *testing.T) {
	app, cmd := newTransformApp(0)

	r1 := spawnNode(cmd, mgl32.Translate3D(1, 0, 0), nil)
	c1 := spawnNode(cmd, mgl32.Translate3D(0, 1, 0), &r1)
	g1 := spawnNode(cmd, mgl32.Translate3D(0, 0, 1), &c1)
	r2 := spawnNode(cmd, mgl32.Translate3D(2, 0, 0), nil)
	c2 := spawnNode(cmd, mgl32.Translate3D(0, 2, 0), &r2)
	app.Update()

	before := globalOf(t, app, c2)
	globals := RegisterReader[GlobalMatrix](cmd)

	setLocal(t, cmd, c1, mgl32.Translate3D(0, 3, 0))
	app.Update()

	written := make(map[EntityId]int)
	for _, event := range ReadEvents[GlobalMatrix](cmd, &globals) {
		written[event.Entity]++
	}
	assert.Equal(t, map[EntityId]int{c1: 1, g1: 1}, written)
	assert.Equal(t, before, globalOf(t, app, c2))
	assertMatrix(t, mgl32.Translate3D(1, 3, 1), globalOf(t, app, g1))

	// Nothing changed at all: nothing is written.
	app.Update()
	assert.Empty(t, ReadEvents[GlobalMatrix](cmd, &globals))
}

func TestTransform_Reparent(t *testing.T) {
	app, cmd := newTransformApp(0)

	r1 := spawnNode(cmd, mgl32.Translate3D(10, 0, 0), nil)
	r2 := spawnNode(cmd, mgl32.Translate3D(0, 20, 0), nil)
	child := spawnNode(cmd, mgl32.Translate3D(0, 0, 1), &r1)
	grandchild := spawnNode(cmd, mgl32.Translate3D(1, 0, 0), &child)
	app.Update()
	assertMatrix(t, mgl32.Translate3D(11, 0, 1), globalOf(t, app, grandchild))

	SetParent(cmd, child, r2)
	app.Update()

	assertMatrix(t, mgl32.Translate3D(0, 20, 1), globalOf(t, app, child))
	assertMatrix(t, mgl32.Translate3D(1, 20, 1), globalOf(t, app, grandchild))
	assertMatrix(t, mgl32.Translate3D(10, 0, 0), globalOf(t, app, r1))
}

func TestTransform_DetachedChildBecomesRoot(t *testing.T) {
	app, cmd := newTransformApp(0)

	root := spawnNode(cmd, mgl32.Translate3D(5, 0, 0), nil)
	child := spawnNode(cmd, mgl32.Translate3D(0, 1, 0), &root)
	app.Update()
	assertMatrix(t, mgl32.Translate3D(5, 1, 0), globalOf(t, app, child))

	RemoveParent(cmd, child)
	app.Update()

	assertMatrix(t, mgl32.Translate3D(0, 1, 0), globalOf(t, app, child))
	assert.Empty(t, childrenOf(t, app, root))
}

func TestTransform_WalkStartsAtHighestDirtyNode(t *testing.T) {
	app, cmd := newTransformApp(0)

	root := spawnNode(cmd, mgl32.Ident4(), nil)
	a := spawnNode(cmd, mgl32.Ident4(), &root)
	b := spawnNode(cmd, mgl32.Ident4(), &a)
	c := spawnNode(cmd, mgl32.Ident4(), &b)
	app.Update()

	sys := &TransformSystem{}
	sys.Setup(cmd)
	parents := MakeReadStorage[Parent](cmd)

	sys.dirty.Set(uint(c))
	assert.Equal(t, c, sys.walkStart(cmd, parents, c))

	sys.dirty.Set(uint(a))
	assert.Equal(t, a, sys.walkStart(cmd, parents, c))
	assert.Equal(t, a, sys.walkStart(cmd, parents, b), "clean nodes climb to the dirty ancestor")
	assert.Equal(t, root, sys.walkStart(cmd, parents, root))
}

func TestTransform_SelfParentIsARoot(t *testing.T) {
	app := NewApp().UseModules(DefaultModules())
	cmd := app.Commands()

	parent := cmd.AddEntity(TransformBundle(mgl32.Translate3D(3, 0, 0))...)
	node := cmd.AddEntity(TransformBundle(mgl32.Translate3D(0, 1, 0))...)
	SetParent(cmd, node, parent)
	app.Update()
	assertMatrix(t, mgl32.Translate3D(3, 1, 0), globalOf(t, app, node))

	SetParent(cmd, node, node)
	assert.NotPanics(t, func() { app.Update() })
	assertMatrix(t, mgl32.Translate3D(0, 1, 0), globalOf(t, app, node))

	// node stays in parent's list, but moving parent no longer reaches it.
	setLocal(t, cmd, parent, mgl32.Translate3D(7, 0, 0))
	app.Update()
	assertMatrix(t, mgl32.Translate3D(0, 1, 0), globalOf(t, app, node))
}

func TestTransform_DanglingParentIsARoot(t *testing.T) {
	app, cmd := newTransformApp(0)

	parent := spawnNode(cmd, mgl32.Translate3D(5, 0, 0), nil)
	child := spawnNode(cmd, mgl32.Translate3D(0, 1, 0), &parent)
	app.Update()
	assertMatrix(t, mgl32.Translate3D(5, 1, 0), globalOf(t, app, child))

	cmd.RemoveEntity(parent)
	app.Update()
	// Nothing about child changed yet.
	assertMatrix(t, mgl32.Translate3D(5, 1, 0), globalOf(t, app, child))

	setLocal(t, cmd, child, mgl32.Translate3D(0, 9, 0))
	app.Update()
	assertMatrix(t, mgl32.Translate3D(0, 9, 0), globalOf(t, app, child))
}

func TestTransform_MissingComponentsEndTheBranch(t *testing.T) {
	app, cmd := newTransformApp(0)

	root := spawnNode(cmd, mgl32.Translate3D(1, 0, 0), nil)
	// Group node without spatial components.
	group := cmd.AddEntity(&Name{Value: "group"}, &Parent{Entity: root})
	below := spawnNode(cmd, mgl32.Translate3D(0, 1, 0), &group)
	sibling := spawnNode(cmd, mgl32.Translate3D(0, 0, 1), &root)

	assert.NotPanics(t, func() { app.Update() })

	assertMatrix(t, mgl32.Translate3D(1, 0, 1), globalOf(t, app, sibling))
	assert.Equal(t, mgl32.Mat4{}, globalOf(t, app, below), "branch below a non-spatial node is not reached")
}

func TestTransform_SyncFromTransform(t *testing.T) {
	app, cmd := newTransformApp(0)

	tr := NewTransform()
	tr.Position = mgl32.Vec3{3, 4, 5}
	root := cmd.AddEntity(&tr, &LocalMatrix{Matrix: mgl32.Ident4()}, &GlobalMatrix{})
	child := cmd.AddEntity(TransformBundle(mgl32.Translate3D(1, 0, 0))...)
	SetParent(cmd, child, root)
	app.Update()

	assertMatrix(t, mgl32.Translate3D(3, 4, 5), globalOf(t, app, root))
	assertMatrix(t, mgl32.Translate3D(4, 4, 5), globalOf(t, app, child))

	transform, _ := MakeWriteStorage[Transform](cmd).GetMut(root)
	transform.Position = mgl32.Vec3{0, 0, 0}
	app.Update()

	assertMatrix(t, mgl32.Translate3D(1, 0, 0), globalOf(t, app, child))
}

func TestTransform_SyncInsertsMissingLocalMatrix(t *testing.T) {
	app, cmd := newTransformApp(0)

	tr := NewTransform()
	tr.Position = mgl32.Vec3{0, 7, 0}
	eid := cmd.AddEntity(&tr, &GlobalMatrix{})
	app.Update()

	local, ok := get[LocalMatrix](app, eid)
	require.True(t, ok)
	assertMatrix(t, mgl32.Translate3D(0, 7, 0), local.Matrix)
	assertMatrix(t, mgl32.Translate3D(0, 7, 0), globalOf(t, app, eid))
}

func TestTransform_DepthGuard(t *testing.T) {
	app, cmd := newTransformApp(3)

	prev := spawnNode(cmd, mgl32.Ident4(), nil)
	for i := 0; i < 5; i++ {
		prev = spawnNode(cmd, mgl32.Ident4(), &prev)
	}

	assert.Panics(t, func() { app.Update() })
}

func TestTransform_ParentCycleIsDetected(t *testing.T) {
	app, cmd := newTransformApp(16)

	a := spawnNode(cmd, mgl32.Ident4(), nil)
	b := spawnNode(cmd, mgl32.Ident4(), &a)
	SetParent(cmd, a, b)

	assert.Panics(t, func() { app.Update() })
}

func TestTransformModule_Schedule(t *testing.T) {
	app := NewApp().UseModules(TransformModule{})

	assert.Equal(t, [][]string{
		{HierarchySystemName, TransformSyncSystemName},
		{TransformSystemName},
	}, app.Schedule(PostUpdate).Batches())
}
