package tgengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockModule struct {
	installed bool
	order     *[]string
}

func (m *MockModule) Install(app *App, commands *Commands) {
	m.installed = true
	if m.order != nil {
		*m.order = append(*m.order, "first")
	}
}

type MockModule2 struct {
	installed bool
	order     *[]string
}

func (m *MockModule2) Install(app *App, commands *Commands) {
	m.installed = true
	if m.order != nil {
		*m.order = append(*m.order, "second")
	}
}

func TestAppBuilder_UseModule(t *testing.T) {
	var order []string
	module1 := &MockModule{order: &order}
	module2 := &MockModule2{order: &order}

	builder := NewAppBuilder().UseModule(module1).UseModule(module2)
	assert.False(t, module1.installed, "modules install at Build")

	app := builder.Build()

	require.NotNil(t, app)
	assert.True(t, module1.installed)
	assert.True(t, module2.installed)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Len(t, app.stages, len(defaultStages))
}

func TestModuleGroup_InstallsInOrder(t *testing.T) {
	var order []string
	group := ModuleGroup{&MockModule2{order: &order}, &MockModule{order: &order}}

	NewApp().UseModules(group)

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestDefaultModules(t *testing.T) {
	app := NewApp().UseModules(DefaultModules())

	assert.True(t, app.Schedule(PreUpdate).Has(TimeSystemName))
	assert.True(t, app.Schedule(PostUpdate).Has(HierarchySystemName))
	assert.True(t, app.Schedule(PostUpdate).Has(TransformSyncSystemName))
	assert.True(t, app.Schedule(PostUpdate).Has(TransformSystemName))
	assert.True(t, app.Schedule(Render).Has(TransformUniformsSystemName))

	_, ok := Resource[Time](app)
	assert.True(t, ok)
	_, ok = Resource[TransformUniforms](app)
	assert.True(t, ok)
	_, ok = app.Logger().(*DefaultLogger)
	assert.True(t, ok)

	assert.Equal(t, [][]string{
		{HierarchySystemName, TransformSyncSystemName},
		{TransformSystemName},
	}, app.Schedule(PostUpdate).Batches())

	assert.NotPanics(t, func() { app.Update() })
}
