package tgengine

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockResource1 struct {
	name string
}
type MockResource2 struct {
	name string
}

func NewMockResource1(name string) *MockResource1 {
	return &MockResource1{name: name}
}
func NewMockResource2(name string) *MockResource2 {
	return &MockResource2{name: name}
}

func TestApp_addResources(t *testing.T) {
	app := &App{
		resources: make(map[reflect.Type]any),
	}

	resource1 := NewMockResource1("Resource1")
	app.addResources(resource1)
	assert.Contains(t, app.resources, reflect.TypeOf(resource1).Elem(), "Resource1 should be in resources map.")

	require.PanicsWithValue(t, fmt.Sprintf("%s is already in resources", reflect.TypeOf(resource1)), func() {
		app.addResources(resource1)
	})

	resource2 := NewMockResource2("Resource2")
	app.addResources(resource2)
	assert.Contains(t, app.resources, reflect.TypeOf(resource2).Elem(), "Resource2 should be in resources map.")
}

func TestApp_Resource(t *testing.T) {
	app := NewApp()
	app.Commands().AddResources(NewMockResource1("one"))

	res, ok := Resource[MockResource1](app)
	require.True(t, ok)
	assert.Equal(t, "one", res.name)

	_, ok = Resource[MockResource2](app)
	assert.False(t, ok)
}

func TestApp_StagesRunInOrder(t *testing.T) {
	app := NewApp()
	var order []string
	for _, stage := range defaultStages {
		app.UseSystem(SystemOf(&exclusiveSystem{run: func(*Commands) {
			order = append(order, stage.Name)
		}}).InStage(stage).Named("record"))
	}

	app.Update()

	assert.Equal(t, []string{"Prelude", "PreUpdate", "Update", "PostUpdate", "PreRender", "Render", "PostRender", "Finale"}, order)
}

func TestApp_UseStage(t *testing.T) {
	app := NewApp()
	physics := Stage{Name: "Physics"}
	late := Stage{Name: "Late"}

	app.UseStage(physics, AfterStage(Update))
	app.UseStage(late, BeforeStage(Finale))

	names := make([]string, 0, len(app.stages))
	for _, s := range app.stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Prelude", "PreUpdate", "Update", "Physics", "PostUpdate", "PreRender", "Render", "PostRender", "Late", "Finale"}, names)

	require.PanicsWithValue(t, "Stage Physics already exists", func() {
		app.UseStage(physics, AfterStage(Update))
	})
	require.PanicsWithValue(t, "Stage Nowhere not found", func() {
		app.UseStage(Stage{Name: "Other"}, AfterStage(Stage{Name: "Nowhere"}))
	})
}

func TestApp_UseSystemUnknownStagePanics(t *testing.T) {
	app := NewApp()
	require.PanicsWithValue(t, "Stage Missing doesn't exist", func() {
		app.UseSystem(SystemOf(&exclusiveSystem{}).InStage(Stage{Name: "Missing"}))
	})
	require.PanicsWithValue(t, "Stage Missing doesn't exist", func() {
		app.Schedule(Stage{Name: "Missing"})
	})
}

func TestApp_UpdateFlushesPendingCommandsFirst(t *testing.T) {
	app := NewApp()
	eid := app.Commands().AddEntity(&Name{Value: "early"})

	var seen bool
	app.UseSystem(SystemOf(&exclusiveSystem{run: func(cmd *Commands) {
		seen = cmd.HasEntity(eid)
	}}).InStage(Prelude))

	app.Update()
	assert.True(t, seen)
}

func TestApp_Runner(t *testing.T) {
	app := NewApp()
	runs := 0
	app.UseSystem(SystemOf(&exclusiveSystem{run: func(*Commands) { runs++ }}))

	app.Run()
	assert.Equal(t, 1, runs, "default runner ticks once")

	app.SetRunner(func(a *App) {
		for i := 0; i < 3; i++ {
			a.Update()
		}
	})
	app.Run()
	assert.Equal(t, 4, runs)
}

func TestApp_UnresolvedSystemDependencyPanics(t *testing.T) {
	app := NewApp()
	app.UseSystem(SystemOf(func(r *MockResource2) {}).Named("needs_resource"))

	assert.Panics(t, func() { app.Update() })
}
