package tgengine

import (
	"fmt"
	"reflect"
	"runtime"
)

type systemFn any

type Module interface {
	Install(app *App, cmd *Commands)
}

type App struct {
	stages    []Stage
	schedules map[string]*Dispatcher
	resources map[reflect.Type]any
	ecs       *Ecs
	runner    func(*App)
	queue     commandQueue
}

func NewApp() *App {
	ecs := MakeEcs()
	app := &App{
		schedules: make(map[string]*Dispatcher),
		resources: make(map[reflect.Type]any),
		ecs:       &ecs,
		runner:    RunOnce,
	}
	for _, stage := range defaultStages {
		app.stages = append(app.stages, stage)
		app.schedules[stage.Name] = NewDispatcher()
	}
	return app
}

func (app *App) Commands() *Commands {
	return &Commands{
		app: app,
	}
}

func (app *App) UseModules(modules ...Module) *App {
	cmd := app.Commands()
	for _, module := range modules {
		module.Install(app, cmd)
	}
	return app
}

// SetRunner replaces the frame loop used by Run.
func (app *App) SetRunner(runner func(*App)) *App {
	app.runner = runner
	return app
}

// RunOnce is the default runner: a single tick.
func RunOnce(app *App) {
	app.Update()
}

func (app *App) Run() {
	app.runner(app)
}

// Update runs one tick: every stage in order, each through its dispatcher.
func (app *App) Update() {
	app.FlushCommands()
	for _, stage := range app.stages {
		app.schedules[stage.Name].RunOnce(app)
	}
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}

		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// Resource returns the registered *T resource.
func Resource[T any](app *App) (*T, bool) {
	res, ok := app.resources[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	typed, ok := res.(*T)
	return typed, ok
}

var typeOfCommands = reflect.TypeOf(Commands{})

func (app *App) callSystemInternal(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())

	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		underlyingType := argType.Elem()

		if underlyingType == typeOfCommands {
			args[i] = reflect.ValueOf(&Commands{app: app})
		} else if resource, argIsResource := app.resources[underlyingType]; argIsResource {
			resourceVal := reflect.ValueOf(resource)
			typedResourceVal := reflect.NewAt(underlyingType, resourceVal.UnsafePointer())

			args[i] = typedResourceVal
		} else {
			msg := fmt.Sprintf("Unable to resolve System dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
				runtime.FuncForPC(systemValue.Pointer()).Name(),
				fmt.Sprint(systemType),
				fmt.Sprint(argType),
			)
			app.Logger().Errorf("%s", msg)
			panic(msg)
		}
	}
	systemValue.Call(args)
}
