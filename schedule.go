package tgengine

import (
	"fmt"
	"slices"
)

type Stage struct {
	Name string
}

var (
	Prelude    = Stage{Name: "Prelude"}
	PreUpdate  = Stage{Name: "PreUpdate"}
	Update     = Stage{Name: "Update"}
	PostUpdate = Stage{Name: "PostUpdate"}
	PreRender  = Stage{Name: "PreRender"}
	Render     = Stage{Name: "Render"}
	PostRender = Stage{Name: "PostRender"}
	Finale     = Stage{Name: "Finale"}
)

var defaultStages = []Stage{Prelude, PreUpdate, Update, PostUpdate, PreRender, Render, PostRender, Finale}

type systemScheduleBuilder struct {
	inStage Stage
	system  System
	name    string
	after   []string
}

// SystemOf schedules either a System or a plain function whose parameters
// are *Commands and/or registered resources.
func SystemOf(system any) systemScheduleBuilder {
	var sys System
	switch s := system.(type) {
	case System:
		sys = s
	default:
		sys = SystemFunc(s)
	}
	return systemScheduleBuilder{
		system:  sys,
		inStage: Update,
	}
}

func (sched systemScheduleBuilder) InStage(s Stage) systemScheduleBuilder {
	sched.inStage = s
	return sched
}

func (sched systemScheduleBuilder) Named(name string) systemScheduleBuilder {
	sched.name = name
	return sched
}

// After declares systems of the same stage that must finish first in a tick.
func (sched systemScheduleBuilder) After(names ...string) systemScheduleBuilder {
	sched.after = append(slices.Clone(sched.after), names...)
	return sched
}

type stagePosition int

const (
	stageBefore stagePosition = iota
	stageAfter
)

type stagePositionBuilder struct {
	position stagePosition
	target   Stage
}

func BeforeStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{
		position: stageBefore,
		target:   s,
	}
}

func AfterStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{
		position: stageAfter,
		target:   s,
	}
}

func (app *App) UseStage(stage Stage, where stagePositionBuilder) *App {
	if _, ok := app.schedules[stage.Name]; ok {
		panic(fmt.Sprintf("Stage %v already exists", stage.Name))
	}

	var stageIdx int = -1
	for i, s := range app.stages {
		if s.Name == where.target.Name {
			stageIdx = i
			break
		}
	}
	if -1 == stageIdx {
		panic(fmt.Sprintf("Stage %v not found", where.target.Name))
	}

	var insertAt int
	if stageBefore == where.position {
		insertAt = stageIdx
	} else {
		insertAt = stageIdx + 1
	}

	app.stages = slices.Insert(app.stages, insertAt, stage)
	app.schedules[stage.Name] = NewDispatcher()

	return app
}

func (app *App) UseSystem(system systemScheduleBuilder) *App {
	dispatcher, ok := app.schedules[system.inStage.Name]
	if !ok {
		panic(fmt.Sprintf("Stage %v doesn't exist", system.inStage.Name))
	}
	dispatcher.Register(system.system, system.name, system.after...)
	// Readers registered now see every change made before the first tick
	dispatcher.setup(app, app.Commands())
	return app
}

// Schedule exposes the dispatcher of a stage.
func (app *App) Schedule(stage Stage) *Dispatcher {
	dispatcher, ok := app.schedules[stage.Name]
	if !ok {
		panic(fmt.Sprintf("Stage %v doesn't exist", stage.Name))
	}
	return dispatcher
}
