package tgengine

type AppBuilder struct {
	app     *App
	modules []Module
}

func NewAppBuilder() *AppBuilder {
	return &AppBuilder{app: NewApp()}
}

func (b *AppBuilder) UseModule(modules ...Module) *AppBuilder {
	b.modules = append(b.modules, modules...)

	return b
}

func (b *AppBuilder) Build() *App {
	return b.app.UseModules(b.modules...)
}

// ModuleGroup installs its modules in order.
type ModuleGroup []Module

func (g ModuleGroup) Install(app *App, cmd *Commands) {
	for _, module := range g {
		module.Install(app, cmd)
	}
}

// DefaultModules is the headless engine core.
func DefaultModules() ModuleGroup {
	return ModuleGroup{
		LoggingModule{Prefix: "tg", Level: LevelInfo},
		TimeModule{},
		HierarchyModule{},
		TransformModule{},
		RenderModule{},
	}
}
