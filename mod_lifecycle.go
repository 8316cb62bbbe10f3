package tgengine

import (
	"time"
)

const LifetimeSystemName = "lifetime"

// Lifetime despawns its entity, together with every descendant, once
// Remaining runs out.
type Lifetime struct {
	Remaining time.Duration
}

type LifecycleModule struct{}

func (mod LifecycleModule) Install(app *App, cmd *Commands) {
	if _, ok := Resource[Time](app); !ok {
		TimeModule{}.Install(app, cmd)
	}
	HierarchyModule{}.Install(app, cmd)
	app.UseSystem(
		SystemOf(&LifetimeSystem{}).
			InStage(Update).
			Named(LifetimeSystemName),
	)
}

// LifetimeSystem declares no access: it despawns whole subtrees and runs
// alone in its batch.
type LifetimeSystem struct{}

func (s *LifetimeSystem) Run(cmd *Commands) {
	clock, ok := Resource[Time](cmd.App())
	if !ok || clock.Dt <= 0 {
		return
	}
	lifetimes := MakeWriteStorage[Lifetime](cmd)

	var expired []EntityId
	MakeQuery1[Lifetime](cmd).Map(func(eid EntityId, _ *Lifetime) bool {
		lt, _ := lifetimes.GetMut(eid)
		lt.Remaining -= clock.Dt
		if lt.Remaining <= 0 {
			expired = append(expired, eid)
		}
		return true
	})

	for _, eid := range expired {
		cmd.App().Logger().Debugf("lifetime: despawning %v", eid)
		DespawnRecursive(cmd, eid)
	}
}
