package tgengine

import (
	"sync"
)

// Commands is the handle systems use to touch the world. Structural changes
// (spawn, despawn, component insert/remove) are staged and applied by
// App.FlushCommands at the next synchronization point.
type Commands struct {
	app *App
}

type pendingAdd struct {
	eid        EntityId
	components []any
}

type pendingCompOp struct {
	eid        EntityId
	components []any
	remove     bool
}

// commandQueue is shared by every system of a batch, which may run
// concurrently.
type commandQueue struct {
	mu           sync.Mutex
	additions    []pendingAdd
	componentOps []pendingCompOp
	removals     []EntityId
}

func (q *commandQueue) empty() bool {
	return len(q.additions) == 0 && len(q.componentOps) == 0 && len(q.removals) == 0
}

func (cmd *Commands) App() *App {
	return cmd.app
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

// AddEntity reserves an id immediately; the entity exists after the next flush.
func (cmd *Commands) AddEntity(components ...any) EntityId {
	eid := cmd.app.ecs.nextEntityId()
	q := &cmd.app.queue
	q.mu.Lock()
	q.additions = append(q.additions, pendingAdd{
		eid:        eid,
		components: components,
	})
	q.mu.Unlock()
	return eid
}

// AddComponents inserts components, overwriting any of the same type.
func (cmd *Commands) AddComponents(entityId EntityId, components ...any) {
	q := &cmd.app.queue
	q.mu.Lock()
	q.componentOps = append(q.componentOps, pendingCompOp{
		eid:        entityId,
		components: components,
	})
	q.mu.Unlock()
}

func (cmd *Commands) RemoveComponents(entityId EntityId, components ...any) {
	q := &cmd.app.queue
	q.mu.Lock()
	q.componentOps = append(q.componentOps, pendingCompOp{
		eid:        entityId,
		components: components,
		remove:     true,
	})
	q.mu.Unlock()
}

func (cmd *Commands) RemoveEntity(entityId EntityId) {
	q := &cmd.app.queue
	q.mu.Lock()
	q.removals = append(q.removals, entityId)
	q.mu.Unlock()
}

func (cmd *Commands) HasEntity(entityId EntityId) bool {
	return cmd.app.ecs.hasEntity(entityId)
}

func (cmd *Commands) GetAllComponents(entityId EntityId) []any {
	ecs := cmd.app.ecs
	archId, ok := ecs.entityIndex[entityId]
	if !ok {
		return nil
	}
	arch := ecs.archetypes[archId]

	row := arch.entities[entityId]

	var res []any
	for _, componentsSlice := range arch.componentData {
		val := reflectSliceGet(componentsSlice, int(row))
		res = append(res, val.Interface())
	}
	return res
}

// FlushCommands applies staged mutations: spawns first, then component
// operations in the order they were staged, despawns last.
func (app *App) FlushCommands() {
	q := &app.queue
	q.mu.Lock()
	if q.empty() {
		q.mu.Unlock()
		return
	}
	additions, componentOps, removals := q.additions, q.componentOps, q.removals
	q.additions, q.componentOps, q.removals = nil, nil, nil
	q.mu.Unlock()

	logger := app.Logger()

	for _, add := range additions {
		app.ecs.insertEntity(add.eid, add.components...)
	}

	for _, op := range componentOps {
		if !app.ecs.hasEntity(op.eid) {
			logger.Debugf("flush: skipping component op on missing entity %v", op.eid)
			continue
		}
		if op.remove {
			app.ecs.removeComponents(op.eid, op.components...)
		} else {
			app.ecs.addComponents(op.eid, op.components...)
		}
	}

	for _, eid := range removals {
		if !app.ecs.hasEntity(eid) {
			continue
		}
		logger.Debugf("flush: removing entity %v", eid)
		app.ecs.removeEntity(eid)
	}
}
