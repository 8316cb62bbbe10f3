package tgengine

import (
	"slices"

	"github.com/bits-and-blooms/bitset"
)

const HierarchySystemName = "hierarchy"

// Parent is the authoritative link to an entity's immediate parent.
type Parent struct {
	Entity EntityId
}

// PreviousParent caches the Parent last reconciled by HierarchySystem. It is
// written only by that system and exists exactly while Parent does.
type PreviousParent struct {
	Entity EntityId
}

// Children lists an entity's immediate children without duplicates, in the
// order they were attached. Written only by HierarchySystem.
type Children struct {
	Entities []EntityId
}

func ChildrenWith(entities ...EntityId) Children {
	c := Children{Entities: make([]EntityId, 0, max(8, len(entities)))}
	for _, e := range entities {
		c.Push(e)
	}
	return c
}

func (c *Children) Contains(entity EntityId) bool {
	return slices.Contains(c.Entities, entity)
}

// Push appends entity unless already present.
func (c *Children) Push(entity EntityId) {
	if c.Contains(entity) {
		return
	}
	c.Entities = append(c.Entities, entity)
}

func (c *Children) Remove(entity EntityId) {
	c.Entities = slices.DeleteFunc(c.Entities, func(e EntityId) bool { return e == entity })
}

func (c *Children) Swap(a, b int) {
	c.Entities[a], c.Entities[b] = c.Entities[b], c.Entities[a]
}

func (c *Children) Len() int {
	return len(c.Entities)
}

type HierarchyModule struct{}

func (HierarchyModule) Install(app *App, cmd *Commands) {
	if app.Schedule(PostUpdate).Has(HierarchySystemName) {
		return
	}
	app.UseSystem(
		SystemOf(&HierarchySystem{}).
			InStage(PostUpdate).
			Named(HierarchySystemName),
	)
}

// HierarchySystem reconciles Parent changes into Children and PreviousParent.
//
// Parent values that point at dangling entities are not checked; the
// resulting Children insertion is dropped at flush. A cycle in the Parent
// graph is a caller error.
type HierarchySystem struct {
	reader *ReaderId
	dirty  []EntityId
	seen   *bitset.BitSet
}

func (s *HierarchySystem) Setup(cmd *Commands) {
	reader := RegisterReader[Parent](cmd)
	s.reader = &reader
	s.seen = bitset.New(64)
}

func (s *HierarchySystem) Access() Access {
	return NewAccess().Read(Parent{}).Write(PreviousParent{}, Children{})
}

func (s *HierarchySystem) Run(cmd *Commands) {
	parents := MakeReadStorage[Parent](cmd)
	previousParents := MakeWriteStorage[PreviousParent](cmd)
	children := MakeWriteStorage[Children](cmd)
	logger := cmd.app.Logger()

	// Parent was removed: drop the cache and detach from the old list.
	MakeQuery1[PreviousParent](cmd).Without(Parent{}).Map(func(eid EntityId, previous *PreviousParent) bool {
		cmd.RemoveComponents(eid, PreviousParent{})
		detachChild(children, previous.Entity, eid)
		return true
	})

	// Removed events are ignored; the entity no longer has Parent below.
	s.dirty = s.dirty[:0]
	s.seen.ClearAll()
	for _, event := range ReadEvents[Parent](cmd, s.reader) {
		if event.Kind == Removed || s.seen.Test(uint(event.Entity)) {
			continue
		}
		s.seen.Set(uint(event.Entity))
		s.dirty = append(s.dirty, event.Entity)
	}

	var pendingOrder []EntityId
	pending := make(map[EntityId][]EntityId)

	for _, eid := range s.dirty {
		parent, ok := parents.Get(eid)
		if !ok {
			continue
		}
		if parent.Entity == eid {
			logger.Warnf("hierarchy: entity %v is its own parent, skipping", eid)
			continue
		}

		if previous, ok := previousParents.Get(eid); ok {
			if previous.Entity == parent.Entity {
				continue
			}
			detachChild(children, previous.Entity, eid)
			previousMut, _ := previousParents.GetMut(eid)
			previousMut.Entity = parent.Entity
		} else {
			cmd.AddComponents(eid, PreviousParent{Entity: parent.Entity})
		}

		if current, ok := children.Get(parent.Entity); ok {
			if !current.Contains(eid) {
				currentMut, _ := children.GetMut(parent.Entity)
				currentMut.Push(eid)
			}
			continue
		}
		if _, staged := pending[parent.Entity]; !staged {
			pendingOrder = append(pendingOrder, parent.Entity)
		}
		if !slices.Contains(pending[parent.Entity], eid) {
			pending[parent.Entity] = append(pending[parent.Entity], eid)
		}
	}

	for _, parent := range pendingOrder {
		cmd.AddComponents(parent, ChildrenWith(pending[parent]...))
	}

	if len(s.dirty) > 0 {
		logger.Debugf("hierarchy: reconciled %d entities, %d new child lists", len(s.dirty), len(pendingOrder))
	}
}

// detachChild removes child from parent's Children, touching the storage
// only when the list actually changes.
func detachChild(children WriteStorage[Children], parent, child EntityId) {
	current, ok := children.Get(parent)
	if !ok || !current.Contains(child) {
		return
	}
	list, _ := children.GetMut(parent)
	list.Remove(child)
}

// SetParent stages child's Parent; Children follow on the next hierarchy pass.
func SetParent(cmd *Commands, child, parent EntityId) {
	cmd.AddComponents(child, Parent{Entity: parent})
}

func RemoveParent(cmd *Commands, child EntityId) {
	cmd.RemoveComponents(child, Parent{})
}

// DespawnRecursive stages removal of root and all of its descendants. Plain
// RemoveEntity leaves children in place with a dangling Parent.
func DespawnRecursive(cmd *Commands, root EntityId) {
	children := MakeReadStorage[Children](cmd)
	parents := MakeReadStorage[Parent](cmd)

	if parent, ok := parents.Get(root); ok {
		detachChild(MakeWriteStorage[Children](cmd), parent.Entity, root)
	}

	stack := []EntityId{root}
	for len(stack) > 0 {
		eid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cmd.RemoveEntity(eid)
		if list, ok := children.Get(eid); ok {
			stack = append(stack, list.Entities...)
		}
	}
}
