package tgengine

import (
	"reflect"
)

// ReadStorage is a typed read-only view over every T in the world.
type ReadStorage[T any] struct {
	ecs *Ecs
	id  componentId
}

// WriteStorage additionally hands out mutable pointers. Every GetMut is
// recorded as a Modified event, whether or not the caller writes through it.
type WriteStorage[T any] struct {
	ReadStorage[T]
}

func MakeReadStorage[T any](cmd *Commands) ReadStorage[T] {
	ecs := cmd.app.ecs
	return ReadStorage[T]{ecs: ecs, id: ecs.getComponentId(reflect.TypeFor[T]())}
}

func MakeWriteStorage[T any](cmd *Commands) WriteStorage[T] {
	return WriteStorage[T]{ReadStorage: MakeReadStorage[T](cmd)}
}

func (s ReadStorage[T]) Get(entityId EntityId) (T, bool) {
	ptr := s.ecs.componentPtr(entityId, s.id)
	if ptr == nil {
		var zero T
		return zero, false
	}
	return *ptr.(*T), true
}

func (s ReadStorage[T]) Has(entityId EntityId) bool {
	return s.ecs.componentPtr(entityId, s.id) != nil
}

// Len counts entities currently owning T.
func (s ReadStorage[T]) Len() int {
	n := 0
	for _, arch := range s.ecs.archetypes {
		if arch.has(s.id) {
			n += len(arch.entities)
		}
	}
	return n
}

// Each visits every entity owning T until m returns false. The pointer is
// for reading only; use GetMut to record a modification.
func (s ReadStorage[T]) Each(m func(EntityId, *T) bool) {
	for _, arch := range s.ecs.archetypes {
		data, ok := arch.componentData[s.id]
		if !ok {
			continue
		}
		comps := data.([]T)
		for entityId, row := range arch.entities {
			if !m(entityId, &comps[row]) {
				return
			}
		}
	}
}

func (s WriteStorage[T]) GetMut(entityId EntityId) (*T, bool) {
	ptr := s.ecs.componentPtr(entityId, s.id)
	if ptr == nil {
		return nil, false
	}
	s.ecs.emit(s.id, Modified, entityId)
	return ptr.(*T), true
}
