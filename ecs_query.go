package tgengine

import (
	"reflect"
)

// Queries iterate archetypes holding every requested component. Components
// listed as optionals may be missing, in which case Map receives nil.
// With/Without narrow the match by components that are not fetched.
type Query1[A any] struct{ filter queryFilter }
type Query2[A, B any] struct{ filter queryFilter }
type Query3[A, B, C any] struct{ filter queryFilter }

type queryFilter struct {
	ecs     *Ecs
	with    []any
	without []any
}

func MakeQuery1[A any](cmd *Commands) Query1[A] {
	return Query1[A]{filter: queryFilter{ecs: cmd.app.ecs}}
}
func MakeQuery2[A, B any](cmd *Commands) Query2[A, B] {
	return Query2[A, B]{filter: queryFilter{ecs: cmd.app.ecs}}
}
func MakeQuery3[A, B, C any](cmd *Commands) Query3[A, B, C] {
	return Query3[A, B, C]{filter: queryFilter{ecs: cmd.app.ecs}}
}

func (f queryFilter) withTypes(components ...any) queryFilter {
	f.with = append(append([]any(nil), f.with...), components...)
	return f
}

func (f queryFilter) withoutTypes(components ...any) queryFilter {
	f.without = append(append([]any(nil), f.without...), components...)
	return f
}

func (q Query1[A]) With(components ...any) Query1[A] {
	return Query1[A]{filter: q.filter.withTypes(components...)}
}
func (q Query1[A]) Without(components ...any) Query1[A] {
	return Query1[A]{filter: q.filter.withoutTypes(components...)}
}
func (q Query2[A, B]) With(components ...any) Query2[A, B] {
	return Query2[A, B]{filter: q.filter.withTypes(components...)}
}
func (q Query2[A, B]) Without(components ...any) Query2[A, B] {
	return Query2[A, B]{filter: q.filter.withoutTypes(components...)}
}
func (q Query3[A, B, C]) With(components ...any) Query3[A, B, C] {
	return Query3[A, B, C]{filter: q.filter.withTypes(components...)}
}
func (q Query3[A, B, C]) Without(components ...any) Query3[A, B, C] {
	return Query3[A, B, C]{filter: q.filter.withoutTypes(components...)}
}

// archetypes yields the archetypes passing With/Without.
func (f queryFilter) archetypes() []*archetype {
	with := identifyOptionals(f.ecs, f.with...)
	without := identifyOptionals(f.ecs, f.without...)

	var res []*archetype
Archetypes:
	for _, arch := range f.ecs.archetypes {
		for id := range with {
			if !arch.has(id) {
				continue Archetypes
			}
		}
		for id := range without {
			if arch.has(id) {
				continue Archetypes
			}
		}
		res = append(res, arch)
	}
	return res
}

// column returns the typed slice for id, whether the query may proceed
// without it, and whether the archetype matches at all.
func column[T any](arch *archetype, id componentId, opt set[componentId]) (comps []T, missing bool, ok bool) {
	if data, found := arch.componentData[id]; found {
		return data.([]T), false, true
	}
	if _, optional := opt[id]; optional {
		return nil, true, true
	}
	return nil, false, false
}

func pick[T any](comps []T, missing bool, r row) *T {
	if missing {
		return nil
	}
	return &comps[r]
}

func (q Query1[A]) Map(m func(EntityId, *A) bool, optionals ...any) {
	id1 := identifyComponents1[A](q.filter.ecs)
	opt := identifyOptionals(q.filter.ecs, optionals...)

	for _, arch := range q.filter.archetypes() {
		comps1, no_a, ok := column[A](arch, id1, opt)
		if !ok {
			continue
		}

		for entityId, row := range arch.entities {
			if !m(entityId, pick(comps1, no_a, row)) {
				return
			}
		}
	}
}

func (q Query2[A, B]) Map(m func(EntityId, *A, *B) bool, optionals ...any) {
	id1, id2 := identifyComponents2[A, B](q.filter.ecs)
	opt := identifyOptionals(q.filter.ecs, optionals...)

	for _, arch := range q.filter.archetypes() {
		comps1, no_a, ok := column[A](arch, id1, opt)
		if !ok {
			continue
		}
		comps2, no_b, ok := column[B](arch, id2, opt)
		if !ok {
			continue
		}

		for entityId, row := range arch.entities {
			if !m(entityId, pick(comps1, no_a, row), pick(comps2, no_b, row)) {
				return
			}
		}
	}
}

func (q Query3[A, B, C]) Map(m func(EntityId, *A, *B, *C) bool, optionals ...any) {
	id1, id2, id3 := identifyComponents3[A, B, C](q.filter.ecs)
	opt := identifyOptionals(q.filter.ecs, optionals...)

	for _, arch := range q.filter.archetypes() {
		comps1, no_a, ok := column[A](arch, id1, opt)
		if !ok {
			continue
		}
		comps2, no_b, ok := column[B](arch, id2, opt)
		if !ok {
			continue
		}
		comps3, no_c, ok := column[C](arch, id3, opt)
		if !ok {
			continue
		}

		for entityId, row := range arch.entities {
			if !m(entityId, pick(comps1, no_a, row), pick(comps2, no_b, row), pick(comps3, no_c, row)) {
				return
			}
		}
	}
}

func identifyOptionals(ecs *Ecs, components ...any) set[componentId] {
	res := make(set[componentId])
	for _, c := range components {
		res[ecs.getComponentId(componentType(c))] = struct{}{}
	}

	return res
}

func identifyComponents1[A any](ecs *Ecs) componentId {
	return ecs.getComponentId(reflect.TypeFor[A]())
}

func identifyComponents2[A, B any](ecs *Ecs) (componentId, componentId) {
	return ecs.getComponentId(reflect.TypeFor[A]()), ecs.getComponentId(reflect.TypeFor[B]())
}

func identifyComponents3[A, B, C any](ecs *Ecs) (componentId, componentId, componentId) {
	return ecs.getComponentId(reflect.TypeFor[A]()), ecs.getComponentId(reflect.TypeFor[B]()), ecs.getComponentId(reflect.TypeFor[C]())
}
