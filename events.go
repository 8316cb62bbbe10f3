package tgengine

import (
	"fmt"
	"reflect"
	"sync"
)

// EventKind tells what happened to a component.
type EventKind int

const (
	Inserted EventKind = iota
	Modified
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Inserted:
		return "Inserted"
	case Modified:
		return "Modified"
	case Removed:
		return "Removed"
	default:
		return "Unknown"
	}
}

// ComponentEvent is a single entry of a component storage change log.
type ComponentEvent struct {
	Entity EntityId
	Kind   EventKind
}

// ReaderId is a cursor into the change log of one component type.
type ReaderId struct {
	component componentId
	id        int
}

// changeLog is an append-only per-storage log. Each reader owns a monotonic
// cursor; the log is trimmed to the slowest reader after every read.
type changeLog struct {
	mu      sync.Mutex
	base    uint64 // absolute position of events[0]
	events  []ComponentEvent
	readers map[int]uint64
	nextId  int
}

func newChangeLog() *changeLog {
	return &changeLog{readers: make(map[int]uint64)}
}

func (l *changeLog) push(ev ComponentEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.readers) == 0 {
		return
	}
	l.events = append(l.events, ev)
}

func (l *changeLog) register() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextId
	l.nextId++
	l.readers[id] = l.base + uint64(len(l.events))
	return id
}

func (l *changeLog) read(id int) ([]ComponentEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cursor, ok := l.readers[id]
	if !ok {
		return nil, false
	}
	end := l.base + uint64(len(l.events))
	out := make([]ComponentEvent, end-cursor)
	copy(out, l.events[cursor-l.base:])
	l.readers[id] = end
	l.compact()
	return out, true
}

func (l *changeLog) compact() {
	lowest := l.base + uint64(len(l.events))
	for _, cursor := range l.readers {
		lowest = min(lowest, cursor)
	}
	drop := int(lowest - l.base)
	if drop == 0 {
		return
	}
	l.events = append(l.events[:0], l.events[drop:]...)
	l.base = lowest
}

func (ecs *Ecs) changeLogFor(id componentId) *changeLog {
	ecs.changeLogsLock.Lock()
	defer ecs.changeLogsLock.Unlock()
	l, ok := ecs.changeLogs[id]
	if !ok {
		l = newChangeLog()
		ecs.changeLogs[id] = l
	}
	return l
}

func (ecs *Ecs) emit(id componentId, kind EventKind, entityId EntityId) {
	ecs.changeLogFor(id).push(ComponentEvent{Entity: entityId, Kind: kind})
}

func (ecs *Ecs) registerReader(t reflect.Type) ReaderId {
	id := ecs.getComponentId(t)
	return ReaderId{component: id, id: ecs.changeLogFor(id).register()}
}

func (ecs *Ecs) readEvents(reader ReaderId) []ComponentEvent {
	events, ok := ecs.changeLogFor(reader.component).read(reader.id)
	if !ok {
		panic(fmt.Sprintf("ReaderId %d not registered for %s", reader.id, ecs.getComponentType(reader.component)))
	}
	return events
}

// RegisterReader creates a change cursor on T's storage. Only events emitted
// after registration are delivered to it.
func RegisterReader[T any](cmd *Commands) ReaderId {
	return cmd.app.ecs.registerReader(reflect.TypeFor[T]())
}

// ReadEvents drains every event recorded on T's storage since the last read
// through this cursor. Events are never delivered twice.
func ReadEvents[T any](cmd *Commands, reader *ReaderId) []ComponentEvent {
	if reader == nil {
		panic(fmt.Sprintf("ReaderId not found for %s; register it in Setup", reflect.TypeFor[T]()))
	}
	if reader.component != cmd.app.ecs.getComponentId(reflect.TypeFor[T]()) {
		panic(fmt.Sprintf("ReaderId was not registered for %s", reflect.TypeFor[T]()))
	}
	return cmd.app.ecs.readEvents(*reader)
}
