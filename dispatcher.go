package tgengine

import (
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"sync"
)

// System is a unit of per-tick work.
type System interface {
	Run(cmd *Commands)
}

// SystemSetup is implemented by systems that need one-time initialization,
// such as registering change-event readers. Setup runs before the first tick
// the system takes part in.
type SystemSetup interface {
	Setup(cmd *Commands)
}

// SystemAccess declares which component and resource types a system reads
// and writes. Systems that do not declare access run alone in their batch.
type SystemAccess interface {
	Access() Access
}

// Access lists component or resource types by value, e.g.
// NewAccess().Read(Parent{}).Write(Children{}).
type Access struct {
	Reads  []reflect.Type
	Writes []reflect.Type
}

func NewAccess() Access {
	return Access{}
}

func (a Access) Read(components ...any) Access {
	a.Reads = slices.Clone(a.Reads)
	for _, c := range components {
		a.Reads = append(a.Reads, componentType(c))
	}
	return a
}

func (a Access) Write(components ...any) Access {
	a.Writes = slices.Clone(a.Writes)
	for _, c := range components {
		a.Writes = append(a.Writes, componentType(c))
	}
	return a
}

// Conflicts reports whether two systems touch the same type with at least
// one of them writing.
func (a Access) Conflicts(other Access) bool {
	for _, w := range a.Writes {
		if slices.Contains(other.Writes, w) || slices.Contains(other.Reads, w) {
			return true
		}
	}
	for _, r := range a.Reads {
		if slices.Contains(other.Writes, r) {
			return true
		}
	}
	return false
}

type systemNode struct {
	name      string
	system    System
	deps      []*systemNode
	access    Access
	exclusive bool
	batch     int
	ready     bool
}

func (n *systemNode) conflicts(other *systemNode) bool {
	if n.exclusive || other.exclusive {
		return true
	}
	return n.access.Conflicts(other.access)
}

// Dispatcher runs registered systems once per tick. A system is placed in the
// first batch after all of its dependencies that holds no system with
// conflicting access; batches run in order and systems inside a batch run
// concurrently. Staged commands are flushed after each batch, so everything a
// dependency staged is visible to its dependants.
type Dispatcher struct {
	mu      sync.Mutex
	nodes   []*systemNode
	byName  map[string]*systemNode
	batches [][]*systemNode
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		byName: make(map[string]*systemNode),
	}
}

// Register adds a system under a unique name. Dependencies must already be
// registered with this dispatcher. An empty name is derived from the
// system's type.
func (d *Dispatcher) Register(system System, name string, deps ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name == "" {
		name = systemName(system)
	}
	if _, ok := d.byName[name]; ok {
		panic(fmt.Sprintf("System %q is already registered", name))
	}

	node := &systemNode{name: name, system: system, exclusive: true}
	if declared, ok := system.(SystemAccess); ok {
		node.access = declared.Access()
		node.exclusive = false
	}

	minBatch := 0
	for _, dep := range deps {
		depNode, ok := d.byName[dep]
		if !ok {
			panic(fmt.Sprintf("System %q depends on %q which is not registered", name, dep))
		}
		node.deps = append(node.deps, depNode)
		minBatch = max(minBatch, depNode.batch+1)
	}

	node.batch = d.place(node, minBatch)
	d.nodes = append(d.nodes, node)
	d.byName[name] = node
}

func (d *Dispatcher) place(node *systemNode, minBatch int) int {
Batches:
	for b := minBatch; b < len(d.batches); b++ {
		for _, other := range d.batches[b] {
			if node.conflicts(other) {
				continue Batches
			}
		}
		d.batches[b] = append(d.batches[b], node)
		return b
	}
	for len(d.batches) <= minBatch {
		d.batches = append(d.batches, nil)
	}
	if len(d.batches[minBatch]) > 0 {
		d.batches = append(d.batches, nil)
		minBatch = len(d.batches) - 1
	}
	d.batches[minBatch] = append(d.batches[minBatch], node)
	return minBatch
}

// Batches reports system names per batch in execution order.
func (d *Dispatcher) Batches() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := make([][]string, 0, len(d.batches))
	for _, batch := range d.batches {
		names := make([]string, 0, len(batch))
		for _, node := range batch {
			names = append(names, node.name)
		}
		res = append(res, names)
	}
	return res
}

// RunOnce executes every batch for one tick.
func (d *Dispatcher) RunOnce(app *App) {
	d.mu.Lock()
	batches := d.batches
	d.mu.Unlock()

	cmd := app.Commands()
	d.setup(app, cmd)

	for _, batch := range batches {
		if len(batch) == 1 {
			batch[0].system.Run(cmd)
		} else {
			var wg sync.WaitGroup
			wg.Add(len(batch))
			for _, node := range batch {
				go func() {
					defer wg.Done()
					node.system.Run(cmd)
				}()
			}
			wg.Wait()
		}
		app.FlushCommands()
	}
}

func (d *Dispatcher) setup(app *App, cmd *Commands) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, node := range d.nodes {
		if node.ready {
			continue
		}
		if s, ok := node.system.(SystemSetup); ok {
			s.Setup(cmd)
		}
		node.ready = true
		app.Logger().Debugf("dispatcher: %s ready in batch %d", node.name, node.batch)
	}
}

func (d *Dispatcher) Has(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.byName[name]
	return ok
}

func systemName(system System) string {
	switch s := system.(type) {
	case funcSystem:
		return runtime.FuncForPC(reflect.ValueOf(s.fn).Pointer()).Name()
	case exclusiveFuncSystem:
		return runtime.FuncForPC(reflect.ValueOf(s.fn).Pointer()).Name()
	}
	return reflect.TypeOf(system).String()
}

// funcSystem adapts a plain function with injected arguments.
type funcSystem struct {
	fn     systemFn
	access Access
}

// SystemFunc wraps fn, whose parameters must be *Commands or pointers to
// registered resources. Resources are declared as written; a *Commands
// parameter makes the system exclusive.
func SystemFunc(fn systemFn) System {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		panic(fmt.Sprintf("system must be a function, got %T", fn))
	}
	s := funcSystem{fn: fn}
	for i := 0; i < fnType.NumIn(); i++ {
		argType := fnType.In(i)
		if argType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("system %s: argument %d must be a pointer, got %s", fnType, i, argType))
		}
		if argType.Elem() == typeOfCommands {
			return exclusiveFuncSystem{fn: fn}
		}
		s.access.Writes = append(s.access.Writes, argType.Elem())
	}
	return s
}

func (s funcSystem) Run(cmd *Commands) {
	cmd.app.callSystemInternal(s.fn)
}

func (s funcSystem) Access() Access {
	return s.access
}

type exclusiveFuncSystem struct {
	fn systemFn
}

func (s exclusiveFuncSystem) Run(cmd *Commands) {
	cmd.app.callSystemInternal(s.fn)
}
