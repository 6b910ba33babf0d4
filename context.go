package playerx

import (
	"context"
	"log/slog"
	"sync"
)

type effectSlot struct {
	factory AnyEffectFactory
	value   any
}

// ExecutionCtx carries the capabilities a task runs with: a registry view,
// the abort signal governing its lifetime and the effects composed onto it.
//
// Contexts are immutable under composition. Using returns a new context and
// never changes the receiver.
type ExecutionCtx struct {
	id       string
	name     string
	forked   bool
	rt       *Runtime
	parent   *ExecutionCtx
	signal   *Signal
	registry *Registry
	effects  []effectSlot
	meta     *metadata
}

type metadata struct {
	mu     sync.RWMutex
	values map[any]any
}

func newMetadata() *metadata {
	return &metadata{values: make(map[any]any)}
}

// ID returns the execution id. Contexts derived through Using share the id
// of the context they were derived from.
func (e *ExecutionCtx) ID() string {
	return e.id
}

// Name returns the task or package name the context runs for.
func (e *ExecutionCtx) Name() string {
	if e.name == "" {
		return e.id
	}
	return e.name
}

// Runtime returns the runtime owning the context.
func (e *ExecutionCtx) Runtime() *Runtime {
	return e.rt
}

// Parent returns the context this one was forked or derived from.
func (e *ExecutionCtx) Parent() *ExecutionCtx {
	return e.parent
}

// Signal returns the abort signal governing the context.
func (e *ExecutionCtx) Signal() *Signal {
	return e.signal
}

// Registry returns the registry visible from the context.
func (e *ExecutionCtx) Registry() *Registry {
	return e.registry
}

// Std returns a context.Context cancelled when the context's signal fires.
func (e *ExecutionCtx) Std() context.Context {
	return e.signal.Context()
}

// Logger returns the runtime logger annotated with the context name.
func (e *ExecutionCtx) Logger() *slog.Logger {
	return e.rt.logger.With("task", e.Name())
}

// Loop returns the loop directive for the context's own signal.
func (e *ExecutionCtx) Loop() error {
	return Loop(e.signal)
}

// Aborted reports whether the context's signal has fired.
func (e *ExecutionCtx) Aborted() bool {
	return e.signal.Aborted()
}

// Set stores execution metadata on the context
func (e *ExecutionCtx) Set(tag any, value any) {
	e.meta.mu.Lock()
	defer e.meta.mu.Unlock()
	e.meta.values[tag] = value
}

// Get reads execution metadata from the context only
func (e *ExecutionCtx) Get(tag any) (any, bool) {
	e.meta.mu.RLock()
	defer e.meta.mu.RUnlock()
	v, ok := e.meta.values[tag]
	return v, ok
}

// GetFromParent walks parent contexts upward looking for tag
func (e *ExecutionCtx) GetFromParent(tag any) (any, bool) {
	current := e.parent
	for current != nil {
		if v, ok := current.Get(tag); ok {
			return v, true
		}
		current = current.parent
	}
	return nil, false
}

// Lookup tries the context itself, then its parents
func (e *ExecutionCtx) Lookup(tag any) (any, bool) {
	if v, ok := e.Get(tag); ok {
		return v, true
	}
	return e.GetFromParent(tag)
}

// Using returns a context with the given effect factories composed on top.
// Factories already present in the lineage are not invoked again.
func (e *ExecutionCtx) Using(factories ...AnyEffectFactory) *ExecutionCtx {
	ctx := e
	for _, f := range factories {
		if ctx.hasEffect(f) {
			continue
		}
		next := ctx.derive()
		next.compose(f)
		ctx = next
	}
	return ctx
}

// WithRegistryLayer returns a context whose registry writes go to a fresh
// layer on top of the visible ones.
func (e *ExecutionCtx) WithRegistryLayer() *ExecutionCtx {
	next := e.derive()
	next.registry = e.registry.Layer()
	return next
}

// Await runs fn with the scheduler released, for calls that block outside
// the runtime.
func (e *ExecutionCtx) Await(fn func(ctx context.Context) error) error {
	var err error
	e.rt.sched.suspend(func() {
		err = fn(e.Std())
	})
	if err == nil && e.signal.Aborted() {
		return newAbortedError(e.signal.Reason())
	}
	return err
}

// derive copies the context for composition. The copy shares signal, id and
// metadata with the receiver.
func (e *ExecutionCtx) derive() *ExecutionCtx {
	effects := make([]effectSlot, len(e.effects), len(e.effects)+1)
	copy(effects, e.effects)
	return &ExecutionCtx{
		id:       e.id,
		name:     e.name,
		forked:   e.forked,
		rt:       e.rt,
		parent:   e.parent,
		signal:   e.signal,
		registry: e.registry,
		effects:  effects,
		meta:     e.meta,
	}
}

// child creates a context governed by a child signal. Effects composed on
// the receiver are instantiated again for the child, so the child owns
// instances whose teardown follows its own signal.
func (e *ExecutionCtx) child(id, name string, forked bool) *ExecutionCtx {
	c := &ExecutionCtx{
		id:       id,
		name:     name,
		forked:   forked,
		rt:       e.rt,
		parent:   e,
		signal:   e.signal.Child(),
		registry: e.registry,
		effects:  make([]effectSlot, 0, len(e.effects)),
		meta:     newMetadata(),
	}
	for _, slot := range e.effects {
		c.compose(slot.factory)
	}
	return c
}

func (e *ExecutionCtx) compose(f AnyEffectFactory) {
	value, teardown := f.instantiate(e)
	e.effects = append(e.effects, effectSlot{factory: f, value: value})
	if teardown == nil {
		return
	}

	var once sync.Once
	owner := e
	e.signal.OnAbort(func() {
		once.Do(func() {
			owner.rt.runTeardown(f.effectName(), owner, teardown)
		})
	})
}

func (e *ExecutionCtx) hasEffect(f AnyEffectFactory) bool {
	_, ok := e.effect(f)
	return ok
}

func (e *ExecutionCtx) effect(f AnyEffectFactory) (any, bool) {
	for _, slot := range e.effects {
		if slot.factory == f {
			return slot.value, true
		}
	}
	return nil, false
}

// parentExecution returns the closest forked ancestor, or nil for forks
// started from a package or the root context.
func (e *ExecutionCtx) parentExecution() *ExecutionCtx {
	for p := e.parent; p != nil; p = p.parent {
		if p.forked {
			return p
		}
	}
	return nil
}
