package playerx

import (
	"errors"
	"fmt"
	"sync"
)

// AnyEffectFactory is an effect factory seen without its capability type
type AnyEffectFactory interface {
	effectName() string
	instantiate(ctx *ExecutionCtx) (any, func() error)
}

// EffectFactory builds a capability of type E for a context, together with
// the teardown releasing whatever the capability acquired. The runtime calls
// the teardown exactly once, when the owning context's signal fires.
type EffectFactory[E any] struct {
	name  string
	build func(ctx *ExecutionCtx) (E, func() error)
}

// NewEffectFactory creates an effect factory. Factories are compared by
// identity: composing the same factory twice in a lineage is a no-op.
func NewEffectFactory[E any](name string, build func(ctx *ExecutionCtx) (E, func() error)) *EffectFactory[E] {
	return &EffectFactory[E]{name: name, build: build}
}

// Name returns the factory name.
func (f *EffectFactory[E]) Name() string {
	return f.name
}

func (f *EffectFactory[E]) effectName() string {
	return f.name
}

func (f *EffectFactory[E]) instantiate(ctx *ExecutionCtx) (any, func() error) {
	return f.build(ctx)
}

// From returns the capability instance composed on ctx.
func (f *EffectFactory[E]) From(ctx *ExecutionCtx) (E, error) {
	v, ok := ctx.effect(f)
	if !ok {
		var zero E
		return zero, fmt.Errorf("%w: %s", ErrEffectNotComposed, f.name)
	}
	return v.(E), nil
}

// MustFrom is From for contexts whose type guarantees the effect.
func (f *EffectFactory[E]) MustFrom(ctx *ExecutionCtx) E {
	v, err := f.From(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// resourceSet tracks release functions for resources registered by an
// effect, grouped by owner, so teardown can release all of them.
type resourceSet[K comparable] struct {
	owners map[K][]*resource
	order  []K
}

type resource struct {
	release func()
}

func newResourceSet[K comparable]() *resourceSet[K] {
	return &resourceSet[K]{owners: make(map[K][]*resource)}
}

func (s *resourceSet[K]) add(owner K, r *resource) {
	if _, ok := s.owners[owner]; !ok {
		s.order = append(s.order, owner)
	}
	s.owners[owner] = append(s.owners[owner], r)
}

func (s *resourceSet[K]) remove(owner K, r *resource) {
	list := s.owners[owner]
	for i, existing := range list {
		if existing == r {
			s.owners[owner] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (s *resourceSet[K]) drain() []*resource {
	var all []*resource
	for _, owner := range s.order {
		all = append(all, s.owners[owner]...)
	}
	s.owners = make(map[K][]*resource)
	s.order = nil
	return all
}

func (s *resourceSet[K]) len() int {
	n := 0
	for _, list := range s.owners {
		n += len(list)
	}
	return n
}

// releaseAll calls every release function, isolating panics per resource.
func releaseAll(resources []*resource) error {
	var errs []error
	for _, r := range resources {
		if err := safeCall(r.release); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %w", recoveredError(r))
		}
	}()
	fn()
	return nil
}

// tracker is a resourceSet guarded for concurrent use. Once torn down, it
// releases anything tracked afterwards immediately.
type tracker[K comparable] struct {
	mu       sync.Mutex
	set      *resourceSet[K]
	released bool
}

func newTracker[K comparable]() *tracker[K] {
	return &tracker[K]{set: newResourceSet[K]()}
}

func (t *tracker[K]) track(owner K, release func()) Unsubscribe {
	r := &resource{release: release}

	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		release()
		return func() {}
	}
	t.set.add(owner, r)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.set.remove(owner, r)
			t.mu.Unlock()
			release()
		})
	}
}

func (t *tracker[K]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set.len()
}

func (t *tracker[K]) teardown() error {
	t.mu.Lock()
	t.released = true
	all := t.set.drain()
	t.mu.Unlock()

	return releaseAll(all)
}
