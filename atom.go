package playerx

import (
	"context"
	"fmt"
	"sync"
)

// Reducer mutates the value it is given and reports whether it changed it.
// Reducers run against a working copy: the copy is committed only when the
// reducer returns true.
type Reducer[T any] func(value *T, args ...any) bool

// Reducers is the fixed set of named reducers of an atom
type Reducers[T any] map[string]Reducer[T]

// Atom is a state container: a value, a fixed set of reducers and the tasks
// subscribed to changes. Subscribers are notified if and only if a reducer
// reports a change.
type Atom[T any] struct {
	name     string
	rt       *Runtime
	reducers Reducers[T]

	mu    sync.RWMutex
	value T
	subs  []*atomSubscriber[T]
}

type atomSubscriber[T any] struct {
	notify    func(T)
	predicate func() bool
}

func newAtom[T any](rt *Runtime, name string, initial T, reducers Reducers[T]) *Atom[T] {
	fixed := make(Reducers[T], len(reducers))
	for k, r := range reducers {
		fixed[k] = r
	}
	return &Atom[T]{
		name:     name,
		rt:       rt,
		reducers: fixed,
		value:    initial,
	}
}

// Name returns the atom's name
func (a *Atom[T]) Name() string {
	return a.name
}

// Value returns a copy of the current value
func (a *Atom[T]) Value() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Subscribers returns the number of registered subscribers
func (a *Atom[T]) Subscribers() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subs)
}

// HasReducer reports whether a reducer is registered under name
func (a *Atom[T]) HasReducer(name string) bool {
	_, ok := a.reducers[name]
	return ok
}

// Dispatch runs the named reducer with args. When it reports a change, every
// subscriber whose predicate passes is notified in registration order with
// the new value. Dispatch does not wait for the forked subscribers.
func (a *Atom[T]) Dispatch(reducer string, args ...any) (bool, error) {
	var changed bool
	var err error

	a.rt.sched.exclusive(func() {
		op := &Operation{
			Kind:    OpDispatch,
			Name:    a.name + "." + reducer,
			Runtime: a.rt,
		}
		var result any
		result, err = a.rt.wrap(context.Background(), op, func() (any, error) {
			return a.apply(reducer, args)
		})
		changed, _ = result.(bool)
	})

	return changed, err
}

func (a *Atom[T]) apply(name string, args []any) (bool, error) {
	reducer, ok := a.reducers[name]
	if !ok {
		return false, fmt.Errorf("%w: %s.%s", ErrUnknownReducer, a.name, name)
	}

	next := a.Value()
	changed, err := a.call(name, reducer, &next, args)
	if err != nil || !changed {
		return false, err
	}

	a.mu.Lock()
	a.value = next
	subs := make([]*atomSubscriber[T], len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	for _, sub := range subs {
		if sub.predicate != nil && !sub.predicate() {
			continue
		}
		sub.notify(next)
	}

	return true, nil
}

func (a *Atom[T]) call(name string, reducer Reducer[T], next *T, args []any) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed = false
			err = newReducerError(a.name, name, r)
		}
	}()
	return reducer(next, args...), nil
}

// subscribe registers notify and returns an idempotent removal function.
func (a *Atom[T]) subscribe(notify func(T), predicate func() bool) func() {
	sub := &atomSubscriber[T]{notify: notify, predicate: predicate}

	a.mu.Lock()
	a.subs = append(a.subs, sub)
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, existing := range a.subs {
				if existing == sub {
					a.subs = append(a.subs[:i:i], a.subs[i+1:]...)
					return
				}
			}
		})
	}
}
