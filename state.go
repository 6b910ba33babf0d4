package playerx

import "fmt"

// State is the state capability. It creates atoms and keeps track of every
// subscription made through it, so the subscriptions of a context are
// released when the context's signal fires.
type State struct {
	ctx  *ExecutionCtx
	subs *tracker[string]
}

// StateEffect composes the state capability onto a context.
var StateEffect = NewEffectFactory("state", func(ctx *ExecutionCtx) (*State, func() error) {
	st := &State{ctx: ctx, subs: newTracker[string]()}
	return st, st.subs.teardown
})

// Dispatcher is an atom seen without its value type
type Dispatcher interface {
	Name() string
	Dispatch(reducer string, args ...any) (bool, error)
}

// AtomOption is a modifier for atoms
type AtomOption func(*atomConfig)

type atomConfig struct {
	name string
}

// WithAtomName names an atom for diagnostics and metrics
func WithAtomName(name string) AtomOption {
	return func(cfg *atomConfig) {
		cfg.name = name
	}
}

// Create makes a new atom holding initial. The reducer set is fixed at
// creation; an empty set is legal.
func Create[T any](st *State, initial T, reducers Reducers[T], opts ...AtomOption) *Atom[T] {
	rt := st.ctx.rt
	cfg := atomConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("atom-%d", rt.atomSeq.Add(1))
	}
	return newAtom(rt, cfg.name, initial, reducers)
}

// NewAtom is Create for a context carrying the state capability.
func NewAtom[T any](ctx *ExecutionCtx, initial T, reducers Reducers[T], opts ...AtomOption) (*Atom[T], error) {
	st, err := StateEffect.From(ctx)
	if err != nil {
		return nil, err
	}
	return Create(st, initial, reducers, opts...), nil
}

// Dispatch runs a reducer of atom.
func (s *State) Dispatch(atom Dispatcher, reducer string, args ...any) (bool, error) {
	return atom.Dispatch(reducer, args...)
}

// Len returns the number of live subscriptions made through s.
func (s *State) Len() int {
	return s.subs.len()
}

// Subscribe forks task with a snapshot of the atom's value every time a
// reducer of atom reports a change. Forks are children of ctx. The
// subscription lives until the returned Unsubscribe is called or ctx's
// signal fires.
func Subscribe[T, O any](ctx *ExecutionCtx, atom *Atom[T], task *Task[T, O], opts ...ForkOption) (Unsubscribe, error) {
	st, err := StateEffect.From(ctx)
	if err != nil {
		return nil, err
	}

	cfg := newForkConfig(opts)
	remove := atom.subscribe(func(v T) {
		Fork(ctx, task, v)
	}, cfg.predicate)

	return st.subs.track(atom.name, remove), nil
}

// SubscribeAndRun subscribes like Subscribe and also forks task once with
// the current value. The initial fork is returned so callers can supersede
// it.
func SubscribeAndRun[T, O any](ctx *ExecutionCtx, atom *Atom[T], task *Task[T, O], opts ...ForkOption) (Unsubscribe, *Abortable[O], error) {
	unsubscribe, err := Subscribe(ctx, atom, task, opts...)
	if err != nil {
		return nil, nil, err
	}
	return unsubscribe, Fork(ctx, task, atom.Value(), opts...), nil
}

// MapSubscribe subscribes task to every atom of a keyed collection. The
// returned Unsubscribe releases all of them.
func MapSubscribe[K comparable, T, O any](ctx *ExecutionCtx, atoms map[K]*Atom[T], task *Task[T, O], opts ...ForkOption) (Unsubscribe, error) {
	unsubs := make([]Unsubscribe, 0, len(atoms))
	for _, atom := range atoms {
		unsubscribe, err := Subscribe(ctx, atom, task, opts...)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return nil, err
		}
		unsubs = append(unsubs, unsubscribe)
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}, nil
}

// WaitFor suspends until cond holds for the atom's value and returns that
// value. It returns immediately when the current value already satisfies
// cond, and fails with ErrAborted when ctx's signal fires first.
func WaitFor[T any](ctx *ExecutionCtx, atom *Atom[T], cond func(T) bool) (T, error) {
	var zero T
	found := make(chan T, 1)

	var remove func()
	ctx.rt.sched.exclusive(func() {
		if v := atom.Value(); cond(v) {
			found <- v
			return
		}
		remove = atom.subscribe(func(v T) {
			if cond(v) {
				select {
				case found <- v:
				default:
				}
			}
		}, nil)
	})
	if remove != nil {
		defer remove()
	}

	select {
	case v := <-found:
		return v, nil
	default:
	}

	var result T
	aborted := false
	ctx.rt.sched.suspend(func() {
		select {
		case result = <-found:
		case <-ctx.signal.Done():
			aborted = true
		}
	})
	if aborted {
		return zero, newAbortedError(ctx.signal.Reason())
	}
	return result, nil
}
