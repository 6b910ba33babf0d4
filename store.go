package playerx

import "fmt"

// Store exposes one named atom to every task forked below the context it is
// composed on.
type Store struct {
	name string
	atom Dispatcher
}

// Name returns the name the atom is stored under
func (s *Store) Name() string {
	return s.name
}

// Atom returns the stored atom
func (s *Store) Atom() Dispatcher {
	return s.atom
}

// StoreEffect returns a factory exposing atom under name. Each call returns
// a distinct factory; keep the result to compose it more than once.
func StoreEffect(name string, atom Dispatcher) *EffectFactory[*Store] {
	store := &Store{name: name, atom: atom}
	return NewEffectFactory("store:"+name, func(*ExecutionCtx) (*Store, func() error) {
		return store, nil
	})
}

// LookupAtom finds the atom stored under name on ctx.
func LookupAtom[T any](ctx *ExecutionCtx, name string) (*Atom[T], error) {
	for i := len(ctx.effects) - 1; i >= 0; i-- {
		store, ok := ctx.effects[i].value.(*Store)
		if !ok || store.name != name {
			continue
		}
		atom, ok := store.atom.(*Atom[T])
		if !ok {
			return nil, fmt.Errorf("store %s holds %T", name, store.atom)
		}
		return atom, nil
	}
	return nil, fmt.Errorf("%w: store %s", ErrEffectNotComposed, name)
}
