package playerx

import "sync"

// Key is a typed registry identifier. Components are looked up by the key's
// name; the type parameter fixes what may be stored under it.
type Key[T any] struct {
	name string
}

// NewKey creates a registry key.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's name.
func (k Key[T]) Name() string {
	return k.name
}

type registryLayer struct {
	mu      sync.RWMutex
	entries map[string]any
	onSet   func(name string)
}

// Registry is a write-once component registry. A registry is an ordered list
// of layers fixed when it is created; writes go to the top layer and a name
// may only be written if no visible layer holds it.
type Registry struct {
	layers []*registryLayer
	// writeMu serializes the check-then-write of Set across layers
	writeMu *sync.Mutex
}

func newRegistry(onSet func(string)) *Registry {
	return &Registry{
		layers:  []*registryLayer{{entries: make(map[string]any), onSet: onSet}},
		writeMu: &sync.Mutex{},
	}
}

// Layer returns a registry that reads through r and writes to a new layer.
func (r *Registry) Layer() *Registry {
	layers := make([]*registryLayer, 0, len(r.layers)+1)
	layers = append(layers, &registryLayer{entries: make(map[string]any)})
	layers = append(layers, r.layers...)
	return &Registry{layers: layers, writeMu: r.writeMu}
}

// Lookup returns the raw value stored under name.
func (r *Registry) Lookup(name string) (any, bool) {
	for _, layer := range r.layers {
		layer.mu.RLock()
		v, ok := layer.entries[name]
		layer.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether name is set in any visible layer.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// SetAny stores value under name in the top layer.
func (r *Registry) SetAny(name string, value any) error {
	r.writeMu.Lock()
	if r.Has(name) {
		r.writeMu.Unlock()
		return &RegistryWriteError{Key: name}
	}

	top := r.layers[0]
	top.mu.Lock()
	top.entries[name] = value
	top.mu.Unlock()
	r.writeMu.Unlock()

	if top.onSet != nil {
		top.onSet(name)
	}
	return nil
}

// Names returns every name visible through the registry.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, layer := range r.layers {
		layer.mu.RLock()
		for name := range layer.entries {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
		layer.mu.RUnlock()
	}
	return names
}

// Get retrieves the component stored under key.
func Get[T any](r *Registry, key Key[T]) (T, error) {
	var zero T
	v, ok := r.Lookup(key.name)
	if !ok {
		return zero, &LookupError{Key: key.name}
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &LookupError{Key: key.name}
	}
	return typed, nil
}

// MustGet is Get for components that are guaranteed by a package's
// dependency list.
func MustGet[T any](r *Registry, key Key[T]) T {
	v, err := Get(r, key)
	if err != nil {
		panic(err)
	}
	return v
}

// Set stores value under key. It fails if key is already set in any visible
// layer.
func Set[T any](r *Registry, key Key[T], value T) error {
	return r.SetAny(key.name, value)
}
