package playerx

// Tag is a type-safe key for execution metadata
type Tag[T any] struct {
	key string
}

// NewTag creates a new tag with the given key
func NewTag[T any](key string) Tag[T] {
	return Tag[T]{key: key}
}

// Key returns the tag's key (for debugging)
func (t Tag[T]) Key() string {
	return t.key
}

// Get retrieves the tag value from an execution context
func (t Tag[T]) Get(ctx *ExecutionCtx) (T, bool) {
	val, ok := ctx.Get(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// GetOrDefault retrieves the tag value or returns a default
func (t Tag[T]) GetOrDefault(ctx *ExecutionCtx, defaultVal T) T {
	if val, ok := t.Get(ctx); ok {
		return val
	}
	return defaultVal
}

// Set stores the tag value on an execution context
func (t Tag[T]) Set(ctx *ExecutionCtx, val T) {
	ctx.Set(t, val)
}

// FromNode retrieves the tag value from a finished execution node
func (t Tag[T]) FromNode(node *ExecutionNode) (T, bool) {
	val, ok := node.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := val.(T)
	return typed, ok
}
