package playerx

import (
	"sort"
	"sync"
)

// ResizeEntry reports the new size of an observed target
type ResizeEntry struct {
	Target any
	Width  float64
	Height float64
}

// Resizable is a target whose size changes can be observed. Observe returns
// the function stopping the observation.
type Resizable interface {
	Observe(fn func([]ResizeEntry)) func()
}

// Resize is the resize observer capability.
type Resize struct {
	ctx       *ExecutionCtx
	observers *tracker[Resizable]
}

// ResizeEffect composes the resize observer capability onto a context.
var ResizeEffect = NewEffectFactory("resize", func(ctx *ExecutionCtx) (*Resize, func() error) {
	r := &Resize{ctx: ctx, observers: newTracker[Resizable]()}
	return r, r.observers.teardown
})

// Subscribe observes target. Each batch of entries forks handler from the
// subscribing context.
func (r *Resize) Subscribe(target Resizable, handler *Task[[]ResizeEntry, struct{}]) Unsubscribe {
	stop := target.Observe(func(entries []ResizeEntry) {
		batch := make([]ResizeEntry, len(entries))
		copy(batch, entries)
		Fork(r.ctx, handler, batch)
	})
	return r.observers.track(target, stop)
}

// Len returns the number of active observations.
func (r *Resize) Len() int {
	return r.observers.len()
}

// ResizeObserver is an in-process Resizable reporting the sizes it is told.
type ResizeObserver struct {
	mu        sync.Mutex
	seq       int
	observers map[int]func([]ResizeEntry)
	width     float64
	height    float64
}

// NewResizeObserver creates an observable target with an initial size
func NewResizeObserver(width, height float64) *ResizeObserver {
	return &ResizeObserver{
		observers: make(map[int]func([]ResizeEntry)),
		width:     width,
		height:    height,
	}
}

// Observe registers fn for size changes.
func (o *ResizeObserver) Observe(fn func([]ResizeEntry)) func() {
	o.mu.Lock()
	o.seq++
	id := o.seq
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// Size returns the last reported size.
func (o *ResizeObserver) Size() (float64, float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.width, o.height
}

// Resize records a new size and notifies observers in registration order.
func (o *ResizeObserver) Resize(width, height float64) {
	o.mu.Lock()
	o.width, o.height = width, height
	ids := make([]int, 0, len(o.observers))
	for id := range o.observers {
		ids = append(ids, id)
	}
	fns := make([]func([]ResizeEntry), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, o.observers[id])
	}
	o.mu.Unlock()

	entries := []ResizeEntry{{Target: o, Width: width, Height: height}}
	for _, fn := range fns {
		fn(entries)
	}
}

// Observers returns the number of registered observers.
func (o *ResizeObserver) Observers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.observers)
}
