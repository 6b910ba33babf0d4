package playerx

import "sync"

// Event is what an EventSource delivers to its listeners
type Event struct {
	Name    string
	Target  any
	Payload any
}

// EventSource is anything listeners can be attached to. On returns the
// function removing the listener.
type EventSource interface {
	On(event string, fn func(Event)) func()
}

// Events is the event listener capability. Every listener it attaches is
// tracked per source and event and removed when the owning context's
// signal fires.
type Events struct {
	ctx       *ExecutionCtx
	listeners *tracker[listenerKey]
}

type listenerKey struct {
	source EventSource
	event  string
}

// EventsEffect composes the event listener capability onto a context.
var EventsEffect = NewEffectFactory("events", func(ctx *ExecutionCtx) (*Events, func() error) {
	ev := &Events{ctx: ctx, listeners: newTracker[listenerKey]()}
	return ev, ev.listeners.teardown
})

// Subscribe listens to event on source. Each delivered event forks handler
// from the subscribing context.
func (ev *Events) Subscribe(source EventSource, event string, handler *Task[Event, struct{}]) Unsubscribe {
	off := source.On(event, func(e Event) {
		Fork(ev.ctx, handler, e)
	})
	return ev.listeners.track(listenerKey{source: source, event: event}, off)
}

// Len returns the number of attached listeners.
func (ev *Events) Len() int {
	return ev.listeners.len()
}

// Emitter is an in-process EventSource. Emit may be called from any
// goroutine.
type Emitter struct {
	mu       sync.RWMutex
	seq      int
	handlers map[string][]emitterHandler
}

type emitterHandler struct {
	id int
	fn func(Event)
}

// NewEmitter creates an emitter without listeners
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]emitterHandler)}
}

// On adds a listener for event.
func (e *Emitter) On(event string, fn func(Event)) func() {
	e.mu.Lock()
	e.seq++
	id := e.seq
	e.handlers[event] = append(e.handlers[event], emitterHandler{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			list := e.handlers[event]
			for i, h := range list {
				if h.id == id {
					e.handlers[event] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(e.handlers[event]) == 0 {
				delete(e.handlers, event)
			}
		})
	}
}

// Emit delivers an event to the listeners registered for name, in the order
// they were added.
func (e *Emitter) Emit(name string, payload any) {
	e.mu.RLock()
	list := make([]emitterHandler, len(e.handlers[name]))
	copy(list, e.handlers[name])
	e.mu.RUnlock()

	ev := Event{Name: name, Target: e, Payload: payload}
	for _, h := range list {
		h.fn(ev)
	}
}

// Listeners returns the number of listeners registered for event.
func (e *Emitter) Listeners(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}
