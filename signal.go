package playerx

import (
	"context"
	"sync"
)

// Signal is one node of a cancellation tree. Every forked task owns exactly
// one signal, created as a child of its parent's signal.
//
// Aborting a signal aborts every descendant synchronously, each exactly once,
// and then runs the signal's own abort callbacks in LIFO order.
type Signal struct {
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelCauseFunc
	parent    *Signal
	children  map[*Signal]struct{}
	callbacks []func()
	reason    error
	aborted   bool
}

// NewSignal creates a root signal.
func NewSignal() *Signal {
	return newSignal(context.Background(), nil)
}

func newSignal(parentCtx context.Context, parent *Signal) *Signal {
	ctx, cancel := context.WithCancelCause(parentCtx)
	return &Signal{
		ctx:      ctx,
		cancel:   cancel,
		parent:   parent,
		children: make(map[*Signal]struct{}),
	}
}

// Child creates a signal that is aborted whenever s is aborted. A child of an
// already aborted signal starts out aborted with the parent's reason.
func (s *Signal) Child() *Signal {
	child := newSignal(s.ctx, s)

	s.mu.Lock()
	if s.aborted {
		reason := s.reason
		s.mu.Unlock()
		child.Abort(reason)
		return child
	}
	s.children[child] = struct{}{}
	s.mu.Unlock()

	return child
}

// Abort transitions the signal to aborted. Only the first call has any
// effect; later calls are no-ops and keep the first reason.
func (s *Signal) Abort(reason error) {
	if reason == nil {
		reason = context.Canceled
	}

	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.reason = reason
	children := make([]*Signal, 0, len(s.children))
	for child := range s.children {
		children = append(children, child)
	}
	s.children = nil
	callbacks := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	s.cancel(reason)

	for _, child := range children {
		child.Abort(reason)
	}

	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i]()
	}

	if s.parent != nil {
		s.parent.forget(s)
	}
}

func (s *Signal) forget(child *Signal) {
	s.mu.Lock()
	if s.children != nil {
		delete(s.children, child)
	}
	s.mu.Unlock()
}

// OnAbort registers fn to run once the signal is aborted. If the signal is
// already aborted fn runs immediately.
func (s *Signal) OnAbort(fn func()) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		fn()
		return
	}
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// Aborted reports whether the signal has been aborted.
func (s *Signal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Reason returns the error the signal was first aborted with, or nil.
func (s *Signal) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done is closed when the signal is aborted.
func (s *Signal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context returns a context.Context cancelled together with the signal, with
// the abort reason as its cause.
func (s *Signal) Context() context.Context {
	return s.ctx
}
