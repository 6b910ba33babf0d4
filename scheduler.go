package playerx

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// scheduler hands out a single baton. Only the goroutine holding the baton
// runs task code; waiting goroutines are granted the baton in FIFO order.
//
// Blocking runtime operations call suspend, which gives the baton away for
// the duration of the wait. Operations that mutate shared runtime state call
// exclusive, which acquires the baton unless the caller already holds it.
type scheduler struct {
	mu     sync.Mutex
	held   bool
	queue  []chan struct{}
	owner  atomic.Int64
	queued atomic.Int64
}

func newScheduler() *scheduler {
	return &scheduler{}
}

// ticket reserves a place in the run queue. The returned channel is closed
// once the baton belongs to the ticket holder.
func (s *scheduler) ticket() chan struct{} {
	ch := make(chan struct{})

	s.mu.Lock()
	if !s.held {
		s.held = true
		close(ch)
	} else {
		s.queue = append(s.queue, ch)
		s.queued.Add(1)
	}
	s.mu.Unlock()

	return ch
}

// claim waits for a ticket and records the calling goroutine as owner.
func (s *scheduler) claim(ticket chan struct{}) {
	<-ticket
	s.owner.Store(goid.Get())
}

func (s *scheduler) acquire() {
	s.claim(s.ticket())
}

func (s *scheduler) release() {
	s.owner.Store(0)

	s.mu.Lock()
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.queued.Add(-1)
		s.mu.Unlock()
		close(next)
		return
	}
	s.held = false
	s.mu.Unlock()
}

// holding reports whether the calling goroutine owns the baton.
func (s *scheduler) holding() bool {
	return s.owner.Load() == goid.Get()
}

// suspend runs wait with the baton released if the caller holds it, and
// takes the baton back afterwards.
func (s *scheduler) suspend(wait func()) {
	if !s.holding() {
		wait()
		return
	}

	s.release()
	defer s.acquire()
	wait()
}

// exclusive runs fn while holding the baton.
func (s *scheduler) exclusive(fn func()) {
	if s.holding() {
		fn()
		return
	}

	s.acquire()
	defer s.release()
	fn()
}

// pending returns the number of goroutines waiting for the baton.
func (s *scheduler) pending() int {
	return int(s.queued.Load())
}
