package playerx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_ExclusiveIsReentrant(t *testing.T) {
	s := newScheduler()

	ran := false
	s.exclusive(func() {
		assert.True(t, s.holding())
		s.exclusive(func() {
			ran = true
		})
	})

	assert.True(t, ran)
	assert.False(t, s.holding())
}

func TestScheduler_OneHolderAtATime(t *testing.T) {
	s := newScheduler()

	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.exclusive(func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Zero(t, s.pending())
}

func TestScheduler_TicketsAreFIFO(t *testing.T) {
	s := newScheduler()
	s.acquire()

	var order []int
	var wg sync.WaitGroup
	tickets := make([]chan struct{}, 3)
	for i := range tickets {
		tickets[i] = s.ticket()
	}
	assert.Equal(t, 3, s.pending())

	for i := len(tickets) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.claim(tickets[i])
			order = append(order, i)
			s.release()
		}(i)
	}

	s.release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestScheduler_SuspendReleasesBaton(t *testing.T) {
	s := newScheduler()
	s.acquire()

	other := make(chan struct{})
	go func() {
		s.exclusive(func() {})
		close(other)
	}()

	s.suspend(func() {
		<-other
	})
	assert.True(t, s.holding())
	s.release()
}
