package demo

import (
	"sync"
	"time"

	"github.com/pumped-fn/playerx"
)

// Video events
const (
	EventTimeUpdate     = "timeupdate"
	EventDurationChange = "durationchange"
	EventRateChange     = "ratechange"
	EventSeeking        = "seeking"
	EventSeeked         = "seeked"
	EventStalled        = "stalled"
	EventWaiting        = "waiting"
	EventPlaying        = "playing"
	EventPause          = "pause"
	EventEnded          = "ended"
)

// Video is a simulated media element. It emits the events a browser video
// element emits and reports size changes to its resize observers.
type Video struct {
	*playerx.Emitter
	*playerx.ResizeObserver

	mu          sync.Mutex
	currentTime float64
	duration    float64
	rate        float64
	paused      bool
	ended       bool
}

// NewVideo creates a paused element with the given size
func NewVideo(width, height float64) *Video {
	return &Video{
		Emitter:        playerx.NewEmitter(),
		ResizeObserver: playerx.NewResizeObserver(width, height),
		rate:           1,
		paused:         true,
	}
}

func (v *Video) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentTime
}

func (v *Video) Duration() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.duration
}

func (v *Video) PlaybackRate() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rate
}

// IsPlaying reports whether the element is neither paused nor ended
func (v *Video) IsPlaying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.paused && !v.ended
}

// Load sets the media duration
func (v *Video) Load(duration time.Duration) {
	v.mu.Lock()
	v.duration = duration.Seconds()
	v.currentTime = 0
	v.ended = false
	d := v.duration
	v.mu.Unlock()

	v.Emit(EventDurationChange, d)
}

func (v *Video) Play() {
	v.mu.Lock()
	if !v.paused && !v.ended {
		v.mu.Unlock()
		return
	}
	v.paused = false
	if v.ended {
		v.ended = false
		v.currentTime = 0
	}
	v.mu.Unlock()

	v.Emit(EventPlaying, nil)
}

func (v *Video) Pause() {
	v.mu.Lock()
	if v.paused {
		v.mu.Unlock()
		return
	}
	v.paused = true
	v.mu.Unlock()

	v.Emit(EventPause, nil)
}

// Advance moves the playhead by d of wall time scaled by the playback rate.
// Reaching the end of the media pauses the element and emits ended.
func (v *Video) Advance(d time.Duration) {
	v.mu.Lock()
	if v.paused || v.ended {
		v.mu.Unlock()
		return
	}
	v.currentTime += d.Seconds() * v.rate
	ended := v.duration > 0 && v.currentTime >= v.duration
	if ended {
		v.currentTime = v.duration
		v.ended = true
		v.paused = true
	}
	t := v.currentTime
	v.mu.Unlock()

	v.Emit(EventTimeUpdate, t)
	if ended {
		v.Emit(EventEnded, nil)
	}
}

// Seek jumps to position, emitting seeking and seeked around the move
func (v *Video) Seek(position float64) {
	v.Emit(EventSeeking, position)

	v.mu.Lock()
	v.currentTime = position
	playing := !v.paused && !v.ended
	v.mu.Unlock()

	v.Emit(EventTimeUpdate, position)
	v.Emit(EventSeeked, playing)
}

func (v *Video) SetPlaybackRate(rate float64) {
	v.mu.Lock()
	if v.rate == rate {
		v.mu.Unlock()
		return
	}
	v.rate = rate
	v.mu.Unlock()

	v.Emit(EventRateChange, rate)
}

// Stall simulates a buffer underrun
func (v *Video) Stall() {
	v.Emit(EventWaiting, nil)
}

// Recover ends a stall
func (v *Video) Recover() {
	if v.IsPlaying() {
		v.Emit(EventPlaying, nil)
	}
}
