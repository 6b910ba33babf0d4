package demo

import (
	"errors"

	"github.com/pumped-fn/playerx"
)

// Playback is the playback state of a source
type Playback string

const (
	Suspended Playback = "suspended"
	Paused    Playback = "paused"
	Playing   Playback = "playing"
	Seeking   Playback = "seeking"
	Stalled   Playback = "stalled"
	Ended     Playback = "ended"
)

// PlaybackState is tracked per source. Playhead, Duration and PlaybackRate
// are -1 until the element reports them and zero while suspended.
type PlaybackState struct {
	State        Playback
	Playhead     float64
	Duration     float64
	PlaybackRate float64
}

// VideoElementState lets subscribers react to the element of the source
// being attached or detached.
type VideoElementState struct {
	Element *Video
}

const (
	playbackStoreName     = "playbackState"
	videoElementStoreName = "videoElementState"
)

var errVideoReplaced = errors.New("video element replaced")

// PlaybackStatePackage keeps a PlaybackState atom in sync with the video
// element of the active source and exports it as PlaybackStateKey.
func PlaybackStatePackage() *playerx.Package {
	return &playerx.Package{
		Name:         "playback-state",
		Dependencies: []string{LoggerKey.Name(), SourceStateKey.Name()},
		Install:      installPlaybackState,
	}
}

func installPlaybackState(base *playerx.ExecutionCtx) error {
	ctx := base.Using(playerx.StateEffect)
	st := playerx.StateEffect.MustFrom(ctx)

	playback := playerx.Create(st, PlaybackState{State: Suspended}, PlaybackReducers(), playerx.WithAtomName("playback-state"))
	videoElement := playerx.Create(st, VideoElementState{}, playerx.Reducers[VideoElementState]{
		"set": func(s *VideoElementState, args ...any) bool {
			video, _ := arg[*Video](args)
			if s.Element == video {
				return false
			}
			s.Element = video
			return true
		},
	}, playerx.WithAtomName("video-element-state"))

	ctx = ctx.Using(
		playerx.StoreEffect(playbackStoreName, playback),
		playerx.StoreEffect(videoElementStoreName, videoElement),
		playerx.EventsEffect,
	)

	source, err := playerx.Get(ctx.Registry(), SourceStateKey)
	if err != nil {
		return err
	}
	logger, err := playerx.Get(ctx.Registry(), LoggerKey)
	if err != nil {
		return err
	}

	if _, err := playerx.Subscribe(ctx, videoElement, videoElementSubscriber()); err != nil {
		return err
	}
	if _, _, err := playerx.SubscribeAndRun(ctx, source, sourceStateChangeSubscriber); err != nil {
		return err
	}
	if err := playerx.Set(ctx.Registry(), PlaybackStateKey, playback); err != nil {
		return err
	}

	_, err = playerx.Subscribe(ctx, playback, playerx.NewStep("playback-state-subscriber",
		func(ctx *playerx.ExecutionCtx, state PlaybackState) error {
			url := source.Value().URL
			if state.State == Suspended {
				logger.Info("[Playback suspended]", "source", url)
				return nil
			}
			logger.Info("[PlaybackState changed]",
				"source", url,
				"state", string(state.State),
				"playhead", state.Playhead,
				"duration", state.Duration,
				"playbackRate", state.PlaybackRate,
			)
			return nil
		}))
	return err
}

var sourceStateChangeSubscriber = playerx.NewStep("source-state-change-subscriber",
	func(ctx *playerx.ExecutionCtx, source Source) error {
		st := playerx.StateEffect.MustFrom(ctx)
		playback, err := playerx.LookupAtom[PlaybackState](ctx, playbackStoreName)
		if err != nil {
			return err
		}
		videoElement, err := playerx.LookupAtom[VideoElementState](ctx, videoElementStoreName)
		if err != nil {
			return err
		}

		if _, err := st.Dispatch(videoElement, "set", source.Video); err != nil {
			return err
		}
		if source.Video == nil {
			_, err = st.Dispatch(playback, "onSuspended")
			return err
		}
		if _, err := st.Dispatch(playback, "onResume"); err != nil {
			return err
		}
		_, err = st.Dispatch(playback, "onPlaybackRateChange", source.Video.PlaybackRate())
		return err
	})

// videoElementSubscriber attaches the element listeners and loops so they
// stay attached. A newer run replaces the previous one.
func videoElementSubscriber() *playerx.Task[VideoElementState, struct{}] {
	current := &latest{}

	return playerx.NewStep("video-element-subscriber", func(ctx *playerx.ExecutionCtx, state VideoElementState) error {
		current.replace(ctx.Signal(), errVideoReplaced)

		video := state.Element
		if video == nil {
			return nil
		}

		st := playerx.StateEffect.MustFrom(ctx)
		events := playerx.EventsEffect.MustFrom(ctx)
		playback, err := playerx.LookupAtom[PlaybackState](ctx, playbackStoreName)
		if err != nil {
			return err
		}

		if _, err := st.Dispatch(playback, "onPlaybackRateChange", video.PlaybackRate()); err != nil {
			return err
		}

		forward := func(event, reducer string, args func(playerx.Event) []any) {
			events.Subscribe(video, event, playerx.NewStep(event+"-subscriber",
				func(ctx *playerx.ExecutionCtx, e playerx.Event) error {
					_, err := st.Dispatch(playback, reducer, args(e)...)
					return err
				}))
		}
		payload := func(e playerx.Event) []any { return []any{e.Payload} }
		none := func(playerx.Event) []any { return nil }

		forward(EventTimeUpdate, "onTimeupdate", payload)
		forward(EventDurationChange, "onDurationChange", payload)
		forward(EventRateChange, "onPlaybackRateChange", payload)
		forward(EventSeeking, "onSeek", none)
		forward(EventSeeked, "onSeeked", payload)
		forward(EventStalled, "onStalled", none)
		forward(EventWaiting, "onWaiting", none)
		forward(EventPlaying, "onPlaying", none)
		forward(EventPause, "onPaused", none)
		forward(EventEnded, "onEnded", none)

		return ctx.Loop()
	})
}

// PlaybackReducers are the reducers of the PlaybackState atom
func PlaybackReducers() playerx.Reducers[PlaybackState] {
	active := func(fn func(s *PlaybackState, args []any) bool) playerx.Reducer[PlaybackState] {
		return func(s *PlaybackState, args ...any) bool {
			if s.State == Suspended {
				return false
			}
			return fn(s, args)
		}
	}
	transition := func(to Playback, unless ...Playback) playerx.Reducer[PlaybackState] {
		return active(func(s *PlaybackState, _ []any) bool {
			if s.State == to {
				return false
			}
			for _, state := range unless {
				if s.State == state {
					return false
				}
			}
			s.State = to
			return true
		})
	}
	number := func(field func(s *PlaybackState) *float64) playerx.Reducer[PlaybackState] {
		return active(func(s *PlaybackState, args []any) bool {
			v, ok := arg[float64](args)
			if !ok || *field(s) == v {
				return false
			}
			*field(s) = v
			return true
		})
	}

	return playerx.Reducers[PlaybackState]{
		"onSuspended": func(s *PlaybackState, _ ...any) bool {
			if s.State == Suspended {
				return false
			}
			*s = PlaybackState{State: Suspended}
			return true
		},
		"onResume": func(s *PlaybackState, _ ...any) bool {
			if s.State != Suspended {
				return false
			}
			*s = PlaybackState{State: Paused, Playhead: -1, Duration: -1, PlaybackRate: -1}
			return true
		},
		"onTimeupdate":         number(func(s *PlaybackState) *float64 { return &s.Playhead }),
		"onDurationChange":     number(func(s *PlaybackState) *float64 { return &s.Duration }),
		"onPlaybackRateChange": number(func(s *PlaybackState) *float64 { return &s.PlaybackRate }),
		"onSeek":               transition(Seeking),
		"onSeeked": active(func(s *PlaybackState, args []any) bool {
			if s.State != Seeking {
				return false
			}
			if playing, _ := arg[bool](args); playing {
				s.State = Playing
			} else {
				s.State = Paused
			}
			return true
		}),
		"onStalled": transition(Stalled),
		"onWaiting": transition(Stalled),
		"onPlaying": transition(Playing),
		"onPaused":  transition(Paused, Ended),
		"onEnded":   transition(Ended),
	}
}
