package demo

import (
	"errors"
	"slices"

	"github.com/pumped-fn/playerx"
)

// ResizeTrackerState holds the last batch of size changes of the element
type ResizeTrackerState struct {
	Entries []playerx.ResizeEntry
}

const resizeTrackerStoreName = "resizeTrackerState"

var errResizeSuperseded = errors.New("aborted due to subscriber triggering")

// ResizeTrackerPackage records size changes of the active source's video
// element and exports them as ResizeTrackerStateKey.
func ResizeTrackerPackage() *playerx.Package {
	return &playerx.Package{
		Name:         "resize-tracker",
		Dependencies: []string{LoggerKey.Name(), SourceStateKey.Name()},
		Install:      installResizeTracker,
	}
}

func installResizeTracker(base *playerx.ExecutionCtx) error {
	ctx := base.Using(playerx.StateEffect)
	st := playerx.StateEffect.MustFrom(ctx)

	tracker := playerx.Create(st, ResizeTrackerState{}, playerx.Reducers[ResizeTrackerState]{
		"set": func(s *ResizeTrackerState, args ...any) bool {
			entries, _ := arg[[]playerx.ResizeEntry](args)
			if slices.Equal(s.Entries, entries) {
				return false
			}
			s.Entries = entries
			return true
		},
	}, playerx.WithAtomName("resize-tracker-state"))

	ctx = ctx.Using(playerx.StoreEffect(resizeTrackerStoreName, tracker), playerx.ResizeEffect)

	if err := playerx.Set(ctx.Registry(), ResizeTrackerStateKey, tracker); err != nil {
		return err
	}

	source, err := playerx.Get(ctx.Registry(), SourceStateKey)
	if err != nil {
		return err
	}

	// The first run covers an element attached before install. Any later
	// run supersedes it.
	_, _, err = playerx.SubscribeAndRun(ctx, source, resizeSubscriber())
	return err
}

func resizeSubscriber() *playerx.Task[Source, struct{}] {
	current := &latest{}

	return playerx.NewStep("video-element-subscriber", func(ctx *playerx.ExecutionCtx, source Source) error {
		current.replace(ctx.Signal(), errResizeSuperseded)

		video := source.Video
		if video == nil {
			return nil
		}

		st := playerx.StateEffect.MustFrom(ctx)
		resize := playerx.ResizeEffect.MustFrom(ctx)
		logger := playerx.MustGet(ctx.Registry(), LoggerKey)
		tracker, err := playerx.LookupAtom[ResizeTrackerState](ctx, resizeTrackerStoreName)
		if err != nil {
			return err
		}

		resize.Subscribe(video, playerx.NewStep("element-resize-observer",
			func(ctx *playerx.ExecutionCtx, entries []playerx.ResizeEntry) error {
				for _, entry := range entries {
					logger.Info("[RT]", "width", entry.Width, "height", entry.Height)
				}
				_, err := st.Dispatch(tracker, "set", entries)
				return err
			}))

		return ctx.Loop()
	})
}
