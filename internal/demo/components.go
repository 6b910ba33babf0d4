// Package demo holds player packages built on the playerx runtime: a
// greeting, playback state tracking, element resize tracking and segment
// download statistics, plus the simulated player that drives them.
package demo

import (
	"log/slog"

	"github.com/pumped-fn/playerx"
)

// Components the player core provides in the root registry
var (
	LoggerKey      = playerx.NewKey[*slog.Logger]("logger")
	SourceStateKey = playerx.NewKey[*playerx.Atom[Source]]("source-state")
	NetworkTaskKey = playerx.NewKey[*playerx.Task[Request, *Response]]("network-task")
)

// Components exported by the demo packages
var (
	PlaybackStateKey        = playerx.NewKey[*playerx.Atom[PlaybackState]]("playback-state")
	ResizeTrackerStateKey   = playerx.NewKey[*playerx.Atom[ResizeTrackerState]]("resize-tracker-state")
	DownloadInfoKey         = playerx.NewKey[*playerx.Atom[DownloadInfo]]("download-info")
	InspectedNetworkTaskKey = playerx.NewKey[*playerx.Task[Request, *Response]]("inspected-network-task")
	DownloadStatisticsKey   = playerx.NewKey[*playerx.Atom[DownloadStatistics]]("download-statistics")
)

// Source is the state of the active source. Video is nil while no element
// is attached.
type Source struct {
	URL   string
	Video *Video
}

func sourceReducers() playerx.Reducers[Source] {
	return playerx.Reducers[Source]{
		"attach": func(s *Source, args ...any) bool {
			video, ok := arg[*Video](args)
			if !ok || s.Video == video {
				return false
			}
			s.Video = video
			return true
		},
		"detach": func(s *Source, _ ...any) bool {
			if s.Video == nil {
				return false
			}
			s.Video = nil
			return true
		},
	}
}

// arg returns the first reducer argument as T
func arg[T any](args []any) (T, bool) {
	var zero T
	if len(args) == 0 {
		return zero, false
	}
	v, ok := args[0].(T)
	return v, ok
}

// latest keeps the signal of the most recent run of a subscriber and aborts
// the run it replaces. Only task bodies touch it, so the scheduler
// serializes access.
type latest struct {
	signal *playerx.Signal
}

func (l *latest) replace(signal *playerx.Signal, reason error) {
	prev := l.signal
	l.signal = signal
	if prev != nil && prev != signal {
		prev.Abort(reason)
	}
}
