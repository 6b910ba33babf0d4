package demo

import (
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/pumped-fn/playerx"
)

// Player is a simulated media player. It provides the core components the
// demo packages depend on and plays its source on a simulated video
// element.
type Player struct {
	rt     *playerx.Runtime
	cfg    Config
	source *playerx.Atom[Source]
	video  *Video
}

// Report is the state of the player packages after a run
type Report struct {
	Source     string
	Playback   PlaybackState
	Resize     ResizeTrackerState
	Downloads  DownloadStatistics
	Installed  []string
	Pending    []string
	Executions int
}

// DefaultOrigin serves every segment with a fixed latency. Every tenth
// segment is missing.
func DefaultOrigin(url string) (status, length int, firstByte, transfer time.Duration) {
	var n int
	if _, err := fmt.Sscanf(path.Base(url), "segment-%d.m4s", &n); err == nil && n > 0 && n%10 == 0 {
		return 404, 0, 2 * time.Millisecond, 0
	}
	return 200, 180_000 + n*1_000, 4 * time.Millisecond, 12 * time.Millisecond
}

// NewPlayer registers the core components in rt's registry: the logger, the
// source state atom and the network task downloading from origin.
func NewPlayer(rt *playerx.Runtime, cfg Config, logger *slog.Logger, origin Origin) (*Player, error) {
	if logger == nil {
		logger = rt.Logger()
	}
	if origin == nil {
		origin = DefaultOrigin
	}

	ctx := rt.Context().Using(playerx.StateEffect)
	source, err := playerx.NewAtom(ctx, Source{URL: cfg.Source}, sourceReducers(), playerx.WithAtomName("source-state"))
	if err != nil {
		return nil, err
	}

	reg := rt.Registry()
	if err := playerx.Set(reg, LoggerKey, logger); err != nil {
		return nil, err
	}
	if err := playerx.Set(reg, SourceStateKey, source); err != nil {
		return nil, err
	}
	if err := playerx.Set(reg, NetworkTaskKey, NewNetworkTask(origin)); err != nil {
		return nil, err
	}

	return &Player{
		rt:     rt,
		cfg:    cfg,
		source: source,
		video:  NewVideo(1920, 1080),
	}, nil
}

// Packages returns every demo package
func Packages() []*playerx.Package {
	return []*playerx.Package{
		HelloWorldPackage(),
		PlaybackStatePackage(),
		ResizeTrackerPackage(),
		NetworkInspectorPackage(),
		DownloadStatisticsPackage(DefaultHistoryLength),
	}
}

func (p *Player) Video() *Video {
	return p.video
}

func (p *Player) Source() *playerx.Atom[Source] {
	return p.source
}

// Run attaches the video element, plays for d and detaches the element
// again. Every fourth tick downloads the next segment.
func (p *Player) Run(d time.Duration) error {
	_, err := playerx.Fork(p.rt.Context(), p.playbackTask(), d).Wait()
	return err
}

func (p *Player) playbackTask() *playerx.Task[time.Duration, struct{}] {
	return playerx.NewStep("playback-simulation", func(ctx *playerx.ExecutionCtx, d time.Duration) error {
		tick := p.cfg.Tick
		if tick <= 0 {
			tick = DefaultConfig().Tick
		}

		if _, err := p.source.Dispatch("attach", p.video); err != nil {
			return err
		}
		if err := awaitPlayback(ctx, func(s PlaybackState) bool { return s.State != Suspended }); err != nil {
			return err
		}
		p.video.Load(10 * time.Minute)
		p.video.Play()

		segment := 0
		ticks := int(d / tick)
		for i := 1; i <= ticks; i++ {
			if err := playerx.Timeout(ctx, tick); err != nil {
				return err
			}
			p.video.Advance(tick)

			if i == ticks/2 {
				p.video.Resize(1280, 720)
			}
			if i%4 == 1 {
				segment++
				if err := p.download(ctx, segment); err != nil {
					ctx.Logger().Warn("segment download failed", "segment", segment, "error", err.Error())
				}
			}
		}

		p.video.Pause()
		if _, err := p.source.Dispatch("detach"); err != nil {
			return err
		}
		return awaitPlayback(ctx, func(s PlaybackState) bool { return s.State == Suspended })
	})
}

// awaitPlayback suspends until the playback state satisfies cond, giving the
// subscribers of the source a chance to run. Without the playback package
// there is nothing to wait for.
func awaitPlayback(ctx *playerx.ExecutionCtx, cond func(PlaybackState) bool) error {
	atom, err := playerx.Get(ctx.Registry(), PlaybackStateKey)
	if err != nil {
		return nil
	}
	_, err = playerx.WaitFor(ctx, atom, cond)
	return err
}

func (p *Player) download(ctx *playerx.ExecutionCtx, segment int) error {
	task, err := NetworkTask(ctx.Registry())
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/segment-%03d.m4s", p.source.Value().URL, segment)
	_, err = playerx.Fork(ctx, task, Request{URL: url}).Wait()
	return err
}

// Report collects the exported state of the installed packages
func (p *Player) Report() Report {
	reg := p.rt.Registry()
	report := Report{
		Source:     p.source.Value().URL,
		Installed:  p.rt.Installed(),
		Pending:    p.rt.Pending(),
		Executions: p.rt.ExecutionTree().Len(),
	}
	if atom, err := playerx.Get(reg, PlaybackStateKey); err == nil {
		report.Playback = atom.Value()
	}
	if atom, err := playerx.Get(reg, ResizeTrackerStateKey); err == nil {
		report.Resize = atom.Value()
	}
	if atom, err := playerx.Get(reg, DownloadStatisticsKey); err == nil {
		report.Downloads = atom.Value()
	}
	return report
}
