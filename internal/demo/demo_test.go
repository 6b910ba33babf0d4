package demo

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumped-fn/playerx"
)

func newRuntime(t *testing.T) *playerx.Runtime {
	t.Helper()
	rt := playerx.NewRuntime()
	t.Cleanup(func() { _ = rt.Dispose() })
	return rt
}

func fastOrigin(url string) (int, int, time.Duration, time.Duration) {
	return 200, 64_000, time.Millisecond, 2 * time.Millisecond
}

func newPlayer(t *testing.T, rt *playerx.Runtime, origin Origin) *Player {
	t.Helper()
	p, err := NewPlayer(rt, Config{
		Source: "demo://sintel",
		Tick:   5 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), origin)
	require.NoError(t, err)
	return p
}

func playbackOf(t *testing.T, rt *playerx.Runtime) *playerx.Atom[PlaybackState] {
	t.Helper()
	atom, err := playerx.Get(rt.Registry(), PlaybackStateKey)
	require.NoError(t, err)
	return atom
}

func TestHelloWorldPackage(t *testing.T) {
	rt := newRuntime(t)

	require.NoError(t, rt.Install(HelloWorldPackage()))
	assert.Equal(t, []string{"hello-world"}, rt.Pending())

	var buf bytes.Buffer
	require.NoError(t, playerx.Set(rt.Registry(), LoggerKey, slog.New(slog.NewTextHandler(&buf, nil))))

	assert.Empty(t, rt.Pending())
	assert.Contains(t, buf.String(), "Hello World!")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestPlaybackReducers(t *testing.T) {
	reducers := PlaybackReducers()
	active := func(state Playback) PlaybackState {
		return PlaybackState{State: state, Playhead: 1, Duration: 10, PlaybackRate: 1}
	}

	tests := []struct {
		name    string
		from    PlaybackState
		reducer string
		args    []any
		changed bool
		want    PlaybackState
	}{
		{"resume from suspended", PlaybackState{State: Suspended}, "onResume", nil, true, PlaybackState{State: Paused, Playhead: -1, Duration: -1, PlaybackRate: -1}},
		{"resume while active", active(Playing), "onResume", nil, false, active(Playing)},
		{"suspend clears fields", active(Playing), "onSuspended", nil, true, PlaybackState{State: Suspended}},
		{"suspended ignores events", PlaybackState{State: Suspended}, "onPlaying", nil, false, PlaybackState{State: Suspended}},
		{"timeupdate", active(Playing), "onTimeupdate", []any{4.5}, true, PlaybackState{State: Playing, Playhead: 4.5, Duration: 10, PlaybackRate: 1}},
		{"same playhead", active(Playing), "onTimeupdate", []any{1.0}, false, active(Playing)},
		{"timeupdate without argument", active(Playing), "onTimeupdate", nil, false, active(Playing)},
		{"duration", active(Paused), "onDurationChange", []any{60.0}, true, PlaybackState{State: Paused, Playhead: 1, Duration: 60, PlaybackRate: 1}},
		{"rate", active(Paused), "onPlaybackRateChange", []any{2.0}, true, PlaybackState{State: Paused, Playhead: 1, Duration: 10, PlaybackRate: 2}},
		{"seek", active(Playing), "onSeek", nil, true, active(Seeking)},
		{"seek while seeking", active(Seeking), "onSeek", nil, false, active(Seeking)},
		{"seeked while playing", active(Seeking), "onSeeked", []any{true}, true, active(Playing)},
		{"seeked while paused", active(Seeking), "onSeeked", []any{false}, true, active(Paused)},
		{"seeked without seek", active(Playing), "onSeeked", []any{true}, false, active(Playing)},
		{"waiting", active(Playing), "onWaiting", nil, true, active(Stalled)},
		{"stalled twice", active(Stalled), "onStalled", nil, false, active(Stalled)},
		{"pause", active(Playing), "onPaused", nil, true, active(Paused)},
		{"pause after end", active(Ended), "onPaused", nil, false, active(Ended)},
		{"ended", active(Playing), "onEnded", nil, true, active(Ended)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.from
			reducer, ok := reducers[tt.reducer]
			require.True(t, ok)

			assert.Equal(t, tt.changed, reducer(&state, tt.args...))
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestPlaybackStatePackage_FollowsVideoEvents(t *testing.T) {
	rt := newRuntime(t)
	p := newPlayer(t, rt, fastOrigin)
	require.NoError(t, rt.Install(PlaybackStatePackage()))

	playback := playbackOf(t, rt)
	video := p.Video()
	stateIs := func(want Playback) func() bool {
		return func() bool { return playback.Value().State == want }
	}

	_, err := p.Source().Dispatch("attach", video)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return video.Listeners(EventPlaying) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, Paused, playback.Value().State)
	assert.Equal(t, 1.0, playback.Value().PlaybackRate)

	video.Load(time.Minute)
	video.Play()
	require.Eventually(t, stateIs(Playing), time.Second, time.Millisecond)
	assert.Equal(t, 60.0, playback.Value().Duration)

	video.Seek(12)
	require.Eventually(t, func() bool {
		s := playback.Value()
		return s.State == Playing && s.Playhead == 12
	}, time.Second, time.Millisecond)

	video.Stall()
	require.Eventually(t, stateIs(Stalled), time.Second, time.Millisecond)
	video.Recover()
	require.Eventually(t, stateIs(Playing), time.Second, time.Millisecond)

	video.SetPlaybackRate(1.5)
	video.Pause()
	require.Eventually(t, stateIs(Paused), time.Second, time.Millisecond)
	assert.Equal(t, 1.5, playback.Value().PlaybackRate)

	_, err = p.Source().Dispatch("detach")
	require.NoError(t, err)
	require.Eventually(t, stateIs(Suspended), time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return video.Listeners(EventTimeUpdate) == 0 }, time.Second, time.Millisecond,
		"listeners are removed once the element subscriber is replaced")
}

func TestPlaybackStatePackage_UninstallRemovesListeners(t *testing.T) {
	rt := newRuntime(t)
	p := newPlayer(t, rt, fastOrigin)
	require.NoError(t, rt.Install(PlaybackStatePackage()))

	_, err := p.Source().Dispatch("attach", p.Video())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Video().Listeners(EventEnded) == 1 }, time.Second, time.Millisecond)

	require.True(t, rt.Uninstall("playback-state"))
	assert.Zero(t, p.Video().Listeners(EventEnded))
}

func TestResizeTrackerPackage(t *testing.T) {
	rt := newRuntime(t)
	p := newPlayer(t, rt, fastOrigin)
	video := p.Video()

	_, err := p.Source().Dispatch("attach", video)
	require.NoError(t, err)
	require.NoError(t, rt.Install(ResizeTrackerPackage()))

	require.Eventually(t, func() bool { return video.Observers() == 1 }, time.Second, time.Millisecond,
		"the initial run observes an element attached before install")

	tracker, err := playerx.Get(rt.Registry(), ResizeTrackerStateKey)
	require.NoError(t, err)

	video.Resize(640, 360)
	require.Eventually(t, func() bool {
		entries := tracker.Value().Entries
		return len(entries) == 1 && entries[0].Width == 640 && entries[0].Height == 360
	}, time.Second, time.Millisecond)

	_, err = p.Source().Dispatch("detach")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return video.Observers() == 0 }, time.Second, time.Millisecond,
		"the subscriber run supersedes the initial run")

	_, err = p.Source().Dispatch("attach", video)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return video.Observers() == 1 }, time.Second, time.Millisecond)
}

func TestTrackDownload(t *testing.T) {
	opened := time.Unix(100, 0)
	res := &Response{
		Status: 200,
		Length: 1000,
		Timing: Timing{
			Opened:          opened,
			HeadersReceived: opened.Add(100 * time.Millisecond),
			Done:            opened.Add(600 * time.Millisecond),
		},
	}

	info := defaultDownloadInfo()
	require.True(t, TrackDownload(&info, res))
	assert.Equal(t, DownloadInfo{Size: 1000, DownloadDuration: 0.5, TimeToFirstByte: 0.1}, info)

	failed := *res
	failed.Status = 503
	assert.False(t, TrackDownload(&info, &failed))

	untimed := *res
	untimed.Timing.Done = time.Time{}
	assert.False(t, TrackDownload(&info, &untimed))
	assert.False(t, TrackDownload(&info))
}

func TestAddDownloadInfo_KeepsHistoryBounded(t *testing.T) {
	stats := newDownloadStatistics(2)

	require.True(t, AddDownloadInfo(&stats, DownloadInfo{Size: 100, DownloadDuration: 1, TimeToFirstByte: 0.2}))
	assert.Equal(t, 100.0, stats.AverageBytesPerSecond)
	assert.InDelta(t, 0.2, stats.AverageTimeToFirstByte, 1e-9)

	require.True(t, AddDownloadInfo(&stats, DownloadInfo{Size: 300, DownloadDuration: 1, TimeToFirstByte: 0.4}))
	require.True(t, AddDownloadInfo(&stats, DownloadInfo{Size: 500, DownloadDuration: 3, TimeToFirstByte: 0.6}))

	require.Len(t, stats.DownloadInfos, 2)
	assert.Equal(t, 300, stats.DownloadInfos[0].Size)
	assert.Equal(t, 200.0, stats.AverageBytesPerSecond)
	assert.InDelta(t, 0.5, stats.AverageTimeToFirstByte, 1e-9)

	assert.False(t, AddDownloadInfo(&stats, "not a download"))
}

func TestNetworkInspector_TracksDownloads(t *testing.T) {
	rt := newRuntime(t)
	var calls []string
	var mu sync.Mutex
	newPlayer(t, rt, func(url string) (int, int, time.Duration, time.Duration) {
		mu.Lock()
		calls = append(calls, url)
		mu.Unlock()
		if url == "missing" {
			return 404, 0, 0, 0
		}
		return fastOrigin(url)
	})

	require.NoError(t, rt.Install(DownloadStatisticsPackage(DefaultHistoryLength), NetworkInspectorPackage()))
	assert.ElementsMatch(t, []string{"network-inspector", "download-statistics"}, rt.Installed())

	task, err := NetworkTask(rt.Registry())
	require.NoError(t, err)
	assert.True(t, task.IsWrapped())

	res, err := playerx.Fork(rt.Context(), task, Request{URL: "segment-001.m4s"}).Wait()
	require.NoError(t, err)
	assert.Equal(t, 64_000, res.Length)

	info := playerx.MustGet(rt.Registry(), DownloadInfoKey)
	assert.Equal(t, 64_000, info.Value().Size)
	assert.Greater(t, info.Value().TimeToFirstByte, 0.0)

	stats := playerx.MustGet(rt.Registry(), DownloadStatisticsKey)
	require.Eventually(t, func() bool { return len(stats.Value().DownloadInfos) == 1 }, time.Second, time.Millisecond)
	assert.Greater(t, stats.Value().AverageBytesPerSecond, 0.0)

	_, err = playerx.Fork(rt.Context(), task, Request{URL: "missing"}).Wait()
	require.Error(t, err)
	assert.Equal(t, 64_000, info.Value().Size, "failed downloads are not tracked")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"segment-001.m4s", "missing"}, calls)
}

func TestNetworkTask_Aborted(t *testing.T) {
	rt := newRuntime(t)
	task := NewNetworkTask(func(string) (int, int, time.Duration, time.Duration) {
		return 200, 1, time.Hour, 0
	})

	h := playerx.Fork(rt.Context(), task, Request{URL: "slow"})
	h.Abort(errors.New("seeked away"))

	_, err := h.Wait()
	require.ErrorIs(t, err, playerx.ErrAborted)
}

func TestPlayer_Run(t *testing.T) {
	rt := newRuntime(t)
	p := newPlayer(t, rt, fastOrigin)
	require.NoError(t, rt.Install(Packages()...))

	var mu sync.Mutex
	var seen []Playback
	ctx := rt.Context().Using(playerx.StateEffect)
	_, err := playerx.Subscribe(ctx, playbackOf(t, rt), playerx.NewStep("record", func(_ *playerx.ExecutionCtx, s PlaybackState) error {
		mu.Lock()
		seen = append(seen, s.State)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, p.Run(40*time.Millisecond))

	report := p.Report()
	assert.Equal(t, "demo://sintel", report.Source)
	assert.Equal(t, Suspended, report.Playback.State)
	assert.Empty(t, report.Pending)
	assert.Len(t, report.Installed, len(Packages()))
	assert.Greater(t, report.Executions, 0)

	require.NotEmpty(t, report.Resize.Entries)
	assert.Equal(t, 1280.0, report.Resize.Entries[0].Width)

	assert.Len(t, report.Downloads.DownloadInfos, 2)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, Playing)
	assert.Equal(t, Suspended, seen[len(seen)-1])
	assert.Zero(t, p.Video().Listeners(EventTimeUpdate))
}

func TestDefaultOrigin(t *testing.T) {
	status, length, _, _ := DefaultOrigin("demo://x/segment-003.m4s")
	assert.Equal(t, 200, status)
	assert.Equal(t, 183_000, length)

	status, _, _, _ = DefaultOrigin("demo://x/segment-010.m4s")
	assert.Equal(t, 404, status)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Tick = -time.Millisecond
	assert.Error(t, cfg.Validate())
}
