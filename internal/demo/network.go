package demo

import (
	"fmt"
	"time"

	"github.com/pumped-fn/playerx"
)

// Request asks the network task for a resource
type Request struct {
	URL string
}

// Timing holds the milestones of a finished request
type Timing struct {
	Opened          time.Time
	HeadersReceived time.Time
	Done            time.Time
}

// Response is what the network task resolves with
type Response struct {
	URL    string
	Status int
	Length int
	Timing Timing
}

// Origin decides how the simulated network serves url: the status code, the
// body length and how long the headers and the body take to arrive.
type Origin func(url string) (status, length int, firstByte, transfer time.Duration)

// NewNetworkTask returns the task the player uses to download resources
// from origin. Waiting on the origin suspends the task, so other tasks keep
// running in the meantime.
func NewNetworkTask(origin Origin) *playerx.Task[Request, *Response] {
	return playerx.NewTask("network-task", func(ctx *playerx.ExecutionCtx, req Request) (*Response, error) {
		status, length, firstByte, transfer := origin(req.URL)

		res := &Response{URL: req.URL, Status: status, Length: length}
		res.Timing.Opened = time.Now()
		if err := playerx.Timeout(ctx, firstByte); err != nil {
			return nil, err
		}
		res.Timing.HeadersReceived = time.Now()
		if err := playerx.Timeout(ctx, transfer); err != nil {
			return nil, err
		}
		res.Timing.Done = time.Now()

		if status >= 400 {
			return res, fmt.Errorf("GET %s: status %d", req.URL, status)
		}
		return res, nil
	})
}

// DownloadInfo describes the last successful download. Size and the
// durations are -1 until a download was tracked.
type DownloadInfo struct {
	Size             int
	DownloadDuration float64
	TimeToFirstByte  float64
}

func defaultDownloadInfo() DownloadInfo {
	return DownloadInfo{Size: -1, DownloadDuration: -1, TimeToFirstByte: -1}
}

// TrackDownload is the reducer feeding DownloadInfo from a response. Failed
// responses and responses without timing information are ignored.
func TrackDownload(info *DownloadInfo, args ...any) bool {
	res, ok := arg[*Response](args)
	if !ok || res == nil {
		return false
	}
	t := res.Timing
	if res.Status < 200 || res.Status >= 300 || t.Opened.IsZero() || t.HeadersReceived.IsZero() || t.Done.IsZero() {
		return false
	}

	info.Size = res.Length
	info.DownloadDuration = t.Done.Sub(t.HeadersReceived).Seconds()
	info.TimeToFirstByte = t.HeadersReceived.Sub(t.Opened).Seconds()
	return true
}

// NetworkInspectorPackage wraps the network task so every response is
// tracked in a DownloadInfo atom. The wrapped task is exported as
// InspectedNetworkTaskKey and the atom as DownloadInfoKey.
func NetworkInspectorPackage() *playerx.Package {
	return &playerx.Package{
		Name:         "network-inspector",
		Dependencies: []string{NetworkTaskKey.Name()},
		Install:      installNetworkInspector,
	}
}

func installNetworkInspector(base *playerx.ExecutionCtx) error {
	ctx := base.Using(playerx.StateEffect)
	st := playerx.StateEffect.MustFrom(ctx)

	info := playerx.Create(st, defaultDownloadInfo(), playerx.Reducers[DownloadInfo]{
		"trackDownload": TrackDownload,
	}, playerx.WithAtomName("download-info"))
	if err := playerx.Set(ctx.Registry(), DownloadInfoKey, info); err != nil {
		return err
	}

	inner, err := playerx.Get(ctx.Registry(), NetworkTaskKey)
	if err != nil {
		return err
	}
	if inner.IsWrapped() {
		return playerx.Set(ctx.Registry(), InspectedNetworkTaskKey, inner)
	}

	return playerx.Set(ctx.Registry(), InspectedNetworkTaskKey, WrapNetworkTask(inner, info))
}

// WrapNetworkTask returns inner wrapped so each response is dispatched to
// info. Failed requests are passed through untracked.
func WrapNetworkTask(inner *playerx.Task[Request, *Response], info *playerx.Atom[DownloadInfo]) *playerx.Task[Request, *Response] {
	return playerx.Wrap("network-task-wrapper", inner,
		func(ctx *playerx.ExecutionCtx, req Request, next func(*playerx.ExecutionCtx, Request) (*Response, error)) (*Response, error) {
			res, err := next(ctx, req)
			if err != nil {
				return res, err
			}
			if _, err := info.Dispatch("trackDownload", res); err != nil {
				return res, err
			}
			return res, nil
		})
}

// NetworkTask returns the task downloads should go through: the inspected
// one when the inspector is installed, the plain one otherwise.
func NetworkTask(reg *playerx.Registry) (*playerx.Task[Request, *Response], error) {
	if task, err := playerx.Get(reg, InspectedNetworkTaskKey); err == nil {
		return task, nil
	}
	return playerx.Get(reg, NetworkTaskKey)
}
