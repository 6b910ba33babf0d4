package extensions

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/pumped-fn/playerx"
)

func TestTreeDebugExtension_TaskFailure(t *testing.T) {
	var buf bytes.Buffer
	rt := playerx.NewRuntime(
		playerx.WithExtension(NewTreeDebugExtension(NewHumanHandler(&buf, slog.LevelError))),
	)
	defer rt.Dispose()

	segment := playerx.NewTask("segment-loader", func(ctx *playerx.ExecutionCtx, _ struct{}) (int, error) {
		return 0, errors.New("segment 7 not found")
	})
	done := playerx.NewStep("manifest-parsed", func(*playerx.ExecutionCtx, struct{}) error { return nil })
	playlist := playerx.NewTask("playlist", func(ctx *playerx.ExecutionCtx, _ struct{}) (int, error) {
		if _, err := playerx.Fork(ctx, done, struct{}{}).Wait(); err != nil {
			return 0, err
		}
		return playerx.Fork(ctx, segment, struct{}{}).Wait()
	})

	_, err := playerx.Fork(rt.Context(), playlist, struct{}{}).Wait()
	require.Error(t, err)

	output := buf.String()
	assert.Contains(t, output, strings.Repeat("=", 70))
	assert.Contains(t, output, "[TreeDebug] Task Failure")
	assert.Contains(t, output, "Failed Task: segment-loader")
	assert.Contains(t, output, "Error: segment 7 not found")
	assert.Contains(t, output, "segment-loader ❌ FAILED")
	assert.Contains(t, output, "Failed Task: playlist")
	assert.Contains(t, output, "manifest-parsed ✓")
}

func TestTreeDebugExtension_TaskPanic(t *testing.T) {
	var buf bytes.Buffer
	rt := playerx.NewRuntime(
		playerx.WithExtension(NewTreeDebugExtension(NewHumanHandler(&buf, slog.LevelError))),
	)
	defer rt.Dispose()

	_, err := playerx.Fork(rt.Context(), playerx.NewStep("decrypt", func(*playerx.ExecutionCtx, struct{}) error {
		panic("bad key length")
	}), struct{}{}).Wait()
	require.Error(t, err)

	output := buf.String()
	assert.Contains(t, output, "[TreeDebug] Task Panic")
	assert.Contains(t, output, "Panic: bad key length")
	assert.Contains(t, output, "Task: decrypt")
	assert.Contains(t, output, "Stack Trace:")
	assert.NotContains(t, output, "Task Failure", "panics are reported once")
}

func TestTreeDebugExtension_IgnoresAborts(t *testing.T) {
	var buf bytes.Buffer
	rt := playerx.NewRuntime(
		playerx.WithExtension(NewTreeDebugExtension(NewHumanHandler(&buf, slog.LevelError))),
	)

	started := make(chan struct{})
	h := playerx.Fork(rt.Context(), playerx.NewStep("watch", func(ctx *playerx.ExecutionCtx, _ struct{}) error {
		close(started)
		return ctx.Loop()
	}), struct{}{})
	<-started
	require.NoError(t, rt.Dispose())
	_, err := h.Wait()
	require.ErrorIs(t, err, playerx.ErrAborted)

	assert.Empty(t, buf.String())
}

func TestTreeDebugExtension_Silent(t *testing.T) {
	rt := playerx.NewRuntime(
		playerx.WithExtension(NewTreeDebugExtension(NewSilentHandler())),
	)
	defer rt.Dispose()

	_, err := playerx.Fork(rt.Context(), playerx.NewStep("fails", func(*playerx.ExecutionCtx, struct{}) error {
		return errors.New("x")
	}), struct{}{}).Wait()
	require.Error(t, err)
}

func TestHumanHandler_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHumanHandler(&buf, slog.LevelInfo)).With("task", "hello-world")

	logger.Debug("hidden")
	logger.Info("Hello world", "source", "demo")

	assert.Equal(t, "[INFO] Hello world\n  task: hello-world\n  source: demo\n", buf.String())
}

func TestHumanHandler_OperationLines(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHumanHandler(&buf, slog.LevelDebug)).With("runtime", "demo")
	rt := playerx.NewRuntime(playerx.WithExtension(NewLoggingExtension(logger)))
	defer rt.Dispose()

	st := playerx.StateEffect.MustFrom(rt.Context().Using(playerx.StateEffect))
	counter := playerx.Create(st, 0, playerx.Reducers[int]{
		"inc":  func(v *int, _ ...any) bool { *v++; return true },
		"noop": func(*int, ...any) bool { return false },
	}, playerx.WithAtomName("counter"))
	_, err := counter.Dispatch("inc")
	require.NoError(t, err)
	_, err = counter.Dispatch("noop")
	require.NoError(t, err)

	_, err = playerx.Fork(rt.Context(), playerx.NewStep("decoder", func(*playerx.ExecutionCtx, struct{}) error {
		return errors.New("decoder error")
	}), struct{}{}).Wait()
	require.Error(t, err)

	output := buf.String()
	assert.Contains(t, output, "[DEBUG] dispatch counter.inc starting\n  runtime: demo\n")
	assert.Contains(t, output, "[DEBUG] dispatch counter.inc changed in ")
	assert.Contains(t, output, "[DEBUG] dispatch counter.noop unchanged in ")
	assert.Contains(t, output, "[ERROR] fork decoder failed after ")
	assert.Contains(t, output, "  error: decoder error\n")
	assert.NotContains(t, output, "duration:")
}

func TestLoggingExtension(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rt := playerx.NewRuntime(playerx.WithExtension(NewLoggingExtension(logger)))
	defer rt.Dispose()

	st := playerx.StateEffect.MustFrom(rt.Context().Using(playerx.StateEffect))
	counter := playerx.Create(st, 0, playerx.Reducers[int]{
		"inc": func(v *int, _ ...any) bool { *v++; return true },
	}, playerx.WithAtomName("counter"))
	_, err := counter.Dispatch("inc")
	require.NoError(t, err)

	_, err = playerx.Fork(rt.Context(), playerx.NewStep("fails", func(*playerx.ExecutionCtx, struct{}) error {
		return errors.New("decoder error")
	}), struct{}{}).Wait()
	require.Error(t, err)

	output := buf.String()
	assert.Contains(t, output, "dispatch completed")
	assert.Contains(t, output, "name=counter.inc")
	assert.Contains(t, output, "changed=true")
	assert.Contains(t, output, "operation failed")
	assert.Contains(t, output, "decoder error")
}

func TestLoggingExtension_TeardownError(t *testing.T) {
	var buf bytes.Buffer
	rt := playerx.NewRuntime(playerx.WithExtension(NewLoggingExtension(slog.New(slog.NewTextHandler(&buf, nil)))))
	defer rt.Dispose()

	failing := playerx.NewEffectFactory("media-source", func(*playerx.ExecutionCtx) (struct{}, func() error) {
		return struct{}{}, func() error { return errors.New("already detached") }
	})
	_, err := playerx.Fork(rt.Context(), playerx.NewStep("attach", func(ctx *playerx.ExecutionCtx, _ struct{}) error {
		ctx.Using(failing)
		return nil
	}), struct{}{}).Wait()
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "effect teardown failed")
	assert.Contains(t, buf.String(), "effect=media-source")
}

func TestMetricsExtension(t *testing.T) {
	reg := prometheus.NewRegistry()
	ext := NewMetricsExtension(WithRegistry(reg), WithNamespace("test"))
	rt := playerx.NewRuntime(playerx.WithExtension(ext))

	ok := playerx.NewStep("ok", func(*playerx.ExecutionCtx, struct{}) error { return nil })
	fails := playerx.NewStep("fails", func(*playerx.ExecutionCtx, struct{}) error { return errors.New("x") })
	panics := playerx.NewStep("panics", func(*playerx.ExecutionCtx, struct{}) error { panic("y") })

	for i := 0; i < 2; i++ {
		_, err := playerx.Fork(rt.Context(), ok, struct{}{}).Wait()
		require.NoError(t, err)
	}
	_, _ = playerx.Fork(rt.Context(), fails, struct{}{}).Wait()
	_, _ = playerx.Fork(rt.Context(), panics, struct{}{}).Wait()

	st := playerx.StateEffect.MustFrom(rt.Context().Using(playerx.StateEffect))
	counter := playerx.Create(st, 0, playerx.Reducers[int]{
		"inc":  func(v *int, _ ...any) bool { *v++; return true },
		"noop": func(*int, ...any) bool { return false },
	}, playerx.WithAtomName("counter"))
	_, _ = counter.Dispatch("inc")
	_, _ = counter.Dispatch("noop")
	_, _ = counter.Dispatch("missing")

	started := make(chan struct{})
	looper := playerx.Fork(rt.Context(), playerx.NewStep("looper", func(ctx *playerx.ExecutionCtx, _ struct{}) error {
		close(started)
		return ctx.Loop()
	}), struct{}{})
	<-started
	assert.Equal(t, 1.0, testutil.ToFloat64(ext.activeForks))

	require.NoError(t, rt.Dispose())
	_, _ = looper.Wait()

	assert.Equal(t, 2.0, testutil.ToFloat64(ext.forksTotal.WithLabelValues("ok", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ext.forksTotal.WithLabelValues("fails", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ext.forksTotal.WithLabelValues("panics", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ext.forksTotal.WithLabelValues("looper", "aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ext.panicsTotal.WithLabelValues("panics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ext.dispatches.WithLabelValues("counter.inc", "changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ext.dispatches.WithLabelValues("counter.noop", "unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ext.dispatches.WithLabelValues("counter.missing", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ext.activeForks))

	count, err := testutil.GatherAndCount(reg, "test_fork_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestMetricsExtension_TeardownErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	ext := NewMetricsExtension(WithRegistry(reg))
	rt := playerx.NewRuntime(playerx.WithExtension(ext))
	defer rt.Dispose()

	failing := playerx.NewEffectFactory("resize-observer", func(*playerx.ExecutionCtx) (struct{}, func() error) {
		return struct{}{}, func() error { return errors.New("disconnected") }
	})
	_, err := playerx.Fork(rt.Context(), playerx.NewStep("observe", func(ctx *playerx.ExecutionCtx, _ struct{}) error {
		ctx.Using(failing)
		return nil
	}), struct{}{}).Wait()
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(ext.teardownErrors.WithLabelValues("resize-observer")))
}

type recordedSpan struct {
	noop.Span
	name   string
	parent trace.Span

	mu     sync.Mutex
	ended  bool
	status codes.Code
	errs   []error
}

func (s *recordedSpan) End(...trace.SpanEndOption) {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

func (s *recordedSpan) SetStatus(code codes.Code, _ string) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *recordedSpan) IsRecording() bool {
	return true
}

type recordingTracer struct {
	noop.Tracer

	mu    sync.Mutex
	spans []*recordedSpan
}

func (tr *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	span := &recordedSpan{name: name, parent: trace.SpanFromContext(ctx)}
	tr.mu.Lock()
	tr.spans = append(tr.spans, span)
	tr.mu.Unlock()
	return trace.ContextWithSpan(ctx, span), span
}

func (tr *recordingTracer) byName(name string) *recordedSpan {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, s := range tr.spans {
		if s.name == name {
			return s
		}
	}
	return nil
}

type recordingProvider struct {
	noop.TracerProvider
	tracer *recordingTracer
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

func TestTracingExtension_SpanPerFork(t *testing.T) {
	tracer := &recordingTracer{}
	rt := playerx.NewRuntime(playerx.WithExtension(NewTracingExtension(
		WithTracerProvider(&recordingProvider{tracer: tracer}),
		WithDispatchSpans(true),
	)))
	defer rt.Dispose()

	child := playerx.NewTask("download-segment", func(*playerx.ExecutionCtx, struct{}) (int, error) {
		return 0, errors.New("503")
	})
	parent := playerx.NewTask("network-task", func(ctx *playerx.ExecutionCtx, _ struct{}) (int, error) {
		return playerx.Fork(ctx, child, struct{}{}).Wait()
	})

	_, err := playerx.Fork(rt.Context(), parent, struct{}{}).Wait()
	require.Error(t, err)

	parentSpan := tracer.byName("network-task")
	childSpan := tracer.byName("download-segment")
	require.NotNil(t, parentSpan)
	require.NotNil(t, childSpan)

	assert.Same(t, parentSpan, childSpan.parent)
	assert.True(t, parentSpan.ended)
	assert.True(t, childSpan.ended)
	assert.Equal(t, codes.Error, childSpan.status)
	require.Len(t, childSpan.errs, 1)

	st := playerx.StateEffect.MustFrom(rt.Context().Using(playerx.StateEffect))
	counter := playerx.Create(st, 0, playerx.Reducers[int]{
		"inc": func(v *int, _ ...any) bool { *v++; return true },
	}, playerx.WithAtomName("downloads"))
	_, err = counter.Dispatch("inc")
	require.NoError(t, err)

	dispatchSpan := tracer.byName("dispatch downloads.inc")
	require.NotNil(t, dispatchSpan)
	assert.True(t, dispatchSpan.ended)
}

func TestTracingExtension_AbortedForkIsNotAnError(t *testing.T) {
	tracer := &recordingTracer{}
	rt := playerx.NewRuntime(playerx.WithExtension(NewTracingExtension(
		WithTracerProvider(&recordingProvider{tracer: tracer}),
	)))

	started := make(chan struct{})
	h := playerx.Fork(rt.Context(), playerx.NewStep("watch", func(ctx *playerx.ExecutionCtx, _ struct{}) error {
		close(started)
		return ctx.Loop()
	}), struct{}{})
	<-started
	h.Abort(errors.New("stop"))
	_, _ = h.Wait()
	require.NoError(t, rt.Dispose())

	span := tracer.byName("watch")
	require.NotNil(t, span)
	assert.True(t, span.ended)
	assert.Equal(t, codes.Unset, span.status)
	assert.Empty(t, span.errs)
}
