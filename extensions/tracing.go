package extensions

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pumped-fn/playerx"
)

const defaultTracerName = "playerx"

// TracingConfig configures the OpenTelemetry tracing extension.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "playerx").
	TracerName string

	// Provider is the tracer provider (default: the global provider).
	Provider trace.TracerProvider

	// TraceDispatches starts a span for every reducer dispatch.
	TraceDispatches bool
}

// TracingOption configures the OpenTelemetry tracing extension.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(provider trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = provider
	}
}

// WithDispatchSpans enables spans for reducer dispatches.
func WithDispatchSpans(enabled bool) TracingOption {
	return func(c *TracingConfig) {
		c.TraceDispatches = enabled
	}
}

var spanTag = playerx.NewTag[trace.Span]("tracing.span")

// TracingExtension records one span per fork. The span of a fork is the
// parent of the spans of the forks it makes, so a trace mirrors the fork
// tree.
type TracingExtension struct {
	playerx.BaseExtension
	tracer          trace.Tracer
	traceDispatches bool
}

// NewTracingExtension creates a new tracing extension
func NewTracingExtension(opts ...TracingOption) *TracingExtension {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}

	provider := config.Provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	return &TracingExtension{
		BaseExtension:   playerx.NewBaseExtension("tracing"),
		tracer:          provider.Tracer(config.TracerName),
		traceDispatches: config.TraceDispatches,
	}
}

func (e *TracingExtension) Order() int {
	return 20
}

func (e *TracingExtension) OnForkStart(execCtx *playerx.ExecutionCtx, task playerx.AnyTask) error {
	parent := context.Background()
	if v, ok := execCtx.GetFromParent(spanTag); ok {
		if span, ok := v.(trace.Span); ok {
			parent = trace.ContextWithSpan(parent, span)
		}
	}

	_, span := e.tracer.Start(parent, task.Name(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("playerx.task", task.Name()),
			attribute.String("playerx.execution_id", execCtx.ID()),
			attribute.Bool("playerx.wrapped", task.IsWrapped()),
		),
	)
	spanTag.Set(execCtx, span)
	return nil
}

func (e *TracingExtension) OnForkEnd(execCtx *playerx.ExecutionCtx, result any, err error) error {
	span, ok := spanTag.Get(execCtx)
	if !ok {
		return nil
	}
	defer span.End()

	switch {
	case err == nil:
		span.SetAttributes(attribute.String("playerx.status", playerx.TaskCompleted.String()))
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, playerx.ErrAborted):
		span.SetAttributes(attribute.String("playerx.status", playerx.TaskAborted.String()))
	default:
		span.SetAttributes(attribute.String("playerx.status", playerx.TaskFailed.String()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return nil
}

func (e *TracingExtension) Wrap(ctx context.Context, next func() (any, error), op *playerx.Operation) (any, error) {
	if !e.traceDispatches || op.Kind != playerx.OpDispatch {
		return next()
	}

	_, span := e.tracer.Start(ctx, "dispatch "+op.Name,
		trace.WithAttributes(attribute.String("playerx.reducer", op.Name)),
	)
	defer span.End()

	result, err := next()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		changed, _ := result.(bool)
		span.SetAttributes(attribute.Bool("playerx.changed", changed))
	}
	return result, err
}
