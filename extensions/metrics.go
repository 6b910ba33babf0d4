package extensions

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pumped-fn/playerx"
)

// MetricsConfig configures the Prometheus metrics extension.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "playerx").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for task duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics extension.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "playerx",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

var forkStartTag = playerx.NewTag[time.Time]("metrics.fork_start")

// MetricsExtension collects Prometheus metrics for forks, dispatches and
// effect teardowns.
//
// Metrics collected:
//   - playerx_forks_total: Counter of finished forks by task and status
//   - playerx_fork_duration_seconds: Histogram of fork run time by task
//   - playerx_active_forks: Gauge of forks currently running
//   - playerx_dispatches_total: Counter of dispatches by reducer and result
//   - playerx_task_panics_total: Counter of recovered task panics by task
//   - playerx_teardown_errors_total: Counter of failed teardowns by effect
type MetricsExtension struct {
	playerx.BaseExtension

	forksTotal     *prometheus.CounterVec
	forkDuration   *prometheus.HistogramVec
	activeForks    prometheus.Gauge
	dispatches     *prometheus.CounterVec
	panicsTotal    *prometheus.CounterVec
	teardownErrors *prometheus.CounterVec
}

// NewMetricsExtension registers the metrics and returns the extension.
// Registering twice against the same registry panics, as promauto does.
func NewMetricsExtension(opts ...MetricsOption) *MetricsExtension {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &MetricsExtension{
		BaseExtension: playerx.NewBaseExtension("metrics"),

		forksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "forks_total",
			Help:        "Total number of finished forks",
			ConstLabels: config.ConstLabels,
		}, []string{"task", "status"}),

		forkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fork_duration_seconds",
			Help:        "Fork run time in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"task"}),

		activeForks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_forks",
			Help:        "Number of forks currently running",
			ConstLabels: config.ConstLabels,
		}),

		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatches_total",
			Help:        "Total number of reducer dispatches",
			ConstLabels: config.ConstLabels,
		}, []string{"reducer", "result"}),

		panicsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "task_panics_total",
			Help:        "Total number of recovered task panics",
			ConstLabels: config.ConstLabels,
		}, []string{"task"}),

		teardownErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "teardown_errors_total",
			Help:        "Total number of failed effect teardowns",
			ConstLabels: config.ConstLabels,
		}, []string{"effect"}),
	}
}

func (e *MetricsExtension) Order() int {
	return 10
}

func (e *MetricsExtension) Wrap(ctx context.Context, next func() (any, error), op *playerx.Operation) (any, error) {
	result, err := next()
	if op.Kind != playerx.OpDispatch {
		return result, err
	}

	outcome := "unchanged"
	if err != nil {
		outcome = "error"
	} else if changed, _ := result.(bool); changed {
		outcome = "changed"
	}
	e.dispatches.WithLabelValues(op.Name, outcome).Inc()

	return result, err
}

func (e *MetricsExtension) OnForkStart(execCtx *playerx.ExecutionCtx, task playerx.AnyTask) error {
	forkStartTag.Set(execCtx, time.Now())
	e.activeForks.Inc()
	return nil
}

func (e *MetricsExtension) OnForkEnd(execCtx *playerx.ExecutionCtx, result any, err error) error {
	e.activeForks.Dec()

	task := execCtx.Name()
	if start, ok := forkStartTag.Get(execCtx); ok {
		e.forkDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
	}

	status := playerx.TaskCompleted
	switch {
	case errors.Is(err, playerx.ErrAborted):
		status = playerx.TaskAborted
	case err != nil:
		status = playerx.TaskFailed
	}
	e.forksTotal.WithLabelValues(task, status.String()).Inc()

	return nil
}

func (e *MetricsExtension) OnTaskPanic(execCtx *playerx.ExecutionCtx, recovered any, stack []byte) error {
	e.panicsTotal.WithLabelValues(execCtx.Name()).Inc()
	return nil
}

func (e *MetricsExtension) OnTeardownError(err *playerx.TeardownError) bool {
	e.teardownErrors.WithLabelValues(err.Effect).Inc()
	return false
}
