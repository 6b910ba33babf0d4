package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/pumped-fn/playerx"
	"github.com/pumped-fn/playerx/extensions"
	"github.com/pumped-fn/playerx/internal/demo"
)

// session is one runtime with the demo player installed on it
type session struct {
	cfg     *config
	rt      *playerx.Runtime
	player  *demo.Player
	metrics *prometheus.Registry
}

func newLogger(cfg *playerx.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "text":
		return slog.New(slog.NewTextHandler(w, opts))
	case "silent":
		return slog.New(extensions.NewSilentHandler())
	default:
		return slog.New(extensions.NewHumanHandler(w, cfg.Level()))
	}
}

func startSession(cfg *config, logOut io.Writer) (*session, error) {
	logger := newLogger(cfg.Config, logOut)

	opts := cfg.Options(logger)
	opts = append(opts,
		playerx.WithExtension(extensions.NewLoggingExtension(logger)),
		playerx.WithExtension(extensions.NewTreeDebugExtension(logger.Handler())),
	)

	s := &session{cfg: cfg}
	if cfg.Runtime.Metrics {
		s.metrics = prometheus.NewRegistry()
		opts = append(opts, playerx.WithExtension(extensions.NewMetricsExtension(
			extensions.WithRegistry(s.metrics),
		)))
	}
	if cfg.Runtime.Tracing {
		opts = append(opts, playerx.WithExtension(extensions.NewTracingExtension(
			extensions.WithDispatchSpans(true),
		)))
	}

	s.rt = playerx.NewRuntime(opts...)

	player, err := demo.NewPlayer(s.rt, cfg.Player, logger, nil)
	if err != nil {
		return nil, errors.Join(err, s.rt.Dispose())
	}
	s.player = player

	if err := s.rt.Install(demo.Packages()...); err != nil {
		return nil, errors.Join(fmt.Errorf("installing packages: %w", err), s.rt.Dispose())
	}
	return s, nil
}

func (s *session) run(d time.Duration) error {
	if d <= 0 {
		d = s.cfg.Player.Duration
	}
	return s.player.Run(d)
}

func (s *session) close() error {
	return s.rt.Dispose()
}

func (s *session) writeMetrics(w io.Writer) error {
	if s.metrics == nil {
		return nil
	}
	families, err := s.metrics.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
