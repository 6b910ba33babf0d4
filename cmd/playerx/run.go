package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		configPath string
		duration   time.Duration
		metrics    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play the configured source",
		Long: `Run installs the demo packages and plays the configured source for the
given duration, then prints what the packages observed.

Examples:
  playerx run
  playerx run --duration 5s
  playerx run --config playerx.yaml --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if metrics {
				cfg.Runtime.Metrics = true
			}
			return runPlayer(cfg, duration)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "playerx.yaml", "Configuration file")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Playback duration (default from config)")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Print Prometheus metrics after the run")

	return cmd
}

func runPlayer(cfg *config, d time.Duration) error {
	s, err := startSession(cfg, os.Stderr)
	if err != nil {
		return err
	}

	if err := s.run(d); err != nil {
		_ = s.close()
		return fmt.Errorf("playback failed: %w", err)
	}

	report := s.player.Report()
	success("Played %s", report.Source)
	info("Installed packages: %s", strings.Join(report.Installed, ", "))
	if len(report.Pending) > 0 {
		warn("Pending packages: %s", strings.Join(report.Pending, ", "))
	}
	info("Playback state:     %s", report.Playback.State)
	if n := len(report.Resize.Entries); n > 0 {
		last := report.Resize.Entries[n-1]
		info("Element size:       %.0fx%.0f", last.Width, last.Height)
	}
	stats := report.Downloads
	info("Downloads tracked:  %d", len(stats.DownloadInfos))
	if len(stats.DownloadInfos) > 0 {
		info("Average throughput: %.0f B/s", stats.AverageBytesPerSecond)
		info("Average TTFB:       %.3fs", stats.AverageTimeToFirstByte)
	}
	info("Executions:         %d", report.Executions)

	if err := s.writeMetrics(os.Stdout); err != nil {
		_ = s.close()
		return err
	}
	return s.close()
}
