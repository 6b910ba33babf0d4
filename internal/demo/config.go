package demo

import (
	"fmt"
	"time"
)

// Config drives the simulated player. It lives under the "player" key of
// the playerx configuration file.
type Config struct {
	Source   string        `yaml:"source,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
	Tick     time.Duration `yaml:"tick,omitempty"`
}

// DefaultConfig plays a demo source for two seconds.
func DefaultConfig() Config {
	return Config{
		Source:   "demo://big-buck-bunny",
		Duration: 2 * time.Second,
		Tick:     250 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.Tick < 0 || c.Duration < 0 {
		return fmt.Errorf("player durations must not be negative")
	}
	return nil
}
