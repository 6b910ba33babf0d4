package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pumped-fn/playerx"
	"github.com/pumped-fn/playerx/internal/demo"
)

// config is the playerx.yaml file: runtime and log settings plus the
// player section
type config struct {
	*playerx.Config
	Player demo.Config
}

func defaultConfig() *config {
	return &config{Config: playerx.DefaultConfig(), Player: demo.DefaultConfig()}
}

// loadConfig reads path. A missing file yields the defaults.
func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte) (*config, error) {
	runtimeCfg, err := playerx.ParseConfig(data)
	if err != nil {
		return nil, err
	}

	cfg := &config{Config: runtimeCfg, Player: demo.DefaultConfig()}
	doc := struct {
		Player *demo.Config `yaml:"player"`
	}{Player: &cfg.Player}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := cfg.Player.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
