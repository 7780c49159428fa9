package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"giveaway-overlay-backend/internal/giveaway"
	"giveaway-overlay-backend/internal/models"
)

// Config is the optional YAML configuration file. Everything has a working
// default; environment variables override the file.
type Config struct {
	Leaderboard struct {
		TopNBits   int `yaml:"top_n_bits"`
		TopNSubs   int `yaml:"top_n_subs"`
		DebounceMs int `yaml:"debounce_ms"`
	} `yaml:"leaderboard"`
	Giveaway struct {
		TickMs       int `yaml:"tick_ms"`
		CheckpointMs int `yaml:"checkpoint_ms"`
	} `yaml:"giveaway"`
}

func loadConfig(path string) (*Config, error) {
	var config Config
	if path == "" {
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// serviceConfig folds the file settings into the service defaults.
func (c *Config) serviceConfig() giveaway.Config {
	cfg := giveaway.DefaultConfig()

	if c.Leaderboard.TopNBits > 0 {
		cfg.LeaderboardTopN[models.MetricBits] = c.Leaderboard.TopNBits
	}
	if c.Leaderboard.TopNSubs > 0 {
		cfg.LeaderboardTopN[models.MetricSubs] = c.Leaderboard.TopNSubs
	}
	if c.Leaderboard.DebounceMs > 0 {
		cfg.DebounceWindow = time.Duration(c.Leaderboard.DebounceMs) * time.Millisecond
	}
	if c.Giveaway.TickMs > 0 {
		cfg.TickInterval = time.Duration(c.Giveaway.TickMs) * time.Millisecond
	}
	if c.Giveaway.CheckpointMs > 0 {
		cfg.CheckpointEvery = time.Duration(c.Giveaway.CheckpointMs) * time.Millisecond
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
