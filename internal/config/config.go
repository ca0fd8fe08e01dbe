// Package config loads and persists the engram configuration file. The
// state root defaults to ~/.engram and can be overridden with the
// ENGRAM_DIR environment variable or the root command's --dir flag.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/engramdev/engram/internal/fsx"
)

// EnvDir overrides the state root when set.
const EnvDir = "ENGRAM_DIR"

// Config holds every tunable. Zero values are replaced with defaults on
// load, so a partial config file is fine.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	Analysis struct {
		// Threshold is the unprocessed-observation count that triggers a
		// detection pass.
		Threshold int `yaml:"threshold"`
		// MinConfidence is the floor below which a detected candidate is
		// not materialized as a memory.
		MinConfidence float64 `yaml:"minConfidence"`
	} `yaml:"analysis"`

	Decay struct {
		// Base is the per-day decay multiplier.
		Base float64 `yaml:"base"`
		// ArchiveBelow archives a memory whose confidence decays under it.
		ArchiveBelow float64 `yaml:"archiveBelow"`
	} `yaml:"decay"`

	Sync struct {
		// PromoteThreshold is the minimum confidence for promotion.
		PromoteThreshold float64 `yaml:"promoteThreshold"`
		// MinPositiveRatio gates promotion on feedback quality.
		MinPositiveRatio float64 `yaml:"minPositiveRatio"`
		// ImportConfidence is the initial confidence of imported rules.
		ImportConfidence float64 `yaml:"importConfidence"`
	} `yaml:"sync"`

	Watch struct {
		// DebounceMillis coalesces rapid file events.
		DebounceMillis int `yaml:"debounceMillis"`
		// Ignore lists directory names never descended into.
		Ignore []string `yaml:"ignore"`
	} `yaml:"watch"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.Analysis.Threshold = 1000
	cfg.Analysis.MinConfidence = 0.5
	cfg.Decay.Base = 0.99
	cfg.Decay.ArchiveBelow = 0.1
	cfg.Sync.PromoteThreshold = 0.8
	cfg.Sync.MinPositiveRatio = 0.7
	cfg.Sync.ImportConfidence = 0.6
	cfg.Watch.DebounceMillis = 500
	cfg.Watch.Ignore = []string{
		"node_modules", ".git", "dist", "build", "vendor", "__pycache__", ".venv",
	}
	return cfg
}

// Dir resolves the state root: explicit flag value, then ENGRAM_DIR, then
// ~/.engram.
func Dir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(EnvDir); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".engram"), nil
}

// Path returns the config file path under the state root.
func Path(dir string) string {
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file under dir, applying defaults for anything
// unset. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config atomically.
func Save(dir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return fsx.WriteAtomic(Path(dir), data, 0o644)
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Analysis.Threshold <= 0 {
		c.Analysis.Threshold = d.Analysis.Threshold
	}
	if c.Analysis.MinConfidence <= 0 {
		c.Analysis.MinConfidence = d.Analysis.MinConfidence
	}
	if c.Decay.Base <= 0 {
		c.Decay.Base = d.Decay.Base
	}
	if c.Decay.ArchiveBelow <= 0 {
		c.Decay.ArchiveBelow = d.Decay.ArchiveBelow
	}
	if c.Sync.PromoteThreshold <= 0 {
		c.Sync.PromoteThreshold = d.Sync.PromoteThreshold
	}
	if c.Sync.MinPositiveRatio <= 0 {
		c.Sync.MinPositiveRatio = d.Sync.MinPositiveRatio
	}
	if c.Sync.ImportConfidence <= 0 {
		c.Sync.ImportConfidence = d.Sync.ImportConfidence
	}
	if c.Watch.DebounceMillis <= 0 {
		c.Watch.DebounceMillis = d.Watch.DebounceMillis
	}
	if len(c.Watch.Ignore) == 0 {
		c.Watch.Ignore = d.Watch.Ignore
	}
}
