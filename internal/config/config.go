// Package config loads the yaml config file and applies environment
// overrides. Everything has a working default; a missing config file is not
// an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Remote struct {
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
	FeedURL string `yaml:"feed_url"`
}

type Sync struct {
	Debounce   time.Duration `yaml:"debounce"`
	MaxRetries int           `yaml:"max_retries"`
}

type History struct {
	Limit          int           `yaml:"limit"`
	CoalesceWindow time.Duration `yaml:"coalesce_window"`
}

type Lock struct {
	TTL   time.Duration `yaml:"ttl"`
	Grace time.Duration `yaml:"grace"`
}

type Config struct {
	DataDir string  `yaml:"data_dir"`
	Remote  Remote  `yaml:"remote"`
	Sync    Sync    `yaml:"sync"`
	History History `yaml:"history"`
	Lock    Lock    `yaml:"lock"`
}

func Default() Config {
	return Config{
		DataDir: defaultDataDir(),
		Sync: Sync{
			Debounce:   2 * time.Second,
			MaxRetries: 5,
		},
		History: History{
			Limit:          200,
			CoalesceWindow: 2 * time.Second,
		},
		Lock: Lock{
			TTL:   30 * time.Second,
			Grace: 5 * time.Second,
		},
	}
}

// Load reads the config at path, falling back to defaults when the file does
// not exist. Environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	applyEnv(&cfg)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DataDir = envOr("DRIFTBOARD_DATA_DIR", cfg.DataDir)
	cfg.Remote.URL = envOr("DRIFTBOARD_REMOTE_URL", cfg.Remote.URL)
	cfg.Remote.APIKey = envOr("DRIFTBOARD_API_KEY", cfg.Remote.APIKey)
	cfg.Remote.FeedURL = envOr("DRIFTBOARD_FEED_URL", cfg.Remote.FeedURL)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DefaultPath is ~/.config/driftboard/config.yaml.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "driftboard", "config.yaml")
	}
	return filepath.Join(".", "driftboard.yaml")
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".driftboard")
	}
	return ".driftboard"
}
