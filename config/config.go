// Package config loads agent settings from a JSON file. Every field is
// optional; missing fields keep their defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "MEMAGENT_CONFIG"

type Config struct {
	FreezeIntervalMs int64  `json:"freeze_interval_ms"`
	WatchIntervalMs  int64  `json:"watch_interval_ms"`
	ScanLimit        int    `json:"scan_limit"`
	MaxReadBytes     int    `json:"max_read_bytes"`
	PollIntervalMs   int64  `json:"poll_interval_ms"` // module/thread observers on live targets
	Prompt           string `json:"prompt"`
}

func Default() Config {
	return Config{
		FreezeIntervalMs: 100,
		WatchIntervalMs:  100,
		ScanLimit:        500,
		MaxReadBytes:     1 << 20,
		PollIntervalMs:   250,
		Prompt:           "memagent",
	}
}

// Load reads path, or the file named by MEMAGENT_CONFIG when path is empty.
// With neither set it returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.FreezeIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("freeze_interval_ms must be positive"))
	}
	if c.WatchIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("watch_interval_ms must be positive"))
	}
	if c.ScanLimit <= 0 {
		errs = append(errs, fmt.Errorf("scan_limit must be positive"))
	}
	if c.MaxReadBytes <= 0 || c.MaxReadBytes > 1<<20 {
		errs = append(errs, fmt.Errorf("max_read_bytes must be in 1..1048576"))
	}
	if c.PollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval_ms must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) FreezeInterval() time.Duration {
	return time.Duration(c.FreezeIntervalMs) * time.Millisecond
}

func (c Config) WatchInterval() time.Duration {
	return time.Duration(c.WatchIntervalMs) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
