// Package config loads the backend's JSON configuration. All fields are
// pointers so a partial file only overrides what it names; the Get*
// accessors fall back to defaults for anything unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the backend configuration schema.
type Config struct {
	// ListenAddr is the websocket API listen address.
	ListenAddr *string `json:"listen_addr,omitempty"`

	// LogSinkAddr is the gRPC log sink listen address.
	LogSinkAddr *string `json:"log_sink_addr,omitempty"`

	// DBPath is the session database file.
	DBPath *string `json:"db_path,omitempty"`

	// SimMode runs against simulated devices instead of hardware.
	SimMode *bool `json:"sim_mode,omitempty"`

	// SimDevices lists simulated device ids when SimMode is on.
	SimDevices []string `json:"sim_devices,omitempty"`

	// StatsInterval is how often sink stats are sampled into the db,
	// a duration string like "5s".
	StatsInterval *string `json:"stats_interval,omitempty"`

	// PollInterval is the actor's device poll period, e.g. "1ms".
	PollInterval *string `json:"poll_interval,omitempty"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. Fields omitted from the file keep
// their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}
	if c.PollInterval != nil && *c.PollInterval != "" {
		if _, err := time.ParseDuration(*c.PollInterval); err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
	}
	if c.SimMode != nil && !*c.SimMode && len(c.SimDevices) > 0 {
		return fmt.Errorf("sim_devices set but sim_mode is false")
	}
	return nil
}

// GetListenAddr returns the websocket listen address or the default.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return "localhost:9001"
	}
	return *c.ListenAddr
}

// GetLogSinkAddr returns the log sink listen address or the default.
func (c *Config) GetLogSinkAddr() string {
	if c.LogSinkAddr == nil || *c.LogSinkAddr == "" {
		return "localhost:9877"
	}
	return *c.LogSinkAddr
}

// GetDBPath returns the session database path or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "oakbridge.db"
	}
	return *c.DBPath
}

// GetSimMode reports whether to run against simulated devices.
func (c *Config) GetSimMode() bool {
	if c.SimMode == nil {
		return false
	}
	return *c.SimMode
}

// GetSimDevices returns the simulated device ids, defaulting to one.
func (c *Config) GetSimDevices() []string {
	if len(c.SimDevices) == 0 {
		return []string{"sim-oak-0"}
	}
	return c.SimDevices
}

// GetStatsInterval returns the stats sampling period or the default.
func (c *Config) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetPollInterval returns the device poll period or the default.
func (c *Config) GetPollInterval() time.Duration {
	if c.PollInterval == nil || *c.PollInterval == "" {
		return time.Millisecond
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil {
		return time.Millisecond
	}
	return d
}
