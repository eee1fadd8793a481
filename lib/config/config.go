// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Playgrid binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - PLAYGRID_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; environment variables do not override
// individual values. This keeps a running bot's behavior deterministic
// and auditable.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "250ms" or "1.5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for the Playgrid bot.
type Config struct {
	// Homeserver configures the Matrix connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Sessions configures per-session limits and lifecycle.
	Sessions SessionsConfig `yaml:"sessions"`

	// Scheduler configures the global update tick loop.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Display configures grid rendering.
	Display DisplayConfig `yaml:"display"`

	// Input configures reaction translation.
	Input InputConfig `yaml:"input"`

	// Persistence configures the save-slot store.
	Persistence PersistenceConfig `yaml:"persistence"`
}

// HomeserverConfig configures the Matrix connection.
type HomeserverConfig struct {
	// URL is the base URL of the homeserver (e.g., "http://localhost:6167").
	URL string `yaml:"url"`

	// Room is the room ID or alias the bot operates in.
	Room string `yaml:"room"`

	// UserID is the bot's fully-qualified Matrix user ID.
	UserID string `yaml:"user_id"`

	// AccessTokenFile is the path to a file holding the bot's access
	// token. Kept out of the config file itself so the config can be
	// committed without leaking credentials.
	AccessTokenFile string `yaml:"access_token_file"`
}

// SessionsConfig configures per-session limits and lifecycle.
type SessionsConfig struct {
	// MaxConcurrent is the registry ceiling. Create fails with
	// CapacityExceeded once this many sessions exist.
	MaxConcurrent int `yaml:"max_concurrent"`

	// SinglePerOwner rejects a create request when the requester
	// already owns a live session.
	SinglePerOwner bool `yaml:"single_per_owner"`

	// QueueCapacity bounds each session's pending input queue.
	QueueCapacity int `yaml:"queue_capacity"`

	// QueueOverflow selects the overflow policy: "drop-oldest"
	// (default) or "reject-newest".
	QueueOverflow string `yaml:"queue_overflow"`

	// CommandsPerTick caps how many queued commands one step feeds
	// into the engine, bounding per-tick simulation cost.
	CommandsPerTick int `yaml:"commands_per_tick"`

	// IdleTimeout terminates a session that has received no input for
	// this long. Zero disables idle termination.
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// SchedulerConfig configures the global update tick loop.
type SchedulerConfig struct {
	// TickInterval is the wall-clock interval between global ticks.
	TickInterval Duration `yaml:"tick_interval"`

	// SendBudget is the number of message edits one tick may issue
	// across all sessions. Dirty sessions beyond the budget stay dirty
	// and are retried next tick.
	SendBudget int `yaml:"send_budget"`

	// TransportRetryLimit is the number of consecutive failed edits
	// tolerated per session before it is terminated as unrecoverable.
	TransportRetryLimit int `yaml:"transport_retry_limit"`

	// IdleRenderDivisor reduces render cadence for idle sessions: an
	// idle session is considered for rendering only every Nth tick.
	// Simulation still advances every tick. 1 disables the reduction.
	IdleRenderDivisor int `yaml:"idle_render_divisor"`
}

// DisplayConfig configures grid rendering.
type DisplayConfig struct {
	// GridWidth and GridHeight are the text grid dimensions in cells.
	GridWidth  int `yaml:"grid_width"`
	GridHeight int `yaml:"grid_height"`

	// NoiseThreshold is the number of changed cells below which a new
	// render is not considered materially different (suppresses
	// single-cell dither flicker).
	NoiseThreshold int `yaml:"noise_threshold"`

	// StatusLine appends the health/ammo/armor/weapon line beneath
	// the grid when the engine exposes those variables.
	StatusLine bool `yaml:"status_line"`
}

// InputConfig configures reaction translation.
type InputConfig struct {
	// Debounce coalesces repeated identical commands from one user
	// arriving within this interval into a single enqueued command.
	Debounce Duration `yaml:"debounce"`

	// KeymapFile optionally overrides the built-in reaction keymap.
	// JSONC: comments and trailing commas are allowed.
	KeymapFile string `yaml:"keymap_file"`
}

// PersistenceConfig configures the save-slot store.
type PersistenceConfig struct {
	// DatabasePath is the SQLite database file holding save slots.
	DatabasePath string `yaml:"database_path"`

	// Compression selects the save blob compression: "zstd"
	// (default), "lz4", or "none".
	Compression string `yaml:"compression"`
}

// Default returns the default configuration. Defaults exist so every
// field has a sensible zero configuration for local development; the
// homeserver section still has to be filled in before the bot can run.
func Default() *Config {
	return &Config{
		Sessions: SessionsConfig{
			MaxConcurrent:   10,
			SinglePerOwner:  true,
			QueueCapacity:   32,
			QueueOverflow:   "drop-oldest",
			CommandsPerTick: 4,
			IdleTimeout:     Duration(5 * time.Minute),
		},
		Scheduler: SchedulerConfig{
			TickInterval:        Duration(time.Second),
			SendBudget:          5,
			TransportRetryLimit: 3,
			IdleRenderDivisor:   5,
		},
		Display: DisplayConfig{
			GridWidth:      60,
			GridHeight:     24,
			NoiseThreshold: 4,
			StatusLine:     true,
		},
		Input: InputConfig{
			Debounce: Duration(250 * time.Millisecond),
		},
		Persistence: PersistenceConfig{
			DatabasePath: "playgrid.db",
			Compression:  "zstd",
		},
	}
}

// Load loads configuration from the file named by PLAYGRID_CONFIG.
// Fails if the variable is not set; there is no config discovery.
func Load() (*Config, error) {
	path := os.Getenv("PLAYGRID_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("PLAYGRID_CONFIG environment variable not set; " +
			"set it to the path of your playgrid.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging the
// file over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All problems are
// reported at once via errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	}
	if c.Homeserver.Room == "" {
		errs = append(errs, fmt.Errorf("homeserver.room is required"))
	}

	if c.Sessions.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("sessions.max_concurrent must be at least 1"))
	}
	if c.Sessions.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("sessions.queue_capacity must be at least 1"))
	}
	if c.Sessions.QueueOverflow != "drop-oldest" && c.Sessions.QueueOverflow != "reject-newest" {
		errs = append(errs, fmt.Errorf("sessions.queue_overflow must be %q or %q", "drop-oldest", "reject-newest"))
	}
	if c.Sessions.CommandsPerTick < 1 {
		errs = append(errs, fmt.Errorf("sessions.commands_per_tick must be at least 1"))
	}

	if c.Scheduler.TickInterval.Std() <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.tick_interval must be positive"))
	}
	if c.Scheduler.SendBudget < 1 {
		errs = append(errs, fmt.Errorf("scheduler.send_budget must be at least 1"))
	}
	if c.Scheduler.TransportRetryLimit < 1 {
		errs = append(errs, fmt.Errorf("scheduler.transport_retry_limit must be at least 1"))
	}
	if c.Scheduler.IdleRenderDivisor < 1 {
		errs = append(errs, fmt.Errorf("scheduler.idle_render_divisor must be at least 1"))
	}

	if c.Display.GridWidth < 8 || c.Display.GridHeight < 4 {
		errs = append(errs, fmt.Errorf("display grid must be at least 8x4 cells"))
	}
	if c.Display.NoiseThreshold < 0 {
		errs = append(errs, fmt.Errorf("display.noise_threshold must not be negative"))
	}

	if c.Persistence.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("persistence.database_path is required"))
	}
	switch c.Persistence.Compression {
	case "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("persistence.compression must be one of: zstd, lz4, none"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
