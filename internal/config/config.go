// Package config loads server configuration: defaults, then an
// optional TOML file, then command-line flag overrides.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hailam/kungfuchess/internal/game"
)

// Config is the server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `toml:"addr"`
	// TickRateHz is the simulation rate for new games.
	TickRateHz int `toml:"tick_rate_hz"`
	// DataDir is the BadgerDB directory. Empty selects the platform
	// data directory.
	DataDir string `toml:"data_dir"`
	// LogLevel is one of debug, info, notice, warning, error, critical.
	LogLevel string `toml:"log_level"`

	// LobbyGraceSeconds is how long a disconnected player keeps their
	// lobby seat.
	LobbyGraceSeconds int `toml:"lobby_grace_seconds"`
	// LobbyWaitingTTLMinutes is how long an empty waiting lobby lives.
	LobbyWaitingTTLMinutes int `toml:"lobby_waiting_ttl_minutes"`
	// LobbyFinishedTTLMinutes is how long a finished lobby lives.
	LobbyFinishedTTLMinutes int `toml:"lobby_finished_ttl_minutes"`
	// GameTTLMinutes is how long an idle game session lives.
	GameTTLMinutes int `toml:"game_ttl_minutes"`
	// CleanupIntervalMinutes is how often the stale sweeps run.
	CleanupIntervalMinutes int `toml:"cleanup_interval_minutes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:                    ":8000",
		TickRateHz:              game.DefaultTickRateHz,
		LogLevel:                "info",
		LobbyGraceSeconds:       60,
		LobbyWaitingTTLMinutes:  60,
		LobbyFinishedTTLMinutes: 24 * 60,
		GameTTLMinutes:          60,
		CleanupIntervalMinutes:  10,
	}
}

// Load builds the configuration from defaults, the optional TOML file,
// and flag overrides, in that order. args is the command line without
// the program name.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("kungfuchess", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to TOML config file")
	addr := fs.String("addr", "", "HTTP listen address")
	tickRate := fs.Int("tick-rate", 0, "simulation tick rate in Hz")
	dataDir := fs.String("data-dir", "", "storage directory")
	logLevel := fs.String("log-level", "", "log level")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()

	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", *configPath, err)
		}
	} else if _, err := os.Stat("kungfuchess.toml"); err == nil {
		if _, err := toml.DecodeFile("kungfuchess.toml", &cfg); err != nil {
			return Config{}, fmt.Errorf("load config kungfuchess.toml: %w", err)
		}
	}

	if *addr != "" {
		cfg.Addr = *addr
	}
	if *tickRate > 0 {
		cfg.TickRateHz = *tickRate
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if cfg.TickRateHz <= 0 || cfg.TickRateHz > 1000 {
		return Config{}, fmt.Errorf("tick rate %d out of range", cfg.TickRateHz)
	}
	return cfg, nil
}

// LobbyGrace returns the lobby disconnect grace period.
func (c Config) LobbyGrace() time.Duration {
	return time.Duration(c.LobbyGraceSeconds) * time.Second
}

// LobbyWaitingTTL returns the empty-lobby lifetime.
func (c Config) LobbyWaitingTTL() time.Duration {
	return time.Duration(c.LobbyWaitingTTLMinutes) * time.Minute
}

// LobbyFinishedTTL returns the finished-lobby lifetime.
func (c Config) LobbyFinishedTTL() time.Duration {
	return time.Duration(c.LobbyFinishedTTLMinutes) * time.Minute
}

// GameTTL returns the idle game lifetime.
func (c Config) GameTTL() time.Duration {
	return time.Duration(c.GameTTLMinutes) * time.Minute
}

// CleanupInterval returns the stale-sweep cadence.
func (c Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}
