// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings shared by every command. Flags override it.
type Config struct {
	// DBPath is the local cache database.
	DBPath string `env:"SKIRMISH_DB" envDefault:"skirmish.db"`

	// HubURL is the websocket endpoint of the session channel.
	HubURL string `env:"SKIRMISH_HUB_URL" envDefault:"ws://127.0.0.1:7450/ws"`

	// Addr is where the hub command listens.
	Addr string `env:"SKIRMISH_ADDR" envDefault:"127.0.0.1:7450"`

	// PlayerID selects a fixed identity. Empty means anonymous device sign-in.
	PlayerID string `env:"SKIRMISH_PLAYER_ID"`

	// PlayerName is the display name offered to opponents.
	PlayerName string `env:"SKIRMISH_PLAYER_NAME"`

	// IdleTimeout is how long a player may keep the opponent waiting before
	// the session is abandoned on their behalf. Zero disables forfeit claims.
	IdleTimeout time.Duration `env:"SKIRMISH_IDLE_TIMEOUT" envDefault:"5m"`

	// ForfeitWindow is how long the hub requires a session to be quiet
	// before it accepts a forfeit claim. Zero accepts any claim that holds.
	ForfeitWindow time.Duration `env:"SKIRMISH_FORFEIT_WINDOW" envDefault:"1m"`

	// RulesPath is an optional CUE rule file for new sessions.
	RulesPath string `env:"SKIRMISH_RULES"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"SKIRMISH_LOG_LEVEL" envDefault:"info"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	if c.IdleTimeout < 0 {
		return fmt.Errorf("config: idle timeout must not be negative, got %s", c.IdleTimeout)
	}
	if c.ForfeitWindow < 0 {
		return fmt.Errorf("config: forfeit window must not be negative, got %s", c.ForfeitWindow)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: database path is empty")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the configured slog level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
