// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Reaction ReactionConfig `yaml:"reaction"`
	Valkey   ValkeyConfig   `yaml:"valkey"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr            string `yaml:"addr" default:":8080"`
	ShutdownGraceMs int    `yaml:"shutdown_grace_ms" default:"5000" validate:"gte=0,lte=60000"`
}

// SessionConfig represents session-related configuration.
type SessionConfig struct {
	DefaultMaxParticipants int `yaml:"default_max_participants" default:"10" validate:"gte=2,lte=100"`
}

// ReactionConfig represents reaction timing configuration.
type ReactionConfig struct {
	CooldownMs      int `yaml:"cooldown_ms" default:"1500" validate:"gte=0,lte=60000"`
	DisplayWindowMs int `yaml:"display_window_ms" default:"3000" validate:"gte=0,lte=60000"`
	ResetIntervalMs int `yaml:"reset_interval_ms" default:"30000" validate:"gte=0,lte=600000"`
}

// Cooldown returns the per-emoji send cooldown.
func (r ReactionConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownMs) * time.Millisecond
}

// DisplayWindow returns how long a reaction stays on screen.
func (r ReactionConfig) DisplayWindow() time.Duration {
	return time.Duration(r.DisplayWindowMs) * time.Millisecond
}

// ResetInterval returns the popularity counter reset period.
func (r ReactionConfig) ResetInterval() time.Duration {
	return time.Duration(r.ResetIntervalMs) * time.Millisecond
}

// ValkeyConfig represents the Valkey connection configuration.
// An empty Addr selects the in-memory store.
type ValkeyConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0,lte=15"`
}

// SpotifyConfig represents Spotify API configuration. All fields empty
// disables track lookup; otherwise every credential is required.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" || s.ClientSecret != "" || s.RefreshToken != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		c.Valkey.Addr = v
	}
	if v := os.Getenv("VALKEY_PASSWORD"); v != "" {
		c.Valkey.Password = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Spotify.Enabled() {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify credentials are incomplete: client_id, client_secret and refresh_token are all required")
		}
	}

	return nil
}
