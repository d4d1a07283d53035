package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config without spotify",
			config: Config{
				Session: SessionConfig{DefaultMaxParticipants: 10},
			},
			wantErr: false,
		},
		{
			name: "valid config with spotify",
			config: Config{
				Session: SessionConfig{DefaultMaxParticipants: 10},
				Spotify: SpotifyConfig{
					ClientID:     "test-client-id",
					ClientSecret: "test-client-secret",
					RefreshToken: "test-refresh-token",
					Market:       "US",
				},
			},
			wantErr: false,
		},
		{
			name: "partial spotify credentials",
			config: Config{
				Session: SessionConfig{DefaultMaxParticipants: 10},
				Spotify: SpotifyConfig{
					ClientID: "test-client-id",
				},
			},
			wantErr: true,
			errMsg:  "incomplete",
		},
		{
			name: "invalid market length",
			config: Config{
				Session: SessionConfig{DefaultMaxParticipants: 10},
				Spotify: SpotifyConfig{
					ClientID:     "test-client-id",
					ClientSecret: "test-client-secret",
					RefreshToken: "test-refresh-token",
					Market:       "JAPAN",
				},
			},
			wantErr: true,
			errMsg:  "Market",
		},
		{
			name: "max participants below minimum",
			config: Config{
				Session: SessionConfig{DefaultMaxParticipants: 1},
			},
			wantErr: true,
			errMsg:  "DefaultMaxParticipants",
		},
		{
			name: "negative cooldown",
			config: Config{
				Session:  SessionConfig{DefaultMaxParticipants: 10},
				Reaction: ReactionConfig{CooldownMs: -1},
			},
			wantErr: true,
			errMsg:  "CooldownMs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, "server:\n  addr: \":9090\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5000, cfg.Server.ShutdownGraceMs)
	assert.Equal(t, 10, cfg.Session.DefaultMaxParticipants)
	assert.Equal(t, 1500, cfg.Reaction.CooldownMs)
	assert.Equal(t, 3000, cfg.Reaction.DisplayWindowMs)
	assert.Equal(t, 30000, cfg.Reaction.ResetIntervalMs)
	assert.False(t, cfg.Spotify.Enabled())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfigFile(t, "valkey:\n  addr: \"file-addr:6379\"\n")

	t.Setenv("VALKEY_ADDR", "env-addr:6379")
	t.Setenv("VALKEY_PASSWORD", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-addr:6379", cfg.Valkey.Addr)
	assert.Equal(t, "env-secret", cfg.Valkey.Password)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestReactionConfig_Durations(t *testing.T) {
	r := ReactionConfig{CooldownMs: 1500, DisplayWindowMs: 3000, ResetIntervalMs: 30000}

	assert.Equal(t, 1500*time.Millisecond, r.Cooldown())
	assert.Equal(t, 3*time.Second, r.DisplayWindow())
	assert.Equal(t, 30*time.Second, r.ResetInterval())
}
