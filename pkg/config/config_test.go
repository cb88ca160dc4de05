package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Platform.URL = "loom.example.com"
	cfg.Platform.Credential = "secret"
	cfg.Bot.ID = "bot-1"
	cfg.Bot.Name = "nova"
	return cfg
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Session.Reconnect)
	assert.Equal(t, time.Second, cfg.Session.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Session.MaxDelay)
	assert.Equal(t, 2.0, cfg.Session.BackoffFactor)
	assert.Equal(t, 3, cfg.Session.MaxImmediateRetries)
	assert.Equal(t, 50, cfg.Engine.MaxBufferSize)
	assert.Equal(t, "loom.events", cfg.Bus.SubjectPrefix)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.yaml")
	content := `
platform:
  url: loom.example.com
  credential: secret
bot:
  id: bot-1
  name: nova
  aliases: [assistant]
session:
  max_delay: 10s
  max_attempts: 5
engine:
  max_buffer_size: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "loom.example.com", cfg.Platform.URL)
	assert.Equal(t, "nova", cfg.Bot.Name)
	assert.Equal(t, []string{"assistant"}, cfg.Bot.Aliases)
	assert.Equal(t, 10*time.Second, cfg.Session.MaxDelay)
	assert.Equal(t, 5, cfg.Session.MaxAttempts)
	assert.Equal(t, 20, cfg.Engine.MaxBufferSize)
	// Untouched sections keep their defaults.
	assert.True(t, cfg.Session.Reconnect)
	assert.Equal(t, time.Second, cfg.Session.InitialDelay)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.yaml")
	content := `
platform:
  url: loom.example.com
  credential: from-file
bot:
  id: bot-1
  name: nova
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LOOM_CREDENTIAL", "from-env")
	t.Setenv("LOOM_BUS_URL", "nats://localhost:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Platform.Credential)
	assert.True(t, cfg.Bus.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.Bus.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing url", func(c *Config) { c.Platform.URL = "" }, "platform.url"},
		{"missing credential", func(c *Config) { c.Platform.Credential = "" }, "platform.credential"},
		{"missing bot id", func(c *Config) { c.Bot.ID = "" }, "bot.id"},
		{"missing bot name", func(c *Config) { c.Bot.Name = "" }, "bot.name"},
		{"backoff factor below one", func(c *Config) { c.Session.BackoffFactor = 0.5 }, "backoff_factor"},
		{"zero initial delay", func(c *Config) { c.Session.InitialDelay = 0 }, "initial_delay"},
		{"max delay below initial", func(c *Config) { c.Session.MaxDelay = time.Millisecond }, "max_delay"},
		{"zero buffer size", func(c *Config) { c.Engine.MaxBufferSize = 0 }, "max_buffer_size"},
		{"bus enabled without url", func(c *Config) { c.Bus.Enabled = true }, "bus.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/loom.yaml")
	assert.Error(t, err)
}
