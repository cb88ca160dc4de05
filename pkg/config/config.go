// Package config loads and validates client configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultInitialDelay        = time.Second
	DefaultMaxDelay            = 30 * time.Second
	DefaultBackoffFactor       = 2.0
	DefaultMaxAttempts         = 10
	DefaultMaxImmediateRetries = 3
	DefaultDialTimeout         = 15 * time.Second
	DefaultPingInterval        = 30 * time.Second
	DefaultMaxBufferSize       = 50
	DefaultBusSubjectPrefix    = "loom.events"
	DefaultLogLevel            = "info"
)

// Config is the complete client configuration.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Bot      BotConfig      `yaml:"bot"`
	Session  SessionConfig  `yaml:"session"`
	Engine   EngineConfig   `yaml:"engine"`
	Bus      BusConfig      `yaml:"bus"`
	Log      LogConfig      `yaml:"log"`
}

// PlatformConfig identifies the collaboration service and how to
// authenticate against it.
type PlatformConfig struct {
	// URL is the service base URL; a scheme-less value is treated as https.
	URL string `yaml:"url"`
	// Credential is the long-lived bot credential exchanged for short-lived
	// connection tickets. Never placed in socket URLs.
	Credential string `yaml:"credential"`
}

// BotConfig describes the bot's identity and what addresses it.
type BotConfig struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Aliases       []string `yaml:"aliases"`
	ExtraPatterns []string `yaml:"extra_patterns"`
}

// SessionConfig tunes connection lifecycle behavior.
type SessionConfig struct {
	Reconnect           bool          `yaml:"reconnect"`
	InitialDelay        time.Duration `yaml:"initial_delay"`
	MaxDelay            time.Duration `yaml:"max_delay"`
	BackoffFactor       float64       `yaml:"backoff_factor"`
	MaxAttempts         int           `yaml:"max_attempts"`
	MaxImmediateRetries int           `yaml:"max_immediate_retries"`
	DialTimeout         time.Duration `yaml:"dial_timeout"`
	PingInterval        time.Duration `yaml:"ping_interval"`
}

// EngineConfig tunes the buffered context engine.
type EngineConfig struct {
	MaxBufferSize   int  `yaml:"max_buffer_size"`
	TriggerOnInvite bool `yaml:"trigger_on_invite"`
}

// BusConfig controls the optional NATS event mirror.
type BusConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a Config with sensible defaults. Platform URL, credential
// and bot identity have no defaults and must be supplied.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Reconnect:           true,
			InitialDelay:        DefaultInitialDelay,
			MaxDelay:            DefaultMaxDelay,
			BackoffFactor:       DefaultBackoffFactor,
			MaxAttempts:         DefaultMaxAttempts,
			MaxImmediateRetries: DefaultMaxImmediateRetries,
			DialTimeout:         DefaultDialTimeout,
			PingInterval:        DefaultPingInterval,
		},
		Engine: EngineConfig{
			MaxBufferSize:   DefaultMaxBufferSize,
			TriggerOnInvite: true,
		},
		Bus: BusConfig{
			SubjectPrefix: DefaultBusSubjectPrefix,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads configuration from path (optional; pass "" for defaults only),
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded configuration.
// Environment wins over file values, so credentials can stay out of files.
func (c *Config) applyEnv() {
	if v := os.Getenv("LOOM_PLATFORM_URL"); v != "" {
		c.Platform.URL = v
	}
	if v := os.Getenv("LOOM_CREDENTIAL"); v != "" {
		c.Platform.Credential = v
	}
	if v := os.Getenv("LOOM_BOT_ID"); v != "" {
		c.Bot.ID = v
	}
	if v := os.Getenv("LOOM_BOT_NAME"); v != "" {
		c.Bot.Name = v
	}
	if v := os.Getenv("LOOM_BUS_URL"); v != "" {
		c.Bus.URL = v
		c.Bus.Enabled = true
	}
	if v := os.Getenv("LOOM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Platform.URL == "" {
		return errors.New("platform.url is required")
	}
	if c.Platform.Credential == "" {
		return errors.New("platform.credential is required (or set LOOM_CREDENTIAL)")
	}
	if c.Bot.ID == "" {
		return errors.New("bot.id is required")
	}
	if c.Bot.Name == "" {
		return errors.New("bot.name is required")
	}
	if c.Session.BackoffFactor < 1 {
		return fmt.Errorf("session.backoff_factor must be >= 1, got %v", c.Session.BackoffFactor)
	}
	if c.Session.InitialDelay <= 0 {
		return fmt.Errorf("session.initial_delay must be positive, got %v", c.Session.InitialDelay)
	}
	if c.Session.MaxDelay < c.Session.InitialDelay {
		return fmt.Errorf("session.max_delay %v is below session.initial_delay %v", c.Session.MaxDelay, c.Session.InitialDelay)
	}
	if c.Engine.MaxBufferSize <= 0 {
		return fmt.Errorf("engine.max_buffer_size must be positive, got %d", c.Engine.MaxBufferSize)
	}
	if c.Bus.Enabled && c.Bus.URL == "" {
		return errors.New("bus.url is required when bus.enabled is true")
	}
	return nil
}
