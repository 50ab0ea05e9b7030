// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// SIGNALEMENT_SERVER__PORT overrides server.port.
const envPrefix = "SIGNALEMENT_"

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	JWT        JWTConfig        `koanf:"jwt"`
	CORS       CORSConfig       `koanf:"cors"`
	Escalation EscalationConfig `koanf:"escalation"`
	Webhooks   WebhooksConfig   `koanf:"webhooks"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig contains access token validation settings.
type JWTConfig struct {
	SecretKey string `koanf:"secret_key"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// EscalationConfig tunes the SLA escalation scheduler.
type EscalationConfig struct {
	Enabled bool `koanf:"enabled"`
	// Interval between scans of open and in-progress incidents.
	Interval time.Duration `koanf:"interval"`
	// MaxRepeats caps auto-escalations per overdue episode. Past the cap the
	// incident stays overdue but stops firing events until resolved or reopened.
	MaxRepeats int `koanf:"max_repeats"`
	// RunBudget bounds a single scan; a large backlog yields partial progress
	// rather than blocking the next eligible run.
	RunBudget time.Duration `koanf:"run_budget"`
}

// WebhooksConfig tunes outbound event delivery.
type WebhooksConfig struct {
	// Timeout is the hard per-attempt delivery timeout.
	Timeout time.Duration `koanf:"timeout"`
	// MaxAttempts bounds delivery attempts for one event per subscription.
	MaxAttempts int `koanf:"max_attempts"`
	// InitialBackoff, BackoffMultiplier and MaxBackoff shape the exponential
	// backoff between attempts.
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	// DeactivateThreshold is the consecutive-failure streak after which a
	// subscription is suspended from fan-out.
	DeactivateThreshold int `koanf:"deactivate_threshold"`
	// RateLimit and RateBurst bound outbound requests per second globally.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
	// SecretKey is the 32-byte hex key encrypting subscription secrets at rest.
	SecretKey string `koanf:"secret_key"`
}

// Load reads configuration from the given YAML file (optional) and
// environment variables, applying defaults first.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider(), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	// Double underscore separates nesting levels so single underscores
	// survive in key names (metrics_port).
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key is required")
	}
	if c.Webhooks.SecretKey == "" {
		return fmt.Errorf("webhooks.secret_key is required")
	}
	return nil
}

func defaultsProvider() koanf.Provider {
	return confMapProvider{m: map[string]interface{}{
		"server.host":                   "0.0.0.0",
		"server.port":                   "8080",
		"server.metrics_port":           "9090",
		"server.read_timeout":           "15s",
		"server.read_header_timeout":    "5s",
		"server.write_timeout":          "15s",
		"server.idle_timeout":           "60s",
		"database.max_open_conns":       10,
		"database.max_idle_conns":       2,
		"database.conn_max_lifetime":    "30m",
		"database.connect_timeout":      "30s",
		"database.connect_attempts":     5,
		"log.level":                     "info",
		"log.format":                    "json",
		"cors.allowed_origins":          []string{"*"},
		"escalation.enabled":            true,
		"escalation.interval":           "15m",
		"escalation.max_repeats":        5,
		"escalation.run_budget":         "5m",
		"webhooks.timeout":              "10s",
		"webhooks.max_attempts":         5,
		"webhooks.initial_backoff":      "1s",
		"webhooks.backoff_multiplier":   2.0,
		"webhooks.max_backoff":          "5m",
		"webhooks.deactivate_threshold": 10,
		"webhooks.rate_limit":           20.0,
		"webhooks.rate_burst":           40,
	}}
}

// confMapProvider is a koanf provider over a flat key map.
type confMapProvider struct {
	m map[string]interface{}
}

func (p confMapProvider) Read() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(p.m))
	for k, v := range p.m {
		out[k] = v
	}
	return maps.Unflatten(out, "."), nil
}

func (p confMapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("confmap provider does not support ReadBytes")
}
