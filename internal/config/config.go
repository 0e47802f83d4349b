// Package config loads AutoCrew server configuration from defaults and
// AUTOCREW_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Webhook  WebhookConfig
	Sweeper  SweeperConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
	MaxConns int // concurrent connection cap on the listener
}

type DatabaseConfig struct {
	URL string
}

// WebhookConfig points at the external embedding/processing service.
type WebhookConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type SweeperConfig struct {
	MaxAge time.Duration
	Poll   time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4000,
			MaxConns: 256,
		},
		Webhook: WebhookConfig{
			Timeout: 60 * time.Second,
		},
		Sweeper: SweeperConfig{
			MaxAge: 10 * time.Minute,
			Poll:   time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from defaults and environment variables.
// Required: AUTOCREW_DATABASE_URL, AUTOCREW_WEBHOOK_URL,
// AUTOCREW_API_TOKEN.
func Load() (Config, error) {
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if v := getenv("AUTOCREW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTOCREW_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := getenv("AUTOCREW_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTOCREW_MAX_CONNS %q: %w", v, err)
		}
		cfg.Server.MaxConns = n
	}
	cfg.Server.APIToken = getenv("AUTOCREW_API_TOKEN")
	cfg.Database.URL = getenv("AUTOCREW_DATABASE_URL")
	cfg.Webhook.URL = getenv("AUTOCREW_WEBHOOK_URL")
	cfg.Webhook.APIKey = getenv("AUTOCREW_WEBHOOK_API_KEY")
	if v := getenv("AUTOCREW_WEBHOOK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTOCREW_WEBHOOK_TIMEOUT %q: %w", v, err)
		}
		cfg.Webhook.Timeout = d
	}
	if v := getenv("AUTOCREW_SWEEP_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTOCREW_SWEEP_MAX_AGE %q: %w", v, err)
		}
		cfg.Sweeper.MaxAge = d
	}
	if v := getenv("AUTOCREW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("missing required config: database URL. Set it via environment variable AUTOCREW_DATABASE_URL")
	}
	if cfg.Webhook.URL == "" {
		return Config{}, fmt.Errorf("missing required config: processing webhook URL. Set it via environment variable AUTOCREW_WEBHOOK_URL")
	}
	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: API bearer token. Set it via environment variable AUTOCREW_API_TOKEN")
	}

	return cfg, nil
}
