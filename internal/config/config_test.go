package config

import (
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func requiredEnv() map[string]string {
	return map[string]string{
		"AUTOCREW_DATABASE_URL": "postgres://localhost:5432/autocrew",
		"AUTOCREW_WEBHOOK_URL":  "https://processing.example.com/embed",
		"AUTOCREW_API_TOKEN":    "tok-123",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(envMap(requiredEnv()))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Webhook.Timeout != 60*time.Second {
		t.Errorf("Webhook.Timeout = %v, want 60s", cfg.Webhook.Timeout)
	}
	if cfg.Sweeper.MaxAge != 10*time.Minute {
		t.Errorf("Sweeper.MaxAge = %v, want 10m", cfg.Sweeper.MaxAge)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	env := requiredEnv()
	env["AUTOCREW_PORT"] = "8080"
	env["AUTOCREW_WEBHOOK_TIMEOUT"] = "90s"
	env["AUTOCREW_LOG_LEVEL"] = "debug"

	cfg, err := loadWith(envMap(env))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Webhook.Timeout != 90*time.Second {
		t.Errorf("Webhook.Timeout = %v, want 90s", cfg.Webhook.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	cases := []struct {
		drop string
		want string
	}{
		{"AUTOCREW_DATABASE_URL", "AUTOCREW_DATABASE_URL"},
		{"AUTOCREW_WEBHOOK_URL", "AUTOCREW_WEBHOOK_URL"},
		{"AUTOCREW_API_TOKEN", "AUTOCREW_API_TOKEN"},
	}
	for _, c := range cases {
		env := requiredEnv()
		delete(env, c.drop)
		_, err := loadWith(envMap(env))
		if err == nil {
			t.Errorf("loadWith without %s succeeded, want error", c.drop)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("error %q does not name %s", err, c.want)
		}
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	env := requiredEnv()
	env["AUTOCREW_PORT"] = "not-a-port"
	if _, err := loadWith(envMap(env)); err == nil {
		t.Error("expected error for non-numeric port")
	}

	env = requiredEnv()
	env["AUTOCREW_WEBHOOK_TIMEOUT"] = "soon"
	if _, err := loadWith(envMap(env)); err == nil {
		t.Error("expected error for unparseable timeout")
	}
}
