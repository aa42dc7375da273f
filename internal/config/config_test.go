package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleetctl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://registry.example.com
  timeout: 3s
channel:
  url: wss://registry.example.com/ws
  reconnect_delay: 250ms
view:
  history_limit: 8
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.API.BaseURL != "https://registry.example.com" || cfg.API.Timeout != 3*time.Second {
		t.Errorf("unexpected api config: %+v", cfg.API)
	}
	if cfg.Channel.ReconnectDelay != 250*time.Millisecond {
		t.Errorf("reconnect delay = %v", cfg.Channel.ReconnectDelay)
	}
	if cfg.Channel.ReconnectAttempts != 5 {
		t.Errorf("expected default reconnect attempts, got %d", cfg.Channel.ReconnectAttempts)
	}
	if cfg.View.HistoryLimit != 8 || cfg.View.AlertLimit != 50 {
		t.Errorf("unexpected view config: %+v", cfg.View)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("FLEET_API_BASE_URL", "http://override:9000")
	t.Setenv("FLEET_CHANNEL_RECONNECT_ATTEMPTS", "2")
	path := writeConfig(t, "log:\n  level: debug\n")
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://override:9000" {
		t.Errorf("env override ignored: %s", cfg.API.BaseURL)
	}
	if cfg.Channel.ReconnectAttempts != 2 {
		t.Errorf("reconnect attempts = %d", cfg.Channel.ReconnectAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"bad url":     "api:\n  base_url: ftp://nope\n",
		"bad level":   "log:\n  level: verbose\n",
		"zero limit":  "view:\n  history_limit: 0\n",
		"bad channel": "channel:\n  url: http://not-a-socket\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body), ""); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := ValidateWithCue(Default(), ""); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestStringMasksSecret(t *testing.T) {
	cfg := Default()
	cfg.DevRegistry.JWTSecret = "super-secret"
	out := cfg.String()
	if strings.Contains(out, "super-secret") {
		t.Fatalf("secret leaked: %s", out)
	}
	if cfg.DevRegistry.JWTSecret != "super-secret" {
		t.Fatalf("String mutated the receiver")
	}
}
