package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.MaxContextItems != 8 {
		t.Errorf("expected default max_context_items 8, got %d", cfg.Pipeline.MaxContextItems)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("expected default failure_threshold 3, got %d", cfg.Breaker.FailureThreshold)
	}
	window, err := cfg.RecoveryWindow()
	if err != nil {
		t.Fatalf("recovery window: %v", err)
	}
	if window != 3*time.Hour {
		t.Errorf("expected default recovery window 3h, got %s", window)
	}
	if cfg.Storage.KV.Type != "memory" {
		t.Errorf("expected default kv type memory, got %q", cfg.Storage.KV.Type)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
pipeline:
  max_context_items: 4
breaker:
  recovery_window: "2h30m"
sources:
  calendar:
    priority: 1.5
    density: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.MaxContextItems != 4 {
		t.Errorf("expected max_context_items 4, got %d", cfg.Pipeline.MaxContextItems)
	}
	window, _ := cfg.RecoveryWindow()
	if window != 2*time.Hour+30*time.Minute {
		t.Errorf("expected recovery window 2h30m, got %s", window)
	}
	if sc, ok := cfg.Sources["calendar"]; !ok || sc.Priority != 1.5 {
		t.Errorf("expected calendar source priority 1.5, got %+v", cfg.Sources)
	}
	// Unset keys still get defaults.
	if cfg.Router.ComplexityThreshold != 0.55 {
		t.Errorf("expected default complexity threshold, got %f", cfg.Router.ComplexityThreshold)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HAVEN_SERVER__PORT", "3000")
	t.Setenv("HAVEN_STORAGE__KV__TYPE", "redis")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("expected env-overridden port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Storage.KV.Type != "redis" {
		t.Errorf("expected env-overridden kv type redis, got %q", cfg.Storage.KV.Type)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }},
		{"recovery window too short", func(c *Config) { c.Breaker.RecoveryWindow = "10m" }},
		{"recovery window too long", func(c *Config) { c.Breaker.RecoveryWindow = "48h" }},
		{"bad duration", func(c *Config) { c.Router.CacheTTL = "soon" }},
		{"unknown kv type", func(c *Config) { c.Storage.KV.Type = "etcd" }},
		{"complexity above one", func(c *Config) { c.Router.ComplexityThreshold = 1.5 }},
		{"negative source priority", func(c *Config) {
			c.Sources = map[string]SourceConfig{"x": {Priority: -1}}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
