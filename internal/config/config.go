// Package config loads and validates the assistant configuration from
// config.yaml and HAVEN_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig            `koanf:"server"`
	Pipeline PipelineConfig          `koanf:"pipeline"`
	Breaker  BreakerConfig           `koanf:"breaker"`
	Router   RouterConfig            `koanf:"router"`
	Storage  StorageConfig           `koanf:"storage"`
	Sources  map[string]SourceConfig `koanf:"sources"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type PipelineConfig struct {
	MaxContextItems      int     `koanf:"max_context_items"`
	CognitiveLoadCeiling float64 `koanf:"cognitive_load_ceiling"`
	SourceTimeout        string  `koanf:"source_timeout"` // Duration string like "2s"
	TraceHistory         int     `koanf:"trace_history"`
}

type BreakerConfig struct {
	FailureThreshold int    `koanf:"failure_threshold"`
	RecoveryWindow   string `koanf:"recovery_window"` // Duration string like "3h"
}

type RouterConfig struct {
	ComplexityThreshold float64 `koanf:"complexity_threshold"`
	CacheTTL            string  `koanf:"cache_ttl"`         // Duration string like "15m"
	GeneratorTimeout    string  `koanf:"generator_timeout"` // Duration string like "20s"
}

type StorageConfig struct {
	Traces TraceStorageConfig `koanf:"traces"`
	KV     KVStorageConfig    `koanf:"kv"`
}

type TraceStorageConfig struct {
	Type string `koanf:"type"` // sqlite, memory
	Path string `koanf:"path"`
}

type KVStorageConfig struct {
	Type  string      `koanf:"type"` // memory, redis
	Redis RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// SourceConfig tunes how one context source's items are scored.
type SourceConfig struct {
	Priority float64 `koanf:"priority"`
	Density  float64 `koanf:"density"`
}

// Load reads configuration from path (missing file is fine) with environment
// overrides, applies defaults, and validates. Validation failures are
// programming/deployment errors and abort startup.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		// A missing file is fine; env vars and defaults cover it.
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	// Environment variables override file values: HAVEN_SERVER__PORT etc.
	if err := k.Load(env.Provider("HAVEN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "HAVEN_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                     8080,
		"pipeline.max_context_items":      8,
		"pipeline.cognitive_load_ceiling": 1.0,
		"pipeline.source_timeout":         "2s",
		"pipeline.trace_history":          5,
		"breaker.failure_threshold":       3,
		"breaker.recovery_window":         "3h",
		"router.complexity_threshold":     0.55,
		"router.cache_ttl":                "15m",
		"router.generator_timeout":        "20s",
		"storage.traces.type":             "sqlite",
		"storage.traces.path":             "./data/haven.db",
		"storage.kv.type":                 "memory",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

// Validate rejects configurations that cannot work. It runs once at startup;
// nothing here is recoverable at request time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Pipeline.MaxContextItems <= 0 {
		return fmt.Errorf("config: max_context_items must be positive, got %d", c.Pipeline.MaxContextItems)
	}
	if c.Pipeline.CognitiveLoadCeiling <= 0 {
		return fmt.Errorf("config: cognitive_load_ceiling must be positive, got %f", c.Pipeline.CognitiveLoadCeiling)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("config: failure_threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Router.ComplexityThreshold <= 0 || c.Router.ComplexityThreshold > 1 {
		return fmt.Errorf("config: complexity_threshold must be in (0,1], got %f", c.Router.ComplexityThreshold)
	}
	window, err := c.RecoveryWindow()
	if err != nil {
		return err
	}
	if window < 2*time.Hour || window > 4*time.Hour {
		return fmt.Errorf("config: recovery_window must be between 2h and 4h, got %s", window)
	}
	if _, err := c.SourceTimeout(); err != nil {
		return err
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	if _, err := c.GeneratorTimeout(); err != nil {
		return err
	}
	switch c.Storage.Traces.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown trace storage type %q", c.Storage.Traces.Type)
	}
	switch c.Storage.KV.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown kv storage type %q", c.Storage.KV.Type)
	}
	for name, sc := range c.Sources {
		if sc.Priority < 0 || sc.Density < 0 {
			return fmt.Errorf("config: source %q has negative priority or density", name)
		}
	}
	return nil
}

func (c *Config) RecoveryWindow() (time.Duration, error) {
	return parseDuration("breaker.recovery_window", c.Breaker.RecoveryWindow)
}

func (c *Config) SourceTimeout() (time.Duration, error) {
	return parseDuration("pipeline.source_timeout", c.Pipeline.SourceTimeout)
}

func (c *Config) CacheTTL() (time.Duration, error) {
	return parseDuration("router.cache_ttl", c.Router.CacheTTL)
}

func (c *Config) GeneratorTimeout() (time.Duration, error) {
	return parseDuration("router.generator_timeout", c.Router.GeneratorTimeout)
}

func parseDuration(key, val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration for %s: %q", key, val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: duration for %s must be positive, got %s", key, d)
	}
	return d, nil
}
