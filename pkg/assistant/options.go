package assistant

import (
	"fmt"
	"log/slog"

	"github.com/havenlabs/haven/internal/config"
	"github.com/havenlabs/haven/internal/core/ports"
)

// Option is a functional option for configuring an Assistant.
type Option func(*Assistant) error

// WithConfig supplies an already-loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *Assistant) error {
		if cfg == nil {
			return fmt.Errorf("config must not be nil")
		}
		a.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file. A missing file falls
// back to defaults plus environment overrides.
func WithConfigFile(path string) Option {
	return func(a *Assistant) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		a.cfg = cfg
		return nil
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		a.logger = logger
		return nil
	}
}

// WithKeyValueStore overrides the configured key-value store. The caller
// owns its lifecycle; Close is not called on injected stores.
func WithKeyValueStore(kv ports.KeyValueStore) Option {
	return func(a *Assistant) error {
		a.kv = kv
		return nil
	}
}

// WithTraceStore overrides the configured trace store. The caller owns its
// lifecycle; Close is not called on injected stores.
func WithTraceStore(traces ports.TraceStore) Option {
	return func(a *Assistant) error {
		a.traces = traces
		return nil
	}
}

// WithFastGenerator sets the low-latency generator. Required.
func WithFastGenerator(gen ports.Generator) Option {
	return func(a *Assistant) error {
		a.fastGen = gen
		return nil
	}
}

// WithDeepGenerator sets the higher-capability generator. Required.
func WithDeepGenerator(gen ports.Generator) Option {
	return func(a *Assistant) error {
		a.deepGen = gen
		return nil
	}
}

// WithSources registers context sources in the order given. Registration
// order is the deterministic tie-break for equally weighted items.
func WithSources(sources ...ports.ContextSource) Option {
	return func(a *Assistant) error {
		a.sources = append(a.sources, sources...)
		return nil
	}
}
