// Package assistant is the public API for embedding the cognitive pipeline
// in a larger application or running it as a standalone service.
package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/havenlabs/haven/internal/breaker"
	"github.com/havenlabs/haven/internal/config"
	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
	"github.com/havenlabs/haven/internal/engine"
	"github.com/havenlabs/haven/internal/frame"
	"github.com/havenlabs/haven/internal/router"
	"github.com/havenlabs/haven/internal/safety"
	"github.com/havenlabs/haven/internal/server"
	"github.com/havenlabs/haven/internal/storage/memory"
	redisstore "github.com/havenlabs/haven/internal/storage/redis"
	"github.com/havenlabs/haven/internal/storage/sqlite"
)

// Assistant owns the assembled pipeline and, optionally, the HTTP server in
// front of it. Build one with New, then either call Process directly (library
// mode) or Start to serve HTTP.
type Assistant struct {
	cfg    *config.Config
	logger *slog.Logger

	kv      ports.KeyValueStore
	traces  ports.TraceStore
	fastGen ports.Generator
	deepGen ports.Generator
	sources []ports.ContextSource

	loop *engine.Loop
	srv  *server.Server

	// closers are stores the assistant created itself and must close on
	// Shutdown. Injected stores stay with their owners.
	closers []io.Closer

	mu      sync.Mutex
	started bool
}

// New assembles the full pipeline. The fast and deep generators are required;
// everything else has a configured or in-memory default.
func New(opts ...Option) (*Assistant, error) {
	a := &Assistant{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.fastGen == nil || a.deepGen == nil {
		return nil, fmt.Errorf("both generators required (use WithFastGenerator and WithDeepGenerator)")
	}
	if a.cfg == nil {
		cfg, err := config.Load("config.yaml")
		if err != nil {
			return nil, fmt.Errorf("load default config: %w", err)
		}
		a.cfg = cfg
	}

	if err := a.initStores(); err != nil {
		return nil, err
	}
	if err := a.buildPipeline(); err != nil {
		return nil, err
	}

	a.srv = server.New(a.cfg.Server.Port, a.logger, a.loop, a.traces)
	return a, nil
}

func (a *Assistant) initStores() error {
	if a.kv == nil {
		switch a.cfg.Storage.KV.Type {
		case "redis":
			kv, err := a.openRedis()
			if err != nil {
				return err
			}
			a.kv = kv
			a.closers = append(a.closers, kv)
		default:
			a.kv = memory.NewKV()
		}
	}

	if a.traces == nil {
		switch a.cfg.Storage.Traces.Type {
		case "memory":
			a.traces = memory.NewTraceStore()
		default:
			store, err := sqlite.New(a.cfg.Storage.Traces.Path)
			if err != nil {
				return fmt.Errorf("open trace store: %w", err)
			}
			a.traces = store
			a.closers = append(a.closers, store)
		}
	}
	return nil
}

func (a *Assistant) openRedis() (*redisstore.KV, error) {
	rc := a.cfg.Storage.KV.Redis
	if rc.URL != "" {
		return redisstore.NewFromURL(rc.URL)
	}
	if rc.Addr == "" {
		return nil, fmt.Errorf("redis kv selected but no addr or url configured")
	}
	return redisstore.New(rc.Addr, rc.Password, rc.DB)
}

func (a *Assistant) buildPipeline() error {
	sourceTimeout, err := a.cfg.SourceTimeout()
	if err != nil {
		return err
	}
	recoveryWindow, err := a.cfg.RecoveryWindow()
	if err != nil {
		return err
	}
	cacheTTL, err := a.cfg.CacheTTL()
	if err != nil {
		return err
	}
	generatorTimeout, err := a.cfg.GeneratorTimeout()
	if err != nil {
		return err
	}

	sourceCfgs := make(map[string]frame.SourceConfig, len(a.cfg.Sources))
	for name, sc := range a.cfg.Sources {
		sourceCfgs[name] = frame.SourceConfig{Priority: sc.Priority, Density: sc.Density}
	}

	// The trace source is always registered last so configured sources win
	// equal-weight ties.
	sources := append([]ports.ContextSource{}, a.sources...)
	sources = append(sources, frame.NewRecentTraceSource(a.traces, a.cfg.Pipeline.TraceHistory))

	builder := frame.NewBuilder(frame.Config{
		MaxItems:      a.cfg.Pipeline.MaxContextItems,
		LoadCeiling:   a.cfg.Pipeline.CognitiveLoadCeiling,
		SourceTimeout: sourceTimeout,
		Sources:       sourceCfgs,
	}, frame.NewLoadEstimator(), a.logger, sources...)

	br := breaker.New(a.kv, breaker.Config{
		FailureThreshold: a.cfg.Breaker.FailureThreshold,
		RecoveryWindow:   recoveryWindow,
	}, a.logger)

	cache := router.NewResponseCache(a.kv, cacheTTL, a.logger)
	rt := router.New(a.fastGen, a.deepGen, cache, router.Config{
		ComplexityThreshold: a.cfg.Router.ComplexityThreshold,
		CacheTTL:            cacheTTL,
		GeneratorTimeout:    generatorTimeout,
	}, a.logger)

	loop, err := engine.New(engine.Config{
		TraceHistory: a.cfg.Pipeline.TraceHistory,
	}, engine.Deps{
		Monitor: safety.NewMonitor(),
		Breaker: br,
		Frames:  builder,
		Router:  rt,
		Traces:  a.traces,
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("build cognitive loop: %w", err)
	}
	a.loop = loop
	return nil
}

// Process runs one interaction through the pipeline. Available without Start,
// for embedding the assistant as a library.
func (a *Assistant) Process(ctx context.Context, req *domain.InteractionRequest) *domain.Result {
	return a.loop.Process(ctx, req)
}

// Start serves HTTP on the configured port. It returns once the listener is
// running; listener failures after that are logged.
func (a *Assistant) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("assistant already started")
	}
	a.started = true

	go func() {
		if err := a.srv.Start(); err != nil {
			a.logger.Error("http server stopped", slog.Any("error", err))
		}
	}()

	a.logger.Info("assistant started",
		slog.Int("port", a.cfg.Server.Port),
		slog.Int("sources", len(a.sources)+1),
		slog.String("kv", a.cfg.Storage.KV.Type),
		slog.String("traces", a.cfg.Storage.Traces.Type))
	return nil
}

// Shutdown drains the HTTP server and closes the stores the assistant owns.
func (a *Assistant) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	if a.started {
		if err := a.srv.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("shutdown http server: %w", err)
		}
		a.started = false
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
	}
	a.closers = nil
	return firstErr
}
