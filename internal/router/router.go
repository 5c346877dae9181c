// Package router chooses the processing path for a request (fast/local vs
// deep/remote), serves the response cache, and turns generator failures into
// graceful fallbacks.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

// FallbackResponse is returned when the chosen generator fails. Short and
// supportive; never an error message.
const FallbackResponse = "I'm having a little trouble putting together a full answer right now. " +
	"I'm still here — could we try that again in a moment?"

// Config tunes routing and caching.
type Config struct {
	// ComplexityThreshold is the score at or above which the deep path is
	// chosen.
	ComplexityThreshold float64
	// CacheTTL bounds response reuse.
	CacheTTL time.Duration
	// GeneratorTimeout bounds one generation call; a timeout is a generator
	// failure.
	GeneratorTimeout time.Duration
}

// GeneratorError marks a generation failure. The router recovers it into a
// fallback result; callers inspect the error only to feed the breaker.
type GeneratorError struct {
	Path domain.RoutePath
	Err  error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("%s generator failed: %v", e.Path, e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

// IsGeneratorFailure reports whether err came from a failed generation.
func IsGeneratorFailure(err error) bool {
	var ge *GeneratorError
	return errors.As(err, &ge)
}

// Router is stateless across requests apart from the shared cache.
type Router struct {
	fast   ports.Generator
	deep   ports.Generator
	cache  *ResponseCache
	cfg    Config
	logger *slog.Logger
}

// New creates a router over the two generator paths.
func New(fast, deep ports.Generator, cache *ResponseCache, cfg Config, logger *slog.Logger) *Router {
	if cfg.ComplexityThreshold <= 0 {
		cfg.ComplexityThreshold = 0.55
	}
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{fast: fast, deep: deep, cache: cache, cfg: cfg, logger: logger}
}

// Route scores the request and probes the cache. It never fails; a cache
// error is just a miss.
func (r *Router) Route(ctx context.Context, frame *domain.ContextFrame, rawText string) *domain.RoutingDecision {
	features := ExtractFeatures(frame, rawText)
	score := features.Score()

	path := domain.RouteFast
	if score >= r.cfg.ComplexityThreshold {
		path = domain.RouteDeep
	}

	key := r.cache.Key(rawText, frame.TaskFocus, frame.SourceIDs())
	_, hit := r.cache.Get(ctx, key)

	r.logger.Debug("routing decision",
		slog.String("path", string(path)),
		slog.Float64("score", score),
		slog.Bool("cache_hit", hit))

	return &domain.RoutingDecision{Path: path, CacheKey: key, CacheHit: hit}
}

// Resolve produces the response for a decision. On a cache hit the generator
// is skipped entirely. On a miss the chosen generator runs under the
// configured timeout; if it fails, Resolve returns the fallback result AND a
// GeneratorError so the caller can count the failure. The result is always
// usable.
func (r *Router) Resolve(ctx context.Context, decision *domain.RoutingDecision, frame *domain.ContextFrame, rawText string) (*domain.Result, error) {
	if decision.CacheHit {
		if res, ok := r.cache.Get(ctx, decision.CacheKey); ok {
			return res, nil
		}
		// Entry evicted between Route and Resolve; fall through to generate.
	}

	gen := r.fast
	if decision.Path == domain.RouteDeep {
		gen = r.deep
	}

	genCtx, cancel := context.WithTimeout(ctx, r.cfg.GeneratorTimeout)
	defer cancel()

	res, err := gen.Generate(genCtx, frame, rawText)
	if err != nil {
		r.logger.Warn("generation failed",
			slog.String("path", string(decision.Path)),
			slog.String("generator", gen.Name()),
			slog.String("error", err.Error()))
		return &domain.Result{ResponseText: FallbackResponse, Actions: []domain.ActionSpec{}},
			&GeneratorError{Path: decision.Path, Err: err}
	}
	if res == nil || res.ResponseText == "" {
		// An empty response is as bad as an error for the user.
		return &domain.Result{ResponseText: FallbackResponse, Actions: []domain.ActionSpec{}},
			&GeneratorError{Path: decision.Path, Err: errors.New("empty response")}
	}

	r.cache.Put(ctx, decision.CacheKey, res)
	return res, nil
}
