// Package frame assembles bounded context frames for the cognitive
// pipeline. Candidate items are fetched from all registered sources
// concurrently, weighted, and packed greedily under a cognitive-load budget.
package frame

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

// SourceConfig tunes how one source's items are scored.
type SourceConfig struct {
	// Priority multiplies the source's reported relevance into the item
	// weight. Defaults to 1.
	Priority float64
	// Density multiplies the per-item load cost, letting terse sources
	// (calendar entries) pack tighter than verbose ones (transcripts).
	// Defaults to 1.
	Density float64
}

// Config bounds frame construction.
type Config struct {
	// MaxItems caps the number of items per frame.
	MaxItems int
	// LoadCeiling caps the frame's total cognitive load.
	LoadCeiling float64
	// SourceTimeout bounds each source fetch.
	SourceTimeout time.Duration
	// Sources maps source names to scoring overrides.
	Sources map[string]SourceConfig
}

// Builder assembles frames. It holds no per-request state and is safe for
// concurrent use.
type Builder struct {
	cfg     Config
	sources []ports.ContextSource
	costs   CostEstimator
	logger  *slog.Logger
}

// NewBuilder creates a frame builder over the given sources. Source
// registration order is the deterministic tie-break for equal weights.
func NewBuilder(cfg Config, costs CostEstimator, logger *slog.Logger, sources ...ports.ContextSource) *Builder {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 8
	}
	if cfg.LoadCeiling <= 0 {
		cfg.LoadCeiling = 1.0
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 2 * time.Second
	}
	if costs == nil {
		costs = NewLoadEstimator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, sources: sources, costs: costs, logger: logger}
}

// candidate pairs an item with its packing cost.
type candidate struct {
	item domain.ContextItem
	cost float64
}

// Build assembles a frame for one request. Sources are fetched concurrently
// with a per-source timeout; a failing or slow source contributes nothing.
// Build only fails when the request context itself is done.
func (b *Builder) Build(ctx context.Context, userID, rawText, taskFocus string) (*domain.ContextFrame, error) {
	results := make([][]domain.ContextItem, len(b.sources))

	g := new(errgroup.Group)
	for i, src := range b.sources {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.SourceTimeout)
			defer cancel()

			items, err := src.Fetch(fetchCtx, userID, rawText, taskFocus)
			if err != nil {
				b.logger.Warn("context source failed",
					slog.String("source", src.Name()),
					slog.String("user_id", userID),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = items
			return nil
		})
	}
	g.Wait() //nolint:errcheck // fetch errors are tolerated per source

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Flatten in registration order so the stable sort below breaks weight
	// ties deterministically.
	var candidates []candidate
	for i, items := range results {
		name := b.sources[i].Name()
		sc := b.sourceConfig(name)
		for _, it := range items {
			it.Source = name
			it.Relevance = clamp01(it.Relevance)
			it.Weight = it.Relevance * sc.Priority
			candidates = append(candidates, candidate{
				item: it,
				cost: b.costs.Cost(it.Content) * sc.Density,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].item.Weight > candidates[j].item.Weight
	})

	// Greedy fill: an item that would breach the ceiling is skipped and the
	// next lower-weight one is tried, so the frame packs as densely as the
	// budget allows.
	frame := &domain.ContextFrame{
		FrameID:   "frm_" + uuid.New().String(),
		UserID:    userID,
		TaskFocus: taskFocus,
		CreatedAt: time.Now(),
	}
	for _, c := range candidates {
		if len(frame.Items) >= b.cfg.MaxItems {
			break
		}
		if frame.CognitiveLoad+c.cost > b.cfg.LoadCeiling {
			continue
		}
		frame.Items = append(frame.Items, c.item)
		frame.CognitiveLoad += c.cost
	}

	return frame, nil
}

func (b *Builder) sourceConfig(name string) SourceConfig {
	sc, ok := b.cfg.Sources[name]
	if !ok {
		return SourceConfig{Priority: 1, Density: 1}
	}
	if sc.Priority <= 0 {
		sc.Priority = 1
	}
	if sc.Density <= 0 {
		sc.Density = 1
	}
	return sc
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
