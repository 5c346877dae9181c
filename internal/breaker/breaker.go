// Package breaker implements the per-user circuit breaker that limits
// repeated failed interactions. State lives in the shared key-value store
// and is updated with compare-and-set, so concurrent workers never hold it
// in process memory.
package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

// AnchorResponse is the fixed, low-demand message served while the breaker
// is open. It deliberately asks nothing of the user.
const AnchorResponse = "I'm here with you. We don't need to solve anything right now — " +
	"take whatever time you need, and I'll be ready when you want to pick things back up."

const (
	stateKeyPrefix = "haven:breaker:"
	casAttempts    = 3
)

// Config controls when the breaker opens and how long it stays open.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold int
	// RecoveryWindow is how long the breaker stays open before the next
	// request closes it again. Recovery is evaluated lazily on Check, not by
	// a background timer.
	RecoveryWindow time.Duration
	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// CheckResult is the outcome of a breaker check for one request.
type CheckResult struct {
	// Engaged is false while the breaker is open; the caller must serve the
	// anchor response instead of running the pipeline.
	Engaged        bool
	AnchorResponse string
	// Snapshot is the breaker state observed (or produced) by this check,
	// recorded into the trace.
	Snapshot domain.CircuitBreakerState
}

// Breaker is safe for concurrent use; all mutable state is in the store.
type Breaker struct {
	kv     ports.KeyValueStore
	cfg    Config
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a breaker. Zero config fields fall back to the defaults
// (threshold 3, recovery window 3h).
func New(kv ports.KeyValueStore, cfg Config, logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = 3 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Breaker{kv: kv, cfg: cfg, logger: logger, now: now}
}

// Check reports whether the user is engaged. An open breaker whose recovery
// window has elapsed is closed here, lazily. Store failures fail open toward
// engaged: infrastructure trouble must never block a user from getting help.
func (b *Breaker) Check(ctx context.Context, userID string) CheckResult {
	raw, state, err := b.load(ctx, userID)
	if err != nil {
		b.logger.Error("breaker state unavailable, failing open",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return CheckResult{Engaged: true, Snapshot: closedState()}
	}

	if state.State != domain.BreakerOpen {
		return CheckResult{Engaged: true, Snapshot: state}
	}

	if b.now().Before(state.RecoveryUntil) {
		return CheckResult{
			Engaged:        false,
			AnchorResponse: AnchorResponse,
			Snapshot:       state,
		}
	}

	// Recovery window elapsed: close the breaker. A lost race here is
	// harmless; whoever wins writes the same closed state.
	next := closedState()
	if err := b.swap(ctx, userID, raw, next); err != nil {
		b.logger.Warn("breaker recovery write failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	} else {
		b.logger.Info("breaker recovered",
			slog.String("user_id", userID))
	}
	return CheckResult{Engaged: true, Snapshot: next}
}

// RecordOutcome feeds one interaction outcome into the failure counter and
// returns the resulting state. Success while closed resets the counter;
// reaching the threshold opens the breaker. Counters never change while
// open. Store failures are logged and the outcome is dropped (fail open).
func (b *Breaker) RecordOutcome(ctx context.Context, userID string, success bool) domain.CircuitBreakerState {
	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, state, err := b.load(ctx, userID)
		if err != nil {
			b.logger.Error("breaker state unavailable, outcome dropped",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
			return closedState()
		}

		if state.State == domain.BreakerOpen {
			return state
		}

		next := state
		if success {
			next.ConsecutiveFailures = 0
		} else {
			next.ConsecutiveFailures++
			if next.ConsecutiveFailures >= b.cfg.FailureThreshold {
				now := b.now()
				next.State = domain.BreakerOpen
				next.OpenedAt = now
				next.RecoveryUntil = now.Add(b.cfg.RecoveryWindow)
			}
		}
		if next == state {
			return state
		}

		err = b.swap(ctx, userID, raw, next)
		if err == nil {
			if next.State == domain.BreakerOpen {
				b.logger.Warn("breaker opened",
					slog.String("user_id", userID),
					slog.Int("consecutive_failures", next.ConsecutiveFailures),
					slog.Time("recovery_until", next.RecoveryUntil))
			}
			return next
		}
		if !errors.Is(err, errConflict) {
			b.logger.Error("breaker state write failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
			return state
		}
		// Conflict: another request for this user won the race; reload.
	}

	b.logger.Warn("breaker update contention exhausted",
		slog.String("user_id", userID))
	_, state, _ := b.load(ctx, userID)
	return state
}

var errConflict = errors.New("breaker state changed concurrently")

func (b *Breaker) load(ctx context.Context, userID string) ([]byte, domain.CircuitBreakerState, error) {
	raw, err := b.kv.Get(ctx, stateKeyPrefix+userID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, closedState(), nil
	}
	if err != nil {
		return nil, closedState(), fmt.Errorf("get breaker state: %w", err)
	}

	var state domain.CircuitBreakerState
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupt state is treated as absent rather than blocking the user.
		b.logger.Error("corrupt breaker state, resetting",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil, closedState(), nil
	}
	return raw, state, nil
}

func (b *Breaker) swap(ctx context.Context, userID string, old []byte, next domain.CircuitBreakerState) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal breaker state: %w", err)
	}
	ok, err := b.kv.CompareAndSet(ctx, stateKeyPrefix+userID, old, data, 0)
	if err != nil {
		return fmt.Errorf("cas breaker state: %w", err)
	}
	if !ok {
		return errConflict
	}
	return nil
}

func closedState() domain.CircuitBreakerState {
	return domain.CircuitBreakerState{State: domain.BreakerClosed}
}
