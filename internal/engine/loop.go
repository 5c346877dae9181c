// Package engine implements the cognitive loop: the per-request orchestrator
// running safety gating, circuit breaking, frame assembly, routing, and
// trace recording as sequential stages, any of which may short-circuit.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/havenlabs/haven/internal/breaker"
	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
	"github.com/havenlabs/haven/internal/frame"
	"github.com/havenlabs/haven/internal/router"
	"github.com/havenlabs/haven/internal/safety"
)

// GenericFallback is the worst-case response: every downstream dependency
// failed, and the user still gets something short and supportive.
const GenericFallback = "Something went sideways on my end, but I'm still here with you. " +
	"Let's give it another try in a moment."

const (
	summaryLen      = 160
	persistTimeout  = 5 * time.Second
	defaultHistoryN = 5
)

// Config tunes the loop itself.
type Config struct {
	// TraceHistory is how many recent trace records are read per request for
	// the safety monitor's history signal.
	TraceHistory int
}

// Deps are the loop's collaborators. All fields are required.
type Deps struct {
	Monitor *safety.Monitor
	Breaker *breaker.Breaker
	Frames  *frame.Builder
	Router  *router.Router
	Traces  ports.TraceStore
	Logger  *slog.Logger
}

// Loop processes interaction requests. It is re-entrant: all per-request
// state lives on the stack, so one Loop serves any number of concurrent
// requests.
type Loop struct {
	cfg     Config
	monitor *safety.Monitor
	breaker *breaker.Breaker
	frames  *frame.Builder
	router  *router.Router
	traces  ports.TraceStore
	logger  *slog.Logger
	tracer  trace.Tracer

	// now is swappable for tests.
	now func() time.Time
}

// New creates a loop. Missing collaborators are programming errors and fail
// here, at construction, never during request processing.
func New(cfg Config, deps Deps) (*Loop, error) {
	switch {
	case deps.Monitor == nil:
		return nil, fmt.Errorf("engine: safety monitor required")
	case deps.Breaker == nil:
		return nil, fmt.Errorf("engine: circuit breaker required")
	case deps.Frames == nil:
		return nil, fmt.Errorf("engine: frame builder required")
	case deps.Router == nil:
		return nil, fmt.Errorf("engine: router required")
	case deps.Traces == nil:
		return nil, fmt.Errorf("engine: trace store required")
	}
	if cfg.TraceHistory <= 0 {
		cfg.TraceHistory = defaultHistoryN
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Loop{
		cfg:     cfg,
		monitor: deps.Monitor,
		breaker: deps.Breaker,
		frames:  deps.Frames,
		router:  deps.Router,
		traces:  deps.Traces,
		logger:  deps.Logger,
		tracer:  otel.Tracer("havenlabs/haven/engine"),
		now:     time.Now,
	}, nil
}

// Process runs one request through the pipeline and always returns a usable
// result. Operational failures never surface as errors: the worst case is a
// generic supportive response with no actions. Exactly one trace record is
// written no matter which stage terminates the request.
func (l *Loop) Process(ctx context.Context, req *domain.InteractionRequest) *domain.Result {
	start := l.now()
	ctx, span := l.tracer.Start(ctx, "engine.process",
		trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer span.End()

	// SAFETY: deterministic, no external dependencies, gates everything.
	recent := l.recentTraces(ctx, req.UserID)
	assessment := l.monitor.Assess(req.RawText, recent)
	span.SetAttributes(attribute.String("risk_level", string(assessment.Risk)))

	if assessment.Risk == domain.RiskCritical {
		l.logger.Warn("critical safety assessment",
			slog.String("user_id", req.UserID),
			slog.String("pattern", assessment.MatchedPattern))
		res := &domain.Result{
			ResponseText: assessment.HardResponse,
			Actions:      []domain.ActionSpec{},
		}
		// Critical responses bypass the breaker entirely: its state is
		// neither read nor written, so the snapshot stays empty.
		l.writeTrace(req, "", assessment, domain.CircuitBreakerState{}, res, start)
		return res
	}

	// BREAKER: anchor mode for users with too many recent failures.
	check := l.breaker.Check(ctx, req.UserID)
	if !check.Engaged {
		res := &domain.Result{
			ResponseText: check.AnchorResponse,
			Actions:      []domain.ActionSpec{},
		}
		l.writeTrace(req, "", assessment, check.Snapshot, res, start)
		return res
	}

	// CONTEXT + ROUTE: any failure here degrades to a fallback result and a
	// failed outcome; it never escapes to the caller.
	res, frameID, stageErr := l.runGeneration(ctx, req)
	success := stageErr == nil
	if stageErr != nil {
		l.logger.Warn("pipeline degraded to fallback",
			slog.String("user_id", req.UserID),
			slog.String("error", stageErr.Error()))
	}

	// RECORD: outcome accounting and the trace write run on a detached
	// context so a client disconnect cannot skew breaker state.
	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	snapshot := l.breaker.RecordOutcome(persistCtx, req.UserID, success)

	l.writeTrace(req, frameID, assessment, snapshot, res, start)
	return res
}

// runGeneration executes the CONTEXT and ROUTE stages. A non-nil error means
// the interaction counts as failed for the breaker; the returned result is
// always usable. Panics in collaborators are contained here so a trace is
// still written.
func (l *Loop) runGeneration(ctx context.Context, req *domain.InteractionRequest) (res *domain.Result, frameID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("pipeline panic recovered",
				slog.String("user_id", req.UserID),
				slog.Any("panic", r))
			res = fallbackResult()
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	ctx, span := l.tracer.Start(ctx, "engine.generate")
	defer span.End()

	fr, err := l.frames.Build(ctx, req.UserID, req.RawText, req.TaskFocus)
	if err != nil {
		return fallbackResult(), "", fmt.Errorf("build frame: %w", err)
	}
	frameID = fr.FrameID
	span.SetAttributes(
		attribute.Int("context_items", len(fr.Items)),
		attribute.Float64("cognitive_load", fr.CognitiveLoad))

	decision := l.router.Route(ctx, fr, req.RawText)
	span.SetAttributes(
		attribute.String("route_path", string(decision.Path)),
		attribute.Bool("cache_hit", decision.CacheHit))

	res, err = l.router.Resolve(ctx, decision, fr, req.RawText)
	if err != nil {
		// Resolve already shaped the fallback result.
		return res, frameID, err
	}
	return normalizeResult(res, l.logger), frameID, nil
}

// recentTraces reads the history signal, tolerating store failures.
func (l *Loop) recentTraces(ctx context.Context, userID string) []*domain.TraceRecord {
	recent, err := l.traces.Recent(ctx, userID, l.cfg.TraceHistory)
	if err != nil {
		l.logger.Warn("trace history unavailable",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil
	}
	return recent
}

// writeTrace appends the request's single trace record, retrying once and
// then dropping with an error log. Trace loss must never fail the
// user-visible request. The write runs on a detached context so it survives
// caller cancellation.
func (l *Loop) writeTrace(req *domain.InteractionRequest, frameID string, assessment domain.SafetyAssessment, snapshot domain.CircuitBreakerState, res *domain.Result, start time.Time) {
	rec := &domain.TraceRecord{
		FrameID:         frameID,
		UserID:          req.UserID,
		InputSummary:    domain.Summarize(req.RawText, summaryLen),
		Safety:          assessment,
		BreakerSnapshot: snapshot,
		ResponseSummary: domain.Summarize(res.ResponseText, summaryLen),
		Actions:         res.Actions,
		LatencyMS:       l.now().Sub(start).Milliseconds(),
		Timestamp:       l.now(),
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := l.traces.Append(persistCtx, rec)
	if err == nil {
		return
	}
	if err = l.traces.Append(persistCtx, rec); err != nil {
		l.logger.Error("trace record dropped",
			slog.String("user_id", req.UserID),
			slog.String("frame_id", frameID),
			slog.String("error", err.Error()))
	}
}

func fallbackResult() *domain.Result {
	return &domain.Result{ResponseText: GenericFallback, Actions: []domain.ActionSpec{}}
}

// normalizeResult drops malformed action specs before they reach external
// executors.
func normalizeResult(res *domain.Result, logger *slog.Logger) *domain.Result {
	if res.Actions == nil {
		res.Actions = []domain.ActionSpec{}
		return res
	}
	kept := res.Actions[:0]
	for _, a := range res.Actions {
		if a.Type == "" {
			logger.Warn("dropping action spec with empty type")
			continue
		}
		kept = append(kept, a)
	}
	res.Actions = kept
	return res
}
