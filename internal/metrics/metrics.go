// Package metrics emits engine counters through the OpenTelemetry metric API. The
// exporter is wired by whoever owns the global MeterProvider; without one the
// instruments are no-ops. Every counter is mirrored in-process for the health endpoint.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Generation statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Recorder holds the engine's instruments.
type Recorder struct {
	generationTotal    otelmetric.Int64Counter
	generationDuration otelmetric.Float64Histogram
	dbQueryDuration    otelmetric.Float64Histogram
	telegram429        otelmetric.Int64Counter
	telegram5xx        otelmetric.Int64Counter
	rateLimitHits      otelmetric.Int64Counter
	tickOutcomes       otelmetric.Int64Counter

	activeBots    atomic.Int64
	dbConnections atomic.Int64

	genSuccess atomic.Int64
	genFailed  atomic.Int64
	t429       atomic.Int64
	t5xx       atomic.Int64
	rateHits   atomic.Int64

	mu       sync.Mutex
	outcomes map[string]int64
}

// New registers all instruments on the global meter. Registration failures are logged
// and leave the affected instrument nil; recording then only updates local mirrors.
func New(logger *slog.Logger) *Recorder {
	log := logger.With("component", "metrics")
	meter := otel.Meter("piyasabot/engine")
	r := &Recorder{outcomes: make(map[string]int64)}

	var err error
	if r.generationTotal, err = meter.Int64Counter("message_generation_total"); err != nil {
		log.Warn("Failed to create counter", "name", "message_generation_total", "error", err)
	}
	if r.generationDuration, err = meter.Float64Histogram("message_generation_duration_seconds", otelmetric.WithUnit("s")); err != nil {
		log.Warn("Failed to create histogram", "name", "message_generation_duration_seconds", "error", err)
	}
	if r.dbQueryDuration, err = meter.Float64Histogram("database_query_duration_seconds", otelmetric.WithUnit("s")); err != nil {
		log.Warn("Failed to create histogram", "name", "database_query_duration_seconds", "error", err)
	}
	if r.telegram429, err = meter.Int64Counter("telegram_429_count"); err != nil {
		log.Warn("Failed to create counter", "name", "telegram_429_count", "error", err)
	}
	if r.telegram5xx, err = meter.Int64Counter("telegram_5xx_count"); err != nil {
		log.Warn("Failed to create counter", "name", "telegram_5xx_count", "error", err)
	}
	if r.rateLimitHits, err = meter.Int64Counter("rate_limit_hits"); err != nil {
		log.Warn("Failed to create counter", "name", "rate_limit_hits", "error", err)
	}
	if r.tickOutcomes, err = meter.Int64Counter("engine_tick_total"); err != nil {
		log.Warn("Failed to create counter", "name", "engine_tick_total", "error", err)
	}

	if _, err = meter.Int64ObservableGauge("active_bots", otelmetric.WithInt64Callback(
		func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(r.activeBots.Load())
			return nil
		})); err != nil {
		log.Warn("Failed to create gauge", "name", "active_bots", "error", err)
	}
	if _, err = meter.Int64ObservableGauge("database_connections", otelmetric.WithInt64Callback(
		func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(r.dbConnections.Load())
			return nil
		})); err != nil {
		log.Warn("Failed to create gauge", "name", "database_connections", "error", err)
	}

	return r
}

// Generation records one pipeline run.
func (r *Recorder) Generation(ctx context.Context, status string, elapsed time.Duration) {
	if status == StatusSuccess {
		r.genSuccess.Add(1)
	} else {
		r.genFailed.Add(1)
	}
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	if r.generationTotal != nil {
		r.generationTotal.Add(ctx, 1, attrs)
	}
	if r.generationDuration != nil && elapsed > 0 {
		r.generationDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// DBQuery records the duration of one store call.
func (r *Recorder) DBQuery(ctx context.Context, op string, elapsed time.Duration) {
	if r.dbQueryDuration != nil {
		r.dbQueryDuration.Record(ctx, elapsed.Seconds(), otelmetric.WithAttributes(attribute.String("op", op)))
	}
}

// Telegram429 counts a throttled send.
func (r *Recorder) Telegram429(ctx context.Context) {
	r.t429.Add(1)
	if r.telegram429 != nil {
		r.telegram429.Add(ctx, 1)
	}
}

// Telegram5xx counts a server-side send failure.
func (r *Recorder) Telegram5xx(ctx context.Context) {
	r.t5xx.Add(1)
	if r.telegram5xx != nil {
		r.telegram5xx.Add(ctx, 1)
	}
}

// RateLimitHit counts a send that had to wait for or was refused by a rate limit.
func (r *Recorder) RateLimitHit(ctx context.Context) {
	r.rateHits.Add(1)
	if r.rateLimitHits != nil {
		r.rateLimitHits.Add(ctx, 1)
	}
}

// TickOutcome counts how a main-loop iteration ended.
func (r *Recorder) TickOutcome(ctx context.Context, outcome string) {
	r.mu.Lock()
	r.outcomes[outcome]++
	r.mu.Unlock()
	if r.tickOutcomes != nil {
		r.tickOutcomes.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (r *Recorder) SetActiveBots(n int)    { r.activeBots.Store(int64(n)) }
func (r *Recorder) SetDBConnections(n int) { r.dbConnections.Store(int64(n)) }

// Snapshot is the in-process view served by the health endpoint.
type Snapshot struct {
	GenerationSuccess int64            `json:"message_generation_success"`
	GenerationFailed  int64            `json:"message_generation_failed"`
	Telegram429       int64            `json:"telegram_429_count"`
	Telegram5xx       int64            `json:"telegram_5xx_count"`
	RateLimitHits     int64            `json:"rate_limit_hits"`
	ActiveBots        int64            `json:"active_bots"`
	DBConnections     int64            `json:"database_connections"`
	TickOutcomes      map[string]int64 `json:"tick_outcomes"`
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	outcomes := make(map[string]int64, len(r.outcomes))
	for k, v := range r.outcomes {
		outcomes[k] = v
	}
	r.mu.Unlock()

	return Snapshot{
		GenerationSuccess: r.genSuccess.Load(),
		GenerationFailed:  r.genFailed.Load(),
		Telegram429:       r.t429.Load(),
		Telegram5xx:       r.t5xx.Load(),
		RateLimitHits:     r.rateHits.Load(),
		ActiveBots:        r.activeBots.Load(),
		DBConnections:     r.dbConnections.Load(),
		TickOutcomes:      outcomes,
	}
}
