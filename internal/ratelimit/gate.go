// Package ratelimit enforces message budgets: the global per-minute cap and per-bot
// hourly caps counted from the store, and token buckets in front of the transport.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

// Counter is the subset of the store the gate reads.
type Counter interface {
	CountBotMessagesSince(ctx context.Context, since time.Time) (int, error)
	CountMessagesByBotSince(ctx context.Context, botIDs []int64, since time.Time) (map[int64]int, error)
}

// Gate checks persisted message counts against the configured caps. Backend errors
// fail open: the error is logged and the check passes.
type Gate struct {
	store  Counter
	logger *slog.Logger
	now    func() time.Time
	intn   func(n int) int
}

// NewGate creates a gate over store.
func NewGate(store Counter, logger *slog.Logger) *Gate {
	return &Gate{
		store:  store,
		logger: logger.With("component", "rate_gate"),
		now:    time.Now,
		intn:   rand.IntN,
	}
}

// AllowGlobal reports whether fewer than maxPerMinute bot messages were written in the
// last 60 seconds. A non-positive cap disables the check.
func (g *Gate) AllowGlobal(ctx context.Context, maxPerMinute int) bool {
	if maxPerMinute <= 0 {
		return true
	}
	n, err := g.store.CountBotMessagesSince(ctx, g.now().Add(-time.Minute))
	if err != nil {
		g.logger.WarnContext(ctx, "Global rate check failed, allowing", "error", err)
		return true
	}
	if n >= maxPerMinute {
		g.logger.DebugContext(ctx, "Global minute cap reached", "count", n, "cap", maxPerMinute)
		return false
	}
	return true
}

// SampleCap draws an hourly cap uniformly from limit.
func (g *Gate) SampleCap(limit settings.IntRange) int {
	if limit.Max <= limit.Min {
		return limit.Min
	}
	return limit.Min + g.intn(limit.Max-limit.Min+1)
}

// FilterHourly keeps the bots whose message count over the last hour is below a cap
// sampled per bot from limit. All bots are counted with one grouped query.
func (g *Gate) FilterHourly(ctx context.Context, bots []database.Bot, limit settings.IntRange) []database.Bot {
	if len(bots) == 0 {
		return bots
	}
	ids := make([]int64, len(bots))
	for i, b := range bots {
		ids[i] = b.ID
	}
	counts, err := g.store.CountMessagesByBotSince(ctx, ids, g.now().Add(-time.Hour))
	if err != nil {
		g.logger.WarnContext(ctx, "Hourly rate check failed, allowing all candidates", "bots", len(bots), "error", err)
		return bots
	}

	out := make([]database.Bot, 0, len(bots))
	for _, b := range bots {
		limitForBot := g.SampleCap(limit)
		if counts[b.ID] < limitForBot {
			out = append(out, b)
			continue
		}
		g.logger.DebugContext(ctx, "Bot reached hourly cap", "bot_id", b.ID, "count", counts[b.ID], "cap", limitForBot)
	}
	return out
}
