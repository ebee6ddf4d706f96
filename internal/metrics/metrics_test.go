package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/piyasasohbet/piyasabot/internal/logger"
)

func TestRecorderSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := New(logger.Discard())

	r.Generation(ctx, StatusSuccess, 120*time.Millisecond)
	r.Generation(ctx, StatusSuccess, 0)
	r.Generation(ctx, StatusFailed, time.Second)
	r.Telegram429(ctx)
	r.Telegram5xx(ctx)
	r.Telegram5xx(ctx)
	r.RateLimitHit(ctx)
	r.TickOutcome(ctx, "sent")
	r.TickOutcome(ctx, "sent")
	r.TickOutcome(ctx, "no_eligible_bot")
	r.DBQuery(ctx, "recent_messages", time.Millisecond)
	r.SetActiveBots(5)
	r.SetDBConnections(1)

	s := r.Snapshot()
	assert.Equal(t, int64(2), s.GenerationSuccess)
	assert.Equal(t, int64(1), s.GenerationFailed)
	assert.Equal(t, int64(1), s.Telegram429)
	assert.Equal(t, int64(2), s.Telegram5xx)
	assert.Equal(t, int64(1), s.RateLimitHits)
	assert.Equal(t, int64(5), s.ActiveBots)
	assert.Equal(t, int64(1), s.DBConnections)
	assert.Equal(t, map[string]int64{"sent": 2, "no_eligible_bot": 1}, s.TickOutcomes)

	s.TickOutcomes["sent"] = 99
	assert.Equal(t, int64(2), r.Snapshot().TickOutcomes["sent"], "snapshot must be a copy")
}
