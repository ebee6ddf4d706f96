package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/logger"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

type fakeCounter struct {
	global    int
	perBot    map[int64]int
	err       error
	groupedN  int
	lastSince time.Time
}

func (f *fakeCounter) CountBotMessagesSince(_ context.Context, since time.Time) (int, error) {
	f.lastSince = since
	return f.global, f.err
}

func (f *fakeCounter) CountMessagesByBotSince(_ context.Context, _ []int64, since time.Time) (map[int64]int, error) {
	f.groupedN++
	f.lastSince = since
	return f.perBot, f.err
}

func TestGateAllowGlobal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name  string
		count int
		err   error
		cap   int
		want  bool
	}{
		{name: "below cap", count: 5, cap: 6, want: true},
		{name: "at cap", count: 6, cap: 6, want: false},
		{name: "disabled cap", count: 100, cap: 0, want: true},
		{name: "backend error fails open", err: errors.New("locked"), cap: 6, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
			fc := &fakeCounter{global: tt.count, err: tt.err}
			g := NewGate(fc, logger.Discard())
			g.now = func() time.Time { return now }

			assert.Equal(t, tt.want, g.AllowGlobal(ctx, tt.cap))
			if tt.cap > 0 {
				assert.Equal(t, now.Add(-time.Minute), fc.lastSince)
			}
		})
	}
}

func TestGateFilterHourly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bots := []database.Bot{{ID: 1}, {ID: 2}, {ID: 3}}

	t.Run("one grouped query filters capped bots", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCounter{perBot: map[int64]int{1: 12, 2: 3}}
		g := NewGate(fc, logger.Discard())

		got := g.FilterHourly(ctx, bots, settings.IntRange{Min: 12, Max: 12})
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].ID)
		assert.Equal(t, int64(3), got[1].ID)
		assert.Equal(t, 1, fc.groupedN)
	})

	t.Run("error allows everyone", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&fakeCounter{err: errors.New("boom")}, logger.Discard())
		assert.Len(t, g.FilterHourly(ctx, bots, settings.IntRange{Min: 0, Max: 0}), 3)
	})

	t.Run("empty input skips the query", func(t *testing.T) {
		t.Parallel()
		fc := &fakeCounter{}
		g := NewGate(fc, logger.Discard())
		assert.Empty(t, g.FilterHourly(ctx, nil, settings.IntRange{Min: 6, Max: 12}))
		assert.Zero(t, fc.groupedN)
	})
}

func TestGateSampleCap(t *testing.T) {
	t.Parallel()
	g := NewGate(&fakeCounter{}, logger.Discard())

	for i := 0; i < 200; i++ {
		c := g.SampleCap(settings.IntRange{Min: 6, Max: 12})
		assert.GreaterOrEqual(t, c, 6)
		assert.LessOrEqual(t, c, 12)
	}
	assert.Equal(t, 4, g.SampleCap(settings.IntRange{Min: 4, Max: 4}))
}

func TestTokenBucket(t *testing.T) {
	t.Parallel()

	t.Run("per chat capacity", func(t *testing.T) {
		t.Parallel()
		now := time.Unix(1_700_000_000, 0)
		b := NewTokenBucket()
		b.now = func() time.Time { return now }

		for i := 0; i < DefaultChatBurst; i++ {
			require.True(t, b.TryAcquire("chat-a"), "token %d", i)
		}
		assert.False(t, b.TryAcquire("chat-a"))
		assert.True(t, b.TryAcquire("chat-b"), "other chats have their own bucket")

		now = now.Add(DefaultChatWindow / DefaultChatBurst)
		assert.True(t, b.TryAcquire("chat-a"), "one token refills per window slice")
	})

	t.Run("global capacity is shared", func(t *testing.T) {
		t.Parallel()
		now := time.Unix(1_700_000_000, 0)
		b := NewTokenBucketWith(1, 2, 10, time.Minute)
		b.now = func() time.Time { return now }

		assert.True(t, b.TryAcquire("a"))
		assert.True(t, b.TryAcquire("b"))
		assert.False(t, b.TryAcquire("c"))
	})

	t.Run("failed acquire does not consume the other bucket", func(t *testing.T) {
		t.Parallel()
		now := time.Unix(1_700_000_000, 0)
		b := NewTokenBucketWith(100, 100, 1, time.Hour)
		b.now = func() time.Time { return now }

		require.True(t, b.TryAcquire("a"))
		for i := 0; i < 50; i++ {
			require.False(t, b.TryAcquire("a"))
		}
		for i := 0; i < 99; i++ {
			require.True(t, b.TryAcquire("chat-"+string(rune('A'+i%26))+string(rune('a'+i/26))))
		}
	})

	t.Run("acquire without wait fails fast", func(t *testing.T) {
		t.Parallel()
		b := NewTokenBucketWith(1, 1, 1, time.Hour)
		require.NoError(t, b.Acquire(context.Background(), "a", 0))
		assert.ErrorIs(t, b.Acquire(context.Background(), "a", 0), ErrRateLimited)
	})

	t.Run("acquire waits for a refill", func(t *testing.T) {
		t.Parallel()
		b := NewTokenBucketWith(100, 100, 1, 300*time.Millisecond)
		require.NoError(t, b.Acquire(context.Background(), "a", 0))

		start := time.Now()
		require.NoError(t, b.Acquire(context.Background(), "a", 2*time.Second))
		assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	})

	t.Run("acquire gives up after max wait", func(t *testing.T) {
		t.Parallel()
		b := NewTokenBucketWith(100, 100, 1, time.Hour)
		require.NoError(t, b.Acquire(context.Background(), "a", 0))
		assert.ErrorIs(t, b.Acquire(context.Background(), "a", 250*time.Millisecond), ErrRateLimited)
	})
}
