package configbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/logger"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

type fakeSource struct {
	mu    sync.Mutex
	rows  []database.Setting
	loads atomic.Int32
}

func (f *fakeSource) GetSettings(context.Context) ([]database.Setting, error) {
	f.loads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]database.Setting(nil), f.rows...), nil
}

func (f *fakeSource) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].Key == key {
			f.rows[i].Value = value
			return
		}
	}
	f.rows = append(f.rows, database.Setting{Key: key, Value: value})
}

type fakeFeeds struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeFeeds) Reload(_ context.Context, urls []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, urls)
}

func (f *fakeFeeds) reloads() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func newSettings(t *testing.T, src *fakeSource) *settings.Cache {
	t.Helper()
	c := settings.NewCache(src, logger.Discard(), time.Hour)
	require.NoError(t, c.Refresh(context.Background()))
	return c
}

func TestListenerHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("any event invalidates settings", func(t *testing.T) {
		t.Parallel()
		src := &fakeSource{}
		sc := newSettings(t, src)
		feeds := &fakeFeeds{}
		l := NewListener(NewChannelSubscriber(), sc, feeds, logger.Discard())

		src.set("simulation_active", "true")
		assert.False(t, sc.Get(ctx).SimulationActive)

		l.Handle(ctx, []byte(`{"type":"settings_updated","keys":["simulation_active"]}`))
		assert.True(t, sc.Get(ctx).SimulationActive)
		assert.Empty(t, feeds.reloads())
	})

	t.Run("garbage still invalidates", func(t *testing.T) {
		t.Parallel()
		src := &fakeSource{}
		sc := newSettings(t, src)
		l := NewListener(NewChannelSubscriber(), sc, nil, logger.Discard())

		src.set("max_msgs_per_min", "9")
		l.Handle(ctx, []byte(`not json`))
		assert.Equal(t, 9, sc.Get(ctx).MaxMsgsPerMin)
	})

	t.Run("feed list change reloads news", func(t *testing.T) {
		t.Parallel()
		src := &fakeSource{}
		sc := newSettings(t, src)
		feeds := &fakeFeeds{}
		l := NewListener(NewChannelSubscriber(), sc, feeds, logger.Discard())

		src.set(settings.KeyNewsFeedURLs, `["https://example.com/rss"]`)
		l.Handle(ctx, []byte(`{"type":"settings_updated","keys":["news_feed_urls","scale_factor"]}`))

		require.Len(t, feeds.reloads(), 1)
		assert.Equal(t, []string{"https://example.com/rss"}, feeds.reloads()[0])
	})
}

func TestListenerRunOverRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := NewRedisBus(ctx, client, "config_updates")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	src := &fakeSource{}
	sc := newSettings(t, src)
	feeds := &fakeFeeds{}
	l := NewListener(bus, sc, feeds, logger.Discard())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	src.set(settings.KeyNewsFeedURLs, `["https://a.example/rss","https://b.example/rss"]`)
	require.NoError(t, bus.Publish(ctx, Event{Type: "settings_updated", Keys: []string{settings.KeyNewsFeedURLs}}))

	require.Eventually(t, func() bool { return len(feeds.reloads()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"https://a.example/rss", "https://b.example/rss"}, feeds.reloads()[0])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerStopsWhenClosed(t *testing.T) {
	t.Parallel()

	sub := NewChannelSubscriber()
	l := NewListener(sub, newSettings(t, &fakeSource{}), nil, logger.Discard())

	sub.Send([]byte(`{"type":"ping"}`))
	require.NoError(t, sub.Close())
	require.NoError(t, l.Run(context.Background()))
}

func TestEventHasKey(t *testing.T) {
	t.Parallel()

	ev := Event{Type: "settings_updated", Keys: []string{"a", settings.KeyNewsFeedURLs}}
	assert.True(t, ev.HasKey(settings.KeyNewsFeedURLs))
	assert.False(t, Event{}.HasKey("a"))
}

func TestKafkaSubscriberHonorsContext(t *testing.T) {
	t.Parallel()

	sub := NewKafkaSubscriber([]string{"127.0.0.1:1"}, "config_updates", "")
	t.Cleanup(func() { _ = sub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sub.Receive(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
