package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	"github.com/piyasasohbet/piyasabot/internal/config"
	"github.com/piyasasohbet/piyasabot/internal/logger"
)

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Piyasa Haberleri</title>
  <link>https://example.com</link>
  <description>test</description>
  %s
</channel>
</rss>`

func rssItem(title string, published time.Time) string {
	return fmt.Sprintf(`<item><title>%s</title><link>https://example.com/%d</link><pubDate>%s</pubDate></item>`,
		title, published.Unix(), published.Format(time.RFC1123Z))
}

func feedServer(t *testing.T, items ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	body := fmt.Sprintf(feedTemplate, strings.Join(items, "\n"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newBriefer(feeds []string, c *cache.Manager) *Briefer {
	return NewBriefer(config.NewsConfig{FetchTimeout: 2 * time.Second, MaxItems: 2}, feeds, c, logger.Discard())
}

func TestBrief(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	srv, _ := feedServer(t,
		rssItem("TCMB faizi sabit tuttu", now.Add(-3*time.Hour)),
		rssItem("Borsa güne yükselişle başladı", now.Add(-2*time.Hour)),
		rssItem("Bitcoin 100 bin doları aştı", now.Add(-time.Hour)),
		rssItem("BIST 100 endeksi rekor kırdı", now.Add(-30*time.Minute)),
		rssItem("Hisse piyasasında halka arz haftası", now.Add(-4*time.Hour)),
	)

	t.Run("newest matching headlines", func(t *testing.T) {
		t.Parallel()
		b := newBriefer([]string{srv.URL}, nil)
		got, err := b.Brief(ctx, "BIST")
		require.NoError(t, err)
		assert.Equal(t, "BIST 100 endeksi rekor kırdı; Borsa güne yükselişle başladı", got)
	})

	t.Run("no match is empty", func(t *testing.T) {
		t.Parallel()
		b := newBriefer([]string{srv.URL}, nil)
		got, err := b.Brief(ctx, "Emtia")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("cached per topic", func(t *testing.T) {
		t.Parallel()
		own, hits := feedServer(t, rssItem("Bitcoin 100 bin doları aştı", now))
		c := cache.New(100, nil, logger.Discard())
		b := newBriefer([]string{own.URL}, c)

		first, err := b.Brief(ctx, "Kripto")
		require.NoError(t, err)
		second, err := b.Brief(ctx, "Kripto")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, "Bitcoin 100 bin doları aştı", first)
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestBriefWithoutFeeds(t *testing.T) {
	t.Parallel()

	b := newBriefer(nil, nil)
	got, err := b.Brief(context.Background(), "BIST")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBriefAllFeedsFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	b := newBriefer([]string{srv.URL}, nil)
	_, err := b.Brief(context.Background(), "BIST")
	require.Error(t, err)
}

func TestBriefOneFeedFails(t *testing.T) {
	t.Parallel()

	good, _ := feedServer(t, rssItem("Dolar kuru yatay seyrediyor", time.Now()))
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(bad.Close)

	b := newBriefer([]string{bad.URL, good.URL}, nil)
	got, err := b.Brief(context.Background(), "FX")
	require.NoError(t, err)
	assert.Equal(t, "Dolar kuru yatay seyrediyor", got)
}

func TestReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	first, _ := feedServer(t, rssItem("Altın ons rekor tazeledi", time.Now()))
	second, _ := feedServer(t, rssItem("Brent petrol sert düştü", time.Now()))

	c := cache.New(100, nil, logger.Discard())
	b := newBriefer([]string{first.URL, " ", first.URL}, c)
	assert.Equal(t, []string{first.URL}, b.Feeds())

	got, err := b.Brief(ctx, "Emtia")
	require.NoError(t, err)
	assert.Equal(t, "Altın ons rekor tazeledi", got)

	b.Reload(ctx, []string{second.URL})
	assert.Equal(t, []string{second.URL}, b.Feeds())

	got, err = b.Brief(ctx, "Emtia")
	require.NoError(t, err)
	assert.Equal(t, "Brent petrol sert düştü", got)
}
