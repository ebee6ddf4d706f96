// Package news turns the configured RSS feeds into one-line market briefs for a topic.
package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	"github.com/piyasasohbet/piyasabot/internal/config"
	"github.com/piyasasohbet/piyasabot/internal/market"
	"github.com/piyasasohbet/piyasabot/internal/text"
)

// maxBriefRunes bounds the brief injected into a prompt.
const maxBriefRunes = 300

// Briefer fetches feeds on demand and caches one brief per topic.
type Briefer struct {
	parser   *gofeed.Parser
	cache    *cache.Manager
	logger   *slog.Logger
	timeout  time.Duration
	maxItems int

	mu    sync.RWMutex
	feeds []string
}

// NewBriefer creates a briefer over feeds. A nil cache disables caching.
func NewBriefer(cfg config.NewsConfig, feeds []string, c *cache.Manager, logger *slog.Logger) *Briefer {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = config.DefaultNewsFetchTimeout
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = config.DefaultNewsMaxItems
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "piyasabot/1.0"

	return &Briefer{
		parser:   parser,
		cache:    c,
		logger:   logger.With("component", "news"),
		timeout:  timeout,
		maxItems: maxItems,
		feeds:    cleanURLs(feeds),
	}
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" && !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}

// Feeds returns the current feed list.
func (b *Briefer) Feeds() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.feeds)
}

// Reload swaps the feed list and drops every cached brief when it changed.
func (b *Briefer) Reload(ctx context.Context, urls []string) {
	next := cleanURLs(urls)

	b.mu.Lock()
	changed := !slices.Equal(b.feeds, next)
	b.feeds = next
	b.mu.Unlock()

	if !changed {
		return
	}
	if b.cache != nil {
		b.cache.InvalidatePattern(ctx, cache.NewsKey("*"))
	}
	b.logger.InfoContext(ctx, "News feeds reloaded", "feeds", len(next))
}

// Brief returns a short brief of the newest headlines matching topic, or "" when no
// feed has one. It fails only when every feed failed.
func (b *Briefer) Brief(ctx context.Context, topic string) (string, error) {
	feeds := b.Feeds()
	if len(feeds) == 0 || strings.TrimSpace(topic) == "" {
		return "", nil
	}

	key := cache.NewsKey(topic)
	if b.cache != nil {
		var cached string
		if b.cache.GetJSON(ctx, key, &cached) {
			return cached, nil
		}
	}

	var (
		items  []*gofeed.Item
		failed int
	)
	for _, url := range feeds {
		fetchCtx, cancel := context.WithTimeout(ctx, b.timeout)
		feed, err := b.parser.ParseURLWithContext(url, fetchCtx)
		cancel()
		if err != nil {
			failed++
			b.logger.WarnContext(ctx, "Failed to fetch news feed", "url", url, "error", err)
			continue
		}
		items = append(items, feed.Items...)
	}
	if failed == len(feeds) {
		return "", fmt.Errorf("failed to fetch any of %d news feeds", len(feeds))
	}

	brief := b.compose(topic, items)
	if b.cache != nil {
		if err := b.cache.SetJSON(ctx, key, brief, cache.NewsTTL); err != nil {
			b.logger.DebugContext(ctx, "Failed to cache news brief", "topic", topic, "error", err)
		}
	}
	b.logger.DebugContext(ctx, "News brief built", "topic", topic, "items", len(items), "empty", brief == "")
	return brief, nil
}

func (b *Briefer) compose(topic string, items []*gofeed.Item) string {
	var matched []*gofeed.Item
	for _, it := range items {
		if it == nil || strings.TrimSpace(it.Title) == "" {
			continue
		}
		if market.MatchesTopic(it.Title+" "+it.Description, topic) {
			matched = append(matched, it)
		}
	}
	slices.SortStableFunc(matched, func(x, y *gofeed.Item) int {
		return published(y).Compare(published(x))
	})

	titles := make([]string, 0, b.maxItems)
	for _, it := range matched {
		title := strings.Join(strings.Fields(it.Title), " ")
		if slices.Contains(titles, title) {
			continue
		}
		titles = append(titles, title)
		if len(titles) == b.maxItems {
			break
		}
	}
	return text.TruncateRunes(strings.Join(titles, "; "), maxBriefRunes)
}

func published(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return *it.PublishedParsed
	case it.UpdatedParsed != nil:
		return *it.UpdatedParsed
	default:
		return time.Time{}
	}
}
