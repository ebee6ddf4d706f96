package configbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/settings"
)

// SettingsCache is the part of settings.Cache the listener drives.
type SettingsCache interface {
	Invalidate()
	Refresh(ctx context.Context) error
	Current() *settings.Snapshot
}

// FeedReloader swaps the news feed list.
type FeedReloader interface {
	Reload(ctx context.Context, urls []string)
}

// Listener applies config-update events.
type Listener struct {
	sub      Subscriber
	settings SettingsCache
	feeds    FeedReloader
	logger   *slog.Logger
	backoff  time.Duration
}

// NewListener creates a listener. feeds may be nil.
func NewListener(sub Subscriber, sc SettingsCache, feeds FeedReloader, logger *slog.Logger) *Listener {
	return &Listener{
		sub:      sub,
		settings: sc,
		feeds:    feeds,
		logger:   logger.With("component", "config_listener"),
		backoff:  time.Second,
	}
}

// Run receives events until ctx is done or the subscriber is closed.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "Config listener started")
	for {
		payload, err := l.sub.Receive(ctx)
		switch {
		case ctx.Err() != nil:
			l.logger.InfoContext(ctx, "Config listener stopped")
			return nil
		case errors.Is(err, ErrClosed):
			l.logger.InfoContext(ctx, "Config bus closed, listener stopping")
			return nil
		case err != nil:
			l.logger.WarnContext(ctx, "Failed to receive config event", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.backoff):
			}
			continue
		}
		l.Handle(ctx, payload)
	}
}

// Handle applies one payload. Undecodable payloads still invalidate the settings.
func (l *Listener) Handle(ctx context.Context, payload []byte) {
	l.settings.Invalidate()

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.WarnContext(ctx, "Undecodable config event, settings invalidated", "error", err)
		return
	}
	l.logger.InfoContext(ctx, "Config event received", "type", ev.Type, "keys", ev.Keys, "factor", ev.Factor)

	if l.feeds == nil || !ev.HasKey(settings.KeyNewsFeedURLs) {
		return
	}
	if err := l.settings.Refresh(ctx); err != nil {
		l.logger.WarnContext(ctx, "Failed to refresh settings for feed reload", "error", err)
		return
	}
	l.feeds.Reload(ctx, l.settings.Current().NewsFeedURLs)
}
