package settings

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
)

// DefaultRefreshInterval is how long a loaded snapshot stays fresh.
const DefaultRefreshInterval = 15 * time.Second

// Source loads the raw settings rows.
type Source interface {
	GetSettings(ctx context.Context) ([]database.Setting, error)
}

// Cache serves snapshots with copy-on-write semantics: a refresh builds a new Snapshot
// and swaps the pointer, so readers always hold a consistent view.
type Cache struct {
	source   Source
	logger   *slog.Logger
	interval time.Duration

	mu       sync.RWMutex
	current  *Snapshot
	loadedAt time.Time

	refreshMu sync.Mutex
}

// NewCache creates a cache that starts from the defaults and is stale until the first load.
func NewCache(source Source, logger *slog.Logger, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Cache{
		source:   source,
		logger:   logger.With("component", "settings"),
		interval: interval,
		current:  Defaults(),
	}
}

// Get returns the current snapshot, reloading it first when it is stale. A failed reload
// keeps serving the previous snapshot.
func (c *Cache) Get(ctx context.Context) *Snapshot {
	c.mu.RLock()
	snap, fresh := c.current, !c.loadedAt.IsZero() && time.Since(c.loadedAt) < c.interval
	c.mu.RUnlock()
	if fresh {
		return snap
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.WarnContext(ctx, "Failed to refresh settings, serving previous snapshot", "error", err)
	}
	return c.Current()
}

// Current returns the last loaded snapshot without checking staleness.
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Refresh reloads settings from the source. Only one refresh runs at a time.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	rows, err := c.source.GetSettings(ctx)
	if err != nil {
		return err
	}
	snap, parseErr := Parse(rows)
	if parseErr != nil {
		c.logger.WarnContext(ctx, "Some settings were invalid and kept their defaults", "error", parseErr)
	}

	c.mu.Lock()
	c.current = snap
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Settings refreshed", "rows", len(rows), "simulation_active", snap.SimulationActive)
	return nil
}

// Invalidate marks the snapshot stale so the next Get reloads it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}
