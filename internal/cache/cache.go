// Package cache implements the two-layer cache: an in-process LRU backed by Redis.
// A missing or failing Redis is never an error for callers; the cache degrades to L1.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs of the cached entities.
const (
	ProfileTTL    = 5 * time.Minute
	HistoryTTL    = 60 * time.Second
	NewsTTL       = 10 * time.Minute
	EmbeddingTTL  = 24 * time.Hour
	ParaphraseTTL = 6 * time.Hour
)

// Key builders. Bot scoped keys share the "bot:{id}:" prefix so InvalidateBot can
// sweep them with one pattern.
func BotProfileKey(botID int64) string  { return "bot:" + strconv.FormatInt(botID, 10) + ":profile" }
func BotStancesKey(botID int64) string  { return "bot:" + strconv.FormatInt(botID, 10) + ":stances" }
func BotHoldingsKey(botID int64) string { return "bot:" + strconv.FormatInt(botID, 10) + ":holdings" }
func BotMemoriesKey(botID int64) string { return "bot:" + strconv.FormatInt(botID, 10) + ":memories" }
func ChatMessagesKey(chatDBID int64) string {
	return "chat:" + strconv.FormatInt(chatDBID, 10) + ":messages"
}
func NewsKey(topic string) string { return "news:" + strings.ToLower(topic) }

// EmbeddingKey is content addressed: the same text always maps to the same key.
func EmbeddingKey(text string) string { return "emb:" + digest(text) }

// ParaphraseKey addresses a paraphrase of text produced for one bot.
func ParaphraseKey(text string, botID int64) string {
	return "para:" + digest(text+"|"+strconv.FormatInt(botID, 10))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Manager reads L1 then L2 and writes both.
type Manager struct {
	l1     *L1
	l2     *L2
	logger *slog.Logger
}

// New creates a manager. A nil client gives an L1-only cache.
func New(l1Size int, client redis.UniversalClient, logger *slog.Logger) *Manager {
	m := &Manager{
		l1:     NewL1(l1Size),
		logger: logger.With("component", "cache"),
	}
	if client != nil {
		m.l2 = NewL2(client)
	}
	return m
}

// Get returns the raw value of key.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := m.l1.Get(key); ok {
		return v, true
	}
	if m.l2 == nil {
		return nil, false
	}
	v, ok, err := m.l2.Get(ctx, key)
	if err != nil {
		m.logger.DebugContext(ctx, "L2 read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	// Backfill with a short TTL; the authoritative expiry lives in L2.
	m.l1.Set(key, v, HistoryTTL)
	return v, true
}

// Set writes value to both layers.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	m.l1.Set(key, value, ttl)
	if m.l2 == nil {
		return
	}
	if err := m.l2.Set(ctx, key, value, ttl); err != nil {
		m.logger.DebugContext(ctx, "L2 write failed", "key", key, "error", err)
	}
}

// GetJSON decodes the cached value of key into dst.
func (m *Manager) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := m.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		m.logger.WarnContext(ctx, "Dropping undecodable cache entry", "key", key, "error", err)
		m.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON encodes v and stores it.
func (m *Manager) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	m.Set(ctx, key, raw, ttl)
	return nil
}

// Delete removes keys from both layers.
func (m *Manager) Delete(ctx context.Context, keys ...string) {
	m.l1.Delete(keys...)
	if m.l2 == nil {
		return
	}
	if err := m.l2.Delete(ctx, keys...); err != nil {
		m.logger.DebugContext(ctx, "L2 delete failed", "keys", keys, "error", err)
	}
}

// InvalidatePattern purges every key matching a glob pattern in both layers.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) int {
	n := m.l1.DeletePattern(pattern)
	if m.l2 == nil {
		return n
	}
	deleted, err := m.l2.DeletePattern(ctx, pattern)
	if err != nil {
		m.logger.WarnContext(ctx, "L2 pattern invalidation failed", "pattern", pattern, "error", err)
	}
	return n + deleted
}

// InvalidateBot drops every cached entry of a bot.
func (m *Manager) InvalidateBot(ctx context.Context, botID int64) {
	m.InvalidatePattern(ctx, "bot:"+strconv.FormatInt(botID, 10)+":*")
}

// InvalidateChatMessages drops the cached history of a chat.
func (m *Manager) InvalidateChatMessages(ctx context.Context, chatDBID int64) {
	m.Delete(ctx, ChatMessagesKey(chatDBID))
}

// Stats returns L1 counters.
func (m *Manager) Stats() L1Stats {
	return m.l1.Stats()
}

// HasL2 reports whether a shared layer is configured.
func (m *Manager) HasL2() bool {
	return m.l2 != nil
}
