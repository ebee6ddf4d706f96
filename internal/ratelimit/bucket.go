package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when no token became available in time.
var ErrRateLimited = errors.New("rate limited")

// Transport bucket defaults: 30 sends per second overall and 20 per minute per chat.
const (
	DefaultGlobalRate   = 30
	DefaultGlobalBurst  = 30
	DefaultChatBurst    = 20
	DefaultChatWindow   = time.Minute
	defaultPollInterval = 100 * time.Millisecond
)

// TokenBucket guards outbound sends with a global bucket and one bucket per chat.
// A send needs a token from both.
type TokenBucket struct {
	global *rate.Limiter

	mu        sync.Mutex
	chats     map[string]*rate.Limiter
	chatLimit rate.Limit
	chatBurst int

	poll time.Duration
	now  func() time.Time
}

// NewTokenBucket creates buckets with the default capacities.
func NewTokenBucket() *TokenBucket {
	return NewTokenBucketWith(DefaultGlobalRate, DefaultGlobalBurst, DefaultChatBurst, DefaultChatWindow)
}

// NewTokenBucketWith creates buckets refilling globalPerSecond tokens per second overall
// and chatBurst tokens per chatWindow for each chat.
func NewTokenBucketWith(globalPerSecond float64, globalBurst, chatBurst int, chatWindow time.Duration) *TokenBucket {
	return &TokenBucket{
		global:    rate.NewLimiter(rate.Limit(globalPerSecond), globalBurst),
		chats:     make(map[string]*rate.Limiter),
		chatLimit: rate.Every(chatWindow / time.Duration(chatBurst)),
		chatBurst: chatBurst,
		poll:      defaultPollInterval,
		now:       time.Now,
	}
}

func (b *TokenBucket) chat(chatID string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.chats[chatID]
	if !ok {
		l = rate.NewLimiter(b.chatLimit, b.chatBurst)
		b.chats[chatID] = l
	}
	return l
}

// TryAcquire takes one token from both buckets, or from neither.
func (b *TokenBucket) TryAcquire(chatID string) bool {
	now := b.now()
	chat := b.chat(chatID)

	g := b.global.ReserveN(now, 1)
	if !g.OK() || g.DelayFrom(now) > 0 {
		g.CancelAt(now)
		return false
	}
	c := chat.ReserveN(now, 1)
	if !c.OK() || c.DelayFrom(now) > 0 {
		c.CancelAt(now)
		g.CancelAt(now)
		return false
	}
	return true
}

// Acquire takes a token for chatID. With maxWait <= 0 it fails immediately when either
// bucket is empty; otherwise it retries every 100ms until maxWait elapses.
func (b *TokenBucket) Acquire(ctx context.Context, chatID string, maxWait time.Duration) error {
	if b.TryAcquire(chatID) {
		return nil
	}
	if maxWait <= 0 {
		return ErrRateLimited
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrRateLimited
		case <-ticker.C:
			if b.TryAcquire(chatID) {
				return nil
			}
		}
	}
}
