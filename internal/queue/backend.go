// Package queue holds the Redis-backed lists in front of the engine: the inbound
// priority queue the arbiter drains and the outbound message queue the processor sends.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is a set of named FIFO lists. Producers push left, consumers pop right.
type Backend interface {
	Push(ctx context.Context, key string, payload []byte) error
	// Pop removes the oldest entry of key; ok is false when the list is empty.
	Pop(ctx context.Context, key string) (payload []byte, ok bool, err error)
	// BlockingPop waits up to timeout for an entry on any of keys, checked in order.
	BlockingPop(ctx context.Context, timeout time.Duration, keys ...string) (key string, payload []byte, ok bool, err error)
	Len(ctx context.Context, key string) (int64, error)
}

// RedisBackend implements Backend with LPUSH/RPOP/BRPOP.
type RedisBackend struct {
	client redis.UniversalClient
}

func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Push(ctx context.Context, key string, payload []byte) error {
	if err := b.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Pop(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.client.RPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	return v, true, nil
}

func (b *RedisBackend) BlockingPop(ctx context.Context, timeout time.Duration, keys ...string) (string, []byte, bool, error) {
	res, err := b.client.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("failed to pop from %v: %w", keys, err)
	}
	if len(res) != 2 {
		return "", nil, false, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	return res[0], []byte(res[1]), true, nil
}

func (b *RedisBackend) Len(ctx context.Context, key string) (int64, error) {
	n, err := b.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", key, err)
	}
	return n, nil
}

// MemoryBackend keeps the lists in process. It serves single-process deployments
// without Redis and tests.
type MemoryBackend struct {
	mu     sync.Mutex
	lists  map[string][][]byte
	notify chan struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		lists:  make(map[string][][]byte),
		notify: make(chan struct{}),
	}
}

func (b *MemoryBackend) Push(_ context.Context, key string, payload []byte) error {
	b.mu.Lock()
	b.lists[key] = append(b.lists[key], append([]byte(nil), payload...))
	ch := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()
	close(ch)
	return nil
}

func (b *MemoryBackend) Pop(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popLocked(key)
}

func (b *MemoryBackend) popLocked(key string) ([]byte, bool, error) {
	l := b.lists[key]
	if len(l) == 0 {
		return nil, false, nil
	}
	v := l[0]
	b.lists[key] = l[1:]
	return v, true, nil
}

func (b *MemoryBackend) BlockingPop(ctx context.Context, timeout time.Duration, keys ...string) (string, []byte, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		b.mu.Lock()
		for _, k := range keys {
			if v, ok, _ := b.popLocked(k); ok {
				b.mu.Unlock()
				return k, v, true, nil
			}
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", nil, false, ctx.Err()
		case <-timer.C:
			return "", nil, false, nil
		case <-wait:
		}
	}
}

func (b *MemoryBackend) Len(_ context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.lists[key])), nil
}
