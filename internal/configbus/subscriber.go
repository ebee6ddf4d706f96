// Package configbus receives config-update broadcasts and applies them to the running
// worker: the settings snapshot is invalidated and, when the feed list changed, the
// news briefer is reloaded.
package configbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Event is the broadcast payload. Any event invalidates the settings snapshot.
type Event struct {
	Type   string   `json:"type"`
	Keys   []string `json:"keys,omitempty"`
	Factor float64  `json:"factor,omitempty"`
}

// HasKey reports whether the event names key.
func (e Event) HasKey(key string) bool {
	return slices.Contains(e.Keys, key)
}

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("config bus closed")

// Subscriber yields raw config-update payloads.
type Subscriber interface {
	// Receive blocks until a payload arrives or ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// RedisBus subscribes to (and publishes on) a Redis pub/sub channel.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	pubsub  *redis.PubSub
}

// NewRedisBus subscribes to channel. The subscription is confirmed before returning so
// that no event published afterwards is missed.
func NewRedisBus(ctx context.Context, client redis.UniversalClient, channel string) (*RedisBus, error) {
	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	return &RedisBus{client: client, channel: channel, pubsub: ps}, nil
}

func (b *RedisBus) Receive(ctx context.Context) ([]byte, error) {
	msg, err := b.pubsub.ReceiveMessage(ctx)
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return []byte(msg.Payload), nil
}

// Publish broadcasts ev to every subscriber of the channel.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode config event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish config event: %w", err)
	}
	return nil
}

func (b *RedisBus) Close() error {
	return b.pubsub.Close()
}

// KafkaSubscriber reads config-update events from a Kafka topic.
type KafkaSubscriber struct {
	reader *kafka.Reader
}

// NewKafkaSubscriber creates a reader on topic. Without a group id every worker reads
// the topic from the newest offset.
func NewKafkaSubscriber(brokers []string, topic, groupID string) *KafkaSubscriber {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6,
	}
	if groupID == "" {
		cfg.StartOffset = kafka.LastOffset
	}
	return &KafkaSubscriber{reader: kafka.NewReader(cfg)}
}

func (s *KafkaSubscriber) Receive(ctx context.Context) ([]byte, error) {
	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read config event: %w", err)
	}
	return msg.Value, nil
}

func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}

// ChannelSubscriber is an in-process Subscriber fed by Send.
type ChannelSubscriber struct {
	ch chan []byte
}

func NewChannelSubscriber() *ChannelSubscriber {
	return &ChannelSubscriber{ch: make(chan []byte, 16)}
}

// Send queues a payload for Receive.
func (c *ChannelSubscriber) Send(payload []byte) {
	c.ch <- payload
}

func (c *ChannelSubscriber) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p, ok := <-c.ch:
		if !ok {
			return nil, ErrClosed
		}
		return p, nil
	}
}

func (c *ChannelSubscriber) Close() error {
	close(c.ch)
	return nil
}
