package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the number of failed sends before a message goes to the DLQ.
const DefaultMaxRetries = 3

// Outbound list keys.
const (
	KeyOutboundHigh   = "msg_queue:high"
	KeyOutboundNormal = "msg_queue:normal"
	KeyOutboundLow    = "msg_queue:low"
	KeyOutboundRetry  = "msg_queue:retry"
	KeyOutboundDLQ    = "msg_queue:dlq"
)

var outboundKeys = []string{KeyOutboundHigh, KeyOutboundNormal, KeyOutboundLow, KeyOutboundRetry}

func outboundKey(priority string) string {
	switch priority {
	case PriorityHigh:
		return KeyOutboundHigh
	case PriorityLow:
		return KeyOutboundLow
	default:
		return KeyOutboundNormal
	}
}

// QueuedMessage is a finalized message waiting for delivery. BotToken holds the
// credential as stored, so it stays encrypted while queued. MessageID is the stored
// message whose external id is filled in after a successful send.
type QueuedMessage struct {
	ID         string    `json:"id"`
	BotToken   string    `json:"bot_token"`
	ChatID     string    `json:"chat_id"`
	Text       string    `json:"text"`
	Priority   string    `json:"priority"`
	ReplyTo    int64     `json:"reply_to,omitempty"`
	ParseMode  string    `json:"parse_mode,omitempty"`
	MessageID  int64     `json:"message_id,omitempty"`
	BotID      int64     `json:"bot_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	LastError  string    `json:"last_error,omitempty"`
	NotBefore  time.Time `json:"not_before,omitempty"`
}

// MessageQueue is the outbound delivery buffer.
type MessageQueue struct {
	backend Backend
	logger  *slog.Logger
}

func NewMessageQueue(backend Backend, logger *slog.Logger) *MessageQueue {
	return &MessageQueue{backend: backend, logger: logger.With("component", "message_queue")}
}

// Enqueue pushes msg onto its priority list, filling ID, EnqueuedAt and MaxRetries.
func (q *MessageQueue) Enqueue(ctx context.Context, msg *QueuedMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	if msg.MaxRetries <= 0 {
		msg.MaxRetries = DefaultMaxRetries
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}
	return q.push(ctx, outboundKey(msg.Priority), msg)
}

// Retry parks msg on the retry list.
func (q *MessageQueue) Retry(ctx context.Context, msg *QueuedMessage) error {
	return q.push(ctx, KeyOutboundRetry, msg)
}

// DeadLetter moves msg to the DLQ.
func (q *MessageQueue) DeadLetter(ctx context.Context, msg *QueuedMessage) error {
	q.logger.WarnContext(ctx, "Message moved to DLQ",
		"queued_id", msg.ID, "bot_id", msg.BotID, "chat_id", msg.ChatID,
		"retry_count", msg.RetryCount, "last_error", msg.LastError)
	return q.push(ctx, KeyOutboundDLQ, msg)
}

func (q *MessageQueue) push(ctx context.Context, key string, msg *QueuedMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queued message: %w", err)
	}
	return q.backend.Push(ctx, key, payload)
}

// Next waits up to timeout for a message, preferring high, normal, low, then retry.
// It returns nil when nothing arrived.
func (q *MessageQueue) Next(ctx context.Context, timeout time.Duration) (*QueuedMessage, error) {
	for {
		key, payload, ok, err := q.backend.BlockingPop(ctx, timeout, outboundKeys...)
		if err != nil || !ok {
			return nil, err
		}
		var msg QueuedMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			q.logger.WarnContext(ctx, "Dropping undecodable queued message", "key", key, "error", err)
			continue
		}
		return &msg, nil
	}
}

// Depths reports the length of every outbound list including the DLQ.
func (q *MessageQueue) Depths(ctx context.Context) (map[string]int64, error) {
	keys := append(append([]string(nil), outboundKeys...), KeyOutboundDLQ)
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		n, err := q.backend.Len(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}
