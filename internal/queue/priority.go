package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Priorities.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

const priorityKeyPrefix = "priority_queue:"

// PriorityKey returns the list key of an inbound priority.
func PriorityKey(priority string) string {
	return priorityKeyPrefix + priority
}

// Item is an inbound user message awaiting a bot reply. BotID 0 lets the engine pick
// any eligible bot.
type Item struct {
	ID                string    `json:"id"`
	BotID             int64     `json:"bot_id"`
	ChatID            string    `json:"chat_id"`
	TelegramMessageID int64     `json:"telegram_message_id"`
	Text              string    `json:"text"`
	IsMentioned       bool      `json:"is_mentioned"`
	IsReplyToBot      bool      `json:"is_reply_to_bot"`
	Priority          string    `json:"priority"`
	UserID            int64     `json:"user_id,omitempty"`
	Username          string    `json:"username,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// PriorityQueue is the inbound reactive queue.
type PriorityQueue struct {
	backend Backend
	logger  *slog.Logger
}

func NewPriorityQueue(backend Backend, logger *slog.Logger) *PriorityQueue {
	return &PriorityQueue{backend: backend, logger: logger.With("component", "priority_queue")}
}

// Enqueue pushes item onto its priority list. Anything but high is queued as normal.
func (q *PriorityQueue) Enqueue(ctx context.Context, item Item) error {
	if item.Priority != PriorityHigh {
		item.Priority = PriorityNormal
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode priority item: %w", err)
	}
	if err := q.backend.Push(ctx, PriorityKey(item.Priority), payload); err != nil {
		return err
	}
	q.logger.DebugContext(ctx, "Priority item enqueued", "item_id", item.ID, "priority", item.Priority, "chat_id", item.ChatID)
	return nil
}

// Dequeue pops the oldest high item, else the oldest normal item. It returns nil when
// both lists are empty. Undecodable entries are logged and skipped.
func (q *PriorityQueue) Dequeue(ctx context.Context) (*Item, error) {
	for _, p := range []string{PriorityHigh, PriorityNormal} {
		for {
			payload, ok, err := q.backend.Pop(ctx, PriorityKey(p))
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			var item Item
			if err := json.Unmarshal(payload, &item); err != nil {
				q.logger.WarnContext(ctx, "Dropping undecodable priority item", "priority", p, "error", err)
				continue
			}
			item.Priority = p
			return &item, nil
		}
	}
	return nil, nil
}

// Depths reports the length of each priority list.
func (q *PriorityQueue) Depths(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 2)
	for _, p := range []string{PriorityHigh, PriorityNormal} {
		n, err := q.backend.Len(ctx, PriorityKey(p))
		if err != nil {
			return nil, err
		}
		out[p] = n
	}
	return out, nil
}
