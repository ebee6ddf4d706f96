package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/metrics"
	"github.com/piyasasohbet/piyasabot/internal/queue"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

// handlePriority answers one queued user message in forced reply mode. Items for a
// missing chat or a missing or disabled bot are dropped.
func (e *Engine) handlePriority(ctx context.Context, snap *settings.Snapshot, item *queue.Item) Result {
	log := e.logger.With("item_id", item.ID, "chat", item.ChatID, "bot_id", item.BotID, "priority", item.Priority)

	chat, err := e.store.GetChatByExternalID(ctx, item.ChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat for priority item", "error", err)
		return e.priorityFailed(ctx, 0, 0)
	}
	if chat == nil || !chat.IsEnabled {
		log.WarnContext(ctx, "Dropping priority item for unknown or disabled chat")
		return Result{Outcome: OutcomePriorityDropped, Sleep: inactiveSleep}
	}

	bots, err := e.store.ListEnabledBots(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list bots for priority item", "error", err)
		return e.priorityFailed(ctx, chat.ID, 0)
	}

	bot, err := e.priorityBot(ctx, snap, chat, bots, item)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load bot for priority item", "error", err)
		return e.priorityFailed(ctx, chat.ID, item.BotID)
	}
	if bot == nil {
		log.WarnContext(ctx, "Dropping priority item without an available bot")
		return Result{Outcome: OutcomePriorityDropped, Sleep: inactiveSleep, ChatID: chat.ID}
	}

	token, err := e.credential(bot)
	if err != nil {
		log.ErrorContext(ctx, "Bot credential unusable, cannot answer priority item", "error", err)
		return e.priorityFailed(ctx, chat.ID, bot.ID)
	}

	anchor, err := e.anchorMessage(ctx, chat, item)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load anchor message", "error", err)
		return e.priorityFailed(ctx, chat.ID, bot.ID)
	}

	res := e.generate(ctx, snap, generation{
		chat:   chat,
		bot:    bot,
		bots:   bots,
		token:  token,
		item:   item,
		anchor: anchor,
	})
	if res.Outcome != OutcomeMessage {
		log.InfoContext(ctx, "Priority reply not produced", "reason", res.Outcome)
		res.Outcome = OutcomePriorityFailed
		res.Sleep = priorityFailureSleep
		return res
	}
	res.Outcome = OutcomePriorityReply
	res.Sleep = prioritySuccessSleep
	return res
}

// priorityBot resolves the addressed bot, or picks an eligible one when the item
// names none.
func (e *Engine) priorityBot(ctx context.Context, snap *settings.Snapshot, chat *database.Chat, bots []database.Bot, item *queue.Item) (*database.Bot, error) {
	if item.BotID == 0 {
		return e.pickBot(ctx, snap, chat, bots), nil
	}
	bot, err := e.store.GetBot(ctx, item.BotID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot %d: %w", item.BotID, err)
	}
	if bot == nil || !bot.IsEnabled {
		return nil, nil
	}
	return bot, nil
}

// anchorMessage returns the stored user message the item points at. Items that
// arrived before their message was stored get a transient copy built from the item.
func (e *Engine) anchorMessage(ctx context.Context, chat *database.Chat, item *queue.Item) (*database.Message, error) {
	if item.TelegramMessageID != 0 {
		msg, err := e.store.GetMessageByTelegramID(ctx, chat.ID, item.TelegramMessageID)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
	at := item.Timestamp
	if at.IsZero() {
		at = e.opts.Now()
	}
	return &database.Message{
		ChatDBID:          chat.ID,
		TelegramMessageID: sql.NullInt64{Int64: item.TelegramMessageID, Valid: item.TelegramMessageID != 0},
		Text:              item.Text,
		Metadata: database.NewJSON(database.MessageMetadata{
			Source: &database.SourceUser{ID: item.UserID, Username: item.Username},
		}),
		CreatedAt: at,
	}, nil
}

func (e *Engine) priorityFailed(ctx context.Context, chatID, botID int64) Result {
	e.metrics.Generation(ctx, metrics.StatusFailed, 0)
	return Result{Outcome: OutcomePriorityFailed, Sleep: priorityFailureSleep, ChatID: chatID, BotID: botID}
}
