package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/market"
	"github.com/piyasasohbet/piyasabot/internal/metrics"
	"github.com/piyasasohbet/piyasabot/internal/queue"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

const (
	shortReactionWindow       = 10
	signatureReactionOdds     = 0.5
	shortReactionTypingFactor = 0.5
)

var reactionEmoji = map[string][]string{
	market.SentimentPositive: {"🚀", "🔥", "👏", "💪"},
	market.SentimentNegative: {"😬", "🙏", "😔", "🫣"},
	market.SentimentNeutral:  {"👍", "👀", "🤔", "😅"},
}

// shortReaction answers a recent message of someone else with a single emoji. It
// reports false when there is nothing to react to.
func (e *Engine) shortReaction(ctx context.Context, snap *settings.Snapshot, chat *database.Chat, bot *database.Bot, token string) (Result, bool) {
	recent, err := e.recentMessages(ctx, chat.ID, snap.ReplyCandidateWindow)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load history for short reaction", "chat_id", chat.ID, "error", err)
		return Result{}, false
	}
	if len(recent) > shortReactionWindow {
		recent = recent[len(recent)-shortReactionWindow:]
	}
	var candidates []*database.Message
	for i := range recent {
		if !recent[i].AuthoredBy(bot.ID) && recent[i].TelegramMessageID.Valid {
			candidates = append(candidates, &recent[i])
		}
	}
	if len(candidates) == 0 {
		return Result{}, false
	}
	target := candidates[e.rng.IntN(len(candidates))]

	emoji := e.pickReaction(bot, target.Text)
	meta := database.MessageMetadata{
		ShortReaction: true,
		Sentiment:     market.Sentiment(target.Text),
	}
	if topics := market.DetectTopics(target.Text); len(topics) > 0 {
		meta.Topic = topics[0]
	}
	msg := &database.Message{
		BotID:            sql.NullInt64{Int64: bot.ID, Valid: true},
		ChatDBID:         chat.ID,
		Text:             emoji,
		ReplyToMessageID: target.TelegramMessageID,
		Metadata:         database.NewJSON(meta),
		CreatedAt:        e.opts.Now().UTC(),
	}
	started := time.Now()
	if err := e.store.SaveMessage(ctx, msg); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist short reaction", "bot_id", bot.ID, "chat_id", chat.ID, "error", err)
		e.metrics.Generation(ctx, metrics.StatusFailed, time.Since(started))
		return Result{Outcome: OutcomeError, Sleep: errorSleep, BotID: bot.ID, ChatID: chat.ID}, true
	}
	if e.cache != nil {
		e.cache.InvalidateChatMessages(ctx, chat.ID)
	}
	e.metrics.Generation(ctx, metrics.StatusSuccess, time.Since(started))
	e.logger.InfoContext(ctx, "Short reaction persisted", "message_id", msg.ID, "bot_id", bot.ID, "chat_id", chat.ID, "reply_to", target.TelegramMessageID.Int64)

	e.simulateTyping(ctx, token, chat.ChatID, time.Duration(float64(typingDuration(snap, bot, emoji, 1))*shortReactionTypingFactor))
	e.enqueue(ctx, bot, chat, msg, queue.PriorityLow)

	return Result{
		Outcome:   OutcomeShortReaction,
		Sleep:     nextDelay(snap, bot, e.now(), e.rng),
		BotID:     bot.ID,
		ChatID:    chat.ID,
		MessageID: msg.ID,
	}, true
}

func (e *Engine) pickReaction(bot *database.Bot, target string) string {
	if sig := bot.EmotionProfile.V.SignatureEmoji; sig != "" && e.rng.Float64() < signatureReactionOdds {
		return sig
	}
	pool := reactionEmoji[market.Sentiment(target)]
	if len(pool) == 0 {
		pool = reactionEmoji[market.SentimentNeutral]
	}
	return pool[e.rng.IntN(len(pool))]
}
