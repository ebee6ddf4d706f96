package handlers

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/market"
	"github.com/piyasasohbet/piyasabot/internal/queue"
)

const intakeTimeout = 10 * time.Second

type intakeHandler struct {
	deps HandlerDeps
}

// NewIntakeHandler creates the handler that persists user messages and queues them
// for a bot reply.
func NewIntakeHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return intakeHandler{deps}.Handle
}

func (h intakeHandler) Handle(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "intake")

	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	text := messageText(msg)
	if strings.TrimSpace(text) == "" {
		log.DebugContext(ctx, "Ignoring message without text", "update_id", update.ID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, intakeTimeout)
	defer cancel()

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	chat, err := h.deps.Store.GetChatByExternalID(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up chat", "chat_id", chatID, "error", err)
		return
	}
	if chat == nil || !chat.IsEnabled {
		log.DebugContext(ctx, "Ignoring message from unknown or disabled chat", "chat_id", chatID)
		return
	}

	stored := &database.Message{
		ChatDBID:          chat.ID,
		TelegramMessageID: sql.NullInt64{Int64: int64(msg.ID), Valid: true},
		Text:              text,
		Metadata:          database.NewJSON(userMetadata(msg.From, text)),
		CreatedAt:         time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.ReplyToMessage != nil {
		stored.ReplyToMessageID = sql.NullInt64{Int64: int64(msg.ReplyToMessage.ID), Valid: true}
	}
	if err := h.deps.Store.SaveMessage(ctx, stored); err != nil {
		log.ErrorContext(ctx, "Failed to persist user message", "chat_id", chatID, "message_id", msg.ID, "error", err)
		return
	}
	if h.deps.Cache != nil {
		h.deps.Cache.InvalidateChatMessages(ctx, chat.ID)
	}

	bots, err := h.deps.Store.ListBotsByUsername(ctx)
	if err != nil {
		log.WarnContext(ctx, "Failed to load bots for mention detection", "error", err)
		bots = nil
	}

	item := queue.Item{
		ChatID:            chatID,
		TelegramMessageID: int64(msg.ID),
		Text:              text,
		Priority:          queue.PriorityNormal,
		UserID:            msg.From.ID,
		Username:          msg.From.Username,
		Timestamp:         stored.CreatedAt,
	}
	if target, ok := repliedBot(msg, bots); ok {
		item.BotID = target.ID
		item.IsReplyToBot = true
		item.Priority = queue.PriorityHigh
	} else if target, ok := mentionedBot(msg, text, bots); ok {
		item.BotID = target.ID
		item.IsMentioned = true
		item.Priority = queue.PriorityHigh
	}

	if err := h.deps.Priority.Enqueue(ctx, item); err != nil {
		log.ErrorContext(ctx, "Failed to queue user message", "chat_id", chatID, "message_id", msg.ID, "error", err)
		return
	}
	log.InfoContext(ctx, "Queued user message",
		"chat_id", chatID, "message_id", msg.ID, "priority", item.Priority, "bot_id", item.BotID)
}

func messageText(msg *models.Message) string {
	switch {
	case msg.Text != "" && msg.Caption != "":
		return msg.Text + " " + msg.Caption
	case msg.Text != "":
		return msg.Text
	default:
		return msg.Caption
	}
}

func userMetadata(from *models.User, text string) database.MessageMetadata {
	meta := database.MessageMetadata{
		Symbols:   market.Symbols(text),
		Sentiment: market.Sentiment(text),
		Source: &database.SourceUser{
			ID:        from.ID,
			Username:  from.Username,
			FirstName: from.FirstName,
		},
	}
	if topics := market.DetectTopics(text); len(topics) > 0 {
		meta.Topic = topics[0]
	}
	return meta
}

func repliedBot(msg *models.Message, bots map[string]database.Bot) (database.Bot, bool) {
	reply := msg.ReplyToMessage
	if reply == nil || reply.From == nil || !reply.From.IsBot {
		return database.Bot{}, false
	}
	b, ok := bots[strings.ToLower(reply.From.Username)]
	return b, ok
}

// mentionedBot finds the first known bot named with @username, from mention entities
// first and then from the raw words.
func mentionedBot(msg *models.Message, text string, bots map[string]database.Bot) (database.Bot, bool) {
	if len(bots) == 0 {
		return database.Bot{}, false
	}

	runes := []rune(msg.Text)
	for _, e := range msg.Entities {
		if e.Type != models.MessageEntityTypeMention {
			continue
		}
		if name, ok := entityText(runes, e.Offset, e.Length); ok {
			if b, found := bots[strings.ToLower(strings.TrimPrefix(name, "@"))]; found {
				return b, true
			}
		}
	}

	for _, w := range strings.Fields(text) {
		if !strings.HasPrefix(w, "@") {
			continue
		}
		name := strings.TrimFunc(strings.TrimPrefix(w, "@"), func(r rune) bool {
			return unicode.IsPunct(r) && r != '_'
		})
		if b, ok := bots[strings.ToLower(name)]; ok {
			return b, true
		}
	}
	return database.Bot{}, false
}

// entityText slices a mention entity. Offsets count UTF-16 units; mentions are ASCII
// so rune offsets agree whenever the preceding text has no astral characters.
func entityText(text []rune, offset, length int) (string, bool) {
	if offset < 0 || length <= 0 || offset+length > len(text) {
		return "", false
	}
	return string(text[offset : offset+length]), true
}
