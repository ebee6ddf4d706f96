package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the database operations used by the behavior engine.
// Lookups that find nothing return nil, nil.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	ListEnabledBots(ctx context.Context) ([]Bot, error)
	ListBotsByUsername(ctx context.Context) (map[string]Bot, error)
	GetBot(ctx context.Context, id int64) (*Bot, error)
	SaveBot(ctx context.Context, bot *Bot) error

	ListEnabledChats(ctx context.Context) ([]Chat, error)
	GetChat(ctx context.Context, id int64) (*Chat, error)
	GetChatByExternalID(ctx context.Context, chatID string) (*Chat, error)
	SaveChat(ctx context.Context, chat *Chat) error

	// CountBotMessagesSince counts bot-authored messages across all chats created at or after since.
	CountBotMessagesSince(ctx context.Context, since time.Time) (int, error)
	// CountMessagesByBotSince returns per-bot message counts for botIDs in one grouped query.
	CountMessagesByBotSince(ctx context.Context, botIDs []int64, since time.Time) (map[int64]int, error)

	// RecentMessages returns up to limit newest messages of a chat in chronological order.
	RecentMessages(ctx context.Context, chatDBID int64, limit int) ([]Message, error)
	// LastBotSpeaker returns the bot that wrote the newest bot message in the chat, or 0.
	LastBotSpeaker(ctx context.Context, chatDBID int64) (int64, error)
	// BotMessagesSince returns a bot's messages in any chat created at or after since.
	BotMessagesSince(ctx context.Context, botID int64, since time.Time) ([]Message, error)
	// RecentBotMessagesInChat returns up to limit newest bot-authored messages of a chat.
	RecentBotMessagesInChat(ctx context.Context, chatDBID int64, limit int) ([]Message, error)
	GetMessageByTelegramID(ctx context.Context, chatDBID, telegramMessageID int64) (*Message, error)
	SaveMessage(ctx context.Context, message *Message) error
	UpdateTelegramMessageID(ctx context.Context, messageID, telegramMessageID int64) error

	GetStances(ctx context.Context, botID int64) ([]Stance, error)
	UpsertStance(ctx context.Context, stance *Stance) error
	GetHoldings(ctx context.Context, botID int64) ([]Holding, error)
	UpsertHolding(ctx context.Context, holding *Holding) error

	GetMemories(ctx context.Context, botID int64, limit int) ([]Memory, error)
	AddMemory(ctx context.Context, memory *Memory) error
	TouchMemories(ctx context.Context, ids []int64) error
	DecayMemories(ctx context.Context, factor float64, unusedSince time.Time) (int64, error)
	PruneMemories(ctx context.Context, minRelevance float64) (int64, error)

	GetSettings(ctx context.Context) ([]Setting, error)
	UpsertSetting(ctx context.Context, key, jsonValue string) error

	// OpenConnections reports the pool's open connection count.
	OpenConnections() int

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// QueryObserver receives the duration of every store call.
type QueryObserver func(ctx context.Context, op string, elapsed time.Duration)

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db       *sqlx.DB
	logger   *slog.Logger
	observer QueryObserver
}

// StoreOption customizes NewStore.
type StoreOption func(*sqlxStore)

// WithQueryObserver reports query durations, typically into metrics.
func WithQueryObserver(o QueryObserver) StoreOption {
	return func(s *sqlxStore) { s.observer = o }
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger, opts ...StoreOption) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sqlxStore) observe(ctx context.Context, op string, start time.Time) {
	if s.observer != nil {
		s.observer(ctx, op, time.Since(start))
	}
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// withTx runs fn in a transaction, committing on success.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "op", op, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "op", op, "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "op", op, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) OpenConnections() int {
	return s.db.Stats().OpenConnections
}

const botColumns = `id, name, username, token_encrypted, is_enabled, speed_profile, active_hours,
	persona_hint, persona_profile, emotion_profile, created_at, updated_at`

func (s *sqlxStore) ListEnabledBots(ctx context.Context) ([]Bot, error) {
	defer s.observe(ctx, "list_enabled_bots", time.Now())

	var bots []Bot
	err := s.db.SelectContext(ctx, &bots, `SELECT `+botColumns+` FROM bots WHERE is_enabled = 1 ORDER BY id`)
	if err != nil {
		if isCtxErr(err) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error listing enabled bots", "error", err)
		return nil, fmt.Errorf("failed to list enabled bots: %w", err)
	}
	return bots, nil
}

// ListBotsByUsername maps lower-cased usernames of enabled bots to the bot.
func (s *sqlxStore) ListBotsByUsername(ctx context.Context) (map[string]Bot, error) {
	bots, err := s.ListEnabledBots(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Bot, len(bots))
	for _, b := range bots {
		if b.Username != "" {
			out[lower(b.Username)] = b
		}
	}
	return out, nil
}

func (s *sqlxStore) GetBot(ctx context.Context, id int64) (*Bot, error) {
	defer s.observe(ctx, "get_bot", time.Now())

	if id == 0 {
		return nil, fmt.Errorf("bot id cannot be zero")
	}

	var bot Bot
	err := s.db.GetContext(ctx, &bot, `SELECT `+botColumns+` FROM bots WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No bot found", "bot_id", id)
		return nil, nil
	case isCtxErr(err):
		return nil, err
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting bot", "bot_id", id, "error", err)
		return nil, fmt.Errorf("failed to get bot %d: %w", id, err)
	}
	return &bot, nil
}

// SaveBot inserts a bot when ID is zero, otherwise updates it.
func (s *sqlxStore) SaveBot(ctx context.Context, bot *Bot) error {
	defer s.observe(ctx, "save_bot", time.Now())

	if bot == nil {
		return fmt.Errorf("cannot save nil bot")
	}
	if bot.Name == "" {
		return fmt.Errorf("bot must have a name")
	}

	now := nowUTC()
	bot.UpdatedAt = now
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}

	if bot.ID == 0 {
		res, err := s.db.NamedExecContext(ctx, `
			INSERT INTO bots (name, username, token_encrypted, is_enabled, speed_profile, active_hours,
				persona_hint, persona_profile, emotion_profile, created_at, updated_at)
			VALUES (:name, :username, :token_encrypted, :is_enabled, :speed_profile, :active_hours,
				:persona_hint, :persona_profile, :emotion_profile, :created_at, :updated_at)`, bot)
		if err != nil {
			return fmt.Errorf("failed to insert bot %q: %w", bot.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read bot id: %w", err)
		}
		bot.ID = id
		return nil
	}

	_, err := s.db.NamedExecContext(ctx, `
		UPDATE bots SET name = :name, username = :username, token_encrypted = :token_encrypted,
			is_enabled = :is_enabled, speed_profile = :speed_profile, active_hours = :active_hours,
			persona_hint = :persona_hint, persona_profile = :persona_profile,
			emotion_profile = :emotion_profile, updated_at = :updated_at
		WHERE id = :id`, bot)
	if err != nil {
		return fmt.Errorf("failed to update bot %d: %w", bot.ID, err)
	}
	return nil
}

const chatColumns = `id, chat_id, title, is_enabled, topics, created_at`

func (s *sqlxStore) ListEnabledChats(ctx context.Context) ([]Chat, error) {
	defer s.observe(ctx, "list_enabled_chats", time.Now())

	var chats []Chat
	err := s.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats WHERE is_enabled = 1 ORDER BY id`)
	if err != nil {
		if isCtxErr(err) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error listing enabled chats", "error", err)
		return nil, fmt.Errorf("failed to list enabled chats: %w", err)
	}
	return chats, nil
}

func (s *sqlxStore) GetChat(ctx context.Context, id int64) (*Chat, error) {
	return s.getChat(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
}

func (s *sqlxStore) GetChatByExternalID(ctx context.Context, chatID string) (*Chat, error) {
	return s.getChat(ctx, `SELECT `+chatColumns+` FROM chats WHERE chat_id = ?`, chatID)
}

func (s *sqlxStore) getChat(ctx context.Context, query string, arg any) (*Chat, error) {
	defer s.observe(ctx, "get_chat", time.Now())

	var chat Chat
	err := s.db.GetContext(ctx, &chat, query, arg)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case isCtxErr(err):
		return nil, err
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting chat", "key", arg, "error", err)
		return nil, fmt.Errorf("failed to get chat %v: %w", arg, err)
	}
	return &chat, nil
}

// SaveChat inserts a chat when ID is zero, otherwise updates it.
func (s *sqlxStore) SaveChat(ctx context.Context, chat *Chat) error {
	defer s.observe(ctx, "save_chat", time.Now())

	if chat == nil || chat.ChatID == "" {
		return fmt.Errorf("chat must have an external chat_id")
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = nowUTC()
	}
	if chat.Topics.V == nil {
		chat.Topics = NewJSON(DefaultTopics())
	}

	if chat.ID == 0 {
		res, err := s.db.NamedExecContext(ctx, `
			INSERT INTO chats (chat_id, title, is_enabled, topics, created_at)
			VALUES (:chat_id, :title, :is_enabled, :topics, :created_at)`, chat)
		if err != nil {
			return fmt.Errorf("failed to insert chat %s: %w", chat.ChatID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chat id: %w", err)
		}
		chat.ID = id
		return nil
	}

	_, err := s.db.NamedExecContext(ctx, `
		UPDATE chats SET chat_id = :chat_id, title = :title, is_enabled = :is_enabled, topics = :topics
		WHERE id = :id`, chat)
	if err != nil {
		return fmt.Errorf("failed to update chat %d: %w", chat.ID, err)
	}
	return nil
}

// DefaultTopics is the topic list of a chat that never configured one.
func DefaultTopics() []string {
	return []string{"BIST", "FX", "Kripto", "Makro"}
}

func (s *sqlxStore) CountBotMessagesSince(ctx context.Context, since time.Time) (int, error) {
	defer s.observe(ctx, "count_bot_messages_since", time.Now())

	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM messages WHERE bot_id IS NOT NULL AND created_at >= ?`, since.UTC())
	if err != nil {
		if isCtxErr(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (s *sqlxStore) CountMessagesByBotSince(ctx context.Context, botIDs []int64, since time.Time) (map[int64]int, error) {
	defer s.observe(ctx, "count_messages_by_bot_since", time.Now())

	counts := make(map[int64]int, len(botIDs))
	if len(botIDs) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(`
		SELECT bot_id, COUNT(*) AS n FROM messages
		WHERE bot_id IN (?) AND created_at >= ?
		GROUP BY bot_id`, botIDs, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to build grouped count query: %w", err)
	}

	var rows []struct {
		BotID int64 `db:"bot_id"`
		N     int   `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		if isCtxErr(err) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error counting messages per bot", "bots", len(botIDs), "error", err)
		return nil, fmt.Errorf("failed to count messages per bot: %w", err)
	}
	for _, r := range rows {
		counts[r.BotID] = r.N
	}
	return counts, nil
}

const messageColumns = `id, bot_id, chat_db_id, telegram_message_id, text, reply_to_message_id, msg_metadata, created_at`

func (s *sqlxStore) RecentMessages(ctx context.Context, chatDBID int64, limit int) ([]Message, error) {
	defer s.observe(ctx, "recent_messages", time.Now())

	if chatDBID == 0 {
		return nil, fmt.Errorf("chat_db_id cannot be zero")
	}
	if limit <= 0 {
		limit = 30
	} else if limit > 200 {
		limit = 200
	}

	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT `+messageColumns+` FROM messages
		WHERE chat_db_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, chatDBID, limit)
	if err != nil {
		if isCtxErr(err) {
			s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching messages", "chat_db_id", chatDBID, "error", err)
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Error getting recent messages", "chat_db_id", chatDBID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for chat %d: %w", chatDBID, err)
	}

	reverse(msgs)
	return msgs, nil
}

func (s *sqlxStore) LastBotSpeaker(ctx context.Context, chatDBID int64) (int64, error) {
	defer s.observe(ctx, "last_bot_speaker", time.Now())

	var botID int64
	err := s.db.GetContext(ctx, &botID, `
		SELECT bot_id FROM messages
		WHERE chat_db_id = ? AND bot_id IS NOT NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, chatDBID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to get last speaker of chat %d: %w", chatDBID, err)
	}
	return botID, nil
}

func (s *sqlxStore) BotMessagesSince(ctx context.Context, botID int64, since time.Time) ([]Message, error) {
	defer s.observe(ctx, "bot_messages_since", time.Now())

	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT `+messageColumns+` FROM messages
		WHERE bot_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT 500`, botID, since.UTC())
	if err != nil {
		if isCtxErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get messages of bot %d: %w", botID, err)
	}
	return msgs, nil
}

func (s *sqlxStore) RecentBotMessagesInChat(ctx context.Context, chatDBID int64, limit int) ([]Message, error) {
	defer s.observe(ctx, "recent_bot_messages_in_chat", time.Now())

	if limit <= 0 {
		limit = 50
	}
	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT `+messageColumns+` FROM messages
		WHERE chat_db_id = ? AND bot_id IS NOT NULL
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, chatDBID, limit)
	if err != nil {
		if isCtxErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get bot messages of chat %d: %w", chatDBID, err)
	}
	return msgs, nil
}

func (s *sqlxStore) GetMessageByTelegramID(ctx context.Context, chatDBID, telegramMessageID int64) (*Message, error) {
	defer s.observe(ctx, "get_message_by_telegram_id", time.Now())

	var msg Message
	err := s.db.GetContext(ctx, &msg, `
		SELECT `+messageColumns+` FROM messages
		WHERE chat_db_id = ? AND telegram_message_id = ?
		ORDER BY id DESC LIMIT 1`, chatDBID, telegramMessageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get message %d of chat %d: %w", telegramMessageID, chatDBID, err)
	}
	return &msg, nil
}

// SaveMessage inserts a new message record and sets its ID.
func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	defer s.observe(ctx, "save_message", time.Now())

	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.ChatDBID == 0 {
		return fmt.Errorf("message must have a non-zero chat_db_id")
	}
	if message.Text == "" {
		return fmt.Errorf("message must have non-empty text")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = nowUTC()
	} else {
		message.CreatedAt = message.CreatedAt.UTC()
	}

	err := s.withTx(ctx, "save_message", func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, `
			INSERT INTO messages (bot_id, chat_db_id, telegram_message_id, text, reply_to_message_id, msg_metadata, created_at)
			VALUES (:bot_id, :chat_db_id, :telegram_message_id, :text, :reply_to_message_id, :msg_metadata, :created_at)`, message)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error saving message", "chat_db_id", message.ChatDBID, "error", err)
			return fmt.Errorf("failed to save message (chat %d): %w", message.ChatDBID, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving message", "chat_db_id", message.ChatDBID, "error", err)
			return nil
		}
		message.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "Message saved successfully",
		"chat_db_id", message.ChatDBID, "bot_id", message.BotID.Int64, "message_id", message.ID)
	return nil
}

func (s *sqlxStore) UpdateTelegramMessageID(ctx context.Context, messageID, telegramMessageID int64) error {
	defer s.observe(ctx, "update_telegram_message_id", time.Now())

	res, err := s.db.ExecContext(ctx, `UPDATE messages SET telegram_message_id = ? WHERE id = ?`, telegramMessageID, messageID)
	if err != nil {
		return fmt.Errorf("failed to update telegram id of message %d: %w", messageID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected when updating telegram id", "message_id", messageID, "affected", n)
	}
	return nil
}

func (s *sqlxStore) GetStances(ctx context.Context, botID int64) ([]Stance, error) {
	defer s.observe(ctx, "get_stances", time.Now())

	var stances []Stance
	err := s.db.SelectContext(ctx, &stances, `
		SELECT id, bot_id, topic, stance_text, confidence, cooldown_until, updated_at
		FROM bot_stances WHERE bot_id = ? ORDER BY topic`, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stances of bot %d: %w", botID, err)
	}
	return stances, nil
}

// UpsertStance inserts or refreshes the (bot, topic) row and bumps updated_at.
func (s *sqlxStore) UpsertStance(ctx context.Context, stance *Stance) error {
	defer s.observe(ctx, "upsert_stance", time.Now())

	if stance == nil || stance.BotID == 0 || stance.Topic == "" {
		return fmt.Errorf("stance must have bot_id and topic")
	}
	stance.UpdatedAt = nowUTC()
	stance.Confidence = clamp01(stance.Confidence)

	return s.withTx(ctx, "upsert_stance", func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO bot_stances (bot_id, topic, stance_text, confidence, cooldown_until, updated_at)
			VALUES (:bot_id, :topic, :stance_text, :confidence, :cooldown_until, :updated_at)
			ON CONFLICT (bot_id, topic) DO UPDATE SET
				stance_text = excluded.stance_text,
				confidence = excluded.confidence,
				cooldown_until = excluded.cooldown_until,
				updated_at = excluded.updated_at`, stance)
		if err != nil {
			return fmt.Errorf("failed to upsert stance (bot %d, topic %s): %w", stance.BotID, stance.Topic, err)
		}
		return tx.GetContext(ctx, &stance.ID, `SELECT id FROM bot_stances WHERE bot_id = ? AND topic = ?`, stance.BotID, stance.Topic)
	})
}

func (s *sqlxStore) GetHoldings(ctx context.Context, botID int64) ([]Holding, error) {
	defer s.observe(ctx, "get_holdings", time.Now())

	var holdings []Holding
	err := s.db.SelectContext(ctx, &holdings, `
		SELECT id, bot_id, symbol, avg_price, size, note, updated_at
		FROM bot_holdings WHERE bot_id = ? ORDER BY symbol`, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings of bot %d: %w", botID, err)
	}
	return holdings, nil
}

func (s *sqlxStore) UpsertHolding(ctx context.Context, holding *Holding) error {
	defer s.observe(ctx, "upsert_holding", time.Now())

	if holding == nil || holding.BotID == 0 || holding.Symbol == "" {
		return fmt.Errorf("holding must have bot_id and symbol")
	}
	holding.UpdatedAt = nowUTC()

	return s.withTx(ctx, "upsert_holding", func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO bot_holdings (bot_id, symbol, avg_price, size, note, updated_at)
			VALUES (:bot_id, :symbol, :avg_price, :size, :note, :updated_at)
			ON CONFLICT (bot_id, symbol) DO UPDATE SET
				avg_price = excluded.avg_price,
				size = excluded.size,
				note = excluded.note,
				updated_at = excluded.updated_at`, holding)
		if err != nil {
			return fmt.Errorf("failed to upsert holding (bot %d, symbol %s): %w", holding.BotID, holding.Symbol, err)
		}
		return tx.GetContext(ctx, &holding.ID, `SELECT id FROM bot_holdings WHERE bot_id = ? AND symbol = ?`, holding.BotID, holding.Symbol)
	})
}

func (s *sqlxStore) GetMemories(ctx context.Context, botID int64, limit int) ([]Memory, error) {
	defer s.observe(ctx, "get_memories", time.Now())

	if limit <= 0 {
		limit = 5
	}
	var memories []Memory
	err := s.db.SelectContext(ctx, &memories, `
		SELECT id, bot_id, memory_type, content, relevance, last_used_at, usage_count, created_at
		FROM bot_memories WHERE bot_id = ?
		ORDER BY relevance DESC, id ASC
		LIMIT ?`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get memories of bot %d: %w", botID, err)
	}
	return memories, nil
}

func (s *sqlxStore) AddMemory(ctx context.Context, memory *Memory) error {
	defer s.observe(ctx, "add_memory", time.Now())

	if memory == nil || memory.BotID == 0 || memory.Content == "" {
		return fmt.Errorf("memory must have bot_id and content")
	}
	if memory.MemoryType == "" {
		memory.MemoryType = MemoryPersonalFact
	}
	memory.Relevance = clamp01(memory.Relevance)
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = nowUTC()
	}

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO bot_memories (bot_id, memory_type, content, relevance, last_used_at, usage_count, created_at)
		VALUES (:bot_id, :memory_type, :content, :relevance, :last_used_at, :usage_count, :created_at)`, memory)
	if err != nil {
		return fmt.Errorf("failed to add memory for bot %d: %w", memory.BotID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		memory.ID = id
	}
	return nil
}

// TouchMemories marks memories as used by a prompt.
func (s *sqlxStore) TouchMemories(ctx context.Context, ids []int64) error {
	defer s.observe(ctx, "touch_memories", time.Now())

	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE bot_memories SET usage_count = usage_count + 1, last_used_at = ?
		WHERE id IN (?)`, nowUTC(), ids)
	if err != nil {
		return fmt.Errorf("failed to build touch query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to touch memories: %w", err)
	}
	return nil
}

// DecayMemories multiplies relevance by factor for memories unused since unusedSince.
func (s *sqlxStore) DecayMemories(ctx context.Context, factor float64, unusedSince time.Time) (int64, error) {
	defer s.observe(ctx, "decay_memories", time.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE bot_memories SET relevance = relevance * ?
		WHERE COALESCE(last_used_at, created_at) < ?`, factor, unusedSince.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to decay memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneMemories deletes memories below minRelevance that were never used.
func (s *sqlxStore) PruneMemories(ctx context.Context, minRelevance float64) (int64, error) {
	defer s.observe(ctx, "prune_memories", time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_memories WHERE relevance < ? AND usage_count = 0`, minRelevance)
	if err != nil {
		return 0, fmt.Errorf("failed to prune memories: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sqlxStore) GetSettings(ctx context.Context) ([]Setting, error) {
	defer s.observe(ctx, "get_settings", time.Now())

	var settings []Setting
	if err := s.db.SelectContext(ctx, &settings, `SELECT key, value, updated_at FROM settings`); err != nil {
		if isCtxErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

func (s *sqlxStore) UpsertSetting(ctx context.Context, key, jsonValue string) error {
	defer s.observe(ctx, "upsert_setting", time.Now())

	if key == "" {
		return fmt.Errorf("setting key cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, jsonValue, nowUTC())
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}

// RunSQLMaintenance executes VACUUM and refreshes planner statistics.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case isCtxErr(err):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		s.logger.WarnContext(ctx, "PRAGMA optimize failed", "error", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
