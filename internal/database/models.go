package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Memory types.
const (
	MemoryPersonalFact = "personal_fact"
	MemoryPastEvent    = "past_event"
	MemoryRelationship = "relationship"
	MemoryPreference   = "preference"
	MemoryRoutine      = "routine"
)

// JSON stores V as a JSON text column. It marshals transparently so cached rows
// look like plain data.
type JSON[T any] struct {
	V T
}

// NewJSON wraps v.
func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{V: v}
}

// Scan implements sql.Scanner.
func (j *JSON[T]) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(raw) == 0 {
		var zero T
		j.V = zero
		return nil
	}
	return json.Unmarshal(raw, &j.V)
}

// Value implements driver.Valuer.
func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j JSON[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.V)
}

func (j *JSON[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &j.V)
}

// SpeedRange is one sub-profile of a bot's speed profile. Zero fields fall back to
// the global settings.
type SpeedRange struct {
	Min        float64 `json:"min,omitempty"`
	Max        float64 `json:"max,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Jitter     float64 `json:"jitter,omitempty"`
}

// SpeedProfile overrides inter-message delay and typing duration per bot.
type SpeedProfile struct {
	Delay  *SpeedRange `json:"delay,omitempty"`
	Typing *SpeedRange `json:"typing,omitempty"`
}

// PersonaProfile describes how a bot presents itself.
type PersonaProfile struct {
	Tone       string   `json:"tone,omitempty"`
	RiskLevel  string   `json:"risk_level,omitempty"`
	Watchlist  []string `json:"watchlist,omitempty"`
	NeverDo    []string `json:"never_do,omitempty"`
	StyleHints []string `json:"style_hints,omitempty"`
	Summary    string   `json:"summary,omitempty"`
}

// IsZero reports whether the bot was configured without any persona data.
func (p PersonaProfile) IsZero() bool {
	return p.Tone == "" && p.RiskLevel == "" && len(p.Watchlist) == 0 &&
		len(p.NeverDo) == 0 && len(p.StyleHints) == 0 && p.Summary == ""
}

// EmotionProfile drives reaction plans and micro-behaviors.
type EmotionProfile struct {
	Tone             string   `json:"tone,omitempty"`
	Empathy          float64  `json:"empathy,omitempty"`
	Energy           string   `json:"energy,omitempty"`
	SignatureEmoji   string   `json:"signature_emoji,omitempty"`
	SignaturePhrases []string `json:"signature_phrases,omitempty"`
	Anecdotes        []string `json:"anecdotes,omitempty"`
}

// Bot is a simulated participant.
type Bot struct {
	ID             int64                `db:"id" json:"id"`
	Name           string               `db:"name" json:"name"`
	Username       string               `db:"username" json:"username"`
	TokenEncrypted string               `db:"token_encrypted" json:"token_encrypted"`
	IsEnabled      bool                 `db:"is_enabled" json:"is_enabled"`
	SpeedProfile   JSON[SpeedProfile]   `db:"speed_profile" json:"speed_profile"`
	ActiveHours    JSON[[]string]       `db:"active_hours" json:"active_hours"`
	PersonaHint    string               `db:"persona_hint" json:"persona_hint"`
	PersonaProfile JSON[PersonaProfile] `db:"persona_profile" json:"persona_profile"`
	EmotionProfile JSON[EmotionProfile] `db:"emotion_profile" json:"emotion_profile"`
	CreatedAt      time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `db:"updated_at" json:"updated_at"`
}

// Handle returns the @mention form of the bot's username.
func (b *Bot) Handle() string {
	if b.Username == "" {
		return ""
	}
	return "@" + b.Username
}

// Chat is a group the engine posts into.
type Chat struct {
	ID        int64          `db:"id" json:"id"`
	ChatID    string         `db:"chat_id" json:"chat_id"`
	Title     string         `db:"title" json:"title"`
	IsEnabled bool           `db:"is_enabled" json:"is_enabled"`
	Topics    JSON[[]string] `db:"topics" json:"topics"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// SourceUser identifies the human author of an inbound message.
type SourceUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// MessageMetadata is the msg_metadata column.
type MessageMetadata struct {
	Topic                string      `json:"topic,omitempty"`
	Symbols              []string    `json:"symbols,omitempty"`
	Sentiment            string      `json:"sentiment,omitempty"`
	IsPriorityResponse   bool        `json:"is_priority_response,omitempty"`
	RespondedToMessageID int64       `json:"responded_to_message_id,omitempty"`
	ShortReaction        bool        `json:"short_reaction,omitempty"`
	Paraphrased          bool        `json:"paraphrased,omitempty"`
	Source               *SourceUser `json:"source,omitempty"`
}

// Message is an append-only chat line. A null BotID marks a user message.
type Message struct {
	ID                int64                 `db:"id" json:"id"`
	BotID             sql.NullInt64         `db:"bot_id" json:"bot_id"`
	ChatDBID          int64                 `db:"chat_db_id" json:"chat_db_id"`
	TelegramMessageID sql.NullInt64         `db:"telegram_message_id" json:"telegram_message_id"`
	Text              string                `db:"text" json:"text"`
	ReplyToMessageID  sql.NullInt64         `db:"reply_to_message_id" json:"reply_to_message_id"`
	Metadata          JSON[MessageMetadata] `db:"msg_metadata" json:"msg_metadata"`
	CreatedAt         time.Time             `db:"created_at" json:"created_at"`
}

// IsUser reports whether a human wrote the message.
func (m *Message) IsUser() bool {
	return !m.BotID.Valid
}

// AuthoredBy reports whether bot botID wrote the message.
func (m *Message) AuthoredBy(botID int64) bool {
	return m.BotID.Valid && m.BotID.Int64 == botID
}

// Stance is a bot's opinion on a topic. (bot_id, topic) is unique.
type Stance struct {
	ID            int64        `db:"id" json:"id"`
	BotID         int64        `db:"bot_id" json:"bot_id"`
	Topic         string       `db:"topic" json:"topic"`
	StanceText    string       `db:"stance_text" json:"stance_text"`
	Confidence    float64      `db:"confidence" json:"confidence"`
	CooldownUntil sql.NullTime `db:"cooldown_until" json:"cooldown_until"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// InCooldown reports whether the topic is still locked at now.
func (s *Stance) InCooldown(now time.Time) bool {
	return s.CooldownUntil.Valid && s.CooldownUntil.Time.After(now)
}

// Holding is a narrative position. (bot_id, symbol) is unique.
type Holding struct {
	ID        int64     `db:"id" json:"id"`
	BotID     int64     `db:"bot_id" json:"bot_id"`
	Symbol    string    `db:"symbol" json:"symbol"`
	AvgPrice  float64   `db:"avg_price" json:"avg_price"`
	Size      float64   `db:"size" json:"size"`
	Note      string    `db:"note" json:"note"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Memory is a long-lived fact a bot can reference.
type Memory struct {
	ID         int64        `db:"id" json:"id"`
	BotID      int64        `db:"bot_id" json:"bot_id"`
	MemoryType string       `db:"memory_type" json:"memory_type"`
	Content    string       `db:"content" json:"content"`
	Relevance  float64      `db:"relevance" json:"relevance"`
	LastUsedAt sql.NullTime `db:"last_used_at" json:"last_used_at"`
	UsageCount int          `db:"usage_count" json:"usage_count"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// Setting is a runtime tunable. Value holds raw JSON text.
type Setting struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}
