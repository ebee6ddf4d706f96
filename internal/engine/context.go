package engine

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/market"
	"github.com/piyasasohbet/piyasabot/internal/prompt"
	"github.com/piyasasohbet/piyasabot/internal/settings"
	"github.com/piyasasohbet/piyasabot/internal/text"
)

const (
	transcriptLines       = 15
	transcriptLineRunes   = 180
	replyExcerptRunes     = 240
	maxExamples           = 4
	exampleRunes          = 200
	maxPastReferences     = 3
	pastReferenceRunes    = 160
	pastReferenceMinAge   = 7 * 24 * time.Hour
	memoryLimit           = 5
	priorityNewsTrigger   = 0.4
	anonymousSpeaker      = "kullanıcı"
	anonymizedMention     = "@kullanici"
	defaultMemoryRelevant = 0.8
)

var mentionPattern = regexp.MustCompile(`@[\p{L}\p{N}_]+`)

var defaultMemories = []database.Memory{
	{MemoryType: database.MemoryPersonalFact, Content: "Türk piyasalarında aktif bir yatırımcıyım.", Relevance: defaultMemoryRelevant},
	{MemoryType: database.MemoryPreference, Content: "Günlük piyasa gelişmelerini takip etmeyi severim.", Relevance: 0.75},
}

// recentMessages returns up to limit chat messages, oldest first, through the chat
// history cache.
func (e *Engine) recentMessages(ctx context.Context, chatDBID int64, limit int) ([]database.Message, error) {
	key := cache.ChatMessagesKey(chatDBID)
	var msgs []database.Message
	if e.cache != nil && e.cache.GetJSON(ctx, key, &msgs) && len(msgs) >= limit {
		return msgs[len(msgs)-limit:], nil
	}
	msgs, err := e.store.RecentMessages(ctx, chatDBID, limit)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, key, msgs, cache.HistoryTTL); err != nil {
			e.logger.DebugContext(ctx, "Failed to cache chat history", "chat_id", chatDBID, "error", err)
		}
	}
	return msgs, nil
}

func botNames(bots []database.Bot) map[int64]string {
	names := make(map[int64]string, len(bots))
	for _, b := range bots {
		names[b.ID] = b.Name
	}
	return names
}

// speaker names the author of m for the transcript.
func speaker(m *database.Message, names map[int64]string) string {
	if m.BotID.Valid {
		if n := names[m.BotID.Int64]; n != "" {
			return n
		}
		return "bot"
	}
	if src := m.Metadata.V.Source; src != nil {
		if src.Username != "" {
			return src.Username
		}
		if src.FirstName != "" {
			return src.FirstName
		}
	}
	return anonymousSpeaker
}

// renderTranscript prints the newest messages as "[speaker]: text" lines.
func renderTranscript(recent []database.Message, names map[int64]string) string {
	if len(recent) > transcriptLines {
		recent = recent[len(recent)-transcriptLines:]
	}
	lines := make([]string, 0, len(recent))
	for i := range recent {
		body := strings.Join(strings.Fields(recent[i].Text), " ")
		lines = append(lines, "["+speaker(&recent[i], names)+"]: "+text.TruncateRunes(body, transcriptLineRunes))
	}
	return strings.Join(lines, "\n")
}

func anonymizeMentions(s string) string {
	return mentionPattern.ReplaceAllString(s, anonymizedMention)
}

// contextExamples pairs user messages with the bot's answers to them, newest last.
// A bot message answers the user message it replies to, or else the user message
// right before it.
func contextExamples(recent []database.Message, bot *database.Bot) []prompt.Example {
	byExternal := make(map[int64]*database.Message)
	for i := range recent {
		if recent[i].TelegramMessageID.Valid {
			byExternal[recent[i].TelegramMessageID.Int64] = &recent[i]
		}
	}

	var out []prompt.Example
	for i := range recent {
		m := &recent[i]
		if !m.AuthoredBy(bot.ID) {
			continue
		}
		var user *database.Message
		if m.ReplyToMessageID.Valid {
			user = byExternal[m.ReplyToMessageID.Int64]
		} else if i > 0 {
			user = &recent[i-1]
		}
		if user == nil || !user.IsUser() {
			continue
		}
		out = append(out, prompt.Example{
			User: text.TruncateRunes(anonymizeMentions(user.Text), exampleRunes),
			Bot:  text.TruncateRunes(anonymizeMentions(m.Text), exampleRunes),
		})
	}
	if len(out) > maxExamples {
		out = out[len(out)-maxExamples:]
	}
	return out
}

// replyAuthor returns how the reply target is addressed: the bot handle or the
// user's @username, falling back to the display name.
func replyAuthor(m *database.Message, bots map[int64]*database.Bot) (handle, display string) {
	if m.BotID.Valid {
		if b := bots[m.BotID.Int64]; b != nil {
			return b.Handle(), b.Name
		}
		return "", ""
	}
	if src := m.Metadata.V.Source; src != nil {
		if src.Username != "" {
			return "@" + src.Username, src.Username
		}
		return "", src.FirstName
	}
	return "", ""
}

func (e *Engine) stances(ctx context.Context, botID int64) ([]database.Stance, error) {
	key := cache.BotStancesKey(botID)
	var out []database.Stance
	if e.cache != nil && e.cache.GetJSON(ctx, key, &out) {
		return out, nil
	}
	out, err := e.store.GetStances(ctx, botID)
	if err != nil {
		return nil, err
	}
	e.remember(ctx, key, out)
	return out, nil
}

func (e *Engine) holdings(ctx context.Context, botID int64) ([]database.Holding, error) {
	key := cache.BotHoldingsKey(botID)
	var out []database.Holding
	if e.cache != nil && e.cache.GetJSON(ctx, key, &out) {
		return out, nil
	}
	out, err := e.store.GetHoldings(ctx, botID)
	if err != nil {
		return nil, err
	}
	e.remember(ctx, key, out)
	return out, nil
}

// memories loads the bot's most relevant memories. A bot configured without any
// persona starts with two generic memories.
func (e *Engine) memories(ctx context.Context, bot *database.Bot) ([]database.Memory, error) {
	key := cache.BotMemoriesKey(bot.ID)
	var out []database.Memory
	if e.cache != nil && e.cache.GetJSON(ctx, key, &out) {
		return out, nil
	}
	out, err := e.store.GetMemories(ctx, bot.ID, memoryLimit)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 && bot.PersonaProfile.V.IsZero() {
		for _, m := range defaultMemories {
			m.BotID = bot.ID
			if err := e.store.AddMemory(ctx, &m); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		e.logger.InfoContext(ctx, "Seeded default memories", "bot_id", bot.ID)
	}
	e.remember(ctx, key, out)
	return out, nil
}

func (e *Engine) remember(ctx context.Context, key string, v any) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetJSON(ctx, key, v, cache.ProfileTTL); err != nil {
		e.logger.DebugContext(ctx, "Failed to cache profile data", "key", key, "error", err)
	}
}

// pastReferences picks up to three earlier messages of the bot about the same topic
// or the same symbols, preferring symbol overlap, then recency.
func (e *Engine) pastReferences(ctx context.Context, snap *settings.Snapshot, bot *database.Bot, topic string, symbols []string) []string {
	lookback := max(pastReferenceMinAge, time.Duration(snap.DedupWindowHours)*time.Hour)
	history, err := e.store.BotMessagesSince(ctx, bot.ID, e.now().Add(-lookback))
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load past messages", "bot_id", bot.ID, "error", err)
		return nil
	}

	type ref struct {
		text  string
		score int
		at    time.Time
	}
	var refs []ref
	for i := range history {
		m := &history[i]
		score := market.SymbolOverlap(m.Text, symbols) * 2
		if topic != "" && (strings.EqualFold(m.Metadata.V.Topic, topic) || market.MatchesTopic(m.Text, topic)) {
			score++
		}
		if score == 0 {
			continue
		}
		refs = append(refs, ref{text: m.Text, score: score, at: m.CreatedAt})
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].score != refs[j].score {
			return refs[i].score > refs[j].score
		}
		return refs[i].at.After(refs[j].at)
	})

	out := make([]string, 0, maxPastReferences)
	for _, r := range refs {
		if len(out) == maxPastReferences {
			break
		}
		out = append(out, text.TruncateRunes(r.text, pastReferenceRunes))
	}
	return out
}

// marketTrigger fetches a news brief for topic with probability p. Feed problems
// leave the prompt without a trigger.
func (e *Engine) marketTrigger(ctx context.Context, snap *settings.Snapshot, topic string, p float64) string {
	if e.news == nil || !snap.NewsTriggerEnabled || topic == "" {
		return ""
	}
	if e.rng.Float64() >= p {
		return ""
	}
	brief, err := e.news.Brief(ctx, topic)
	if err != nil {
		e.logger.WarnContext(ctx, "News brief unavailable", "topic", topic, "error", err)
		return ""
	}
	return brief
}
