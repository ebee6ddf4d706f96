package engine

import (
	"context"
	"database/sql"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/prompt"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

func TestTopicPool(t *testing.T) {
	t.Parallel()

	now := time.Now()
	chat := &database.Chat{Topics: database.NewJSON([]string{"BIST", "Kripto"})}
	cooling := []database.Stance{{Topic: "kripto", CooldownUntil: sql.NullTime{Time: now.Add(time.Minute), Valid: true}}}
	expired := []database.Stance{{Topic: "Kripto", CooldownUntil: sql.NullTime{Time: now.Add(-time.Minute), Valid: true}}}

	assert.Equal(t, []string{"BIST"}, topicPool(chat, cooling, true, now))
	assert.Equal(t, []string{"BIST", "Kripto"}, topicPool(chat, cooling, false, now))
	assert.Equal(t, []string{"BIST", "Kripto"}, topicPool(chat, expired, true, now))
	assert.Equal(t, database.DefaultTopics(), topicPool(&database.Chat{}, nil, true, now))

	allCooling := []database.Stance{cooling[0], {Topic: "BIST", CooldownUntil: cooling[0].CooldownUntil}}
	assert.Equal(t, []string{"BIST", "Kripto"}, topicPool(chat, allCooling, true, now), "fully cooled pool is kept")
}

func TestPickTopic(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	recent := []database.Message{
		{Text: "Dolar kuru yine yükseldi"},
		{Text: "Euro da peşinden geldi, döviz pahalı"},
		{Text: "Borsa yatay"},
	}
	assert.Equal(t, "FX", pickTopic([]string{"BIST", "FX"}, recent, rng))
	assert.Equal(t, "BIST", pickTopic([]string{"BIST", "Kripto"}, recent, rng))
	assert.Empty(t, pickTopic(nil, recent, rng))

	seen := map[string]bool{}
	for range 100 {
		seen[pickTopic([]string{"Makro", "Emtia"}, nil, rng)] = true
	}
	assert.Len(t, seen, 2, "silent chat picks uniformly")
}

func TestRenderTranscript(t *testing.T) {
	t.Parallel()

	names := map[int64]string{1: "Ali"}
	var recent []database.Message
	for i := range 20 {
		recent = append(recent, database.Message{Text: "mesaj " + string(rune('a'+i))})
	}
	recent[19] = database.Message{BotID: sql.NullInt64{Int64: 1, Valid: true}, Text: strings.Repeat("x", 300)}
	recent[18] = database.Message{Text: "selam", Metadata: database.NewJSON(database.MessageMetadata{Source: &database.SourceUser{Username: "yatirimci"}})}

	got := strings.Split(renderTranscript(recent, names), "\n")
	require.Len(t, got, transcriptLines)
	assert.Equal(t, "[kullanıcı]: mesaj f", got[0])
	assert.Equal(t, "[yatirimci]: selam", got[13])
	assert.True(t, strings.HasPrefix(got[14], "[Ali]: xxx"))
	assert.Equal(t, transcriptLineRunes, len([]rune(strings.TrimPrefix(got[14], "[Ali]: "))))

	assert.Empty(t, renderTranscript(nil, names))
}

func TestContextExamples(t *testing.T) {
	t.Parallel()

	bot := &database.Bot{ID: 1}
	user := func(ext int64, body string) database.Message {
		return database.Message{TelegramMessageID: sql.NullInt64{Int64: ext, Valid: true}, Text: body}
	}
	answer := func(replyTo int64, body string) database.Message {
		return database.Message{
			BotID:            sql.NullInt64{Int64: 1, Valid: true},
			ReplyToMessageID: sql.NullInt64{Int64: replyTo, Valid: replyTo != 0},
			Text:             body,
		}
	}

	recent := []database.Message{
		user(1, "@ali_bot altın ne olur?"),
		user(2, "bir de dolar"),
		answer(1, "@yatirimci altın bence yukarı"),
		user(3, "peki borsa?"),
		answer(0, "borsa yatay kalır"),
		{BotID: sql.NullInt64{Int64: 2, Valid: true}, Text: "başka bot"},
		answer(0, "ardışık cevap"),
	}

	got := contextExamples(recent, bot)
	assert.Equal(t, []prompt.Example{
		{User: "@kullanici altın ne olur?", Bot: "@kullanici altın bence yukarı"},
		{User: "peki borsa?", Bot: "borsa yatay kalır"},
	}, got)

	var many []database.Message
	for i := range 6 {
		many = append(many, user(int64(10+i), "soru"), answer(int64(10+i), "cevap"))
	}
	assert.Len(t, contextExamples(many, bot), maxExamples)
}

func TestOwnsBot(t *testing.T) {
	t.Parallel()

	assert.True(t, ownsBot(7, 0, 1))
	assert.True(t, ownsBot(7, 1, 3))
	assert.False(t, ownsBot(7, 0, 3))
	assert.True(t, ownsBot(9, 0, 3))
}

func TestDefaultMemoriesSeeded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, nil)
	plain := h.bot(t, "ali")
	shaped := h.bot(t, "berk", func(b *database.Bot) {
		b.PersonaProfile = database.NewJSON(database.PersonaProfile{Tone: "profesyonel"})
	})

	got, err := h.engine.memories(ctx, plain)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Türk piyasalarında aktif bir yatırımcıyım.", got[0].Content)
	assert.InDelta(t, 0.8, got[0].Relevance, 1e-9)
	assert.InDelta(t, 0.75, got[1].Relevance, 1e-9)

	stored, err := h.store.GetMemories(ctx, plain.ID, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	got, err = h.engine.memories(ctx, shaped)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPastReferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, nil)
	a := h.bot(t, "ali")
	chat := h.chat(t, "-100100")
	now := time.Now()
	h.botMessage(t, chat, a, 0, "Faiz kararı sürpriz olmaz", now.Add(-2*time.Hour))
	h.botMessage(t, chat, a, 0, "THYAO bilançosu güçlü geldi", now.Add(-3*time.Hour))
	h.botMessage(t, chat, a, 0, "Borsa bugün çok yorucuydu", now.Add(-time.Hour))
	h.botMessage(t, chat, a, 0, "THYAO eski günlerdeki gibi değil", now.Add(-10*24*time.Hour))

	got := h.engine.pastReferences(ctx, settings.Defaults(), a, "BIST", []string{"THYAO"})
	assert.Equal(t, []string{"THYAO bilançosu güçlü geldi", "Borsa bugün çok yorucuydu"}, got)
}
