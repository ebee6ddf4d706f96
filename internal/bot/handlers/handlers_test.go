package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/logger"
	"github.com/piyasasohbet/piyasabot/internal/metrics"
	"github.com/piyasasohbet/piyasabot/internal/queue"
)

type fixture struct {
	deps  HandlerDeps
	store database.Store
	chat  *database.Chat
	ali   *database.Bot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	chat := &database.Chat{ChatID: "-100200", Title: "Borsa Sohbet", IsEnabled: true}
	require.NoError(t, store.SaveChat(ctx, chat))
	require.NoError(t, store.SaveChat(ctx, &database.Chat{ChatID: "-100300", Title: "Kapalı", IsEnabled: false}))

	ali := &database.Bot{Name: "Ali", Username: "ali_bot", TokenEncrypted: "x", IsEnabled: true}
	require.NoError(t, store.SaveBot(ctx, ali))

	log := logger.Discard()
	backend := queue.NewMemoryBackend()
	return &fixture{
		deps: HandlerDeps{
			Logger:   log,
			Store:    store,
			Cache:    cache.New(10, nil, log),
			Priority: queue.NewPriorityQueue(backend, log),
			Outbound: queue.NewMessageQueue(backend, log),
			Metrics:  metrics.New(log),
		},
		store: store,
		chat:  chat,
		ali:   ali,
	}
}

func userUpdate(chatID int64, id int, text string) *models.Update {
	return &models.Update{
		ID: int64(id),
		Message: &models.Message{
			ID:   id,
			Date: int(time.Now().Unix()),
			Chat: models.Chat{ID: chatID},
			From: &models.User{ID: 501, Username: "yatirimci", FirstName: "Ayşe"},
			Text: text,
		},
	}
}

func TestIntakeHandler(t *testing.T) {
	t.Parallel()

	t.Run("plain message goes to the normal queue", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		NewIntakeHandler(f.deps)(ctx, nil, userUpdate(-100200, 10, "THYAO bugün çok güçlü, rekor gelir"))

		item, err := f.deps.Priority.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, queue.PriorityNormal, item.Priority)
		assert.Zero(t, item.BotID)
		assert.Equal(t, "-100200", item.ChatID)
		assert.Equal(t, int64(10), item.TelegramMessageID)
		assert.Equal(t, "yatirimci", item.Username)

		stored, err := f.store.GetMessageByTelegramID(ctx, f.chat.ID, 10)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.True(t, stored.IsUser())
		meta := stored.Metadata.V
		require.NotNil(t, meta.Source)
		assert.Equal(t, int64(501), meta.Source.ID)
		assert.Equal(t, "Ayşe", meta.Source.FirstName)
		assert.Contains(t, meta.Symbols, "THYAO")
	})

	t.Run("mention routes to the named bot", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		update := userUpdate(-100200, 11, "@Ali_Bot dolar ne olur?")
		update.Message.Entities = []models.MessageEntity{{Type: models.MessageEntityTypeMention, Offset: 0, Length: 8}}
		NewIntakeHandler(f.deps)(ctx, nil, update)

		item, err := f.deps.Priority.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, queue.PriorityHigh, item.Priority)
		assert.Equal(t, f.ali.ID, item.BotID)
		assert.True(t, item.IsMentioned)
	})

	t.Run("mention without entities is found in the words", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		NewIntakeHandler(f.deps)(ctx, nil, userUpdate(-100200, 12, "sen ne diyorsun @ali_bot?"))

		item, err := f.deps.Priority.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, f.ali.ID, item.BotID)
	})

	t.Run("reply to a bot routes to that bot", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)

		update := userUpdate(-100200, 13, "katılmıyorum")
		update.Message.ReplyToMessage = &models.Message{ID: 9, From: &models.User{ID: 77, IsBot: true, Username: "ali_bot"}}
		NewIntakeHandler(f.deps)(ctx, nil, update)

		item, err := f.deps.Priority.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, queue.PriorityHigh, item.Priority)
		assert.True(t, item.IsReplyToBot)
		assert.Equal(t, f.ali.ID, item.BotID)

		stored, err := f.store.GetMessageByTelegramID(ctx, f.chat.ID, 13)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, int64(9), stored.ReplyToMessageID.Int64)
	})

	t.Run("ignored updates", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t)
		h := NewIntakeHandler(f.deps)

		fromBot := userUpdate(-100200, 20, "bot konuşuyor")
		fromBot.Message.From.IsBot = true
		h(ctx, nil, fromBot)
		h(ctx, nil, userUpdate(-100300, 21, "kapalı sohbet"))
		h(ctx, nil, userUpdate(-999, 22, "bilinmeyen sohbet"))
		h(ctx, nil, userUpdate(-100200, 23, "   "))
		h(ctx, nil, &models.Update{ID: 24})

		depths, err := f.deps.Priority.Depths(ctx)
		require.NoError(t, err)
		assert.Zero(t, depths[queue.PriorityHigh]+depths[queue.PriorityNormal])

		recent, err := f.store.RecentMessages(ctx, f.chat.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})
}

func TestHumansOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var seen []int64
	next := func(_ context.Context, _ *tgbot.Bot, u *models.Update) { seen = append(seen, u.ID) }
	h := HumansOnly(f.deps)(next)

	fromBot := userUpdate(1, 2, "x")
	fromBot.Message.From.IsBot = true
	h(context.Background(), nil, userUpdate(1, 1, "x"))
	h(context.Background(), nil, fromBot)
	h(context.Background(), nil, &models.Update{ID: 3})

	assert.Equal(t, []int64{1}, seen)
}

func TestRegisterAllHandlers(t *testing.T) {
	t.Parallel()

	got := RegisterAllHandlers(newFixture(t).deps)
	require.Contains(t, got, "intake")
	assert.NotNil(t, got["intake"].Handler)
	assert.Len(t, got["intake"].Middleware, 1)
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.deps.Priority.Enqueue(ctx, queue.Item{ChatID: "-100200", Priority: queue.PriorityHigh}))
	f.deps.Metrics.TickOutcome(ctx, "message")

	rec := httptest.NewRecorder()
	NewHealthHandler(f.deps)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, int64(1), report.PriorityQueue[queue.PriorityHigh])
	assert.Contains(t, report.MessageQueue, queue.KeyOutboundDLQ)
	require.NotNil(t, report.Metrics)
	assert.Equal(t, int64(1), report.Metrics.TickOutcomes["message"])

	rec = httptest.NewRecorder()
	NewHealthHandler(f.deps)(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
