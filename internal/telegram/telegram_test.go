package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/piyasasohbet/piyasabot/internal/bot/handlers"
	"github.com/piyasasohbet/piyasabot/internal/config"
	apperrors "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/logger"
	"github.com/piyasasohbet/piyasabot/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeAPI answers Bot API calls with canned bodies per method.
type fakeAPI struct {
	mu      sync.Mutex
	calls   map[string]int
	bodies  map[string]string
	lastRaw map[string]string
}

func newFakeAPI(t *testing.T, bodies map[string]string) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{calls: map[string]int{}, bodies: bodies, lastRaw: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_ = r.ParseMultipartForm(1 << 20)
		api.mu.Lock()
		api.calls[method]++
		if r.MultipartForm != nil {
			var parts []string
			for k, v := range r.MultipartForm.Value {
				parts = append(parts, k+"="+strings.Join(v, ","))
			}
			api.lastRaw[method] = strings.Join(parts, "&")
		}
		body, ok := api.bodies[method]
		api.mu.Unlock()
		if !ok {
			body = `{"ok":true,"result":true}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) count(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[method]
}

func (a *fakeAPI) form(method string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRaw[method]
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(config.TelegramConfig{RequestTimeout: 5 * time.Second}, logger.Discard(), tgbot.WithServerURL(srv.URL))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientSendMessage(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100200,"type":"supergroup"}}}`,
	})
	c := newTestClient(t, srv)

	id, err := c.SendMessage(context.Background(), transport.SendRequest{
		Token:          "123:abc",
		ChatID:         "-100200",
		Text:           "Bence endeks toparlanır.",
		ReplyTo:        7,
		DisablePreview: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 1, api.count("sendMessage"))

	form := api.form("sendMessage")
	assert.Contains(t, form, "chat_id=-100200")
	assert.Contains(t, form, `"message_id":7`)

	_, err = c.SendMessage(context.Background(), transport.SendRequest{Token: "123:abc", ChatID: "-100200", Text: "ikinci"})
	require.NoError(t, err)
	c.mu.Lock()
	assert.Len(t, c.bots, 1, "one bot instance per token")
	c.mu.Unlock()
}

func TestClientSendErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantRetry  time.Duration
	}{
		{
			name:       "throttled",
			body:       `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5","parameters":{"retry_after":5}}`,
			wantStatus: http.StatusTooManyRequests,
			wantRetry:  5 * time.Second,
		},
		{
			name:       "forbidden",
			body:       `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked"}`,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "bad request",
			body:       `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "server error",
			body:       `{"ok":false,"error_code":502,"description":"Bad Gateway"}`,
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, srv := newFakeAPI(t, map[string]string{"sendMessage": tt.body})
			c := newTestClient(t, srv)

			_, err := c.SendMessage(context.Background(), transport.SendRequest{Token: "123:abc", ChatID: "-1", Text: "x"})
			require.Error(t, err)
			status, retry := transport.Status(err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantRetry, retry)
		})
	}
}

func TestClassifyUnreachable(t *testing.T) {
	t.Parallel()

	err := classify(fmt.Errorf("error do request: %w", context.DeadlineExceeded))
	status, _ := transport.Status(err)
	assert.Zero(t, status)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestClientSendTyping(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t, nil)
	c := newTestClient(t, srv)

	require.NoError(t, c.SendTyping(context.Background(), "123:abc", "-100200", time.Second))
	assert.Equal(t, 1, api.count("sendChatAction"))
	assert.Contains(t, api.form("sendChatAction"), "action=typing")

	require.NoError(t, c.SendTyping(context.Background(), "123:abc", "-100200", time.Minute))
	require.NoError(t, c.Close(), "close stops the refresher")
}

func TestIntakeWebhook(t *testing.T) {
	t.Parallel()

	var received atomic.Int64
	registered := map[string]handlers.RegisteredHandler{
		"intake": {
			HandlerType: tgbot.HandlerTypeMessageText,
			MatchType:   tgbot.MatchTypePrefix,
			Handler: func(_ context.Context, _ *tgbot.Bot, u *models.Update) {
				received.Store(u.ID)
			},
		},
	}
	health := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	in, err := NewIntake(config.TelegramConfig{
		ListenerToken: "123:abc",
		Mode:          "webhook",
		WebhookAddr:   "127.0.0.1:0",
		WebhookSecret: "s3cret",
	}, registered, health, logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	rec := httptest.NewRecorder()
	in.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	update := `{"update_id":77,"message":{"message_id":5,"date":0,"chat":{"id":-100200,"type":"supergroup"},"from":{"id":501,"is_bot":false,"first_name":"Ayşe"},"text":"selam"}}`
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(update))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	in.Handler().ServeHTTP(httptest.NewRecorder(), req)

	require.Eventually(t, func() bool { return received.Load() == 77 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("intake did not stop")
	}
}

func TestIntakeHealthOnly(t *testing.T) {
	t.Parallel()

	in, err := NewIntake(config.TelegramConfig{Mode: "off"}, nil, nil, logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, in.bot)
	assert.Nil(t, in.server)
	require.NoError(t, in.Run(context.Background()))
}
