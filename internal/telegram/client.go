package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/piyasasohbet/piyasabot/internal/config"
	apperrors "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/transport"
)

// Telegram clears the typing indicator after about five seconds.
const typingRefresh = 4500 * time.Millisecond

var statusPattern = regexp.MustCompile(`, (\d{3}) `)

// Client delivers messages for any number of bot tokens. It keeps one go-telegram/bot
// instance per token.
type Client struct {
	logger  *slog.Logger
	options []bot.Option

	mu   sync.Mutex
	bots map[string]*bot.Bot

	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a transport client. Extra options are applied to every bot instance.
func NewClient(cfg config.TelegramConfig, logger *slog.Logger, opts ...bot.Option) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultTelegramRequestTimeout
	}
	base := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(timeout, &http.Client{Timeout: timeout}),
	}
	return &Client{
		logger:  logger.With("component", "telegram_client"),
		options: append(base, opts...),
		bots:    make(map[string]*bot.Bot),
		closed:  make(chan struct{}),
	}
}

func (c *Client) botFor(token string) (*bot.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.bots[token]; ok {
		return b, nil
	}
	b, err := NewTelegramBot(token, c.logger, c.options...)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid bot credential", err)
	}
	c.bots[token] = b
	return b, nil
}

// chatRef passes numeric chat ids as numbers and channel handles as strings.
func chatRef(chatID string) any {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return id
	}
	return chatID
}

// SendMessage delivers req and returns the Telegram message id.
func (c *Client) SendMessage(ctx context.Context, req transport.SendRequest) (int64, error) {
	b, err := c.botFor(req.Token)
	if err != nil {
		return 0, err
	}

	params := &bot.SendMessageParams{
		ChatID: chatRef(req.ChatID),
		Text:   req.Text,
	}
	if req.ParseMode != "" {
		params.ParseMode = models.ParseMode(req.ParseMode)
	}
	if req.ReplyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                int(req.ReplyTo),
			AllowSendingWithoutReply: true,
		}
	}
	if req.DisablePreview {
		disabled := true
		params.LinkPreviewOptions = &models.LinkPreviewOptions{IsDisabled: &disabled}
	}

	sent, err := b.SendMessage(ctx, params)
	if err != nil {
		return 0, classify(err)
	}
	if sent == nil {
		return 0, nil
	}
	return int64(sent.ID), nil
}

// SendTyping shows the typing indicator and keeps it alive for d in the background.
func (c *Client) SendTyping(ctx context.Context, token, chatID string, d time.Duration) error {
	b, err := c.botFor(token)
	if err != nil {
		return err
	}
	if err := c.typing(ctx, b, chatID); err != nil {
		return err
	}
	if d <= typingRefresh {
		return nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		deadline := time.NewTimer(d)
		defer deadline.Stop()
		ticker := time.NewTicker(typingRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			case <-deadline.C:
				return
			case <-ticker.C:
				if err := c.typing(ctx, b, chatID); err != nil {
					c.logger.DebugContext(ctx, "Typing refresh failed", "chat_id", chatID, "error", err)
					return
				}
			}
		}
	}()
	return nil
}

func (c *Client) typing(ctx context.Context, b *bot.Bot, chatID string) error {
	_, err := b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatRef(chatID),
		Action: models.ChatActionTyping,
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Close stops typing refreshers and waits for them.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.closed) })
	c.wg.Wait()
	return nil
}

// classify maps go-telegram/bot errors onto transport.SendError.
func classify(err error) error {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &transport.SendError{
			StatusCode: http.StatusTooManyRequests,
			RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	status := 0
	switch {
	case errors.Is(err, bot.ErrorBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, bot.ErrorUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, bot.ErrorForbidden):
		status = http.StatusForbidden
	case errors.Is(err, bot.ErrorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bot.ErrorConflict):
		status = http.StatusConflict
	default:
		if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
			status, _ = strconv.Atoi(m[1])
		}
	}

	if status == 0 {
		return &transport.SendError{Err: apperrors.NewTransientError("telegram request failed", err)}
	}
	return &transport.SendError{StatusCode: status, Err: fmt.Errorf("telegram: %w", err)}
}
