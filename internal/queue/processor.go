package queue

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/transport"
)

// Metrics is the subset of the recorder the processor reports to.
type Metrics interface {
	Telegram429(ctx context.Context)
	Telegram5xx(ctx context.Context)
	RateLimitHit(ctx context.Context)
}

// Limiter guards the transport. *ratelimit.TokenBucket implements it.
type Limiter interface {
	Acquire(ctx context.Context, chatID string, maxWait time.Duration) error
}

// MessageIDUpdater stores the external id of a delivered message.
type MessageIDUpdater interface {
	UpdateTelegramMessageID(ctx context.Context, messageID, telegramMessageID int64) error
}

// Decrypter opens the stored bot credential.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

type noopMetrics struct{}

func (noopMetrics) Telegram429(context.Context)  {}
func (noopMetrics) Telegram5xx(context.Context)  {}
func (noopMetrics) RateLimitHit(context.Context) {}

// ProcessorConfig tunes the processor loop.
type ProcessorConfig struct {
	PollTimeout   time.Duration
	AcquireWait   time.Duration
	LinearBackoff time.Duration
	DefaultRetry  time.Duration
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.PollTimeout < time.Second {
		c.PollTimeout = time.Second
	}
	if c.AcquireWait <= 0 {
		c.AcquireWait = 5 * time.Second
	}
	if c.LinearBackoff <= 0 {
		c.LinearBackoff = 2 * time.Second
	}
	if c.DefaultRetry <= 0 {
		c.DefaultRetry = time.Second
	}
	return c
}

// Processor drains the outbound queue into the transport.
type Processor struct {
	queue   *MessageQueue
	sender  transport.Sender
	limiter Limiter
	store   MessageIDUpdater
	creds   Decrypter
	metrics Metrics
	cfg     ProcessorConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewProcessor creates a processor. limiter, store and creds may be nil.
func NewProcessor(q *MessageQueue, sender transport.Sender, limiter Limiter, store MessageIDUpdater,
	creds Decrypter, metrics Metrics, cfg ProcessorConfig, logger *slog.Logger,
) *Processor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Processor{
		queue:   q,
		sender:  sender,
		limiter: limiter,
		store:   store,
		creds:   creds,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "queue_processor"),
		now:     time.Now,
	}
}

// Run processes messages until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Queue processor started")
	for {
		if ctx.Err() != nil {
			p.logger.InfoContext(ctx, "Queue processor stopped")
			return nil
		}
		if _, err := p.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.WarnContext(ctx, "Queue backend error", "error", err)
			sleep(ctx, p.cfg.PollTimeout)
		}
	}
}

// ProcessOne handles at most one message. It reports whether a message was dequeued.
func (p *Processor) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := p.queue.Next(ctx, p.cfg.PollTimeout)
	if err != nil || msg == nil {
		return false, err
	}

	if wait := msg.NotBefore.Sub(p.now()); wait > 0 {
		if err := p.queue.Retry(ctx, msg); err != nil {
			return true, err
		}
		sleep(ctx, min(wait, 250*time.Millisecond))
		return true, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx, msg.ChatID, p.cfg.AcquireWait); err != nil {
			if ctx.Err() != nil {
				return true, p.queue.Retry(context.WithoutCancel(ctx), msg)
			}
			p.metrics.RateLimitHit(ctx)
			msg.NotBefore = p.now().Add(p.cfg.DefaultRetry)
			p.logger.DebugContext(ctx, "Send deferred by rate limit", "queued_id", msg.ID, "chat_id", msg.ChatID)
			return true, p.queue.Retry(ctx, msg)
		}
	}

	token := msg.BotToken
	if p.creds != nil {
		plain, err := p.creds.Decrypt(msg.BotToken)
		if err != nil {
			msg.LastError = err.Error()
			p.logger.ErrorContext(ctx, "Cannot decrypt bot credential, dropping message", "queued_id", msg.ID, "bot_id", msg.BotID, "error", err)
			return true, p.queue.DeadLetter(ctx, msg)
		}
		token = plain
	}

	externalID, err := p.sender.SendMessage(ctx, transport.SendRequest{
		Token:          token,
		ChatID:         msg.ChatID,
		Text:           msg.Text,
		ReplyTo:        msg.ReplyTo,
		ParseMode:      msg.ParseMode,
		DisablePreview: true,
	})
	if err != nil {
		return true, p.handleFailure(ctx, msg, err)
	}

	p.logger.DebugContext(ctx, "Message delivered", "queued_id", msg.ID, "chat_id", msg.ChatID, "external_id", externalID)
	if p.store != nil && msg.MessageID != 0 && externalID != 0 {
		if err := p.store.UpdateTelegramMessageID(ctx, msg.MessageID, externalID); err != nil {
			p.logger.WarnContext(ctx, "Failed to record external message id", "message_id", msg.MessageID, "error", err)
		}
	}
	return true, nil
}

func (p *Processor) handleFailure(ctx context.Context, msg *QueuedMessage, sendErr error) error {
	if ctx.Err() != nil {
		return p.queue.Retry(context.WithoutCancel(ctx), msg)
	}

	msg.LastError = sendErr.Error()
	status, retryAfter := transport.Status(sendErr)

	var backoff time.Duration
	switch {
	case status == http.StatusTooManyRequests:
		p.metrics.Telegram429(ctx)
		backoff = retryAfter
		if backoff <= 0 {
			backoff = p.cfg.DefaultRetry
		}
	case status >= 500:
		p.metrics.Telegram5xx(ctx)
		backoff = time.Duration(msg.RetryCount+1) * p.cfg.LinearBackoff
	case status == 0 && apperrors.IsRetryable(sendErr):
		backoff = time.Duration(msg.RetryCount+1) * p.cfg.LinearBackoff
	default:
		p.logger.WarnContext(ctx, "Dropping message after permanent send failure",
			"queued_id", msg.ID, "chat_id", msg.ChatID, "status", status, "error", sendErr)
		return nil
	}

	msg.RetryCount++
	if msg.RetryCount >= msg.MaxRetries {
		return p.queue.DeadLetter(ctx, msg)
	}
	msg.NotBefore = p.now().Add(backoff)
	p.logger.InfoContext(ctx, "Send failed, will retry",
		"queued_id", msg.ID, "status", status, "retry_count", msg.RetryCount, "backoff", backoff)
	return p.queue.Retry(ctx, msg)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
