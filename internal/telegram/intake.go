package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"

	"github.com/piyasasohbet/piyasabot/internal/bot/handlers"
	"github.com/piyasasohbet/piyasabot/internal/config"
	"github.com/piyasasohbet/piyasabot/internal/logger"
)

// HTTP routes served by the intake server.
const (
	WebhookPath = "/telegram/webhook"
	HealthPath  = "/healthz"
)

const shutdownTimeout = 5 * time.Second

// Intake receives updates for the listener bot, by long-poll or webhook, and serves the
// health endpoint.
type Intake struct {
	cfg    config.TelegramConfig
	logger *slog.Logger
	bot    *bot.Bot
	server *http.Server
}

// NewIntake builds the listener bot and the HTTP server. Without a listener token or in
// mode "off" only the health endpoint is served, and only when an address is set.
func NewIntake(cfg config.TelegramConfig, registered map[string]handlers.RegisteredHandler, health http.Handler,
	log *slog.Logger, opts ...bot.Option,
) (*Intake, error) {
	in := &Intake{cfg: cfg, logger: log.With("component", "telegram_intake")}

	if cfg.Mode != "off" && cfg.ListenerToken != "" {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = config.DefaultTelegramRequestTimeout
		}
		botOpts := []bot.Option{
			bot.WithSkipGetMe(),
			bot.WithMiddlewares(logger.Middleware(log)),
			bot.WithDefaultHandler(ignoreUpdate),
			bot.WithErrorsHandler(func(err error) {
				in.logger.Warn("Telegram intake error", "error", err)
			}),
		}
		if cfg.Mode == "poll" {
			botOpts = append(botOpts, bot.WithHTTPClient(timeout, &http.Client{Timeout: 2 * timeout}))
		}
		if cfg.WebhookSecret != "" {
			botOpts = append(botOpts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
		}
		b, err := NewTelegramBot(cfg.ListenerToken, log, append(botOpts, opts...)...)
		if err != nil {
			return nil, err
		}
		if err := RegisterHandlers(b, log, registered); err != nil {
			return nil, fmt.Errorf("failed to register intake handlers: %w", err)
		}
		in.bot = b
	}

	if cfg.WebhookAddr != "" {
		mux := http.NewServeMux()
		if health != nil {
			mux.Handle(HealthPath, health)
		}
		if in.bot != nil && cfg.Mode == "webhook" {
			mux.Handle(WebhookPath, in.bot.WebhookHandler())
		}
		in.server = &http.Server{
			Addr:              cfg.WebhookAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return in, nil
}

func ignoreUpdate(context.Context, *bot.Bot, *models.Update) {}

// Handler exposes the HTTP routes, mainly for tests.
func (in *Intake) Handler() http.Handler {
	if in.server == nil {
		return http.NotFoundHandler()
	}
	return in.server.Handler
}

// Run blocks until ctx is cancelled or a component fails.
func (in *Intake) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if in.server != nil {
		g.Go(func() error {
			in.logger.InfoContext(gCtx, "HTTP server listening", "addr", in.cfg.WebhookAddr)
			if err := in.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("intake http server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
			defer cancel()
			if err := in.server.Shutdown(shutdownCtx); err != nil {
				in.logger.WarnContext(gCtx, "HTTP server shutdown failed", "error", err)
			}
			return nil
		})
	}

	if in.bot != nil {
		switch in.cfg.Mode {
		case "poll":
			g.Go(func() error {
				if _, err := in.bot.DeleteWebhook(gCtx, &bot.DeleteWebhookParams{}); err != nil {
					in.logger.WarnContext(gCtx, "Failed to clear webhook before polling", "error", err)
				}
				in.logger.InfoContext(gCtx, "Telegram long-poll intake started")
				in.bot.Start(gCtx)
				in.logger.InfoContext(gCtx, "Telegram long-poll intake stopped")
				return nil
			})
		case "webhook":
			g.Go(func() error {
				if in.cfg.WebhookURL != "" {
					if _, err := in.bot.SetWebhook(gCtx, &bot.SetWebhookParams{
						URL:         in.cfg.WebhookURL,
						SecretToken: in.cfg.WebhookSecret,
					}); err != nil {
						return fmt.Errorf("failed to register webhook: %w", err)
					}
				}
				in.logger.InfoContext(gCtx, "Telegram webhook intake started", "path", WebhookPath)
				in.bot.StartWebhook(gCtx)
				in.logger.InfoContext(gCtx, "Telegram webhook intake stopped")
				return nil
			})
		}
	}

	return g.Wait()
}
