// Package bot wires the long-running components of piyasabot together and manages
// their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Component is a long-running part of the process. Run blocks until ctx is cancelled;
// a non-nil error stops every other component.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// Bot owns the components and the scheduler.
type Bot struct {
	logger     *slog.Logger
	scheduler  *Scheduler
	components []Component
}

// NewBot creates the orchestrator. scheduler may be nil.
func NewBot(logger *slog.Logger, scheduler *Scheduler, components ...Component) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		scheduler:  scheduler,
		components: components,
	}
}

// Run starts every component and the scheduler, and returns once all have stopped.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator", "components", len(b.components))

	g, gCtx := errgroup.WithContext(ctx)

	for _, c := range b.components {
		g.Go(func() error {
			b.logger.InfoContext(gCtx, "Starting component", "name", c.Name)
			err := c.Run(gCtx)
			switch {
			case err != nil && !errors.Is(err, context.Canceled):
				b.logger.ErrorContext(gCtx, "Component failed", "name", c.Name, "error", err)
				return fmt.Errorf("%s: %w", c.Name, err)
			case gCtx.Err() == nil:
				b.logger.InfoContext(gCtx, "Component finished", "name", c.Name)
			default:
				b.logger.InfoContext(gCtx, "Component stopped", "name", c.Name)
			}
			return nil
		})
	}

	if b.scheduler != nil {
		g.Go(func() error {
			if err := b.scheduler.Start(gCtx); err != nil {
				_ = b.scheduler.Stop()
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler")
			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}
	b.logger.Info("Bot orchestrator stopped gracefully")
	return nil
}
