// Package engine runs the behavior loop of one worker: every tick it either answers a
// queued user message or lets an eligible bot speak, then sleeps a randomized delay.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/dedup"
	apperrors "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/llm"
	"github.com/piyasasohbet/piyasabot/internal/metrics"
	"github.com/piyasasohbet/piyasabot/internal/persona"
	"github.com/piyasasohbet/piyasabot/internal/queue"
	"github.com/piyasasohbet/piyasabot/internal/ratelimit"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

// Outcome is how a tick ended.
type Outcome string

const (
	OutcomeInactive        Outcome = "inactive"
	OutcomePriorityReply   Outcome = "priority_reply"
	OutcomePriorityFailed  Outcome = "priority_failed"
	OutcomePriorityDropped Outcome = "priority_dropped"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeNoChat          Outcome = "no_chat"
	OutcomeNoBot           Outcome = "no_eligible_bot"
	OutcomeShortReaction   Outcome = "short_reaction"
	OutcomeMessage         Outcome = "message"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeEmptyLLM        Outcome = "empty_llm"
	OutcomeGuardRejected   Outcome = "guard_rejected"
	OutcomeConfigError     Outcome = "config_error"
	OutcomeError           Outcome = "error"
)

// Fixed sleeps of the main loop.
const (
	inactiveSleep        = time.Second
	prioritySuccessSleep = 2 * time.Second
	priorityFailureSleep = 5 * time.Second
	rateLimitedSleep     = 2500 * time.Millisecond
	noBotSleep           = 3 * time.Second
	errorSleep           = 3 * time.Second
)

// Result describes one tick.
type Result struct {
	Outcome   Outcome
	Sleep     time.Duration
	BotID     int64
	ChatID    int64
	MessageID int64
}

// Briefer produces a one-line market brief for a topic.
type Briefer interface {
	Brief(ctx context.Context, topic string) (string, error)
}

// Typer shows the typing indicator.
type Typer interface {
	SendTyping(ctx context.Context, token, chatID string, d time.Duration) error
}

// Decrypter opens stored bot credentials.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

// Deps are the collaborators of the engine. News, Typing and Secrets may be nil.
type Deps struct {
	Store    database.Store
	Settings *settings.Cache
	Cache    *cache.Manager
	Gate     *ratelimit.Gate
	LLM      llm.Client
	Dedup    *dedup.Guard
	News     Briefer
	Priority *queue.PriorityQueue
	Outbound *queue.MessageQueue
	Typing   Typer
	Secrets  Decrypter
	Metrics  *metrics.Recorder
	Persona  *persona.Tracker
}

// Options tune one worker.
type Options struct {
	WorkerID         int
	TotalWorkers     int
	Location         *time.Location
	ConsistencyGuard bool
	// Rand drives every random decision; nil seeds from the runtime.
	Rand *rand.Rand
	// Now and Sleep are replaceable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

// Engine is the per-worker behavior loop. It is not safe for concurrent ticks.
type Engine struct {
	store    database.Store
	settings *settings.Cache
	cache    *cache.Manager
	gate     *ratelimit.Gate
	llm      llm.Client
	guard    *dedup.Guard
	news     Briefer
	priority *queue.PriorityQueue
	outbound *queue.MessageQueue
	typing   Typer
	secrets  Decrypter
	metrics  *metrics.Recorder
	refresh  *persona.Tracker

	opts   Options
	rng    *rand.Rand
	logger *slog.Logger
}

// New wires an engine.
func New(deps Deps, opts Options, logger *slog.Logger) *Engine {
	if opts.TotalWorkers < 1 {
		opts.TotalWorkers = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if deps.Persona == nil {
		deps.Persona = persona.NewTracker(opts.Now)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(logger)
	}
	return &Engine{
		store:    deps.Store,
		settings: deps.Settings,
		cache:    deps.Cache,
		gate:     deps.Gate,
		llm:      deps.LLM,
		guard:    deps.Dedup,
		news:     deps.News,
		priority: deps.Priority,
		outbound: deps.Outbound,
		typing:   deps.Typing,
		secrets:  deps.Secrets,
		metrics:  deps.Metrics,
		refresh:  deps.Persona,
		opts:     opts,
		rng:      rng,
		logger:   logger.With("component", "engine", "worker_id", opts.WorkerID),
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (e *Engine) now() time.Time {
	return e.opts.Now().In(e.opts.Location)
}

// Run ticks until ctx is cancelled. A tick in progress always completes.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "Engine started", "total_workers", e.opts.TotalWorkers)
	for {
		if ctx.Err() != nil {
			e.logger.InfoContext(ctx, "Engine stopped")
			return nil
		}
		res := e.Tick(context.WithoutCancel(ctx))
		e.metrics.TickOutcome(ctx, string(res.Outcome))
		e.logger.DebugContext(ctx, "Tick finished",
			"outcome", res.Outcome, "bot_id", res.BotID, "chat_id", res.ChatID, "sleep", res.Sleep)
		e.opts.Sleep(ctx, res.Sleep)
	}
}

// Tick runs one iteration of the loop and reports how long to sleep before the next.
func (e *Engine) Tick(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "Tick panicked", "panic", r)
			e.metrics.Generation(ctx, metrics.StatusFailed, 0)
			res = Result{Outcome: OutcomeError, Sleep: errorSleep}
		}
	}()

	snap := e.settings.Get(ctx)
	if !snap.SimulationActive {
		return Result{Outcome: OutcomeInactive, Sleep: inactiveSleep}
	}

	item, err := e.priority.Dequeue(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to read priority queue, continuing proactively", "error", err)
	}
	if item != nil {
		return e.handlePriority(ctx, snap, item)
	}

	if !e.gate.AllowGlobal(ctx, snap.MaxMsgsPerMin) {
		e.metrics.RateLimitHit(ctx)
		return Result{Outcome: OutcomeRateLimited, Sleep: rateLimitedSleep}
	}

	return e.proactive(ctx, snap)
}

// proactive lets a selected bot speak in a selected chat.
func (e *Engine) proactive(ctx context.Context, snap *settings.Snapshot) Result {
	chats, err := e.store.ListEnabledChats(ctx)
	if err != nil {
		return e.failed(ctx, fmt.Errorf("failed to list chats: %w", err), 0, 0)
	}
	chat := pickChat(chats, e.rng)
	if chat == nil {
		return Result{Outcome: OutcomeNoChat, Sleep: uniformDuration(e.rng, 2*time.Second, 3*time.Second)}
	}

	bots, err := e.store.ListEnabledBots(ctx)
	if err != nil {
		return e.failed(ctx, fmt.Errorf("failed to list bots: %w", err), chat.ID, 0)
	}
	e.metrics.SetActiveBots(len(bots))

	bot := e.pickBot(ctx, snap, chat, bots)
	if bot == nil {
		e.logger.DebugContext(ctx, "No eligible bot", "chat_id", chat.ID, "enabled_bots", len(bots))
		return Result{Outcome: OutcomeNoBot, Sleep: noBotSleep, ChatID: chat.ID}
	}

	token, err := e.credential(bot)
	if err != nil {
		e.logger.ErrorContext(ctx, "Bot credential unusable, skipping bot for this tick", "bot_id", bot.ID, "error", err)
		e.metrics.Generation(ctx, metrics.StatusFailed, 0)
		return Result{Outcome: OutcomeConfigError, Sleep: errorSleep, BotID: bot.ID, ChatID: chat.ID}
	}

	if e.rng.Float64() < snap.ShortReactionProbability {
		if res, ok := e.shortReaction(ctx, snap, chat, bot, token); ok {
			return res
		}
	}

	return e.generate(ctx, snap, generation{chat: chat, bot: bot, bots: bots, token: token})
}

// credential decrypts the bot token. Without a decrypter the token is used as stored.
func (e *Engine) credential(bot *database.Bot) (string, error) {
	if e.secrets == nil {
		return bot.TokenEncrypted, nil
	}
	token, err := e.secrets.Decrypt(bot.TokenEncrypted)
	if err != nil {
		return "", apperrors.NewConfigError(fmt.Sprintf("cannot decrypt token of bot %d", bot.ID), err)
	}
	return token, nil
}

// failed turns an unexpected error into an error outcome.
func (e *Engine) failed(ctx context.Context, err error, chatID, botID int64) Result {
	e.logger.ErrorContext(ctx, "Tick failed", "chat_id", chatID, "bot_id", botID, "error", err)
	e.metrics.Generation(ctx, metrics.StatusFailed, 0)
	return Result{Outcome: OutcomeError, Sleep: errorSleep, ChatID: chatID, BotID: botID}
}

// abortError ends a tick early with a specific outcome.
type abortError struct {
	outcome Outcome
	err     error
}

func (a *abortError) Error() string {
	if a.err == nil {
		return string(a.outcome)
	}
	return string(a.outcome) + ": " + a.err.Error()
}

func (a *abortError) Unwrap() error {
	return a.err
}

func abort(outcome Outcome, err error) error {
	return &abortError{outcome: outcome, err: err}
}

// outcomeOf maps a pipeline error onto its tick outcome.
func outcomeOf(err error) (Outcome, bool) {
	var a *abortError
	if errors.As(err, &a) {
		return a.outcome, true
	}
	if apperrors.IsContentRejected(err) {
		return OutcomeDuplicate, true
	}
	return OutcomeError, false
}
