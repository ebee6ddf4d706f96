package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/dedup"
	apperrors "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/llm"
	"github.com/piyasasohbet/piyasabot/internal/market"
	"github.com/piyasasohbet/piyasabot/internal/metrics"
	"github.com/piyasasohbet/piyasabot/internal/persona"
	"github.com/piyasasohbet/piyasabot/internal/prompt"
	"github.com/piyasasohbet/piyasabot/internal/queue"
	"github.com/piyasasohbet/piyasabot/internal/settings"
	"github.com/piyasasohbet/piyasabot/internal/style"
	"github.com/piyasasohbet/piyasabot/internal/text"
)

const semanticParaphraseAttempts = 2

// generation is the working state of one message.
type generation struct {
	chat  *database.Chat
	bot   *database.Bot
	bots  []database.Bot
	token string

	// Set for replies to queued user messages.
	item   *queue.Item
	anchor *database.Message

	// Filled while building the context.
	topic    string
	target   *database.Message
	mention  string
	plan     persona.Plan
	refresh  bool
	memories []database.Memory
}

func (g *generation) priority() bool {
	return g.item != nil
}

// draft is a finished, not yet persisted message.
type draft struct {
	text        string
	paraphrased bool
}

// generate runs the full pipeline for g and reports the tick result. Expected
// aborts sleep the regular delay, unexpected failures the error pause.
func (e *Engine) generate(ctx context.Context, snap *settings.Snapshot, g generation) Result {
	started := time.Now()
	res := Result{BotID: g.bot.ID, ChatID: g.chat.ID}

	msg, err := e.produce(ctx, snap, &g)
	if err != nil {
		outcome, expected := outcomeOf(err)
		res.Outcome = outcome
		if !expected {
			e.logger.ErrorContext(ctx, "Message generation failed", "bot_id", g.bot.ID, "chat_id", g.chat.ID, "error", err)
			e.metrics.Generation(ctx, metrics.StatusFailed, time.Since(started))
			res.Sleep = errorSleep
			return res
		}
		e.logger.InfoContext(ctx, "Message dropped", "bot_id", g.bot.ID, "chat_id", g.chat.ID, "reason", outcome, "error", err)
		res.Sleep = nextDelay(snap, g.bot, e.now(), e.rng)
		return res
	}

	e.metrics.Generation(ctx, metrics.StatusSuccess, time.Since(started))
	e.deliver(ctx, snap, &g, msg)

	res.Outcome = OutcomeMessage
	res.MessageID = msg.ID
	res.Sleep = nextDelay(snap, g.bot, e.now(), e.rng)
	return res
}

// produce builds the prompt, runs every content pass and persists the result.
func (e *Engine) produce(ctx context.Context, snap *settings.Snapshot, g *generation) (*database.Message, error) {
	in, stances, err := e.buildInput(ctx, snap, g)
	if err != nil {
		return nil, err
	}
	d, err := e.runPasses(ctx, snap, g, prompt.Compose(in, e.rng), stances)
	if err != nil {
		return nil, err
	}
	return e.finalize(ctx, g, d)
}

// buildInput assembles the prompt input: topic, reply target, transcript, market
// trigger, persona refresh, reaction plan and profile snippets.
func (e *Engine) buildInput(ctx context.Context, snap *settings.Snapshot, g *generation) (prompt.Input, []database.Stance, error) {
	now := e.now()
	bot := g.bot

	recent, err := e.recentMessages(ctx, g.chat.ID, snap.ReplyCandidateWindow)
	if err != nil {
		return prompt.Input{}, nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	stances, err := e.stances(ctx, bot.ID)
	if err != nil {
		return prompt.Input{}, nil, fmt.Errorf("failed to load stances: %w", err)
	}
	holdings, err := e.holdings(ctx, bot.ID)
	if err != nil {
		return prompt.Input{}, nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	g.memories, err = e.memories(ctx, bot)
	if err != nil {
		return prompt.Input{}, nil, fmt.Errorf("failed to load memories: %w", err)
	}

	pool := topicPool(g.chat, stances, snap.CooldownFilterEnabled, now)
	in := prompt.Input{
		Bot:        bot,
		Transcript: renderTranscript(recent, botNames(g.bots)),
		Examples:   contextExamples(recent, bot),
		Mode:       prompt.ModeNew,
		Stances:    stances,
		Holdings:   holdings,
		Memories:   g.memories,
		Length:     prompt.PickLength(snap.MessageLengthProfile, e.rng),
		Now:        now,
	}

	if g.priority() {
		g.target = g.anchor
	} else if shouldReply(recent, snap.ReplyProbability, snap.ReplyToBotsProbability, e.rng) {
		g.target = pickReplyTarget(recent, bot, now, e.rng)
	}

	g.topic = pickTopic(pool, recent, e.rng)
	if g.target != nil {
		in.Mode = prompt.ModeReply
		in.ReplyExcerpt = text.TruncateRunes(g.target.Text, replyExcerptRunes)
		handle, display := replyAuthor(g.target, botIndex(g.bots))
		if g.priority() && handle == "" && g.item.Username != "" {
			handle, display = "@"+g.item.Username, g.item.Username
		}
		in.ReplyAuthor = display
		if handle != "" && handle != bot.Handle() && e.rng.Float64() < snap.MentionProbability {
			g.mention = handle
			in.MentionContext = handle
		}
		if t := topicIn(pool, g.target.Text); t != "" {
			g.topic = t
		}
	}
	in.Topic = g.topic

	newsProb := snap.NewsTriggerProbability
	if g.priority() {
		newsProb = priorityNewsTrigger
	}
	in.MarketTrigger = e.marketTrigger(ctx, snap, g.topic, newsProb)

	if !g.priority() && e.refresh.Due(bot.ID, snap.PersonaRefreshInterval, snap.PersonaRefreshMinutes) {
		g.refresh = true
		in.PersonaRefresh = persona.Summary(bot)
	}

	g.plan = persona.BuildPlan(bot.EmotionProfile.V, in.MarketTrigger, e.rng)
	in.Reaction = g.plan.Directive
	in.ReactionPhrase = g.plan.Phrase
	in.ReactionStory = g.plan.Anecdote

	symbols := bot.PersonaProfile.V.Watchlist
	if g.target != nil {
		symbols = append(market.Symbols(g.target.Text), symbols...)
	}
	in.PastReferences = e.pastReferences(ctx, snap, bot, g.topic, symbols)

	return in, stances, nil
}

// topicIn returns the first pool topic the text talks about.
func topicIn(pool []string, s string) string {
	for _, detected := range market.DetectTopics(s) {
		for _, t := range pool {
			if strings.EqualFold(t, detected) {
				return t
			}
		}
	}
	return ""
}

func botIndex(bots []database.Bot) map[int64]*database.Bot {
	idx := make(map[int64]*database.Bot, len(bots))
	for i := range bots {
		idx[bots[i].ID] = &bots[i]
	}
	return idx
}

// runPasses turns the completion into the final text: guard, reaction overrides,
// micro-behaviors, imperfections, mention, voice, then exact and semantic dedup.
// Dedup compares voiced text because history is stored voiced.
func (e *Engine) runPasses(ctx context.Context, snap *settings.Snapshot, g *generation, req llm.Request, stances []database.Stance) (draft, error) {
	bot := g.bot
	ep := bot.EmotionProfile.V

	raw, err := e.llm.Generate(ctx, req)
	if err != nil {
		if apperrors.IsContentRejected(err) {
			return draft{}, abort(OutcomeEmptyLLM, err)
		}
		return draft{}, fmt.Errorf("failed to generate draft: %w", err)
	}
	body, err := text.Sanitize(raw)
	if err != nil {
		return draft{}, abort(OutcomeEmptyLLM, err)
	}

	if e.opts.ConsistencyGuard && snap.ConsistencyGuardEnabled && len(stances) > 0 {
		body, err = e.checkConsistency(ctx, body, stances)
		if err != nil {
			return draft{}, err
		}
	}

	body = g.plan.Apply(body)
	body = style.MicroBehaviors(body, ep, e.rng)
	imperfections := style.DefaultImperfections
	if g.priority() {
		imperfections = style.PriorityImperfections
	}
	body = imperfections.Apply(body, e.rng)
	body = style.InsertMention(body, g.mention, e.rng)

	voice := style.VoiceFor(voiceTone(bot), ep.SignatureEmoji)
	finish := func(s string) string { return voice.Apply(s, bot.ID) }

	out := draft{text: finish(body)}
	var own []string
	if snap.DedupEnabled {
		own, err = e.ownHistory(ctx, snap, bot.ID)
		if err != nil {
			return draft{}, err
		}
		resolved, paraphrased, err := e.guard.ResolveExact(ctx, out.text, bot.ID, own, snap.DedupMaxAttempts, finish)
		if err != nil {
			return draft{}, err
		}
		out.text, out.paraphrased = resolved, paraphrased
	}

	if snap.SemanticDedupEnabled && e.guard.SemanticReady(ctx) {
		recent, err := e.store.RecentBotMessagesInChat(ctx, g.chat.ID, snap.SemanticDedupHistory)
		if err != nil {
			return draft{}, fmt.Errorf("failed to load semantic history: %w", err)
		}
		resolved, paraphrased, err := e.guard.ResolveSemantic(ctx, out.text, bot.ID, texts(recent), snap.SemanticDedupThreshold, semanticParaphraseAttempts, finish)
		if err != nil {
			return draft{}, err
		}
		out.text = resolved
		out.paraphrased = out.paraphrased || paraphrased
	}

	if out.paraphrased && snap.DedupEnabled && dedup.IsExactDuplicate(out.text, own) {
		return draft{}, apperrors.NewContentRejectedError("semantic paraphrase repeats an earlier message", nil)
	}
	return out, nil
}

func voiceTone(bot *database.Bot) string {
	if t := bot.PersonaProfile.V.Tone; t != "" {
		return t
	}
	return bot.EmotionProfile.V.Tone
}

// checkConsistency asks the model whether body contradicts the bot's stances. A
// failing check keeps the draft.
func (e *Engine) checkConsistency(ctx context.Context, body string, stances []database.Stance) (string, error) {
	answer, err := e.llm.Generate(ctx, prompt.ConsistencyCheck(body, stances, e.now()))
	if err != nil {
		e.logger.WarnContext(ctx, "Consistency guard unavailable, keeping draft", "error", err)
		return body, nil
	}
	revised, ok := prompt.ParseVerdict(body, answer)
	if !ok {
		return "", abort(OutcomeGuardRejected, nil)
	}
	revised, err = text.Sanitize(revised)
	if err != nil {
		return "", abort(OutcomeGuardRejected, err)
	}
	return revised, nil
}

// ownHistory is the bot's own text inside the dedup window.
func (e *Engine) ownHistory(ctx context.Context, snap *settings.Snapshot, botID int64) ([]string, error) {
	since := e.now().Add(-time.Duration(snap.DedupWindowHours) * time.Hour)
	msgs, err := e.store.BotMessagesSince(ctx, botID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load dedup history: %w", err)
	}
	return texts(msgs), nil
}

func texts(msgs []database.Message) []string {
	out := make([]string, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Text
	}
	return out
}

// finalize persists the message with its metadata and updates the per-bot state
// that depends on a message actually being written.
func (e *Engine) finalize(ctx context.Context, g *generation, d draft) (*database.Message, error) {
	meta := database.MessageMetadata{
		Topic:       g.topic,
		Symbols:     market.Symbols(d.text),
		Sentiment:   market.Sentiment(d.text),
		Paraphrased: d.paraphrased,
	}
	msg := &database.Message{
		BotID:     sql.NullInt64{Int64: g.bot.ID, Valid: true},
		ChatDBID:  g.chat.ID,
		Text:      d.text,
		CreatedAt: e.opts.Now().UTC(),
	}
	if g.target != nil && g.target.TelegramMessageID.Valid {
		msg.ReplyToMessageID = g.target.TelegramMessageID
	}
	if g.priority() {
		meta.IsPriorityResponse = true
		meta.RespondedToMessageID = g.item.TelegramMessageID
		msg.ReplyToMessageID = sql.NullInt64{Int64: g.item.TelegramMessageID, Valid: g.item.TelegramMessageID != 0}
	}
	msg.Metadata = database.NewJSON(meta)

	if err := e.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	if e.cache != nil {
		e.cache.InvalidateChatMessages(ctx, g.chat.ID)
	}
	if !g.priority() {
		e.refresh.Commit(g.bot.ID, g.refresh)
	}
	e.touchMemories(ctx, g.bot.ID, g.memories)

	e.logger.InfoContext(ctx, "Message persisted",
		"message_id", msg.ID, "bot_id", g.bot.ID, "chat_id", g.chat.ID, "topic", g.topic,
		"reply_to", msg.ReplyToMessageID.Int64, "priority", g.priority(), "paraphrased", d.paraphrased)
	return msg, nil
}

func (e *Engine) touchMemories(ctx context.Context, botID int64, memories []database.Memory) {
	ids := make([]int64, 0, len(memories))
	for _, m := range memories {
		if m.ID != 0 {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := e.store.TouchMemories(ctx, ids); err != nil {
		e.logger.WarnContext(ctx, "Failed to touch memories", "bot_id", botID, "error", err)
	}
}

// deliver simulates typing and hands the message to the outbound queue. Delivery
// problems never undo the persisted message.
func (e *Engine) deliver(ctx context.Context, snap *settings.Snapshot, g *generation, msg *database.Message) {
	e.simulateTyping(ctx, g.token, g.chat.ChatID, typingDuration(snap, g.bot, msg.Text, g.plan.Tempo))

	priority := queue.PriorityNormal
	if g.priority() {
		priority = queue.PriorityHigh
	}
	e.enqueue(ctx, g.bot, g.chat, msg, priority)
}

func (e *Engine) enqueue(ctx context.Context, bot *database.Bot, chat *database.Chat, msg *database.Message, priority string) {
	if e.outbound == nil {
		return
	}
	err := e.outbound.Enqueue(ctx, &queue.QueuedMessage{
		BotToken:  bot.TokenEncrypted,
		ChatID:    chat.ChatID,
		Text:      msg.Text,
		Priority:  priority,
		ReplyTo:   msg.ReplyToMessageID.Int64,
		MessageID: msg.ID,
		BotID:     bot.ID,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to enqueue message for delivery", "message_id", msg.ID, "bot_id", bot.ID, "error", err)
	}
}
