package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	apperrors "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/llm"
	"github.com/piyasasohbet/piyasabot/internal/prompt"
	"github.com/piyasasohbet/piyasabot/internal/text"
)

// Paraphraser rewrites a draft with the same meaning in different words.
type Paraphraser interface {
	Paraphrase(ctx context.Context, draft string, botID int64) (string, error)
}

// Guard runs the exact and semantic passes, paraphrasing on collisions.
type Guard struct {
	semantic    *Semantic
	paraphraser Paraphraser
	logger      *slog.Logger
}

// NewGuard creates a guard. semantic may be nil.
func NewGuard(semantic *Semantic, paraphraser Paraphraser, logger *slog.Logger) *Guard {
	return &Guard{
		semantic:    semantic,
		paraphraser: paraphraser,
		logger:      logger.With("component", "dedup_guard"),
	}
}

// Finish turns a paraphrase candidate into the form that will be sent, so it is
// compared against history the way history was stored. nil leaves it as is.
type Finish func(string) string

func (f Finish) apply(s string) string {
	if f == nil {
		return s
	}
	return f(s)
}

// ResolveExact returns draft unchanged if no history entry normalizes equal to
// it, otherwise paraphrases up to maxAttempts times. Every candidate passes
// through finish before it is compared. It reports whether the result is a
// paraphrase and rejects the draft when every attempt collides.
func (g *Guard) ResolveExact(ctx context.Context, draft string, botID int64, history []string, maxAttempts int, finish Finish) (string, bool, error) {
	if !IsExactDuplicate(draft, history) {
		return draft, false, nil
	}
	g.logger.InfoContext(ctx, "Exact duplicate detected, paraphrasing", "bot_id", botID, "max_attempts", maxAttempts)

	current := draft
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		next, err := g.paraphraser.Paraphrase(ctx, current, botID)
		if err != nil {
			return "", false, err
		}
		next = finish.apply(next)
		if !IsExactDuplicate(next, history) {
			return next, true, nil
		}
		current = next
	}
	return "", false, apperrors.NewContentRejectedError("exact duplicate after paraphrase", nil)
}

// SemanticReady reports whether semantic checks can run.
func (g *Guard) SemanticReady(ctx context.Context) bool {
	return g.semantic.Ready(ctx)
}

// ResolveSemantic paraphrases draft while its similarity to history is above
// threshold, up to attempts times. Embedding failures skip the check.
func (g *Guard) ResolveSemantic(ctx context.Context, draft string, botID int64, history []string, threshold float64, attempts int, finish Finish) (string, bool, error) {
	if len(history) == 0 || !g.semantic.Ready(ctx) {
		return draft, false, nil
	}

	sim, err := g.semantic.MaxSimilarity(ctx, draft, history)
	if err != nil {
		g.logger.WarnContext(ctx, "Semantic check failed, skipping", "bot_id", botID, "error", err)
		return draft, false, nil
	}
	if sim <= threshold {
		return draft, false, nil
	}
	g.logger.InfoContext(ctx, "Semantic duplicate detected, paraphrasing", "bot_id", botID, "similarity", sim, "threshold", threshold)

	current := draft
	for attempt := 1; attempt <= attempts; attempt++ {
		next, err := g.paraphraser.Paraphrase(ctx, current, botID)
		if err != nil {
			return "", false, err
		}
		next = finish.apply(next)
		sim, err = g.semantic.MaxSimilarity(ctx, next, history)
		if err != nil {
			g.logger.WarnContext(ctx, "Semantic recheck failed, keeping paraphrase", "bot_id", botID, "error", err)
			return next, true, nil
		}
		if sim <= threshold {
			return next, true, nil
		}
		current = next
	}
	return "", false, apperrors.NewContentRejectedError(fmt.Sprintf("semantic duplicate after paraphrase (%.2f)", sim), nil)
}

// LLMParaphraser paraphrases through the LLM and caches results per draft and bot.
type LLMParaphraser struct {
	client llm.Client
	cache  *cache.Manager
	logger *slog.Logger
}

// NewLLMParaphraser creates a paraphraser. c may be nil.
func NewLLMParaphraser(client llm.Client, c *cache.Manager, logger *slog.Logger) *LLMParaphraser {
	return &LLMParaphraser{
		client: client,
		cache:  c,
		logger: logger.With("component", "paraphraser"),
	}
}

// Paraphrase implements Paraphraser.
func (p *LLMParaphraser) Paraphrase(ctx context.Context, draft string, botID int64) (string, error) {
	key := cache.ParaphraseKey(draft, botID)
	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, key); ok && len(cached) > 0 {
			return string(cached), nil
		}
	}

	raw, err := p.client.Generate(ctx, prompt.Paraphrase(draft))
	if err != nil {
		return "", fmt.Errorf("failed to paraphrase: %w", err)
	}
	out, err := text.Sanitize(raw)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(out, draft) {
		return "", apperrors.NewContentRejectedError("paraphrase identical to draft", nil)
	}
	if p.cache != nil {
		p.cache.Set(ctx, key, []byte(out), cache.ParaphraseTTL)
	}
	return out, nil
}
