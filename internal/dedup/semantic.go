package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	"github.com/piyasasohbet/piyasabot/internal/llm"
)

// Semantic scores drafts against earlier messages by embedding similarity.
// The embedder is probed on first use; if the probe fails semantic checks stay
// off until restart.
type Semantic struct {
	embedder llm.Embedder
	cache    *cache.Manager
	logger   *slog.Logger

	once  sync.Once
	ready bool
}

// NewSemantic creates a semantic checker. A nil embedder disables it.
func NewSemantic(embedder llm.Embedder, c *cache.Manager, logger *slog.Logger) *Semantic {
	return &Semantic{
		embedder: embedder,
		cache:    c,
		logger:   logger.With("component", "semantic_dedup"),
	}
}

// Ready loads the embedding model on first call and reports whether it is usable.
func (s *Semantic) Ready(ctx context.Context) bool {
	if s == nil || s.embedder == nil {
		return false
	}
	s.once.Do(func() {
		if _, err := s.embedder.Embed(ctx, []string{"hazır"}); err != nil {
			s.logger.WarnContext(ctx, "Embedding model unavailable, semantic dedup disabled", "error", err)
			return
		}
		s.ready = true
		s.logger.InfoContext(ctx, "Embedding model loaded")
	})
	return s.ready
}

// MaxSimilarity returns the highest cosine similarity between candidate and
// any history text.
func (s *Semantic) MaxSimilarity(ctx context.Context, candidate string, history []string) (float64, error) {
	if len(history) == 0 {
		return 0, nil
	}
	texts := make([]string, 0, len(history)+1)
	texts = append(texts, candidate)
	texts = append(texts, history...)

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	best := 0.0
	for _, v := range vectors[1:] {
		if sim := Cosine(vectors[0], v); sim > best {
			best = sim
		}
	}
	return best, nil
}

// embed resolves vectors through the content-addressed cache and embeds only
// the misses, in one batch.
func (s *Semantic) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		var v []float32
		if s.cache != nil && s.cache.GetJSON(ctx, cache.EmbeddingKey(text), &v) && len(v) > 0 {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := s.embedder.Embed(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts: %w", err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		if s.cache != nil {
			if err := s.cache.SetJSON(ctx, cache.EmbeddingKey(missing[j]), v, cache.EmbeddingTTL); err != nil {
				s.logger.DebugContext(ctx, "Failed to cache embedding", "error", err)
			}
		}
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when they differ in
// length or either is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
