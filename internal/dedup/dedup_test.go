package dedup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyasasohbet/piyasabot/internal/cache"
	apperrors "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/llm"
	"github.com/piyasasohbet/piyasabot/internal/logger"
)

// fakeEmbedder maps known texts onto fixed vectors; anything else is orthogonal.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	embeds  int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		f.embeds++
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}

type scriptedParaphraser struct {
	outputs []string
	calls   int
}

func (s *scriptedParaphraser) Paraphrase(_ context.Context, _ string, _ int64) (string, error) {
	if s.calls >= len(s.outputs) {
		return "", errors.New("no more paraphrases")
	}
	out := s.outputs[s.calls]
	s.calls++
	return out, nil
}

type fakeLLM struct {
	reply string
	calls int
	last  llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, nil
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"BIST bugün yükseldi.", "bist bugün yükseldi"},
		{"  BIST   bugün\n yükseldi!! 🚀", "bist bugün yükseldi"},
		{"İstanbul'da ÇOK güzel", "istanbul da çok güzel"},
		{"🚀🔥", ""},
		{"%5 artış, 100 TL", "5 artiş 100 tl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}

	long := strings.Repeat("a ", 500)
	assert.LessOrEqual(t, len([]rune(Normalize(long))), MaxNormalizedRunes)
}

func TestIsExactDuplicate(t *testing.T) {
	t.Parallel()

	history := []string{"BIST bugün yükseldi.", "Dolar yatay"}
	assert.True(t, IsExactDuplicate("bist bugün YÜKSELDİ 🚀", history))
	assert.False(t, IsExactDuplicate("BIST bugün düştü", history))
	assert.False(t, IsExactDuplicate("🚀", []string{"🔥"}))
}

func TestResolveExact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	history := []string{"BIST bugün yükseldi."}

	tests := []struct {
		name        string
		draft       string
		outputs     []string
		attempts    int
		want        string
		paraphrased bool
		rejected    bool
		calls       int
		finish      Finish
	}{
		{name: "unique draft passes", draft: "Altın rekor kırdı", attempts: 2, want: "Altın rekor kırdı"},
		{name: "first paraphrase differs", draft: "BIST bugün yükseldi.", outputs: []string{"Endeks bugün iyi gitti"}, attempts: 2, want: "Endeks bugün iyi gitti", paraphrased: true, calls: 1},
		{name: "second paraphrase differs", draft: "BIST bugün yükseldi.", outputs: []string{"bist bugün yükseldi!", "Endeks yukarıda"}, attempts: 2, want: "Endeks yukarıda", paraphrased: true, calls: 2},
		{name: "still duplicate", draft: "BIST bugün yükseldi.", outputs: []string{"BIST bugün yükseldi", "bist BUGÜN yükseldi"}, attempts: 2, rejected: true, calls: 2},
		{name: "zero attempts", draft: "BIST bugün yükseldi.", attempts: 0, rejected: true},
		{
			name:        "candidate compared in finished form",
			draft:       "BIST bugün yükseldi.",
			outputs:     []string{"Endeks yükseldi", "Altın yukarıda"},
			attempts:    2,
			want:        "altın yukarıda",
			paraphrased: true,
			calls:       2,
			finish: func(s string) string {
				if s == "Endeks yükseldi" {
					return "BIST bugün yükseldi"
				}
				return strings.ToLower(s)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &scriptedParaphraser{outputs: tt.outputs}
			g := NewGuard(nil, p, logger.Discard())
			got, paraphrased, err := g.ResolveExact(ctx, tt.draft, 1, history, tt.attempts, tt.finish)
			assert.Equal(t, tt.calls, p.calls)
			if tt.rejected {
				require.Error(t, err)
				assert.True(t, apperrors.IsContentRejected(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.paraphrased, paraphrased)
		})
	}
}

func TestSemantic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	vectors := map[string][]float32{
		"hazır":                {1, 1, 1},
		"BIST bugün yükseldi":  {1, 0, 0},
		"Endeks bugün artıda":  {0.91, 0.41, 0},
		"Piyasa bugün sakindi": {0.62, 0.78, 0},
		"Borsa güne pozitif":   {0.95, 0.3, 0},
		"Altın ons rekorda":    {0, 1, 0},
	}

	t.Run("paraphrase lowers similarity", func(t *testing.T) {
		t.Parallel()
		emb := &fakeEmbedder{vectors: vectors}
		c := cache.New(100, nil, logger.Discard())
		p := &scriptedParaphraser{outputs: []string{"Piyasa bugün sakindi"}}
		g := NewGuard(NewSemantic(emb, c, logger.Discard()), p, logger.Discard())

		got, paraphrased, err := g.ResolveSemantic(ctx, "Endeks bugün artıda", 1, []string{"BIST bugün yükseldi"}, 0.85, 2, nil)
		require.NoError(t, err)
		assert.True(t, paraphrased)
		assert.Equal(t, "Piyasa bugün sakindi", got)
		assert.Equal(t, 1, p.calls)
	})

	t.Run("below threshold untouched", func(t *testing.T) {
		t.Parallel()
		emb := &fakeEmbedder{vectors: vectors}
		g := NewGuard(NewSemantic(emb, nil, logger.Discard()), &scriptedParaphraser{}, logger.Discard())
		got, paraphrased, err := g.ResolveSemantic(ctx, "Altın ons rekorda", 1, []string{"BIST bugün yükseldi"}, 0.85, 2, nil)
		require.NoError(t, err)
		assert.False(t, paraphrased)
		assert.Equal(t, "Altın ons rekorda", got)
	})

	t.Run("still similar rejects", func(t *testing.T) {
		t.Parallel()
		emb := &fakeEmbedder{vectors: vectors}
		p := &scriptedParaphraser{outputs: []string{"Borsa güne pozitif", "Endeks bugün artıda"}}
		g := NewGuard(NewSemantic(emb, nil, logger.Discard()), p, logger.Discard())
		_, _, err := g.ResolveSemantic(ctx, "Endeks bugün artıda", 1, []string{"BIST bugün yükseldi"}, 0.85, 2, nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsContentRejected(err))
		assert.Equal(t, 2, p.calls)
	})

	t.Run("unavailable model disables check", func(t *testing.T) {
		t.Parallel()
		emb := &fakeEmbedder{err: errors.New("model not found")}
		g := NewGuard(NewSemantic(emb, nil, logger.Discard()), &scriptedParaphraser{}, logger.Discard())
		assert.False(t, g.SemanticReady(ctx))
		got, _, err := g.ResolveSemantic(ctx, "Endeks bugün artıda", 1, []string{"BIST bugün yükseldi"}, 0.85, 2, nil)
		require.NoError(t, err)
		assert.Equal(t, "Endeks bugün artıda", got)
		assert.Equal(t, 1, emb.calls)
	})

	t.Run("nil embedder", func(t *testing.T) {
		t.Parallel()
		g := NewGuard(NewSemantic(nil, nil, logger.Discard()), &scriptedParaphraser{}, logger.Discard())
		assert.False(t, g.SemanticReady(ctx))
	})

	t.Run("embeddings are cached by content", func(t *testing.T) {
		t.Parallel()
		emb := &fakeEmbedder{vectors: vectors}
		c := cache.New(100, nil, logger.Discard())
		s := NewSemantic(emb, c, logger.Discard())
		require.True(t, s.Ready(ctx))

		history := []string{"BIST bugün yükseldi", "Altın ons rekorda"}
		_, err := s.MaxSimilarity(ctx, "Endeks bugün artıda", history)
		require.NoError(t, err)
		before := emb.embeds

		sim, err := s.MaxSimilarity(ctx, "Endeks bugün artıda", history)
		require.NoError(t, err)
		assert.Equal(t, before, emb.embeds)
		assert.InDelta(t, 0.91, sim, 0.01)
	})
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Cosine([]float32{1, 0, 0}, []float32{1, 0, 0}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0, 0}, []float32{0, 1, 0}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0, 0}, []float32{-1, 0, 0}), 1e-6)
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
}

func TestLLMParaphraser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := &fakeLLM{reply: `"Endeks bugün güzel gitti."`}
	c := cache.New(100, nil, logger.Discard())
	p := NewLLMParaphraser(client, c, logger.Discard())

	got, err := p.Paraphrase(ctx, "BIST bugün yükseldi.", 1)
	require.NoError(t, err)
	assert.Equal(t, "Endeks bugün güzel gitti.", got)
	assert.Contains(t, client.last.UserPrompt, "BIST bugün yükseldi.")

	again, err := p.Paraphrase(ctx, "BIST bugün yükseldi.", 1)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, client.calls)

	_, err = p.Paraphrase(ctx, "BIST bugün yükseldi.", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)

	same := NewLLMParaphraser(&fakeLLM{reply: "aynı"}, nil, logger.Discard())
	_, err = same.Paraphrase(ctx, "Aynı", 1)
	assert.True(t, apperrors.IsContentRejected(err))
}
