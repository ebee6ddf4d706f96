package persona

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyasasohbet/piyasabot/internal/database"
)

func TestTracker(t *testing.T) {
	t.Parallel()

	t.Run("first message is due", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker(nil)
		assert.True(t, tr.Due(1, 8, 30))
	})

	t.Run("count threshold", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker(nil)
		tr.Commit(1, true)
		for range 8 {
			assert.False(t, tr.Due(1, 8, 30))
			tr.Commit(1, false)
		}
		assert.True(t, tr.Due(1, 8, 30))

		tr.Commit(1, true)
		st, ok := tr.State(1)
		require.True(t, ok)
		assert.Equal(t, 0, st.MessagesSince)
	})

	t.Run("time threshold", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
		tr := NewTracker(func() time.Time { return now })
		tr.Commit(1, true)
		assert.False(t, tr.Due(1, 8, 30))

		now = now.Add(31 * time.Minute)
		assert.True(t, tr.Due(1, 8, 30))
	})

	t.Run("bots are independent", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker(nil)
		tr.Commit(1, true)
		assert.False(t, tr.Due(1, 8, 30))
		assert.True(t, tr.Due(2, 8, 30))
	})
}

func TestSummary(t *testing.T) {
	t.Parallel()

	bot := &database.Bot{
		PersonaHint: "emekli öğretmen",
		PersonaProfile: database.NewJSON(database.PersonaProfile{
			StyleHints: []string{"kısa cümleler", "bol soru"},
		}),
		EmotionProfile: database.NewJSON(database.EmotionProfile{
			SignaturePhrases: []string{"sabır kazandırır", "trend dostundur", "fazlası"},
		}),
	}

	got := Summary(bot)
	assert.Equal(t, `emekli öğretmen | üslup: kısa cümleler | imza sözler: "sabır kazandırır", "trend dostundur"`, got)
	assert.Empty(t, Summary(&database.Bot{}))
}

func TestBuildPlan(t *testing.T) {
	t.Parallel()

	ep := database.EmotionProfile{
		Tone:             "samimi",
		Empathy:          0.8,
		Energy:           "yüksek",
		SignatureEmoji:   "🚀",
		SignaturePhrases: []string{"sabır kazandırır"},
		Anecdotes:        []string{"2018 kur şokunda çok şey öğrendim"},
	}

	plan := BuildPlan(ep, "", rand.New(rand.NewPCG(1, 2)))
	assert.Contains(t, plan.Directive, "ton=samimi")
	assert.Contains(t, plan.Directive, "empati=yüksek")
	assert.Contains(t, plan.Directive, "enerji=yüksek")
	assert.Equal(t, TempoFast, plan.Tempo)

	sawPhrase, sawEmoji := false, false
	rng := rand.New(rand.NewPCG(3, 4))
	for range 200 {
		p := BuildPlan(ep, "", rng)
		sawPhrase = sawPhrase || p.Phrase == "sabır kazandırır"
		sawEmoji = sawEmoji || p.Emoji == "🚀"
	}
	assert.True(t, sawPhrase)
	assert.True(t, sawEmoji)

	empty := BuildPlan(database.EmotionProfile{}, "", rand.New(rand.NewPCG(1, 1)))
	assert.Contains(t, empty.Directive, "ton=dengeli")
	assert.Empty(t, empty.Phrase)
	assert.Empty(t, empty.Emoji)
}

func TestTempo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
	}{
		{"Enerjik", TempoFast},
		{"piyasa sakin seyrediyor", TempoCalm},
		{"orta", TempoDefault},
		{"", TempoDefault},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tempo(tt.in), tt.in)
	}
}

func TestPlanApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		plan Plan
		in   string
		want string
	}{
		{name: "nothing planned", plan: Plan{}, in: " Dolar yatay ", want: "Dolar yatay"},
		{name: "phrase appended", plan: Plan{Phrase: "sabır kazandırır"}, in: "Dolar yatay", want: "Dolar yatay sabır kazandırır"},
		{name: "phrase already there", plan: Plan{Phrase: "sabır kazandırır"}, in: "Sabır kazandırır, dolar yatay", want: "Sabır kazandırır, dolar yatay"},
		{name: "anecdote as sentence", plan: Plan{Anecdote: "2018'de kur şokunu yaşadım"}, in: "Dolar yatay", want: "Dolar yatay. 2018'de kur şokunu yaşadım."},
		{name: "emoji once", plan: Plan{Emoji: "🚀"}, in: "Endeks uçar", want: "Endeks uçar 🚀"},
		{name: "emoji present", plan: Plan{Emoji: "🚀"}, in: "Endeks 🚀 uçar", want: "Endeks 🚀 uçar"},
		{name: "empty stays empty", plan: Plan{Phrase: "x", Emoji: "🚀"}, in: "  ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.plan.Apply(tt.in))
		})
	}
}
