package prompt

import (
	"database/sql"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

func testBot() *database.Bot {
	return &database.Bot{
		ID:          1,
		Name:        "Ayşe",
		Username:    "ayse_yatirim",
		PersonaHint: "10 yıllık bireysel yatırımcı",
		PersonaProfile: database.NewJSON(database.PersonaProfile{
			Tone:      "samimi",
			RiskLevel: "low",
			Watchlist: []string{"THYAO", "ASELS"},
			NeverDo:   []string{"küfür etmek"},
		}),
		EmotionProfile: database.NewJSON(database.EmotionProfile{SignatureEmoji: "🚀"}),
	}
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()

	got := SystemPrompt(testBot())
	assert.Contains(t, got, "Ayşe (@ayse_yatirim)")
	assert.Contains(t, got, "THYAO, ASELS")
	assert.Contains(t, got, "düşük, temkinli")
	assert.Contains(t, got, "küfür etmek")
	assert.Contains(t, got, "🚀")
	assert.True(t, strings.HasSuffix(got, SystemRules))

	other := testBot()
	other.Name, other.Username = "Mehmet", "mehmet_fx"
	assert.NotEqual(t, got, SystemPrompt(other))

	assert.Contains(t, SystemPrompt(nil), "YAZIM KURALLARI")
}

func TestUserPrompt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 11, 30, 0, 0, time.UTC)

	t.Run("empty history still builds", func(t *testing.T) {
		t.Parallel()
		got := UserPrompt(Input{Mode: ModeNew, Topic: "BIST", Length: LengthShort})
		assert.NotContains(t, got, "SON MESAJLAR")
		assert.Contains(t, got, "MOD: YENİ MESAJ")
		assert.Contains(t, got, "KONU\nBIST")
		assert.True(t, strings.HasSuffix(got, "Sadece mesaj metnini yaz."))
	})

	t.Run("reply with everything", func(t *testing.T) {
		t.Parallel()
		in := Input{
			Bot:            testBot(),
			Topic:          "FX",
			Transcript:     "[Ali]: dolar ne olur?",
			Examples:       []Example{{User: "altın?", Bot: "bekliyorum"}},
			ReplyExcerpt:   "dolar ne olur?",
			ReplyAuthor:    "Ali",
			MarketTrigger:  "TCMB faizi sabit tuttu",
			Mode:           ModeReply,
			MentionContext: "@ali",
			Stances: []database.Stance{{
				Topic: "FX", StanceText: "dolar yatay", Confidence: 0.8,
				CooldownUntil: sql.NullTime{Time: now.Add(time.Hour), Valid: true},
			}},
			Holdings:       []database.Holding{{Symbol: "USD", Size: 100, AvgPrice: 36.5}},
			Memories:       []database.Memory{{Content: "2018'de kur şokunu yaşadım"}},
			PastReferences: []string{"dolar bu ay yatay kalır"},
			Length:         LengthLong,
			PersonaRefresh: "bireysel yatırımcı | üslup: kısa",
			Reaction:       "okurun duygusunu yansıt",
			ReactionPhrase: "sabır kazandırır",
			Now:            now,
		}
		got := UserPrompt(in)
		for _, want := range []string{
			"ZAMAN\nSaat 11:30 (öğle). Borsa İstanbul seansı açık.",
			"SON MESAJLAR\n[Ali]: dolar ne olur?",
			"Kullanıcı: altın?\nSen: bekliyorum",
			"Şu mesaja cevap veriyorsun (Ali)",
			"Bu bir soru",
			"@ali kişisine",
			"TCMB faizi sabit tuttu",
			"KİŞİLİK HATIRLATMASI",
			"FX: dolar yatay (güven yüksek) [fikrini sert değiştirme]",
			"USD: 100 adet, ortalama 36.50",
			"2018'de kur şokunu yaşadım",
			"dolar bu ay yatay kalır",
			"sabır kazandırır",
			"3-4 cümle",
		} {
			assert.Contains(t, got, want)
		}
	})
}

func TestTimeOfDay(t *testing.T) {
	t.Parallel()

	saturday := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	assert.Contains(t, TimeOfDay(saturday), "kapalı")
	assert.Contains(t, TimeOfDay(time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)), "(gece)")
	assert.Empty(t, TimeOfDay(time.Time{}))
}

func TestDynamicParams(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))

	t.Run("temperature", func(t *testing.T) {
		t.Parallel()
		rng := rand.New(rand.NewPCG(1, 2))
		for range 100 {
			p := Temperature("Profesyonel analist", rng)
			assert.GreaterOrEqual(t, p, 1.05)
			assert.LessOrEqual(t, p, 1.10)
			c := Temperature("samimi", rng)
			assert.GreaterOrEqual(t, c, 1.10)
			assert.LessOrEqual(t, c, 1.20)
		}
	})

	tests := []struct {
		name   string
		tone   string
		in     Input
		lo, hi int
	}{
		{name: "academic new", tone: "akademik", in: Input{Mode: ModeNew}, lo: 150, hi: 250},
		{name: "casual new", tone: "samimi", in: Input{Mode: ModeNew}, lo: 80, hi: 150},
		{name: "default new", tone: "", in: Input{Mode: ModeNew}, lo: 100, hi: 200},
		{name: "reply statement", tone: "", in: Input{Mode: ModeReply, ReplyExcerpt: "dolar yükseldi"}, lo: 69, hi: 160},
		{name: "reply question", tone: "", in: Input{Mode: ModeReply, ReplyExcerpt: "dolar?"}, lo: 129, hi: 280},
		{name: "news trigger", tone: "", in: Input{Mode: ModeNew, MarketTrigger: "haber"}, lo: 119, hi: 260},
	}
	for _, tt := range tests {
		for range 50 {
			got := MaxTokens(tt.tone, tt.in, rng)
			assert.GreaterOrEqual(t, got, tt.lo, tt.name)
			assert.LessOrEqual(t, got, tt.hi, tt.name)
		}
	}

	req := Compose(Input{Bot: testBot(), Mode: ModeNew}, rng)
	assert.Equal(t, TopP, req.TopP)
	assert.Equal(t, FrequencyPenalty, req.FrequencyPenalty)
	assert.NotEmpty(t, req.SystemPrompt)
}

func TestPickLength(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(4, 4))
	counts := map[Length]int{}
	for range 2000 {
		counts[PickLength(settings.LengthProfile{Short: 0.55, Medium: 0.35, Long: 0.10}, rng)]++
	}
	assert.InDelta(t, 0.55, float64(counts[LengthShort])/2000, 0.05)
	assert.InDelta(t, 0.10, float64(counts[LengthLong])/2000, 0.04)

	assert.Equal(t, LengthLong, PickLength(settings.LengthProfile{Long: 1}, rng))
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		answer string
		want   string
		keep   bool
	}{
		{"OK", "taslak", true},
		{" ok. ", "taslak", true},
		{"", "taslak", true},
		{"RED", "", false},
		{"Dolar biraz daha yatay kalabilir gibi.", "Dolar biraz daha yatay kalabilir gibi.", true},
	}
	for _, tt := range tests {
		got, keep := ParseVerdict("taslak", tt.answer)
		assert.Equal(t, tt.keep, keep, tt.answer)
		assert.Equal(t, tt.want, got, tt.answer)
	}
}

func TestGuardRequests(t *testing.T) {
	t.Parallel()

	now := time.Now()
	req := ConsistencyCheck("kripto uçar", []database.Stance{{
		Topic: "Kripto", StanceText: "temkinliyim", CooldownUntil: sql.NullTime{Time: now.Add(time.Minute), Valid: true},
	}}, now)
	require.NotEmpty(t, req.UserPrompt)
	assert.Contains(t, req.UserPrompt, "Kripto: temkinliyim (soğuma süresinde)")
	assert.Contains(t, req.UserPrompt, "kripto uçar")

	p := Paraphrase("BIST bugün yükseldi.")
	assert.Contains(t, p.UserPrompt, "BIST bugün yükseldi.")
}
