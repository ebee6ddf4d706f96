package prompt

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/llm"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

// Mode says whether the message answers someone or opens a new thread.
type Mode string

const (
	ModeReply Mode = "reply"
	ModeNew   Mode = "new"
)

// Length is the requested message length class.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// Fixed sampling parameters.
const (
	TopP             = 0.95
	FrequencyPenalty = 0.5
)

// Example is one user message and the active bot's answer to it.
type Example struct {
	User string
	Bot  string
}

// Input is everything the user prompt is built from. Empty fields drop their
// section.
type Input struct {
	Bot            *database.Bot
	Topic          string
	Transcript     string
	Examples       []Example
	ReplyExcerpt   string
	ReplyAuthor    string
	MarketTrigger  string
	Mode           Mode
	MentionContext string
	Stances        []database.Stance
	Holdings       []database.Holding
	Memories       []database.Memory
	PastReferences []string
	Length         Length
	PersonaRefresh string
	Reaction       string
	ReactionPhrase string
	ReactionStory  string
	Now            time.Time
}

// IsQuestion reports whether the reply target asks something.
func (in Input) IsQuestion() bool {
	return in.Mode == ModeReply && strings.Contains(in.ReplyExcerpt, "?")
}

// Compose builds the full completion request for in.
func Compose(in Input, rng *rand.Rand) llm.Request {
	tone := ""
	if in.Bot != nil {
		tone = in.Bot.PersonaProfile.V.Tone
		if tone == "" {
			tone = in.Bot.EmotionProfile.V.Tone
		}
	}
	return llm.Request{
		SystemPrompt:     SystemPrompt(in.Bot),
		UserPrompt:       UserPrompt(in),
		Temperature:      Temperature(tone, rng),
		MaxTokens:        MaxTokens(tone, in, rng),
		TopP:             TopP,
		FrequencyPenalty: FrequencyPenalty,
	}
}

// SystemPrompt renders the per-bot system prompt. Everything persona-derived
// goes here so that each bot's outputs stay lexically distinct.
func SystemPrompt(bot *database.Bot) string {
	if bot == nil {
		return fmt.Sprintf(SystemHeader, "Yatırımcı", "yatirimci") + SystemRules
	}
	pp := bot.PersonaProfile.V
	ep := bot.EmotionProfile.V

	var sb strings.Builder
	name := bot.Name
	if name == "" {
		name = bot.Username
	}
	sb.WriteString(fmt.Sprintf(SystemHeader, name, bot.Username))

	sb.WriteString("## KİŞİLİK\n")
	if hint := strings.TrimSpace(bot.PersonaHint); hint != "" {
		sb.WriteString("- " + hint + "\n")
	}
	if pp.Summary != "" {
		sb.WriteString("- " + pp.Summary + "\n")
	}
	if pp.Tone != "" {
		sb.WriteString("- Üslup: " + pp.Tone + "\n")
	}
	if pp.RiskLevel != "" {
		sb.WriteString("- Risk iştahı: " + riskLabel(pp.RiskLevel) + "\n")
	}
	if len(pp.Watchlist) > 0 {
		sb.WriteString("- Takip ettiğin semboller: " + strings.Join(pp.Watchlist, ", ") + "\n")
	}
	for _, h := range pp.StyleHints {
		sb.WriteString("- " + h + "\n")
	}
	if ep.Tone != "" && ep.Tone != pp.Tone {
		sb.WriteString("- Duygusal ton: " + ep.Tone + "\n")
	}
	if ep.SignatureEmoji != "" {
		sb.WriteString("- Sık kullandığın emoji: " + ep.SignatureEmoji + " (her mesajda değil)\n")
	}

	if len(pp.NeverDo) > 0 {
		sb.WriteString("\n## ASLA YAPMA [ÖNEMLİ]\n")
		for _, n := range pp.NeverDo {
			sb.WriteString("- " + n + "\n")
		}
	}

	sb.WriteString(SystemRules)
	return sb.String()
}

func riskLabel(level string) string {
	switch strings.ToLower(level) {
	case "low":
		return "düşük, temkinli"
	case "high":
		return "yüksek, agresif"
	case "moderate":
		return "orta"
	default:
		return level
	}
}

// UserPrompt renders the per-message prompt sections.
func UserPrompt(in Input) string {
	var sb strings.Builder

	section := func(title, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		sb.WriteString("## " + title + "\n" + body + "\n\n")
	}

	section("ZAMAN", TimeOfDay(in.Now))
	section("KONU", in.Topic)
	section("SON MESAJLAR", in.Transcript)

	if len(in.Examples) > 0 {
		var ex strings.Builder
		for _, e := range in.Examples {
			ex.WriteString("Kullanıcı: " + e.User + "\nSen: " + e.Bot + "\n")
		}
		section("DAHA ÖNCEKİ CEVAPLARINDAN ÖRNEKLER", ex.String())
	}

	switch in.Mode {
	case ModeReply:
		reply := "Şu mesaja cevap veriyorsun"
		if in.ReplyAuthor != "" {
			reply += " (" + in.ReplyAuthor + ")"
		}
		reply += ":\n\"" + in.ReplyExcerpt + "\""
		if in.IsQuestion() {
			reply += "\nBu bir soru; doğrudan cevap ver."
		}
		section("MOD: CEVAP", reply)
	default:
		section("MOD: YENİ MESAJ", "Kimseye cevap vermeden konuyla ilgili yeni bir mesaj yaz.")
	}

	if in.MentionContext != "" {
		section("HİTAP", in.MentionContext+" kişisine hitap ediyorsun; adını metinde bir kez kullanabilirsin.")
	}
	section("PİYASA GÜNDEMİ", in.MarketTrigger)
	section("KİŞİLİK HATIRLATMASI", in.PersonaRefresh)
	section("GÖRÜŞLERİN", renderStances(in.Stances, in.Now))
	section("PORTFÖYÜN", renderHoldings(in.Holdings))
	section("HATIRALARIN", renderMemories(in.Memories))

	if len(in.PastReferences) > 0 {
		section("DAHA ÖNCE SÖYLEDİKLERİN", "- "+strings.Join(in.PastReferences, "\n- ")+"\nÇelişme, ama aynı cümleleri de tekrarlama.")
	}

	var tone strings.Builder
	tone.WriteString(in.Reaction)
	if in.ReactionPhrase != "" {
		tone.WriteString("\nUygun düşerse şu sözünü kullan: \"" + in.ReactionPhrase + "\"")
	}
	if in.ReactionStory != "" {
		tone.WriteString("\nUygun düşerse şu anını kısaca an: " + in.ReactionStory)
	}
	section("TON", tone.String())

	section("UZUNLUK", LengthHint(in.Length))
	sb.WriteString("Sadece mesaj metnini yaz.")
	return sb.String()
}

func renderStances(stances []database.Stance, now time.Time) string {
	var sb strings.Builder
	for _, s := range stances {
		line := fmt.Sprintf("- %s: %s (güven %s)", s.Topic, s.StanceText, confidenceLabel(s.Confidence))
		if s.InCooldown(now) {
			line += " [fikrini sert değiştirme]"
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func renderHoldings(holdings []database.Holding) string {
	var sb strings.Builder
	for _, h := range holdings {
		line := fmt.Sprintf("- %s: %g adet, ortalama %.2f", h.Symbol, h.Size, h.AvgPrice)
		if h.Note != "" {
			line += " (" + h.Note + ")"
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func renderMemories(memories []database.Memory) string {
	var sb strings.Builder
	for _, m := range memories {
		sb.WriteString("- " + m.Content + "\n")
	}
	return sb.String()
}

func confidenceLabel(c float64) string {
	switch {
	case c >= 0.7:
		return "yüksek"
	case c >= 0.4:
		return "orta"
	default:
		return "düşük"
	}
}

// LengthHint renders the length instruction.
func LengthHint(l Length) string {
	switch l {
	case LengthShort:
		return "Kısa yaz: tek cümle, en fazla 15 kelime."
	case LengthLong:
		return "Biraz uzun yazabilirsin: 3-4 cümle."
	default:
		return "Orta uzunlukta yaz: 1-2 cümle."
	}
}

// PickLength samples a length class from the weighted profile.
func PickLength(p settings.LengthProfile, rng *rand.Rand) Length {
	p = p.Normalized()
	x := rng.Float64()
	switch {
	case x < p.Short:
		return LengthShort
	case x < p.Short+p.Medium:
		return LengthMedium
	default:
		return LengthLong
	}
}

// TimeOfDay describes the local time and whether the BIST session is open.
func TimeOfDay(now time.Time) string {
	if now.IsZero() {
		return ""
	}
	var part string
	switch h := now.Hour(); {
	case h >= 5 && h < 11:
		part = "sabah"
	case h >= 11 && h < 14:
		part = "öğle"
	case h >= 14 && h < 18:
		part = "öğleden sonra"
	case h >= 18 && h < 22:
		part = "akşam"
	default:
		part = "gece"
	}

	market := "Borsa İstanbul şu an kapalı."
	if wd := now.Weekday(); wd != time.Saturday && wd != time.Sunday {
		if mins := now.Hour()*60 + now.Minute(); mins >= 10*60 && mins < 18*60 {
			market = "Borsa İstanbul seansı açık."
		}
	}
	return fmt.Sprintf("Saat %s (%s). %s", now.Format("15:04"), part, market)
}

// Temperature samples a temperature for tone: measured tones run cooler.
func Temperature(tone string, rng *rand.Rand) float64 {
	if isMeasuredTone(tone) {
		return uniform(rng, 1.05, 1.10)
	}
	return uniform(rng, 1.10, 1.20)
}

// MaxTokens samples the output budget from the tone's base range and scales it
// for short replies, questions and news triggers.
func MaxTokens(tone string, in Input, rng *rand.Rand) int {
	t := lowerTR(tone)
	var lo, hi int
	switch {
	case containsAny(t, "akademik", "academic"):
		lo, hi = 150, 250
	case containsAny(t, "samimi", "rahat", "casual", "genç", "esprili"):
		lo, hi = 80, 150
	default:
		lo, hi = 100, 200
	}
	tokens := float64(lo + rng.IntN(hi-lo+1))

	switch {
	case in.IsQuestion():
		tokens *= uniform(rng, 1.3, 1.4)
	case in.Mode == ModeReply:
		tokens *= uniform(rng, 0.7, 0.8)
	}
	if in.MarketTrigger != "" {
		tokens *= uniform(rng, 1.2, 1.3)
	}
	return int(tokens)
}

func isMeasuredTone(tone string) bool {
	return containsAny(lowerTR(tone), "profesyonel", "akademik", "professional", "academic", "kurumsal", "analitik")
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func lowerTR(s string) string {
	return strings.ToLowerSpecial(unicode.TurkishCase, s)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
