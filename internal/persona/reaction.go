package persona

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/piyasasohbet/piyasabot/internal/database"
)

// Tempo multipliers applied to typing duration.
const (
	TempoFast    = 0.85
	TempoCalm    = 1.15
	TempoDefault = 1.0
)

const (
	phraseProbability   = 0.35
	anecdoteProbability = 0.2
	emojiProbability    = 0.5
)

var (
	energeticKeywords = []string{
		"yüksek", "enerjik", "heyecan", "coşku", "hızlı", "agresif",
		"ralli", "sert", "çöküş", "patladı", "uçtu", "rekor", "panik",
	}
	calmKeywords = []string{
		"sakin", "düşük", "ölçülü", "temkinli", "yavaş", "dingin", "yatay", "durgun",
	}
)

// Plan is how the next message should be emotionally colored.
type Plan struct {
	Directive string
	Phrase    string
	Anecdote  string
	Emoji     string
	Tempo     float64
}

// BuildPlan synthesizes a reaction plan from the emotion profile and the market
// trigger, if any.
func BuildPlan(ep database.EmotionProfile, trigger string, rng *rand.Rand) Plan {
	tone := strings.TrimSpace(ep.Tone)
	if tone == "" {
		tone = "dengeli"
	}
	energy := strings.TrimSpace(ep.Energy)
	if energy == "" {
		energy = "orta"
	}

	plan := Plan{
		Directive: fmt.Sprintf("okurun duygusunu yansıt; paniğe kapılma; ton=%s; empati=%s; enerji=%s",
			tone, level(ep.Empathy), energy),
		Tempo: Tempo(energy + " " + trigger),
	}
	if len(ep.SignaturePhrases) > 0 && rng.Float64() < phraseProbability {
		plan.Phrase = ep.SignaturePhrases[rng.IntN(len(ep.SignaturePhrases))]
	}
	if len(ep.Anecdotes) > 0 && rng.Float64() < anecdoteProbability {
		plan.Anecdote = ep.Anecdotes[rng.IntN(len(ep.Anecdotes))]
	}
	if ep.SignatureEmoji != "" && rng.Float64() < emojiProbability {
		plan.Emoji = ep.SignatureEmoji
	}
	return plan
}

// Tempo maps energy keywords in s onto a typing-speed multiplier.
func Tempo(s string) float64 {
	lower := strings.ToLowerSpecial(unicode.TurkishCase, s)
	for _, kw := range energeticKeywords {
		if strings.Contains(lower, kw) {
			return TempoFast
		}
	}
	for _, kw := range calmKeywords {
		if strings.Contains(lower, kw) {
			return TempoCalm
		}
	}
	return TempoDefault
}

func level(v float64) string {
	switch {
	case v > 0.7:
		return "yüksek"
	case v >= 0.4:
		return "orta"
	default:
		return "düşük"
	}
}

// maxAnecdoteTextRunes keeps injected anecdotes out of long drafts.
const maxAnecdoteTextRunes = 200

// Apply injects the planned signature phrase, anecdote and emoji into text when the
// model left them out.
func (p Plan) Apply(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	folded := strings.ToLowerSpecial(unicode.TurkishCase, text)
	if p.Phrase != "" && !strings.Contains(folded, strings.ToLowerSpecial(unicode.TurkishCase, p.Phrase)) {
		text = strings.TrimRight(text, " ") + " " + p.Phrase
	}
	if p.Anecdote != "" && utf8.RuneCountInString(text) < maxAnecdoteTextRunes &&
		!strings.Contains(folded, strings.ToLowerSpecial(unicode.TurkishCase, p.Anecdote)) {
		text = withSentenceEnd(text) + " " + withSentenceEnd(p.Anecdote)
	}
	if p.Emoji != "" && !strings.Contains(text, p.Emoji) {
		text += " " + p.Emoji
	}
	return text
}

func withSentenceEnd(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if r, _ := utf8.DecodeLastRuneInString(s); strings.ContainsRune(".!?…", r) {
		return s
	}
	return s + "."
}
