// Package style applies surface-level human texture to generated drafts: a
// deterministic per-bot voice, emotion-driven micro-behaviors and random
// imperfections.
package style

import (
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// VoiceProfile holds per-transform frequencies in [0,1].
type VoiceProfile struct {
	Abbreviation   float64
	QuestionSuffix float64
	DropPeriod     float64
	Lowercase      float64
	Emoji          float64
	Starter        float64
	SignatureEmoji string
}

var (
	abbreviations = map[string]string{
		"tamam":       "tmm",
		"teşekkürler": "tşk",
		"merhaba":     "mrb",
		"selam":       "slm",
		"kardeşim":    "kardo",
		"bilmiyorum":  "bilmiyom",
		"geliyor":     "geliyo",
		"gidiyor":     "gidiyo",
		"yapıyor":     "yapıyo",
		"oluyor":      "oluyo",
		"herhalde":    "herhal",
		"değil":       "dğl",
		"tabii":       "tabi",
	}

	starters = []string{"Valla", "Bence", "Açıkçası", "Bakın", "Yani"}

	questionParticles = map[string]bool{
		"mi": true, "mı": true, "mu": true, "mü": true,
		"misin": true, "mısın": true, "musun": true, "müsün": true,
		"miyiz": true, "mıyız": true, "muyuz": true, "müyüz": true,
	}
)

// VoiceFor derives a profile from the bot's tone. Youthful tones get heavy slang
// and emoji, professional ones almost none.
func VoiceFor(tone, signatureEmoji string) VoiceProfile {
	t := lower(tone)
	var p VoiceProfile
	switch {
	case containsAny(t, "genç", "youth", "esprili", "eğlenceli", "enerjik"):
		p = VoiceProfile{Abbreviation: 0.6, QuestionSuffix: 0.5, DropPeriod: 0.7, Lowercase: 0.6, Emoji: 0.6, Starter: 0.3}
	case containsAny(t, "profesyonel", "akademik", "kurumsal", "analitik", "professional", "academic"):
		p = VoiceProfile{DropPeriod: 0.05, Emoji: 0.02, Starter: 0.05}
	case containsAny(t, "samimi", "rahat", "casual", "sohbet"):
		p = VoiceProfile{Abbreviation: 0.3, QuestionSuffix: 0.25, DropPeriod: 0.4, Lowercase: 0.25, Emoji: 0.35, Starter: 0.25}
	default:
		p = VoiceProfile{Abbreviation: 0.15, QuestionSuffix: 0.1, DropPeriod: 0.25, Lowercase: 0.1, Emoji: 0.2, Starter: 0.15}
	}
	p.SignatureEmoji = signatureEmoji
	return p
}

// Apply rewrites text in the bot's voice. Decisions are seeded by the bot id and
// a canonical form of the text that the transforms themselves do not change, so
// Apply(Apply(x)) == Apply(x).
func (p VoiceProfile) Apply(text string, botID int64) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	seed := voiceSeed(canonical(text), botID)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		words := strings.Fields(line)
		words = p.abbreviate(words, seed)
		if roll(seed, "qsuffix") < p.QuestionSuffix {
			words = joinQuestionParticles(words)
		}
		lines[i] = strings.Join(words, " ")
	}
	text = strings.Join(lines, "\n")

	if roll(seed, "period") < p.DropPeriod {
		text = dropTrailingPeriod(text)
	}
	if roll(seed, "starter") < p.Starter && !startsWithStarter(text) {
		text = starters[int(roll(seed, "starter-pick")*float64(len(starters)))%len(starters)] + " " + text
	}
	if roll(seed, "lower") < p.Lowercase {
		text = lowercaseSentenceStarts(text)
	}
	if p.SignatureEmoji != "" && roll(seed, "emoji") < p.Emoji && !endsWithEmoji(text) {
		text += " " + p.SignatureEmoji
	}
	return text
}

func (p VoiceProfile) abbreviate(words []string, seed uint64) []string {
	if p.Abbreviation <= 0 {
		return words
	}
	for i, w := range words {
		core, pre, post := splitWord(w)
		short, ok := abbreviations[lower(core)]
		if !ok {
			continue
		}
		if roll(seed, "abbr:"+lower(core)) < p.Abbreviation {
			words[i] = pre + short + post
		}
	}
	return words
}

func joinQuestionParticles(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		core, pre, _ := splitWord(w)
		if len(out) > 0 && pre == "" && questionParticles[lower(core)] {
			prev := out[len(out)-1]
			if last := []rune(prev); len(last) > 0 && unicode.IsLetter(last[len(last)-1]) {
				out[len(out)-1] = prev + w
				continue
			}
		}
		out = append(out, w)
	}
	return out
}

func dropTrailingPeriod(s string) string {
	if strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "..") {
		return strings.TrimSuffix(s, ".")
	}
	return s
}

func startsWithStarter(s string) bool {
	fields := wordFields(lower(s))
	return len(fields) > 0 && isStarter(fields[0])
}

func isStarter(word string) bool {
	for _, st := range starters {
		if lower(st) == word {
			return true
		}
	}
	return false
}

func wordFields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !isWordRune(r) })
}

func lowercaseSentenceStarts(s string) string {
	r := []rune(s)
	start := true
	for i, c := range r {
		switch {
		case start && unicode.IsLetter(c):
			r[i] = unicode.TurkishCase.ToLower(c)
			start = false
		case c == '.' || c == '!' || c == '?' || c == '\n':
			start = true
		case start && !unicode.IsSpace(c):
			start = false
		}
	}
	return string(r)
}

// canonical folds away everything Apply can change: case, punctuation, emoji,
// whitespace, abbreviations and a leading starter.
func canonical(s string) string {
	fields := wordFields(lower(s))
	if len(fields) > 0 && isStarter(fields[0]) {
		fields = fields[1:]
	}
	for i, f := range fields {
		if short, ok := abbreviations[f]; ok {
			fields[i] = short
		}
	}
	return strings.Join(fields, "")
}

func voiceSeed(canon string, botID int64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(canon))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatInt(botID, 10)))
	return h.Sum64()
}

// roll returns a stable value in [0,1) for one named decision.
func roll(seed uint64, label string) float64 {
	h := fnv.New64a()
	var b [8]byte
	for i := range b {
		b[i] = byte(seed >> (8 * i))
	}
	_, _ = h.Write(b[:])
	_, _ = h.Write([]byte(label))
	return float64(h.Sum64()>>11) / math.Exp2(53)
}

// splitWord separates leading and trailing non-letter runes from a token.
func splitWord(w string) (core, pre, post string) {
	start := strings.IndexFunc(w, isWordRune)
	if start < 0 {
		return "", w, ""
	}
	end := strings.LastIndexFunc(w, isWordRune)
	_, size := utf8.DecodeRuneInString(w[end:])
	return w[start : end+size], w[:start], w[end+size:]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lower(s string) string {
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
