package style

import (
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/piyasasohbet/piyasabot/internal/database"
)

const (
	zeroWidthJoiner   = '\u200d'
	variationSelector = '\ufe0f'
	maxTrailingEmoji  = 2
)

var microFillers = []string{"yani", "hani", "aslında", "işte"}

// MicroBehaviors applies emotion-driven texture: ellipsis for calm profiles,
// emoji placement normalization and filler sprinkling for energetic ones.
func MicroBehaviors(text string, ep database.EmotionProfile, rng *rand.Rand) string {
	mood := lower(ep.Tone + " " + ep.Energy)
	calm := containsAny(mood, "sakin", "düşük", "temkinli", "melankolik", "ölçülü")
	energetic := containsAny(mood, "yüksek", "enerjik", "coşkulu", "heyecanlı")

	ellipsis := 0.1
	if calm {
		ellipsis = 0.3
	}
	if rng.Float64() < ellipsis {
		text = addEllipsis(text)
	}

	text = NormalizeEmoji(text)

	filler := 0.12
	if energetic {
		filler = 0.25
	}
	if rng.Float64() < filler {
		text = insertAfterFirstClause(text, microFillers[rng.IntN(len(microFillers))])
	}
	return text
}

func addEllipsis(text string) string {
	if i := strings.Index(text, ", "); i > 0 {
		return text[:i] + "... " + text[i+2:]
	}
	if strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "...") {
		return strings.TrimSuffix(text, ".") + "..."
	}
	return text
}

// insertAfterFirstClause puts word after the first comma, or after the first
// word when there is none.
func insertAfterFirstClause(text, word string) string {
	if i := strings.Index(text, ", "); i > 0 {
		return text[:i+2] + word + " " + text[i+2:]
	}
	first, rest, ok := strings.Cut(text, " ")
	if !ok || rest == "" {
		return text
	}
	return first + " " + word + " " + rest
}

// NormalizeEmoji moves emoji out of the sentence body to the end and keeps at
// most two of them.
func NormalizeEmoji(text string) string {
	body, clusters := extractEmoji(text)
	if len(clusters) == 0 {
		return text
	}
	if body == "" {
		return text
	}

	seen := make(map[string]bool, len(clusters))
	var tail []string
	for _, c := range clusters {
		if seen[c] {
			continue
		}
		seen[c] = true
		tail = append(tail, c)
		if len(tail) == maxTrailingEmoji {
			break
		}
	}
	return body + " " + strings.Join(tail, "")
}

// extractEmoji splits text into its emoji-free body and emoji clusters.
func extractEmoji(text string) (string, []string) {
	var body strings.Builder
	var clusters []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			clusters = append(clusters, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case isEmoji(r):
			cur.WriteRune(r)
			for i+1 < len(runes) && (runes[i+1] == variationSelector || isSkinTone(runes[i+1])) {
				i++
				cur.WriteRune(runes[i])
			}
			if i+1 < len(runes) && runes[i+1] == zeroWidthJoiner {
				i++
				cur.WriteRune(runes[i])
				continue
			}
			flush()
		case r == variationSelector || r == zeroWidthJoiner:
		default:
			flush()
			body.WriteRune(r)
		}
	}
	flush()
	return collapseSpaces(body.String()), clusters
}

func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return !isSkinTone(r)
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F000 && r <= 0x1F2FF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return unicode.Is(unicode.So, r)
	}
	return false
}

func isSkinTone(r rune) bool {
	return r >= 0x1F3FB && r <= 0x1F3FF
}

func endsWithEmoji(s string) bool {
	s = strings.TrimRight(s, " ")
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r == variationSelector || isSkinTone(r) {
			s = s[:len(s)-size]
			continue
		}
		return isEmoji(r)
	}
	return false
}

// ContainsEmoji reports whether text has any emoji rune.
func ContainsEmoji(text string) bool {
	return strings.IndexFunc(text, isEmoji) >= 0
}
