package style

import (
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Imperfections are the per-pass probabilities of the human-imperfection layer.
type Imperfections struct {
	Opener     float64
	Hesitation float64
	Colloquial float64
	Filler     float64
	Typo       float64
}

var (
	// DefaultImperfections is used for proactive messages.
	DefaultImperfections = Imperfections{Opener: 0.25, Hesitation: 0.30, Colloquial: 0.18, Filler: 0.20, Typo: 0.15}
	// PriorityImperfections is used for replies to users.
	PriorityImperfections = Imperfections{Opener: 0.35, Hesitation: 0.30, Colloquial: 0.18, Filler: 0.25, Typo: 0.15}
)

var (
	openers           = []string{"Arkadaşlar", "Ya", "Şöyle ki", "Dostlar", "Ee"}
	hesitationMarkers = []string{"hmm", "şey", "nasıl desem", "bilemedim ama"}
	fillerWords       = []string{"yani", "işte", "hani", "aslında", "açıkçası"}

	colloquialisms = [][2]string{
		{"değil mi", "di mi"},
		{"ne yapacağız", "n'apcaz"},
		{"ne yapıyorsun", "napıyon"},
		{"bir şey", "bi şey"},
		{"bir de", "bi de"},
		{"bilmiyorum", "bilmiyom"},
		{"yapacağım", "yapcam"},
		{"olacak", "olcak"},
		{"gerçekten", "cidden"},
		{"ne oldu", "n'oldu"},
	}
)

// Apply runs opener, hesitation, colloquial shortcut, filler and
// typo-with-correction in that order. Each pass either mutates or no-ops.
func (im Imperfections) Apply(text string, rng *rand.Rand) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if rng.Float64() < im.Opener {
		text = addOpener(text, openers[rng.IntN(len(openers))])
	}
	if rng.Float64() < im.Hesitation {
		text = addHesitation(text, hesitationMarkers[rng.IntN(len(hesitationMarkers))])
	}
	if rng.Float64() < im.Colloquial {
		text = colloquialize(text, rng)
	}
	if rng.Float64() < im.Filler {
		text = sprinkleFiller(text, fillerWords[rng.IntN(len(fillerWords))], rng)
	}
	if rng.Float64() < im.Typo {
		text = typoWithCorrection(text, rng)
	}
	return text
}

func addOpener(text, opener string) string {
	if strings.HasPrefix(lower(text), lower(opener)) {
		return text
	}
	return opener + ", " + lowerFirst(text)
}

func addHesitation(text, marker string) string {
	if i := strings.Index(text, ", "); i > 0 {
		return text[:i] + ", " + marker + ", " + text[i+2:]
	}
	return upperFirst(marker) + "... " + lowerFirst(text)
}

func colloquialize(text string, rng *rand.Rand) string {
	var candidates [][2]string
	for _, c := range colloquialisms {
		if strings.Contains(text, c[0]) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return text
	}
	c := candidates[rng.IntN(len(candidates))]
	return strings.Replace(text, c[0], c[1], 1)
}

func sprinkleFiller(text, filler string, rng *rand.Rand) string {
	words := strings.Split(text, " ")
	if len(words) < 4 {
		return text
	}
	pos := 1 + rng.IntN(len(words)-2)
	out := make([]string, 0, len(words)+1)
	out = append(out, words[:pos]...)
	out = append(out, filler)
	out = append(out, words[pos:]...)
	return strings.Join(out, " ")
}

// typoWithCorrection swaps two inner letters of one word and appends the
// "*fix" correction the way people do in chat.
func typoWithCorrection(text string, rng *rand.Rand) string {
	var candidates []string
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) >= 5 && isLetters(w) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return text
	}
	word := candidates[rng.IntN(len(candidates))]
	r := []rune(word)
	for attempt := 0; attempt < 3; attempt++ {
		i := 1 + rng.IntN(len(r)-3)
		if r[i] == r[i+1] {
			continue
		}
		r[i], r[i+1] = r[i+1], r[i]
		return strings.Replace(text, word, string(r), 1) + " *" + word
	}
	return text
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || !unicode.IsUpper(r) {
		return s
	}
	// Keep acronyms such as BIST or USD intact.
	if next, _ := utf8.DecodeRuneInString(s[size:]); unicode.IsUpper(next) {
		return s
	}
	return string(unicode.TurkishCase.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.TurkishCase.ToUpper(r)) + s[size:]
}
