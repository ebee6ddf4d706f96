// Package market holds the keyword-level market vocabulary: topic keywords, ticker
// detection and a coarse sentiment score for Turkish chat text.
package market

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Sentiments.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// topicKeywords maps each topic onto word prefixes. Multi-word entries match as phrases.
var topicKeywords = map[string][]string{
	"BIST": {
		"bist", "borsa", "endeks", "xu100", "xu030", "hisse", "temettü", "halka arz", "tavan",
		"taban", "bilanço", "thyao", "asels", "garan", "akbnk", "eregl", "sasa", "kchol", "tuprs", "bimas", "sise",
	},
	"FX": {
		"dolar", "euro", "avro", "kur=", "kurlar", "kurda", "usd", "eur", "döviz", "sterlin", "parite", "usdtry", "eurtry",
	},
	"Kripto": {
		"kripto", "bitcoin", "btc", "eth=", "ethereum", "coin", "altcoin", "binance", "usdt", "solana", "blockchain",
	},
	"Makro": {
		"faiz", "enflasyon", "tcmb", "merkez bankası", "fed=", "tüfe", "üfe", "büyüme", "cari açık", "ppk",
		"rezerv", "cds", "işsizlik", "bütçe",
	},
	"Emtia": {
		"altın", "gram altın", "ons=", "petrol", "brent", "gümüş", "emtia", "doğalgaz",
	},
}

// Keywords returns the keyword list of topic, or nil for an unknown topic.
func Keywords(topic string) []string {
	for t, kws := range topicKeywords {
		if strings.EqualFold(t, topic) {
			return kws
		}
	}
	return nil
}

// Topics lists every topic with keywords, sorted.
func Topics() []string {
	out := make([]string, 0, len(topicKeywords))
	for t := range topicKeywords {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Lower folds s for keyword matching: Turkish lower-casing, then dotless ı folded to i
// so that "BIST" and "bist" agree.
func Lower(s string) string {
	return strings.ReplaceAll(strings.ToLowerSpecial(unicode.TurkishCase, s), "ı", "i")
}

func words(lowered string) []string {
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// countKeyword counts occurrences of kw in the word list. Single words match as
// prefixes so inflected forms ("dolara", "faizler") still count; a trailing "=" asks
// for a whole-word match.
func countKeyword(lowered string, ws []string, kw string) int {
	exact := strings.HasSuffix(kw, "=")
	kw = Lower(strings.TrimSuffix(kw, "="))
	if strings.Contains(kw, " ") {
		return strings.Count(lowered, kw)
	}
	n := 0
	for _, w := range ws {
		if w == kw || (!exact && strings.HasPrefix(w, kw)) {
			n++
		}
	}
	return n
}

// TopicScores counts keyword hits per topic. Topics without hits are absent.
func TopicScores(text string) map[string]int {
	lowered := Lower(text)
	ws := words(lowered)
	scores := make(map[string]int)
	for topic, kws := range topicKeywords {
		for _, kw := range kws {
			if n := countKeyword(lowered, ws, kw); n > 0 {
				scores[topic] += n
			}
		}
	}
	return scores
}

// MatchesTopic reports whether text contains any keyword of topic. An unknown topic
// matches when its own name appears in text.
func MatchesTopic(text, topic string) bool {
	lowered := Lower(text)
	ws := words(lowered)
	kws := Keywords(topic)
	if kws == nil {
		kws = []string{topic + "="}
	}
	for _, kw := range kws {
		if countKeyword(lowered, ws, kw) > 0 {
			return true
		}
	}
	return false
}

// DetectTopics returns the topics mentioned in text, strongest first.
func DetectTopics(text string) []string {
	scores := TopicScores(text)
	out := make([]string, 0, len(scores))
	for t := range scores {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b string) int {
		if scores[a] != scores[b] {
			return scores[b] - scores[a]
		}
		return strings.Compare(a, b)
	})
	return out
}

var cashtag = regexp.MustCompile(`\$([A-Za-z][A-Za-z0-9]{1,9})`)

var knownTickers = map[string]struct{}{
	"THYAO": {}, "ASELS": {}, "GARAN": {}, "AKBNK": {}, "EREGL": {}, "SASA": {}, "KCHOL": {},
	"TUPRS": {}, "BIMAS": {}, "SISE": {}, "YKBNK": {}, "ISCTR": {}, "FROTO": {}, "PGSUS": {},
	"XU100": {}, "XU030": {}, "BTC": {}, "ETH": {}, "SOL": {}, "USDT": {}, "USDTRY": {},
	"EURTRY": {}, "XAUUSD": {}, "BRENT": {},
}

// Symbols returns the tickers in text in order of first appearance: every $CASHTAG
// plus bare tokens that are known tickers.
func Symbols(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.ToUpperSpecial(unicode.TurkishCase, s)
		s = strings.ReplaceAll(s, "İ", "I")
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, m := range cashtag.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, ok := knownTickers[strings.ToUpper(w)]; ok && w == strings.ToUpper(w) {
			add(w)
		}
	}
	return out
}

// SymbolOverlap counts watchlist symbols that text mentions.
func SymbolOverlap(text string, watchlist []string) int {
	if len(watchlist) == 0 {
		return 0
	}
	lowered := Lower(text)
	ws := words(lowered)
	n := 0
	for _, sym := range watchlist {
		if sym = strings.TrimPrefix(Lower(sym), "$"); sym == "" {
			continue
		}
		if slices.Contains(ws, sym) {
			n++
		}
	}
	return n
}

var (
	positiveWords = []string{
		"yüksel", "rekor", "tavan", "kazan", "ralli", "güçlü", "pozitif", "uçtu", "uçuş", "yeşil",
		"toparlan", "artış", "artıda", "iyimser", "boğa",
	}
	negativeWords = []string{
		"düştü", "düşüş", "düşüyor", "düşecek", "çök", "kayıp", "kaybet", "taban", "panik", "negatif",
		"zarar", "kırmızı", "endişe", "korku", "satış baskısı", "eridi", "kriz", "battı",
	}
)

// Sentiment classifies text by counting positive and negative keywords.
func Sentiment(text string) string {
	lowered := Lower(text)
	ws := words(lowered)
	score := 0
	for _, kw := range positiveWords {
		score += countKeyword(lowered, ws, kw)
	}
	for _, kw := range negativeWords {
		score -= countKeyword(lowered, ws, kw)
	}
	if strings.Contains(text, "🚀") || strings.Contains(text, "📈") {
		score++
	}
	if strings.Contains(text, "📉") || strings.Contains(text, "😱") {
		score--
	}
	switch {
	case score > 0:
		return SentimentPositive
	case score < 0:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
