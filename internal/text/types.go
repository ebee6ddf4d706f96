// Package text cleans LLM drafts before they enter the content pipeline. It strips
// transcript prefixes the model echoes back, invisible characters and quote wrapping.
package text

import (
	"regexp"
	"strings"
)

var (
	// controlCharsRegex matches ASCII control characters (including DEL) except tab and newline.
	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	multipleNewlinesRegex = regexp.MustCompile(`\n{3,}`)

	// speakerPrefixRegex matches transcript line prefixes such as "[Ayşe]: " or "[@borsaci_bot]:".
	speakerPrefixRegex = regexp.MustCompile(`^\s*\[[^\]\n]{1,40}\]:\s*`)

	// wrappingQuotes are stripped when they enclose the whole draft.
	wrappingQuotes = [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}, {"«", "»"}}

	unicodeReplacer = strings.NewReplacer(
		"\u2060", "",
		"\uFEFF", "",
		"\u00AD", "",
		"\u200E", "",
		"\u200F", "",
		"\u2028", "\n",
		"\u2029", "\n\n",
		"\u200B", "",
		"\u200C", "",
		"\u2009", " ",
		"\u202F", " ",
		"\u3000", " ",
		"\u00A0", " ",
	)
)
