package text

import (
	"strings"
	"unicode"

	errs "github.com/piyasasohbet/piyasabot/internal/errors"
)

// normalizeLineWhitespace collapses consecutive whitespace into a single space and
// trims the line.
func normalizeLineWhitespace(line string) string {
	var strBuilder strings.Builder

	var space bool

	for _, r := range line {
		if unicode.IsSpace(r) {
			if !space {
				strBuilder.WriteRune(' ')

				space = true
			}
		} else {
			strBuilder.WriteRune(r)

			space = false
		}
	}

	return strings.TrimSpace(strBuilder.String())
}

// Sanitize cleans an LLM draft:
//
//  1. strips echoed transcript prefixes ("[speaker]: ")
//  2. normalizes line endings and invisible Unicode characters
//  3. removes control characters and collapses whitespace per line
//  4. squeezes 3+ newlines to a blank line
//  5. unwraps quotes that enclose the whole draft
//
// An empty result is reported as a content rejection so callers abort the tick.
func Sanitize(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", errs.NewContentRejectedError("empty draft", nil)
	}

	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = unicodeReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, " ")

	parts := strings.Split(s, "\n")
	for i := range parts {
		parts[i] = normalizeLineWhitespace(speakerPrefixRegex.ReplaceAllString(parts[i], ""))
	}

	s = strings.Join(parts, "\n")
	s = multipleNewlinesRegex.ReplaceAllString(s, "\n\n")
	s = unwrapQuotes(strings.TrimSpace(s))

	if s == "" {
		return "", errs.NewContentRejectedError("draft empty after sanitization", nil)
	}

	return s, nil
}

func unwrapQuotes(s string) string {
	for _, q := range wrappingQuotes {
		if len(s) > len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			if !strings.Contains(inner, q[0]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}

// TruncateRunes cuts s to at most n runes, appending "…" when something was cut.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
