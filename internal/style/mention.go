package style

import (
	"math/rand/v2"
	"strings"
)

const mentionPrefixProbability = 0.6

// InsertMention adds handle to text unless it is already there: as a prefix 60%
// of the time, otherwise as a suffix.
func InsertMention(text, handle string, rng *rand.Rand) string {
	handle = strings.TrimSpace(handle)
	if handle == "" || strings.Contains(lower(text), lower(handle)) {
		return text
	}
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	if rng.Float64() < mentionPrefixProbability {
		return handle + " " + text
	}
	return text + " " + handle
}
