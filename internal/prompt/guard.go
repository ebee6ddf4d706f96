package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/llm"
)

// ConsistencyCheck builds the consistency-guard request for draft.
func ConsistencyCheck(draft string, stances []database.Stance, now time.Time) llm.Request {
	var sb strings.Builder
	for _, s := range stances {
		sb.WriteString(fmt.Sprintf("- %s: %s", s.Topic, s.StanceText))
		if s.InCooldown(now) {
			sb.WriteString(" (soğuma süresinde)")
		}
		sb.WriteString("\n")
	}
	return llm.Request{
		UserPrompt:  fmt.Sprintf(ConsistencyGuardInstruction, sb.String(), draft),
		Temperature: 0.3,
		MaxTokens:   250,
	}
}

// ParseVerdict interprets a consistency-guard answer. It returns the text to
// keep and false when the draft must be dropped.
func ParseVerdict(draft, answer string) (string, bool) {
	a := strings.Trim(strings.TrimSpace(answer), `"'.`)
	switch strings.ToUpper(a) {
	case "", VerdictOK:
		return draft, true
	case VerdictReject:
		return "", false
	}
	return strings.TrimSpace(answer), true
}

// Paraphrase builds the paraphrase request for draft.
func Paraphrase(draft string) llm.Request {
	return llm.Request{
		UserPrompt:       fmt.Sprintf(ParaphraseInstruction, draft),
		Temperature:      1.0,
		MaxTokens:        200,
		TopP:             TopP,
		FrequencyPenalty: FrequencyPenalty,
	}
}
