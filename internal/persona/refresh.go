// Package persona derives prompt material from a bot's persona and emotion
// profiles: periodic persona summaries and per-message reaction plans.
package persona

import (
	"strings"
	"sync"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
)

// RefreshState is the per-bot persona refresh bookkeeping.
type RefreshState struct {
	MessagesSince int
	Last          time.Time
}

// Tracker holds refresh state for the bots owned by this worker. State is not
// persisted; a bot with no state is due on its first message after start.
type Tracker struct {
	mu    sync.Mutex
	state map[int64]RefreshState
	now   func() time.Time
}

// NewTracker creates an empty tracker that reads time from now. nil means time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		state: make(map[int64]RefreshState),
		now:   now,
	}
}

// Due reports whether the bot's next message should carry a persona summary.
func (t *Tracker) Due(botID int64, interval, minutes int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state[botID]
	if !ok {
		return true
	}
	if interval > 0 && st.MessagesSince >= interval {
		return true
	}
	return minutes > 0 && t.now().Sub(st.Last) > time.Duration(minutes)*time.Minute
}

// Commit records a persisted message. refreshed resets the counters, otherwise
// the message count grows. Aborted ticks must not call Commit.
func (t *Tracker) Commit(botID int64, refreshed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if refreshed {
		t.state[botID] = RefreshState{Last: t.now()}
		return
	}
	st, ok := t.state[botID]
	if !ok {
		st.Last = t.now()
	}
	st.MessagesSince++
	t.state[botID] = st
}

// State returns a copy of the bot's state.
func (t *Tracker) State(botID int64) (RefreshState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.state[botID]
	return st, ok
}

// Summary renders the compact persona line: summary | style hint | up to two
// signature phrases. Empty parts are skipped.
func Summary(bot *database.Bot) string {
	pp := bot.PersonaProfile.V
	ep := bot.EmotionProfile.V

	var parts []string
	summary := strings.TrimSpace(pp.Summary)
	if summary == "" {
		summary = strings.TrimSpace(bot.PersonaHint)
	}
	if summary != "" {
		parts = append(parts, summary)
	}
	if len(pp.StyleHints) > 0 {
		parts = append(parts, "üslup: "+strings.TrimSpace(pp.StyleHints[0]))
	}
	if n := min(2, len(ep.SignaturePhrases)); n > 0 {
		quoted := make([]string, n)
		for i := range n {
			quoted[i] = "\"" + strings.TrimSpace(ep.SignaturePhrases[i]) + "\""
		}
		parts = append(parts, "imza sözler: "+strings.Join(quoted, ", "))
	}
	return strings.Join(parts, " | ")
}
