package engine

import (
	"context"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

// typingDuration is how long the typing indicator shows for text: character count
// over typing speed, clamped, then stretched by the reaction tempo.
func typingDuration(snap *settings.Snapshot, bot *database.Bot, text string, tempo float64) time.Duration {
	cps := snap.TypingSpeedWPM.Mid() * 5 / 60
	bounds := snap.TypingSeconds
	if bot != nil {
		if sp := bot.SpeedProfile.V.Typing; sp != nil {
			if sp.Min > 0 {
				bounds.Min = sp.Min
			}
			if sp.Max > 0 {
				bounds.Max = sp.Max
			}
			if sp.Multiplier > 0 {
				cps *= sp.Multiplier
			}
		}
	}
	if bounds.Max < bounds.Min {
		bounds.Max = bounds.Min
	}

	secs := bounds.Max
	if cps > 0 {
		secs = bounds.Clamp(float64(len([]rune(text))) / cps)
	}
	if tempo > 0 {
		secs *= tempo
	}
	return time.Duration(secs * float64(time.Second))
}

// simulateTyping shows the typing indicator for d and waits it out. Transport
// failures only cost the indicator.
func (e *Engine) simulateTyping(ctx context.Context, token, chatID string, d time.Duration) {
	if d <= 0 {
		return
	}
	if e.typing != nil {
		if err := e.typing.SendTyping(ctx, token, chatID, d); err != nil {
			e.logger.DebugContext(ctx, "Typing indicator failed", "chat_id", chatID, "error", err)
		}
	}
	e.opts.Sleep(ctx, d)
}
