package engine

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/settings"
)

func TestNextDelay(t *testing.T) {
	t.Parallel()

	offPeak := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	prime := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("always within bounds", func(t *testing.T) {
		t.Parallel()
		snap := settings.Defaults()
		rng := rand.New(rand.NewPCG(1, 2))
		for range 500 {
			d := nextDelay(snap, nil, offPeak, rng)
			assert.GreaterOrEqual(t, d, 4*time.Second)
			assert.LessOrEqual(t, d, 120*time.Second)
		}
	})

	t.Run("prime hours and scale shorten the mean", func(t *testing.T) {
		t.Parallel()
		fast := settings.Defaults()
		fast.ScaleFactor = 3
		mean := func(snap *settings.Snapshot, at time.Time) time.Duration {
			rng := rand.New(rand.NewPCG(9, 9))
			var total time.Duration
			for range 2000 {
				total += nextDelay(snap, nil, at, rng)
			}
			return total / 2000
		}
		base := mean(settings.Defaults(), offPeak)
		assert.Less(t, mean(settings.Defaults(), prime), base)
		assert.Less(t, mean(fast, offPeak), base)
	})

	t.Run("speed profile overrides bounds", func(t *testing.T) {
		t.Parallel()
		bot := &database.Bot{SpeedProfile: database.NewJSON(database.SpeedProfile{
			Delay: &database.SpeedRange{Min: 60, Max: 61, Multiplier: 2, Jitter: 0.1},
		})}
		rng := rand.New(rand.NewPCG(3, 3))
		for range 100 {
			d := nextDelay(settings.Defaults(), bot, offPeak, rng)
			assert.GreaterOrEqual(t, d, 60*time.Second)
			assert.LessOrEqual(t, d, 61*time.Second)
		}
	})
}

func TestTypingDuration(t *testing.T) {
	t.Parallel()

	snap := settings.Defaults()
	snap.TypingSpeedWPM = settings.Range{Min: 36, Max: 36}
	snap.TypingSeconds = settings.Range{Min: 1, Max: 10}

	tests := []struct {
		name  string
		bot   *database.Bot
		text  string
		tempo float64
		want  time.Duration
	}{
		{name: "chars over cps", text: "123456", tempo: 1, want: 2 * time.Second},
		{name: "clamped low", text: "a", tempo: 1, want: time.Second},
		{name: "clamped high", text: string(make([]rune, 100)), tempo: 1, want: 10 * time.Second},
		{name: "fast tempo", text: "123456", tempo: 0.85, want: 1700 * time.Millisecond},
		{
			name:  "speed profile bounds",
			bot:   &database.Bot{SpeedProfile: database.NewJSON(database.SpeedProfile{Typing: &database.SpeedRange{Min: 5, Max: 6}})},
			text:  "123456",
			tempo: 1,
			want:  5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := typingDuration(snap, tt.bot, tt.text, tt.tempo)
			assert.InDelta(t, float64(tt.want), float64(got), float64(time.Millisecond))
		})
	}
}
