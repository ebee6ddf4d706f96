package engine

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/settings"
	"github.com/piyasasohbet/piyasabot/internal/timerange"
)

// nextDelay draws the pause after a message: exponential around a base that is
// shorter during prime hours and scaled by the simulation speed, then jittered
// and clamped. A bot's speed profile overrides multiplier, bounds and jitter.
func nextDelay(snap *settings.Snapshot, bot *database.Bot, now time.Time, rng *rand.Rand) time.Duration {
	base := snap.BaseDelaySeconds
	if timerange.AnyContainsStrict(snap.PrimeHours, now) {
		base = snap.PrimeDelaySeconds
	}
	if snap.ScaleFactor > 0 {
		base /= snap.ScaleFactor
	}

	lo, hi := snap.DelayMinSeconds, snap.DelayMaxSeconds
	jitter := snap.DelayJitter
	if bot != nil {
		if sp := bot.SpeedProfile.V.Delay; sp != nil {
			if sp.Multiplier > 0 {
				base *= sp.Multiplier
			}
			if sp.Min > 0 {
				lo = sp.Min
			}
			if sp.Max > 0 {
				hi = sp.Max
			}
			if sp.Jitter > 0 && sp.Jitter < 1 {
				jitter = settings.Range{Min: 1 - sp.Jitter, Max: 1 + sp.Jitter}
			}
		}
	}
	if hi < lo {
		hi = lo
	}

	d := rng.ExpFloat64() * base * uniform(rng, jitter.Min, jitter.Max)
	d = math.Min(math.Max(d, lo), hi)
	return time.Duration(d * float64(time.Second))
}
