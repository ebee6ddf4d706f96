package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/settings"
	"github.com/piyasasohbet/piyasabot/internal/timerange"
)

func pickChat(chats []database.Chat, rng *rand.Rand) *database.Chat {
	if len(chats) == 0 {
		return nil
	}
	c := chats[rng.IntN(len(chats))]
	return &c
}

// ownsBot reports whether this worker's shard contains botID.
func ownsBot(botID int64, worker, total int) bool {
	if total <= 1 {
		return true
	}
	return botID%int64(total) == int64(worker)
}

// eligibleBots narrows the enabled bots to the ones that may speak now: owned by
// this worker, inside their active hours and under their hourly cap.
func (e *Engine) eligibleBots(ctx context.Context, snap *settings.Snapshot, bots []database.Bot) []database.Bot {
	now := e.now()
	owned := make([]database.Bot, 0, len(bots))
	for _, b := range bots {
		if !ownsBot(b.ID, e.opts.WorkerID, e.opts.TotalWorkers) {
			continue
		}
		if !timerange.AnyContains(b.ActiveHours.V, now) {
			continue
		}
		owned = append(owned, b)
	}
	return e.gate.FilterHourly(ctx, owned, snap.BotHourlyMsgLimit)
}

// pickBot chooses the speaker for chat. The last bot to speak there is skipped when
// another candidate exists.
func (e *Engine) pickBot(ctx context.Context, snap *settings.Snapshot, chat *database.Chat, bots []database.Bot) *database.Bot {
	candidates := e.eligibleBots(ctx, snap, bots)
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > 1 {
		last, err := e.store.LastBotSpeaker(ctx, chat.ID)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to read last speaker", "chat_id", chat.ID, "error", err)
		}
		if last != 0 {
			filtered := candidates[:0:0]
			for _, b := range candidates {
				if b.ID != last {
					filtered = append(filtered, b)
				}
			}
			if len(filtered) > 0 {
				candidates = filtered
			}
		}
	}
	b := candidates[e.rng.IntN(len(candidates))]
	return &b
}

func uniformDuration(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int64N(int64(hi-lo)))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}
