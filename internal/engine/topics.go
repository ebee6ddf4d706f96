package engine

import (
	"math/rand/v2"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/market"
)

// topicPool returns the chat's topics without the ones the bot is cooling down on.
// When every topic is cooling down the unfiltered pool is used.
func topicPool(chat *database.Chat, stances []database.Stance, filter bool, now time.Time) []string {
	pool := chat.Topics.V
	if len(pool) == 0 {
		pool = database.DefaultTopics()
	}
	if !filter {
		return pool
	}
	cooling := make(map[string]bool)
	for i := range stances {
		if stances[i].InCooldown(now) {
			cooling[market.Lower(stances[i].Topic)] = true
		}
	}
	out := make([]string, 0, len(pool))
	for _, t := range pool {
		if !cooling[market.Lower(t)] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return pool
	}
	return out
}

// pickTopic chooses the pool topic that recent messages talk about most. Ties are
// broken at random and a silent chat gets a uniform pick.
func pickTopic(pool []string, recent []database.Message, rng *rand.Rand) string {
	if len(pool) == 0 {
		return ""
	}
	scores := make(map[string]int, len(pool))
	for i := range recent {
		for topic, n := range market.TopicScores(recent[i].Text) {
			scores[market.Lower(topic)] += n
		}
	}

	best := 0
	var leaders []string
	for _, t := range pool {
		s := scores[market.Lower(t)]
		switch {
		case s > best:
			best = s
			leaders = []string{t}
		case s == best && s > 0:
			leaders = append(leaders, t)
		}
	}
	if best == 0 {
		return pool[rng.IntN(len(pool))]
	}
	return leaders[rng.IntN(len(leaders))]
}
