package engine

import (
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/market"
)

// Reply-target scoring weights.
const (
	scoreHuman        = 8.0
	scoreOtherBot     = 2.5
	scoreVeryFresh    = 3.0
	scoreFresh        = 2.0
	scoreRecent       = 1.0
	scoreStale        = -1.0
	scoreQuestion     = 4.0
	scoreCuriosity    = 3.0
	scoreMention      = 15.0
	scoreSymbol       = 2.5
	scoreTopic        = 1.5
	scoreEmpathy      = 2.0
	scoreThread       = 1.5
	minCandidateScore = 0.1
	replyTargetTop    = 3
	empathyThreshold  = 0.7
	threadReplies     = 2
)

var curiosityPhrases = []string{
	"ne düşünüyorsun", "ne dersin", "fikrin", "yorumun", "sizce",
	"ne olur", "nasıl görüyorsun", "ne yapmalı", "alınır mı", "satılır mı",
}

type scoredMessage struct {
	msg   *database.Message
	score float64
}

// scoreCandidate rates how attractive msg is as a reply target for bot.
func scoreCandidate(msg *database.Message, bot *database.Bot, replies map[int64]int, now time.Time) float64 {
	score := scoreOtherBot
	if msg.IsUser() {
		score = scoreHuman
	}

	switch age := now.Sub(msg.CreatedAt); {
	case age < 3*time.Minute:
		score += scoreVeryFresh
	case age < 10*time.Minute:
		score += scoreFresh
	case age < 30*time.Minute:
		score += scoreRecent
	default:
		score += scoreStale
	}

	lowered := market.Lower(msg.Text)
	if strings.Contains(msg.Text, "?") {
		score += scoreQuestion
	}
	for _, p := range curiosityPhrases {
		if strings.Contains(lowered, p) {
			score += scoreCuriosity
			break
		}
	}
	if h := bot.Handle(); h != "" && strings.Contains(lowered, market.Lower(h)) {
		score += scoreMention
	}
	score += scoreSymbol * float64(market.SymbolOverlap(msg.Text, bot.PersonaProfile.V.Watchlist))
	score += scoreTopic * float64(len(market.DetectTopics(msg.Text)))
	if bot.EmotionProfile.V.Empathy > empathyThreshold && market.Sentiment(msg.Text) == market.SentimentNegative {
		score += scoreEmpathy
	}
	if msg.TelegramMessageID.Valid && replies[msg.TelegramMessageID.Int64] >= threadReplies {
		score += scoreThread
	}
	return score
}

// pickReplyTarget scores the recent messages and draws one of the best three,
// weighted by score. Own messages and messages that never reached Telegram are not
// candidates.
func pickReplyTarget(recent []database.Message, bot *database.Bot, now time.Time, rng *rand.Rand) *database.Message {
	replies := make(map[int64]int)
	for i := range recent {
		if r := recent[i].ReplyToMessageID; r.Valid {
			replies[r.Int64]++
		}
	}

	scored := make([]scoredMessage, 0, len(recent))
	for i := range recent {
		m := &recent[i]
		if m.AuthoredBy(bot.ID) || !m.TelegramMessageID.Valid {
			continue
		}
		scored = append(scored, scoredMessage{msg: m, score: scoreCandidate(m, bot, replies, now)})
	}
	if len(scored) == 0 {
		return nil
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > replyTargetTop {
		scored = scored[:replyTargetTop]
	}

	total := 0.0
	for i := range scored {
		if scored[i].score <= 0 {
			scored[i].score = minCandidateScore
		}
		total += scored[i].score
	}
	r := rng.Float64() * total
	for _, s := range scored {
		r -= s.score
		if r < 0 {
			return s.msg
		}
	}
	return scored[len(scored)-1].msg
}

// shouldReply decides between answering someone and opening a new thread. The
// probability depends on who spoke last.
func shouldReply(recent []database.Message, replyProb, replyToBotsProb float64, rng *rand.Rand) bool {
	if len(recent) == 0 {
		return false
	}
	p := replyProb
	if !recent[len(recent)-1].IsUser() {
		p = replyToBotsProb
	}
	return rng.Float64() < p
}
