// Package settings holds the runtime tunables of the behavior engine. Values live in the
// settings table as JSON; Snapshot is the typed, defaulted, normalized view of them.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/piyasasohbet/piyasabot/internal/database"
)

// Setting keys that other packages react to.
const (
	KeyNewsFeedURLs = "news_feed_urls"
)

// Range is an inclusive numeric range.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// Mid returns the range midpoint.
func (r Range) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// IntRange is an inclusive integer range.
type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// LengthProfile weights the short, medium and long length hints.
type LengthProfile struct {
	Short  float64 `json:"short"`
	Medium float64 `json:"medium"`
	Long   float64 `json:"long"`
}

// Normalized returns the profile scaled to sum to 1.0. Negative weights count as zero,
// an all-zero profile falls back to the default, and float residue goes to Long.
func (p LengthProfile) Normalized() LengthProfile {
	s, m, l := math.Max(p.Short, 0), math.Max(p.Medium, 0), math.Max(p.Long, 0)
	total := s + m + l
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return Defaults().MessageLengthProfile
	}
	out := LengthProfile{Short: s / total, Medium: m / total}
	out.Long = 1.0 - out.Short - out.Medium
	if out.Long < 0 {
		out.Long = 0
	}
	return out
}

// Sum returns the total weight.
func (p LengthProfile) Sum() float64 {
	return p.Short + p.Medium + p.Long
}

// Snapshot is an immutable view of every tunable. Callers must not modify it.
type Snapshot struct {
	MaxMsgsPerMin            int           `json:"max_msgs_per_min"`
	BotHourlyMsgLimit        IntRange      `json:"bot_hourly_msg_limit"`
	PrimeHours               []string      `json:"prime_hours"`
	ReplyProbability         float64       `json:"reply_probability"`
	ReplyToBotsProbability   float64       `json:"reply_to_bots_probability"`
	MentionProbability       float64       `json:"mention_probability"`
	ShortReactionProbability float64       `json:"short_reaction_probability"`
	MessageLengthProfile     LengthProfile `json:"message_length_profile"`
	TypingSpeedWPM           Range         `json:"typing_speed_wpm"`
	SimulationActive         bool          `json:"simulation_active"`
	ScaleFactor              float64       `json:"scale_factor"`
	PersonaRefreshInterval   int           `json:"persona_refresh_interval"`
	PersonaRefreshMinutes    int           `json:"persona_refresh_minutes"`
	DedupEnabled             bool          `json:"dedup_enabled"`
	DedupWindowHours         int           `json:"dedup_window_hours"`
	DedupMaxAttempts         int           `json:"dedup_max_attempts"`
	CooldownFilterEnabled    bool          `json:"cooldown_filter_enabled"`
	NewsTriggerEnabled       bool          `json:"news_trigger_enabled"`
	NewsTriggerProbability   float64       `json:"news_trigger_probability"`
	SemanticDedupEnabled     bool          `json:"semantic_dedup_enabled"`
	SemanticDedupThreshold   float64       `json:"semantic_dedup_threshold"`
	SemanticDedupHistory     int           `json:"semantic_dedup_history"`
	BaseDelaySeconds         float64       `json:"base_delay_seconds"`
	PrimeDelaySeconds        float64       `json:"prime_delay_seconds"`
	DelayMinSeconds          float64       `json:"delay_min_seconds"`
	DelayMaxSeconds          float64       `json:"delay_max_seconds"`
	DelayJitter              Range         `json:"delay_jitter"`
	TypingSeconds            Range         `json:"typing_seconds"`
	ConsistencyGuardEnabled  bool          `json:"consistency_guard_enabled"`
	ReplyCandidateWindow     int           `json:"reply_candidate_window"`
	NewsFeedURLs             []string      `json:"news_feed_urls"`
}

// Defaults returns the documented default of every tunable.
func Defaults() *Snapshot {
	return &Snapshot{
		MaxMsgsPerMin:            6,
		BotHourlyMsgLimit:        IntRange{Min: 6, Max: 12},
		PrimeHours:               []string{"09:30-12:00", "14:00-18:00"},
		ReplyProbability:         0.65,
		ReplyToBotsProbability:   0.5,
		MentionProbability:       0.35,
		ShortReactionProbability: 0.12,
		MessageLengthProfile:     LengthProfile{Short: 0.55, Medium: 0.35, Long: 0.10},
		TypingSpeedWPM:           Range{Min: 2.5, Max: 4.5},
		SimulationActive:         false,
		ScaleFactor:              1.0,
		PersonaRefreshInterval:   8,
		PersonaRefreshMinutes:    30,
		DedupEnabled:             true,
		DedupWindowHours:         12,
		DedupMaxAttempts:         2,
		CooldownFilterEnabled:    true,
		NewsTriggerEnabled:       true,
		NewsTriggerProbability:   0.5,
		SemanticDedupEnabled:     true,
		SemanticDedupThreshold:   0.85,
		SemanticDedupHistory:     50,
		BaseDelaySeconds:         30,
		PrimeDelaySeconds:        18,
		DelayMinSeconds:          4,
		DelayMaxSeconds:          120,
		DelayJitter:              Range{Min: 0.8, Max: 1.2},
		TypingSeconds:            Range{Min: 1.5, Max: 8},
		ConsistencyGuardEnabled:  true,
		ReplyCandidateWindow:     30,
		NewsFeedURLs:             []string{},
	}
}

// Parse builds a snapshot from stored rows. Unknown keys are ignored and a key whose
// value does not decode keeps its default; the returned error lists those keys.
func Parse(rows []database.Setting) (*Snapshot, error) {
	snap := Defaults()
	var bad []string
	for _, row := range rows {
		raw := unwrapLegacy([]byte(row.Value))
		if len(raw) == 0 {
			continue
		}
		doc := make([]byte, 0, len(row.Key)+len(raw)+5)
		doc = append(doc, '{')
		doc, _ = appendJSONString(doc, row.Key)
		doc = append(doc, ':')
		doc = append(doc, raw...)
		doc = append(doc, '}')

		next := snap.clone()
		if err := json.Unmarshal(doc, &next); err != nil {
			bad = append(bad, row.Key)
			continue
		}
		*snap = next
	}
	snap.normalize()
	if len(bad) > 0 {
		return snap, fmt.Errorf("failed to decode settings %v", bad)
	}
	return snap, nil
}

func (s *Snapshot) clone() Snapshot {
	out := *s
	out.PrimeHours = append([]string(nil), s.PrimeHours...)
	out.NewsFeedURLs = append([]string(nil), s.NewsFeedURLs...)
	return out
}

// unwrapLegacy strips the {"value": ...} envelope older admin tools wrote.
func unwrapLegacy(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return raw
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil || len(env) != 1 {
		return raw
	}
	if v, ok := env["value"]; ok {
		return bytes.TrimSpace(v)
	}
	return raw
}

func appendJSONString(dst []byte, s string) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

// normalize repairs out-of-range values in place.
func (s *Snapshot) normalize() {
	d := Defaults()

	s.MessageLengthProfile = s.MessageLengthProfile.Normalized()

	s.ReplyProbability = clamp01(s.ReplyProbability)
	s.ReplyToBotsProbability = clamp01(s.ReplyToBotsProbability)
	s.MentionProbability = clamp01(s.MentionProbability)
	s.ShortReactionProbability = clamp01(s.ShortReactionProbability)
	s.NewsTriggerProbability = clamp01(s.NewsTriggerProbability)
	s.SemanticDedupThreshold = clamp01(s.SemanticDedupThreshold)

	if s.MaxMsgsPerMin < 0 {
		s.MaxMsgsPerMin = 0
	}
	if s.BotHourlyMsgLimit.Min < 0 {
		s.BotHourlyMsgLimit.Min = 0
	}
	if s.BotHourlyMsgLimit.Max < s.BotHourlyMsgLimit.Min {
		s.BotHourlyMsgLimit.Min, s.BotHourlyMsgLimit.Max = s.BotHourlyMsgLimit.Max, s.BotHourlyMsgLimit.Min
		if s.BotHourlyMsgLimit.Min < 0 {
			s.BotHourlyMsgLimit.Min = 0
		}
	}
	if s.ScaleFactor <= 0 {
		s.ScaleFactor = d.ScaleFactor
	}
	if s.PersonaRefreshInterval < 1 {
		s.PersonaRefreshInterval = d.PersonaRefreshInterval
	}
	if s.PersonaRefreshMinutes < 1 {
		s.PersonaRefreshMinutes = d.PersonaRefreshMinutes
	}
	if s.DedupWindowHours < 1 {
		s.DedupWindowHours = d.DedupWindowHours
	}
	if s.DedupMaxAttempts < 0 {
		s.DedupMaxAttempts = 0
	}
	if s.SemanticDedupHistory < 1 {
		s.SemanticDedupHistory = d.SemanticDedupHistory
	}
	if s.ReplyCandidateWindow < 1 {
		s.ReplyCandidateWindow = d.ReplyCandidateWindow
	}
	if s.BaseDelaySeconds <= 0 {
		s.BaseDelaySeconds = d.BaseDelaySeconds
	}
	if s.PrimeDelaySeconds <= 0 {
		s.PrimeDelaySeconds = d.PrimeDelaySeconds
	}
	if s.DelayMinSeconds < 0 {
		s.DelayMinSeconds = 0
	}
	if s.DelayMaxSeconds < s.DelayMinSeconds {
		s.DelayMaxSeconds = s.DelayMinSeconds
	}
	s.DelayJitter = orderedPositive(s.DelayJitter, d.DelayJitter)
	s.TypingSeconds = orderedPositive(s.TypingSeconds, d.TypingSeconds)
	s.TypingSpeedWPM = orderedPositive(s.TypingSpeedWPM, d.TypingSpeedWPM)
	if s.PrimeHours == nil {
		s.PrimeHours = []string{}
	}
	if s.NewsFeedURLs == nil {
		s.NewsFeedURLs = []string{}
	}
}

func orderedPositive(r, fallback Range) Range {
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	if r.Min <= 0 || r.Max <= 0 {
		return fallback
	}
	return r
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}

// MarshalValue encodes a setting value for storage. Length profiles are renormalized
// before they are written.
func MarshalValue(key string, v any) (string, error) {
	if key == "message_length_profile" {
		if p, ok := v.(LengthProfile); ok {
			v = p.Normalized()
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	return string(b), nil
}
