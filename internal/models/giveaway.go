package models

import (
	"time"

	"github.com/google/uuid"
)

// Metric identifies which contribution counter a leaderboard ranks by.
type Metric string

const (
	MetricBits Metric = "bits"
	MetricSubs Metric = "subs"
)

// Metrics lists every leaderboard metric in broadcast order.
var Metrics = []Metric{MetricBits, MetricSubs}

// Giveaway is the single time-boxed promotion window being tracked.
// At most one non-terminal giveaway exists per process.
type Giveaway struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    string     `json:"owner_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	ElapsedMs  int64      `json:"elapsed_ms"`
	Paused     bool       `json:"paused"`
	Cancelled  bool       `json:"cancelled"`
}

// Terminal reports whether the giveaway can no longer change state.
func (g *Giveaway) Terminal() bool {
	return g.Cancelled || g.EndedAt != nil || g.ElapsedMs >= g.DurationMs
}

// RemainingMs returns how much running time is left, never negative.
func (g *Giveaway) RemainingMs() int64 {
	if g.ElapsedMs >= g.DurationMs {
		return 0
	}
	return g.DurationMs - g.ElapsedMs
}

// ContributionRecord is the cumulative tally for one participant within
// one giveaway. Counts only ever increase.
type ContributionRecord struct {
	ID                 uuid.UUID `json:"id"`
	GiveawayID         uuid.UUID `json:"giveaway_id"`
	ParticipantID      string    `json:"participant_id"`
	DisplayName        string    `json:"display_name"`
	Bits               int64     `json:"bits"`
	Subs               int64     `json:"subs"`
	FirstContributedAt time.Time `json:"first_contributed_at"`
}

// Score returns the record's cumulative count for the given metric.
func (r *ContributionRecord) Score(metric Metric) int64 {
	if metric == MetricSubs {
		return r.Subs
	}
	return r.Bits
}

// LeaderboardEntry is a derived ranking row. Never persisted.
type LeaderboardEntry struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Score         int64  `json:"score"`
}
