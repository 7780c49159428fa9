package gateway

import (
	"time"

	"giveaway-overlay-backend/internal/models"
)

// Role is a client's declared purpose, announced right after connecting.
type Role string

const (
	RoleOverlay  Role = "overlay"
	RoleControls Role = "controls"
	RoleResults  Role = "results"
)

// ValidRole reports whether r is one of the known client roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleOverlay, RoleControls, RoleResults:
		return true
	}
	return false
}

// MessageType enumerates every outbound message the hub emits.
type MessageType string

const (
	MessageGiveawayInfo           MessageType = "giveaway-info"
	MessageGiveawayTick           MessageType = "giveaway-tick"
	MessageLeaderboardBitsUpdate  MessageType = "leaderboard-bits-update"
	MessageLeaderboardSubsUpdate  MessageType = "leaderboard-subs-update"
)

// LeaderboardMessageType maps a metric to its update message type.
func LeaderboardMessageType(metric models.Metric) MessageType {
	if metric == models.MetricSubs {
		return MessageLeaderboardSubsUpdate
	}
	return MessageLeaderboardBitsUpdate
}

// Message is the envelope for every frame sent to a client.
type Message struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

// GiveawayState is the full snapshot payload carried by giveaway-info and
// giveaway-tick messages.
type GiveawayState struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	ElapsedMs  int64      `json:"elapsed_ms"`
	Paused     bool       `json:"paused"`
}

// StateMessage builds a giveaway-info or giveaway-tick message. A nil
// giveaway produces an empty-object payload, which clients render as "no
// giveaway".
func StateMessage(msgType MessageType, g *models.Giveaway) Message {
	if g == nil {
		return Message{Type: msgType, Data: struct{}{}}
	}
	return Message{
		Type: msgType,
		Data: GiveawayState{
			ID:         g.ID.String(),
			StartedAt:  g.StartedAt,
			EndedAt:    g.EndedAt,
			DurationMs: g.DurationMs,
			ElapsedMs:  g.ElapsedMs,
			Paused:     g.Paused,
		},
	}
}

// LeaderboardMessage builds a leaderboard update for one metric. Entries
// must already be ranked and truncated; an empty board is sent as [].
func LeaderboardMessage(metric models.Metric, entries []models.LeaderboardEntry) Message {
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	return Message{Type: LeaderboardMessageType(metric), Data: entries}
}

// announcement is the one inbound message the hub understands. A client is
// inert until it announces a role.
type announcement struct {
	Type string `json:"type"`
	Role Role   `json:"role"`
}
