// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaking

import (
	"time"

	"github.com/arcadelive/realtime-core/pkg/rating"
)

// GameMode describes one match pool: its team shape, the fairness bar a
// candidate must clear, and the duration estimate attached to its matches.
type GameMode struct {
	Name              string
	TeamSize          int
	Teams             int
	FairnessThreshold float64
	EstimatedDuration time.Duration
}

// RequiredPlayers is the exact player count a match in this mode needs.
func (m GameMode) RequiredPlayers() int {
	return m.TeamSize * m.Teams
}

// DefaultGameModes is the mode table used when no custom table is injected.
func DefaultGameModes() map[string]GameMode {
	return map[string]GameMode{
		"halo-arena": {Name: "halo-arena", TeamSize: 5, Teams: 2, FairnessThreshold: 0.9, EstimatedDuration: 15 * time.Minute},
		"halo-rally": {Name: "halo-rally", TeamSize: 1, Teams: 8, FairnessThreshold: 0.6, EstimatedDuration: 10 * time.Minute},
		"halo-raids": {Name: "halo-raids", TeamSize: 4, Teams: 1, FairnessThreshold: 0.7, EstimatedDuration: 30 * time.Minute},
	}
}

// PlayerProfile is a queued player. Created on join_queue, removed when the
// player is matched or explicitly leaves.
type PlayerProfile struct {
	PlayerID          string
	GameMode          string
	MMR               float64
	Rank              rating.Tier
	SkillVariance     float64
	RecentPerformance []float64
	PartyID           string
	Role              string
	QueuedAt          time.Time
	ConnectionQuality string
	Region            string
	SmurfProbability  float64
	ConsecutiveLosses int
}

// MatchCandidate is the ephemeral result of one matching attempt.
type MatchCandidate struct {
	Players               []*PlayerProfile
	AverageMMR            float64
	SkillBalance          float64
	FairnessScore         float64
	EstimatedMatchQuality float64
	Region                string
}

// MatchResult is an accepted match. Destroyed a grace period after
// match_complete.
type MatchResult struct {
	MatchID           string
	PlayerIDs         []string
	GameMode          string
	ServerRegion      string
	AverageMMR        float64
	EstimatedDuration time.Duration
	CreatedAt         time.Time
	CompletedAt       time.Time
}

// Urgency orders the backfill queue: high beats medium beats low.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

func (u Urgency) rank() int {
	switch u {
	case UrgencyHigh:
		return 0
	case UrgencyMedium:
		return 1
	default:
		return 2
	}
}

// BackfillRequest waits on the backfill queue until fulfilled.
type BackfillRequest struct {
	MatchID         string
	GameMode        string
	RequiredPlayers int
	AverageMMR      float64
	Urgency         Urgency
	CreatedAt       time.Time
}
