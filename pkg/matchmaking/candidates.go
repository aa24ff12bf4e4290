// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaking

import (
	"math"
	"sort"
	"time"

	pie "github.com/elliotchance/pie/v2"
	"gonum.org/v1/gonum/stat"
)

// maxWaitPenaltyMs is the queue age at which the wait-time penalty saturates.
const maxWaitPenaltyMs = 60000.0

// partyGroup is the atomic unit of candidate generation: members of one
// party are never split across matches.
type partyGroup struct {
	id       string
	members  []*PlayerProfile
	queuedAt time.Time
}

// groupParties folds a queue into party groups, solo players forming
// size-one parties keyed by their own id. Groups come out oldest first.
func groupParties(queue []*PlayerProfile) []partyGroup {
	byID := make(map[string]*partyGroup)
	order := make([]string, 0, len(queue))

	for _, p := range queue {
		key := p.PartyID
		if key == "" {
			key = p.PlayerID
		}
		group, ok := byID[key]
		if !ok {
			group = &partyGroup{id: key, queuedAt: p.QueuedAt}
			byID[key] = group
			order = append(order, key)
		}
		group.members = append(group.members, p)
		if p.QueuedAt.Before(group.queuedAt) {
			group.queuedAt = p.QueuedAt
		}
	}

	groups := make([]partyGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byID[key])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].queuedAt.Before(groups[j].queuedAt)
	})
	return groups
}

// generateCombinations finds sets of party groups whose member counts sum
// exactly to required. The search is depth-first over groups ordered by
// queue age and stops after limit combinations to bound a matching pass.
func generateCombinations(groups []partyGroup, required int, limit int) [][]partyGroup {
	var results [][]partyGroup
	var current []partyGroup

	var walk func(start, have int)
	walk = func(start, have int) {
		if len(results) >= limit {
			return
		}
		if have == required {
			combo := make([]partyGroup, len(current))
			copy(combo, current)
			results = append(results, combo)
			return
		}
		for i := start; i < len(groups); i++ {
			size := len(groups[i].members)
			if have+size > required {
				continue
			}
			current = append(current, groups[i])
			walk(i+1, have+size)
			current = current[:len(current)-1]
			if len(results) >= limit {
				return
			}
		}
	}
	walk(0, 0)
	return results
}

// buildCandidate scores one combination against the mode's team shape.
func buildCandidate(mode GameMode, combo []partyGroup, now time.Time) MatchCandidate {
	var players []*PlayerProfile
	for _, group := range combo {
		players = append(players, group.members...)
	}

	mmrs := pie.Map(players, func(p *PlayerProfile) float64 { return p.MMR })
	averageMMR := stat.Mean(mmrs, nil)

	skillBalance := teamSkillBalance(mode, players)
	waitPenalty := waitTimePenalty(players, now)
	meanSmurf := stat.Mean(pie.Map(players, func(p *PlayerProfile) float64 { return p.SmurfProbability }), nil)
	meanVariance := stat.Mean(pie.Map(players, func(p *PlayerProfile) float64 { return p.SkillVariance }), nil)

	fairness := 0.6*skillBalance + 0.3*(1-waitPenalty) + 0.1*(1-meanSmurf)
	quality := fairness * (1 - 0.2*math.Min(1, meanVariance/5))

	return MatchCandidate{
		Players:               players,
		AverageMMR:            averageMMR,
		SkillBalance:          skillBalance,
		FairnessScore:         fairness,
		EstimatedMatchQuality: quality,
		Region:                dominantRegion(players),
	}
}

// teamSkillBalance slices the candidate into contiguous teams and compares
// per-team average mmr. Single-team modes are perfectly balanced by
// definition.
func teamSkillBalance(mode GameMode, players []*PlayerProfile) float64 {
	if mode.Teams <= 1 {
		return 1.0
	}

	teamAverages := make([]float64, 0, mode.Teams)
	for t := 0; t < mode.Teams; t++ {
		start := t * mode.TeamSize
		end := start + mode.TeamSize
		if end > len(players) {
			end = len(players)
		}
		team := players[start:end]
		if len(team) == 0 {
			continue
		}
		teamAverages = append(teamAverages, stat.Mean(pie.Map(team, func(p *PlayerProfile) float64 { return p.MMR }), nil))
	}

	balance := 1.0 - normalizedVariance(teamAverages)
	if balance < 0 {
		return 0
	}
	return balance
}

// normalizedVariance is the coefficient of variation of the values clamped
// to [0,1], so identical teams score zero and wildly uneven teams score one.
func normalizedVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := stat.Mean(values, nil)
	if mean <= 0 {
		return 0
	}
	cv := math.Sqrt(stat.PopVariance(values, nil)) / mean
	return math.Min(1, cv)
}

// waitTimePenalty grows with the longest-queued player and saturates at one.
func waitTimePenalty(players []*PlayerProfile, now time.Time) float64 {
	var maxQueuedMs float64
	for _, p := range players {
		queued := float64(now.Sub(p.QueuedAt).Milliseconds())
		if queued > maxQueuedMs {
			maxQueuedMs = queued
		}
	}
	return math.Min(1, maxQueuedMs/maxWaitPenaltyMs)
}

var connectionQualityScore = map[string]float64{
	"excellent": 1.0,
	"good":      0.7,
	"poor":      0.3,
}

func connectionQualityBonus(players []*PlayerProfile) float64 {
	if len(players) == 0 {
		return 0
	}
	var total float64
	for _, p := range players {
		score, ok := connectionQualityScore[p.ConnectionQuality]
		if !ok {
			score = connectionQualityScore["good"]
		}
		total += score
	}
	return total / float64(len(players))
}

func regionCompatibilityBonus(players []*PlayerProfile) float64 {
	regions := make(map[string]struct{})
	for _, p := range players {
		regions[p.Region] = struct{}{}
	}
	if len(regions) <= 1 {
		return 1.0
	}
	return 1.0 / float64(len(regions))
}

func dominantRegion(players []*PlayerProfile) string {
	counts := make(map[string]int)
	best := ""
	for _, p := range players {
		counts[p.Region]++
		if best == "" || counts[p.Region] > counts[best] {
			best = p.Region
		}
	}
	return best
}

// selectionScore ranks gate-eligible candidates against each other.
func selectionScore(c MatchCandidate, now time.Time) float64 {
	waitPenalty := waitTimePenalty(c.Players, now)
	return 0.5*c.EstimatedMatchQuality +
		0.25*(1-waitPenalty) +
		0.15*connectionQualityBonus(c.Players) +
		0.10*regionCompatibilityBonus(c.Players)
}
