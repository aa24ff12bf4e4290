// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package rating

import (
	"gonum.org/v1/gonum/stat"
)

// elevatedSmurfProbability is assigned when a fresh account performs far
// above its bracket.
const elevatedSmurfProbability = 0.8

// SmurfProbability estimates how likely the account understates its real
// skill. Fresh accounts (<5 matches) with high recent performance in a low
// bracket are flagged; established accounts scale with how far above the
// midpoint they sit.
func SmurfProbability(r Rating, history []MatchRecord) float64 {
	mmr := r.ConservativeMMR()

	if len(history) < 5 && len(history) > 0 {
		if avg := stat.Mean(RecentPerformance(history, 5), nil); avg > 2.0 && mmr < 1000 {
			return elevatedSmurfProbability
		}
	}

	p := (mmr - 1500) / 3000
	if p < 0 {
		return 0
	}
	return p
}

// RecentPerformance returns the performance values of the last n records.
func RecentPerformance(history []MatchRecord, n int) []float64 {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]float64, 0, len(history))
	for _, rec := range history {
		out = append(out, rec.Performance)
	}
	return out
}

// ConsecutiveLosses counts the losing streak at the tail of the history.
func ConsecutiveLosses(history []MatchRecord) int {
	streak := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Won {
			break
		}
		streak++
	}
	return streak
}
