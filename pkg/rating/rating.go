// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

// Package rating keeps the TrueSkill-style skill model behind an injectable
// store. Ratings persist across matches; everything queue-related derives
// from them (conservative mmr, rank tier, smurf probability).
package rating

import (
	"time"
)

// Rating is the Bayesian skill estimate for one player.
// Invariants: Sigma >= 0.5 and Mu >= 0 after every update.
type Rating struct {
	Mu    float64
	Sigma float64
	Tau   float64
	Beta  float64
}

const (
	DefaultMu    = 25.0
	DefaultSigma = 8.333
	DefaultTau   = 0.083
	DefaultBeta  = 4.167

	MinSigma = 0.5

	// HistoryCap bounds the per-player match history ring buffer.
	HistoryCap = 50
)

// Default returns the rating assigned to a player never seen before.
func Default() Rating {
	return Rating{Mu: DefaultMu, Sigma: DefaultSigma, Tau: DefaultTau, Beta: DefaultBeta}
}

// ConservativeMMR is the pessimistic skill estimate (mu - 3*sigma) used for
// queue ordering and balance, floored at zero.
func (r Rating) ConservativeMMR() float64 {
	mmr := r.Mu - 3*r.Sigma
	if mmr < 0 {
		return 0
	}
	return mmr
}

// ApplyMatchResult performs the simplified TrueSkill step for one match
// outcome and returns the updated rating with invariants enforced.
func ApplyMatchResult(r Rating, won bool, performance float64) Rating {
	if won {
		delta := performance * 0.3
		if delta < 0.5 {
			delta = 0.5
		}
		r.Mu += delta
		r.Sigma -= 0.1
	} else {
		delta := -performance * 0.2
		if delta > -0.5 {
			delta = -0.5
		}
		r.Mu += delta
		r.Sigma -= 0.05
	}

	if r.Mu < 0 {
		r.Mu = 0
	}
	if r.Sigma < MinSigma {
		r.Sigma = MinSigma
	}
	return r
}

// MatchRecord is one entry of the per-player match history ring buffer.
type MatchRecord struct {
	MatchID     string
	GameMode    string
	Won         bool
	Performance float64
	PlayedAt    time.Time
}
