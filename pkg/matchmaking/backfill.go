// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaking

import (
	"math"
	"sort"

	pie "github.com/elliotchance/pie/v2"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/envelope"
)

// BackfillFulfilled is emitted to the netcode agent when replacement
// players have been attached to a running match.
type BackfillFulfilled struct {
	MatchID   string
	GameMode  string
	PlayerIDs []string
	Success   bool
}

func (BackfillFulfilled) Kind() string { return "backfill_fulfilled" }

// ProcessBackfillQueue walks the backfill queue in priority order and tries
// to fulfill each request from the same-mode queue. Fulfilled requests are
// removed; partially fulfilled ones stay queued with the remainder.
func (a *Agent) ProcessBackfillQueue(scope *envelope.Scope) []BackfillFulfilled {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.backfillQueue) == 0 {
		return nil
	}

	sort.SliceStable(a.backfillQueue, func(i, j int) bool {
		ri, rj := a.backfillQueue[i].Urgency.rank(), a.backfillQueue[j].Urgency.rank()
		if ri != rj {
			return ri < rj
		}
		return a.backfillQueue[i].CreatedAt.Before(a.backfillQueue[j].CreatedAt)
	})

	var fulfilled []BackfillFulfilled
	var remaining []BackfillRequest

	for _, req := range a.backfillQueue {
		match, ok := a.activeMatches[req.MatchID]
		if !ok || !match.CompletedAt.IsZero() {
			continue // match gone or over, drop the request
		}

		taken := a.takeBackfillPlayers(req)
		if len(taken) == 0 {
			remaining = append(remaining, req)
			continue
		}

		ids := pie.Map(taken, func(p *PlayerProfile) string { return p.PlayerID })
		match.PlayerIDs = append(match.PlayerIDs, ids...)

		if len(taken) < req.RequiredPlayers {
			req.RequiredPlayers -= len(taken)
			remaining = append(remaining, req)
		}

		result := BackfillFulfilled{
			MatchID:   req.MatchID,
			GameMode:  req.GameMode,
			PlayerIDs: ids,
			Success:   true,
		}
		fulfilled = append(fulfilled, result)
		a.metrics.AddBackfillFulfilled(req.GameMode)

		scope.Log.WithField("matchID", req.MatchID).
			WithField("players", ids).
			Info("backfill fulfilled")

		a.Emit(scope, agent.Message{
			Type:    agent.MessageEvent,
			From:    a.ID(),
			To:      []string{a.targets.NetcodeID},
			Payload: result,
		})
	}

	a.backfillQueue = remaining
	return fulfilled
}

// takeBackfillPlayers atomically dequeues up to RequiredPlayers same-mode
// players within the configured mmr window of the match average.
// Caller holds the mutex.
func (a *Agent) takeBackfillPlayers(req BackfillRequest) []*PlayerProfile {
	window := float64(a.cfg.BackfillMMRWindow)
	queue := a.queues[req.GameMode]

	var taken []*PlayerProfile
	var rest []*PlayerProfile
	for _, p := range queue {
		if len(taken) < req.RequiredPlayers && math.Abs(p.MMR-req.AverageMMR) <= window {
			taken = append(taken, p)
			continue
		}
		rest = append(rest, p)
	}

	if len(taken) > 0 {
		a.queues[req.GameMode] = rest
		a.metrics.SetQueueSize(req.GameMode, len(rest))
	}
	return taken
}
