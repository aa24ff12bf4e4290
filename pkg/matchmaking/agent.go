// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

// Package matchmaking implements the skill-based matchmaking agent: per-mode
// queues, party-atomic candidate generation, fairness-gated match creation
// and mid-match backfill.
package matchmaking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	pie "github.com/elliotchance/pie/v2"
	"github.com/oklog/ulid/v2"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/clock"
	"github.com/arcadelive/realtime-core/pkg/config"
	"github.com/arcadelive/realtime-core/pkg/envelope"
	"github.com/arcadelive/realtime-core/pkg/mathutil"
	"github.com/arcadelive/realtime-core/pkg/metrics"
	"github.com/arcadelive/realtime-core/pkg/rating"
)

// Targets names the agents this agent emits follow-up messages to.
type Targets struct {
	DirectorID string
	NetcodeID  string
}

// Agent is the matchmaking agent. All queue and match state is owned here
// and mutated only under its mutex; peers coordinate by message.
type Agent struct {
	*agent.Base

	cfg     *config.Config
	modes   map[string]GameMode
	store   rating.Store
	clk     clock.Clock
	metrics metrics.CoordinationMetrics
	targets Targets

	mu            sync.Mutex
	queues        map[string][]*PlayerProfile
	activeMatches map[string]*MatchResult
	backfillQueue []BackfillRequest
	halted        bool

	stop chan struct{}
}

// NewAgent constructs the matchmaking agent. A nil mode table selects
// DefaultGameModes.
func NewAgent(id string, cfg *config.Config, store rating.Store, clk clock.Clock, m metrics.CoordinationMetrics, modes map[string]GameMode, targets Targets) *Agent {
	if modes == nil {
		modes = DefaultGameModes()
	}
	return &Agent{
		Base:          agent.NewBase(id, "matchmaking"),
		cfg:           cfg,
		modes:         modes,
		store:         store,
		clk:           clk,
		metrics:       m,
		targets:       targets,
		queues:        make(map[string][]*PlayerProfile),
		activeMatches: make(map[string]*MatchResult),
		stop:          make(chan struct{}),
	}
}

// Initialize starts the matching loop and the slower cleanup sweep.
func (a *Agent) Initialize(scope *envelope.Scope) error {
	a.SetStatus(agent.StatusRunning)

	matchTicker := a.clk.NewTicker(time.Duration(a.cfg.MatchIntervalMs) * time.Millisecond)
	cleanupTicker := a.clk.NewTicker(time.Duration(a.cfg.CleanupIntervalSec) * time.Second)

	go func() {
		defer matchTicker.Stop()
		defer cleanupTicker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-matchTicker.C():
				a.RunMatchingPass(scope)
				a.ProcessBackfillQueue(scope)
			case <-cleanupTicker.C():
				a.runCleanup(scope)
			}
		}
	}()

	scope.Log.WithField("agent", a.ID()).Info("matchmaking agent initialised")
	return nil
}

// Shutdown stops the loops. Queued players are discarded with the process.
func (a *Agent) Shutdown(scope *envelope.Scope) error {
	close(a.stop)
	a.SetStatus(agent.StatusStopped)
	scope.Log.WithField("agent", a.ID()).Info("matchmaking agent stopped")
	return nil
}

// ProcessMessage dispatches a bus message to its typed handler.
func (a *Agent) ProcessMessage(scope *envelope.Scope, msg agent.Message) (agent.Payload, error) {
	started := a.clk.Now()
	payload, err := a.dispatch(scope, msg)
	a.ObserveTask(a.clk.Now().Sub(started), err)
	return payload, err
}

func (a *Agent) dispatch(scope *envelope.Scope, msg agent.Message) (agent.Payload, error) {
	switch p := msg.Payload.(type) {
	case JoinQueue:
		return a.handleJoinQueue(scope, p)
	case LeaveQueue:
		return a.handleLeaveQueue(scope, p)
	case UpdateRating:
		return a.handleUpdateRating(scope, p)
	case GetQueueStatus:
		return a.handleQueueStatus(scope, p)
	case RequestBackfill:
		return a.handleRequestBackfill(scope, p)
	case PlayerDisconnect:
		return a.handlePlayerDisconnect(scope, p)
	case MatchComplete:
		return a.handleMatchComplete(scope, p)
	case agent.Command:
		return a.dispatchCommand(scope, p)
	case agent.KillSwitch:
		a.handleKillSwitch(scope, p)
		return nil, nil
	case agent.Response, agent.ErrorResponse:
		// peer acknowledgements routed back by the bus are not acted on
		return nil, nil
	default:
		return nil, fmt.Errorf("Unknown matchmaking action: %s", msg.Payload.Kind())
	}
}

// dispatchCommand maps loosely-typed external commands onto the typed
// handlers, mirroring what the upstream API layer submits.
func (a *Agent) dispatchCommand(scope *envelope.Scope, cmd agent.Command) (agent.Payload, error) {
	switch cmd.Action {
	case ActionJoinQueue:
		return a.handleJoinQueue(scope, JoinQueue{
			PlayerID:          cmd.String("playerId"),
			GameMode:          cmd.String("gameMode"),
			PartyID:           cmd.String("partyId"),
			Role:              cmd.String("role"),
			Region:            cmd.String("region"),
			ConnectionQuality: cmd.String("connectionQuality"),
		})
	case ActionLeaveQueue:
		return a.handleLeaveQueue(scope, LeaveQueue{
			PlayerID: cmd.String("playerId"),
			GameMode: cmd.String("gameMode"),
		})
	case ActionUpdateRating:
		return a.handleUpdateRating(scope, UpdateRating{
			PlayerID:    cmd.String("playerId"),
			MatchID:     cmd.String("matchId"),
			GameMode:    cmd.String("gameMode"),
			Won:         cmd.Bool("won"),
			Performance: cmd.Float("performance"),
		})
	case ActionGetQueueStatus:
		return a.handleQueueStatus(scope, GetQueueStatus{
			GameMode: cmd.String("gameMode"),
			PlayerID: cmd.String("playerId"),
		})
	case ActionRequestBackfill:
		return a.handleRequestBackfill(scope, RequestBackfill{
			MatchID:         cmd.String("matchId"),
			GameMode:        cmd.String("gameMode"),
			RequiredPlayers: cmd.Int("requiredPlayers"),
			AverageMMR:      cmd.Float("averageMMR"),
			Urgency:         Urgency(cmd.String("urgency")),
		})
	case ActionPlayerDisconnect:
		return a.handlePlayerDisconnect(scope, PlayerDisconnect{
			PlayerID: cmd.String("playerId"),
			MatchID:  cmd.String("matchId"),
		})
	case ActionMatchComplete:
		return a.handleMatchComplete(scope, MatchComplete{
			MatchID:     cmd.String("matchId"),
			Winners:     cmd.Strings("winners"),
			Losers:      cmd.Strings("losers"),
			Performance: cmd.FloatMap("performance"),
		})
	default:
		return nil, fmt.Errorf("Unknown matchmaking action: %s", cmd.Action)
	}
}

func (a *Agent) handleJoinQueue(scope *envelope.Scope, p JoinQueue) (agent.Payload, error) {
	mode, ok := a.modes[p.GameMode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrUnknownGameMode, p.GameMode)
	}

	skill, err := a.store.Load(scope, p.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("load rating for %s: %w", p.PlayerID, err)
	}
	history, err := a.store.History(scope, p.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", p.PlayerID, err)
	}

	mmr := skill.ConservativeMMR()
	profile := &PlayerProfile{
		PlayerID:          p.PlayerID,
		GameMode:          p.GameMode,
		MMR:               mmr,
		Rank:              rating.TierFor(mmr),
		SkillVariance:     skill.Sigma,
		RecentPerformance: rating.RecentPerformance(history, 5),
		PartyID:           p.PartyID,
		Role:              p.Role,
		QueuedAt:          a.clk.Now(),
		ConnectionQuality: p.ConnectionQuality,
		Region:            p.Region,
		SmurfProbability:  rating.SmurfProbability(skill, history),
		ConsecutiveLosses: rating.ConsecutiveLosses(history),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.halted {
		return nil, fmt.Errorf("matchmaking halted: new players are not accepted")
	}
	queue := a.queues[mode.Name]
	if len(queue) >= a.cfg.QueueCapPerMode {
		return nil, fmt.Errorf("%w: %s", agent.ErrQueueFull, mode.Name)
	}
	// re-joining replaces the stale queue entry
	queue = pie.Filter(queue, func(q *PlayerProfile) bool { return q.PlayerID != p.PlayerID })
	queue = append(queue, profile)
	a.queues[mode.Name] = queue
	a.metrics.SetQueueSize(mode.Name, len(queue))

	scope.SetAttributes(envelope.GameModeTag, mode.Name)
	scope.Log.WithField("playerID", p.PlayerID).WithField("gameMode", mode.Name).Info("player joined queue")

	return agent.Response{Data: map[string]interface{}{
		"playerId":        p.PlayerID,
		"mmr":             mmr,
		"rank":            string(profile.Rank),
		"queuePosition":   len(queue),
		"estimatedWaitMs": a.estimateWaitTimeMs(mmr),
	}}, nil
}

func (a *Agent) handleLeaveQueue(scope *envelope.Scope, p LeaveQueue) (agent.Payload, error) {
	if _, ok := a.modes[p.GameMode]; !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrUnknownGameMode, p.GameMode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	queue := a.queues[p.GameMode]
	remaining := pie.Filter(queue, func(q *PlayerProfile) bool { return q.PlayerID != p.PlayerID })
	removed := len(remaining) != len(queue)
	a.queues[p.GameMode] = remaining
	a.metrics.SetQueueSize(p.GameMode, len(remaining))

	// leaving while not queued is a no-op
	return agent.Response{Data: map[string]interface{}{
		"playerId": p.PlayerID,
		"removed":  removed,
	}}, nil
}

func (a *Agent) handleUpdateRating(scope *envelope.Scope, p UpdateRating) (agent.Payload, error) {
	updated, err := a.applyRating(scope, p.PlayerID, p.MatchID, p.GameMode, p.Won, p.Performance)
	if err != nil {
		return nil, err
	}

	return agent.Response{Data: map[string]interface{}{
		"playerId": p.PlayerID,
		"mu":       updated.Mu,
		"sigma":    updated.Sigma,
		"mmr":      updated.ConservativeMMR(),
	}}, nil
}

func (a *Agent) applyRating(scope *envelope.Scope, playerID, matchID, gameMode string, won bool, performance float64) (rating.Rating, error) {
	current, err := a.store.Load(scope, playerID)
	if err != nil {
		return rating.Rating{}, fmt.Errorf("load rating for %s: %w", playerID, err)
	}

	updated := rating.ApplyMatchResult(current, won, performance)
	if err := a.store.Save(scope, playerID, updated); err != nil {
		return rating.Rating{}, fmt.Errorf("save rating for %s: %w", playerID, err)
	}

	rec := rating.MatchRecord{
		MatchID:     matchID,
		GameMode:    gameMode,
		Won:         won,
		Performance: performance,
		PlayedAt:    a.clk.Now(),
	}
	if err := a.store.AppendHistory(scope, playerID, rec); err != nil {
		return rating.Rating{}, fmt.Errorf("append history for %s: %w", playerID, err)
	}
	return updated, nil
}

func (a *Agent) handleQueueStatus(scope *envelope.Scope, p GetQueueStatus) (agent.Payload, error) {
	mode, ok := a.modes[p.GameMode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrUnknownGameMode, p.GameMode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	queue := a.queues[mode.Name]
	data := map[string]interface{}{
		"gameMode":        mode.Name,
		"queueSize":       len(queue),
		"requiredPlayers": mode.RequiredPlayers(),
	}
	if p.PlayerID != "" {
		index := pie.FindFirstUsing(queue, func(q *PlayerProfile) bool { return q.PlayerID == p.PlayerID })
		data["queued"] = index >= 0
		if index >= 0 {
			data["estimatedWaitMs"] = a.estimateWaitTimeMs(queue[index].MMR)
		}
	}
	return agent.Response{Data: data}, nil
}

func (a *Agent) handleRequestBackfill(scope *envelope.Scope, p RequestBackfill) (agent.Payload, error) {
	if _, ok := a.modes[p.GameMode]; !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrUnknownGameMode, p.GameMode)
	}
	urgency := p.Urgency
	if urgency == "" {
		urgency = UrgencyMedium
	}

	a.mu.Lock()
	a.backfillQueue = append(a.backfillQueue, BackfillRequest{
		MatchID:         p.MatchID,
		GameMode:        p.GameMode,
		RequiredPlayers: p.RequiredPlayers,
		AverageMMR:      p.AverageMMR,
		Urgency:         urgency,
		CreatedAt:       a.clk.Now(),
	})
	depth := len(a.backfillQueue)
	a.mu.Unlock()

	return agent.Response{Data: map[string]interface{}{
		"matchId":    p.MatchID,
		"queued":     true,
		"queueDepth": depth,
	}}, nil
}

func (a *Agent) handlePlayerDisconnect(scope *envelope.Scope, p PlayerDisconnect) (agent.Payload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	match, ok := a.activeMatches[p.MatchID]
	if !ok {
		return nil, fmt.Errorf("unknown match: %s", p.MatchID)
	}

	match.PlayerIDs = pie.Filter(match.PlayerIDs, func(id string) bool { return id != p.PlayerID })
	a.backfillQueue = append(a.backfillQueue, BackfillRequest{
		MatchID:         match.MatchID,
		GameMode:        match.GameMode,
		RequiredPlayers: 1,
		AverageMMR:      match.AverageMMR,
		Urgency:         UrgencyHigh,
		CreatedAt:       a.clk.Now(),
	})

	scope.Log.WithField("matchID", p.MatchID).WithField("playerID", p.PlayerID).
		Info("player disconnected mid-match, backfill queued")

	return agent.Response{Data: map[string]interface{}{
		"matchId":        p.MatchID,
		"backfillQueued": true,
	}}, nil
}

func (a *Agent) handleMatchComplete(scope *envelope.Scope, p MatchComplete) (agent.Payload, error) {
	a.mu.Lock()
	match, ok := a.activeMatches[p.MatchID]
	if ok {
		match.CompletedAt = a.clk.Now()
	}
	a.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown match: %s", p.MatchID)
	}

	for _, id := range p.Winners {
		if _, err := a.applyRating(scope, id, p.MatchID, match.GameMode, true, p.Performance[id]); err != nil {
			return nil, err
		}
	}
	for _, id := range p.Losers {
		if _, err := a.applyRating(scope, id, p.MatchID, match.GameMode, false, p.Performance[id]); err != nil {
			return nil, err
		}
	}

	return agent.Response{Data: map[string]interface{}{
		"matchId":   p.MatchID,
		"completed": true,
	}}, nil
}

// handleKillSwitch halts intake: joins are refused and the matching pass
// idles. Matches already running complete normally.
func (a *Agent) handleKillSwitch(scope *envelope.Scope, p agent.KillSwitch) {
	a.mu.Lock()
	a.halted = true
	a.mu.Unlock()
	scope.Log.WithField("reason", p.Reason).Warn("kill switch received, matchmaking intake halted")
}

// estimateWaitTimeMs grows with distance from the mid bracket, where queues
// are thinnest, and is capped by config.
func (a *Agent) estimateWaitTimeMs(mmr float64) int {
	penalty := 10 * mathutil.Max(mmr-1500, 1500-mmr)
	return mathutil.Min(a.cfg.MaxWaitTimeMs, a.cfg.BaseWaitTimeMs+int(penalty))
}

// RunMatchingPass runs one matching attempt for every game mode. Called by
// the loop each interval and directly by tests.
func (a *Agent) RunMatchingPass(scope *envelope.Scope) []MatchResult {
	now := a.clk.Now()
	var created []MatchResult

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.halted {
		return nil
	}
	for _, mode := range a.sortedModes() {
		for {
			result, ok := a.matchOnce(scope, mode, now)
			if !ok {
				break
			}
			created = append(created, result)
		}
	}
	return created
}

// matchOnce evaluates one candidate set for the mode and creates at most one
// match. Caller holds the mutex.
func (a *Agent) matchOnce(scope *envelope.Scope, mode GameMode, now time.Time) (MatchResult, bool) {
	queue := a.queues[mode.Name]
	required := mode.RequiredPlayers()
	if len(queue) < required {
		return MatchResult{}, false
	}

	groups := groupParties(queue)
	combos := generateCombinations(groups, required, a.cfg.CandidateSearchLimit)
	if len(combos) == 0 {
		return MatchResult{}, false
	}

	best := MatchCandidate{}
	bestScore := -1.0
	for _, combo := range combos {
		candidate := buildCandidate(mode, combo, now)
		if score := selectionScore(candidate, now); score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	// sub-threshold candidates stay invisible: players keep waiting and the
	// wait-time term lifts the next attempt
	if best.FairnessScore < mode.FairnessThreshold {
		scope.Log.WithField("gameMode", mode.Name).
			WithField("fairness", best.FairnessScore).
			Debug("best candidate below fairness gate, retrying next tick")
		return MatchResult{}, false
	}

	return a.createMatch(scope, mode, best, now), true
}

// createMatch dequeues the candidate players and announces the match.
// Caller holds the mutex.
func (a *Agent) createMatch(scope *envelope.Scope, mode GameMode, candidate MatchCandidate, now time.Time) MatchResult {
	matched := make(map[string]struct{}, len(candidate.Players))
	for _, p := range candidate.Players {
		matched[p.PlayerID] = struct{}{}
	}
	a.queues[mode.Name] = pie.Filter(a.queues[mode.Name], func(q *PlayerProfile) bool {
		_, ok := matched[q.PlayerID]
		return !ok
	})
	a.metrics.SetQueueSize(mode.Name, len(a.queues[mode.Name]))

	result := MatchResult{
		MatchID:           ulid.Make().String(),
		PlayerIDs:         pie.Map(candidate.Players, func(p *PlayerProfile) string { return p.PlayerID }),
		GameMode:          mode.Name,
		ServerRegion:      candidate.Region,
		EstimatedDuration: mode.EstimatedDuration,
		CreatedAt:         now,
		AverageMMR:        candidate.AverageMMR,
	}
	a.activeMatches[result.MatchID] = &result
	a.metrics.AddMatchCreated(mode.Name, candidate.FairnessScore)

	scope.SetAttributes(envelope.MatchIDTag, result.MatchID)
	scope.Log.WithField("matchID", result.MatchID).
		WithField("gameMode", mode.Name).
		WithField("fairness", candidate.FairnessScore).
		Info("match created")

	a.Emit(scope, agent.Message{
		Type: agent.MessageEvent,
		From: a.ID(),
		To:   []string{a.targets.DirectorID},
		Payload: MatchCreated{
			MatchID:     result.MatchID,
			GameMode:    mode.Name,
			PlayerIDs:   result.PlayerIDs,
			Region:      result.ServerRegion,
			Fairness:    candidate.FairnessScore,
			AverageMMR:  candidate.AverageMMR,
			PlayerCount: len(result.PlayerIDs),
		},
	})
	a.Emit(scope, agent.Message{
		Type: agent.MessageCommand,
		From: a.ID(),
		To:   []string{a.targets.NetcodeID},
		Payload: AllocateServer{
			MatchID:     result.MatchID,
			GameMode:    mode.Name,
			PlayerCount: len(result.PlayerIDs),
			Region:      result.ServerRegion,
		},
	})

	return result
}

// sortedModes gives a stable iteration order over the mode table.
func (a *Agent) sortedModes() []GameMode {
	modes := make([]GameMode, 0, len(a.modes))
	for _, m := range a.modes {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i].Name < modes[j].Name })
	return modes
}

// runCleanup drops completed matches past their retention window and
// backfill requests whose match no longer exists.
func (a *Agent) runCleanup(scope *envelope.Scope) {
	now := a.clk.Now()
	ttl := time.Duration(a.cfg.MatchResultTTLSec) * time.Second

	a.mu.Lock()
	defer a.mu.Unlock()

	for id, match := range a.activeMatches {
		if !match.CompletedAt.IsZero() && now.Sub(match.CompletedAt) >= ttl {
			delete(a.activeMatches, id)
		}
	}
	a.backfillQueue = pie.Filter(a.backfillQueue, func(req BackfillRequest) bool {
		_, ok := a.activeMatches[req.MatchID]
		return ok
	})
}

// ActiveMatch returns a copy of the match result, if it is still retained.
func (a *Agent) ActiveMatch(matchID string) (MatchResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	match, ok := a.activeMatches[matchID]
	if !ok {
		return MatchResult{}, false
	}
	return *match, true
}

// QueueSize reports the queue depth for a game mode.
func (a *Agent) QueueSize(gameMode string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queues[gameMode])
}
