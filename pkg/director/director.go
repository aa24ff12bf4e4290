// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

// Package director hosts the policy agent sitting atop the coordination
// bus. It tracks launch milestones against live KPIs, serves roadmap and
// KPI reports, and owns the kill switch used to halt intake fleet-wide.
package director

import (
	"fmt"
	"sync"
	"time"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/clock"
	"github.com/arcadelive/realtime-core/pkg/envelope"
	"github.com/arcadelive/realtime-core/pkg/matchmaking"
	"github.com/arcadelive/realtime-core/pkg/orchestrator"
)

// KPISample is the point-in-time view a milestone predicate is evaluated
// against. Bus figures come from the orchestrator, the rest from the
// director's own running counters.
type KPISample struct {
	MatchesCreated   int64
	PlayersMatched   int64
	BusTotalMessages int64
	BusAvgLatencyMs  float64
	ActiveAgents     int
}

// Milestone is one gated entry on the roadmap. Gating is strictly ordered:
// a milestone can only unlock once every earlier milestone has.
type Milestone struct {
	ID        string
	Name      string
	Predicate func(KPISample) bool `json:"-"`
	Reached   bool
	ReachedAt time.Time
}

// MetricsSource exposes the aggregate bus counters the KPI predicates read.
type MetricsSource interface {
	GetMetrics() orchestrator.Metrics
}

// DefaultMilestones returns the launch roadmap in gating order.
func DefaultMilestones() []Milestone {
	return []Milestone{
		{
			ID:        "first-match",
			Name:      "First match created",
			Predicate: func(s KPISample) bool { return s.MatchesCreated >= 1 },
		},
		{
			ID:        "hundred-players",
			Name:      "100 players matched",
			Predicate: func(s KPISample) bool { return s.PlayersMatched >= 100 },
		},
		{
			ID:        "thousand-matches",
			Name:      "1000 matches created",
			Predicate: func(s KPISample) bool { return s.MatchesCreated >= 1000 },
		},
	}
}

// Agent implements the game-director policy layer.
type Agent struct {
	*agent.Base
	clk     clock.Clock
	metrics MetricsSource

	mu               sync.Mutex
	milestones       []Milestone
	matchesCreated   int64
	playersMatched   int64
	matchesByMode    map[string]int64
	killSwitchActive bool
	killSwitchReason string
}

// NewAgent builds the director around a roadmap. A nil milestones slice
// selects DefaultMilestones; a nil source disables bus KPIs in reports.
func NewAgent(id string, clk clock.Clock, source MetricsSource, milestones []Milestone) *Agent {
	if milestones == nil {
		milestones = DefaultMilestones()
	}
	return &Agent{
		Base:          agent.NewBase(id, "game-director"),
		clk:           clk,
		metrics:       source,
		milestones:    milestones,
		matchesByMode: make(map[string]int64),
	}
}

func (a *Agent) Initialize(scope *envelope.Scope) error {
	a.SetStatus(agent.StatusRunning)
	scope.Log.WithField("agent", a.ID()).Info("director agent started")
	return nil
}

func (a *Agent) Shutdown(scope *envelope.Scope) error {
	a.SetStatus(agent.StatusStopped)
	scope.Log.WithField("agent", a.ID()).Info("director agent stopped")
	return nil
}

func (a *Agent) ProcessMessage(scope *envelope.Scope, msg agent.Message) (agent.Payload, error) {
	start := a.clk.Now()
	payload, err := a.dispatch(scope, msg)
	a.ObserveTask(a.clk.Now().Sub(start), err)
	return payload, err
}

func (a *Agent) dispatch(scope *envelope.Scope, msg agent.Message) (agent.Payload, error) {
	switch p := msg.Payload.(type) {
	case matchmaking.MatchCreated:
		a.recordMatch(scope, p)
		return nil, nil
	case GetRoadmap:
		return a.handleRoadmap(), nil
	case ReportKPI:
		return a.handleKPIReport(), nil
	case TriggerKillSwitch:
		return a.handleKillSwitch(scope, p), nil
	case agent.Command:
		return a.dispatchCommand(scope, p)
	case agent.KillSwitch:
		// the broadcast fans out to every agent including its own sender;
		// the director already owns the kill-switch state
		return nil, nil
	case agent.Response, agent.ErrorResponse:
		// peer acknowledgements routed back by the bus are not acted on
		return nil, nil
	default:
		return nil, fmt.Errorf("Unknown director action: %s", msg.Payload.Kind())
	}
}

// dispatchCommand maps loosely-typed external commands onto the typed
// handlers, mirroring what the upstream API layer submits.
func (a *Agent) dispatchCommand(scope *envelope.Scope, cmd agent.Command) (agent.Payload, error) {
	switch cmd.Action {
	case ActionGetRoadmap:
		return a.handleRoadmap(), nil
	case ActionReportKPI:
		return a.handleKPIReport(), nil
	case ActionTriggerKillSwitch:
		return a.handleKillSwitch(scope, TriggerKillSwitch{Reason: cmd.String("reason")}), nil
	default:
		return nil, fmt.Errorf("Unknown director action: %s", cmd.Action)
	}
}

func (a *Agent) recordMatch(scope *envelope.Scope, evt matchmaking.MatchCreated) {
	a.mu.Lock()
	a.matchesCreated++
	a.playersMatched += int64(evt.PlayerCount)
	a.matchesByMode[evt.GameMode]++
	unlocked := a.evaluateMilestonesLocked()
	a.mu.Unlock()

	for _, m := range unlocked {
		scope.Log.WithFields(map[string]interface{}{
			"milestone": m.ID,
			"match":     evt.MatchID,
		}).Info("milestone reached")
	}
}

// evaluateMilestonesLocked advances the gate as far as the current sample
// allows and returns the milestones that flipped on this evaluation.
func (a *Agent) evaluateMilestonesLocked() []Milestone {
	sample := a.sampleLocked()
	var unlocked []Milestone
	for i := range a.milestones {
		m := &a.milestones[i]
		if m.Reached {
			continue
		}
		if m.Predicate == nil || !m.Predicate(sample) {
			break
		}
		m.Reached = true
		m.ReachedAt = a.clk.Now()
		unlocked = append(unlocked, *m)
	}
	return unlocked
}

func (a *Agent) sampleLocked() KPISample {
	sample := KPISample{
		MatchesCreated: a.matchesCreated,
		PlayersMatched: a.playersMatched,
	}
	if a.metrics != nil {
		bus := a.metrics.GetMetrics()
		sample.BusTotalMessages = bus.TotalMessages
		sample.BusAvgLatencyMs = bus.AvgLatencyMs
		sample.ActiveAgents = bus.ActiveAgents
	}
	return sample
}

func (a *Agent) handleRoadmap() agent.Response {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]map[string]interface{}, 0, len(a.milestones))
	for _, m := range a.milestones {
		entry := map[string]interface{}{
			"id":      m.ID,
			"name":    m.Name,
			"reached": m.Reached,
		}
		if m.Reached {
			entry["reachedAt"] = m.ReachedAt
		}
		entries = append(entries, entry)
	}
	return agent.Response{Data: map[string]interface{}{
		"milestones":       entries,
		"killSwitchActive": a.killSwitchActive,
	}}
}

func (a *Agent) handleKPIReport() agent.Response {
	a.mu.Lock()
	defer a.mu.Unlock()

	sample := a.sampleLocked()
	byMode := make(map[string]interface{}, len(a.matchesByMode))
	for mode, n := range a.matchesByMode {
		byMode[mode] = n
	}
	reached := 0
	for _, m := range a.milestones {
		if m.Reached {
			reached++
		}
	}
	return agent.Response{Data: map[string]interface{}{
		"matchesCreated":    sample.MatchesCreated,
		"playersMatched":    sample.PlayersMatched,
		"matchesByMode":     byMode,
		"busTotalMessages":  sample.BusTotalMessages,
		"busAvgLatencyMs":   sample.BusAvgLatencyMs,
		"activeAgents":      sample.ActiveAgents,
		"milestonesReached": reached,
		"milestonesTotal":   len(a.milestones),
		"killSwitchActive":  a.killSwitchActive,
		"killSwitchReason":  a.killSwitchReason,
	}}
}

// handleKillSwitch flips the switch and broadcasts the event to every
// registered agent. Triggering an already-active switch is idempotent.
func (a *Agent) handleKillSwitch(scope *envelope.Scope, cmd TriggerKillSwitch) agent.Response {
	a.mu.Lock()
	already := a.killSwitchActive
	a.killSwitchActive = true
	a.killSwitchReason = cmd.Reason
	a.mu.Unlock()

	if !already {
		scope.Log.WithField("reason", cmd.Reason).Warn("kill switch activated")
		a.EmitBroadcast(scope, agent.Message{
			Type:    agent.MessageEvent,
			From:    a.ID(),
			Payload: agent.KillSwitch{Reason: cmd.Reason},
		})
	}
	return agent.Response{Data: map[string]interface{}{
		"active":        true,
		"alreadyActive": already,
		"reason":        cmd.Reason,
	}}
}

// KillSwitchActive reports the current switch state.
func (a *Agent) KillSwitchActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.killSwitchActive
}
