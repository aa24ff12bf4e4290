// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package netcode

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/stat"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/envelope"
	"github.com/arcadelive/realtime-core/pkg/matchmaking"
)

// Admin action discriminators understood by the netcode agent.
const (
	ActionGetServerStatus    = "get_server_status"
	ActionUpdateTickRate     = "update_tick_rate"
	ActionKickClient         = "kick_client"
	ActionGetLagCompensation = "get_lag_compensation_data"
	ActionSimulateLoad       = "simulate_load"
)

// GetServerStatus reports tick, client and timing state.
type GetServerStatus struct{}

func (GetServerStatus) Kind() string { return ActionGetServerStatus }

// UpdateTickRate changes the simulation rate at runtime by resetting the
// tick timer. Valid range is 10-120 Hz.
type UpdateTickRate struct {
	Hz int
}

func (UpdateTickRate) Kind() string { return ActionUpdateTickRate }

// KickClient gracefully closes one client connection.
type KickClient struct {
	ClientID string
	Reason   string
}

func (KickClient) Kind() string { return ActionKickClient }

// GetLagCompensationData returns the historical snapshot nearest a timestamp.
type GetLagCompensationData struct {
	TimestampMs int64
}

func (GetLagCompensationData) Kind() string { return ActionGetLagCompensation }

// SimulateLoad is a load-test stub.
type SimulateLoad struct {
	Clients int
}

func (SimulateLoad) Kind() string { return ActionSimulateLoad }

// ProcessMessage dispatches a bus message to its typed handler.
func (a *Agent) ProcessMessage(scope *envelope.Scope, msg agent.Message) (agent.Payload, error) {
	started := a.clk.Now()
	payload, err := a.dispatch(scope, msg)
	a.ObserveTask(a.clk.Now().Sub(started), err)
	return payload, err
}

func (a *Agent) dispatch(scope *envelope.Scope, msg agent.Message) (agent.Payload, error) {
	switch p := msg.Payload.(type) {
	case matchmaking.AllocateServer:
		return a.handleAllocateServer(scope, p)
	case matchmaking.BackfillFulfilled:
		scope.Log.WithField("matchID", p.MatchID).WithField("players", p.PlayerIDs).
			Info("backfill players joining session")
		return nil, nil
	case GetServerStatus:
		return a.handleServerStatus(), nil
	case UpdateTickRate:
		return a.handleUpdateTickRate(scope, p)
	case KickClient:
		return a.handleKickClient(scope, p)
	case GetLagCompensationData:
		return a.handleLagCompensationData(p)
	case SimulateLoad:
		return a.handleSimulateLoad(p), nil
	case agent.Command:
		return a.dispatchCommand(scope, p)
	case agent.KillSwitch:
		a.handleKillSwitch(scope, p)
		return nil, nil
	case agent.Response, agent.ErrorResponse:
		// peer acknowledgements routed back by the bus are not acted on
		return nil, nil
	default:
		return nil, fmt.Errorf("Unknown netcode action: %s", msg.Payload.Kind())
	}
}

// dispatchCommand maps loosely-typed external commands onto the typed
// handlers, mirroring what the upstream API layer submits.
func (a *Agent) dispatchCommand(scope *envelope.Scope, cmd agent.Command) (agent.Payload, error) {
	switch cmd.Action {
	case ActionGetServerStatus:
		return a.handleServerStatus(), nil
	case ActionUpdateTickRate:
		return a.handleUpdateTickRate(scope, UpdateTickRate{Hz: cmd.Int("tickRate")})
	case ActionKickClient:
		return a.handleKickClient(scope, KickClient{
			ClientID: cmd.String("clientId"),
			Reason:   cmd.String("reason"),
		})
	case ActionGetLagCompensation:
		return a.handleLagCompensationData(GetLagCompensationData{
			TimestampMs: cmd.Int64("timestampMs"),
		})
	case ActionSimulateLoad:
		return a.handleSimulateLoad(SimulateLoad{Clients: cmd.Int("clients")}), nil
	default:
		return nil, fmt.Errorf("Unknown netcode action: %s", cmd.Action)
	}
}

// handleSimulateLoad is a load-test stub: acknowledged but not simulated.
func (a *Agent) handleSimulateLoad(p SimulateLoad) agent.Payload {
	return agent.Response{Data: map[string]interface{}{"simulated": false, "requested": p.Clients}}
}

func (a *Agent) handleAllocateServer(scope *envelope.Scope, p matchmaking.AllocateServer) (agent.Payload, error) {
	a.mu.Lock()
	a.sessions[p.MatchID] = pendingSession{
		MatchID:     p.MatchID,
		GameMode:    p.GameMode,
		Region:      p.Region,
		PlayerCount: p.PlayerCount,
		AllocatedAt: a.clk.Now(),
	}
	a.mu.Unlock()

	scope.SetAttributes(envelope.MatchIDTag, p.MatchID)
	scope.Log.WithField("matchID", p.MatchID).WithField("region", p.Region).
		Info("server session allocated")

	return agent.Response{Data: map[string]interface{}{
		"matchId":  p.MatchID,
		"region":   p.Region,
		"endpoint": a.Addr(),
	}}, nil
}

func (a *Agent) handleServerStatus() agent.Payload {
	a.mu.Lock()
	defer a.mu.Unlock()

	data := map[string]interface{}{
		"tick":            a.tick,
		"tickRate":        a.tickRate,
		"clients":         len(a.clients),
		"maxClients":      a.cfg.MaxClients,
		"entities":        len(a.entities),
		"pendingSessions": len(a.sessions),
		"frameTimeMs":     a.frameTimeMs,
	}
	if len(a.clients) > 0 {
		data["avgRttMs"] = a.avgRttMs
		data["avgJitterMs"] = a.avgJitterMs
		data["avgPacketLoss"] = a.avgPacketLoss
	}
	return agent.Response{Data: data}
}

// aggregateTelemetryLocked folds per-client rtt, jitter and loss into the
// per-tick aggregates that get_server_status reports. Runs once per tick.
func (a *Agent) aggregateTelemetryLocked() {
	if len(a.clients) == 0 {
		a.avgRttMs, a.avgJitterMs, a.avgPacketLoss = 0, 0, 0
		return
	}
	rtts := make([]float64, 0, len(a.clients))
	jitters := make([]float64, 0, len(a.clients))
	losses := make([]float64, 0, len(a.clients))
	for _, c := range a.clients {
		rtts = append(rtts, c.rttMs)
		jitters = append(jitters, c.jitterMs)
		losses = append(losses, c.packetLoss)
	}
	a.avgRttMs = stat.Mean(rtts, nil)
	a.avgJitterMs = stat.Mean(jitters, nil)
	a.avgPacketLoss = stat.Mean(losses, nil)
}

func (a *Agent) handleUpdateTickRate(scope *envelope.Scope, p UpdateTickRate) (agent.Payload, error) {
	if p.Hz < minTickRate || p.Hz > maxTickRate {
		return nil, ErrInvalidTickRate
	}

	a.mu.Lock()
	a.tickRate = p.Hz
	interval := a.tickIntervalLocked()
	a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Reset(interval)
	}

	scope.Log.WithField("tickRate", p.Hz).Info("tick rate updated")
	return agent.Response{Data: map[string]interface{}{
		"tickRate":       p.Hz,
		"tickIntervalMs": interval.Milliseconds(),
	}}, nil
}

func (a *Agent) handleKickClient(scope *envelope.Scope, p KickClient) (agent.Payload, error) {
	a.mu.Lock()
	c, ok := a.clients[p.ClientID]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown client: %s", p.ClientID)
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, p.Reason),
		a.clk.Now().Add(time.Second))
	a.removeClient(scope, p.ClientID)

	return agent.Response{Data: map[string]interface{}{
		"clientId": p.ClientID,
		"kicked":   true,
	}}, nil
}

func (a *Agent) handleLagCompensationData(p GetLagCompensationData) (agent.Payload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := a.nearestSnapshotLocked(p.TimestampMs, 2*int64(a.cfg.LagCompWindowMs))
	if snapshot == nil {
		return nil, fmt.Errorf("no snapshot within window of timestamp %d", p.TimestampMs)
	}
	return agent.Response{Data: map[string]interface{}{
		"tick":      snapshot.Tick,
		"timestamp": snapshot.Timestamp,
		"entities":  snapshot.Entities,
	}}, nil
}

// handleKillSwitch stops accepting new connections. Connected clients keep
// playing and the tick loop keeps running for them.
func (a *Agent) handleKillSwitch(scope *envelope.Scope, p agent.KillSwitch) {
	a.mu.Lock()
	a.halted = true
	a.mu.Unlock()
	scope.Log.WithField("reason", p.Reason).Warn("kill switch received, refusing new connections")
}

// CurrentTick reports the last completed tick.
func (a *Agent) CurrentTick() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tick
}

// TickRate reports the configured simulation rate in Hz.
func (a *Agent) TickRate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tickRate
}
