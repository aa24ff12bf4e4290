// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package netcode

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/clock"
	"github.com/arcadelive/realtime-core/pkg/matchmaking"
	"github.com/arcadelive/realtime-core/pkg/testsetup"
)

func adminMessage(p agent.Payload) agent.Message {
	return agent.Message{
		Type:    agent.MessageCommand,
		From:    "external",
		Payload: p,
	}
}

func TestUpdateTickRateResetsTheTicker(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	clk := clock.NewFake(netEpoch)
	a := newNetAgent(clk)
	a.ticker = clk.NewTicker(time.Second / 30)

	payload, err := a.ProcessMessage(g.TestScope, adminMessage(UpdateTickRate{Hz: 60}))
	g.Expect(err).ToNot(HaveOccurred())

	resp := payload.(agent.Response)
	g.Expect(resp.Data["tickRate"]).To(Equal(60))
	g.Expect(resp.Data["tickIntervalMs"]).To(Equal(int64(16)))
	g.Expect(a.TickRate()).To(Equal(60))

	// the ticker now fires on the 60Hz period, not the old 33ms one
	clk.Advance(17 * time.Millisecond)
	g.Expect(a.ticker.C()).To(Receive())
}

func TestUpdateTickRateRejectsOutOfRangeValues(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))

	for _, hz := range []int{9, 121, 0, -5} {
		_, err := a.ProcessMessage(g.TestScope, adminMessage(UpdateTickRate{Hz: hz}))
		g.Expect(err).To(HaveOccurred())
		g.Expect(err.Error()).To(Equal("Tick rate must be between 10 and 120 Hz"))
	}
	g.Expect(a.TickRate()).To(Equal(30))
}

func TestAllocateServerTracksThePendingSession(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))

	payload, err := a.ProcessMessage(g.TestScope, adminMessage(matchmaking.AllocateServer{
		MatchID:     "match-1",
		GameMode:    "halo-arena",
		PlayerCount: 10,
		Region:      "eu",
	}))
	g.Expect(err).ToNot(HaveOccurred())

	resp := payload.(agent.Response)
	g.Expect(resp.Data["matchId"]).To(Equal("match-1"))
	g.Expect(resp.Data["region"]).To(Equal("eu"))

	session, ok := a.sessions["match-1"]
	g.Expect(ok).To(BeTrue())
	g.Expect(session.PlayerCount).To(Equal(10))
	g.Expect(session.GameMode).To(Equal("halo-arena"))
}

func TestServerStatusAggregatesClientTelemetry(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))
	addFakePlayer(a, "client-1", "entity-1", 40)
	addFakePlayer(a, "client-2", "entity-2", 60)

	a.mu.Lock()
	a.aggregateTelemetryLocked()
	a.mu.Unlock()

	payload, err := a.ProcessMessage(g.TestScope, adminMessage(GetServerStatus{}))
	g.Expect(err).ToNot(HaveOccurred())

	data := payload.(agent.Response).Data
	g.Expect(data["clients"]).To(Equal(2))
	g.Expect(data["entities"]).To(Equal(2))
	g.Expect(data["tickRate"]).To(Equal(30))
	g.Expect(data["avgRttMs"]).To(BeNumerically("~", 50, 1e-9))
}

func TestServerStatusReportsTheLastTickAggregates(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))
	addFakePlayer(a, "client-1", "entity-1", 40)

	a.mu.Lock()
	a.aggregateTelemetryLocked()
	// telemetry arriving between ticks is invisible until the next tick
	a.clients["client-1"].rttMs = 90
	a.mu.Unlock()

	payload, err := a.ProcessMessage(g.TestScope, adminMessage(GetServerStatus{}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["avgRttMs"]).To(BeNumerically("~", 40, 1e-9))

	a.mu.Lock()
	a.aggregateTelemetryLocked()
	a.mu.Unlock()

	payload, err = a.ProcessMessage(g.TestScope, adminMessage(GetServerStatus{}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["avgRttMs"]).To(BeNumerically("~", 90, 1e-9))
}

func TestServerStatusOmitsTelemetryWithoutClients(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))

	payload, err := a.ProcessMessage(g.TestScope, adminMessage(GetServerStatus{}))
	g.Expect(err).ToNot(HaveOccurred())

	data := payload.(agent.Response).Data
	g.Expect(data["clients"]).To(Equal(0))
	g.Expect(data).ToNot(HaveKey("avgRttMs"))
}

func TestKickingAnUnknownClientIsAnError(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))

	_, err := a.ProcessMessage(g.TestScope, adminMessage(KickClient{ClientID: "ghost"}))
	g.Expect(err).To(MatchError("unknown client: ghost"))
}

func TestLagCompensationDataReturnsTheNearestSnapshot(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	clk := clock.NewFake(netEpoch)
	a := newNetAgent(clk)

	base := clk.Now().UnixMilli()
	a.history = []GameSnapshot{
		{Tick: 4, Timestamp: base - 200},
		{Tick: 5, Timestamp: base - 100},
	}

	payload, err := a.ProcessMessage(g.TestScope, adminMessage(GetLagCompensationData{TimestampMs: base - 120}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["tick"]).To(Equal(uint64(5)))

	_, err = a.ProcessMessage(g.TestScope, adminMessage(GetLagCompensationData{TimestampMs: base - 100000}))
	g.Expect(err).To(HaveOccurred())
}

func TestExternalCommandsMapOntoTypedHandlers(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	clk := clock.NewFake(netEpoch)
	a := newNetAgent(clk)
	a.ticker = clk.NewTicker(time.Second / 30)

	// numbers arrive as float64 when the command crossed a JSON boundary
	payload, err := a.ProcessMessage(g.TestScope, adminMessage(agent.Command{
		Action: ActionUpdateTickRate,
		Data:   map[string]interface{}{"tickRate": float64(60)},
	}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["tickRate"]).To(Equal(60))
	g.Expect(a.TickRate()).To(Equal(60))

	payload, err = a.ProcessMessage(g.TestScope, adminMessage(agent.Command{
		Action: ActionGetServerStatus,
	}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["tickRate"]).To(Equal(60))

	base := clk.Now().UnixMilli()
	a.history = []GameSnapshot{{Tick: 7, Timestamp: base - 50}}
	payload, err = a.ProcessMessage(g.TestScope, adminMessage(agent.Command{
		Action: ActionGetLagCompensation,
		Data:   map[string]interface{}{"timestampMs": float64(base - 40)},
	}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["tick"]).To(Equal(uint64(7)))

	_, err = a.ProcessMessage(g.TestScope, adminMessage(agent.Command{
		Action: ActionKickClient,
		Data:   map[string]interface{}{"clientId": "ghost", "reason": "afk"},
	}))
	g.Expect(err).To(MatchError("unknown client: ghost"))

	payload, err = a.ProcessMessage(g.TestScope, adminMessage(agent.Command{
		Action: ActionSimulateLoad,
		Data:   map[string]interface{}{"clients": float64(25)},
	}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["requested"]).To(Equal(25))
}

func TestUnknownNetcodeActionYieldsExactError(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))

	_, err := a.ProcessMessage(g.TestScope, adminMessage(agent.Command{Action: "explode"}))
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(Equal("Unknown netcode action: explode"))
}

func TestKillSwitchStopsAcceptingNewConnections(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))

	payload, err := a.ProcessMessage(g.TestScope, adminMessage(agent.KillSwitch{Reason: "maintenance"}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload).To(BeNil())
	g.Expect(a.halted).To(BeTrue())

	// the simulation keeps running for players already connected
	a.Tick(g.TestScope)
	g.Expect(a.CurrentTick()).To(Equal(uint64(1)))
}

func TestSimulateLoadIsAcknowledgedButNotRun(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := newNetAgent(clock.NewFake(netEpoch))

	payload, err := a.ProcessMessage(g.TestScope, adminMessage(SimulateLoad{Clients: 50}))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["simulated"]).To(Equal(false))
	g.Expect(payload.(agent.Response).Data["requested"]).To(Equal(50))
}
