// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package director

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/clock"
	"github.com/arcadelive/realtime-core/pkg/envelope"
	"github.com/arcadelive/realtime-core/pkg/matchmaking"
	"github.com/arcadelive/realtime-core/pkg/orchestrator"
	"github.com/arcadelive/realtime-core/pkg/testsetup"
)

var directorEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// recordingSender captures everything broadcast through the bound bus.
type recordingSender struct {
	sent      []agent.Message
	broadcast []agent.Message
}

func (r *recordingSender) Send(_ *envelope.Scope, msg agent.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) Broadcast(_ *envelope.Scope, msg agent.Message) error {
	r.broadcast = append(r.broadcast, msg)
	return nil
}

// fixedMetrics serves a canned bus snapshot.
type fixedMetrics struct {
	m orchestrator.Metrics
}

func (f fixedMetrics) GetMetrics() orchestrator.Metrics { return f.m }

func eventMessage(p agent.Payload) agent.Message {
	return agent.Message{
		Type:    agent.MessageEvent,
		From:    "matchmaking",
		Payload: p,
	}
}

func feedMatches(g testsetup.GomegaWithScope, a *Agent, mode string, count, playersEach int) {
	for i := 0; i < count; i++ {
		_, err := a.ProcessMessage(g.TestScope, eventMessage(matchmaking.MatchCreated{
			MatchID:     "match",
			GameMode:    mode,
			PlayerCount: playersEach,
		}))
		g.Expect(err).ToNot(HaveOccurred())
	}
}

func roadmap(g testsetup.GomegaWithScope, a *Agent) map[string]interface{} {
	payload, err := a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageRequest,
		From:    "external",
		Payload: GetRoadmap{},
	})
	g.Expect(err).ToNot(HaveOccurred())
	return payload.(agent.Response).Data
}

func reachedIDs(data map[string]interface{}) []string {
	var ids []string
	for _, e := range data["milestones"].([]map[string]interface{}) {
		if e["reached"].(bool) {
			ids = append(ids, e["id"].(string))
		}
	}
	return ids
}

func TestMilestonesUnlockStrictlyInOrder(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	clk := clock.NewFake(directorEpoch)

	// the second gate needs 100 players but the third only needs 2 matches,
	// so the third must stay locked until the second opens
	milestones := []Milestone{
		{ID: "first", Predicate: func(s KPISample) bool { return s.MatchesCreated >= 1 }},
		{ID: "second", Predicate: func(s KPISample) bool { return s.PlayersMatched >= 100 }},
		{ID: "third", Predicate: func(s KPISample) bool { return s.MatchesCreated >= 2 }},
	}
	a := NewAgent("director", clk, nil, milestones)

	feedMatches(g, a, "halo-arena", 1, 10)
	g.Expect(reachedIDs(roadmap(g, a))).To(Equal([]string{"first"}))

	feedMatches(g, a, "halo-arena", 8, 10)
	g.Expect(reachedIDs(roadmap(g, a))).To(Equal([]string{"first"}))

	// the 10th match crosses 100 players and unblocks both remaining gates
	feedMatches(g, a, "halo-arena", 1, 10)
	g.Expect(reachedIDs(roadmap(g, a))).To(Equal([]string{"first", "second", "third"}))
}

func TestDefaultRoadmapStartsLocked(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := NewAgent("director", clock.NewFake(directorEpoch), nil, nil)

	data := roadmap(g, a)
	g.Expect(data["milestones"]).To(HaveLen(3))
	g.Expect(reachedIDs(data)).To(BeEmpty())
	g.Expect(data["killSwitchActive"]).To(Equal(false))
}

func TestFirstMatchUnlocksTheFirstDefaultMilestone(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	clk := clock.NewFake(directorEpoch)
	a := NewAgent("director", clk, nil, nil)

	feedMatches(g, a, "halo-rally", 1, 8)

	data := roadmap(g, a)
	g.Expect(reachedIDs(data)).To(Equal([]string{"first-match"}))
	entry := data["milestones"].([]map[string]interface{})[0]
	g.Expect(entry["reachedAt"]).To(Equal(directorEpoch))
}

func TestKPIReportCombinesOwnCountersWithBusMetrics(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	clk := clock.NewFake(directorEpoch)
	source := fixedMetrics{m: orchestrator.Metrics{
		TotalMessages: 42,
		AvgLatencyMs:  1.5,
		ActiveAgents:  3,
	}}
	a := NewAgent("director", clk, source, nil)

	feedMatches(g, a, "halo-arena", 2, 10)
	feedMatches(g, a, "halo-rally", 1, 8)

	payload, err := a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageRequest,
		From:    "external",
		Payload: ReportKPI{},
	})
	g.Expect(err).ToNot(HaveOccurred())

	data := payload.(agent.Response).Data
	g.Expect(data["matchesCreated"]).To(Equal(int64(3)))
	g.Expect(data["playersMatched"]).To(Equal(int64(28)))
	g.Expect(data["matchesByMode"]).To(HaveKeyWithValue("halo-arena", int64(2)))
	g.Expect(data["matchesByMode"]).To(HaveKeyWithValue("halo-rally", int64(1)))
	g.Expect(data["busTotalMessages"]).To(Equal(int64(42)))
	g.Expect(data["busAvgLatencyMs"]).To(Equal(1.5))
	g.Expect(data["activeAgents"]).To(Equal(3))
	g.Expect(data["milestonesReached"]).To(Equal(1))
	g.Expect(data["milestonesTotal"]).To(Equal(3))
}

func TestKillSwitchBroadcastsOnceAndIsIdempotent(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := NewAgent("director", clock.NewFake(directorEpoch), nil, nil)
	bus := &recordingSender{}
	a.BindSender(bus)

	payload, err := a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageCommand,
		From:    "external",
		Payload: TriggerKillSwitch{Reason: "emergency"},
	})
	g.Expect(err).ToNot(HaveOccurred())

	data := payload.(agent.Response).Data
	g.Expect(data["active"]).To(Equal(true))
	g.Expect(data["alreadyActive"]).To(Equal(false))
	g.Expect(a.KillSwitchActive()).To(BeTrue())

	g.Expect(bus.broadcast).To(HaveLen(1))
	ks, ok := bus.broadcast[0].Payload.(agent.KillSwitch)
	g.Expect(ok).To(BeTrue())
	g.Expect(ks.Reason).To(Equal("emergency"))

	// a second trigger is acknowledged without another broadcast
	payload, err = a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageCommand,
		From:    "external",
		Payload: TriggerKillSwitch{Reason: "still down"},
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["alreadyActive"]).To(Equal(true))
	g.Expect(bus.broadcast).To(HaveLen(1))
}

func TestKillSwitchBroadcastEchoIsIgnored(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := NewAgent("director", clock.NewFake(directorEpoch), nil, nil)
	a.BindSender(&recordingSender{})

	_, err := a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageCommand,
		From:    "external",
		Payload: TriggerKillSwitch{Reason: "drill"},
	})
	g.Expect(err).ToNot(HaveOccurred())

	// the broadcast fan-out includes the director itself
	payload, err := a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageEvent,
		From:    "director",
		Payload: agent.KillSwitch{Reason: "drill"},
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload).To(BeNil())
	g.Expect(a.Snapshot().ErrorRate).To(Equal(0.0))
}

func TestExternalCommandsMapOntoTypedHandlers(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := NewAgent("director", clock.NewFake(directorEpoch), nil, nil)

	payload, err := a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageCommand,
		From:    "external",
		Payload: agent.Command{Action: ActionTriggerKillSwitch, Data: map[string]interface{}{"reason": "ops"}},
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["reason"]).To(Equal("ops"))
	g.Expect(a.KillSwitchActive()).To(BeTrue())

	payload, err = a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageCommand,
		From:    "external",
		Payload: agent.Command{Action: ActionGetRoadmap},
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload.(agent.Response).Data["killSwitchActive"]).To(Equal(true))
}

func TestUnknownDirectorActionYieldsExactError(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := NewAgent("director", clock.NewFake(directorEpoch), nil, nil)

	_, err := a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageCommand,
		From:    "external",
		Payload: agent.Command{Action: "promote_everyone"},
	})
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(Equal("Unknown director action: promote_everyone"))
}

func TestBusAcknowledgementsAreIgnored(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	a := NewAgent("director", clock.NewFake(directorEpoch), nil, nil)

	payload, err := a.ProcessMessage(g.TestScope, agent.Message{
		Type:    agent.MessageResponse,
		From:    "netcode",
		Payload: agent.Response{Data: map[string]interface{}{"ok": true}},
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(payload).To(BeNil())
}
