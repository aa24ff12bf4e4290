// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

// Package orchestrator is the central message bus: it owns the agent
// registry, drains the queue on a fixed cadence, and guarantees a correlated
// response for every request even when a handler fails.
package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/clock"
	"github.com/arcadelive/realtime-core/pkg/common"
	"github.com/arcadelive/realtime-core/pkg/config"
	"github.com/arcadelive/realtime-core/pkg/envelope"
	"github.com/arcadelive/realtime-core/pkg/metrics"
)

type queuedMessage struct {
	msg      agent.Message
	enqueued time.Time
}

// Orchestrator routes messages between registered agents. Messages are
// drained strictly FIFO; fan-out to multiple targets of one message runs
// those handlers concurrently.
type Orchestrator struct {
	cfg     *config.Config
	clk     clock.Clock
	metrics metrics.CoordinationMetrics

	mu      sync.Mutex
	agents  map[string]agent.Agent
	queue   []queuedMessage
	pending map[string]chan agent.Message
	stopped bool

	draining atomic.Bool
	stop     chan struct{}

	totalMessages int64
	avgLatencyMs  float64
}

// Metrics is the aggregate view served to the ops layer.
type Metrics struct {
	TotalMessages int64
	AvgLatencyMs  float64
	ActiveAgents  int
	Agents        []agent.MetricsSnapshot
}

func New(cfg *config.Config, clk clock.Clock, m metrics.CoordinationMetrics) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		clk:     clk,
		metrics: m,
		agents:  make(map[string]agent.Agent),
		pending: make(map[string]chan agent.Message),
		stop:    make(chan struct{}),
	}
}

// RegisterAgent initialises the agent and adds it to the registry.
func (o *Orchestrator) RegisterAgent(scope *envelope.Scope, ag agent.Agent) error {
	o.mu.Lock()
	if _, exists := o.agents[ag.ID()]; exists {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", agent.ErrDuplicateAgent, ag.ID())
	}
	o.agents[ag.ID()] = ag
	count := len(o.agents)
	o.mu.Unlock()

	if binder, ok := ag.(interface{ BindSender(agent.Sender) }); ok {
		binder.BindSender(o)
	}

	if err := ag.Initialize(scope); err != nil {
		o.mu.Lock()
		delete(o.agents, ag.ID())
		o.mu.Unlock()
		return fmt.Errorf("initialize agent %s: %w", ag.ID(), err)
	}

	o.metrics.SetActiveAgents(count)
	scope.Log.WithField("agent", ag.ID()).Info("agent registered")
	return nil
}

// Start launches the drain loop at the configured cadence.
func (o *Orchestrator) Start(scope *envelope.Scope) {
	ticker := o.clk.NewTicker(time.Duration(o.cfg.DrainIntervalMs) * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-o.stop:
				return
			case <-ticker.C():
				o.DrainOnce(scope)
			}
		}
	}()
}

// Send stamps and enqueues a message.
func (o *Orchestrator) Send(scope *envelope.Scope, msg agent.Message) error {
	if msg.ID == "" {
		msg.ID = common.GenerateUUID()
	}
	msg.Timestamp = o.clk.Now()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return agent.ErrBusStopped
	}
	if len(o.queue) >= o.cfg.MessageQueueCap {
		return agent.ErrBusSaturated
	}
	o.queue = append(o.queue, queuedMessage{msg: msg, enqueued: msg.Timestamp})

	if scope.Log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		scope.Log.Tracef("enqueued message: %s", spew.Sdump(msg))
	}
	return nil
}

// Broadcast fans a message out to every registered agent.
func (o *Orchestrator) Broadcast(scope *envelope.Scope, msg agent.Message) error {
	o.mu.Lock()
	targets := make([]string, 0, len(o.agents))
	for id := range o.agents {
		targets = append(targets, id)
	}
	o.mu.Unlock()

	msg.To = targets
	return o.Send(scope, msg)
}

// Request sends a request-type message and blocks until its correlated
// response arrives or the timeout elapses. This is the entry point for
// external callers (the API layer).
func (o *Orchestrator) Request(scope *envelope.Scope, msg agent.Message, timeout time.Duration) (agent.Message, error) {
	if msg.ID == "" {
		msg.ID = common.GenerateUUID()
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = msg.ID
	}

	ch := make(chan agent.Message, 1)
	o.mu.Lock()
	o.pending[msg.CorrelationID] = ch
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.pending, msg.CorrelationID)
		o.mu.Unlock()
	}()

	if err := o.Send(scope, msg); err != nil {
		return agent.Message{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		return agent.Message{}, fmt.Errorf("request %s timed out after %s", msg.CorrelationID, timeout)
	case <-scope.Ctx.Done():
		return agent.Message{}, scope.Ctx.Err()
	}
}

// DrainOnce processes every message queued at the start of the call, in
// FIFO order. A re-entrancy guard keeps overlapping ticks from draining
// concurrently.
func (o *Orchestrator) DrainOnce(scope *envelope.Scope) {
	if !o.draining.CompareAndSwap(false, true) {
		return
	}
	defer o.draining.Store(false)

	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			return
		}
		item := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		o.deliver(scope, item)
	}
}

// deliver fans one message out to all its targets; handlers for different
// targets run concurrently with no response ordering between them.
func (o *Orchestrator) deliver(scope *envelope.Scope, item queuedMessage) {
	msg := item.msg

	var wg sync.WaitGroup
	for _, target := range msg.To {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			o.handleTarget(scope, msg, target)
		}(target)
	}
	wg.Wait()

	latency := o.clk.Now().Sub(item.enqueued)
	o.metrics.AddBusMessage(string(msg.Type), latency)

	o.mu.Lock()
	o.totalMessages++
	o.avgLatencyMs += (float64(latency.Milliseconds()) - o.avgLatencyMs) / float64(o.totalMessages)
	o.mu.Unlock()
}

func (o *Orchestrator) handleTarget(rootScope *envelope.Scope, msg agent.Message, target string) {
	scope := rootScope.NewChildScope("orchestrator.handleTarget")
	defer scope.Finish()
	scope.SetAttributes(envelope.AgentIDTag, target)
	scope.SetAttributes(envelope.MessageIDTag, msg.ID)

	o.mu.Lock()
	ag, registered := o.agents[target]
	o.mu.Unlock()

	if !registered {
		scope.Log.WithField("target", target).Warn("message targets an unregistered agent")
		o.respond(scope, msg, target, agent.ErrorResponse{
			Error: agent.ErrUnknownAgent.Error(),
			Code:  agent.ValidationErrorCode(agent.ErrUnknownAgent),
		})
		return
	}

	payload, err := ag.ProcessMessage(scope, msg)
	if err != nil {
		scope.Log.WithField("agent", target).Errorf("handler failed: %s", err)
		o.respond(scope, msg, target, agent.ErrorResponse{
			Error: err.Error(),
			Code:  agent.ValidationErrorCode(err),
		})
		return
	}
	if payload != nil {
		o.respond(scope, msg, target, payload)
	}
}

// respond routes a response payload back to the originator of msg. Requests
// and commands always get a response; other message types never do.
func (o *Orchestrator) respond(scope *envelope.Scope, msg agent.Message, from string, payload agent.Payload) {
	if msg.Type != agent.MessageRequest && msg.Type != agent.MessageCommand {
		return
	}

	correlationID := msg.CorrelationID
	if correlationID == "" {
		correlationID = msg.ID
	}

	resp := agent.Message{
		ID:            common.GenerateUUID(),
		Type:          agent.MessageResponse,
		From:          from,
		To:            []string{msg.From},
		Timestamp:     o.clk.Now(),
		CorrelationID: correlationID,
		Payload:       payload,
	}

	o.mu.Lock()
	waiter, waiting := o.pending[correlationID]
	_, senderRegistered := o.agents[msg.From]
	o.mu.Unlock()

	if waiting {
		select {
		case waiter <- resp:
		default:
		}
		return
	}
	if senderRegistered {
		if err := o.Send(scope, resp); err != nil {
			scope.Log.Errorf("failed to route response to %s: %s", msg.From, err)
		}
		return
	}
	scope.Log.WithField("correlationID", correlationID).Debug("response had no observer")
}

// GetMetrics aggregates bus counters and per-agent snapshots.
func (o *Orchestrator) GetMetrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshots := make([]agent.MetricsSnapshot, 0, len(o.agents))
	for _, ag := range o.agents {
		snapshots = append(snapshots, ag.Snapshot())
	}
	return Metrics{
		TotalMessages: o.totalMessages,
		AvgLatencyMs:  o.avgLatencyMs,
		ActiveAgents:  len(o.agents),
		Agents:        snapshots,
	}
}

// Shutdown stops the drain loop and shuts all agents down concurrently.
// Individual failures are logged, never propagated; the registry is cleared.
func (o *Orchestrator) Shutdown(scope *envelope.Scope) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	agents := make([]agent.Agent, 0, len(o.agents))
	for _, ag := range o.agents {
		agents = append(agents, ag)
	}
	o.mu.Unlock()

	close(o.stop)

	var wg sync.WaitGroup
	for _, ag := range agents {
		wg.Add(1)
		go func(ag agent.Agent) {
			defer wg.Done()
			if err := ag.Shutdown(scope); err != nil {
				scope.Log.WithField("agent", ag.ID()).Errorf("shutdown failed: %s", err)
			}
		}(ag)
	}
	wg.Wait()

	o.mu.Lock()
	o.agents = make(map[string]agent.Agent)
	o.mu.Unlock()
	o.metrics.SetActiveAgents(0)

	scope.Log.Info("orchestrator shut down")
}
