// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package agent

import (
	"sync"
	"time"

	"github.com/arcadelive/realtime-core/pkg/envelope"
)

// Status describes an agent's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusError   Status = "error"
	StatusStopped Status = "stopped"
)

// Agent is the unit registered on the orchestrator bus. ProcessMessage may
// return a payload to be delivered back to the sender as a correlated
// response; a nil payload means no response is owed.
type Agent interface {
	ID() string
	Initialize(scope *envelope.Scope) error
	ProcessMessage(scope *envelope.Scope, msg Message) (Payload, error)
	Shutdown(scope *envelope.Scope) error
	Snapshot() MetricsSnapshot
}

// Sender lets an agent emit follow-up messages without holding a reference
// to its peers. The orchestrator binds itself here at registration.
type Sender interface {
	Send(scope *envelope.Scope, msg Message) error
	Broadcast(scope *envelope.Scope, msg Message) error
}

// MetricsSnapshot is a point-in-time copy of an agent's counters.
type MetricsSnapshot struct {
	AgentID           string
	Status            Status
	TasksCompleted    int64
	AvgResponseTimeMs float64
	ErrorRate         float64
}

// Base carries the identity, status and task counters every agent shares.
// Concrete agents embed it and keep their own domain state alongside.
type Base struct {
	id   string
	name string

	mu          sync.Mutex
	status      Status
	tasks       int64
	avgResponse float64
	errorRate   float64
	sender      Sender
}

// NewBase constructs the shared agent core in the idle state.
func NewBase(id, name string) *Base {
	return &Base{id: id, name: name, status: StatusIdle}
}

func (b *Base) ID() string { return b.id }

func (b *Base) Name() string { return b.name }

func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) SetStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// BindSender attaches the bus. Called once by the orchestrator at registration.
func (b *Base) BindSender(s Sender) {
	b.mu.Lock()
	b.sender = s
	b.mu.Unlock()
}

// Emit sends a follow-up message through the bound bus. Messages emitted
// before registration are dropped with a log line rather than an error so
// agents can run standalone in tests.
func (b *Base) Emit(scope *envelope.Scope, msg Message) {
	b.mu.Lock()
	sender := b.sender
	b.mu.Unlock()

	if sender == nil {
		scope.Log.WithField("agent", b.id).Debug("no bus bound, dropping emitted message")
		return
	}
	if err := sender.Send(scope, msg); err != nil {
		scope.Log.WithField("agent", b.id).Errorf("failed to emit message: %s", err)
	}
}

// EmitBroadcast fans a message out to every registered agent through the
// bound bus. Like Emit it degrades to a log line when no bus is attached.
func (b *Base) EmitBroadcast(scope *envelope.Scope, msg Message) {
	b.mu.Lock()
	sender := b.sender
	b.mu.Unlock()

	if sender == nil {
		scope.Log.WithField("agent", b.id).Debug("no bus bound, dropping broadcast")
		return
	}
	if err := sender.Broadcast(scope, msg); err != nil {
		scope.Log.WithField("agent", b.id).Errorf("failed to broadcast message: %s", err)
	}
}

// ObserveTask folds one handled task into the incremental averages.
func (b *Base) ObserveTask(elapsed time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tasks++
	n := float64(b.tasks)
	b.avgResponse += (float64(elapsed.Milliseconds()) - b.avgResponse) / n

	failure := 0.0
	if err != nil {
		failure = 1.0
	}
	b.errorRate += (failure - b.errorRate) / n
}

// Snapshot returns a copy of the agent counters.
func (b *Base) Snapshot() MetricsSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return MetricsSnapshot{
		AgentID:           b.id,
		Status:            b.status,
		TasksCompleted:    b.tasks,
		AvgResponseTimeMs: b.avgResponse,
		ErrorRate:         b.errorRate,
	}
}
