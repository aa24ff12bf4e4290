// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

// Package netcode implements the authoritative tick-based game server: a
// WebSocket transport, a fixed-rate simulation loop, lag-compensated input
// application and delta/full snapshot broadcast.
package netcode

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/typ.v4/sync2"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/clock"
	"github.com/arcadelive/realtime-core/pkg/config"
	"github.com/arcadelive/realtime-core/pkg/envelope"
	"github.com/arcadelive/realtime-core/pkg/metrics"
)

const (
	minTickRate = 10
	maxTickRate = 120

	// projectiles older than this are expired by the simulation step
	entityMaxAge = 5 * time.Second

	// distance threshold for rewound hit detection
	hitRadius = 2.0
)

// ErrInvalidTickRate is returned by update_tick_rate for out-of-range values.
var ErrInvalidTickRate = errors.New("Tick rate must be between 10 and 120 Hz")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Agent is the netcode agent. World state is owned by the tick loop and the
// connection handlers, both serialised by the agent mutex.
type Agent struct {
	*agent.Base

	cfg     *config.Config
	clk     clock.Clock
	metrics metrics.CoordinationMetrics

	mu       sync.Mutex
	clients  map[string]*client
	entities map[string]*EntityState
	events   []GameEvent
	history  []GameSnapshot
	sessions map[string]pendingSession
	tick     uint64
	tickRate int
	halted   bool

	frameTimeMs   float64
	avgRttMs      float64
	avgJitterMs   float64
	avgPacketLoss float64
	nextClientID  uint64

	entityPool *sync2.Pool[[]EntityState]

	listener net.Listener
	httpSrv  *http.Server
	ticker   clock.Ticker
	stop     chan struct{}
	stopOnce sync.Once
}

// NewAgent constructs the netcode agent.
func NewAgent(id string, cfg *config.Config, clk clock.Clock, m metrics.CoordinationMetrics) *Agent {
	return &Agent{
		Base:     agent.NewBase(id, "netcode"),
		cfg:      cfg,
		clk:      clk,
		metrics:  m,
		clients:  make(map[string]*client),
		entities: make(map[string]*EntityState),
		sessions: make(map[string]pendingSession),
		tickRate: cfg.TickRate,
		entityPool: &sync2.Pool[[]EntityState]{
			New: func() []EntityState {
				return make([]EntityState, 0, 64)
			},
		},
		stop: make(chan struct{}),
	}
}

// Initialize opens the WebSocket listener and starts the tick loop.
func (a *Agent) Initialize(scope *envelope.Scope) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		a.handleConnection(scope, w, r)
	})

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.NetcodePort))
	if err != nil {
		return fmt.Errorf("netcode listen: %w", err)
	}
	a.listener = listener
	a.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := a.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			scope.Log.Errorf("netcode http server: %s", err)
		}
	}()

	a.ticker = a.clk.NewTicker(a.tickInterval())
	go a.runTickLoop(scope)

	a.SetStatus(agent.StatusRunning)
	scope.Log.WithField("agent", a.ID()).WithField("addr", listener.Addr().String()).
		Info("netcode server listening")
	return nil
}

// Addr returns the bound listen address, mainly for tests using port 0.
func (a *Agent) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

func (a *Agent) tickInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Second / time.Duration(a.tickRate)
}

// handleConnection runs the full lifecycle of one WebSocket peer.
func (a *Agent) handleConnection(scope *envelope.Scope, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		scope.Log.Errorf("websocket upgrade failed: %s", err)
		return
	}

	a.mu.Lock()
	if a.halted || len(a.clients) >= a.cfg.MaxClients {
		reason := "server full"
		if a.halted {
			reason = "server not accepting connections"
		}
		a.mu.Unlock()
		// reject at handshake with "try again later"
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason),
			a.clk.Now().Add(time.Second))
		conn.Close()
		return
	}

	a.nextClientID++
	c := &client{
		id:        fmt.Sprintf("client-%d", a.nextClientID),
		entityID:  fmt.Sprintf("entity-%d", a.nextClientID),
		conn:      conn,
		connected: true,
	}
	a.clients[c.id] = c
	a.entities[c.entityID] = &EntityState{
		ID:        c.entityID,
		Type:      EntityPlayer,
		Health:    100,
		spawnedAt: a.clk.Now(),
	}
	clientCount := len(a.clients)
	tickRate := a.tickRate
	a.mu.Unlock()

	a.metrics.SetConnectedClients(clientCount)
	scope.SetAttributes(envelope.ClientIDTag, c.id)
	scope.Log.WithField("clientID", c.id).Info("client connected")

	if err := c.send(welcomeFrame{
		Type:     frameWelcome,
		ClientID: c.id,
		Config:   welcomeConfig{TickRate: tickRate, BufferSize: a.cfg.InputBufferCap},
	}); err != nil {
		scope.Log.WithField("clientID", c.id).Errorf("welcome send failed: %s", err)
	}

	a.readPump(scope, c)
}

// readPump dispatches inbound frames until the peer goes away.
func (a *Agent) readPump(scope *envelope.Scope, c *client) {
	defer a.removeClient(scope, c.id)

	for {
		var frame clientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				scope.Log.WithField("clientID", c.id).Debugf("read failed: %s", err)
			}
			return
		}

		switch frame.Type {
		case frameInput:
			a.bufferInput(scope, c, frame.GameInput)
		case framePing:
			a.handlePing(c, frame.Timestamp)
		case frameReady:
			a.mu.Lock()
			c.ready = true
			a.mu.Unlock()
		default:
			// malformed input is logged and the client skipped, not dropped
			scope.Log.WithField("clientID", c.id).WithField("type", frame.Type).
				Warn("unknown frame type")
		}
	}
}

// bufferInput queues an input for the next tick, dropping the oldest when
// the per-client buffer is at capacity.
func (a *Agent) bufferInput(scope *envelope.Scope, c *client, in GameInput) {
	if in.Checksum != "" && !verifyChecksum(in) {
		scope.Log.WithField("clientID", c.id).WithField("sequence", in.Sequence).
			Warn("input checksum mismatch, dropping")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	c.framesSeen++
	if in.Sequence > c.sequence {
		// estimate loss from sequence gaps
		if c.sequence > 0 && in.Sequence > c.sequence+1 {
			gap := float64(in.Sequence - c.sequence - 1)
			c.packetLoss = 0.9*c.packetLoss + 0.1*(gap/(gap+1))
		} else {
			c.packetLoss *= 0.9
		}
		c.sequence = in.Sequence
	}

	c.buffer = append(c.buffer, in)
	if len(c.buffer) > a.cfg.InputBufferCap {
		c.buffer = c.buffer[len(c.buffer)-a.cfg.InputBufferCap:]
	}
}

// handlePing answers immediately and folds the sample into the RTT and
// jitter moving averages (0.8 old, 0.2 new).
func (a *Agent) handlePing(c *client, clientTimestamp int64) {
	now := a.clk.Now().UnixMilli()
	sample := float64(now - clientTimestamp)
	if sample < 0 {
		sample = 0
	}

	a.mu.Lock()
	if c.rttMs == 0 {
		c.rttMs = sample
	} else {
		c.rttMs = 0.8*c.rttMs + 0.2*sample
	}
	deviation := sample - c.rttMs
	if deviation < 0 {
		deviation = -deviation
	}
	c.jitterMs = 0.8*c.jitterMs + 0.2*deviation
	a.mu.Unlock()

	_ = c.send(pongFrame{Type: framePong, Timestamp: clientTimestamp})
}

// removeClient tears down the client and its player entity.
func (a *Agent) removeClient(scope *envelope.Scope, clientID string) {
	a.mu.Lock()
	c, ok := a.clients[clientID]
	if ok {
		delete(a.clients, clientID)
		delete(a.entities, c.entityID)
		c.connected = false
	}
	clientCount := len(a.clients)
	a.mu.Unlock()

	if !ok {
		return
	}
	c.conn.Close()
	a.metrics.SetConnectedClients(clientCount)
	scope.Log.WithField("clientID", clientID).Info("client disconnected")
}

// Shutdown stops the tick loop, closes every socket with "going away" and
// closes the transport.
func (a *Agent) Shutdown(scope *envelope.Scope) error {
	a.stopOnce.Do(func() { close(a.stop) })
	if a.ticker != nil {
		a.ticker.Stop()
	}

	a.mu.Lock()
	clients := make([]*client, 0, len(a.clients))
	for _, c := range a.clients {
		clients = append(clients, c)
	}
	a.clients = make(map[string]*client)
	a.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			a.clk.Now().Add(time.Second))
		c.conn.Close()
	}

	if a.httpSrv != nil {
		_ = a.httpSrv.Close()
	}

	a.SetStatus(agent.StatusStopped)
	scope.Log.WithField("agent", a.ID()).Info("netcode server stopped")
	return nil
}
