// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package netcode

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EntityType classifies world entities.
type EntityType string

const (
	EntityPlayer      EntityType = "player"
	EntityProjectile  EntityType = "projectile"
	EntityPickup      EntityType = "pickup"
	EntityEnvironment EntityType = "environment"
)

// EntityState is one entity in the authoritative world.
type EntityState struct {
	ID       string                 `json:"id"`
	Type     EntityType             `json:"type"`
	Position Vec3                   `json:"position"`
	Velocity Vec3                   `json:"velocity"`
	Rotation Vec3                   `json:"rotation"`
	Health   int                    `json:"health,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`

	spawnedAt time.Time
}

// GameEvent is a transient world event accumulated on the current tick's
// event log and cleared after the next full snapshot.
type GameEvent struct {
	Type string                 `json:"type"`
	Tick uint64                 `json:"tick"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// GameSnapshot is the authoritative world state at one tick. A bounded
// history of snapshots is retained for lag compensation.
type GameSnapshot struct {
	Tick      uint64        `json:"tick"`
	Timestamp int64         `json:"timestamp"`
	Entities  []EntityState `json:"entities"`
	Events    []GameEvent   `json:"events,omitempty"`
}

// client is one connected WebSocket peer and its netcode bookkeeping.
// Created on connect, destroyed on disconnect.
type client struct {
	id       string
	entityID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	rttMs        float64
	jitterMs     float64
	packetLoss   float64
	sequence     uint64
	acknowledged uint64
	buffer       []GameInput
	ready        bool
	connected    bool
	framesSeen   uint64
}

// send marshals a frame to the peer under the connection write lock.
func (c *client) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// pendingSession is a server allocation requested by matchmaking, held
// until its players connect.
type pendingSession struct {
	MatchID     string
	GameMode    string
	Region      string
	PlayerCount int
	AllocatedAt time.Time
}
