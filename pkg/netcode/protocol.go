// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package netcode

// Wire frame type discriminators, client to server.
const (
	frameInput = "input"
	framePing  = "ping"
	frameReady = "ready"
)

// Wire frame type discriminators, server to client.
const (
	frameWelcome      = "welcome"
	frameDelta        = "delta_snapshot"
	frameFullSnapshot = "full_snapshot"
	framePong         = "pong"
)

// Vec3 is a world-space vector on the wire.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// GameInput is one buffered client input. Timestamp is the client's send
// time in unix milliseconds; Checksum is optional and verified when present.
type GameInput struct {
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
	Move      Vec3   `json:"move"`
	Aim       Vec3   `json:"aim"`
	Fire      bool   `json:"fire"`
	Checksum  string `json:"checksum,omitempty"`
}

// clientFrame is the union of all inbound frames; Type selects the fields.
type clientFrame struct {
	Type string `json:"type"`
	GameInput
}

type welcomeFrame struct {
	Type     string        `json:"type"`
	ClientID string        `json:"clientId"`
	Config   welcomeConfig `json:"config"`
}

type welcomeConfig struct {
	TickRate   int `json:"tickRate"`
	BufferSize int `json:"bufferSize"`
}

type deltaFrame struct {
	Type      string       `json:"type"`
	Tick      uint64       `json:"tick"`
	Timestamp int64        `json:"timestamp"`
	Delta     deltaPayload `json:"delta"`
	YourState *EntityState `json:"your_state,omitempty"`
	NetStats  networkStats `json:"net_stats"`
}

type deltaPayload struct {
	Entities []EntityState `json:"entities"`
	Events   []GameEvent   `json:"events,omitempty"`
}

type fullSnapshotFrame struct {
	Type      string        `json:"type"`
	Tick      uint64        `json:"tick"`
	Timestamp int64         `json:"timestamp"`
	Entities  []EntityState `json:"entities"`
	Events    []GameEvent   `json:"events,omitempty"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// networkStats is the per-client connection quality echoed on every delta.
type networkStats struct {
	RTTMs      float64 `json:"rtt"`
	JitterMs   float64 `json:"jitter"`
	PacketLoss float64 `json:"packetLoss"`
}
