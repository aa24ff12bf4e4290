// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package netcode

import (
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/mitchellh/copystructure"

	"github.com/arcadelive/realtime-core/pkg/envelope"
)

// historyHardCap bounds the snapshot ring regardless of tick rate.
const historyHardCap = 512

func (a *Agent) runTickLoop(scope *envelope.Scope) {
	for {
		select {
		case <-a.stop:
			return
		case <-a.ticker.C():
			a.Tick(scope)
		}
	}
}

// Tick runs one simulation cycle: apply lag-compensated inputs, advance the
// world, broadcast a delta, and periodically a full snapshot. Exported so
// tests can drive the loop deterministically.
func (a *Agent) Tick(scope *envelope.Scope) {
	started := a.clk.Now()

	a.mu.Lock()
	a.tick++
	tick := a.tick
	now := started

	a.applyBufferedInputsLocked(scope, now)
	a.simulateLocked(now)

	entities := a.entityPool.Get()[:0]
	for _, e := range a.entities {
		entities = append(entities, *e)
	}
	events := make([]GameEvent, len(a.events))
	copy(events, a.events)

	a.recordHistoryLocked(tick, now, entities, events)

	full := tick%uint64(a.snapshotEveryLocked()) == 0
	if full {
		// the transient event log resets at every resync anchor
		a.events = a.events[:0]
	}

	clients := make([]*client, 0, len(a.clients))
	for _, c := range a.clients {
		clients = append(clients, c)
	}
	a.aggregateTelemetryLocked()
	a.mu.Unlock()

	a.broadcast(scope, tick, now, entities, events, full, clients)
	a.entityPool.Put(entities)

	elapsed := a.clk.Now().Sub(started)
	a.metrics.ObserveFrameTime(elapsed)

	a.mu.Lock()
	a.frameTimeMs = 0.9*a.frameTimeMs + 0.1*float64(elapsed.Milliseconds())
	target := float64(a.tickIntervalLocked().Milliseconds())
	a.mu.Unlock()

	if float64(elapsed.Milliseconds()) > 1.5*target {
		scope.Log.WithField("tick", tick).WithField("frameMs", elapsed.Milliseconds()).
			Warn("slow frame")
	}
}

func (a *Agent) tickIntervalLocked() time.Duration {
	return time.Second / time.Duration(a.tickRate)
}

// snapshotEveryLocked is how many ticks sit between two full snapshots.
func (a *Agent) snapshotEveryLocked() int {
	interval := a.tickIntervalLocked().Milliseconds()
	if interval == 0 {
		return 1
	}
	every := int(int64(a.cfg.SnapshotIntervalMs) / interval)
	if every < 1 {
		return 1
	}
	return every
}

// applyBufferedInputsLocked applies each client's eligible inputs in
// sequence order. An input is eligible once its client timestamp is at
// least half an RTT old and its sequence is beyond the acknowledged
// watermark; applying advances the watermark and prunes the buffer.
func (a *Agent) applyBufferedInputsLocked(scope *envelope.Scope, now time.Time) {
	nowMs := now.UnixMilli()

	for _, c := range a.clients {
		if len(c.buffer) == 0 {
			continue
		}
		threshold := nowMs - int64(c.rttMs/2)

		sort.Slice(c.buffer, func(i, j int) bool { return c.buffer[i].Sequence < c.buffer[j].Sequence })

		var kept []GameInput
		for _, in := range c.buffer {
			if in.Sequence <= c.acknowledged {
				continue // already applied, never reapply
			}
			if in.Timestamp > threshold {
				kept = append(kept, in)
				continue
			}
			a.applyInputLocked(scope, c, in)
			c.acknowledged = in.Sequence
		}
		c.buffer = kept
	}
}

func (a *Agent) applyInputLocked(scope *envelope.Scope, c *client, in GameInput) {
	entity, ok := a.entities[c.entityID]
	if !ok {
		return
	}

	// movement is clamped to unit length before scaling: speed hacks cap out
	move := clampToUnit(in.Move)
	speed := float64(a.cfg.MaxMoveSpeed)
	entity.Velocity = Vec3{X: move.X * speed, Y: move.Y * speed, Z: move.Z * speed}
	entity.Position.X += entity.Velocity.X
	entity.Position.Y += entity.Velocity.Y
	entity.Position.Z += entity.Velocity.Z
	entity.Rotation = in.Aim

	if in.Fire {
		a.resolveShotLocked(scope, c, in)
	}
}

// resolveShotLocked validates a shot against the world as the shooter saw
// it: the historical snapshot nearest the shot's timestamp, not live state.
func (a *Agent) resolveShotLocked(scope *envelope.Scope, c *client, in GameInput) {
	window := 2 * int64(a.cfg.LagCompWindowMs)
	snapshot := a.nearestSnapshotLocked(in.Timestamp, window)
	if snapshot == nil {
		return
	}

	for _, target := range snapshot.Entities {
		if target.Type != EntityPlayer || target.ID == c.entityID {
			continue
		}
		if distance(target.Position, in.Aim) > hitRadius {
			continue
		}

		a.events = append(a.events, GameEvent{
			Type: "damage",
			Tick: a.tick,
			Data: map[string]interface{}{
				"target":      target.ID,
				"attacker":    c.entityID,
				"amount":      10,
				"rewoundTick": snapshot.Tick,
			},
		})
		if live, ok := a.entities[target.ID]; ok {
			live.Health -= 10
			if live.Health < 0 {
				live.Health = 0
			}
		}
		scope.Log.WithField("attacker", c.entityID).WithField("target", target.ID).
			WithField("rewoundTick", snapshot.Tick).Debug("rewound hit")
	}
}

// nearestSnapshotLocked returns the retained snapshot closest to the given
// timestamp, or nil when none falls inside the search window.
func (a *Agent) nearestSnapshotLocked(timestampMs int64, windowMs int64) *GameSnapshot {
	var best *GameSnapshot
	bestDelta := windowMs + 1
	for i := range a.history {
		delta := a.history[i].Timestamp - timestampMs
		if delta < 0 {
			delta = -delta
		}
		if delta <= windowMs && delta < bestDelta {
			best = &a.history[i]
			bestDelta = delta
		}
	}
	return best
}

// simulateLocked advances the placeholder simulation: projectiles integrate
// their velocity and short-lived entities expire.
func (a *Agent) simulateLocked(now time.Time) {
	for id, e := range a.entities {
		switch e.Type {
		case EntityProjectile:
			e.Position.X += e.Velocity.X
			e.Position.Y += e.Velocity.Y
			e.Position.Z += e.Velocity.Z
			if now.Sub(e.spawnedAt) > entityMaxAge {
				delete(a.entities, id)
			}
		case EntityPickup:
			if now.Sub(e.spawnedAt) > entityMaxAge {
				delete(a.entities, id)
			}
		}
	}
}

// recordHistoryLocked deep-copies the tick state into the rewind history
// and prunes entries that fell out of the lag-compensation window.
func (a *Agent) recordHistoryLocked(tick uint64, now time.Time, entities []EntityState, events []GameEvent) {
	copied, err := copystructure.Copy(entities)
	if err != nil {
		return
	}
	a.history = append(a.history, GameSnapshot{
		Tick:      tick,
		Timestamp: now.UnixMilli(),
		Entities:  copied.([]EntityState),
		Events:    events,
	})

	horizon := now.UnixMilli() - 2*int64(a.cfg.LagCompWindowMs)
	pruned := a.history[:0]
	for _, snap := range a.history {
		if snap.Timestamp >= horizon {
			pruned = append(pruned, snap)
		}
	}
	a.history = pruned
	if len(a.history) > historyHardCap {
		a.history = a.history[len(a.history)-historyHardCap:]
	}
}

// broadcast sends the delta snapshot to every client, plus the periodic
// full snapshot resync anchor. Send failures are per-client: the peer is
// skipped this tick, not disconnected.
func (a *Agent) broadcast(scope *envelope.Scope, tick uint64, now time.Time, entities []EntityState, events []GameEvent, full bool, clients []*client) {
	nowMs := now.UnixMilli()

	for _, c := range clients {
		a.mu.Lock()
		var yours *EntityState
		if e, ok := a.entities[c.entityID]; ok {
			copyState := *e
			yours = &copyState
		}
		stats := networkStats{RTTMs: c.rttMs, JitterMs: c.jitterMs, PacketLoss: c.packetLoss}
		a.mu.Unlock()

		frame := deltaFrame{
			Type:      frameDelta,
			Tick:      tick,
			Timestamp: nowMs,
			// baseline delta: every entity counts as changed until finer
			// dirty-tracking lands
			Delta:     deltaPayload{Entities: entities, Events: events},
			YourState: yours,
			NetStats:  stats,
		}
		if err := c.send(frame); err != nil {
			scope.Log.WithField("clientID", c.id).Debugf("delta send failed: %s", err)
			continue
		}

		if full {
			fullFrame := fullSnapshotFrame{
				Type:      frameFullSnapshot,
				Tick:      tick,
				Timestamp: nowMs,
				Entities:  entities,
				Events:    events,
			}
			if err := c.send(fullFrame); err != nil {
				scope.Log.WithField("clientID", c.id).Debugf("full snapshot send failed: %s", err)
			}
		}
	}
}

func clampToUnit(v Vec3) Vec3 {
	norm := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if norm <= 1 || norm == 0 {
		return v
	}
	return Vec3{X: v.X / norm, Y: v.Y / norm, Z: v.Z / norm}
}

func distance(a, b Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// verifyChecksum recomputes the optional anti-tamper hash over the input's
// ordered fields.
func verifyChecksum(in GameInput) bool {
	return checksumOf(in) == in.Checksum
}

func checksumOf(in GameInput) string {
	h := fnv.New64a()
	h.Write([]byte(strconv.FormatUint(in.Sequence, 10)))
	h.Write([]byte(strconv.FormatInt(in.Timestamp, 10)))
	for _, f := range []float64{in.Move.X, in.Move.Y, in.Move.Z} {
		h.Write([]byte(strconv.FormatFloat(f, 'f', 4, 64)))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
