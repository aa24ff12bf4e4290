// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

// Package clock abstracts wall-clock time and periodic tickers so the
// orchestrator drain loop, the matchmaking loop and the netcode tick loop can
// be driven deterministically in tests.
package clock

import "time"

// Clock provides the current time and ticker construction.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the coordination loops rely on.
// Reset is used by the netcode server when the tick rate changes at runtime.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }

func (r *realTicker) Reset(d time.Duration) { r.t.Reset(d) }

func (r *realTicker) Stop() { r.t.Stop() }
