// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type CoordinationMetrics interface {
	AddBusMessage(msgType string, latency time.Duration)
	SetActiveAgents(count int)
	SetQueueSize(gameMode string, size int)
	AddMatchCreated(gameMode string, fairness float64)
	AddBackfillFulfilled(gameMode string)
	ObserveFrameTime(elapsed time.Duration)
	SetConnectedClients(count int)
}

func NewMetrics(registry *prometheus.Registry) CoordinationMetrics {
	return setupPrometheusMetrics(registry)
}

// Noop returns a metrics sink that records nothing. Used by agents
// constructed without a registry, mostly in tests.
func Noop() CoordinationMetrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) AddBusMessage(string, time.Duration) {}

func (noopMetrics) SetActiveAgents(int) {}

func (noopMetrics) SetQueueSize(string, int) {}

func (noopMetrics) AddMatchCreated(string, float64) {}

func (noopMetrics) AddBackfillFulfilled(string) {}

func (noopMetrics) ObserveFrameTime(time.Duration) {}

func (noopMetrics) SetConnectedClients(int) {}
