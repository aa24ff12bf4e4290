// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	busMessages       prometheus.CounterVec
	busLatency        prometheus.HistogramVec
	activeAgents      prometheus.Gauge
	queueSize         prometheus.GaugeVec
	matchesCreated    prometheus.CounterVec
	matchFairness     prometheus.HistogramVec
	backfillFulfilled prometheus.CounterVec
	frameTime         prometheus.Histogram
	connectedClients  prometheus.Gauge
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	busMessages := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_rtc_bus_messages_total",
			Help: "A counter of messages drained from the orchestrator queue by type",
		}, []string{"type"})

	//nolint:promlinter
	busLatency := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arc_rtc_bus_latency_ms",
			Help:    "A histogram of enqueue-to-handled latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"type"})

	activeAgents := factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "arc_rtc_active_agents",
			Help: "Number of agents currently registered on the bus",
		})

	queueSize := factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arc_rtc_match_queue_size",
			Help: "Players waiting in the matchmaking queue per game mode",
		}, []string{"game_mode"})

	matchesCreated := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_rtc_matches_created_total",
			Help: "A counter of accepted matches per game mode",
		}, []string{"game_mode"})

	//nolint:promlinter
	matchFairness := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arc_rtc_match_fairness",
			Help:    "A histogram of fairness scores of accepted matches",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 10),
		}, []string{"game_mode"})

	backfillFulfilled := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arc_rtc_backfill_fulfilled_total",
			Help: "A counter of backfill requests fulfilled per game mode",
		}, []string{"game_mode"})

	//nolint:promlinter
	frameTime := factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arc_rtc_netcode_frame_time_ms",
			Help:    "A histogram of netcode tick frame times in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		})

	connectedClients := factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "arc_rtc_connected_clients",
			Help: "WebSocket clients currently connected to the netcode server",
		})

	return prometheusMetrics{
		busMessages:       *busMessages,
		busLatency:        *busLatency,
		activeAgents:      activeAgents,
		queueSize:         *queueSize,
		matchesCreated:    *matchesCreated,
		matchFairness:     *matchFairness,
		backfillFulfilled: *backfillFulfilled,
		frameTime:         frameTime,
		connectedClients:  connectedClients,
	}
}

func (metrics prometheusMetrics) AddBusMessage(msgType string, latency time.Duration) {
	metrics.busMessages.With(prometheus.Labels{"type": msgType}).Add(1)
	metrics.busLatency.With(prometheus.Labels{"type": msgType}).Observe(float64(latency.Milliseconds()))
}

func (metrics prometheusMetrics) SetActiveAgents(count int) {
	metrics.activeAgents.Set(float64(count))
}

func (metrics prometheusMetrics) SetQueueSize(gameMode string, size int) {
	metrics.queueSize.With(prometheus.Labels{"game_mode": gameMode}).Set(float64(size))
}

func (metrics prometheusMetrics) AddMatchCreated(gameMode string, fairness float64) {
	metrics.matchesCreated.With(prometheus.Labels{"game_mode": gameMode}).Add(1)
	metrics.matchFairness.With(prometheus.Labels{"game_mode": gameMode}).Observe(fairness)
}

func (metrics prometheusMetrics) AddBackfillFulfilled(gameMode string) {
	metrics.backfillFulfilled.With(prometheus.Labels{"game_mode": gameMode}).Add(1)
}

func (metrics prometheusMetrics) ObserveFrameTime(elapsed time.Duration) {
	metrics.frameTime.Observe(float64(elapsed.Milliseconds()))
}

func (metrics prometheusMetrics) SetConnectedClients(count int) {
	metrics.connectedClients.Set(float64(count))
}
