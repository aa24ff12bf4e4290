// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

// Command coordinator runs the real-time coordination core: the message
// bus, the matchmaking and netcode agents, and the game-director policy
// agent, plus the prometheus and tracing plumbing around them.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/arcadelive/realtime-core/pkg/agent"
	"github.com/arcadelive/realtime-core/pkg/clock"
	"github.com/arcadelive/realtime-core/pkg/config"
	"github.com/arcadelive/realtime-core/pkg/director"
	"github.com/arcadelive/realtime-core/pkg/envelope"
	"github.com/arcadelive/realtime-core/pkg/matchmaking"
	"github.com/arcadelive/realtime-core/pkg/metrics"
	"github.com/arcadelive/realtime-core/pkg/netcode"
	"github.com/arcadelive/realtime-core/pkg/orchestrator"
	"github.com/arcadelive/realtime-core/pkg/rating"
)

const serviceName = "realtime-core"

const (
	matchmakingAgentID = "matchmaking"
	netcodeAgentID     = "netcode"
	directorAgentID    = "director"
)

func main() {
	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		logrus.Fatalf("parse config: %s", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{PrettyPrint: false})

	if cfg.ZipkinURL != "" {
		shutdownTracing, err := initTracing(cfg.ZipkinURL)
		if err != nil {
			logrus.Fatalf("init tracing: %s", err)
		}
		defer shutdownTracing()
	}

	registry := prometheus.NewRegistry()
	coordMetrics := metrics.NewMetrics(registry)
	go serveMetrics(cfg.MetricsAddress, registry)

	scope := envelope.NewRootScope(context.Background(), "coordinator.bootstrap", "")
	defer scope.Finish()

	clk := clock.Real()
	store := rating.NewMemoryStore()

	orch := orchestrator.New(cfg, clk, coordMetrics)
	agents := []agent.Agent{
		matchmaking.NewAgent(matchmakingAgentID, cfg, store, clk, coordMetrics, nil, matchmaking.Targets{
			DirectorID: directorAgentID,
			NetcodeID:  netcodeAgentID,
		}),
		netcode.NewAgent(netcodeAgentID, cfg, clk, coordMetrics),
		director.NewAgent(directorAgentID, clk, orch, nil),
	}
	for _, ag := range agents {
		if err := orch.RegisterAgent(scope, ag); err != nil {
			scope.Log.Fatalf("register agent %s: %s", ag.ID(), err)
		}
	}
	orch.Start(scope)
	scope.Log.Info("coordination core running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	scope.Log.WithField("signal", sig.String()).Info("shutting down")
	orch.Shutdown(scope)
}

// initTracing wires the zipkin exporter and B3 propagation into the global
// otel tracer provider. The returned func flushes pending spans.
func initTracing(zipkinURL string) (func(), error) {
	exporter, err := zipkin.New(zipkinURL)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(b3.New())
	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logrus.Errorf("tracer shutdown: %s", err)
		}
	}, nil
}

func serveMetrics(address string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(address, mux); err != nil {
		logrus.Errorf("metrics server: %s", err)
	}
}
