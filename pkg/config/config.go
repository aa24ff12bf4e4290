// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package config

type Config struct {
	LogLevel       string `env:"LOG_LEVEL"        envDefault:"info"                  envDocs:"logrus log level"`
	MetricsAddress string `env:"METRICS_ADDRESS"  envDefault:":8080"                 envDocs:"listen address for the prometheus /metrics endpoint"`
	ZipkinURL      string `env:"ZIPKIN_URL"       envDefault:""                      envDocs:"zipkin collector endpoint, tracing disabled when empty"`

	DrainIntervalMs       int `env:"DRAIN_INTERVAL_MS"        envDefault:"10"    envDocs:"orchestrator message drain cadence in milliseconds"`
	MessageQueueCap       int `env:"MESSAGE_QUEUE_CAP"        envDefault:"4096"  envDocs:"max pending messages on the bus before new sends are rejected"`
	CoordinatedTaskMaxSec int `env:"COORDINATED_TASK_MAX_SEC" envDefault:"30"    envDocs:"upper bound for a coordinated sub-task timeout in seconds"`

	MatchIntervalMs      int `env:"MATCH_INTERVAL_MS"       envDefault:"1000"  envDocs:"matchmaking loop cadence in milliseconds"`
	CleanupIntervalSec   int `env:"CLEANUP_INTERVAL_SEC"    envDefault:"60"    envDocs:"matchmaking cleanup sweep cadence in seconds"`
	MatchResultTTLSec    int `env:"MATCH_RESULT_TTL_SEC"    envDefault:"300"   envDocs:"seconds a completed match result is retained"`
	QueueCapPerMode      int `env:"QUEUE_CAP_PER_MODE"      envDefault:"1000"  envDocs:"max queued players per game mode"`
	BackfillMMRWindow    int `env:"BACKFILL_MMR_WINDOW"     envDefault:"300"   envDocs:"mmr distance allowed when backfilling a match"`
	MaxWaitTimeMs        int `env:"MAX_WAIT_TIME_MS"        envDefault:"60000" envDocs:"cap for estimated queue wait time in milliseconds"`
	BaseWaitTimeMs       int `env:"BASE_WAIT_TIME_MS"       envDefault:"5000"  envDocs:"base for estimated queue wait time in milliseconds"`
	CandidateSearchLimit int `env:"CANDIDATE_SEARCH_LIMIT"  envDefault:"200"   envDocs:"max candidate combinations evaluated per matching pass"`

	NetcodePort        int `env:"NETCODE_PORT"          envDefault:"8081"  envDocs:"WebSocket listen port for the netcode server"`
	TickRate           int `env:"TICK_RATE"             envDefault:"30"    envDocs:"simulation tick rate in Hz (10-120)"`
	MaxClients         int `env:"MAX_CLIENTS"           envDefault:"64"    envDocs:"connections beyond this are rejected at handshake"`
	SnapshotIntervalMs int `env:"SNAPSHOT_INTERVAL_MS"  envDefault:"1000"  envDocs:"cadence of full snapshot broadcasts in milliseconds"`
	LagCompWindowMs    int `env:"LAG_COMP_WINDOW_MS"    envDefault:"1000"  envDocs:"how far back the snapshot history can be rewound in milliseconds"`
	InputBufferCap     int `env:"INPUT_BUFFER_CAP"      envDefault:"128"   envDocs:"max buffered inputs per client"`
	MaxMoveSpeed       int `env:"MAX_MOVE_SPEED"        envDefault:"10"    envDocs:"server-enforced movement speed cap in units per tick"`
}
