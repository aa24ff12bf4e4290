// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaking

// Action discriminators understood by the matchmaking agent.
const (
	ActionJoinQueue        = "join_queue"
	ActionLeaveQueue       = "leave_queue"
	ActionUpdateRating     = "update_rating"
	ActionGetQueueStatus   = "get_queue_status"
	ActionRequestBackfill  = "request_backfill"
	ActionPlayerDisconnect = "player_disconnect"
	ActionMatchComplete    = "match_complete"
)

// JoinQueue enqueues a player (optionally as part of a party) into a game
// mode queue.
type JoinQueue struct {
	PlayerID          string
	GameMode          string
	PartyID           string
	Role              string
	Region            string
	ConnectionQuality string
}

func (JoinQueue) Kind() string { return ActionJoinQueue }

// LeaveQueue removes a player from a game mode queue. Leaving while not
// queued is a no-op.
type LeaveQueue struct {
	PlayerID string
	GameMode string
}

func (LeaveQueue) Kind() string { return ActionLeaveQueue }

// UpdateRating applies the post-match rating step for one player.
type UpdateRating struct {
	PlayerID    string
	MatchID     string
	GameMode    string
	Won         bool
	Performance float64
}

func (UpdateRating) Kind() string { return ActionUpdateRating }

// GetQueueStatus reports queue depth and estimated wait for a game mode.
type GetQueueStatus struct {
	GameMode string
	PlayerID string
}

func (GetQueueStatus) Kind() string { return ActionGetQueueStatus }

// RequestBackfill asks for replacement players on a running match.
type RequestBackfill struct {
	MatchID         string
	GameMode        string
	RequiredPlayers int
	AverageMMR      float64
	Urgency         Urgency
}

func (RequestBackfill) Kind() string { return ActionRequestBackfill }

// PlayerDisconnect reports a mid-match disconnect; the agent converts it
// into a high-urgency backfill request.
type PlayerDisconnect struct {
	PlayerID string
	MatchID  string
}

func (PlayerDisconnect) Kind() string { return ActionPlayerDisconnect }

// MatchComplete closes out a match and applies rating updates for its
// players. The match result itself is retained for a grace period.
type MatchComplete struct {
	MatchID     string
	Winners     []string
	Losers      []string
	Performance map[string]float64
}

func (MatchComplete) Kind() string { return ActionMatchComplete }

// MatchCreated is broadcast to the policy layer when a match is accepted.
type MatchCreated struct {
	MatchID     string
	GameMode    string
	PlayerIDs   []string
	Region      string
	Fairness    float64
	AverageMMR  float64
	PlayerCount int
}

func (MatchCreated) Kind() string { return "match_created" }

// AllocateServer is the command emitted to the netcode agent when a match
// needs a game server.
type AllocateServer struct {
	MatchID     string
	GameMode    string
	PlayerCount int
	Region      string
}

func (AllocateServer) Kind() string { return "allocate_server" }
