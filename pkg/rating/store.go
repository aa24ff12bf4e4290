// Copyright (c) 2025 Arcade Live Inc. All Rights Reserved.
// This is licensed software from Arcade Live Inc, for limitations
// and restrictions contact your company contract manager.

package rating

import (
	"sync"

	"github.com/arcadelive/realtime-core/pkg/envelope"
)

// Store persists ratings and match history across matches. The matchmaking
// agent only talks to this interface; production deployments substitute a
// database-backed implementation.
type Store interface {
	// Load returns the stored rating for the player, initialising a default
	// rating on first sight.
	Load(scope *envelope.Scope, playerID string) (Rating, error)

	// Save writes the rating back after a post-match update.
	Save(scope *envelope.Scope, playerID string, r Rating) error

	// History returns the player's match records, most recent last.
	History(scope *envelope.Scope, playerID string) ([]MatchRecord, error)

	// AppendHistory adds a record, evicting the oldest beyond HistoryCap.
	AppendHistory(scope *envelope.Scope, playerID string, rec MatchRecord) error
}

// MemoryStore is the in-process Store used at boot and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	ratings map[string]Rating
	history map[string][]MatchRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ratings: make(map[string]Rating),
		history: make(map[string][]MatchRecord),
	}
}

func (s *MemoryStore) Load(scope *envelope.Scope, playerID string) (Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.ratings[playerID]
	if !ok {
		r = Default()
		s.ratings[playerID] = r
		scope.Log.WithField("playerID", playerID).Debug("initialised default rating")
	}
	return r, nil
}

func (s *MemoryStore) Save(scope *envelope.Scope, playerID string, r Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[playerID] = r
	return nil
}

func (s *MemoryStore) History(scope *envelope.Scope, playerID string) ([]MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[playerID]
	out := make([]MatchRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) AppendHistory(scope *envelope.Scope, playerID string, rec MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := append(s.history[playerID], rec)
	if len(records) > HistoryCap {
		records = records[len(records)-HistoryCap:]
	}
	s.history[playerID] = records
	return nil
}
