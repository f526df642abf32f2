package storage

import (
	"context"
	"sync"

	"quizduel-server/config"
	"quizduel-server/duel"
)

// MemStore is an in-memory RatingStore for tests and local/no-DATABASE_URL
// runs, generalizing the teacher's "nil Store disables persistence"
// convention into a real implementation instead of nil-checks sprinkled
// through the match runner.
type MemStore struct {
	mu      sync.Mutex
	cfg     *config.Config
	ratings map[string]float64
	matches []duel.MatchRecord
	history []duel.RatingHistoryRow
}

// NewMemStore returns an empty MemStore. cfg is used only to label
// leaderboard rows with a rank band; nil is fine when rank is not read.
func NewMemStore(cfg *config.Config) *MemStore {
	return &MemStore{cfg: cfg, ratings: make(map[string]float64)}
}

func (s *MemStore) ApplyRatingDelta(_ context.Context, userID string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[userID]
	if !ok {
		r = 1000
	}
	r += delta
	s.ratings[userID] = r
	return r, nil
}

func (s *MemStore) RecordMatch(_ context.Context, rec duel.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, rec)
	return nil
}

func (s *MemStore) AppendRatingHistory(_ context.Context, rows ...duel.RatingHistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rows...)
	return nil
}

// RatingOf returns the current in-memory rating for userID (1000 if unseen).
func (s *MemStore) RatingOf(userID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[userID]
	if !ok {
		return 1000
	}
	return r
}
