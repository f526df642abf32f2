package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"

	"quizduel-server/duel"
)

// LeaderboardEntry is one row of the public leaderboard surface.
type LeaderboardEntry struct {
	UserID        string  `json:"user_id"`
	Rating        float64 `json:"rating"`
	Rank          string  `json:"rank"`
	IsCurrentUser bool    `json:"is_current_user,omitempty"`
}

// ListLeaderboard returns the top entries ordered by rating descending.
func (s *Store) ListLeaderboard(ctx context.Context, limit, offset int) ([]LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, rating, rank FROM ratings ORDER BY rating DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Rating, &e.Rank); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetLeaderboardEntryByUserID returns a single user's leaderboard row, or
// nil if the user has never settled a match.
func (s *Store) GetLeaderboardEntryByUserID(ctx context.Context, userID string) (*LeaderboardEntry, error) {
	var e LeaderboardEntry
	err := s.pool.QueryRow(ctx, `SELECT user_id, rating, rank FROM ratings WHERE user_id = $1`, userID).
		Scan(&e.UserID, &e.Rating, &e.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListRatingHistory returns userID's rating-history rows, most recent first.
func (s *Store) ListRatingHistory(ctx context.Context, userID string) ([]duel.RatingHistoryRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, rating_before, rating_after, delta, created_at
		FROM rating_history WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []duel.RatingHistoryRow
	for rows.Next() {
		var r duel.RatingHistoryRow
		if err := rows.Scan(&r.UserID, &r.RatingBefore, &r.RatingAfter, &r.Delta, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListLeaderboard is MemStore's in-memory equivalent, for local/no-DATABASE_URL runs.
func (s *MemStore) ListLeaderboard(_ context.Context, limit, offset int) ([]LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]LeaderboardEntry, 0, len(s.ratings))
	for userID, rating := range s.ratings {
		entries = append(entries, LeaderboardEntry{UserID: userID, Rating: rating, Rank: s.rankFor(rating)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rating > entries[j].Rating })

	if offset >= len(entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(entries) || limit <= 0 {
		end = len(entries)
	}
	return entries[offset:end], nil
}

func (s *MemStore) GetLeaderboardEntryByUserID(_ context.Context, userID string) (*LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rating, ok := s.ratings[userID]
	if !ok {
		return nil, nil
	}
	return &LeaderboardEntry{UserID: userID, Rating: rating, Rank: s.rankFor(rating)}, nil
}

func (s *MemStore) ListRatingHistory(_ context.Context, userID string) ([]duel.RatingHistoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []duel.RatingHistoryRow
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].UserID == userID {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}

func (s *MemStore) rankFor(rating float64) string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.RankFor(rating)
}
