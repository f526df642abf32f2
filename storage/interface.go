package storage

import (
	"context"

	"quizduel-server/duel"
)

// RatingStore is the persistence boundary the match runner settles
// through: rating deltas, the match record, and the two rating-history
// rows (spec.md §6). Each method commits its own transaction; the match
// runner's retry-once-then-cancel policy (§7) operates at this
// granularity rather than across all three calls.
type RatingStore interface {
	ApplyRatingDelta(ctx context.Context, userID string, delta float64) (newRating float64, err error)
	RecordMatch(ctx context.Context, rec duel.MatchRecord) error
	AppendRatingHistory(ctx context.Context, rows ...duel.RatingHistoryRow) error
}

// Ensure *Store and *MemStore both implement RatingStore at compile time.
var (
	_ RatingStore = (*Store)(nil)
	_ RatingStore = (*MemStore)(nil)
)
