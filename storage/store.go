// Package storage persists rating deltas, match records, and rating
// history through the RatingStore interface the match runner settles
// through (spec.md §6). Store is the Postgres-backed implementation
// (jackc/pgx/v5 + pgxpool), generalizing the teacher's
// Store.UpdateRatingsAfterGame/InsertGameResult pair into the duel
// domain's three-call settlement shape.
package storage

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"quizduel-server/config"
	"quizduel-server/duel"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS ratings (
	user_id    TEXT PRIMARY KEY,
	rating     DOUBLE PRECISION NOT NULL DEFAULT 1000,
	rank       TEXT NOT NULL DEFAULT 'Bronze',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS match_history (
	match_id   UUID PRIMARY KEY,
	player_a   TEXT NOT NULL,
	player_b   TEXT NOT NULL,
	result     TEXT NOT NULL,
	delta_a    DOUBLE PRECISION NOT NULL,
	delta_b    DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_history_player_a ON match_history(player_a);
CREATE INDEX IF NOT EXISTS idx_match_history_player_b ON match_history(player_b);
CREATE TABLE IF NOT EXISTS rating_history (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id       TEXT NOT NULL,
	rating_before DOUBLE PRECISION NOT NULL,
	rating_after  DOUBLE PRECISION NOT NULL,
	delta         DOUBLE PRECISION NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rating_history_user_id ON rating_history(user_id);
`

// Store persists duel results to Postgres.
type Store struct {
	pool *pgxpool.Pool
	cfg  *config.Config
}

// NewStore connects to Postgres and ensures the schema exists. If
// databaseURL is empty, NewStore returns (nil, nil) and the caller should
// fall back to MemStore, mirroring the teacher's nil-Store convention.
func NewStore(ctx context.Context, databaseURL string, cfg *config.Config) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &Store{pool: pool, cfg: cfg}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// ApplyRatingDelta atomically increments userID's rating and recomputes
// its rank band, returning the new rating (spec.md §4.5 "Apply +Δ... by
// incrementing persisted rating").
func (s *Store) ApplyRatingDelta(ctx context.Context, userID string, delta float64) (float64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO ratings (user_id, rating, rank) VALUES ($1, 1000, 'Bronze') ON CONFLICT (user_id) DO NOTHING`,
		userID); err != nil {
		return 0, err
	}

	var newRating float64
	if err := tx.QueryRow(ctx,
		`UPDATE ratings SET rating = rating + $1, updated_at = now() WHERE user_id = $2 RETURNING rating`,
		delta, userID).Scan(&newRating); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `UPDATE ratings SET rank = $1 WHERE user_id = $2`,
		s.cfg.RankFor(newRating), userID); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newRating, nil
}

// RecordMatch inserts one row per completed or cancelled match.
func (s *Store) RecordMatch(ctx context.Context, rec duel.MatchRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO match_history (match_id, player_a, player_b, result, delta_a, delta_b, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.MatchID, rec.PlayerA, rec.PlayerB, string(rec.Result), rec.DeltaA, rec.DeltaB, rec.CreatedAt)
	return err
}

// AppendRatingHistory inserts one row per player per match.
func (s *Store) AppendRatingHistory(ctx context.Context, rows ...duel.RatingHistoryRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO rating_history (user_id, rating_before, rating_after, delta, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			row.UserID, row.RatingBefore, row.RatingAfter, row.Delta, row.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
