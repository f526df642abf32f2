package storage

import (
	"context"
	"testing"
	"time"

	"quizduel-server/duel"
)

func TestMemStoreApplyRatingDeltaDefaultsTo1000(t *testing.T) {
	s := NewMemStore(nil)
	got, err := s.ApplyRatingDelta(context.Background(), "alice", 16)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1016 {
		t.Fatalf("expected 1016, got %v", got)
	}
}

func TestMemStoreApplyRatingDeltaAccumulates(t *testing.T) {
	s := NewMemStore(nil)
	s.ApplyRatingDelta(context.Background(), "alice", 16)
	got, _ := s.ApplyRatingDelta(context.Background(), "alice", -4)
	if got != 1012 {
		t.Fatalf("expected 1012, got %v", got)
	}
	if s.RatingOf("alice") != 1012 {
		t.Fatalf("RatingOf out of sync: %v", s.RatingOf("alice"))
	}
}

func TestMemStoreRecordMatchAndHistory(t *testing.T) {
	s := NewMemStore(nil)
	rec := duel.MatchRecord{MatchID: "m1", PlayerA: "a", PlayerB: "b", Result: duel.ResultAWins, DeltaA: 16, DeltaB: -16, CreatedAt: time.Now()}
	if err := s.RecordMatch(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	rows := []duel.RatingHistoryRow{
		{UserID: "a", RatingBefore: 1000, RatingAfter: 1016, Delta: 16, CreatedAt: rec.CreatedAt},
		{UserID: "b", RatingBefore: 1000, RatingAfter: 984, Delta: -16, CreatedAt: rec.CreatedAt},
	}
	if err := s.AppendRatingHistory(context.Background(), rows...); err != nil {
		t.Fatal(err)
	}
	if len(s.matches) != 1 || len(s.history) != 2 {
		t.Fatalf("expected 1 match and 2 history rows, got %d/%d", len(s.matches), len(s.history))
	}
}
