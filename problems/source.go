// Package problems defines the problem-repository interface the match
// runner fetches a batch from, plus a small in-memory source for local
// development and tests. The repository is an external collaborator
// (spec.md §1); production deployments supply their own Source.
package problems

import (
	"context"
	"math/rand"
	"sync"

	"quizduel-server/duel"
	"quizduel-server/matcherrors"
)

// Source returns a random batch of problems. A Source that cannot supply
// n distinct problems must return matcherrors.ErrInsufficientProblems so
// the caller can reply "нет задач" and terminate without recording a
// match (spec.md §6).
type Source interface {
	FetchRandomBatch(ctx context.Context, n int) ([]duel.Problem, error)
}

// StaticSource serves problems from a fixed in-memory set, shuffled per
// call. Intended for local development, demos, and tests — not a
// production problem repository.
type StaticSource struct {
	mu    sync.Mutex
	items []duel.Problem
}

// NewStaticSource returns a StaticSource seeded with items.
func NewStaticSource(items []duel.Problem) *StaticSource {
	cp := make([]duel.Problem, len(items))
	copy(cp, items)
	return &StaticSource{items: cp}
}

// FetchRandomBatch implements Source.
func (s *StaticSource) FetchRandomBatch(_ context.Context, n int) ([]duel.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return nil, nil
	}
	if len(s.items) < n {
		return nil, matcherrors.ErrInsufficientProblems
	}
	shuffled := make([]duel.Problem, len(s.items))
	copy(shuffled, s.items)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n], nil
}

// DefaultProblems is a small general-knowledge set used when no external
// repository is configured, enough to exercise the duel loop end to end.
func DefaultProblems() []duel.Problem {
	return []duel.Problem{
		{ID: "p1", Statement: "2 + 2 * 2", CanonicalAnswer: "6"},
		{ID: "p2", Statement: "Capital of France", CanonicalAnswer: "Paris"},
		{ID: "p3", Statement: "sqrt(144)", CanonicalAnswer: "12"},
		{ID: "p4", Statement: "3!", CanonicalAnswer: "6"},
		{ID: "p5", Statement: "HTTP status for Not Found", CanonicalAnswer: "404"},
		{ID: "p6", Statement: "Binary for 5", CanonicalAnswer: "101"},
		{ID: "p7", Statement: "Largest planet in the solar system", CanonicalAnswer: "Jupiter"},
		{ID: "p8", Statement: "pi rounded to 2 decimals", CanonicalAnswer: "3.14"},
	}
}
