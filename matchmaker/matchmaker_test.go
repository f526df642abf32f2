package matchmaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"quizduel-server/config"
	"quizduel-server/duel"
	"quizduel-server/pool"
	"quizduel-server/presence"
)

type fakeConn struct {
	out chan string
}

func newFakeConn() *fakeConn { return &fakeConn{out: make(chan string, 16)} }

func (c *fakeConn) SendText(s string) error {
	select {
	case c.out <- s:
	default:
	}
	return nil
}
func (c *fakeConn) Close() {}

type fakeSource struct{}

func (fakeSource) FetchRandomBatch(_ context.Context, n int) ([]duel.Problem, error) {
	items := []duel.Problem{
		{ID: "1", CanonicalAnswer: "x"},
		{ID: "2", CanonicalAnswer: "y"},
		{ID: "3", CanonicalAnswer: "z"},
	}
	if len(items) < n {
		return nil, errors.New("insufficient")
	}
	return items[:n], nil
}

type fakeStore struct{}

func (fakeStore) ApplyRatingDelta(_ context.Context, _ string, _ float64) (float64, error) {
	return 1000, nil
}
func (fakeStore) RecordMatch(_ context.Context, _ duel.MatchRecord) error        { return nil }
func (fakeStore) AppendRatingHistory(_ context.Context, _ ...duel.RatingHistoryRow) error { return nil }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTickPairsAndSpawnsMatch(t *testing.T) {
	cfg := config.Defaults()
	cfg.MatchmakeIntervalSec = 1
	cfg.ToleranceSlope = 50
	cfg.ProblemCount = 3
	cfg.ProblemTimeoutSec = 120
	cfg.ReconnectGraceSec = 5

	p := pool.New()
	reg := presence.New(p)
	mm := New(cfg, p, reg, fakeSource{}, fakeStore{}, testLogger())

	connA := newFakeConn()
	connB := newFakeConn()
	reg.Attach("a", "Alice", 1000, connA)
	reg.Attach("b", "Bob", 1050, connB)

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().Add(2 * time.Second)
	mm.tick(ctx, now)

	if p.Len() != 0 {
		t.Fatalf("expected pool drained after pairing, got %d", p.Len())
	}
	if reg.StateOf("a") != presence.StateInMatch || reg.StateOf("b") != presence.StateInMatch {
		t.Fatalf("expected both users in_match, got a=%v b=%v", reg.StateOf("a"), reg.StateOf("b"))
	}

	select {
	case msg := <-connA.out:
		if msg != "ping" {
			t.Fatalf("expected handshake ping, got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for spawned match to handshake connA")
	}

	// Cancel so the spawned match's Run goroutine takes the cancellation
	// path and wg.Wait below returns promptly instead of idling for the
	// full 120s problem deadline.
	cancel()
	done := make(chan struct{})
	go func() { mm.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for spawned match to observe cancellation")
	}
}

func TestTickLeavesLoneEntryWaiting(t *testing.T) {
	cfg := config.Defaults()
	cfg.ToleranceSlope = 50
	p := pool.New()
	reg := presence.New(p)
	mm := New(cfg, p, reg, fakeSource{}, fakeStore{}, testLogger())

	reg.Attach("solo", "Solo", 1000, newFakeConn())
	mm.tick(context.Background(), time.Now())

	if p.Len() != 1 {
		t.Fatalf("expected the lone entry to remain queued, got %d", p.Len())
	}
}

func TestTickRejectsChannelRefOfWrongType(t *testing.T) {
	cfg := config.Defaults()
	cfg.ToleranceSlope = 50
	p := pool.New()
	reg := presence.New(p)
	mm := New(cfg, p, reg, fakeSource{}, fakeStore{}, testLogger())

	reg.Attach("a", "Alice", 1000, "not-a-conn")
	reg.Attach("b", "Bob", 1000, "also-not-a-conn")

	mm.tick(context.Background(), time.Now())

	if reg.StateOf("a") != presence.StateIdle || reg.StateOf("b") != presence.StateIdle {
		t.Fatalf("expected both released back to idle after spawn rejection, got a=%v b=%v", reg.StateOf("a"), reg.StateOf("b"))
	}
}
