// Package matchmaker runs the periodic pairing loop: every tick it scans
// the waiting pool, marks each paired user in_match, and spawns a match
// runner for the pair (spec.md §4.4).
package matchmaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quizduel-server/config"
	"quizduel-server/match"
	"quizduel-server/pool"
	"quizduel-server/presence"
	"quizduel-server/problems"
	"quizduel-server/storage"
)

// Matchmaker owns the ticker loop. Run blocks until ctx is cancelled, at
// which point it waits for every in-flight match's Run goroutine to
// observe the same cancellation and exit.
type Matchmaker struct {
	cfg      *config.Config
	pool     *pool.WaitingPool
	presence *presence.Registry
	source   problems.Source
	store    storage.RatingStore
	log      *slog.Logger

	wg sync.WaitGroup
}

// New returns a Matchmaker wired to the given pool, presence registry,
// problem source and persistence store.
func New(cfg *config.Config, p *pool.WaitingPool, reg *presence.Registry, source problems.Source, store storage.RatingStore, log *slog.Logger) *Matchmaker {
	return &Matchmaker{
		cfg:      cfg,
		pool:     p,
		presence: reg,
		source:   source,
		store:    store,
		log:      log,
	}
}

// Run ticks every MatchmakeIntervalSec, pairs waiting entries, and spawns
// one match.Match per pair. A pairing-scan error never happens (the scan
// is pure and total); a panic inside one match's goroutine is not
// recovered and crashes the whole process, same as the teacher's
// equivalent loop — deliberately, since a corrupted match state machine
// should not silently keep running.
func (mm *Matchmaker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(mm.cfg.MatchmakeIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.wg.Wait()
			return
		case now := <-ticker.C:
			mm.tick(ctx, now)
		}
	}
}

func (mm *Matchmaker) tick(ctx context.Context, now time.Time) {
	pairs := mm.pool.ScanAndRemove(now, mm.cfg.ToleranceSlope)
	for _, p := range pairs {
		mm.presence.MarkInMatch(p.A.UserID)
		mm.presence.MarkInMatch(p.B.UserID)
		mm.spawn(ctx, p)
	}
}

func (mm *Matchmaker) spawn(ctx context.Context, pair pool.Pair) {
	connA, okA := pair.A.ChannelRef.(match.Conn)
	connB, okB := pair.B.ChannelRef.(match.Conn)
	if !okA || !okB {
		mm.log.Error("waiting entry channel_ref is not a match.Conn", "user_a", pair.A.UserID, "user_b", pair.B.UserID)
		mm.presence.Release(pair.A.UserID)
		mm.presence.Release(pair.B.UserID)
		return
	}

	a := &match.Participant{UserID: pair.A.UserID, Name: pair.A.Name, Rating: pair.A.Rating, Conn: connA}
	b := &match.Participant{UserID: pair.B.UserID, Name: pair.B.Name, Rating: pair.B.Rating, Conn: connB}

	m := match.New(mm.cfg, a, b, mm.source, mm.store, mm.log)
	m.AttachPresence(mm.presence)

	if binder, ok := connA.(match.Binder); ok {
		binder.BindMatch(m)
	}
	if binder, ok := connB.(match.Binder); ok {
		binder.BindMatch(m)
	}

	mm.wg.Add(1)
	go func() {
		defer mm.wg.Done()
		m.Run(ctx)
	}()
}
