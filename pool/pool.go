// Package pool implements the rating-ordered waiting pool and its
// tolerance-based pairing scan (spec.md §4.3).
package pool

import (
	"sort"
	"sync"
	"time"

	"quizduel-server/duel"
)

// WaitingPool is a collection of waiting entries ordered by
// (Rating, JoinedAt) ascending, with an auxiliary index enforcing at
// most one entry per user. All mutation and the pairing scan happen
// under a single mutex; callers must not retain a pointer into the
// pool across lock releases.
type WaitingPool struct {
	mu      sync.Mutex
	entries []*duel.Entry
	byUser  map[string]*duel.Entry
}

// New returns an empty WaitingPool.
func New() *WaitingPool {
	return &WaitingPool{
		byUser: make(map[string]*duel.Entry),
	}
}

// Insert adds an entry to the pool in sorted position. A second Insert
// for the same user is a no-op (enforces the at-most-one-entry invariant).
func (p *WaitingPool) Insert(e *duel.Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byUser[e.UserID]; ok {
		return false
	}
	idx := sort.Search(len(p.entries), func(i int) bool {
		return less(e, p.entries[i])
	})
	p.entries = append(p.entries, nil)
	copy(p.entries[idx+1:], p.entries[idx:])
	p.entries[idx] = e
	p.byUser[e.UserID] = e
	return true
}

// Remove deletes the waiting entry for userID, if any. Idempotent.
func (p *WaitingPool) Remove(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byUser[userID]
	if !ok {
		return
	}
	delete(p.byUser, userID)
	for i, x := range p.entries {
		if x == e {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			break
		}
	}
}

// UpdateChannelRef replaces the ChannelRef of the waiting entry for
// userID in place, keeping its pool position. Returns the previous
// ChannelRef and whether an entry was found.
func (p *WaitingPool) UpdateChannelRef(userID string, ch any) (old any, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, found := p.byUser[userID]
	if !found {
		return nil, false
	}
	old = e.ChannelRef
	e.ChannelRef = ch
	return old, true
}

// Contains reports whether userID currently has a waiting entry.
func (p *WaitingPool) Contains(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byUser[userID]
	return ok
}

// Len returns the number of waiting entries.
func (p *WaitingPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Pair is one matched pair produced by a scan.
type Pair struct {
	A, B *duel.Entry
}

// ScanAndRemove runs the pairing scan (spec.md §4.3) under the pool's
// lock and removes every paired entry from the pool before returning,
// closing the race with new joins: a matched user cannot be observed
// in the pool again after this call returns.
func (p *WaitingPool) ScanAndRemove(now time.Time, toleranceSlope float64) []Pair {
	p.mu.Lock()
	defer p.mu.Unlock()

	pairs, remaining := scan(p.entries, now, toleranceSlope)
	p.entries = remaining
	p.byUser = make(map[string]*duel.Entry, len(remaining))
	for _, e := range remaining {
		p.byUser[e.UserID] = e
	}
	return pairs
}

func less(a, b *duel.Entry) bool {
	if a.Rating != b.Rating {
		return a.Rating < b.Rating
	}
	return a.JoinedAt.Before(b.JoinedAt)
}

// scan is the pure pairing-scan function: walk the ordered sequence left
// to right; for adjacent entries p1, p2 (p1.Rating <= p2.Rating), compute
// wait as the longer of the two waits — now minus the earlier JoinedAt —
// and tolerance = slope * wait. If the rating gap is strictly less than
// tolerance, pair and skip both; otherwise keep p1 and advance by one.
// Extracted as a free function over a snapshot so it is testable without
// the pool's mutex.
func scan(entries []*duel.Entry, now time.Time, toleranceSlope float64) (pairs []Pair, remaining []*duel.Entry) {
	i := 0
	for i < len(entries)-1 {
		p1, p2 := entries[i], entries[i+1]
		earliest := p1.JoinedAt
		if p2.JoinedAt.Before(earliest) {
			earliest = p2.JoinedAt
		}
		wait := now.Sub(earliest).Seconds()
		tolerance := toleranceSlope * wait
		gap := p2.Rating - p1.Rating
		if gap < 0 {
			gap = -gap
		}
		if gap < tolerance {
			pairs = append(pairs, Pair{A: p1, B: p2})
			i += 2
			continue
		}
		remaining = append(remaining, p1)
		i++
	}
	if i == len(entries)-1 {
		remaining = append(remaining, entries[i])
	}
	return pairs, remaining
}
