// Package presence tracks per-user connection state so that at most one
// active channel and at most one active match exist per user at a time
// (spec.md §4.2).
package presence

import (
	"sync"
	"time"

	"quizduel-server/duel"
	"quizduel-server/pool"
)

// State is a user's presence state.
type State int

const (
	StateIdle State = iota
	StateQueued
	StateInMatch
	StateAwaitingReconnect
)

// AttachOutcome classifies the result of Attach.
type AttachOutcome int

const (
	// AttachQueueNew: the user was idle; a waiting entry was created.
	AttachQueueNew AttachOutcome = iota
	// AttachReplaceQueued: the user was already queued; the new channel
	// replaced the old one in place. OldChannel in the result holds the
	// channel to close.
	AttachReplaceQueued
	// AttachReconnect: the user was awaiting reconnect; Target in the
	// result is the match to hand the new channel to.
	AttachReconnect
	// AttachAlreadyInMatch: the user is in_match and not awaiting
	// reconnect; the new channel must be rejected and closed.
	AttachAlreadyInMatch
)

// ReconnectTarget is implemented by a running match. The registry calls
// Reattach when a new channel arrives for a user it has marked
// AwaitingReconnect, funneling the attach into the match's reconnect slot
// (spec.md §4.5).
type ReconnectTarget interface {
	Reattach(channel any) bool
}

// AttachResult is returned by Attach.
type AttachResult struct {
	Outcome    AttachOutcome
	OldChannel any
	Target     ReconnectTarget
}

// Registry is process-wide presence state, protected by a single mutex.
// No Registry call invokes a caller-supplied callback while holding the
// lock: the onTimeout hook of MarkAwaitingReconnect runs on the
// time.AfterFunc goroutine, after that goroutine has released the lock.
type Registry struct {
	pool *pool.WaitingPool

	mu        sync.Mutex
	state     map[string]State
	reconnect map[string]*reconnectSlot
}

type reconnectSlot struct {
	target ReconnectTarget
	timer  *time.Timer
}

// New returns an empty Registry backed by the given waiting pool.
func New(p *pool.WaitingPool) *Registry {
	return &Registry{
		pool:      p,
		state:     make(map[string]State),
		reconnect: make(map[string]*reconnectSlot),
	}
}

// Attach resolves a newly authenticated channel for userID against the
// user's current presence state. See AttachOutcome for the four cases.
func (r *Registry) Attach(userID, name string, rating float64, channel any) AttachResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state[userID] {
	case StateQueued:
		old, _ := r.pool.UpdateChannelRef(userID, channel)
		return AttachResult{Outcome: AttachReplaceQueued, OldChannel: old}

	case StateAwaitingReconnect:
		slot := r.reconnect[userID]
		delete(r.reconnect, userID)
		if slot != nil && slot.timer != nil {
			slot.timer.Stop()
		}
		r.state[userID] = StateInMatch
		var target ReconnectTarget
		if slot != nil {
			target = slot.target
		}
		return AttachResult{Outcome: AttachReconnect, Target: target}

	case StateInMatch:
		return AttachResult{Outcome: AttachAlreadyInMatch}

	default: // StateIdle or unseen
		r.state[userID] = StateQueued
		r.pool.Insert(&duel.Entry{
			UserID:     userID,
			Name:       name,
			Rating:     rating,
			JoinedAt:   time.Now(),
			ChannelRef: channel,
		})
		return AttachResult{Outcome: AttachQueueNew}
	}
}

// Detach is invoked when a channel error surfaces. A queued user is
// returned to idle and removed from the pool; an in-match user is left
// untouched here — entering AwaitingReconnect is the match runner's
// responsibility via MarkAwaitingReconnect, since only the runner knows
// the reconnect grace and can supply a ReconnectTarget.
func (r *Registry) Detach(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state[userID] == StateQueued {
		r.pool.Remove(userID)
		delete(r.state, userID)
	}
}

// MarkInMatch transitions userID to in_match, clearing any queued state.
// Called by the matchmaker at pairing time, inside the same critical
// section as the pool's pairing scan (spec.md §4.3 — "matched users are
// marked in_match inside the same critical section to close the race
// with new joins").
func (r *Registry) MarkInMatch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[userID] = StateInMatch
}

// MarkAwaitingReconnect transitions userID from in_match to
// awaiting_reconnect and opens a single reconnect slot with a grace
// deadline. If the grace period elapses with no Attach, onTimeout is
// invoked on its own goroutine. Calling this for a user not currently
// in_match is a programmer error in the caller and is a no-op here.
func (r *Registry) MarkAwaitingReconnect(userID string, target ReconnectTarget, grace time.Duration, onTimeout func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state[userID] != StateInMatch {
		return
	}
	r.state[userID] = StateAwaitingReconnect
	slot := &reconnectSlot{target: target}
	slot.timer = time.AfterFunc(grace, func() {
		r.mu.Lock()
		_, stillWaiting := r.reconnect[userID]
		if stillWaiting {
			delete(r.reconnect, userID)
			delete(r.state, userID)
		}
		r.mu.Unlock()
		if stillWaiting && onTimeout != nil {
			onTimeout()
		}
	})
	r.reconnect[userID] = slot
}

// Requeue reinserts userID into the waiting pool and marks it queued
// again. Used when a match never starts because the handshake step
// failed for the other side (spec.md §4.5): the surviving participant's
// connection is still live and must get a path back into matchmaking
// without disconnecting and reconnecting from scratch.
func (r *Registry) Requeue(userID, name string, rating float64, channel any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[userID] = StateQueued
	r.pool.Insert(&duel.Entry{
		UserID:     userID,
		Name:       name,
		Rating:     rating,
		JoinedAt:   time.Now(),
		ChannelRef: channel,
	})
}

// Release clears all presence state for userID (e.g. on normal match
// completion, or on cancellation after settlement).
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.reconnect[userID]; ok {
		if slot.timer != nil {
			slot.timer.Stop()
		}
		delete(r.reconnect, userID)
	}
	delete(r.state, userID)
}

// StateOf returns the current presence state for userID (StateIdle if unseen).
func (r *Registry) StateOf(userID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[userID]
}
