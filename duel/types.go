// Package duel holds the data types shared across the matchmaking and
// match-running subsystems: the runtime user handle, a waiting-pool
// entry, in-match events, and the records persisted at settlement.
package duel

import "time"

// User is a runtime-only handle resolved at connect time by an
// IdentityResolver. It is never persisted as-is; created on connect,
// discarded on disconnect.
type User struct {
	ID      string
	Name    string
	Rating  float64
}

// Entry is a waiting-pool record. Ordering key is (Rating, JoinedAt)
// ascending. ChannelRef is an opaque handle to the owning connection;
// the pool never dereferences it beyond passing it to the matchmaker.
type Entry struct {
	UserID     string
	Name       string
	Rating     float64
	JoinedAt   time.Time
	ChannelRef any
}

// EventKind enumerates the kinds of events a running match consumes
// from its shared event stream.
type EventKind int

const (
	EventAnswer EventKind = iota
	EventChat
	EventEmoji
	EventDisconnected
)

// Event is one item on a match's event stream. Kind classification
// happens at the gateway by prefix match (see gateway/message.go);
// Disconnected events are synthesized by a connection's producer task
// when its channel errors, never raised directly into the loop.
type Event struct {
	UserID     string
	Kind       EventKind
	Payload    string
	ReceivedAt time.Time
}

// Result is the settled outcome of a match.
type Result string

const (
	ResultAWins     Result = "a_wins"
	ResultBWins     Result = "b_wins"
	ResultDraw      Result = "draw"
	ResultCancelled Result = "cancelled"
)

// MatchRecord is appended once per match to the persistent store.
type MatchRecord struct {
	MatchID   string
	PlayerA   string
	PlayerB   string
	Result    Result
	DeltaA    float64
	DeltaB    float64
	CreatedAt time.Time
}

// RatingHistoryRow is appended once per player per match. RatingBefore is
// kept alongside RatingAfter/Delta (original_source's change_elo returns
// only the new value; the prior rating is cheap to retain and is read
// back by the out-of-scope profile/leaderboard HTTP surface).
type RatingHistoryRow struct {
	UserID       string
	RatingBefore float64
	RatingAfter  float64
	Delta        float64
	CreatedAt    time.Time
}

// Problem is opaque to the core beyond its canonical answer, which is
// compared after normalization.
type Problem struct {
	ID              string
	Statement       string
	CanonicalAnswer string
}
