package match

import "time"

// rateLimiter is a bounded per-user sliding window over raw answer
// timestamps. A count-over-window policy rejects the (R+1)th event within
// any trailing W-second window and does not count the rejected attempt —
// golang.org/x/time/rate's token bucket refills on a schedule and has no
// way to express "reject without consuming", so this is hand-rolled
// (see DESIGN.md).
type rateLimiter struct {
	window time.Duration
	max    int
	byUser map[string][]time.Time
}

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	return &rateLimiter{
		window: window,
		max:    max,
		byUser: make(map[string][]time.Time),
	}
}

// Allow evicts timestamps older than the window, then reports whether
// userID may submit another answer at now. On true it records the
// timestamp; on false nothing is recorded, so the attempt does not count
// toward the next window.
func (r *rateLimiter) Allow(userID string, now time.Time) bool {
	cutoff := now.Add(-r.window)
	ts := r.byUser[userID]

	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.max {
		r.byUser[userID] = kept
		return false
	}

	r.byUser[userID] = append(kept, now)
	return true
}
