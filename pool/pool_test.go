package pool

import (
	"testing"
	"time"

	"quizduel-server/duel"
)

func entryAt(userID string, rating float64, joinedAt time.Time) *duel.Entry {
	return &duel.Entry{UserID: userID, Rating: rating, JoinedAt: joinedAt}
}

func TestInsertEnforcesUniqueness(t *testing.T) {
	p := New()
	e1 := entryAt("u1", 1000, time.Now())
	e2 := entryAt("u1", 1100, time.Now())
	if !p.Insert(e1) {
		t.Fatal("first insert should succeed")
	}
	if p.Insert(e2) {
		t.Fatal("second insert for same user should be rejected")
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", p.Len())
	}
}

func TestInsertRemoveOrdering(t *testing.T) {
	p := New()
	base := time.Now()
	p.Insert(entryAt("b", 1100, base))
	p.Insert(entryAt("a", 1000, base))
	p.Insert(entryAt("c", 1200, base))

	pairs, remaining := scan(p.entries, base, 0) // slope 0: tolerance always 0, no pairs
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs with zero tolerance, got %d", len(pairs))
	}
	if len(remaining) != 3 {
		t.Fatalf("expected 3 remaining, got %d", len(remaining))
	}
	if remaining[0].UserID != "a" || remaining[1].UserID != "b" || remaining[2].UserID != "c" {
		t.Fatalf("expected sorted order a,b,c; got %v,%v,%v", remaining[0].UserID, remaining[1].UserID, remaining[2].UserID)
	}

	p.Remove("b")
	if p.Contains("b") {
		t.Fatal("b should have been removed")
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 remaining after remove, got %d", p.Len())
	}
}

// Scenario 1 (spec.md §9): two users 1000 and 1050 join within one second;
// matchmaker pairs them once wait >= 2s (since 50 < 50*2 = 100, and 50 < 50*1 = 50 is false).
func TestScanFastPairing(t *testing.T) {
	base := time.Now()
	entries := []*duel.Entry{
		entryAt("a", 1000, base),
		entryAt("b", 1050, base.Add(500*time.Millisecond)),
	}
	pairs, _ := scan(entries, base.Add(1*time.Second), 50)
	if len(pairs) != 0 {
		t.Fatalf("at wait=1s gap(50) should not be < tolerance(50), got %d pairs", len(pairs))
	}
	pairs, _ = scan(entries, base.Add(2*time.Second), 50)
	if len(pairs) != 1 {
		t.Fatalf("at wait=2s gap(50) should be < tolerance(100), got %d pairs", len(pairs))
	}
}

// Scenario 2 (spec.md §9): A(1000) waits alone 5s, B(1400) joins.
// Gap 400. At total wait 8s: 400 < 400 is false (not paired).
// At total wait 9s: 400 < 450 is true (paired).
func TestScanToleranceGrowth(t *testing.T) {
	base := time.Now()
	aJoined := base
	bJoined := base.Add(5 * time.Second)
	entries := []*duel.Entry{
		entryAt("a", 1000, aJoined),
		entryAt("b", 1400, bJoined),
	}

	pairs, remaining := scan(entries, base.Add(8*time.Second), 50)
	if len(pairs) != 0 {
		t.Fatalf("at wait=8s gap(400) should not be < tolerance(400), got %d pairs", len(pairs))
	}
	if len(remaining) != 2 {
		t.Fatalf("expected both entries still waiting, got %d", len(remaining))
	}

	pairs, _ = scan(entries, base.Add(9*time.Second), 50)
	if len(pairs) != 1 {
		t.Fatalf("at wait=9s gap(400) should be < tolerance(450), got %d pairs", len(pairs))
	}
}

// Pairing monotonicity (spec.md §8): increasing joined_at of either
// participant (holding ratings constant, i.e. shortening the elapsed
// wait) only narrows or preserves the admissible gap — it never widens it.
func TestPairingMonotonicity(t *testing.T) {
	base := time.Now()
	now := base.Add(10 * time.Second)

	earlierJoin := entryAt("a", 1000, base)
	laterJoin := entryAt("a2", 1000, base.Add(2*time.Second))
	partner := entryAt("b", 1300, base)

	_, remEarlier := scan([]*duel.Entry{earlierJoin, partner}, now, 50)
	_, remLater := scan([]*duel.Entry{laterJoin, partner}, now, 50)

	// The longer-waiting pairing (earlierJoin) must admit every gap the
	// shorter-waiting one (laterJoin) admits: if laterJoin's scan paired
	// (zero remaining), earlierJoin's scan must also have paired.
	if len(remLater) == 0 && len(remEarlier) != 0 {
		t.Fatal("a shorter wait paired but a longer wait with the same ratings did not")
	}
}

func TestScanTrailingUnpairedEntry(t *testing.T) {
	base := time.Now()
	entries := []*duel.Entry{
		entryAt("a", 1000, base),
		entryAt("b", 1001, base),
		entryAt("c", 2000, base),
	}
	pairs, remaining := scan(entries, base.Add(1*time.Second), 50)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair (a,b), got %d", len(pairs))
	}
	if len(remaining) != 1 || remaining[0].UserID != "c" {
		t.Fatalf("expected c to remain unpaired, got %v", remaining)
	}
}
