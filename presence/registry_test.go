package presence

import (
	"testing"
	"time"

	"quizduel-server/pool"
)

type fakeTarget struct {
	reattached   bool
	lastChannel  any
	acceptResult bool
}

func (f *fakeTarget) Reattach(channel any) bool {
	f.reattached = true
	f.lastChannel = channel
	return f.acceptResult
}

func TestAttachQueueNewThenReplaceQueued(t *testing.T) {
	p := pool.New()
	r := New(p)

	res := r.Attach("u1", "Alice", 1000, "chan-1")
	if res.Outcome != AttachQueueNew {
		t.Fatalf("expected AttachQueueNew, got %v", res.Outcome)
	}
	if !p.Contains("u1") {
		t.Fatal("expected u1 in pool after queue_new")
	}

	res = r.Attach("u1", "Alice", 1000, "chan-2")
	if res.Outcome != AttachReplaceQueued {
		t.Fatalf("expected AttachReplaceQueued, got %v", res.Outcome)
	}
	if res.OldChannel != "chan-1" {
		t.Fatalf("expected old channel chan-1, got %v", res.OldChannel)
	}
	if p.Len() != 1 {
		t.Fatalf("replace_queued must keep pool position (1 entry), got %d", p.Len())
	}
}

func TestAttachAlreadyInMatch(t *testing.T) {
	p := pool.New()
	r := New(p)
	r.MarkInMatch("u1")

	res := r.Attach("u1", "Alice", 1000, "chan-1")
	if res.Outcome != AttachAlreadyInMatch {
		t.Fatalf("expected AttachAlreadyInMatch, got %v", res.Outcome)
	}
}

func TestDetachFromQueuedRemovesFromPool(t *testing.T) {
	p := pool.New()
	r := New(p)
	r.Attach("u1", "Alice", 1000, "chan-1")
	r.Detach("u1")
	if p.Contains("u1") {
		t.Fatal("expected u1 removed from pool after detach")
	}
	if r.StateOf("u1") != StateIdle {
		t.Fatalf("expected idle after detach, got %v", r.StateOf("u1"))
	}
}

func TestMarkAwaitingReconnectThenReattach(t *testing.T) {
	p := pool.New()
	r := New(p)
	r.MarkInMatch("u1")

	target := &fakeTarget{acceptResult: true}
	r.MarkAwaitingReconnect("u1", target, 5*time.Second, func() {
		t.Fatal("timeout should not fire on successful reattach")
	})
	if r.StateOf("u1") != StateAwaitingReconnect {
		t.Fatalf("expected awaiting_reconnect, got %v", r.StateOf("u1"))
	}

	res := r.Attach("u1", "Alice", 1000, "chan-new")
	if res.Outcome != AttachReconnect {
		t.Fatalf("expected AttachReconnect, got %v", res.Outcome)
	}
	if res.Target == nil {
		t.Fatal("expected reconnect target to be returned")
	}
	if r.StateOf("u1") != StateInMatch {
		t.Fatalf("expected in_match after successful reattach, got %v", r.StateOf("u1"))
	}
}

func TestMarkAwaitingReconnectTimeout(t *testing.T) {
	p := pool.New()
	r := New(p)
	r.MarkInMatch("u1")

	done := make(chan struct{})
	r.MarkAwaitingReconnect("u1", &fakeTarget{}, 20*time.Millisecond, func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for reconnect grace expiry callback")
	}
	if r.StateOf("u1") != StateIdle {
		t.Fatalf("expected state cleared after grace expiry, got %v", r.StateOf("u1"))
	}
}

func TestOneEntryPerUserInvariant(t *testing.T) {
	p := pool.New()
	r := New(p)
	for i := 0; i < 5; i++ {
		r.Attach("u1", "Alice", 1000, i)
	}
	if p.Len() != 1 {
		t.Fatalf("invariant violated: expected at most 1 waiting entry per user, got %d", p.Len())
	}
}
