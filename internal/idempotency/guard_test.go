package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newGuardAt(t *testing.T, now *time.Time) *MemoryGuard {
	t.Helper()
	g := NewMemoryGuard(time.Hour, 4, 0, nil)
	g.clock = func() time.Time { return *now }
	t.Cleanup(g.Stop)
	return g
}

func TestMemoryGuard_ReplayWithinTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := newGuardAt(t, &now)
	ctx := context.Background()

	if _, ok, _ := g.Check(ctx, "k"); ok {
		t.Fatal("unexpected hit before store")
	}
	if err := g.Store(ctx, "k", []byte(`{"action":"created"}`)); err != nil {
		t.Fatalf("store: %v", err)
	}

	now = now.Add(30 * time.Minute)
	val, ok, err := g.Check(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(val) != `{"action":"created"}` {
		t.Fatalf("unexpected value %q", val)
	}
}

func TestMemoryGuard_ExpiredEntryIsMissAndEvicted(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := newGuardAt(t, &now)
	ctx := context.Background()

	g.Store(ctx, "k", []byte("v"))
	now = now.Add(61 * time.Minute)

	if _, ok, _ := g.Check(ctx, "k"); ok {
		t.Fatal("expired entry should miss")
	}
	if g.Len() != 0 {
		t.Fatalf("expired entry should be evicted, len=%d", g.Len())
	}
}

func TestMemoryGuard_CapacitySweepStillInserts(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := newGuardAt(t, &now)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		g.Store(ctx, fmt.Sprintf("k%d", i), []byte("v"))
	}

	// Nothing expired yet: insert proceeds past the bound.
	g.Store(ctx, "overflow", []byte("v"))
	if g.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", g.Len())
	}

	// Once the originals expire, the next at-capacity store sweeps them.
	now = now.Add(2 * time.Hour)
	g.Store(ctx, "fresh", []byte("v"))
	if g.Len() != 1 {
		t.Fatalf("expected sweep to leave 1 entry, got %d", g.Len())
	}
	if _, ok, _ := g.Check(ctx, "fresh"); !ok {
		t.Fatal("fresh entry should survive the sweep")
	}
}

func TestKeyFromLead_MinuteBucket(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)

	a := KeyFromLead("a@b.com", "+919876543210", base)
	b := KeyFromLead("a@b.com", "+919876543210", base.Add(40*time.Second))
	if a != b {
		t.Error("same minute bucket should give the same key")
	}

	c := KeyFromLead("a@b.com", "+919876543210", base.Add(2*time.Minute))
	if a == c {
		t.Error("different minute bucket should change the key")
	}

	d := KeyFromLead("other@b.com", "+919876543210", base)
	if a == d {
		t.Error("different identity should change the key")
	}
}
