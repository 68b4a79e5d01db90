package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	m.Set(ctx, "Editor@BBC.co.uk", []byte(`{"platform":"BBC"}`), 0)

	// Lookups go through the same lowercase normalization as writes.
	got, ok := m.Get(ctx, "editor@bbc.co.uk")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != `{"platform":"BBC"}` {
		t.Fatalf("unexpected payload %s", got)
	}
	if !m.Has(ctx, "EDITOR@bbc.co.uk") {
		t.Fatal("Has must see the same entry")
	}
}

func TestMemory_ExpiredEntryIsAbsent(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(0)
	m.now = func() time.Time { return current }

	m.Set(ctx, "a@example.com", []byte("x"), time.Hour)
	current = current.Add(time.Hour) // exactly at expiry

	if _, ok := m.Get(ctx, "a@example.com"); ok {
		t.Fatal("entry at its expiry instant must be treated as absent")
	}
	if m.Size(ctx) != 0 {
		t.Fatal("expired entry must be evicted on read")
	}
}

func TestMemory_ZeroTTLUsesDefault(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(0)
	m.now = func() time.Time { return current }

	m.Set(ctx, "a@example.com", []byte("x"), 0)
	current = current.Add(6 * 24 * time.Hour)
	if !m.Has(ctx, "a@example.com") {
		t.Fatal("entry should live for the 7-day default TTL")
	}
	current = current.Add(2 * 24 * time.Hour)
	if m.Has(ctx, "a@example.com") {
		t.Fatal("entry should be gone after the default TTL")
	}
}

func TestMemory_Sweep(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(0)
	m.now = func() time.Time { return current }

	m.Set(ctx, "old@example.com", []byte("x"), time.Minute)
	m.Set(ctx, "fresh@example.com", []byte("y"), time.Hour)
	current = current.Add(30 * time.Minute)

	if purged := m.Sweep(); purged != 1 {
		t.Fatalf("expected 1 purged entry, got %d", purged)
	}
	if m.Size(ctx) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", m.Size(ctx))
	}
}

func TestMemory_ClearAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	m.Set(ctx, "a@example.com", []byte("x"), 0)
	m.Set(ctx, "b@example.com", []byte("y"), 0)

	m.Delete(ctx, "A@example.com")
	if m.Has(ctx, "a@example.com") {
		t.Fatal("deleted entry should be gone")
	}

	m.Clear(ctx)
	if m.Size(ctx) != 0 {
		t.Fatal("cleared cache should be empty")
	}
}
