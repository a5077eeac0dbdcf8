package memorycache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(&Config{
		MaxSizeBytes:  10 * 1024,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "alice:B1", []string{"project:read"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found := c.Get(ctx, "alice:B1")
	if !found {
		t.Fatal("expected cache hit")
	}
	perms, ok := value.([]string)
	if !ok || len(perms) != 1 || perms[0] != "project:read" {
		t.Errorf("unexpected cached value: %v", value)
	}

	if _, found := c.Get(ctx, "bob:B1"); found {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, found := c.Get(ctx, "k"); found {
		t.Error("expected expired entry to miss")
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// Zero TTL falls back to the configured default.
	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, found := c.Get(ctx, "k"); !found {
		t.Error("expected hit with default TTL")
	}
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", "v", time.Minute)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found := c.Get(ctx, "k"); found {
		t.Error("expected miss after delete")
	}

	// Deleting a missing key is not an error.
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete() of missing key returned %v", err)
	}
}

func TestCache_Clear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = c.Set(ctx, fmt.Sprintf("k%d", i), i, time.Minute)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after clear, want 0", c.Len())
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after clear, want 0", c.Size())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c, err := New(&Config{
		MaxSizeBytes:  250, // room for roughly two entries
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	ctx := context.Background()

	_ = c.Set(ctx, "first", 1, time.Minute)
	_ = c.Set(ctx, "second", 2, time.Minute)
	// Touch "first" so "second" becomes the LRU victim.
	_, _ = c.Get(ctx, "first")
	_ = c.Set(ctx, "third", 3, time.Minute)

	if _, found := c.Get(ctx, "second"); found {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, found := c.Get(ctx, "first"); !found {
		t.Error("expected recently used entry to survive eviction")
	}

	m := c.Metrics()
	if m.KeysEvicted == 0 {
		t.Error("expected eviction metric to be recorded")
	}
}

func TestCache_Metrics(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", "v", time.Minute)
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	m := c.Metrics()
	if m.Hits != 1 || m.Misses != 1 || m.KeysAdded != 1 {
		t.Errorf("metrics = %+v, want 1 hit, 1 miss, 1 added", m)
	}
	if rate := m.HitRate(); rate != 0.5 {
		t.Errorf("HitRate() = %v, want 0.5", rate)
	}
}
