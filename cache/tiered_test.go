package cache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eldopolis/portal-core/types"
)

type nopLogger struct{}

func (nopLogger) Error(msg string, fields ...zap.Field)                 {}
func (nopLogger) Warn(msg string, fields ...zap.Field)                  {}
func (nopLogger) Info(msg string, fields ...zap.Field)                  {}
func (nopLogger) Debug(msg string, fields ...zap.Field)                 {}
func (nopLogger) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {}

// fakeDurable is a map-backed DurableTier with a switchable write failure,
// standing in for a storage backend hitting its quota.
type fakeDurable struct {
	mu       sync.Mutex
	data     map[string][]byte
	failNext bool
	writes   int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{data: make(map[string][]byte)}
}

func (f *fakeDurable) Read(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.data[key]
	return payload, ok
}

func (f *fakeDurable) Write(key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failNext {
		return types.Errorf(types.ErrCacheQuotaExceeded, "key: %s", key)
	}
	f.data[key] = payload
	return nil
}

func (f *fakeDurable) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeDurable) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for key := range f.data {
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *fakeDurable) Start() error    { return nil }
func (f *fakeDurable) Stop() error     { return nil }
func (f *fakeDurable) IsRunning() bool { return true }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, durable types.DurableTier) (*TieredStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	policies := NewPolicyTable(map[types.ContentType]types.TypePolicy{
		types.ContentNews:     {TTL: 30 * time.Minute, Version: "1.0"},
		types.ContentCurrency: {TTL: 15 * time.Minute, Version: "1.0"},
	})
	store := NewTieredStore(nopLogger{}, policies, NewMemoryTier(10), durable).WithClock(clock.Now)
	return store, clock
}

type article struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestTieredStore_SetGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, newFakeDurable())

	want := article{ID: "n1", Title: "Presupuesto aprobado"}
	if err := store.Set("news_page_1", want, types.ContentNews); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got article
	if !store.Get("news_page_1", types.ContentNews, &got) {
		t.Fatal("expected cache hit")
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestTieredStore_ExpiredEntryMisses(t *testing.T) {
	store, clock := newTestStore(t, newFakeDurable())

	if err := store.Set("rates", article{ID: "usd"}, types.ContentCurrency); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clock.Advance(14 * time.Minute)
	var got article
	if !store.Get("rates", types.ContentCurrency, &got) {
		t.Fatal("entry should still be fresh before TTL")
	}

	clock.Advance(2 * time.Minute)
	if store.Get("rates", types.ContentCurrency, &got) {
		t.Fatal("entry should miss after TTL")
	}
}

func TestTieredStore_VersionMismatchInvalidates(t *testing.T) {
	durable := newFakeDurable()
	store, _ := newTestStore(t, durable)

	if err := store.Set("news_page_1", article{ID: "n1"}, types.ContentNews); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A version bump simulates a deploy with a new payload shape.
	bumped := NewTieredStore(nopLogger{},
		NewPolicyTable(map[types.ContentType]types.TypePolicy{
			types.ContentNews: {TTL: 30 * time.Minute, Version: "2.0"},
		}),
		store.memory, durable,
	).WithClock(store.now)

	var got article
	if bumped.Get("news_page_1", types.ContentNews, &got) {
		t.Fatal("old-version entry should miss")
	}
	if _, ok := durable.Read("news_page_1"); ok {
		t.Fatal("old-version durable entry should be deleted on read")
	}
}

func TestTieredStore_DurableHitPromotesToMemory(t *testing.T) {
	durable := newFakeDurable()
	seed, _ := newTestStore(t, durable)
	if err := seed.Set("news_page_1", article{ID: "n1", Title: "t"}, types.ContentNews); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Fresh memory tier, same durable tier: simulates a process restart.
	store, _ := newTestStore(t, durable)

	var got article
	if !store.Get("news_page_1", types.ContentNews, &got) {
		t.Fatal("expected durable hit")
	}
	if got.ID != "n1" {
		t.Fatalf("expected promoted record, got %+v", got)
	}
	if store.memory.Len() != 1 {
		t.Fatalf("expected entry promoted into memory, have %d", store.memory.Len())
	}

	hits, _, _ := store.memory.Stats()
	var again article
	if !store.Get("news_page_1", types.ContentNews, &again) {
		t.Fatal("expected memory hit after promotion")
	}
	newHits, _, _ := store.memory.Stats()
	if newHits != hits+1 {
		t.Fatal("second read should be served from memory")
	}
}

func TestTieredStore_QuotaFailureDoesNotSurface(t *testing.T) {
	durable := newFakeDurable()
	store, clock := newTestStore(t, durable)

	// Seed an entry that will be expired by the time the quota trips.
	if err := store.Set("stale", article{ID: "old"}, types.ContentCurrency); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	clock.Advance(20 * time.Minute)

	durable.failNext = true
	if err := store.Set("fresh", article{ID: "new"}, types.ContentNews); err != nil {
		t.Fatalf("Set must not fail on durable quota: %v", err)
	}

	// The failed write triggers exactly one sweep and no retry.
	if _, ok := durable.Read("stale"); ok {
		t.Fatal("expired durable entry should be swept after quota failure")
	}
	if durable.writes != 2 {
		t.Fatalf("expected no write retry, got %d writes", durable.writes)
	}

	// The transient tier still serves the value.
	var got article
	if !store.Get("fresh", types.ContentNews, &got) {
		t.Fatal("transient tier should still serve the entry")
	}
	if got.ID != "new" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestTieredStore_CorruptDurableEntryDropped(t *testing.T) {
	durable := newFakeDurable()
	store, _ := newTestStore(t, durable)

	durable.data["broken"] = []byte("{not json")

	var got article
	if store.Get("broken", types.ContentNews, &got) {
		t.Fatal("corrupt entry should miss")
	}
	if _, ok := durable.Read("broken"); ok {
		t.Fatal("corrupt entry should be deleted")
	}
}

func TestTieredStore_InvalidateBySubstring(t *testing.T) {
	durable := newFakeDurable()
	store, _ := newTestStore(t, durable)

	keys := []string{"news_page_1", "news_category_politica", "ads_all"}
	for _, key := range keys {
		if err := store.Set(key, article{ID: key}, types.ContentNews); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := store.Invalidate("news"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	var got article
	for _, key := range keys {
		hit := store.Get(key, types.ContentNews, &got)
		if strings.Contains(key, "news") && hit {
			t.Fatalf("key %s should be invalidated", key)
		}
		if !strings.Contains(key, "news") && !hit {
			t.Fatalf("key %s should survive", key)
		}
	}
}

func TestTieredStore_ClearExpiredSweepsBothTiers(t *testing.T) {
	durable := newFakeDurable()
	store, clock := newTestStore(t, durable)

	if err := store.Set("short", article{ID: "a"}, types.ContentCurrency); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set("long", article{ID: "b"}, types.ContentNews); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clock.Advance(16 * time.Minute)
	if err := store.ClearExpired(); err != nil {
		t.Fatalf("ClearExpired failed: %v", err)
	}

	if store.memory.Len() != 1 {
		t.Fatalf("expected 1 memory entry after sweep, have %d", store.memory.Len())
	}
	if _, ok := durable.Read("short"); ok {
		t.Fatal("expired durable entry should be swept")
	}
	if _, ok := durable.Read("long"); !ok {
		t.Fatal("fresh durable entry should survive the sweep")
	}
}

func TestTieredStore_LargePayloadEncoded(t *testing.T) {
	durable := newFakeDurable()
	store, _ := newTestStore(t, durable)

	big := article{ID: "big", Title: strings.Repeat("x", 3000)}
	if err := store.Set("big", big, types.ContentNews); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	payload, ok := durable.Read("big")
	if !ok {
		t.Fatal("expected durable write")
	}
	if !strings.HasPrefix(string(payload), "b64:") {
		t.Fatal("large payload should be base64 wrapped")
	}

	// Round trip through a cold memory tier exercises the decode path.
	cold, _ := newTestStore(t, durable)
	var got article
	if !cold.Get("big", types.ContentNews, &got) {
		t.Fatal("expected durable hit for encoded payload")
	}
	if got.Title != big.Title {
		t.Fatal("decoded payload does not match original")
	}
}

func TestMemoryTier_FIFOEviction(t *testing.T) {
	tier := NewMemoryTier(3)
	now := time.Now()

	for _, key := range []string{"a", "b", "c"} {
		tier.Set(key, &memoryEntry{value: key, timestamp: now, version: "1.0", ttl: time.Hour})
	}

	// Re-reading "a" must not save it from eviction; order is insertion only.
	if _, ok := tier.Get("a", now); !ok {
		t.Fatal("expected hit for a")
	}

	tier.Set("d", &memoryEntry{value: "d", timestamp: now, version: "1.0", ttl: time.Hour})

	if _, ok := tier.Get("a", now); ok {
		t.Fatal("oldest entry should be evicted")
	}
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := tier.Get(key, now); !ok {
			t.Fatalf("expected hit for %s", key)
		}
	}
}

func TestMemoryTier_ReinsertAfterDeleteNotEvictedEarly(t *testing.T) {
	tier := NewMemoryTier(3)
	now := time.Now()

	for _, key := range []string{"a", "b", "c"} {
		tier.Set(key, &memoryEntry{value: key, timestamp: now, version: "1.0", ttl: time.Hour})
	}

	// Delete and re-insert "a". Its original slot at the front of the
	// insertion order is now stale; eviction must take "b" instead.
	tier.Delete("a")
	tier.Set("a", &memoryEntry{value: "a2", timestamp: now, version: "1.0", ttl: time.Hour})

	tier.Set("d", &memoryEntry{value: "d", timestamp: now, version: "1.0", ttl: time.Hour})

	if _, ok := tier.Get("b", now); ok {
		t.Fatal("oldest resident entry should be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := tier.Get(key, now); !ok {
			t.Fatalf("expected hit for %s", key)
		}
	}
	if entry, ok := tier.Get("a", now); !ok || entry.value != "a2" {
		t.Fatal("re-inserted entry should hold the fresh value")
	}
}
