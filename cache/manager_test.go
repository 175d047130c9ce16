package cache

import (
	"context"
	"testing"

	"github.com/eldopolis/portal-core/types"
)

func TestNewCacheStore_DisabledRejected(t *testing.T) {
	_, err := NewCacheStore(context.Background(), &types.CacheConfig{Enabled: false}, nopLogger{}, nil)
	if !types.IsError(err, types.ErrCacheIsDisabled) {
		t.Fatalf("NewCacheStore(disabled) error = %v, want ErrCacheIsDisabled", err)
	}
}

func TestNewCacheStore_UnknownDurableRejected(t *testing.T) {
	_, err := NewCacheStore(context.Background(), &types.CacheConfig{Enabled: true, Durable: "etcd"}, nopLogger{}, nil)
	if !types.IsError(err, types.ErrCacheTierUnknown) {
		t.Fatalf("NewCacheStore(etcd) error = %v, want ErrCacheTierUnknown", err)
	}
}

func TestNewCacheStore_NilMetricsServesUnwrapped(t *testing.T) {
	store, err := NewCacheStore(context.Background(), &types.CacheConfig{
		Enabled:    true,
		MaxEntries: 10,
		Durable:    "none",
	}, nopLogger{}, nil)
	if err != nil {
		t.Fatalf("NewCacheStore() error = %v", err)
	}

	// Operations must work without a metrics manager in the graph.
	if err := store.Set("news_page_1", "payload", types.ContentNews); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got string
	if !store.Get("news_page_1", types.ContentNews, &got) || got != "payload" {
		t.Fatalf("Get() = %q, want payload", got)
	}
	if err := store.Invalidate("news_"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if err := store.ClearExpired(); err != nil {
		t.Fatalf("ClearExpired() error = %v", err)
	}

	if _, wrapped := store.(*instrumentedCacheStore); wrapped {
		t.Fatal("nil metrics must not produce the instrumented decorator")
	}
}
