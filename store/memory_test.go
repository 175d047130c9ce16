package store

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eldopolis/portal-core/types"
)

type nopLogger struct{}

func (nopLogger) Error(msg string, fields ...zap.Field)                  {}
func (nopLogger) Warn(msg string, fields ...zap.Field)                   {}
func (nopLogger) Info(msg string, fields ...zap.Field)                   {}
func (nopLogger) Debug(msg string, fields ...zap.Field)                  {}
func (nopLogger) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {}

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	impl, err := NewMemoryStore(context.Background(), nopLogger{}, &types.StoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	return impl.(*MemoryStore)
}

func seedNews(store *MemoryStore) {
	store.Seed("news", []map[string]interface{}{
		{"id": "n1", "title": "Uno", "category": "Política", "timestamp": int64(100), "tags": []interface{}{"elecciones"}},
		{"id": "n2", "title": "Dos", "category": "Economía", "timestamp": int64(200), "tags": []interface{}{"dólar", "inflación"}},
		{"id": "n3", "title": "Tres", "category": "Política", "timestamp": int64(300), "tags": []interface{}{"congreso"}},
		{"id": "n4", "title": "Cuatro", "category": "Política", "timestamp": int64(400), "tags": []interface{}{"elecciones", "congreso"}},
	})
}

func TestMemoryStore_FilterEquality(t *testing.T) {
	store := newTestMemoryStore(t)
	seedNews(store)

	docs, err := store.QueryCollection(context.Background(), types.QueryRequest{
		Collection: "news",
		Filter:     map[string]interface{}{"category": "Política"},
		OrderBy:    "timestamp",
		Descending: true,
	})
	if err != nil {
		t.Fatalf("QueryCollection failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	if docs[0]["id"] != "n4" {
		t.Fatalf("expected newest first, got %v", docs[0]["id"])
	}
}

func TestMemoryStore_CursorResumesAfterLastRecord(t *testing.T) {
	store := newTestMemoryStore(t)
	seedNews(store)

	ctx := context.Background()
	first, err := store.QueryCollection(ctx, types.QueryRequest{
		Collection: "news",
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("QueryCollection failed: %v", err)
	}
	if len(first) != 2 || first[1]["id"] != "n3" {
		t.Fatalf("unexpected first page: %v", first)
	}

	cursor, _ := toFloat64(first[1]["timestamp"])
	second, err := store.QueryCollection(ctx, types.QueryRequest{
		Collection: "news",
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      2,
		Cursor:     int64(cursor),
	})
	if err != nil {
		t.Fatalf("QueryCollection failed: %v", err)
	}
	if len(second) != 2 || second[0]["id"] != "n2" || second[1]["id"] != "n1" {
		t.Fatalf("unexpected second page: %v", second)
	}

	// Pages never overlap and never skip.
	for _, firstDoc := range first {
		for _, secondDoc := range second {
			if firstDoc["id"] == secondDoc["id"] {
				t.Fatalf("document %v appears on both pages", firstDoc["id"])
			}
		}
	}
}

func TestMemoryStore_ContainsAnyTagFilter(t *testing.T) {
	store := newTestMemoryStore(t)
	seedNews(store)

	docs, err := store.QueryCollection(context.Background(), types.QueryRequest{
		Collection: "news",
		Filter: map[string]interface{}{
			"tags": map[string]interface{}{"$contains": []interface{}{"elecciones"}},
		},
		OrderBy:    "timestamp",
		Descending: true,
	})
	if err != nil {
		t.Fatalf("QueryCollection failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 tagged documents, got %d", len(docs))
	}
}

func TestMemoryStore_ForbiddenCollection(t *testing.T) {
	store := newTestMemoryStore(t)
	store.Seed("sponsored_ads", []map[string]interface{}{{"id": "s1"}})
	store.Forbid("sponsored_ads")

	_, err := store.QueryCollection(context.Background(), types.QueryRequest{Collection: "sponsored_ads"})
	if !types.IsError(err, types.ErrCollectionForbidden) {
		t.Fatalf("expected ErrCollectionForbidden, got %v", err)
	}
}

func TestMemoryStore_MissingCollectionIsEmpty(t *testing.T) {
	store := newTestMemoryStore(t)

	docs, err := store.QueryCollection(context.Background(), types.QueryRequest{Collection: "nothing"})
	if err != nil {
		t.Fatalf("QueryCollection failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty result, got %d", len(docs))
	}
}

func TestMemoryStore_GetDocument(t *testing.T) {
	store := newTestMemoryStore(t)
	seedNews(store)

	doc, err := store.GetDocument(context.Background(), "news", "n2")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc["title"] != "Dos" {
		t.Fatalf("unexpected document: %v", doc)
	}

	if _, err := store.GetDocument(context.Background(), "news", "missing"); !types.IsError(err, types.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestMemoryStore_PingHonorsDeadline(t *testing.T) {
	store := newTestMemoryStore(t)
	store.SetProbeDelay(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := store.Ping(ctx); !types.IsError(err, types.ErrStoreProbeTimeout) {
		t.Fatalf("expected ErrStoreProbeTimeout, got %v", err)
	}

	store.SetProbeDelay(0)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
