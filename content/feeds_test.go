package content

import (
	"context"
	"testing"
)

func TestNewMainFeed_RefreshBypassesCache(t *testing.T) {
	h := newHarness(t)
	seedFeed(h)

	ctx := context.Background()
	mainFeed := h.service.NewMainFeed()

	mainFeed.Load(ctx)
	if mainFeed.Len() != 3 {
		t.Fatalf("expected 3 records after load, got %d", mainFeed.Len())
	}
	if h.counter.Queries() != 1 {
		t.Fatalf("expected one remote query, got %d", h.counter.Queries())
	}

	// A reload without Refresh serves the cached page.
	mainFeed.Load(ctx)
	if h.counter.Queries() != 1 {
		t.Fatalf("cached reload must not query the store, got %d", h.counter.Queries())
	}

	// Refresh invalidates the listing keys first, forcing a requery.
	mainFeed.Refresh(ctx)
	if h.counter.Queries() != 2 {
		t.Fatalf("refresh must requery the store, got %d queries", h.counter.Queries())
	}
}

func TestNewCategoryFeed_ScopedToCategory(t *testing.T) {
	h := newHarness(t)
	seedFeed(h)

	ctx := context.Background()
	categoryFeed := h.service.NewCategoryFeed("politica")

	categoryFeed.Load(ctx)
	for _, record := range categoryFeed.Records() {
		if record.Category != "Política" {
			t.Fatalf("unexpected category %q in feed", record.Category)
		}
	}
	if categoryFeed.Len() == 0 {
		t.Fatal("category feed should have records")
	}
}

func TestNewTagFeed_SwitchResetsState(t *testing.T) {
	h := newHarness(t)
	h.store.Seed("news", []map[string]interface{}{
		{"id": "t1", "title": "Suba del dólar", "category": "Economía", "date": "2025-01-10", "timestamp": int64(100), "tags": []interface{}{"dólar"}},
		{"id": "t2", "title": "Retenciones", "category": "Economía", "date": "2025-01-12", "timestamp": int64(200), "tags": []interface{}{"campo"}},
	})

	ctx := context.Background()
	tagFeed := h.service.NewTagFeed()

	tagFeed.SetTag(ctx, "dólar")
	if tagFeed.Len() != 1 || tagFeed.Records()[0].ID != "t1" {
		t.Fatalf("expected only the dólar record, got %d records", tagFeed.Len())
	}

	tagFeed.SetTag(ctx, "campo")
	if tagFeed.Len() != 1 || tagFeed.Records()[0].ID != "t2" {
		t.Fatalf("expected only the campo record after switch, got %d records", tagFeed.Len())
	}
}
