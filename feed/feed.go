package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

// Fetcher produces one page for the feed's query. Cursor zero means from
// the start. Implementations never return an error; failures surface as
// empty pages.
type Fetcher func(ctx context.Context, pageSize int, cursor int64) types.NewsPage

// Invalidator busts the cache entries behind the feed's query on Refresh.
type Invalidator func() error

// Feed owns one view's pagination state: the accumulated record list, the
// cursor, and the loading and has-more flags. Methods are safe for
// concurrent use; an in-flight load makes further loads no-ops rather than
// queueing them.
type Feed struct {
	fetch      Fetcher
	invalidate Invalidator
	logger     types.Logger
	pageSize   int

	mu          sync.Mutex
	records     []types.NewsRecord
	cursor      int64
	hasMore     bool
	loading     bool
	loadingMore bool
	failed      bool
	loaded      bool
}

func New(fetch Fetcher, invalidate Invalidator, logger types.Logger, pageSize int) *Feed {
	return &Feed{
		fetch:      fetch,
		invalidate: invalidate,
		logger:     logger,
		pageSize:   pageSize,
		hasMore:    true,
	}
}

// Load performs the initial fetch, replacing any existing list. Loading a
// feed that is already loading is a no-op.
func (f *Feed) Load(ctx context.Context) {
	f.mu.Lock()
	if f.loading || f.loadingMore {
		f.mu.Unlock()
		return
	}
	f.loading = true
	f.failed = false
	f.mu.Unlock()

	result := f.fetch(ctx, f.pageSize, 0)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.loading = false
	f.loaded = true
	f.records = result.Records
	f.cursor = result.Cursor
	f.hasMore = result.HasMore
	// Fetchers never return errors, so an empty initial page is the only
	// observable failure signal.
	f.failed = len(result.Records) == 0
}

// LoadMore fetches the next page and appends it. No-op when the feed has
// no more content, has not loaded yet, or a fetch is already in flight; a
// rapid double trigger issues exactly one query.
func (f *Feed) LoadMore(ctx context.Context) {
	f.mu.Lock()
	if !f.loaded || !f.hasMore || f.loading || f.loadingMore {
		f.mu.Unlock()
		return
	}
	f.loadingMore = true
	cursor := f.cursor
	f.mu.Unlock()

	result := f.fetch(ctx, f.pageSize, cursor)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.loadingMore = false
	f.records = append(f.records, result.Records...)
	if result.Cursor != 0 {
		f.cursor = result.Cursor
	}
	f.hasMore = result.HasMore
}

// Refresh busts the query's cache entries, resets the cursor and replaces
// the list, regardless of prior pagination depth.
func (f *Feed) Refresh(ctx context.Context) {
	f.mu.Lock()
	if f.loading || f.loadingMore {
		f.mu.Unlock()
		return
	}
	f.loading = true
	f.failed = false
	f.mu.Unlock()

	if f.invalidate != nil {
		if err := f.invalidate(); err != nil {
			f.logger.Warn("Feed cache invalidation failed", zap.Error(err))
		}
	}

	result := f.fetch(ctx, f.pageSize, 0)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.loading = false
	f.loaded = true
	f.records = result.Records
	f.cursor = result.Cursor
	f.hasMore = result.HasMore
}

func (f *Feed) Records() []types.NewsRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]types.NewsRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading || f.loadingMore
}

func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// Failed reports whether the last initial load produced no content.
// Fetchers absorb their errors and signal failure only through an empty
// page, so a genuinely empty feed is indistinguishable from a failed
// fetch here. Callers treat both the same: show the retry state.
func (f *Feed) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *Feed) isLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}
