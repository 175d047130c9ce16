package content

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eldopolis/portal-core/types"
)

const (
	DefaultPageSize     = 10
	DefaultProbeTimeout = 2 * time.Second

	newsCollection      = "news"
	adsCollection       = "advertisements"
	sponsoredCollection = "sponsored"
)

// Service implements the content fetch operations: cache-first reads over
// the opaque document store, with typed empty results on any failure. None
// of its operations return an error; outages degrade to empty pages or the
// built-in fallback dataset.
type Service struct {
	store        types.DocumentStore
	cache        types.CacheStore
	logger       types.Logger
	coerce       *coercer
	pageSize     int
	pinned       string
	probeTimeout time.Duration
	now          func() time.Time
}

func NewService(store types.DocumentStore, cache types.CacheStore, logger types.Logger, config *types.ContentConfig) *Service {
	pageSize := DefaultPageSize
	pinned := ""
	probeTimeout := DefaultProbeTimeout

	if config != nil {
		if config.PageSize > 0 {
			pageSize = config.PageSize
		}
		pinned = config.PinnedSponsor
	}

	s := &Service{
		store:        store,
		cache:        cache,
		logger:       logger,
		pageSize:     pageSize,
		pinned:       pinned,
		probeTimeout: probeTimeout,
		now:          time.Now,
	}
	s.coerce = newCoercer(logger, func() time.Time { return s.now() })

	return s
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithProbeTimeout overrides the connectivity probe deadline.
func (s *Service) WithProbeTimeout(d time.Duration) *Service {
	if d > 0 {
		s.probeTimeout = d
	}
	return s
}

// probe checks store reachability with a short deadline before issuing the
// real query. A slow or dead store costs at most the probe timeout.
func (s *Service) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	if err := s.store.Ping(probeCtx); err != nil {
		s.logger.Warn("Store connectivity probe failed")
		return false
	}
	return true
}

// Cache keys are deterministic over the full request signature; distinct
// parameter combinations never collide.

func newsPageKey(pageSize int, cursor int64) string {
	if cursor == 0 {
		return fmt.Sprintf("news_page_%d_first", pageSize)
	}
	return fmt.Sprintf("news_page_%d_%d", pageSize, cursor)
}

func categoryKey(category string, pageSize int, cursor int64) string {
	if cursor == 0 {
		return fmt.Sprintf("news_category_%s_%d_first", Fold(category), pageSize)
	}
	return fmt.Sprintf("news_category_%s_%d_%d", Fold(category), pageSize, cursor)
}

func tagKey(tag string, pageSize int, cursor int64) string {
	if cursor == 0 {
		return fmt.Sprintf("news_tag_%s_%d_first", NormalizeTag(tag), pageSize)
	}
	return fmt.Sprintf("news_tag_%s_%d_%d", NormalizeTag(tag), pageSize, cursor)
}

func articleKey(id string) string {
	return "article_" + id
}

func relatedKey(category, excludeID string, limit int) string {
	return fmt.Sprintf("related_%s_%s_%d", Fold(category), excludeID, limit)
}

const (
	adsKey   = "ads_all"
	batchKey = "batch_initial"
)

// sortByTimestamp orders records newest first.
func sortByTimestamp(records []types.NewsRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}

// sortByFeatured orders the main feed: featured rank ascending, ties broken
// by editorial date descending (lexicographic ISO compare).
func sortByFeatured(records []types.NewsRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i].FeaturedType.Rank(), records[j].FeaturedType.Rank()
		if ri != rj {
			return ri < rj
		}
		return records[i].Date > records[j].Date
	})
}

// page assembles the returned page: truncation, cursor advance and the
// full-page heuristic for HasMore. The cursor is the oldest timestamp on
// the page, not the last record in display order, because featured sorting
// reorders records after the query.
func page(records []types.NewsRecord, pageSize int) types.NewsPage {
	if pageSize > 0 && len(records) > pageSize {
		records = records[:pageSize]
	}

	// Clamp capacity so appending to the page never writes into the
	// superset's backing array; cached pages are shared across readers.
	records = records[:len(records):len(records)]

	result := types.NewsPage{Records: records}
	for _, record := range records {
		if result.Cursor == 0 || record.Timestamp < result.Cursor {
			result.Cursor = record.Timestamp
		}
	}
	result.HasMore = pageSize > 0 && len(records) == pageSize

	return result
}

func emptyPage() types.NewsPage {
	return types.NewsPage{Records: []types.NewsRecord{}, HasMore: false}
}
