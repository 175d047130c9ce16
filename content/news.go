package content

import (
	"context"

	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

// GetNewsPage returns one page of the main feed, featured records first.
// Cursor zero means from the start.
func (s *Service) GetNewsPage(ctx context.Context, pageSize int, cursor int64) types.NewsPage {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	key := newsPageKey(pageSize, cursor)

	var cached types.NewsPage
	if s.cache.Get(key, types.ContentNews, &cached) {
		return cached
	}

	if !s.probe(ctx) {
		return emptyPage()
	}

	docs, err := s.store.QueryCollection(ctx, types.QueryRequest{
		Collection: newsCollection,
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      pageSize,
		Cursor:     cursor,
	})
	if err != nil {
		s.logger.Warn("Main feed query failed", zap.Error(err))
		return emptyPage()
	}

	records := make([]types.NewsRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, s.coerce.newsRecord(doc))
	}

	sortByFeatured(records)
	result := page(records, pageSize)

	if len(result.Records) > 0 {
		if err := s.cache.Set(key, result, types.ContentNews); err != nil {
			s.logger.Warn("Failed to cache main feed page", zap.Error(err))
		}
	}

	return result
}

// GetNewsByCategory returns one page of a section feed, newest first. The
// store query filters on the category field only; ordering is applied here
// so the store needs no composite index. On store failure the built-in
// fallback dataset for the section is served.
func (s *Service) GetNewsByCategory(ctx context.Context, category string, pageSize int, cursor int64) types.NewsPage {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	displayName := NormalizeCategory(category)
	key := categoryKey(displayName, pageSize, cursor)

	var cached types.NewsPage
	if s.cache.Get(key, types.ContentNews, &cached) {
		return cached
	}

	if !s.probe(ctx) {
		return s.categoryFallback(displayName, pageSize)
	}

	docs, err := s.store.QueryCollection(ctx, types.QueryRequest{
		Collection: newsCollection,
		Filter:     map[string]interface{}{"category": displayName},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      pageSize,
		Cursor:     cursor,
	})
	if err != nil {
		s.logger.Warn("Category feed query failed",
			zap.String("category", displayName), zap.Error(err))
		return s.categoryFallback(displayName, pageSize)
	}

	records := make([]types.NewsRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, s.coerce.newsRecord(doc))
	}

	sortByTimestamp(records)
	result := page(records, pageSize)

	if len(result.Records) > 0 {
		if err := s.cache.Set(key, result, types.ContentNews); err != nil {
			s.logger.Warn("Failed to cache category page",
				zap.String("category", displayName), zap.Error(err))
		}
	}

	return result
}

func (s *Service) categoryFallback(displayName string, pageSize int) types.NewsPage {
	records := fallbackForCategory(displayName, pageSize, s.now())
	if len(records) == 0 {
		return emptyPage()
	}

	s.logger.Warn("Serving fallback content for category",
		zap.String("category", displayName), zap.Int("records", len(records)))

	// Fallback pages never claim more content and are never cached.
	return types.NewsPage{Records: records, HasMore: false}
}

// GetNewsByTag returns one page of articles carrying the tag. Matching is
// case- and diacritic-insensitive, enforced here after a contains-any
// query on the raw tag forms.
func (s *Service) GetNewsByTag(ctx context.Context, tag string, pageSize int, cursor int64) types.NewsPage {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	key := tagKey(tag, pageSize, cursor)

	var cached types.NewsPage
	if s.cache.Get(key, types.ContentTags, &cached) {
		return cached
	}

	if !s.probe(ctx) {
		return emptyPage()
	}

	docs, err := s.store.QueryCollection(ctx, types.QueryRequest{
		Collection: newsCollection,
		Filter: map[string]interface{}{
			"tags": map[string]interface{}{
				"$contains": []interface{}{tag, NormalizeTag(tag)},
			},
		},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      pageSize,
		Cursor:     cursor,
	})
	if err != nil {
		s.logger.Warn("Tag feed query failed", zap.String("tag", tag), zap.Error(err))
		return emptyPage()
	}

	records := make([]types.NewsRecord, 0, len(docs))
	for _, doc := range docs {
		record := s.coerce.newsRecord(doc)
		if TagsMatch(record.Tags, tag) {
			records = append(records, record)
		}
	}

	sortByTimestamp(records)
	result := page(records, pageSize)

	if len(result.Records) > 0 {
		if err := s.cache.Set(key, result, types.ContentTags); err != nil {
			s.logger.Warn("Failed to cache tag page", zap.String("tag", tag), zap.Error(err))
		}
	}

	return result
}

// GetArticleByID returns one article or nil. Misses and store failures
// both yield nil; the caller renders a not-found state either way.
func (s *Service) GetArticleByID(ctx context.Context, id string) *types.NewsRecord {
	if id == "" {
		return nil
	}

	key := articleKey(id)

	var cached types.NewsRecord
	if s.cache.Get(key, types.ContentNews, &cached) {
		return &cached
	}

	if !s.probe(ctx) {
		return nil
	}

	doc, err := s.store.GetDocument(ctx, newsCollection, id)
	if err != nil {
		if !types.IsError(err, types.ErrDocumentNotFound) {
			s.logger.Warn("Article lookup failed", zap.String("id", id), zap.Error(err))
		}
		return nil
	}

	record := s.coerce.newsRecord(doc)
	if err := s.cache.Set(key, record, types.ContentNews); err != nil {
		s.logger.Warn("Failed to cache article", zap.String("id", id), zap.Error(err))
	}

	return &record
}

// GetRelatedArticles returns up to limit articles sharing the category,
// excluding the article being read.
func (s *Service) GetRelatedArticles(ctx context.Context, category, excludeID string, limit int) []types.NewsRecord {
	if limit <= 0 {
		limit = 4
	}

	displayName := NormalizeCategory(category)
	key := relatedKey(displayName, excludeID, limit)

	var cached []types.NewsRecord
	if s.cache.Get(key, types.ContentNews, &cached) {
		return cached
	}

	if !s.probe(ctx) {
		return []types.NewsRecord{}
	}

	// Fetch one extra so excluding the current article still fills the set.
	docs, err := s.store.QueryCollection(ctx, types.QueryRequest{
		Collection: newsCollection,
		Filter:     map[string]interface{}{"category": displayName},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit + 1,
	})
	if err != nil {
		s.logger.Warn("Related articles query failed",
			zap.String("category", displayName), zap.Error(err))
		return []types.NewsRecord{}
	}

	records := make([]types.NewsRecord, 0, limit)
	for _, doc := range docs {
		record := s.coerce.newsRecord(doc)
		if record.ID == excludeID {
			continue
		}
		records = append(records, record)
		if len(records) == limit {
			break
		}
	}

	sortByTimestamp(records)

	if len(records) > 0 {
		if err := s.cache.Set(key, records, types.ContentNews); err != nil {
			s.logger.Warn("Failed to cache related articles", zap.Error(err))
		}
	}

	return records
}
