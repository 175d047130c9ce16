package content

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eldopolis/portal-core/types"
)

// GetBatchInitialData assembles the home page bootstrap payload: the main
// feed and every advertisement bucket, fetched in parallel and cached as
// one composite entry. The news policy governs the entry because the feed
// dominates its freshness needs.
func (s *Service) GetBatchInitialData(ctx context.Context) types.BatchPayload {
	var cached types.BatchPayload
	if s.cache.Get(batchKey, types.ContentNews, &cached) {
		return cached
	}

	if !s.probe(ctx) {
		return types.BatchPayload{
			News:      emptyPage(),
			Ads:       emptyBuckets(),
			Timestamp: s.now(),
		}
	}

	var (
		newsDocs []map[string]interface{}
		ads      []types.AdvertisementRecord
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		docs, err := s.store.QueryCollection(groupCtx, types.QueryRequest{
			Collection: newsCollection,
			OrderBy:    "timestamp",
			Descending: true,
			Limit:      s.pageSize,
		})
		if err != nil {
			return types.WrapError(err, "batch feed query failed")
		}
		newsDocs = docs
		return nil
	})

	group.Go(func() error {
		// Source failures are already isolated inside the merge; the batch
		// simply gets whatever buckets survived.
		ads = s.queryAdSources(groupCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		s.logger.Warn("Batch initial load failed", zap.Error(err))
		return types.BatchPayload{
			News:      emptyPage(),
			Ads:       emptyBuckets(),
			Timestamp: s.now(),
		}
	}

	records := make([]types.NewsRecord, 0, len(newsDocs))
	for _, doc := range newsDocs {
		records = append(records, s.coerce.newsRecord(doc))
	}
	sortByFeatured(records)

	payload := types.BatchPayload{
		News:      page(records, s.pageSize),
		Ads:       s.bucketAds(ads),
		Timestamp: s.now(),
	}

	if len(payload.News.Records) > 0 {
		if err := s.cache.Set(batchKey, payload, types.ContentNews); err != nil {
			s.logger.Warn("Failed to cache batch payload", zap.Error(err))
		}
	}

	return payload
}
