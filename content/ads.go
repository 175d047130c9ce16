package content

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

// GetAllAds returns the active creatives grouped by placement bucket plus
// the synthetic "all" bucket. The two source collections are permissioned
// independently; a denial on one must not empty the other.
func (s *Service) GetAllAds(ctx context.Context) map[string][]types.AdvertisementRecord {
	var cached map[string][]types.AdvertisementRecord
	if s.cache.Get(adsKey, types.ContentAds, &cached) {
		return cached
	}

	if !s.probe(ctx) {
		return emptyBuckets()
	}

	records := s.queryAdSources(ctx)
	buckets := s.bucketAds(records)

	if len(buckets[types.AdBucketAll]) > 0 {
		if err := s.cache.Set(adsKey, buckets, types.ContentAds); err != nil {
			s.logger.Warn("Failed to cache advertisement set", zap.Error(err))
		}
	}

	return buckets
}

// GetAdvertisementSet returns a single placement bucket.
func (s *Service) GetAdvertisementSet(ctx context.Context, bucket string) []types.AdvertisementRecord {
	all := s.GetAllAds(ctx)
	if creatives, ok := all[bucket]; ok {
		return creatives
	}
	return []types.AdvertisementRecord{}
}

// queryAdSources merges both collections, isolating failures per source.
func (s *Service) queryAdSources(ctx context.Context) []types.AdvertisementRecord {
	now := s.now()
	var records []types.AdvertisementRecord

	for _, collection := range []string{adsCollection, sponsoredCollection} {
		docs, err := s.store.QueryCollection(ctx, types.QueryRequest{Collection: collection})
		if err != nil {
			if types.IsError(err, types.ErrCollectionForbidden) {
				s.logger.Debug("Advertisement source not permitted",
					zap.String("collection", collection))
			} else {
				s.logger.Warn("Advertisement source query failed",
					zap.String("collection", collection), zap.Error(err))
			}
			continue
		}

		for _, doc := range docs {
			record := s.coerce.adRecord(doc)
			if record.Active(now) {
				records = append(records, record)
			}
		}
	}

	return records
}

// bucketAds sorts by priority descending, groups by placement and applies
// the pinned-sponsor rule inside every bucket.
func (s *Service) bucketAds(records []types.AdvertisementRecord) map[string][]types.AdvertisementRecord {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Priority > records[j].Priority
	})

	buckets := emptyBuckets()
	for _, record := range records {
		bucket := record.Category
		if _, known := buckets[bucket]; !known || bucket == types.AdBucketAll {
			bucket = types.AdBucketSidebar
		}
		buckets[bucket] = append(buckets[bucket], record)
		buckets[types.AdBucketAll] = append(buckets[types.AdBucketAll], record)
	}

	if s.pinned != "" {
		for bucket := range buckets {
			buckets[bucket] = pinSponsor(buckets[bucket], s.pinned)
		}
	}

	return buckets
}

func emptyBuckets() map[string][]types.AdvertisementRecord {
	return map[string][]types.AdvertisementRecord{
		types.AdBucketHeader:      {},
		types.AdBucketSidebar:     {},
		types.AdBucketBetweenNews: {},
		types.AdBucketFooter:      {},
		types.AdBucketAll:         {},
	}
}

// pinSponsor moves creatives whose title or id contains the configured
// marker to the front of the bucket, preserving relative order otherwise.
func pinSponsor(records []types.AdvertisementRecord, marker string) []types.AdvertisementRecord {
	if len(records) == 0 {
		return records
	}

	needle := strings.ToLower(marker)
	pinned := make([]types.AdvertisementRecord, 0, len(records))
	rest := make([]types.AdvertisementRecord, 0, len(records))

	for _, record := range records {
		if strings.Contains(strings.ToLower(record.Title), needle) ||
			strings.Contains(strings.ToLower(record.ID), needle) {
			pinned = append(pinned, record)
		} else {
			rest = append(rest, record)
		}
	}

	return append(pinned, rest...)
}
