package events

import (
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

const (
	EventNewsUpdated = "news_updated"
	EventAdsUpdated  = "ads_updated"
)

// newsKeyPatterns covers every cache key family derived from the news
// collection, including the composite home payload.
var newsKeyPatterns = []string{"news_", "article_", "related_", "batch_initial"}

var adsKeyPatterns = []string{"ads_", "batch_initial"}

// RegisterCacheInvalidation subscribes the standard CMS notifications and
// maps them onto cache invalidation sweeps, so edited content surfaces on
// the next read instead of waiting out its TTL.
func RegisterCacheInvalidation(listener *Listener, cache types.CacheStore, logger types.Logger) error {
	if err := listener.Subscribe(EventNewsUpdated, invalidationHandler(cache, logger, newsKeyPatterns)); err != nil {
		return err
	}
	return listener.Subscribe(EventAdsUpdated, invalidationHandler(cache, logger, adsKeyPatterns))
}

func invalidationHandler(cache types.CacheStore, logger types.Logger, patterns []string) Handler {
	return func(message *UpdateMessage) error {
		for _, pattern := range patterns {
			if err := cache.Invalidate(pattern); err != nil {
				return types.WrapError(err, "cache invalidation failed")
			}
		}

		logger.Info("Cache invalidated on CMS update",
			zap.String("event", message.Event),
			zap.Strings("patterns", patterns),
			zap.Int("documents", len(message.IDs)))

		return nil
	}
}
