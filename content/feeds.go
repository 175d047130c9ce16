package content

import (
	"context"
	"fmt"

	"github.com/eldopolis/portal-core/feed"
	"github.com/eldopolis/portal-core/types"
)

// NewMainFeed returns a pagination feed over the main news listing. Its
// Refresh sweeps the listing's cache keys so the reload hits the store.
func (s *Service) NewMainFeed() *feed.Feed {
	fetch := func(ctx context.Context, pageSize int, cursor int64) types.NewsPage {
		return s.GetNewsPage(ctx, pageSize, cursor)
	}
	invalidate := func() error {
		return s.cache.Invalidate("news_page_")
	}
	return feed.New(fetch, invalidate, s.logger, s.pageSize)
}

// NewCategoryFeed returns a pagination feed scoped to one category.
func (s *Service) NewCategoryFeed(category string) *feed.Feed {
	fetch := func(ctx context.Context, pageSize int, cursor int64) types.NewsPage {
		return s.GetNewsByCategory(ctx, category, pageSize, cursor)
	}
	invalidate := func() error {
		return s.cache.Invalidate(fmt.Sprintf("news_category_%s_", Fold(NormalizeCategory(category))))
	}
	return feed.New(fetch, invalidate, s.logger, s.pageSize)
}

// NewTagFeed returns a tag-switchable pagination feed.
func (s *Service) NewTagFeed() *feed.TagFeed {
	invalidate := func(tag string) error {
		return s.cache.Invalidate(fmt.Sprintf("news_tag_%s_", NormalizeTag(tag)))
	}
	return feed.NewTagFeed(s.GetNewsByTag, invalidate, s.logger, s.pageSize)
}
