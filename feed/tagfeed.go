package feed

import (
	"context"
	"sync"

	"github.com/eldopolis/portal-core/types"
)

// TagFetcher produces one page for a specific tag.
type TagFetcher func(ctx context.Context, tag string, pageSize int, cursor int64) types.NewsPage

// TagInvalidator busts the cache entries for one tag.
type TagInvalidator func(tag string) error

// TagFeed is a Feed whose query parameter can change. Switching the tag is
// a logically new query stream, so the whole state resets: empty list,
// cursor at the start, more content assumed.
type TagFeed struct {
	mu         sync.Mutex
	tag        string
	feed       *Feed
	fetch      TagFetcher
	invalidate TagInvalidator
	logger     types.Logger
	pageSize   int
}

func NewTagFeed(fetch TagFetcher, invalidate TagInvalidator, logger types.Logger, pageSize int) *TagFeed {
	tf := &TagFeed{
		fetch:      fetch,
		invalidate: invalidate,
		logger:     logger,
		pageSize:   pageSize,
	}
	tf.feed = tf.newFeed("")
	return tf
}

func (tf *TagFeed) newFeed(tag string) *Feed {
	fetch := func(ctx context.Context, pageSize int, cursor int64) types.NewsPage {
		return tf.fetch(ctx, tag, pageSize, cursor)
	}
	var invalidate Invalidator
	if tf.invalidate != nil {
		invalidate = func() error { return tf.invalidate(tag) }
	}
	return New(fetch, invalidate, tf.logger, tf.pageSize)
}

// SetTag switches the feed to a new tag, discarding all prior state. A
// same-tag call keeps the current stream untouched.
func (tf *TagFeed) SetTag(ctx context.Context, tag string) {
	tf.mu.Lock()
	if tag == tf.tag && tf.feed.isLoaded() {
		tf.mu.Unlock()
		return
	}
	tf.tag = tag
	tf.feed = tf.newFeed(tag)
	feed := tf.feed
	tf.mu.Unlock()

	feed.Load(ctx)
}

func (tf *TagFeed) Tag() string {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return tf.tag
}

func (tf *TagFeed) current() *Feed {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return tf.feed
}

func (tf *TagFeed) LoadMore(ctx context.Context) { tf.current().LoadMore(ctx) }
func (tf *TagFeed) Refresh(ctx context.Context)  { tf.current().Refresh(ctx) }

func (tf *TagFeed) Records() []types.NewsRecord { return tf.current().Records() }
func (tf *TagFeed) Loading() bool               { return tf.current().Loading() }
func (tf *TagFeed) HasMore() bool               { return tf.current().HasMore() }
func (tf *TagFeed) Failed() bool                { return tf.current().Failed() }
func (tf *TagFeed) Len() int                    { return tf.current().Len() }
