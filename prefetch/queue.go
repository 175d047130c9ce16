package prefetch

import (
	"context"
	"sync"
	"time"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// Per-priority execution delays: higher-priority predictions run sooner,
// but none runs immediately, keeping background traffic off the interactive
// path.
func (p Priority) Delay() time.Duration {
	switch p {
	case PriorityHigh:
		return 10 * time.Second
	case PriorityMedium:
		return 15 * time.Second
	default:
		return 20 * time.Second
	}
}

// Item is one accepted prediction waiting to run or holding its result.
type Item struct {
	Key       string
	Fetch     func(ctx context.Context) (interface{}, error)
	Priority  Priority
	MaxAge    time.Duration
	Timestamp time.Time

	data    interface{}
	loading bool
	done    bool
}

// DefaultMaxAge bounds how long a prefetched result stays usable.
const DefaultMaxAge = 30 * time.Minute

// Queue holds prefetch items keyed by prediction key. Reads apply the
// item's own maxAge lazily, mirroring the cache store's expiry-on-read.
type Queue struct {
	mu    sync.Mutex
	items map[string]*Item
}

func NewQueue() *Queue {
	return &Queue{items: make(map[string]*Item)}
}

// Add registers an item unless the key is already queued.
func (q *Queue) Add(item *Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.items[item.Key]; exists {
		return false
	}
	if item.MaxAge <= 0 {
		item.MaxAge = DefaultMaxAge
	}

	q.items[item.Key] = item
	return true
}

// take marks the item in flight. Returns nil when the item is gone or
// already running.
func (q *Queue) take(key string) *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, exists := q.items[key]
	if !exists || item.loading || item.done {
		return nil
	}
	item.loading = true
	return item
}

// complete stores a successful result; a failed item is removed outright,
// there is no retry.
func (q *Queue) complete(key string, data interface{}, now time.Time, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, exists := q.items[key]
	if !exists {
		return
	}

	if !ok {
		delete(q.items, key)
		return
	}

	item.loading = false
	item.done = true
	item.data = data
	item.Timestamp = now
}

// GetPrefetched returns a populated result if one exists and is younger
// than its maxAge; expired items are removed on read.
func (q *Queue) GetPrefetched(key string, now time.Time) (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, exists := q.items[key]
	if !exists || !item.done {
		return nil, false
	}

	if now.Sub(item.Timestamp) >= item.MaxAge {
		delete(q.items, key)
		return nil, false
	}

	return item.data, true
}

// Sweep removes items past their maxAge. Items still pending are aged from
// their enqueue time.
func (q *Queue) Sweep(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for key, item := range q.items {
		if item.loading {
			continue
		}
		if now.Sub(item.Timestamp) >= item.MaxAge {
			delete(q.items, key)
			removed++
		}
	}
	return removed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Keys lists queued prediction keys, for tests and introspection.
func (q *Queue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.items))
	for key := range q.items {
		keys = append(keys, key)
	}
	return keys
}
