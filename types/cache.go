package types

import (
	"time"
)

// ContentType tags a cache entry with the freshness class of its payload.
type ContentType string

const (
	ContentNews       ContentType = "news"
	ContentCategories ContentType = "categories"
	ContentAds        ContentType = "ads"
	ContentTags       ContentType = "tags"
	ContentCurrency   ContentType = "currency"
	ContentStatic     ContentType = "static"
)

// TypePolicy controls validity for every entry of one content type.
// Bumping Version invalidates existing entries lazily on the next read.
type TypePolicy struct {
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
	Version string        `yaml:"version" json:"version"`
}

// CacheEntry is immutable once written; a Set always replaces the whole
// entry at its key.
type CacheEntry struct {
	Data      []byte        `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version"`
	TTL       time.Duration `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.Timestamp) >= e.TTL
}

// CacheStore is the tiered read-through cache consumed by the content
// fetch layer and the prefetch engine.
type CacheStore interface {
	LifecycleManager
	Set(key string, value interface{}, contentType ContentType) error
	Get(key string, contentType ContentType, target interface{}) bool
	Invalidate(pattern string) error
	ClearExpired() error
}

// DurableTier persists serialized entries across process restarts. Writes
// may fail with ErrCacheQuotaExceeded; the tiered store reacts by sweeping
// expired entries once without retrying.
type DurableTier interface {
	LifecycleManager
	Read(key string) ([]byte, bool)
	Write(key string, payload []byte) error
	Delete(key string) error
	Keys() ([]string, error)
}

type DurableTierCreator func(config interface{}) (DurableTier, error)
