package cache

import (
	"context"
	"time"

	"github.com/eldopolis/portal-core/types"
)

var customTierCreators = make(map[string]types.DurableTierCreator)

// RegisterDurableTier installs an additional durable backend selectable
// through CacheConfig.Durable.
func RegisterDurableTier(tierName string, creator types.DurableTierCreator) {
	customTierCreators[tierName] = creator
}

// NewCacheStore builds the tiered store from configuration: the transient
// tier is always in-process memory, the durable tier is selected by name.
// The returned store is wrapped with operation metrics when a metrics
// manager is supplied.
func NewCacheStore(ctx context.Context, cacheConfig *types.CacheConfig, logger types.Logger, metrics types.MetricsManager) (types.CacheStore, error) {
	if cacheConfig == nil || !cacheConfig.Enabled {
		return nil, types.ErrCacheIsDisabled
	}

	var durable types.DurableTier
	var err error

	switch cacheConfig.Durable {
	case "redis":
		durable, err = NewRedisTier(ctx, logger, cacheConfig.Config)
	case "sqlite":
		durable, err = NewSqliteTier(logger, cacheConfig.Config)
	case "", "none":
		durable = nil
	default:
		if creator, exists := customTierCreators[cacheConfig.Durable]; exists {
			durable, err = creator(cacheConfig.Config)
		} else {
			return nil, types.Errorf(types.ErrCacheTierUnknown, "durable tier: %s", cacheConfig.Durable)
		}
	}

	if err != nil {
		return nil, err
	}

	maxEntries := cacheConfig.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	impl := NewTieredStore(logger,
		NewPolicyTable(cacheConfig.Policies),
		NewMemoryTier(maxEntries),
		durable,
	)

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedCacheStore(metrics, impl), nil
}

type instrumentedCacheStore struct {
	impl    types.CacheStore
	metrics types.MetricsManager
}

func newInstrumentedCacheStore(metrics types.MetricsManager, impl types.CacheStore) types.CacheStore {
	return &instrumentedCacheStore{
		impl:    impl,
		metrics: metrics,
	}
}

func (ics *instrumentedCacheStore) Get(key string, contentType types.ContentType, target interface{}) bool {
	start := time.Now()
	exists := ics.impl.Get(key, contentType, target)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	ics.recordMetric("get", result, duration)
	return exists
}

func (ics *instrumentedCacheStore) Set(key string, value interface{}, contentType types.ContentType) error {
	start := time.Now()
	err := ics.impl.Set(key, value, contentType)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	ics.recordMetric("set", result, duration)
	return err
}

func (ics *instrumentedCacheStore) Invalidate(pattern string) error {
	start := time.Now()
	err := ics.impl.Invalidate(pattern)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	ics.recordMetric("invalidate", result, duration)
	return err
}

func (ics *instrumentedCacheStore) ClearExpired() error {
	start := time.Now()
	err := ics.impl.ClearExpired()
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	ics.recordMetric("clear_expired", result, duration)
	return err
}

func (ics *instrumentedCacheStore) Start() error {
	return ics.impl.Start()
}

func (ics *instrumentedCacheStore) Stop() error {
	return ics.impl.Stop()
}

func (ics *instrumentedCacheStore) IsRunning() bool {
	return ics.impl.IsRunning()
}

func (ics *instrumentedCacheStore) recordMetric(operation, result string, duration time.Duration) {
	opCounter := ics.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := ics.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
