package cron

import (
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

// Sweeper drops expired prefetched payloads; satisfied by the prefetch
// engine.
type Sweeper interface {
	SweepExpired() error
}

// RegisterMaintenance wires the recurring cache upkeep: an hourly sweep
// of expired cache entries in both tiers and a half-hourly sweep of the
// prefetch queue.
func RegisterMaintenance(manager types.CronManager, cache types.CacheStore, sweeper Sweeper, logger types.Logger) error {
	if err := manager.Add("cache_clear_expired", "0 0 * * * *", func() {
		if err := cache.ClearExpired(); err != nil {
			logger.Warn("Expired cache sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if sweeper == nil {
		return nil
	}

	return manager.Add("prefetch_sweep", "0 */30 * * * *", func() {
		if err := sweeper.SweepExpired(); err != nil {
			logger.Warn("Prefetch sweep failed", zap.Error(err))
		}
	})
}
