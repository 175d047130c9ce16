package health

import (
	"context"
	"fmt"

	"github.com/eldopolis/portal-core/types"
)

// StoreChecker probes document store connectivity.
func StoreChecker(store types.DocumentStore) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if err := store.Ping(ctx); err != nil {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: fmt.Sprintf("store probe failed: %v", err),
			}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	}
}

// LifecycleChecker reports on any component with a running state.
func LifecycleChecker(component types.LifecycleManager) types.HealthChecker {
	return func(context.Context) types.HealthCheck {
		if !component.IsRunning() {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "component not running",
			}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	}
}
