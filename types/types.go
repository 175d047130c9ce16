package types

// LifecycleManager is the start/stop contract shared by every long-lived
// component. Start and Stop are not idempotent; callers drive each
// transition exactly once.
type LifecycleManager interface {
	Start() error
	Stop() error
	IsRunning() bool
}
