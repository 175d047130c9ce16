package types

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrServerStopFailed     = errors.New("server stop failed")
)

var (
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheEntryCorrupt     = errors.New("cache entry corrupt")
	ErrCacheQuotaExceeded    = errors.New("cache quota exceeded")
	ErrCacheTierUnknown      = errors.New("cache tier unknown")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheIsDisabled       = errors.New("cache is disabled")
)

var (
	ErrStoreUnavailable      = errors.New("document store unavailable")
	ErrStoreTypeUnknown      = errors.New("document store type unknown")
	ErrStoreQueryFailed      = errors.New("document store query failed")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrCollectionForbidden   = errors.New("collection access forbidden")
	ErrStoreProbeTimeout     = errors.New("store connectivity probe timeout")
	ErrStoreCollectionExists = errors.New("collection already exists")
	ErrStoreConfigMissing    = errors.New("store config missing")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobTimeout        = errors.New("cron job timeout")
	ErrCronJobFailed         = errors.New("cron job failed")
	ErrCronSchedulerStopped  = errors.New("cron scheduler stopped")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics is disabled")
)

var (
	ErrClientRequestFailed   = errors.New("client request failed")
	ErrClientResponseInvalid = errors.New("client response invalid")
	ErrClientTimeout         = errors.New("client timeout")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker open")
)

var (
	ErrPrefetchInFlight     = errors.New("prefetch already in flight")
	ErrPrefetchGateBusy     = errors.New("prefetch admission gate busy")
	ErrPrefetchStaleSession = errors.New("prefetch session inactive")
	ErrPrefetchRestricted   = errors.New("prefetch restricted by network conditions")
)

var (
	ErrEventsNotConnected = errors.New("events listener not connected")
	ErrEventsIsDisabled   = errors.New("events listener is disabled")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotSupported     = errors.New("not supported")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, message)
}

func NewError(message string) error {
	return errors.New(message)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
