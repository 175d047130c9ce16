package metrics

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eldopolis/portal-core/types"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...zap.Field)              {}
func (nopLogger) Warn(string, ...zap.Field)               {}
func (nopLogger) Info(string, ...zap.Field)               {}
func (nopLogger) Debug(string, ...zap.Field)              {}
func (nopLogger) Log(zapcore.Level, string, ...zap.Field) {}

func newTestMetrics(t *testing.T) types.MetricsManager {
	t.Helper()

	metrics, err := NewPrometheusMetrics(nopLogger{}, &types.MetricsConfig{
		Enabled:   true,
		Namespace: "portal",
	})
	if err != nil {
		t.Fatalf("NewPrometheusMetrics: %v", err)
	}
	if err := metrics.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return metrics
}

func TestDisabledConfigRejected(t *testing.T) {
	_, err := NewPrometheusMetrics(nopLogger{}, &types.MetricsConfig{Enabled: false})
	if !types.IsError(err, types.ErrMetricsIsDisabled) {
		t.Fatalf("err = %v, want ErrMetricsIsDisabled", err)
	}
}

func TestCounterAccumulates(t *testing.T) {
	metrics := newTestMetrics(t)

	labels := map[string]string{"operation": "get", "result": "hit"}
	metrics.Counter("cache_operations_total", labels).Inc()
	metrics.Counter("cache_operations_total", labels).Add(2)

	if got := metrics.Counter("cache_operations_total", labels).Get(); got != 3 {
		t.Fatalf("counter = %v, want 3", got)
	}
}

func TestCounterLabelsIsolated(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.Counter("http_requests_total", map[string]string{"path": "/api/currency"}).Inc()
	metrics.Counter("http_requests_total", map[string]string{"path": "/health"}).Inc()
	metrics.Counter("http_requests_total", map[string]string{"path": "/health"}).Inc()

	if got := metrics.Counter("http_requests_total", map[string]string{"path": "/health"}).Get(); got != 2 {
		t.Fatalf("health counter = %v, want 2", got)
	}
	if got := metrics.Counter("http_requests_total", map[string]string{"path": "/api/currency"}).Get(); got != 1 {
		t.Fatalf("currency counter = %v, want 1", got)
	}
}

func TestGaugeMoves(t *testing.T) {
	metrics := newTestMetrics(t)

	gauge := metrics.Gauge("prefetch_queue_size", nil)
	gauge.Set(5)
	gauge.Inc()
	gauge.Dec()
	gauge.Dec()

	if got := gauge.Get(); got != 4 {
		t.Fatalf("gauge = %v, want 4", got)
	}
}

func TestGetMetrics_TextExposition(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.Counter("cache_operations_total", map[string]string{"operation": "set", "result": "success"}).Inc()
	metrics.Histogram("cache_operation_duration_seconds", []float64{0.001, 0.01}, nil).Observe(0.002)

	body, err := metrics.GetMetrics()
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}

	text := string(body)
	if !strings.Contains(text, "portal_cache_operations_total") {
		t.Fatalf("exposition missing namespaced counter:\n%s", text)
	}
	if !strings.Contains(text, "portal_cache_operation_duration_seconds_bucket") {
		t.Fatalf("exposition missing histogram buckets:\n%s", text)
	}
}
