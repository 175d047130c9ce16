package health

import (
	"context"
	"testing"
	"time"

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

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	manager, err := NewManager(context.Background(), nopLogger{}, types.ServiceInfo{
		Name:    "portal-core",
		Version: "1.0.0",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return manager
}

func healthyChecker(context.Context) types.HealthCheck {
	return types.HealthCheck{Status: types.StatusHealthy}
}

func unhealthyChecker(context.Context) types.HealthCheck {
	return types.HealthCheck{Status: types.StatusUnhealthy, Message: "down"}
}

func TestCheck_AllHealthy(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Stop()

	manager.RegisterChecker("store", healthyChecker)
	manager.RegisterChecker("cache", healthyChecker)

	report := manager.Check(context.Background())

	if report.Status != types.StatusHealthy {
		t.Fatalf("status = %s, want healthy", report.Status)
	}
	if report.Summary.Total != 2 || report.Summary.Healthy != 2 {
		t.Fatalf("summary = %+v", report.Summary)
	}
	if report.Service.Name != "portal-core" {
		t.Fatalf("service = %+v", report.Service)
	}
}

func TestCheck_OneUnhealthyDegradesReport(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Stop()

	manager.RegisterChecker("store", healthyChecker)
	manager.RegisterChecker("events", unhealthyChecker)

	report := manager.Check(context.Background())

	if report.Status != types.StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", report.Status)
	}
	if report.Checks["events"].Message != "down" {
		t.Fatalf("checks = %+v", report.Checks)
	}
}

func TestCheck_PanickingCheckerIsUnhealthy(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Stop()

	manager.RegisterChecker("flaky", func(context.Context) types.HealthCheck {
		panic("boom")
	})

	report := manager.Check(context.Background())

	if report.Status != types.StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", report.Status)
	}
}

func TestCheck_SlowCheckerTimesOut(t *testing.T) {
	manager := newTestManager(t)
	manager.checkTimeout = 50 * time.Millisecond
	defer manager.Stop()

	manager.RegisterChecker("slow", func(context.Context) types.HealthCheck {
		time.Sleep(500 * time.Millisecond)
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	report := manager.Check(context.Background())

	if report.Status != types.StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy on timeout", report.Status)
	}
	if report.Checks["slow"].Message != "Health check timeout" {
		t.Fatalf("message = %q", report.Checks["slow"].Message)
	}
}

func TestLifecycleChecker(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Stop()

	check := LifecycleChecker(manager)(context.Background())
	if check.Status != types.StatusHealthy {
		t.Fatalf("running component reported %s", check.Status)
	}
}
