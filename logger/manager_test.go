package logger

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/eldopolis/portal-core/types"
)

func TestNewManager_NilConfigRejected(t *testing.T) {
	if _, err := NewManager(context.Background(), nil); !types.IsError(err, types.ErrLoggerConfigInvalid) {
		t.Fatalf("NewManager(nil) error = %v, want ErrLoggerConfigInvalid", err)
	}
}

func TestNewManager_UnknownTypeRejected(t *testing.T) {
	_, err := NewManager(context.Background(), &types.LoggerConfig{Type: "syslog"})
	if !types.IsError(err, types.ErrLoggerTypeUnknown) {
		t.Fatalf("NewManager(syslog) error = %v, want ErrLoggerTypeUnknown", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	manager, err := NewManager(context.Background(), &types.LoggerConfig{Level: "error"})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	lifecycle := manager.(types.LifecycleManager)

	if lifecycle.IsRunning() {
		t.Fatal("manager must not report running before Start")
	}
	if err := lifecycle.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !lifecycle.IsRunning() {
		t.Fatal("manager must report running after Start")
	}
	if err := lifecycle.Start(); err == nil {
		t.Fatal("second Start must fail")
	}
	if err := lifecycle.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if lifecycle.IsRunning() {
		t.Fatal("manager must not report running after Stop")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}

	for input, want := range cases {
		if got := parseLogLevel(input); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
