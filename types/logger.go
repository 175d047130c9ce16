package types

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface every component takes as a
// dependency. Implementations wrap a zap core.
type Logger interface {
	Error(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Log(lvl zapcore.Level, msg string, fields ...zap.Field)
}

type LoggerManager interface {
	Logger
}

// LoggerCreator builds a Logger from the raw `logger.config` section, for
// backends registered beyond the default zap one.
type LoggerCreator func(config interface{}) (Logger, error)
