// Package logger holds the process-wide zap logger with package-level
// helpers, so call sites stay one line.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log = zap.NewNop()

// Init builds the global logger. Development mode gets a human-readable
// console encoder; production gets JSON.
func Init(development bool) error {
	var (
		built *zap.Logger
		err   error
	)
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		built, err = cfg.Build()
	} else {
		built, err = zap.NewProductionConfig().Build()
	}
	if err != nil {
		return err
	}
	log = built
	return nil
}

// Sync flushes buffered entries. Syncing stderr fails on some platforms, so
// the error is ignored.
func Sync() {
	_ = log.Sync()
}

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Error(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log.Error(msg, fields...)
}

func Log(lvl zapcore.Level, msg string, fields ...zap.Field) {
	log.Log(lvl, msg, fields...)
}
