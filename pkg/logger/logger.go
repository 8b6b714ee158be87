// Package logger provides opinionated logging capabilities for vecindex
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a console logger writing to stdout.
func NewLogger(debug bool) *zap.Logger {
	return NewLoggerWithWriters(debug, os.Stdout)
}

// NewLoggerWithWriters returns a console logger that tees every entry to each writer.
func NewLoggerWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	return build(zapcore.NewConsoleEncoder(encoderConfig(true)), debug, writers)
}

// NewJSONLogger returns a logger emitting one JSON object per entry, for
// running the service under a log collector.
func NewJSONLogger(debug bool, writers ...io.Writer) *zap.Logger {
	return build(zapcore.NewJSONEncoder(encoderConfig(false)), debug, writers)
}

func encoderConfig(color bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

func build(encoder zapcore.Encoder, debug bool, writers []io.Writer) *zap.Logger {
	// Set log level
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, writer := range writers {
		syncers = append(syncers, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)

	return zap.New(core, zap.AddCaller())
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
