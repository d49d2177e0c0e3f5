// Package logger builds the zap logger used by the command and the
// conversion pipeline.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log outputs.
type Config struct {
	// File, when set, receives JSON logs rotated by size.
	File string
	// Debug lowers the console level to debug (per-spectrum warnings).
	Debug bool
	// Quiet raises the console level to errors only.
	Quiet bool
}

// New returns a logger writing human readable lines to stderr and, if
// cfg.File is set, JSON lines to a rotated file.
func New(cfg Config) *zap.Logger {
	consoleLevel := zap.InfoLevel
	switch {
	case cfg.Quiet:
		consoleLevel = zap.ErrorLevel
	case cfg.Debug:
		consoleLevel = zap.DebugLevel
	}

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleConfig),
		zapcore.Lock(os.Stderr),
		consoleLevel,
	)
	if cfg.File == "" {
		return zap.New(consoleCore)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // Megabytes
		MaxBackups: 5,
		MaxAge:     30, // Days
		Compress:   true,
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(rotator),
		zap.DebugLevel,
	)
	return zap.New(zapcore.NewTee(fileCore, consoleCore))
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
