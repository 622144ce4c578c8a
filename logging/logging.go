// Package logging provides the leveled logger used across the engine. Output
// goes to stdout and to a size-rotated file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARNING:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel accepts debug|info|warn|warning|error.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARNING, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// LoggerInterface defines the interface for logging methods
type LoggerInterface interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warning(format string, v ...interface{})
	Error(format string, v ...interface{})
	With(keysAndValues ...interface{}) LoggerInterface
	Sync() error
}

// Options configures New.
type Options struct {
	File       string // empty disables file output
	Level      LogLevel
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Quiet      bool // no stdout
}

// Logger wraps a zap SugaredLogger whose file sink rotates through lumberjack.
type Logger struct {
	sugar   *zap.SugaredLogger
	level   zap.AtomicLevel
	rotator *lumberjack.Logger
}

// NewLogger creates a new logger instance with file output and rotation
func NewLogger(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevelAt(opts.Level.zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	var cores []zapcore.Core
	var rotator *lumberjack.Logger
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rotator), level))
	}
	if !opts.Quiet {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level))
	}
	if len(cores) == 0 {
		return &Logger{sugar: zap.NewNop().Sugar(), level: level}, nil
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: z.Sugar(), level: level, rotator: rotator}, nil
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) { l.sugar.Debugf(format, v...) }

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) { l.sugar.Infof(format, v...) }

// Warning logs a warning message
func (l *Logger) Warning(format string, v ...interface{}) { l.sugar.Warnf(format, v...) }

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) { l.sugar.Errorf(format, v...) }

// With returns a child logger that adds the key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) LoggerInterface {
	return &Logger{sugar: l.sugar.With(keysAndValues...), level: l.level, rotator: l.rotator}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	// stdout sync fails on terminals and pipes; ignore it.
	_ = l.sugar.Sync()
	return nil
}

// Rotate forces the file sink to start a new file.
func (l *Logger) Rotate() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Rotate()
}

// Close closes the rotating file.
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// ChangeLogLevel changes the logging level at runtime
func (l *Logger) ChangeLogLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})          {}
func (nopLogger) Info(string, ...interface{})           {}
func (nopLogger) Warning(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})          {}
func (n nopLogger) With(...interface{}) LoggerInterface { return n }
func (nopLogger) Sync() error                           { return nil }

// Nop returns a logger that discards everything.
func Nop() LoggerInterface { return nopLogger{} }
