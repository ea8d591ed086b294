// Package logging contains the structured logger used by calibration and composition.
package logging

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the leveled, structured logger passed to every long lived component. Messages are
// constant strings and variable data goes in alternating key value pairs.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" sharing the same appenders.
	Sublogger(subname string) Logger
	// With returns a logger that adds the key value pairs to every entry.
	With(keysAndValues ...interface{}) Logger
	AddAppender(appender Appender)
	SetLevel(level Level)
	GetLevel() Level
	Sync() error
}

// NewLogger returns a logger writing Info and above to stdout in UTC.
func NewLogger(name string) Logger {
	return &impl{name: name, level: NewAtomicLevelAt(INFO), inUTC: true, appenders: []Appender{NewWriterAppender(os.Stdout)}}
}

// NewDebugLogger is like NewLogger but also writes Debug entries.
func NewDebugLogger(name string) Logger {
	logger := NewLogger(name)
	logger.SetLevel(DEBUG)
	return logger
}

// NewBlankLogger returns a Debug level logger without appenders.
func NewBlankLogger(name string) Logger {
	return &impl{name: name, level: NewAtomicLevelAt(DEBUG), inUTC: true}
}

// NewTestLogger returns a Debug level logger writing through tb in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also keeps every entry in memory.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	core, observed := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger := &impl{level: NewAtomicLevelAt(DEBUG), appenders: []Appender{NewTestAppender(tb), core}}
	return logger, observed
}
