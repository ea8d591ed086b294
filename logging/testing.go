package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender writes through tb.Log so lines stay attached to the test that produced them.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an Appender writing to tb.
func NewTestAppender(tb testing.TB) Appender {
	return testAppender{tb}
}

func (ta testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	ta.tb.Helper()
	line, err := formatEntry(entry, fields)
	ta.tb.Log(line)
	return err
}

func (ta testAppender) Sync() error {
	return nil
}
