package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the time format used by the console and test appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// writerAppender outputs tab delimited console lines to an `io.Writer`.
type writerAppender struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewWriterAppender creates a console appender that writes to the input writer.
func NewWriterAppender(writer io.Writer) Appender {
	return &writerAppender{writer: writer}
}

// Write outputs the log entry as a single line.
func (wa *writerAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := formatEntry(entry, fields)
	wa.mu.Lock()
	defer wa.mu.Unlock()
	if _, werr := fmt.Fprintln(wa.writer, line); werr != nil {
		return werr
	}
	return err
}

// Sync is a no-op.
func (wa *writerAppender) Sync() error {
	return nil
}

// formatEntry renders `<time>\t<LEVEL>\t<name>\t<file:line>\t<message>[\t<json fields>]`.
func formatEntry(entry zapcore.Entry, fields []zapcore.Field) (string, error) {
	const maxLength = 6
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr))
	toPrint = append(toPrint, strings.ToUpper(entry.Level.String()))
	toPrint = append(toPrint, entry.LoggerName)
	if entry.Caller.Defined {
		toPrint = append(toPrint, callerToString(&entry.Caller))
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		return strings.Join(toPrint, "\t"), nil
	}

	// Use zap's json encoder which will encode our slice of fields in-order. As opposed to the
	// random iteration order of a map. Call it with an empty Entry object such that only the fields
	// become "map-ified".
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(toPrint, "\t"), err
	}
	toPrint = append(toPrint, buf.String())
	return strings.Join(toPrint, "\t"), nil
}

// callerToString returns "<parent dir>/<file>:<line>" for an entry caller.
func callerToString(caller *zapcore.EntryCaller) string {
	return caller.TrimmedPath()
}
