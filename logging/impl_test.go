package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
}

type User struct {
	Name string
}

type StructWithStruct struct {
	x int
	Y User
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualParts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	expectedParts := strings.Split(expected, "\t")
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	// Log level and logger name.
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])
	test.That(t, actualParts[2], test.ShouldEqual, expectedParts[2])

	// Filename:line_number.
	actualFilename, actualLineNumber, found := strings.Cut(actualParts[3], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, _ := strings.Cut(expectedParts[3], ":")
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualParts[4], test.ShouldEqual, expectedParts[4])
	if len(actualParts) == 5 {
		return
	}

	expectedMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(expectedParts[5]), &expectedMap), test.ShouldBeNil)
	actualMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(actualParts[5]), &actualMap), test.ShouldBeNil)
	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func newBufferLogger(level Level) (*impl, *bytes.Buffer) {
	notStdout := &bytes.Buffer{}
	return &impl{name: "impl", level: NewAtomicLevelAt(level), inUTC: true, appenders: []Appender{NewWriterAppender(notStdout)}}, notStdout
}

func TestConsoleOutputFormat(t *testing.T) {
	logger, notStdout := newBufferLogger(DEBUG)

	logger.Infow("impl logw", "key", "value")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	impl	logging/impl_test.go:71	impl logw	{"key":"value"}`)

	logger.Infow("StructWithStruct", "key", "val", "StructWithStruct", StructWithStruct{1, User{"alice"}})
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	impl	logging/impl_test.go:75	StructWithStruct	{"StructWithStruct":{"Y":{"Name":"alice"}},"key":"val"}`)

	logger.Warnw("BasicStruct", "implOneKey", "1val", "BasicStruct", BasicStruct{1, "alice"})
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	WARN	impl	logging/impl_test.go:79	BasicStruct	{"BasicStruct":{"X":1},"implOneKey":"1val"}`)

	logger.Debugw("unpaired", "camera")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	DEBUG	impl	logging/impl_test.go:83	unpaired	{"camera":"unpaired log key"}`)
}

func TestLevelFiltering(t *testing.T) {
	logger, notStdout := newBufferLogger(WARN)

	logger.Debugw("dropped")
	logger.Infow("dropped")
	logger.CDebugw(context.Background(), "dropped")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.Errorw("kept")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	ERROR	impl	logging/impl_test.go:97	kept`)

	ctx := WithDebug(context.Background(), "frame-7")
	test.That(t, DebugTag(ctx), test.ShouldEqual, "frame-7")
	logger.CDebugw(ctx, "debug via context", "n", 2)
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	DEBUG	impl	logging/impl_test.go:103	debug via context	{"debug":"frame-7","n":2}`)

	test.That(t, DebugTag(WithDebug(context.Background(), "")), test.ShouldHaveLength, 8)

	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debugw("now kept")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	DEBUG	impl	logging/impl_test.go:111	now kept`)
}

func TestSubloggerAndWith(t *testing.T) {
	logger, notStdout := newBufferLogger(INFO)
	sub := logger.Sublogger("composer")
	sub.Infow("frame", "index", 3)
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	impl.composer	logging/impl_test.go:118	frame	{"index":3}`)

	cam := sub.With("camera", "left")
	cam.Warnw("slow frame", "elapsed_ms", 80)
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	WARN	impl.composer	logging/impl_test.go:123	slow frame	{"camera":"left","elapsed_ms":80}`)

	// levels are independent after the copy
	cam.SetLevel(ERROR)
	sub.Infow("still logged")
	test.That(t, notStdout.Len(), test.ShouldBeGreaterThan, 0)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestObservedTestLogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Sublogger("calibration").Warnw("detection failed", "camera", "front")
	test.That(t, observed.FilterMessage("detection failed").Len(), test.ShouldEqual, 1)
	entry := observed.All()[0]
	test.That(t, entry.LoggerName, test.ShouldEqual, "calibration")
	test.That(t, entry.ContextMap()["camera"], test.ShouldEqual, "front")
}

func TestLevelFromString(t *testing.T) {
	level, err := LevelFromString("WARNING")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)

	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var parsed Level
	test.That(t, json.Unmarshal([]byte(`"error"`), &parsed), test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, ERROR)
}
