package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

type frameInfo struct {
	Width  int
	Height int
	token  string
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualTrimmed := strings.TrimSuffix(output, "\n")
	actualParts := strings.Split(actualTrimmed, "\t")
	expectedParts := strings.Split(expected, "\t")
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	// Log level.
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	// Filename:line_number.
	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	// Log message.
	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])

	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	if len(actualParts) == 4 {
		return
	}

	// JSON encoding of maps can be unpredictable because map iteration order can change between
	// runs. Parse the output into maps and assert on map equality.
	expectedMap := make(map[string]any)
	err = json.Unmarshal([]byte(expectedParts[4]), &expectedMap)
	test.That(t, err, test.ShouldBeNil)

	actualMap := make(map[string]any)
	err = json.Unmarshal([]byte(actualParts[4]), &actualMap)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(DEBUG), false, []Appender{NewWriterAppender(notStdout)}}

	logger.Info("impl Info log")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	INFO	logging/impl_test.go:67	impl Info log`)

	logger.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:45:20.764-0400	INFO	logging/impl_test.go:131	impl infof log`)

	logger.Infow("impl logw", "token", "abc")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:19:45.806-0400	INFO	logging/impl_test.go:132	impl logw	{"token":"abc"}`)

	// Only public fields are serialized.
	logger.Warnw("bad frame", "seq", 3, "frame", frameInfo{640, 480, "abc"})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	WARN	logging/impl_test.go:121	bad frame	{"frame":{"Width":640,"Height":480},"seq":3}`)

	// An unpaired key is reported rather than dropped.
	logger.Errorw("unpaired", "lonely")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	ERROR	logging/impl_test.go:123	unpaired	{"lonely":"unpaired log key"}`)
}

func TestLevels(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(WARN), false, []Appender{NewWriterAppender(notStdout)}}

	logger.Debug("hidden")
	logger.Info("hidden")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.Warn("shown")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	WARN	logging/impl_test.go:67	shown`)

	// A debug-mode context bypasses the configured level.
	ctx := EnableDebugMode(context.Background(), "")
	test.That(t, IsDebugMode(ctx), test.ShouldBeTrue)
	logger.CDebugf(ctx, "frame %d", 7)
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	DEBUG	logging/impl_test.go:67	frame 7`)

	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debug("now shown")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	DEBUG	logging/impl_test.go:67	now shown`)
}

func TestSublogger(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"segfront", NewAtomicLevelAt(INFO), true, []Appender{NewWriterAppender(notStdout)}}
	sub := logger.Sublogger("scheduler")

	sub.Info("tick")
	output, err := notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, parts[2], test.ShouldEqual, "segfront.scheduler")
	test.That(t, parts[4], test.ShouldEqual, "tick")
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Warnw("unsupported encoding", "encoding", "yuv422")

	entries := logs.FilterMessage("unsupported encoding").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].Level, test.ShouldEqual, zapcore.WarnLevel)
	test.That(t, entries[0].ContextMap()["encoding"], test.ShouldEqual, "yuv422")
}

func TestLevelFromString(t *testing.T) {
	for input, expected := range map[string]Level{
		"debug": DEBUG,
		"INFO":  INFO,
		"Warn":  WARN,
		"error": ERROR,
	} {
		level, err := LevelFromString(input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
}
