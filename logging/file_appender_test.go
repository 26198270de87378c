package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestFileAppender(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "segfront.log")
	appender := NewFileAppender(fn, 1, 1)
	logger := NewBlankLogger("segfront")
	logger.AddAppender(appender)

	logger.Infow("frame processed", "seq", 4)
	test.That(t, logger.Sync(), test.ShouldBeNil)
	test.That(t, appender.Close(), test.ShouldBeNil)

	content, err := os.ReadFile(fn)
	test.That(t, err, test.ShouldBeNil)
	parts := strings.Split(strings.TrimSuffix(string(content), "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 6)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "segfront")
	test.That(t, parts[4], test.ShouldEqual, "frame processed")
	test.That(t, parts[5], test.ShouldEqual, `{"seq":4}`)
}
