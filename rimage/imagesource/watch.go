package imagesource

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/segfront/logging"
	"go.viam.com/segfront/rimage"
	"go.viam.com/segfront/ros"
)

// DirectoryWatcher publishes image files as they are created in or moved into a directory,
// e.g. by a camera driver dumping frames to disk.
type DirectoryWatcher struct {
	logger  logging.Logger
	dir     string
	frameID string
	clock   clock.Clock
	watcher *fsnotify.Watcher
}

// NewDirectoryWatcher starts watching dir. Files created after it returns are published by Run.
func NewDirectoryWatcher(logger logging.Logger, dir, frameID string, clk clock.Clock) (*DirectoryWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		return nil, errors.Wrapf(multierr.Combine(err, watcher.Close()), "cannot watch %q", dir)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &DirectoryWatcher{logger: logger, dir: dir, frameID: frameID, clock: clk, watcher: watcher}, nil
}

type fileVersion struct {
	size    int64
	modTime time.Time
}

// Run publishes new image files until ctx is done or the watcher is closed. A file written in
// several steps produces several events; each version of a file is published at most once and
// a version that does not decode yet is picked up again on its next write.
func (dw *DirectoryWatcher) Run(ctx context.Context, publish func(*ros.Image) error) error {
	seen := map[string]fileVersion{}
	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return nil
			}
			dw.logger.Warnw("watch error", "dir", dw.dir, "error", err)
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !rimage.IsImageFile(event.Name) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			version := fileVersion{size: info.Size(), modTime: info.ModTime()}
			if seen[event.Name] == version {
				continue
			}
			msg, err := readMessage(event.Name, ros.Header{Seq: seq, Stamp: dw.clock.Now(), FrameID: dw.frameID})
			if err != nil {
				dw.logger.Debugw("image not readable yet", "file", filepath.Base(event.Name), "error", err)
				continue
			}
			seen[event.Name] = version
			if err := publish(msg); err != nil {
				return err
			}
			seq++
		}
	}
}

// Close stops watching.
func (dw *DirectoryWatcher) Close() error {
	return dw.watcher.Close()
}
