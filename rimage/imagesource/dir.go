// Package imagesource replays image files as an inbound camera stream.
package imagesource

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/segfront/logging"
	"go.viam.com/segfront/rimage"
	"go.viam.com/segfront/ros"
)

// DirectorySource publishes the PPM, PNG and JPEG files of a directory in name order as rgb8
// images, one per tick.
type DirectorySource struct {
	logger  logging.Logger
	files   []string
	period  time.Duration
	loop    bool
	frameID string
	clock   clock.Clock
}

// NewDirectorySource lists the image files in dir. fps is the publishing rate; when loop is set
// the files are replayed until the context is done.
func NewDirectorySource(
	logger logging.Logger, dir string, fps float64, loop bool, frameID string, clk clock.Clock,
) (*DirectorySource, error) {
	if fps <= 0 {
		return nil, errors.Errorf("fps must be positive, got %v", fps)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !rimage.IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no image files in %q", dir)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &DirectorySource{
		logger:  logger,
		files:   files,
		period:  time.Duration(float64(time.Second) / fps),
		loop:    loop,
		frameID: frameID,
		clock:   clk,
	}, nil
}

// Files returns the files that will be replayed.
func (ds *DirectorySource) Files() []string {
	return append([]string(nil), ds.files...)
}

// Read loads one file as an rgb8 message with a fresh correlation token.
func (ds *DirectorySource) Read(fn string, seq uint32) (*ros.Image, error) {
	return readMessage(fn, ros.Header{Seq: seq, Stamp: ds.clock.Now(), FrameID: ds.frameID})
}

func readMessage(fn string, header ros.Header) (*ros.Image, error) {
	img, err := rimage.ReadImageFile(fn)
	if err != nil {
		return nil, err
	}
	header.Token = uuid.NewString()
	frame, err := rimage.FromImage(header, img)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot convert %s", fn)
	}
	return frame.ToMessage(), nil
}

// Run publishes one file per tick until every file was sent, or until ctx is done when looping.
// Unreadable files are logged and skipped.
func (ds *DirectorySource) Run(ctx context.Context, publish func(*ros.Image) error) error {
	ticker := ds.clock.Ticker(ds.period)
	defer ticker.Stop()

	var seq uint32
	for i := 0; ; i++ {
		if i == len(ds.files) {
			if !ds.loop {
				ds.logger.Infow("replayed all files", "count", seq)
				return nil
			}
			i = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := ds.Read(ds.files[i], seq)
		if err != nil {
			ds.logger.Warnw("skipping file", "file", ds.files[i], "error", err)
			continue
		}
		if err := publish(msg); err != nil {
			return err
		}
		seq++
	}
}
