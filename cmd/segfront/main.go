// Package main runs the segmentation front end: frames come in on the input stream, are
// rectified and segmented, and results plus visualizations go out on the output streams.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/segfront/config"
	"go.viam.com/segfront/logging"
	"go.viam.com/segfront/pipeline"
	"go.viam.com/segfront/rimage"
	"go.viam.com/segfront/rimage/imagesource"
	"go.viam.com/segfront/rimage/transform"
	"go.viam.com/segfront/ros"
	"go.viam.com/segfront/transport"
	"go.viam.com/segfront/vision"
	"go.viam.com/segfront/vision/fake"
)

const (
	flagConfig  = "config"
	flagImages  = "images"
	flagFPS     = "fps"
	flagLoop    = "loop"
	flagListen  = "listen"
	flagDebug   = "debug"
	flagDumpDir = "dump-dir"
	flagLogFile = "log-file"
	flagWatch   = "watch"
)

var demoLabels = map[int]string{0: "person", 1: "car", 2: "bicycle"}

func main() {
	app := &cli.App{
		Name:  "segfront",
		Usage: "rectify camera frames, segment them and publish the results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagImages,
				Usage: "replay the images in `DIR` as the camera stream",
			},
			&cli.StringFlag{
				Name:  flagWatch,
				Usage: "publish image files as they appear in `DIR`",
			},
			&cli.Float64Flag{
				Name:  flagFPS,
				Value: 30,
				Usage: "replay rate in frames per second",
			},
			&cli.BoolFlag{
				Name:  flagLoop,
				Usage: "replay the images forever",
			},
			&cli.StringFlag{
				Name:  flagListen,
				Usage: "serve results over HTTP on `ADDRESS`, overrides listen_address",
			},
			&cli.StringFlag{
				Name:  flagDumpDir,
				Usage: "write every visualization frame to `DIR`",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated at 100MB",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Action: runNode,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNode(c *cli.Context) error {
	logger := logging.NewLogger("segfront")
	if fn := c.String(flagLogFile); fn != "" {
		fileAppender := logging.NewFileAppender(fn, 100, 3)
		logger.AddAppender(fileAppender)
		defer goutils.UncheckedErrorFunc(fileAppender.Close)
	}
	defer goutils.UncheckedErrorFunc(logger.Sync)

	cfg := config.Default()
	if fn := c.String(flagConfig); fn != "" {
		var err error
		if cfg, err = config.Read(fn, logger); err != nil {
			return err
		}
	}
	logger.SetLevel(cfg.Level())
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	if addr := c.String(flagListen); addr != "" {
		cfg.ListenAddress = addr
	}

	model, err := cfg.CameraModel()
	if err != nil {
		return err
	}
	undistorter, err := transform.NewUndistorter(model)
	if err != nil {
		return err
	}
	logger.Infow("camera model", "model", model.String())

	topics := transport.NewTopics(cfg.InputTopic, cfg.ResultTopic, cfg.VisualizationTopic)
	defer topics.Close()

	scheduler, err := pipeline.NewScheduler(logger.Sublogger("pipeline"), pipeline.Config{
		Rectifier:     undistorter,
		Segmenter:     demoSegmenter(),
		Publisher:     topics,
		Postprocessor: cfg.Postprocessor(),
		PollHz:        cfg.PollHz,
		Visualization: cfg.Visualization,
		StatsInterval: cfg.StatsInterval,
	})
	if err != nil {
		return err
	}

	if dir := c.String(flagDumpDir); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Bool(flagDebug) {
		ctx = logging.EnableDebugMode(ctx, "segfront")
	}
	g, ctx := errgroup.WithContext(ctx)

	inbound := topics.Images.Subscribe()
	g.Go(func() error {
		transport.Forward(ctx, inbound, func(msg *ros.Image) { scheduler.OnImage(msg) })
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(scheduler.Run(ctx))
	})

	results := topics.Results.Subscribe()
	g.Go(func() error {
		transport.Forward(ctx, results, func(res *ros.Result) {
			logger.Debugw("published result", "seq", res.Header.Seq, "token", res.Header.Token, "objects", res.Len())
		})
		return nil
	})

	if dir := c.String(flagDumpDir); dir != "" {
		vis := topics.Visualization.Subscribe()
		g.Go(func() error {
			transport.Forward(ctx, vis, func(msg *ros.Image) {
				if err := dumpFrame(dir, msg); err != nil {
					logger.Warnw("cannot write visualization", "error", err)
				}
			})
			return nil
		})
	}

	if cfg.ListenAddress != "" {
		server := transport.NewServer(logger.Sublogger("http"), topics, func() interface{} {
			return scheduler.Stats()
		})
		g.Go(func() error {
			return server.ListenAndServe(ctx, cfg.ListenAddress)
		})
	}

	if dir := c.String(flagImages); dir != "" {
		source, err := imagesource.NewDirectorySource(
			logger.Sublogger("source"), dir, c.Float64(flagFPS), c.Bool(flagLoop), "camera_0", nil)
		if err != nil {
			stop()
			return multierr.Combine(err, ignoreCanceled(g.Wait()))
		}
		g.Go(func() error {
			return ignoreCanceled(source.Run(ctx, topics.Images.Publish))
		})
	}
	if dir := c.String(flagWatch); dir != "" {
		watcher, err := imagesource.NewDirectoryWatcher(logger.Sublogger("watch"), dir, "camera_0", nil)
		if err != nil {
			stop()
			return multierr.Combine(err, ignoreCanceled(g.Wait()))
		}
		g.Go(func() error {
			defer goutils.UncheckedErrorFunc(watcher.Close)
			return ignoreCanceled(watcher.Run(ctx, topics.Images.Publish))
		})
	}
	if c.String(flagImages) == "" && c.String(flagWatch) == "" {
		logger.Infow("waiting for frames", "topic", cfg.InputTopic)
	}

	err = ignoreCanceled(g.Wait())
	logger.Infow("stopped", "stats", scheduler.Stats())
	return err
}

func demoSegmenter() vision.Segmenter {
	seg := fake.NewSegmenter(
		fake.Object{Box: vision.Box{X1: 640, Y1: 300, X2: 900, Y2: 800}, ClassID: 0, Score: 0.92},
		fake.Object{Box: vision.Box{X1: 1100, Y1: 500, X2: 1500, Y2: 760}, ClassID: 1, Score: 0.81},
	)
	seg.Labels = func(classID int) string { return demoLabels[classID] }
	return seg
}

func dumpFrame(dir string, msg *ros.Image) error {
	frame, err := rimage.DecodeImage(msg)
	if err != nil {
		return err
	}
	return rimage.WriteFrameFile(filepath.Join(dir, fmt.Sprintf("%06d.ppm", msg.Header.Seq)), frame)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
