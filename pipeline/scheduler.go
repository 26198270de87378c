// Package pipeline runs the perception loop: it polls the latest frame from a mailbox at a
// bounded rate, rectifies it, segments it and publishes the results.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/segfront/logging"
	"go.viam.com/segfront/mailbox"
	"go.viam.com/segfront/results"
	"go.viam.com/segfront/rimage"
	"go.viam.com/segfront/ros"
	"go.viam.com/segfront/utils"
	"go.viam.com/segfront/vision"
)

const (
	// DefaultPollHz is the ceiling on how often the mailbox is polled.
	DefaultPollHz = 100
	// DefaultStatsInterval is how many processed frames pass between throughput logs.
	DefaultStatsInterval = 11

	latencyWindow = 256
)

// Publisher sends encoded messages downstream.
type Publisher interface {
	PublishResult(ctx context.Context, res *ros.Result) error
	PublishVisualization(ctx context.Context, img *ros.Image) error
}

// A Rectifier removes lens distortion from a frame.
type Rectifier interface {
	Rectify(frame *rimage.Frame) (*rimage.Frame, error)
}

// Config describes what the scheduler is wired to.
type Config struct {
	Rectifier Rectifier
	Segmenter vision.Segmenter
	Publisher Publisher
	// Postprocessor, if set, filters the segmenter output before encoding.
	Postprocessor vision.Postprocessor
	PollHz        float64
	// Visualization enables publishing the annotated frame.
	Visualization bool
	StatsInterval int
	Clock         clock.Clock
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Offered   uint64 `json:"offered"`
	Dropped   uint64 `json:"dropped"`
	Processed uint64 `json:"processed"`
	// Skipped counts frames for which the segmenter produced no masks.
	Skipped         uint64        `json:"skipped"`
	Failed          uint64        `json:"failed"`
	FramesPerSecond float64       `json:"frames_per_second"`
	LatencyMean     time.Duration `json:"latency_mean"`
	LatencyP95      time.Duration `json:"latency_p95"`
	State           string        `json:"state"`
}

// Scheduler is the consumer side of the pipeline. Frames are offered from any goroutine with
// OnImage and consumed one per tick; a frame arriving while another is processed replaces any
// frame still waiting.
type Scheduler struct {
	logger logging.Logger
	cfg    Config
	clock  clock.Clock
	period time.Duration
	inbox  *mailbox.Mailbox[*ros.Image]

	state    atomic.Int32
	shutdown atomic.Bool

	ticks     atomic.Uint64
	rejected  atomic.Uint64
	processed atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64

	mu        sync.Mutex
	started   time.Time
	latencies []float64
	next      int

	workersMu sync.Mutex
	workers   utils.StoppableWorkers
}

// NewScheduler validates cfg and returns an idle scheduler.
func NewScheduler(logger logging.Logger, cfg Config) (*Scheduler, error) {
	if cfg.Rectifier == nil {
		return nil, errors.New("scheduler needs a rectifier")
	}
	if cfg.Segmenter == nil {
		return nil, errors.New("scheduler needs a segmenter")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("scheduler needs a publisher")
	}
	if cfg.PollHz == 0 {
		cfg.PollHz = DefaultPollHz
	}
	if cfg.PollHz < 0 {
		return nil, errors.Errorf("poll rate must be positive, got %v", cfg.PollHz)
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	period := time.Duration(float64(time.Second) / cfg.PollHz)
	if period <= 0 {
		return nil, errors.Errorf("poll rate %v is too high", cfg.PollHz)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Scheduler{
		logger:    logger,
		cfg:       cfg,
		clock:     cfg.Clock,
		period:    period,
		inbox:     mailbox.New[*ros.Image](),
		started:   cfg.Clock.Now(),
		latencies: make([]float64, 0, latencyWindow),
	}, nil
}

// OnImage offers an inbound frame. It never blocks; false means the frame was dropped, either
// because it was nil or because the consumer held the mailbox.
func (s *Scheduler) OnImage(msg *ros.Image) bool {
	if msg == nil {
		s.rejected.Inc()
		s.logger.Debug("dropping nil frame")
		return false
	}
	if !s.inbox.Offer(msg) {
		s.logger.Debugw("mailbox busy, dropping frame", "seq", msg.Header.Seq)
		return false
	}
	return true
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Shutdown asks Run to return at its next tick.
func (s *Scheduler) Shutdown() {
	s.shutdown.Store(true)
}

// Run ticks at the poll rate until ctx is done or Shutdown is called. A frame in flight is
// always finished before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.period)
	defer ticker.Stop()
	s.logger.Infow("scheduler started", "poll_hz", s.cfg.PollHz, "visualization", s.cfg.Visualization)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if s.shutdown.Load() {
			s.logger.Info("scheduler shut down")
			return nil
		}
		s.Tick(ctx)
	}
}

// Start runs the scheduler in the background until Close.
func (s *Scheduler) Start() {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	if s.workers != nil {
		return
	}
	s.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Errorw("scheduler stopped", "error", err)
		}
	})
}

// Close stops a scheduler started with Start.
func (s *Scheduler) Close() {
	s.Shutdown()
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	if s.workers != nil {
		s.workers.Stop()
	}
}

// Tick performs one poll of the mailbox and, if a frame was waiting, processes and publishes
// it. It reports whether a frame was taken. Errors are logged and never escape.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.ticks.Inc()
	s.setState(StateDraining)
	msg, ok := s.inbox.Take()
	if !ok {
		s.setState(StateIdle)
		return false
	}
	defer s.setState(StateIdle)

	if err := s.process(ctx, msg); err != nil {
		var header ros.Header
		if msg != nil {
			header = msg.Header
		}
		s.failed.Inc()
		s.logger.Warnw("dropping frame", "seq", header.Seq, "token", header.Token, "error", err)
		return true
	}
	if n := s.processed.Inc(); n%uint64(s.cfg.StatsInterval) == 0 {
		st := s.Stats()
		s.logger.Infow("throughput",
			"frames_per_second", fmt.Sprintf("%.2f", st.FramesPerSecond),
			"processed", st.Processed,
			"dropped", st.Dropped,
			"latency_mean", st.LatencyMean)
	}
	return true
}

func (s *Scheduler) process(ctx context.Context, msg *ros.Image) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic while processing frame: %v", r)
		}
	}()
	s.setState(StateProcessing)

	frame, err := rimage.DecodeImage(msg)
	if err != nil {
		return err
	}
	rectified, err := s.cfg.Rectifier.Rectify(frame)
	if err != nil {
		return err
	}

	seg, err := s.segment(ctx, rectified)
	if err != nil {
		return errors.Wrap(err, "segmentation failed")
	}
	if s.cfg.Postprocessor != nil {
		seg = s.cfg.Postprocessor(seg)
	}

	header := rectified.Header
	res, err := results.Encode(header, rectified.Width, rectified.Height, seg)
	noMasks := errors.Is(err, results.ErrNoMaskData)
	if err != nil && !noMasks {
		return err
	}
	if !noMasks {
		if err := results.Validate(res); err != nil {
			return err
		}
	}
	var vis *ros.Image
	if s.cfg.Visualization && seg != nil && seg.Visualization != nil {
		if vis, err = results.EncodeVisualization(header, seg.Visualization); err != nil {
			return errors.Wrap(err, "cannot encode visualization")
		}
	}

	s.setState(StatePublishing)
	if noMasks {
		s.skipped.Inc()
		s.logger.Debugw("no mask data, skipping result", "seq", header.Seq, "token", header.Token)
	} else if err := s.cfg.Publisher.PublishResult(ctx, res); err != nil {
		return errors.Wrap(err, "cannot publish result")
	}
	if vis != nil {
		if err := s.cfg.Publisher.PublishVisualization(ctx, vis); err != nil {
			return errors.Wrap(err, "cannot publish visualization")
		}
	}
	s.logger.CDebugw(ctx, "frame done", "seq", header.Seq, "token", header.Token, "skipped", noMasks)
	return nil
}

func (s *Scheduler) segment(ctx context.Context, frame *rimage.Frame) (*vision.Segmentation, error) {
	stopSlowLogger := utils.SlowLogger(ctx, s.clock, s.logger, "segmentation is taking a long time",
		"seq", frame.Header.Seq)
	defer stopSlowLogger()

	start := s.clock.Now()
	seg, err := s.cfg.Segmenter.Segment(ctx, frame)
	s.recordLatency(s.clock.Since(start))
	return seg, err
}

func (s *Scheduler) recordLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) < latencyWindow {
		s.latencies = append(s.latencies, float64(d))
		return
	}
	s.latencies[s.next] = float64(d)
	s.next = (s.next + 1) % latencyWindow
}
