// Package session runs one tracking session: it reads detector frames,
// drives the tracker in strict frame order and fans each processed frame
// out to the configured sinks.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/trajectory.report/internal/config"
	"github.com/banshee-data/trajectory.report/internal/detection"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/render"
	"github.com/banshee-data/trajectory.report/internal/timeutil"
	"github.com/banshee-data/trajectory.report/internal/tracking"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var logf = monitoring.Component("session")

// ErrNoFrames is returned by Run when the input held no frames at all.
var ErrNoFrames = errors.New("no frames in input")

// Source yields detector frames in order. It returns io.EOF at the end.
// *detection.Decoder implements Source.
type Source interface {
	Next() (detection.Frame, error)
}

// Frame is one processed frame as handed to sinks.
type Frame struct {
	SessionID string
	// DetectorFrame is the index the detector reported for this frame.
	DetectorFrame int64
	Time          time.Time
	Result        tracking.FrameResult
	Detections    []tracking.Detection
	Malformed     int
	Counts        []detection.ClassCount
	Instructions  render.Instructions
}

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	ID      string
	Source  string
	Config  *config.TuningConfig
	Clock   timeutil.Clock
	Metrics *monitoring.Metrics
	Labels  detection.Labels
	Sinks   []Sink
}

// Session owns the tracker for one run over a detection stream.
type Session struct {
	ID     string
	Source string

	cfg     *config.TuningConfig
	clock   timeutil.Clock
	metrics *monitoring.Metrics
	labels  detection.Labels
	sinks   []Sink
	tracker *tracking.Tracker

	detections int64
	malformed  int64
	evicted    int64
	sinkErrors int64
}

// New creates a session. The tracker starts empty.
func New(opts Options) *Session {
	s := &Session{
		ID:      opts.ID,
		Source:  opts.Source,
		cfg:     opts.Config,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		labels:  detection.Labels{},
		sinks:   opts.Sinks,
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.cfg == nil {
		s.cfg = config.DefaultTuningConfig()
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewMetrics()
	}
	s.labels.Merge(opts.Labels)

	s.tracker = tracking.NewTracker(tracking.TrackerConfigFromTuning(s.cfg))
	s.tracker.SetMetrics(s.metrics)
	return s
}

// Tracker exposes the session's tracker for read-only observers.
func (s *Session) Tracker() *tracking.Tracker {
	return s.tracker
}

// Metrics returns the session metrics.
func (s *Session) Metrics() *monitoring.Metrics {
	return s.metrics
}

// AddSink registers a sink. It must be called before Run.
func (s *Session) AddSink(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

// Run reads frames from src until it is exhausted or ctx is cancelled.
// Reading and processing are decoupled by a buffered channel; frames are
// processed in arrival order by a single goroutine. A decoder error ends
// the run; sink errors are logged and counted.
//
// Sinks are finished and the summary is returned even when the run ends
// early.
func (s *Session) Run(ctx context.Context, src Source) (*Summary, error) {
	started := s.clock.Now()
	frames := make(chan detection.Frame, s.cfg.GetFrameBuffer())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		for {
			f, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				// Cancellation closes the input, so a read failing after
				// cancel is the interrupt, not a broken stream.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return fmt.Errorf("failed to read detections: %w", err)
			}
			select {
			case frames <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				s.process(gctx, f)
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	runErr := g.Wait()

	summary := s.summarize(started, s.clock.Now())
	if err := s.finish(summary); err != nil {
		runErr = errors.Join(runErr, err)
	}
	logf("%s", summary)

	if runErr == nil && summary.Frames == 0 {
		return summary, ErrNoFrames
	}
	return summary, runErr
}

func (s *Session) process(ctx context.Context, in detection.Frame) {
	s.labels.Merge(in.Names)

	dets, malformed := detection.Adapt(in.Raw)
	malformed += in.Malformed

	res := s.tracker.Update(dets)

	if malformed > 0 {
		s.malformed += int64(malformed)
		s.metrics.MalformedDetection.Add(uint64(malformed))
		logf("frame %d: skipped %d malformed detections", res.Frame, malformed)
	}
	s.detections += int64(len(dets))
	s.evicted += int64(len(res.Evicted))

	var counts []detection.ClassCount
	if s.cfg.GetOverlayCounts() {
		counts = detection.Counts(dets, s.labels)
	}

	f := &Frame{
		SessionID:     s.ID,
		DetectorFrame: in.Index,
		Time:          s.clock.Now(),
		Result:        res,
		Detections:    dets,
		Malformed:     malformed,
		Counts:        counts,
		Instructions:  render.Build(res.Frame, res.Tracks, counts),
	}

	for _, sink := range s.sinks {
		if err := sink.Consume(ctx, f); err != nil {
			s.sinkErrors++
			s.metrics.SinkErrors.Add(1)
			logf("%s: frame %d: %v", sink.Name(), res.Frame, err)
		}
	}
}

func (s *Session) finish(summary *Summary) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Finish(summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
