package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/trajectory.report/internal/config"
	"github.com/banshee-data/trajectory.report/internal/detection"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/timeutil"
	"github.com/banshee-data/trajectory.report/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

type recordingSink struct {
	mu       sync.Mutex
	frames   []*Frame
	summary  *Summary
	failOn   int64
	finished int
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Consume(_ context.Context, f *Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	if r.failOn != 0 && f.Result.Frame == r.failOn {
		return errors.New("sink unavailable")
	}
	return nil
}

func (r *recordingSink) Finish(s *Summary) error {
	r.summary = s
	r.finished++
	return nil
}

// box returns a 10x10 box centred on (x, y).
func box(x, y int) string {
	return fmt.Sprintf("[%d,%d,%d,%d]", x-5, y-5, x+5, y+5)
}

// movingPairJSONL is two objects moving +10 px/frame in x for n frames.
func movingPairJSONL(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"frame":%d,"boxes":[%s,%s],"classes":[0,2],"names":{"0":"person","2":"car"}}`+"\n",
			100+i, box(10*i, 0), box(1000+10*i, 1000))
	}
	return b.String()
}

func newTestSession(sinks ...Sink) *Session {
	return New(Options{
		ID:     "test-session",
		Source: "test",
		Clock:  timeutil.NewSteppingMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Second),
		Sinks:  sinks,
	})
}

func TestRun_TwoMovingObjects(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSession(sink)

	summary, err := s.Run(context.Background(), detection.NewDecoder(strings.NewReader(movingPairJSONL(6))))
	require.NoError(t, err)

	require.Len(t, sink.frames, 6)
	for i, f := range sink.frames {
		assert.Equal(t, int64(i+1), f.Result.Frame, "frames must be processed in order")
		assert.Equal(t, int64(100+i), f.DetectorFrame)
		assert.Equal(t, "test-session", f.SessionID)
	}

	last := sink.frames[5]
	require.Len(t, last.Result.Tracks, 2)
	for _, tr := range last.Result.Tracks {
		require.NotNil(t, tr.Direction)
		assert.Equal(t, tracking.Vector{DX: 40}, *tr.Direction)
	}
	assert.Equal(t, []detection.ClassCount{{Name: "car", Count: 1}, {Name: "person", Count: 1}}, last.Counts)
	assert.Len(t, last.Instructions.Arrows, 2)
	assert.Len(t, last.Instructions.Counts, 2)

	assert.Equal(t, int64(6), summary.Frames)
	assert.Equal(t, int64(12), summary.Detections)
	assert.Equal(t, int64(2), summary.TracksCreated)
	assert.Equal(t, 2, summary.Active)
	assert.InDelta(t, 50.0, summary.MeanPathLength, 1e-9)
	assert.Equal(t, "person", summary.TrackStats[0].Class)
	assert.Equal(t, "car", summary.TrackStats[1].Class)
	assert.Same(t, summary, sink.summary)
	assert.Equal(t, 1, sink.finished)
	assert.True(t, summary.EndedAt.After(summary.StartedAt))
}

func TestRun_OverlayCountsDisabled(t *testing.T) {
	cfg := config.DefaultTuningConfig()
	off := false
	cfg.OverlayCounts = &off

	sink := &recordingSink{}
	s := New(Options{Config: cfg, Sinks: []Sink{sink}})

	_, err := s.Run(context.Background(), detection.NewDecoder(strings.NewReader(movingPairJSONL(2))))
	require.NoError(t, err)
	for _, f := range sink.frames {
		assert.Nil(t, f.Counts)
		assert.Nil(t, f.Instructions.Counts)
	}
}

func TestRun_MalformedDetectionsSkipped(t *testing.T) {
	input := `{"boxes":[[0,0,10,10],[1,2,3]]}
{"boxes":[[0,0,10,10]]}
`
	sink := &recordingSink{}
	s := newTestSession(sink)

	summary, err := s.Run(context.Background(), detection.NewDecoder(strings.NewReader(input)))
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Malformed)
	assert.Equal(t, uint64(1), s.Metrics().MalformedDetection.Load())
	assert.Equal(t, 1, sink.frames[0].Malformed)
	assert.Equal(t, 1, summary.LiveTracks)
}

func TestRun_SinkErrorsDoNotStopTheLoop(t *testing.T) {
	failing := &recordingSink{failOn: 2}
	other := &recordingSink{}
	s := newTestSession(failing, other)

	summary, err := s.Run(context.Background(), detection.NewDecoder(strings.NewReader(movingPairJSONL(4))))
	require.NoError(t, err)

	assert.Len(t, failing.frames, 4)
	assert.Len(t, other.frames, 4)
	assert.Equal(t, int64(1), summary.SinkErrors)
	assert.Equal(t, uint64(1), s.Metrics().SinkErrors.Load())
}

func TestRun_NoFrames(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSession(sink)

	summary, err := s.Run(context.Background(), detection.NewDecoder(strings.NewReader("\n\n")))
	assert.ErrorIs(t, err, ErrNoFrames)
	require.NotNil(t, summary)
	assert.Equal(t, 1, sink.finished)
}

func TestRun_DecoderErrorEndsSession(t *testing.T) {
	input := movingPairJSONL(3) + "{broken\n" + movingPairJSONL(3)
	sink := &recordingSink{}
	s := newTestSession(sink)

	summary, err := s.Run(context.Background(), detection.NewDecoder(strings.NewReader(input)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 4")
	assert.LessOrEqual(t, summary.Frames, int64(3))
	assert.Equal(t, 1, sink.finished)
}

// blockingSource yields three frames, then blocks until ctx is cancelled
// the way a closed input would unblock a pending read.
type blockingSource struct {
	ctx  context.Context
	sent int
}

func (b *blockingSource) Next() (detection.Frame, error) {
	if b.sent >= 3 {
		<-b.ctx.Done()
		return detection.Frame{}, b.ctx.Err()
	}
	b.sent++
	return detection.Frame{Raw: detection.RawFrame{Boxes: [][4]float64{{0, 0, 10, 10}}}}, nil
}

func TestRun_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	s := newTestSession(sink)

	done := make(chan struct{})
	var summary *Summary
	var err error
	go func() {
		summary, err = s.Run(ctx, &blockingSource{ctx: ctx})
		close(done)
	}()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.frames) == 3
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(3), summary.Frames)
	assert.Equal(t, 1, sink.finished)
}

// slowSink holds its first frame until the run is cancelled, then takes a
// little longer, so the input is closed while a frame is still in flight.
type slowSink struct {
	recordingSink
	busy chan struct{}
	once sync.Once
}

func (s *slowSink) Consume(ctx context.Context, f *Frame) error {
	s.once.Do(func() { close(s.busy) })
	<-ctx.Done()
	time.Sleep(100 * time.Millisecond)
	return s.recordingSink.Consume(ctx, f)
}

func TestRun_CancelWhileSinkBusy(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	_, err = w.WriteString(movingPairJSONL(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Closing the input on cancel unblocks the pending read.
	context.AfterFunc(ctx, func() { r.Close() })

	sink := &slowSink{busy: make(chan struct{})}
	s := newTestSession(sink)

	done := make(chan struct{})
	var summary *Summary
	var runErr error
	go func() {
		summary, runErr = s.Run(ctx, detection.NewDecoder(r))
		close(done)
	}()

	select {
	case <-sink.busy:
	case <-time.After(5 * time.Second):
		t.Fatal("sink never received a frame")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.ErrorIs(t, runErr, context.Canceled)
	assert.NotContains(t, runErr.Error(), "failed to read detections")
	assert.Equal(t, int64(1), summary.Frames)
	assert.Equal(t, 1, sink.finished)
}

func TestNew_Defaults(t *testing.T) {
	s := New(Options{Labels: detection.Labels{1: "bicycle"}})

	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.Tracker())
	assert.Equal(t, 50.0, s.Tracker().Config.MaxMatchDistance)
	assert.Equal(t, "bicycle", s.labels.Name(1))
}
