package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/publish"
	"github.com/banshee-data/trajectory.report/internal/render"
)

// Sink receives every processed frame and the end-of-session summary.
type Sink interface {
	Name() string
	Consume(ctx context.Context, f *Frame) error
	Finish(summary *Summary) error
}

// PublishFrame converts a processed frame to its published form.
func PublishFrame(f *Frame) *publish.Frame {
	return &publish.Frame{
		SessionID:  f.SessionID,
		Frame:      f.Result.Frame,
		Time:       f.Time,
		Detections: f.Result.Detections,
		Counts:     f.Counts,
		Tracks:     f.Result.Tracks,
	}
}

// DBSink persists frames to the trajectory database.
type DBSink struct {
	db        *db.DB
	sessionID string
}

// NewDBSink registers the session in the database and returns a sink
// writing its frames.
func NewDBSink(database *db.DB, s *db.Session) (*DBSink, error) {
	if err := database.CreateSession(s); err != nil {
		return nil, err
	}
	return &DBSink{db: database, sessionID: s.SessionID}, nil
}

func (d *DBSink) Name() string { return "db" }

func (d *DBSink) Consume(_ context.Context, f *Frame) error {
	var counts map[string]int
	if len(f.Counts) > 0 {
		counts = make(map[string]int, len(f.Counts))
		for _, c := range f.Counts {
			counts[c.Name] = c.Count
		}
	}
	return d.db.SaveFrame(db.FrameRecord{
		SessionID: d.sessionID,
		Frame:     f.Result.Frame,
		At:        f.Time,
		Tracks:    f.Result.Tracks,
		Evicted:   f.Result.Evicted,
		Counts:    counts,
	})
}

func (d *DBSink) Finish(summary *Summary) error {
	return d.db.FinishSession(d.sessionID, summary.Frames, summary.EndedAt)
}

// OverlaySink writes one PNG per frame into a directory.
type OverlaySink struct {
	dir     string
	overlay *render.Overlay
}

// NewOverlaySink creates dir if needed.
func NewOverlaySink(dir string, overlay *render.Overlay) (*OverlaySink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create overlay dir: %w", err)
	}
	return &OverlaySink{dir: dir, overlay: overlay}, nil
}

func (o *OverlaySink) Name() string { return "overlay" }

func (o *OverlaySink) Consume(_ context.Context, f *Frame) error {
	return o.overlay.SavePNG(OverlayPath(o.dir, f.Result.Frame), f.Instructions)
}

func (o *OverlaySink) Finish(*Summary) error { return nil }

// OverlayPath is the file an overlay frame is written to.
func OverlayPath(dir string, frame int64) string {
	return filepath.Join(dir, fmt.Sprintf("frame_%06d.png", frame))
}

// FrameLogSink appends frames to a protobuf frame log.
type FrameLogSink struct {
	w *publish.FrameLogWriter
}

func NewFrameLogSink(w *publish.FrameLogWriter) *FrameLogSink {
	return &FrameLogSink{w: w}
}

func (l *FrameLogSink) Name() string { return "framelog" }

func (l *FrameLogSink) Consume(_ context.Context, f *Frame) error {
	return l.w.Write(PublishFrame(f))
}

func (l *FrameLogSink) Finish(*Summary) error {
	logf("framelog: wrote %d frames", l.w.Count())
	return l.w.Close()
}

// RedisSink publishes frames on a Redis channel.
type RedisSink struct {
	p *publish.RedisPublisher
}

func NewRedisSink(p *publish.RedisPublisher) *RedisSink {
	return &RedisSink{p: p}
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Consume(ctx context.Context, f *Frame) error {
	_, err := r.p.Publish(ctx, PublishFrame(f))
	return err
}

func (r *RedisSink) Finish(*Summary) error { return r.p.Close() }

// PlotSink writes the trajectory plot of the final store at session end.
type PlotSink struct {
	Path string
}

func (p *PlotSink) Name() string { return "plot" }

func (p *PlotSink) Consume(context.Context, *Frame) error { return nil }

func (p *PlotSink) Finish(summary *Summary) error {
	return render.SavePlot(p.Path, "Trajectories "+summary.SessionID, summary.Tracks)
}

// ChartSink writes an interactive HTML chart of the final store at
// session end.
type ChartSink struct {
	Path string
}

func (c *ChartSink) Name() string { return "chart" }

func (c *ChartSink) Consume(context.Context, *Frame) error { return nil }

func (c *ChartSink) Finish(summary *Summary) (err error) {
	f, err := os.Create(c.Path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	subtitle := fmt.Sprintf("session=%s frames=%d tracks=%d", summary.SessionID, summary.Frames, len(summary.Tracks))
	return render.ChartHTML(f, "Trajectories", subtitle, summary.Tracks)
}
