package publish

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/trajectory.report/internal/detection"
	"github.com/banshee-data/trajectory.report/internal/tracking"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// FrameLogWriter appends frames as length-delimited protobuf Struct
// messages.
type FrameLogWriter struct {
	w      *bufio.Writer
	closer io.Closer
	count  int64
}

// NewFrameLogWriter writes the frame log to w.
func NewFrameLogWriter(w io.Writer) *FrameLogWriter {
	fl := &FrameLogWriter{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		fl.closer = c
	}
	return fl
}

// CreateFrameLog creates (truncating) a frame log file.
func CreateFrameLog(path string) (*FrameLogWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame log: %w", err)
	}
	return NewFrameLogWriter(f), nil
}

// Write appends one frame.
func (fl *FrameLogWriter) Write(f *Frame) error {
	msg, err := structpb.NewStruct(frameFields(f))
	if err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", f.Frame, err)
	}
	if _, err := protodelim.MarshalTo(fl.w, msg); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", f.Frame, err)
	}
	fl.count++
	return nil
}

// Count returns the number of frames written.
func (fl *FrameLogWriter) Count() int64 {
	return fl.count
}

// Flush writes any buffered frames.
func (fl *FrameLogWriter) Flush() error {
	return fl.w.Flush()
}

// Close flushes and closes the underlying writer if it is closable.
func (fl *FrameLogWriter) Close() error {
	err := fl.Flush()
	if fl.closer != nil {
		err = errors.Join(err, fl.closer.Close())
	}
	return err
}

// FrameLogReader replays a frame log.
type FrameLogReader struct {
	r *bufio.Reader
}

// NewFrameLogReader reads a frame log from r.
func NewFrameLogReader(r io.Reader) *FrameLogReader {
	return &FrameLogReader{r: bufio.NewReader(r)}
}

// Next returns the next frame, or io.EOF at the end of the log.
func (fr *FrameLogReader) Next() (*Frame, error) {
	var msg structpb.Struct
	if err := protodelim.UnmarshalFrom(fr.r, &msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return frameFromFields(msg.AsMap())
}

// ReadFrameLog loads every frame of the log at path.
func ReadFrameLog(path string) ([]*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame log: %w", err)
	}
	defer f.Close()

	var frames []*Frame
	r := NewFrameLogReader(f)
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

func frameFields(f *Frame) map[string]interface{} {
	counts := make([]interface{}, len(f.Counts))
	for i, c := range f.Counts {
		counts[i] = map[string]interface{}{"name": c.Name, "count": c.Count}
	}

	tracks := make([]interface{}, len(f.Tracks))
	for i, t := range f.Tracks {
		history := make([]interface{}, len(t.History))
		for j, p := range t.History {
			history[j] = []interface{}{p.X, p.Y}
		}
		track := map[string]interface{}{
			"id":          t.ID,
			"class_id":    t.ClassID,
			"state":       string(t.State),
			"first_frame": t.FirstFrame,
			"last_frame":  t.LastFrame,
			"misses":      t.Misses,
			"history":     history,
		}
		if t.Direction != nil {
			track["direction"] = []interface{}{t.Direction.DX, t.Direction.DY}
		}
		if t.Orientation != nil {
			track["orientation"] = *t.Orientation
		}
		tracks[i] = track
	}

	return map[string]interface{}{
		"session_id": f.SessionID,
		"frame":      f.Frame,
		"time":       f.Time.UTC().Format(time.RFC3339Nano),
		"detections": f.Detections,
		"counts":     counts,
		"tracks":     tracks,
	}
}

func frameFromFields(m map[string]interface{}) (*Frame, error) {
	f := &Frame{
		SessionID:  str(m["session_id"]),
		Frame:      num(m["frame"]),
		Detections: int(num(m["detections"])),
	}
	if ts := str(m["time"]); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("frame %d: bad time %q: %w", f.Frame, ts, err)
		}
		f.Time = t
	}

	for _, c := range list(m["counts"]) {
		cm, _ := c.(map[string]interface{})
		f.Counts = append(f.Counts, detection.ClassCount{Name: str(cm["name"]), Count: int(num(cm["count"]))})
	}

	for _, raw := range list(m["tracks"]) {
		tm, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("frame %d: malformed track entry", f.Frame)
		}
		t := tracking.TrackSnapshot{
			ID:         num(tm["id"]),
			ClassID:    int(num(tm["class_id"])),
			State:      tracking.TrackState(str(tm["state"])),
			FirstFrame: num(tm["first_frame"]),
			LastFrame:  num(tm["last_frame"]),
			Misses:     num(tm["misses"]),
		}
		for _, p := range list(tm["history"]) {
			xy := list(p)
			if len(xy) != 2 {
				return nil, fmt.Errorf("frame %d: track %d: malformed point", f.Frame, t.ID)
			}
			t.History = append(t.History, tracking.Point{X: int(num(xy[0])), Y: int(num(xy[1]))})
		}
		if d := list(tm["direction"]); len(d) == 2 {
			t.Direction = &tracking.Vector{DX: int(num(d[0])), DY: int(num(d[1]))}
		}
		if o, ok := tm["orientation"].(float64); ok {
			t.Orientation = &o
		}
		f.Tracks = append(f.Tracks, t)
	}
	return f, nil
}

func num(v interface{}) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func list(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}
