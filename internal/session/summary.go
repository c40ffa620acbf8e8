package session

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/trajectory.report/internal/tracking"
	"gonum.org/v1/gonum/stat"
)

// TrackStats describes the motion of one track over the session.
type TrackStats struct {
	ID         int64   `json:"id"`
	Class      string  `json:"class"`
	State      string  `json:"state"`
	Points     int     `json:"points"`
	PathLength float64 `json:"path_length"`
	// Displacement is the straight-line distance from first to last point.
	Displacement float64 `json:"displacement"`
	MeanStep     float64 `json:"mean_step"`
	StdDevStep   float64 `json:"stddev_step"`
}

// Summary is the end-of-session report returned by Run.
type Summary struct {
	SessionID  string    `json:"session_id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Frames     int64     `json:"frames"`
	Detections int64     `json:"detections"`
	Malformed  int64     `json:"malformed"`
	SinkErrors int64     `json:"sink_errors"`

	TracksCreated int64 `json:"tracks_created"`
	TracksEvicted int64 `json:"tracks_evicted"`
	LiveTracks    int   `json:"live_tracks"`
	NewTracks     int   `json:"new_tracks"`
	Growing       int   `json:"growing_tracks"`
	Active        int   `json:"active_tracks"`

	MeanPoints       float64 `json:"mean_points"`
	MedianPoints     float64 `json:"median_points"`
	MeanPathLength   float64 `json:"mean_path_length"`
	StdDevPathLength float64 `json:"stddev_path_length"`

	TrackStats []TrackStats `json:"track_stats,omitempty"`

	// Tracks is the final store snapshot, for end-of-session renderers.
	Tracks []tracking.TrackSnapshot `json:"-"`
}

func (s *Summary) String() string {
	return fmt.Sprintf("session %s: %d frames, %d detections (%d malformed), %d tracks created, %d live (%d active), %d evicted, mean path %.1f px",
		s.SessionID, s.Frames, s.Detections, s.Malformed, s.TracksCreated, s.LiveTracks, s.Active, s.TracksEvicted, s.MeanPathLength)
}

func (s *Session) summarize(started, ended time.Time) *Summary {
	tracks := s.tracker.Snapshot()
	sum := &Summary{
		SessionID:     s.ID,
		Source:        s.Source,
		StartedAt:     started,
		EndedAt:       ended,
		Frames:        s.tracker.Frame(),
		Detections:    s.detections,
		Malformed:     s.malformed,
		SinkErrors:    s.sinkErrors,
		TracksCreated: s.tracker.NextID() - 1,
		TracksEvicted: s.evicted,
		Tracks:        tracks,
	}
	sum.LiveTracks, sum.NewTracks, sum.Growing, sum.Active = s.tracker.GetTrackCount()

	sum.TrackStats = make([]TrackStats, len(tracks))
	points := make([]float64, len(tracks))
	paths := make([]float64, len(tracks))
	for i, t := range tracks {
		st := TrackStatsOf(t)
		st.Class = s.labels.Name(t.ClassID)
		sum.TrackStats[i] = st
		points[i] = float64(st.Points)
		paths[i] = st.PathLength
	}

	if len(tracks) > 0 {
		sum.MeanPoints = stat.Mean(points, nil)
		sum.MeanPathLength = stat.Mean(paths, nil)
		sorted := append([]float64(nil), points...)
		sort.Float64s(sorted)
		sum.MedianPoints = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	if len(tracks) > 1 {
		sum.StdDevPathLength = stat.StdDev(paths, nil)
	}
	return sum
}

// TrackStatsOf measures a single track's path.
func TrackStatsOf(t tracking.TrackSnapshot) TrackStats {
	st := TrackStats{ID: t.ID, State: string(t.State), Points: len(t.History)}
	if len(t.History) < 2 {
		return st
	}

	steps := make([]float64, len(t.History)-1)
	for i := 1; i < len(t.History); i++ {
		a, b := t.History[i-1], t.History[i]
		steps[i-1] = math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
		st.PathLength += steps[i-1]
	}
	first, last := t.History[0], t.History[len(t.History)-1]
	st.Displacement = math.Hypot(float64(last.X-first.X), float64(last.Y-first.Y))

	st.MeanStep = stat.Mean(steps, nil)
	if len(steps) > 1 {
		st.StdDevStep = stat.StdDev(steps, nil)
	}
	return st
}
