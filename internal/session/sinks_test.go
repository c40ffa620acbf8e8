package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/detection"
	"github.com/banshee-data/trajectory.report/internal/publish"
	"github.com/banshee-data/trajectory.report/internal/render"
	"github.com/banshee-data/trajectory.report/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runPair(t *testing.T, frames int, sinks ...Sink) *Summary {
	t.Helper()
	s := newTestSession(sinks...)
	summary, err := s.Run(context.Background(), detection.NewDecoder(strings.NewReader(movingPairJSONL(frames))))
	require.NoError(t, err)
	return summary
}

func TestDBSink(t *testing.T) {
	database := db.NewTestDB(t)
	sink, err := NewDBSink(database, &db.Session{SessionID: "test-session", Source: "test"})
	require.NoError(t, err)

	summary := runPair(t, 6, sink)

	stored, err := database.GetSession("test-session")
	require.NoError(t, err)
	assert.Equal(t, int64(6), stored.Frames)
	require.NotNil(t, stored.EndedAt)
	assert.True(t, stored.EndedAt.Equal(summary.EndedAt))

	tracks, err := database.ListTracks("test-session")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, 6, tracks[0].Points)

	counts, err := database.ClassCounts("test-session", 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"person": 1, "car": 1}, counts)
}

func TestFrameLogSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.pb")
	w, err := publish.CreateFrameLog(path)
	require.NoError(t, err)

	runPair(t, 5, NewFrameLogSink(w))

	frames, err := publish.ReadFrameLog(path)
	require.NoError(t, err)
	require.Len(t, frames, 5)
	assert.Equal(t, "test-session", frames[4].SessionID)
	require.Len(t, frames[4].Tracks, 2)
	assert.Equal(t, tracking.TrackActive, frames[4].Tracks[0].State)
}

func TestOverlaySink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "overlays")
	sink, err := NewOverlaySink(dir, render.NewOverlay(320, 240, nil))
	require.NoError(t, err)

	runPair(t, 3, sink)

	for frame := int64(1); frame <= 3; frame++ {
		_, err := os.Stat(OverlayPath(dir, frame))
		assert.NoError(t, err, "frame %d overlay", frame)
	}
	assert.Equal(t, filepath.Join(dir, "frame_000002.png"), OverlayPath(dir, 2))
}

func TestPlotAndChartSinks(t *testing.T) {
	dir := t.TempDir()
	plot := &PlotSink{Path: filepath.Join(dir, "trajectories.png")}
	chart := &ChartSink{Path: filepath.Join(dir, "trajectories.html")}

	runPair(t, 6, plot, chart)

	info, err := os.Stat(plot.Path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	html, err := os.ReadFile(chart.Path)
	require.NoError(t, err)
	assert.Contains(t, string(html), "track 2")
}

func TestPublishFrame(t *testing.T) {
	f := &Frame{
		SessionID: "s",
		Result:    tracking.FrameResult{Frame: 3, Detections: 2},
		Counts:    []detection.ClassCount{{Name: "car", Count: 2}},
	}
	got := PublishFrame(f)
	assert.Equal(t, int64(3), got.Frame)
	assert.Equal(t, 2, got.Detections)
	assert.Equal(t, "s", got.SessionID)
	assert.Equal(t, f.Counts, got.Counts)
}
