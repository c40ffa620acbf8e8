package render

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/trajectory.report/internal/tracking"
)

func sampleTracks() []tracking.TrackSnapshot {
	return []tracking.TrackSnapshot{
		{ID: 1, History: []tracking.Point{{X: 0, Y: 0}, {X: 10, Y: 5}, {X: 20, Y: 10}}},
		{ID: 2, History: []tracking.Point{{X: 300, Y: 200}}},
	}
}

func TestTrajectoryPlot(t *testing.T) {
	p, err := TrajectoryPlot("session", sampleTracks())
	if err != nil {
		t.Fatalf("TrajectoryPlot failed: %v", err)
	}
	if p.Title.Text != "session" {
		t.Errorf("expected title %q, got %q", "session", p.Title.Text)
	}
}

func TestWritePlotPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePlotPNG(&buf, "session", sampleTracks()); err != nil {
		t.Fatalf("WritePlotPNG failed: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("expected a valid PNG, got %v", err)
	}
}

func TestSavePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trajectories.png")
	if err := SavePlot(path, "session", sampleTracks()); err != nil {
		t.Fatalf("SavePlot failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected plot file, got %v", err)
	}
}

func TestGenerateColors(t *testing.T) {
	if got := generateColors(0); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	colors := generateColors(3)
	if len(colors) != 3 {
		t.Fatalf("expected 3 colors, got %d", len(colors))
	}
	if colors[0] == colors[1] || colors[1] == colors[2] {
		t.Errorf("expected distinct colors, got %v", colors)
	}
}

func TestChartHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := ChartHTML(&buf, "Trajectories", "2 tracks", sampleTracks()); err != nil {
		t.Fatalf("ChartHTML failed: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"Trajectories", "track 1", "track 2", "echarts"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}
