package session

import (
	"math"
	"testing"

	"github.com/banshee-data/trajectory.report/internal/tracking"
)

func TestTrackStatsOf(t *testing.T) {
	track := tracking.TrackSnapshot{
		ID:      4,
		State:   tracking.TrackGrowing,
		History: []tracking.Point{{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 3, Y: 4}, {X: 6, Y: 8}},
	}

	st := TrackStatsOf(track)

	if st.Points != 4 {
		t.Errorf("expected 4 points, got %d", st.Points)
	}
	if st.PathLength != 10 {
		t.Errorf("expected path length 10, got %v", st.PathLength)
	}
	if st.Displacement != 10 {
		t.Errorf("expected displacement 10, got %v", st.Displacement)
	}
	if math.Abs(st.MeanStep-10.0/3) > 1e-9 {
		t.Errorf("expected mean step 3.333, got %v", st.MeanStep)
	}
	// Sample standard deviation of {5, 0, 5}.
	if want := math.Sqrt(25.0 / 3); math.Abs(st.StdDevStep-want) > 1e-9 {
		t.Errorf("expected stddev %v, got %v", want, st.StdDevStep)
	}
}

func TestTrackStatsOf_SinglePoint(t *testing.T) {
	st := TrackStatsOf(tracking.TrackSnapshot{ID: 1, History: []tracking.Point{{X: 5, Y: 5}}})
	if st.PathLength != 0 || st.MeanStep != 0 || st.StdDevStep != 0 {
		t.Errorf("expected zero stats, got %+v", st)
	}
}

func TestSummaryString(t *testing.T) {
	s := &Summary{SessionID: "abc", Frames: 3, TracksCreated: 2}
	got := s.String()
	if got == "" || got[:11] != "session abc" {
		t.Errorf("unexpected summary string %q", got)
	}
}
