package tracking

import "fmt"

// Point is an integer image coordinate. Y grows downward.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BBox is an axis-aligned bounding box given by two corners.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Detection is one detector hit for a single frame. It is not retained
// once the frame has been associated.
type Detection struct {
	Centroid Point `json:"centroid"`
	BBox     BBox  `json:"bbox"`
	ClassID  int   `json:"class_id"`
}

// Vector is an integer displacement.
type Vector struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// TrackState is derived from history length; it is never stored.
type TrackState string

const (
	TrackNew     TrackState = "new"     // exactly one point
	TrackGrowing TrackState = "growing" // below the lag window, no motion cues
	TrackActive  TrackState = "active"  // direction and orientation available
)

// Track is a persistent identity accumulating centroids across frames.
type Track struct {
	ID      int64
	ClassID int

	// History is append-only and never empty.
	History []Point

	// Direction and Orientation are set together by EstimateMotion and
	// are nil while len(History) < the lag window.
	Direction   *Vector
	Orientation *float64 // degrees

	FirstFrame int64
	LastFrame  int64
}

// Last returns the most recent centroid.
func (t *Track) Last() Point {
	return t.History[len(t.History)-1]
}

// State classifies the track against a lag window of minTrackLength.
func (t *Track) State(minTrackLength int) TrackState {
	switch n := len(t.History); {
	case n >= minTrackLength:
		return TrackActive
	case n <= 1:
		return TrackNew
	default:
		return TrackGrowing
	}
}

func (t *Track) String() string {
	return fmt.Sprintf("track %d (%d points, last %v)", t.ID, len(t.History), t.Last())
}

// TrackSnapshot is a detached copy of a track, safe to hand to other
// goroutines, renderers and sinks.
type TrackSnapshot struct {
	ID          int64      `json:"id"`
	ClassID     int        `json:"class_id"`
	State       TrackState `json:"state"`
	History     []Point    `json:"history"`
	Direction   *Vector    `json:"direction,omitempty"`
	Orientation *float64   `json:"orientation,omitempty"`
	FirstFrame  int64      `json:"first_frame"`
	LastFrame   int64      `json:"last_frame"`
	Misses      int64      `json:"misses"` // frames since LastFrame
}

// Current returns the most recent centroid of the snapshot.
func (s TrackSnapshot) Current() Point {
	return s.History[len(s.History)-1]
}

// WindowStart returns the first point of the lag window, i.e. the tail of
// the direction arrow. It is only meaningful when Direction is set.
func (s TrackSnapshot) WindowStart() Point {
	cur := s.Current()
	if s.Direction == nil {
		return cur
	}
	return Point{X: cur.X - s.Direction.DX, Y: cur.Y - s.Direction.DY}
}

func snapshotOf(t *Track, minTrackLength int, frame int64) TrackSnapshot {
	snap := TrackSnapshot{
		ID:         t.ID,
		ClassID:    t.ClassID,
		State:      t.State(minTrackLength),
		History:    make([]Point, len(t.History)),
		FirstFrame: t.FirstFrame,
		LastFrame:  t.LastFrame,
		Misses:     frame - t.LastFrame,
	}
	copy(snap.History, t.History)
	if t.Direction != nil {
		d := *t.Direction
		snap.Direction = &d
	}
	if t.Orientation != nil {
		o := *t.Orientation
		snap.Orientation = &o
	}
	return snap
}
