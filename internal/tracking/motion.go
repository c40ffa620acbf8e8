package tracking

import "math"

// Motion computes the fixed-lag displacement over the last
// minTrackLength points of history and its angle in degrees.
// It returns nil, nil when the history is shorter than the window.
//
// The angle follows image coordinates (y down): a target moving down
// the frame has a positive orientation. A zero displacement yields 0.
func Motion(history []Point, minTrackLength int) (*Vector, *float64) {
	n := len(history)
	if minTrackLength < 1 || n < minTrackLength {
		return nil, nil
	}
	cur := history[n-1]
	start := history[n-minTrackLength]
	dir := &Vector{DX: cur.X - start.X, DY: cur.Y - start.Y}
	deg := math.Atan2(float64(dir.DY), float64(dir.DX)) * 180 / math.Pi
	return dir, &deg
}

// EstimateMotion recomputes direction and orientation for every track in
// the store from its current history. Tracks below the window have both
// cleared.
func EstimateMotion(store *Store, minTrackLength int) {
	store.Each(func(track *Track) {
		track.Direction, track.Orientation = Motion(track.History, minTrackLength)
	})
}
