package tracking

import "slices"

// Store holds the live tracks of one session and the identity counter.
// It is a plain data structure: callers own synchronisation.
//
// Iteration order is ascending track ID. IDs are issued in increasing
// order and never reused, so order is maintained by appending on insert.
type Store struct {
	tracks map[int64]*Track
	order  []int64
	nextID int64
}

// NewStore returns an empty store whose first issued ID is 1.
func NewStore() *Store {
	return &Store{
		tracks: make(map[int64]*Track),
		nextID: 1,
	}
}

// Len returns the number of live tracks.
func (s *Store) Len() int {
	return len(s.order)
}

// NextID returns the ID the next inserted track will receive.
func (s *Store) NextID() int64 {
	return s.nextID
}

// Get returns a track by ID, or nil if not found.
func (s *Store) Get(id int64) *Track {
	return s.tracks[id]
}

// Insert creates a new track seeded with a single centroid.
func (s *Store) Insert(p Point, classID int, frame int64) *Track {
	track := &Track{
		ID:         s.nextID,
		ClassID:    classID,
		History:    []Point{p},
		FirstFrame: frame,
		LastFrame:  frame,
	}
	s.nextID++
	s.tracks[track.ID] = track
	s.order = append(s.order, track.ID)
	return track
}

// Append extends a track's history by one centroid.
func (s *Store) Append(track *Track, p Point, classID int, frame int64) {
	track.History = append(track.History, p)
	track.ClassID = classID
	track.LastFrame = frame
}

// Prune removes every track for which drop returns true and returns the
// removed IDs in ascending order.
func (s *Store) Prune(drop func(*Track) bool) []int64 {
	var removed []int64
	kept := s.order[:0]
	for _, id := range s.order {
		if drop(s.tracks[id]) {
			delete(s.tracks, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// Each calls fn for every track in ascending ID order.
func (s *Store) Each(fn func(*Track)) {
	for _, id := range s.order {
		fn(s.tracks[id])
	}
}

// ids returns a copy of the live track IDs in ascending order.
func (s *Store) ids() []int64 {
	return slices.Clone(s.order)
}

// Snapshot returns detached copies of every track in ascending ID order.
// frame is the current frame index, used to report misses.
func (s *Store) Snapshot(minTrackLength int, frame int64) []TrackSnapshot {
	out := make([]TrackSnapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshotOf(s.tracks[id], minTrackLength, frame))
	}
	return out
}
