package tracking

import "math"

// Unassigned marks a detection that did not extend an existing track.
const Unassigned int64 = 0

// Association is the outcome of matching one frame's detections.
type Association struct {
	// TrackIDs is indexed by detection: the track the detection ended up
	// in, whether matched or newly created.
	TrackIDs []int64
	// Matched[i] is true when detection i extended an existing track.
	Matched []bool
	// Created lists new track IDs in creation order.
	Created []int64
}

// Associate matches detections to tracks by greedy nearest centroid and
// updates the store in place.
//
// Detections are visited in the given order. For each one the track whose
// last centroid is nearest, strictly inside maxDistance, is selected by a
// min-reduction in ascending ID order (so ties go to the lowest ID). If
// that track was already claimed this frame, or no track is in the gate,
// the detection starts a new track. A claimed nearest track does not
// fall back to the second-nearest one.
func Associate(store *Store, detections []Detection, maxDistance float64, frame int64) Association {
	result := Association{
		TrackIDs: make([]int64, len(detections)),
		Matched:  make([]bool, len(detections)),
	}
	if len(detections) == 0 {
		return result
	}

	assigned := make(map[int64]struct{}, len(detections))

	for i, det := range detections {
		bestID := Unassigned
		bestDist := math.Inf(1)

		// Tracks created earlier in this frame are candidates too; they
		// are always already assigned and so can only block.
		store.Each(func(track *Track) {
			last := track.Last()
			dist := math.Hypot(float64(det.Centroid.X-last.X), float64(det.Centroid.Y-last.Y))
			if dist < bestDist && dist < maxDistance {
				bestDist = dist
				bestID = track.ID
			}
		})

		if bestID != Unassigned {
			if _, taken := assigned[bestID]; !taken {
				store.Append(store.Get(bestID), det.Centroid, det.ClassID, frame)
				assigned[bestID] = struct{}{}
				result.TrackIDs[i] = bestID
				result.Matched[i] = true
				continue
			}
		}

		track := store.Insert(det.Centroid, det.ClassID, frame)
		// Claimed for this frame so a nearby detection cannot extend it;
		// a track gains at most one point per frame.
		assigned[track.ID] = struct{}{}
		result.TrackIDs[i] = track.ID
		result.Created = append(result.Created, track.ID)
	}

	return result
}
