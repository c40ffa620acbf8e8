// Package tracking owns the frame-to-frame core of the trajectory tracker.
//
// Responsibilities: the track store (live tracks and the identity
// counter), greedy nearest-centroid association with a distance gate,
// and fixed-lag motion estimation (direction vector and orientation).
// Key types: Detection, Track, Store, Tracker, TrackSnapshot.
//
// Matching is deliberately greedy: detections are visited in detector
// order and each takes the nearest in-gate track by its last centroid.
// There is no motion model and no appearance matching. Cost is
// O(detections × tracks) per frame.
//
// Nothing in this package performs I/O. Persistence, rendering and
// publishing consume TrackSnapshot values produced by Tracker.
package tracking
