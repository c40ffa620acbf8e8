// Package detection converts raw object-detector output into the
// per-frame detections consumed by the tracker.
package detection

import (
	"math"

	"github.com/banshee-data/trajectory.report/internal/tracking"
)

// UnknownClass is the class id given to a box with no class entry.
const UnknownClass = -1

// RawFrame is one frame of detector output: parallel slices of boxes
// (x1, y1, x2, y2) and class ids.
type RawFrame struct {
	Boxes    [][4]float64
	ClassIDs []int
}

// Adapt converts a raw frame into detections in the detector's order.
// Boxes with non-finite coordinates are skipped; the number skipped is
// returned alongside.
func Adapt(raw RawFrame) (dets []tracking.Detection, malformed int) {
	dets = make([]tracking.Detection, 0, len(raw.Boxes))
	for i, b := range raw.Boxes {
		if !finite(b) {
			malformed++
			continue
		}
		classID := UnknownClass
		if i < len(raw.ClassIDs) {
			classID = raw.ClassIDs[i]
		}
		dets = append(dets, tracking.Detection{
			Centroid: tracking.Point{
				X: int((b[0] + b[2]) / 2),
				Y: int((b[1] + b[3]) / 2),
			},
			BBox: tracking.BBox{
				X1: int(b[0]), Y1: int(b[1]),
				X2: int(b[2]), Y2: int(b[3]),
			},
			ClassID: classID,
		})
	}
	return dets, malformed
}

func finite(b [4]float64) bool {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
