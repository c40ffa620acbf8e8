// Package render turns tracker snapshots into drawing instructions and
// draws them with a raster overlay, a summary plot, or an HTML chart.
//
// Nothing in this package mutates tracker state.
package render

import (
	"fmt"

	"github.com/banshee-data/trajectory.report/internal/detection"
	"github.com/banshee-data/trajectory.report/internal/tracking"
)

// Placement of the class-count text block.
const (
	CountsX     = 10
	CountsY0    = 30
	CountsLineH = 25
)

// Polyline connects a track's recorded centroids in order. It is not closed.
type Polyline struct {
	TrackID int64            `json:"track_id"`
	Points  []tracking.Point `json:"points"`
}

// Arrow runs from the start of the lag window to the current centroid.
type Arrow struct {
	TrackID int64          `json:"track_id"`
	From    tracking.Point `json:"from"`
	To      tracking.Point `json:"to"`
}

// Text is a string anchored at a pixel position (baseline left).
type Text struct {
	At   tracking.Point `json:"at"`
	Text string         `json:"text"`
}

// Label is a track's orientation text.
type Label struct {
	TrackID int64 `json:"track_id"`
	Text
}

// Instructions is everything to draw for one frame.
type Instructions struct {
	Frame     int64      `json:"frame"`
	Polylines []Polyline `json:"polylines,omitempty"`
	Arrows    []Arrow    `json:"arrows,omitempty"`
	Labels    []Label    `json:"labels,omitempty"`
	Counts    []Text     `json:"counts,omitempty"`
}

// OrientationText formats an orientation in whole degrees, truncating
// toward zero.
func OrientationText(deg float64) string {
	return fmt.Sprintf("%d deg", int(deg))
}

// Build emits instructions for every track with motion cues, in track
// order, followed by one text line per class count.
func Build(frame int64, tracks []tracking.TrackSnapshot, counts []detection.ClassCount) Instructions {
	ins := Instructions{Frame: frame}
	for _, t := range tracks {
		if t.Direction == nil || t.Orientation == nil {
			continue
		}
		cur := t.Current()
		ins.Polylines = append(ins.Polylines, Polyline{TrackID: t.ID, Points: t.History})
		ins.Arrows = append(ins.Arrows, Arrow{TrackID: t.ID, From: t.WindowStart(), To: cur})
		ins.Labels = append(ins.Labels, Label{
			TrackID: t.ID,
			Text:    Text{At: cur, Text: OrientationText(*t.Orientation)},
		})
	}
	ins.Counts = CountLines(counts)
	return ins
}

// CountLines lays out class counts as "name: n" lines down the left edge.
func CountLines(counts []detection.ClassCount) []Text {
	if len(counts) == 0 {
		return nil
	}
	out := make([]Text, len(counts))
	for i, c := range counts {
		out[i] = Text{
			At:   tracking.Point{X: CountsX, Y: CountsY0 + i*CountsLineH},
			Text: fmt.Sprintf("%s: %d", c.Name, c.Count),
		}
	}
	return out
}
