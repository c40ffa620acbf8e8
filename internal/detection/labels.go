package detection

import (
	"sort"
	"strconv"

	"github.com/banshee-data/trajectory.report/internal/tracking"
)

// Labels maps detector class ids to human-readable names.
type Labels map[int]string

// Name resolves a class id. Unknown ids fall back to their decimal form.
func (l Labels) Name(classID int) string {
	if name, ok := l[classID]; ok && name != "" {
		return name
	}
	return strconv.Itoa(classID)
}

// Merge copies names into l, overwriting existing entries.
func (l Labels) Merge(names map[int]string) {
	for id, name := range names {
		l[id] = name
	}
}

// ClassCount is the number of detections of one class in a frame.
type ClassCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Counts tallies detections per class name, sorted by name.
func Counts(dets []tracking.Detection, labels Labels) []ClassCount {
	if len(dets) == 0 {
		return nil
	}
	byName := make(map[string]int)
	for _, d := range dets {
		byName[labels.Name(d.ClassID)]++
	}
	out := make([]ClassCount, 0, len(byName))
	for name, n := range byName {
		out = append(out, ClassCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
