package detection

import (
	"testing"

	"github.com/banshee-data/trajectory.report/internal/tracking"
	"github.com/stretchr/testify/assert"
)

func TestLabels_Name(t *testing.T) {
	labels := Labels{0: "person", 2: "car", 5: ""}

	assert.Equal(t, "person", labels.Name(0))
	assert.Equal(t, "car", labels.Name(2))
	assert.Equal(t, "7", labels.Name(7))
	assert.Equal(t, "5", labels.Name(5), "empty names fall back to the id")
	assert.Equal(t, "-1", labels.Name(UnknownClass))

	var none Labels
	assert.Equal(t, "3", none.Name(3))
}

func TestLabels_Merge(t *testing.T) {
	labels := Labels{0: "person"}
	labels.Merge(map[int]string{0: "pedestrian", 1: "bicycle"})

	assert.Equal(t, Labels{0: "pedestrian", 1: "bicycle"}, labels)
}

func TestCounts(t *testing.T) {
	dets := []tracking.Detection{
		{ClassID: 2}, {ClassID: 0}, {ClassID: 2}, {ClassID: 9},
	}
	got := Counts(dets, Labels{0: "person", 2: "car"})

	want := []ClassCount{
		{Name: "9", Count: 1},
		{Name: "car", Count: 2},
		{Name: "person", Count: 1},
	}
	assert.Equal(t, want, got)
	assert.Nil(t, Counts(nil, nil))
}
