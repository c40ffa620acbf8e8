// Package publish emits processed frames to out-of-process consumers: a
// replayable protobuf frame log and a Redis pub/sub channel.
package publish

import (
	"time"

	"github.com/banshee-data/trajectory.report/internal/detection"
	"github.com/banshee-data/trajectory.report/internal/tracking"
)

// Frame is the published view of one processed frame.
type Frame struct {
	SessionID  string                   `json:"session_id"`
	Frame      int64                    `json:"frame"`
	Time       time.Time                `json:"time"`
	Detections int                      `json:"detections"`
	Counts     []detection.ClassCount   `json:"counts,omitempty"`
	Tracks     []tracking.TrackSnapshot `json:"tracks"`
}
