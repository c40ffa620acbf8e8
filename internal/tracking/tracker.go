package tracking

import (
	"sync"

	"github.com/banshee-data/trajectory.report/internal/config"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
)

var logf = monitoring.Component("tracker")

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	MaxMatchDistance float64 // Association gate, strictly-less-than (pixels)
	MinTrackLength   int     // Lag window for direction/orientation (frames)
	MaxMisses        int     // Consecutive unmatched frames before eviction; 0 never evicts
	MaxTracksWarning int     // Live-track count that triggers a growth warning; 0 disables
}

// DefaultTrackerConfig returns the built-in tracker parameters.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.DefaultTuningConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		MaxMatchDistance: cfg.GetMaxMatchDistance(),
		MinTrackLength:   cfg.GetMinTrackLength(),
		MaxMisses:        cfg.GetMaxMisses(),
		MaxTracksWarning: cfg.GetMaxTracksWarning(),
	}
}

// FrameResult summarises one call to Update.
type FrameResult struct {
	Frame       int64
	Detections  int
	Association Association
	Evicted     []int64
	Tracks      []TrackSnapshot
}

// Tracker owns the track store for one processing session and runs the
// per-frame association and motion steps in order.
//
// Update must be called from a single goroutine in frame order. The lock
// exists so that read-only observers (debug HTTP handlers) can take
// consistent snapshots while the frame loop runs.
type Tracker struct {
	Config TrackerConfig

	store   *Store
	frame   int64
	metrics *monitoring.Metrics

	// warned latches the growth warning until the count drops again.
	warned bool

	mu sync.RWMutex
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		Config: cfg,
		store:  NewStore(),
	}
}

// SetMetrics attaches session metrics. A nil value detaches them.
func (t *Tracker) SetMetrics(m *monitoring.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// Update processes one frame of detections and returns the updated tracks.
// This is the main entry point for the frame loop.
func (t *Tracker) Update(detections []Detection) FrameResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frame++
	frame := t.frame

	// Step 1: associate detections, creating tracks for the unmatched ones
	assoc := Associate(t.store, detections, t.Config.MaxMatchDistance, frame)

	// Step 2: recompute motion cues from the fixed lag window
	EstimateMotion(t.store, t.Config.MinTrackLength)

	// Step 3: evict tracks that have gone unmatched for too long
	var evicted []int64
	if t.Config.MaxMisses > 0 {
		maxMisses := int64(t.Config.MaxMisses)
		evicted = t.store.Prune(func(track *Track) bool {
			return frame-track.LastFrame >= maxMisses
		})
	}

	live := t.store.Len()
	t.checkGrowth(live)

	if t.metrics != nil {
		t.metrics.FramesProcessed.Add(1)
		t.metrics.Detections.Add(uint64(len(detections)))
		t.metrics.TracksCreated.Add(uint64(len(assoc.Created)))
		t.metrics.TracksEvicted.Add(uint64(len(evicted)))
		t.metrics.LiveTracks.Store(int64(live))
	}

	return FrameResult{
		Frame:       frame,
		Detections:  len(detections),
		Association: assoc,
		Evicted:     evicted,
		Tracks:      t.store.Snapshot(t.Config.MinTrackLength, frame),
	}
}

// checkGrowth logs once each time the live count reaches the warning
// threshold. Growth is reported, never acted on.
func (t *Tracker) checkGrowth(live int) {
	limit := t.Config.MaxTracksWarning
	if limit <= 0 {
		return
	}
	if live >= limit && !t.warned {
		t.warned = true
		if t.Config.MaxMisses == 0 {
			logf("warning: %d live tracks (threshold %d); eviction is disabled so the store grows for the whole session", live, limit)
		} else {
			logf("warning: %d live tracks (threshold %d)", live, limit)
		}
		return
	}
	if live < limit {
		t.warned = false
	}
}

// Frame returns the index of the last processed frame (0 before the first).
func (t *Tracker) Frame() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frame
}

// Snapshot returns detached copies of all live tracks in ID order.
func (t *Tracker) Snapshot() []TrackSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.Snapshot(t.Config.MinTrackLength, t.frame)
}

// GetTrack returns a snapshot of a single track.
func (t *Tracker) GetTrack(id int64) (TrackSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	track := t.store.Get(id)
	if track == nil {
		return TrackSnapshot{}, false
	}
	return snapshotOf(track, t.Config.MinTrackLength, t.frame), true
}

// GetTrackCount returns counts of live tracks by state.
func (t *Tracker) GetTrackCount() (total, fresh, growing, active int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.store.Each(func(track *Track) {
		total++
		switch track.State(t.Config.MinTrackLength) {
		case TrackNew:
			fresh++
		case TrackGrowing:
			growing++
		case TrackActive:
			active++
		}
	})
	return
}

// NextID returns the identity the next new track will receive.
func (t *Tracker) NextID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.NextID()
}
