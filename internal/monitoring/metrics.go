package monitoring

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters for one tracking session. Counters are plain
// atomics so the frame loop never blocks on the registry; Prometheus reads
// them through GaugeFuncs at scrape time.
type Metrics struct {
	FramesProcessed    atomic.Uint64
	Detections         atomic.Uint64
	MalformedDetection atomic.Uint64
	TracksCreated      atomic.Uint64
	TracksEvicted      atomic.Uint64
	SinkErrors         atomic.Uint64

	// LiveTracks is a gauge, set once per frame.
	LiveTracks atomic.Int64

	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name string
		help string
		v    *atomic.Uint64
	}{
		{"trajectory_frames_processed_total", "Frames run through association and motion estimation", &m.FramesProcessed},
		{"trajectory_detections_total", "Well-formed detections received", &m.Detections},
		{"trajectory_detections_malformed_total", "Detections skipped because their box was degenerate", &m.MalformedDetection},
		{"trajectory_tracks_created_total", "Track identities issued", &m.TracksCreated},
		{"trajectory_tracks_evicted_total", "Tracks removed by the miss-count eviction policy", &m.TracksEvicted},
		{"trajectory_sink_errors_total", "Per-frame persistence/render/publish failures", &m.SinkErrors},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trajectory_tracks_live",
			Help: "Tracks currently held in the track store",
		},
		func() float64 { return float64(m.LiveTracks.Load()) },
	))
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving this session's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
