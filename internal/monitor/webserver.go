// Package monitor serves live tracker state, metrics and the debug pages
// over HTTP while a session runs.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/trajectory.report/internal/config"
	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/render"
	"github.com/banshee-data/trajectory.report/internal/tracking"
	"github.com/banshee-data/trajectory.report/internal/version"
	"tailscale.com/tsweb"
)

var logf = monitoring.Component("monitor")

// TrackSource is the read-only view of a tracker the server needs.
// *tracking.Tracker implements it.
type TrackSource interface {
	Frame() int64
	Snapshot() []tracking.TrackSnapshot
	GetTrack(id int64) (tracking.TrackSnapshot, bool)
	GetTrackCount() (total, fresh, growing, active int)
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address   string
	SessionID string
	Tracks    TrackSource
	Metrics   *monitoring.Metrics
	// Overlay renders the live overlay debug page; nil uses the default
	// frame size.
	Overlay *render.Overlay
	// DB is optional; when set, the stored sessions and track histories are
	// served and tailsql and backup are mounted under /debug/.
	DB *db.DB
}

// WebServer exposes the running session over HTTP.
type WebServer struct {
	address   string
	sessionID string
	tracks    TrackSource
	metrics   *monitoring.Metrics
	overlay   *render.Overlay
	db        *db.DB
	server    *http.Server
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(cfg WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address:   cfg.Address,
		sessionID: cfg.SessionID,
		tracks:    cfg.Tracks,
		metrics:   cfg.Metrics,
		overlay:   cfg.Overlay,
		db:        cfg.DB,
	}
	if ws.overlay == nil {
		ws.overlay = render.NewOverlay(config.DefaultFrameWidth, config.DefaultFrameHeight, nil)
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws, nil
}

// Handler returns the server's root handler.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.address, err)
	}
	return ws.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logf("starting HTTP server on %s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	logf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/tracks", ws.handleTracks)
	mux.HandleFunc("/api/track", ws.handleTrack)
	if ws.metrics != nil {
		mux.Handle("/metrics", ws.metrics.Handler())
	}

	debug := tsweb.Debugger(mux)
	debug.HandleFunc("tracks-chart", "Live trajectory chart", ws.handleTracksChart)
	debug.HandleFunc("tracks-plot", "Trajectory plot (PNG)", ws.handleTracksPlot)
	debug.HandleFunc("overlay", "Current frame overlay (PNG)", ws.handleOverlay)
	debug.HandleSilentFunc("tracks", ws.handleTracks)

	if ws.db != nil {
		mux.HandleFunc("/api/sessions", ws.handleSessions)
		mux.HandleFunc("/api/track/history", ws.handleTrackHistory)
		mux.HandleFunc("/api/counts", ws.handleCounts)
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf("failed to encode response: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, fresh, growing, active := ws.tracks.GetTrackCount()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    version.Version,
		"session_id": ws.sessionID,
		"frame":      ws.tracks.Frame(),
		"tracks": map[string]int{
			"total":   total,
			"new":     fresh,
			"growing": growing,
			"active":  active,
		},
	})
}

// tracksResponse is the body of /api/tracks.
type tracksResponse struct {
	SessionID string                   `json:"session_id"`
	Frame     int64                    `json:"frame"`
	Tracks    []tracking.TrackSnapshot `json:"tracks"`
}

func (ws *WebServer) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tracks := ws.tracks.Snapshot()
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := tracks[:0]
		for _, t := range tracks {
			if string(t.State) == state {
				filtered = append(filtered, t)
			}
		}
		tracks = filtered
	}
	if tracks == nil {
		tracks = []tracking.TrackSnapshot{}
	}
	writeJSON(w, http.StatusOK, tracksResponse{SessionID: ws.sessionID, Frame: ws.tracks.Frame(), Tracks: tracks})
}

func (ws *WebServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		ws.writeJSONError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	track, ok := ws.tracks.GetTrack(id)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("track %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (ws *WebServer) handleTracksChart(w http.ResponseWriter, r *http.Request) {
	tracks := ws.tracks.Snapshot()
	subtitle := fmt.Sprintf("session=%s frame=%d tracks=%d", ws.sessionID, ws.tracks.Frame(), len(tracks))

	var buf bytes.Buffer
	if err := render.ChartHTML(&buf, "Live Trajectories", subtitle, tracks); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (ws *WebServer) handleTracksPlot(w http.ResponseWriter, r *http.Request) {
	title := fmt.Sprintf("session %s, frame %d", ws.sessionID, ws.tracks.Frame())

	var buf bytes.Buffer
	if err := render.WritePlotPNG(&buf, title, ws.tracks.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (ws *WebServer) handleOverlay(w http.ResponseWriter, r *http.Request) {
	ins := render.Build(ws.tracks.Frame(), ws.tracks.Snapshot(), nil)

	var buf bytes.Buffer
	if err := ws.overlay.WritePNG(&buf, ins); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// sessionResponse is the body of /api/sessions?id=.
type sessionResponse struct {
	*db.Session
	Tracks []*db.TrackRecord `json:"tracks"`
}

// handleSessions lists stored sessions, or with ?id= returns one session
// and its tracks.
func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		ws.handleSession(w, id)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			ws.writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	sessions, err := ws.db.ListSessions(limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*db.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// trackHistoryResponse is the body of /api/track/history.
type trackHistoryResponse struct {
	SessionID string           `json:"session_id"`
	TrackID   int64            `json:"track_id"`
	Points    []tracking.Point `json:"points"`
}

// handleTrackHistory returns the persisted centroids of a track, which
// outlive eviction from the live store. session defaults to the running one.
func (ws *WebServer) handleTrackHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("id"), 10, 64)
	if err != nil || id <= 0 {
		ws.writeJSONError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	sessionID := q.Get("session")
	if sessionID == "" {
		sessionID = ws.sessionID
	}
	points, err := ws.db.TrackHistory(sessionID, id)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(points) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no stored history for track %d", id))
		return
	}
	writeJSON(w, http.StatusOK, trackHistoryResponse{SessionID: sessionID, TrackID: id, Points: points})
}

func (ws *WebServer) handleSession(w http.ResponseWriter, id string) {
	s, err := ws.db.GetSession(id)
	if errors.Is(err, db.ErrSessionNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tracks, err := ws.db.ListTracks(id)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tracks == nil {
		tracks = []*db.TrackRecord{}
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: s, Tracks: tracks})
}

// handleCounts returns the stored per-class counts of one frame.
func (ws *WebServer) handleCounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	frame, err := strconv.ParseInt(q.Get("frame"), 10, 64)
	if err != nil || frame <= 0 {
		ws.writeJSONError(w, http.StatusBadRequest, "frame must be a positive integer")
		return
	}
	sessionID := q.Get("session")
	if sessionID == "" {
		sessionID = ws.sessionID
	}
	counts, err := ws.db.ClassCounts(sessionID, frame)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"frame":      frame,
		"counts":     counts,
	})
}
