package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/publish"
	"github.com/banshee-data/trajectory.report/internal/session"
)

func init() {
	monitoring.SetLogger(nil)
}

// Two objects walking right at 10 px per frame, plus one malformed box.
const sampleInput = `{"frame":0,"boxes":[[0,0,20,20],[100,100,120,120]],"classes":[0,2],"names":{"0":"person","2":"car"}}
{"frame":1,"boxes":[[10,0,30,20],[110,100,130,120],[1,2]],"classes":[0,2,0]}
{"frame":2,"boxes":[[20,0,40,20],[120,100,140,120]],"classes":[0,2]}

{"frame":3,"boxes":[[30,0,50,20],[130,100,150,120]],"classes":[0,2]}
{"frame":4,"boxes":[[40,0,60,20],[140,100,160,120]],"classes":[0,2]}
{"frame":5,"boxes":[[50,0,70,20],[150,100,170,120]],"classes":[0,2]}
`

func decodeSummary(t *testing.T, out []byte) session.Summary {
	t.Helper()
	var s session.Summary
	require.NoError(t, json.Unmarshal(out, &s), "stdout: %s", out)
	return s
}

func TestRun_Stdin(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{Input: "-"}, strings.NewReader(sampleInput), &out)
	require.NoError(t, err)

	s := decodeSummary(t, out.Bytes())
	assert.Equal(t, int64(6), s.Frames)
	assert.Equal(t, int64(1), s.Malformed)
	assert.Equal(t, "stdin", s.Source)
	assert.Equal(t, int64(2), s.TracksCreated)
	assert.Equal(t, 2, s.Active)
}

func TestRun_AllOutputs(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "detections.jsonl")
	require.NoError(t, os.WriteFile(inPath, []byte(sampleInput), 0o644))

	opts := options{
		Input:        inPath,
		DBPath:       filepath.Join(dir, "trajectory.db"),
		OverlayDir:   filepath.Join(dir, "frames"),
		PlotPath:     filepath.Join(dir, "tracks.png"),
		HTMLPath:     filepath.Join(dir, "tracks.html"),
		FrameLog:     filepath.Join(dir, "frames.pb"),
		RedisChannel: publish.DefaultChannel,
		Listen:       "127.0.0.1:0",
		GRPCListen:   "127.0.0.1:0",
	}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, nil, &out))
	s := decodeSummary(t, out.Bytes())
	assert.Equal(t, inPath, s.Source)

	for i := int64(0); i < 6; i++ {
		assert.FileExists(t, session.OverlayPath(opts.OverlayDir, i))
	}
	assert.FileExists(t, opts.PlotPath)
	html, err := os.ReadFile(opts.HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "track 1")

	frames, err := publish.ReadFrameLog(opts.FrameLog)
	require.NoError(t, err)
	require.Len(t, frames, 6)
	assert.Equal(t, s.SessionID, frames[0].SessionID)

	database, err := db.NewDB(opts.DBPath)
	require.NoError(t, err)
	defer database.Close()

	stored, err := database.GetSession(s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), stored.Frames)
	assert.NotNil(t, stored.EndedAt)

	tracks, err := database.ListTracks(s.SessionID)
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := run(ctx, options{Input: "-"}, strings.NewReader(sampleInput), &out)
	assert.NoError(t, err)
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing config", func(t *testing.T) {
		err := run(context.Background(), options{ConfigFile: filepath.Join(dir, "nope.json")}, strings.NewReader(""), &bytes.Buffer{})
		assert.ErrorContains(t, err, "failed to stat config file")
	})

	t.Run("missing input", func(t *testing.T) {
		err := run(context.Background(), options{Input: filepath.Join(dir, "nope.jsonl")}, nil, &bytes.Buffer{})
		assert.ErrorContains(t, err, "failed to open input")
	})

	t.Run("empty input", func(t *testing.T) {
		var out bytes.Buffer
		err := run(context.Background(), options{Input: "-"}, strings.NewReader(""), &out)
		assert.ErrorIs(t, err, session.ErrNoFrames)
	})

	t.Run("bad json", func(t *testing.T) {
		err := run(context.Background(), options{Input: "-"}, strings.NewReader("{\"boxes\":[]}\nnot json\n"), &bytes.Buffer{})
		assert.ErrorContains(t, err, "line 2")
	})

	t.Run("config from file", func(t *testing.T) {
		cfgPath := filepath.Join(dir, "tuning.json")
		require.NoError(t, os.WriteFile(cfgPath, []byte(`{"max_match_distance": 5}`), 0o644))
		var out bytes.Buffer
		require.NoError(t, run(context.Background(), options{ConfigFile: cfgPath, Input: "-"}, strings.NewReader(sampleInput), &out))
		// 10 px steps exceed a 5 px gate, so every detection starts a new track.
		s := decodeSummary(t, out.Bytes())
		assert.Equal(t, int64(12), s.TracksCreated)
	})
}

func TestRun_SetupFailureFinishesEarlierSinks(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		Input:        "-",
		DBPath:       filepath.Join(dir, "trajectory.db"),
		FrameLog:     filepath.Join(dir, "frames.pb"),
		RedisURL:     "not-a-redis-url",
		RedisChannel: publish.DefaultChannel,
	}

	err := run(context.Background(), opts, strings.NewReader(sampleInput), &bytes.Buffer{})
	require.Error(t, err)

	frames, err := publish.ReadFrameLog(opts.FrameLog)
	require.NoError(t, err)
	assert.Empty(t, frames)

	database, err := db.NewDB(opts.DBPath)
	require.NoError(t, err)
	defer database.Close()

	sessions, err := database.ListSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].EndedAt, "aborted session must be ended")
	assert.Equal(t, int64(0), sessions[0].Frames)
}
