package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/trajectory.report/internal/config"
	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/detection"
	"github.com/banshee-data/trajectory.report/internal/monitor"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/publish"
	"github.com/banshee-data/trajectory.report/internal/render"
	"github.com/banshee-data/trajectory.report/internal/session"
	"github.com/banshee-data/trajectory.report/internal/timeutil"
	"github.com/banshee-data/trajectory.report/internal/version"
)

var (
	configFile   = flag.String("config", "", "Path to tuning JSON (built-in defaults when empty)")
	input        = flag.String("input", "-", "Detector output as JSON Lines, or - for stdin")
	dbPath       = flag.String("db", "", "SQLite database for sessions and tracks (empty disables)")
	overlayDir   = flag.String("overlay-dir", "", "Directory for per-frame overlay PNGs (empty disables)")
	background   = flag.String("background", "", "Image drawn under every overlay frame")
	plotPath     = flag.String("plot", "", "Write the session trajectory plot to this file")
	htmlPath     = flag.String("html", "", "Write an interactive trajectory chart to this HTML file")
	frameLog     = flag.String("framelog", "", "Write a protobuf frame log to this file")
	redisURL     = flag.String("redis-url", "", "Publish frames to Redis (redis://host:port/db)")
	redisChannel = flag.String("redis-channel", publish.DefaultChannel, "Redis channel for frame publishing")
	listen       = flag.String("listen", "", "HTTP listen address for the monitor and /debug/ (empty disables)")
	grpcListen   = flag.String("grpc-listen", "", "gRPC health service listen address (empty disables)")
	hold         = flag.Bool("hold", false, "Keep servers running after the input ends until interrupted")
	quiet        = flag.Bool("quiet", false, "Mute tracker and sink diagnostics; the summary is still printed")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// options mirrors the command-line flags so run can be driven from tests.
type options struct {
	ConfigFile   string
	Input        string
	DBPath       string
	OverlayDir   string
	Background   string
	PlotPath     string
	HTMLPath     string
	FrameLog     string
	RedisURL     string
	RedisChannel string
	Listen       string
	GRPCListen   string
	Hold         bool
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("trajectory %s\n", version.String())
		return
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		ConfigFile:   *configFile,
		Input:        *input,
		DBPath:       *dbPath,
		OverlayDir:   *overlayDir,
		Background:   *background,
		PlotPath:     *plotPath,
		HTMLPath:     *htmlPath,
		FrameLog:     *frameLog,
		RedisURL:     *redisURL,
		RedisChannel: *redisChannel,
		Listen:       *listen,
		GRPCListen:   *grpcListen,
		Hold:         *hold,
	}
	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("trajectory: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// run processes one detection stream and writes the session summary as
// JSON to stdout.
func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}

	var in io.Reader = stdin
	source := "stdin"
	if opts.Input != "" && opts.Input != "-" {
		f, err := os.Open(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in, source = f, opts.Input
	}
	// Closing the input unblocks a pending read when the run is cancelled.
	if c, ok := in.(io.Closer); ok {
		stopClose := context.AfterFunc(ctx, func() { c.Close() })
		defer stopClose()
	}

	metrics := monitoring.NewMetrics()
	sess := session.New(session.Options{
		Source:  source,
		Config:  cfg,
		Clock:   timeutil.RealClock{},
		Metrics: metrics,
	})
	log.Printf("session %s reading %s", sess.ID, source)

	var database *db.DB
	if opts.DBPath != "" {
		database, err = db.NewDB(opts.DBPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	var health *monitor.HealthServer
	if opts.GRPCListen != "" {
		health = monitor.NewHealthServer()
		if err := health.Listen(opts.GRPCListen); err != nil {
			return err
		}
		defer health.Stop()
		log.Printf("gRPC health service on %s", health.Addr())
	}

	var bg image.Image
	if opts.Background != "" {
		bg, err = render.LoadBackground(opts.Background)
		if err != nil {
			return fmt.Errorf("failed to load background: %w", err)
		}
	}
	// A background image sets the frame size.
	overlay := render.NewOverlay(cfg.GetFrameWidth(), cfg.GetFrameHeight(), bg)
	overlay.ShowCounts = cfg.GetOverlayCounts()

	var ws *monitor.WebServer
	if opts.Listen != "" {
		ws, err = monitor.NewWebServer(monitor.WebServerConfig{
			Address:   opts.Listen,
			SessionID: sess.ID,
			Tracks:    sess.Tracker(),
			Metrics:   metrics,
			Overlay:   overlay,
			DB:        database,
		})
		if err != nil {
			return err
		}
	}

	// If a later sink fails to set up, the ones already created are
	// finished so the frame log is closed and the stored session ended.
	var sinks []session.Sink
	setupDone := false
	defer func() {
		if setupDone {
			return
		}
		aborted := &session.Summary{SessionID: sess.ID, Source: source, EndedAt: time.Now()}
		for _, sink := range sinks {
			if err := sink.Finish(aborted); err != nil {
				log.Printf("%s: %v", sink.Name(), err)
			}
		}
	}()
	addSink := func(sink session.Sink) {
		sinks = append(sinks, sink)
		sess.AddSink(sink)
	}

	if database != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		sink, err := session.NewDBSink(database, &db.Session{SessionID: sess.ID, Source: source, ConfigJSON: cfgJSON})
		if err != nil {
			return err
		}
		addSink(sink)
	}

	if opts.OverlayDir != "" {
		sink, err := session.NewOverlaySink(opts.OverlayDir, overlay)
		if err != nil {
			return err
		}
		addSink(sink)
	}

	if opts.FrameLog != "" {
		w, err := publish.CreateFrameLog(opts.FrameLog)
		if err != nil {
			return err
		}
		addSink(session.NewFrameLogSink(w))
	}

	if opts.RedisURL != "" {
		p, err := publish.NewRedisPublisher(ctx, opts.RedisURL, opts.RedisChannel)
		if err != nil {
			return err
		}
		addSink(session.NewRedisSink(p))
		log.Printf("publishing frames to redis channel %s", p.Channel())
	}

	if opts.PlotPath != "" {
		addSink(&session.PlotSink{Path: opts.PlotPath})
	}
	if opts.HTMLPath != "" {
		addSink(&session.ChartSink{Path: opts.HTMLPath})
	}
	setupDone = true

	// Servers outlive the session when -hold is set.
	serverCtx, stopServers := context.WithCancel(ctx)
	defer stopServers()
	var wg sync.WaitGroup
	if ws != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(serverCtx); err != nil {
				log.Printf("monitor server: %v", err)
			}
		}()
	}
	if health != nil {
		health.SetServing(true)
	}

	summary, runErr := sess.Run(ctx, detection.NewDecoder(in))
	if health != nil {
		health.SetServing(false)
	}
	if errors.Is(runErr, context.Canceled) {
		log.Printf("session %s interrupted", sess.ID)
		runErr = nil
	}

	if summary != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("failed to write summary: %w", err))
		}
	}

	if opts.Hold && ctx.Err() == nil {
		log.Printf("input finished; holding servers until interrupted")
		<-ctx.Done()
	}
	stopServers()
	wg.Wait()
	return runErr
}
