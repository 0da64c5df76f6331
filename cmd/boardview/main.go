package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shadowhunters/boardview/internal/api"
	"github.com/shadowhunters/boardview/internal/cache"
	"github.com/shadowhunters/boardview/internal/channel"
	"github.com/shadowhunters/boardview/internal/config"
	"github.com/shadowhunters/boardview/internal/dispatcher"
	"github.com/shadowhunters/boardview/internal/geo"
	"github.com/shadowhunters/boardview/internal/httpapi"
	"github.com/shadowhunters/boardview/internal/influx"
	"github.com/shadowhunters/boardview/internal/layout"
	"github.com/shadowhunters/boardview/internal/logging"
	"github.com/shadowhunters/boardview/internal/monitor"
	intOtel "github.com/shadowhunters/boardview/internal/otel"
	"github.com/shadowhunters/boardview/internal/parser"
	"github.com/shadowhunters/boardview/internal/reconcile"
	"github.com/shadowhunters/boardview/internal/session"
	"github.com/shadowhunters/boardview/internal/storage"
	"github.com/shadowhunters/boardview/internal/transport"
	"github.com/shadowhunters/boardview/internal/worker"
	"github.com/shadowhunters/boardview/pkg/core"

	"github.com/spf13/viper"
	"gorm.io/gorm"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - set at build time via ldflags
var (
	CurrentVersion = "0.0.1"
	BuildDate      = "unknown"

	AppName = "boardview"
)

const (
	inboxSize       = 1024
	shutdownTimeout = 10 * time.Second
)

// app holds every long-lived service of one process.
type app struct {
	startTime time.Time
	configDir string

	slogManager  *logging.SlogManager
	logger       *slog.Logger
	logFile      *os.File
	otelProvider *intOtel.Provider
	closers      []io.Closer

	viewCache  *cache.ViewCache
	sessionCtx *session.Context
	feed       *channel.Fanout[core.ChangeSet]
	dispatch   *dispatcher.Dispatcher
	backend    storage.Backend
	workers    *worker.Manager
	influx     *influx.Manager
	monitor    *monitor.Service
	http       *httpapi.Server
}

func main() {
	if len(os.Args) > 1 {
		if err := runCLI(os.Args[1:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configDir() string {
	if dir := os.Getenv(config.EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "."
}

func run(ctx context.Context) error {
	a := &app{
		startTime:  time.Now(),
		configDir:  configDir(),
		viewCache:  cache.NewViewCache(),
		sessionCtx: session.NewContext(),
		feed:       channel.NewFanout[core.ChangeSet](),
	}
	defer a.feed.Close()

	a.slogManager = logging.NewSlogManager()
	a.slogManager.Setup(nil, "info", nil)
	a.logger = a.slogManager.Logger()

	if err := config.Load(a.configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config", "dir", a.configDir)
	}

	if err := a.setupLogging(); err != nil {
		return err
	}
	defer a.closeLogging()

	if err := a.setupServices(); err != nil {
		return err
	}

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	a.dispatch.Start(dispatchCtx)

	if a.monitor != nil {
		a.monitor.Start()
	}

	errCh := make(chan error, 2)
	a.startTransport(ctx, errCh)
	a.startHTTP(errCh)

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	case err := <-errCh:
		a.logger.Error("Service failed, shutting down", "error", err)
	}

	a.shutdown()
	stopDispatch()
	<-a.dispatch.Done()
	return nil
}

// setupLogging opens the session log file and rebuilds the slog pipeline
// with OTel and Graylog sinks when they are enabled.
func (a *app) setupLogging() error {
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	logPath := logging.LogFilePath(logsDir, AppName, a.startTime)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "path", logPath)
	} else {
		a.logFile = f
	}
	var out io.Writer
	if a.logFile != nil {
		out = a.logFile
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var metricsOut io.Writer
		if f, err := os.Create(filepath.Join(logsDir, AppName+".metrics.json")); err == nil {
			metricsOut = f
			a.closers = append(a.closers, f)
		}
		a.otelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    out,
			MetricWriter: metricsOut,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			a.logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		h, closer, err := logging.NewGELFHandler(graylogCfg.Address, viper.GetString("logLevel"))
		if err != nil {
			a.logger.Warn("Graylog disabled", "error", err)
		} else {
			a.slogManager.AddHandler(h)
			a.closers = append(a.closers, closer)
		}
	}

	a.slogManager.SetContextProvider(a.logContext)

	var provider *sdklog.LoggerProvider
	if a.otelProvider != nil {
		provider = a.otelProvider.LoggerProvider()
	}
	a.slogManager.Setup(out, viper.GetString("logLevel"), provider)
	a.logger = a.slogManager.Logger()
	a.logger.Info("Logging to file", "path", logPath, "version", CurrentVersion, "build", BuildDate)
	return nil
}

// logContext adds the active session to every log record.
func (a *app) logContext() []slog.Attr {
	s, ok := a.sessionCtx.Get()
	if !ok {
		return nil
	}
	seq, players := a.sessionCtx.Stats()
	return []slog.Attr{
		slog.String("session", s.UUID),
		slog.String("viewer", s.ViewerUserID),
		slog.Uint64("seq", seq),
		slog.Int("players", players),
	}
}

func (a *app) closeLogging() {
	if a.otelProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.otelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "otel shutdown:", err)
		}
		cancel()
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

func (a *app) setupServices() error {
	zlog := logging.NewConsoleZerolog(os.Stderr, viper.GetString("logLevel"))

	d, err := dispatcher.New(logging.NewDispatcherLogger(zlog), dispatcher.Buffered(inboxSize))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a.dispatch = d

	a.backend, err = createStorageBackend(config.GetStorageConfig(), a.slogManager, a.startTime)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := a.backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	if viper.GetBool("influx.enabled") {
		a.influx = influx.NewManager(zlog.With().Str("component", "influx").Logger(),
			filepath.Join(viper.GetString("logsDir"), AppName+".influx.gz"))
		if err := a.influx.Connect(context.Background()); err != nil && !errors.Is(err, influx.ErrDisabled) {
			a.logger.Warn("InfluxDB unavailable", "error", err)
		}
	}

	var uploader worker.Uploader
	if url := viper.GetString("api.serverUrl"); url != "" && viper.GetString("api.apiKey") != "" {
		client := api.New(url, viper.GetString("api.apiKey"))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Healthcheck(ctx); err != nil {
			a.logger.Info("Session archive is offline", "error", err)
		} else {
			a.logger.Info("Session archive is online", "url", url)
		}
		cancel()
		uploader = client
	}

	start, err := startSpots()
	if err != nil {
		return err
	}

	a.workers = worker.NewManager(worker.Dependencies{
		Parser: parser.NewParser(a.logger),
		Engine: reconcile.Config{
			Board:      layout.Board(config.GetBoardConfig()),
			StartSpots: start,
		},
		Session:    a.sessionCtx,
		Cache:      a.viewCache,
		Feed:       a.feed,
		Influx:     a.influx,
		LogManager: a.slogManager,
		Uploader:   uploader,
		Tag:        viper.GetString("defaultTag"),
	}, a.backend)
	a.workers.RegisterHandlers(a.dispatch)

	monitorCfg := config.GetMonitorConfig()
	if monitorCfg.Enabled {
		deps := monitor.Dependencies{
			LogManager: a.slogManager,
			Session:    a.sessionCtx,
			Inbox:      a.dispatch.Len,
			Feed:       a.feed,
			Influx:     a.influx,
			StatusDir:  viper.GetString("logsDir"),
			Interval:   monitorCfg.Interval,
		}
		if q, ok := a.backend.(monitor.QueueReporter); ok {
			deps.Queues = q
		}
		if db, ok := a.backend.(interface{ DB() *gorm.DB }); ok {
			deps.DB = db.DB()
		}
		a.monitor = monitor.NewService(deps)
	}
	return nil
}

// startSpots reads board.startSpots ("x,y" per slot) and falls back to the
// stock spots when the key is unset.
func startSpots() ([]core.Point, error) {
	raw := viper.GetStringSlice("board.startSpots")
	if len(raw) == 0 {
		return layout.DefaultStartSpots, nil
	}
	spots, err := geo.PointsFromStrings(raw)
	if err != nil {
		return nil, fmt.Errorf("board.startSpots: %w", err)
	}
	if len(spots) < len(layout.DefaultStartSpots) {
		return nil, fmt.Errorf("board.startSpots: need %d spots, got %d", len(layout.DefaultStartSpots), len(spots))
	}
	return spots, nil
}

func (a *app) startTransport(ctx context.Context, errCh chan<- error) {
	cfg := config.GetTransportConfig()
	if !cfg.Enabled {
		a.logger.Info("Transport disabled")
		return
	}
	for _, cmd := range transport.Commands {
		if !a.dispatch.HasHandler(cmd) {
			errCh <- fmt.Errorf("transport: no handler registered for %q", cmd)
			return
		}
	}
	client := transport.New(transport.Config{URL: cfg.URL, Logger: a.logger}, a.dispatch)
	go func() {
		if err := client.Run(ctx); err != nil {
			errCh <- err
		}
	}()
}

func (a *app) startHTTP(errCh chan<- error) {
	cfg := config.GetHTTPConfig()
	if !cfg.Enabled {
		return
	}
	a.http = httpapi.New(httpapi.Dependencies{
		Cache:      a.viewCache,
		Dispatcher: a.dispatch,
		Feed:       a.feed,
		Logger:     a.logger,
	})
	go func() {
		if err := a.http.ListenAndServe(cfg.Address); err != nil {
			errCh <- err
		}
	}()
}

// shutdown saves the open session and releases everything in reverse order.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.http != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			a.logger.Warn("HTTP shutdown failed", "error", err)
		}
	}

	_, err := a.dispatch.DispatchWait(ctx, dispatcher.Event{Command: worker.CommandSave})
	switch {
	case err == nil:
		a.logger.Info("Session saved")
	case errors.Is(err, worker.ErrNotInitialized):
	default:
		a.logger.Error("Failed to save session", "error", err)
	}

	if a.monitor != nil {
		a.monitor.Stop()
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Error("Failed to close storage backend", "error", err)
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Warn("Failed to close InfluxDB", "error", err)
		}
	}
	if err := a.slogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "log flush:", err)
	}
}
