package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dfmap/dfmap/internal/api"
	"github.com/dfmap/dfmap/internal/config"
	"github.com/dfmap/dfmap/internal/engine"
	"github.com/dfmap/dfmap/internal/feed"
	"github.com/dfmap/dfmap/internal/influx"
	"github.com/dfmap/dfmap/internal/logging"
	"github.com/dfmap/dfmap/internal/monitor"
	intOtel "github.com/dfmap/dfmap/internal/otel"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const serviceName = "dfmap"

// Version is set at build time.
var Version = "dev"

var cli struct {
	Config   string `short:"c" help:"Directory holding ${config_file}." default:"." type:"path"`
	LogLevel string `help:"Overrides logLevel from the config file."`
}

func main() {
	kong.Parse(&cli,
		kong.Name(serviceName),
		kong.Description("Direction-finding map engine and rendering feed."),
		kong.Vars{"config_file": config.FileName},
	)
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	sessionStart := time.Now()

	slogManager := logging.NewSlogManager()
	logger := slogManager.Setup(logging.Options{Level: "info"})

	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("Failed to load .env", "error", err)
	}
	if err := config.Load(cli.Config); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
	if cli.LogLevel != "" {
		viper.Set("logLevel", cli.LogLevel)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, serviceName, sessionStart)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	otelProvider := setupOTel(logger, logsDir, sessionStart)

	var graylog io.WriteCloser
	if config.GetBool("graylog.enabled") {
		graylog, err = logging.NewGraylogWriter(config.GetString("graylog.address"))
		if err != nil {
			logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			defer graylog.Close()
		}
	}

	// the engine is created after the logger, so records read its session
	// attributes through this pointer
	var current atomic.Pointer[engine.Engine]
	logger = slogManager.Setup(logging.Options{
		Level:    config.GetString("logLevel"),
		File:     logFile,
		Console:  os.Stdout,
		Graylog:  graylog,
		Provider: otelProvider.LoggerProvider(),
		Context: func() []slog.Attr {
			if e := current.Load(); e != nil {
				return e.LogAttrs()
			}
			return nil
		},
	})
	logger.Info("Logging to file", "path", logPath, "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	points := setupInflux(ctx, logger, logFile, logsDir, sessionStart)
	if points != nil {
		defer points.Close()
	}

	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.Timeout)
	if err := client.Healthcheck(ctx); err != nil {
		logger.Warn("Signal backend is not reachable yet", "url", apiCfg.ServerURL, "error", err)
	}

	staticRFFs, err := config.GetStaticRFFs()
	if err != nil {
		logger.Error("Invalid rffs in config, ignoring them", "error", err)
	}

	// sync failures arrive on request goroutines, possibly before the hub exists
	var noticeHub atomic.Pointer[feed.Hub]
	signals := api.NewSignals(client, logger.With("component", "signals"), func(err error) {
		if h := noticeHub.Load(); h != nil {
			h.Notice(err)
		}
	})

	metrics, err := monitor.NewCollector(nil)
	if err != nil {
		logger.Warn("Prometheus metrics disabled", "error", err)
	}

	deps := engine.Dependencies{
		Config:     config.GetEngineConfig(),
		Backend:    client,
		Signals:    signals,
		StaticRFFs: staticRFFs,
		Metrics:    metrics,
		Logger:     logger,
	}
	if points != nil {
		deps.Points = points
	}
	eng, err := engine.New(deps)
	if err != nil {
		return err
	}
	current.Store(eng)

	feedCfg := config.GetFeedConfig()
	hub := feed.NewHub(eng, logger.With("component", "feed"), feedCfg.Interval)
	noticeHub.Store(hub)
	eng.OnNotice(hub.Notice)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	go hub.Run(ctx)

	router := chi.NewRouter()
	router.Mount("/", hub.Router())
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler())
	}
	srv := &http.Server{
		Addr:              feedCfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Feed listening", "addr", feedCfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("Feed server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Feed server shutdown", "error", err)
	}
	eng.Close()
	signals.Wait()

	if err := slogManager.Flush(shutdownCtx); err != nil {
		logger.Warn("Failed to flush logs", "error", err)
	}
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shut down OTel", "error", err)
	}
	return nil
}

// setupOTel returns nil when telemetry is disabled or fails to start; the
// provider's methods are nil-safe.
func setupOTel(logger *slog.Logger, logsDir string, sessionStart time.Time) *intOtel.Provider {
	cfg := config.GetOTelConfig()
	if !cfg.Enabled {
		return nil
	}

	otelPath := filepath.Join(logsDir, fmt.Sprintf("%s.otel.%s.jsonl", serviceName, sessionStart.Format("20060102_150405")))
	otelFile, err := os.OpenFile(otelPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logger.Error("Failed to open OTel log file", "error", err, "path", otelPath)
		return nil
	}

	provider, err := intOtel.New(intOtel.Config{
		Enabled:        true,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: Version,
		BatchTimeout:   cfg.BatchTimeout,
		LogWriter:      otelFile,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize OTel provider", "error", err)
		return nil
	}
	logger.Info("OTel provider initialized", "file", otelPath, "endpoint", cfg.Endpoint)
	return provider
}

// setupInflux connects the count monitor's sink. nil means counts are only logged.
func setupInflux(ctx context.Context, logger *slog.Logger, logFile io.Writer, logsDir string, sessionStart time.Time) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(logFile, zerolog.ConsoleWriter{Out: os.Stdout})).
		With().Timestamp().Str("component", "influx").Logger().
		Level(zerologLevel(config.GetString("logLevel")))

	backup := filepath.Join(logsDir, fmt.Sprintf("%s.influx.%s.lp.gz", serviceName, sessionStart.Format("20060102_150405")))
	m := influx.NewManager(cfg, zl, backup)
	if err := m.Connect(ctx); err != nil {
		logger.Error("Failed to set up InfluxDB", "error", err)
		return nil
	}
	return m
}

func zerologLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
