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
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dfmap/dfmap/internal/callerapi"
	"github.com/dfmap/dfmap/internal/config"
	"github.com/dfmap/dfmap/internal/logging"
	"github.com/dfmap/dfmap/internal/storage"
	"github.com/rs/zerolog"
)

var cli struct {
	Config  string `short:"c" help:"Directory holding ${config_file}." default:"." type:"path"`
	Listen  string `help:"Overrides server.listen."`
	Storage string `help:"Overrides storage.type (memory, badger, sqlite or postgres)."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("signal-server"),
		kong.Description("Serves caller records and receiver stations under /caller/."),
		kong.Vars{"config_file": config.FileName},
	)
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	envErr := config.LoadDotEnv()
	configErr := config.Load(cli.Config)

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}}
	if config.GetBool("graylog.enabled") {
		graylog, err := logging.NewGraylogWriter(config.GetString("graylog.address"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		} else {
			defer graylog.Close()
			writers = append(writers, graylog)
		}
	}
	level, err := zerolog.ParseLevel(config.GetString("logLevel"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).
		With().Timestamp().Str("service", "signal-server").Logger()

	// libraries logging through slog share the same output
	slog.SetDefault(slog.New(logging.NewZerologHandler(log)))

	if envErr != nil {
		log.Warn().Err(envErr).Msg("Failed to load .env")
	}
	if configErr != nil {
		log.Warn().Err(configErr).Msg("Failed to load config, using defaults!")
	}

	storageCfg := config.GetStorageConfig()
	if cli.Storage != "" {
		storageCfg.Type = cli.Storage
	}
	store, err := storage.NewBackend(storageCfg, config.GetDBConfig(), log.With().Str("component", "storage").Logger())
	if err != nil {
		return fmt.Errorf("failed to create %s storage: %w", storageCfg.Type, err)
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to init %s storage: %w", storageCfg.Type, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close storage")
		}
	}()
	log.Info().Str("type", storageCfg.Type).Msg("Storage ready")

	listen := config.GetServerConfig().Listen
	if cli.Listen != "" {
		listen = cli.Listen
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           callerapi.New(store, log.With().Str("component", "http").Logger()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", listen).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
