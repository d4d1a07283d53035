// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"

	"github.com/soundslot/jamsession/internal/api/rest"
	"github.com/soundslot/jamsession/internal/api/stream"
	"github.com/soundslot/jamsession/internal/app/queue"
	"github.com/soundslot/jamsession/internal/app/reaction"
	"github.com/soundslot/jamsession/internal/app/session"
	"github.com/soundslot/jamsession/internal/infra/config"
	"github.com/soundslot/jamsession/internal/infra/logger"
	"github.com/soundslot/jamsession/internal/infra/spotify"
	"github.com/soundslot/jamsession/internal/store"
	"github.com/soundslot/jamsession/internal/store/memstore"
	"github.com/soundslot/jamsession/internal/store/valkeystore"
)

var (
	app        = kingpin.New("jamsession-server", "Jam Session collaborative listening server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	st, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var finder rest.TrackFinder
	if cfg.Spotify.Enabled() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		finder = client
		zlog.Info().Msgf("Track catalog enabled: market=%s", cfg.Spotify.Market)
	} else {
		zlog.Info().Msg("Track catalog not configured, clients must supply full track metadata")
	}

	manager := session.NewManager(st, cfg.Session.DefaultMaxParticipants)
	queues := queue.NewHub(st)
	defer queues.Close()
	throttle := reaction.NewThrottle(cfg.Reaction.Cooldown())

	handler := rest.NewHandler(st, manager, queues, throttle, finder)
	router := rest.NewRouter(handler)

	if feed, ok := st.(store.Feed); ok {
		ws := stream.NewHandler(feed)
		router.HandleFunc("/ws/sessions/{id}", ws.Serve).Methods(http.MethodGet)
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	grace := time.Duration(cfg.Server.ShutdownGraceMs) * time.Millisecond
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// openStore selects the Valkey store when an address is configured and the
// in-memory store otherwise.
func openStore(cfg *config.Config) (store.Store, func(), error) {
	if cfg.Valkey.Addr == "" {
		zlog.Warn().Msg("No Valkey address configured, using in-memory store (state is lost on restart)")
		return memstore.New(), func() {}, nil
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Valkey.Addr},
		Password:    cfg.Valkey.Password,
		SelectDB:    cfg.Valkey.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}
	zlog.Info().Msgf("Connected to Valkey: addr=%s db=%d", cfg.Valkey.Addr, cfg.Valkey.DB)
	return valkeystore.New(client), client.Close, nil
}
