// Package main is the entry point for the multiroom audio backend.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/soundmesh/multiroom-audio-backend/internal/app"
	"github.com/soundmesh/multiroom-audio-backend/internal/audio"
	"github.com/soundmesh/multiroom-audio-backend/internal/config"
	"github.com/soundmesh/multiroom-audio-backend/internal/identity"
	"github.com/soundmesh/multiroom-audio-backend/internal/metadata"
	"github.com/soundmesh/multiroom-audio-backend/internal/provider"
	"github.com/soundmesh/multiroom-audio-backend/internal/state"
	"github.com/soundmesh/multiroom-audio-backend/internal/supervisor"
	"github.com/soundmesh/multiroom-audio-backend/internal/transport/rest"
	"github.com/soundmesh/multiroom-audio-backend/internal/transport/socketio"
	"github.com/soundmesh/multiroom-audio-backend/internal/version"
)

func main() {
	// Command line flags; the environment (and .env) provides the rest.
	debug := flag.Bool("debug", false, "Enable debug logging")
	noRestore := flag.Bool("no-restore", false, "Skip restoring players from saved state")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	settings := config.LoadSettings()

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Multi-Room Audio Player Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Int("port", settings.Port).
		Str("config_dir", settings.ConfigDir).
		Str("log_dir", settings.LogDir).
		Msg("Configuration")

	if err := os.MkdirAll(settings.LogDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", settings.LogDir).Msg("Failed to create log directory")
	}

	// Create services
	store, err := config.NewStore(settings.ConfigFile())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open player config store")
	}

	id, err := identity.NewService(settings.ConfigDir + "/identity.json")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize host identity")
	}

	ctrl := audio.NewController(settings.WindowsMode)

	registry := provider.NewRegistry()
	registry.Register(provider.NewSqueezelite(ctrl, settings))
	registry.Register(provider.NewSendspin(ctrl))
	if t, ok := registry.DefaultAvailableType(); ok {
		log.Info().Str("provider", t).Msg("Default available provider")
	} else {
		log.Warn().Msg("No player binaries found on PATH, players will fail to start")
	}

	super := supervisor.New(supervisor.Options{LogDir: settings.LogDir})
	meta := metadata.NewManager()
	stateStore := state.NewStore(settings.StateFile())

	application := app.New(settings, store, ctrl, registry, super, meta, stateStore, id)

	// Create Socket.io server
	socketServer, err := socketio.NewServer(application)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketServer.StartStatusMonitor(ctx)
	go application.PeriodicStateSave(ctx)
	if !*noRestore {
		go application.RestoreState(ctx)
	}

	// Setup HTTP server: gin handles the REST API, the Socket.io server
	// keeps its own endpoint.
	router := rest.NewRouter(application)
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", socketServer)
	mux.Handle("/", router)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(settings.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()
		application.Shutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
