// Package main provides the trackd daemon entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/trackd/internal/api/connect"
	"github.com/osa030/trackd/internal/app/admission"
	"github.com/osa030/trackd/internal/app/emitter"
	"github.com/osa030/trackd/internal/app/music"
	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/app/service"
	"github.com/osa030/trackd/internal/infra/bridge"
	"github.com/osa030/trackd/internal/infra/config"
	"github.com/osa030/trackd/internal/infra/host"
	"github.com/osa030/trackd/internal/infra/logger"
	"github.com/osa030/trackd/internal/infra/spotify"
)

var (
	app        = kingpin.New("trackd", "trackd background playback service")
	configPath = app.Flag("config", "Path to config file").Default("config/trackd.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	app.Command("start", "Start the service host (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		fmt.Printf("Config OK: backend=%s addr=%s tick=%v\n", cfg.Player.Backend, cfg.Server.Addr, cfg.TickInterval())
		return
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
	clock := clockwork.NewRealClock()

	newPlayer, resolver, err := playerBackend(ctx, cfg, clock)
	if err != nil {
		return err
	}

	em := emitter.New(cfg.Service.EventBuffer, clock)
	runtime := bridge.New()
	process := host.NewProcess()

	options := music.Options{
		StopWithApp:  cfg.Player.StopWithApp,
		JumpInterval: cfg.JumpInterval(),
	}
	svc := service.New(service.Config{
		Clock: clock,
		Notification: admission.Notification{
			ID:        cfg.Service.Notification.ID,
			ChannelID: cfg.Service.Notification.ChannelID,
		},
		TickInterval: cfg.TickInterval(),
		HeadlessTask: service.HeadlessTaskConfig{
			Name:                cfg.Service.HeadlessTask.Name,
			Timeout:             cfg.HeadlessTaskTimeout(),
			AllowedInForeground: cfg.HeadlessTaskAllowedInForeground(),
		},
	}, em, runtime, process, func(s *service.Service) (service.Manager, error) {
		return music.NewManager(s, newPlayer(), options), nil
	})
	process.SetService(svc)

	// The headless task applies remote events to whichever manager is bound.
	// The subscription is opened before the service can start the task.
	remote := em.Subscribe()
	runtime.Register(cfg.Service.HeadlessTask.Name, music.RemoteTask(remote.C, func() (*music.Manager, bool) {
		m, ok := svc.Manager()
		if !ok {
			return nil, false
		}
		mm, ok := m.(*music.Manager)
		return mm, ok
	}))
	runtime.OnTaskFinished(svc.HeadlessTaskFinished)

	handler := apiconnect.NewHandler(apiconnect.Services{
		Host:   apiconnect.NewHostService(svc),
		Player: apiconnect.NewPlayerService(svc, resolver),
		Event:  apiconnect.NewEventService(svc, em, runtime),
	}, cfg.Server.Token)
	if cfg.Server.Token == "" {
		zlog.Warn().Msg("Server token is empty, authentication is disabled")
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cfg.Server.Addr)
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s backend=%s", listener.Addr(), cfg.Player.Backend)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// A nil channel never fires, so a self-stop only exits when configured
	var stops <-chan struct{}
	if cfg.Server.ExitOnStop {
		stops = process.Stops()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-stops:
		zlog.Info().Msg("Service stopped itself, shutting down...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Release the runtime first so open event streams end
	svc.Destroy()
	em.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	runtime.Close()
	process.Close()

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// playerBackend returns the player constructor for the configured backend
// and the reference resolver, if the backend has one.
func playerBackend(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (func() music.Player, apiconnect.Resolver, error) {
	switch cfg.Player.Backend {
	case config.BackendSpotify:
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
			DeviceID:     cfg.Spotify.DeviceID,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create Spotify client")
		}
		newPlayer := func() music.Player {
			return spotify.NewPlayer(client, spotify.PlayerConfig{
				Clock:          clock,
				RequestTimeout: cfg.SpotifyRequestTimeout(),
				EventBuffer:    cfg.Service.EventBuffer,
			})
		}
		return newPlayer, client, nil

	default:
		newPlayer := func() music.Player {
			return playback.NewController(playback.Config{
				Clock:       clock,
				EventBuffer: cfg.Service.EventBuffer,
			})
		}
		return newPlayer, nil, nil
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
