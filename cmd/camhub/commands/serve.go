package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crosslabs/camhub/internal/api"
	"github.com/crosslabs/camhub/internal/broker"
	"github.com/crosslabs/camhub/internal/config"
	"github.com/crosslabs/camhub/internal/control"
	"github.com/crosslabs/camhub/internal/inventory"
	"github.com/crosslabs/camhub/internal/logger"
	"github.com/crosslabs/camhub/internal/ptz"
	"github.com/crosslabs/camhub/internal/snapshot"
	"github.com/crosslabs/camhub/internal/source"
	"github.com/crosslabs/camhub/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camhub broker",
	Long: `Start the camhub broker: the TCP/WebSocket control listener, the
gated MJPEG streaming endpoint, and the REST API.`,
	Example: `  # Start with the default config
  camhub serve

  # Start on custom ports
  camhub serve --http-port 9090 --control-port 9001

  # Allow up to 8 cameras to stream at once
  camhub serve --max-streams 8

  # Start with debug logging
  camhub serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Flag overrides
	if viper.IsSet("http_port") && viper.GetInt("http_port") > 0 {
		configMgr.SetHTTPPort(viper.GetInt("http_port"))
	}
	if viper.IsSet("control_port") && viper.GetInt("control_port") > 0 {
		configMgr.SetControlPort(viper.GetInt("control_port"))
	}
	if viper.IsSet("max_streams") && viper.GetInt("max_streams") > 0 {
		configMgr.SetMaxStreams(viper.GetInt("max_streams"))
	}
	if viper.IsSet("log_level") && viper.GetString("log_level") != "" {
		configMgr.SetLogLevel(viper.GetString("log_level"))
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("serve")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Int("cameras", len(cfg.Cameras)).
		Int("max_streams", cfg.MaxStreams).
		Msg("Starting camhub")

	if len(cfg.Cameras) == 0 {
		log.Warn().Msg("No cameras configured; add cameras to the config file")
	}

	// Shared broker state
	inv := inventory.NewStore(cfg.Cameras)
	locks := broker.NewLockTable()
	admission := broker.NewAdmissionTable(cfg.MaxStreams)

	// Collaborators
	commander := ptz.NewClient(3 * time.Second)
	opener := &source.MJPEGOpener{}
	relay := broker.NewRelay(locks, inv, commander)
	gate := stream.NewGate(admission, opener, inv)
	snaps := snapshot.NewService(opener, inv, cfg.SnapshotDir)

	handler := &control.Handler{
		Locks:     locks,
		Relay:     relay,
		Inventory: inv,
		Snapshots: snaps,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Control listener
	ctrlServer := control.NewServer(fmt.Sprintf(":%d", cfg.ControlPort), handler)
	if err := ctrlServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control listener: %w", err)
	}

	// HTTP server
	apiServer := api.NewServer(inv, locks, admission, gate, snaps, handler)
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Int("control_port", cfg.ControlPort).
		Msg("camhub is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("Shutting down gracefully")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server error")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	gate.Stop()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := ctrlServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Control shutdown incomplete")
	}

	return nil
}
