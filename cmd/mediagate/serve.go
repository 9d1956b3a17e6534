package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haldane/mediagate/internal/auth"
	"github.com/haldane/mediagate/internal/config"
	"github.com/haldane/mediagate/internal/gateway"
	"github.com/haldane/mediagate/internal/mediacache"
	"github.com/haldane/mediagate/internal/metrics"
	"github.com/haldane/mediagate/internal/obfuscate"
	"github.com/haldane/mediagate/internal/quota"
	"github.com/haldane/mediagate/internal/session"
	"github.com/haldane/mediagate/internal/storage"
	"github.com/haldane/mediagate/internal/storage/bolt"
	"github.com/haldane/mediagate/internal/storage/redis"
	"github.com/haldane/mediagate/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mediagate server",
	Long:  `Start the mediagate gateway and metrics endpoints.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting mediagate")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	// Media cache manager
	codec := obfuscate.New(cfg.Cache.ObfuscationKey)
	manager, err := mediacache.NewManager(store.Cache(), codec, mediacache.Config{
		TTL:          parseDuration(cfg.Cache.TTL, 30*time.Minute),
		Obfuscate:    cfg.Cache.Obfuscate,
		BaseURL:      cfg.Cache.BaseURL,
		FetchTimeout: parseDuration(cfg.Cache.FetchTimeout, 30*time.Second),
		HotEntries:   cfg.Cache.HotEntries,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create media cache manager: %w", err)
	}

	// Play-quota counter
	resetTime, err := time.Parse("15:04", cfg.Quota.DailyResetTime)
	if err != nil {
		return fmt.Errorf("invalid quota.daily_reset_time: %w", err)
	}
	counter := quota.NewCounter(store.Quota(), quota.Config{
		MaxPlaysPerDay:  cfg.Quota.MaxPlaysPerDay,
		DailyResetTime:  resetTime,
		IntegritySecret: cfg.Quota.IntegritySecret,
	}, logger)

	// Session guard and auth
	maxSession := parseDuration(cfg.Gate.MaxSession, 2*time.Hour)
	guard := session.NewGuard(session.Config{
		MaxSession:  maxSession,
		IdleTimeout: parseDuration(cfg.Gate.IdleTimeout, 15*time.Minute),
	}, logger)
	authService := auth.NewService(cfg.Gate.PasswordHash, cfg.Gate.TokenSecret, maxSession)

	// Gateway server
	gatewayServer := gateway.NewServer(gateway.Config{
		ListenAddr: fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port),
	}, authService, guard, manager, counter, logger)
	if sdListeners.Gateway != nil {
		gatewayServer.SetListener(sdListeners.Gateway)
	}
	if err := gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	// Metrics server
	metricsServer := metrics.NewServer(fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort), logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Notify systemd that startup is complete
	if sdListeners.Activated {
		if err := systemd.NotifyReady(); err != nil {
			logger.Warn().Err(err).Msg("Failed to notify systemd readiness")
		}
	}

	logger.Info().Msg("Mediagate started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	if sdListeners.Activated {
		if err := systemd.NotifyStopping(); err != nil {
			logger.Warn().Err(err).Msg("Failed to notify systemd stopping")
		}
	}

	if err := gatewayServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop metrics server")
	}

	return nil
}

// openStorage opens the configured storage backend.
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return bolt.Open(cfg.Path)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// parseDuration parses a duration string, falling back to a default.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
