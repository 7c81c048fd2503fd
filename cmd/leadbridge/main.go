package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadbridge/internal/auth"
	"leadbridge/internal/config"
	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
	"leadbridge/internal/forward"
	"leadbridge/internal/metrics"
	"leadbridge/internal/models"
	"leadbridge/internal/retry"
	"leadbridge/internal/service"
	"leadbridge/internal/tracing"
	"leadbridge/internal/translate"
	"leadbridge/pkg/waha"
	"leadbridge/pkg/waha/types"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes phone numbers and names)")
	configPath = flag.String("config", "config.json", "Path to optional JSON configuration file")
	envFile    = flag.String("env-file", ".env", "Path to optional .env file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("leadbridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting leadbridge")

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel(logger, cfg.LogLevel, *verbose)

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = Version
	}
	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize tracing")
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shutdown tracing")
		}
	}()

	gateway := waha.NewClient(types.ClientConfig{
		BaseURL:            cfg.Gateway.BaseURL,
		APIKey:             cfg.Gateway.APIKey,
		DefaultSession:     cfg.Gateway.Session,
		Timeout:            time.Duration(cfg.Gateway.TimeoutSec) * time.Second,
		BreakerMaxFailures: uint32(cfg.Gateway.BreakerMaxFailures),
		BreakerCooldown:    time.Duration(cfg.Gateway.BreakerCooldownSec) * time.Second,
	}, logger)

	forwarder := forward.New(forward.Config{
		LeadCaptureURL:       config.LeadCaptureURL(cfg),
		WhatsAppResponsesURL: config.WhatsAppResponsesURL(cfg),
		SigningSecret:        cfg.Downstream.SigningSecret,
		Timeout:              time.Duration(cfg.Downstream.TimeoutSec) * time.Second,
	}, logger)

	bridge := service.NewBridge(gateway, forwarder, translate.New(cfg.Translate.DefaultCountryCode), service.BridgeConfig{
		DedupTTL: time.Duration(cfg.Dedup.TTLMinutes) * time.Minute,
	}, logger)

	var monitor *service.SessionMonitor
	if cfg.Gateway.SessionCheckSec > 0 {
		monitor = service.NewSessionMonitor(gateway, service.SessionMonitorConfig{
			Session:        cfg.Gateway.Session,
			CheckInterval:  time.Duration(cfg.Gateway.SessionCheckSec) * time.Second,
			StartupTimeout: time.Duration(cfg.Gateway.SessionStartupTimeoutSec) * time.Second,
		}, logger)
		monitor.Start(ctx)
		defer monitor.Stop()
	} else {
		logger.Info("Session monitor disabled")
	}

	limiter := NewRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowSec)*time.Second)

	server := NewServer(cfg.Server, bridge, auth.NewAuthenticator(cfg.Auth), limiter, logger, *verbose)
	server.beforeMetrics = func() {
		metrics.SetGauge(metrics.RateLimiterKeys, float64(limiter.Keys()), nil, "Source ids tracked by the rate limiter")
		stats := gateway.BreakerStats()
		metrics.SetGauge(metrics.BreakerState, float64(stats.State), map[string]string{"name": stats.Name}, "Gateway circuit breaker state (0 closed, 1 open, 2 half-open)")
		if monitor != nil {
			metrics.SetGauge(metrics.SessionStartFailures, float64(monitor.ConsecutiveFailures()), nil, "Consecutive failed gateway session start requests")
		}
	}

	if cfg.Server.PublicWebhookURL != "" {
		go registerWebhook(ctx, bridge, cfg.Server, logger)
	} else {
		logger.Info("PUBLIC_WEBHOOK_URL not set, skipping gateway webhook registration")
	}

	startConfigWatcher(ctx, *configPath, limiter, logger)

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// applyLogLevel sets the configured level. -verbose forces debug.
func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - personal data will be logged")
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

// registerWebhook subscribes this service to gateway events. Failure is
// logged, not fatal: the gateway may be configured by hand.
func registerWebhook(ctx context.Context, bridge *service.Bridge, cfg models.ServerConfig, logger *logrus.Logger) {
	backoff := retry.NewBackoff(retry.DefaultBackoffConfig())
	if err := bridge.RegisterWebhook(ctx, cfg.PublicWebhookURL, cfg.WebhookEvents, backoff); err != nil {
		errors.LogError(logger, err, "Failed to register gateway webhook", logrus.Fields{
			service.LogFieldEndpoint: cfg.PublicWebhookURL,
		})
	}
}

// startConfigWatcher reloads rate limits and log level when the config
// file changes. Without a config file there is nothing to watch.
func startConfigWatcher(ctx context.Context, path string, limiter *RateLimiter, logger *logrus.Logger) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); stderrors.Is(err, fs.ErrNotExist) {
		logger.WithField("path", path).Debug("No config file, hot reload disabled")
		return
	}

	watcher := config.NewConfigWatcher(path, logger)
	watcher.OnConfigChange(func(cfg *models.Config) {
		limiter.SetLimit(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowSec)*time.Second)
		applyLogLevel(logger, cfg.LogLevel, *verbose)
	})

	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()
}
