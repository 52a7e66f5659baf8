// Kestrel - Portfolio risk analytics and alerting for insurance books.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/riskfoundry/kestrel/internal/alerts"
	"github.com/riskfoundry/kestrel/internal/api"
	"github.com/riskfoundry/kestrel/internal/bus"
	"github.com/riskfoundry/kestrel/internal/cache"
	"github.com/riskfoundry/kestrel/internal/domain"
	"github.com/riskfoundry/kestrel/internal/notify"
	"github.com/riskfoundry/kestrel/internal/repository"
	"github.com/riskfoundry/kestrel/internal/scheduler"
	"github.com/riskfoundry/kestrel/internal/weather"
	"github.com/riskfoundry/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Optional .env for local development; missing file is fine
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize notification dispatcher
	notifier := notify.NewDispatcher(logger,
		notify.NewEmailChannel(cfg.Notifier),
		notify.NewWebhookChannel(time.Duration(cfg.Notifier.WebhookTimeout)*time.Second),
	)
	slog.Info("notification dispatcher initialized",
		"email_configured", cfg.Notifier.SMTPHost != "",
	)

	// Initialize CEL expression engine
	expr, err := alerts.NewExpressionEngine()
	if err != nil {
		slog.Error("failed to initialize expression engine", "error", err)
		os.Exit(1)
	}

	// Initialize alert orchestrator
	alertService := alerts.NewService(repo, notifier, expr, busImpl, logger)
	slog.Info("alert service initialized")

	// Initialize weather risk scorer
	weatherClient := weather.NewClient(cfg.Weather, logger)
	scorer := weather.NewScorer(weatherClient, logger)
	slog.Info("weather scorer initialized", "live_fetches", cfg.Weather.APIKey != "")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, cacheImpl, alertService)

		// Organizations to process (comma-separated, empty = global)
		var orgIDs []string
		if envOrgs := os.Getenv("KESTREL_ORGANIZATIONS"); envOrgs != "" {
			for _, id := range strings.Split(envOrgs, ",") {
				if id = strings.TrimSpace(id); id != "" {
					orgIDs = append(orgIDs, id)
				}
			}
		}

		workerCfg := worker.Config{
			OrganizationIDs: orgIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "organization_count", len(orgIDs))
		}
	}

	// Initialize periodic alert sweep
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(logger)
		sweepJob := scheduler.NewSweepJob(alertService, logger)
		if err := sched.AddJob(cfg.Scheduler.SweepSchedule, sweepJob); err != nil {
			slog.Error("failed to schedule alert sweep", "error", err)
			os.Exit(1)
		}
		sched.Start()
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, alertService, expr, scorer, cfg.Cache.AnalyticsTTL, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop background work first so nothing races the closing server
	if sched != nil {
		sched.Stop()
	}
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides layers environment settings over the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_SMTP_HOST"); v != "" {
		cfg.Notifier.SMTPHost = v
	}
	if v := os.Getenv("KESTREL_SMTP_USER"); v != "" {
		cfg.Notifier.SMTPUser = v
	}
	if v := os.Getenv("KESTREL_SMTP_PASSWORD"); v != "" {
		cfg.Notifier.SMTPPassword = v
	}
	if v := os.Getenv("KESTREL_SMTP_FROM"); v != "" {
		cfg.Notifier.FromAddress = v
	}
	if v := os.Getenv("TOMORROW_IO_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := os.Getenv("KESTREL_SWEEP_SCHEDULE"); v != "" {
		cfg.Scheduler.SweepSchedule = v
	}
	if os.Getenv("KESTREL_SCHEDULER_DISABLED") == "true" {
		cfg.Scheduler.Enabled = false
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Portfolio Risk Analytics Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /analytics                         - Portfolio analytics snapshot")
	fmt.Println("    POST /alerts/process                    - Run alert sweep")
	fmt.Println("    GET  /alert-rules                       - List alert rules")
	fmt.Println("    POST /alert-rules                       - Create an alert rule")
	fmt.Println("    GET  /alert-rules/{id}                  - Get alert rule by ID")
	fmt.Println("    DELETE /alert-rules/{id}                - Disable an alert rule")
	fmt.Println("    GET  /alert-instances                   - List alert instances")
	fmt.Println("    POST /alert-instances/{id}/acknowledge  - Acknowledge an alert")
	fmt.Println("    POST /alert-instances/{id}/resolve      - Resolve an alert")
	fmt.Println("    GET  /weather/risk                      - Weather risk GeoJSON")
	fmt.Println("    GET  /health                            - Health check")
	fmt.Println()
}
