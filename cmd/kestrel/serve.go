package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edumetrics/kestrel/internal/api"
	"github.com/edumetrics/kestrel/internal/bus"
	"github.com/edumetrics/kestrel/internal/cache"
	"github.com/edumetrics/kestrel/internal/decision"
	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/edumetrics/kestrel/internal/repository"
	"github.com/edumetrics/kestrel/internal/rules"
	"github.com/edumetrics/kestrel/internal/worker"
	"github.com/spf13/cobra"
)

// shutdownGrace bounds how long in-flight requests may run after a signal.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "Listen host (overrides KESTREL_HOST)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides KESTREL_PORT)")
	serveCmd.Flags().String("method", "", "Default defuzzification method: tsukamoto or strict")
	serveCmd.Flags().Bool("async", false, "Start the assessment worker on the event bus")
	serveCmd.Flags().StringSlice("tenants", nil, "Tenants the worker subscribes for (default: _global)")
	serveCmd.Flags().Bool("builtin-advisories", true, "Load built-in advisories when none are stored")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Server.Host = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Server.Port = v
	}
	if v, _ := cmd.Flags().GetString("method"); v != "" {
		cfg.Method = v
	}

	setupLogger(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	method, err := fuzzy.ParseMethod(cfg.Method)
	if err != nil {
		return err
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"method", method.String(),
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"auth", cfg.Auth.Enabled(),
		"rate_limit", cfg.RateLimit.Requests,
		"tracing", cfg.Tracing.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := rules.NewEngine(0)
	if err != nil {
		return fmt.Errorf("initialize advisory engine: %w", err)
	}
	defer engine.Close()

	builtin, _ := cmd.Flags().GetBool("builtin-advisories")
	if err := loadAdvisories(ctx, repo, engine, builtin); err != nil {
		return err
	}
	slog.Info("advisory engine initialized", "advisories_count", engine.RulesCount())

	processor := decision.NewProcessor(method, engine)
	slog.Info("processor initialized", "method", method.String(), "rules", fuzzy.RuleCount())

	var asyncWorker *worker.Worker
	async, _ := cmd.Flags().GetBool("async")
	if cfg.Tier == domain.TierPro || async {
		tenants, _ := cmd.Flags().GetStringSlice("tenants")
		if len(tenants) == 0 {
			if env := os.Getenv("KESTREL_TENANTS"); env != "" {
				tenants = strings.Split(env, ",")
			}
		}

		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, processor)
		if err := asyncWorker.Start(worker.Config{TenantIDs: tenants, AssessmentTTL: cfg.AssessmentTTL}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "tenant_count", len(tenants))
		}
	}

	srv := api.NewServer(cfg, repo, cacheImpl, busImpl, engine, processor, Version)
	slog.Info("kestrel is ready", "addr", srv.Addr())

	runErr := srv.Run(ctx, shutdownGrace)
	if runErr != nil {
		slog.Error("server failed", "error", runErr)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	slog.Info("kestrel shutdown complete")
	return runErr
}

// loadAdvisories loads the stored global advisories into the engine,
// falling back to the built-in set when the store has none.
func loadAdvisories(ctx context.Context, repo domain.Repository, engine *rules.Engine, builtin bool) error {
	stored, err := repo.ListAdvisoryRules(ctx, domain.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list advisories from database", "error", err)
	}

	if len(stored) > 0 {
		slog.Info("loading advisories from database", "count", len(stored))
		return engine.ReloadRules(stored)
	}

	if builtin {
		slog.Info("no advisories in database - loading built-in set")
		return engine.ReloadRules(rules.DefaultAdvisories())
	}

	slog.Info("no advisories in database - configure via POST /advisories")
	return nil
}
