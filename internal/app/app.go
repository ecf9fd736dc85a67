// Package app wires configuration into a ready Orchestrator. The server
// and the CLI share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/docroute/internal/cache"
	"github.com/af-corp/docroute/internal/config"
	"github.com/af-corp/docroute/internal/extract"
	"github.com/af-corp/docroute/internal/guard"
	"github.com/af-corp/docroute/internal/orchestrator"
	"github.com/af-corp/docroute/internal/paginate"
	"github.com/af-corp/docroute/internal/ratelimit"
	"github.com/af-corp/docroute/internal/router"
	"github.com/af-corp/docroute/internal/runner"
	"github.com/af-corp/docroute/internal/telemetry"
)

type Options struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Redis   *redis.Client
	// Runner replaces the exec runner for poppler and tesseract.
	Runner runner.Runner
}

// App is the assembled pipeline.
type App struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Health       *router.HealthTracker
	Limiter      *ratelimit.Limiter
	Metrics      *telemetry.Metrics

	logger *slog.Logger
}

// New builds every component from snap.
func New(ctx context.Context, snap *config.Snapshot, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if snap == nil || snap.Service == nil {
		return nil, fmt.Errorf("build app: no configuration loaded")
	}
	cfg := snap.Service

	rt, err := orchestrator.BuildRouting(snap, logger)
	if err != nil {
		return nil, err
	}

	health := router.NewHealthTracker(cfg.Routing.CircuitBreaker.FailureThreshold, cfg.Routing.CircuitBreaker.RecoveryProbeInterval)
	if opts.Metrics != nil {
		health.OnStateChange(func(provider string, _, to router.CircuitState) {
			opts.Metrics.RecordCircuitTransition(provider, to.String())
		})
	}

	limiter := ratelimit.NewLimiter(opts.Redis)
	rpm := make(map[string]int)
	for _, p := range rt.Registry.Providers() {
		rpm[p.Name] = p.RPM
	}
	limits := ratelimit.NewProviderLimits(limiter, cfg.Routing.RateLimitWindow, cfg.Routing.DefaultProviderRPM, rpm)

	g := guard.New(cfg.Guard.Enabled, cfg.Guard.EvaluationTimeout, logger)
	if cfg.Guard.Enabled {
		if err := g.Load(ctx, cfg.Guard.BundlePath); err != nil {
			return nil, fmt.Errorf("load guard policies: %w", err)
		}
	}

	run := opts.Runner
	if run == nil {
		run = runner.Exec{}
	}
	pages := paginate.New(paginate.Config{
		Pdfinfo:     cfg.Pagination.Pdfinfo,
		Pdftoppm:    cfg.Pagination.Pdftoppm,
		DPI:         cfg.Pagination.DPI,
		MaxPages:    cfg.Pagination.MaxPages,
		Concurrency: cfg.Orchestrator.MaxConcurrency,
	}, run, logger)
	local := extract.NewLocalExtractor(extract.LocalConfig{
		Enabled:       cfg.Fallback.Enabled,
		Tesseract:     cfg.Fallback.Tesseract,
		TesseractLang: cfg.Fallback.TesseractLang,
	}, run, logger)

	var rc *cache.ResultCache
	if cfg.Cache.Enabled {
		rc = cache.NewFromClient(opts.Redis, cfg.Cache.TTL)
	}

	orch, err := orchestrator.New(orchestrator.OptionsFrom(cfg), rt, orchestrator.Deps{
		Paginator: pages,
		Local:     local,
		Health:    health,
		Limits:    limits,
		Guard:     g,
		Cache:     rc,
		Metrics:   opts.Metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline ready",
		"mode", cfg.Orchestrator.Mode,
		"models", len(rt.Registry.Models()),
		"rules", len(rt.Policy.Rules()),
		"guard", cfg.Guard.Enabled,
		"cache", rc.Enabled(),
	)
	return &App{
		Config:       cfg,
		Orchestrator: orch,
		Health:       health,
		Limiter:      limiter,
		Metrics:      opts.Metrics,
		logger:       logger,
	}, nil
}

// Reload rebuilds the routing set from snap and swaps it in. On error the
// previous routing stays active.
func (a *App) Reload(snap *config.Snapshot) error {
	rt, err := orchestrator.BuildRouting(snap, a.logger)
	if err != nil {
		return err
	}
	a.Orchestrator.SetRouting(rt)
	a.logger.Info("routing reloaded", "models", len(rt.Registry.Models()), "rules", len(rt.Policy.Rules()))
	return nil
}

// NewRedis connects to the first configured address. It returns nil when
// none is configured or the server does not answer; dependents then fail
// open.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	if len(cfg.Addresses) == 0 || cfg.Addresses[0] == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addresses[0],
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable (rate limits and cache disabled)", "error", err)
		rdb.Close()
		return nil
	}
	logger.Info("redis connected", "addr", cfg.Addresses[0])
	return rdb
}
