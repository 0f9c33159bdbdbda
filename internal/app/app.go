// Package app assembles the dispatch engine from configuration: transport
// clients, endpoint pool, rate limiter, submitter, summary sinks and the
// controller shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"solana-dispatch/internal/cache/redis"
	"solana-dispatch/internal/clients"
	"solana-dispatch/internal/config"
	"solana-dispatch/internal/confirmation"
	"solana-dispatch/internal/dispatch"
	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/endpoint"
	"solana-dispatch/internal/jito"
	"solana-dispatch/internal/observability"
	"solana-dispatch/internal/ratelimit"
	"solana-dispatch/internal/solana"
	"solana-dispatch/internal/storage"
	chstore "solana-dispatch/internal/storage/clickhouse"
	"solana-dispatch/internal/storage/memory"
	"solana-dispatch/internal/storage/migrations"
	pgstore "solana-dispatch/internal/storage/postgres"
	"solana-dispatch/internal/submitter"
	"solana-dispatch/internal/txbuild"
)

// Options carries the process-level dependencies of an App.
type Options struct {
	Logger *slog.Logger
	// Registerer receives the engine's Prometheus metrics. Nil uses the default registry.
	Registerer prometheus.Registerer
	// Registry overrides the transport clients built from the endpoint list (tests).
	Registry *clients.Registry
}

// App is a wired dispatch engine.
type App struct {
	Controller *dispatch.Controller
	Pool       *endpoint.Pool
	Clients    *clients.Registry
	Metrics    *observability.Metrics
	// Summaries is the in-process summary store, always written alongside any database sinks.
	Summaries storage.SummaryStore

	logger  *slog.Logger
	closers []func() error
}

// New wires every component described by cfg. cfg must have passed Validate.
// Database sinks are connected (and migrated when configured) before returning.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &App{logger: logger.With(slog.String("component", "app"))}
	if err := a.wire(ctx, cfg, opts, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) error {
	endpoints, err := cfg.DomainEndpoints()
	if err != nil {
		return err
	}
	if cfg.Operation.Destination == "" {
		return &domain.ConfigError{Field: "operation.destination", Reason: "required to build transfers"}
	}
	dest, err := txbuild.ParsePublicKey(cfg.Operation.Destination)
	if err != nil {
		return &domain.ConfigError{Field: "operation.destination", Reason: err.Error()}
	}

	a.Metrics = observability.NewMetrics(observability.DefaultNamespace, opts.Registerer)

	a.Clients = opts.Registry
	if a.Clients == nil {
		a.Clients = clients.FromEndpoints(endpoints, logger)
	}
	a.closers = append(a.closers, a.Clients.Close)

	d := cfg.Dispatch
	a.Pool, err = endpoint.NewPool(endpoints, a.Clients, endpoint.Options{
		FailureThreshold:   d.FailureThreshold,
		HealthCheckEnabled: d.HealthCheckEnabled,
		RetryDelay:         d.RetryDelay.Duration,
		Logger:             logger,
		Metrics:            a.Metrics,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { a.Pool.Stop(); return nil })

	limiter, err := a.newLimiter(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	sink, err := a.newSinks(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	sub := submitter.New(submitter.Options{
		Builder: txbuild.NewBuilder(txbuild.TransferInstructor{Destination: dest}),
		Tracker: confirmation.NewTracker(confirmation.Options{
			PollInterval:  d.PollInterval.Duration,
			Timeout:       d.ConfirmationTimeout.Duration,
			BundleTimeout: d.BundleTimeout.Duration,
			Commitment:    solana.Commitment(d.Commitment),
			Logger:        logger,
		}),
		Clients:             a.Clients,
		Pool:                a.Pool,
		Limiter:             ratelimit.NewEndpointLimiter(limiter),
		TipAccounts:         jito.NewTipAccounts(d.TipAccounts),
		Metrics:             a.Metrics,
		Logger:              logger,
		ConfirmationTimeout: d.ConfirmationTimeout.Duration,
		BundleTimeout:       d.BundleTimeout.Duration,
		SkipPreflight:       d.SkipPreflight,
		MaxConcurrency:      d.MaxConcurrency,
		RetryDelay:          d.RetryDelay.Duration,
	})

	a.Controller = dispatch.New(dispatch.Options{
		Pool:                   a.Pool,
		Submitter:              sub,
		AutoFailover:           d.AutoFailover,
		MaxFailoverAttempts:    d.MaxFailoverAttempts,
		AcceptanceThresholdPct: d.AcceptanceThresholdPct,
		SlotDuration:           d.SlotDuration.Duration,
		Sink:                   sink,
		Metrics:                a.Metrics,
		Logger:                 logger,
	})

	a.logger.Info("engine ready",
		slog.Int("endpoints", len(endpoints)),
		slog.Bool("auto_failover", d.AutoFailover),
		slog.String("commitment", d.Commitment))
	return nil
}

// newLimiter returns the Redis sliding-window limiter when enabled, otherwise an in-memory one.
func (a *App) newLimiter(ctx context.Context, cfg config.RedisConfig) (ratelimit.Limiter, error) {
	if !cfg.Enabled {
		return ratelimit.NewMemory(), nil
	}
	client, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		TLSEnabled: cfg.TLSEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info("using redis rate limiter", slog.String("addr", cfg.Addr))
	return redis.NewRateLimiter(client, cfg.KeyPrefix), nil
}

// newSinks connects the configured database sinks. The memory store is always first.
func (a *App) newSinks(ctx context.Context, cfg config.StorageConfig) (storage.SummarySink, error) {
	mem := memory.NewSummaryStore()
	a.Summaries = mem
	sinks := storage.MultiSink{mem}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if cfg.RunMigrations {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return nil, err
			}
		}
		sinks = append(sinks, pgstore.NewSummaryStore(pool, a.Metrics))
		a.logger.Info("postgres summary sink enabled")
	}

	if cfg.ClickhouseDSN != "" {
		var (
			conn *chstore.Conn
			err  error
		)
		if cfg.RunMigrations {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		sinks = append(sinks, chstore.NewSummaryStore(conn, a.Metrics))
		a.logger.Info("clickhouse summary sink enabled")
	}
	return sinks, nil
}

// Start launches endpoint health checks until Close or ctx is done.
func (a *App) Start(ctx context.Context) {
	a.Pool.Start(ctx)
}

// Close releases every connection in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
