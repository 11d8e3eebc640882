package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jsamuelsen/quotebot/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quotebot/internal/adapters/storage"
	"github.com/jsamuelsen/quotebot/internal/app"
	"github.com/jsamuelsen/quotebot/internal/platform/config"
	"github.com/jsamuelsen/quotebot/internal/platform/logging"
	"github.com/jsamuelsen/quotebot/internal/platform/telemetry"
	"github.com/jsamuelsen/quotebot/internal/ports"
)

// runtime is the wired application shared by the subcommands.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Provider
	metrics   *prometheus.Registry
	store     storage.Store
	publisher acl.Publisher
	service   *app.QuoteService
	health    *ports.CheckRegistry
}

// bootstrap loads configuration and wires the adapters into the quote
// service. Callers must Close the result.
func bootstrap(ctx context.Context, opts *options) (*runtime, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, usageError{err}
	}

	cfg, err := config.LoadFrom(opts.configDir, opts.profile)
	if err != nil {
		return nil, usageError{fmt.Errorf("loading config: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, usageError{fmt.Errorf("invalid config: %w", err)}
	}

	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: opts.build.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	logging.SetDefault(logger)

	rt := &runtime{cfg: cfg, logger: logger}

	rt.telemetry, err = telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      opts.build.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	rt.store, err = storage.Open(ctx, &cfg.Storage, logger)
	if err != nil {
		_ = rt.Close(ctx)

		return nil, fmt.Errorf("opening quote store: %w", err)
	}

	rt.publisher, err = acl.NewPublisher(&cfg.Publisher, &cfg.Client, logger)
	if err != nil {
		_ = rt.Close(ctx)

		return nil, usageError{fmt.Errorf("creating publisher: %w", err)}
	}

	rt.metrics = prometheus.NewRegistry()
	rt.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt.service = app.NewQuoteService(app.QuoteServiceConfig{
		Store:          rt.store,
		Publisher:      rt.publisher,
		Metrics:        app.NewMetrics(rt.metrics),
		PublishTimeout: cfg.Publisher.Timeout,
		Logger:         logger,
	})

	rt.health = ports.NewHealthRegistry()
	for _, c := range []ports.HealthChecker{rt.store, rt.publisher} {
		if err := rt.health.Register(c); err != nil {
			_ = rt.Close(ctx)

			return nil, fmt.Errorf("registering health check: %w", err)
		}
	}

	return rt, nil
}

// Close releases the store and flushes telemetry.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error

	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}

	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(context.WithoutCancel(ctx)))
	}

	return errors.Join(errs...)
}

// withRuntime bootstraps, runs fn and closes the runtime.
func withRuntime(ctx context.Context, opts *options, fn func(*runtime) error) (err error) {
	rt, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := rt.Close(ctx); closeErr != nil {
			rt.logger.Error("shutdown error", slog.Any("error", closeErr))
		}
	}()

	return fn(rt)
}
