package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/quotebot/internal/adapters/http"
	"github.com/jsamuelsen/quotebot/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotebot/internal/adapters/scheduler"
)

func serveCmd(opts *options) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface, JSON API and scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, func(rt *runtime) error {
				return serve(cmd.Context(), opts, rt, !noScheduler && rt.cfg.Scheduler.Enabled)
			})
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve HTTP only")

	return cmd
}

func serve(ctx context.Context, opts *options, rt *runtime, withScheduler bool) error {
	healthOpts := []handlers.HealthOption{handlers.WithGatherer(rt.metrics)}

	var sched *scheduler.Scheduler

	if withScheduler {
		var err error

		sched, err = newScheduler(rt)
		if err != nil {
			return err
		}

		healthOpts = append(healthOpts, handlers.WithScheduler(sched))
	}

	web, err := handlers.NewWebHandler(rt.service)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	buildInfo := handlers.NewBuildInfo(opts.build.Version, opts.build.Commit, opts.build.BuildTime)

	server := http.New(&rt.cfg.Server, rt.logger)
	http.SetupRouter(server.Engine(), http.RouterConfig{
		Logger:        rt.logger,
		AppConfig:     &rt.cfg.App,
		AuthConfig:    &rt.cfg.Auth,
		HealthHandler: handlers.NewHealthHandler(rt.health, buildInfo, healthOpts...),
		QuoteHandler:  handlers.NewQuoteHandler(rt.service),
		WebHandler:    web,
		Timeout:       rt.cfg.Server.RequestTimeout,
	})

	rt.logger.Info("starting quotebot",
		slog.String("version", opts.build.Version),
		slog.String("commit", opts.build.Commit),
		slog.String("environment", rt.cfg.App.Environment),
		slog.Bool("scheduler", sched != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}

	rt.logger.Info("shutdown complete")

	return nil
}

// newScheduler builds the scheduler from config and registers its health check.
func newScheduler(rt *runtime) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(scheduler.ConfigFrom(&rt.cfg.Scheduler), rt.service, rt.logger)
	if err != nil {
		return nil, usageError{fmt.Errorf("configuring scheduler: %w", err)}
	}

	if err := rt.health.Register(sched); err != nil {
		return nil, fmt.Errorf("registering health check: %w", err)
	}

	rt.logger.Debug("health checks registered", slog.Any("checks", rt.health.Names()))

	return sched, nil
}

func daemonCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run only the scheduler, posting on the configured cron spec",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, func(rt *runtime) error {
				sched, err := newScheduler(rt)
				if err != nil {
					return err
				}

				rt.logger.Info("starting quotebot daemon",
					slog.String("version", opts.build.Version),
					slog.String("spec", rt.cfg.Scheduler.Spec),
					slog.String("mode", rt.cfg.Scheduler.Mode),
				)

				return sched.Run(cmd.Context())
			})
		},
	}
}
