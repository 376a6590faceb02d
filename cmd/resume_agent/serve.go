package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammadumar-dev/resumeagent/internal/config"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
	"github.com/mohammadumar-dev/resumeagent/internal/server"
)

const rateLimitPruneInterval = 5 * time.Minute

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that accepts generation requests, streams agent status events and exposes health and metrics endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply pending database migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != 0 {
		a.cfg.Port = servePort
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	}

	if serveMigrate {
		if err := a.db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	shutdownTracing, err := observability.InitTracing(ctx, a.log, observability.TracingConfig{
		Enabled:     a.cfg.OTelEnabled,
		ServiceName: "resume_agent",
		Environment: a.cfg.LogMode,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("failed to shut down tracing", "error", err)
		}
	}()

	limiter := server.NewRateLimiter(a.cfg.RateLimitSubmitPerHour, a.cfg.RateLimitPerMinute)
	go limiter.Run(ctx, rateLimitPruneInterval)

	srv := server.New(a.cfg.Addr(), server.Deps{
		Generations: a.service,
		Subscriber:  a.subscriber,
		JWT:         server.NewJWTService(jwtCfg),
		Health:      a.db,
		Gatherer:    a.registry,
		RateLimiter: limiter,
		Metrics:     a.metrics,
		Log:         a.log,
	})
	return srv.Run(ctx)
}
