package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mohammadumar-dev/resumeagent/internal/agents"
	"github.com/mohammadumar-dev/resumeagent/internal/config"
	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/execution"
	"github.com/mohammadumar-dev/resumeagent/internal/generation"
	"github.com/mohammadumar-dev/resumeagent/internal/llm"
	"github.com/mohammadumar-dev/resumeagent/internal/notify"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
	"github.com/mohammadumar-dev/resumeagent/internal/quota"
)

// app holds the process-wide collaborators a command needs.
type app struct {
	cfg      *config.Config
	log      *observability.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	db       *db.DB

	llm   llm.Client
	redis *goredis.Client
	// subscriber is nil when notifications are disabled.
	subscriber notify.Subscriber
	service    *generation.Service
}

// newApp loads configuration and connects to the database. The agent
// pipeline is built only when withPipeline is set, since it needs an API key.
func newApp(ctx context.Context, withPipeline bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	log, err := observability.NewLogger(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		metrics:  observability.NewMetrics(registry),
	}

	a.db, err = db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if withPipeline {
		if err := a.buildPipeline(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) buildPipeline(ctx context.Context) error {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return err
	}
	policy, err := a.cfg.RetryPolicy()
	if err != nil {
		return err
	}

	a.llm, err = llm.NewClient(ctx, llm.DefaultConfig(), a.cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if a.cfg.RedisAddr != "" {
		a.redis, err = notify.Dial(ctx, a.cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		r := notify.NewRedis(a.redis, a.cfg.RedisChannelPrefix, a.log)
		notifier = r
		a.subscriber = r
	} else {
		a.log.Info("status notifications disabled", "reason", "REDIS_ADDR not set")
	}

	recorder := execution.NewRecorder(a.db, a.log, a.metrics)
	executor := execution.NewExecutor(recorder, a.log,
		execution.WithPolicy(policy),
		execution.WithNotifier(notifier),
		execution.WithMetrics(a.metrics),
	)
	gate := quota.NewGate(a.db, quota.WithMetrics(a.metrics), quota.WithLogger(a.log))
	suite := agents.NewSuite(agents.NewLLMAgents(a.llm, a.log))

	a.service = generation.NewService(a.db, suite, executor, gate,
		generation.WithLogger(a.log),
		generation.WithMetrics(a.metrics),
	)
	return nil
}

// Close releases every connection the app opened.
func (a *app) Close() {
	if a.llm != nil {
		if err := a.llm.Close(); err != nil {
			a.log.Warn("failed to close LLM client", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	a.log.Sync()
}
