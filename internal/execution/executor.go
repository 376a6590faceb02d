package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammadumar-dev/resumeagent/internal/notify"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
)

const notifyTimeout = 2 * time.Second

var tracer = otel.Tracer("github.com/mohammadumar-dev/resumeagent/internal/execution")

// Executor runs agent calls with classification, retry and per-attempt logging.
type Executor struct {
	recorder *Recorder
	notifier notify.Notifier
	log      *observability.Logger
	metrics  *observability.Metrics
	policy   RetryPolicy
	sleep    Sleeper
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy overrides DefaultRetryPolicy.
func WithPolicy(p RetryPolicy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithSleeper replaces the backoff wait, typically to record delays in tests.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithNotifier sets the status notifier. The default discards notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

// WithMetrics records notification failures.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock replaces the clock used to time attempts.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor returns an Executor logging attempts through recorder.
func NewExecutor(recorder *Recorder, log *observability.Logger, opts ...Option) *Executor {
	if log == nil {
		log = observability.NewNopLogger()
	}
	e := &Executor{
		recorder: recorder,
		notifier: notify.Nop{},
		log:      log.With("service", "AgentExecutor"),
		policy:   DefaultRetryPolicy(),
		sleep:    ContextSleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the retry policy in effect.
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Request describes one agent invocation.
type Request[T any] struct {
	Agent         string
	UserID        uuid.UUID
	GenerationID  *uuid.UUID // optional; stored on every attempt row
	InputSnapshot string
	TokensInput   int
	Call          func(ctx context.Context) (T, error)
	// TokensOutput counts the tokens of a successful result. Nil counts zero.
	TokensOutput func(T) int
}

// Execute invokes req.Call until it succeeds, fails fatally or exhausts the
// retry budget. Every attempt writes exactly one execution log row. The
// returned error is always an *AgentError.
func Execute[T any](ctx context.Context, e *Executor, req Request[T]) (T, error) {
	var zero T

	ctx, span := tracer.Start(ctx, "agent."+req.Agent, trace.WithAttributes(
		attribute.String("agent.name", req.Agent),
		attribute.String("user.id", req.UserID.String()),
	))
	defer span.End()

	e.Notify(ctx, req.UserID, req.Agent, notify.StatusStarted)

	for attempt := 1; ; attempt++ {
		start := e.now()
		result, err := req.Call(ctx)
		elapsed := e.now().Sub(start)

		if err == nil {
			tokensOut := 0
			if req.TokensOutput != nil {
				tokensOut = req.TokensOutput(result)
			}
			e.recorder.Record(ctx, Attempt{
				Agent:         req.Agent,
				UserID:        req.UserID,
				GenerationID:  req.GenerationID,
				Number:        attempt,
				Outcome:       OutcomeSuccess,
				TokensInput:   req.TokensInput,
				TokensOutput:  tokensOut,
				Elapsed:       elapsed,
				InputSnapshot: req.InputSnapshot,
			})
			span.SetAttributes(attribute.Int("agent.attempts", attempt))
			e.Notify(ctx, req.UserID, req.Agent, notify.StatusSuccess)
			return result, nil
		}

		classified := Classify(err, req.Agent)
		e.recorder.Record(ctx, Attempt{
			Agent:         req.Agent,
			UserID:        req.UserID,
			GenerationID:  req.GenerationID,
			Number:        attempt,
			Outcome:       OutcomeFailure,
			ErrorMessage:  classified.Error(),
			TokensInput:   req.TokensInput,
			Elapsed:       elapsed,
			InputSnapshot: req.InputSnapshot,
		})

		if !classified.Retryable() || attempt >= e.policy.MaxAttempts {
			e.log.Warn("agent call failed",
				"agent", req.Agent, "attempt", attempt, "kind", classified.Kind.String(), "error", err)
			span.SetAttributes(attribute.Int("agent.attempts", attempt))
			span.RecordError(classified)
			span.SetStatus(codes.Error, classified.Kind.String())
			e.Notify(ctx, req.UserID, req.Agent, notify.StatusFailed)
			return zero, classified
		}

		delay := e.policy.Backoff(attempt)
		e.log.Info("retrying agent call after transient failure",
			"agent", req.Agent, "attempt", attempt, "delay", delay.String(), "error", err)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			e.log.Warn("agent retry abandoned during backoff",
				"agent", req.Agent, "attempt", attempt, "kind", classified.Kind.String(), "error", err, "cause", sleepErr)
			span.SetAttributes(attribute.Int("agent.attempts", attempt))
			span.RecordError(sleepErr)
			span.SetStatus(codes.Error, "cancelled during backoff")
			e.Notify(ctx, req.UserID, req.Agent, notify.StatusFailed)
			return zero, classified
		}
	}
}

// Notify sends a status update, bounded by a short timeout. Failures are logged and dropped.
func (e *Executor) Notify(ctx context.Context, userID uuid.UUID, agent string, status notify.Status) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := e.notifier.Notify(nctx, userID, agent, status); err != nil {
		e.metrics.NotifyFailed()
		e.log.Debug("status notification dropped", "agent", agent, "status", status, "error", err)
	}
}
