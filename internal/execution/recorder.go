package execution

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
)

// MaxInputSnapshotChars bounds the input snapshot stored with each attempt.
const MaxInputSnapshotChars = 2000

// Outcome of a single attempt.
type Outcome string

// Outcome constants
const (
	OutcomeSuccess Outcome = db.ExecutionSuccess
	OutcomeFailure Outcome = db.ExecutionFailure
)

// Attempt describes one finished agent invocation.
type Attempt struct {
	Agent         string
	UserID        uuid.UUID
	GenerationID  *uuid.UUID // generation the attempt worked on, if any
	Number        int
	Outcome       Outcome
	ErrorMessage  string
	TokensInput   int
	TokensOutput  int
	Elapsed       time.Duration
	InputSnapshot string
}

// Recorder persists attempts to the execution log.
type Recorder struct {
	store   db.Store
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewRecorder returns a Recorder writing through store. metrics may be nil.
func NewRecorder(store db.Store, log *observability.Logger, metrics *observability.Metrics) *Recorder {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Recorder{
		store:   store,
		log:     log.With("service", "ExecutionRecorder"),
		metrics: metrics,
	}
}

// Record writes one execution log row in its own transaction. The write is
// detached from ctx cancellation and never returns an error: a failed write is
// logged and counted, and the attempt's own outcome stands.
func (r *Recorder) Record(ctx context.Context, a Attempt) {
	r.metrics.ObserveAttempt(a.Agent, string(a.Outcome), a.Elapsed)

	row := &db.AgentExecution{
		AgentName:       a.Agent,
		UserID:          a.UserID,
		GenerationID:    a.GenerationID,
		Attempt:         a.Number,
		Status:          string(a.Outcome),
		ExecutionTimeMs: a.Elapsed.Milliseconds(),
		TokensInput:     a.TokensInput,
		TokensOutput:    a.TokensOutput,
		InputSnapshot:   Truncate(a.InputSnapshot, MaxInputSnapshotChars),
	}
	if a.ErrorMessage != "" {
		msg := a.ErrorMessage
		row.ErrorMessage = &msg
	}

	writeCtx := context.WithoutCancel(ctx)
	err := r.store.WithNewTx(writeCtx, func(tx db.Tx) error {
		return tx.InsertAgentExecution(writeCtx, row)
	})
	if err != nil {
		r.metrics.LogWriteFailed()
		r.log.Warn("failed to persist agent execution log",
			"agent", a.Agent, "attempt", a.Number, "outcome", a.Outcome, "error", err)
	}
}

// Truncate returns s cut to at most limit characters, never splitting a rune.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
