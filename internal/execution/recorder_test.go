package execution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/db/memdb"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "shorter than limit", in: "abc", limit: 5, want: "abc"},
		{name: "exactly limit", in: "abcde", limit: 5, want: "abcde"},
		{name: "longer than limit", in: "abcdefgh", limit: 5, want: "abcde"},
		{name: "multibyte runes", in: "résumé résumé", limit: 6, want: "résumé"},
		{name: "zero limit", in: "abc", limit: 0, want: ""},
		{name: "empty", in: "", limit: 10, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.limit))
		})
	}
}

func TestRecorder_PersistsTruncatedSnapshot(t *testing.T) {
	store := memdb.New()
	rec := NewRecorder(store, observability.NewNopLogger(), nil)
	userID := uuid.New()
	generationID := uuid.New()

	rec.Record(context.Background(), Attempt{
		Agent:         "JobDescriptionAnalyzerAgent",
		UserID:        userID,
		GenerationID:  &generationID,
		Number:        1,
		Outcome:       OutcomeFailure,
		ErrorMessage:  "boom",
		TokensInput:   42,
		Elapsed:       1500 * time.Millisecond,
		InputSnapshot: strings.Repeat("é", 2500),
	})

	rows, err := store.ListAgentExecutions(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "JobDescriptionAnalyzerAgent", row.AgentName)
	assert.Equal(t, db.ExecutionFailure, row.Status)
	assert.Equal(t, 1, row.Attempt)
	assert.Equal(t, 42, row.TokensInput)
	assert.Equal(t, 0, row.TokensOutput)
	assert.Equal(t, int64(1500), row.ExecutionTimeMs)
	assert.Equal(t, MaxInputSnapshotChars, utf8.RuneCountInString(row.InputSnapshot))
	require.NotNil(t, row.ErrorMessage)
	assert.Equal(t, "boom", *row.ErrorMessage)
	require.NotNil(t, row.GenerationID)
	assert.Equal(t, generationID, *row.GenerationID)
}

func TestRecorder_SuccessHasNoErrorMessage(t *testing.T) {
	store := memdb.New()
	rec := NewRecorder(store, nil, nil)
	userID := uuid.New()

	rec.Record(context.Background(), Attempt{Agent: "MatchingAgent", UserID: userID, Number: 1, Outcome: OutcomeSuccess, TokensOutput: 7})

	rows, err := store.ListAgentExecutions(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].ErrorMessage)
	assert.Equal(t, 7, rows[0].TokensOutput)
}

func TestRecorder_SwallowsWriteFailure(t *testing.T) {
	store := memdb.New()
	store.FailExecutionWrites(errors.New("connection lost"))
	metrics := observability.NewMetrics(nil)
	rec := NewRecorder(store, observability.NewNopLogger(), metrics)

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Attempt{Agent: "MatchingAgent", UserID: uuid.New(), Number: 1, Outcome: OutcomeSuccess})
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LogWriteFailures()))
}

func TestRecorder_SurvivesCancelledCaller(t *testing.T) {
	store := memdb.New()
	rec := NewRecorder(store, nil, nil)
	userID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, Attempt{Agent: "ATSOptimizationAgent", UserID: userID, Number: 2, Outcome: OutcomeFailure, ErrorMessage: "cancelled"})

	rows, err := store.ListAgentExecutions(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
