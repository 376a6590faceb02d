package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ---- Agent Execution Log Methods ----

// InsertAgentExecution appends one attempt to the execution log
func (t *pgTx) InsertAgentExecution(ctx context.Context, e *AgentExecution) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO agent_executions
			(id, agent_name, user_id, generation_id, attempt, status, execution_time_ms,
			 tokens_input, tokens_output, input_snapshot, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		e.ID, e.AgentName, e.UserID, e.GenerationID, e.Attempt, e.Status, e.ExecutionTimeMs,
		e.TokensInput, e.TokensOutput, e.InputSnapshot, e.ErrorMessage,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert agent execution: %w", err)
	}
	return nil
}

// ListAgentExecutions returns a user's execution log in insertion order
func (db *DB) ListAgentExecutions(ctx context.Context, userID uuid.UUID) ([]AgentExecution, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, agent_name, user_id, generation_id, attempt, status, execution_time_ms,
			tokens_input, tokens_output, input_snapshot, error_message, created_at
		 FROM agent_executions
		 WHERE user_id = $1
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent executions: %w", err)
	}
	defer rows.Close()

	var executions []AgentExecution
	for rows.Next() {
		var e AgentExecution
		if err := rows.Scan(&e.ID, &e.AgentName, &e.UserID, &e.GenerationID, &e.Attempt, &e.Status,
			&e.ExecutionTimeMs, &e.TokensInput, &e.TokensOutput, &e.InputSnapshot,
			&e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent execution: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent executions: %w", err)
	}
	return executions, nil
}

// AgentUsage sums tokens and averages execution time per agent for a user
func (db *DB) AgentUsage(ctx context.Context, userID uuid.UUID) ([]AgentUsage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT agent_name,
			COUNT(*),
			COALESCE(SUM(tokens_input + tokens_output), 0),
			COALESCE(AVG(execution_time_ms), 0)::float8
		 FROM agent_executions
		 WHERE user_id = $1
		 GROUP BY agent_name
		 ORDER BY agent_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate agent usage: %w", err)
	}
	defer rows.Close()

	var usage []AgentUsage
	for rows.Next() {
		var u AgentUsage
		if err := rows.Scan(&u.AgentName, &u.Executions, &u.TotalTokens, &u.AvgExecutionTimeMs); err != nil {
			return nil, fmt.Errorf("failed to scan agent usage: %w", err)
		}
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent usage: %w", err)
	}
	return usage, nil
}
