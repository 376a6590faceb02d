package db

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus constants
const (
	ExecutionSuccess = "SUCCESS"
	ExecutionFailure = "FAILURE"
)

// AgentExecution is one append-only row of the agent execution log.
type AgentExecution struct {
	ID              uuid.UUID  `json:"id"`
	AgentName       string     `json:"agent_name"`
	UserID          uuid.UUID  `json:"user_id"`
	GenerationID    *uuid.UUID `json:"generation_id,omitempty"`
	Attempt         int        `json:"attempt"`
	Status          string     `json:"status"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	TokensInput     int        `json:"tokens_input"`
	TokensOutput    int        `json:"tokens_output"`
	InputSnapshot   string     `json:"input_snapshot"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// AgentUsage aggregates the execution log for one agent.
type AgentUsage struct {
	AgentName          string  `json:"agent_name"`
	Executions         int     `json:"executions"`
	TotalTokens        int64   `json:"total_tokens"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
}
