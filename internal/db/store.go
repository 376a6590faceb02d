package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence surface the generation pipeline depends on.
// Reads outside a transaction see committed data only.
type Store interface {
	// WithNewTx runs fn in a new transaction that commits independently of any
	// transaction the caller may already hold.
	WithNewTx(ctx context.Context, fn func(tx Tx) error) error

	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetMasterResume(ctx context.Context, userID uuid.UUID) (*MasterResume, error)
	GetGeneration(ctx context.Context, id uuid.UUID) (*Generation, error)
	// FindInFlightGeneration returns the user's most recent generation that is
	// neither completed nor failed and whose job description equals jd exactly.
	FindInFlightGeneration(ctx context.Context, userID uuid.UUID, jd string) (*Generation, error)
	// FindFailedGeneration returns the user's most recent FAILED generation for jd.
	FindFailedGeneration(ctx context.Context, userID uuid.UUID, jd string) (*Generation, error)
	GetResume(ctx context.Context, id uuid.UUID) (*Resume, error)
	// ListResumes returns a page of the user's résumés, newest first, with the user's total.
	ListResumes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Resume, int, error)
	ListAgentExecutions(ctx context.Context, userID uuid.UUID) ([]AgentExecution, error)
	AgentUsage(ctx context.Context, userID uuid.UUID) ([]AgentUsage, error)
}

// Tx is the set of operations available inside a WithNewTx callback.
type Tx interface {
	// LockUser reads the user row and holds a write lock on it until the transaction ends.
	LockUser(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateUserUsage(ctx context.Context, id uuid.UUID, usageMonth time.Time, used int) error
	CreateUser(ctx context.Context, u *User) error
	SaveMasterResume(ctx context.Context, m *MasterResume) error

	// LockGeneration reads the generation row and holds a write lock on it until the transaction ends.
	LockGeneration(ctx context.Context, id uuid.UUID) (*Generation, error)
	InsertGeneration(ctx context.Context, g *Generation) error
	UpdateGeneration(ctx context.Context, g *Generation) error

	InsertResume(ctx context.Context, r *Resume) error
	InsertAgentExecution(ctx context.Context, e *AgentExecution) error
}

var _ Store = (*DB)(nil)
