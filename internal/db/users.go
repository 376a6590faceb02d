package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

const userColumns = `id, email, full_name, usage_month, generations_used, generation_limit, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.UsageMonth, &u.GenerationsUsed,
		&u.GenerationLimit, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ---- Users Methods ----

// GetUser retrieves a user by ID
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// LockUser reads the user row with SELECT ... FOR UPDATE
func (t *pgTx) LockUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	return u, nil
}

// UpdateUserUsage persists the usage counter of a locked user row
func (t *pgTx) UpdateUserUsage(ctx context.Context, id uuid.UUID, usageMonth time.Time, used int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET usage_month = $1, generations_used = $2, updated_at = NOW() WHERE id = $3`,
		usageMonth, used, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update user usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update user usage: %w", ErrNotFound)
	}
	return nil
}

// CreateUser inserts a user. Zero-valued ID, limit and usage month are defaulted.
func (t *pgTx) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.GenerationLimit == 0 {
		u.GenerationLimit = DefaultGenerationLimit
	}
	if u.UsageMonth.IsZero() {
		now := time.Now().UTC()
		u.UsageMonth = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO users (id, email, full_name, usage_month, generations_used, generation_limit)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		u.ID, u.Email, u.FullName, u.UsageMonth, u.GenerationsUsed, u.GenerationLimit,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// ---- Master Resume Methods ----

// GetMasterResume retrieves the master résumé of a user
func (db *DB) GetMasterResume(ctx context.Context, userID uuid.UUID) (*MasterResume, error) {
	var m MasterResume
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, content, created_at, updated_at FROM master_resumes WHERE user_id = $1`,
		userID,
	).Scan(&m.ID, &m.UserID, &content, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get master resume: %w", notFound(err))
	}
	m.Content = content
	return &m, nil
}

// SaveMasterResume creates or replaces the master résumé of a user
func (t *pgTx) SaveMasterResume(ctx context.Context, m *MasterResume) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO master_resumes (id, user_id, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		m.ID, m.UserID, []byte(m.Content),
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save master resume: %w", err)
	}
	return nil
}
