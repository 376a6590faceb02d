package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const generationColumns = `id, user_id, master_resume_id, job_description, status,
	jd_analysis, match_result, rewritten_resume, optimized_resume,
	job_title_targeted, company_targeted, failure_reason, resume_id, created_at, updated_at`

func scanGeneration(row pgx.Row) (*Generation, error) {
	var g Generation
	var status string
	var jd, match, rewritten, optimized []byte
	err := row.Scan(&g.ID, &g.UserID, &g.MasterResumeID, &g.JobDescription, &status,
		&jd, &match, &rewritten, &optimized,
		&g.JobTitleTargeted, &g.CompanyTargeted, &g.FailureReason, &g.ResumeID,
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	g.Status = GenerationStatus(status)
	g.JDAnalysis = jd
	g.MatchResult = match
	g.RewrittenResume = rewritten
	g.OptimizedResume = optimized
	return &g, nil
}

// ---- Generations Methods ----

// GetGeneration retrieves a generation by ID
func (db *DB) GetGeneration(ctx context.Context, id uuid.UUID) (*Generation, error) {
	g, err := scanGeneration(db.pool.QueryRow(ctx,
		`SELECT `+generationColumns+` FROM resume_generations WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}
	return g, nil
}

// FindInFlightGeneration returns the newest non-terminal generation for the exact job description.
// Returns nil, nil when none exists.
func (db *DB) FindInFlightGeneration(ctx context.Context, userID uuid.UUID, jd string) (*Generation, error) {
	g, err := scanGeneration(db.pool.QueryRow(ctx,
		`SELECT `+generationColumns+` FROM resume_generations
		 WHERE user_id = $1 AND job_description = $2 AND status NOT IN ($3, $4)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, jd, string(GenerationCompleted), string(GenerationFailed),
	))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find in-flight generation: %w", err)
	}
	return g, nil
}

// FindFailedGeneration returns the newest FAILED generation for the exact job description.
// Returns nil, nil when none exists.
func (db *DB) FindFailedGeneration(ctx context.Context, userID uuid.UUID, jd string) (*Generation, error) {
	g, err := scanGeneration(db.pool.QueryRow(ctx,
		`SELECT `+generationColumns+` FROM resume_generations
		 WHERE user_id = $1 AND job_description = $2 AND status = $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, jd, string(GenerationFailed),
	))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find failed generation: %w", err)
	}
	return g, nil
}

// LockGeneration reads the generation row with SELECT ... FOR UPDATE
func (t *pgTx) LockGeneration(ctx context.Context, id uuid.UUID) (*Generation, error) {
	g, err := scanGeneration(t.tx.QueryRow(ctx,
		`SELECT `+generationColumns+` FROM resume_generations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock generation: %w", err)
	}
	return g, nil
}

// InsertGeneration creates a generation row
func (t *pgTx) InsertGeneration(ctx context.Context, g *Generation) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.Status == "" {
		g.Status = GenerationPending
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO resume_generations (id, user_id, master_resume_id, job_description, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		g.ID, g.UserID, g.MasterResumeID, g.JobDescription, string(g.Status),
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}
	return nil
}

// UpdateGeneration writes the mutable columns of a generation and bumps updated_at.
// Identity, owner, source résumé and job description are never rewritten.
func (t *pgTx) UpdateGeneration(ctx context.Context, g *Generation) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE resume_generations SET
			status = $1,
			jd_analysis = $2,
			match_result = $3,
			rewritten_resume = $4,
			optimized_resume = $5,
			job_title_targeted = $6,
			company_targeted = $7,
			failure_reason = $8,
			resume_id = $9,
			updated_at = NOW()
		 WHERE id = $10
		 RETURNING updated_at`,
		string(g.Status), nullableJSON(g.JDAnalysis), nullableJSON(g.MatchResult),
		nullableJSON(g.RewrittenResume), nullableJSON(g.OptimizedResume),
		g.JobTitleTargeted, g.CompanyTargeted, g.FailureReason, g.ResumeID, g.ID,
	).Scan(&g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update generation: %w", notFound(err))
	}
	return nil
}

// nullableJSON maps an empty payload to SQL NULL
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
