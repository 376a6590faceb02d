package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ---- Resumes Methods ----

// GetResume retrieves a generated résumé by ID
func (db *DB) GetResume(ctx context.Context, id uuid.UUID) (*Resume, error) {
	var r Resume
	var content, jd []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, generation_id, job_title_targeted, company_targeted, content, jd_analysis, created_at
		 FROM resumes WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.UserID, &r.GenerationID, &r.JobTitleTargeted, &r.CompanyTargeted, &content, &jd, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get resume: %w", notFound(err))
	}
	r.Content = content
	r.JDAnalysis = jd
	return &r, nil
}

// ListResumes returns one page of a user's résumés, newest first, and the
// total number the user has
func (db *DB) ListResumes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Resume, int, error) {
	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM resumes WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count resumes: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, generation_id, job_title_targeted, company_targeted, content, jd_analysis, created_at
		 FROM resumes
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list resumes: %w", err)
	}
	defer rows.Close()

	var resumes []Resume
	for rows.Next() {
		var r Resume
		var content, jd []byte
		if err := rows.Scan(&r.ID, &r.UserID, &r.GenerationID, &r.JobTitleTargeted, &r.CompanyTargeted,
			&content, &jd, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan resume: %w", err)
		}
		r.Content = content
		r.JDAnalysis = jd
		resumes = append(resumes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating resumes: %w", err)
	}
	return resumes, total, nil
}

// InsertResume stores the output résumé of a generation
func (t *pgTx) InsertResume(ctx context.Context, r *Resume) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO resumes (id, user_id, generation_id, job_title_targeted, company_targeted, content, jd_analysis)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		r.ID, r.UserID, r.GenerationID, r.JobTitleTargeted, r.CompanyTargeted,
		nullableJSON(r.Content), nullableJSON(r.JDAnalysis),
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert resume: %w", err)
	}
	return nil
}
