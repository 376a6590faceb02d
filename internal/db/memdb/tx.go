package memdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohammadumar-dev/resumeagent/internal/db"
)

// tx buffers writes until the owning WithNewTx call commits.
type tx struct {
	s    *Store
	held map[string]*rowLock

	users       map[uuid.UUID]db.User
	masters     map[uuid.UUID]db.MasterResume
	generations map[uuid.UUID]*db.Generation
	genOrder    []uuid.UUID
	resumes     map[uuid.UUID]db.Resume
	executions  []db.AgentExecution
}

var _ db.Tx = (*tx)(nil)

func (t *tx) acquire(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	l := t.s.lockFor(key)
	if err := l.lock(ctx); err != nil {
		return err
	}
	t.held[key] = l
	return nil
}

func (t *tx) release() {
	for key, l := range t.held {
		l.unlock()
		delete(t.held, key)
	}
}

func (t *tx) now() time.Time {
	return t.s.now()
}

func (t *tx) LockUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	if err := t.acquire(ctx, "user:"+id.String()); err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if u, ok := t.users[id]; ok {
		return &u, nil
	}
	u, err := t.s.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", db.ErrNotFound)
	}
	return u, nil
}

func (t *tx) UpdateUserUsage(ctx context.Context, id uuid.UUID, usageMonth time.Time, used int) error {
	u, err := t.LockUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to update user usage: %w", err)
	}
	u.UsageMonth = usageMonth
	u.GenerationsUsed = used
	u.UpdatedAt = t.now()
	t.users[id] = *u
	return nil
}

func (t *tx) CreateUser(_ context.Context, u *db.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.GenerationLimit == 0 {
		u.GenerationLimit = db.DefaultGenerationLimit
	}
	now := t.now()
	if u.UsageMonth.IsZero() {
		u.UsageMonth = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	t.users[u.ID] = *u
	return nil
}

func (t *tx) SaveMasterResume(ctx context.Context, m *db.MasterResume) error {
	now := t.now()
	if existing, ok := t.masters[m.UserID]; ok {
		m.ID, m.CreatedAt = existing.ID, existing.CreatedAt
	} else if existing, err := t.s.GetMasterResume(ctx, m.UserID); err == nil {
		m.ID, m.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	t.masters[m.UserID] = *m
	return nil
}

func (t *tx) LockGeneration(ctx context.Context, id uuid.UUID) (*db.Generation, error) {
	if err := t.acquire(ctx, "generation:"+id.String()); err != nil {
		return nil, fmt.Errorf("failed to lock generation: %w", err)
	}
	if g, ok := t.generations[id]; ok {
		return g.Clone(), nil
	}
	g, err := t.s.GetGeneration(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock generation: %w", db.ErrNotFound)
	}
	return g, nil
}

func (t *tx) InsertGeneration(_ context.Context, g *db.Generation) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.Status == "" {
		g.Status = db.GenerationPending
	}
	now := t.now()
	g.CreatedAt, g.UpdatedAt = now, now
	t.generations[g.ID] = g.Clone()
	t.genOrder = append(t.genOrder, g.ID)
	return nil
}

// UpdateGeneration copies the mutable columns onto the stored row, like the SQL UPDATE does.
func (t *tx) UpdateGeneration(ctx context.Context, g *db.Generation) error {
	current, err := t.LockGeneration(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("failed to update generation: %w", err)
	}
	src := g.Clone()
	current.Status = src.Status
	current.JDAnalysis = src.JDAnalysis
	current.MatchResult = src.MatchResult
	current.RewrittenResume = src.RewrittenResume
	current.OptimizedResume = src.OptimizedResume
	current.JobTitleTargeted = src.JobTitleTargeted
	current.CompanyTargeted = src.CompanyTargeted
	current.FailureReason = src.FailureReason
	current.ResumeID = src.ResumeID
	current.UpdatedAt = t.now()
	g.UpdatedAt = current.UpdatedAt
	t.generations[g.ID] = current
	return nil
}

func (t *tx) InsertResume(_ context.Context, r *db.Resume) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = t.now()
	t.resumes[r.ID] = *r
	return nil
}

func (t *tx) InsertAgentExecution(_ context.Context, e *db.AgentExecution) error {
	t.s.mu.Lock()
	failErr := t.s.executionErr
	t.s.mu.Unlock()
	if failErr != nil {
		return fmt.Errorf("failed to insert agent execution: %w", failErr)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = t.now()
	t.executions = append(t.executions, *e)
	return nil
}
