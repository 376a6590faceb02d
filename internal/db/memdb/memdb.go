// Package memdb provides an in-memory db.Store with the same transaction and
// row-locking semantics as the PostgreSQL store. Writes made inside WithNewTx are
// buffered and become visible to other readers only when the callback returns nil.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammadumar-dev/resumeagent/internal/db"
)

// Store is an in-memory db.Store.
type Store struct {
	mu          sync.Mutex
	users       map[uuid.UUID]db.User
	masters     map[uuid.UUID]db.MasterResume // keyed by user ID
	generations map[uuid.UUID]*db.Generation
	genOrder    []uuid.UUID
	resumes     map[uuid.UUID]db.Resume
	executions  []db.AgentExecution

	locksMu sync.Mutex
	locks   map[string]*rowLock

	executionErr error
	now          func() time.Time
}

var _ db.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[uuid.UUID]db.User),
		masters:     make(map[uuid.UUID]db.MasterResume),
		generations: make(map[uuid.UUID]*db.Generation),
		resumes:     make(map[uuid.UUID]db.Resume),
		locks:       make(map[string]*rowLock),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// FailExecutionWrites makes every subsequent InsertAgentExecution return err.
// Pass nil to restore normal behavior.
func (s *Store) FailExecutionWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionErr = err
}

// WithNewTx runs fn in an isolated transaction. Row locks taken by fn are held
// until it returns; buffered writes are applied only when fn returns nil.
func (s *Store) WithNewTx(ctx context.Context, fn func(tx db.Tx) error) error {
	t := &tx{
		s:           s,
		held:        make(map[string]*rowLock),
		users:       make(map[uuid.UUID]db.User),
		masters:     make(map[uuid.UUID]db.MasterResume),
		generations: make(map[uuid.UUID]*db.Generation),
		resumes:     make(map[uuid.UUID]db.Resume),
	}
	defer t.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range t.users {
		s.users[id] = u
	}
	for id, m := range t.masters {
		s.masters[id] = m
	}
	s.genOrder = append(s.genOrder, t.genOrder...)
	for id, g := range t.generations {
		s.generations[id] = g.Clone()
	}
	for id, r := range t.resumes {
		s.resumes[id] = r
	}
	s.executions = append(s.executions, t.executions...)
}

// ---- Reads outside a transaction ----

// GetUser returns the committed user row.
func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("failed to get user: %w", db.ErrNotFound)
	}
	return &u, nil
}

// GetMasterResume returns the committed master résumé of a user.
func (s *Store) GetMasterResume(_ context.Context, userID uuid.UUID) (*db.MasterResume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.masters[userID]
	if !ok {
		return nil, fmt.Errorf("failed to get master resume: %w", db.ErrNotFound)
	}
	return &m, nil
}

// GetGeneration returns a copy of the committed generation.
func (s *Store) GetGeneration(_ context.Context, id uuid.UUID) (*db.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generations[id]
	if !ok {
		return nil, fmt.Errorf("failed to get generation: %w", db.ErrNotFound)
	}
	return g.Clone(), nil
}

// FindInFlightGeneration returns the newest committed non-terminal generation for jd.
func (s *Store) FindInFlightGeneration(_ context.Context, userID uuid.UUID, jd string) (*db.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.genOrder) - 1; i >= 0; i-- {
		g := s.generations[s.genOrder[i]]
		if g.UserID == userID && g.JobDescription == jd && !g.Status.Terminal() {
			return g.Clone(), nil
		}
	}
	return nil, nil
}

// FindFailedGeneration returns the newest committed FAILED generation for jd.
func (s *Store) FindFailedGeneration(_ context.Context, userID uuid.UUID, jd string) (*db.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.genOrder) - 1; i >= 0; i-- {
		g := s.generations[s.genOrder[i]]
		if g.UserID == userID && g.JobDescription == jd && g.Status == db.GenerationFailed {
			return g.Clone(), nil
		}
	}
	return nil, nil
}

// GetResume returns a committed résumé.
func (s *Store) GetResume(_ context.Context, id uuid.UUID) (*db.Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resumes[id]
	if !ok {
		return nil, fmt.Errorf("failed to get resume: %w", db.ErrNotFound)
	}
	return &r, nil
}

// ListResumes returns a page of the user's committed résumés, newest first.
func (s *Store) ListResumes(_ context.Context, userID uuid.UUID, limit, offset int) ([]db.Resume, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []db.Resume
	for _, r := range s.resumes {
		if r.UserID == userID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() > all[j].ID.String()
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// ListAgentExecutions returns the user's committed execution log in insertion order.
func (s *Store) ListAgentExecutions(_ context.Context, userID uuid.UUID) ([]db.AgentExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.AgentExecution
	for _, e := range s.executions {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// AgentUsage aggregates the committed execution log per agent.
func (s *Store) AgentUsage(ctx context.Context, userID uuid.UUID) ([]db.AgentUsage, error) {
	executions, err := s.ListAgentExecutions(ctx, userID)
	if err != nil {
		return nil, err
	}

	byAgent := make(map[string]*db.AgentUsage)
	totalMs := make(map[string]int64)
	for _, e := range executions {
		u, ok := byAgent[e.AgentName]
		if !ok {
			u = &db.AgentUsage{AgentName: e.AgentName}
			byAgent[e.AgentName] = u
		}
		u.Executions++
		u.TotalTokens += int64(e.TokensInput + e.TokensOutput)
		totalMs[e.AgentName] += e.ExecutionTimeMs
	}

	usage := make([]db.AgentUsage, 0, len(byAgent))
	for name, u := range byAgent {
		u.AvgExecutionTimeMs = float64(totalMs[name]) / float64(u.Executions)
		usage = append(usage, *u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].AgentName < usage[j].AgentName })
	return usage, nil
}

// ---- Row locks ----

// rowLock is a context-aware mutex for a single row.
type rowLock struct {
	ch chan struct{}
}

func (s *Store) lockFor(key string) *rowLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	return l
}

func (l *rowLock) lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *rowLock) unlock() {
	<-l.ch
}
