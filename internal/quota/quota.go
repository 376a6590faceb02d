// Package quota enforces the monthly generation allowance of each user.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
)

// ErrQuotaExceeded is returned when a user has used up the month's generations.
var ErrQuotaExceeded = errors.New("monthly resume generation limit reached")

// Gate checks and consumes monthly generation quota under the user row lock.
type Gate struct {
	store   db.Store
	log     *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces the clock used to detect month rollover.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithMetrics counts rejections.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// NewGate returns a Gate over store.
func NewGate(store db.Store, opts ...Option) *Gate {
	g := &Gate{
		store: store,
		log:   observability.NewNopLogger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With("service", "QuotaGate")
	return g
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Admit fails with ErrQuotaExceeded if the user has no generations left this
// month. It runs in its own transaction, resets a stale month, and never
// consumes quota.
func (g *Gate) Admit(ctx context.Context, userID uuid.UUID) error {
	err := g.store.WithNewTx(ctx, func(tx db.Tx) error {
		u, err := g.lockAndRoll(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u.GenerationsUsed >= u.GenerationLimit {
			return ErrQuotaExceeded
		}
		return nil
	})
	if errors.Is(err, ErrQuotaExceeded) {
		g.metrics.QuotaRejected("admit")
		g.log.Info("generation rejected at admission", "user_id", userID)
	}
	return err
}

// CheckAndConsume re-validates the quota inside the caller's transaction and
// increments the counter. On ErrQuotaExceeded nothing is written and the caller
// must roll its transaction back.
func (g *Gate) CheckAndConsume(ctx context.Context, tx db.Tx, userID uuid.UUID) error {
	u, err := g.lockAndRoll(ctx, tx, userID)
	if err != nil {
		return err
	}
	if u.GenerationsUsed >= u.GenerationLimit {
		g.metrics.QuotaRejected("finalize")
		g.log.Info("generation rejected at finalization", "user_id", userID)
		return ErrQuotaExceeded
	}
	if err := tx.UpdateUserUsage(ctx, u.ID, u.UsageMonth, u.GenerationsUsed+1); err != nil {
		return fmt.Errorf("failed to consume quota: %w", err)
	}
	return nil
}

// Check re-validates the quota inside the caller's transaction without
// consuming it. It is used when a generation was already completed and charged
// by a concurrent run of the same submission.
func (g *Gate) Check(ctx context.Context, tx db.Tx, userID uuid.UUID) error {
	u, err := g.lockAndRoll(ctx, tx, userID)
	if err != nil {
		return err
	}
	if u.GenerationsUsed >= u.GenerationLimit {
		g.metrics.QuotaRejected("finalize")
		g.log.Info("shared generation rejected at finalization", "user_id", userID)
		return ErrQuotaExceeded
	}
	return nil
}

// lockAndRoll locks the user row and zeroes the counter when the stored month is stale.
func (g *Gate) lockAndRoll(ctx context.Context, tx db.Tx, userID uuid.UUID) (*db.User, error) {
	u, err := tx.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := MonthStart(g.now())
	if !MonthStart(u.UsageMonth).Equal(current) {
		u.UsageMonth = current
		u.GenerationsUsed = 0
		if err := tx.UpdateUserUsage(ctx, u.ID, u.UsageMonth, u.GenerationsUsed); err != nil {
			return nil, fmt.Errorf("failed to reset monthly usage: %w", err)
		}
	}
	return u, nil
}
