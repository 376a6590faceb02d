// Package generation drives a job description through the four agent stages,
// persisting each stage so a failed run can be resumed, and turns the final
// output into a résumé.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammadumar-dev/resumeagent/internal/agents"
	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/execution"
	"github.com/mohammadumar-dev/resumeagent/internal/notify"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
	"github.com/mohammadumar-dev/resumeagent/internal/quota"
	"github.com/mohammadumar-dev/resumeagent/internal/types"
)

// PipelineAgent is the name under which whole-pipeline notifications are sent.
const PipelineAgent = "ResumeGeneration"

// SuccessMessage is returned with every completed generation.
const SuccessMessage = "Resume generated successfully"

const maxFailureReasonChars = 2000

// stageOrder lists the payload-carrying statuses in pipeline order.
var stageOrder = []db.GenerationStatus{
	db.GenerationAnalyzedJD,
	db.GenerationMatched,
	db.GenerationRewritten,
	db.GenerationOptimized,
}

var tracer = otel.Tracer("github.com/mohammadumar-dev/resumeagent/internal/generation")

// Result identifies the résumé produced by a submission.
type Result struct {
	Message      string
	GenerationID uuid.UUID
	ResumeID     uuid.UUID
}

// Service runs generations.
type Service struct {
	store    db.Store
	agents   agents.Suite
	executor *execution.Executor
	quota    *quota.Gate
	log      *observability.Logger
	metrics  *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics counts finished generations.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a Service.
func NewService(store db.Store, suite agents.Suite, executor *execution.Executor, gate *quota.Gate, opts ...Option) *Service {
	s := &Service{
		store:    store,
		agents:   suite,
		executor: executor,
		quota:    gate,
		log:      observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "GenerationService")
	return s
}

// Submit tailors the user's master résumé to jobDescription. A generation left
// unfinished by an earlier submission of the same text is resumed from its last
// persisted stage.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, jobDescription string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "generation.submit")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID.String()))

	if err := s.quota.Admit(ctx, userID); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			s.metrics.GenerationFinished("quota_exceeded")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission rejected")
		return nil, err
	}

	s.executor.Notify(ctx, userID, PipelineAgent, notify.StatusStarted)

	res, err := s.run(ctx, userID, jobDescription)
	if err != nil {
		s.executor.Notify(ctx, userID, PipelineAgent, notify.StatusFailed)
		s.metrics.GenerationFinished(resultLabel(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}

	s.executor.Notify(ctx, userID, PipelineAgent, notify.StatusSuccess)
	s.metrics.GenerationFinished("completed")
	span.SetAttributes(
		attribute.String("generation.id", res.GenerationID.String()),
		attribute.String("resume.id", res.ResumeID.String()),
	)
	s.log.Info("generation completed", "user_id", userID, "generation_id", res.GenerationID, "resume_id", res.ResumeID)
	return res, nil
}

func (s *Service) run(ctx context.Context, userID uuid.UUID, jobDescription string) (*Result, error) {
	gen, err := s.store.FindInFlightGeneration(ctx, userID, jobDescription)
	if err != nil {
		return nil, fmt.Errorf("failed to look up in-flight generation: %w", err)
	}

	masterRow, master, err := s.loadMaster(ctx, userID)
	if err != nil {
		if gen != nil {
			s.markFailed(ctx, gen.ID, err)
		}
		return nil, err
	}

	if gen != nil && masterChanged(gen, masterRow) {
		// Payloads are write-once: retire the run and let a new one carry the job analysis.
		s.log.Info("master resume changed, restarting generation", "generation_id", gen.ID, "status", gen.Status)
		s.markFailed(ctx, gen.ID, ErrMasterResumeChanged)
		gen = nil
	}

	if gen == nil {
		gen, err = s.create(ctx, userID, masterRow, jobDescription)
		if err != nil {
			return nil, err
		}
	} else {
		s.log.Info("resuming generation", "generation_id", gen.ID, "status", gen.Status)
	}

	p := &pipeline{svc: s, gen: gen, masterRaw: masterRow.Content, master: master}
	if err := p.run(ctx); err != nil {
		s.markFailed(ctx, gen.ID, err)
		return nil, err
	}

	done, err := s.finalize(ctx, gen.ID)
	if err != nil {
		s.markFailed(ctx, gen.ID, err)
		return nil, err
	}
	return &Result{Message: SuccessMessage, GenerationID: done.ID, ResumeID: *done.ResumeID}, nil
}

func (s *Service) loadMaster(ctx context.Context, userID uuid.UUID) (*db.MasterResume, *types.ResumeDocument, error) {
	row, err := s.store.GetMasterResume(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, execution.NewFatal(PipelineAgent, ErrMasterResumeNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load master resume: %w", err)
	}
	var doc types.ResumeDocument
	if err := json.Unmarshal(row.Content, &doc); err != nil {
		return nil, nil, execution.NewFatal(PipelineAgent, &execution.SerializationError{Agent: PipelineAgent, Err: err})
	}
	return row, &doc, nil
}

// create inserts a PENDING generation. When an earlier generation for the same
// job description failed, its persisted stages are carried over so the new run
// continues where that one stopped. Stages after job analysis are only carried
// if the master résumé has not changed since.
func (s *Service) create(ctx context.Context, userID uuid.UUID, master *db.MasterResume, jobDescription string) (*db.Generation, error) {
	prev, err := s.store.FindFailedGeneration(ctx, userID, jobDescription)
	if err != nil {
		return nil, fmt.Errorf("failed to look up failed generation: %w", err)
	}

	gen := &db.Generation{
		UserID:         userID,
		MasterResumeID: master.ID,
		JobDescription: jobDescription,
		Status:         db.GenerationPending,
	}
	err = s.store.WithNewTx(ctx, func(tx db.Tx) error {
		if err := tx.InsertGeneration(ctx, gen); err != nil {
			return err
		}
		if prev == nil {
			return nil
		}
		last := db.GenerationOptimized
		if masterChanged(prev, master) {
			last = db.GenerationAnalyzedJD
		}
		if !carryOver(prev, gen, last) {
			return nil
		}
		return tx.UpdateGeneration(ctx, gen)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation: %w", err)
	}
	if prev != nil && gen.Status != db.GenerationPending {
		s.log.Info("generation created from failed run", "generation_id", gen.ID, "previous_id", prev.ID, "status", gen.Status)
	} else {
		s.log.Info("generation created", "generation_id", gen.ID, "user_id", userID)
	}
	return gen, nil
}

// masterChanged reports whether g was started from a different or since edited master résumé.
func masterChanged(g *db.Generation, master *db.MasterResume) bool {
	return g.MasterResumeID != master.ID || master.UpdatedAt.After(g.CreatedAt)
}

// carryOver copies the leading persisted stages of from, up to last, onto to.
func carryOver(from, to *db.Generation, last db.GenerationStatus) bool {
	carried := false
	for _, st := range stageOrder {
		if st.Ordinal() > last.Ordinal() {
			break
		}
		payload := from.Payload(st)
		if payload == nil {
			break
		}
		to.SetPayload(st, append(json.RawMessage(nil), payload...))
		to.Status = st
		carried = true
	}
	if carried {
		to.JobTitleTargeted = from.JobTitleTargeted
		to.CompanyTargeted = from.CompanyTargeted
	}
	return carried
}

// markFailed records cause on the generation unless it is already terminal.
// It runs detached from ctx so a cancelled request still leaves a FAILED row.
func (s *Service) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	ctx = context.WithoutCancel(ctx)
	reason := execution.Truncate(cause.Error(), maxFailureReasonChars)

	err := s.store.WithNewTx(ctx, func(tx db.Tx) error {
		g, err := tx.LockGeneration(ctx, id)
		if err != nil {
			return err
		}
		if g.Status.Terminal() {
			return nil
		}
		g.Status = db.GenerationFailed
		g.FailureReason = &reason
		return tx.UpdateGeneration(ctx, g)
	})
	if err != nil {
		s.log.Error("failed to mark generation failed", "generation_id", id, "cause", cause, "error", err)
		return
	}
	s.log.Warn("generation failed", "generation_id", id, "reason", reason)
}

// finalize consumes quota and turns the optimized stage output into a résumé.
// A generation already completed by a concurrent run is returned as is, unless
// the user has no quota left. The generation lock is taken before the user lock.
func (s *Service) finalize(ctx context.Context, id uuid.UUID) (*db.Generation, error) {
	ctx, span := tracer.Start(ctx, "generation.finalize")
	defer span.End()

	var done *db.Generation
	err := s.store.WithNewTx(ctx, func(tx db.Tx) error {
		g, err := tx.LockGeneration(ctx, id)
		if err != nil {
			return err
		}
		switch g.Status {
		case db.GenerationFailed:
			return ErrGenerationTerminal
		case db.GenerationCompleted:
			// Another run of the same submission already charged for it.
			if err := s.quota.Check(ctx, tx, g.UserID); err != nil {
				return err
			}
			done = g
			return nil
		}
		if g.OptimizedResume == nil {
			return ErrGenerationIncomplete
		}

		if err := s.quota.CheckAndConsume(ctx, tx, g.UserID); err != nil {
			return err
		}

		resume := &db.Resume{
			UserID:           g.UserID,
			GenerationID:     g.ID,
			JobTitleTargeted: g.JobTitleTargeted,
			CompanyTargeted:  g.CompanyTargeted,
			Content:          g.OptimizedResume,
			JDAnalysis:       g.JDAnalysis,
		}
		if err := tx.InsertResume(ctx, resume); err != nil {
			return err
		}

		g.Status = db.GenerationCompleted
		g.ResumeID = &resume.ID
		g.FailureReason = nil
		if err := tx.UpdateGeneration(ctx, g); err != nil {
			return err
		}
		done = g
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, quota.ErrQuotaExceeded) || errors.Is(err, ErrGenerationTerminal) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to finalize generation: %w", err)
	}
	return done, nil
}

// Get returns one of the user's generations.
func (s *Service) Get(ctx context.Context, userID, generationID uuid.UUID) (*db.Generation, error) {
	g, err := s.store.GetGeneration(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if g.UserID != userID {
		return nil, fmt.Errorf("generation %s: %w", generationID, db.ErrNotFound)
	}
	return g, nil
}

// AgentUsage returns the user's token and latency totals per agent.
func (s *Service) AgentUsage(ctx context.Context, userID uuid.UUID) ([]db.AgentUsage, error) {
	return s.store.AgentUsage(ctx, userID)
}

func resultLabel(err error) string {
	if errors.Is(err, quota.ErrQuotaExceeded) {
		return "quota_exceeded"
	}
	return "failed"
}

// GetResume returns one of the user's generated résumés.
func (s *Service) GetResume(ctx context.Context, userID, resumeID uuid.UUID) (*db.Resume, error) {
	r, err := s.store.GetResume(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("resume %s: %w", resumeID, db.ErrNotFound)
	}
	return r, nil
}

// ListResumes returns a page of the user's generated résumés, newest first,
// together with how many the user has in total.
func (s *Service) ListResumes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]db.Resume, int, error) {
	return s.store.ListResumes(ctx, userID, limit, offset)
}
