package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mohammadumar-dev/resumeagent/internal/agents"
	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/execution"
	"github.com/mohammadumar-dev/resumeagent/internal/tokens"
	"github.com/mohammadumar-dev/resumeagent/internal/types"
)

// stage describes one agent step and the status it advances the generation to.
type stage struct {
	status   db.GenerationStatus
	agent    string
	snapshot string
	tokensIn int
	call     func(ctx context.Context) (json.RawMessage, error)
	// decorate copies derived columns from the payload onto the row.
	decorate func(g *db.Generation, payload json.RawMessage)
}

// pipeline carries one run's generation row and decoded inputs between stages.
type pipeline struct {
	svc       *Service
	gen       *db.Generation
	masterRaw json.RawMessage
	master    *types.ResumeDocument
}

func (p *pipeline) run(ctx context.Context) error {
	suite := p.svc.agents
	jd := p.gen.JobDescription

	analysisRaw, err := p.stage(ctx, stage{
		status:   db.GenerationAnalyzedJD,
		agent:    agents.JobDescriptionAnalyzerAgent,
		snapshot: jd,
		tokensIn: tokens.Count(jd),
		call: invoke(agents.JobDescriptionAnalyzerAgent, func(ctx context.Context) (*types.JDAnalysis, error) {
			return suite.Analyzer.Analyze(ctx, jd)
		}),
		decorate: setJobIdentity,
	})
	if err != nil {
		return err
	}
	var analysis types.JDAnalysis
	if err := decode(agents.JobDescriptionAnalyzerAgent, analysisRaw, &analysis); err != nil {
		return err
	}

	masterTokens := tokens.CountJSON(p.masterRaw)
	analysisTokens := tokens.CountJSON(analysisRaw)

	matchRaw, err := p.stage(ctx, stage{
		status:   db.GenerationMatched,
		agent:    agents.MatchingAgent,
		snapshot: string(analysisRaw),
		tokensIn: masterTokens + analysisTokens,
		call: invoke(agents.MatchingAgent, func(ctx context.Context) (*types.MatchResult, error) {
			return suite.Matcher.Match(ctx, p.master, &analysis)
		}),
	})
	if err != nil {
		return err
	}
	var match types.MatchResult
	if err := decode(agents.MatchingAgent, matchRaw, &match); err != nil {
		return err
	}

	rewrittenRaw, err := p.stage(ctx, stage{
		status:   db.GenerationRewritten,
		agent:    agents.ResumeRewriteAgent,
		snapshot: string(matchRaw),
		tokensIn: masterTokens + analysisTokens + tokens.CountJSON(matchRaw),
		call: invoke(agents.ResumeRewriteAgent, func(ctx context.Context) (*types.ResumeDocument, error) {
			return suite.Rewriter.Rewrite(ctx, p.master, &analysis, &match)
		}),
	})
	if err != nil {
		return err
	}
	var rewritten types.ResumeDocument
	if err := decode(agents.ResumeRewriteAgent, rewrittenRaw, &rewritten); err != nil {
		return err
	}

	_, err = p.stage(ctx, stage{
		status:   db.GenerationOptimized,
		agent:    agents.ATSOptimizationAgent,
		snapshot: string(rewrittenRaw),
		tokensIn: tokens.CountJSON(rewrittenRaw),
		call: invoke(agents.ATSOptimizationAgent, func(ctx context.Context) (*types.ResumeDocument, error) {
			return suite.Optimizer.Optimize(ctx, &rewritten)
		}),
	})
	return err
}

// stage returns the stored payload when the generation already passed st.status,
// otherwise runs the agent and persists its output.
func (p *pipeline) stage(ctx context.Context, st stage) (json.RawMessage, error) {
	if p.gen.Status.AtLeast(st.status) && p.gen.Payload(st.status) != nil {
		p.svc.log.Debug("stage already persisted, skipping", "generation_id", p.gen.ID, "stage", st.status)
		return p.gen.Payload(st.status), nil
	}

	ctx, span := tracer.Start(ctx, "generation.stage")
	defer span.End()
	span.SetAttributes(
		attribute.String("generation.id", p.gen.ID.String()),
		attribute.String("generation.stage", string(st.status)),
	)

	genID := p.gen.ID
	payload, err := execution.Execute(ctx, p.svc.executor, execution.Request[json.RawMessage]{
		Agent:         st.agent,
		UserID:        p.gen.UserID,
		GenerationID:  &genID,
		InputSnapshot: st.snapshot,
		TokensInput:   st.tokensIn,
		Call:          st.call,
		TokensOutput:  func(raw json.RawMessage) int { return tokens.CountJSON(raw) },
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	persisted, err := p.svc.persistStage(ctx, p.gen.ID, st, payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	p.gen = persisted
	return persisted.Payload(st.status), nil
}

// persistStage stores a stage payload under the generation lock. A payload
// already stored by a concurrent run of the same generation wins and is returned
// in place of payload.
func (s *Service) persistStage(ctx context.Context, id uuid.UUID, st stage, payload json.RawMessage) (*db.Generation, error) {
	var persisted *db.Generation
	err := s.store.WithNewTx(ctx, func(tx db.Tx) error {
		g, err := tx.LockGeneration(ctx, id)
		if err != nil {
			return err
		}
		if g.Status == db.GenerationFailed {
			return ErrGenerationTerminal
		}
		if g.Status.AtLeast(st.status) && g.Payload(st.status) != nil {
			persisted = g
			return nil
		}

		g.SetPayload(st.status, payload)
		if !g.Status.AtLeast(st.status) {
			g.Status = st.status
		}
		g.FailureReason = nil
		if st.decorate != nil {
			st.decorate(g, payload)
		}
		if err := tx.UpdateGeneration(ctx, g); err != nil {
			return err
		}
		persisted = g
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrGenerationTerminal) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist %s stage: %w", st.status, err)
	}
	return persisted, nil
}

// invoke adapts a typed agent call to the raw payload stored on the generation.
func invoke[T any](agent string, fn func(ctx context.Context) (*T, error)) func(context.Context) (json.RawMessage, error) {
	return func(ctx context.Context) (json.RawMessage, error) {
		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, &execution.SerializationError{Agent: agent, Err: errors.New("agent returned no output")}
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, &execution.SerializationError{Agent: agent, Err: err}
		}
		return data, nil
	}
}

func decode(agent string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return execution.NewFatal(agent, &execution.SerializationError{Agent: agent, Err: err})
	}
	return nil
}

func setJobIdentity(g *db.Generation, payload json.RawMessage) {
	var analysis types.JDAnalysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return
	}
	if title := strings.TrimSpace(analysis.JobIdentity.Title); title != "" {
		g.JobTitleTargeted = &title
	}
	if company := strings.TrimSpace(analysis.JobIdentity.Company); company != "" {
		g.CompanyTargeted = &company
	}
}
