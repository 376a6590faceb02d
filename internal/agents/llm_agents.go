package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohammadumar-dev/resumeagent/internal/execution"
	"github.com/mohammadumar-dev/resumeagent/internal/llm"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
	"github.com/mohammadumar-dev/resumeagent/internal/prompts"
	"github.com/mohammadumar-dev/resumeagent/internal/schemas"
	"github.com/mohammadumar-dev/resumeagent/internal/types"
)

// LLMAgents implements all four agents on top of an llm.Client.
type LLMAgents struct {
	client llm.Client
	log    *observability.Logger
}

// NewLLMAgents returns agents that prompt client.
func NewLLMAgents(client llm.Client, log *observability.Logger) *LLMAgents {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &LLMAgents{client: client, log: log.With("service", "Agents")}
}

// Analyze implements Analyzer.
func (a *LLMAgents) Analyze(ctx context.Context, jobDescription string) (*types.JDAnalysis, error) {
	prompt := prompts.Format(prompts.MustGet(prompts.AgentsFile, prompts.KeyAnalyzeJobDescription), map[string]string{
		"JobDescription": jobDescription,
	})
	var out types.JDAnalysis
	if err := a.generate(ctx, JobDescriptionAnalyzerAgent, prompt, llm.TierLite, schemas.JDAnalysis, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Match implements Matcher.
func (a *LLMAgents) Match(ctx context.Context, resume *types.ResumeDocument, jd *types.JDAnalysis) (*types.MatchResult, error) {
	inputs, err := encodeInputs(MatchingAgent, map[string]any{"MasterResume": resume, "JDAnalysis": jd})
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(prompts.MustGet(prompts.AgentsFile, prompts.KeyMatchResume), inputs)
	var out types.MatchResult
	if err := a.generate(ctx, MatchingAgent, prompt, llm.TierStandard, schemas.MatchResult, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rewrite implements Rewriter.
func (a *LLMAgents) Rewrite(ctx context.Context, resume *types.ResumeDocument, jd *types.JDAnalysis, match *types.MatchResult) (*types.ResumeDocument, error) {
	inputs, err := encodeInputs(ResumeRewriteAgent, map[string]any{"MasterResume": resume, "JDAnalysis": jd, "MatchResult": match})
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(prompts.MustGet(prompts.AgentsFile, prompts.KeyRewriteResume), inputs)
	var out types.ResumeDocument
	if err := a.generate(ctx, ResumeRewriteAgent, prompt, llm.TierAdvanced, schemas.ResumeDocument, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Optimize implements Optimizer.
func (a *LLMAgents) Optimize(ctx context.Context, resume *types.ResumeDocument) (*types.ResumeDocument, error) {
	inputs, err := encodeInputs(ATSOptimizationAgent, map[string]any{"Resume": resume})
	if err != nil {
		return nil, err
	}
	prompt := prompts.Format(prompts.MustGet(prompts.AgentsFile, prompts.KeyOptimizeATS), inputs)
	var out types.ResumeDocument
	if err := a.generate(ctx, ATSOptimizationAgent, prompt, llm.TierStandard, schemas.ResumeDocument, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// generate calls the model and decodes its answer into out. Provider errors are
// returned wrapped so the executor can classify them; malformed output becomes a
// *execution.SerializationError.
func (a *LLMAgents) generate(ctx context.Context, agent, prompt string, tier llm.ModelTier, schema string, out any) error {
	raw, err := a.client.GenerateJSON(ctx, prompt, tier)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", agent, err)
	}

	obj, err := llm.ExtractJSONObject(raw)
	if err != nil {
		a.log.Warn("model output has no JSON object", "agent", agent, "model", a.client.GetModel(tier))
		return &execution.SerializationError{Agent: agent, Err: err}
	}
	if err := schemas.Validate(schema, []byte(obj)); err != nil {
		a.log.Warn("model output failed schema validation", "agent", agent, "error", err)
		return &execution.SerializationError{Agent: agent, Err: err}
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return &execution.SerializationError{Agent: agent, Err: err}
	}
	return nil
}

func encodeInputs(agent string, values map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for key, v := range values {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, &execution.SerializationError{Agent: agent, Err: fmt.Errorf("encode %s: %w", key, err)}
		}
		out[key] = string(data)
	}
	return out, nil
}
