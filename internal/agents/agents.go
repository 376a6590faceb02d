// Package agents defines the four generation agents and their Gemini-backed implementation.
package agents

import (
	"context"

	"github.com/mohammadumar-dev/resumeagent/internal/types"
)

// Agent names as they appear in the execution log and status notifications.
const (
	JobDescriptionAnalyzerAgent = "JobDescriptionAnalyzerAgent"
	MatchingAgent               = "MatchingAgent"
	ResumeRewriteAgent          = "ResumeRewriteAgent"
	ATSOptimizationAgent        = "ATSOptimizationAgent"
)

// Analyzer extracts the requirements of a job description.
type Analyzer interface {
	Analyze(ctx context.Context, jobDescription string) (*types.JDAnalysis, error)
}

// Matcher scores a résumé against an analyzed job description.
type Matcher interface {
	Match(ctx context.Context, resume *types.ResumeDocument, jd *types.JDAnalysis) (*types.MatchResult, error)
}

// Rewriter tailors a résumé to a job.
type Rewriter interface {
	Rewrite(ctx context.Context, resume *types.ResumeDocument, jd *types.JDAnalysis, match *types.MatchResult) (*types.ResumeDocument, error)
}

// Optimizer makes a résumé friendly to applicant tracking systems.
type Optimizer interface {
	Optimize(ctx context.Context, resume *types.ResumeDocument) (*types.ResumeDocument, error)
}

// Suite bundles one implementation of each agent.
type Suite struct {
	Analyzer  Analyzer
	Matcher   Matcher
	Rewriter  Rewriter
	Optimizer Optimizer
}

// NewSuite returns a Suite whose four agents are all served by a.
func NewSuite(a interface {
	Analyzer
	Matcher
	Rewriter
	Optimizer
}) Suite {
	return Suite{Analyzer: a, Matcher: a, Rewriter: a, Optimizer: a}
}
