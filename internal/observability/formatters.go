// Package observability provides structured logging, metrics, tracing and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/mohammadumar-dev/resumeagent/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer writes human-readable summaries of generation results for the CLI.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// writeList writes up to maxItemsToShow items under a heading.
func writeList(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(heading + ":\n")
	count := min(len(items), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
	}
	if len(items) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-maxItemsToShow))
	}
	sb.WriteString("\n")
}

// PrintJDAnalysis outputs the role, employer and skills extracted from a job description.
func (p *Printer) PrintJDAnalysis(a *types.JDAnalysis) {
	if a == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:  %s\n", a.JobIdentity.Company))
	sb.WriteString(fmt.Sprintf("Role:     %s\n", a.JobIdentity.Title))
	if a.Seniority != "" {
		sb.WriteString(fmt.Sprintf("Level:    %s\n", a.Seniority))
	}
	sb.WriteString("\n")
	writeList(&sb, "Required skills", a.RequiredSkills)
	writeList(&sb, "Preferred skills", a.PreferredSkills)

	p.printBox("JOB DESCRIPTION ANALYSIS", strings.TrimRight(sb.String(), "\n"))
}

// PrintMatchResult outputs the match score with matched and missing skills.
func (p *Printer) PrintMatchResult(m *types.MatchResult) {
	if m == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Match score: %d/100\n\n", m.MatchScore))
	writeList(&sb, "Matched", m.MatchedSkills)
	writeList(&sb, "Missing", m.MissingSkills)
	writeList(&sb, "Recommendations", m.Recommendations)

	p.printBox("RESUME MATCH", strings.TrimRight(sb.String(), "\n"))
}

// PrintResume outputs the headline, summary and experience bullets of a résumé.
func (p *Printer) PrintResume(r *types.ResumeDocument) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(r.FullName + "\n")
	if r.Headline != "" {
		sb.WriteString(r.Headline + "\n")
	}
	if r.Summary != "" {
		sb.WriteString("\n" + r.Summary + "\n")
	}
	if len(r.Skills) > 0 {
		sb.WriteString("\nSkills: " + strings.Join(r.Skills, ", ") + "\n")
	}
	for _, exp := range r.Experience {
		sb.WriteString(fmt.Sprintf("\n%s, %s\n", exp.Title, exp.Company))
		for _, b := range exp.Bullets {
			sb.WriteString("  • " + b + "\n")
		}
	}

	p.printBox("TAILORED RESUME", strings.TrimRight(sb.String(), "\n"))
}

// PrintGeneration outputs the status of a generation.
func (p *Printer) PrintGeneration(g types.GenerationView) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", g.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", g.Status))
	if g.JobTitleTargeted != "" {
		sb.WriteString(fmt.Sprintf("Role:     %s\n", g.JobTitleTargeted))
	}
	if g.CompanyTargeted != "" {
		sb.WriteString(fmt.Sprintf("Company:  %s\n", g.CompanyTargeted))
	}
	if g.ResumeID != nil {
		sb.WriteString(fmt.Sprintf("Resume:   %s\n", *g.ResumeID))
	}
	if g.FailureReason != "" {
		sb.WriteString(fmt.Sprintf("Reason:   %s\n", g.FailureReason))
	}

	p.printBox("GENERATION", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAgentUsage outputs one line per agent with executions, tokens and mean latency.
func (p *Printer) PrintAgentUsage(usage []types.AgentUsageView) {
	if len(usage) == 0 {
		p.printBox("AGENT USAGE", "No agent executions recorded")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-28s %5s %9s %8s\n", "Agent", "Runs", "Tokens", "Avg ms"))
	var total int64
	for _, u := range usage {
		sb.WriteString(fmt.Sprintf("%-28s %5d %9d %8.0f\n", clip(u.AgentName, 28), u.Executions, u.TotalTokens, u.AvgExecutionTime))
		total += u.TotalTokens
	}
	sb.WriteString(fmt.Sprintf("\nTotal tokens: %d", total))

	p.printBox("AGENT USAGE", sb.String())
}
