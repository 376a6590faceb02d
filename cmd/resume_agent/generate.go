package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/observability"
	"github.com/mohammadumar-dev/resumeagent/internal/server"
	"github.com/mohammadumar-dev/resumeagent/internal/types"
)

var (
	generateUser    string
	generateJDFile  string
	generateVerbose bool

	statusUser string
	statusID   string

	usageUser string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Tailor a user's master résumé to a job description",
	Long: `Run the analysis, matching, rewrite and ATS optimization agents for a job description read from a file.
Submitting the same job description again resumes an unfinished generation from its last completed stage.`,
	RunE: runGenerate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a generation",
	RunE:  runStatus,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-agent execution and token totals for a user",
	RunE:  runUsage,
}

func init() {
	generateCmd.Flags().StringVar(&generateUser, "user", "", "User ID (required)")
	generateCmd.Flags().StringVar(&generateJDFile, "jd-file", "", "Path to a plain-text job description (required)")
	generateCmd.Flags().BoolVarP(&generateVerbose, "verbose", "v", false, "Print the intermediate analysis and match result")
	_ = generateCmd.MarkFlagRequired("user")
	_ = generateCmd.MarkFlagRequired("jd-file")

	statusCmd.Flags().StringVar(&statusUser, "user", "", "User ID (required)")
	statusCmd.Flags().StringVar(&statusID, "id", "", "Generation ID (required)")
	_ = statusCmd.MarkFlagRequired("user")
	_ = statusCmd.MarkFlagRequired("id")

	usageCmd.Flags().StringVar(&usageUser, "user", "", "User ID (required)")
	_ = usageCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(generateCmd, statusCmd, usageCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	id, err := parseUserID(generateUser)
	if err != nil {
		return err
	}
	jd, err := readJobDescription(generateJDFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.Submit(ctx, id, jd)
	if err != nil {
		return fmt.Errorf("%s: %w", server.ErrorMessage(err), err)
	}

	g, err := a.service.Get(ctx, id, res.GenerationID)
	if err != nil {
		return err
	}
	resume, err := a.service.GetResume(ctx, id, res.ResumeID)
	if err != nil {
		return err
	}

	p := observability.NewPrinter(cmd.OutOrStdout())
	if generateVerbose {
		if err := printStages(p, g); err != nil {
			return err
		}
	}
	var doc types.ResumeDocument
	if err := json.Unmarshal(resume.Content, &doc); err != nil {
		return fmt.Errorf("failed to decode résumé %s: %w", resume.ID, err)
	}
	p.PrintResume(&doc)
	p.PrintGeneration(server.NewGenerationView(g))
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	uid, err := parseUserID(statusUser)
	if err != nil {
		return err
	}
	gid, err := uuid.Parse(statusID)
	if err != nil {
		return fmt.Errorf("invalid generation ID %q: %w", statusID, err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	g, err := a.db.GetGeneration(ctx, gid)
	if err != nil {
		return err
	}
	if g.UserID != uid {
		return fmt.Errorf("generation %s: %w", gid, db.ErrNotFound)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintGeneration(server.NewGenerationView(g))
	return nil
}

func runUsage(cmd *cobra.Command, _ []string) error {
	uid, err := parseUserID(usageUser)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	usage, err := a.db.AgentUsage(ctx, uid)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintAgentUsage(server.NewAgentUsageViews(usage))
	return nil
}

// readJobDescription loads a job description and applies the same checks as the API.
func readJobDescription(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read job description: %w", err)
	}
	req := types.SubmitGenerationRequest{JobDescription: string(b)}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid job description: %w", err)
	}
	return req.JobDescription, nil
}

func printStages(p *observability.Printer, g *db.Generation) error {
	if len(g.JDAnalysis) > 0 {
		var a types.JDAnalysis
		if err := json.Unmarshal(g.JDAnalysis, &a); err != nil {
			return fmt.Errorf("failed to decode job description analysis: %w", err)
		}
		p.PrintJDAnalysis(&a)
	}
	if len(g.MatchResult) > 0 {
		var m types.MatchResult
		if err := json.Unmarshal(g.MatchResult, &m); err != nil {
			return fmt.Errorf("failed to decode match result: %w", err)
		}
		p.PrintMatchResult(&m)
	}
	return nil
}
