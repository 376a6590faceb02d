// Package main provides the resume_agent CLI: the HTTP API server plus
// operator commands for migrations, accounts and one-off generations.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "resume_agent",
	Short: "Resume tailoring agent pipeline",
	Long: "resume_agent tailors a master résumé to a job description by running four AI agents " +
		"(analysis, matching, rewriting, ATS optimization) with retries, per-attempt logging and monthly quotas.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (environment variables take precedence)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
