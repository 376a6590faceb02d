package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/schemas"
)

var (
	userEmail      string
	userName       string
	userLimit      int
	userMasterFile string
	userID         string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user, optionally with a master résumé",
	RunE:  runUserCreate,
}

var userSetMasterCmd = &cobra.Command{
	Use:   "set-master",
	Short: "Replace a user's master résumé",
	RunE:  runUserSetMaster,
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Full name")
	userCreateCmd.Flags().IntVar(&userLimit, "limit", 0, "Monthly generation limit (defaults to DEFAULT_GENERATION_LIMIT)")
	userCreateCmd.Flags().StringVar(&userMasterFile, "master", "", "Path to a master résumé JSON file")
	_ = userCreateCmd.MarkFlagRequired("email")

	userSetMasterCmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	userSetMasterCmd.Flags().StringVar(&userMasterFile, "master", "", "Path to a master résumé JSON file (required)")
	_ = userSetMasterCmd.MarkFlagRequired("user")
	_ = userSetMasterCmd.MarkFlagRequired("master")

	userCmd.AddCommand(userCreateCmd, userSetMasterCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserCreate(cmd *cobra.Command, _ []string) error {
	email := strings.TrimSpace(userEmail)
	if email == "" {
		return fmt.Errorf("--email must not be empty")
	}
	var content json.RawMessage
	if userMasterFile != "" {
		var err error
		if content, err = readMasterResume(userMasterFile); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := userLimit
	if limit <= 0 {
		limit = a.cfg.DefaultGenerationLimit
	}
	u := &db.User{Email: email, FullName: strings.TrimSpace(userName), GenerationLimit: limit}
	err = a.db.WithNewTx(ctx, func(tx db.Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if content == nil {
			return nil
		}
		return tx.SaveMasterResume(ctx, &db.MasterResume{UserID: u.ID, Content: content})
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s), limit %d per month\n", u.ID, u.Email, u.GenerationLimit)
	return nil
}

func runUserSetMaster(cmd *cobra.Command, _ []string) error {
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	content, err := readMasterResume(userMasterFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	m := &db.MasterResume{UserID: id, Content: content}
	if err := a.db.WithNewTx(ctx, func(tx db.Tx) error {
		if _, err := tx.LockUser(ctx, id); err != nil {
			return err
		}
		return tx.SaveMasterResume(ctx, m)
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved master résumé %s for user %s\n", m.ID, id)
	return nil
}

// readMasterResume loads a résumé document from path and checks it against the résumé schema.
func readMasterResume(path string) (json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read master résumé: %w", err)
	}
	if err := schemas.Validate(schemas.ResumeDocument, b); err != nil {
		return nil, fmt.Errorf("invalid master résumé %s: %w", path, err)
	}
	return json.RawMessage(b), nil
}

func parseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user ID %q: %w", s, err)
	}
	return id, nil
}
