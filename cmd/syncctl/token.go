package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrine/backend/internal/infrastructure/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for an organization",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "syncctl", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	orgID, err := organizationID()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := auth.NewJWTService(cfg.JWT)
	if err != nil {
		return err
	}
	token, err := svc.IssueToken(orgID, tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
