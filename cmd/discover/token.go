package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/octobees/leads-discovery/internal/auth"
	"github.com/octobees/leads-discovery/internal/config"
)

func newTokenCmd(cfg *config.Config) *cobra.Command {
	var (
		email     string
		role      string
		unmetered bool
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the API signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL).GenerateToken(args[0], email, role, unmetered)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", "member", "role claim")
	cmd.Flags().BoolVar(&unmetered, "unmetered", false, "exempt the subject from credit checks")
	return cmd
}
