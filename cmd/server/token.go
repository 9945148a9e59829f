package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"transferai/internal/identity"
	"transferai/internal/platform/config"
)

func tokenCmd() *cobra.Command {
	var (
		email, name string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a development bearer token signed with DEV_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if cfg.Identity.DevJWTSecret == "" {
				return fmt.Errorf("DEV_JWT_SECRET is not set")
			}
			dev, err := identity.NewDevJWT(cfg.Identity.DevJWTSecret)
			if err != nil {
				return err
			}
			tok, err := dev.Issue(args[0], email, name, ttl)
			if err != nil {
				return err
			}
			cmd.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&name, "name", "", "name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
