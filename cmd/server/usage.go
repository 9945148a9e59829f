package main

import (
	"context"

	"github.com/spf13/cobra"

	usagemodels "transferai/internal/usage/models"
)

func usageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect and adjust account usage",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status <account-id>",
		Short: "Print an account's tier and today's usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ledger, err := a.usageLedger(ctx)
				if err != nil {
					return err
				}
				st, err := ledger.Status(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Printf("tier:   %s\nused:   %d/%d\nresets: %s\n",
					st.Tier, st.UsageCount, st.UsageLimit, st.ResetTime.Format("2006-01-02 15:04 MST"))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-tier <account-id> <free|premium>",
		Short: "Move an account to another tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := usagemodels.ParseTier(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ledger, err := a.usageLedger(ctx)
				if err != nil {
					return err
				}
				if err := ledger.UpdateTier(ctx, args[0], tier); err != nil {
					return err
				}
				cmd.Printf("%s is now %s\n", args[0], tier)
				return nil
			})
		},
	})
	return cmd
}
