package main

import (
	"context"

	"github.com/spf13/cobra"

	"transferai/internal/platform/migrate"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				db, err := a.sqlDB(ctx)
				if err != nil {
					return err
				}
				if err := migrate.Up(db); err != nil {
					return err
				}
				cmd.Println("migrations applied")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				db, err := a.sqlDB(ctx)
				if err != nil {
					return err
				}
				if err := migrate.Down(db); err != nil {
					return err
				}
				cmd.Println("rolled back one migration")
				return nil
			})
		},
	})
	return cmd
}
