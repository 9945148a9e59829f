package main

import (
	"context"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	auditpg "transferai/pkg/platform/audit/store/postgres"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit_events table",
	}
	var limit int
	list := &cobra.Command{
		Use:   "list <account-id>",
		Short: "Print an account's most recent audit events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				db, err := a.migrated(ctx)
				if err != nil {
					return err
				}
				events, err := auditpg.New(db).ListByAccount(ctx, args[0], limit)
				if err != nil {
					return err
				}
				for _, e := range events {
					keys := make([]string, 0, len(e.Attrs))
					for k := range e.Attrs {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					pairs := make([]string, 0, len(keys))
					for _, k := range keys {
						pairs = append(pairs, k+"="+e.Attrs[k])
					}
					cmd.Printf("%s  %-9s %-24s %s\n",
						e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), e.Category, e.Action, strings.Join(pairs, " "))
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	cmd.AddCommand(list)
	return cmd
}
