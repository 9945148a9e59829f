package main

import (
	"context"

	"github.com/spf13/cobra"
)

func pagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pages <pdf-filename>",
		Short: "Expand a stored PDF into page images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				_, expander, err := a.pipeline(ctx)
				if err != nil {
					return err
				}
				images, err := expander.GetOrGenerate(ctx, args[0])
				if err != nil {
					return err
				}
				for _, name := range images {
					cmd.Println(name)
				}
				return nil
			})
		},
	}
}
