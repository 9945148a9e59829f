package main

import (
	"context"

	"github.com/spf13/cobra"

	"transferai/internal/agreement/models"
)

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a single agreement into the content store",
		Long: `Render one agreement and store it, exactly as the API would.

Examples:
  server fetch agreement --year 75 --sending 61 --receiving 79 --major "75/61/to/79/Major/abc"
  server fetch igetc --year 75 --sending 61 --force`,
	}
	cmd.AddCommand(fetchAgreementCmd())
	cmd.AddCommand(fetchIGETCCmd())
	return cmd
}

func fetchAgreementCmd() *cobra.Command {
	var (
		yearID, sendingID, receivingID int
		majorKey                       string
		force                          bool
	)
	cmd := &cobra.Command{
		Use:   "agreement",
		Short: "Fetch one major or department agreement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := models.NewKey(yearID, sendingID, receivingID, majorKey)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				svc, _, err := a.pipeline(ctx)
				if err != nil {
					return err
				}
				fetch := svc.GetOrFetch
				if force {
					fetch = svc.Refresh
				}
				filename, err := fetch(ctx, key)
				if err != nil {
					return err
				}
				cmd.Println(filename)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&yearID, "year", 0, "academic year id")
	cmd.Flags().IntVar(&sendingID, "sending", 0, "sending institution id")
	cmd.Flags().IntVar(&receivingID, "receiving", 0, "receiving institution id")
	cmd.Flags().StringVar(&majorKey, "major", "", "major key from the majors listing")
	cmd.Flags().BoolVar(&force, "force", false, "re-render even when a stored copy exists")
	for _, f := range []string{"year", "sending", "receiving", "major"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func fetchIGETCCmd() *cobra.Command {
	var (
		yearID, sendingID int
		force             bool
	)
	cmd := &cobra.Command{
		Use:   "igetc",
		Short: "Fetch the general-education agreement of a sending institution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				svc, _, err := a.pipeline(ctx)
				if err != nil {
					return err
				}
				fetch := svc.GetOrFetchIGETC
				if force {
					fetch = svc.RefreshIGETC
				}
				filename, err := fetch(ctx, yearID, sendingID)
				if err != nil {
					return err
				}
				cmd.Println(filename)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&yearID, "year", 0, "academic year id")
	cmd.Flags().IntVar(&sendingID, "sending", 0, "sending institution id")
	cmd.Flags().BoolVar(&force, "force", false, "re-render even when a stored copy exists")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("sending")
	return cmd
}
