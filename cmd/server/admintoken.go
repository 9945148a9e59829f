package main

import (
	"github.com/spf13/cobra"

	"transferai/pkg/platform/middleware/admin"
)

func adminTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admin-token <token>",
		Short: "Print the bcrypt hash to set as ADMIN_API_TOKEN in place of the plain token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashed, err := admin.HashToken(args[0])
			if err != nil {
				return err
			}
			cmd.Println(hashed)
			return nil
		},
	}
}
