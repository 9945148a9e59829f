// Command server runs the transfer-planning API and the operator commands
// that share its wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"transferai/internal/platform/config"
	"transferai/internal/platform/logger"
)

var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Articulation agreement cache and transfer-planning API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(fetchCmd())
	root.AddCommand(pagesCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(usageCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(adminTokenCmd())
	return root
}

// withApp loads configuration, builds an app and closes it after fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg := config.FromEnv()
	a := newApp(cfg, logger.New(cfg.LogLevel, cfg.LogFormat))
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		a.logger.Warn("failed to release resources", "error", err)
	}
	return runErr
}
