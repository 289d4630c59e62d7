package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AMR-Platform/Interface/internal/app"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulator and observer endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(withBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, app.Options{Config: cfg})
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address (overrides config and AMRSIM_LISTEN)")
	cmd.Flags().String("seed", "", "World generation seed (overrides config and AMRSIM_SEED)")
	return cmd
}

func withBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
