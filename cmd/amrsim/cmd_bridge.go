package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AMR-Platform/Interface/internal/bridge"
	"github.com/AMR-Platform/Interface/internal/telemetry"
)

func newBridgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Forward UDP motion tokens to the serial motor controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(withBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := telemetry.WrapLogger(log.Default())
			b := bridge.New(cfg.Bridge, nil, logger, nil)
			return b.Run(ctx)
		},
	}
	cmd.Flags().String("udp", "", "UDP listen address (overrides bridge.listen)")
	cmd.Flags().String("port", "", "Serial device (overrides bridge.port)")
	cmd.Flags().Int("baud", 0, "Serial baud rate (overrides bridge.baud)")
	return cmd
}
