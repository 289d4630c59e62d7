package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AMR-Platform/Interface/internal/config"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "amrsim",
		Short: "Warehouse robot simulator and actuator bridge",
		Long: `amrsim simulates a differential-drive robot in a generated warehouse,
streams telemetry to websocket observers and accepts teleoperation and goal
commands. The bridge subcommand forwards motion tokens to the robot's serial
controller.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "amrsim.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newBridgeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file, then the environment, then any flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		cfg.Listen = f.Value.String()
	}
	if f := cmd.Flags().Lookup("seed"); f != nil && f.Changed {
		cfg.World.Seed = f.Value.String()
	}
	if f := cmd.Flags().Lookup("udp"); f != nil && f.Changed {
		cfg.Bridge.Listen = f.Value.String()
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		cfg.Bridge.Port = f.Value.String()
	}
	if f := cmd.Flags().Lookup("baud"); f != nil && f.Changed {
		baud, _ := cmd.Flags().GetInt("baud")
		cfg.Bridge.Baud = baud
	}
	return cfg, nil
}
