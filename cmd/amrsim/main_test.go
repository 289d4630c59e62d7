package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("version output %q does not mention %s", out.String(), version)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amrsim.yaml")
	doc := "listen: \":7000\"\ntickRate: 5\nworld:\n  seed: file\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AMRSIM_TICK_RATE", "12")
	t.Setenv("AMRSIM_SEED", "env")
	t.Setenv("AMRSIM_LISTEN", "")

	var captured *cobra.Command
	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("find serve: %v", err)
	}
	serve.RunE = func(cmd *cobra.Command, args []string) error {
		captured = cmd
		return nil
	}
	root.SetArgs([]string{"serve", "--config", path, "--seed", "flag"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg, err := loadConfig(captured)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("expected listen from file, got %q", cfg.Listen)
	}
	if cfg.TickRate != 12 {
		t.Errorf("expected tick rate from env, got %d", cfg.TickRate)
	}
	if cfg.World.Seed != "flag" {
		t.Errorf("expected seed from flag, got %q", cfg.World.Seed)
	}
}

func TestBridgeFlagsOverrideConfig(t *testing.T) {
	var captured *cobra.Command
	root := newRootCmd()
	bridgeCmd, _, err := root.Find([]string{"bridge"})
	if err != nil {
		t.Fatalf("find bridge: %v", err)
	}
	bridgeCmd.RunE = func(cmd *cobra.Command, args []string) error {
		captured = cmd
		return nil
	}
	missing := filepath.Join(t.TempDir(), "none.yaml")
	root.SetArgs([]string{"bridge", "--config", missing, "--port", "/dev/ttyUSB1", "--baud", "115200"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg, err := loadConfig(captured)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Bridge.Port != "/dev/ttyUSB1" || cfg.Bridge.Baud != 115200 {
		t.Errorf("unexpected bridge config %+v", cfg.Bridge)
	}
	if cfg.Bridge.Listen != "0.0.0.0:5005" {
		t.Errorf("expected default udp listen, got %q", cfg.Bridge.Listen)
	}
}
